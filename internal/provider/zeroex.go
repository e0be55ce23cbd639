package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/dex-router/pkg/config"
	"github.com/mselser95/dex-router/pkg/types"
	"go.uber.org/zap"

	"github.com/goccy/go-json"
)

// ZeroExAdapter integrates the 0x swap API. 0x returns numeric fields as
// strings, so the payload is parsed field by field.
type ZeroExAdapter struct {
	httpAdapter
}

// NewZeroEx creates a 0x adapter.
func NewZeroEx(pc config.ProviderConfig, quoteValidity time.Duration, logger *zap.Logger) *ZeroExAdapter {
	return &ZeroExAdapter{httpAdapter: newHTTPAdapter(pc, quoteValidity, logger)}
}

type zeroExQuoteResponse struct {
	BuyAmount            string `json:"buyAmount"`
	EstimatedPriceImpact string `json:"estimatedPriceImpact"`
	Gas                  string `json:"gas"`
	ProtocolFee          string `json:"protocolFee"`
	SellAmountUSD        string `json:"sellAmountUsd"`
}

// GetQuote fetches a priced swap quote from 0x.
func (a *ZeroExAdapter) GetQuote(ctx context.Context, req QuoteRequest) (*types.Quote, error) {
	if err := req.Validate(a.now()); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/swap/v1/quote?sellToken=%s&buyToken=%s&sellAmount=%f",
		a.baseURL, req.Pair.SellToken, req.Pair.BuyToken, req.Amount)

	var resp zeroExQuoteResponse
	if err := a.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	buyAmount, err := strconv.ParseFloat(resp.BuyAmount, 64)
	if err != nil {
		return nil, types.NewTransientProviderError(a.name, fmt.Sprintf("bad buyAmount %q", resp.BuyAmount), 0)
	}
	impact, err := strconv.ParseFloat(resp.EstimatedPriceImpact, 64)
	if err != nil {
		return nil, types.NewTransientProviderError(a.name, fmt.Sprintf("bad estimatedPriceImpact %q", resp.EstimatedPriceImpact), 0)
	}
	gas, err := strconv.ParseUint(resp.Gas, 10, 64)
	if err != nil {
		return nil, types.NewTransientProviderError(a.name, fmt.Sprintf("bad gas %q", resp.Gas), 0)
	}

	fee, _ := strconv.ParseFloat(resp.ProtocolFee, 64)
	notional, _ := strconv.ParseFloat(resp.SellAmountUSD, 64)

	raw, _ := json.Marshal(resp)
	now := a.now()

	QuotesTotal.WithLabelValues(a.name).Inc()

	return &types.Quote{
		ID:             uuid.NewString(),
		Provider:       a.name,
		Pair:           req.Pair,
		SellAmount:     req.Amount,
		BuyAmountEst:   buyAmount,
		PriceImpactPct: impact,
		FeeEquivalent:  fee,
		GasEstimate:    gas,
		NotionalUSD:    notional,
		ValidUntil:     minTime(now.Add(a.quoteValidity), req.Deadline),
		FetchedAt:      now,
		Raw:            raw,
	}, nil
}

type zeroExSubmitResponse struct {
	TxHash string `json:"txHash"`
}

// Submit broadcasts a signed transaction through 0x, using tx-relay when the
// route is MEV-protected.
func (a *ZeroExAdapter) Submit(ctx context.Context, req SubmitRequest) (*types.SubmissionHandle, error) {
	body := map[string]interface{}{
		"rawTransaction": req.SignedTx.String(),
		"gasLimit":       strconv.FormatUint(req.GasLimit, 10),
	}

	url, err := a.submitURL(req.Private, "/tx-relay/v1/submit")
	if err != nil {
		return nil, err
	}

	var resp zeroExSubmitResponse
	if err := a.postJSON(ctx, url, body, &resp); err != nil {
		return nil, err
	}
	if resp.TxHash == "" {
		return nil, types.NewTransientProviderError(a.name, "submit response missing txHash", 0)
	}

	SubmissionsTotal.WithLabelValues(a.name, privacyLabel(req.Private)).Inc()

	return &types.SubmissionHandle{
		Provider:    a.name,
		TxRef:       resp.TxHash,
		Private:     req.Private,
		SubmittedAt: a.now(),
	}, nil
}

type zeroExStatusResponse struct {
	Status    string `json:"status"` // pending | confirmed | failed
	BuyAmount string `json:"buyAmount"`
	GasUsed   string `json:"gasUsed"`
	Reason    string `json:"reason"`
}

// TxStatus polls the status of a previously submitted transaction.
func (a *ZeroExAdapter) TxStatus(ctx context.Context, txRef string) (*types.TxStatus, error) {
	var resp zeroExStatusResponse
	if err := a.getJSON(ctx, a.baseURL+"/tx-relay/v1/status/"+txRef, &resp); err != nil {
		return nil, err
	}

	out, _ := strconv.ParseFloat(resp.BuyAmount, 64)
	gasUsed, _ := strconv.ParseUint(resp.GasUsed, 10, 64)

	return &types.TxStatus{
		State:         mapTxState(resp.Status),
		FinalOut:      out,
		GasUsed:       gasUsed,
		FailureReason: resp.Reason,
	}, nil
}

func mapTxState(s string) types.TxState {
	switch s {
	case "confirmed", "succeeded", "success":
		return types.TxConfirmed
	case "failed", "reverted":
		return types.TxFailed
	default:
		return types.TxPending
	}
}

func privacyLabel(private bool) string {
	if private {
		return "private"
	}
	return "public"
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
