package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/dex-router/pkg/config"
	"github.com/mselser95/dex-router/pkg/types"
	"go.uber.org/zap"

	"github.com/goccy/go-json"
)

// OneInchAdapter integrates the 1inch swap API.
type OneInchAdapter struct {
	httpAdapter
}

// NewOneInch creates a 1inch adapter.
func NewOneInch(pc config.ProviderConfig, quoteValidity time.Duration, logger *zap.Logger) *OneInchAdapter {
	return &OneInchAdapter{httpAdapter: newHTTPAdapter(pc, quoteValidity, logger)}
}

type oneInchQuoteResponse struct {
	DstAmount   float64 `json:"dstAmount"`
	PriceImpact float64 `json:"priceImpact"` // percent
	Gas         uint64  `json:"gas"`
	Fee         float64 `json:"fee"` // dst token units
	ValueUSD    float64 `json:"valueUsd"`
}

// GetQuote fetches a priced swap quote from 1inch.
func (a *OneInchAdapter) GetQuote(ctx context.Context, req QuoteRequest) (*types.Quote, error) {
	if err := req.Validate(a.now()); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/swap/v6.0/quote?src=%s&dst=%s&amount=%f",
		a.baseURL, req.Pair.SellToken, req.Pair.BuyToken, req.Amount)

	var resp oneInchQuoteResponse
	if err := a.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.DstAmount <= 0 {
		return nil, types.NewPermanentProviderError(a.name, "quote returned zero output", 0)
	}

	raw, _ := json.Marshal(resp)
	now := a.now()

	QuotesTotal.WithLabelValues(a.name).Inc()

	return &types.Quote{
		ID:             uuid.NewString(),
		Provider:       a.name,
		Pair:           req.Pair,
		SellAmount:     req.Amount,
		BuyAmountEst:   resp.DstAmount,
		PriceImpactPct: resp.PriceImpact,
		FeeEquivalent:  resp.Fee,
		GasEstimate:    resp.Gas,
		NotionalUSD:    resp.ValueUSD,
		ValidUntil:     minTime(now.Add(a.quoteValidity), req.Deadline),
		FetchedAt:      now,
		Raw:            raw,
	}, nil
}

type oneInchSubmitResponse struct {
	TransactionHash string `json:"transactionHash"`
}

// Submit broadcasts a signed transaction through 1inch.
func (a *OneInchAdapter) Submit(ctx context.Context, req SubmitRequest) (*types.SubmissionHandle, error) {
	body := map[string]interface{}{
		"rawTx":    req.SignedTx.String(),
		"gasLimit": req.GasLimit,
	}

	url, err := a.submitURL(req.Private, "/tx-gateway/v1.1/broadcast")
	if err != nil {
		return nil, err
	}

	var resp oneInchSubmitResponse
	if err := a.postJSON(ctx, url, body, &resp); err != nil {
		return nil, err
	}
	if resp.TransactionHash == "" {
		return nil, types.NewTransientProviderError(a.name, "submit response missing transactionHash", 0)
	}

	SubmissionsTotal.WithLabelValues(a.name, privacyLabel(req.Private)).Inc()

	return &types.SubmissionHandle{
		Provider:    a.name,
		TxRef:       resp.TransactionHash,
		Private:     req.Private,
		SubmittedAt: a.now(),
	}, nil
}

type oneInchStatusResponse struct {
	Status    string  `json:"status"`
	DstAmount float64 `json:"dstAmount"`
	GasUsed   uint64  `json:"gasUsed"`
	Error     string  `json:"error"`
}

// TxStatus polls the status of a previously submitted transaction.
func (a *OneInchAdapter) TxStatus(ctx context.Context, txRef string) (*types.TxStatus, error) {
	var resp oneInchStatusResponse
	if err := a.getJSON(ctx, a.baseURL+"/tx-gateway/v1.1/status/"+txRef, &resp); err != nil {
		return nil, err
	}

	return &types.TxStatus{
		State:         mapTxState(resp.Status),
		FinalOut:      resp.DstAmount,
		GasUsed:       resp.GasUsed,
		FailureReason: resp.Error,
	}, nil
}
