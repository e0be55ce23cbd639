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

// ParaswapAdapter integrates the Paraswap API. Paraswap nests its pricing
// under a priceRoute object.
type ParaswapAdapter struct {
	httpAdapter
}

// NewParaswap creates a Paraswap adapter.
func NewParaswap(pc config.ProviderConfig, quoteValidity time.Duration, logger *zap.Logger) *ParaswapAdapter {
	return &ParaswapAdapter{httpAdapter: newHTTPAdapter(pc, quoteValidity, logger)}
}

type paraswapPriceRoute struct {
	DestAmount    float64 `json:"destAmount"`
	ImpactPercent float64 `json:"impactPercent"`
	GasCost       uint64  `json:"gasCost"`
	PartnerFee    float64 `json:"partnerFee"`
	SrcUSD        float64 `json:"srcUSD"`
}

type paraswapQuoteResponse struct {
	PriceRoute paraswapPriceRoute `json:"priceRoute"`
}

// GetQuote fetches a priced swap quote from Paraswap.
func (a *ParaswapAdapter) GetQuote(ctx context.Context, req QuoteRequest) (*types.Quote, error) {
	if err := req.Validate(a.now()); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/prices?srcToken=%s&destToken=%s&amount=%f&side=SELL",
		a.baseURL, req.Pair.SellToken, req.Pair.BuyToken, req.Amount)

	var resp paraswapQuoteResponse
	if err := a.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.PriceRoute.DestAmount <= 0 {
		return nil, types.NewPermanentProviderError(a.name, "price route returned zero output", 0)
	}

	raw, _ := json.Marshal(resp)
	now := a.now()

	QuotesTotal.WithLabelValues(a.name).Inc()

	return &types.Quote{
		ID:             uuid.NewString(),
		Provider:       a.name,
		Pair:           req.Pair,
		SellAmount:     req.Amount,
		BuyAmountEst:   resp.PriceRoute.DestAmount,
		PriceImpactPct: resp.PriceRoute.ImpactPercent,
		FeeEquivalent:  resp.PriceRoute.PartnerFee,
		GasEstimate:    resp.PriceRoute.GasCost,
		NotionalUSD:    resp.PriceRoute.SrcUSD,
		ValidUntil:     minTime(now.Add(a.quoteValidity), req.Deadline),
		FetchedAt:      now,
		Raw:            raw,
	}, nil
}

type paraswapSubmitResponse struct {
	Hash string `json:"hash"`
}

// Submit broadcasts a signed transaction through Paraswap.
func (a *ParaswapAdapter) Submit(ctx context.Context, req SubmitRequest) (*types.SubmissionHandle, error) {
	body := map[string]interface{}{
		"signedTransaction": req.SignedTx.String(),
		"gas":               req.GasLimit,
	}

	url, err := a.submitURL(req.Private, "/transactions/submit")
	if err != nil {
		return nil, err
	}

	var resp paraswapSubmitResponse
	if err := a.postJSON(ctx, url, body, &resp); err != nil {
		return nil, err
	}
	if resp.Hash == "" {
		return nil, types.NewTransientProviderError(a.name, "submit response missing hash", 0)
	}

	SubmissionsTotal.WithLabelValues(a.name, privacyLabel(req.Private)).Inc()

	return &types.SubmissionHandle{
		Provider:    a.name,
		TxRef:       resp.Hash,
		Private:     req.Private,
		SubmittedAt: a.now(),
	}, nil
}

type paraswapStatusResponse struct {
	State      string  `json:"state"`
	DestAmount float64 `json:"destAmount"`
	GasUsed    uint64  `json:"gasUsed"`
	Revert     string  `json:"revertReason"`
}

// TxStatus polls the status of a previously submitted transaction.
func (a *ParaswapAdapter) TxStatus(ctx context.Context, txRef string) (*types.TxStatus, error) {
	var resp paraswapStatusResponse
	if err := a.getJSON(ctx, a.baseURL+"/transactions/status/"+txRef, &resp); err != nil {
		return nil, err
	}

	return &types.TxStatus{
		State:         mapTxState(resp.State),
		FinalOut:      resp.DestAmount,
		GasUsed:       resp.GasUsed,
		FailureReason: resp.Revert,
	}, nil
}
