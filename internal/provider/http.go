package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/dex-router/pkg/config"
	"github.com/mselser95/dex-router/pkg/types"
	"go.uber.org/zap"
)

// httpAdapter is the shared HTTP plumbing for the concrete adapters: request
// building, auth header, error classification into transient vs permanent.
type httpAdapter struct {
	name          string
	baseURL       string
	relayURL      string
	apiKey        string
	client        *http.Client
	logger        *zap.Logger
	quoteValidity time.Duration
	now           func() time.Time
}

func newHTTPAdapter(pc config.ProviderConfig, quoteValidity time.Duration, logger *zap.Logger) httpAdapter {
	return httpAdapter{
		name:          pc.Name,
		baseURL:       pc.BaseURL,
		relayURL:      pc.RelayURL,
		apiKey:        pc.APIKey,
		client:        &http.Client{}, // per-call timeouts come from ctx
		logger:        logger,
		quoteValidity: quoteValidity,
		now:           time.Now,
	}
}

func (a *httpAdapter) Name() string {
	return a.name
}

// getJSON performs a GET and decodes the response body into out.
func (a *httpAdapter) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	return a.do(req, out)
}

// postJSON performs a POST with a JSON body and decodes the response into out.
func (a *httpAdapter) postJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return a.do(req, out)
}

func (a *httpAdapter) do(req *http.Request, out interface{}) error {
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	RequestDurationSeconds.WithLabelValues(a.name).Observe(time.Since(start).Seconds())

	if err != nil {
		// Timeouts and transport failures are transient by definition.
		RequestErrorsTotal.WithLabelValues(a.name, "transient").Inc()
		return types.NewTransientProviderError(a.name, err.Error(), 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		RequestErrorsTotal.WithLabelValues(a.name, "transient").Inc()
		return types.NewTransientProviderError(a.name, fmt.Sprintf("read body: %v", err), resp.StatusCode)
	}

	if resp.StatusCode >= 500 {
		RequestErrorsTotal.WithLabelValues(a.name, "transient").Inc()
		return types.NewTransientProviderError(a.name, truncate(string(raw)), resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		RequestErrorsTotal.WithLabelValues(a.name, "permanent").Inc()
		return types.NewPermanentProviderError(a.name, truncate(string(raw)), resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		// A malformed body from a 2xx response is provider misbehavior, not
		// a rejection of our input.
		RequestErrorsTotal.WithLabelValues(a.name, "transient").Inc()
		return types.NewTransientProviderError(a.name, fmt.Sprintf("decode body: %v", err), resp.StatusCode)
	}

	return nil
}

// submitURL picks the public or private relay path. An MEV-protected route
// must never leak to the public mempool, so a missing relay fails the
// submission and lets the pipeline advance to a fallback provider.
func (a *httpAdapter) submitURL(private bool, path string) (string, error) {
	if !private {
		return a.baseURL + path, nil
	}
	if a.relayURL == "" {
		RequestErrorsTotal.WithLabelValues(a.name, "permanent").Inc()
		return "", types.NewPermanentProviderError(a.name, "private submission requested but no relay URL configured", 0)
	}
	return a.relayURL + path, nil
}

func truncate(s string) string {
	const max = 256
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
