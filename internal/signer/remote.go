package signer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// RemoteSigner is an HTTP client for the custody service's signing endpoint.
type RemoteSigner struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRemoteSigner creates a custody-service signer client.
func NewRemoteSigner(baseURL string, timeout time.Duration, logger *zap.Logger) (*RemoteSigner, error) {
	if baseURL == "" {
		return nil, errors.New("baseURL cannot be empty")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &RemoteSigner{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

type signRequest struct {
	UserID  string    `json:"user_id"`
	Payload TxPayload `json:"payload"`
}

// Sign sends the payload to the custody service and returns the signed
// transaction.
func (s *RemoteSigner) Sign(ctx context.Context, userID string, payload TxPayload) (*SignedTx, error) {
	body, err := json.Marshal(signRequest{UserID: userID, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	SigningDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		SigningErrorsTotal.Inc()
		return nil, fmt.Errorf("sign request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		SigningErrorsTotal.Inc()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("signer rejected request: status %d: %s", resp.StatusCode, string(raw))
	}

	var signed SignedTx
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		SigningErrorsTotal.Inc()
		return nil, fmt.Errorf("decode signed tx: %w", err)
	}

	if len(signed.Raw) == 0 {
		SigningErrorsTotal.Inc()
		return nil, errors.New("signer returned empty payload")
	}

	s.logger.Debug("transaction-signed",
		zap.String("user_id", userID),
		zap.String("hash", signed.Hash.Hex()))

	return &signed, nil
}
