// Package wallet talks to the wallet service that owns user coin and life balances.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/domain"
	"dingleup-reward-service/internal/retry"
)

// Client credits rewards through POST {baseURL}/v1/credits. Every attempt of
// a credit carries the same Idempotency-Key header.
type Client struct {
	baseURL string
	http    *http.Client
	policy  retry.Policy
	logger  zerolog.Logger
}

// NewClient builds a wallet client. A zero timeout falls back to 5s.
func NewClient(baseURL string, timeout time.Duration, policy retry.Policy, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		policy:  policy,
		logger:  logger,
	}
}

// StatusError is a non-2xx answer from the wallet service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("wallet responded %d: %s", e.Code, e.Body)
}

func (c *Client) Credit(ctx context.Context, req app.CreditRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode credit: %w", err)
	}

	attempt := 0
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempt++
		err := c.post(ctx, req.IdempotencyKey, payload)
		if err == nil {
			return nil
		}
		c.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("idempotency_key", req.IdempotencyKey).
			Msg("wallet credit attempt failed")
		return err
	})
}

func (c *Client) post(ctx context.Context, key string, payload []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/credits", bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	// 409 means the key was already applied
	if resp.StatusCode/100 == 2 || resp.StatusCode == http.StatusConflict {
		return nil
	}
	statusErr := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if retry.RetryableStatus(resp.StatusCode) {
		return statusErr
	}
	return retry.Permanent(fmt.Errorf("%w: %w", domain.ErrCreditRejected, statusErr))
}
