package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coinward/internal/config"
	"coinward/internal/logger"
)

const maxRetries = 2

// Client is the HTTP oracle. Transient failures (429, 5xx) are retried with
// Retry-After support; everything else surfaces to the caller, whose circuit
// breaker decides what to do next.
type Client struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

var _ Oracle = (*Client)(nil)

func NewClient(cfg config.OracleConfig) *Client {
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiKey:   cfg.APIKey,
		httpc:    &http.Client{Timeout: cfg.Timeout()},
	}
}

func (c *Client) Propose(ctx context.Context, snap MarketSnapshot) (Proposal, error) {
	raw, err := c.post(ctx, "/v1/propose", snap)
	if err != nil {
		return Proposal{}, err
	}
	prop, err := parseProposal(snap.Symbol, raw)
	if err != nil {
		return Proposal{}, err
	}
	prop.Raw = raw
	return prop, nil
}

func (c *Client) AssessRisk(ctx context.Context, view PositionView) (RiskAssessment, error) {
	raw, err := c.post(ctx, "/v1/assess", view)
	if err != nil {
		return RiskAssessment{}, err
	}
	assessment, err := parseRiskAssessment(view.Symbol, raw)
	if err != nil {
		return RiskAssessment{}, err
	}
	assessment.Raw = raw
	return assessment, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("oracle: endpoint not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("oracle: encode request: %w", err)
	}
	url := c.endpoint + path

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("oracle: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return "", fmt.Errorf("oracle: %s: %w", path, err)
		}
		if resp.StatusCode/100 == 2 {
			b, rerr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			if rerr != nil {
				return "", fmt.Errorf("oracle: read response: %w", rerr)
			}
			return string(b), nil
		}
		resp.Body.Close()
		lastErr = fmt.Errorf("oracle: %s returned %s", path, resp.Status)

		if !retryable(resp.StatusCode) || attempt == maxRetries {
			break
		}
		wait := retryWait(resp.Header.Get("Retry-After"), attempt)
		logger.Warnf("oracle: %s got %s, retrying in %s", path, resp.Status, wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryWait(retryAfter string, attempt int) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(attempt+1) * 2 * time.Second
}
