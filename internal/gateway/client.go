package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/sannidata/settlement-engine/pkg/config"
	"github.com/sannidata/settlement-engine/pkg/logger"
)

// Client talks to the external payment gateway. Verify is read-only on the
// gateway side and safe to call any number of times for the same reference.
type Client interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// PaystackClient implements Client against the Paystack transaction API.
type PaystackClient struct {
	baseURL     string
	secret      string
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
}

func NewPaystackClient(cfg config.Config) *PaystackClient {
	return &PaystackClient{
		baseURL:     cfg.GatewayBaseURL,
		secret:      cfg.GatewaySecret,
		httpClient:  &http.Client{Timeout: cfg.GatewayTimeout},
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
}

func (c *PaystackClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if !referencePattern.MatchString(req.Reference) {
		return nil, ErrInvalidReference
	}

	payload := map[string]interface{}{
		"email":        req.Email,
		"amount":       req.Amount,
		"reference":    req.Reference,
		"currency":     req.Currency,
		"callback_url": req.CallbackURL,
	}

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("initialize request failed: %w", ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Error("Gateway initialize rejected", logger.Fields{
			"status_code":       resp.StatusCode,
			logger.ReferenceKey: req.Reference,
		})
		return nil, fmt.Errorf("initialize returned status %d: %w", resp.StatusCode, ErrGatewayUnavailable)
	}

	var parsed struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse initialize response: %w", err)
	}

	if !parsed.Status {
		return nil, fmt.Errorf("gateway refused initialization: %s", parsed.Message)
	}

	return &InitializeResult{
		Reference:   parsed.Data.Reference,
		RedirectURL: parsed.Data.AuthorizationURL,
		AccessCode:  parsed.Data.AccessCode,
	}, nil
}

// Verify asks the gateway for the authoritative status of a reference.
// Transient failures (connection errors, timeouts, 5xx) are retried with
// exponential backoff; a 404 means the gateway has never seen the reference
// and is reported as StatusUnknown without retrying.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	if !referencePattern.MatchString(reference) {
		return nil, ErrInvalidReference
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		result, retryable, err := c.verifyOnce(ctx, reference)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		logger.Warn("Gateway verify attempt failed", logger.Fields{
			logger.ReferenceKey: reference,
			"attempt":           attempt + 1,
			"error":             err.Error(),
		})
	}

	return nil, fmt.Errorf("verify exhausted %d attempts: %v: %w", c.maxAttempts, lastErr, ErrGatewayUnavailable)
}

func (c *PaystackClient) verifyOnce(ctx context.Context, reference string) (*VerifyResult, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// the gateway has no record of the reference; not retryable here,
		// the coordinator decides whether to re-check later
		return &VerifyResult{Status: StatusUnknown}, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("verify returned status %d: %w", resp.StatusCode, ErrGatewayUnavailable)
	}

	var parsed struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			ID        int64  `json:"id"`
			Status    string `json:"status"`
			Amount    int64  `json:"amount"`
			Currency  string `json:"currency"`
			Reference string `json:"reference"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("failed to parse verify response: %w", err)
	}

	if !parsed.Status {
		return &VerifyResult{Status: StatusUnknown, RawStatus: parsed.Message}, false, nil
	}

	result := &VerifyResult{
		Status:    normalizeStatus(parsed.Data.Status),
		Amount:    parsed.Data.Amount,
		Currency:  parsed.Data.Currency,
		RawStatus: parsed.Data.Status,
	}
	if parsed.Data.ID != 0 {
		result.GatewayTxID = strconv.FormatInt(parsed.Data.ID, 10)
	}
	return result, false, nil
}

func (c *PaystackClient) wait(ctx context.Context, attempt int) error {
	delay := c.baseDelay << (attempt - 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func normalizeStatus(raw string) Status {
	switch raw {
	case "success":
		return StatusSuccess
	case "failed":
		return StatusFailed
	case "abandoned":
		return StatusAbandoned
	case "pending", "ongoing", "processing", "queued", "send_otp":
		return StatusPending
	default:
		return StatusUnknown
	}
}
