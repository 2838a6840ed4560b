package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"storefront/internal/models"

	"github.com/rs/zerolog/log"
)

const paystackBaseURL = "https://api.paystack.co"

// PaystackConfig represents Paystack payment service configuration
type PaystackConfig struct {
	SecretKey   string
	CallbackURL string
	// MaxAttempts bounds retries on transient failures.
	MaxAttempts int
	// BaseTimeout is the first attempt's timeout. Attempt n waits n×BaseTimeout.
	BaseTimeout time.Duration
	// BaseURL overrides the API host, used by tests.
	BaseURL string
}

// PaystackService handles payments via Paystack API
type PaystackService struct {
	config  PaystackConfig
	client  *http.Client
	baseURL string
}

// NewPaystackService creates a new Paystack payment service
func NewPaystackService(config PaystackConfig) *PaystackService {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BaseTimeout <= 0 {
		config.BaseTimeout = 10 * time.Second
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = paystackBaseURL
	}

	return &PaystackService{
		config:  config,
		client:  &http.Client{},
		baseURL: baseURL,
	}
}

// TransactionRequest represents a payment initialization request
type TransactionRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`    // Amount in kobo (NGN) or cents
	Currency    string            `json:"currency"`  // NGN, GHS, KES, ZAR
	Reference   string            `json:"reference"` // Unique transaction reference
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TransactionResponse represents the response from transaction initialization
type TransactionResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    TransactionData `json:"data"`
}

// TransactionData contains the transaction initialization data
type TransactionData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// TransactionVerification represents transaction verification response
type TransactionVerification struct {
	Status  bool               `json:"status"`
	Message string             `json:"message"`
	Data    TransactionDetails `json:"data"`
}

// TransactionDetails contains detailed transaction information
type TransactionDetails struct {
	ID              int64        `json:"id"`
	Status          string       `json:"status"`
	Reference       string       `json:"reference"`
	Amount          int64        `json:"amount"`
	Currency        string       `json:"currency"`
	GatewayResponse string       `json:"gateway_response"`
	PaidAt          string       `json:"paid_at"`
	Channel         string       `json:"channel"`
	Customer        CustomerData `json:"customer"`
}

// Succeeded reports whether Paystack settled the charge.
func (d *TransactionDetails) Succeeded() bool {
	return d.Status == "success"
}

// Failed reports whether the charge was declined or reversed. Statuses such
// as "abandoned", "ongoing" or "processing" may still end in a payment.
func (d *TransactionDetails) Failed() bool {
	return d.Status == "failed" || d.Status == "reversed"
}

// Abandoned reports whether the customer opened checkout without paying yet.
func (d *TransactionDetails) Abandoned() bool {
	return d.Status == "abandoned"
}

// CustomerData contains customer information
type CustomerData struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
}

// PaystackError represents an error response from Paystack
type PaystackError struct {
	StatusCode int    `json:"-"`
	Status     bool   `json:"status"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
}

func (e *PaystackError) Error() string {
	return fmt.Sprintf("paystack error (status %d): %s", e.StatusCode, e.Message)
}

// retryable reports whether the error is worth another attempt.
func (e *PaystackError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// InitializeTransaction initializes a payment transaction with Paystack
func (s *PaystackService) InitializeTransaction(ctx context.Context, req *TransactionRequest) (*TransactionData, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = s.config.CallbackURL
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction request: %w", err)
	}

	var resp TransactionResponse
	if err := s.do(ctx, http.MethodPost, "/transaction/initialize", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("transaction initialization failed: %s", resp.Message)
	}

	log.Info().
		Str("reference", req.Reference).
		Int64("amount", req.Amount).
		Str("currency", req.Currency).
		Msg("paystack transaction initialized")
	return &resp.Data, nil
}

// VerifyTransaction verifies a transaction with Paystack
func (s *PaystackService) VerifyTransaction(ctx context.Context, reference string) (*TransactionDetails, error) {
	var resp TransactionVerification
	if err := s.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("transaction verification failed: %s", resp.Message)
	}
	return &resp.Data, nil
}

// VerifyWebhookSignature verifies Paystack webhook signature
func (s *PaystackService) VerifyWebhookSignature(payload []byte, signature string) bool {
	if signature == "" || s.config.SecretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.config.SecretKey))
	mac.Write(payload)
	expectedSignature := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// do sends one API call with bounded retries. Each attempt gets a longer
// timeout than the previous one. When every attempt fails on a transient
// error the result wraps models.ErrGatewayUnavailable.
func (s *PaystackService) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		err := s.attempt(ctx, method, path, body, out, time.Duration(attempt)*s.config.BaseTimeout)
		if err == nil {
			return nil
		}

		var apiErr *PaystackError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, ctx.Err())
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("path", path).
			Int("attempt", attempt).
			Int("max_attempts", s.config.MaxAttempts).
			Msg("paystack request failed")
	}
	return fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, lastErr)
}

func (s *PaystackService) attempt(ctx context.Context, method, path string, body []byte, out interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+s.config.SecretKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return handleAPIError(resp.StatusCode, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &PaystackError{StatusCode: http.StatusBadGateway, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return nil
}

// handleAPIError handles Paystack API errors
func handleAPIError(statusCode int, body []byte) error {
	apiErr := &PaystackError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}
