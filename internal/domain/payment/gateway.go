// internal/domain/payment/gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/your-org/storefront-backend/internal/config"
	"github.com/your-org/storefront-backend/internal/pkg/apperr"
)

const (
	defaultBaseURL = "https://api.razorpay.com/v1"
	defaultTimeout = 10 * time.Second
)

// GatewayConfig holds everything the Razorpay client needs. It is built
// once from the loaded configuration and passed in.
type GatewayConfig struct {
	KeyID              string
	KeySecret          string
	WebhookSecret      string
	Currency           string
	BaseURL            string
	Timeout            time.Duration
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

// GatewayConfigFrom maps the application config
func GatewayConfigFrom(cfg config.RazorpayConfig) GatewayConfig {
	return GatewayConfig{
		KeyID:              cfg.KeyID,
		KeySecret:          cfg.KeySecret,
		WebhookSecret:      cfg.WebhookSecret,
		Currency:           cfg.Currency,
		BaseURL:            cfg.BaseURL,
		Timeout:            cfg.Timeout,
		BreakerMaxFailures: cfg.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.BreakerOpenTimeout,
	}
}

// GatewayOrder is a Razorpay order
type GatewayOrder struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	CreatedAt int64  `json:"created_at"`
}

// GatewayPayment is a Razorpay payment
type GatewayPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	Captured         bool   `json:"captured"`
	Email            string `json:"email"`
	Contact          string `json:"contact"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

// Gateway is what the reconciler needs from a payment provider
type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// statusError is a non-2xx gateway response
type statusError struct {
	Status      int
	Code        string
	Description string
}

func (e *statusError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("razorpay returned %d: %s", e.Status, e.Description)
	}
	return fmt.Sprintf("razorpay returned %d", e.Status)
}

// RazorpayClient talks to the Razorpay REST API. Every call runs under
// its own timeout and through a circuit breaker.
type RazorpayClient struct {
	cfg        GatewayConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        logrus.FieldLogger
}

// NewRazorpayClient creates a new Razorpay client
func NewRazorpayClient(cfg GatewayConfig, log logrus.FieldLogger) *RazorpayClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BreakerMaxFailures <= 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}

	maxFailures := uint32(cfg.BreakerMaxFailures)
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "razorpay",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// a rejected request says nothing about gateway health
		IsSuccessful: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return se.Status < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Payment gateway circuit breaker changed state")
		},
	})

	return &RazorpayClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		breaker:    breaker,
		log:        log,
	}
}

// CreateOrder creates a gateway order for amountMinor (paise)
func (c *RazorpayClient) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*GatewayOrder, error) {
	if currency == "" {
		currency = c.cfg.Currency
	}
	body, err := c.call(ctx, http.MethodPost, "/orders", createOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return nil, err
	}

	var out GatewayOrder
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperr.Upstream("unexpected payment gateway response", false, err)
	}

	c.log.WithFields(logrus.Fields{
		"gateway_order_id": out.ID,
		"amount":           out.Amount,
		"receipt":          receipt,
	}).Info("Gateway order created")
	return &out, nil
}

// FetchPayment retrieves a payment by id
func (c *RazorpayClient) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	if paymentID == "" {
		return nil, apperr.Validation("payment id is required", nil)
	}
	body, err := c.call(ctx, http.MethodGet, "/payments/"+paymentID, nil)
	if err != nil {
		return nil, err
	}

	var out GatewayPayment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperr.Upstream("unexpected payment gateway response", false, err)
	}
	return &out, nil
}

func (c *RazorpayClient) call(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, method, path, payload)
	})
	if err != nil {
		entry := c.log.WithError(err).WithFields(logrus.Fields{"method": method, "path": path})
		wrapped := classify(err)
		if apperr.IsRetryable(wrapped) {
			entry.Warn("Payment gateway call failed")
		} else {
			entry.Info("Payment gateway rejected request")
		}
		return nil, wrapped
	}
	return body, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request data: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		se := &statusError{Status: resp.StatusCode}
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil {
			se.Code = apiErr.Error.Code
			se.Description = apiErr.Error.Description
		}
		return nil, se
	}
	return data, nil
}

// classify turns transport failures into upstream errors. Client errors
// are final, everything else may succeed later.
func classify(err error) error {
	var se *statusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return apperr.Upstream("payment gateway temporarily unavailable", true, err)
	case errors.As(err, &se) && se.Status < http.StatusInternalServerError:
		msg := "payment gateway rejected the request"
		if se.Description != "" {
			msg = se.Description
		}
		return apperr.Upstream(msg, false, err)
	default:
		return apperr.Upstream("payment gateway unavailable", true, err)
	}
}
