package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrCommunication wraps every transport or API failure of the gateway.
var ErrCommunication = errors.New("gateway communication failed")

// APIError is a non-successful gateway response.
type APIError struct {
	StatusCode int
	Code       int
	Info       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway api error: status=%d code=%d info=%s", e.StatusCode, e.Code, e.Info)
}

func (e *APIError) Unwrap() error {
	return ErrCommunication
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL string        `envconfig:"GATEWAY_BASE_URL" default:"https://testapi.multisafepay.com/v1/json"`
	APIKey  string        `envconfig:"GATEWAY_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"30s"`
}

// Client talks to the gateway's JSON REST API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new gateway client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	ErrorCode int             `json:"error_code"`
	ErrorInfo string          `json:"error_info"`
}

// Create registers a new transaction and returns where to send the customer.
func (c *Client) Create(ctx context.Context, req *OrderRequest) (*CreatedOrder, error) {
	var created CreatedOrder
	if err := c.do(ctx, http.MethodPost, "/orders", req, &created); err != nil {
		return nil, fmt.Errorf("create order %s: %w", req.OrderID, err)
	}

	c.logger.Info("gateway order created",
		"order_number", req.OrderID,
		"gateway", req.Gateway,
		"amount", req.Amount,
	)

	return &created, nil
}

// Get fetches the current transaction snapshot for an order number.
func (c *Client) Get(ctx context.Context, orderNumber string) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderNumber), nil, &tx); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderNumber, err)
	}
	return &tx, nil
}

// Update pushes status or shipment metadata for an order number.
func (c *Client) Update(ctx context.Context, orderNumber string, req *UpdateRequest) error {
	if err := c.do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(orderNumber), req, nil); err != nil {
		return fmt.Errorf("update order %s: %w", orderNumber, err)
	}

	c.logger.Info("gateway order updated",
		"order_number", orderNumber,
		"status", req.Status,
	)

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("api_key", c.config.APIKey)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: http request: %w", ErrCommunication, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrCommunication, err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if httpResp.StatusCode >= 400 {
			return &APIError{StatusCode: httpResp.StatusCode, Info: string(respBody)}
		}
		return fmt.Errorf("%w: unmarshal response: %w", ErrCommunication, err)
	}

	if httpResp.StatusCode >= 400 || !env.Success {
		return &APIError{StatusCode: httpResp.StatusCode, Code: env.ErrorCode, Info: env.ErrorInfo}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: unmarshal data: %w", ErrCommunication, err)
	}

	return nil
}
