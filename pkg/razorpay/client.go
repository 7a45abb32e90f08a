package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/semanticpdf/semanticpdf-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.razorpay.com/v1"
	requestBodyReadLimit int64 = 2048
)

var errCredentialsRequired = errors.New("razorpay key id and secret are required")

// Subscription statuses reported by the gateway.
const (
	GatewayStatusCreated   = "created"
	GatewayStatusActive    = "active"
	GatewayStatusCancelled = "cancelled"
	GatewayStatusCompleted = "completed"
	GatewayStatusExpired   = "expired"
)

// Client wraps the Razorpay subscription APIs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	keyID      string
	keySecret  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds the Razorpay client given API credentials.
func NewClient(keyID, keySecret string, opts ...Option) (*Client, error) {
	id := strings.TrimSpace(keyID)
	secret := strings.TrimSpace(keySecret)
	if id == "" || secret == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		keyID:      id,
		keySecret:  secret,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// APIError is the structured error body returned by the gateway for non-2xx responses.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay: status %d code %s: %s", e.StatusCode, e.Code, e.Description)
}

// Subscription mirrors the gateway's subscription entity. Epoch fields are
// seconds since Unix epoch; zero values mean the gateway omitted them.
type Subscription struct {
	ID             string `json:"id"`
	PlanID         string `json:"plan_id"`
	CustomerID     string `json:"customer_id"`
	Status         string `json:"status"`
	CurrentStart   *int64 `json:"current_start"`
	CurrentEnd     *int64 `json:"current_end"`
	EndedAt        *int64 `json:"ended_at"`
	ChargeAt       *int64 `json:"charge_at"`
	TotalCount     int    `json:"total_count"`
	PaidCount      int    `json:"paid_count"`
	RemainingCount int    `json:"remaining_count"`
	ShortURL       string `json:"short_url"`
}

// CurrentEndTime converts the current_end epoch into a UTC timestamp.
func (s *Subscription) CurrentEndTime() *time.Time {
	return epochToTime(s.CurrentEnd)
}

// EndedAtTime converts the ended_at epoch into a UTC timestamp.
func (s *Subscription) EndedAtTime() *time.Time {
	return epochToTime(s.EndedAt)
}

func epochToTime(epoch *int64) *time.Time {
	if epoch == nil || *epoch <= 0 {
		return nil
	}
	t := time.Unix(*epoch, 0).UTC()
	return &t
}

// CreateSubscriptionRequest is the payload for subscription creation.
type CreateSubscriptionRequest struct {
	PlanID         string `json:"plan_id"`
	TotalCount     int    `json:"total_count"`
	Quantity       int    `json:"quantity"`
	CustomerNotify int    `json:"customer_notify"`
}

// CreateSubscription registers a new subscription against the configured plan.
func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "razorpay client not configured")
	}
	if strings.TrimSpace(req.PlanID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	if req.TotalCount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total count must be positive")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal create subscription request")
	}

	return c.doSubscription(ctx, http.MethodPost, c.buildURL("subscriptions"), payload, "create subscription")
}

// FetchSubscription returns the gateway's current view of the subscription.
func (c *Client) FetchSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "razorpay client not configured")
	}
	trimmed := strings.TrimSpace(subscriptionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	endpoint := fmt.Sprintf("%s/subscriptions/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trimmed))
	return c.doSubscription(ctx, http.MethodGet, endpoint, nil, "fetch subscription")
}

// CancelSubscription cancels the subscription, optionally at the end of the
// current billing cycle.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string, cancelAtCycleEnd bool) (*Subscription, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "razorpay client not configured")
	}
	trimmed := strings.TrimSpace(subscriptionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	body := struct {
		CancelAtCycleEnd int `json:"cancel_at_cycle_end"`
	}{}
	if cancelAtCycleEnd {
		body.CancelAtCycleEnd = 1
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal cancel subscription request")
	}

	endpoint := fmt.Sprintf("%s/subscriptions/%s/cancel", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trimmed))
	return c.doSubscription(ctx, http.MethodPost, endpoint, payload, "cancel subscription")
}

func (c *Client) doSubscription(ctx context.Context, method, endpoint string, payload []byte, action string) (*Subscription, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("build %s request", action))
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s request", action))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	var sub Subscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", action))
	}
	return &sub, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))

	var body struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Description != "" {
		apiErr.Code = body.Error.Code
		apiErr.Description = body.Error.Description
	} else {
		apiErr.Description = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
