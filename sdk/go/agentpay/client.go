package agentpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AgentPay Chain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// PaymentRequest represents the payload required to execute a payment.
type PaymentRequest struct {
	Resource    string         `json:"resource"`
	Amount      int64          `json:"amount,omitempty"`
	Network     string         `json:"network,omitempty"`
	AutoApprove bool           `json:"auto_approve,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// PaymentResult reports the outcome of a payment attempt. Success=false with
// a reason indicates a policy or gate rejection rather than a failure.
type PaymentResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	TxRef   string `json:"tx_ref,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	Network string `json:"network,omitempty"`
	Scheme  string `json:"scheme,omitempty"`
}

// PaymentRecord is one settled payment from the history endpoint.
type PaymentRecord struct {
	Resource  string `json:"resource"`
	Network   string `json:"network"`
	Asset     string `json:"asset"`
	PayTo     string `json:"pay_to"`
	Amount    int64  `json:"amount"`
	TxRef     string `json:"tx_ref"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// TradeRequest represents the payload required to buy a token.
type TradeRequest struct {
	Token    string  `json:"token"`
	Amount   int64   `json:"amount"`
	Network  string  `json:"network,omitempty"`
	Slippage float64 `json:"slippage"`
}

// TradeResult reports the outcome of a trade attempt.
type TradeResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	TxRef   string `json:"tx_ref,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	Network string `json:"network,omitempty"`
}

// ScheduleRequest represents the payload required to schedule a payment.
type ScheduleRequest struct {
	Resource    string         `json:"resource"`
	Amount      int64          `json:"amount"`
	Network     string         `json:"network,omitempty"`
	ExecuteAt   int64          `json:"execute_at,omitempty"`
	DelaySec    int64          `json:"delay_sec,omitempty"`
	Recurring   bool           `json:"recurring,omitempty"`
	IntervalSec int64          `json:"interval_sec,omitempty"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
	Condition   map[string]any `json:"condition,omitempty"`
}

// ScheduleSummary is the identifier handed back after scheduling.
type ScheduleSummary struct {
	ID string `json:"id"`
}

// ScheduledPayment is the detailed view of one scheduled payment.
type ScheduledPayment struct {
	ID          string `json:"id"`
	Resource    string `json:"resource"`
	Amount      int64  `json:"amount"`
	Network     string `json:"network,omitempty"`
	ExecuteAt   int64  `json:"execute_at"`
	Recurring   bool   `json:"recurring,omitempty"`
	IntervalSec int64  `json:"interval_sec,omitempty"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	TxRef       string `json:"tx_ref,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ScheduleStats aggregates scheduled payments by status.
type ScheduleStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// CommandOutcome is the result of dispatching a natural-language command.
type CommandOutcome struct {
	Intent     string         `json:"intent"`
	Success    bool           `json:"success"`
	Reason     string         `json:"reason,omitempty"`
	Payment    *PaymentResult `json:"payment,omitempty"`
	Trade      *TradeResult   `json:"trade,omitempty"`
	ScheduleID string         `json:"schedule_id,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("agentpay api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentPay Chain API. When httpClient
// is nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// ExecutePayment runs a pay-to-access flow against a protected resource.
func (c *Client) ExecutePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	var result PaymentResult
	if err := c.post(ctx, "/api/v1/payments", req, &result); err != nil {
		return PaymentResult{}, err
	}
	return result, nil
}

// ListPayments fetches the most recent settled payments.
func (c *Client) ListPayments(ctx context.Context, limit int) ([]PaymentRecord, error) {
	endpoint := "/api/v1/payments"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var records []PaymentRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// BuyToken runs a gated token purchase.
func (c *Client) BuyToken(ctx context.Context, req TradeRequest) (TradeResult, error) {
	var result TradeResult
	if err := c.post(ctx, "/api/v1/trades", req, &result); err != nil {
		return TradeResult{}, err
	}
	return result, nil
}

// SchedulePayment registers a payment for later execution.
func (c *Client) SchedulePayment(ctx context.Context, req ScheduleRequest) (ScheduleSummary, error) {
	var summary ScheduleSummary
	if err := c.post(ctx, "/api/v1/schedules", req, &summary); err != nil {
		return ScheduleSummary{}, err
	}
	return summary, nil
}

// GetSchedule fetches one scheduled payment by identifier.
func (c *Client) GetSchedule(ctx context.Context, id string) (ScheduledPayment, error) {
	endpoint := fmt.Sprintf("/api/v1/schedules?id=%s", url.QueryEscape(id))
	var payment ScheduledPayment
	if err := c.get(ctx, endpoint, &payment); err != nil {
		return ScheduledPayment{}, err
	}
	return payment, nil
}

// ListSchedules fetches all scheduled payments.
func (c *Client) ListSchedules(ctx context.Context) ([]ScheduledPayment, error) {
	var payments []ScheduledPayment
	if err := c.get(ctx, "/api/v1/schedules", &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// CancelSchedule cancels a pending scheduled payment. Cancelling an already
// terminal or unknown schedule is a no-op on the server side.
func (c *Client) CancelSchedule(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("/api/v1/schedules?id=%s", url.QueryEscape(id))
	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// GetScheduleStats fetches aggregate schedule counts.
func (c *Client) GetScheduleStats(ctx context.Context) (ScheduleStats, error) {
	var stats ScheduleStats
	if err := c.get(ctx, "/api/v1/schedules/stats", &stats); err != nil {
		return ScheduleStats{}, err
	}
	return stats, nil
}

// SendCommand dispatches a natural-language command.
func (c *Client) SendCommand(ctx context.Context, text string) (CommandOutcome, error) {
	var outcome CommandOutcome
	payload := struct {
		Text string `json:"text"`
	}{Text: text}
	if err := c.post(ctx, "/api/v1/commands", payload, &outcome); err != nil {
		return CommandOutcome{}, err
	}
	return outcome, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(data)),
		}
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
