// Package client talks to the remote feedback API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/feedbackdesk/internal/feedback"
	"github.com/kalambet/feedbackdesk/internal/session"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Client issues requests against a fixed base URL such as http://localhost:8080/api.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request, including reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client. The default HTTP timeout is 30s.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// ListFeedback returns every record. The API restricts this to admins, so a
// missing or rejected token yields ErrUnauthorized.
func (c *Client) ListFeedback(ctx context.Context, token string) ([]feedback.Record, error) {
	var out []feedback.Record
	if err := c.call(ctx, http.MethodGet, "/feedback", token, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []feedback.Record{}
	}
	return out, nil
}

// GetFeedback fetches a single record.
func (c *Client) GetFeedback(ctx context.Context, id int64, token string) (feedback.Record, error) {
	var out feedback.Record
	err := c.call(ctx, http.MethodGet, feedbackPath(id), token, nil, &out)
	return out, err
}

// CreateFeedback submits new feedback. No credential is sent.
func (c *Client) CreateFeedback(ctx context.Context, sub feedback.Submission) (feedback.Record, error) {
	var out feedback.Record
	err := c.call(ctx, http.MethodPost, "/feedback", "", sub, &out)
	return out, err
}

// UpdateFeedback replaces the editable fields of a record.
func (c *Client) UpdateFeedback(ctx context.Context, id int64, sub feedback.Submission, token string) (feedback.Record, error) {
	var out feedback.Record
	err := c.call(ctx, http.MethodPut, feedbackPath(id), token, sub, &out)
	return out, err
}

// DeleteFeedback removes a record. 200 and 204 are both success.
func (c *Client) DeleteFeedback(ctx context.Context, id int64, token string) error {
	return c.call(ctx, http.MethodDelete, feedbackPath(id), token, nil, nil)
}

// AverageRating returns the server-computed mean rating.
func (c *Client) AverageRating(ctx context.Context) (float64, error) {
	var avg float64
	err := c.call(ctx, http.MethodGet, "/feedback/average-rating", "", nil, &avg)
	return avg, err
}

func feedbackPath(id int64) string {
	return "/feedback/" + strconv.FormatInt(id, 10)
}

func (c *Client) call(ctx context.Context, method, path, token string, body, out any) error {
	resp, err := c.do(ctx, method, path, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	reqID := uuid.New().String()
	req.Header.Set("X-Request-Id", reqID)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", session.Header(token))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("feedback api request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	c.logger.Debug("feedback api request", "method", method, "path", path, "status", resp.StatusCode,
		"request_id", reqID, "elapsed", time.Since(start))
	return resp, nil
}

// errorBody covers the error shapes the API may send: a plain message,
// a list of field errors, or a nested {"error":{"message"}} envelope.
type errorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Field          string `json:"field"`
		DefaultMessage string `json:"defaultMessage"`
	} `json:"errors"`
	Error json.RawMessage `json:"error"`
}

func (b errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	if len(b.Errors) > 0 {
		msgs := make([]string, 0, len(b.Errors))
		for _, e := range b.Errors {
			if e.DefaultMessage != "" {
				msgs = append(msgs, e.DefaultMessage)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, ", ")
		}
	}
	if len(b.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(b.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if json.Unmarshal(b.Error, &s) == nil {
			return s
		}
	}
	return ""
}

func classify(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	msg := ""
	if json.Unmarshal(raw, &eb) == nil {
		msg = eb.text()
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return &StatusError{Status: resp.StatusCode, Message: msg}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		if msg == "" {
			msg = fmt.Sprintf("Error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return &ValidationError{Status: resp.StatusCode, Message: msg}
	default:
		return &ServerError{Status: resp.StatusCode, Message: msg}
	}
}
