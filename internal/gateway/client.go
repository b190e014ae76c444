package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Message is one push request in the gateway wire format.
type Message struct {
	To        string         `json:"to"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	ChannelID string         `json:"channelId,omitempty"`
}

// Receipt is the gateway's per-item acknowledgment, returned in the same
// order as the request batch.
type Receipt struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

const ReceiptStatusOK = "ok"

func (r Receipt) OK() bool {
	return r.Status == ReceiptStatusOK
}

// GatewayError is a call-level failure: the gateway was unreachable, answered
// non-2xx, or returned a body the client could not interpret. The whole batch
// must be treated as one failed attempt.
type GatewayError struct {
	StatusCode int
	Reason     string
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("push gateway returned status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("push gateway call failed: %s", e.Reason)
}

// Client wraps the third-party push gateway's batch-send HTTP API. It is
// stateless and carries no retry logic; retry policy belongs to the queue
// processor.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type sendResponse struct {
	Data []Receipt `json:"data"`
}

// Send posts the batch as one JSON array and returns one receipt per input
// message, preserving order. The caller is responsible for keeping the batch
// within the gateway's documented maximum.
func (c *Client) Send(ctx context.Context, batch []Message) ([]Receipt, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &GatewayError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Reason: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Push gateway returned non-2xx",
			zap.Int("status", resp.StatusCode),
			zap.Int("batch_size", len(batch)),
		)
		return nil, &GatewayError{StatusCode: resp.StatusCode, Reason: string(respBody)}
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Reason: "malformed response body"}
	}

	return parsed.Data, nil
}
