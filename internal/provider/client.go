package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the broker's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, sendTimeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: sendTimeout},
	}
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider send: read response: %w", err)
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("provider send: decode response: %w", err)
	}

	if resp.StatusCode >= 300 || parsed.Error != nil {
		apiErr := &APIError{HTTPStatus: resp.StatusCode}
		if parsed.Error != nil {
			apiErr.Code = parsed.Error.Code
			apiErr.Message = parsed.Error.Message
		} else {
			apiErr.Message = string(raw)
		}
		return nil, apiErr
	}

	return &SendResult{ProviderMessageID: parsed.MessageID}, nil
}

type templateResponse struct {
	Status string `json:"status"`
}

// Revalidate asks the broker for the template's current status. CanUse means
// approved right now; Mismatch means the local cache disagreed and should be
// corrected.
func (c *Client) Revalidate(ctx context.Context, templateName, language, cachedStatus string) (*Revalidation, error) {
	url := fmt.Sprintf("%s/v1/templates/%s?language=%s", c.baseURL, templateName, language)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("template revalidate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &APIError{HTTPStatus: resp.StatusCode, Message: string(raw)}
	}

	var parsed templateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("template revalidate: decode response: %w", err)
	}

	return &Revalidation{
		Status:   parsed.Status,
		CanUse:   parsed.Status == "approved",
		Mismatch: parsed.Status != cachedStatus,
	}, nil
}

var _ Sender = (*Client)(nil)
var _ TemplateValidator = (*Client)(nil)
