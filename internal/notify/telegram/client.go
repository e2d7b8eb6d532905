// Package telegram delivers digest chunks and receives operator
// commands over the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client is a minimal Bot API client covering the two methods the
// daemon needs: sendMessage and getUpdates.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a Telegram Bot API client.
func NewClient(token string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   token,
		client: &http.Client{
			// getUpdates long-polls; the timeout must exceed the
			// poll window passed in the request.
			Timeout: 90 * time.Second,
		},
	}
}

// NewClientWithBaseURL creates a client against a non-standard API
// endpoint, for tests.
func NewClientWithBaseURL(baseURL, token string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

// Update is one element of a getUpdates response.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

// IncomingMessage is the part of a Telegram message the bot inspects.
type IncomingMessage struct {
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// SendMessage sends one text message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	_, err := c.call(ctx, "sendMessage", payload)
	return err
}

// SendChunks sends the chunks as consecutive messages, in order. It
// stops at the first delivery failure so the remainder can be retried
// as a whole.
func (c *Client) SendChunks(ctx context.Context, chatID int64, chunks []string) error {
	for i, chunk := range chunks {
		if err := c.SendMessage(ctx, chatID, chunk); err != nil {
			return fmt.Errorf("sending chunk %d of %d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// GetUpdates long-polls for incoming updates after offset. A zero
// timeoutSec makes the call return immediately.
func (c *Client) GetUpdates(
	ctx context.Context,
	offset int64,
	timeoutSec int,
) ([]Update, error) {
	payload := map[string]any{
		"offset":  offset,
		"timeout": timeoutSec,
	}
	result, err := c.call(ctx, "getUpdates", payload)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(result, &updates); err != nil {
		return nil, fmt.Errorf("decoding updates: %w", err)
	}
	return updates, nil
}

func (c *Client) call(
	ctx context.Context,
	method string,
	payload map[string]any,
) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding %s response (status %d): %w",
			method, resp.StatusCode, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%s failed: %s", method, parsed.Description)
	}

	return parsed.Result, nil
}
