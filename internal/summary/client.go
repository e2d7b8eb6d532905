// Package summary wraps the external one-line summarization call.
// The backend is any OpenAI-compatible chat completions endpoint; a
// failure here is always scoped to the single message being summarized.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const requestTimeout = 60 * time.Second

// Client issues one summarization request per message. It never
// retries; retry policy, if any, belongs to the transport layer.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

// New creates a summarization client for the given endpoint and model.
func New(baseURL, apiKey, model string, maxTokens int) *Client {
	if maxTokens <= 0 {
		maxTokens = 220
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize requests a one-line synopsis of a normalized message body,
// bounded to maxChars characters. Any transport error, non-2xx status,
// or empty response is returned as an error; the caller maps it to a
// failed item rather than aborting the batch.
func (c *Client) Summarize(
	ctx context.Context,
	subject, fromLabel, body string,
	maxChars int,
) (string, error) {
	prompt := buildPrompt(subject, fromLabel, body)

	reqBody, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encoding summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return "", fmt.Errorf("creating summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling summarization API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading summarize response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf(
			"summarization API returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)),
		)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decoding summarize response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("summarization API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("summarization API returned no choices")
	}

	text := SanitizePlainText(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("summarization API returned empty content")
	}

	return truncate(text, maxChars), nil
}

// buildPrompt asks for a single plain-text line, no markdown, no
// prefixes, and no restating of the subject.
func buildPrompt(subject, fromLabel, body string) string {
	var b strings.Builder
	b.WriteString("Сделай очень короткое содержание рабочего письма.\n\n")
	b.WriteString("КРИТИЧНО:\n")
	b.WriteString("- Верни только ОДНУ строку (без переносов), 6-20 слов, по смыслу.\n")
	b.WriteString("- Никаких префиксов: не пиши \"TL;DR:\", \"Action:\" и т.п.\n")
	b.WriteString("- Не используй markdown (** * # _ `).\n")
	b.WriteString("- Не пересказывай тему письма (Subject) буквально.\n")
	b.WriteString("- Не выдумывай факты.\n\n")
	b.WriteString("Данные:\n")
	b.WriteString("From: " + fromLabel + "\n")
	b.WriteString("Subject: " + subject + "\n\n")
	b.WriteString("Текст письма:\n")
	b.WriteString(body)
	return b.String()
}

// SanitizePlainText strips markdown remnants and leftover prefixes from
// model output and collapses it to a single line.
func SanitizePlainText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.ReplaceAll(s, "```", "")

	var lines []string
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		ln = strings.TrimSpace(strings.TrimLeft(ln, "#"))
		ln = strings.TrimPrefix(ln, "* ")
		if trimmed, ok := cutPrefixFold(ln, "TL;DR:"); ok {
			ln = trimmed
		}
		if _, ok := cutPrefixFold(ln, "Action:"); ok {
			continue
		}
		if ln != "" {
			lines = append(lines, ln)
		}
	}

	return strings.Join(strings.Fields(strings.Join(lines, " ")), " ")
}

// cutPrefixFold is a case-insensitive strings.CutPrefix.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return strings.TrimSpace(s[len(prefix):]), true
	}
	return s, false
}

// truncate cuts s to at most maxChars runes.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxChars]))
}
