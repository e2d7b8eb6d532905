package summary

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", "test-model", 100)
}

func completionJSON(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestSummarizeSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.MaxTokens != 100 {
			t.Errorf("max_tokens = %d", req.MaxTokens)
		}
		w.Write([]byte(completionJSON("Коллега просит доступ к отчетам за квартал")))
	})

	got, err := c.Summarize(context.Background(), "тема", "Имя (example.com)", "текст", 400)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "Коллега просит доступ к отчетам за квартал" {
		t.Errorf("Summarize = %q", got)
	}
}

func TestSummarizeCollapsesToSingleLine(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionJSON("## TL;DR: **строка один**\nстрока два\nAction: сделать что-то")))
	})

	got, err := c.Summarize(context.Background(), "s", "f", "b", 400)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if strings.Contains(got, "\n") {
		t.Errorf("synopsis is multi-line: %q", got)
	}
	if got != "строка один строка два" {
		t.Errorf("Summarize = %q", got)
	}
}

func TestSummarizeEnforcesCharBudget(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionJSON(strings.Repeat("а", 500))))
	})

	got, err := c.Summarize(context.Background(), "s", "f", "b", 50)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if n := len([]rune(got)); n > 50 {
		t.Errorf("synopsis is %d runes; budget 50", n)
	}
}

func TestSummarizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"empty content", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(completionJSON("   ")))
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}},
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		}},
		{"malformed json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":`))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, tc.handler)
			if _, err := c.Summarize(context.Background(), "s", "f", "b", 400); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestSanitizePlainText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"обычная строка", "обычная строка"},
		{"**жирный** и __курсив__", "жирный и курсив"},
		{"# Заголовок\nтекст", "Заголовок текст"},
		{"TL;DR: суть письма", "суть письма"},
		{"суть\nAction: игнорируется", "суть"},
		{"много    пробелов\t тут", "много пробелов тут"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := SanitizePlainText(tc.in); got != tc.want {
			t.Errorf("SanitizePlainText(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
