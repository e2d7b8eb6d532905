package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avolkov/maildigest/tests/testutil"
)

func TestSendChunksInOrder(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken123/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload struct {
			ChatID int64  `json:"chat_id"`
			Text   string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if payload.ChatID != 42 {
			t.Errorf("chat_id = %d; want 42", payload.ChatID)
		}
		got = append(got, payload.Text)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, "token123")
	chunks := []string{"часть 1", "часть 2", "часть 3"}
	if err := c.SendChunks(context.Background(), 42, chunks); err != nil {
		t.Fatalf("SendChunks: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("sent %d messages; want 3", len(got))
	}
	for i, want := range chunks {
		if got[i] != want {
			t.Errorf("message %d = %q; want %q", i, got[i], want)
		}
	}
}

func TestSendChunksStopsOnFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.Write([]byte(`{"ok":false,"description":"Too Many Requests"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, "token123")
	err := c.SendChunks(context.Background(), 42, []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if calls != 2 {
		t.Errorf("made %d calls; want 2 (stop at first failure)", calls)
	}
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Offset int64 `json:"offset"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		if payload.Offset != 7 {
			t.Errorf("offset = %d; want 7", payload.Offset)
		}
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":7,"message":{"chat":{"id":42},"text":"/status"}},
			{"update_id":8,"message":{"chat":{"id":42},"text":"/pause"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, "token123")
	updates, err := c.GetUpdates(context.Background(), 7, 0)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates; want 2", len(updates))
	}
	if updates[1].Message.Text != "/pause" {
		t.Errorf("second update text = %q", updates[1].Message.Text)
	}
}

func TestCallBoundsResponseRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Padding pushes the closing brace past the read cap, so a
		// misbehaving server cannot make the client buffer it all.
		w.Write([]byte(`{"ok":true,"description":"`))
		pad := strings.Repeat("x", 1<<20)
		w.Write([]byte(pad))
		w.Write([]byte(`","result":{}}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL(srv.URL, "token123")
	if err := c.SendMessage(context.Background(), 42, "hi"); err == nil {
		t.Fatal("expected decode error for oversized response")
	}
}

func TestBotCommands(t *testing.T) {
	var replies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		replies = append(replies, payload.Text)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	s := testutil.NewTestStore(t)
	trigger := make(chan struct{}, 1)
	bot := NewBot(NewClientWithBaseURL(srv.URL, "t"), 42, "INBOX/ONLINE", s, trigger, nil)

	ctx := context.Background()

	bot.handleUpdate(ctx, update(42, "/pause"))
	paused, err := s.GetPaused(ctx)
	if err != nil {
		t.Fatalf("GetPaused: %v", err)
	}
	if !paused {
		t.Error("/pause did not set the paused flag")
	}

	bot.handleUpdate(ctx, update(42, "/resume"))
	paused, _ = s.GetPaused(ctx)
	if paused {
		t.Error("/resume did not clear the paused flag")
	}

	bot.handleUpdate(ctx, update(42, "/digest_now"))
	select {
	case <-trigger:
	default:
		t.Error("/digest_now did not fire the trigger")
	}

	bot.handleUpdate(ctx, update(42, "/status"))

	if len(replies) != 4 {
		t.Fatalf("got %d replies; want 4: %q", len(replies), replies)
	}
}

func TestBotDiscardsBacklogOnStartup(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bott/sendMessage" {
			t.Error("stale command produced a reply")
			w.Write([]byte(`{"ok":true,"result":{}}`))
			return
		}
		calls++
		if calls == 1 {
			// Commands sent while the daemon was down.
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":4,"message":{"chat":{"id":42},"text":"/digest_now"}},
				{"update_id":5,"message":{"chat":{"id":42},"text":"/pause"}}
			]}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	defer srv.Close()

	s := testutil.NewTestStore(t)
	trigger := make(chan struct{}, 1)
	bot := NewBot(NewClientWithBaseURL(srv.URL, "t"), 42, "INBOX/ONLINE", s, trigger, nil)

	offset, err := bot.drainBacklog(context.Background())
	if err != nil {
		t.Fatalf("drainBacklog: %v", err)
	}
	if offset != 6 {
		t.Errorf("offset = %d; want 6", offset)
	}

	select {
	case <-trigger:
		t.Error("stale /digest_now fired the trigger")
	default:
	}
	paused, _ := s.GetPaused(context.Background())
	if paused {
		t.Error("stale /pause changed the paused flag")
	}
}

func TestBotIgnoresForeignChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("bot must not reply to a foreign chat")
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	s := testutil.NewTestStore(t)
	trigger := make(chan struct{}, 1)
	bot := NewBot(NewClientWithBaseURL(srv.URL, "t"), 42, "INBOX/ONLINE", s, trigger, nil)

	bot.handleUpdate(context.Background(), update(999, "/pause"))

	paused, _ := s.GetPaused(context.Background())
	if paused {
		t.Error("foreign chat changed the paused flag")
	}
	select {
	case <-trigger:
		t.Error("foreign chat fired the trigger")
	default:
	}
}

func TestBotStripsUsernameSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	s := testutil.NewTestStore(t)
	bot := NewBot(NewClientWithBaseURL(srv.URL, "t"), 42, "INBOX/ONLINE", s, make(chan struct{}, 1), nil)

	bot.handleUpdate(context.Background(), update(42, "/pause@digestbot"))

	paused, _ := s.GetPaused(context.Background())
	if !paused {
		t.Error("suffixed /pause command was not recognized")
	}
}

func update(chatID int64, text string) Update {
	u := Update{UpdateID: 1}
	u.Message = &IncomingMessage{Text: text}
	u.Message.Chat.ID = chatID
	return u
}
