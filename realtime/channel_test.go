package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{}

// newTestBackend starts a WebSocket server and hands each accepted scope
// connection to serve.
func newTestBackend(t *testing.T, serve func(scope string, conn *websocket.Conn)) *Channel {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "scopes" || parts[2] != publicSegment {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serve(parts[1], conn)
	}))
	t.Cleanup(server.Close)

	baseURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return NewChannel(baseURL, zerolog.Nop())
}

func waitForSnapshot(t *testing.T, updates <-chan []Message) []Message {
	t.Helper()
	select {
	case snapshot := <-updates:
		return snapshot
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	channel := newTestBackend(t, func(scope string, conn *websocket.Conn) {
		defer conn.Close()
		if scope != "scope-1" {
			t.Errorf("unexpected scope %s", scope)
		}
		conn.WriteJSON([]Message{{Text: "hi", AuthorID: "a", CreatedAt: 100}})
		conn.WriteJSON([]Message{
			{Text: "hi", AuthorID: "a", CreatedAt: 100},
			{Text: "yo", AuthorID: "b", CreatedAt: 200},
		})
	})

	updates := make(chan []Message, 4)
	sub, err := channel.Subscribe("scope-1", func(snapshot []Message) {
		updates <- snapshot
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	first := waitForSnapshot(t, updates)
	if len(first) != 1 || first[0].Text != "hi" {
		t.Errorf("unexpected first snapshot: %+v", first)
	}
	second := waitForSnapshot(t, updates)
	if len(second) != 2 || second[1].Text != "yo" {
		t.Errorf("unexpected second snapshot: %+v", second)
	}
}

func TestSubscribeSkipsMalformedFrames(t *testing.T) {
	channel := newTestBackend(t, func(scope string, conn *websocket.Conn) {
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		conn.WriteJSON([]Message{{Text: "good", AuthorID: "a", CreatedAt: 100}})
	})

	updates := make(chan []Message, 4)
	sub, err := channel.Subscribe("scope-1", func(snapshot []Message) {
		updates <- snapshot
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	snapshot := waitForSnapshot(t, updates)
	if len(snapshot) != 1 || snapshot[0].Text != "good" {
		t.Errorf("expected the frame after the malformed one, got %+v", snapshot)
	}
}

func TestSubscribeFailsWhenUnreachable(t *testing.T) {
	channel := NewChannel("ws://127.0.0.1:1", zerolog.Nop())
	_, err := channel.Subscribe("scope-1", func([]Message) {})
	if err == nil {
		t.Fatal("expected an error")
	}
	syncErr, ok := err.(*SyncError)
	if !ok {
		t.Fatalf("expected a *SyncError, got %T: %v", err, err)
	}
	if syncErr.Scope != "scope-1" {
		t.Errorf("expected scope in the error, got %q", syncErr.Scope)
	}
}

func TestPublishDeliversMessage(t *testing.T) {
	received := make(chan Message, 1)
	channel := newTestBackend(t, func(scope string, conn *websocket.Conn) {
		defer conn.Close()
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("failed to read published message: %v", err)
			return
		}
		received <- msg
	})
	defer channel.Close()

	err := channel.Publish("scope-1", Message{Text: "Merhaba", AuthorID: "u1", AuthorLabel: "Burak"})
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Text != "Merhaba" || msg.AuthorID != "u1" || msg.AuthorLabel != "Burak" {
			t.Errorf("unexpected published message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the published message")
	}
}

func TestPublishFailsWhenUnreachable(t *testing.T) {
	channel := NewChannel("ws://127.0.0.1:1", zerolog.Nop())
	err := channel.Publish("scope-1", Message{Text: "x"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*SyncError); !ok {
		t.Fatalf("expected a *SyncError, got %T: %v", err, err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hold := make(chan struct{})
	channel := newTestBackend(t, func(scope string, conn *websocket.Conn) {
		defer conn.Close()
		<-hold
	})
	defer close(hold)

	sub, err := channel.Subscribe("scope-1", func([]Message) {
		t.Error("no snapshot was expected")
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent
}
