// Package realtime adapts a WebSocket feed into the shared message channel:
// subscriptions deliver the entire ordered snapshot of a scope's messages on
// every change, and publishes are fire-and-forget.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"burakai/utils"
)

// publicSegment is the fixed collection segment under which shared messages
// are grouped for a scope.
const publicSegment = "public-messages"

// Message is the wire record for one shared message. CreatedAt is assigned by
// the server in Unix milliseconds; 0 means the message has not been ordered
// yet.
type Message struct {
	Text        string `json:"text"`
	AuthorID    string `json:"authorId"`
	AuthorLabel string `json:"authorLabel"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
}

// SyncError is returned when the remote channel cannot be reached or a
// publish is rejected.
type SyncError struct {
	Scope string
	Cause string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed for scope %q: %s", e.Scope, e.Cause)
}

// Channel connects to the realtime backend. One Channel can serve multiple
// subscriptions; each subscription runs its own feed connection.
type Channel struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	mu  sync.Mutex
	pub *websocket.Conn // lazy publish connection, guarded by mu
}

// NewChannel creates a channel client for the given ws:// or wss:// base URL.
func NewChannel(baseURL string, logger zerolog.Logger) *Channel {
	return &Channel{
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
	}
}

// scopeURL builds the endpoint for a scope: the deployment identifier plus
// the fixed public-messages segment.
func (c *Channel) scopeURL(scopeID string) string {
	return fmt.Sprintf("%s/scopes/%s/%s", c.baseURL, scopeID, publicSegment)
}

// Subscription is a live snapshot feed for one scope.
type Subscription struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

// Unsubscribe deterministically stops the feed and releases the connection.
// It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Subscribe opens a snapshot feed for scopeID. Every frame received from the
// backend is the entire current ordered message set for the scope; onUpdate
// is invoked with it. Malformed frames are logged and skipped so the caller
// retains its previous known-good snapshot.
func (c *Channel) Subscribe(scopeID string, onUpdate func([]Message)) (*Subscription, error) {
	conn, _, err := c.dialer.Dial(c.scopeURL(scopeID), nil)
	if err != nil {
		return nil, &SyncError{Scope: scopeID, Cause: fmt.Sprintf("failed to connect: %v", err)}
	}

	sub := &Subscription{
		conn: conn,
		done: make(chan struct{}),
	}

	utils.SafeGo(c.logger, "realtime subscription", func() {
		c.readLoop(scopeID, sub, onUpdate)
	})

	return sub, nil
}

// readLoop delivers snapshot frames until the connection closes.
func (c *Channel) readLoop(scopeID string, sub *Subscription, onUpdate func([]Message)) {
	for {
		var snapshot []Message
		if err := sub.conn.ReadJSON(&snapshot); err != nil {
			select {
			case <-sub.done:
				// Unsubscribed; expected close.
				return
			default:
			}

			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				// Malformed frame: keep the previous snapshot and read on.
				c.logger.Warn().Err(err).Str("scope", scopeID).Msg("discarding malformed snapshot frame")
				continue
			}

			c.logger.Warn().Err(err).Str("scope", scopeID).Msg("subscription closed")
			return
		}
		onUpdate(snapshot)
	}
}

// Publish writes one message to the scope. It is fire-and-forget: the
// authoritative copy, with its server timestamp, arrives later through the
// subscription feed. Callers must not assume synchronous confirmation.
func (c *Channel) Publish(scopeID string, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pub == nil {
		conn, _, err := c.dialer.Dial(c.scopeURL(scopeID), nil)
		if err != nil {
			return &SyncError{Scope: scopeID, Cause: fmt.Sprintf("failed to connect: %v", err)}
		}
		c.pub = conn
	}

	if err := c.pub.WriteJSON(msg); err != nil {
		// Drop the connection so the next publish redials.
		_ = c.pub.Close()
		c.pub = nil
		return &SyncError{Scope: scopeID, Cause: fmt.Sprintf("failed to publish: %v", err)}
	}
	return nil
}

// Close releases the publish connection, if open. Subscriptions are closed
// through their own Unsubscribe handles.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub != nil {
		err := c.pub.Close()
		c.pub = nil
		return err
	}
	return nil
}
