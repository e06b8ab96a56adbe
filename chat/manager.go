package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"burakai/llm"
	"burakai/realtime"
)

// Completer issues a single-turn completion request. llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userText string, p llm.Params) (string, error)
}

// Store persists the full conversation set plus settings. db.DB satisfies it.
type Store interface {
	Load() ([]Conversation, *Settings, error)
	Save(conversations []Conversation, settings Settings) error
}

// Publisher writes a message to the shared remote scope. realtime.Channel
// satisfies it. Publishing is fire-and-forget: the authoritative copy arrives
// later through ApplyRemoteUpdate, not as a return value.
type Publisher interface {
	Publish(scopeID string, msg realtime.Message) error
}

// inflight tracks one pending completion so that a stale request cannot clear
// a newer one for the same conversation.
type inflight struct {
	cancel context.CancelFunc
}

// Manager owns the in-memory conversation state. All mutations go through it;
// the presentation layer only ever reads snapshots. State is guarded by one
// mutex which is never held across I/O.
type Manager struct {
	mu     sync.Mutex
	saveMu sync.Mutex

	logger    zerolog.Logger
	completer Completer
	store     Store
	publisher Publisher
	scopeID   string

	user     User
	settings Settings

	conversations map[string]*Conversation
	order         []string
	activeID      string
	scopeConvs    map[string]string
	inflights     map[string]*inflight
	seq           int64

	observers map[int]func(View)
	nextObs   int
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithUser sets the identity the manager operates under.
func WithUser(u User) Option {
	return func(m *Manager) { m.user = u }
}

// WithSettings sets the initial settings.
func WithSettings(s Settings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithStore attaches the local persistence store. Every committed mutation is
// flushed to it; flush errors are logged and state continues in memory.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithConversations seeds the manager with previously persisted conversations.
func WithConversations(convs []Conversation) Option {
	return func(m *Manager) {
		for i := range convs {
			c := convs[i]
			m.conversations[c.ID] = &c
			m.order = append(m.order, c.ID)
			for _, msg := range c.Messages {
				if msg.Seq >= m.seq {
					m.seq = msg.Seq + 1
				}
			}
		}
		if len(m.order) > 0 {
			m.activeID = m.order[0]
		}
	}
}

// WithPublisher engages multi-user mode: locally authored messages are
// published to scopeID and remote snapshots are merged via ApplyRemoteUpdate.
func WithPublisher(p Publisher, scopeID string) Option {
	return func(m *Manager) {
		m.publisher = p
		m.scopeID = scopeID
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a conversation manager. Construction never fails.
func NewManager(completer Completer, options ...Option) *Manager {
	m := &Manager{
		logger:        zerolog.Nop(),
		completer:     completer,
		settings:      DefaultSettings(),
		conversations: make(map[string]*Conversation),
		scopeConvs:    make(map[string]string),
		inflights:     make(map[string]*inflight),
		observers:     make(map[int]func(View)),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// User returns the identity the manager operates under.
func (m *Manager) User() User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// CreateConversation allocates a new thread, titles it from the first message
// text and marks it active. It never fails.
func (m *Manager) CreateConversation(firstMessageText string) string {
	m.mu.Lock()
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     deriveTitle(strings.TrimSpace(firstMessageText)),
		CreatedAt: time.Now(),
	}
	m.conversations[conv.ID] = conv
	m.order = append(m.order, conv.ID)
	m.cancelInflightLocked(m.activeID)
	m.activeID = conv.ID
	m.mu.Unlock()

	m.flush()
	m.notify()
	return conv.ID
}

// SetActive switches the active conversation. Navigating away from a
// conversation cancels its in-flight completion; the discarded result never
// mutates state. An empty id deactivates all conversations.
func (m *Manager) SetActive(id string) error {
	m.mu.Lock()
	if id != "" {
		if _, ok := m.conversations[id]; !ok {
			m.mu.Unlock()
			return ErrConversationNotFound
		}
	}
	if m.activeID != id {
		m.cancelInflightLocked(m.activeID)
	}
	m.activeID = id
	m.mu.Unlock()

	m.notify()
	return nil
}

// Active returns the active conversation id, or "" if none.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// SendMessage appends an optimistic user message to the conversation, invokes
// the completion backend once and appends the reply. Blank text is rejected,
// as is a send while another completion is in flight for the same
// conversation. A completion failure leaves the pending user message in place
// and is reported to the caller; confirmed history is never touched.
func (m *Manager) SendMessage(ctx context.Context, conversationID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	m.mu.Lock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		m.mu.Unlock()
		return ErrConversationNotFound
	}
	if _, busy := m.inflights[conversationID]; busy {
		m.mu.Unlock()
		return ErrCompletionInFlight
	}
	// Only the shared scope conversation publishes and awaits remote echoes;
	// every other thread stays local and confirms like single-user mode.
	synced := m.publisher != nil && m.scopeConvs[m.scopeID] == conversationID

	userMsg := m.newMessageLocked(RoleUser, text)
	conv.Messages = append(conv.Messages, userMsg)

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	fl := &inflight{cancel: cancel}
	m.inflights[conversationID] = fl

	systemPrompt := BuildSystemPrompt(m.settings, time.Now())
	params := llm.Params{
		Temperature: TemperatureFor(m.settings.Creativity),
		TopP:        0.9,
	}
	m.mu.Unlock()

	m.flush()
	if synced {
		m.publishMessage(conversationID, userMsg.ID, text, m.user.Label)
	}
	m.notify()

	reply, err := m.completer.Complete(cctx, systemPrompt, text, params)

	m.mu.Lock()
	if m.inflights[conversationID] == fl {
		delete(m.inflights, conversationID)
	}
	conv, ok = m.conversations[conversationID]
	if !ok || cctx.Err() != nil {
		// Cancelled or deleted mid-flight: discard the result.
		m.mu.Unlock()
		m.logger.Debug().Str("conversation_id", conversationID).Msg("completion result discarded")
		return cctx.Err()
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("completion failed")
		m.notify()
		return err
	}

	assistantMsg := m.newMessageLocked(RoleAssistant, reply)
	if !synced {
		// The backend's reply is the confirmation. In the scope conversation
		// both messages stay pending until the authoritative copies come back
		// through the remote snapshot.
		m.confirmMessageLocked(conv, userMsg.ID)
		assistantMsg.State = StateConfirmed
	}
	conv.Messages = append(conv.Messages, assistantMsg)
	m.mu.Unlock()

	m.flush()
	if synced {
		m.publishMessage(conversationID, assistantMsg.ID, reply, AssistantLabel)
	}
	m.notify()
	return nil
}

// CancelCompletion cancels the in-flight completion for a conversation, if
// any. The discarded result will not mutate the conversation.
func (m *Manager) CancelCompletion(conversationID string) {
	m.mu.Lock()
	m.cancelInflightLocked(conversationID)
	m.mu.Unlock()
}

// DeleteConversation removes a thread and flushes persistence. Irreversible.
// Any in-flight completion for the thread is cancelled.
func (m *Manager) DeleteConversation(id string) error {
	m.mu.Lock()
	if _, ok := m.conversations[id]; !ok {
		m.mu.Unlock()
		return ErrConversationNotFound
	}
	m.cancelInflightLocked(id)
	delete(m.conversations, id)
	for i, cid := range m.order {
		if cid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	for scope, cid := range m.scopeConvs {
		if cid == id {
			delete(m.scopeConvs, scope)
		}
	}
	if m.activeID == id {
		m.activeID = ""
	}
	m.mu.Unlock()

	m.flush()
	m.notify()
	return nil
}

// ClearHistory removes every conversation.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	for id := range m.conversations {
		m.cancelInflightLocked(id)
	}
	m.conversations = make(map[string]*Conversation)
	m.scopeConvs = make(map[string]string)
	m.order = nil
	m.activeID = ""
	m.mu.Unlock()

	m.flush()
	m.notify()
}

// ApplyRemoteUpdate merges a full remote snapshot for a scope. The
// remote-derived slice of the scope's conversation is replaced wholesale and
// re-merged against still-pending local messages. The update never fails:
// the previous known-good state is retained on anomalies.
func (m *Manager) ApplyRemoteUpdate(scopeID string, snapshot []realtime.Message) {
	m.mu.Lock()
	conv := m.scopeConversationLocked(scopeID)
	conv.Messages = mergeRemote(conv.Messages, snapshot, m.user.ID)
	m.mu.Unlock()

	m.flush()
	m.notify()
}

// UpdateSettings merges the patch into the current settings and persists the
// result.
func (m *Manager) UpdateSettings(patch SettingsPatch) Settings {
	m.mu.Lock()
	m.settings = patch.merge(m.settings)
	updated := m.settings
	m.mu.Unlock()

	m.flush()
	m.notify()
	return updated
}

// newMessageLocked builds a pending message authored by the current user.
// Callers must hold m.mu.
func (m *Manager) newMessageLocked(role Role, content string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		AuthorID:  m.user.ID,
		CreatedAt: time.Now(),
		Seq:       m.seq,
		State:     StatePending,
	}
	m.seq++
	return msg
}

// confirmMessageLocked marks a pending message confirmed. The transition is
// monotonic: confirmed and failed messages are left alone.
func (m *Manager) confirmMessageLocked(conv *Conversation, messageID string) {
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID && conv.Messages[i].State == StatePending {
			conv.Messages[i].State = StateConfirmed
			return
		}
	}
}

// failMessage marks a pending message failed.
func (m *Manager) failMessage(conversationID, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[conversationID]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID && conv.Messages[i].State == StatePending {
			conv.Messages[i].State = StateFailed
			return
		}
	}
}

// scopeConversationLocked returns the conversation representing a remote
// scope, creating it on first use. Callers must hold m.mu.
func (m *Manager) scopeConversationLocked(scopeID string) *Conversation {
	if id, ok := m.scopeConvs[scopeID]; ok {
		if conv, ok := m.conversations[id]; ok {
			return conv
		}
	}
	conv := &Conversation{
		ID:        uuid.NewString(),
		Title:     deriveTitle(scopeID),
		CreatedAt: time.Now(),
	}
	m.conversations[conv.ID] = conv
	m.order = append(m.order, conv.ID)
	m.scopeConvs[scopeID] = conv.ID
	if m.activeID == "" {
		m.activeID = conv.ID
	}
	return conv
}

// cancelInflightLocked cancels the pending completion for a conversation.
// Callers must hold m.mu.
func (m *Manager) cancelInflightLocked(conversationID string) {
	if fl, ok := m.inflights[conversationID]; ok {
		fl.cancel()
		delete(m.inflights, conversationID)
	}
}

// publishMessage sends a message authored in the scope conversation to the
// shared remote scope. A publish failure marks the message failed and is
// logged; it does not abort the surrounding operation.
func (m *Manager) publishMessage(conversationID, messageID, text, authorLabel string) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.Publish(m.scopeID, realtime.Message{
		Text:        text,
		AuthorID:    m.user.ID,
		AuthorLabel: authorLabel,
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("scope", m.scopeID).Msg("failed to publish message")
		m.failMessage(conversationID, messageID)
	}
}

// flush persists the current state. Persistence errors are non-fatal: they
// are logged and the manager keeps operating in memory. saveMu covers both
// the snapshot capture and the write so that concurrent flushes cannot
// persist an older snapshot over a newer one.
func (m *Manager) flush() {
	if m.store == nil {
		return
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	convs := m.conversationsLocked()
	settings := m.settings
	m.mu.Unlock()

	if err := m.store.Save(convs, settings); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist state, continuing in memory")
	}
}

// conversationsLocked returns deep copies of all conversations in creation
// order. Callers must hold m.mu.
func (m *Manager) conversationsLocked() []Conversation {
	out := make([]Conversation, 0, len(m.order))
	for _, id := range m.order {
		if conv, ok := m.conversations[id]; ok {
			out = append(out, conv.clone())
		}
	}
	return out
}
