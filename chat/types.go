package chat

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DeliveryState tracks how far a message has made it.
// Transitions are monotonic: pending -> confirmed or pending -> failed.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

// User is the identity the manager operates under. It is immutable for the
// lifetime of the session.
type User struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Anonymous bool   `json:"anonymous"`
}

// Message is a single entry in a conversation.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	AuthorID  string        `json:"author_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Seq       int64         `json:"seq"`
	State     DeliveryState `json:"state"`
}

// Conversation is an ordered thread of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Settings holds the session-wide preferences. They are mutated only through
// Manager.UpdateSettings.
type Settings struct {
	Personality string `json:"personality"`
	Creativity  string `json:"creativity"`
	Language    string `json:"language"`
	ShowTime    bool   `json:"show_time"`
}

// DefaultSettings returns the out-of-the-box preferences.
func DefaultSettings() Settings {
	return Settings{
		Personality: PersonalityFunny,
		Creativity:  CreativityHigh,
		Language:    "tr",
		ShowTime:    true,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	Personality *string
	Creativity  *string
	Language    *string
	ShowTime    *bool
}

// merge applies the patch on top of s and returns the result.
func (p SettingsPatch) merge(s Settings) Settings {
	if p.Personality != nil {
		s.Personality = *p.Personality
	}
	if p.Creativity != nil {
		s.Creativity = *p.Creativity
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.ShowTime != nil {
		s.ShowTime = *p.ShowTime
	}
	return s
}

// maxTitleLen is how much of the first message becomes the conversation title.
const maxTitleLen = 30

// deriveTitle builds a conversation title from the first message text.
func deriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen])
	}
	return text
}

// clone returns a deep copy of the conversation.
func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}
