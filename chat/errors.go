package chat

import "errors"

var (
	// ErrEmptyMessage is returned when a send is attempted with blank text.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrCompletionInFlight is returned when a conversation already has a
	// completion request pending. The second call is rejected, not queued.
	ErrCompletionInFlight = errors.New("a completion is already in flight for this conversation")

	// ErrConversationNotFound is returned when the conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")
)
