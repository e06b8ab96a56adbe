package chat

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"burakai/realtime"
)

// AssistantLabel is the author label attached to published assistant replies.
// Remote messages carrying it are rendered with the assistant role.
const AssistantLabel = "BurakAI"

// sortMessages orders messages ascending by creation timestamp. Messages
// without a timestamp are not yet ordered by the server and sort last. Ties
// are broken by the insertion sequence assigned at creation.
func sortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		switch {
		case a.CreatedAt.IsZero() && b.CreatedAt.IsZero():
			return a.Seq < b.Seq
		case a.CreatedAt.IsZero():
			return false
		case b.CreatedAt.IsZero():
			return true
		case a.CreatedAt.Equal(b.CreatedAt):
			return a.Seq < b.Seq
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
}

// wireToMessage converts a remote snapshot entry into a confirmed message.
// The id is derived from the entry's content and position so that applying the
// same snapshot twice produces identical state.
func wireToMessage(m realtime.Message, idx int) Message {
	role := RoleUser
	if m.AuthorLabel == AssistantLabel {
		role = RoleAssistant
	}

	var createdAt time.Time
	if m.CreatedAt > 0 {
		createdAt = time.UnixMilli(m.CreatedAt)
	}

	key := fmt.Sprintf("%d|%d|%s|%s", idx, m.CreatedAt, m.AuthorID, m.Text)
	return Message{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String(),
		Role:      role,
		Content:   m.Text,
		AuthorID:  m.AuthorID,
		CreatedAt: createdAt,
		Seq:       int64(idx),
		State:     StateConfirmed,
	}
}

// mergeRemote replaces the remote-derived slice of a conversation with the
// incoming snapshot and reconciles it against locally pending messages
// authored by userID. A pending message is consumed (confirmed by the remote
// copy) at most once: by the first remote message with the same author, the
// same text, and a timestamp no earlier than the pending message's local
// creation time. Unmatched pending messages remain present.
func mergeRemote(current []Message, snapshot []realtime.Message, userID string) []Message {
	var pending []Message
	for _, m := range current {
		if m.State == StatePending && m.AuthorID == userID {
			pending = append(pending, m)
		}
	}

	remote := make([]Message, 0, len(snapshot))
	for i, rm := range snapshot {
		remote = append(remote, wireToMessage(rm, i))
	}
	sortMessages(remote)

	// Reconcile in timestamp order so the earliest remote copy consumes the
	// earliest matching pending message.
	consumed := make([]bool, len(pending))
	for _, rm := range remote {
		for i, pm := range pending {
			if consumed[i] {
				continue
			}
			if pm.AuthorID != rm.AuthorID || pm.Content != rm.Content {
				continue
			}
			if !rm.CreatedAt.IsZero() && rm.CreatedAt.Before(pm.CreatedAt) {
				continue
			}
			consumed[i] = true
			break
		}
	}

	merged := remote
	for i, pm := range pending {
		if !consumed[i] {
			merged = append(merged, pm)
		}
	}
	sortMessages(merged)
	return merged
}
