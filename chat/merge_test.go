package chat

import (
	"testing"
	"time"

	"burakai/realtime"
)

func TestMergeRemoteOrdersByTimestamp(t *testing.T) {
	// Snapshot arrives out of order: the later message first.
	snapshot := []realtime.Message{
		{Text: "hi", AuthorID: "a", AuthorLabel: "A", CreatedAt: 100},
		{Text: "yo", AuthorID: "b", AuthorLabel: "B", CreatedAt: 50},
	}

	merged := mergeRemote(nil, snapshot, "me")

	if len(merged) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(merged))
	}
	if merged[0].Content != "yo" || merged[1].Content != "hi" {
		t.Errorf("expected [yo hi], got [%s %s]", merged[0].Content, merged[1].Content)
	}
}

func TestMergeRemoteZeroTimestampSortsLast(t *testing.T) {
	snapshot := []realtime.Message{
		{Text: "unordered", AuthorID: "a", CreatedAt: 0},
		{Text: "ordered", AuthorID: "a", CreatedAt: 100},
	}

	merged := mergeRemote(nil, snapshot, "me")

	if len(merged) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(merged))
	}
	if merged[0].Content != "ordered" || merged[1].Content != "unordered" {
		t.Errorf("expected the timestamped message first, got [%s %s]", merged[0].Content, merged[1].Content)
	}
	if !merged[1].CreatedAt.IsZero() {
		t.Errorf("expected zero timestamp to be preserved, got %v", merged[1].CreatedAt)
	}
}

func TestMergeRemoteIdempotent(t *testing.T) {
	snapshot := []realtime.Message{
		{Text: "hello", AuthorID: "a", AuthorLabel: "A", CreatedAt: 100},
		{Text: "hello", AuthorID: "a", AuthorLabel: "A", CreatedAt: 200},
		{Text: "reply", AuthorID: "a", AuthorLabel: AssistantLabel, CreatedAt: 300},
	}

	once := mergeRemote(nil, snapshot, "me")
	twice := mergeRemote(once, snapshot, "me")

	if len(once) != len(twice) {
		t.Fatalf("merge is not idempotent: %d messages then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("message %d differs after reapplying the same snapshot:\n  %+v\n  %+v", i, once[i], twice[i])
		}
	}
}

func TestMergeRemoteConfirmsPending(t *testing.T) {
	pending := Message{
		ID:        "local-1",
		Role:      RoleUser,
		Content:   "hello",
		AuthorID:  "me",
		CreatedAt: time.UnixMilli(90),
		State:     StatePending,
	}
	snapshot := []realtime.Message{
		{Text: "hello", AuthorID: "me", CreatedAt: 100},
	}

	merged := mergeRemote([]Message{pending}, snapshot, "me")

	if len(merged) != 1 {
		t.Fatalf("expected the pending message to be consumed, got %d messages", len(merged))
	}
	if merged[0].State != StateConfirmed {
		t.Errorf("expected confirmed state, got %s", merged[0].State)
	}
}

func TestMergeRemotePendingConsumedAtMostOnce(t *testing.T) {
	// Two identical pending sends, one remote copy so far: exactly one of
	// them must stay pending.
	pending := []Message{
		{ID: "local-1", Role: RoleUser, Content: "hello", AuthorID: "me", CreatedAt: time.UnixMilli(90), Seq: 0, State: StatePending},
		{ID: "local-2", Role: RoleUser, Content: "hello", AuthorID: "me", CreatedAt: time.UnixMilli(95), Seq: 1, State: StatePending},
	}
	snapshot := []realtime.Message{
		{Text: "hello", AuthorID: "me", CreatedAt: 100},
	}

	merged := mergeRemote(pending, snapshot, "me")

	if len(merged) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(merged))
	}
	var pendingCount, confirmedCount int
	for _, m := range merged {
		switch m.State {
		case StatePending:
			pendingCount++
		case StateConfirmed:
			confirmedCount++
		}
	}
	if pendingCount != 1 || confirmedCount != 1 {
		t.Errorf("expected exactly one pending and one confirmed, got %d pending, %d confirmed", pendingCount, confirmedCount)
	}
}

func TestMergeRemoteIgnoresEarlierRemoteCopy(t *testing.T) {
	// A remote message older than the pending send is someone else's earlier
	// identical text, not the echo of ours.
	pending := Message{
		ID:        "local-1",
		Role:      RoleUser,
		Content:   "hello",
		AuthorID:  "me",
		CreatedAt: time.UnixMilli(200),
		State:     StatePending,
	}
	snapshot := []realtime.Message{
		{Text: "hello", AuthorID: "me", CreatedAt: 100},
	}

	merged := mergeRemote([]Message{pending}, snapshot, "me")

	if len(merged) != 2 {
		t.Fatalf("expected the pending message to be retained, got %d messages", len(merged))
	}
	if merged[1].ID != "local-1" || merged[1].State != StatePending {
		t.Errorf("expected the local send to remain pending, got %+v", merged[1])
	}
}

func TestMergeRemoteDropsOthersPending(t *testing.T) {
	// Only pending messages authored by the session user survive a wholesale
	// replacement; everything else is rebuilt from the snapshot.
	current := []Message{
		{ID: "mine", Content: "a", AuthorID: "me", CreatedAt: time.UnixMilli(10), State: StatePending},
		{ID: "theirs", Content: "b", AuthorID: "other", CreatedAt: time.UnixMilli(20), State: StatePending},
		{ID: "old", Content: "c", AuthorID: "me", CreatedAt: time.UnixMilli(30), State: StateConfirmed},
	}

	merged := mergeRemote(current, nil, "me")

	if len(merged) != 1 {
		t.Fatalf("expected only the user's pending message, got %d messages", len(merged))
	}
	if merged[0].ID != "mine" {
		t.Errorf("expected message %q, got %q", "mine", merged[0].ID)
	}
}

func TestWireToMessageAssistantRole(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  Role
	}{
		{"assistant label", AssistantLabel, RoleAssistant},
		{"user label", "Burak Pro Kullanıcısı", RoleUser},
		{"empty label", "", RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := wireToMessage(realtime.Message{Text: "x", AuthorLabel: tt.label}, 0)
			if msg.Role != tt.want {
				t.Errorf("expected role %s, got %s", tt.want, msg.Role)
			}
			if msg.State != StateConfirmed {
				t.Errorf("expected remote messages to be confirmed, got %s", msg.State)
			}
		})
	}
}
