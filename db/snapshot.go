package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"burakai/chat"
)

// settingsKey is the settings-table row holding the serialized settings.
const settingsKey = "settings"

// Save persists the full conversation set and settings in one transaction, so
// a concurrent Load never observes a partially written snapshot.
func (db *DB) Save(conversations []chat.Conversation, settings chat.Settings) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM conversations"); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}

	for pos, conv := range conversations {
		_, err := tx.Exec(
			"INSERT INTO conversations (id, title, position, created_at) VALUES (?, ?, ?, ?)",
			conv.ID, conv.Title, pos, conv.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert conversation: %w", err)
		}

		for _, msg := range conv.Messages {
			var createdAt interface{}
			if !msg.CreatedAt.IsZero() {
				createdAt = msg.CreatedAt
			}
			_, err := tx.Exec(
				"INSERT INTO messages (id, conversation_id, role, content, author_id, seq, state, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
				msg.ID, conv.ID, string(msg.Role), msg.Content, msg.AuthorID, msg.Seq, string(msg.State), createdAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert message: %w", err)
			}
		}
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = tx.Exec(
		"INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		settingsKey, string(settingsJSON), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load reads the persisted conversation set and settings. A fresh database
// yields an empty conversation list and nil settings.
func (db *DB) Load() ([]chat.Conversation, *chat.Settings, error) {
	rows, err := db.conn.Query("SELECT id, title, created_at FROM conversations ORDER BY position")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []chat.Conversation
	for rows.Next() {
		var conv chat.Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read conversations: %w", err)
	}

	for i := range conversations {
		messages, err := db.loadMessages(conversations[i].ID)
		if err != nil {
			return nil, nil, err
		}
		conversations[i].Messages = messages
	}

	settings, err := db.loadSettings()
	if err != nil {
		return nil, nil, err
	}

	return conversations, settings, nil
}

// loadMessages reads a conversation's messages in insertion order.
func (db *DB) loadMessages(conversationID string) ([]chat.Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, role, content, author_id, seq, state, created_at FROM messages WHERE conversation_id = ? ORDER BY seq",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var role, state string
		var createdAt sql.NullTime
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.AuthorID, &msg.Seq, &state, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = chat.Role(role)
		msg.State = chat.DeliveryState(state)
		if createdAt.Valid {
			msg.CreatedAt = createdAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	return messages, nil
}

// loadSettings reads the persisted settings, or nil if none were saved yet.
func (db *DB) loadSettings() (*chat.Settings, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", settingsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	var settings chat.Settings
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &settings, nil
}
