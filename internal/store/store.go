// Package store is the sqlite persistence layer for the bridge.
//
// It owns the append-only message log with its dual cursors (ingestion and
// agent), and reads the dispatcher-owned pending_deliveries and
// conversations tables. Message timestamps are fixed-width ISO-8601 UTC
// strings so that lexicographic order equals time order; cursor comparisons
// depend on this.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// TimestampLayout is the fixed-width ISO-8601 UTC layout for message
// timestamps. Full nanosecond precision, zero-padded.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp renders t in the canonical message-timestamp form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Migrations are the DDL statements applied on every open. All idempotent.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS wa_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_jid TEXT NOT NULL,
		sender TEXT,
		text TEXT,
		timestamp TEXT NOT NULL,
		is_from_me INTEGER DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS wa_chats (
		jid TEXT PRIMARY KEY,
		name TEXT,
		last_timestamp TEXT,
		last_agent_timestamp TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS wa_config (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS pending_deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel TEXT NOT NULL,
		conversation TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		name TEXT PRIMARY KEY,
		session_id TEXT,
		cwd TEXT,
		created_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

// Message is one row of the message log as seen by the dispatcher.
type Message struct {
	Sender    string
	Timestamp string
	Text      string
}

// Turn is one line of a conversation's dispatch history.
type Turn struct {
	Role    string
	Content string
}

// Delivery is a pending agent-initiated outbound message.
type Delivery struct {
	ID           int64
	Channel      string
	Conversation string
	Message      string
}

// Store wraps a single sqlite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path, enables WAL
// journaling and applies the migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path not provided")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	for _, ddl := range Migrations {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migration: %w", err)
		}
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// AppendMessage appends one message to the log.
func (s *Store) AppendMessage(chatJID, sender, text, timestamp string, isFromMe bool) error {
	fromMe := 0
	if isFromMe {
		fromMe = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO wa_messages (chat_jid, sender, text, timestamp, is_from_me)
		 VALUES (?, ?, ?, ?, ?)`,
		chatJID, sender, text, timestamp, fromMe)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// UpdateChatLastTimestamp advances the per-chat ingestion cursor.
func (s *Store) UpdateChatLastTimestamp(chatJID, timestamp string) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_chats (jid, last_timestamp) VALUES (?, ?)
		 ON CONFLICT(jid) DO UPDATE SET last_timestamp = excluded.last_timestamp`,
		chatJID, timestamp)
	if err != nil {
		return fmt.Errorf("update chat timestamp: %w", err)
	}
	return nil
}

// UpdateGlobalCursor records the highest timestamp ever ingested.
func (s *Store) UpdateGlobalCursor(timestamp string) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_config (key, value) VALUES ('last_timestamp', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		timestamp)
	if err != nil {
		return fmt.Errorf("update global cursor: %w", err)
	}
	return nil
}

// UpdateAgentCursor advances the per-chat agent cursor. Callers advance it
// only after a full agent pass, so a crash mid-dispatch replays the batch.
func (s *Store) UpdateAgentCursor(chatJID, timestamp string) error {
	_, err := s.db.Exec(
		`INSERT INTO wa_chats (jid, last_agent_timestamp) VALUES (?, ?)
		 ON CONFLICT(jid) DO UPDATE SET last_agent_timestamp = excluded.last_agent_timestamp`,
		chatJID, timestamp)
	if err != nil {
		return fmt.Errorf("update agent cursor: %w", err)
	}
	return nil
}

// ChatCursors returns (last_timestamp, last_agent_timestamp) for a chat.
// Missing rows and NULL columns read as "".
func (s *Store) ChatCursors(chatJID string) (last, agent string, err error) {
	var lastNS, agentNS sql.NullString
	err = s.db.QueryRow(
		`SELECT last_timestamp, last_agent_timestamp FROM wa_chats WHERE jid = ?`,
		chatJID).Scan(&lastNS, &agentNS)
	if err == sql.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("read chat cursors: %w", err)
	}
	return lastNS.String, agentNS.String, nil
}

// MessagesSinceAgentCursor returns the chat's messages newer than its
// agent cursor, ordered by timestamp ascending.
func (s *Store) MessagesSinceAgentCursor(chatJID string) ([]Message, error) {
	_, since, err := s.ChatCursors(chatJID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT sender, timestamp, text FROM wa_messages
		 WHERE chat_jid = ? AND timestamp > ?
		 ORDER BY timestamp`,
		chatJID, since)
	if err != nil {
		return nil, fmt.Errorf("read new messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var sender, text sql.NullString
		if err := rows.Scan(&sender, &m.Timestamp, &text); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = sender.String
		m.Text = text.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// PendingDeliveries returns pending rows for a channel, FIFO by id.
func (s *Store) PendingDeliveries(channel string) ([]Delivery, error) {
	rows, err := s.db.Query(
		`SELECT id, channel, conversation, message FROM pending_deliveries
		 WHERE channel = ? AND status = 'pending'
		 ORDER BY id`,
		channel)
	if err != nil {
		return nil, fmt.Errorf("read pending deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.ID, &d.Channel, &d.Conversation, &d.Message); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// EnqueueDelivery inserts a pending delivery. The dispatcher side owns
// this in production; the bridge uses it only in tests.
func (s *Store) EnqueueDelivery(channel, conversation, message string) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO pending_deliveries (channel, conversation, message, status)
		 VALUES (?, ?, ?, 'pending')`,
		channel, conversation, message)
	if err != nil {
		return 0, fmt.Errorf("enqueue delivery: %w", err)
	}
	return res.LastInsertId()
}

// MarkDelivered marks a delivery terminal-successful.
func (s *Store) MarkDelivered(id int64) error {
	_, err := s.db.Exec(`UPDATE pending_deliveries SET status = 'delivered' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkFailed marks a delivery terminal-failed with an error note.
func (s *Store) MarkFailed(id int64, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE pending_deliveries SET status = 'failed', error = ? WHERE id = ?`,
		errMsg, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// AppendConversationTurn records one prompt or reply of a conversation's
// dispatch history. role is "user" or "assistant".
func (s *Store) AppendConversationTurn(conversation, role, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversation_turns (conversation, role, content, created_at)
		 VALUES (?, ?, ?, ?)`,
		conversation, role, content, FormatTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("append conversation turn: %w", err)
	}
	return nil
}

// ConversationTurns returns the newest limit turns of a conversation,
// oldest first.
func (s *Store) ConversationTurns(conversation string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, content FROM (
			SELECT id, role, content FROM conversation_turns
			WHERE conversation = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id`,
		conversation, limit)
	if err != nil {
		return nil, fmt.Errorf("read conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan conversation turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ConversationSession returns the stored session id for a conversation
// name, or ok=false when none exists.
func (s *Store) ConversationSession(name string) (sessionID string, ok bool, err error) {
	var ns sql.NullString
	err = s.db.QueryRow(`SELECT session_id FROM conversations WHERE name = ?`, name).Scan(&ns)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read conversation: %w", err)
	}
	return ns.String, ns.Valid && ns.String != "", nil
}

// SaveConversationSession upserts the session row for a conversation name.
// Only the dispatcher writes session ids; the bridge core never does.
func (s *Store) SaveConversationSession(name, sessionID, cwd string) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (name, session_id, cwd, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET session_id = excluded.session_id`,
		name, sessionID, cwd, FormatTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}
