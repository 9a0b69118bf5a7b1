package message

import (
	"context"
	"database/sql"
	"fmt"
)

// PgStore is the PostgreSQL implementation of Store.
type PgStore struct {
	db *sql.DB
}

// NewPgStore creates a message store backed by the given database handle.
func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{db: db}
}

// Save inserts a message and returns it with the server-assigned ID,
// creation timestamp, and read flag.
func (s *PgStore) Save(ctx context.Context, senderID, receiverID int64, content string) (*Message, error) {
	const query = `
		INSERT INTO messages (sender_id, receiver_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, is_read`

	msg := &Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
	}
	err := s.db.QueryRowContext(ctx, query, senderID, receiverID, content).
		Scan(&msg.ID, &msg.CreatedAt, &msg.IsRead)
	if err != nil {
		return nil, fmt.Errorf("message: insert: %w", err)
	}
	return msg, nil
}

// History selects all messages where sender and receiver are both within
// the {userA, userB} pair, newest first for pagination, then reverses
// the page so callers receive chronological order.
func (s *PgStore) History(ctx context.Context, userA, userB int64, skip, limit int) ([]*Message, error) {
	const query = `
		SELECT id, sender_id, receiver_id, content, created_at, is_read
		FROM messages
		WHERE sender_id IN ($1, $2)
		  AND receiver_id IN ($1, $2)
		ORDER BY created_at DESC, id DESC
		OFFSET $3 LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, userA, userB, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("message: history query: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID,
			&msg.Content, &msg.CreatedAt, &msg.IsRead); err != nil {
			return nil, fmt.Errorf("message: history scan: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: history rows: %w", err)
	}

	// Newest-first from the query; flip to chronological for the caller.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
