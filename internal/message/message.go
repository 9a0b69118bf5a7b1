// Package message provides the persisted chat message model and its
// PostgreSQL-backed store. The store assigns message IDs and timestamps;
// the dispatch loop never broadcasts a message that has not been
// committed first.
package message

import (
	"context"
	"time"
)

// Message is one durably stored chat message. Its JSON shape is the
// outbound wire format delivered to clients after persistence.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// Store is the persistence contract consumed by the dispatch loop and
// the history endpoint.
type Store interface {
	// Save durably writes a message and returns it with the
	// store-assigned ID and creation timestamp.
	Save(ctx context.Context, senderID, receiverID int64, content string) (*Message, error)

	// History returns messages exchanged between the two users,
	// paginated from the newest end by skip/limit and returned in
	// chronological (oldest-first) order.
	History(ctx context.Context, userA, userB int64, skip, limit int) ([]*Message, error)
}
