// Package messaging provides a NATS publisher for room events. The
// messaging core delivers frames to connected peers directly; these
// subjects exist for out-of-process consumers such as push-notification
// or analytics workers, and publishing is always fire-and-forget.
package messaging

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject prefixes. The room key is appended as the final token.
const (
	SubjectChatStored = "chat.stored" // + .<room_key>: persisted message payloads
	SubjectCallEvent  = "call.event"  // + .<room_key>: signaling frames
)

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "converza",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Publisher wraps a NATS connection for publishing room events.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS with the given config. It returns an
// error if the initial connection fails.
func NewPublisher(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats: disconnected: %v", err)
			} else {
				log.Printf("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats: reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("nats: connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("nats: connected to %s", nc.ConnectedUrl())
	return &Publisher{conn: nc}, nil
}

// PublishStored publishes a persisted message payload for the room.
func (p *Publisher) PublishStored(roomKey string, data []byte) error {
	return p.conn.Publish(SubjectChatStored+"."+roomKey, data)
}

// PublishCallEvent publishes a signaling frame for the room.
func (p *Publisher) PublishCallEvent(roomKey string, data []byte) error {
	return p.conn.Publish(SubjectCallEvent+"."+roomKey, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		log.Printf("nats: connection drain: %v", err)
	}
}
