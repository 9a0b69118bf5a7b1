package ws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/dhruvxsingh/Converza/internal/message"
	"github.com/dhruvxsingh/Converza/internal/metrics"
	"github.com/dhruvxsingh/Converza/internal/protocol"
	"github.com/dhruvxsingh/Converza/internal/ratelimit"
)

// handleFrame classifies one inbound frame and routes it. Signaling
// events are forwarded verbatim to the rest of the room and never
// stored; chat frames are persisted first and then echoed to the whole
// room, sender included, so every device receives the server-stamped
// copy. Unrecognized types are dropped. No failure here terminates the
// connection: malformed payloads and store errors cost exactly one frame.
func (s *Server) handleFrame(c *Connection, data []byte) {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		metrics.FramesTotal.WithLabelValues("malformed").Inc()
		log.Printf("ws: malformed frame conn=%s user=%d: %v", c.ID, c.UserID, err)
		s.sendError(c, "malformed_frame", "invalid message format")
		return
	}

	switch frame.Kind() {
	case protocol.KindSignaling:
		metrics.FramesTotal.WithLabelValues("signaling").Inc()
		s.registry.Broadcast(c.Room, frame.Raw, c.UserID)
		if s.publisher != nil {
			if err := s.publisher.PublishCallEvent(string(c.Room), frame.Raw); err != nil {
				log.Printf("ws: publish call event room=%s: %v", c.Room, err)
			}
		}

	case protocol.KindChat:
		metrics.FramesTotal.WithLabelValues("chat").Inc()
		s.handleChat(c, frame)

	default:
		metrics.FramesTotal.WithLabelValues("unknown").Inc()
	}
}

// handleChat persists a chat frame and broadcasts the stored message.
// Whitespace-only content is dropped silently. The persist and broadcast
// run under the room's send lock so concurrent senders cannot deliver
// messages in an order different from the one the store assigned, and
// nothing is broadcast unless the store commit succeeded.
func (s *Server) handleChat(c *Connection, frame *protocol.Frame) {
	content := strings.TrimSpace(frame.Content)
	if content == "" {
		return
	}

	if err := message.ValidateContent(content); err != nil {
		s.sendError(c, "invalid_message", err.Error())
		return
	}

	if s.limiter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		allowed, _ := s.limiter.Allow(ctx, strconv.FormatInt(c.UserID, 10), ratelimit.RuleChatFrame)
		cancel()
		if !allowed {
			s.sendError(c, "rate_limited", "too many messages, slow down")
			return
		}
	}

	s.registry.WithSendLock(c.Room, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.PersistTimeout)
		defer cancel()

		start := time.Now()
		msg, err := s.store.Save(ctx, c.UserID, c.PartnerID, content)
		metrics.PersistLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PersistFailures.Inc()
			log.Printf("ws: persist failed conn=%s user=%d room=%s: %v", c.ID, c.UserID, c.Room, err)
			s.sendError(c, "persist_failed", "message could not be stored")
			return
		}
		metrics.MessagesPersisted.Inc()

		payload, err := json.Marshal(msg)
		if err != nil {
			log.Printf("ws: marshal stored message id=%d: %v", msg.ID, err)
			return
		}

		s.registry.Broadcast(c.Room, payload, 0)

		if s.publisher != nil {
			if err := s.publisher.PublishStored(string(c.Room), payload); err != nil {
				log.Printf("ws: publish stored message room=%s: %v", c.Room, err)
			}
		}
	})
}

// sendError sends a structured error frame back to the client. Errors
// during construction or transmission are logged but not propagated; the
// read loop owns connection teardown.
func (s *Server) sendError(c *Connection, code, msg string) {
	data, err := protocol.NewErrorFrame(code, msg)
	if err != nil {
		log.Printf("ws: build error frame conn=%s: %v", c.ID, err)
		return
	}
	if err := c.WriteMessage(data); err != nil {
		log.Printf("ws: send error frame conn=%s: %v", c.ID, err)
	}
}
