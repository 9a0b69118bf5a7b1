// Package protocol defines the wire format of the chat WebSocket
// protocol. Every frame is a JSON object with an optional "type"
// discriminator; frames classify into chat messages (persisted and
// echoed to the whole room), call-signaling events (forwarded verbatim,
// never stored), and unknown types (dropped).
package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound frame types. A frame with no "type" field is treated as chat
// for backward compatibility with older clients.
const (
	TypeChat = "chat"

	TypeCallOffer    = "call-offer"
	TypeCallAnswer   = "call-answer"
	TypeICECandidate = "ice-candidate"
	TypeCallEnd      = "call-end"

	// Legacy signaling aliases still accepted from older clients.
	TypeLegacyOffer  = "offer"
	TypeLegacyAnswer = "answer"
	TypeLegacyICE    = "ice"
)

// TypeError is the server->client error frame type.
const TypeError = "error"

// Kind is the closed set of frame classes the dispatch loop routes on.
type Kind int

const (
	// KindChat is a text message to be persisted and echoed to the room.
	KindChat Kind = iota
	// KindSignaling is a transient call-setup event, forwarded verbatim.
	KindSignaling
	// KindUnknown is any unrecognized type; such frames are dropped.
	KindUnknown
)

// signalingTypes is the set of recognized signaling discriminators,
// including legacy aliases.
var signalingTypes = map[string]bool{
	TypeCallOffer:    true,
	TypeCallAnswer:   true,
	TypeICECandidate: true,
	TypeCallEnd:      true,
	TypeLegacyOffer:  true,
	TypeLegacyAnswer: true,
	TypeLegacyICE:    true,
}

// Frame is one parsed inbound frame. Raw holds the full original payload
// so signaling frames can be forwarded without re-encoding. A Frame is
// owned by the receive loop for the duration of its processing and is
// never retained.
type Frame struct {
	Type    string
	Content string
	Raw     json.RawMessage
}

// Kind classifies the frame by its type discriminator.
func (f *Frame) Kind() Kind {
	switch {
	case f.Type == "" || f.Type == TypeChat:
		return KindChat
	case signalingTypes[f.Type]:
		return KindSignaling
	default:
		return KindUnknown
	}
}

// ParseFrame decodes raw WebSocket bytes into a Frame. It extracts only
// the type and content fields and keeps a copy of the full payload for
// verbatim forwarding. An error means the payload was not a JSON object.
func ParseFrame(data []byte) (*Frame, error) {
	var partial struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return &Frame{
		Type:    partial.Type,
		Content: partial.Content,
		Raw:     raw,
	}, nil
}

// ErrorFrame is the server->client error payload, sent when a frame is
// malformed, rejected, or could not be persisted.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorFrame builds the JSON bytes for an error frame.
func NewErrorFrame(code, message string) ([]byte, error) {
	out, err := json.Marshal(ErrorFrame{
		Type:    TypeError,
		Code:    code,
		Message: message,
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal error frame: %w", err)
	}
	return out, nil
}
