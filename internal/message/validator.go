package message

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxContentBytes = 4096 // max frame payload size
	MaxContentChars = 2000 // max character count
)

// ValidateContent checks that chat content meets size and encoding
// requirements. Emptiness is handled by the dispatch loop (whitespace-only
// frames are dropped silently before validation).
func ValidateContent(content string) error {
	if len(content) > MaxContentBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxContentBytes)
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return fmt.Errorf("message exceeds %d character limit", MaxContentChars)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
