package message

import (
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"simple text", "hello", false},
		{"unicode", "héllo wörld éè", false},
		{"emoji", "hi \U0001F44B", false},
		{"near byte limit", strings.Repeat("é", MaxContentChars), false},
		{"over byte limit", strings.Repeat("x", MaxContentBytes+1), true},
		{"at char limit", strings.Repeat("a", MaxContentChars), false},
		{"over char limit", strings.Repeat("a", MaxContentChars+1), true},
		{"multibyte over char limit", strings.Repeat("é", MaxContentChars+1), true},
		{"invalid utf8", "bad\xff\xfebytes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateContent(%q...) error = %v, wantErr %v",
					truncate(tt.content), err, tt.wantErr)
			}
		})
	}
}

func truncate(s string) string {
	if len(s) > 20 {
		return s[:20]
	}
	return s
}
