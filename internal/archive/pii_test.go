package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashPhone(t *testing.T) {
	h1 := HashPhone("+18475550123")
	h2 := HashPhone("(847) 555-0123")
	h3 := HashPhone("+15551234567")

	assert.Equal(t, h1, h2, "formatting and country code should not change the hash")
	assert.NotEqual(t, h1, h3, "different numbers should hash differently")
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
	assert.Empty(t, HashPhone(""))
	assert.Empty(t, HashPhone("anonymous"))
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "contact me at john@example.com please", "contact me at [EMAIL] please"},
		{"formatted phone", "call me at (330) 333-2654", "call me at [PHONE]"},
		{"e164 phone", "my number is +15005550002", "my number is [PHONE]"},
		{"spaced phone", "it's 847 555 0123 thanks", "it's [PHONE] thanks"},
		{"spoken phone", "Eight four seven, five five five, oh one two three.", "[PHONE]."},
		{"both", "email: a@b.com phone: 330-333-2654", "email: [EMAIL] phone: [PHONE]"},
		{"date kept", "I have Wednesday 2026-10-14 at 9:00 AM", "I have Wednesday 2026-10-14 at 9:00 AM"},
		{"confirmation kept", "Your confirmation number is APT-12345678.", "Your confirmation number is APT-12345678."},
		{"short spoken run kept", "one two three", "one two three"},
		{"no pii", "I want to book cupping", "I want to book cupping"},
		{"name kept", "My name is Sarah Lee", "My name is Sarah Lee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}

func TestScrubTurns(t *testing.T) {
	turns := []Turn{
		{Utterance: "my number is 847-555-0123", Response: "Got it!", At: time.Now()},
		{Utterance: "Jane Doe", Response: "I have 847 555 0123 on file", At: time.Now()},
	}
	ScrubTurns(turns)
	assert.Equal(t, "my number is [PHONE]", turns[0].Utterance)
	assert.Equal(t, "Got it!", turns[0].Response)
	assert.Equal(t, "Jane Doe", turns[1].Utterance)
	assert.Equal(t, "I have [PHONE] on file", turns[1].Response)
}
