package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const digitWord = `(?:zero|oh|one|two|three|four|five|six|seven|eight|nine)`

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Candidate digit runs; only those with a phone-sized digit count are
	// replaced, which keeps dates and confirmation codes readable.
	digitRunRe = regexp.MustCompile(`\+?\(?\d(?:[\s().-]{0,2}\d){6,}`)
	// Speech recognition sometimes spells numbers out.
	spokenPhoneRe = regexp.MustCompile(`(?i)\b(?:` + digitWord + `[\s,-]+){9,}` + digitWord + `\b`)
)

// HashPhone returns the hex SHA-256 of the number's national digits, so
// "+1 (847) 555-0123" and "8475550123" hash alike.
func HashPhone(phone string) string {
	digits := nationalDigits(phone)
	if digits == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(digits))
	return hex.EncodeToString(sum[:])
}

// ScrubPII replaces emails with [EMAIL] and phone numbers, written or spoken,
// with [PHONE]. Names are kept so reviewers can follow the call.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = spokenPhoneRe.ReplaceAllString(text, "[PHONE]")
	return digitRunRe.ReplaceAllStringFunc(text, func(run string) string {
		if isPhoneNumber(nationalDigits(run)) {
			return "[PHONE]"
		}
		return run
	})
}

// ScrubTurns applies PII scrubbing to both sides of every turn in place.
func ScrubTurns(turns []Turn) {
	for i := range turns {
		turns[i].Utterance = ScrubPII(turns[i].Utterance)
		turns[i].Response = ScrubPII(turns[i].Response)
	}
}

func nationalDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 11 && d[0] == '1' {
		return d[1:]
	}
	return d
}

func isPhoneNumber(digits string) bool {
	return len(digits) == 10
}
