package nlu

import (
	"context"
	"regexp"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/dates"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

var (
	rescheduleKeywords = regexp.MustCompile(`\b(reschedul\w*|change (?:my |the )?appointment|move (?:my |the )?appointment)\b`)
	cancelKeywords     = regexp.MustCompile(`\bcancel\w*\b`)
	scheduleKeywords   = regexp.MustCompile(`\b(schedul\w*|book\w*|make (?:an |a )?appointment|new appointment|set up (?:an )?appointment)\b`)

	phonePattern = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`)
	namePattern  = regexp.MustCompile(`(?i)\b(?:my name is|my name's|name is|this is)\s+([a-z][a-z'\-]*(?:\s+[a-z][a-z'\-]*){0,2})`)
	nameWord     = regexp.MustCompile(`^[A-Za-z][A-Za-z'\-]*$`)
)

var serviceKeywords = []struct {
	pattern *regexp.Regexp
	service dialogue.ServiceType
}{
	{regexp.MustCompile(`\b(chiropract\w*|adjustment|chiro)\b`), dialogue.ServiceChiropractic},
	{regexp.MustCompile(`\bacupuncture\b`), dialogue.ServiceAcupuncture},
	{regexp.MustCompile(`\bcupping\b`), dialogue.ServiceCupping},
	{regexp.MustCompile(`\bconsult\w*\b`), dialogue.ServiceConsultation},
}

var locationKeywords = []struct {
	pattern  *regexp.Regexp
	location dialogue.Location
}{
	{regexp.MustCompile(`\barlington(?:[\s\-_]+heights)?\b`), dialogue.LocationArlingtonHeights},
	{regexp.MustCompile(`\bhighland(?:[\s\-_]+park)?\b`), dialogue.LocationHighlandPark},
}

// Words that end a captured name ("my name is Ann and my number is ...").
var nameStopWords = map[string]bool{
	"and": true, "my": true, "at": true, "in": true, "for": true, "on": true,
	"i": true, "i'd": true, "i'm": true, "calling": true, "please": true, "from": true,
	"the": true, "to": true, "with": true, "phone": true, "number": true,
}

// Filler a caller might wrap around a bare answer.
var fillerWords = map[string]bool{
	"yes": true, "yeah": true, "sure": true, "ok": true, "okay": true, "um": true, "uh": true,
	"it's": true, "its": true, "it": true, "is": true, "name": true, "please": true, "thanks": true,
	"thank": true, "you": true,
}

var spokenDigits = map[string]string{
	"zero": "0", "oh": "0", "o": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
}

// KeywordExtractor is the deterministic extractor used when no language
// model is configured or the model fails. It never returns an error.
type KeywordExtractor struct{}

func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

// Extract implements dialogue.Extractor.
func (k *KeywordExtractor) Extract(_ context.Context, req dialogue.ExtractionRequest) (*dialogue.Extraction, error) {
	text := strings.TrimSpace(req.Text)
	lower := strings.ToLower(text)

	ext := &dialogue.Extraction{
		Intent:  classifyIntent(lower),
		RawText: req.Text,
	}
	for _, kw := range serviceKeywords {
		if kw.pattern.MatchString(lower) {
			ext.ServiceType = kw.service
			break
		}
	}
	for _, kw := range locationKeywords {
		if kw.pattern.MatchString(lower) {
			ext.Location = kw.location
			break
		}
	}

	phoneText := lower
	if req.Awaiting == dialogue.SlotPatientPhone {
		phoneText = spokenToDigits(lower)
	}
	if m := phonePattern.FindString(phoneText); m != "" {
		ext.PatientPhone = m
	} else if req.Awaiting == dialogue.SlotPatientPhone {
		if digits, ok := dialogue.NormalizePhone(phoneText); ok {
			ext.PatientPhone = digits
		}
	}

	// Phone digits must not be read as a numeric date.
	dateText := phonePattern.ReplaceAllString(lower, " ")
	ext.PreferredDate = dates.NormalizeISO(dateText, req.Today)

	ext.PatientName = extractName(text)
	if ext.PatientName == "" && req.Awaiting == dialogue.SlotPatientName && bareAnswer(ext) {
		ext.PatientName = bareName(text)
	}

	if dialogue.HasCorrectionMarker(lower) {
		for _, slot := range dialogue.SlotOrder {
			if ext.Value(slot) != "" {
				ext.Corrections = append(ext.Corrections, slot)
			}
		}
	}
	ext.Sanitize()
	return ext, nil
}

func classifyIntent(lower string) dialogue.Intent {
	switch {
	case rescheduleKeywords.MatchString(lower):
		return dialogue.IntentReschedule
	case cancelKeywords.MatchString(lower):
		return dialogue.IntentCancel
	case scheduleKeywords.MatchString(lower):
		return dialogue.IntentSchedule
	default:
		return dialogue.IntentOther
	}
}

func extractName(text string) string {
	m := namePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	var kept []string
	for _, w := range strings.Fields(m[1]) {
		if nameStopWords[strings.ToLower(w)] {
			break
		}
		kept = append(kept, w)
	}
	return titleName(kept)
}

// bareAnswer reports whether nothing but a name could be in the utterance.
func bareAnswer(ext *dialogue.Extraction) bool {
	return ext.ServiceType == "" && ext.Location == "" && ext.PreferredDate == "" && ext.PatientPhone == "" &&
		ext.Intent == dialogue.IntentOther
}

func bareName(text string) string {
	text = strings.NewReplacer(".", " ", ",", " ", "!", " ", "?", " ").Replace(text)
	var kept []string
	for _, w := range strings.Fields(text) {
		if len(kept) == 0 && fillerWords[strings.ToLower(w)] {
			continue
		}
		if fillerWords[strings.ToLower(w)] {
			break
		}
		if !nameWord.MatchString(w) {
			return ""
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 || len(kept) > 4 {
		return ""
	}
	return titleName(kept)
}

func titleName(words []string) string {
	for i, w := range words {
		lw := strings.ToLower(w)
		words[i] = strings.ToUpper(lw[:1]) + lw[1:]
	}
	return strings.Join(words, " ")
}

func spokenToDigits(lower string) string {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '-'
	})
	var b strings.Builder
	for _, f := range fields {
		if d, ok := spokenDigits[f]; ok {
			b.WriteString(d)
			continue
		}
		if strings.Trim(f, "0123456789()+") == "" {
			b.WriteString(strings.Trim(f, "()+"))
			continue
		}
		b.WriteByte(' ')
	}
	return strings.TrimSpace(b.String())
}
