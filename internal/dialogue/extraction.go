package dialogue

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrExtractionFailed is returned by extractors that could not produce a
// usable result. Extraction is all-or-nothing.
var ErrExtractionFailed = errors.New("dialogue: extraction failed")

// Extraction is the structured reading of one caller utterance. Empty fields
// mean the utterance did not mention them.
type Extraction struct {
	Intent        Intent      `json:"intent"`
	ServiceType   ServiceType `json:"service_type,omitempty"`
	Location      Location    `json:"location,omitempty"`
	PreferredDate string      `json:"preferred_date,omitempty"`
	PatientName   string      `json:"patient_name,omitempty"`
	PatientPhone  string      `json:"patient_phone,omitempty"`
	Corrections   []SlotName  `json:"corrections,omitempty"`
	RawText       string      `json:"raw_text"`
}

// ExtractionRequest carries everything an extractor may use.
type ExtractionRequest struct {
	Text         string
	Today        time.Time
	Awaiting     SlotName
	Intents      []Intent
	ServiceTypes []ServiceType
	Locations    []Location
}

// NewExtractionRequest fills the enumerated domains.
func NewExtractionRequest(text string, today time.Time, awaiting SlotName) ExtractionRequest {
	return ExtractionRequest{
		Text:         text,
		Today:        today,
		Awaiting:     awaiting,
		Intents:      Intents,
		ServiceTypes: ServiceTypes,
		Locations:    Locations,
	}
}

// Extractor turns an utterance into an Extraction.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (*Extraction, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, req ExtractionRequest) (*Extraction, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, req ExtractionRequest) (*Extraction, error) {
	return f(ctx, req)
}

// Sanitize nulls out values outside the enumerated domains, drops unknown or
// duplicate correction names and trims free-text fields.
func (e *Extraction) Sanitize() {
	if e == nil {
		return
	}
	if v, ok := ParseIntent(string(e.Intent)); ok {
		e.Intent = v
	} else {
		e.Intent = IntentOther
	}
	if v, ok := ParseServiceType(string(e.ServiceType)); ok {
		e.ServiceType = v
	} else {
		e.ServiceType = ""
	}
	if v, ok := ParseLocation(string(e.Location)); ok {
		e.Location = v
	} else {
		e.Location = ""
	}
	e.PreferredDate = strings.TrimSpace(e.PreferredDate)
	e.PatientName = strings.Join(strings.Fields(e.PatientName), " ")
	e.PatientPhone = strings.TrimSpace(e.PatientPhone)

	seen := make(map[SlotName]bool, len(e.Corrections))
	kept := e.Corrections[:0]
	for _, c := range e.Corrections {
		name, ok := ParseSlotName(string(c))
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		kept = append(kept, name)
	}
	if len(kept) == 0 {
		kept = nil
	}
	e.Corrections = kept
}

// Corrects reports whether the extraction flags the slot as a correction.
func (e *Extraction) Corrects(name SlotName) bool {
	for _, c := range e.Corrections {
		if c == name {
			return true
		}
	}
	return false
}

// Value returns the extracted raw value for a slot.
func (e *Extraction) Value(name SlotName) string {
	switch name {
	case SlotServiceType:
		return string(e.ServiceType)
	case SlotLocation:
		return string(e.Location)
	case SlotPreferredDate:
		return e.PreferredDate
	case SlotPatientName:
		return e.PatientName
	case SlotPatientPhone:
		return e.PatientPhone
	}
	return ""
}

// Clone returns a deep copy.
func (e *Extraction) Clone() *Extraction {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Corrections != nil {
		cp.Corrections = append([]SlotName(nil), e.Corrections...)
	}
	return &cp
}

var correctionMarker = regexp.MustCompile(`(?i)\b(actually|no|nope|wait|sorry|i meant|i mean|instead|change|correction|scratch that)\b`)

// HasCorrectionMarker reports whether the text contains a word callers use to
// walk back an earlier answer.
func HasCorrectionMarker(text string) bool {
	return correctionMarker.MatchString(text)
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone reduces a spoken or keyed phone number to ten digits. A
// leading US country code is dropped.
func NormalizePhone(raw string) (string, bool) {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}
