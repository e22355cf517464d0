package dialogue

import (
	"time"

	"github.com/wolfman30/clinic-voice-agent/internal/dates"
)

// mergeResult records what the merge step did beyond plain assignment.
type mergeResult struct {
	changed       []SlotName
	dateRejected  bool
	phoneRejected bool
	nameDeferred  bool
	nameWasDate   bool
}

// merge applies an extraction to the working state. The intent is always
// replaced. A slot is written when it is empty, when the extraction flags it
// as a correction, or when the last reply asked for it again; dates must
// resolve to today or later and phones to ten digits.
func merge(state *DialogueState, ext *Extraction, today time.Time) mergeResult {
	var res mergeResult
	state.Intent = ext.Intent
	state.LastRawEntities = ext.Clone()

	awaitingName := state.Awaiting == SlotPatientName && !state.Filled(SlotPatientName)
	for _, slot := range SlotOrder {
		raw := ext.Value(slot)
		if raw == "" {
			continue
		}
		if state.Filled(slot) && !ext.Corrects(slot) && state.Awaiting != slot {
			continue
		}

		value := raw
		switch slot {
		case SlotPreferredDate:
			iso, ok := resolveDate(raw, today)
			if !ok {
				res.dateRejected = true
				continue
			}
			value = iso
		case SlotPatientPhone:
			phone, ok := NormalizePhone(raw)
			if !ok {
				res.phoneRejected = true
				continue
			}
			value = phone
		case SlotPatientName:
			if awaitingName && strayNameAnswer(ext) {
				res.nameDeferred = true
				continue
			}
			if _, isDate := dates.Normalize(raw, today); isDate {
				res.nameWasDate = awaitingName
				continue
			}
		}

		previous := state.Slot(slot)
		if previous == value {
			continue
		}
		state.setSlot(slot, value)
		if previous != "" {
			res.changed = append(res.changed, slot)
		}
	}
	return res
}

// strayNameAnswer decides whether a reply to the name prompt is really about
// something else. Such turns re-prompt for the name instead of guessing one.
func strayNameAnswer(ext *Extraction) bool {
	if ext.Location != "" || ext.ServiceType != "" {
		return true
	}
	return HasCorrectionMarker(ext.RawText)
}

// resolveDate accepts an ISO day or falls back to the date normalizer.
// Past and unresolvable values are rejected.
func resolveDate(raw string, today time.Time) (string, bool) {
	if d, ok := dates.ParseISO(raw, today.Location()); ok {
		if d.Before(today) {
			return "", false
		}
		return d.Format(dates.ISOLayout), true
	}
	if d, ok := dates.Normalize(raw, today); ok {
		return d.Format(dates.ISOLayout), true
	}
	return "", false
}
