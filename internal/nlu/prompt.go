package nlu

import (
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-voice-agent/internal/dates"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

// SystemPrompt renders the strict-JSON extraction instructions for one
// request. The enumerated domains come from the request so the model never
// sees values the machine would reject.
func SystemPrompt(req dialogue.ExtractionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s (%s, clinic local calendar). ", req.Today.Format(dates.ISOLayout), req.Today.Weekday())
	b.WriteString("Resolve relative dates (e.g., 'this Friday', 'next Tuesday') to the nearest FUTURE calendar date. ")
	b.WriteString("If the date would be in the past, return null for preferred_date. ")
	b.WriteString("You extract structured slots for a clinic scheduling voice agent. ")
	b.WriteString("Return STRICT JSON only (no prose), matching this schema: {\n")
	fmt.Fprintf(&b, "  \"intent\": one of %s,\n", quoteList(req.Intents))
	fmt.Fprintf(&b, "  \"service_type\": one of %s or null,\n", quoteList(req.ServiceTypes))
	fmt.Fprintf(&b, "  \"location\": one of %s or null,\n", quoteList(req.Locations))
	b.WriteString("  \"preferred_date\": ISO date 'YYYY-MM-DD' or null (if ambiguous or in the past, null),\n")
	b.WriteString("  \"patient_name\": string or null,\n")
	b.WriteString("  \"patient_phone\": digits only or null,\n")
	fmt.Fprintf(&b, "  \"corrections\": array of slot names from %s the caller is explicitly changing.\n", quoteList(dialogue.SlotOrder))
	b.WriteString("}\n")
	if req.Awaiting != "" {
		fmt.Fprintf(&b, "The agent just asked the caller for %s; a bare answer fills that field.\n", strings.ReplaceAll(string(req.Awaiting), "_", " "))
	}
	b.WriteString("Do not include any additional keys or commentary.")
	return b.String()
}

func quoteList[T ~string](values []T) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", string(v))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
