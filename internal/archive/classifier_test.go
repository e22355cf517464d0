package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		outcomes  []string
		endReason string
		want      Labels
	}{
		{
			name:      "booked call",
			outcomes:  []string{"prompted", "reprompted", "offered", "booked"},
			endReason: EndReasonCompleted,
			want:      Labels{Category: CategoryBooked, Intent: "schedule", Reprompts: 1, Booked: true},
		},
		{
			name:      "extraction trouble beats no availability",
			outcomes:  []string{"no_availability", "extraction_failed"},
			endReason: EndReasonHangup,
			want:      Labels{Category: CategoryExtractionTrouble, Intent: "schedule", ExtractionFailure: true},
		},
		{
			name:      "reschedule request",
			outcomes:  []string{"prompted", "not_implemented"},
			endReason: EndReasonHangup,
			want:      Labels{Category: CategoryUnsupportedIntent, Intent: "schedule"},
		},
		{
			name:      "nothing open",
			outcomes:  []string{"prompted", "no_availability"},
			endReason: EndReasonHangup,
			want:      Labels{Category: CategoryNoAvailability, Intent: "schedule"},
		},
		{
			name:      "backend failure then hangup",
			outcomes:  []string{"prompted", "availability_failed"},
			endReason: EndReasonHangup,
			want:      Labels{Category: CategoryHungUp, Intent: "schedule", BackendFailure: true},
		},
		{
			name:      "abandoned",
			outcomes:  []string{"prompted"},
			endReason: EndReasonAbandoned,
			want:      Labels{Category: CategoryAbandoned, Intent: "schedule"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := make([]Turn, len(tt.outcomes))
			for i, o := range tt.outcomes {
				turns[i] = Turn{Outcome: o, Intent: "schedule"}
			}
			assert.Equal(t, tt.want, Classify(turns, tt.endReason))
		})
	}
}

func TestClassify_IgnoresOtherIntent(t *testing.T) {
	labels := Classify([]Turn{{Outcome: "prompted", Intent: "cancel"}, {Outcome: "prompted", Intent: "other"}}, EndReasonHangup)
	assert.Equal(t, "cancel", labels.Intent)
}
