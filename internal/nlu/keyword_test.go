package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

func TestKeywordExtractor(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		awaiting dialogue.SlotName
		want     dialogue.Extraction
	}{
		{
			name: "schedule with service and location",
			text: "Hi, I'd like to book a chiropractic adjustment at Arlington Heights",
			want: dialogue.Extraction{Intent: dialogue.IntentSchedule, ServiceType: dialogue.ServiceChiropractic, Location: dialogue.LocationArlingtonHeights},
		},
		{
			name: "reschedule is not schedule",
			text: "I need to reschedule my appointment",
			want: dialogue.Extraction{Intent: dialogue.IntentReschedule},
		},
		{
			name: "cancel",
			text: "Please cancel my appointment",
			want: dialogue.Extraction{Intent: dialogue.IntentCancel},
		},
		{
			name: "date through normalizer",
			text: "next Tuesday in Highland Park",
			want: dialogue.Extraction{Intent: dialogue.IntentOther, Location: dialogue.LocationHighlandPark, PreferredDate: "2026-10-27"},
		},
		{
			name: "name and phone in one breath",
			text: "My name is Jane Doe and my number is (847) 555-0123",
			want: dialogue.Extraction{Intent: dialogue.IntentOther, PatientName: "Jane Doe", PatientPhone: "(847) 555-0123"},
		},
		{
			name:     "bare name when asked",
			text:     "Jane Doe.",
			awaiting: dialogue.SlotPatientName,
			want:     dialogue.Extraction{Intent: dialogue.IntentOther, PatientName: "Jane Doe"},
		},
		{
			name: "bare words are not a name unless asked",
			text: "Jane Doe",
			want: dialogue.Extraction{Intent: dialogue.IntentOther},
		},
		{
			name:     "spoken phone digits",
			text:     "eight four seven five five five oh one two three",
			awaiting: dialogue.SlotPatientPhone,
			want:     dialogue.Extraction{Intent: dialogue.IntentOther, PatientPhone: "8475550123"},
		},
		{
			name: "correction marker flags extracted slots",
			text: "Actually, make it acupuncture instead",
			want: dialogue.Extraction{
				Intent:      dialogue.IntentOther,
				ServiceType: dialogue.ServiceAcupuncture,
				Corrections: []dialogue.SlotName{dialogue.SlotServiceType},
			},
		},
		{
			name: "phone digits are not read as a date",
			text: "call me back at 847-555-0123",
			want: dialogue.Extraction{Intent: dialogue.IntentOther, PatientPhone: "847-555-0123"},
		},
	}

	extractor := NewKeywordExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractor.Extract(context.Background(), extractionRequest(tt.text, tt.awaiting))
			require.NoError(t, err)
			tt.want.RawText = tt.text
			assert.Equal(t, &tt.want, got)
		})
	}
}
