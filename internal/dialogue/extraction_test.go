package dialogue

import (
	"testing"
)

func TestSanitizeNullsInvalidValues(t *testing.T) {
	ext := &Extraction{
		Intent:        "BOOK",
		ServiceType:   "massage",
		Location:      "Highland Park",
		PreferredDate: "  next friday ",
		PatientName:   "  Kevin   Shu ",
		Corrections:   []SlotName{"location", "Location", "favorite_color", "patient_phone"},
	}
	ext.Sanitize()

	if ext.Intent != IntentOther {
		t.Fatalf("expected unknown intent to become other, got %q", ext.Intent)
	}
	if ext.ServiceType != "" {
		t.Fatalf("expected invalid service type to be dropped, got %q", ext.ServiceType)
	}
	if ext.Location != LocationHighlandPark {
		t.Fatalf("expected spoken location to be canonicalized, got %q", ext.Location)
	}
	if ext.PreferredDate != "next friday" || ext.PatientName != "Kevin Shu" {
		t.Fatalf("expected trimmed text fields, got %q / %q", ext.PreferredDate, ext.PatientName)
	}
	if len(ext.Corrections) != 2 || !ext.Corrects(SlotLocation) || !ext.Corrects(SlotPatientPhone) {
		t.Fatalf("unexpected corrections %v", ext.Corrections)
	}
}

func TestSanitizeEmptyCorrectionsBecomeNil(t *testing.T) {
	ext := &Extraction{Intent: IntentCancel, Corrections: []SlotName{"nope"}}
	ext.Sanitize()
	if ext.Corrections != nil {
		t.Fatalf("expected nil corrections, got %v", ext.Corrections)
	}
	if ext.Intent != IntentCancel {
		t.Fatalf("expected cancel intent to survive, got %q", ext.Intent)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"(847) 555-0101", "8475550101", true},
		{"+1 847 555 0101", "8475550101", true},
		{"8475550101#", "8475550101", true},
		{"555-0101", "", false},
		{"28475550101", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizePhone(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizePhone(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestHasCorrectionMarker(t *testing.T) {
	tests := map[string]bool{
		"Actually, Arlington Heights":  true,
		"no wait, make it Friday":      true,
		"I meant tomorrow":             true,
		"Jane Nolan":                   false,
		"Knoxville":                    false,
		"Tuesday instead of Wednesday": true,
	}
	for text, want := range tests {
		if got := HasCorrectionMarker(text); got != want {
			t.Errorf("HasCorrectionMarker(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestParseEnums(t *testing.T) {
	if v, ok := ParseLocation("arlington-heights"); !ok || v != LocationArlingtonHeights {
		t.Fatalf("expected arlington heights, got %q %v", v, ok)
	}
	if _, ok := ParseLocation("chicago"); ok {
		t.Fatal("expected unknown location to fail")
	}
	if v, ok := ParseServiceType(" Acupuncture "); !ok || v != ServiceAcupuncture {
		t.Fatalf("expected acupuncture, got %q %v", v, ok)
	}
	if v, ok := ParseSlotName("Patient Phone"); !ok || v != SlotPatientPhone {
		t.Fatalf("expected patient_phone, got %q %v", v, ok)
	}
	if LocationHighlandPark.Spoken() != "Highland Park" {
		t.Fatalf("unexpected spoken location %q", LocationHighlandPark.Spoken())
	}
}

func TestRequiredSlotsFollowPromptOrder(t *testing.T) {
	for _, intent := range []Intent{IntentSchedule, IntentReschedule, IntentCancel} {
		slots := RequiredSlots(intent)
		last := -1
		for _, s := range slots {
			idx := -1
			for i, o := range SlotOrder {
				if o == s {
					idx = i
				}
			}
			if idx <= last {
				t.Fatalf("%s slots out of order: %v", intent, slots)
			}
			last = idx
		}
	}
	if len(RequiredSlots(IntentOther)) != 0 {
		t.Fatal("other intent should require nothing")
	}
	if Requires(IntentCancel, SlotServiceType) {
		t.Fatal("cancel should not require a service type")
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := NewDialogueState("CA-clone", fixedNow)
	st.OfferedSlots = sampleOffers(2)
	st.LastRawEntities = &Extraction{Corrections: []SlotName{SlotLocation}}

	cp := st.Clone()
	cp.OfferedSlots[0].ProviderName = "changed"
	cp.LastRawEntities.Corrections[0] = SlotPatientName

	if st.OfferedSlots[0].ProviderName == "changed" {
		t.Fatal("offers share backing storage")
	}
	if st.LastRawEntities.Corrections[0] != SlotLocation {
		t.Fatal("extraction shares backing storage")
	}
}
