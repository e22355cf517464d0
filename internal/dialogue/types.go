// Package dialogue implements the slot-filling state machine that drives a
// scheduling phone call one caller utterance at a time.
package dialogue

import (
	"strings"
	"time"
)

// Phase is the conversational position of a call.
type Phase string

const (
	PhaseGreeting            Phase = "greeting"
	PhaseCollectingSlots     Phase = "collecting_slots"
	PhaseConfirmingSelection Phase = "confirming_selection"
	PhaseRescheduling        Phase = "rescheduling"
	PhaseCanceling           Phase = "canceling"
)

// Intent is the caller's high-level goal.
type Intent string

const (
	IntentSchedule   Intent = "schedule"
	IntentReschedule Intent = "reschedule"
	IntentCancel     Intent = "cancel"
	IntentOther      Intent = "other"
)

// Intents lists every valid intent in presentation order.
var Intents = []Intent{IntentSchedule, IntentReschedule, IntentCancel, IntentOther}

// ParseIntent validates a loosely formatted intent string.
func ParseIntent(raw string) (Intent, bool) {
	v := Intent(canonical(raw))
	for _, known := range Intents {
		if v == known {
			return v, true
		}
	}
	return "", false
}

// ServiceType is a bookable treatment.
type ServiceType string

const (
	ServiceChiropractic ServiceType = "chiropractic"
	ServiceAcupuncture  ServiceType = "acupuncture"
	ServiceCupping      ServiceType = "cupping"
	ServiceConsultation ServiceType = "consultation"
)

// ServiceTypes lists every valid service type.
var ServiceTypes = []ServiceType{ServiceChiropractic, ServiceAcupuncture, ServiceCupping, ServiceConsultation}

// ParseServiceType validates a loosely formatted service type.
func ParseServiceType(raw string) (ServiceType, bool) {
	v := ServiceType(canonical(raw))
	for _, known := range ServiceTypes {
		if v == known {
			return v, true
		}
	}
	return "", false
}

// Location is a clinic site.
type Location string

const (
	LocationHighlandPark     Location = "highland_park"
	LocationArlingtonHeights Location = "arlington_heights"
)

// Locations lists every valid clinic location.
var Locations = []Location{LocationHighlandPark, LocationArlingtonHeights}

// ParseLocation validates a loosely formatted location ("Highland Park",
// "highland-park" and "highland_park" are equivalent).
func ParseLocation(raw string) (Location, bool) {
	v := Location(canonical(raw))
	for _, known := range Locations {
		if v == known {
			return v, true
		}
	}
	return "", false
}

// Spoken renders the location the way a receptionist would say it.
func (l Location) Spoken() string {
	return titleWords(strings.ReplaceAll(string(l), "_", " "))
}

// SlotName identifies a piece of information the caller must provide.
type SlotName string

const (
	SlotServiceType   SlotName = "service_type"
	SlotLocation      SlotName = "location"
	SlotPreferredDate SlotName = "preferred_date"
	SlotPatientName   SlotName = "patient_name"
	SlotPatientPhone  SlotName = "patient_phone"
)

// SlotOrder is the fixed order in which missing slots are prompted.
var SlotOrder = []SlotName{SlotServiceType, SlotLocation, SlotPreferredDate, SlotPatientName, SlotPatientPhone}

// ParseSlotName validates a slot name.
func ParseSlotName(raw string) (SlotName, bool) {
	v := SlotName(canonical(raw))
	for _, known := range SlotOrder {
		if v == known {
			return v, true
		}
	}
	return "", false
}

var requiredSlots = map[Intent][]SlotName{
	IntentSchedule:   {SlotServiceType, SlotLocation, SlotPreferredDate, SlotPatientName, SlotPatientPhone},
	IntentReschedule: {SlotPatientName, SlotPatientPhone},
	IntentCancel:     {SlotPatientName, SlotPatientPhone},
}

// RequiredSlots returns the slots an intent needs, in prompt order.
func RequiredSlots(intent Intent) []SlotName {
	return requiredSlots[intent]
}

// Requires reports whether the intent needs the slot.
func Requires(intent Intent, slot SlotName) bool {
	for _, s := range requiredSlots[intent] {
		if s == slot {
			return true
		}
	}
	return false
}

// Offer is a candidate appointment presented to the caller.
type Offer struct {
	Start        time.Time     `json:"start"`
	ProviderID   string        `json:"provider_id"`
	ProviderName string        `json:"provider_name"`
	Location     Location      `json:"location"`
	ServiceType  ServiceType   `json:"service_type"`
	Duration     time.Duration `json:"duration"`
}

// DialogueState is everything the machine remembers about one call.
// Empty slot values mean "not yet provided".
type DialogueState struct {
	CallID          string      `json:"call_id"`
	Phase           Phase       `json:"phase"`
	Intent          Intent      `json:"intent,omitempty"`
	ServiceType     ServiceType `json:"service_type,omitempty"`
	Location        Location    `json:"location,omitempty"`
	PreferredDate   string      `json:"preferred_date,omitempty"`
	PatientName     string      `json:"patient_name,omitempty"`
	PatientPhone    string      `json:"patient_phone,omitempty"`
	Awaiting        SlotName    `json:"awaiting,omitempty"`
	OfferedSlots    []Offer     `json:"offered_slots,omitempty"`
	LastRawEntities *Extraction `json:"last_raw_entities,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewDialogueState returns a fresh state in the greeting phase.
func NewDialogueState(callID string, now time.Time) *DialogueState {
	return &DialogueState{
		CallID:    callID,
		Phase:     PhaseGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (s *DialogueState) Clone() *DialogueState {
	if s == nil {
		return nil
	}
	cp := *s
	if s.OfferedSlots != nil {
		cp.OfferedSlots = append([]Offer(nil), s.OfferedSlots...)
	}
	cp.LastRawEntities = s.LastRawEntities.Clone()
	return &cp
}

// ActiveIntent is the task the current phase is working on. Outside the
// task phases it falls back to the last classified intent.
func (s *DialogueState) ActiveIntent() Intent {
	switch s.Phase {
	case PhaseCollectingSlots, PhaseConfirmingSelection:
		return IntentSchedule
	case PhaseRescheduling:
		return IntentReschedule
	case PhaseCanceling:
		return IntentCancel
	default:
		return s.Intent
	}
}

// Slot returns the stored value of a slot, or "" when unfilled.
func (s *DialogueState) Slot(name SlotName) string {
	switch name {
	case SlotServiceType:
		return string(s.ServiceType)
	case SlotLocation:
		return string(s.Location)
	case SlotPreferredDate:
		return s.PreferredDate
	case SlotPatientName:
		return s.PatientName
	case SlotPatientPhone:
		return s.PatientPhone
	}
	return ""
}

// Filled reports whether the slot holds a value.
func (s *DialogueState) Filled(name SlotName) bool {
	return s.Slot(name) != ""
}

func (s *DialogueState) setSlot(name SlotName, value string) {
	switch name {
	case SlotServiceType:
		s.ServiceType = ServiceType(value)
	case SlotLocation:
		s.Location = Location(value)
	case SlotPreferredDate:
		s.PreferredDate = value
	case SlotPatientName:
		s.PatientName = value
	case SlotPatientPhone:
		s.PatientPhone = value
	}
}

// NextUnfilled returns the first required slot for intent that is still
// empty, following SlotOrder.
func (s *DialogueState) NextUnfilled(intent Intent) (SlotName, bool) {
	for _, slot := range RequiredSlots(intent) {
		if !s.Filled(slot) {
			return slot, true
		}
	}
	return "", false
}

func canonical(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
