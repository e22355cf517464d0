package dialogue

import (
	"fmt"
	"strings"
	"time"
)

const (
	msgChooseAction      = "I can help you with scheduling, rescheduling, or canceling appointments. What would you like to do?"
	msgExtractionFailed  = "I'm sorry, I'm having trouble understanding right now. Could you please say that again?"
	msgAvailabilityError = "I'm sorry, I'm having trouble checking our availability right now. Please say that again in a moment and I'll check once more."
	msgInvalidDate       = "I'm sorry, I can only book appointments from today onward. What day would you like to come in?"
	msgSpellName         = "I'm sorry, I didn't quite catch your name. Could you say your full name again, or spell it for me?"
	msgInvalidPhone      = "I didn't catch a ten digit phone number. Please say it again or enter it on your keypad followed by the pound key."
	msgNoNumber          = "I didn't catch which appointment time you'd like. Please say the number of your preferred time."
	msgBookingFailed     = "I'm sorry, I wasn't able to schedule that appointment. Please say the number of another time or try the same one again."
	msgRescheduleSoon    = "I understand you'd like to reschedule your appointment. This feature is coming soon! Please call our office directly to reschedule."
	msgCancelSoon        = "I understand you'd like to cancel your appointment. This feature is coming soon! Please call our office directly to cancel."
	msgSessionLost       = "I'm sorry, I lost track of your call. Please start over."
	msgApology           = "I'm sorry, something went wrong on our end. Could you please say that again?"
)

var slotPrompts = map[SlotName]string{
	SlotServiceType:   "What type of appointment would you like? We offer chiropractic, acupuncture, cupping, and consultations.",
	SlotLocation:      "Which location would you prefer, Highland Park or Arlington Heights?",
	SlotPreferredDate: "What day would you like to come in?",
	SlotPatientName:   "May I have your full name, please?",
	SlotPatientPhone:  "What's the best phone number to reach you? You can say it or enter it on your keypad followed by the pound key.",
}

// PromptFor returns the question asked when slot is the next one missing.
func PromptFor(slot SlotName) string {
	return slotPrompts[slot]
}

func chooseRange(n int) string {
	return fmt.Sprintf("Please choose a number between 1 and %d.", n)
}

func spokenDay(t time.Time) string {
	return t.Format("Monday, January 2")
}

func spokenTime(t time.Time) string {
	return t.Format("3:04 PM")
}

func noAvailability(svc ServiceType, loc Location, day time.Time) string {
	return fmt.Sprintf("I'm sorry, but I don't see any available %s appointments at our %s location on %s. If another day works, just tell me which one instead.",
		svc, loc.Spoken(), spokenDay(day))
}

func offersMessage(svc ServiceType, loc Location, offers []Offer, tz *time.Location) string {
	parts := make([]string, 0, len(offers))
	for i, o := range offers {
		start := o.Start.In(tz)
		parts = append(parts, fmt.Sprintf("%d. %s at %s with %s", i+1, spokenDay(start), spokenTime(start), o.ProviderName))
	}
	return fmt.Sprintf("Great! I found some available %s appointments at our %s location. Here are your options: %s. Which one would you like? Please say the number.",
		svc, loc.Spoken(), strings.Join(parts, ". "))
}

func bookedMessage(svc ServiceType, offer Offer, tz *time.Location) string {
	start := offer.Start.In(tz)
	return fmt.Sprintf("Perfect! I've scheduled your %s appointment with %s on %s at %s at our %s location. You'll receive a confirmation shortly. Thank you for calling!",
		svc, offer.ProviderName, spokenDay(start), spokenTime(start), offer.Location.Spoken())
}
