package archive

// Category values for Labels.Category.
const (
	CategoryBooked            = "booked"
	CategoryNoAvailability    = "no_availability"
	CategoryUnsupportedIntent = "unsupported_intent"
	CategoryExtractionTrouble = "extraction_trouble"
	CategoryAbandoned         = "abandoned"
	CategoryHungUp            = "hung_up"
)

// Classify labels a finished call from its turn outcomes. Categories take
// precedence in this order: booked, extraction trouble, unsupported intent,
// no availability, then the end reason.
func Classify(turns []Turn, endReason string) Labels {
	labels := Labels{Category: CategoryHungUp}
	if endReason == EndReasonAbandoned {
		labels.Category = CategoryAbandoned
	}

	var noAvailability, notImplemented bool
	for _, t := range turns {
		if t.Intent != "" && t.Intent != "other" {
			labels.Intent = t.Intent
		}
		switch t.Outcome {
		case "reprompted":
			labels.Reprompts++
		case "extraction_failed":
			labels.ExtractionFailure = true
		case "availability_failed", "booking_failed", "session_lost", "internal_error":
			labels.BackendFailure = true
		case "no_availability":
			noAvailability = true
		case "not_implemented":
			notImplemented = true
		case "booked":
			labels.Booked = true
		}
	}

	switch {
	case labels.Booked:
		labels.Category = CategoryBooked
	case labels.ExtractionFailure:
		labels.Category = CategoryExtractionTrouble
	case notImplemented:
		labels.Category = CategoryUnsupportedIntent
	case noAvailability:
		labels.Category = CategoryNoAvailability
	}
	return labels
}
