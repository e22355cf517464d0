package archive

import "time"

// CallRecord is the transcript of one call as archived to S3.
type CallRecord struct {
	Version         string    `json:"version"` // "1.0"
	CallID          string    `json:"call_id"`
	PhoneHash       string    `json:"phone_hash,omitempty"` // sha256 of the patient phone
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int       `json:"duration_seconds"`
	TurnCount       int       `json:"turn_count"`
	EndReason       string    `json:"end_reason"` // completed|hangup|abandoned
	ConfirmationID  string    `json:"confirmation_id,omitempty"`
	Labels          Labels    `json:"labels"`
	Turns           []Turn    `json:"turns"`
}

// Labels summarise how the call went for later review.
type Labels struct {
	Category          string `json:"category"` // booked|no_availability|unsupported_intent|extraction_trouble|abandoned|hung_up
	Intent            string `json:"intent,omitempty"`
	Reprompts         int    `json:"reprompts"`
	ExtractionFailure bool   `json:"extraction_failure"`
	BackendFailure    bool   `json:"backend_failure"`
	Booked            bool   `json:"booked"`
}

// Turn is one caller utterance and the agent's reply.
type Turn struct {
	Utterance   string    `json:"utterance"`
	Response    string    `json:"response"`
	PhaseBefore string    `json:"phase_before"`
	PhaseAfter  string    `json:"phase_after"`
	Intent      string    `json:"intent,omitempty"`
	Awaiting    string    `json:"awaiting,omitempty"`
	Outcome     string    `json:"outcome"`
	LatencyMS   int64     `json:"latency_ms"`
	At          time.Time `json:"at"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	CallID     string `json:"call_id"`
	S3Key      string `json:"s3_key"`
	Category   string `json:"category"`
	EndReason  string `json:"end_reason"`
	Booked     bool   `json:"booked"`
	ArchivedAt string `json:"archived_at"`
	TurnCount  int    `json:"turn_count"`
}
