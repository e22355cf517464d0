// Package audit keeps an append-only record of every dialogue turn.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// TurnEntry is one row of the call_turns table.
type TurnEntry struct {
	ID             string    `json:"id"`
	CallID         string    `json:"call_id"`
	Utterance      string    `json:"utterance,omitempty"`
	Response       string    `json:"response"`
	PhaseBefore    string    `json:"phase_before"`
	PhaseAfter     string    `json:"phase_after"`
	Intent         string    `json:"intent,omitempty"`
	Awaiting       string    `json:"awaiting,omitempty"`
	Outcome        string    `json:"outcome"`
	ConfirmationID string    `json:"confirmation_id,omitempty"`
	LatencyMS      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// TurnFilter narrows ListTurns.
type TurnFilter struct {
	CallID    string
	Outcome   string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// TurnLog writes turns to Postgres through database/sql.
type TurnLog struct {
	db     *sql.DB
	logger *logging.Logger
}

var _ dialogue.TurnObserver = (*TurnLog)(nil)

func NewTurnLog(db *sql.DB, logger *logging.Logger) *TurnLog {
	if logger == nil {
		logger = logging.Default()
	}
	return &TurnLog{db: db, logger: logger}
}

// ObserveTurn implements dialogue.TurnObserver. Write failures are logged.
func (l *TurnLog) ObserveTurn(ctx context.Context, rec dialogue.TurnRecord) {
	entry := TurnEntry{
		CallID:         rec.CallID,
		Utterance:      rec.Utterance,
		Response:       rec.Response,
		PhaseBefore:    string(rec.PhaseBefore),
		PhaseAfter:     string(rec.PhaseAfter),
		Intent:         string(rec.Intent),
		Awaiting:       string(rec.Awaiting),
		Outcome:        string(rec.Outcome),
		ConfirmationID: rec.ConfirmationID,
		LatencyMS:      rec.Latency.Milliseconds(),
		CreatedAt:      rec.At,
	}
	if err := l.LogTurn(ctx, entry); err != nil {
		l.logger.Error("audit: failed to record turn", "error", err, "call_id", rec.CallID)
	}
}

// LogTurn inserts one turn.
func (l *TurnLog) LogTurn(ctx context.Context, entry TurnEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO call_turns (
			id, call_id, utterance, response, phase_before, phase_after,
			intent, awaiting, outcome, confirmation_id, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := l.db.ExecContext(ctx, query,
		entry.ID,
		entry.CallID,
		nullString(entry.Utterance),
		entry.Response,
		entry.PhaseBefore,
		entry.PhaseAfter,
		nullString(entry.Intent),
		nullString(entry.Awaiting),
		entry.Outcome,
		nullString(entry.ConfirmationID),
		entry.LatencyMS,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: failed to insert turn: %w", err)
	}
	return nil
}

// ListTurns returns turns matching the filter, oldest first.
func (l *TurnLog) ListTurns(ctx context.Context, filter TurnFilter) ([]TurnEntry, error) {
	query := `
		SELECT id, call_id, utterance, response, phase_before, phase_after,
			   intent, awaiting, outcome, confirmation_id, latency_ms, created_at
		FROM call_turns
		WHERE 1 = 1
	`
	var args []any
	argIdx := 1

	if filter.CallID != "" {
		query += fmt.Sprintf(" AND call_id = $%d", argIdx)
		args = append(args, filter.CallID)
		argIdx++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(" AND outcome = $%d", argIdx)
		args = append(args, filter.Outcome)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime.UTC())
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime.UTC())
	}

	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query turns: %w", err)
	}
	defer rows.Close()

	var entries []TurnEntry
	for rows.Next() {
		var e TurnEntry
		var utterance, intent, awaiting, confirmation sql.NullString
		if err := rows.Scan(
			&e.ID, &e.CallID, &utterance, &e.Response, &e.PhaseBefore, &e.PhaseAfter,
			&intent, &awaiting, &e.Outcome, &confirmation, &e.LatencyMS, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: failed to scan turn: %w", err)
		}
		e.Utterance = utterance.String
		e.Intent = intent.String
		e.Awaiting = awaiting.String
		e.ConfirmationID = confirmation.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read turns: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
