package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

func TestTurnLog_LogTurn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewTurnLog(db, logging.Discard())
	at := time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO call_turns").
		WithArgs("turn-1", "CA1", "book cupping", "Which location?", "greeting", "collecting_slots",
			"schedule", "location", "prompted", nil, int64(120), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = log.LogTurn(context.Background(), TurnEntry{
		ID:          "turn-1",
		CallID:      "CA1",
		Utterance:   "book cupping",
		Response:    "Which location?",
		PhaseBefore: "greeting",
		PhaseAfter:  "collecting_slots",
		Intent:      "schedule",
		Awaiting:    "location",
		Outcome:     "prompted",
		LatencyMS:   120,
		CreatedAt:   at,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTurnLog_ObserveTurnLogsFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	log := NewTurnLog(db, logging.NewWithWriter(&buf, "info"))

	mock.ExpectExec("INSERT INTO call_turns").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO call_turns").
		WillReturnError(errors.New("connection refused"))

	rec := dialogue.TurnRecord{
		CallID:         "CA1",
		Utterance:      "2",
		Response:       "Perfect!",
		PhaseBefore:    dialogue.PhaseConfirmingSelection,
		PhaseAfter:     dialogue.PhaseConfirmingSelection,
		Outcome:        dialogue.OutcomeBooked,
		ConfirmationID: "APT-0A1B2C3D",
		Ended:          true,
		At:             time.Now(),
		Latency:        250 * time.Millisecond,
	}
	log.ObserveTurn(context.Background(), rec)
	assert.Empty(t, buf.String())

	log.ObserveTurn(context.Background(), rec)
	assert.Contains(t, buf.String(), "audit: failed to record turn")
	assert.Contains(t, buf.String(), `"call_id":"CA1"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTurnLog_ListTurns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewTurnLog(db, logging.Discard())
	at := time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "call_id", "utterance", "response", "phase_before", "phase_after",
		"intent", "awaiting", "outcome", "confirmation_id", "latency_ms", "created_at",
	}).
		AddRow("t1", "CA1", "hello", "What would you like to do?", "greeting", "greeting", "other", nil, "choose_action", nil, int64(80), at).
		AddRow("t2", "CA1", "book cupping", "Which location?", "greeting", "collecting_slots", "schedule", "location", "prompted", nil, int64(95), at.Add(time.Second))

	mock.ExpectQuery(`SELECT (.+) FROM call_turns WHERE 1 = 1 AND call_id = \$1 ORDER BY created_at ASC LIMIT 50`).
		WithArgs("CA1").
		WillReturnRows(rows)

	entries, err := log.ListTurns(context.Background(), TurnFilter{CallID: "CA1", Limit: 50})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "", entries[0].Awaiting)
	assert.Equal(t, "location", entries[1].Awaiting)
	assert.Equal(t, int64(95), entries[1].LatencyMS)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTurnLog_ListTurnsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewTurnLog(db, logging.Discard())
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	mock.ExpectQuery(`AND outcome = \$1 AND created_at >= \$2 AND created_at <= \$3 ORDER BY created_at ASC LIMIT 10 OFFSET 20`).
		WithArgs("booking_failed", start, end).
		WillReturnError(errors.New("timeout"))

	_, err = log.ListTurns(context.Background(), TurnFilter{Outcome: "booking_failed", StartTime: start, EndTime: end, Limit: 10, Offset: 20})
	assert.ErrorContains(t, err, "failed to query turns")
	assert.NoError(t, mock.ExpectationsWereMet())
}
