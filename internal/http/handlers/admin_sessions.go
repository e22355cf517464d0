package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-voice-agent/internal/audit"
	"github.com/wolfman30/clinic-voice-agent/internal/calendar"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/internal/http/middleware"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

const (
	defaultEvictAge   = 24 * time.Hour
	minEvictAge       = time.Minute
	defaultTurnsLimit = 200
)

type adminSessionStore interface {
	Get(ctx context.Context, callID string) (*dialogue.DialogueState, error)
	Remove(ctx context.Context, callID string) error
}

type adminSweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

type adminTurnLister interface {
	ListTurns(ctx context.Context, filter audit.TurnFilter) ([]audit.TurnEntry, error)
}

type adminAppointmentLookup interface {
	Appointment(ctx context.Context, id string) (calendar.Appointment, error)
}

// AdminSessionsConfig wires the operator endpoints. Turns and Appointments
// are optional; their routes answer 503 when unset.
type AdminSessionsConfig struct {
	Sessions     adminSessionStore
	Sweeper      adminSweeper
	Turns        adminTurnLister
	Appointments adminAppointmentLookup
	Logger       *logging.Logger
}

// AdminSessionsHandler lets operators inspect and clear call state.
type AdminSessionsHandler struct {
	sessions     adminSessionStore
	sweeper      adminSweeper
	turns        adminTurnLister
	appointments adminAppointmentLookup
	logger       *logging.Logger
}

func NewAdminSessionsHandler(cfg AdminSessionsConfig) *AdminSessionsHandler {
	if cfg.Sessions == nil {
		panic("handlers: session store required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminSessionsHandler{
		sessions:     cfg.Sessions,
		sweeper:      cfg.Sweeper,
		turns:        cfg.Turns,
		appointments: cfg.Appointments,
		logger:       cfg.Logger,
	}
}

// Routes mounts the handler (mount under /admin).
func (h *AdminSessionsHandler) Routes(r chi.Router) {
	r.Get("/sessions/{callID}", h.GetSession)
	r.Delete("/sessions/{callID}", h.DeleteSession)
	r.Post("/sessions/evict", h.Evict)
	r.Get("/calls/{callID}/turns", h.ListTurns)
	r.Get("/appointments/{appointmentID}", h.GetAppointment)
}

// GetSession returns the full dialogue state of a live call.
func (h *AdminSessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(chi.URLParam(r, "callID"))
	state, err := h.sessions.Get(r.Context(), callID)
	if errors.Is(err, dialogue.ErrSessionNotFound) {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("admin: failed to load session", "call_id", callID, "error", err)
		jsonError(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// DeleteSession drops a call's state, e.g. a stuck test call.
func (h *AdminSessionsHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(chi.URLParam(r, "callID"))
	// Stores treat removing an unknown call as a no-op, so look first.
	if _, err := h.sessions.Get(r.Context(), callID); errors.Is(err, dialogue.ErrSessionNotFound) {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	if err := h.sessions.Remove(r.Context(), callID); err != nil {
		h.logger.Error("admin: failed to remove session", "call_id", callID, "error", err)
		jsonError(w, "failed to remove session", http.StatusInternalServerError)
		return
	}
	h.logger.Info("admin: session removed", "call_id", callID, "admin", middleware.AdminSubject(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// Evict runs an eviction sweep now. ?max_age=6h overrides the cutoff.
func (h *AdminSessionsHandler) Evict(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		jsonError(w, "eviction not configured", http.StatusServiceUnavailable)
		return
	}
	maxAge := defaultEvictAge
	if raw := strings.TrimSpace(r.URL.Query().Get("max_age")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < minEvictAge {
			jsonError(w, "max_age must be a duration of at least 1m", http.StatusBadRequest)
			return
		}
		maxAge = parsed
	}
	n, err := h.sweeper.Sweep(r.Context(), maxAge)
	if err != nil {
		h.logger.Error("admin: eviction sweep failed", "error", err, "evicted", n)
		jsonError(w, "eviction failed", http.StatusInternalServerError)
		return
	}
	h.logger.Info("admin: eviction sweep", "evicted", n, "max_age", maxAge.String(), "admin", middleware.AdminSubject(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"evicted": n,
		"max_age": maxAge.String(),
	})
}

// ListTurns returns the audit trail of one call.
func (h *AdminSessionsHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	if h.turns == nil {
		jsonError(w, "turn log not configured", http.StatusServiceUnavailable)
		return
	}
	limit := defaultTurnsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	callID := strings.TrimSpace(chi.URLParam(r, "callID"))
	entries, err := h.turns.ListTurns(r.Context(), audit.TurnFilter{CallID: callID, Limit: limit})
	if err != nil {
		h.logger.Error("admin: failed to list turns", "call_id", callID, "error", err)
		jsonError(w, "failed to list turns", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.TurnEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"call_id": callID,
		"turns":   entries,
	})
}

// GetAppointment looks up a booking by confirmation id.
func (h *AdminSessionsHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	if h.appointments == nil {
		jsonError(w, "appointments not configured", http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "appointmentID")
	appt, err := h.appointments.Appointment(r.Context(), id)
	if errors.Is(err, calendar.ErrNotFound) {
		jsonError(w, "appointment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("admin: failed to load appointment", "appointment_id", id, "error", err)
		jsonError(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
