package voice

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

// TurnRequest is the body of POST /api/turns. Digits, when set, are treated
// as keypad input instead of speech.
type TurnRequest struct {
	CallID string `json:"call_id"`
	Text   string `json:"text"`
	Digits string `json:"digits,omitempty"`
	From   string `json:"from,omitempty"`
}

// TurnResponse is what the agent said and where the call stands.
type TurnResponse struct {
	CallID       string            `json:"call_id"`
	Response     string            `json:"response"`
	Active       bool              `json:"active"`
	AwaitingSlot dialogue.SlotName `json:"awaiting_slot,omitempty"`
}

// SessionStatus is the body of GET /api/sessions/{callID}.
type SessionStatus struct {
	CallID       string            `json:"call_id"`
	Active       bool              `json:"active"`
	AwaitingSlot dialogue.SlotName `json:"awaiting_slot,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleTurnJSON runs one turn from a JSON body.
func (h *Handler) HandleTurnJSON(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "voice.api.turn")
	defer span.End()

	var req TurnRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	req.CallID = strings.TrimSpace(req.CallID)
	req.Text = strings.TrimSpace(req.Text)
	req.Digits = strings.TrimSpace(req.Digits)
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	span.SetAttributes(attribute.String("call_id", req.CallID))

	if h.calls != nil && req.From != "" {
		h.calls.NoteCaller(req.CallID, req.From)
	}

	var reply string
	if req.Digits != "" {
		reply = h.conv.HandleDigits(ctx, req.CallID, req.Digits)
	} else {
		reply = h.conv.HandleTurn(ctx, req.CallID, req.Text)
	}

	out := TurnResponse{CallID: req.CallID, Response: reply, Active: h.conv.Active(ctx, req.CallID)}
	if out.Active {
		out.AwaitingSlot, _ = h.conv.AwaitingSlot(ctx, req.CallID)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession reports whether a call still has dialogue state.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(chi.URLParam(r, "callID"))
	if callID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "call_id required"})
		return
	}
	out := SessionStatus{CallID: callID, Active: h.conv.Active(r.Context(), callID)}
	if out.Active {
		out.AwaitingSlot, _ = h.conv.AwaitingSlot(r.Context(), callID)
	}
	writeJSON(w, http.StatusOK, out)
}

func (req TurnRequest) validate() error {
	if req.CallID == "" {
		return errors.New("call_id required")
	}
	if req.Text == "" && req.Digits == "" {
		return errors.New("text or digits required")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
