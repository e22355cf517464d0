// Package voice adapts the dialogue machine to Twilio's TwiML webhooks and
// exposes a JSON turn API for simulators and tests.
package voice

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-voice-agent/internal/archive"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

var voiceTracer = otel.Tracer("clinicvoice.internal.voice")

const (
	msgNoInput        = "I didn't hear anything. Please call back and let me know how I can help you."
	msgNoPhone        = "I didn't receive your phone number. Please call back and try again."
	msgRepeat         = "I didn't catch that. Could you please repeat what you'd like to do?"
	msgRepeatPhone    = "I didn't receive your phone number. Please say it or enter it on your keypad followed by the pound key."
	defaultClinicName = "our clinic"
)

// Conversation is the slice of the dialogue machine the transport needs.
type Conversation interface {
	HandleTurn(ctx context.Context, callID, text string) string
	HandleDigits(ctx context.Context, callID, digits string) string
	Active(ctx context.Context, callID string) bool
	AwaitingSlot(ctx context.Context, callID string) (dialogue.SlotName, bool)
}

// CallTracker follows a call from first webhook to hangup. The transcript
// recorder implements it.
type CallTracker interface {
	NoteCaller(callID, phone string)
	Finish(ctx context.Context, callID, reason string) bool
}

// SessionCloser drops a call's session once Twilio reports the call over.
type SessionCloser interface {
	Remove(ctx context.Context, callID string) error
}

// WebhookObserver counts webhook outcomes.
type WebhookObserver interface {
	ObserveWebhook(route, status string)
}

// Config wires a Handler.
type Config struct {
	Conversation Conversation
	Calls        CallTracker
	Sessions     SessionCloser
	Metrics      WebhookObserver
	Logger       *logging.Logger

	ClinicName string
	// AuthToken enables X-Twilio-Signature validation when set.
	AuthToken string
	// PublicBaseURL is the externally visible origin Twilio posts to.
	PublicBaseURL string
	// Voice is the optional Twilio <Say> voice, e.g. "Polly.Joanna".
	Voice string
}

// Handler serves the Twilio voice webhooks and the JSON turn API.
type Handler struct {
	conv       Conversation
	calls      CallTracker
	sessions   SessionCloser
	metrics    WebhookObserver
	logger     *logging.Logger
	clinicName string
	authToken  string
	baseURL    string
	voice      string
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Conversation == nil {
		panic("voice: conversation required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	name := strings.TrimSpace(cfg.ClinicName)
	if name == "" {
		name = defaultClinicName
	}
	return &Handler{
		conv:       cfg.Conversation,
		calls:      cfg.Calls,
		sessions:   cfg.Sessions,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		clinicName: name,
		authToken:  cfg.AuthToken,
		baseURL:    cfg.PublicBaseURL,
		voice:      cfg.Voice,
	}
}

// TwilioRoutes mounts the TwiML webhooks (mount under /voice).
func (h *Handler) TwilioRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.verifySignature)
		r.Post("/", h.HandleIncoming)
		r.Post("/handle", h.HandleSpeech)
		r.Post("/handle_phone", h.HandlePhone)
		r.Post("/status", h.HandleStatus)
	})
}

// APIRoutes mounts the JSON endpoints (mount under /api).
func (h *Handler) APIRoutes(r chi.Router) {
	r.Post("/turns", h.HandleTurnJSON)
	r.Get("/sessions/{callID}", h.GetSession)
}

func (h *Handler) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !ValidateTwilioSignature(r, h.authToken, publicURL(r, h.baseURL)) {
			h.logger.Warn("voice: invalid twilio signature", "path", r.URL.Path)
			h.observe(routeName(r.URL.Path), "forbidden")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleIncoming answers a new call with the greeting.
func (h *Handler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	_, span := h.startSpan(r, "voice.twilio.incoming")
	defer span.End()
	if !h.parseForm(w, r, "incoming") {
		return
	}
	callID := r.PostFormValue("CallSid")
	if h.calls != nil && callID != "" {
		h.calls.NoteCaller(callID, r.PostFormValue("From"))
	}
	h.logger.WithCall(callID).Info("voice: incoming call")

	greeting := "Hello! Thank you for calling " + h.clinicName + ". How can I help you today?"
	resp := &twimlResponse{}
	resp.gather(h.speechGather(greeting)).say(h.voice, msgNoInput).hangup()
	h.respond(w, "incoming", resp)
}

// HandleSpeech feeds a speech result to the machine.
func (h *Handler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "voice.twilio.handle")
	defer span.End()
	if !h.parseForm(w, r, "handle") {
		return
	}
	callID := r.PostFormValue("CallSid")
	speech := strings.TrimSpace(r.PostFormValue("SpeechResult"))
	span.SetAttributes(attribute.String("call_id", callID))

	if speech == "" {
		resp := &twimlResponse{}
		resp.gather(h.speechGather(msgRepeat)).say(h.voice, msgNoInput).hangup()
		h.respond(w, "handle", resp)
		return
	}

	h.logger.WithCall(callID).Debug("voice: speech received", "chars", len(speech))
	reply := h.conv.HandleTurn(ctx, callID, speech)
	h.respond(w, "handle", h.continuation(ctx, callID, reply))
}

// HandlePhone takes keypad digits, or speech when the caller talks instead.
func (h *Handler) HandlePhone(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "voice.twilio.handle_phone")
	defer span.End()
	if !h.parseForm(w, r, "handle_phone") {
		return
	}
	callID := r.PostFormValue("CallSid")
	digits := strings.TrimSpace(r.PostFormValue("Digits"))
	speech := strings.TrimSpace(r.PostFormValue("SpeechResult"))
	span.SetAttributes(attribute.String("call_id", callID))

	var reply string
	switch {
	case digits != "":
		reply = h.conv.HandleDigits(ctx, callID, digits)
	case speech != "":
		reply = h.conv.HandleTurn(ctx, callID, speech)
	default:
		resp := &twimlResponse{}
		resp.gather(h.phoneGather(msgRepeatPhone)).say(h.voice, msgNoPhone).hangup()
		h.respond(w, "handle_phone", resp)
		return
	}
	h.respond(w, "handle_phone", h.continuation(ctx, callID, reply))
}

// terminalStatuses are Twilio CallStatus values after which no more
// webhooks arrive for the call.
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// HandleStatus processes Twilio call status callbacks.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "voice.twilio.status")
	defer span.End()
	if !h.parseForm(w, r, "status") {
		return
	}
	callID := r.PostFormValue("CallSid")
	status := strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus")))
	span.SetAttributes(attribute.String("call_id", callID), attribute.String("call_status", status))
	log := h.logger.WithCall(callID)

	if callID != "" && terminalStatuses[status] {
		if h.calls != nil && h.calls.Finish(ctx, callID, hangupReason(status)) {
			log.Info("voice: transcript archived on hangup", "call_status", status)
		}
		if h.sessions != nil {
			if err := h.sessions.Remove(ctx, callID); err != nil {
				log.Error("voice: failed to drop session", "error", err)
			}
		}
	}
	h.observe("status", "ok")
	w.WriteHeader(http.StatusNoContent)
}

// continuation decides what follows the spoken reply: another speech
// gather, a keypad gather for the phone number, or a hangup once the
// session is gone.
func (h *Handler) continuation(ctx context.Context, callID, reply string) *twimlResponse {
	resp := &twimlResponse{}
	if !h.conv.Active(ctx, callID) {
		resp.say(h.voice, reply).hangup()
		if h.calls != nil {
			h.calls.Finish(ctx, callID, archive.EndReasonCompleted)
		}
		return resp
	}
	if slot, ok := h.conv.AwaitingSlot(ctx, callID); ok && slot == dialogue.SlotPatientPhone {
		resp.gather(h.phoneGather(reply)).say(h.voice, msgNoPhone).hangup()
		return resp
	}
	resp.gather(h.speechGather(reply)).say(h.voice, msgNoInput).hangup()
	return resp
}

func (h *Handler) speechGather(prompt string) gather {
	return gather{
		Input:         "speech",
		Action:        "/voice/handle",
		Method:        http.MethodPost,
		SpeechTimeout: "auto",
		Language:      "en-US",
		Say:           h.sayPtr(prompt),
	}
}

func (h *Handler) phoneGather(prompt string) gather {
	return gather{
		Input:       "dtmf speech",
		Action:      "/voice/handle_phone",
		Method:      http.MethodPost,
		Timeout:     10,
		FinishOnKey: "#",
		Language:    "en-US",
		Say:         h.sayPtr(prompt),
	}
}

func (h *Handler) sayPtr(text string) *say {
	if text == "" {
		return nil
	}
	return &say{Voice: h.voice, Text: text}
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request, route string) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		h.logger.Warn("voice: bad webhook form", "route", route, "error", err)
		h.observe(route, "bad_request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, route string, resp *twimlResponse) {
	if err := writeTwiML(w, resp); err != nil {
		h.logger.Error("voice: failed to write twiml", "route", route, "error", err)
		h.observe(route, "write_error")
		return
	}
	h.observe(route, "ok")
}

func (h *Handler) observe(route, status string) {
	if h.metrics != nil {
		h.metrics.ObserveWebhook(route, status)
	}
}

func (h *Handler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	return voiceTracer.Start(r.Context(), name, trace.WithSpanKind(trace.SpanKindServer))
}

func hangupReason(status string) string {
	if status == "completed" {
		return archive.EndReasonHangup
	}
	return archive.EndReasonAbandoned
}

func routeName(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if path == "voice" || path == "" {
		return "incoming"
	}
	return path
}
