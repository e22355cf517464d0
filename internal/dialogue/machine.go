package dialogue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-voice-agent/internal/dates"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

var dialogueTracer = otel.Tracer("clinicvoice.internal.dialogue")

const (
	defaultMaxOffers  = 3
	defaultSearchDays = 1
	callLockStripes   = 64
)

// Config wires a Machine to its collaborators.
type Config struct {
	Store        SessionStore
	Extractor    Extractor
	Availability Availability
	Booker       Booker
	Observers    []TurnObserver
	Logger       *logging.Logger
	Now          func() time.Time

	// Location is the clinic time zone used for "today" and spoken times.
	Location *time.Location

	// MaxOffers caps how many appointments are read back to the caller.
	MaxOffers int

	// SearchDays is the width of the availability window starting at the
	// preferred date.
	SearchDays int
}

// Machine runs the scheduling conversation. It is safe for concurrent use;
// turns for the same call id are serialized.
type Machine struct {
	store        SessionStore
	extractor    Extractor
	availability Availability
	booker       Booker
	loc          *time.Location
	now          func() time.Time
	maxOffers    int
	searchDays   int
	observers    []TurnObserver
	logger       *logging.Logger

	locks [callLockStripes]sync.Mutex
}

// NewMachine constructs a Machine.
func NewMachine(cfg Config) *Machine {
	if cfg.Store == nil {
		panic("dialogue: session store required")
	}
	if cfg.Extractor == nil {
		panic("dialogue: extractor required")
	}
	if cfg.Availability == nil || cfg.Booker == nil {
		panic("dialogue: availability and booker required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxOffers <= 0 {
		cfg.MaxOffers = defaultMaxOffers
	}
	if cfg.SearchDays <= 0 {
		cfg.SearchDays = defaultSearchDays
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Machine{
		store:        cfg.Store,
		extractor:    cfg.Extractor,
		availability: cfg.Availability,
		booker:       cfg.Booker,
		loc:          cfg.Location,
		now:          cfg.Now,
		maxOffers:    cfg.MaxOffers,
		searchDays:   cfg.SearchDays,
		observers:    append([]TurnObserver(nil), cfg.Observers...),
		logger:       cfg.Logger,
	}
}

// AddObserver registers an observer. Call before serving traffic.
func (m *Machine) AddObserver(o TurnObserver) {
	if o != nil {
		m.observers = append(m.observers, o)
	}
}

// turn is the working copy of one call's state while a turn is processed.
// Nothing reaches the store until commit.
type turn struct {
	state        *DialogueState
	text         string
	today        time.Time
	merged       mergeResult
	outcome      TurnOutcome
	confirmation string
	ended        bool
}

// HandleTurn processes one caller utterance and returns what to say back.
// It never fails; internal errors become apologies and leave the stored
// state untouched.
func (m *Machine) HandleTurn(ctx context.Context, callID, text string) string {
	return m.run(ctx, "dialogue.turn", callID, text, func(ctx context.Context, rec *TurnRecord) string {
		return m.applyUtterance(ctx, rec, callID, text)
	})
}

// HandleDigits processes keypad input. Outside offer confirmation the digits
// are taken as the caller's phone number. The call must already have a
// session.
func (m *Machine) HandleDigits(ctx context.Context, callID, digits string) string {
	return m.run(ctx, "dialogue.digits", callID, digits, func(ctx context.Context, rec *TurnRecord) string {
		return m.applyDigits(ctx, rec, callID, digits)
	})
}

// Active reports whether the call still has a live session.
func (m *Machine) Active(ctx context.Context, callID string) bool {
	ok, err := m.store.Exists(ctx, callID)
	if err != nil {
		m.logger.Error("session lookup failed", "call_id", callID, "error", err)
		return false
	}
	return ok
}

// AwaitingSlot returns the slot the last response asked for, if any.
func (m *Machine) AwaitingSlot(ctx context.Context, callID string) (SlotName, bool) {
	state, err := m.store.Get(ctx, callID)
	if err != nil {
		return "", false
	}
	return state.Awaiting, state.Awaiting != ""
}

// Session returns a copy of the call's current state.
func (m *Machine) Session(ctx context.Context, callID string) (*DialogueState, error) {
	return m.store.Get(ctx, callID)
}

func (m *Machine) run(ctx context.Context, spanName, callID, text string, step func(context.Context, *TurnRecord) string) string {
	unlock := m.lockCall(callID)
	defer unlock()

	ctx, span := dialogueTracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("clinicvoice.call_id", callID))

	started := m.now()
	rec := TurnRecord{CallID: callID, Utterance: text, At: started}
	rec.Response = m.safeStep(ctx, &rec, step)
	rec.Latency = m.now().Sub(started)

	span.SetAttributes(
		attribute.String("clinicvoice.phase", string(rec.PhaseAfter)),
		attribute.String("clinicvoice.outcome", string(rec.Outcome)),
	)
	if rec.Outcome == OutcomeInternalError {
		span.SetStatus(codes.Error, "turn failed")
	}
	m.logger.Info("dialogue turn handled",
		"call_id", callID,
		"phase_before", rec.PhaseBefore,
		"phase_after", rec.PhaseAfter,
		"outcome", rec.Outcome,
		"awaiting", rec.Awaiting,
		"latency_ms", rec.Latency.Milliseconds(),
	)
	m.notify(ctx, rec)
	return rec.Response
}

func (m *Machine) safeStep(ctx context.Context, rec *TurnRecord, step func(context.Context, *TurnRecord) string) (resp string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("dialogue turn panicked", "call_id", rec.CallID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			rec.Outcome = OutcomeInternalError
			rec.PhaseAfter = rec.PhaseBefore
			rec.Ended = false
			resp = msgApology
		}
	}()
	return step(ctx, rec)
}

func (m *Machine) notify(ctx context.Context, rec TurnRecord) {
	for _, o := range m.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("turn observer panicked", "call_id", rec.CallID, "panic", fmt.Sprint(r))
				}
			}()
			o.ObserveTurn(ctx, rec)
		}()
	}
}

func (m *Machine) applyUtterance(ctx context.Context, rec *TurnRecord, callID, text string) string {
	current, err := m.store.GetOrCreate(ctx, callID)
	if err != nil {
		return m.fail(rec, "load session", err)
	}
	rec.PhaseBefore, rec.PhaseAfter = current.Phase, current.Phase
	rec.Intent, rec.Awaiting = current.Intent, current.Awaiting

	today := m.today()
	ext, err := m.extract(ctx, NewExtractionRequest(text, today, current.Awaiting))
	if err != nil {
		m.logger.Warn("extraction failed", "call_id", callID, "error", err)
		rec.Outcome = OutcomeExtractionFailed
		return msgExtractionFailed
	}
	if ext.RawText == "" {
		ext.RawText = text
	}

	t := &turn{state: current.Clone(), text: text, today: today}
	t.merged = merge(t.state, ext, today)
	return m.commit(ctx, rec, t, m.dispatch(ctx, t))
}

func (m *Machine) applyDigits(ctx context.Context, rec *TurnRecord, callID, digits string) string {
	current, err := m.store.Get(ctx, callID)
	if errors.Is(err, ErrSessionNotFound) {
		rec.Outcome = OutcomeSessionLost
		rec.Ended = true
		return msgSessionLost
	}
	if err != nil {
		return m.fail(rec, "load session", err)
	}
	rec.PhaseBefore, rec.PhaseAfter = current.Phase, current.Phase
	rec.Intent, rec.Awaiting = current.Intent, current.Awaiting

	t := &turn{state: current.Clone(), text: digits, today: m.today()}
	if current.Phase != PhaseConfirmingSelection {
		ext := &Extraction{
			Intent:       current.Intent,
			PatientPhone: digits,
			Corrections:  []SlotName{SlotPatientPhone},
			RawText:      digits,
		}
		ext.Sanitize()
		t.merged = merge(t.state, ext, t.today)
	}
	return m.commit(ctx, rec, t, m.dispatch(ctx, t))
}

func (m *Machine) extract(ctx context.Context, req ExtractionRequest) (*Extraction, error) {
	ext, err := m.extractor.Extract(ctx, req)
	if err != nil {
		return nil, err
	}
	if ext == nil {
		return nil, fmt.Errorf("%w: empty result", ErrExtractionFailed)
	}
	ext = ext.Clone()
	ext.Sanitize()
	return ext, nil
}

func (m *Machine) dispatch(ctx context.Context, t *turn) string {
	if len(t.merged.changed) > 0 && len(t.state.OfferedSlots) > 0 {
		m.logger.Info("correction invalidated offers", "call_id", t.state.CallID, "changed", t.merged.changed)
		t.state.OfferedSlots = nil
		t.state.Phase = PhaseCollectingSlots
	}

	switch t.state.Phase {
	case PhaseGreeting:
		return m.greet(ctx, t)
	case PhaseCollectingSlots, PhaseRescheduling, PhaseCanceling:
		return m.fillSlots(ctx, t)
	case PhaseConfirmingSelection:
		return m.confirmSelection(ctx, t)
	default:
		m.logger.Warn("unknown dialogue phase, restarting", "call_id", t.state.CallID, "phase", t.state.Phase)
		t.state.Phase = PhaseGreeting
		return m.greet(ctx, t)
	}
}

func (m *Machine) greet(ctx context.Context, t *turn) string {
	switch t.state.Intent {
	case IntentSchedule:
		t.state.Phase = PhaseCollectingSlots
	case IntentReschedule:
		t.state.Phase = PhaseRescheduling
	case IntentCancel:
		t.state.Phase = PhaseCanceling
	default:
		t.state.Awaiting = ""
		t.outcome = OutcomeChooseAction
		return msgChooseAction
	}
	return m.fillSlots(ctx, t)
}

// fillSlots asks for the first missing slot of the active intent or, once
// everything is known, moves the task forward.
func (m *Machine) fillSlots(ctx context.Context, t *turn) string {
	intent := t.state.ActiveIntent()
	next, missing := t.state.NextUnfilled(intent)

	if t.merged.dateRejected && Requires(intent, SlotPreferredDate) && (!missing || next == SlotPreferredDate) {
		return t.ask(SlotPreferredDate, msgInvalidDate)
	}
	if missing {
		if next == SlotPatientPhone && t.merged.phoneRejected {
			return t.ask(next, msgInvalidPhone)
		}
		if next == SlotPatientName && t.merged.nameWasDate {
			return t.ask(next, msgSpellName)
		}
		return t.ask(next, PromptFor(next))
	}

	t.state.Awaiting = ""
	switch intent {
	case IntentSchedule:
		return m.searchSlots(ctx, t)
	case IntentReschedule:
		t.outcome = OutcomeNotImplemented
		return msgRescheduleSoon
	case IntentCancel:
		t.outcome = OutcomeNotImplemented
		return msgCancelSoon
	default:
		t.state.Phase = PhaseGreeting
		t.outcome = OutcomeChooseAction
		return msgChooseAction
	}
}

// ask records the slot being prompted and returns the prompt.
func (t *turn) ask(slot SlotName, prompt string) string {
	if t.state.Awaiting == slot {
		t.outcome = OutcomeReprompted
	} else {
		t.outcome = OutcomePrompted
	}
	t.state.Awaiting = slot
	return prompt
}

func (m *Machine) searchSlots(ctx context.Context, t *turn) string {
	day, ok := dates.ParseISO(t.state.PreferredDate, m.loc)
	if !ok || day.Before(t.today) {
		// The stored day went stale, e.g. the call crossed midnight.
		t.state.PreferredDate = ""
		return t.ask(SlotPreferredDate, msgInvalidDate)
	}

	offers, err := m.availability.FindOffers(ctx, AvailabilityQuery{
		ServiceType: t.state.ServiceType,
		Location:    t.state.Location,
		From:        day,
		To:          day.AddDate(0, 0, m.searchDays),
	})
	if err != nil {
		m.logger.Error("availability query failed", "call_id", t.state.CallID, "error", err)
		t.outcome = OutcomeAvailabilityFailed
		return msgAvailabilityError
	}
	if len(offers) == 0 {
		// The reply invites another day; a plain answer replaces the date.
		t.state.Awaiting = SlotPreferredDate
		t.outcome = OutcomeNoAvailability
		return noAvailability(t.state.ServiceType, t.state.Location, day)
	}
	if len(offers) > m.maxOffers {
		offers = offers[:m.maxOffers]
	}
	t.state.OfferedSlots = append([]Offer(nil), offers...)
	t.state.Phase = PhaseConfirmingSelection
	t.outcome = OutcomeOffered
	return offersMessage(t.state.ServiceType, t.state.Location, t.state.OfferedSlots, m.loc)
}

func (m *Machine) confirmSelection(ctx context.Context, t *turn) string {
	if t.merged.dateRejected {
		// Offers stay open; a valid day next turn replaces them.
		t.state.Awaiting = SlotPreferredDate
		t.outcome = OutcomeReprompted
		return msgInvalidDate
	}
	offers := t.state.OfferedSlots
	if len(offers) == 0 {
		t.state.Phase = PhaseCollectingSlots
		return m.fillSlots(ctx, t)
	}

	choice, ok := firstInteger(t.text)
	if !ok {
		t.outcome = OutcomeReprompted
		return msgNoNumber
	}
	if choice < 1 || choice > len(offers) {
		t.outcome = OutcomeReprompted
		return chooseRange(len(offers))
	}

	offer := offers[choice-1]
	id, err := m.booker.Book(ctx, BookingRequest{
		CallID:       t.state.CallID,
		ServiceType:  t.state.ServiceType,
		Location:     t.state.Location,
		ProviderID:   offer.ProviderID,
		ProviderName: offer.ProviderName,
		Start:        offer.Start,
		Duration:     offer.Duration,
		PatientName:  t.state.PatientName,
		PatientPhone: t.state.PatientPhone,
	})
	if err != nil {
		m.logger.Error("booking failed", "call_id", t.state.CallID, "provider_id", offer.ProviderID, "error", err)
		t.outcome = OutcomeBookingFailed
		return msgBookingFailed
	}
	t.ended = true
	t.confirmation = id
	t.outcome = OutcomeBooked
	return bookedMessage(t.state.ServiceType, offer, m.loc)
}

// commit persists the working state, or removes it when the call is done.
func (m *Machine) commit(ctx context.Context, rec *TurnRecord, t *turn, resp string) string {
	rec.Outcome = t.outcome
	rec.Intent = t.state.Intent
	rec.Awaiting = t.state.Awaiting
	rec.ConfirmationID = t.confirmation

	if t.ended {
		if err := m.store.Remove(ctx, t.state.CallID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Error("failed to remove completed session", "call_id", t.state.CallID, "error", err)
		}
		rec.PhaseAfter = t.state.Phase
		rec.Ended = true
		return resp
	}

	t.state.UpdatedAt = m.now()
	if err := m.store.Save(ctx, t.state); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			rec.Outcome = OutcomeSessionLost
			rec.Ended = true
			return msgSessionLost
		}
		return m.fail(rec, "save session", err)
	}
	rec.PhaseAfter = t.state.Phase
	return resp
}

func (m *Machine) fail(rec *TurnRecord, op string, err error) string {
	m.logger.Error("dialogue turn failed", "call_id", rec.CallID, "op", op, "error", err)
	rec.Outcome = OutcomeInternalError
	return msgApology
}

func (m *Machine) today() time.Time {
	return dates.StartOfDay(m.now().In(m.loc))
}

func (m *Machine) lockCall(callID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(callID))
	mu := &m.locks[h.Sum32()%callLockStripes]
	mu.Lock()
	return mu.Unlock
}

var digitRun = regexp.MustCompile(`\d+`)

// firstInteger returns the first run of digits in text. Runs too long to
// parse come back as -1 so they fail range checks.
func firstInteger(text string) (int, bool) {
	run := digitRun.FindString(text)
	if run == "" {
		return 0, false
	}
	n, err := strconv.Atoi(run)
	if err != nil {
		return -1, true
	}
	return n, true
}
