package archive

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// End reasons recorded on a CallRecord.
const (
	EndReasonCompleted = "completed"
	EndReasonHangup    = "hangup"
	EndReasonAbandoned = "abandoned"
)

const defaultFlushTimeout = 10 * time.Second

type callBuffer struct {
	turns          []Turn
	caller         string
	confirmationID string
	startedAt      time.Time
	lastSeen       time.Time
}

// Recorder buffers turns per call and archives the transcript when the call
// ends. All methods are safe on a nil *Recorder.
type Recorder struct {
	store        *Store
	logger       *logging.Logger
	now          func() time.Time
	flushTimeout time.Duration

	mu    sync.Mutex
	calls map[string]*callBuffer
	wg    sync.WaitGroup
}

var _ dialogue.TurnObserver = (*Recorder)(nil)

// NewRecorder returns nil when the store is not enabled, which turns every
// method into a no-op.
func NewRecorder(store *Store, logger *logging.Logger) *Recorder {
	if !store.Enabled() {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		store:        store,
		logger:       logger,
		now:          time.Now,
		flushTimeout: defaultFlushTimeout,
		calls:        make(map[string]*callBuffer),
	}
}

// WithClock overrides the clock used for abandonment checks.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	if r != nil && now != nil {
		r.now = now
	}
	return r
}

// ObserveTurn implements dialogue.TurnObserver. A turn that ends the call
// triggers an asynchronous flush.
func (r *Recorder) ObserveTurn(ctx context.Context, rec dialogue.TurnRecord) {
	if r == nil {
		return
	}
	at := rec.At
	if at.IsZero() {
		at = r.now()
	}
	turn := Turn{
		Utterance:   rec.Utterance,
		Response:    rec.Response,
		PhaseBefore: string(rec.PhaseBefore),
		PhaseAfter:  string(rec.PhaseAfter),
		Intent:      string(rec.Intent),
		Awaiting:    string(rec.Awaiting),
		Outcome:     string(rec.Outcome),
		LatencyMS:   rec.Latency.Milliseconds(),
		At:          at,
	}

	r.mu.Lock()
	buf := r.bufferLocked(rec.CallID, at)
	buf.turns = append(buf.turns, turn)
	buf.lastSeen = at
	if rec.ConfirmationID != "" {
		buf.confirmationID = rec.ConfirmationID
	}
	if !rec.Ended {
		r.mu.Unlock()
		return
	}
	delete(r.calls, rec.CallID)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.flushTimeout)
		defer cancel()
		r.flush(flushCtx, rec.CallID, buf, EndReasonCompleted)
	}()
}

// NoteCaller remembers the caller's number so the archive can carry its hash.
func (r *Recorder) NoteCaller(callID, phone string) {
	if r == nil || phone == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bufferLocked(callID, r.now()).caller = phone
}

// Finish archives whatever was recorded for the call. It reports whether
// anything was buffered.
func (r *Recorder) Finish(ctx context.Context, callID, reason string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	buf, ok := r.calls[callID]
	delete(r.calls, callID)
	r.mu.Unlock()
	if !ok || len(buf.turns) == 0 {
		return false
	}
	r.flush(ctx, callID, buf, reason)
	return true
}

// Prune archives calls idle for longer than maxAge as abandoned. It
// satisfies the session evictor's Pruner hook.
func (r *Recorder) Prune(ctx context.Context, maxAge time.Duration) int {
	if r == nil {
		return 0
	}
	cutoff := r.now().Add(-maxAge)
	stale := make(map[string]*callBuffer)
	r.mu.Lock()
	for id, buf := range r.calls {
		if buf.lastSeen.Before(cutoff) {
			stale[id] = buf
			delete(r.calls, id)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(stale))
	for id := range stale {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	archived := 0
	for _, id := range ids {
		if len(stale[id].turns) == 0 {
			continue
		}
		r.flush(ctx, id, stale[id], EndReasonAbandoned)
		archived++
	}
	return archived
}

// Pending reports how many calls are buffered.
func (r *Recorder) Pending() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Wait blocks until asynchronous flushes finish. Call it on shutdown.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

func (r *Recorder) bufferLocked(callID string, at time.Time) *callBuffer {
	buf, ok := r.calls[callID]
	if !ok {
		buf = &callBuffer{startedAt: at, lastSeen: at}
		r.calls[callID] = buf
	}
	return buf
}

func (r *Recorder) flush(ctx context.Context, callID string, buf *callBuffer, reason string) {
	turns := make([]Turn, len(buf.turns))
	copy(turns, buf.turns)
	ScrubTurns(turns)

	ended := buf.lastSeen
	record := &CallRecord{
		Version:         "1.0",
		CallID:          callID,
		PhoneHash:       HashPhone(buf.caller),
		StartedAt:       buf.startedAt.UTC(),
		EndedAt:         ended.UTC(),
		DurationSeconds: int(ended.Sub(buf.startedAt).Seconds()),
		TurnCount:       len(turns),
		EndReason:       reason,
		ConfirmationID:  buf.confirmationID,
		Labels:          Classify(turns, reason),
		Turns:           turns,
	}
	if err := r.store.ArchiveCall(ctx, record); err != nil {
		r.logger.Error("transcript archive failed", "error", err, "call_id", callID)
	}
}
