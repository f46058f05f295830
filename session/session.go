// Package session runs one supplier bill synchronization against the sync
// server and tracks its progress.
//
// A Session opens the event stream, decodes frames in arrival order, routes
// them to typed events and folds progress into an Aggregator. Observers
// receive read-only snapshots through Subscribe, delivered in order by a
// single dispatcher goroutine. The terminal outcome is read with Wait.
//
// State machine:
//
//	idle -> running -> completed | cancelled | failed
//
// The first transition out of running wins; terminal states absorb every
// later frame, error or cancel request.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/billsync/iox"
	"github.com/pithecene-io/billsync/log"
	"github.com/pithecene-io/billsync/metrics"
	"github.com/pithecene-io/billsync/sse"
	"github.com/pithecene-io/billsync/types"
)

// UnexpectedEndMessage is the failure message for a stream that closed
// before a terminal frame.
const UnexpectedEndMessage = "stream ended unexpectedly"

var (
	// ErrAlreadyStarted is returned by Start on a session that is not idle.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrNotStarted is returned by Wait on a session that was never started.
	ErrNotStarted = errors.New("session not started")
)

// Transport is the server side of a sync.
type Transport interface {
	// OpenStream starts the sync and returns the event-stream body.
	// Cancelling ctx must unblock reads from the body.
	OpenStream(ctx context.Context, propertyID, syncID string) (io.ReadCloser, error)
	// CancelSync asks the server to stop the sync. The response body is ignored.
	CancelSync(ctx context.Context, propertyID, syncID string) error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithCollector sets the metrics collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(s *Session) { s.collector = collector }
}

// WithClock overrides the time source used for StartedAt and EndedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithCancelTimeout bounds the server cancel request.
func WithCancelTimeout(d time.Duration) Option {
	return func(s *Session) { s.cancelTimeout = d }
}

// WithDiagnosticHandler receives frame-level problems such as undecodable
// payloads. The handler runs on the read loop goroutine and must not block.
func WithDiagnosticHandler(fn func(types.Diagnostic)) Option {
	return func(s *Session) { s.onDiagnostic = fn }
}

// NewSyncID returns a fresh correlation id for a sync run.
func NewSyncID() string {
	return uuid.NewString()
}

type subscriber struct {
	id int
	fn func(types.Snapshot)
}

// Session is one synchronization run. It is single-use.
type Session struct {
	meta          types.SyncMeta
	transport     Transport
	logger        *log.Logger
	collector     *metrics.Collector
	now           func() time.Time
	cancelTimeout time.Duration
	onDiagnostic  func(types.Diagnostic)

	mu              sync.Mutex
	cond            *sync.Cond
	state           types.SessionState
	message         string
	startedAt       time.Time
	endedAt         time.Time
	agg             *Aggregator
	seq             int64
	decodeErrors    int64
	unknownEvents   int64
	cancelRequested bool
	ctrl            *CancellationController

	subs    []subscriber
	nextSub int
	queue   []types.Snapshot
	closed  bool // no further snapshots will be queued

	done   chan struct{}
	result *types.SyncResult
}

// New creates an idle session.
func New(meta types.SyncMeta, transport Transport, opts ...Option) *Session {
	s := &Session{
		meta:          meta,
		transport:     transport,
		now:           time.Now,
		cancelTimeout: DefaultCancelTimeout,
		state:         types.StateIdle,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewNop()
	}
	s.cond = sync.NewCond(&s.mu)
	s.agg = NewAggregator(s.logger, s.collector)
	return s
}

// Meta returns the session identity.
func (s *Session) Meta() types.SyncMeta {
	return s.meta
}

// State returns the current state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current progress view.
func (s *Session) Snapshot() types.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive every snapshot emitted after this call,
// in emission order. Each call receives its own copy. fn may call Cancel.
// The returned function removes the subscription.
func (s *Session) Subscribe(fn func(types.Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Start begins the sync. It returns once the read loop is running; the
// stream is opened on that goroutine, so a failed open surfaces as a
// failed session rather than an error here.
//
// Cancelling ctx cancels the session as if Cancel had been called.
func (s *Session) Start(ctx context.Context) error {
	if err := s.meta.Validate(); err != nil {
		return fmt.Errorf("invalid sync: %w", err)
	}

	s.mu.Lock()
	if s.state != types.StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	streamCtx, abort := context.WithCancel(ctx)
	propertyID, syncID := s.meta.PropertyID, s.meta.SyncID
	s.ctrl = NewCancellationController(
		abort,
		func(ctx context.Context) error {
			return s.transport.CancelSync(ctx, propertyID, syncID)
		},
		s.cancelTimeout,
		s.logger,
		s.collector,
	)
	s.state = types.StateRunning
	s.startedAt = s.now()
	s.collector.IncSyncStarted()
	s.emitLocked()
	s.mu.Unlock()

	s.logger.Info("sync started", nil)

	loopDone := make(chan struct{})
	dispatchDone := make(chan struct{})
	stop := context.AfterFunc(ctx, s.Cancel)

	go func() {
		defer close(loopDone)
		defer stop()
		defer abort()
		s.readLoop(streamCtx)
	}()
	go func() {
		defer close(dispatchDone)
		s.dispatch()
	}()
	go func() {
		<-loopDone
		<-dispatchDone
		s.mu.Lock()
		requested := s.cancelRequested
		s.mu.Unlock()
		if requested {
			<-s.ctrl.Done()
		}
		close(s.done)
	}()
	return nil
}

// Cancel stops a running session. The session becomes cancelled at once,
// in-flight suppliers are marked with an error, the stream read is aborted
// and the server is notified in the background. Cancel returns without
// waiting on the network. It does nothing on an idle or finished session.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != types.StateRunning {
		s.mu.Unlock()
		return
	}
	s.cancelRequested = true
	s.agg.MarkCancelled()
	s.finishLocked(types.StateCancelled, "")
	ctrl := s.ctrl
	s.mu.Unlock()

	ctrl.Cancel()
}

// Done is closed once the session has finished, every snapshot has been
// delivered and any server cancel request has completed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session is done and returns its result.
// A pending server cancel request is awaited, bounded by the cancel timeout.
func (s *Session) Wait(ctx context.Context) (*types.SyncResult, error) {
	if s.State() == types.StateIdle {
		return nil, ErrNotStarted
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result := *s.result
	result.Snapshot = s.result.Snapshot.Clone()
	return &result, nil
}

// Run starts the session and waits for its result.
func (s *Session) Run(ctx context.Context) (*types.SyncResult, error) {
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	// Wait is bounded by the session itself; ctx cancellation cancels it
	return s.Wait(context.WithoutCancel(ctx))
}

// readLoop consumes the stream until a terminal frame or a fatal error.
func (s *Session) readLoop(ctx context.Context) {
	body, err := s.transport.OpenStream(ctx, s.meta.PropertyID, s.meta.SyncID)
	if err != nil {
		s.streamFailed(ctx, fmt.Sprintf("failed to start sync: %v", err), err)
		return
	}
	defer iox.DiscardClose(body)

	reader := sse.NewFrameReader(body)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			switch {
			case sse.IsDecodeError(err):
				s.frameDecodeFailed(err)
				continue
			case errors.Is(err, io.EOF), isPartial(err):
				s.streamFailed(ctx, UnexpectedEndMessage, err)
			default:
				s.streamFailed(ctx, fmt.Sprintf("stream read failed: %v", err), err)
			}
			return
		}

		s.collector.IncFramesReceived()
		ev, err := Route(frame)
		if err != nil {
			s.frameDecodeFailed(err)
			continue
		}
		if s.apply(ev) {
			return
		}
	}
}

func isPartial(err error) bool {
	var frameErr *sse.FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == sse.FrameErrorPartial
}

// apply folds one event into the session atomically.
// It returns true once the session is terminal.
func (s *Session) apply(ev types.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsTerminal() {
		s.logger.Debug("ignoring event after terminal state", map[string]any{
			"event": string(ev.Type()),
			"state": string(s.state),
		})
		return true
	}

	switch e := ev.(type) {
	case types.StartEvent:
		s.logger.Debug("server acknowledged sync", nil)
	case types.ProgressEvent:
		s.collector.IncProgressEvents()
		s.agg.Apply(e)
		s.emitLocked()
	case types.CompleteEvent:
		if e.BillsCreated != nil {
			s.agg.SetTotal(*e.BillsCreated)
		}
		s.finishLocked(types.StateCompleted, "")
	case types.ErrorEvent:
		s.finishLocked(types.StateFailed, e.Message)
	case types.CancelledEvent:
		s.agg.MarkCancelled()
		s.finishLocked(types.StateCancelled, "")
	case types.UnknownEvent:
		s.unknownEvents++
		s.collector.IncUnknownEvents()
		s.logger.Debug("ignoring unknown event", map[string]any{
			"event": string(e.EventType),
		})
	}
	return s.state.IsTerminal()
}

// streamFailed ends the session after the stream could not be opened or read.
// An error caused by cancelling the stream context is a cancellation.
func (s *Session) streamFailed(ctx context.Context, message string, err error) {
	if ctx.Err() != nil {
		s.Cancel()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return
	}
	s.logger.Error("sync stream failed", map[string]any{
		"error": err.Error(),
	})
	s.finishLocked(types.StateFailed, message)
}

func (s *Session) frameDecodeFailed(err error) {
	var event string
	var frameErr *sse.FrameError
	if errors.As(err, &frameErr) {
		event = frameErr.Event
	}

	s.mu.Lock()
	s.decodeErrors++
	s.mu.Unlock()
	s.collector.IncDecodeErrors()

	s.logger.Warn("skipping undecodable frame", map[string]any{
		"event": event,
		"error": err.Error(),
	})
	if s.onDiagnostic != nil {
		s.onDiagnostic(types.Diagnostic{
			EventType: types.EventType(event),
			Message:   "frame payload could not be decoded",
			Err:       err,
		})
	}
}

// finishLocked moves the session to a terminal state. s.mu must be held.
func (s *Session) finishLocked(state types.SessionState, message string) {
	s.state = state
	s.message = message
	s.endedAt = s.now()

	switch state {
	case types.StateCompleted:
		s.collector.IncSyncCompleted()
	case types.StateCancelled:
		s.collector.IncSyncCancelled()
	case types.StateFailed:
		s.collector.IncSyncFailed()
	}

	final := s.emitLocked()
	s.result = &types.SyncResult{
		SyncID:          s.meta.SyncID,
		PropertyID:      s.meta.PropertyID,
		State:           state,
		Message:         message,
		Snapshot:        final,
		StartedAt:       s.startedAt,
		EndedAt:         s.endedAt,
		DecodeErrors:    s.decodeErrors,
		UnknownEvents:   s.unknownEvents,
		CancelRequested: s.cancelRequested,
	}
	s.closed = true
	s.cond.Broadcast()

	fields := map[string]any{
		"state":               string(state),
		"suppliers":           s.agg.Len(),
		"total_bills_created": s.agg.Total(),
		"duration_ms":         s.endedAt.Sub(s.startedAt).Milliseconds(),
	}
	if message != "" {
		fields["message"] = message
	}
	s.logger.Info("sync finished", fields)
}

// emitLocked queues a new snapshot for subscribers. s.mu must be held.
func (s *Session) emitLocked() types.Snapshot {
	s.seq++
	snap := s.snapshotLocked()
	s.queue = append(s.queue, snap)
	s.cond.Broadcast()
	return snap
}

func (s *Session) snapshotLocked() types.Snapshot {
	return types.Snapshot{
		SyncID:            s.meta.SyncID,
		State:             s.state,
		Seq:               s.seq,
		Entries:           s.agg.Entries(),
		TotalBillsCreated: s.agg.Total(),
	}
}

// dispatch delivers queued snapshots to subscribers in order, outside the
// session mutex, until the terminal snapshot has been delivered.
func (s *Session) dispatch() {
	s.mu.Lock()
	for {
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}

		snap := s.queue[0]
		s.queue[0] = types.Snapshot{}
		s.queue = s.queue[1:]
		subs := make([]subscriber, len(s.subs))
		copy(subs, s.subs)
		s.mu.Unlock()

		for _, sub := range subs {
			sub.fn(snap.Clone())
		}

		s.mu.Lock()
	}
}
