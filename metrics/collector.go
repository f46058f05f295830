// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single sync session. It is a
// leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Session lifecycle
	SyncsStarted   int64 `json:"syncs_started"`
	SyncsCompleted int64 `json:"syncs_completed"`
	SyncsFailed    int64 `json:"syncs_failed"`
	SyncsCancelled int64 `json:"syncs_cancelled"`

	// Stream
	FramesReceived int64 `json:"frames_received"`
	DecodeErrors   int64 `json:"decode_errors"`
	UnknownEvents  int64 `json:"unknown_events"`
	ProgressEvents int64 `json:"progress_events"`

	// Suppliers
	SupplierErrors     int64 `json:"supplier_errors"`
	CreatedRegressions int64 `json:"created_regressions"`

	// Side channels
	CancelRequestsSent   int64 `json:"cancel_requests_sent"`
	CancelRequestsFailed int64 `json:"cancel_requests_failed"`
	HistoryWriteSuccess  int64 `json:"history_write_success"`
	HistoryWriteFailure  int64 `json:"history_write_failure"`
	NotifySuccess        int64 `json:"notify_success"`
	NotifyFailure        int64 `json:"notify_failure"`

	// Dimensions (informational, set at construction)
	SyncID         string `json:"sync_id"`
	PropertyID     string `json:"property_id"`
	HistoryBackend string `json:"history_backend"`
}

// Collector accumulates metrics during a single sync session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels.
// historyBackend is "none" when results are not recorded.
func NewCollector(syncID, propertyID, historyBackend string) *Collector {
	return &Collector{s: Snapshot{
		SyncID:         syncID,
		PropertyID:     propertyID,
		HistoryBackend: historyBackend,
	}}
}

func (c *Collector) inc(field func(*Snapshot) *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s)++
	c.mu.Unlock()
}

// --- Session lifecycle ---

// IncSyncStarted records a session start.
func (c *Collector) IncSyncStarted() { c.inc(func(s *Snapshot) *int64 { return &s.SyncsStarted }) }

// IncSyncCompleted records a completed session.
func (c *Collector) IncSyncCompleted() { c.inc(func(s *Snapshot) *int64 { return &s.SyncsCompleted }) }

// IncSyncFailed records a failed session.
func (c *Collector) IncSyncFailed() { c.inc(func(s *Snapshot) *int64 { return &s.SyncsFailed }) }

// IncSyncCancelled records a cancelled session.
func (c *Collector) IncSyncCancelled() { c.inc(func(s *Snapshot) *int64 { return &s.SyncsCancelled }) }

// --- Stream ---

// IncFramesReceived records a decoded frame, including unknown ones.
func (c *Collector) IncFramesReceived() { c.inc(func(s *Snapshot) *int64 { return &s.FramesReceived }) }

// IncDecodeErrors records a frame whose payload could not be decoded.
func (c *Collector) IncDecodeErrors() { c.inc(func(s *Snapshot) *int64 { return &s.DecodeErrors }) }

// IncUnknownEvents records a frame with an unrecognized event type.
func (c *Collector) IncUnknownEvents() { c.inc(func(s *Snapshot) *int64 { return &s.UnknownEvents }) }

// IncProgressEvents records an applied progress event.
func (c *Collector) IncProgressEvents() { c.inc(func(s *Snapshot) *int64 { return &s.ProgressEvents }) }

// --- Suppliers ---

// IncSupplierErrors records a supplier entering error status.
func (c *Collector) IncSupplierErrors() { c.inc(func(s *Snapshot) *int64 { return &s.SupplierErrors }) }

// IncCreatedRegressions records a progress event whose bills_created
// went below the previously reported value for the same supplier.
func (c *Collector) IncCreatedRegressions() {
	c.inc(func(s *Snapshot) *int64 { return &s.CreatedRegressions })
}

// --- Side channels ---

// IncCancelRequestSent records a server cancel request that succeeded.
func (c *Collector) IncCancelRequestSent() {
	c.inc(func(s *Snapshot) *int64 { return &s.CancelRequestsSent })
}

// IncCancelRequestFailed records a server cancel request that failed or timed out.
func (c *Collector) IncCancelRequestFailed() {
	c.inc(func(s *Snapshot) *int64 { return &s.CancelRequestsFailed })
}

// IncHistoryWriteSuccess records a successful history write.
func (c *Collector) IncHistoryWriteSuccess() {
	c.inc(func(s *Snapshot) *int64 { return &s.HistoryWriteSuccess })
}

// IncHistoryWriteFailure records a failed history write.
func (c *Collector) IncHistoryWriteFailure() {
	c.inc(func(s *Snapshot) *int64 { return &s.HistoryWriteFailure })
}

// IncNotifySuccess records a delivered completion notification.
func (c *Collector) IncNotifySuccess() { c.inc(func(s *Snapshot) *int64 { return &s.NotifySuccess }) }

// IncNotifyFailure records a completion notification that could not be delivered.
func (c *Collector) IncNotifyFailure() { c.inc(func(s *Snapshot) *int64 { return &s.NotifyFailure }) }

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// Fields returns the counters as log fields.
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"syncs_started":          s.SyncsStarted,
		"syncs_completed":        s.SyncsCompleted,
		"syncs_failed":           s.SyncsFailed,
		"syncs_cancelled":        s.SyncsCancelled,
		"frames_received":        s.FramesReceived,
		"decode_errors":          s.DecodeErrors,
		"unknown_events":         s.UnknownEvents,
		"progress_events":        s.ProgressEvents,
		"supplier_errors":        s.SupplierErrors,
		"created_regressions":    s.CreatedRegressions,
		"cancel_requests_sent":   s.CancelRequestsSent,
		"cancel_requests_failed": s.CancelRequestsFailed,
		"history_write_success":  s.HistoryWriteSuccess,
		"history_write_failure":  s.HistoryWriteFailure,
		"notify_success":         s.NotifySuccess,
		"notify_failure":         s.NotifyFailure,
		"history_backend":        s.HistoryBackend,
	}
}
