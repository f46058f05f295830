package types

// EventType is the `event:` field of a sync stream frame.
type EventType string

// Event types emitted by the sync server.
const (
	EventTypeStart     EventType = "start"
	EventTypeProgress  EventType = "progress"
	EventTypeComplete  EventType = "complete"
	EventTypeError     EventType = "error"
	EventTypeCancelled EventType = "cancelled"
)

// SupplierStatus is the per-supplier status reported by progress events.
type SupplierStatus string

// Supplier statuses.
const (
	SupplierStarting   SupplierStatus = "starting"
	SupplierProcessing SupplierStatus = "processing"
	SupplierCompleted  SupplierStatus = "completed"
	SupplierError      SupplierStatus = "error"
)

// Valid returns true for the four known statuses.
func (s SupplierStatus) Valid() bool {
	switch s {
	case SupplierStarting, SupplierProcessing, SupplierCompleted, SupplierError:
		return true
	default:
		return false
	}
}

// InFlight returns true while the supplier has not reached a final status.
func (s SupplierStatus) InFlight() bool {
	return s == SupplierStarting || s == SupplierProcessing
}

// ProgressPayload is the `progress` event payload.
type ProgressPayload struct {
	SupplierName string         `json:"supplier_name"`
	ContractID   *string        `json:"contract_id,omitempty"`
	Status       SupplierStatus `json:"status"`
	BillsFound   int            `json:"bills_found"`
	BillsCreated int            `json:"bills_created"`
	Error        *string        `json:"error,omitempty"`
}

// CompletePayload is the `complete` event payload.
type CompletePayload struct {
	// BillsCreated, when present, is the authoritative final total.
	BillsCreated *int `json:"bills_created,omitempty"`
}

// ErrorPayload is the `error` event payload.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Event is one typed, routed stream event.
// The set of implementations is closed: StartEvent, ProgressEvent,
// CompleteEvent, ErrorEvent, CancelledEvent and UnknownEvent.
type Event interface {
	Type() EventType
	isEvent()
}

// StartEvent acknowledges that the server accepted the run.
type StartEvent struct{}

// ProgressEvent reports one supplier's state.
type ProgressEvent struct {
	Key          SupplierKey
	Status       SupplierStatus
	BillsFound   int
	BillsCreated int
	Error        string
}

// CompleteEvent ends the run successfully.
type CompleteEvent struct {
	BillsCreated *int
}

// ErrorEvent ends the run with a session-fatal failure.
type ErrorEvent struct {
	Message string
}

// CancelledEvent acknowledges a cancellation.
type CancelledEvent struct{}

// UnknownEvent carries an event type this client does not understand.
// It is forwarded for logging and never changes session state.
type UnknownEvent struct {
	EventType EventType
	Data      string
}

func (StartEvent) Type() EventType     { return EventTypeStart }
func (ProgressEvent) Type() EventType  { return EventTypeProgress }
func (CompleteEvent) Type() EventType  { return EventTypeComplete }
func (ErrorEvent) Type() EventType     { return EventTypeError }
func (CancelledEvent) Type() EventType { return EventTypeCancelled }
func (e UnknownEvent) Type() EventType { return e.EventType }

func (StartEvent) isEvent()     {}
func (ProgressEvent) isEvent()  {}
func (CompleteEvent) isEvent()  {}
func (ErrorEvent) isEvent()     {}
func (CancelledEvent) isEvent() {}
func (UnknownEvent) isEvent()   {}
