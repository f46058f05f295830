package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pithecene-io/billsync/sse"
	"github.com/pithecene-io/billsync/types"
)

// DefaultErrorMessage is used when an `error` frame carries no message.
const DefaultErrorMessage = "sync failed"

// Route maps a decoded frame to its typed event.
//
// Any event type outside the known set yields a types.UnknownEvent and no
// error. A payload that does not satisfy its event's schema yields a
// *sse.FrameError with Kind=FrameErrorDecode; callers treat it as a
// non-fatal, frame-level problem.
func Route(frame *sse.Frame) (types.Event, error) {
	switch types.EventType(frame.Event) {
	case types.EventTypeStart:
		return types.StartEvent{}, nil
	case types.EventTypeProgress:
		return routeProgress(frame)
	case types.EventTypeComplete:
		return routeComplete(frame)
	case types.EventTypeError:
		return routeError(frame)
	case types.EventTypeCancelled:
		return types.CancelledEvent{}, nil
	default:
		return types.UnknownEvent{
			EventType: types.EventType(frame.Event),
			Data:      frame.Data,
		}, nil
	}
}

func routeProgress(frame *sse.Frame) (types.Event, error) {
	if frame.Data == "" {
		return nil, decodeError(frame, errors.New("empty payload"))
	}

	var p types.ProgressPayload
	if err := json.Unmarshal([]byte(frame.Data), &p); err != nil {
		return nil, decodeError(frame, err)
	}

	switch {
	case p.SupplierName == "":
		return nil, decodeError(frame, errors.New("missing supplier_name"))
	case !p.Status.Valid():
		return nil, decodeError(frame, fmt.Errorf("unknown status %q", p.Status))
	case p.BillsFound < 0:
		return nil, decodeError(frame, fmt.Errorf("negative bills_found %d", p.BillsFound))
	case p.BillsCreated < 0:
		return nil, decodeError(frame, fmt.Errorf("negative bills_created %d", p.BillsCreated))
	}

	ev := types.ProgressEvent{
		Key:          types.SupplierKey{SupplierName: p.SupplierName},
		Status:       p.Status,
		BillsFound:   p.BillsFound,
		BillsCreated: p.BillsCreated,
	}
	if p.ContractID != nil {
		ev.Key.ContractID = *p.ContractID
	}
	if p.Error != nil {
		ev.Error = *p.Error
	}
	return ev, nil
}

func routeComplete(frame *sse.Frame) (types.Event, error) {
	if frame.Data == "" {
		return types.CompleteEvent{}, nil
	}

	var p types.CompletePayload
	if err := json.Unmarshal([]byte(frame.Data), &p); err != nil {
		return nil, decodeError(frame, err)
	}
	if p.BillsCreated != nil && *p.BillsCreated < 0 {
		return nil, decodeError(frame, fmt.Errorf("negative bills_created %d", *p.BillsCreated))
	}
	return types.CompleteEvent{BillsCreated: p.BillsCreated}, nil
}

func routeError(frame *sse.Frame) (types.Event, error) {
	if frame.Data == "" {
		return types.ErrorEvent{Message: DefaultErrorMessage}, nil
	}

	// Valid JSON without an error string still fails the sync with the default message
	var p types.ErrorPayload
	if err := json.Unmarshal([]byte(frame.Data), &p); err != nil || p.Error == "" {
		p.Error = DefaultErrorMessage
	}
	return types.ErrorEvent{Message: p.Error}, nil
}

func decodeError(frame *sse.Frame, err error) error {
	return &sse.FrameError{
		Kind:  sse.FrameErrorDecode,
		Event: frame.Event,
		Msg:   fmt.Sprintf("invalid %q payload", frame.Event),
		Err:   err,
	}
}
