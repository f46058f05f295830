// Package adapter defines the downstream notification boundary.
//
// Adapters publish a sync completion notification after a session reaches a
// terminal state. The CLI owns adapter lifecycle; users provide
// configuration only.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/billsync/types"
)

// EventTypeSyncCompleted is the event_type of every published notification.
const EventTypeSyncCompleted = "sync_completed"

// SyncCompletedEvent is the payload published when a sync finishes.
type SyncCompletedEvent struct {
	ContractVersion   string `json:"contract_version"`
	EventType         string `json:"event_type"` // always "sync_completed"
	SyncID            string `json:"sync_id"`
	PropertyID        string `json:"property_id"`
	State             string `json:"state"` // completed, cancelled, failed
	Message           string `json:"message,omitempty"`
	Suppliers         int    `json:"suppliers"`
	FailedSuppliers   int    `json:"failed_suppliers"`
	TotalBillsCreated int    `json:"total_bills_created"`
	HistoryPath       string `json:"history_path,omitempty"`
	Timestamp         string `json:"timestamp"` // RFC 3339, session end
	DurationMs        int64  `json:"duration_ms"`
}

// NewSyncCompletedEvent builds the notification for a finished session.
// historyPath is the recorded history location, or empty when not recorded.
func NewSyncCompletedEvent(result *types.SyncResult, historyPath string) *SyncCompletedEvent {
	return &SyncCompletedEvent{
		ContractVersion:   types.ContractVersion,
		EventType:         EventTypeSyncCompleted,
		SyncID:            result.SyncID,
		PropertyID:        result.PropertyID,
		State:             string(result.State),
		Message:           result.Message,
		Suppliers:         len(result.Snapshot.Entries),
		FailedSuppliers:   result.Snapshot.FailedSuppliers(),
		TotalBillsCreated: result.Snapshot.TotalBillsCreated,
		HistoryPath:       historyPath,
		Timestamp:         result.EndedAt.UTC().Format(time.RFC3339),
		DurationMs:        result.Duration().Milliseconds(),
	}
}

// Adapter publishes sync completion events to a downstream system.
type Adapter interface {
	// Publish sends a sync completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SyncCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry; each retry doubles it.
const BaseBackoff = 500 * time.Millisecond

// Retry calls attempt up to 1+retries times with exponential backoff
// between calls. It stops early when attempt succeeds, when retriable
// reports false for the returned error, or when ctx is done.
// name prefixes returned errors.
func Retry(
	ctx context.Context,
	name string,
	retries int,
	attempt func(ctx context.Context) error,
	retriable func(error) bool,
) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}
		if retriable != nil && !retriable(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
