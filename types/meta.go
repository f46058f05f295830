// Package types defines core domain types for the billsync client.
// Wire-facing types carry json tags matching the sync server contract.
//
//nolint:revive // types is a common Go package naming convention
package types

import "errors"

// SyncMeta identifies one synchronization run.
type SyncMeta struct {
	// SyncID is the client-generated correlation id. Must be unique per run.
	SyncID string
	// PropertyID is the property whose suppliers are synchronized.
	PropertyID string
}

// Validate checks that both identity fields are present.
func (m *SyncMeta) Validate() error {
	if m.SyncID == "" {
		return errors.New("sync_id must be non-empty")
	}
	if m.PropertyID == "" {
		return errors.New("property_id must be non-empty")
	}
	return nil
}
