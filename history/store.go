// Package history records finished sync runs in a Lode dataset.
//
// Each recorded sync is written as one batch: a sync_result record followed
// by one supplier record per progress entry, Hive-partitioned by
// property_id/day/sync_id/record_kind. The dataset lives on the local
// filesystem or in S3.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/billsync/types"
)

// DefaultDataset is the Lode dataset id for sync history.
const DefaultDataset = "billsync_history"

// Record kinds.
const (
	RecordKindSyncResult = "sync_result"
	RecordKindSupplier   = "supplier"
)

// Backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// dayLayout formats the day partition.
const dayLayout = "2006-01-02"

// Summary is one line of sync history.
type Summary struct {
	SyncID            string             `json:"sync_id" yaml:"sync_id"`
	PropertyID        string             `json:"property_id" yaml:"property_id"`
	State             types.SessionState `json:"state" yaml:"state"`
	Message           string             `json:"message,omitempty" yaml:"message,omitempty"`
	StartedAt         time.Time          `json:"started_at" yaml:"started_at"`
	EndedAt           time.Time          `json:"ended_at" yaml:"ended_at"`
	Suppliers         int                `json:"suppliers" yaml:"suppliers"`
	FailedSuppliers   int                `json:"failed_suppliers" yaml:"failed_suppliers"`
	TotalBillsCreated int                `json:"total_bills_created" yaml:"total_bills_created"`
}

// Filter narrows List results.
type Filter struct {
	// PropertyID keeps only syncs for this property when non-empty.
	PropertyID string
	// Limit caps the number of results when positive.
	Limit int
}

// Store reads and writes sync history.
type Store struct {
	dataset  lode.Dataset
	backend  string
	location string
}

// NewStore creates a store over a dataset id and Lode store factory.
// Use lode.NewMemoryFactory() for testing.
func NewStore(dataset string, factory lode.StoreFactory, backend, location string) (*Store, error) {
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("property_id", "day", "sync_id", "record_kind"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrapError(err, "init", dataset)
	}
	return &Store{dataset: ds, backend: backend, location: location}, nil
}

// NewFSStore creates a store rooted at a local directory.
func NewFSStore(root string) (*Store, error) {
	return NewStore(DefaultDataset, lode.NewFSFactory(root), BackendFS, "file://"+root)
}

// Backend returns "fs" or "s3".
func (s *Store) Backend() string {
	return s.backend
}

// Location returns a display URI for the dataset root.
func (s *Store) Location() string {
	return s.location
}

// syncRecord is the stored form of a sync result.
type syncRecord struct {
	RecordKind      string `json:"record_kind"`
	ContractVersion string `json:"contract_version"`
	SyncID          string `json:"sync_id"`
	PropertyID      string `json:"property_id"`
	Day             string `json:"day"`

	State             types.SessionState `json:"state"`
	Message           string             `json:"message,omitempty"`
	StartedAt         string             `json:"started_at"`
	EndedAt           string             `json:"ended_at"`
	Suppliers         int                `json:"suppliers"`
	FailedSuppliers   int                `json:"failed_suppliers"`
	TotalBillsCreated int                `json:"total_bills_created"`
	Seq               int64              `json:"seq"`
	DecodeErrors      int64              `json:"decode_errors"`
	UnknownEvents     int64              `json:"unknown_events"`
	CancelRequested   bool               `json:"cancel_requested"`
}

// supplierRecord is the stored form of one progress entry.
type supplierRecord struct {
	RecordKind string `json:"record_kind"`
	SyncID     string `json:"sync_id"`
	PropertyID string `json:"property_id"`
	Day        string `json:"day"`
	// Position is the entry's first-seen index.
	Position int `json:"position"`

	types.SupplierProgress
}

// Record writes a finished sync. Results that are not terminal are rejected.
func (s *Store) Record(ctx context.Context, result *types.SyncResult) error {
	if !result.State.IsTerminal() {
		return fmt.Errorf("history: cannot record sync %s in state %s", result.SyncID, result.State)
	}

	day := result.EndedAt.UTC().Format(dayLayout)
	sr := syncRecord{
		RecordKind:        RecordKindSyncResult,
		ContractVersion:   types.ContractVersion,
		SyncID:            result.SyncID,
		PropertyID:        result.PropertyID,
		Day:               day,
		State:             result.State,
		Message:           result.Message,
		StartedAt:         result.StartedAt.UTC().Format(time.RFC3339Nano),
		EndedAt:           result.EndedAt.UTC().Format(time.RFC3339Nano),
		Suppliers:         len(result.Snapshot.Entries),
		FailedSuppliers:   result.Snapshot.FailedSuppliers(),
		TotalBillsCreated: result.Snapshot.TotalBillsCreated,
		Seq:               result.Snapshot.Seq,
		DecodeErrors:      result.DecodeErrors,
		UnknownEvents:     result.UnknownEvents,
		CancelRequested:   result.CancelRequested,
	}

	records := make([]any, 0, 1+len(result.Snapshot.Entries))
	m, err := toMap(sr)
	if err != nil {
		return err
	}
	records = append(records, m)

	for i, entry := range result.Snapshot.Entries {
		m, err := toMap(supplierRecord{
			RecordKind:       RecordKindSupplier,
			SyncID:           result.SyncID,
			PropertyID:       result.PropertyID,
			Day:              day,
			Position:         i,
			SupplierProgress: entry,
		})
		if err != nil {
			return err
		}
		records = append(records, m)
	}

	if _, err := s.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return wrapError(err, "record", s.recordPath(result.PropertyID, day, result.SyncID))
	}
	return nil
}

func (s *Store) recordPath(propertyID, day, syncID string) string {
	return fmt.Sprintf("%s/property_id=%s/day=%s/sync_id=%s", s.dataset.ID(), propertyID, day, syncID)
}

// List returns recorded syncs, most recently recorded first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Summary, error) {
	snapshots, err := s.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrapError(err, "list", string(s.dataset.ID()))
	}

	seen := make(map[string]struct{})
	var out []Summary

	// Snapshots are ordered by creation time; walk latest first
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "property_id", filter.PropertyID) {
			continue
		}

		data, err := s.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapError(err, "list", fmt.Sprintf("%s/snapshot/%s", s.dataset.ID(), snap.ID))
		}

		var batch []Summary
		for _, item := range data {
			rec, ok, err := decodeSyncRecord(item)
			if err != nil {
				return nil, err
			}
			if !ok || (filter.PropertyID != "" && rec.PropertyID != filter.PropertyID) {
				continue
			}
			if _, dup := seen[rec.SyncID]; dup {
				continue
			}
			seen[rec.SyncID] = struct{}{}
			batch = append(batch, rec.summary())
		}
		// Within one snapshot the newest sync ends last
		sort.SliceStable(batch, func(a, b int) bool {
			return batch[a].EndedAt.After(batch[b].EndedAt)
		})
		out = append(out, batch...)

		if filter.Limit > 0 && len(out) >= filter.Limit {
			return out[:filter.Limit], nil
		}
	}
	return out, nil
}

// Get returns the full recorded result of a sync.
// Returns ErrSyncNotFound if the sync was never recorded.
func (s *Store) Get(ctx context.Context, syncID string) (*types.SyncResult, error) {
	snapshots, err := s.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrapError(err, "get", syncID)
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "sync_id", syncID) {
			continue
		}

		data, err := s.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapError(err, "get", fmt.Sprintf("%s/snapshot/%s", s.dataset.ID(), snap.ID))
		}
		result, err := assemble(data, syncID)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSyncNotFound, syncID)
}

// assemble rebuilds a SyncResult from the records of one snapshot.
// Returns nil when the snapshot holds no sync_result for syncID.
func assemble(data []any, syncID string) (*types.SyncResult, error) {
	var result *types.SyncResult
	var suppliers []supplierRecord

	for _, item := range data {
		m, ok := item.(map[string]any)
		if !ok || toString(m["sync_id"]) != syncID {
			continue
		}
		switch toString(m["record_kind"]) {
		case RecordKindSyncResult:
			var rec syncRecord
			if err := fromMap(m, &rec); err != nil {
				return nil, err
			}
			result = rec.result()
		case RecordKindSupplier:
			var rec supplierRecord
			if err := fromMap(m, &rec); err != nil {
				return nil, err
			}
			suppliers = append(suppliers, rec)
		}
	}
	if result == nil {
		return nil, nil
	}

	sort.SliceStable(suppliers, func(a, b int) bool {
		return suppliers[a].Position < suppliers[b].Position
	})
	result.Snapshot.Entries = make([]types.SupplierProgress, 0, len(suppliers))
	for _, rec := range suppliers {
		result.Snapshot.Entries = append(result.Snapshot.Entries, rec.SupplierProgress)
	}
	return result, nil
}

func decodeSyncRecord(item any) (syncRecord, bool, error) {
	m, ok := item.(map[string]any)
	if !ok || toString(m["record_kind"]) != RecordKindSyncResult {
		return syncRecord{}, false, nil
	}
	var rec syncRecord
	if err := fromMap(m, &rec); err != nil {
		return syncRecord{}, false, err
	}
	return rec, true, nil
}

func (r syncRecord) summary() Summary {
	return Summary{
		SyncID:            r.SyncID,
		PropertyID:        r.PropertyID,
		State:             r.State,
		Message:           r.Message,
		StartedAt:         parseTime(r.StartedAt),
		EndedAt:           parseTime(r.EndedAt),
		Suppliers:         r.Suppliers,
		FailedSuppliers:   r.FailedSuppliers,
		TotalBillsCreated: r.TotalBillsCreated,
	}
}

func (r syncRecord) result() *types.SyncResult {
	return &types.SyncResult{
		SyncID:     r.SyncID,
		PropertyID: r.PropertyID,
		State:      r.State,
		Message:    r.Message,
		Snapshot: types.Snapshot{
			SyncID:            r.SyncID,
			State:             r.State,
			Seq:               r.Seq,
			TotalBillsCreated: r.TotalBillsCreated,
		},
		StartedAt:       parseTime(r.StartedAt),
		EndedAt:         parseTime(r.EndedAt),
		DecodeErrors:    r.DecodeErrors,
		UnknownEvents:   r.UnknownEvents,
		CancelRequested: r.CancelRequested,
	}
}

// toMap converts a record struct to the map form the JSONL codec writes.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("history: encode record: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("history: encode record: %w", err)
	}
	return m, nil
}

// fromMap decodes a record map read back from the dataset.
func fromMap(m map[string]any, v any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("history: decode record: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("history: decode record: %w", err)
	}
	return nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// snapshotMatches reports whether any file in the snapshot lies under an
// exact key=value partition segment. An empty value matches everything.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}
