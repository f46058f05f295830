package types

// CancelledMessage is the error recorded on suppliers still in flight
// when a session is cancelled.
const CancelledMessage = "Cancelled"

// SupplierKey is the composite identity of a progress entry.
// ContractID is empty when the server did not send one.
type SupplierKey struct {
	SupplierName string `json:"supplier_name"`
	ContractID   string `json:"contract_id,omitempty"`
}

// String renders the key for logs.
func (k SupplierKey) String() string {
	if k.ContractID == "" {
		return k.SupplierName
	}
	return k.SupplierName + "/" + k.ContractID
}

// SupplierProgress is the per-supplier progress entry.
type SupplierProgress struct {
	SupplierName string         `json:"supplier_name" yaml:"supplier_name"`
	ContractID   string         `json:"contract_id,omitempty" yaml:"contract_id,omitempty"`
	Status       SupplierStatus `json:"status" yaml:"status"`
	BillsFound   int            `json:"bills_found" yaml:"bills_found"`
	BillsCreated int            `json:"bills_created" yaml:"bills_created"`
	Error        string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Key returns the entry's composite identity.
func (p SupplierProgress) Key() SupplierKey {
	return SupplierKey{SupplierName: p.SupplierName, ContractID: p.ContractID}
}

// Snapshot is an immutable view of aggregated progress.
// Entries are in first-seen order. Snapshots never share memory with
// the aggregator that produced them.
type Snapshot struct {
	SyncID            string             `json:"sync_id" yaml:"sync_id"`
	State             SessionState       `json:"state" yaml:"state"`
	Seq               int64              `json:"seq" yaml:"seq"`
	Entries           []SupplierProgress `json:"entries" yaml:"entries"`
	TotalBillsCreated int                `json:"total_bills_created" yaml:"total_bills_created"`
}

// FailedSuppliers counts entries in error status.
func (s Snapshot) FailedSuppliers() int {
	n := 0
	for _, e := range s.Entries {
		if e.Status == SupplierError {
			n++
		}
	}
	return n
}

// Entry returns the entry for key, if present.
func (s Snapshot) Entry(key SupplierKey) (SupplierProgress, bool) {
	for _, e := range s.Entries {
		if e.Key() == key {
			return e, true
		}
	}
	return SupplierProgress{}, false
}

// Clone returns a copy of s that shares no memory with it.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Entries != nil {
		out.Entries = make([]SupplierProgress, len(s.Entries))
		copy(out.Entries, s.Entries)
	}
	return out
}
