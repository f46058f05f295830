package types //nolint:revive // types is a valid package name

import (
	"testing"
)

func TestSupplierStatus_Valid(t *testing.T) {
	for _, s := range []SupplierStatus{SupplierStarting, SupplierProcessing, SupplierCompleted, SupplierError} {
		if !s.Valid() {
			t.Errorf("SupplierStatus(%q).Valid() = false, want true", s)
		}
	}
	if SupplierStatus("done").Valid() {
		t.Error(`SupplierStatus("done").Valid() = true, want false`)
	}
}

func TestSessionState_IsTerminal(t *testing.T) {
	tests := []struct {
		state SessionState
		want  bool
	}{
		{StateIdle, false},
		{StateRunning, false},
		{StateCompleted, true},
		{StateCancelled, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.want {
			t.Errorf("SessionState(%q).IsTerminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSupplierKey_String(t *testing.T) {
	if got := (SupplierKey{SupplierName: "Enel"}).String(); got != "Enel" {
		t.Errorf("String() = %q, want %q", got, "Enel")
	}
	if got := (SupplierKey{SupplierName: "Enel", ContractID: "c-1"}).String(); got != "Enel/c-1" {
		t.Errorf("String() = %q, want %q", got, "Enel/c-1")
	}
}

func TestSnapshot_FailedSuppliers(t *testing.T) {
	snap := Snapshot{Entries: []SupplierProgress{
		{SupplierName: "A", Status: SupplierCompleted},
		{SupplierName: "B", Status: SupplierError, Error: "login failed"},
		{SupplierName: "C", Status: SupplierError, Error: CancelledMessage},
	}}
	if got := snap.FailedSuppliers(); got != 2 {
		t.Errorf("FailedSuppliers() = %d, want 2", got)
	}
	if _, ok := snap.Entry(SupplierKey{SupplierName: "B"}); !ok {
		t.Error("Entry(B) not found")
	}
	if _, ok := snap.Entry(SupplierKey{SupplierName: "B", ContractID: "x"}); ok {
		t.Error("Entry(B/x) should not match B")
	}
}

func TestSyncMeta_Validate(t *testing.T) {
	if err := (&SyncMeta{SyncID: "s", PropertyID: "p"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	if err := (&SyncMeta{PropertyID: "p"}).Validate(); err == nil {
		t.Error("Validate() with empty sync_id = nil, want error")
	}
	if err := (&SyncMeta{SyncID: "s"}).Validate(); err == nil {
		t.Error("Validate() with empty property_id = nil, want error")
	}
}
