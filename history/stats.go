package history

import "github.com/pithecene-io/billsync/types"

// Stats aggregates a set of recorded syncs.
type Stats struct {
	PropertyID        string `json:"property_id,omitempty" yaml:"property_id,omitempty"`
	Total             int    `json:"total" yaml:"total"`
	Completed         int    `json:"completed" yaml:"completed"`
	Failed            int    `json:"failed" yaml:"failed"`
	Cancelled         int    `json:"cancelled" yaml:"cancelled"`
	FailedSuppliers   int    `json:"failed_suppliers" yaml:"failed_suppliers"`
	TotalBillsCreated int    `json:"total_bills_created" yaml:"total_bills_created"`
}

// Summarize counts outcomes and created bills across summaries.
func Summarize(propertyID string, summaries []Summary) Stats {
	st := Stats{PropertyID: propertyID, Total: len(summaries)}
	for _, s := range summaries {
		switch s.State {
		case types.StateCompleted:
			st.Completed++
		case types.StateFailed:
			st.Failed++
		case types.StateCancelled:
			st.Cancelled++
		}
		st.FailedSuppliers += s.FailedSuppliers
		st.TotalBillsCreated += s.TotalBillsCreated
	}
	return st
}
