package session

import (
	"github.com/pithecene-io/billsync/log"
	"github.com/pithecene-io/billsync/metrics"
	"github.com/pithecene-io/billsync/types"
)

// Aggregator tracks per-supplier progress and the running total of
// created bills.
//
// Entries are keyed by (supplier_name, contract_id) and kept in first-seen
// order. The total only grows by the positive part of each entry's
// bills_created delta, so re-delivered or regressed progress never
// double-counts or subtracts. An Aggregator is not safe for concurrent use;
// the session serializes access under its mutex.
type Aggregator struct {
	logger    *log.Logger
	collector *metrics.Collector

	order   []types.SupplierKey
	entries map[types.SupplierKey]*types.SupplierProgress
	total   int
}

// NewAggregator creates an empty aggregator.
// A nil logger discards output; a nil collector records nothing.
func NewAggregator(logger *log.Logger, collector *metrics.Collector) *Aggregator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Aggregator{
		logger:    logger,
		collector: collector,
		entries:   make(map[types.SupplierKey]*types.SupplierProgress),
	}
}

// Apply merges one progress event and returns the amount added to the total.
func (a *Aggregator) Apply(ev types.ProgressEvent) int {
	entry, ok := a.entries[ev.Key]
	if !ok {
		entry = &types.SupplierProgress{
			SupplierName: ev.Key.SupplierName,
			ContractID:   ev.Key.ContractID,
			Status:       types.SupplierStarting,
		}
		a.entries[ev.Key] = entry
		a.order = append(a.order, ev.Key)
	}

	previousCreated := entry.BillsCreated
	previousStatus := entry.Status

	entry.Status = ev.Status
	entry.BillsFound = ev.BillsFound
	entry.BillsCreated = ev.BillsCreated
	entry.Error = ""
	if ev.Status == types.SupplierError {
		entry.Error = ev.Error
		if previousStatus != types.SupplierError {
			a.collector.IncSupplierErrors()
		}
	}

	delta := ev.BillsCreated - previousCreated
	if delta < 0 {
		a.logger.Warn("bills_created decreased, total unchanged", map[string]any{
			"supplier": ev.Key.String(),
			"previous": previousCreated,
			"reported": ev.BillsCreated,
		})
		a.collector.IncCreatedRegressions()
		return 0
	}
	a.total += delta
	return delta
}

// MarkCancelled moves every in-flight entry to error status with the
// cancellation message. Completed and failed entries are left alone.
// It returns the number of entries changed.
func (a *Aggregator) MarkCancelled() int {
	n := 0
	for _, key := range a.order {
		entry := a.entries[key]
		if entry.Status.InFlight() {
			entry.Status = types.SupplierError
			entry.Error = types.CancelledMessage
			n++
		}
	}
	return n
}

// SetTotal replaces the running total with an authoritative value.
func (a *Aggregator) SetTotal(total int) {
	a.total = total
}

// Total returns the running total of created bills.
func (a *Aggregator) Total() int {
	return a.total
}

// Len returns the number of tracked suppliers.
func (a *Aggregator) Len() int {
	return len(a.order)
}

// Entries returns a copy of all entries in first-seen order.
func (a *Aggregator) Entries() []types.SupplierProgress {
	out := make([]types.SupplierProgress, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.entries[key])
	}
	return out
}
