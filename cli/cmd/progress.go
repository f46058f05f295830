package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pithecene-io/billsync/types"
)

// progressInterval is the minimum spacing between running-total lines.
const progressInterval = 500 * time.Millisecond

// progressPrinter writes plain progress lines for non-TUI syncs.
// Supplier outcomes are always printed; running-total lines are rate limited.
type progressPrinter struct {
	mu        sync.Mutex
	w         io.Writer
	limiter   *rate.Limiter
	statuses  map[types.SupplierKey]types.SupplierStatus
	lastTotal int
	finished  bool
}

func newProgressPrinter(w io.Writer, every time.Duration) *progressPrinter {
	return &progressPrinter{
		w:        w,
		limiter:  rate.NewLimiter(rate.Every(every), 1),
		statuses: make(map[types.SupplierKey]types.SupplierStatus),
	}
}

// Snapshot prints the changes since the previous snapshot.
func (p *progressPrinter) Snapshot(snap types.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}

	done := 0
	for _, e := range snap.Entries {
		if !e.Status.InFlight() {
			done++
		}
		key := e.Key()
		if prev, seen := p.statuses[key]; seen && prev == e.Status {
			continue
		}
		p.statuses[key] = e.Status

		switch e.Status {
		case types.SupplierCompleted:
			fmt.Fprintf(p.w, "  done   %s: %d found, %d created\n", key, e.BillsFound, e.BillsCreated)
		case types.SupplierError:
			fmt.Fprintf(p.w, "  error  %s: %s\n", key, e.Error)
		}
	}

	if snap.State.IsTerminal() {
		p.finished = true
		fmt.Fprintf(p.w, "sync %s: %d/%d suppliers finished, %d bills created\n",
			snap.State, done, len(snap.Entries), snap.TotalBillsCreated)
		return
	}

	if snap.TotalBillsCreated != p.lastTotal && p.limiter.Allow() {
		p.lastTotal = snap.TotalBillsCreated
		fmt.Fprintf(p.w, "  ...    %d/%d suppliers finished, %d bills created\n",
			done, len(snap.Entries), snap.TotalBillsCreated)
	}
}

// Diagnostic prints an advisory frame problem.
func (p *progressPrinter) Diagnostic(d types.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "warning: skipped %s frame: %v\n", d.EventType, d.Err)
}
