package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/billsync/types"
)

// SnapshotMsg delivers a progress snapshot to the sync view.
type SnapshotMsg types.Snapshot

// ResultMsg delivers the terminal result and ends the sync view.
type ResultMsg struct {
	Result *types.SyncResult
}

// ProgressModel is the live sync view.
type ProgressModel struct {
	meta       types.SyncMeta
	snap       types.Snapshot
	result     *types.SyncResult
	spinner    spinner.Model
	cancel     func()
	cancelling bool
	width      int
}

// NewProgressModel creates the sync view. cancel is invoked once when the
// user presses the quit key while the sync is running.
func NewProgressModel(meta types.SyncMeta, cancel func()) ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = WarningStyle
	return ProgressModel{
		meta:    meta,
		snap:    types.Snapshot{SyncID: meta.SyncID, State: types.StateRunning},
		spinner: sp,
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if m.result != nil {
				return m, tea.Quit
			}
			if !m.cancelling {
				m.cancelling = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case SnapshotMsg:
		// Late snapshots never override the terminal view
		if m.result == nil && types.Snapshot(msg).Seq >= m.snap.Seq {
			m.snap = types.Snapshot(msg)
		}
		return m, nil

	case ResultMsg:
		m.result = msg.Result
		if msg.Result != nil {
			m.snap = msg.Result.Snapshot
		}
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Cancelling reports whether the user asked to cancel.
func (m ProgressModel) Cancelling() bool {
	return m.cancelling
}

// View implements tea.Model.
func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Supplier sync: " + m.meta.PropertyID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Sync ID:"), ValueStyle.Render(m.meta.SyncID))

	state := string(m.snap.State)
	status := StateStyle(state).Render(state)
	switch {
	case m.result != nil:
	case m.cancelling:
		status = m.spinner.View() + " " + WarningStyle.Render("cancelling")
	default:
		status = m.spinner.View() + " " + status
	}
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("State:"), status)
	fmt.Fprintf(&b, "%s %s\n\n", LabelStyle.Render("Bills created:"),
		ValueStyle.Render(fmt.Sprintf("%d", m.snap.TotalBillsCreated)))

	b.WriteString(supplierTable(m.snap.Entries))

	if m.result != nil && m.result.Message != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(m.result.Message))
		b.WriteString("\n")
	}

	help := "Press q or Ctrl+C to cancel the sync"
	if m.result != nil {
		help = "Sync finished"
	}
	return BoxStyle.Render(b.String()) + "\n" + HelpStyle.Render(help)
}

// supplierTable renders progress entries in first-seen order.
func supplierTable(entries []types.SupplierProgress) string {
	if len(entries) == 0 {
		return ValueStyle.Render("(waiting for suppliers)") + "\n"
	}

	nameWidth := len("Supplier")
	for _, e := range entries {
		if n := len(e.Key().String()); n > nameWidth {
			nameWidth = n
		}
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-*s  %-10s  %5s  %7s", nameWidth, "Supplier", "Status", "Found", "Created")))
	b.WriteString("\n")
	for _, e := range entries {
		status := StateStyle(string(e.Status)).Render(fmt.Sprintf("%-10s", e.Status))
		fmt.Fprintf(&b, "%-*s  %s  %5d  %7d", nameWidth, e.Key().String(), status, e.BillsFound, e.BillsCreated)
		if e.Error != "" {
			b.WriteString("  ")
			b.WriteString(ErrorStyle.Render(e.Error))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Progress runs the sync view in its own goroutine.
type Progress struct {
	program *tea.Program
	done    chan struct{}
	err     error
}

// StartProgress starts the sync view.
func StartProgress(meta types.SyncMeta, cancel func(), opts ...tea.ProgramOption) *Progress {
	p := &Progress{
		program: tea.NewProgram(NewProgressModel(meta, cancel), opts...),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		_, p.err = p.program.Run()
	}()
	return p
}

// Update sends a snapshot to the view.
func (p *Progress) Update(snap types.Snapshot) {
	p.program.Send(SnapshotMsg(snap))
}

// Finish shows the terminal result and waits for the view to exit.
func (p *Progress) Finish(result *types.SyncResult) error {
	p.program.Send(ResultMsg{Result: result})
	<-p.done
	return p.err
}
