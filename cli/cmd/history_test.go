package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/billsync/history"
	"github.com/pithecene-io/billsync/types"
)

func newTestApp() *cli.App {
	return &cli.App{
		Name:           "billsync",
		Commands:       []*cli.Command{HistoryCommand(), VersionCommand("abc123")},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// seedHistory records two syncs in an fs store under a temp dir.
func seedHistory(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store, err := history.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, state := range []types.SessionState{types.StateCompleted, types.StateFailed} {
		result := &types.SyncResult{
			SyncID:     "sync-" + string(rune('a'+i)),
			PropertyID: "prop-1",
			State:      state,
			Snapshot: types.Snapshot{
				SyncID: "sync-" + string(rune('a'+i)),
				State:  state,
				Entries: []types.SupplierProgress{
					{SupplierName: "Water Co", Status: types.SupplierCompleted, BillsFound: 1, BillsCreated: 1},
				},
				TotalBillsCreated: 1,
			},
			StartedAt: started.Add(time.Duration(i) * time.Hour),
			EndedAt:   started.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		if err := store.Record(t.Context(), result); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	return dir
}

func TestHistory_MissingPathExitsInvalidUsage(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, sub := range []string{"list", "stats"} {
		t.Run(sub, func(t *testing.T) {
			err := newTestApp().Run([]string{"billsync", "history", sub, "--format", "json"})
			if code := exitCode(t, err); code != exitInvalidUsage {
				t.Fatalf("exit code = %d, want %d", code, exitInvalidUsage)
			}
			if !strings.Contains(err.Error(), "--history-path is required") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestHistoryList_TUIRejected(t *testing.T) {
	err := newTestApp().Run([]string{"billsync", "history", "list", "--tui"})
	if code := exitCode(t, err); code != exitInvalidUsage {
		t.Fatalf("exit code = %d, want %d", code, exitInvalidUsage)
	}
	if !strings.Contains(err.Error(), "--tui is not supported for history list") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHistoryList_NegativeLimit(t *testing.T) {
	err := newTestApp().Run([]string{"billsync", "history", "list", "--limit", "-1"})
	if code := exitCode(t, err); code != exitInvalidUsage {
		t.Fatalf("exit code = %d, want %d", code, exitInvalidUsage)
	}
}

func TestHistoryList_InvalidBackend(t *testing.T) {
	t.Chdir(t.TempDir())
	err := newTestApp().Run([]string{"billsync", "history", "list", "--history-backend", "gcs", "--history-path", "x"})
	if code := exitCode(t, err); code != exitInvalidUsage {
		t.Fatalf("exit code = %d, want %d", code, exitInvalidUsage)
	}
}

func TestHistoryList_Success(t *testing.T) {
	dir := seedHistory(t)
	t.Chdir(t.TempDir())

	err := newTestApp().Run([]string{"billsync", "history", "list", "--history-path", dir, "--format", "json", "--property", "prop-1"})
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
}

func TestHistoryInspect_MissingArg(t *testing.T) {
	err := newTestApp().Run([]string{"billsync", "history", "inspect"})
	if code := exitCode(t, err); code != exitInvalidUsage {
		t.Fatalf("exit code = %d, want %d", code, exitInvalidUsage)
	}
	if !strings.Contains(err.Error(), "sync-id required") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHistoryInspect_NotFound(t *testing.T) {
	dir := seedHistory(t)
	t.Chdir(t.TempDir())

	err := newTestApp().Run([]string{"billsync", "history", "inspect", "--history-path", dir, "--format", "json", "missing"})
	if code := exitCode(t, err); code != exitFailed {
		t.Fatalf("exit code = %d, want %d (err=%v)", code, exitFailed, err)
	}
	if !strings.Contains(err.Error(), "sync missing not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHistoryInspect_Found(t *testing.T) {
	dir := seedHistory(t)
	t.Chdir(t.TempDir())

	err := newTestApp().Run([]string{"billsync", "history", "inspect", "--history-path", dir, "--format", "yaml", "sync-b"})
	if err != nil {
		t.Fatalf("history inspect failed: %v", err)
	}
}

func TestHistoryStats_Success(t *testing.T) {
	dir := seedHistory(t)
	t.Chdir(t.TempDir())

	err := newTestApp().Run([]string{"billsync", "history", "stats", "--history-path", dir, "--format", "json"})
	if err != nil {
		t.Fatalf("history stats failed: %v", err)
	}
}

func TestHistory_PathFromConfigFile(t *testing.T) {
	dir := seedHistory(t)
	t.Chdir(t.TempDir())
	writeConfig(t, "billsync.yaml", "history:\n  backend: fs\n  path: "+dir+"\n")

	err := newTestApp().Run([]string{"billsync", "history", "list", "--format", "json"})
	if err != nil {
		t.Fatalf("history list with config file failed: %v", err)
	}
}

func TestHistory_InvalidConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	writeConfig(t, "billsync.yaml", "history:\n  bogus: true\n")

	err := newTestApp().Run([]string{"billsync", "history", "list"})
	if code := exitCode(t, err); code != exitInvalidUsage {
		t.Fatalf("exit code = %d, want %d", code, exitInvalidUsage)
	}
}
