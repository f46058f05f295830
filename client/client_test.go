package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/billsync/iox"
	"github.com/pithecene-io/billsync/session"
	"github.com/pithecene-io/billsync/types"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: url, Token: "secret-token"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
	}{
		{"empty", ""},
		{"no scheme", "api.example.com"},
		{"bad scheme", "ftp://api.example.com"},
		{"unparsable", "http://[::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{BaseURL: tt.baseURL}); err == nil {
				t.Errorf("New(%q) expected error", tt.baseURL)
			}
		})
	}
}

func TestURLs(t *testing.T) {
	c, err := New(Config{BaseURL: "https://api.example.com/v1/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if got, want := c.StartURL("prop 1", "abc-123"), "https://api.example.com/v1/suppliers/sync/prop%201?sync_id=abc-123"; got != want {
		t.Errorf("StartURL = %q, want %q", got, want)
	}
	if got, want := c.CancelURL("p1", "abc&x"), "https://api.example.com/v1/suppliers/sync/p1/cancel?sync_id=abc%26x"; got != want {
		t.Errorf("CancelURL = %q, want %q", got, want)
	}
}

func TestOpenStream_Request(t *testing.T) {
	var gotReq *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: start\ndata: {}\n\n")
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	body, err := c.OpenStream(t.Context(), "prop-1", "sync-1")
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer iox.DiscardClose(body)

	data, _ := io.ReadAll(body)
	if string(data) != "event: start\ndata: {}\n\n" {
		t.Errorf("body = %q", data)
	}

	if gotReq.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", gotReq.Method)
	}
	if gotReq.URL.Path != "/suppliers/sync/prop-1" {
		t.Errorf("path = %s", gotReq.URL.Path)
	}
	if got := gotReq.URL.Query().Get("sync_id"); got != "sync-1" {
		t.Errorf("sync_id = %q", got)
	}
	if got := gotReq.Header.Get("Accept"); got != "text/event-stream" {
		t.Errorf("Accept = %q", got)
	}
	if got := gotReq.Header.Get("Authorization"); got != "Bearer secret-token" {
		t.Errorf("Authorization = %q", got)
	}
	if got := gotReq.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := gotReq.Header.Get("User-Agent"); got != "billsync/"+types.Version {
		t.Errorf("User-Agent = %q", got)
	}
}

func TestOpenStream_StatusErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"json detail", http.StatusUnauthorized, `{"detail":"Invalid token"}`, "Invalid token"},
		{"json error", http.StatusConflict, `{"error":"sync already running"}`, "sync already running"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["query"]}]}`, ""},
		{"plain text", http.StatusBadGateway, "upstream unavailable", "upstream unavailable"},
		{"html", http.StatusInternalServerError, "<html><body>oops</body></html>", ""},
		{"empty", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			c := newTestClient(t, ts.URL)
			_, err := c.OpenStream(t.Context(), "prop-1", "sync-1")

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if statusErr.Code != tt.status {
				t.Errorf("Code = %d, want %d", statusErr.Code, tt.status)
			}
			if statusErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", statusErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestOpenStream_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := newTestClient(t, url)
	if _, err := c.OpenStream(t.Context(), "prop-1", "sync-1"); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestCancelSync(t *testing.T) {
	var gotPath, gotSyncID, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSyncID = r.URL.Query().Get("sync_id")
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"status":"cancelling"}`)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	if err := c.CancelSync(t.Context(), "prop-1", "sync-1"); err != nil {
		t.Fatalf("CancelSync: %v", err)
	}
	if gotPath != "/suppliers/sync/prop-1/cancel" {
		t.Errorf("path = %s", gotPath)
	}
	if gotSyncID != "sync-1" {
		t.Errorf("sync_id = %q", gotSyncID)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestCancelSync_StatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"unknown sync"}`)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	err := c.CancelSync(t.Context(), "prop-1", "sync-1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if statusErr.Message != "unknown sync" {
		t.Errorf("Message = %q", statusErr.Message)
	}
}

// streamFrames writes frames one at a time with a flush after each,
// optionally splitting each frame across two writes.
func streamFrames(w http.ResponseWriter, frames []string, split bool) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, f := range frames {
		parts := []string{f}
		if split {
			parts = []string{f[:len(f)/2], f[len(f)/2:]}
		}
		for _, p := range parts {
			_, _ = io.WriteString(w, p)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func TestSession_EndToEnd(t *testing.T) {
	frames := []string{
		"event: start\ndata: {}\n\n",
		"event: progress\ndata: {\"supplier_name\":\"Acme Power\",\"contract_id\":\"C-1\",\"status\":\"processing\",\"bills_found\":3,\"bills_created\":1}\n\n",
		": keep-alive\n\n",
		"event: progress\ndata: {\"supplier_name\":\"Water Co\",\"status\":\"error\",\"error\":\"login failed\"}\n\n",
		"event: progress\ndata: {\"supplier_name\":\"Acme Power\",\"contract_id\":\"C-1\",\"status\":\"completed\",\"bills_found\":3,\"bills_created\":3}\n\n",
		"event: complete\ndata: {\"bills_created\":3}\n\n",
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamFrames(w, frames, true)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	s := session.New(types.SyncMeta{SyncID: "sync-1", PropertyID: "prop-1"}, c)

	result, err := s.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != types.StateCompleted {
		t.Fatalf("State = %s (%s), want completed", result.State, result.Message)
	}
	if result.Snapshot.TotalBillsCreated != 3 {
		t.Errorf("TotalBillsCreated = %d, want 3", result.Snapshot.TotalBillsCreated)
	}
	if result.Snapshot.FailedSuppliers() != 1 {
		t.Errorf("FailedSuppliers = %d, want 1", result.Snapshot.FailedSuppliers())
	}
	water, ok := result.Snapshot.Entry(types.SupplierKey{SupplierName: "Water Co"})
	if !ok || water.Error != "login failed" {
		t.Errorf("Water Co entry = %+v", water)
	}
}

func TestSession_EndToEndCancel(t *testing.T) {
	var mu sync.Mutex
	var cancelled []string
	streamClosed := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /suppliers/sync/{property}", func(w http.ResponseWriter, r *http.Request) {
		defer close(streamClosed)
		streamFrames(w, []string{
			"event: start\ndata: {}\n\n",
			"event: progress\ndata: {\"supplier_name\":\"Acme\",\"status\":\"processing\",\"bills_found\":2}\n\n",
		}, false)
		// Hold the stream open until the client goes away
		<-r.Context().Done()
	})
	mux.HandleFunc("POST /suppliers/sync/{property}/cancel", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cancelled = append(cancelled, fmt.Sprintf("%s/%s", r.PathValue("property"), r.URL.Query().Get("sync_id")))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	s := session.New(types.SyncMeta{SyncID: "sync-9", PropertyID: "prop-1"}, c)

	progressed := make(chan struct{}, 1)
	s.Subscribe(func(snap types.Snapshot) {
		if len(snap.Entries) > 0 {
			select {
			case progressed <- struct{}{}:
			default:
			}
		}
	})
	if err := s.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-progressed:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress received")
	}
	s.Cancel()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	result, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.State != types.StateCancelled {
		t.Fatalf("State = %s, want cancelled", result.State)
	}
	if e := result.Snapshot.Entries[0]; e.Error != types.CancelledMessage {
		t.Errorf("entry = %+v, want cancelled", e)
	}

	select {
	case <-streamClosed:
	case <-time.After(5 * time.Second):
		t.Fatal("stream request was not aborted")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(cancelled) != 1 || cancelled[0] != "prop-1/sync-9" {
		t.Errorf("cancel calls = %v, want [prop-1/sync-9]", cancelled)
	}
}

func TestSession_EndToEndUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	s := session.New(types.SyncMeta{SyncID: "sync-1", PropertyID: "prop-1"}, c)

	result, err := s.Run(t.Context())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != types.StateFailed {
		t.Fatalf("State = %s, want failed", result.State)
	}
	if !strings.Contains(result.Message, "Not authenticated") {
		t.Errorf("Message = %q", result.Message)
	}
}
