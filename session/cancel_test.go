package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/billsync/metrics"
)

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server cancel request")
	}
}

func TestCancellationController_Idempotent(t *testing.T) {
	var aborts, notifies atomic.Int32
	collector := metrics.NewCollector("s", "p", "none")
	c := NewCancellationController(
		func() { aborts.Add(1) },
		func(context.Context) error { notifies.Add(1); return nil },
		time.Second,
		nil,
		collector,
	)

	if c.Requested() {
		t.Fatal("Requested() before Cancel")
	}

	var wg sync.WaitGroup
	var firsts atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Cancel() {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	waitDone(t, c.Done())

	if firsts.Load() != 1 {
		t.Errorf("Cancel() returned true %d times, want 1", firsts.Load())
	}
	if aborts.Load() != 1 {
		t.Errorf("abort called %d times, want 1", aborts.Load())
	}
	if notifies.Load() != 1 {
		t.Errorf("notify called %d times, want 1", notifies.Load())
	}
	if !c.Requested() {
		t.Error("Requested() = false after Cancel")
	}
	if got := collector.Snapshot().CancelRequestsSent; got != 1 {
		t.Errorf("CancelRequestsSent = %d, want 1", got)
	}
}

func TestCancellationController_AbortsBeforeReturning(t *testing.T) {
	ctx, abort := context.WithCancel(t.Context())
	c := NewCancellationController(abort, nil, 0, nil, nil)

	c.Cancel()

	if ctx.Err() == nil {
		t.Error("stream context not cancelled when Cancel returned")
	}
	waitDone(t, c.Done())
}

func TestCancellationController_DoesNotBlockOnNetwork(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := NewCancellationController(nil, func(context.Context) error {
		<-release
		return nil
	}, time.Minute, nil, nil)

	returned := make(chan struct{})
	go func() {
		c.Cancel()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Cancel blocked on the server request")
	}
}

func TestCancellationController_TimeoutBoundsNotify(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	collector := metrics.NewCollector("s", "p", "none")
	// notify ignores ctx entirely
	c := NewCancellationController(nil, func(context.Context) error {
		<-release
		return nil
	}, 20*time.Millisecond, nil, collector)

	c.Cancel()
	waitDone(t, c.Done())

	if got := collector.Snapshot().CancelRequestsFailed; got != 1 {
		t.Errorf("CancelRequestsFailed = %d, want 1", got)
	}
}

func TestCancellationController_NotifyFailureLoggedOnly(t *testing.T) {
	collector := metrics.NewCollector("s", "p", "none")
	c := NewCancellationController(nil, func(context.Context) error {
		return errors.New("connection refused")
	}, time.Second, nil, collector)

	if !c.Cancel() {
		t.Fatal("first Cancel() = false")
	}
	waitDone(t, c.Done())

	s := collector.Snapshot()
	if s.CancelRequestsFailed != 1 || s.CancelRequestsSent != 0 {
		t.Errorf("sent/failed = %d/%d, want 0/1", s.CancelRequestsSent, s.CancelRequestsFailed)
	}
}

func TestCancellationController_NotifyReceivesDeadline(t *testing.T) {
	var hasDeadline atomic.Bool
	c := NewCancellationController(nil, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hasDeadline.Store(ok)
		return nil
	}, time.Second, nil, nil)

	c.Cancel()
	waitDone(t, c.Done())

	if !hasDeadline.Load() {
		t.Error("notify context has no deadline")
	}
}
