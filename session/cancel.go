package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pithecene-io/billsync/log"
	"github.com/pithecene-io/billsync/metrics"
)

// DefaultCancelTimeout bounds the out-of-band server cancel request.
const DefaultCancelTimeout = 5 * time.Second

// NotifyFunc asks the server to stop a running sync.
type NotifyFunc func(ctx context.Context) error

// CancellationController performs client-initiated cancellation.
//
// The first call to Cancel aborts the local stream read and sends one
// server cancel request in the background, bounded by the timeout. Further
// calls do nothing. Cancel never waits on the network; a failed or timed-out
// server request is logged and counted, never surfaced.
type CancellationController struct {
	abort     context.CancelFunc
	notify    NotifyFunc
	timeout   time.Duration
	logger    *log.Logger
	collector *metrics.Collector

	once      sync.Once
	requested atomic.Bool
	done      chan struct{}
}

// NewCancellationController creates a controller.
// abort cancels the streaming request; notify sends the server cancel call.
// Either may be nil. A non-positive timeout selects DefaultCancelTimeout.
func NewCancellationController(
	abort context.CancelFunc,
	notify NotifyFunc,
	timeout time.Duration,
	logger *log.Logger,
	collector *metrics.Collector,
) *CancellationController {
	if timeout <= 0 {
		timeout = DefaultCancelTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &CancellationController{
		abort:     abort,
		notify:    notify,
		timeout:   timeout,
		logger:    logger,
		collector: collector,
		done:      make(chan struct{}),
	}
}

// Cancel aborts the stream and notifies the server.
// It returns true only for the call that performed the cancellation.
// Safe to call from any goroutine.
func (c *CancellationController) Cancel() bool {
	first := false
	c.once.Do(func() {
		first = true
		c.requested.Store(true)
		if c.abort != nil {
			c.abort()
		}
		go c.notifyServer()
	})
	return first
}

// Requested returns true once Cancel has been called.
func (c *CancellationController) Requested() bool {
	return c.requested.Load()
}

// Done is closed when the server cancel request has finished, failed or
// timed out. It is never closed if Cancel was not called.
func (c *CancellationController) Done() <-chan struct{} {
	return c.done
}

func (c *CancellationController) notifyServer() {
	defer close(c.done)
	if c.notify == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	// notify may ignore ctx; the timeout still releases Done
	errc := make(chan error, 1)
	go func() { errc <- c.notify(ctx) }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		c.logger.Warn("server cancel request failed", map[string]any{
			"error":   err.Error(),
			"timeout": c.timeout.String(),
		})
		c.collector.IncCancelRequestFailed()
		return
	}
	c.logger.Debug("server cancel request sent", nil)
	c.collector.IncCancelRequestSent()
}
