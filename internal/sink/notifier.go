package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// NotifierConfig configures delivery to a sink.
type NotifierConfig struct {
	// Kind names the sink for health reporting.
	Kind string
	// Async queues records for a background worker. When false, Notify
	// delivers inline.
	Async bool
	// QueueSize bounds the async queue.
	QueueSize int
	// Timeout bounds each upsert.
	Timeout time.Duration
}

// Stats are delivery counters.
type Stats struct {
	Kind    string `json:"kind"`
	Sent    int64  `json:"sent"`
	Failed  int64  `json:"failed"`
	Dropped int64  `json:"dropped"`
}

type notification struct {
	collection string
	record     Record
}

// Notifier delivers records to a Sink without ever failing the caller.
type Notifier struct {
	sink   Sink
	cfg    NotifierConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan notification
	done   chan struct{}

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewNotifier starts a notifier over s.
func NewNotifier(s Sink, cfg NotifierConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	n := &Notifier{
		sink:   s,
		cfg:    cfg,
		logger: logger.With("component", "sink", "sink", cfg.Kind),
		done:   make(chan struct{}),
	}
	if cfg.Async {
		n.queue = make(chan notification, cfg.QueueSize)
		go n.run()
	} else {
		close(n.done)
	}
	return n
}

// Notify hands a record to the sink. It never blocks on the sink in async
// mode and never reports an error.
func (n *Notifier) Notify(collection string, record Record) {
	if !n.cfg.Async {
		n.mu.RLock()
		closed := n.closed
		n.mu.RUnlock()
		if closed {
			n.dropped.Add(1)
			return
		}
		n.deliver(collection, record)
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.dropped.Add(1)
		return
	}
	select {
	case n.queue <- notification{collection: collection, record: record}:
	default:
		n.dropped.Add(1)
		n.logger.Warn("Sink queue full, dropping record", "collection", collection, "session_id", record.SessionID())
	}
}

// Write delivers a record synchronously and returns the sink error.
func (n *Notifier) Write(ctx context.Context, collection string, record Record) error {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	if err := n.sink.Upsert(ctx, collection, record); err != nil {
		n.failed.Add(1)
		return err
	}
	n.sent.Add(1)
	return nil
}

// Stats returns a snapshot of the delivery counters.
func (n *Notifier) Stats() Stats {
	return Stats{
		Kind:    n.cfg.Kind,
		Sent:    n.sent.Load(),
		Failed:  n.failed.Load(),
		Dropped: n.dropped.Load(),
	}
}

// Close stops accepting records, drains the queue until ctx is done, then
// closes the sink.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	if n.queue != nil {
		close(n.queue)
	}
	n.mu.Unlock()

	var drainErr error
	select {
	case <-n.done:
	case <-ctx.Done():
		drainErr = fmt.Errorf("drain sink queue: %w", ctx.Err())
	}

	return errors.Join(drainErr, n.sink.Close())
}

func (n *Notifier) run() {
	defer close(n.done)
	for item := range n.queue {
		n.deliver(item.collection, item.record)
	}
}

func (n *Notifier) deliver(collection string, record Record) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()

	if err := n.sink.Upsert(ctx, collection, record); err != nil {
		n.failed.Add(1)
		n.logger.Warn("Sink upsert failed",
			"collection", collection,
			"session_id", record.SessionID(),
			"error", err,
		)
		return
	}
	n.sent.Add(1)
}
