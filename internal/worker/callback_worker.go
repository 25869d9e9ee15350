package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/payout-ledger/internal/callback"
	"github.com/ayo6706/payout-ledger/internal/observability"
	"github.com/ayo6706/payout-ledger/internal/service"
	"go.uber.org/zap"
)

// CallbackWorker tails the callback log and hands new entries to a publisher.
// Entries are published in sequence order; a failed entry is retried on the
// next tick before anything after it.
type CallbackWorker struct {
	source       service.CallbackSource
	publisher    callback.Publisher
	pollInterval time.Duration
	batchSize    int

	mu     sync.Mutex
	cursor int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCallbackWorker creates a new CallbackWorker instance.
func NewCallbackWorker(source service.CallbackSource, publisher callback.Publisher) *CallbackWorker {
	return &CallbackWorker{
		source:       source,
		publisher:    publisher,
		pollInterval: time.Second,
		batchSize:    50,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *CallbackWorker) WithPollInterval(interval time.Duration) *CallbackWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize sets the batch size for the worker.
func (w *CallbackWorker) WithBatchSize(size int) *CallbackWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks until Stop is called or the context is canceled.
func (w *CallbackWorker) Start(ctx context.Context) {
	zap.L().Info("callback worker starting", zap.Duration("interval", w.pollInterval), zap.Int("batch", w.batchSize))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("callback worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("callback worker stop signal received")
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				zap.L().Warn("callback publish failed", zap.Error(err))
			}
		}
	}
}

// Stop signals the worker to stop.
func (w *CallbackWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *CallbackWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce publishes one batch of new entries and returns how many were published.
func (w *CallbackWorker) ProcessOnce(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.source.CallbacksAfter(w.cursor, w.batchSize)
	published := 0
	for _, entry := range entries {
		if err := w.publisher.Publish(ctx, entry); err != nil {
			observability.IncrementCallback(entry.Event, "publish_failed")
			observability.IncrementWorkerRun("callback", "failed")
			return published, fmt.Errorf("publish callback %d: %w", entry.Seq, err)
		}
		observability.IncrementCallback(entry.Event, "published")
		w.cursor = entry.Seq
		published++
	}
	if published > 0 {
		observability.IncrementWorkerRun("callback", "success")
	}
	return published, nil
}

// Cursor returns the sequence number of the last published entry.
func (w *CallbackWorker) Cursor() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}

func (w *CallbackWorker) String() string {
	return fmt.Sprintf("CallbackWorker(interval=%v, batch=%d)", w.pollInterval, w.batchSize)
}
