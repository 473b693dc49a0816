// Package rowbuffer batches rows submitted by concurrent producers into
// shared inserts. A batch is flushed when it reaches MaxRows or when
// FlushInterval elapses, and every producer learns the outcome of the flush
// that carried its rows.
package rowbuffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/common"
)

// ErrStopped is returned by Submit once the buffer is not running.
var ErrStopped = errors.New("row buffer is not running")

// FlushFunc writes one batch.
type FlushFunc[R any] func(ctx context.Context, rows []R) error

type Config struct {
	MaxRows       int           `yaml:"maxRows" default:"50000"`
	FlushInterval time.Duration `yaml:"flushInterval" default:"1s"`
	// Table labels metrics.
	Table string `yaml:"-"`
}

// batch is the set of rows and producers that flush together.
type batch[R any] struct {
	rows    []R
	waiters []chan<- error
}

func (b *batch[R]) empty() bool {
	return len(b.rows) == 0
}

// Buffer is safe for concurrent use.
type Buffer[R any] struct {
	log     logrus.FieldLogger
	config  Config
	flushFn FlushFunc[R]

	mu      sync.Mutex
	pending batch[R]
	running bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func New[R any](log logrus.FieldLogger, cfg Config, flushFn FlushFunc[R]) *Buffer[R] {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 50000
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	return &Buffer[R]{
		log:     log.WithFields(logrus.Fields{"component": "rowbuffer", "table": cfg.Table}),
		config:  cfg,
		flushFn: flushFn,
	}
}

// Start runs the interval flusher until Stop. Cancelling ctx does not stop
// it; only Stop does, so rows submitted after cancellation still flush.
func (b *Buffer[R]) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	b.running = true
	b.stop = make(chan struct{})

	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		b.tick(context.WithoutCancel(ctx))
	}()

	return nil
}

// Stop flushes whatever is pending and stops the interval flusher.
func (b *Buffer[R]) Stop(ctx context.Context) error {
	b.mu.Lock()

	if !b.running {
		b.mu.Unlock()

		return nil
	}

	b.running = false
	close(b.stop)
	b.mu.Unlock()

	b.wg.Wait()

	if err := b.flush(ctx, b.take(), "stop"); err != nil {
		return fmt.Errorf("failed to flush pending rows: %w", err)
	}

	return nil
}

// Submit queues rows and blocks until the batch holding them is flushed.
func (b *Buffer[R]) Submit(ctx context.Context, rows []R) error {
	if len(rows) == 0 {
		return nil
	}

	result := make(chan error, 1)

	b.mu.Lock()

	if !b.running {
		b.mu.Unlock()

		return ErrStopped
	}

	b.pending.rows = append(b.pending.rows, rows...)
	b.pending.waiters = append(b.pending.waiters, result)

	common.RowBufferPendingRows.WithLabelValues(b.config.Table).Set(float64(len(b.pending.rows)))

	var full batch[R]
	if len(b.pending.rows) >= b.config.MaxRows {
		full = b.pending
		b.pending = batch[R]{}
	}

	b.mu.Unlock()

	if !full.empty() {
		// Flushed on its own context so one producer's cancellation cannot fail the others.
		go func() {
			_ = b.flush(context.Background(), full, "size")
		}()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of rows waiting for a flush.
func (b *Buffer[R]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending.rows)
}

func (b *Buffer[R]) take() batch[R] {
	b.mu.Lock()
	defer b.mu.Unlock()

	taken := b.pending
	b.pending = batch[R]{}

	common.RowBufferPendingRows.WithLabelValues(b.config.Table).Set(0)

	return taken
}

func (b *Buffer[R]) tick(ctx context.Context) {
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			_ = b.flush(ctx, b.take(), "timer")
		}
	}
}

func (b *Buffer[R]) flush(ctx context.Context, bt batch[R], trigger string) error {
	if bt.empty() {
		return nil
	}

	start := time.Now()
	err := b.flushFn(ctx, bt.rows)

	status := "success"
	if err != nil {
		status = "failed"
	}

	common.RowBufferFlushes.WithLabelValues(b.config.Table, trigger, status).Inc()
	common.RowBufferFlushDuration.WithLabelValues(b.config.Table).Observe(time.Since(start).Seconds())
	common.RowBufferFlushSize.WithLabelValues(b.config.Table).Observe(float64(len(bt.rows)))

	fields := logrus.Fields{
		"rows":      len(bt.rows),
		"producers": len(bt.waiters),
		"trigger":   trigger,
		"duration":  time.Since(start),
	}

	if err != nil {
		b.log.WithError(err).WithFields(fields).Error("Batch flush failed")
	} else {
		b.log.WithFields(fields).Debug("Batch flushed")
	}

	for _, w := range bt.waiters {
		w <- err
	}

	return err
}
