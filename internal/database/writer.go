package database

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"facetrack/internal/pipeline"
)

// ErrWriterClosed is returned by Submit after Close
var ErrWriterClosed = errors.New("sample writer closed")

// WriterOptions configures an AsyncWriter
type WriterOptions struct {
	QueueSize    int           // Rows buffered before Submit blocks, default 256
	BatchSize    int           // Max rows per store call, default 32
	WriteTimeout time.Duration // Per batch, default 5s
}

// WriterStats reports AsyncWriter counters
type WriterStats struct {
	Queued  int    `json:"queued"`
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
}

// AsyncWriter is a pipeline.SampleSink that persists rows off the tracking loop
// Rows are written in submission order by a single worker.
type AsyncWriter struct {
	store   SampleStore
	opts    WriterOptions
	queue   chan pipeline.SampleRow
	done    chan struct{}
	closed  bool
	mu      sync.RWMutex
	written atomic.Uint64
	failed  atomic.Uint64
	warn    rate.Sometimes
	now     func() time.Time
	log     *logrus.Entry
}

// NewAsyncWriter starts a writer in front of store
func NewAsyncWriter(store SampleStore, opts WriterOptions, log *logrus.Entry) *AsyncWriter {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	w := &AsyncWriter{
		store: store,
		opts:  opts,
		queue: make(chan pipeline.SampleRow, opts.QueueSize),
		done:  make(chan struct{}),
		warn:  rate.Sometimes{First: 3, Interval: 10 * time.Second},
		now:   time.Now,
		log:   log,
	}
	go w.run()
	return w
}

// Submit assigns the row an id and creation time and queues it
func (w *AsyncWriter) Submit(ctx context.Context, row pipeline.SampleRow) error {
	if row.ID == "" {
		row.ID = ulid.Make().String()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = w.now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}

	select {
	case w.queue <- row:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AsyncWriter) run() {
	defer close(w.done)

	for row := range w.queue {
		batch := []pipeline.SampleRow{row}
	drain:
		for len(batch) < w.opts.BatchSize {
			select {
			case next, ok := <-w.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		w.flush(batch)
	}
}

func (w *AsyncWriter) flush(batch []pipeline.SampleRow) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.WriteTimeout)
	defer cancel()

	if err := w.store.InsertSamples(ctx, batch); err != nil {
		w.failed.Add(uint64(len(batch)))
		w.warn.Do(func() {
			w.log.WithError(err).WithFields(logrus.Fields{
				"rows":   len(batch),
				"failed": w.failed.Load(),
			}).Warn("failed to persist samples")
		})
		return
	}
	w.written.Add(uint64(len(batch)))
}

// Stats returns the writer counters
func (w *AsyncWriter) Stats() WriterStats {
	return WriterStats{
		Queued:  len(w.queue),
		Written: w.written.Load(),
		Failed:  w.failed.Load(),
	}
}

// Close stops accepting rows and waits until the queue is drained
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	stats := w.Stats()
	w.log.WithFields(logrus.Fields{"written": stats.Written, "failed": stats.Failed}).Info("sample writer closed")
	return nil
}

var _ pipeline.SampleSink = (*AsyncWriter)(nil)
