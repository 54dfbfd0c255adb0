package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/ikommunicate-connector/internal/metrics"
	"github.com/rickgao/ikommunicate-connector/internal/router"
)

// flushTimeout bounds a background flush. Background flushes do not inherit
// the writer's lifecycle context, so Stop never aborts a copy in flight.
const flushTimeout = 30 * time.Second

// ValueWriter consumes ValueMsg from the router buffer and copies them into
// the signalk_values table.
type ValueWriter struct {
	cfg     WriterConfig
	logger  *slog.Logger
	metrics *metrics.Archive

	// Input from the router
	input *router.GrowableBuffer[router.ValueMsg]

	db DB

	// Batching
	batch   []valueRow
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats WriterMetrics
}

// NewValueWriter creates a new ValueWriter. m may be nil.
func NewValueWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.ValueMsg],
	db DB,
	m *metrics.Archive,
	logger *slog.Logger,
) *ValueWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewArchive(nil)
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &ValueWriter{
		cfg:     cfg,
		input:   input,
		db:      db,
		metrics: m,
		logger:  logger,
		batch:   make([]valueRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming values and writing to the database.
func (w *ValueWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("value writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the loops, then writes whatever is still batched or
// queued using ctx.
func (w *ValueWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping value writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("value writer stop timed out")
		return ctx.Err()
	}

	for _, msg := range w.input.DrainTo(0) {
		w.add(msg)
	}
	w.flush(ctx)

	w.logger.Info("value writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *ValueWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *ValueWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		msg, ok := w.input.TryReceive()
		if !ok {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		if w.add(msg) {
			w.backgroundFlush()
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *ValueWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.backgroundFlush()
		}
	}
}

func (w *ValueWriter) backgroundFlush() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), flushTimeout)
	defer cancel()
	w.flush(ctx)
}

// add appends msg to the batch and reports whether the batch is full.
func (w *ValueWriter) add(msg router.ValueMsg) bool {
	row := transform(msg)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(msg router.ValueMsg) valueRow {
	row := valueRow{
		DeltaID:    msg.DeltaID.String(),
		Instance:   msg.Instance,
		SourceID:   msg.SourceID,
		Context:    msg.Context,
		Path:       msg.Path,
		Value:      msg.Value,
		ReceivedAt: msg.ReceivedAt,
	}
	if msg.Source != "" {
		src := msg.Source
		row.Source = &src
	}
	if !msg.Timestamp.IsZero() {
		ts := msg.Timestamp
		row.Ts = &ts
	}
	return row
}

// flush copies the current batch to the database. A failed batch is logged
// and dropped.
func (w *ValueWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]valueRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	n, err := w.copyRows(ctx, batch)
	w.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	w.metrics.BufferDepth.Set(float64(w.input.Len()))

	if err != nil {
		w.logger.Error("copy values failed", "error", err, "count", len(batch))
		w.metrics.FlushErrors.Inc()
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.metrics.RowsWritten.Add(float64(n))
	w.metrics.Flushes.Inc()
	w.batchMu.Lock()
	w.stats.Inserts += n
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed values",
		"count", n,
		"duration", time.Since(start),
	)
}

func (w *ValueWriter) copyRows(ctx context.Context, rows []valueRow) (int64, error) {
	return w.db.CopyFrom(ctx,
		pgx.Identifier{valuesTable},
		valueColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.DeltaID, r.Instance, r.SourceID, r.Context, r.Path,
				r.Value, r.Source, r.Ts, r.ReceivedAt,
			}, nil
		}),
	)
}
