package router

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/ikommunicate-connector/internal/metrics"
	"github.com/rickgao/ikommunicate-connector/internal/model"
)

// Router flattens deltas into ValueMsg rows and queues them for the writer.
// Handle never blocks: when the buffer is at its maximum size the oldest
// rows are dropped.
type Router struct {
	cfg     RouterConfig
	logger  *slog.Logger
	metrics *metrics.Archive
	buf     *GrowableBuffer[ValueMsg]
	now     func() time.Time

	mu    sync.Mutex
	stats RouterStats
}

// NewRouter creates a Router. m may be nil.
func NewRouter(cfg RouterConfig, m *metrics.Archive, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewArchive(nil)
	}
	def := DefaultRouterConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = def.MaxBufferSize
	}

	return &Router{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		buf:     NewGrowableBuffer[ValueMsg](cfg.BufferSize, cfg.MaxBufferSize),
		now:     time.Now,
	}
}

// Handle routes one delta. Deltas without updates, such as the gateway's
// hello message, are counted and skipped.
func (r *Router) Handle(sourceID string, delta model.Delta) {
	receivedAt := r.now()

	r.mu.Lock()
	r.stats.DeltasReceived++
	r.mu.Unlock()

	updates, err := delta.Updates()
	if err != nil {
		r.skip(true)
		r.logger.Warn("skipping delta with unreadable updates",
			"source_id", sourceID,
			"error", err,
		)
		return
	}

	values := 0
	for _, u := range updates {
		values += len(u.Values)
	}
	if values == 0 {
		r.skip(false)
		return
	}

	id := uuid.New()
	deltaContext := delta.Context()

	routed := 0
	for _, u := range updates {
		ts, _ := u.Time()
		source := u.SourceLabel()
		for _, v := range u.Values {
			msg := ValueMsg{
				DeltaID:    id,
				Instance:   r.cfg.Instance,
				SourceID:   sourceID,
				Context:    deltaContext,
				Path:       v.Path,
				Value:      v.Value,
				Source:     source,
				Timestamp:  ts,
				ReceivedAt: receivedAt,
			}
			evicted, ok := r.buf.Offer(msg)
			if !ok {
				r.logger.Debug("archive buffer closed, dropping delta", "delta_id", id)
				r.account(routed)
				return
			}
			if evicted {
				r.metrics.BufferDropped.Inc()
			}
			routed++
		}
	}
	r.account(routed)
}

// Buffer returns the output buffer for the writer to consume.
func (r *Router) Buffer() *GrowableBuffer[ValueMsg] {
	return r.buf
}

// Close closes the output buffer. Rows already queued stay readable.
func (r *Router) Close() {
	r.buf.Close()
}

// Stats returns current router statistics.
func (r *Router) Stats() RouterStats {
	r.mu.Lock()
	stats := r.stats
	r.mu.Unlock()
	stats.Buffer = r.buf.Stats()
	return stats
}

func (r *Router) skip(parseError bool) {
	r.mu.Lock()
	r.stats.DeltasSkipped++
	if parseError {
		r.stats.ParseErrors++
	}
	r.mu.Unlock()
	r.metrics.DeltasSkipped.Inc()
}

func (r *Router) account(routed int) {
	r.mu.Lock()
	r.stats.ValuesRouted += int64(routed)
	r.mu.Unlock()
	r.metrics.ValuesRouted.Add(float64(routed))
	r.metrics.BufferDepth.Set(float64(r.buf.Len()))
}
