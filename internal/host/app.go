package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/ikommunicate-connector/internal/model"
)

// Sink receives every delta the host ingests. Handle must not block.
type Sink interface {
	Handle(sourceID string, delta model.Delta)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(sourceID string, delta model.Delta)

// Handle calls f.
func (f SinkFunc) Handle(sourceID string, delta model.Delta) { f(sourceID, delta) }

// ProviderStatus is the last status or error reported by the plugin.
type ProviderStatus struct {
	ProviderID string    `json:"id"`
	Message    string    `json:"message"`
	IsError    bool      `json:"isError"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// App is a plugin.Host.
type App struct {
	providerID string
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	status    ProviderStatus
	sinks     []Sink
	counts    map[string]int64
	lastDelta time.Time
}

// New creates an App for the plugin identified by providerID. Log lines are
// tagged with plugin=providerID.
func New(providerID string, logger *slog.Logger, sinks ...Sink) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		providerID: providerID,
		logger:     logger.With("plugin", providerID),
		now:        time.Now,
		status:     ProviderStatus{ProviderID: providerID},
		sinks:      sinks,
		counts:     make(map[string]int64),
	}
}

// AddSink registers s after the existing sinks.
func (a *App) AddSink(s Sink) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sinks = append(a.sinks, s)
}

// SetProviderStatus records a healthy status message.
func (a *App) SetProviderStatus(msg string) {
	a.setStatus(msg, false)
	a.logger.Info("provider status", "message", msg)
}

// SetProviderError records an error status message.
func (a *App) SetProviderError(msg string) {
	a.setStatus(msg, true)
	a.logger.Warn("provider error", "message", msg)
}

func (a *App) setStatus(msg string, isError bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = ProviderStatus{
		ProviderID: a.providerID,
		Message:    msg,
		IsError:    isError,
		UpdatedAt:  a.now(),
	}
}

// Debug logs at debug level.
func (a *App) Debug(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

// Error logs at error level.
func (a *App) Error(msg string, args ...any) {
	a.logger.Error(msg, args...)
}

// HandleMessage counts the delta against sourceID and passes it to each
// sink in registration order.
func (a *App) HandleMessage(sourceID string, delta model.Delta) {
	a.mu.Lock()
	a.counts[sourceID]++
	a.lastDelta = a.now()
	sinks := a.sinks
	a.mu.Unlock()

	for _, s := range sinks {
		s.Handle(sourceID, delta)
	}
}

// Status returns the last reported provider status.
func (a *App) Status() ProviderStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Counts returns the number of deltas received per source.
func (a *App) Counts() map[string]int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int64, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

// LastDelta returns when the most recent delta arrived, or the zero time.
func (a *App) LastDelta() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastDelta
}

// Pinger reports whether a dependency is reachable. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}
