package router

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RouterConfig holds configuration for the delta router.
type RouterConfig struct {
	// Instance is stamped on every row so several connectors can share a
	// database.
	Instance string

	BufferSize    int // Default: 1024
	MaxBufferSize int // Default: 1 << 20
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		BufferSize:    1024,
		MaxBufferSize: 1 << 20,
	}
}

// ValueMsg is one path value taken out of a delta. All values from the same
// delta share a DeltaID.
type ValueMsg struct {
	DeltaID    uuid.UUID
	Instance   string
	SourceID   string // plugin that forwarded the delta
	Context    string
	Path       string
	Value      json.RawMessage
	Source     string    // update source label, "" if none
	Timestamp  time.Time // zero when the update had no usable timestamp
	ReceivedAt time.Time
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	DeltasReceived int64
	DeltasSkipped  int64
	ValuesRouted   int64
	ParseErrors    int64
	Buffer         BufferStats
}
