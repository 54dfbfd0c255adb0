package host

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/ikommunicate-connector/internal/model"
)

// ConsoleSink prints deltas to w. By default it prints one summary line per
// delta; verbose prints the full delta JSON.
type ConsoleSink struct {
	w       io.Writer
	verbose bool
	logger  *slog.Logger

	mu sync.Mutex
}

// NewConsoleSink creates a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer, verbose bool, logger *slog.Logger) *ConsoleSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSink{w: w, verbose: verbose, logger: logger}
}

// Handle prints delta.
func (c *ConsoleSink) Handle(sourceID string, delta model.Delta) {
	line, err := c.format(sourceID, delta)
	if err != nil {
		c.logger.Warn("failed to format delta", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

func (c *ConsoleSink) format(sourceID string, delta model.Delta) (string, error) {
	if c.verbose {
		data, err := json.Marshal(delta)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	updates, err := delta.Updates()
	if err != nil {
		return "", err
	}
	values := 0
	var first string
	for _, u := range updates {
		for _, v := range u.Values {
			if values == 0 {
				first = v.Path + "=" + string(v.Value)
			}
			values++
		}
	}

	ts := time.Now().Format("15:04:05.000")
	if values == 0 {
		return fmt.Sprintf("[%s] %-12s %s (no values)", ts, delta.Context(), sourceID), nil
	}
	return fmt.Sprintf("[%s] %-12s %s values=%d %s", ts, delta.Context(), sourceID, values, first), nil
}
