package host

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/ikommunicate-connector/internal/plugin"
)

type healthResponse struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

// Handler serves /health and /plugin for app. archive may be nil when the
// archive is disabled.
func Handler(app *App, archive Pinger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := healthResponse{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		st := app.Status()
		switch {
		case st.Message == "":
			health.Status = "starting"
		case st.IsError:
			health.Status = "unhealthy"
		}
		health.Components["gateway"] = st

		if archive != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := archive.Ping(ctx); err != nil {
				if health.Status == "healthy" {
					health.Status = "degraded"
				}
				health.Components["archive"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["archive"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" || health.Status == "starting" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/plugin", func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			plugin.Metadata
			Status    ProviderStatus   `json:"status"`
			Deltas    map[string]int64 `json:"deltas"`
			LastDelta *time.Time       `json:"lastDelta,omitempty"`
		}{
			Metadata: plugin.Describe(),
			Status:   app.Status(),
			Deltas:   app.Counts(),
		}
		if last := app.LastDelta(); !last.IsZero() {
			resp.LastDelta = &last
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	return mux
}
