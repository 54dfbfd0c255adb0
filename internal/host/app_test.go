package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/ikommunicate-connector/internal/model"
	"github.com/rickgao/ikommunicate-connector/internal/plugin"
)

func parseDelta(t *testing.T, s string) model.Delta {
	t.Helper()
	var d model.Delta
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		t.Fatalf("parse delta: %v", err)
	}
	return d
}

func newTestApp(t *testing.T, logs *bytes.Buffer, sinks ...Sink) *App {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	app := New(plugin.ID, logger, sinks...)
	app.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return app
}

func TestApp_ProviderStatus(t *testing.T) {
	var logs bytes.Buffer
	app := newTestApp(t, &logs)

	if st := app.Status(); st.Message != "" || st.ProviderID != plugin.ID {
		t.Errorf("initial status = %+v", st)
	}

	app.SetProviderStatus("Connected to ws://10.0.0.5:80/signalk/v1/stream?subscribe=all")
	st := app.Status()
	if st.IsError || st.Message != "Connected to ws://10.0.0.5:80/signalk/v1/stream?subscribe=all" {
		t.Errorf("status = %+v", st)
	}

	app.SetProviderError("connection closed: ws://10.0.0.5:80/signalk/v1/stream?subscribe=all")
	st = app.Status()
	if !st.IsError || !strings.HasPrefix(st.Message, "connection closed: ") {
		t.Errorf("status = %+v", st)
	}
	if !st.UpdatedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v", st.UpdatedAt)
	}
}

func TestApp_LogsCarryPluginID(t *testing.T) {
	var logs bytes.Buffer
	app := newTestApp(t, &logs)

	app.Debug("connected")
	app.Error("connection error", "url", "ws://x", "error", errors.New("boom"))

	out := logs.String()
	for _, want := range []string{
		"level=DEBUG msg=connected plugin=" + plugin.ID,
		"level=ERROR msg=\"connection error\" plugin=" + plugin.ID + " url=ws://x error=boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("logs missing %q:\n%s", want, out)
		}
	}
}

func TestApp_HandleMessageFansOutInOrder(t *testing.T) {
	var order []string
	first := SinkFunc(func(sourceID string, d model.Delta) { order = append(order, "first:"+sourceID) })
	second := SinkFunc(func(sourceID string, d model.Delta) { order = append(order, "second:"+d.Context()) })

	var logs bytes.Buffer
	app := newTestApp(t, &logs, first)
	app.AddSink(second)

	app.HandleMessage(plugin.ID, parseDelta(t, `{"context":"vessels.self","updates":[]}`))
	app.HandleMessage(plugin.ID, parseDelta(t, `{"context":"vessels.self","updates":[]}`))
	app.HandleMessage("other", parseDelta(t, `{}`))

	want := []string{
		"first:" + plugin.ID, "second:vessels.self",
		"first:" + plugin.ID, "second:vessels.self",
		"first:other", "second:",
	}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}

	counts := app.Counts()
	if counts[plugin.ID] != 2 || counts["other"] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if app.LastDelta().IsZero() {
		t.Error("LastDelta should be set")
	}
}

func TestConsoleSink(t *testing.T) {
	delta := parseDelta(t, `{"context":"vessels.self","updates":[{"values":[{"path":"navigation.speedOverGround","value":3.2},{"path":"navigation.courseOverGroundTrue","value":1.1}]}]}`)

	var out bytes.Buffer
	NewConsoleSink(&out, false, nil).Handle(plugin.ID, delta)
	line := out.String()
	if !strings.Contains(line, "values=2 navigation.speedOverGround=3.2") || !strings.Contains(line, "vessels.self") {
		t.Errorf("summary line = %q", line)
	}

	out.Reset()
	NewConsoleSink(&out, false, nil).Handle(plugin.ID, parseDelta(t, `{"name":"iKommunicate"}`))
	if !strings.Contains(out.String(), "(no values)") {
		t.Errorf("hello line = %q", out.String())
	}

	out.Reset()
	NewConsoleSink(&out, true, nil).Handle(plugin.ID, parseDelta(t, `{"updates":[],"context":"vessels.self"}`))
	if got := strings.TrimSpace(out.String()); got != `{"context":"vessels.self","updates":[]}` {
		t.Errorf("verbose line = %q", got)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*App)
		archive    Pinger
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no status yet",
			setup:      func(*App) {},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "starting",
		},
		{
			name:       "connected",
			setup:      func(a *App) { a.SetProviderStatus("Connected to ws://x") },
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "connection closed",
			setup:      func(a *App) { a.SetProviderError("connection closed: ws://x") },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name:       "archive down",
			setup:      func(a *App) { a.SetProviderStatus("Connected to ws://x") },
			archive:    fakePinger{err: errors.New("connection refused")},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "archive up",
			setup:      func(a *App) { a.SetProviderStatus("Connected to ws://x") },
			archive:    fakePinger{},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			app := newTestApp(t, &logs)
			tt.setup(app)

			rec := httptest.NewRecorder()
			Handler(app, tt.archive).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var body healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if _, ok := body.Components["archive"]; ok != (tt.archive != nil) {
				t.Errorf("archive component present = %v", ok)
			}
		})
	}
}

func TestHandler_Plugin(t *testing.T) {
	var logs bytes.Buffer
	app := newTestApp(t, &logs)
	app.SetProviderStatus("Connected to ws://x")
	app.HandleMessage(plugin.ID, parseDelta(t, `{"updates":[]}`))

	rec := httptest.NewRecorder()
	Handler(app, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plugin", nil))

	var body struct {
		ID     string           `json:"id"`
		Name   string           `json:"name"`
		Schema json.RawMessage  `json:"schema"`
		Status ProviderStatus   `json:"status"`
		Deltas map[string]int64 `json:"deltas"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ID != plugin.ID || body.Name != plugin.Name {
		t.Errorf("identity = %q/%q", body.ID, body.Name)
	}
	if len(body.Schema) == 0 {
		t.Error("schema missing")
	}
	if body.Status.Message != "Connected to ws://x" {
		t.Errorf("status = %+v", body.Status)
	}
	if body.Deltas[plugin.ID] != 1 {
		t.Errorf("deltas = %v", body.Deltas)
	}
}
