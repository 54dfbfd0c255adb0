package connection

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/ikommunicate-connector/internal/model"
)

// recordingHost implements plugin.Host and keeps every call.
type recordingHost struct {
	mu       sync.Mutex
	calls    []string // "status:...", "error:...", "debug:...", "log-error:...", "message"
	statuses []string
	errors   []string
	messages []model.Delta
	sources  []string
}

func (h *recordingHost) SetProviderStatus(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, msg)
	h.calls = append(h.calls, "status:"+msg)
}

func (h *recordingHost) SetProviderError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	h.calls = append(h.calls, "error:"+msg)
}

func (h *recordingHost) Debug(msg string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "debug:"+msg)
}

func (h *recordingHost) Error(msg string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, "log-error:"+msg)
}

func (h *recordingHost) HandleMessage(sourceID string, delta model.Delta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, delta)
	h.sources = append(h.sources, sourceID)
	h.calls = append(h.calls, "message")
}

func (h *recordingHost) snapshot() (statuses, errors []string, messages []model.Delta) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.statuses...),
		append([]string(nil), h.errors...),
		append([]model.Delta(nil), h.messages...)
}

func (h *recordingHost) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *recordingHost) countErrors(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.errors {
		if e == msg {
			n++
		}
	}
	return n
}

// mockGateway is an httptest server speaking the iKommunicate stream
// endpoint. handler runs once per accepted connection, numbered from 1.
type mockGateway struct {
	server *httptest.Server

	mu          sync.Mutex
	conns       int
	connectedAt []time.Time
	badRequests []string
}

func newMockGateway(t *testing.T, handler func(n int, conn *websocket.Conn)) *mockGateway {
	t.Helper()
	g := &mockGateway{}
	upgrader := websocket.Upgrader{
		CheckOrigin:  func(r *http.Request) bool { return true },
		Subprotocols: []string{Subprotocol},
	}

	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/signalk/v1/stream" || r.URL.Query().Get("subscribe") != "all" {
			g.mu.Lock()
			g.badRequests = append(g.badRequests, r.URL.String())
			g.mu.Unlock()
			http.NotFound(w, r)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		g.mu.Lock()
		g.conns++
		n := g.conns
		g.connectedAt = append(g.connectedAt, time.Now())
		g.mu.Unlock()

		handler(n, conn)
	}))
	t.Cleanup(g.server.Close)
	return g
}

// endpoint returns the host and port the gateway listens on.
func (g *mockGateway) endpoint(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(g.server.URL, "http://"))
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return host, port
}

func (g *mockGateway) connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns
}

func (g *mockGateway) connectTimes() []time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]time.Time(nil), g.connectedAt...)
}

// holdOpen keeps a connection open until the peer goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// closedPort returns a localhost port with nothing listening on it.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

func testConfig(retry time.Duration) Config {
	return Config{
		RetryInterval: retry,
		Client: ClientConfig{
			Subprotocol:      Subprotocol,
			HandshakeTimeout: time.Second,
			PingInterval:     time.Second,
			PingTimeout:      5 * time.Second,
			WriteTimeout:     time.Second,
			BufferSize:       16,
		},
	}
}

func urlFor(host string, port int) string {
	return fmt.Sprintf("ws://%s:%d/signalk/v1/stream?subscribe=all", host, port)
}
