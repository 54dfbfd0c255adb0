package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func clientConfigFor(t *testing.T, g *mockGateway) ClientConfig {
	t.Helper()
	host, port := g.endpoint(t)
	cfg := testConfig(time.Second).Client
	cfg.URL = urlFor(host, port)
	return cfg
}

func TestClient_Connect(t *testing.T) {
	gw := newMockGateway(t, func(_ int, conn *websocket.Conn) {
		holdOpen(conn)
	})

	client := NewClient(clientConfigFor(t, gw), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_NegotiatesSubprotocol(t *testing.T) {
	got := make(chan string, 1)
	gw := newMockGateway(t, func(_ int, conn *websocket.Conn) {
		got <- conn.Subprotocol()
		holdOpen(conn)
	})

	client := NewClient(clientConfigFor(t, gw), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case proto := <-got:
		if proto != "ws" {
			t.Errorf("subprotocol = %q, want %q", proto, "ws")
		}
	case <-time.After(time.Second):
		t.Fatal("gateway never saw the connection")
	}
}

func TestClient_Messages(t *testing.T) {
	frames := []string{
		`{"updates":[{"values":[{"path":"a","value":1}]}]}`,
		`{"updates":[{"values":[{"path":"a","value":2}]}]}`,
		`{"updates":[{"values":[{"path":"a","value":3}]}]}`,
	}

	gw := newMockGateway(t, func(_ int, conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		holdOpen(conn)
	})

	client := NewClient(clientConfigFor(t, gw), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	timeout := time.After(time.Second)
	for i, want := range frames {
		select {
		case msg := <-client.Messages():
			if string(msg.Data) != want {
				t.Errorf("message %d: got %q, want %q", i, msg.Data, want)
			}
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for message %d", i)
		}
	}
}

func TestClient_ServerCloseEndsMessages(t *testing.T) {
	gw := newMockGateway(t, func(_ int, conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	})

	client := NewClient(clientConfigFor(t, gw), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case _, ok := <-client.Messages():
		if ok {
			t.Fatal("expected messages channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("messages channel not closed after server close")
	}

	if !isNormalClosure(client.Err()) {
		t.Errorf("Err() = %v, want normal closure", client.Err())
	}
}

func TestClient_LocalCloseHasNoError(t *testing.T) {
	gw := newMockGateway(t, func(_ int, conn *websocket.Conn) {
		holdOpen(conn)
	})

	client := NewClient(clientConfigFor(t, gw), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	client.Close()

	select {
	case <-client.Messages():
	case <-time.After(time.Second):
		t.Fatal("messages channel not closed after Close")
	}
	if err := client.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after local close", err)
	}
}

func TestClient_StaleConnection(t *testing.T) {
	// The handler never reads, so pings are never answered.
	release := make(chan struct{})
	gw := newMockGateway(t, func(_ int, conn *websocket.Conn) {
		<-release
	})
	defer close(release)

	cfg := clientConfigFor(t, gw)
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 60 * time.Millisecond

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case <-client.Messages():
	case <-time.After(2 * time.Second):
		t.Fatal("stale connection was not closed")
	}
	if !errors.Is(client.Err(), ErrStaleConnection) {
		t.Errorf("Err() = %v, want ErrStaleConnection", client.Err())
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	cfg := testConfig(time.Second).Client
	cfg.URL = urlFor("127.0.0.1", closedPort(t))

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err == nil {
		client.Close()
		t.Fatal("expected dial error")
	}
	if client.IsConnected() {
		t.Error("IsConnected should be false after failed dial")
	}
}

func TestClient_DoubleClose(t *testing.T) {
	gw := newMockGateway(t, func(_ int, conn *websocket.Conn) {
		holdOpen(conn)
	})

	client := NewClient(clientConfigFor(t, gw), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://127.0.0.1:1/"}, nil)
	client.Close()

	if err := client.Connect(context.Background()); err != ErrAlreadyClosed {
		t.Errorf("Connect() error = %v, want ErrAlreadyClosed", err)
	}
}
