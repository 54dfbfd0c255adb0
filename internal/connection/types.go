package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrAlreadyStarted  = errors.New("connector already started")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrInvalidDelta    = errors.New("delta is not a JSON object")
)

// Subprotocol is offered on every handshake; the iKommunicate expects it.
const Subprotocol = "ws"

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string
	Subprotocol      string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration // keepalive ping period
	PingTimeout      time.Duration // no ping/pong for this long closes the socket
	WriteTimeout     time.Duration
	BufferSize       int // Messages channel capacity
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Subprotocol:      Subprotocol,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1024,
	}
}

// Config configures the Connector.
type Config struct {
	// RetryInterval is the fixed delay between a close and the next
	// connection attempt. There is no backoff.
	RetryInterval time.Duration

	// RetryOnDialFailure also schedules a retry when the URL cannot be used
	// at all. Off by default so a misconfigured address surfaces once.
	RetryOnDialFailure bool

	// Client is the transport template; URL is filled in per attempt.
	Client ClientConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryInterval: 10 * time.Second,
		Client:        DefaultClientConfig(),
	}
}

// State is the Connector's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRetrying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
