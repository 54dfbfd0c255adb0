package connection

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/ikommunicate-connector/internal/metrics"
	"github.com/rickgao/ikommunicate-connector/internal/model"
	"github.com/rickgao/ikommunicate-connector/internal/plugin"
)

// Connector keeps one self-healing connection to an iKommunicate and relays
// its deltas to the host.
type Connector struct {
	cfg       Config
	host      plugin.Host
	logger    *slog.Logger
	metrics   *metrics.Connector
	newClient ClientFactory

	mu    sync.Mutex
	state State
	sess  *session // held until the session's goroutines have exited
}

// Option configures a Connector.
type Option func(*Connector)

// WithMetrics records connector activity on m.
func WithMetrics(m *metrics.Connector) Option {
	return func(c *Connector) { c.metrics = m }
}

// WithLogger sets the logger used for transport diagnostics. Host-visible
// log lines always go through plugin.Host.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithClientFactory replaces the gorilla-backed client.
func WithClientFactory(f ClientFactory) Option {
	return func(c *Connector) { c.newClient = f }
}

// NewConnector creates a Connector reporting to host.
func NewConnector(cfg Config, host plugin.Host, opts ...Option) *Connector {
	c := &Connector{
		cfg:       cfg,
		host:      host,
		newClient: NewClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewConnector(nil)
	}
	if c.cfg.RetryInterval <= 0 {
		c.cfg.RetryInterval = DefaultConfig().RetryInterval
	}
	return c
}

// Start builds the stream URL from opts and begins connecting. The options
// are assumed to be validated by the host.
func (c *Connector) Start(ctx context.Context, opts plugin.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		return ErrAlreadyStarted
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		c:      c,
		url:    StreamURL(opts.IPAddress, opts.Port),
		ctx:    sctx,
		cancel: cancel,
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
	c.sess = s
	c.state = StateIdle
	c.metrics.State.Set(float64(StateIdle))

	s.wg.Add(1)
	go s.run()

	c.logger.Info("connector started", "url", s.url)
	return nil
}

// Stop closes the active connection and cancels any pending retry. No host
// callbacks are made once Stop returns. Stop on a stopped connector is a
// no-op.
//
// Called from within a host callback, Stop cannot wait for the loop that is
// running the callback: it cancels the session and returns nil at once. If
// ctx expires first, Stop returns ctx.Err(). In both cases the session keeps
// the connector busy, so Start returns ErrAlreadyStarted, until its
// goroutines have exited. Calling Stop again waits for them.
func (c *Connector) Stop(ctx context.Context) error {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	s.stopOnce.Do(func() {
		s.cancel()
		go s.release()
	})

	if goroutineID() == s.loop.Load() {
		s.detached.Store(true)
		c.logger.Info("connector stopping from host callback", "url", s.url)
		return nil
	}

	select {
	case <-s.done:
		c.logger.Info("connector stopped", "url", s.url)
		return nil
	case <-ctx.Done():
		s.detached.Store(true)
		c.logger.Warn("connector stop timed out", "url", s.url)
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// URL returns the stream URL of the running session, or "" once it has
// been stopped.
func (c *Connector) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || c.sess.ctx.Err() != nil {
		return ""
	}
	return c.sess.url
}

func (c *Connector) setState(st State) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
	c.metrics.State.Set(float64(st))
}

type eventKind int

const (
	evOpen eventKind = iota
	evError
	evMessage
	evClose
	evRetry
)

type event struct {
	kind eventKind
	gen  uint64 // socket generation; retry sequence for evRetry
	err  error
	msg  TimestampedMessage
}

// session is one Start..Stop run. Everything below the wg is owned by the
// run goroutine.
type session struct {
	c        *Connector
	url      string
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan event
	done     chan struct{} // closed once the session is released
	stopOnce sync.Once

	// loop is the id of the run goroutine, the only one that calls the
	// host. detached silences every later host call.
	loop     atomic.Uint64
	detached atomic.Bool

	wg sync.WaitGroup

	gen      uint64
	client   Client
	retry    *time.Timer
	retrySeq uint64
}

// post queues an event for the loop. It returns false once the session is
// shutting down.
func (s *session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// release waits for the session's goroutines and frees the connector for
// the next Start.
func (s *session) release() {
	s.wg.Wait()
	c := s.c
	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	c.mu.Unlock()
	close(s.done)
}

// host returns the host, or a sink that drops every call once the session
// has been detached by Stop.
func (s *session) host() plugin.Host {
	if s.detached.Load() {
		return discardHost{}
	}
	return s.c.host
}

func (s *session) run() {
	defer s.wg.Done()

	s.loop.Store(goroutineID())
	s.connect()
	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *session) dispatch(ev event) {
	if s.ctx.Err() != nil {
		return
	}

	if ev.kind == evRetry {
		if s.retry == nil || ev.gen != s.retrySeq {
			return
		}
		s.retry = nil
		s.connect()
		return
	}

	if ev.gen != s.gen {
		return
	}

	switch ev.kind {
	case evOpen:
		s.onOpen()
	case evError:
		s.onError(ev.err)
	case evMessage:
		s.onMessage(ev.msg)
	case evClose:
		s.onClose()
	}
}

// connect starts a new socket generation. Anything still attached from a
// previous generation is closed first.
func (s *session) connect() {
	c := s.c
	s.gen++
	c.metrics.ConnectAttempts.Inc()

	if s.client != nil {
		s.client.Close()
		s.client = nil
	}

	if err := checkURL(s.url); err != nil {
		c.metrics.ConstructFailures.Inc()
		s.host().SetProviderError(err.Error())
		s.host().Error("creating websocket failed", "url", s.url, "error", err)
		c.setState(StateIdle)
		if c.cfg.RetryOnDialFailure {
			s.scheduleRetry()
		}
		return
	}

	cfg := c.cfg.Client
	cfg.URL = s.url
	cl := c.newClient(cfg, c.logger.With("url", s.url, "gen", s.gen))
	s.client = cl
	c.setState(StateConnecting)

	s.wg.Add(1)
	go s.pump(s.gen, cl)
}

// pump dials cl and translates its lifetime into events: open, messages in
// order, then error (unless the close was clean) and close. A failed dial is
// error followed by close.
func (s *session) pump(gen uint64, cl Client) {
	defer s.wg.Done()

	if err := cl.Connect(s.ctx); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		if s.post(event{kind: evError, gen: gen, err: err}) {
			s.post(event{kind: evClose, gen: gen})
		}
		return
	}

	if !s.post(event{kind: evOpen, gen: gen}) {
		return
	}

	for msg := range cl.Messages() {
		if !s.post(event{kind: evMessage, gen: gen, msg: msg}) {
			return
		}
	}

	if err := cl.Err(); err != nil && !isNormalClosure(err) {
		if !s.post(event{kind: evError, gen: gen, err: err}) {
			return
		}
	}
	s.post(event{kind: evClose, gen: gen})
}

func (s *session) onOpen() {
	c := s.c
	c.metrics.Opens.Inc()
	c.setState(StateConnected)
	s.host().SetProviderStatus("Connected to " + s.url)
	s.host().Debug("connected")
	s.cancelRetry()
}

func (s *session) onError(err error) {
	c := s.c
	c.metrics.TransportErrors.Inc()
	s.host().SetProviderError(err.Error())
	s.host().Error("connection error", "url", s.url, "error", err)
}

func (s *session) onMessage(msg TimestampedMessage) {
	c := s.c
	delta, err := TagDelta(msg.Data)
	if err != nil {
		c.metrics.DecodeFailures.Inc()
		s.host().Error("discarding malformed delta",
			"url", s.url,
			"error", err,
			"bytes", len(msg.Data),
		)
		return
	}
	c.metrics.DeltasForwarded.Inc()
	s.host().HandleMessage(plugin.ID, delta)
}

func (s *session) onClose() {
	c := s.c
	c.metrics.Closes.Inc()
	s.host().SetProviderError("connection closed: " + s.url)
	s.host().Debug("connection closed", "url", s.url)

	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	if s.ctx.Err() != nil {
		return
	}
	c.setState(StateRetrying)
	s.scheduleRetry()
}

// scheduleRetry arms a one-shot timer. Each close arms exactly one retry;
// a failed retry closes again and so re-arms.
func (s *session) scheduleRetry() {
	s.cancelRetry()
	s.retrySeq++
	seq := s.retrySeq
	s.c.metrics.RetriesScheduled.Inc()
	s.retry = time.AfterFunc(s.c.cfg.RetryInterval, func() {
		s.post(event{kind: evRetry, gen: seq})
	})
}

func (s *session) cancelRetry() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

// teardown detaches and closes the socket so its close cannot schedule a
// reconnect.
func (s *session) teardown() {
	c := s.c
	if s.client != nil {
		s.host().Debug("closing connection")
		s.gen++
		s.client.Close()
		s.client = nil
	}
	s.cancelRetry()
	c.setState(StateStopped)
}

type discardHost struct{}

func (discardHost) SetProviderStatus(string)          {}
func (discardHost) SetProviderError(string)           {}
func (discardHost) Debug(string, ...any)              {}
func (discardHost) Error(string, ...any)              {}
func (discardHost) HandleMessage(string, model.Delta) {}

// goroutineID reads the calling goroutine's id from its stack header,
// "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
