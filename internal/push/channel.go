// Package push maintains the real-time subscription to the notification
// hub and turns hub invocations into an ordered stream of Events.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/scfet/notification-client/internal/logging"
	"github.com/scfet/notification-client/internal/model"
)

// ErrUnauthorized is returned when the hub rejects the bearer token.
var ErrUnauthorized = errors.New("hub rejected credentials")

// TokenSource yields the current bearer token; "" means signed out.
type TokenSource interface {
	Token() string
}

// Config controls a Channel. Zero durations take the SignalR defaults.
type Config struct {
	HubURL          string
	SkipNegotiation bool

	// ReconnectDelays is the wait before each reconnection attempt; a nil
	// slice means DefaultReconnectDelays and an empty one disables
	// reconnection.
	ReconnectDelays []time.Duration

	KeepAliveInterval time.Duration
	ServerTimeout     time.Duration
	HandshakeTimeout  time.Duration

	// BufferSize bounds undelivered events before the reader blocks.
	BufferSize int

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Log        logrus.FieldLogger
}

// DefaultReconnectDelays is the SignalR client's automatic reconnect
// schedule.
var DefaultReconnectDelays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

// DelaysFromMillis converts a configured schedule.
func DelaysFromMillis(ms []int) []time.Duration {
	if ms == nil {
		return nil
	}
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelays == nil {
		c.ReconnectDelays = DefaultReconnectDelays
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 15 * time.Second
	}
	if c.ServerTimeout <= 0 {
		c.ServerTimeout = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 15 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

// Channel is the push subscription. All methods are safe for concurrent
// use; events are delivered on Events in receive order.
type Channel struct {
	cfg    Config
	tokens TokenSource
	log    logrus.FieldLogger
	events chan Event

	mu         sync.Mutex
	state      State
	generation uint64
	conn       *hubConn
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewChannel returns a disconnected Channel.
func NewChannel(cfg Config, tokens TokenSource) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		cfg:    cfg,
		tokens: tokens,
		log:    logging.Component(cfg.Log, "push"),
		events: make(chan Event, cfg.BufferSize),
	}
}

// Events is the Channel's single event stream. It is never closed.
func (c *Channel) Events() <-chan Event { return c.events }

// State returns the current subscription state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stale reports whether ev was produced before the most recent Connect
// or Disconnect, and should be ignored by consumers.
func (c *Channel) Stale(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ev.Generation != c.generation
}

// Connect opens the subscription. It returns nil without doing anything
// when already connecting or connected, or when there is no token. The
// first attempt runs synchronously and its failure is returned; after
// that, transport failures reconnect in the background.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	token := c.tokens.Token()
	if token == "" {
		c.mu.Unlock()
		c.log.Debug("no token, not connecting")
		return nil
	}

	c.generation++
	gen := c.generation
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.setStateLocked(Connecting, nil)
	c.mu.Unlock()

	dialCtx, stopDial := context.WithCancel(ctx)
	stop := context.AfterFunc(runCtx, stopDial)
	conn, initial, err := c.dial(dialCtx, token)
	stop()
	stopDial()

	c.mu.Lock()
	if runCtx.Err() != nil {
		// Disconnect won the race.
		c.mu.Unlock()
		if conn != nil {
			_ = conn.close()
		}
		close(done)
		return context.Canceled
	}
	if err != nil {
		c.cancel = nil
		c.setStateLocked(Disconnected, err)
		c.mu.Unlock()
		cancel()
		close(done)
		c.log.WithError(err).Warn("connect failed")
		return fmt.Errorf("connecting to hub: %w", err)
	}
	c.conn = conn
	c.setStateLocked(Connected, nil)
	c.mu.Unlock()

	c.log.WithField("generation", gen).Info("connected")
	go c.run(runCtx, gen, conn, initial, done)
	return nil
}

// Disconnect stops the subscription and waits until the connection is torn
// down. Events still buffered are discarded; none are delivered after it
// returns. Calling it while disconnected is a no-op. If ctx ends first the
// channel is still left Disconnected and ctx.Err() is returned.
func (c *Channel) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.generation++
	if cancel == nil {
		c.drainLocked()
		c.mu.Unlock()
		return nil
	}
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		// The run goroutine finishes tearing down on its own. Its
		// generation is stale, so it can no longer touch the state.
		err = ctx.Err()
	}

	c.mu.Lock()
	c.conn = nil
	c.state = Disconnected
	c.drainLocked()
	c.mu.Unlock()
	if err != nil {
		c.log.WithError(err).Warn("disconnected before teardown finished")
		return err
	}
	c.log.Info("disconnected")
	return nil
}

// MarkRead tells the hub that notification id was read. It is sent
// without waiting for a result; false means the call was dropped because
// the channel is not connected or the write failed.
func (c *Channel) MarkRead(id string) bool {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != Connected || conn == nil {
		return false
	}

	msg, err := invocation(targetMarkAsRead, id)
	if err == nil {
		err = conn.send(msg)
	}
	if err != nil {
		c.log.WithError(err).WithField("notification_id", id).Warn("mark as read not sent")
		return false
	}
	return true
}

func (c *Channel) drainLocked() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}

// setStateLocked updates the state and publishes the transition. The
// events buffer is sized so that this does not block in practice; when it
// is full the transition is still recorded but the event is dropped.
func (c *Channel) setStateLocked(s State, err error) {
	if c.state == s && err == nil {
		return
	}
	c.state = s
	c.log.WithField("state", s.String()).Debug("state changed")
	select {
	case c.events <- Event{Kind: EventStateChanged, State: s, Err: err, Generation: c.generation}:
	default:
		c.log.WithField("state", s.String()).Warn("event buffer full, state change not published")
	}
}

// emit delivers ev unless the run is cancelled first.
func (c *Channel) emit(ctx context.Context, ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Channel) dial(ctx context.Context, token string) (*hubConn, [][]byte, error) {
	var (
		wsURL string
		err   error
	)
	if c.cfg.SkipNegotiation {
		wsURL, err = websocketURL(c.cfg.HubURL, "", token)
	} else {
		wsURL, token, err = negotiate(ctx, c.cfg.HTTPClient, c.cfg.HubURL, token)
	}
	if err != nil {
		return nil, nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := c.cfg.Dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, fmt.Errorf("dialing hub: %w", err)
	}

	conn := &hubConn{ws: ws}
	initial, err := conn.handshake(c.cfg.HandshakeTimeout)
	if err != nil {
		_ = conn.close()
		return nil, nil, err
	}
	return conn, initial, nil
}

// run owns the connection until ctx is cancelled or reconnection gives up.
func (c *Channel) run(ctx context.Context, gen uint64, conn *hubConn, initial [][]byte, done chan struct{}) {
	defer close(done)

	for {
		err := c.serve(ctx, gen, conn, initial)
		_ = conn.close()
		initial = nil
		if ctx.Err() != nil {
			return
		}

		log := c.log.WithField("generation", gen)
		var closeErr *CloseError
		if errors.As(err, &closeErr) && !closeErr.AllowReconnect {
			log.WithError(err).Info("hub closed connection")
			c.finish(gen, err)
			return
		}

		log.WithError(err).Warn("connection lost, reconnecting")
		c.setConn(gen, nil, Connecting)
		conn, initial, err = c.reconnect(ctx, gen)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("reconnect abandoned")
				c.finish(gen, err)
			}
			return
		}
		c.setConn(gen, conn, Connected)
		log.Info("reconnected")
	}
}

func (c *Channel) setConn(gen uint64, conn *hubConn, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.conn = conn
	c.setStateLocked(s, nil)
}

// finish ends a run that stopped on its own, so a later Connect starts
// fresh.
func (c *Channel) finish(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.setStateLocked(Disconnected, err)
}

func (c *Channel) reconnect(ctx context.Context, gen uint64) (*hubConn, [][]byte, error) {
	lastErr := errors.New("reconnection disabled")
	for attempt, delay := range c.cfg.ReconnectDelays {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
		}

		token := c.tokens.Token()
		if token == "" {
			return nil, nil, errors.New("signed out")
		}
		conn, initial, err := c.dial(ctx, token)
		if err == nil {
			return conn, initial, nil
		}
		lastErr = err
		c.log.WithError(err).WithFields(logrus.Fields{
			"attempt":    attempt + 1,
			"generation": gen,
		}).Debug("reconnect attempt failed")
		if errors.Is(err, ErrUnauthorized) {
			break
		}
	}
	return nil, nil, lastErr
}

// serve pumps one connection: a keep-alive writer and this goroutine as
// the sole reader.
func (c *Channel) serve(ctx context.Context, gen uint64, conn *hubConn, initial [][]byte) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.close() })
	defer stop()

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.keepAlive(pingCtx, conn)

	records := initial
	for {
		for _, rec := range records {
			if err := c.handle(ctx, gen, rec); err != nil {
				return err
			}
		}
		var err error
		records, err = conn.readRecords(time.Now().Add(c.cfg.ServerTimeout))
		if err != nil {
			return err
		}
	}
}

func (c *Channel) keepAlive(ctx context.Context, conn *hubConn) {
	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()
	ping, _ := encodeRecord(hubMessage{Type: msgPing})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.writeRaw(ping); err != nil {
				return
			}
		}
	}
}

func (c *Channel) handle(ctx context.Context, gen uint64, rec []byte) error {
	var msg hubMessage
	if err := json.Unmarshal(rec, &msg); err != nil {
		c.log.WithError(err).Warn("dropping undecodable hub message")
		return nil
	}

	switch msg.Type {
	case msgPing, msgCompletion, msgStreamItem:
		return nil
	case msgClose:
		return &CloseError{Message: msg.Error, AllowReconnect: msg.AllowReconnect}
	case msgInvocation:
	default:
		return nil
	}

	ev, err := decodeInvocation(msg)
	if err != nil {
		c.log.WithError(err).WithField("target", msg.Target).Warn("dropping hub invocation")
		return nil
	}
	if ev.Kind == 0 {
		c.log.WithField("target", msg.Target).Debug("ignoring unknown hub method")
		return nil
	}
	ev.Generation = gen
	c.emit(ctx, ev)
	return nil
}

func decodeInvocation(msg hubMessage) (Event, error) {
	if len(msg.Arguments) == 0 {
		return Event{}, fmt.Errorf("%s: no arguments", msg.Target)
	}
	arg := msg.Arguments[0]

	switch msg.Target {
	case targetReceived, targetUpdated:
		var n model.Notification
		if err := json.Unmarshal(arg, &n); err != nil {
			return Event{}, fmt.Errorf("%s: %w", msg.Target, err)
		}
		if n.ID == "" {
			return Event{}, fmt.Errorf("%s: notification without id", msg.Target)
		}
		kind := EventReceived
		if msg.Target == targetUpdated {
			kind = EventUpdated
		}
		return Event{Kind: kind, Notification: n, ID: n.ID}, nil

	case targetRemoved, targetRead:
		var id string
		if err := json.Unmarshal(arg, &id); err != nil {
			return Event{}, fmt.Errorf("%s: %w", msg.Target, err)
		}
		kind := EventRemoved
		if msg.Target == targetRead {
			kind = EventReadStateChanged
		}
		return Event{Kind: kind, ID: id}, nil
	}
	return Event{}, nil
}
