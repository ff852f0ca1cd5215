package socket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nguyentranbao-ct/campaign-chat/internal/models"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/logger"
	"github.com/nguyentranbao-ct/campaign-chat/pkg/util"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var reconnectAttempts = util.MustCounterVec(
	"chat_reconnect_attempts_total",
	"Reconnect scheduling outcomes.",
	"outcome",
)

// StateChange is delivered to the owner on every transition. A
// StateDisconnected change with a non-nil Err is an abnormal closure; the
// owner decides whether to call Reconnect.
type StateChange struct {
	State   State
	Attempt int
	Delay   time.Duration
	Err     error
}

// Conn is one live bidirectional frame stream.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Endpoint is the campaign-scoped stream address. The credential is passed
// as a query parameter at connect time.
type Endpoint struct {
	URL        string
	CampaignID string
}

func (e Endpoint) withCredential(credential string) (string, error) {
	u, err := url.Parse(e.URL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	q := u.Query()
	q.Set("campaignId", e.CampaignID)
	q.Set("token", credential)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type Callbacks struct {
	OnState func(StateChange)
	OnFrame func([]byte)
}

type Options struct {
	Backoff     BackoffPolicy
	Clock       clockwork.Clock
	DialTimeout time.Duration
	Logger      *logger.Logger
}

// Connection owns at most one live Conn at a time and the reconnect
// schedule for it. Callbacks run on the goroutine that observed the event
// and are never invoked while internal locks are held.
type Connection struct {
	dialer      Dialer
	clock       clockwork.Clock
	dialTimeout time.Duration
	callbacks   Callbacks
	log         *logger.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	backoff    *Backoff
	endpoint   Endpoint
	credential string
	conn       Conn
	timer      clockwork.Timer
	scheduled  bool
	closed     bool
}

func NewConnection(dialer Dialer, callbacks Callbacks, opts Options) *Connection {
	if opts.Backoff.MaxAttempts == 0 {
		opts.Backoff = DefaultBackoffPolicy
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.MustNamed("socket")
	}
	if callbacks.OnState == nil {
		callbacks.OnState = func(StateChange) {}
	}
	if callbacks.OnFrame == nil {
		callbacks.OnFrame = func([]byte) {}
	}
	return &Connection{
		dialer:      dialer,
		clock:       opts.Clock,
		dialTimeout: opts.DialTimeout,
		callbacks:   callbacks,
		log:         opts.Logger,
		state:       StateDisconnected,
		backoff:     NewBackoff(opts.Backoff),
	}
}

// Open dials the endpoint. It fails fast with models.ErrNoCredential
// without dialing when credential is empty. A previous Close is undone and
// the attempt counter starts fresh.
func (c *Connection) Open(ctx context.Context, endpoint Endpoint, credential string) error {
	if credential == "" {
		return models.ErrNoCredential
	}

	c.mu.Lock()
	c.stopTimerLocked()
	old := c.conn
	c.conn = nil
	c.closed = false
	c.endpoint = endpoint
	c.credential = credential
	c.backoff.Reset()
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	c.transition(StateChange{State: StateConnecting})
	return c.dial(ctx)
}

// Send writes one frame on the live connection.
func (c *Connection) Send(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return models.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Reconnect schedules the next dial after the backoff delay. Once the
// attempts are used up the connection moves to StateFailed and
// models.ErrRetryExhausted is returned; nothing further is scheduled.
func (c *Connection) Reconnect() (time.Duration, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, models.ErrSessionClosed
	}
	if c.conn != nil || c.scheduled {
		c.mu.Unlock()
		return 0, nil
	}
	if c.credential == "" {
		c.mu.Unlock()
		return 0, models.ErrNoCredential
	}
	delay, ok := c.backoff.Next()
	attempt := c.backoff.Attempt()
	if ok {
		c.scheduled = true
	}
	c.mu.Unlock()

	if !ok {
		reconnectAttempts.WithLabelValues("exhausted").Inc()
		c.log.Errorw("reconnect attempts exhausted", "attempts", attempt)
		c.transition(StateChange{State: StateFailed, Attempt: attempt, Err: models.ErrRetryExhausted})
		return 0, models.ErrRetryExhausted
	}

	reconnectAttempts.WithLabelValues("scheduled").Inc()
	c.log.Infow("reconnect scheduled", "attempt", attempt, "delay", delay)
	c.transition(StateChange{State: StateReconnecting, Attempt: attempt, Delay: delay})

	c.mu.Lock()
	if c.scheduled && !c.closed {
		c.timer = c.clock.AfterFunc(delay, c.fire)
	}
	c.mu.Unlock()
	return delay, nil
}

// Close drops the live connection and cancels any pending reconnect.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	prev := c.state
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if prev != StateDisconnected {
		c.transition(StateChange{State: StateDisconnected})
	}
	return err
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) fire() {
	c.mu.Lock()
	c.timer = nil
	c.scheduled = false
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.transition(StateChange{State: StateConnecting})
	_ = c.dial(context.Background())
}

func (c *Connection) dial(ctx context.Context) error {
	c.mu.Lock()
	endpoint, credential := c.endpoint, c.credential
	c.mu.Unlock()

	target, err := endpoint.withCredential(credential)
	if err != nil {
		c.transition(StateChange{State: StateFailed, Err: err})
		return err
	}

	dctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()
	conn, err := c.dialer.Dial(dctx, target)
	if err != nil {
		if errors.Is(err, models.ErrAuthRejected) {
			c.log.Errorw("credential rejected by server", "error", err)
			c.transition(StateChange{State: StateFailed, Err: err})
			return err
		}
		c.log.Warnw("dial failed", "error", err)
		c.transition(StateChange{State: StateDisconnected, Err: err})
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return models.ErrSessionClosed
	}
	c.conn = conn
	c.backoff.Reset()
	c.mu.Unlock()

	reconnectAttempts.WithLabelValues("connected").Inc()
	c.transition(StateChange{State: StateConnected})
	go c.readLoop(conn)
	return nil
}

func (c *Connection) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn && !c.closed
			if current {
				c.conn = nil
			}
			c.mu.Unlock()
			_ = conn.Close()

			if !current {
				return
			}
			if errors.Is(err, models.ErrAuthRejected) {
				c.transition(StateChange{State: StateFailed, Err: err})
				return
			}
			c.log.Warnw("connection lost", "error", err)
			c.transition(StateChange{State: StateDisconnected, Err: err})
			return
		}

		c.mu.Lock()
		current := c.conn == conn
		c.mu.Unlock()
		if !current {
			return
		}
		c.callbacks.OnFrame(data)
	}
}

func (c *Connection) transition(change StateChange) {
	c.mu.Lock()
	c.state = change.State
	c.mu.Unlock()
	c.callbacks.OnState(change)
}

func (c *Connection) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.scheduled = false
}
