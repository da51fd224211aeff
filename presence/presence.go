// Package presence reports the application's activity to a local Discord
// client over its IPC socket. A Client owns one connection and, after a
// failure, a single pending reconnect timer.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RCOEM-Google-DSC/enso/observability"
)

var (
	// ErrNotConnected is returned by activity updates while disconnected.
	ErrNotConnected = errors.New("presence: not connected")
	// ErrStopped is returned by a connect attempt that finished after
	// Disconnect.
	ErrStopped = errors.New("presence: client disconnected")
)

const (
	// DefaultRetryInterval is the delay before a reconnect attempt.
	DefaultRetryInterval = 15 * time.Second
	// DefaultTimeout bounds a dial plus handshake, and each activity
	// command.
	DefaultTimeout = 5 * time.Second
)

// Conn is the byte stream to the Discord client.
type Conn interface {
	io.ReadWriteCloser
}

// DialFunc opens a connection to the Discord client.
type DialFunc func(ctx context.Context) (Conn, error)

// UnixDialer tries discord-ipc-0 through discord-ipc-9 under dir. An empty
// dir uses $XDG_RUNTIME_DIR, $TMPDIR or /tmp, in that order.
func UnixDialer(dir string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		base := dir
		if base == "" {
			base = socketDir()
		}
		var d net.Dialer
		var lastErr error
		for i := 0; i < 10; i++ {
			p := filepath.Join(base, fmt.Sprintf("discord-ipc-%d", i))
			conn, err := d.DialContext(ctx, "unix", p)
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("presence: no discord ipc socket in %s: %w", base, lastErr)
	}
}

func socketDir() string {
	for _, env := range []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return "/tmp"
}

// Activity is what the Discord profile shows. Empty small image fields get
// the application defaults and a zero start time uses the client start.
type Activity struct {
	Details        string    `json:"details,omitempty"`
	State          string    `json:"state,omitempty"`
	StartTimestamp time.Time `json:"startTimestamp,omitempty"`
	LargeImageKey  string    `json:"largeImageKey,omitempty"`
	LargeImageText string    `json:"largeImageText,omitempty"`
	SmallImageKey  string    `json:"smallImageKey,omitempty"`
	SmallImageText string    `json:"smallImageText,omitempty"`
}

// Default small image shown next to the large one.
const (
	DefaultSmallImageKey  = "gdg"
	DefaultSmallImageText = "GDG"
)

// Client is safe for concurrent use.
type Client struct {
	clientID string
	dial     DialFunc
	retry    time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      observability.Logger
	started  time.Time

	mu      sync.Mutex
	conn    Conn
	timer   *time.Timer
	stopped bool
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the unix socket dialer.
func WithDialer(d DialFunc) Option {
	return func(c *Client) {
		c.dial = d
	}
}

// WithRetryInterval sets the reconnect delay. Zero disables reconnecting.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		c.retry = d
	}
}

// WithTimeout bounds connect attempts and activity commands.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *Client) {
		c.log = observability.OrNop(l)
	}
}

// New returns a disconnected client for the given Discord application id.
func New(clientID string, opts ...Option) *Client {
	c := &Client{
		clientID: clientID,
		dial:     UnixDialer(""),
		retry:    DefaultRetryInterval,
		timeout:  DefaultTimeout,
		now:      time.Now,
		log:      observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	c.log = c.log.With(observability.String("component", "presence"))
	c.started = c.now()
	return c
}

// StartedAt is the default activity start time.
func (c *Client) StartedAt() time.Time { return c.started }

// IsConnected reports whether a handshake has completed on the current
// connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect dials and performs the handshake. It is a no-op when already
// connected. On failure a reconnect is scheduled. The lock is not held
// while dialing, so Disconnect and IsConnected never wait on a stalled
// handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = false
	connected := c.conn != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.attempt(ctx)
}

// attempt dials and handshakes within the handshake timeout, then installs
// the connection unless the client was stopped or connected meanwhile.
func (c *Client) attempt(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	conn, err := c.dial(ctx)
	if err == nil {
		if err = c.handshake(ctx, conn); err != nil {
			conn.Close()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn("discord connection failed", observability.Err(err))
		c.scheduleLocked()
		return err
	}
	if c.stopped {
		conn.Close()
		return ErrStopped
	}
	if c.conn != nil {
		conn.Close()
		return nil
	}
	c.conn = conn
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.log.Info("discord connected")
	return nil
}

func (c *Client) handshake(ctx context.Context, conn Conn) error {
	clearDeadline := applyDeadline(ctx, conn)
	defer clearDeadline()
	if err := writeFrame(conn, opHandshake, handshake{Version: 1, ClientID: c.clientID}); err != nil {
		return fmt.Errorf("presence: handshake: %w", err)
	}
	msg, err := readMessage(conn)
	if err != nil {
		return fmt.Errorf("presence: handshake: %w", err)
	}
	if msg.Evt != "READY" {
		return fmt.Errorf("presence: handshake: unexpected event %q", msg.Evt)
	}
	return nil
}

// scheduleLocked arms the single reconnect timer unless one is pending or
// the client was stopped.
func (c *Client) scheduleLocked() {
	if c.stopped || c.retry <= 0 || c.timer != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(c.retry, func() {
		c.mu.Lock()
		if c.timer != t || c.stopped || c.conn != nil {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.mu.Unlock()
		c.log.Debug("discord reconnecting")
		c.attempt(context.Background())
	})
	c.timer = t
}

// Disconnect closes the connection and cancels any pending reconnect. A
// later Connect re-enables reconnecting.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.conn == nil {
		return nil
	}
	writeFrame(c.conn, opClose, struct{}{})
	err := c.conn.Close()
	c.conn = nil
	c.log.Info("discord disconnected")
	return err
}

// SetActivity replaces the shown activity.
func (c *Client) SetActivity(ctx context.Context, a Activity) error {
	if a.SmallImageKey == "" {
		a.SmallImageKey = DefaultSmallImageKey
	}
	if a.SmallImageText == "" {
		a.SmallImageText = DefaultSmallImageText
	}
	if a.StartTimestamp.IsZero() {
		a.StartTimestamp = c.started
	}
	return c.command(ctx, activityPayload(a))
}

// ClearActivity removes the shown activity.
func (c *Client) ClearActivity(ctx context.Context) error {
	return c.command(ctx, nil)
}

func (c *Client) command(ctx context.Context, activity any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	args := map[string]any{"pid": os.Getpid()}
	if activity != nil {
		args["activity"] = activity
	}
	req := message{Cmd: "SET_ACTIVITY", Nonce: uuid.NewString(), Args: args}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	clearDeadline := applyDeadline(ctx, c.conn)
	defer clearDeadline()
	if err := writeFrame(c.conn, opFrame, req); err != nil {
		c.dropLocked(err)
		return fmt.Errorf("presence: set activity: %w", err)
	}
	for {
		resp, err := readMessage(c.conn)
		if err != nil {
			c.dropLocked(err)
			return fmt.Errorf("presence: set activity: %w", err)
		}
		if resp.Nonce != "" && resp.Nonce != req.Nonce {
			continue
		}
		if resp.Evt == "ERROR" {
			var e errorData
			json.Unmarshal(resp.Data, &e)
			return fmt.Errorf("presence: set activity rejected (%d): %s", e.Code, e.Message)
		}
		return nil
	}
}

// dropLocked discards a broken connection and schedules a reconnect.
func (c *Client) dropLocked(cause error) {
	c.log.Warn("discord connection lost", observability.Err(cause))
	c.conn.Close()
	c.conn = nil
	c.scheduleLocked()
}

// readMessage returns the next command or event frame, answering pings.
func readMessage(conn Conn) (message, error) {
	for {
		op, body, err := readFrame(conn)
		if err != nil {
			return message{}, err
		}
		switch op {
		case opFrame:
			var msg message
			if err := json.Unmarshal(body, &msg); err != nil {
				return message{}, err
			}
			return msg, nil
		case opPing:
			if err := writeFrame(conn, opPong, json.RawMessage(body)); err != nil {
				return message{}, err
			}
		case opClose:
			var e errorData
			json.Unmarshal(body, &e)
			return message{}, fmt.Errorf("closed by peer (%d): %s", e.Code, e.Message)
		}
	}
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// applyDeadline copies the context deadline onto conn when it supports one.
func applyDeadline(ctx context.Context, conn Conn) func() {
	d, ok := conn.(deadliner)
	if !ok {
		return func() {}
	}
	deadline, has := ctx.Deadline()
	if !has {
		return func() {}
	}
	d.SetDeadline(deadline)
	return func() { d.SetDeadline(time.Time{}) }
}

type wireActivity struct {
	Details    string         `json:"details,omitempty"`
	State      string         `json:"state,omitempty"`
	Timestamps map[string]any `json:"timestamps,omitempty"`
	Assets     map[string]any `json:"assets,omitempty"`
	Instance   bool           `json:"instance"`
}

func activityPayload(a Activity) wireActivity {
	assets := map[string]any{}
	for k, v := range map[string]string{
		"large_image": a.LargeImageKey,
		"large_text":  a.LargeImageText,
		"small_image": a.SmallImageKey,
		"small_text":  a.SmallImageText,
	} {
		if v != "" {
			assets[k] = v
		}
	}
	return wireActivity{
		Details:    a.Details,
		State:      a.State,
		Timestamps: map[string]any{"start": a.StartTimestamp.UnixMilli()},
		Assets:     assets,
	}
}
