// Package transport implements the conversation channel over a websocket.
// One Conn carries one conversation: the handshake, raw text turns going
// out, and tagged JSON frames coming back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hammamikhairi/tabkha/internal/domain"
	"github.com/hammamikhairi/tabkha/internal/logger"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultReadLimit   = 1 << 20 // full recipes can be long
	eventBuffer        = 16
)

// Option configures a Dialer.
type Option func(*Dialer)

// WithDialTimeout bounds the connect and handshake phase.
func WithDialTimeout(timeout time.Duration) Option {
	return func(d *Dialer) {
		if timeout > 0 {
			d.dialTimeout = timeout
		}
	}
}

// WithHTTPClient sets the client used for the upgrade request.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) {
		d.httpClient = c
	}
}

// WithReadLimit caps the size of a single inbound frame.
func WithReadLimit(n int64) Option {
	return func(d *Dialer) {
		d.readLimit = n
	}
}

// Dialer opens websocket conversation channels to one endpoint.
type Dialer struct {
	url         string
	log         *logger.Logger
	httpClient  *http.Client
	dialTimeout time.Duration
	readLimit   int64
}

var _ domain.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer for the given ws:// or wss:// URL.
func NewDialer(url string, log *logger.Logger, opts ...Option) *Dialer {
	d := &Dialer{
		url:         url,
		log:         log,
		dialTimeout: defaultDialTimeout,
		readLimit:   defaultReadLimit,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dial connects, sends the handshake and starts the read loop. The
// returned channel reports ChannelConnected as its first event.
func (d *Dialer) Dial(ctx context.Context, identity string, mode domain.Mode) (domain.Channel, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, d.url, &websocket.DialOptions{
		HTTPClient: d.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", d.url, err)
	}
	conn.SetReadLimit(d.readLimit)

	hello, err := EncodeHandshake(identity, mode)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "handshake encode failed")
		return nil, fmt.Errorf("encoding handshake: %w", err)
	}
	if err := conn.Write(dialCtx, websocket.MessageText, hello); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("sending handshake: %w", err)
	}

	d.log.Info("connected to %s (mode=%s)", d.url, mode)

	loopCtx, loopCancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:   conn,
		log:    d.log,
		events: make(chan domain.ChannelEvent, eventBuffer),
		ctx:    loopCtx,
		cancel: loopCancel,
	}
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

// Conn is an open conversation channel.
type Conn struct {
	conn   *websocket.Conn
	log    *logger.Logger
	events chan domain.ChannelEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	mu        sync.Mutex
	closing   bool
}

var _ domain.Channel = (*Conn)(nil)

// Events returns the event stream. It is closed after the final
// ChannelClosed or ChannelError event.
func (c *Conn) Events() <-chan domain.ChannelEvent {
	return c.events
}

// Send transmits one raw text frame.
func (c *Conn) Send(ctx context.Context, text string) error {
	if c.isClosing() {
		return domain.ErrChannelClosed
	}
	if err := c.conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	c.log.Debug("sent %q", truncate(text, 60))
	return nil
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		err = c.conn.Close(websocket.StatusNormalClosure, "client closed")
		c.cancel()
		c.wg.Wait()
	})
	if err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing channel: %w", err)
	}
	return nil
}

func (c *Conn) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	if !c.emit(domain.ChannelEvent{Kind: domain.ChannelConnected}) {
		return
	}

	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.emit(c.classify(err))
			return
		}
		if typ != websocket.MessageText {
			c.conn.Close(websocket.StatusUnsupportedData, "text frames only")
			c.emit(domain.ChannelEvent{
				Kind: domain.ChannelError,
				Err:  fmt.Errorf("%w: binary frame", domain.ErrMalformedFrame),
			})
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			c.log.Error("dropping connection on bad frame: %v", err)
			c.conn.Close(websocket.StatusUnsupportedData, "malformed frame")
			c.emit(domain.ChannelEvent{Kind: domain.ChannelError, Err: err})
			return
		}

		c.log.Debug("received %s frame", frame.Type)
		if !c.emit(domain.ChannelEvent{Kind: domain.ChannelMessage, Frame: frame}) {
			return
		}
	}
}

// classify maps a read error to the final event.
func (c *Conn) classify(err error) domain.ChannelEvent {
	if c.isClosing() {
		return domain.ChannelEvent{Kind: domain.ChannelClosed}
	}
	if status := websocket.CloseStatus(err); status != -1 {
		c.log.Warn("server closed connection (%d)", status)
		return domain.ChannelEvent{
			Kind: domain.ChannelClosed,
			Err:  fmt.Errorf("%w: status %d", domain.ErrChannelClosed, status),
		}
	}
	c.log.Error("read failed: %v", err)
	return domain.ChannelEvent{Kind: domain.ChannelError, Err: fmt.Errorf("reading frame: %w", err)}
}

// emit delivers an event unless the channel is being torn down.
func (c *Conn) emit(ev domain.ChannelEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
