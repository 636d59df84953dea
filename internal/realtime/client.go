// Package realtime subscribes to row changes over the Supabase Realtime
// websocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/theirongolddev/finsync/internal/model"
)

const (
	DefaultTopic      = "realtime:finsync"
	DefaultHeartbeat  = 25 * time.Second
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// ErrJoinRejected is reported when the server refuses the channel join.
var ErrJoinRejected = errors.New("channel join rejected")

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint, see Endpoint.
	URL         string
	AccessToken string
	Principal   string
	Tables      []string

	Topic      string
	Heartbeat  time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Client maintains one channel subscription, reconnecting with
// exponential backoff until its context ends.
type Client struct {
	opts Options
	log  *slog.Logger

	changes chan model.Change
	errs    chan error

	ref       atomic.Uint64
	connected atomic.Bool
}

// NewClient returns a client for opts. Run starts it.
func NewClient(opts Options) *Client {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = DefaultMaxBackoff
		if opts.MaxBackoff < opts.MinBackoff {
			opts.MaxBackoff = opts.MinBackoff
		}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		opts:    opts,
		log:     log.With("component", "realtime"),
		changes: make(chan model.Change, 256),
		errs:    make(chan error, 16),
	}
}

// Changes delivers decoded row changes. It is closed when Run returns.
func (c *Client) Changes() <-chan model.Change { return c.changes }

// Errors delivers channel errors. It is closed when Run returns.
func (c *Client) Errors() <-chan error { return c.errs }

// Connected reports whether the channel is currently joined.
func (c *Client) Connected() bool { return c.connected.Load() }

// Run connects and resubscribes until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.changes)
	defer close(c.errs)

	wait := c.opts.MinBackoff
	for {
		joined, err := c.session(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		if joined {
			wait = c.opts.MinBackoff
		}
		c.report(err)
		c.log.Info("channel disconnected, reconnecting", "error", err, "wait", wait)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		wait = nextBackoff(wait, c.opts.MaxBackoff)
	}
}

func nextBackoff(d, limit time.Duration) time.Duration {
	d *= 2
	if d > limit {
		return limit
	}
	return d
}

func (c *Client) report(err error) {
	if err == nil {
		return
	}
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (cn *conn) send(m message) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()
	_ = cn.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return cn.ws.WriteJSON(m)
}

// session runs one connection until it fails. It reports whether the
// join succeeded so the caller can reset its backoff.
func (c *Client) session(ctx context.Context) (bool, error) {
	ws, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dialing realtime: %w", err)
	}
	cn := &conn{ws: ws}
	defer func() { _ = ws.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	joinRef := c.nextRef()
	if err := cn.send(message{
		Topic:   c.opts.Topic,
		Event:   eventJoin,
		Payload: buildJoin(c.opts.Tables, c.opts.Principal, c.opts.AccessToken),
		Ref:     &joinRef,
		JoinRef: &joinRef,
	}); err != nil {
		return false, fmt.Errorf("sending join: %w", err)
	}

	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeat(hbCtx, cn)

	joined := false
	for {
		var m message
		if err := ws.ReadJSON(&m); err != nil {
			return joined, fmt.Errorf("reading realtime: %w", err)
		}
		switch m.Event {
		case eventReply:
			if m.Ref == nil || *m.Ref != joinRef {
				continue
			}
			var r replyPayload
			_ = json.Unmarshal(m.Payload, &r)
			if r.Status != "ok" {
				return joined, fmt.Errorf("%w: %s", ErrJoinRejected, string(r.Response))
			}
			joined = true
			c.connected.Store(true)
			c.log.Debug("channel joined", "topic", c.opts.Topic, "tables", len(c.opts.Tables))
		case eventChanges:
			ch, err := decodeChange(m.Payload)
			if err != nil {
				c.report(err)
				continue
			}
			select {
			case c.changes <- ch:
			case <-ctx.Done():
				return joined, ctx.Err()
			}
		case eventError, eventClose:
			if m.Topic == c.opts.Topic {
				return joined, fmt.Errorf("channel %s: %s", m.Event, string(m.Payload))
			}
		case eventSystem:
			c.log.Debug("realtime system message", "payload", string(m.Payload))
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, cn *conn) {
	t := time.NewTicker(c.opts.Heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ref := c.nextRef()
			err := cn.send(message{
				Topic:   phoenixTopic,
				Event:   eventHeartbeat,
				Payload: json.RawMessage("{}"),
				Ref:     &ref,
			})
			if err != nil {
				_ = cn.ws.Close()
				return
			}
		}
	}
}
