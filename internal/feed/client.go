// Package feed implements the market-data feed client: a single persistent
// connection to an external tick/candle provider speaking a JSON
// request/response + streaming-subscription protocol. It owns connection
// state and per-symbol subscriber reference counts exclusively — no other
// component touches them.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"trading-systemv1/internal/eventbus"
	"trading-systemv1/internal/model"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
)

// ErrFeedUnavailable is returned by FetchCandleHistory when the connection
// is down and cannot be restored within the request timeout.
var ErrFeedUnavailable = errors.New("feed: unavailable")

// SymbolError is published on the SymbolErrors bus for a protocol-level
// error scoped to one symbol.
type SymbolError struct {
	Symbol string
	Err    string
}

// Config configures reconnection behaviour and request timeouts.
type Config struct {
	URL string

	// InitialReconnectDelay is the first backoff delay. Defaults to 1s.
	InitialReconnectDelay time.Duration
	// MaxReconnectDelay caps exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
	// HistoryRequestTimeout bounds FetchCandleHistory. Defaults to 5s.
	HistoryRequestTimeout time.Duration

	// ClientCode and Password authenticate the provider login handshake.
	// TOTPSecret, if set, is a base32 TOTP seed: a fresh 30s passcode is
	// generated and sent with every (re)connect rather than a static code,
	// matching providers that require two-factor login on each session.
	ClientCode string
	Password   string
	TOTPSecret string
}

func (c *Config) defaults() {
	if c.InitialReconnectDelay <= 0 {
		c.InitialReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.HistoryRequestTimeout <= 0 {
		c.HistoryRequestTimeout = 5 * time.Second
	}
}

// Client is the feed client. One Client serves the whole process; every
// consumer subscribes through it rather than holding its own connection.
type Client struct {
	cfg Config
	log *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	connected atomic.Bool

	refMu sync.Mutex
	// refs tracks, per symbol, the set of subscriber IDs currently watching
	// it. The protocol-level subscribe fires on the 0->1 transition; the
	// protocol-level unsubscribe fires on the 1->0 transition.
	refs map[string]map[string]struct{}

	pendingMu sync.Mutex
	pending   map[string]chan envelope // requestID -> reply channel

	Connected    *eventbus.Bus[struct{}]
	Disconnected *eventbus.Bus[struct{}]
	Ticks        *eventbus.Bus[model.Tick]
	SymbolErrors *eventbus.Bus[SymbolError]
}

// New creates a Client. Call Start to begin connecting.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("feed: invalid URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:          cfg,
		log:          logger,
		refs:         make(map[string]map[string]struct{}),
		pending:      make(map[string]chan envelope),
		Connected:    eventbus.New[struct{}](1),
		Disconnected: eventbus.New[struct{}](1),
		Ticks:        eventbus.New[model.Tick](256),
		SymbolErrors: eventbus.New[SymbolError](16),
	}, nil
}

// IsConnected reports whether the feed currently has a live connection.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Start runs the connect/read/reconnect loop until ctx is cancelled.
// Reconnection uses exponential backoff starting at InitialReconnectDelay,
// capped at MaxReconnectDelay, with jitter. Every active subscription is
// re-issued before the Connected event fires, so a subscriber observing
// Connected can assume ticks are already flowing for its symbols.
func (c *Client) Start(ctx context.Context) {
	delay := c.cfg.InitialReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.runOnce(ctx)
		c.setDisconnected()

		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.Warn("feed disconnected, reconnecting", "error", err, "delay", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(delay)):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	// up to +/-20% jitter to avoid a reconnect thundering herd
	spread := float64(d) * 0.2
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

func (c *Client) runOnce(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()

	if err := c.authenticate(); err != nil {
		return err
	}

	if err := c.resubscribeAll(); err != nil {
		return err
	}

	c.connected.Store(true)
	c.Connected.Publish(struct{}{})
	c.log.Info("feed connected", "url", c.cfg.URL)

	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				<-watcherDone
				return nil
			default:
			}
			return err
		}
		c.handleFrame(raw)
	}
}

// authenticate sends the provider login envelope immediately after dialing,
// generating a fresh TOTP passcode from TOTPSecret for this attempt. When
// Config carries no ClientCode, no auth frame is sent at all.
func (c *Client) authenticate() error {
	if c.cfg.ClientCode == "" {
		return nil
	}

	code := ""
	if c.cfg.TOTPSecret != "" {
		var err error
		code, err = totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
		if err != nil {
			return fmt.Errorf("feed: generate totp code: %w", err)
		}
	}

	return c.send(envelope{
		Type:       typeAuth,
		ClientCode: c.cfg.ClientCode,
		Password:   c.cfg.Password,
		TOTP:       code,
	})
}

func (c *Client) setDisconnected() {
	if c.connected.CompareAndSwap(true, false) {
		c.Disconnected.Publish(struct{}{})
	}
}

func (c *Client) handleFrame(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("feed: malformed frame dropped", "error", err)
		return
	}

	switch env.Type {
	case typeTick:
		if env.Tick == nil || env.Tick.Token == "" {
			c.log.Warn("feed: malformed tick frame dropped")
			return
		}
		c.Ticks.Publish(*env.Tick)

	case typeHistoryResponse:
		c.pendingMu.Lock()
		ch, ok := c.pending[env.RequestID]
		c.pendingMu.Unlock()
		if ok {
			ch <- env
		}

	case typeError:
		c.SymbolErrors.Publish(SymbolError{Symbol: env.Symbol, Err: env.Error})

	default:
		c.log.Warn("feed: unknown frame type dropped", "type", env.Type)
	}
}

// FetchCandleHistory requests the `count` most recent closed candles for
// (symbol, timeframeSeconds), oldest first. If the connection is down it
// first waits up to HistoryRequestTimeout for it to come back. Returns
// ErrFeedUnavailable if it does not, or if the provider does not reply
// within the configured timeout.
func (c *Client) FetchCandleHistory(ctx context.Context, symbol string, timeframeSeconds, count int) ([]model.TFCandle, error) {
	if !c.IsConnected() {
		sub := c.Connected.Subscribe()
		defer sub.Unsubscribe()
		if !c.IsConnected() {
			select {
			case <-sub.C():
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.cfg.HistoryRequestTimeout):
				return nil, ErrFeedUnavailable
			}
		}
	}

	reqID := fmt.Sprintf("%s-%d-%d", symbol, timeframeSeconds, time.Now().UnixNano())
	replyCh := make(chan envelope, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = replyCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	req := envelope{
		Type:      typeHistoryRequest,
		RequestID: reqID,
		Symbol:    symbol,
		Timeframe: timeframeSeconds,
		Count:     count,
	}
	if err := c.send(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	timeout := c.cfg.HistoryRequestTimeout
	select {
	case env := <-replyCh:
		if env.Error != "" {
			return nil, fmt.Errorf("feed: history error: %s", env.Error)
		}
		return env.Candles, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, ErrFeedUnavailable
	}
}

// SubscribeTicks registers subscriberID's interest in symbol. On the first
// subscriber for a symbol, issues a protocol-level subscribe.
func (c *Client) SubscribeTicks(symbol, subscriberID string) error {
	c.refMu.Lock()
	set, ok := c.refs[symbol]
	if !ok {
		set = make(map[string]struct{})
		c.refs[symbol] = set
	}
	_, already := set[subscriberID]
	set[subscriberID] = struct{}{}
	isFirst := !already && len(set) == 1
	c.refMu.Unlock()

	if isFirst {
		return c.send(envelope{Type: typeSubscribe, Symbol: symbol})
	}
	return nil
}

// UnsubscribeTicks removes subscriberID's interest in symbol. When the
// reference count reaches zero, issues a protocol-level unsubscribe.
func (c *Client) UnsubscribeTicks(symbol, subscriberID string) error {
	c.refMu.Lock()
	set, ok := c.refs[symbol]
	if !ok {
		c.refMu.Unlock()
		return nil
	}
	delete(set, subscriberID)
	empty := len(set) == 0
	if empty {
		delete(c.refs, symbol)
	}
	c.refMu.Unlock()

	if empty {
		return c.send(envelope{Type: typeUnsubscribe, Symbol: symbol})
	}
	return nil
}

// resubscribeAll re-issues a protocol-level subscribe for every symbol with
// at least one active subscriber. Called right after (re)connecting, before
// the Connected event fires.
func (c *Client) resubscribeAll() error {
	c.refMu.Lock()
	symbols := make([]string, 0, len(c.refs))
	for symbol, set := range c.refs {
		if len(set) > 0 {
			symbols = append(symbols, symbol)
		}
	}
	c.refMu.Unlock()

	for _, symbol := range symbols {
		if err := c.send(envelope{Type: typeSubscribe, Symbol: symbol}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrFeedUnavailable
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}
