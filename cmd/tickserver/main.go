// cmd/tickserver is a feed simulator: it speaks the same envelope protocol
// internal/feed.Client expects from a real provider (subscribe/unsubscribe/
// tick/history_request/history_response/error), so the signal engine can be
// exercised end to end without a live broker connection.
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  — listen address (default: ":8765")
//	TICK_SYMBOLS      — comma-separated EXCHANGE:TOKEN pairs (default: "NSE:99926000")
//	TICK_INTERVAL_MS  — tick generation interval in milliseconds (default: "250")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"trading-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

// envelope mirrors internal/feed's unexported wire type — kept in lockstep
// by hand since that type isn't exported across the package boundary.
type envelope struct {
	Type string `json:"type"`

	Symbol string `json:"symbol,omitempty"`

	Tick *model.Tick `json:"tick,omitempty"`

	RequestID string           `json:"request_id,omitempty"`
	Timeframe int              `json:"timeframe,omitempty"`
	Count     int              `json:"count,omitempty"`
	Candles   []model.TFCandle `json:"candles,omitempty"`

	Error string `json:"error,omitempty"`
}

const (
	typeAuth            = "auth"
	typeSubscribe       = "subscribe"
	typeUnsubscribe     = "unsubscribe"
	typeTick            = "tick"
	typeHistoryRequest  = "history_request"
	typeHistoryResponse = "history_response"
	typeError           = "error"
)

// instrument holds per-symbol simulation state, mutated only by the
// generator goroutine.
type instrument struct {
	token    string
	exchange string
	price    float64
}

func (i *instrument) symbol() string { return i.exchange + ":" + i.token }

// client is one connected consumer's subscription state.
type client struct {
	conn *websocket.Conn
	out  chan []byte

	mu   sync.Mutex
	subs map[string]bool
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, out: make(chan []byte, 256), subs: make(map[string]bool)}
}

func (c *client) send(env envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.out <- raw:
	default: // slow consumer, drop frame
	}
}

func (c *client) subscribed(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[symbol]
}

// hub tracks connected clients and the simulated instrument universe.
type hub struct {
	mu          sync.RWMutex
	clients     map[*client]struct{}
	instruments map[string]*instrument // symbol -> instrument
}

func newHub(instruments []*instrument) *hub {
	bySymbol := make(map[string]*instrument, len(instruments))
	for _, inst := range instruments {
		bySymbol[inst.symbol()] = inst
	}
	return &hub{clients: make(map[*client]struct{}), instruments: bySymbol}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// broadcastTick fans a tick out to every client subscribed to its symbol.
func (h *hub) broadcastTick(tick model.Tick) {
	symbol := tick.Symbol()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(symbol) {
			c.send(envelope{Type: typeTick, Tick: &tick})
		}
	}
}

// ─── WebSocket handler ──────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		c := newClient(conn)
		h.register(c)
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		done := make(chan struct{})
		go writePump(c, done)
		readPump(h, c, r.RemoteAddr)
		close(done)

		h.unregister(c)
		conn.Close()
		log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
	}
}

func writePump(c *client, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-c.out:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// readPump handles subscribe/unsubscribe/history_request frames from the
// client until the connection closes.
func readPump(h *hub, c *client, remoteAddr string) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("[tickserver] malformed frame from %s: %v", remoteAddr, err)
			continue
		}

		switch env.Type {
		case typeAuth:
			// The simulator requires no login; accept and move on.

		case typeSubscribe:
			c.mu.Lock()
			c.subs[env.Symbol] = true
			c.mu.Unlock()
			log.Printf("[tickserver] %s subscribed to %s", remoteAddr, env.Symbol)

		case typeUnsubscribe:
			c.mu.Lock()
			delete(c.subs, env.Symbol)
			c.mu.Unlock()
			log.Printf("[tickserver] %s unsubscribed from %s", remoteAddr, env.Symbol)

		case typeHistoryRequest:
			handleHistoryRequest(h, c, env)

		default:
			log.Printf("[tickserver] unknown frame type from %s: %q", remoteAddr, env.Type)
		}
	}
}

// handleHistoryRequest synthesizes `count` closed candles ending at the
// current TF-aligned bucket, walking the price backwards from the
// instrument's current simulated price so the series looks continuous with
// the live ticks that will follow.
func handleHistoryRequest(h *hub, c *client, req envelope) {
	h.mu.RLock()
	inst, ok := h.instruments[req.Symbol]
	h.mu.RUnlock()
	if !ok {
		c.send(envelope{Type: typeHistoryResponse, RequestID: req.RequestID,
			Error: fmt.Sprintf("unknown symbol %q", req.Symbol)})
		return
	}

	count := req.Count
	if count <= 0 {
		count = 100
	}
	tf := req.Timeframe
	if tf <= 0 {
		tf = 60
	}

	now := time.Now().UTC()
	currentBucket := (now.Unix() / int64(tf)) * int64(tf)

	h.mu.RLock()
	price := inst.price
	h.mu.RUnlock()

	candles := make([]model.TFCandle, count)
	rng := rand.New(rand.NewSource(currentBucket))
	for i := count - 1; i >= 0; i-- {
		bucket := currentBucket - int64(count-i)*int64(tf)
		open := price
		high := open * (1 + rng.Float64()*0.002)
		low := open * (1 - rng.Float64()*0.002)
		closePrice := low + rng.Float64()*(high-low)
		candles[i] = model.TFCandle{
			Token:      inst.token,
			Exchange:   inst.exchange,
			TF:         tf,
			TS:         time.Unix(bucket, 0).UTC(),
			StartEpoch: bucket,
			Open:       open,
			High:       high,
			Low:        low,
			Close:      closePrice,
			TickCount:  1,
			Forming:    false,
		}
		price = open / (1 + (rng.Float64()*0.002 - 0.001))
	}

	c.send(envelope{Type: typeHistoryResponse, RequestID: req.RequestID, Candles: candles})
}

// ─── Tick generator ─────────────────────────────────────────────────────

// walkPrice applies a tiny random walk (±0.1%) to simulate price movement.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	newPrice := price * (1 + pct)
	if newPrice < 0.01 {
		newPrice = 0.01
	}
	return newPrice
}

func runGenerator(h *hub, instruments []*instrument, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		for _, inst := range instruments {
			h.mu.Lock()
			inst.price = walkPrice(inst.price)
			price := inst.price
			h.mu.Unlock()

			tick := model.Tick{
				Token:    inst.token,
				Exchange: inst.exchange,
				Price:    price,
				Qty:      int64(rand.Intn(100) + 1),
				TickTS:   time.Now().UTC(),
			}
			h.broadcastTick(tick)
		}
	}
}

// ─── main ───────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting feed simulator...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":8765")
	symbolsEnv := envOrDefault("TICK_SYMBOLS", "NSE:99926000")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 250)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[tickserver] no instruments configured via TICK_SYMBOLS")
	}
	log.Printf("[tickserver] instruments: %d configured", len(instruments))
	log.Printf("[tickserver] tick interval: %dms", intervalMs)

	h := newHub(instruments)
	go runGenerator(h, instruments, time.Duration(intervalMs)*time.Millisecond)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] listening on %s (ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// ─── helpers ────────────────────────────────────────────────────────────

func parseInstruments(s string) []*instrument {
	defaultPrices := map[string]float64{
		"99926000": 25660.00, // NIFTY 50 index sim
		"99926009": 25660.00,
		"2885":     1850.50, // Reliance-like
		"1594":     2500.00,
	}

	var result []*instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			log.Printf("[tickserver] skipping invalid symbol spec: %q", part)
			continue
		}
		exchange, token := strings.TrimSpace(seg[0]), strings.TrimSpace(seg[1])
		price, ok := defaultPrices[token]
		if !ok {
			price = 1000.00
		}
		result = append(result, &instrument{token: token, exchange: exchange, price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
