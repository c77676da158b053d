// Package redis is the hot-path storage sink: per-session signal streams,
// a latest-signal cache, and live pub/sub fan-out for external subscribers
// (chat front-end, dashboards). It trades durability for low latency;
// internal/store/sqlite is the system of record.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"trading-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// signalStreamMaxLen bounds each session's XADD stream to roughly the
	// last 2000 pre-close firings: about 33 hours at the 1m timeframe,
	// proportionally longer at larger ones.
	signalStreamMaxLen = 2000
	defaultLatestTTL   = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer is the Redis-backed model.SignalWriter: every emitted signal is
// XADD'd to its session's stream, cached as the session's latest signal,
// and published for live subscribers, all in one pipelined round trip.
type Writer struct {
	client *goredis.Client
	log    *slog.Logger
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("redis writer connected", "addr", cfg.Addr)
	return &Writer{client: client, log: logger}, nil
}

func signalStreamKey(sessionID string) string { return "signal:stream:" + sessionID }
func signalLatestKey(sessionID string) string  { return "signal:latest:" + sessionID }
func signalPubSubChannel(symbol string, timeframe int) string {
	return fmt.Sprintf("pub:signal:%s:%d", symbol, timeframe)
}

// WriteSignal implements model.SignalWriter. Errors are returned to the
// caller (typically a BufferedWriter guarded by a CircuitBreaker) rather
// than logged-and-swallowed here, since the caller owns the best-effort
// policy.
func (w *Writer) WriteSignal(ctx context.Context, result model.SignalResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: marshal signal: %w", err)
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: signalStreamKey(result.SessionID),
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Set(ctx, signalLatestKey(result.SessionID), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, signalPubSubChannel(result.Symbol, result.Timeframe), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: write signal pipeline: %w", err)
	}
	return nil
}

// PublishSessionEvent is an ops-facing convenience, not part of any storage
// port: it fans a session lifecycle transition out over pub/sub so a
// dashboard can reflect session starts/stops without polling SQLite.
func (w *Writer) PublishSessionEvent(ctx context.Context, s model.Session, event string) {
	data, err := json.Marshal(struct {
		Event   string        `json:"event"`
		Session model.Session `json:"session"`
	}{Event: event, Session: s})
	if err != nil {
		w.log.Warn("redis: marshal session event failed", "error", err)
		return
	}
	if err := w.client.Publish(ctx, "pub:session:"+s.ChatID, string(data)).Err(); err != nil {
		w.log.Warn("redis: publish session event failed", "error", err)
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
