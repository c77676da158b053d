package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"trading-systemv1/internal/prediction"
	"trading-systemv1/internal/session"
	"trading-systemv1/internal/signalengine"
)

// Config holds all application configuration loaded from environment
// variables.
type Config struct {
	// Feed
	FeedURL              string
	FeedInitialReconnect time.Duration
	FeedMaxReconnect     time.Duration
	FeedHistoryTimeout   time.Duration

	// Provider login handshake, sent on every (re)connect. FeedTOTPSecret is
	// a base32 TOTP seed; leave both empty to run against a provider that
	// requires no login (e.g. the bundled simulator).
	FeedClientCode string
	FeedPassword   string
	FeedTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Subscription: symbols to watch by default at startup (comma-separated
	// "exchange:token" pairs, e.g. "NSE:99926000")
	DefaultSymbols string

	// Dynamic timeframes (comma-separated seconds, e.g. "60,300,900")
	EnabledTFs string

	// SIGNAL_CONFIG
	MinConfidence   float64
	PreCloseSeconds int
	HistoryCandles  int

	// SendSignalSeconds and ChartCandles belong to the out-of-process
	// delivery collaborators (message send offset, chart depth). They are
	// loaded and validated here so the whole SIGNAL_CONFIG surface lives in
	// one table, but nothing in this process consumes them.
	SendSignalSeconds int
	ChartCandles      int

	// VOLATILITY_CONFIG
	ATRThreshold            float64
	TickVolatilityThreshold float64
	TickVolatilityWindow    int
	MinCandlesForSignal     int

	// StorageMaxBuffer bounds the BufferedWriter's in-memory queue while
	// Redis is unreachable.
	StorageMaxBuffer int

	// Notification channel (operational alerts: feed down, circuit breaker
	// trips). Empty TelegramBotToken/WebhookURL disables that backend.
	TelegramBotToken string
	TelegramChatID   string
	WebhookURL       string
}

// Load reads configuration from environment variables with sensible
// defaults. Nothing here is load-fatal: the feed is a plain websocket URL
// with a working default against the bundled simulator, so the process
// starts cleanly without broker credentials.
func Load() *Config {
	return &Config{
		FeedURL:              getEnv("FEED_URL", "ws://localhost:8765/ws"),
		FeedInitialReconnect: getDuration("FEED_INITIAL_RECONNECT", time.Second),
		FeedMaxReconnect:     getDuration("FEED_MAX_RECONNECT", 30*time.Second),
		FeedHistoryTimeout:   getDuration("FEED_HISTORY_TIMEOUT", 5*time.Second),
		FeedClientCode:       getEnv("FEED_CLIENT_CODE", ""),
		FeedPassword:         getEnv("FEED_PASSWORD", ""),
		FeedTOTPSecret:       getEnv("FEED_TOTP_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/signals.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		DefaultSymbols: getEnv("DEFAULT_SYMBOLS", "NSE:99926000"),
		EnabledTFs:     getEnv("ENABLED_TFS", "60,300,900"),

		MinConfidence:     getFloat("SIGNAL_MIN_CONFIDENCE", 60),
		PreCloseSeconds:   getInt("SIGNAL_PRE_CLOSE_SECONDS", 4),
		HistoryCandles:    getInt("SIGNAL_HISTORY_CANDLES", 300),
		SendSignalSeconds: getInt("SIGNAL_SEND_SECONDS", 3),
		ChartCandles:      getInt("SIGNAL_CHART_CANDLES", 100),

		ATRThreshold:            getFloat("VOLATILITY_ATR_THRESHOLD", 0.005),
		TickVolatilityThreshold: getFloat("VOLATILITY_TICK_THRESHOLD", 0.003),
		TickVolatilityWindow:    getInt("VOLATILITY_TICK_WINDOW", 10),
		MinCandlesForSignal:     getInt("SIGNAL_MIN_CANDLES", 50),

		StorageMaxBuffer: getInt("STORAGE_MAX_BUFFER", 10000),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

// ParseTFs parses EnabledTFs into a slice of timeframe durations in seconds,
// skipping and logging any value outside session.SupportedTimeframes.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || !session.SupportedTimeframes[n] {
			log.Printf("[config] skipping unsupported TF value: %q", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

// ParseSymbols parses DefaultSymbols into a slice of "exchange:token" strings.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.DefaultSymbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SignalEngineConfig builds the signalengine.Config this process should run
// with from the loaded environment.
func (c *Config) SignalEngineConfig() signalengine.Config {
	return signalengine.Config{
		MinConfidence:       c.MinConfidence,
		MinCandlesForSignal: c.MinCandlesForSignal,
		Volatility: prediction.VolatilityConfig{
			ATRThreshold:            c.ATRThreshold,
			TickVolatilityThreshold: c.TickVolatilityThreshold,
		},
	}
}

// SessionManagerConfig builds the session.Config this process should run
// the Session Manager with.
func (c *Config) SessionManagerConfig() session.Config {
	return session.Config{
		HistoryCandles:  c.HistoryCandles,
		PreCloseSeconds: c.PreCloseSeconds,
		Signal:          c.SignalEngineConfig(),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s=%q, using default %g", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid duration for %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
