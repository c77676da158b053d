// Command signalengine is the composition root for the real-time signal
// engine: it wires the feed client through the candle aggregator into the
// session manager, which drives the prediction and signal engines on a
// per-session pre-close schedule, persisting every emission to Redis (hot
// path) and SQLite (system of record).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"trading-systemv1/config"
	"trading-systemv1/internal/feed"
	applog "trading-systemv1/internal/logger"
	"trading-systemv1/internal/marketdata/agg"
	"trading-systemv1/internal/metrics"
	"trading-systemv1/internal/model"
	"trading-systemv1/internal/notification"
	"trading-systemv1/internal/session"
	redisstore "trading-systemv1/internal/store/redis"
	sqlitestore "trading-systemv1/internal/store/sqlite"
)

func main() {
	logger := applog.Init("signalengine", slog.LevelInfo)
	logger.Info("signalengine starting")

	cfg := config.Load()
	enabledTFs := cfg.ParseTFs()
	symbols := cfg.ParseSymbols()
	logger.Info("configuration loaded", "feed_url", cfg.FeedURL, "timeframes", enabledTFs, "symbols", symbols)

	var notifiers []notification.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if len(notifiers) == 0 {
		notifiers = append(notifiers, notification.NewLogNotifier())
	}
	multiNotifier := notification.NewMultiNotifier(5*time.Minute, notifiers...)
	notifyAll := func(ctx context.Context, alert notification.Alert) {
		if err := multiNotifier.Send(ctx, alert); err != nil {
			logger.Warn("notification delivery failed", "component", alert.Component, "title", alert.Title, "error", err)
		}
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledTFs(enabledTFs)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite: durable system of record ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		logger.Error("sqlite directory creation failed", "error", err)
		os.Exit(1)
	}
	sqlWriter, err := sqlitestore.New(ctx, sqlitestore.WriterConfig{DBPath: cfg.SQLitePath}, logger)
	if err != nil {
		logger.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)
	logger.Info("sqlite writer ready", "path", cfg.SQLitePath)

	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath, logger)
	if err != nil {
		logger.Warn("sqlite reader init failed, skipping session resume", "error", err)
	} else {
		defer sqlReader.Close()
	}

	// ---- Redis: hot-path fan-out, guarded by a circuit breaker ----
	var signalSink model.SignalWriter = sqlWriter
	var redisReader *redisstore.Reader
	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, logger)
	if err != nil {
		logger.Warn("redis init failed, continuing on sqlite alone", "error", err)
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)

		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
				notifyAll(ctx, notification.Alert{
					Level:     notification.AlertWarning,
					Component: "redis",
					Title:     "Redis circuit breaker open",
					Message:   "Signal writes are being buffered locally until Redis recovers.",
				})
			}
			logger.Warn("redis circuit breaker transition", "from", from, "to", to)
		}
		buffered := redisstore.NewBufferedWriter(ctx, redisWriter, cb, cfg.StorageMaxBuffer, logger)
		buffered.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
		defer buffered.Close()
		signalSink = multiSignalWriter{buffered, sqlWriter}
		logger.Info("redis writer ready", "addr", cfg.RedisAddr)

		reader, err := redisstore.NewReader(redisstore.ReaderConfig{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			ConsumerGroup: "signalengine",
			ConsumerName:  "reclaimer-1",
		}, logger)
		if err != nil {
			logger.Warn("redis reader init failed, skipping stream maintenance", "error", err)
		} else {
			defer reader.Close()
			redisReader = reader
		}
	}

	// ---- Feed client ----
	feedClient, err := feed.New(feed.Config{
		URL:                   cfg.FeedURL,
		InitialReconnectDelay: cfg.FeedInitialReconnect,
		MaxReconnectDelay:     cfg.FeedMaxReconnect,
		HistoryRequestTimeout: cfg.FeedHistoryTimeout,
		ClientCode:            cfg.FeedClientCode,
		Password:              cfg.FeedPassword,
		TOTPSecret:            cfg.FeedTOTPSecret,
	}, logger)
	if err != nil {
		logger.Error("feed client init failed", "error", err)
		os.Exit(1)
	}

	connSub := feedClient.Connected.Subscribe()
	disconnSub := feedClient.Disconnected.Subscribe()
	symErrSub := feedClient.SymbolErrors.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-connSub.C():
				health.SetFeedConnected(true)
				prom.FeedReconnects.Inc()
			case <-disconnSub.C():
				health.SetFeedConnected(false)
				prom.FeedDisconnects.Inc()
			case se, ok := <-symErrSub.C():
				if !ok {
					return
				}
				logger.Warn("feed: provider error for symbol", "symbol", se.Symbol, "error", se.Err)
			}
		}
	}()

	tickSub := feedClient.Ticks.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-tickSub.C():
				if !ok {
					return
				}
				prom.TicksTotal.Inc()
				health.SetLastTickTime(time.Now())
				_ = t
			}
		}
	}()

	go feedClient.Start(ctx)

	// ---- Candle aggregator ----
	aggregator := agg.New()
	aggregator.TickWindow = cfg.TickVolatilityWindow
	aggregator.OnMalformedTick = func(symbol string, timeframe int) {
		prom.DroppedTicks.Inc()
	}
	aggregator.OnCandleClosed = func(symbol string, timeframe int) {
		prom.CandlesClosedTotal.WithLabelValues(strconv.Itoa(timeframe)).Inc()
	}

	// ---- Session manager ----
	manager := session.New(feedClient, aggregator, feedClient.Ticks, feedClient.Connected, feedClient.Disconnected,
		cfg.SessionManagerConfig(), logger)
	manager.AddSignalWriter(signalSink)
	manager.AddSessionWriter(sqlWriter)

	feedDownSub := manager.FeedDisconnected.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-feedDownSub.C():
				notifyAll(ctx, notification.Alert{
					Level:     notification.AlertCritical,
					Component: "feed",
					Title:     "Feed disconnected",
					Message:   "Reconnection is in progress with exponential backoff.",
				})
			}
		}
	}()

	preCloseSeconds := time.Duration(cfg.PreCloseSeconds) * time.Second
	preCloseSub := manager.PreCloseSignal.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-preCloseSub.C():
				if !ok {
					return
				}
				recordSignalMetrics(prom, evt, preCloseSeconds)
				if evt.Signal.Direction != model.DirectionNoTrade && evt.Signal.Confidence >= 80 {
					notifyAll(ctx, notification.Alert{
						Level:     notification.AlertInfo,
						Component: "signal",
						Title:     fmt.Sprintf("%s %s", evt.Signal.Direction, evt.Signal.Symbol),
						Message: fmt.Sprintf("confidence=%.0f timeframe=%ds session=%s",
							evt.Signal.Confidence, evt.Signal.Timeframe, evt.Session.ID),
					})
				}
			}
		}
	}()

	activeStreams := newStreamTracker()

	startSub := manager.SessionStarted.Subscribe()
	stopSub := manager.SessionStopped.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-startSub.C():
				if !ok {
					return
				}
				prom.SessionStartsTotal.Inc()
				prom.SessionsActive.Set(float64(manager.GetActiveSessionsCount()))
				activeStreams.add(s.ID)
				if redisWriter != nil {
					redisWriter.PublishSessionEvent(ctx, s, "sessionStarted")
				}
			case s, ok := <-stopSub.C():
				if !ok {
					return
				}
				prom.SessionStopsTotal.Inc()
				prom.SessionsActive.Set(float64(manager.GetActiveSessionsCount()))
				activeStreams.remove(s.ID)
				if redisWriter != nil {
					redisWriter.PublishSessionEvent(ctx, s, "sessionStopped")
				}
			}
		}
	}()

	if redisReader != nil {
		go runStreamMaintenance(ctx, redisReader, activeStreams, prom, logger)
	}

	go manager.Run(ctx)

	// ---- Resume sessions active when the previous process exited ----
	resumed := make(map[string]bool)
	if sqlReader != nil {
		prior, err := sqlReader.ReadActiveSessions(ctx)
		if err != nil {
			logger.Warn("session resume: read active sessions failed", "error", err)
		}
		for _, s := range prior {
			if _, err := manager.StartSession(ctx, s.ID, s.ChatID, s.Symbol, s.Timeframe, s.Options); err != nil {
				logger.Warn("session resume failed", "session", s.ID, "error", err)
				continue
			}
			resumed[s.ID] = true
			logger.Info("session resumed from prior run", "session", s.ID, "symbol", s.Symbol, "timeframe", s.Timeframe)
		}
	}

	// ---- Default sessions from DEFAULT_SYMBOLS x ENABLED_TFS ----
	for _, symbol := range symbols {
		for _, tf := range enabledTFs {
			id := strings.ReplaceAll(symbol, ":", "-") + "-" + strconv.Itoa(tf)
			if resumed[id] {
				continue
			}
			if _, err := manager.StartSession(ctx, id, "default", symbol, tf, model.SessionOptions{}); err != nil {
				logger.Warn("default session start failed", "symbol", symbol, "timeframe", tf, "error", err)
			}
		}
	}
	health.SetActiveSessions(manager.GetActiveSessionsCount())

	logger.Info("signalengine ready", "active_sessions", manager.GetActiveSessionsCount())

	<-sigCh
	logger.Info("shutdown signal received, draining")
	cancel()
	metricsSrv.Stop(context.Background())
}

// multiSignalWriter fans a signal out to every wrapped writer, returning the
// first error encountered (if any) but always attempting every writer.
type multiSignalWriter []model.SignalWriter

func (m multiSignalWriter) WriteSignal(ctx context.Context, result model.SignalResult) error {
	var firstErr error
	for _, w := range m {
		if err := w.WriteSignal(ctx, result); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiSignalWriter) Close() error {
	var firstErr error
	for _, w := range m {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func recordSignalMetrics(prom *metrics.Metrics, evt session.PreCloseEvent, preClose time.Duration) {
	prom.SignalsEmittedTotal.WithLabelValues(string(evt.Signal.Direction)).Inc()
	if evt.Signal.Direction != model.DirectionNoTrade {
		prom.SignalConfidence.Observe(evt.Signal.Confidence)
	}
	for _, v := range evt.Signal.Votes {
		prom.SignalVotesCast.WithLabelValues(v.IndicatorName, string(v.Direction)).Inc()
	}

	deadline := evt.Signal.CandleCloseTime.Add(-preClose)
	if drift := evt.Signal.Timestamp.Sub(deadline); drift > 0 {
		prom.SchedulingDrift.Observe(drift.Seconds())
	} else {
		prom.SchedulingDrift.Observe(0)
	}
}

// streamTracker keeps the set of session IDs currently active, so the
// stream-maintenance loop knows which Redis signal streams need a consumer
// group and periodic PEL reclaim.
type streamTracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newStreamTracker() *streamTracker {
	return &streamTracker{ids: make(map[string]struct{})}
}

func (t *streamTracker) add(id string) {
	t.mu.Lock()
	t.ids[id] = struct{}{}
	t.mu.Unlock()
}

func (t *streamTracker) remove(id string) {
	t.mu.Lock()
	delete(t.ids, id)
	t.mu.Unlock()
}

func (t *streamTracker) streamKeys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.ids))
	for id := range t.ids {
		keys = append(keys, "signal:stream:"+id)
	}
	return keys
}

// runStreamMaintenance periodically ensures every active session's signal
// stream has this process's consumer group and reclaims any PEL entries left
// idle by a crashed consumer, so a dashboard reading via ConsumeSignals never
// loses a signal to an ungraceful restart. Blocks until ctx is cancelled.
func runStreamMaintenance(ctx context.Context, reader *redisstore.Reader, tracker *streamTracker, prom *metrics.Metrics, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		streams := tracker.streamKeys()
		if len(streams) == 0 {
			continue
		}
		if err := reader.EnsureConsumerGroup(ctx, streams); err != nil {
			logger.Warn("stream maintenance: ensure consumer group failed", "error", err)
			continue
		}
		for _, stream := range streams {
			claimed, err := reader.ReclaimStaleMessages(ctx, stream, 2*time.Minute, 100)
			if err != nil {
				logger.Warn("stream maintenance: reclaim failed", "stream", stream, "error", err)
				continue
			}
			if len(claimed) > 0 {
				prom.PELMessagesReclaimed.Add(float64(len(claimed)))
			}
		}
	}
}
