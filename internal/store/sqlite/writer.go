// Package sqlite is the durable system of record: every session
// transition and every emitted signal, written via a single-writer,
// WAL-mode connection with batched commits.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"trading-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching. It
// implements both model.SignalWriter and model.SessionWriter: sessions are
// low-volume and upserted immediately, signals are batched.
type Writer struct {
	db  *sql.DB
	log *slog.Logger

	signalCh  chan model.SignalResult
	sessionCh chan model.Session
	done      chan struct{}
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes WAL mode and the schema, and
// starts its batching goroutine. No separate call is needed to start it;
// ctx governs its lifetime.
func New(ctx context.Context, cfg WriterConfig, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	logger.Info("sqlite writer opened", "path", cfg.DBPath)
	w := &Writer{
		db:        db,
		log:       logger,
		signalCh:  make(chan model.SignalResult, 1024),
		sessionCh: make(chan model.Session, 256),
		done:      make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id                      TEXT PRIMARY KEY,
			chat_id                 TEXT NOT NULL,
			symbol                  TEXT NOT NULL,
			timeframe               INTEGER NOT NULL,
			status                  TEXT NOT NULL,
			started_at              INTEGER NOT NULL,
			last_signal_at          INTEGER,
			last_signal_candle_ts   INTEGER,
			options                 TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_chat ON sessions(chat_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

		CREATE TABLE IF NOT EXISTS signals (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id      TEXT    NOT NULL,
			symbol          TEXT    NOT NULL,
			timeframe       INTEGER NOT NULL,
			ts              INTEGER NOT NULL,
			candle_close_ts INTEGER NOT NULL,
			direction       TEXT    NOT NULL,
			confidence      REAL    NOT NULL,
			p_up            REAL    NOT NULL,
			p_down          REAL    NOT NULL,
			data            TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_signals_session_ts ON signals(session_id, ts DESC);
	`)
	return err
}

// run batches incoming signals and flushes on defaultBatchSize or
// defaultFlushDelay, whichever comes first; sessions are upserted
// immediately since their write rate is orders of magnitude lower. Returns
// once ctx is cancelled, after a final flush.
func (w *Writer) run(ctx context.Context) {
	defer close(w.done)

	batch := make([]model.SignalResult, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertSignalBatch(batch); err != nil {
			w.log.Warn("sqlite: signal batch insert failed", "error", err)
		} else {
			w.log.Debug("sqlite: committed signal batch", "count", len(batch), "elapsed", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case result, ok := <-w.signalCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, result)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case sess := <-w.sessionCh:
			if err := w.upsertSession(sess); err != nil {
				w.log.Warn("sqlite: session upsert failed", "session", sess.ID, "error", err)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteSignal implements model.SignalWriter. It enqueues non-blockingly;
// a full buffer (the writer falling behind or ctx already cancelled)
// surfaces as an error rather than blocking the Session Manager's
// emission path.
func (w *Writer) WriteSignal(ctx context.Context, result model.SignalResult) error {
	select {
	case w.signalCh <- result:
		return nil
	default:
		return fmt.Errorf("sqlite: signal buffer full, dropping for session %s", result.SessionID)
	}
}

// WriteSession implements model.SessionWriter.
func (w *Writer) WriteSession(ctx context.Context, s model.Session) error {
	select {
	case w.sessionCh <- s:
		return nil
	default:
		return fmt.Errorf("sqlite: session buffer full, dropping %s", s.ID)
	}
}

func (w *Writer) insertSignalBatch(results []model.SignalResult) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO signals (session_id, symbol, timeframe, ts, candle_close_ts, direction, confidence, p_up, p_down, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal signal: %w", err)
		}
		_, err = stmt.Exec(r.SessionID, r.Symbol, r.Timeframe, r.Timestamp.Unix(), r.CandleCloseTime.Unix(),
			string(r.Direction), r.Confidence, r.PUp, r.PDown, string(data))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (w *Writer) upsertSession(s model.Session) error {
	options, err := json.Marshal(s.Options)
	if err != nil {
		return fmt.Errorf("marshal session options: %w", err)
	}

	var lastSignalAt sql.NullInt64
	if s.LastSignalAt != nil {
		lastSignalAt = sql.NullInt64{Int64: s.LastSignalAt.Unix(), Valid: true}
	}

	_, err = w.db.Exec(`
		INSERT INTO sessions (id, chat_id, symbol, timeframe, status, started_at, last_signal_at, last_signal_candle_ts, options)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_signal_at = excluded.last_signal_at,
			last_signal_candle_ts = excluded.last_signal_candle_ts,
			options = excluded.options
	`, s.ID, s.ChatID, s.Symbol, s.Timeframe, string(s.Status), s.StartedAt.Unix(),
		lastSignalAt, s.LastSignalCandleTimestamp, string(options))
	return err
}

// Close stops the batching goroutine (after a final flush) and closes the
// database.
func (w *Writer) Close() error {
	close(w.signalCh)
	<-w.done
	return w.db.Close()
}
