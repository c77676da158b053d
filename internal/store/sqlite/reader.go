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

// Reader provides read-only access to the SQLite system of record: resuming
// active sessions after a restart and serving signal history/debug views.
type Reader struct {
	db  *sql.DB
	log *slog.Logger
}

// NewReader opens a SQLite connection for reading. Separate from Writer's
// connection since reads may run concurrently with the writer's batch
// commits; WAL mode permits this.
func NewReader(dbPath string, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	logger.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db, log: logger}, nil
}

// ReadSession implements model.SessionReader.
func (r *Reader) ReadSession(ctx context.Context, id string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, chat_id, symbol, timeframe, status, started_at, last_signal_at, last_signal_candle_ts, options
		FROM sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: read session %s: %w", id, err)
	}
	return s, nil
}

// ReadActiveSessions implements model.SessionReader. Used on process
// restart to re-establish the sessions that were active before shutdown —
// the composition root re-starts each through the Session Manager rather
// than trusting the stored window state, since the candle windows
// themselves live only in memory.
func (r *Reader) ReadActiveSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, symbol, timeframe, status, started_at, last_signal_at, last_signal_candle_ts, options
		FROM sessions WHERE status = ?
	`, string(model.SessionActive))
	if err != nil {
		return nil, fmt.Errorf("sqlite: read active sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan active session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanSession works for both.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	var status string
	var startedAt int64
	var lastSignalAt sql.NullInt64
	var lastSignalCandleTS sql.NullInt64
	var options sql.NullString

	if err := row.Scan(&s.ID, &s.ChatID, &s.Symbol, &s.Timeframe, &status, &startedAt,
		&lastSignalAt, &lastSignalCandleTS, &options); err != nil {
		return nil, err
	}

	s.Status = model.SessionStatus(status)
	s.StartedAt = time.Unix(startedAt, 0).UTC()
	if lastSignalAt.Valid {
		t := time.Unix(lastSignalAt.Int64, 0).UTC()
		s.LastSignalAt = &t
	}
	if lastSignalCandleTS.Valid {
		s.LastSignalCandleTimestamp = lastSignalCandleTS.Int64
	}
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &s.Options); err != nil {
			return nil, fmt.Errorf("unmarshal session options: %w", err)
		}
	}
	return &s, nil
}

// ReadRecentSignals implements model.SignalReader: the durable counterpart
// to the Redis reader's hot-path view, used for history deeper than Redis's
// trimmed stream retains or when Redis itself is unavailable.
func (r *Reader) ReadRecentSignals(ctx context.Context, sessionID string, limit int) ([]model.SignalResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT data FROM signals WHERE session_id = ? ORDER BY ts DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read recent signals %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []model.SignalResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite: scan signal: %w", err)
		}
		var result model.SignalResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			r.log.Warn("sqlite: unmarshal signal failed", "session", sessionID, "error", err)
			continue
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

// Close closes the reader's connection.
func (r *Reader) Close() error {
	return r.db.Close()
}
