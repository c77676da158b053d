package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"trading-systemv1/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker. During
// circuit-open state, signals are buffered locally in memory and replayed
// when the circuit closes again, so a transient Redis outage degrades to
// delayed persistence instead of blocking the emission path.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context
	log    *slog.Logger

	mu     sync.Mutex
	buffer [][]byte // JSON-encoded model.SignalResult, oldest first
	maxBuf int      // max buffered writes before dropping the oldest (default 10000)

	OnBuffer func()          // called when a signal is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered signals
}

// NewBufferedWriter creates a BufferedWriter wrapping w. It hooks cb's
// OnStateChange to flush the buffer as soon as the circuit closes again,
// preserving any existing callback.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int, logger *slog.Logger) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	if logger == nil {
		logger = slog.Default()
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		log:    logger,
		buffer: make([][]byte, 0, 256),
		maxBuf: maxBufferSize,
	}

	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteSignal implements model.SignalWriter. When the circuit is open, the
// signal is buffered locally rather than returned as an error, so callers
// that treat persistence as best-effort don't need special-case handling
// for "storage is temporarily down".
func (bw *BufferedWriter) WriteSignal(ctx context.Context, result model.SignalResult) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteSignal(ctx, result)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite(result)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(result model.SignalResult) {
	data, err := json.Marshal(result)
	if err != nil {
		bw.log.Warn("buffered-writer: marshal error", "error", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:] // drop oldest
	}
	bw.buffer = append(bw.buffer, data)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered signals through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([][]byte, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, raw := range toFlush {
		var result model.SignalResult
		if err := json.Unmarshal(raw, &result); err != nil {
			continue
		}
		if err := bw.writer.WriteSignal(bw.ctx, result); err == nil {
			flushed++
		}
	}

	bw.log.Info("buffered-writer: flushed buffered signals", "count", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered signals waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}

// Close closes the underlying writer.
func (bw *BufferedWriter) Close() error {
	return bw.writer.Close()
}
