package archive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Result is the outcome of a session that ended with a winner.
type Result struct {
	SessionID  string
	Winner     string
	WinnerRole string
	Loser      string
	Reason     string
	EndedAt    time.Time
}

// Recorder accepts finished results. Record must not block.
type Recorder interface {
	Record(Result)
}

type Nop struct{}

func (Nop) Record(Result) {}

// SaveFunc persists a single result.
type SaveFunc func(ctx context.Context, r Result) error

// Writer queues results and saves them from its own goroutine so the relay
// never waits on the database.
type Writer struct {
	inbox   chan Result
	save    SaveFunc
	timeout time.Duration
	log     *zap.Logger
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
	errs   error
}

func NewWriter(save SaveFunc, log *zap.Logger, queueSize int, timeout time.Duration) *Writer {
	w := &Writer{
		inbox:   make(chan Result, queueSize),
		save:    save,
		timeout: timeout,
		log:     log,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	for r := range w.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		err := w.save(ctx, r)
		cancel()
		if err != nil {
			w.log.Warn("archive result failed",
				zap.String("session_id", r.SessionID),
				zap.Error(err))
			w.mu.Lock()
			w.errs = multierr.Append(w.errs, err)
			w.mu.Unlock()
		}
	}
}

// Record enqueues r, dropping it when the queue is full or the writer closed.
func (w *Writer) Record(r Result) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.inbox <- r:
	default:
		w.log.Warn("archive queue full, dropping result", zap.String("session_id", r.SessionID))
	}
}

// Close drains the queue and returns every save error seen so far.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.inbox)
	}
	w.mu.Unlock()

	<-w.done

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.errs
}
