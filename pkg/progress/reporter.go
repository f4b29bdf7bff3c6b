// Package progress coalesces high-frequency transfer progress into infrequent
// persisted writes.
package progress

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultInterval is the minimum spacing between two persisted writes.
const DefaultInterval = 500 * time.Millisecond

// queueSize bounds the writes waiting for the sink. The throttle emits at most two
// writes per window so the queue only fills when the sink is stalled.
const queueSize = 8

// Progress is one byte-count observation expressed in GB.
type Progress struct {
	DoneGB  float64
	TotalGB float64
}

// Sink persists a progress value. It runs on the reporter's flusher goroutine,
// never on the goroutine calling Report.
type Sink func(Progress)

// Reporter is a trailing-edge throttle: a tick arriving at least Interval after the
// last write is written immediately; otherwise the latest value is kept and a single
// deferred write is scheduled for the end of the window. The last value of a burst
// is never lost.
type Reporter struct {
	clock    clock.Clock
	interval time.Duration

	mu        sync.Mutex
	lastWrite time.Time
	hasWrite  bool
	pending   *Progress
	timer     *clock.Timer
	timerGen  uint64
	closed    bool

	queue chan Progress
	done  chan struct{}
}

// Option customises a Reporter.
type Option func(*Reporter)

// WithClock swaps the time source, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(r *Reporter) { r.clock = c }
}

// WithInterval sets the throttle window.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewReporter starts a reporter delivering writes to sink.
func NewReporter(sink Sink, opts ...Option) *Reporter {
	r := &Reporter{
		clock:    clock.New(),
		interval: DefaultInterval,
		queue:    make(chan Progress, queueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.flush(sink)
	return r
}

// Report records a raw progress tick.
func (r *Reporter) Report(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	now := r.clock.Now()
	if !r.hasWrite || now.Sub(r.lastWrite) >= r.interval {
		r.stopTimerLocked()
		r.pending = nil
		r.emitLocked(p, now)
		return
	}

	r.pending = &p
	if r.timer == nil {
		r.timerGen++
		gen := r.timerGen
		r.timer = r.clock.AfterFunc(r.lastWrite.Add(r.interval).Sub(now), func() { r.fire(gen) })
	}
}

// fire runs the deferred write scheduled as generation gen. A callback that was
// already waiting on mu when its timer got stopped finds a newer generation and
// leaves the current timer alone.
func (r *Reporter) fire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.timerGen {
		return
	}
	r.timer = nil
	if r.closed || r.pending == nil {
		return
	}
	p := *r.pending
	r.pending = nil
	r.emitLocked(p, r.clock.Now())
}

func (r *Reporter) emitLocked(p Progress, now time.Time) {
	r.lastWrite = now
	r.hasWrite = true
	select {
	case r.queue <- p:
	default:
		// Sink is stalled; drop the oldest queued value in favour of the newest.
		select {
		case <-r.queue:
		default:
		}
		r.queue <- p
	}
}

func (r *Reporter) stopTimerLocked() {
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reporter) flush(sink Sink) {
	defer close(r.done)
	for p := range r.queue {
		sink(p)
	}
}

// Close writes the value still waiting for its deferred write, waits for queued
// writes to reach the sink and stops the flusher. Reports after Close are ignored.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	r.stopTimerLocked()
	if r.pending != nil {
		p := *r.pending
		r.pending = nil
		r.emitLocked(p, r.clock.Now())
	}
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}
