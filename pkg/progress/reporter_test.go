package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	writes []Progress
	seen   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{seen: make(chan struct{}, 64)}
}

func (s *recordingSink) sink(p Progress) {
	s.mu.Lock()
	s.writes = append(s.writes, p)
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func (s *recordingSink) snapshot() []Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Progress(nil), s.writes...)
}

func (s *recordingSink) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for write %d of %d (have %v)", i+1, n, s.snapshot())
		}
	}
}

func pct(v float64) Progress {
	return Progress{DoneGB: v, TotalGB: 100}
}

func TestReporter_CoalescesBurst(t *testing.T) {
	mock := clock.NewMock()
	rec := newRecordingSink()
	r := NewReporter(rec.sink, WithClock(mock))
	defer r.Close()

	r.Report(pct(30))
	rec.waitFor(t, 1)

	mock.Add(100 * time.Millisecond)
	r.Report(pct(31))
	mock.Add(100 * time.Millisecond)
	r.Report(pct(35))

	assert.Equal(t, []Progress{pct(30)}, rec.snapshot(), "ticks inside the window are deferred")

	// Deferred write fires at t=500ms with the latest value only.
	mock.Add(299 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
	mock.Add(1 * time.Millisecond)
	rec.waitFor(t, 1)

	assert.Equal(t, []Progress{pct(30), pct(35)}, rec.snapshot())
}

func TestReporter_ImmediateAfterWindow(t *testing.T) {
	mock := clock.NewMock()
	rec := newRecordingSink()
	r := NewReporter(rec.sink, WithClock(mock))
	defer r.Close()

	r.Report(pct(10))
	rec.waitFor(t, 1)
	mock.Add(600 * time.Millisecond)
	r.Report(pct(20))
	rec.waitFor(t, 1)

	assert.Equal(t, []Progress{pct(10), pct(20)}, rec.snapshot())
}

func TestReporter_DeferredWriteStartsNewWindow(t *testing.T) {
	mock := clock.NewMock()
	rec := newRecordingSink()
	r := NewReporter(rec.sink, WithClock(mock))
	defer r.Close()

	r.Report(pct(1))
	rec.waitFor(t, 1)
	mock.Add(100 * time.Millisecond)
	r.Report(pct(2))
	mock.Add(400 * time.Millisecond) // deferred write at t=500
	rec.waitFor(t, 1)

	// t=600 is only 100ms after the deferred write, so this tick waits until t=1000.
	mock.Add(100 * time.Millisecond)
	r.Report(pct(3))
	assert.Len(t, rec.snapshot(), 2)
	mock.Add(400 * time.Millisecond)
	rec.waitFor(t, 1)

	assert.Equal(t, []Progress{pct(1), pct(2), pct(3)}, rec.snapshot())
}

func TestReporter_CustomInterval(t *testing.T) {
	mock := clock.NewMock()
	rec := newRecordingSink()
	r := NewReporter(rec.sink, WithClock(mock), WithInterval(time.Second))
	defer r.Close()

	r.Report(pct(1))
	rec.waitFor(t, 1)
	mock.Add(600 * time.Millisecond)
	r.Report(pct(2))
	assert.Len(t, rec.snapshot(), 1)
	mock.Add(400 * time.Millisecond)
	rec.waitFor(t, 1)
	assert.Equal(t, []Progress{pct(1), pct(2)}, rec.snapshot())
}

func TestReporter_CloseFlushesPendingAndIgnoresLateReports(t *testing.T) {
	mock := clock.NewMock()
	rec := newRecordingSink()
	r := NewReporter(rec.sink, WithClock(mock))

	r.Report(pct(30))
	rec.waitFor(t, 1)
	mock.Add(100 * time.Millisecond)
	r.Report(pct(35))

	// Close drains the flusher, so the pending value is visible right away.
	r.Close()
	assert.Equal(t, []Progress{pct(30), pct(35)}, rec.snapshot())

	r.Report(pct(40))
	mock.Add(time.Second)
	r.Close()

	require.Equal(t, []Progress{pct(30), pct(35)}, rec.snapshot())
}

func TestReporter_StoppedTimerCallbackIsIgnored(t *testing.T) {
	mock := clock.NewMock()
	rec := newRecordingSink()
	r := NewReporter(rec.sink, WithClock(mock))
	defer r.Close()

	r.Report(pct(1))
	rec.waitFor(t, 1)
	mock.Add(100 * time.Millisecond)
	r.Report(pct(2))

	r.mu.Lock()
	stale := r.timerGen
	r.stopTimerLocked()
	r.mu.Unlock()

	mock.Add(50 * time.Millisecond)
	r.Report(pct(3))

	// The stopped timer's callback runs late, after a new deferred write was scheduled.
	r.fire(stale)

	r.mu.Lock()
	assert.NotNil(t, r.timer, "the newer timer must stay scheduled")
	require.NotNil(t, r.pending)
	assert.Equal(t, pct(3), *r.pending)
	r.mu.Unlock()
	assert.Equal(t, []Progress{pct(1)}, rec.snapshot())

	mock.Add(350 * time.Millisecond)
	rec.waitFor(t, 1)
	assert.Equal(t, []Progress{pct(1), pct(3)}, rec.snapshot())
}
