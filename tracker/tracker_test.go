package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLog = slog.New(slog.NewTextHandler(io.Discard, nil))

type webhookRecorder struct {
	mu     sync.Mutex
	events []ScanEvent
}

func (w *webhookRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var evt ScanEvent
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&evt))
		w.mu.Lock()
		w.events = append(w.events, evt)
		w.mu.Unlock()
		rw.WriteHeader(http.StatusNoContent)
	}
}

func (w *webhookRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func TestNotifierNoURLIsNoop(t *testing.T) {
	n := NewNotifier("", nil, discardLog)
	assert.NoError(t, n.Notify(context.Background(), &ScanEvent{ScanID: 1}))
}

func TestNotifierDeliversAndDedups(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil, discardLog)
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	evt := &ScanEvent{ScanID: 1, IP: "10.0.0.1", UserAgent: "phone", Timestamp: now.Unix()}
	require.NoError(t, n.Notify(context.Background(), evt))
	require.NoError(t, n.Notify(context.Background(), &ScanEvent{ScanID: 2, IP: "10.0.0.1", UserAgent: "phone"}))
	assert.Equal(t, 1, rec.count())

	// A different client is not a repeat.
	require.NoError(t, n.Notify(context.Background(), &ScanEvent{ScanID: 3, IP: "10.0.0.2", UserAgent: "phone"}))
	assert.Equal(t, 2, rec.count())

	// After the TTL the first client is forwarded again.
	now = now.Add(seenTTL + time.Second)
	require.NoError(t, n.Notify(context.Background(), &ScanEvent{ScanID: 4, IP: "10.0.0.1", UserAgent: "phone"}))
	assert.Equal(t, 3, rec.count())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, int64(1), rec.events[0].ScanID)
	assert.Equal(t, "10.0.0.1", rec.events[0].IP)
}

func TestNotifierIgnoresAgents(t *testing.T) {
	rec := &webhookRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := NewNotifier(srv.URL, []string{"Googlebot"}, discardLog)
	require.NoError(t, n.Notify(context.Background(), &ScanEvent{ScanID: 1, IP: "1.2.3.4", UserAgent: "Mozilla/5.0 (compatible; googlebot/2.1)"}))
	assert.Equal(t, 0, rec.count())
}

func TestNotifierDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	n := NewNotifier(url, nil, discardLog)
	assert.Error(t, n.Notify(context.Background(), &ScanEvent{ScanID: 1, IP: "1.2.3.4"}))

	// A repeat from the same client is attempted again rather than
	// swallowed by dedup.
	assert.Error(t, n.Notify(context.Background(), &ScanEvent{ScanID: 2, IP: "1.2.3.4"}))
}

type fakePruner struct {
	calls    atomic.Int32
	failures int32
	done     chan struct{}
	want     int32
}

func (f *fakePruner) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n := f.calls.Add(1)
	if n == f.want {
		close(f.done)
	}
	if n <= f.failures {
		return 0, errors.New("database is locked")
	}
	return 1, nil
}

func TestPruneLoopRetriesAndStops(t *testing.T) {
	p := &fakePruner{failures: 2, want: 4, done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- RunPruneLoop(ctx, p, 5*time.Millisecond, time.Hour, discardLog)
	}()

	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		t.Fatal("prune loop did not keep running after failures")
	}

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("prune loop did not stop")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := map[string]struct {
		failures int
		interval time.Duration
		want     time.Duration
	}{
		"first failure":           {failures: 1, interval: time.Hour, want: time.Second},
		"second failure":          {failures: 2, interval: time.Hour, want: 2 * time.Second},
		"fifth failure":           {failures: 5, interval: time.Hour, want: 16 * time.Second},
		"capped":                  {failures: 10, interval: time.Hour, want: maxBackoff},
		"many failures":           {failures: 1000, interval: time.Hour, want: maxBackoff},
		"short interval seeds":    {failures: 1, interval: 5 * time.Millisecond, want: 5 * time.Millisecond},
		"short interval doubling": {failures: 3, interval: 5 * time.Millisecond, want: 20 * time.Millisecond},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, retryDelay(tc.failures, tc.interval))
		})
	}
}
