// Package tracker reacts to recorded scans: it forwards them to a webhook
// and prunes old ones from the store.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ScanEvent is the JSON body sent to the configured webhook URL for each
// recorded scan.
type ScanEvent struct {
	ScanID    int64  `json:"scan_id"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier delivers scan events to an external HTTP endpoint with
// deduplication and user agent filtering.
type Notifier struct {
	url          string
	ignoreAgents []string
	seen         map[string]time.Time // ip|user agent -> first seen time (dedup)
	mu           sync.Mutex
	client       *http.Client
	log          *slog.Logger
	now          func() time.Time
}

// seenTTL is how long repeat scans from the same client stay silent.
const seenTTL = 5 * time.Minute

// NewNotifier creates a Notifier ready to POST events to url. If url is
// empty the notifier is a no-op. Scans whose user agent contains any of
// ignoreAgents (case-insensitive) are not forwarded.
func NewNotifier(url string, ignoreAgents []string, log *slog.Logger) *Notifier {
	lowered := make([]string, 0, len(ignoreAgents))
	for _, a := range ignoreAgents {
		lowered = append(lowered, strings.ToLower(a))
	}
	return &Notifier{
		url:          url,
		ignoreAgents: lowered,
		seen:         make(map[string]time.Time),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
		now: time.Now,
	}
}

// Notify delivers an event to the configured endpoint. It silently returns
// nil when no webhook URL is configured, when the same client was notified
// within seenTTL, or when the user agent is ignored.
func (n *Notifier) Notify(ctx context.Context, evt *ScanEvent) error {
	if n.url == "" {
		return nil
	}

	agent := strings.ToLower(evt.UserAgent)
	for _, ignored := range n.ignoreAgents {
		if strings.Contains(agent, ignored) {
			n.log.Debug("webhook skipping ignored user agent", "user_agent", evt.UserAgent, "scan_id", evt.ScanID)
			return nil
		}
	}

	key := evt.IP + "|" + evt.UserAgent
	n.mu.Lock()
	n.cleanupSeenLocked()
	if _, ok := n.seen[key]; ok {
		n.mu.Unlock()
		n.log.Debug("webhook skipping repeat scan", "ip", evt.IP, "scan_id", evt.ScanID)
		return nil
	}
	n.seen[key] = n.now()
	n.mu.Unlock()

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("webhook marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// Undelivered scans must not count as seen.
		n.mu.Lock()
		delete(n.seen, key)
		n.mu.Unlock()
		n.log.Error("webhook delivery failed", "error", err, "scan_id", evt.ScanID)
		return fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		n.log.Info("webhook delivered", "status", resp.StatusCode, "scan_id", evt.ScanID)
	} else {
		n.log.Warn("webhook non-2xx response", "status", resp.StatusCode, "scan_id", evt.ScanID)
	}
	return nil
}

// cleanupSeenLocked removes stale entries from the seen map. The caller MUST
// hold n.mu.
func (n *Notifier) cleanupSeenLocked() {
	cutoff := n.now().Add(-seenTTL)
	for key, t := range n.seen {
		if t.Before(cutoff) {
			delete(n.seen, key)
		}
	}
}
