package webhook

import (
	"sync"
	"time"
)

// Recorder receives delivery outcomes. DeliveryLog and FileDeliveryLog
// implement it.
type Recorder interface {
	Log(entry LogEntry)
}

// LogEntry is one recorded delivery attempt.
type LogEntry struct {
	ID           string        `json:"id"` // queue delivery id, same across retries
	URL          string        `json:"url"`
	Event        Event         `json:"event"`
	Payload      Payload       `json:"payload"`
	Success      bool          `json:"success"`
	StatusCode   int           `json:"statusCode,omitempty"`
	Err          string        `json:"error,omitempty"`
	ResponseTime time.Duration `json:"responseTime"`
	Attempt      int           `json:"attempt"` // 1-based attempt number
	Timestamp    time.Time     `json:"timestamp"`
}

// DeliveryLog is a fixed-capacity ring buffer of delivery outcomes. Readers
// get snapshots; they never observe concurrent mutation.
type DeliveryLog struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewDeliveryLog creates a log retaining the most recent maxEntries.
func NewDeliveryLog(maxEntries int) *DeliveryLog {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &DeliveryLog{entries: make([]LogEntry, maxEntries)}
}

// Log appends an entry, evicting the oldest once capacity is reached.
func (l *DeliveryLog) Log(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = entry
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// snapshot returns entries oldest-first. Caller must be holding no lock.
func (l *DeliveryLog) snapshot() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []LogEntry
	if l.full {
		out = append(out, l.entries[l.next:]...)
	}
	out = append(out, l.entries[:l.next]...)
	return out
}

// Recent returns up to limit entries, newest first.
func (l *DeliveryLog) Recent(limit int) []LogEntry {
	all := l.snapshot()
	reverse(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// ByURL returns up to limit entries for one URL, newest first.
func (l *DeliveryLog) ByURL(url string, limit int) []LogEntry {
	all := l.snapshot()
	reverse(all)

	var out []LogEntry
	for _, e := range all {
		if e.URL != url {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// SuccessRate returns the fraction of successful deliveries to url since
// the given time. A zero since considers all retained entries. Returns
// zero when no entries match.
func (l *DeliveryLog) SuccessRate(url string, since time.Time) float64 {
	total, success := 0, 0
	for _, e := range l.snapshot() {
		if e.URL != url || e.Timestamp.Before(since) {
			continue
		}
		total++
		if e.Success {
			success++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total)
}

// AverageResponseTime returns the mean response time for url since the
// given time, or zero when no entries match.
func (l *DeliveryLog) AverageResponseTime(url string, since time.Time) time.Duration {
	total := 0
	var sum time.Duration
	for _, e := range l.snapshot() {
		if e.URL != url || e.Timestamp.Before(since) {
			continue
		}
		total++
		sum += e.ResponseTime
	}
	if total == 0 {
		return 0
	}
	return sum / time.Duration(total)
}

// Clear drops all entries.
func (l *DeliveryLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]LogEntry, len(l.entries))
	l.next = 0
	l.full = false
}

// ClearBefore drops entries older than t.
func (l *DeliveryLog) ClearBefore(t time.Time) {
	kept := make([]LogEntry, 0)
	for _, e := range l.snapshot() {
		if !e.Timestamp.Before(t) {
			kept = append(kept, e)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	size := len(l.entries)
	l.entries = make([]LogEntry, size)
	l.next = 0
	l.full = false
	for _, e := range kept {
		l.entries[l.next] = e
		l.next = (l.next + 1) % size
		if l.next == 0 {
			l.full = true
		}
	}
}

func reverse(entries []LogEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
