package webhook

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileDeliveryLog appends delivery outcomes to an NDJSON file, one JSON
// object per line. Writes are batched at a flush interval; entries that
// fail to write go back to the head of the pending queue for the next
// flush. Close drains the queue.
type FileDeliveryLog struct {
	path     string
	interval time.Duration

	mu      sync.Mutex
	pending []LogEntry

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewFileDeliveryLog starts the background flusher.
func NewFileDeliveryLog(path string, flushInterval time.Duration) *FileDeliveryLog {
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	l := &FileDeliveryLog{
		path:     path,
		interval: flushInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Log queues an entry for the next flush.
func (l *FileDeliveryLog) Log(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	l.mu.Lock()
	l.pending = append(l.pending, entry)
	l.mu.Unlock()
}

// Close stops the flusher and drains any pending entries.
func (l *FileDeliveryLog) Close() error {
	l.once.Do(func() { close(l.stop) })
	<-l.done
	return l.flush()
}

func (l *FileDeliveryLog) run() {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.flush()
		}
	}
}

// flush writes all pending entries. On failure the unwritten batch is put
// back at the head so later entries keep their order.
func (l *FileDeliveryLog) flush() error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := l.writeBatch(batch)
	if err != nil {
		l.mu.Lock()
		l.pending = append(batch, l.pending...)
		l.mu.Unlock()
	}
	return err
}

func (l *FileDeliveryLog) writeBatch(batch []LogEntry) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open delivery log: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, entry := range batch {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("write delivery log entry: %w", err)
		}
	}
	return nil
}
