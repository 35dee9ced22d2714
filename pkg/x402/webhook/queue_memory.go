package webhook

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process delivery queue ordered by NextAttemptAt.
// Deliveries do not survive process restarts; deployments that need
// durability use the Postgres backing.
type MemoryQueue struct {
	mu    sync.Mutex
	items deliveryHeap
	byID  map[string]*deliveryItem
	now   func() time.Time
}

type deliveryItem struct {
	delivery Delivery
	index    int // heap position, -1 when removed
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		byID: make(map[string]*deliveryItem),
		now:  time.Now,
	}
}

// Enqueue adds a delivery. A zero NextAttemptAt means ready now.
func (q *MemoryQueue) Enqueue(_ context.Context, d Delivery) error {
	if d.ID == "" {
		d.ID = NewDeliveryID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = q.now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	item := &deliveryItem{delivery: d}
	heap.Push(&q.items, item)
	q.byID[d.ID] = item
	return nil
}

// Dequeue pops up to limit ready deliveries in NextAttemptAt order.
func (q *MemoryQueue) Dequeue(_ context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var ready []Delivery
	for len(ready) < limit && q.items.Len() > 0 {
		next := q.items[0]
		if next.delivery.NextAttemptAt.After(now) {
			break
		}
		heap.Pop(&q.items)
		delete(q.byID, next.delivery.ID)
		ready = append(ready, next.delivery)
	}
	return ready, nil
}

// Retry reschedules a failed delivery per its subscription policy.
func (q *MemoryQueue) Retry(ctx context.Context, d Delivery, deliveryErr string) error {
	reschedule(&d, deliveryErr, q.now())
	return q.Enqueue(ctx, d)
}

// Remove drops a delivery by ID.
func (q *MemoryQueue) Remove(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[id]
	if !ok {
		return ErrQueueNotFound
	}
	heap.Remove(&q.items, item.index)
	delete(q.byID, id)
	return nil
}

// Size returns the number of queued deliveries, ready or not.
func (q *MemoryQueue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len(), nil
}

// Close is a no-op for the memory backing.
func (q *MemoryQueue) Close() error {
	return nil
}

// deliveryHeap orders items by NextAttemptAt, earliest first.
type deliveryHeap []*deliveryItem

func (h deliveryHeap) Len() int { return len(h) }

func (h deliveryHeap) Less(i, j int) bool {
	return h[i].delivery.NextAttemptAt.Before(h[j].delivery.NextAttemptAt)
}

func (h deliveryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deliveryHeap) Push(x any) {
	item := x.(*deliveryItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *deliveryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
