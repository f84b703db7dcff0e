package sqs

import "sync"

// An AttemptCounter counts failed deliveries per order inside this process only.
// Other instances keep their own counts, so the numbers are diagnostic.
type AttemptCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewAttemptCounter() *AttemptCounter {
	return &AttemptCounter{counts: make(map[string]int)}
}

// Increment adds one attempt for orderID and returns the new count
func (a *AttemptCounter) Increment(orderID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counts[orderID]++
	return a.counts[orderID]
}

func (a *AttemptCounter) Get(orderID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.counts[orderID]
}

// Snapshot returns a copy of all counts
func (a *AttemptCounter) Snapshot() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}
