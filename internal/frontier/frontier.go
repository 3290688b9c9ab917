// Package frontier holds the crawl queue and the visited set.
//
// Every address the crawl has seen lives in exactly one of two sets: unvisited
// (queued, not yet started) or visited (in flight or done). An address never
// moves back from visited to unvisited, and neither set shrinks except by
// TakeNext moving an address across. All methods are safe for concurrent use.
package frontier

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Frontier is a FIFO crawl queue with global deduplication.
type Frontier struct {
	mu        sync.Mutex
	seeded    bool
	queue     []string
	unvisited mapset.Set[string]
	visited   mapset.Set[string]
}

// New returns an empty Frontier.
func New() *Frontier {
	// The sets are only touched under mu.
	return &Frontier{
		unvisited: mapset.NewThreadUnsafeSet[string](),
		visited:   mapset.NewThreadUnsafeSet[string](),
	}
}

// Seed queues the starting address. Only the first call has any effect.
func (f *Frontier) Seed(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seeded {
		return
	}
	f.seeded = true
	f.enqueueLocked(address)
}

// TakeNext removes the oldest queued address and marks it visited in the same
// critical section, so an address is never outside both sets while in flight.
// It returns false when nothing is queued.
func (f *Frontier) TakeNext() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queue) > 0 {
		address := f.queue[0]
		f.queue[0] = ""
		f.queue = f.queue[1:]
		// MarkVisited may already have pulled this entry out of unvisited.
		if !f.unvisited.Contains(address) {
			continue
		}
		f.unvisited.Remove(address)
		f.visited.Add(address)
		return address, true
	}
	return "", false
}

// MarkVisited moves address into the visited set. It is idempotent.
func (f *Frontier) MarkVisited(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unvisited.Remove(address)
	f.visited.Add(address)
}

// Offer queues address unless it is already visited or queued. It reports
// whether the address was added.
func (f *Frontier) Offer(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visited.Contains(address) || f.unvisited.Contains(address) {
		return false
	}
	f.enqueueLocked(address)
	return true
}

// Seen reports whether address is visited or queued.
func (f *Frontier) Seen(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Contains(address) || f.unvisited.Contains(address)
}

// Len returns the number of queued addresses.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unvisited.Cardinality()
}

// VisitedLen returns the number of visited addresses.
func (f *Frontier) VisitedLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Cardinality()
}

// Snapshot is a point-in-time copy of both sets.
type Snapshot struct {
	Visited   []string
	Unvisited []string
}

// Snapshot copies both sets. Unvisited is returned in queue order.
func (f *Frontier) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	unvisited := make([]string, 0, f.unvisited.Cardinality())
	for _, address := range f.queue {
		if f.unvisited.Contains(address) {
			unvisited = append(unvisited, address)
		}
	}
	return Snapshot{
		Visited:   f.visited.ToSlice(),
		Unvisited: unvisited,
	}
}

func (f *Frontier) enqueueLocked(address string) {
	if f.visited.Contains(address) || f.unvisited.Contains(address) {
		return
	}
	f.unvisited.Add(address)
	f.queue = append(f.queue, address)
}
