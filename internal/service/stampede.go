package service

import "sync"

// missTracker counts cache misses per key that are still waiting on the upstream.
// More than one at a time for the same key is a stampede.
type missTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newMissTracker() *missTracker {
	return &missTracker{active: make(map[string]int)}
}

// begin registers a miss for key and returns the number of misses now outstanding
// for it, including this one. Call done once the miss is resolved.
func (mt *missTracker) begin(key string) (outstanding int, done func()) {
	mt.mu.Lock()
	mt.active[key]++
	outstanding = mt.active[key]
	mt.mu.Unlock()

	var once sync.Once
	return outstanding, func() {
		once.Do(func() { mt.end(key) })
	}
}

func (mt *missTracker) end(key string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.active[key] <= 1 {
		delete(mt.active, key)
		return
	}
	mt.active[key]--
}

func (mt *missTracker) outstanding(key string) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.active[key]
}
