package pipeline

import "sync"

// turnClock hands out turn stamps and remembers the newest turn that was
// interrupted. Frames stamped at or before the discarded mark are stale:
// they belong to output the caller talked over and must not be spoken or
// delivered. One clock is shared by every stage of a session.
type turnClock struct {
	mu        sync.Mutex
	current   uint64
	discarded uint64
}

func (c *turnClock) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current++
	return c.current
}

// discard marks every turn begun so far as stale.
func (c *turnClock) discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discarded = c.current
}

func (c *turnClock) stale(turn uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return turn <= c.discarded
}
