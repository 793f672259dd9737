package imagesync

import "strconv"

// Guard holds the dedupe and recursion state of one unit of work: one
// incoming save, one queued job or one bulk item. It is not safe for
// concurrent use; each goroutine handling work owns its own Guard.
type Guard struct {
	seen   map[string]struct{}
	locked bool
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{seen: make(map[string]struct{})}
}

// Acquire marks (postID, mappingID) as processed. It returns false if
// the pair was already marked since the last Reset.
func (g *Guard) Acquire(postID int64, mappingID string) bool {
	key := strconv.FormatInt(postID, 10) + ":" + mappingID
	if _, ok := g.seen[key]; ok {
		return false
	}

	g.seen[key] = struct{}{}

	return true
}

// Lock marks the start of the engine writing meta, so that save events
// raised by those writes are ignored.
func (g *Guard) Lock() { g.locked = true }

// Unlock clears the recursion lock.
func (g *Guard) Unlock() { g.locked = false }

// IsLocked reports whether the recursion lock is held.
func (g *Guard) IsLocked() bool { return g.locked }

// Reset clears processed pairs and the lock.
func (g *Guard) Reset() {
	clear(g.seen)
	g.locked = false
}
