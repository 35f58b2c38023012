package fetch

import "sync"

// group coalesces concurrent calls sharing the same key into a single
// execution, so a burst of requests for the same symbol performs the
// upstream work once (§4.6: "implementers SHOULD coalesce in-flight
// requests by key"). This is a small hand-rolled equivalent of
// golang.org/x/sync/singleflight, kept in-tree to avoid a dependency for
// forty lines of logic that never needs anything beyond Do.
type group struct {
	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	wg  sync.WaitGroup
	val fetchResult
}

func newGroup() *group { return &group{calls: make(map[string]*call)} }

func (g *group) Do(key string, fn func() fetchResult) fetchResult {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		return c.val
	}
	c := &call{}
	c.wg.Add(1)
	g.calls[key] = c
	g.mu.Unlock()

	c.val = fn()
	c.wg.Done()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()

	return c.val
}
