package cache

import (
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"isaac/internal/driver"
)

// CompileFunc builds the program for a cache miss: generating every
// candidate template's source under its own numeric suffix, concatenating,
// and compiling once (spec §4.5 "Insertion compiles the concatenated
// source of all candidate templates ... under suffixes '0', '1', ...").
type CompileFunc func() (driver.Program, error)

// ProgramCache is the per-queue program cache of spec §4.5. Caching keys
// on (queue id, structural hash); a Context's queues never share
// compiled programs even when their hashes collide, since a Program is
// scoped to the context that compiled it.
type ProgramCache struct {
	mu       sync.RWMutex
	programs map[string]driver.Program
	group    singleflight.Group
}

// New returns an empty ProgramCache.
func New() *ProgramCache {
	return &ProgramCache{programs: make(map[string]driver.Program)}
}

// FoldKey folds a structural hash string down to a 128-bit blake2b digest,
// hex-encoded. Hash strings are already collision-resistant on their own;
// folding keeps the map's keys a fixed, short size regardless of how large
// a tree's hash text grows.
func FoldKey(hash string) string {
	sum := blake2b.Sum512([]byte(hash))
	return hex.EncodeToString(sum[:16])
}

func key(queue driver.CommandQueue, hash string) string {
	return queue.ID().String() + "|" + FoldKey(hash)
}

// GetOrCompile returns the cached program for (queue, hash), calling
// compile at most once even when multiple goroutines race on the same
// miss (golang.org/x/sync/singleflight collapses the duplicate work).
func (c *ProgramCache) GetOrCompile(queue driver.CommandQueue, hash string, compile CompileFunc) (driver.Program, error) {
	k := key(queue, hash)

	c.mu.RLock()
	if p, ok := c.programs[k]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(k, func() (interface{}, error) {
		c.mu.RLock()
		if p, ok := c.programs[k]; ok {
			c.mu.RUnlock()
			return p, nil
		}
		c.mu.RUnlock()

		program, err := compile()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.programs[k] = program
		c.mu.Unlock()
		return program, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(driver.Program), nil
}

// Len reports how many programs are currently cached, across all queues.
func (c *ProgramCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// Evict drops queue's cached programs, used when a queue's context is
// torn down and its compiled programs can no longer be launched.
func (c *ProgramCache) Evict(queue driver.CommandQueue) {
	prefix := queue.ID().String() + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.programs {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.programs, k)
		}
	}
}
