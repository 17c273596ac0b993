package cache

import (
	"sync"
	"testing"

	"isaac/internal/driver"
	"isaac/internal/driver/simulate"
)

func TestGetOrCompileCachesByQueueAndHash(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, _ := dev.NewContext()
	queue, _ := ctx.NewQueue()

	c := New()
	calls := 0
	compile := func() (driver.Program, error) {
		calls++
		return simulate.Compile("k0"), nil
	}

	p1, err := c.GetOrCompile(queue, "hash-a", compile)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	p2, err := c.GetOrCompile(queue, "hash-a", compile)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if p1 != p2 {
		t.Error("second GetOrCompile with the same hash returned a different program")
	}
	if calls != 1 {
		t.Errorf("compile called %d times, want 1", calls)
	}
}

func TestGetOrCompileDistinctHashesDontShare(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, _ := dev.NewContext()
	queue, _ := ctx.NewQueue()

	c := New()
	p1, _ := c.GetOrCompile(queue, "a", func() (driver.Program, error) { return simulate.Compile("k0"), nil })
	p2, _ := c.GetOrCompile(queue, "b", func() (driver.Program, error) { return simulate.Compile("k0"), nil })
	if p1 == p2 {
		t.Error("distinct hashes shared one compiled program")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestGetOrCompileConcurrentMissesCollapseToOneCompile(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, _ := dev.NewContext()
	queue, _ := ctx.NewQueue()

	c := New()
	var calls int
	var mu sync.Mutex
	compile := func() (driver.Program, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return simulate.Compile("k0"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetOrCompile(queue, "shared", compile); err != nil {
				t.Errorf("GetOrCompile: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("compile called %d times under concurrent misses, want 1", calls)
	}
}

func TestEvictDropsOnlyThatQueue(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, _ := dev.NewContext()
	q1, _ := ctx.NewQueue()
	q2, _ := ctx.NewQueue()

	c := New()
	compile := func() (driver.Program, error) { return simulate.Compile("k0"), nil }
	c.GetOrCompile(q1, "h", compile)
	c.GetOrCompile(q2, "h", compile)
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}

	c.Evict(q1)
	if c.Len() != 1 {
		t.Errorf("Len() after Evict(q1) = %d, want 1", c.Len())
	}
}
