// Package simulate is an in-process implementation of the driver
// interfaces. It does not talk to any real accelerator: kernels are
// "launched" by recording the call (arguments, NDRange) so that dispatch
// and code-generation logic can be exercised and asserted against without
// hardware. Kernel *source* still has to be generated correctly by
// internal/codegen — simulate only stands in for compile/launch plumbing.
package simulate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/cpu"

	"isaac/internal/driver"
)

// NewDevice returns a single simulated device. Its DeviceInfo.Architecture
// is derived from the host's actual CPU feature set, giving the profile
// database a believable (if synthetic) device key to look up without ever
// touching real accelerator discovery.
func NewDevice(backend driver.Backend) driver.Device {
	return &device{
		id:      uuid.New(),
		backend: backend,
		info: driver.DeviceInfo{
			DeviceType:       "simulated",
			Vendor:           "isaac-sim",
			Architecture:     architectureName(),
			MaxWorkGroupSize: 1024,
			LocalMemSize:     48 * 1024,
			AddressBits:      64,
		},
	}
}

func architectureName() string {
	switch {
	case cpu.X86.HasAVX512F:
		return "x86_64-avx512"
	case cpu.X86.HasAVX2:
		return "x86_64-avx2"
	case cpu.ARM64.HasASIMD:
		return "arm64-asimd"
	default:
		return "generic"
	}
}

type device struct {
	id      uuid.UUID
	backend driver.Backend
	info    driver.DeviceInfo
}

func (d *device) ID() uuid.UUID          { return d.id }
func (d *device) Backend() driver.Backend { return d.backend }
func (d *device) Info() driver.DeviceInfo { return d.info }

func (d *device) NewContext() (driver.Context, error) {
	return &ctx{
		id:  uuid.New(),
		dev: d,
		ws:  &workspace{buf: &buffer{id: uuid.New(), refs: 1}},
	}, nil
}

type ctx struct {
	id  uuid.UUID
	dev *device
	ws  *workspace
}

func (c *ctx) ID() uuid.UUID         { return c.id }
func (c *ctx) Device() driver.Device { return c.dev }
func (c *ctx) Workspace() driver.Workspace { return c.ws }

func (c *ctx) NewQueue() (driver.CommandQueue, error) {
	return &queue{id: uuid.New(), ctx: c}, nil
}

func (c *ctx) Alloc(bytes int64) (driver.Buffer, error) {
	return &buffer{id: uuid.New(), size: bytes, refs: 1}, nil
}

type workspace struct {
	mu   sync.Mutex
	buf  *buffer
	size int64
}

func (w *workspace) Buffer() driver.Buffer { return w.buf }

func (w *workspace) Reserve(bytes int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if bytes > w.size {
		w.buf.size = bytes
		w.size = bytes
	}
	return nil
}

func (w *workspace) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

type buffer struct {
	id   uuid.UUID
	size int64
	mu   sync.Mutex
	refs int
}

func (b *buffer) ID() uuid.UUID { return b.id }
func (b *buffer) Size() int64   { return b.size }

func (b *buffer) Retain() {
	b.mu.Lock()
	b.refs++
	b.mu.Unlock()
}

func (b *buffer) Release() {
	b.mu.Lock()
	b.refs--
	b.mu.Unlock()
}

// Launch is one recorded kernel enqueue, kept for assertions in tests
// that exercise the dispatcher end-to-end against the simulator.
type Launch struct {
	Kernel string
	Range  driver.NDRange
	At     time.Time
}

type queue struct {
	mu      sync.Mutex
	id      uuid.UUID
	ctx     *ctx
	history []Launch
}

func (q *queue) ID() uuid.UUID             { return q.id }
func (q *queue) Context() driver.Context   { return q.ctx }
func (q *queue) Backend() driver.Backend   { return q.ctx.dev.backend }

func (q *queue) Enqueue(_ context.Context, k driver.Kernel, rng driver.NDRange, deps []driver.Event) (driver.Event, error) {
	for _, d := range deps {
		if err := d.Wait(); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	q.mu.Lock()
	q.history = append(q.history, Launch{Kernel: k.Name(), Range: rng, At: start})
	q.mu.Unlock()
	return &event{start: start, done: time.Now()}, nil
}

func (q *queue) Synchronize() error { return nil }

// Compile "compiles" source by recording the kernel names declared for
// it; real compilation is the responsibility of the concrete backend this
// package stands in for (see the package Compile function).
func (q *queue) Compile(source string, kernelNames []string) (driver.Program, error) {
	return Compile(kernelNames...), nil
}

// History returns every kernel launch recorded on this queue, in
// enqueue order; used by tests asserting the scheduler/dispatcher
// produced the expected kernel sequence for a given tree.
func (q *queue) History() []Launch {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Launch, len(q.history))
	copy(out, q.history)
	return out
}

type event struct {
	start, done time.Time
}

func (e *event) Wait() error { return nil }

func (e *event) ElapsedNanos() (int64, error) {
	return e.done.Sub(e.start).Nanoseconds(), nil
}

// Program is a simulated compiled unit: it never actually compiles C
// source, it just exposes the kernel names the caller asked for so the
// rest of the pipeline (argument binding order, enqueue shape) can be
// exercised against it.
type Program struct {
	id      uuid.UUID
	kernels map[string]*Kernel
}

// Compile "compiles" source by recording the kernel names declared for
// it; real compilation is the responsibility of the concrete backend this
// package stands in for.
func Compile(names ...string) *Program {
	p := &Program{id: uuid.New(), kernels: make(map[string]*Kernel, len(names))}
	for _, n := range names {
		p.kernels[n] = &Kernel{name: n, args: make(map[int]any)}
	}
	return p
}

func (p *Program) ID() uuid.UUID { return p.id }

func (p *Program) Kernel(name string) (driver.Kernel, error) {
	k, ok := p.kernels[name]
	if !ok {
		return nil, errNoSuchKernel(name)
	}
	return k, nil
}

type Kernel struct {
	name string
	mu   sync.Mutex
	args map[int]any
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) SetArg(index int, size int, ptr []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	buf := make([]byte, size)
	copy(buf, ptr)
	k.args[index] = buf
	return nil
}

func (k *Kernel) SetBufferArg(index int, buf driver.Buffer) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.args[index] = buf
	return nil
}

func (k *Kernel) SetSizeArg(index int, n int64) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.args[index] = n
	return nil
}

// Args snapshots the arguments bound so far, for tests asserting the
// enqueue argument order from spec §4.3.
func (k *Kernel) Args() map[int]any {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[int]any, len(k.args))
	for i, v := range k.args {
		out[i] = v
	}
	return out
}

type errNoSuchKernel string

func (e errNoSuchKernel) Error() string { return "simulate: no such kernel: " + string(e) }
