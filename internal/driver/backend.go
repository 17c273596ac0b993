// Package driver defines the collaborator interfaces the core (expression
// tree, scheduler, codegen templates, dispatcher) relies on to create
// device handles, compile and launch kernels, and manage buffers. Actual
// device/context/queue/buffer/kernel *creation* is out of scope for this
// engine (spec §1) — concrete construction belongs to the backend that
// owns the real OpenCL-like or CUDA-like dispatch table. This package
// only fixes the contract; internal/driver/simulate provides a
// self-contained in-process implementation so the rest of the engine is
// runnable and testable without real hardware.
package driver

import (
	"context"

	"github.com/google/uuid"
)

// Backend names the two device dispatch APIs the engine can target. All
// template-generated source is written in a common C dialect and
// keyword-substituted per Backend at code-generation time (spec §4.3).
type Backend uint8

const (
	OpenCLLike Backend = iota
	CUDALike
)

func (b Backend) String() string {
	switch b {
	case OpenCLLike:
		return "opencl-like"
	case CUDALike:
		return "cuda-like"
	default:
		return "unknown-backend"
	}
}

// DeviceInfo is the fingerprint used as the profile database's device key
// (spec §6 "Profile database format") and as the universal limits checked
// by every template's IsInvalid.
type DeviceInfo struct {
	DeviceType       string // "gpu", "cpu", "accelerator"
	Vendor           string
	Architecture     string
	MaxWorkGroupSize int
	LocalMemSize     int // bytes
	AddressBits      int
}

// Device is a handle to one accelerator reachable through a Backend.
type Device interface {
	ID() uuid.UUID
	Backend() Backend
	Info() DeviceInfo
	NewContext() (Context, error)
}

// Context owns buffers, a growable per-context Workspace scratch buffer
// (spec §4.2 materialization, §4.3.3-5 workspace), and is the unit of
// external serialization: "concurrent operations on the same context
// must serialize externally" (spec §5).
type Context interface {
	ID() uuid.UUID
	Device() Device
	NewQueue() (CommandQueue, error)
	Alloc(bytes int64) (Buffer, error)
	Workspace() Workspace
}

// Workspace is the single growable scratch buffer a context lends to
// reductions and depth-split matrix products. Resizing is the
// dispatcher's responsibility, issued before enqueue (spec §4.3.3-5).
type Workspace interface {
	Buffer() Buffer
	Reserve(bytes int64) error
	Size() int64
}

// CommandQueue is the ordered submission channel for one context. All
// temporary materializations for one top-level Execute call are enqueued
// on the same queue, so intra-operation ordering needs no explicit
// barriers between kernels (spec §5).
type CommandQueue interface {
	ID() uuid.UUID
	Context() Context
	Backend() Backend
	// Enqueue submits one kernel launch over the given NDRange, optionally
	// waiting on deps and always returning the completion Event.
	Enqueue(ctx context.Context, k Kernel, rng NDRange, deps []Event) (Event, error)
	Synchronize() error
	// Compile builds a Program from the concatenated source of every
	// candidate template for one dispatch entry (spec §4.5: "Insertion
	// compiles the concatenated source of all candidate templates ...
	// under suffixes '0', '1', ..."). kernelNames lists every entry point
	// the source declares, in emission order, so a backend that cannot
	// parse its own C dialect back out of the source text still knows
	// what to expose.
	Compile(source string, kernelNames []string) (Program, error)
}

// Buffer is a reference-counted device memory allocation. Sub-views
// share the underlying allocation; release happens when the last
// reference (held by a caller's array or a scheduler-allocated temporary)
// drops (spec §3 "Array handle").
type Buffer interface {
	ID() uuid.UUID
	Size() int64
	Retain()
	Release()
}

// Program is one compiled translation unit, generally the concatenated
// source of every candidate template for a dispatch entry, each under
// its own numeric suffix (spec §4.5).
type Program interface {
	ID() uuid.UUID
	Kernel(name string) (Kernel, error)
}

// Kernel is one entry point inside a compiled Program. Arguments are set
// by index in the fixed order spec §4.3 "Common enqueue argument order"
// describes.
type Kernel interface {
	Name() string
	SetArg(index int, size int, ptr []byte) error
	SetBufferArg(index int, buf Buffer) error
	SetSizeArg(index int, n int64) error
}

// Event marks the completion of one enqueued kernel; ElapsedNanos is only
// meaningful when the event was produced with timing enabled (tuning
// mode, spec §4.4 step 3).
type Event interface {
	Wait() error
	ElapsedNanos() (int64, error)
}

// NDRange is the global/local work-item layout for one kernel launch.
type NDRange struct {
	Global [3]int64
	Local  [3]int64
}

// NDRange1D/2D/3D are convenience constructors used by the templates.
func NDRange1D(global, local int64) NDRange {
	return NDRange{Global: [3]int64{global, 1, 1}, Local: [3]int64{local, 1, 1}}
}

func NDRange2D(g0, g1, l0, l1 int64) NDRange {
	return NDRange{Global: [3]int64{g0, g1, 1}, Local: [3]int64{l0, l1, 1}}
}

func NDRange3D(g0, g1, g2, l0, l1, l2 int64) NDRange {
	return NDRange{Global: [3]int64{g0, g1, g2}, Local: [3]int64{l0, l1, l2}}
}
