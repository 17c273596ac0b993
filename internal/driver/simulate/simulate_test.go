package simulate_test

import (
	"context"
	"testing"

	"isaac/internal/driver"
	"isaac/internal/driver/simulate"
)

func TestNewDeviceInfo(t *testing.T) {
	dev := simulate.NewDevice(driver.CUDALike)
	info := dev.Info()
	if info.DeviceType != "simulated" || info.Vendor != "isaac-sim" {
		t.Errorf("Info() = %+v, want simulated/isaac-sim", info)
	}
	if dev.Backend() != driver.CUDALike {
		t.Errorf("Backend() = %v, want CUDALike", dev.Backend())
	}
}

func TestCompileExposesDeclaredKernels(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, err := dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}

	program, err := q.Compile("// source", []string{"foo", "bar"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := program.Kernel("foo"); err != nil {
		t.Errorf("Kernel(foo): %v", err)
	}
	if _, err := program.Kernel("missing"); err == nil {
		t.Error("Kernel(missing) should error")
	}
}

func TestEnqueueRecordsHistoryInOrder(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, err := dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	program, err := q.Compile("", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ka, _ := program.Kernel("a")
	kb, _ := program.Kernel("b")

	rng := driver.NDRange1D(4, 2)
	if _, err := q.Enqueue(context.Background(), ka, rng, nil); err != nil {
		t.Fatalf("Enqueue a: %v", err)
	}
	if _, err := q.Enqueue(context.Background(), kb, rng, nil); err != nil {
		t.Fatalf("Enqueue b: %v", err)
	}

	h, ok := q.(interface{ History() []simulate.Launch })
	if !ok {
		t.Fatal("queue does not expose History")
	}
	history := h.History()
	if len(history) != 2 || history[0].Kernel != "a" || history[1].Kernel != "b" {
		t.Fatalf("History() = %+v, want [a b] in order", history)
	}
}

func TestWorkspaceReserveGrowsOnly(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, err := dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	ws := ctx.Workspace()
	if err := ws.Reserve(1024); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if ws.Size() != 1024 {
		t.Fatalf("Size() = %d, want 1024", ws.Size())
	}
	if err := ws.Reserve(256); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if ws.Size() != 1024 {
		t.Fatalf("Size() = %d after a smaller Reserve, want unchanged 1024", ws.Size())
	}
}

func TestKernelArgBindingRoundTrips(t *testing.T) {
	dev := simulate.NewDevice(driver.OpenCLLike)
	ctx, err := dev.NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	q, err := ctx.NewQueue()
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	program, err := q.Compile("", []string{"k"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	kernel, err := program.Kernel("k")
	if err != nil {
		t.Fatalf("Kernel: %v", err)
	}
	if err := kernel.SetSizeArg(0, 42); err != nil {
		t.Fatalf("SetSizeArg: %v", err)
	}
	buf, err := ctx.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := kernel.SetBufferArg(1, buf); err != nil {
		t.Fatalf("SetBufferArg: %v", err)
	}

	sk := kernel.(*simulate.Kernel)
	args := sk.Args()
	if args[0] != int64(42) {
		t.Errorf("args[0] = %v, want int64(42)", args[0])
	}
	if args[1] != driver.Buffer(buf) {
		t.Errorf("args[1] = %v, want the bound buffer", args[1])
	}
}
