package symbolic

import "github.com/google/uuid"

// Binder assigns stable integer ids to distinct buffer handles for kernel
// argument slot allocation (spec §3 "Binder"). Assignee (written) and
// bound (read) slots are tracked separately so a buffer used as both
// input and output of the same kernel gets two distinct ids — repeated
// *reads* of the same buffer share one id, but a read/write pair never
// collapses into one argument.
//
// This always runs in "independent" mode: each Binder starts its
// numbering from zero and is scoped to one symbolic annotation pass. The
// source's alternate "sequential" policy (ids shared across an entire
// program's lifetime) is a documented open question in spec.md §9; we
// default to independent and do not implement the other variant, per
// that note.
type Binder struct {
	assignee map[uuid.UUID]int
	bound    map[uuid.UUID]int
	next     int
}

// NewBinder returns an empty, independent-mode Binder.
func NewBinder() *Binder {
	return &Binder{
		assignee: make(map[uuid.UUID]int),
		bound:    make(map[uuid.UUID]int),
	}
}

// Assignee returns the stable id for a buffer being written, allocating a
// fresh one on first use.
func (b *Binder) Assignee(buf uuid.UUID) int {
	if id, ok := b.assignee[buf]; ok {
		return id
	}
	id := b.next
	b.next++
	b.assignee[buf] = id
	return id
}

// Bound returns the stable id for a buffer being read, allocating a fresh
// one on first use.
func (b *Binder) Bound(buf uuid.UUID) int {
	if id, ok := b.bound[buf]; ok {
		return id
	}
	id := b.next
	b.next++
	b.bound[buf] = id
	return id
}

// HostScalar allocates a fresh id for a host-scalar kernel argument; host
// scalars never share slots since each occurrence of VALUE_SCALAR in the
// tree is materialized as its own argument.
func (b *Binder) HostScalar() int {
	id := b.next
	b.next++
	return id
}
