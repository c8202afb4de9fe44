// Package handle implements the host-side handle table backing struct
// instances. Struct values never cross the boundary directly: the module
// keeps the data, the host keeps an opaque handle, and calls pass the
// module-side representation looked up here.
//
// Handles are 1-based; 0 is never valid. An id is recycled only after its
// entry is freed with no outstanding borrows, so no id ever refers to two
// distinct live objects at once. Freed entries stay poisoned until
// recycled: every operation on them fails with a use_after_free error,
// idempotently.
package handle

import (
	"sync"

	"github.com/wasmbind/wasmbind/errors"
)

// Handle identifies one live table entry.
type Handle uint32

// Entry is the data registered for a handle.
type Entry struct {
	// StructID is the declared id of the instance's struct.
	StructID uint32

	// Rep is the module-side representation passed to methods and to the
	// struct's drop export.
	Rep uint32
}

type slot struct {
	entry Entry

	// refs counts references: 1 for the owning wrapper plus 1 per
	// outstanding borrow. 0 only once freed.
	refs uint32

	freed bool
}

// Table maps handles to module-side representations with borrow tracking.
// Safe for concurrent use; every mutation is atomic under the lock so
// reentrant nested calls never observe partial state.
type Table struct {
	mu    sync.RWMutex
	slots []slot
	free  []Handle
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		slots: make([]slot, 0, 16),
	}
}

// Register stores a new instance and returns its handle. The entry starts
// with the owner's reference; it stays live until Free.
func (t *Table) Register(structID, rep uint32) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := slot{
		entry: Entry{StructID: structID, Rep: rep},
		refs:  1,
	}

	if n := len(t.free); n > 0 {
		h := t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[h-1] = s
		return h
	}

	t.slots = append(t.slots, s)
	return Handle(len(t.slots))
}

// Get returns the entry for a live handle.
func (t *Table) Get(h Handle) (Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, err := t.lookup(h)
	if err != nil {
		return Entry{}, err
	}
	return s.entry, nil
}

// Borrow pins the entry for the duration of a call frame and returns it.
// Every successful Borrow must be paired with Release.
func (t *Table) Borrow(h Handle) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(h)
	if err != nil {
		return Entry{}, err
	}
	s.refs++
	return s.entry, nil
}

// Release drops one borrow.
func (t *Table) Release(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	if s.refs <= 1 {
		return errors.InvalidArgument(errors.PhaseRuntime,
			"handle %d has no outstanding borrows", h)
	}
	s.refs--
	return nil
}

// Free releases the owner's reference and poisons the entry. It refuses
// while borrows are outstanding; the id returns to the free list only
// once the reference count reaches zero. Freeing twice fails with
// use_after_free like any other operation on a freed handle.
func (t *Table) Free(h Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	if s.refs > 1 {
		return errors.InvalidArgument(errors.PhaseRuntime,
			"cannot free handle %d: %d outstanding borrows", h, s.refs-1)
	}

	s.refs = 0
	s.freed = true
	s.entry = Entry{}
	t.free = append(t.free, h)
	return nil
}

// Live returns the number of live entries.
func (t *Table) Live() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for i := range t.slots {
		if !t.slots[i].freed && t.slots[i].refs > 0 {
			n++
		}
	}
	return n
}

// Each calls fn for every live entry until fn returns false. The lock is
// held for the duration; fn must not call back into the table.
func (t *Table) Each(fn func(Handle, Entry) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.slots {
		if t.slots[i].freed || t.slots[i].refs == 0 {
			continue
		}
		if !fn(Handle(i+1), t.slots[i].entry) {
			break
		}
	}
}

// lookup resolves a handle to its live slot. The caller holds the lock.
func (t *Table) lookup(h Handle) (*slot, error) {
	if h == 0 || int(h) > len(t.slots) {
		return nil, errors.UseAfterFree(uint32(h))
	}
	s := &t.slots[h-1]
	if s.freed || s.refs == 0 {
		return nil, errors.UseAfterFree(uint32(h))
	}
	return s, nil
}
