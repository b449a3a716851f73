package resource

import (
	"errors"
	"sort"
	"sync"
)

var ErrClosed = errors.New("resource table closed")

// LocalBackend is the in-memory slot storage behind a Table.
type LocalBackend struct {
	entries  []entry
	freeList []Slot
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value  any
	typeID TypeID
	seq    uint64
	valid  bool
}

// released is an entry taken out of the backend by Close.
type released struct {
	value  any
	slot   Slot
	typeID TypeID
	seq    uint64
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 16),
		freeList: make([]Slot, 0, 4),
	}
}

// Create stores a value and returns its slot.
func (b *LocalBackend) Create(typeID TypeID, value any, seq uint64) (Slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry{
		typeID: typeID,
		value:  value,
		seq:    seq,
		valid:  true,
	}

	if len(b.freeList) > 0 {
		slot := b.freeList[len(b.freeList)-1]
		b.freeList = b.freeList[:len(b.freeList)-1]
		b.entries[slot-1] = e
		return slot, nil
	}

	b.entries = append(b.entries, e)
	return Slot(len(b.entries)), nil
}

func (b *LocalBackend) lookup(slot Slot) (entry, bool) {
	if slot == 0 {
		return entry{}, false
	}
	idx := slot - 1
	if int(idx) >= len(b.entries) {
		return entry{}, false
	}
	e := b.entries[idx]
	return e, e.valid
}

// Get retrieves a value by slot.
func (b *LocalBackend) Get(slot Slot) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(slot)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Drop removes an entry and returns its value. It returns false if the slot
// is not live, so a value is handed out for release at most once.
func (b *LocalBackend) Drop(slot Slot) (any, TypeID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.lookup(slot); !ok {
		return nil, 0, false
	}

	e := &b.entries[slot-1]
	value, typeID := e.value, e.typeID
	*e = entry{}
	b.freeList = append(b.freeList, slot)

	return value, typeID, true
}

// Close marks the backend closed and returns every live entry, newest first.
// The caller is responsible for releasing them.
func (b *LocalBackend) Close() []released {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var out []released
	for i, e := range b.entries {
		if e.valid {
			out = append(out, released{value: e.value, slot: Slot(i + 1), typeID: e.typeID, seq: e.seq})
		}
	}
	// Slots are reused, so order by creation sequence: newest first,
	// the same order deferred releases would run in.
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })

	b.entries = nil
	b.freeList = nil
	return out
}

// Len returns the number of live entries.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over live entries in slot order.
func (b *LocalBackend) Each(fn func(Slot, TypeID, any) bool) {
	b.mu.RLock()
	live := make([]released, 0, len(b.entries))
	for i, e := range b.entries {
		if e.valid {
			live = append(live, released{value: e.value, slot: Slot(i + 1), typeID: e.typeID})
		}
	}
	b.mu.RUnlock()

	for _, r := range live {
		if !fn(r.slot, r.typeID, r.value) {
			break
		}
	}
}
