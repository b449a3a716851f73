package resource

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

// Table tracks live native resources and releases each one exactly once.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	seq       atomic.Uint64
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return &Table{
		backend: NewLocalBackend(),
	}
}

// Insert adds a value and returns its slot, or 0 if the table is closed.
func (t *Table) Insert(typeID TypeID, value any) Slot {
	slot, err := t.backend.Create(typeID, value, t.seq.Add(1))
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventCreated,
		Slot:   slot,
		TypeID: typeID,
		Value:  value,
	})

	return slot
}

// Get retrieves a value by slot.
func (t *Table) Get(slot Slot) (any, bool) {
	return t.backend.Get(slot)
}

// Remove takes the entry out of the table and releases it.
// ok is false if the slot was not live; in that case nothing is released.
func (t *Table) Remove(ctx context.Context, slot Slot) (ok bool, err error) {
	value, typeID, ok := t.backend.Drop(slot)
	if !ok {
		return false, nil
	}
	return true, t.release(ctx, slot, typeID, value)
}

func (t *Table) release(ctx context.Context, slot Slot, typeID TypeID, value any) error {
	var err error
	if r, ok := value.(Releaser); ok {
		err = r.Release(ctx)
	}

	t.notify(Event{
		Type:   EventDropped,
		Slot:   slot,
		TypeID: typeID,
		Value:  value,
		Err:    err,
	})

	return err
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Each iterates over live entries of the given type.
// fn may remove entries while iterating.
func (t *Table) Each(typeID TypeID, fn func(Slot, any) bool) {
	t.backend.Each(func(s Slot, id TypeID, v any) bool {
		if id != typeID {
			return true
		}
		return fn(s, v)
	})
}

// Close stops accepting entries and releases everything still live,
// newest first. Every release runs even if an earlier one fails.
func (t *Table) Close(ctx context.Context) error {
	var err error
	for _, r := range t.backend.Close() {
		err = multierr.Append(err, t.release(ctx, r.slot, r.typeID, r.value))
	}
	return err
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
