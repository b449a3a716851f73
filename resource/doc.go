// Package resource tracks live native resources and guarantees their release.
//
// Every native handle the bindings hand out (puppets, open scenes) is
// registered in a Table owned by its Instance. The table is the scoped guard
// behind the ownership model: an entry is released exactly once, either when
// its owner removes it or when the table is closed.
//
// # Slots
//
//	table := resource.NewTable()
//
//	// Register a value that owns a native resource
//	slot := table.Insert(resource.TypePuppet, puppet)
//
//	// Release it (calls puppet.Release exactly once)
//	ok, err := table.Remove(ctx, slot)
//
//	// A second Remove is a no-op
//	ok, _ = table.Remove(ctx, slot) // ok == false
//
// Slot 0 is reserved and always invalid; Insert returns 0 once the table is
// closed.
//
// # Release Order
//
// Close releases every entry still live, newest first, and keeps going when
// a release fails; the failures are combined into the returned error.
//
// # Observers
//
// Register observers to track resource lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    switch e.Type {
//	    case resource.EventCreated:
//	        log.Printf("%s %d created", e.TypeID, e.Slot)
//	    case resource.EventDropped:
//	        log.Printf("%s %d dropped", e.TypeID, e.Slot)
//	    }
//	}))
package resource
