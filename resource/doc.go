// Package resource tracks values that cross into the script engine.
//
// Every buffer, host function or native state handed to the engine is
// registered in a Table under an integer handle. The table does not own
// the values' lifetime: a value that is released (explicitly or because
// the engine reclaimed it) calls Forget to leave the table. What remains
// in the table at teardown is exactly what is still live, and Close drops
// it.
//
// # Handle Table
//
//	table := resource.NewTable()
//
//	// Track a value
//	h := table.Insert(typeID, value)
//
//	// The value released itself
//	table.Forget(h)
//
//	// Release everything still live (calls Dropper.Drop)
//	table.Close()
//
// # Observers
//
// Register observers to follow lifecycle events, e.g. for tracing:
//
//	type tracer struct{ log *zap.Logger }
//
//	func (t *tracer) OnResourceEvent(e resource.Event) {
//	    t.log.Debug("handle "+e.Type.String(), zap.Uint32("handle", uint32(e.Handle)))
//	}
//
//	table.Subscribe(&tracer{log: logger})
//
// Observers run on whichever goroutine triggered the event. Forget is
// commonly triggered from the Go cleanup goroutine.
package resource
