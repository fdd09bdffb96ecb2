// Package process runs stored shell commands and tracks their lifecycle.
//
// A Manager spawns one child per command id, persists every stdout and
// stderr line through its Store as the child writes it, and finalizes the
// run exactly once, either when the child exits on its own or when Kill
// stops it:
//
//   - Run spawns the child through the platform shell and registers it
//   - a watcher goroutine waits for natural exit and drained output, then
//     records the result; Kill can still take over while output drains
//   - Kill sends a graceful signal, escalates to a force kill after the
//     grace period, and records a killed result
//
// Status is derived from the Registry: a registered id is running, an id
// being killed is stopping, anything else is stopped.
//
// Example usage:
//
//	mgr := process.NewManager(&process.Options{
//	    Store:    store,
//	    Notifier: events.NewNotifier(bus),
//	    Logger:   logging.GetLogger("process"),
//	})
//	defer mgr.Shutdown(context.Background())
//	if err := mgr.Run(ctx, cmd); err != nil {
//	    return err
//	}
package process
