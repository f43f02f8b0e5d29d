// Package interfaces provides internal interface definitions for usbreplay.
// These are separate from the public interfaces to avoid circular imports
// between the root package and its internal packages.
package interfaces

// Logger is the internal logging contract used by every package below the
// root so none of them need to import the root package's option types.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Observer receives stuck-detector events from the matcher. The core calls
// this synchronously from within Handle, never concurrently. Submit/reap/
// discard counts are tracked directly by the dispatcher (see Stats), since
// those happen at the dispatch layer rather than inside the matcher.
type Observer interface {
	ObserveStuck()
}
