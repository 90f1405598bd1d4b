package dthrottle

import "errors"

// ErrInvalidConfig indicates a configuration value failed validation at
// startup (spec.md §7: "Configuration type mismatch ... Fatal" at the
// top level, though individual bad rules are logged and skipped rather
// than failing startup - see NewApplication in app.go).
var ErrInvalidConfig = errors.New("dthrottle: invalid configuration")

// ErrListenerClosed is returned by Dispatcher methods called after
// Shutdown.
var ErrListenerClosed = errors.New("dthrottle: listener is closed")

// ErrAdminNotFound indicates an admin API lookup found nothing, e.g.
// querying the state of a tag with no live record.
var ErrAdminNotFound = errors.New("dthrottle: not found")
