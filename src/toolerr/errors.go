// Package toolerr defines the typed error taxonomy shared by every layer of
// the terminal session manager, from the Manager up through the MCP and
// REST transports.
package toolerr

import "errors"

// Sentinel kinds. Callers compare with errors.Is; wrapped errors carry
// additional context via fmt.Errorf("...: %w", KindX).
var (
	// NotFound is returned when an operation names an unknown session.
	NotFound = errors.New("session not found")

	// NameInUse is returned by create when an active session already owns
	// the requested name.
	NameInUse = errors.New("session name in use")

	// SpawnFailed wraps a PTY/child creation failure.
	SpawnFailed = errors.New("failed to spawn session")

	// SessionTerminated is returned by write/resize on a terminal session.
	SessionTerminated = errors.New("session already terminated")

	// BlacklistedCommand is returned when a hook rule rejects a write. The
	// wrapping error carries the rule's configured message.
	BlacklistedCommand = errors.New("command blacklisted")

	// InvalidArgs is returned on request validation failures.
	InvalidArgs = errors.New("invalid arguments")

	// Overflow is delivered to a subscriber whose queue could not keep up
	// with the producer. Never returned to a ToolSurface caller directly.
	Overflow = errors.New("subscriber overflow")

	// Internal marks an unexpected invariant violation. Logged at error
	// level by every caller that observes it.
	Internal = errors.New("internal error")
)

// InvalidArg builds an InvalidArgs error naming the offending field.
func InvalidArg(field, reason string) error {
	return &fieldError{field: field, reason: reason}
}

type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	return "invalid argument " + e.field + ": " + e.reason
}

func (e *fieldError) Unwrap() error {
	return InvalidArgs
}
