package bot

import "github.com/pkg/errors"

// Sentinel errors shared across components, matching spec.md §7's error
// taxonomy. Components wrap these with context via pkg/errors or fmt.Errorf
// rather than inventing new types per call site.
var (
	// ErrNotFound is returned by store lookups that find no row.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned by the command layer's authorization
	// predicate when a handler's flags are not satisfied.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCommandTooLong is returned when a message-command name exceeds
	// CmdMessageNameMaxLen.
	ErrCommandTooLong = errors.New("too long")
	// ErrBodyTooLong is returned when a message-command body exceeds
	// CmdMessageBodyMaxLen.
	ErrBodyTooLong = errors.New("too long")
	// ErrNoSuchCmdMessage is returned by set(name, "") when name has no
	// existing row.
	ErrNoSuchCmdMessage = errors.New("no such command message")
	// ErrPoolFull is returned by the worker pool and child supervisor when
	// submission/spawn cannot proceed because capacity is exhausted.
	ErrPoolFull = errors.New("pool full")
	// ErrPoolClosed is returned by the worker pool once shutdown has been
	// initiated.
	ErrPoolClosed = errors.New("pool closed")
	// ErrInvalidRequest marks a webhook body that parsed as JSON but is not
	// a usable update (no message sender, callback without message or
	// data, or neither kind); the update is dropped.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrDroppedForBot marks a command addressed to a different bot via
	// "@othername".
	ErrDroppedForBot = errors.New("command addressed to a different bot")
)
