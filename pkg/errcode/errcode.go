// Package errcode defines the scheduler's error taxonomy.
//
// This is a leaf package with no internal dependencies, so it can be
// imported by cachepool, scheduler, and tape/frontend implementations
// without causing import cycles.
package errcode

import "fmt"

// Code represents the abstract kind of failure the scheduler reports,
// independent of any particular tape layer's native error numbers.
type Code int

const (
	// NullArg indicates a required argument was nil or empty.
	NullArg Code = iota + 1

	// OutOfMemory indicates an allocation failed.
	OutOfMemory

	// InvalidArg indicates an argument was out of range or malformed.
	InvalidArg

	// MutexInit indicates a synchronization primitive failed to initialize.
	MutexInit

	// NoSpaceOnPartition indicates the target partition has no free space.
	NoSpaceOnPartition

	// LessSpaceOnPartition is a soft, IP-only signal: the IP partition is
	// low on space. The DP copy remains good, so this never surfaces to
	// the caller.
	LessSpaceOnPartition

	// WritePermanent indicates a medium or device error on a positioned
	// write. Treated as fatal for the partition's pending requests.
	WritePermanent

	// ReadOnlyVolume indicates the volume as a whole is read-only.
	ReadOnlyVolume

	// ReadOnlyPartition indicates a single partition is read-only.
	ReadOnlyPartition

	// RevalidationRunning indicates a cartridge revalidation is in progress.
	RevalidationRunning

	// RevalidationFailed indicates a cartridge revalidation failed.
	RevalidationFailed

	// DeviceUnready indicates the tape device is not ready for I/O.
	DeviceUnready

	// WriteError is the sticky per-dentry error surfaced on the next
	// foreground operation after an asynchronous write failure.
	WriteError
)

// String returns a human-readable name for the code.
func (c Code) String() string {
	switch c {
	case NullArg:
		return "NullArg"
	case OutOfMemory:
		return "OutOfMemory"
	case InvalidArg:
		return "InvalidArg"
	case MutexInit:
		return "MutexInit"
	case NoSpaceOnPartition:
		return "NoSpaceOnPartition"
	case LessSpaceOnPartition:
		return "LessSpaceOnPartition"
	case WritePermanent:
		return "WritePermanent"
	case ReadOnlyVolume:
		return "ReadOnlyVolume"
	case ReadOnlyPartition:
		return "ReadOnlyPartition"
	case RevalidationRunning:
		return "RevalidationRunning"
	case RevalidationFailed:
		return "RevalidationFailed"
	case DeviceUnready:
		return "DeviceUnready"
	case WriteError:
		return "WriteError"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is the scheduler's error type: a code, a human message, and the
// dentry it happened on (empty for errors not tied to one file).
type Error struct {
	Code    Code
	Message string
	Dentry  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Dentry != "" {
		return fmt.Sprintf("%s: %s (dentry: %s)", e.Code, e.Message, e.Dentry)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a *Error for the given code and dentry.
func New(code Code, dentry, message string) *Error {
	return &Error{Code: code, Message: message, Dentry: dentry}
}

// Is reports whether err is a *Error carrying the given code, so callers
// can do errors.Is(err, errcode.WritePermanent)-style checks against a
// sentinel built from the code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel returns a bare *Error usable as an errors.Is target for a code,
// e.g. errors.Is(err, errcode.Sentinel(errcode.WritePermanent)).
func Sentinel(code Code) *Error {
	return &Error{Code: code}
}

// IsSoftIPError reports whether the code is the one case (§7) where an
// asynchronous write failure must NOT be surfaced to the caller: IP
// out-of-space, because the DP copy is still good.
func IsSoftIPError(code Code) bool {
	return code == LessSpaceOnPartition || code == NoSpaceOnPartition
}
