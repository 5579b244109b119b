// Package ordlockerr defines the error kinds observable at the client API
// boundary. Business errors returned by the server are mapped back to these
// sentinels through Name, so callers can compare with errors.Is instead of
// parsing strings.
package ordlockerr

import "github.com/pkg/errors"

// Kind enumerates the error kinds a lock RPC can fail with.
type Kind struct {
	name string
}

func (k Kind) String() string { return k.name }

var (
	// KindLockingTimeout: the lockingTimeout elapsed before acquisition.
	KindLockingTimeout = Kind{"LockingTimeout"}
	// KindConnectionLost: the socket closed while the RPC was pending.
	KindConnectionLost = Kind{"ConnectionLost"}
	// KindUnknownLock: the lock id does not exist (released, expired, or never issued).
	KindUnknownLock = Kind{"UnknownLock"}
	// KindNotOwner: extend/release attempted by a connection that does not own the lock.
	KindNotOwner = Kind{"NotOwner"}
	// KindInvalidRequest: malformed parameters (empty resource set, non-positive ttl, unknown method).
	KindInvalidRequest = Kind{"InvalidRequest"}
)

var byName = map[string]Kind{
	KindLockingTimeout.name: KindLockingTimeout,
	KindConnectionLost.name: KindConnectionLost,
	KindUnknownLock.name:    KindUnknownLock,
	KindNotOwner.name:       KindNotOwner,
	KindInvalidRequest.name: KindInvalidRequest,
}

// KindByName resolves a wire {error:{name}} field back to a Kind. The second
// return is false for a name this client does not recognize, in which case
// callers should fall back to treating the error as an opaque RPCError.
func KindByName(name string) (Kind, bool) {
	kind, ok := byName[name]
	return kind, ok
}

// RPCError is a business error returned by the lock server, as opposed to a
// transport failure. Its Kind can be compared with errors.Is against the
// package-level sentinels below.
type RPCError struct {
	Kind    Kind
	Message string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return e.Kind.name
	}
	return e.Kind.name + ": " + e.Message
}

// Is lets errors.Is(err, ordlockerr.LockingTimeout) match any *RPCError of
// that kind, regardless of message.
func (e *RPCError) Is(target error) bool {
	other, ok := target.(*RPCError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New builds an *RPCError of the given kind with a message.
func New(kind Kind, message string) *RPCError {
	return &RPCError{Kind: kind, Message: message}
}

// Sentinels usable with errors.Is(err, ordlockerr.LockingTimeout) and so on.
// The Message field is irrelevant for Is comparisons.
var (
	LockingTimeout = &RPCError{Kind: KindLockingTimeout}
	ConnectionLost = &RPCError{Kind: KindConnectionLost}
	UnknownLock    = &RPCError{Kind: KindUnknownLock}
	NotOwner       = &RPCError{Kind: KindNotOwner}
	InvalidRequest = &RPCError{Kind: KindInvalidRequest}
)

// Wrap attaches additional context to err using the pack's erero/pkg-errors
// wrapping convention, without discarding the ability to unwrap to an
// *RPCError via errors.As.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}
