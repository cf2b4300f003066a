package scripttype

import (
	"context"
	"errors"
)

// ErrObjectNotExist is returned when a notification is sent to an identity
// that isn't (or is no longer) published on an endpoint.
var ErrObjectNotExist = errors.New("object does not exist")

// CategoryProcessCallback is the identity category under which process
// callbacks are published.
const CategoryProcessCallback = "ProcessCallback"

// Identity identifies an object published on a callback endpoint.
type Identity struct {
	// Name is unique amongst objects published on the same endpoint. Process
	// callbacks use a random UUID.
	Name string

	// Category groups identities by the type of object they address.
	Category string
}

func (i Identity) String() string { return i.Category + "/" + i.Name }

// ProcessCallbackReceiver is implemented by objects which receive terminal
// notifications about a remotely executing process. Notifications are
// delivered by an endpoint's dispatcher, never by the waiting client.
type ProcessCallbackReceiver interface {
	// ProcessCancelled is invoked when the process was cancelled. success
	// indicates whether cancellation completed cleanly.
	ProcessCancelled(ctx context.Context, success bool)

	// ProcessFinished is invoked when the process exits on its own with the
	// given return code.
	ProcessFinished(ctx context.Context, returnCode int)

	// ProcessKilled is invoked when the process was killed. success indicates
	// whether the kill completed cleanly.
	ProcessKilled(ctx context.Context, success bool)
}

// CallbackProxy is a remotely addressable reference to a published
// ProcessCallbackReceiver. It's what gets handed to a process so that the
// executor can deliver notifications back. Invoking a method sends a
// notification toward the receiver, and may return before it's delivered.
type CallbackProxy interface {
	Identity() Identity
	ProcessCancelled(ctx context.Context, success bool) error
	ProcessFinished(ctx context.Context, returnCode int) error
	ProcessKilled(ctx context.Context, success bool) error
}
