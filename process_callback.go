package riverscript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riverqueue/riverscript/internal/baseservice"
	"github.com/riverqueue/riverscript/internal/testsignal"
	"github.com/riverqueue/riverscript/internal/util/testutil"
	"github.com/riverqueue/riverscript/scripttype"
)

// CallbackStatus is the status of a process as observed by a ProcessCallback.
type CallbackStatus int

const (
	// CallbackStatusPending is the initial status of every callback. The
	// process hasn't reached a terminal state yet.
	CallbackStatusPending CallbackStatus = iota

	// CallbackStatusFinished indicates that the process exited on its own.
	// CallbackState.ReturnCode carries its return code.
	CallbackStatusFinished

	// CallbackStatusCancelled indicates that the process was cancelled.
	// CallbackState.Success indicates whether cancellation completed cleanly.
	CallbackStatusCancelled

	// CallbackStatusKilled indicates that the process was killed.
	// CallbackState.Success indicates whether the kill completed cleanly.
	CallbackStatusKilled
)

func (s CallbackStatus) String() string {
	switch s {
	case CallbackStatusPending:
		return "pending"
	case CallbackStatusFinished:
		return "finished"
	case CallbackStatusCancelled:
		return "cancelled"
	case CallbackStatusKilled:
		return "killed"
	}
	return "CallbackStatus(" + strconv.Itoa(int(s)) + ")"
}

// CallbackState is the state of a process as observed by a ProcessCallback.
// It transitions at most once out of pending, and never again after that.
type CallbackState struct {
	// Status is the state's status.
	Status CallbackStatus

	// ReturnCode is the return code of a finished process. Zero for other
	// statuses.
	ReturnCode int

	// Success is whether a cancel or kill completed cleanly. False for other
	// statuses.
	Success bool
}

// IsTerminal returns true if the state is one that's never left.
func (s CallbackState) IsTerminal() bool { return s.Status != CallbackStatusPending }

func (s CallbackState) String() string {
	switch s.Status {
	case CallbackStatusFinished:
		return fmt.Sprintf("%s(%d)", s.Status, s.ReturnCode)
	case CallbackStatusCancelled, CallbackStatusKilled:
		return fmt.Sprintf("%s(%t)", s.Status, s.Success)
	case CallbackStatusPending:
	}
	return s.Status.String()
}

// CallbackEndpoint hosts remotely addressable objects. A process callback
// publishes itself on an endpoint to receive notifications, and removes
// itself when closed.
type CallbackEndpoint interface {
	// Publish makes receiver addressable under identity and returns a proxy
	// through which notifications can be sent to it.
	Publish(ctx context.Context, identity scripttype.Identity, receiver scripttype.ProcessCallbackReceiver) (scripttype.CallbackProxy, error)

	// Remove stops the object published under identity from being
	// addressable. Notifications sent to it afterwards are not delivered.
	Remove(ctx context.Context, identity scripttype.Identity) error
}

// ProcessHandle is a reference to a remotely executing process.
type ProcessHandle interface {
	// RegisterCallback registers a proxy that the process's executor delivers
	// a terminal notification to once the process finishes, is cancelled, or
	// is killed.
	RegisterCallback(ctx context.Context, proxy scripttype.CallbackProxy) error
}

// ProcessCallbackConfig is configuration for a ProcessCallback.
type ProcessCallbackConfig struct {
	// Logger is the structured logger to use for logging purposes. If none is
	// specified, slog.Default is used.
	Logger *slog.Logger
}

// ProcessCallback lets a client wait for a remotely executing process to
// reach a terminal state without polling. It publishes itself on an endpoint
// and registers its proxy with the process, after which the process's
// executor delivers exactly one of a finished, cancelled, or killed
// notification through the endpoint's dispatcher.
//
// The resolved state is level triggered: a waiter that starts waiting after
// a notification arrived observes it immediately. If more than one terminal
// notification arrives, the first is kept and the rest are logged and
// ignored.
//
// Callbacks must be closed with Close on every path once no longer needed:
//
//	callback, err := riverscript.NewProcessCallback(ctx, endpoint, process, nil)
//	if err != nil {
//		return err
//	}
//	defer callback.Close(ctx)
//
//	state, ok := callback.Block(5 * time.Second)
type ProcessCallback struct {
	baseservice.BaseService

	endpoint CallbackEndpoint
	identity scripttype.Identity
	proxy    scripttype.CallbackProxy

	// Closed under mu exactly once when state becomes terminal.
	done chan struct{}

	mu     sync.Mutex
	closed bool
	state  CallbackState

	testSignals processCallbackTestSignals
}

// processCallbackTestSignals are internal signals used exclusively in tests.
type processCallbackTestSignals struct {
	ignored  testsignal.TestSignal[CallbackState] // notification arrived after the state was already terminal
	resolved testsignal.TestSignal[CallbackState] // state became terminal
}

func (ts *processCallbackTestSignals) Init(tb testutil.TestingTB) {
	ts.ignored.Init(tb)
	ts.resolved.Init(tb)
}

// NewProcessCallback publishes a new callback on endpoint under a freshly
// generated identity and registers its proxy with process. Failure to publish
// or register is returned as an error, in which case nothing is left
// published.
func NewProcessCallback(ctx context.Context, endpoint CallbackEndpoint, process ProcessHandle, config *ProcessCallbackConfig) (*ProcessCallback, error) {
	if config == nil {
		config = &ProcessCallbackConfig{}
	}

	return newProcessCallback(ctx, baseservice.NewArchetype(config.Logger), endpoint, process)
}

func newProcessCallback(ctx context.Context, archetype *baseservice.Archetype, endpoint CallbackEndpoint, process ProcessHandle) (*ProcessCallback, error) {
	if endpoint == nil {
		return nil, errors.New("endpoint is required")
	}
	if process == nil {
		return nil, errors.New("process is required")
	}

	callback := baseservice.Init(archetype, &ProcessCallback{
		done:     make(chan struct{}),
		endpoint: endpoint,
		identity: scripttype.Identity{
			Name:     uuid.NewString(),
			Category: scripttype.CategoryProcessCallback,
		},
	})

	proxy, err := endpoint.Publish(ctx, callback.identity, callback)
	if err != nil {
		return nil, fmt.Errorf("error publishing process callback: %w", err)
	}
	callback.proxy = proxy

	if err := process.RegisterCallback(ctx, proxy); err != nil {
		if removeErr := endpoint.Remove(ctx, callback.identity); removeErr != nil {
			callback.Logger.WarnContext(ctx, callback.Name+": Error removing callback after failed registration",
				slog.String("identity", callback.identity.String()), slog.String("err", removeErr.Error()))
		}
		return nil, fmt.Errorf("error registering process callback: %w", err)
	}

	callback.Logger.DebugContext(ctx, callback.Name+": Published", slog.String("identity", callback.identity.String()))

	return callback, nil
}

// Identity returns the identity the callback is published under.
func (c *ProcessCallback) Identity() scripttype.Identity { return c.identity }

// Proxy returns the proxy that was registered with the process.
func (c *ProcessCallback) Proxy() scripttype.CallbackProxy { return c.proxy }

// State returns the callback's current state, and true if it's terminal.
func (c *ProcessCallback) State() (CallbackState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state, c.state.IsTerminal()
}

// Block waits up to timeout for the process to reach a terminal state. It
// returns the terminal state and true if one was reached, or a pending state
// and false if the timeout elapsed first. Timing out isn't an error, and
// Block may be called again. Once a terminal state is reached every call
// returns it immediately, even after Close.
func (c *ProcessCallback) Block(timeout time.Duration) (CallbackState, bool) {
	if state, ok := c.State(); ok {
		return state, true
	}
	if timeout <= 0 {
		return CallbackState{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return c.State()
	case <-timer.C:
		return CallbackState{}, false
	}
}

// Wait waits until the process reaches a terminal state or ctx is done. A
// done context returns its error.
func (c *ProcessCallback) Wait(ctx context.Context) (CallbackState, error) {
	select {
	case <-c.done:
		state, _ := c.State()
		return state, nil
	case <-ctx.Done():
		return CallbackState{}, ctx.Err()
	}
}

// Close removes the callback from its endpoint so that it no longer receives
// notifications. A state already recorded is kept and still returned by
// Block and Wait. Closing a callback more than once is a no-op, but a Close
// that failed to remove the callback may be retried.
func (c *ProcessCallback) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.endpoint.Remove(ctx, c.identity); err != nil {
		// Still published, so leave Close retryable.
		c.mu.Lock()
		c.closed = false
		c.mu.Unlock()

		return fmt.Errorf("error removing process callback: %w", err)
	}

	c.Logger.DebugContext(ctx, c.Name+": Removed", slog.String("identity", c.identity.String()))
	return nil
}

// ProcessCancelled records that the process was cancelled. It's invoked by
// the endpoint's dispatcher.
func (c *ProcessCallback) ProcessCancelled(ctx context.Context, success bool) {
	c.resolve(ctx, CallbackState{Status: CallbackStatusCancelled, Success: success})
}

// ProcessFinished records that the process finished with the given return
// code. It's invoked by the endpoint's dispatcher.
func (c *ProcessCallback) ProcessFinished(ctx context.Context, returnCode int) {
	c.resolve(ctx, CallbackState{Status: CallbackStatusFinished, ReturnCode: returnCode})
}

// ProcessKilled records that the process was killed. It's invoked by the
// endpoint's dispatcher.
func (c *ProcessCallback) ProcessKilled(ctx context.Context, success bool) {
	c.resolve(ctx, CallbackState{Status: CallbackStatusKilled, Success: success})
}

func (c *ProcessCallback) resolve(ctx context.Context, state CallbackState) {
	c.mu.Lock()
	if c.state.IsTerminal() {
		resolvedState := c.state
		c.mu.Unlock()

		c.Logger.WarnContext(ctx, c.Name+": Ignoring notification for process already in terminal state",
			slog.String("identity", c.identity.String()),
			slog.String("notification", state.String()),
			slog.String("state", resolvedState.String()))
		c.testSignals.ignored.Signal(state)
		return
	}
	c.state = state
	close(c.done)
	c.mu.Unlock()

	c.Logger.DebugContext(ctx, c.Name+": Process reached terminal state",
		slog.String("identity", c.identity.String()), slog.String("state", state.String()))
	c.testSignals.resolved.Signal(state)
}
