// Package scriptendpoint provides an in-process callback endpoint. Objects
// published on it are addressable by identity, and notifications sent through
// the proxies it hands out are delivered asynchronously on a pool of
// dispatcher goroutines, the same way a remote executor's notifications would
// arrive over a transport.
package scriptendpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/riverqueue/riverscript/internal/baseservice"
	"github.com/riverqueue/riverscript/internal/startstop"
	"github.com/riverqueue/riverscript/internal/testsignal"
	"github.com/riverqueue/riverscript/internal/util/testutil"
	"github.com/riverqueue/riverscript/internal/util/valutil"
	"github.com/riverqueue/riverscript/scripttype"
)

const (
	NumDispatchersDefault = 2
	QueueSizeDefault      = 100
)

// ErrIdentityInUse is returned when publishing an object under an identity
// that's already published.
var ErrIdentityInUse = errors.New("identity already in use")

// Config is configuration for an Endpoint.
type Config struct {
	// Logger is the structured logger to use for logging purposes. If none is
	// specified, slog.Default is used.
	Logger *slog.Logger

	// NumDispatchers is the number of goroutines delivering notifications.
	//
	// Defaults to NumDispatchersDefault.
	NumDispatchers int

	// QueueSize is the number of notifications that may be buffered awaiting
	// delivery. Sending a notification while the queue is full blocks until
	// there's room or the sender's context is done.
	//
	// Defaults to QueueSizeDefault.
	QueueSize int
}

func (c *Config) mustValidate() *Config {
	if c.NumDispatchers < 0 {
		panic("Config.NumDispatchers must be greater or equal to 0")
	}
	if c.QueueSize < 0 {
		panic("Config.QueueSize must be greater or equal to 0")
	}

	return c
}

// notification is a single notification awaiting delivery.
type notification struct {
	deliver  func(ctx context.Context, receiver scripttype.ProcessCallbackReceiver)
	identity scripttype.Identity
	name     string
}

// Endpoint is an in-process callback endpoint. It must be started with Start
// for notifications to be delivered, and stopped with Stop once no longer
// needed.
type Endpoint struct {
	baseservice.BaseService
	startstop.BaseStartStop

	config *Config
	queue  chan notification

	mu       sync.RWMutex
	servants map[scripttype.Identity]scripttype.ProcessCallbackReceiver

	testSignals endpointTestSignals
}

// endpointTestSignals are internal signals used exclusively in tests.
type endpointTestSignals struct {
	delivered testsignal.TestSignal[string] // notification delivered to a servant
	dropped   testsignal.TestSignal[string] // notification dropped because its servant was removed
}

func (ts *endpointTestSignals) Init(tb testutil.TestingTB) {
	ts.delivered.Init(tb)
	ts.dropped.Init(tb)
}

// NewEndpoint returns a new endpoint. It's not started.
func NewEndpoint(config *Config) *Endpoint {
	if config == nil {
		config = &Config{}
	}

	return newEndpoint(baseservice.NewArchetype(config.Logger), config)
}

func newEndpoint(archetype *baseservice.Archetype, config *Config) *Endpoint {
	config = (&Config{
		NumDispatchers: valutil.ValOrDefault(config.NumDispatchers, NumDispatchersDefault),
		QueueSize:      valutil.ValOrDefault(config.QueueSize, QueueSizeDefault),
	}).mustValidate()

	return baseservice.Init(archetype, &Endpoint{
		config:   config,
		queue:    make(chan notification, config.QueueSize),
		servants: make(map[scripttype.Identity]scripttype.ProcessCallbackReceiver),
	})
}

// Start starts the endpoint's dispatchers. Notifications sent before the
// endpoint is started are queued and delivered once it is.
func (e *Endpoint) Start(ctx context.Context) error {
	ctx, shouldStart, stopped := e.StartInit(ctx)
	if !shouldStart {
		return nil
	}

	errGroup := &errgroup.Group{}
	for i := range e.config.NumDispatchers {
		errGroup.Go(func() error {
			e.dispatch(ctx, i)
			return nil
		})
	}

	go func() {
		defer close(stopped)

		e.Logger.DebugContext(ctx, e.Name+": Run loop started", slog.Int("num_dispatchers", e.config.NumDispatchers))
		defer e.Logger.DebugContext(ctx, e.Name+": Run loop stopped")

		_ = errGroup.Wait()
	}()

	return nil
}

func (e *Endpoint) dispatch(ctx context.Context, dispatcherNum int) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-e.queue:
			e.deliver(ctx, dispatcherNum, notif)
		}
	}
}

func (e *Endpoint) deliver(ctx context.Context, dispatcherNum int, notif notification) {
	e.mu.RLock()
	receiver, ok := e.servants[notif.identity]
	e.mu.RUnlock()

	if !ok {
		e.Logger.DebugContext(ctx, e.Name+": Dropping notification for removed object",
			slog.String("identity", notif.identity.String()), slog.String("notification", notif.name))
		e.testSignals.dropped.Signal(notif.name)
		return
	}

	e.Logger.DebugContext(ctx, e.Name+": Delivering notification",
		slog.Int("dispatcher", dispatcherNum), slog.String("identity", notif.identity.String()), slog.String("notification", notif.name))
	notif.deliver(ctx, receiver)
	e.testSignals.delivered.Signal(notif.name)
}

// Publish makes receiver addressable under identity and returns a proxy
// through which notifications can be sent to it. Returns ErrIdentityInUse if
// something is already published under identity.
func (e *Endpoint) Publish(ctx context.Context, identity scripttype.Identity, receiver scripttype.ProcessCallbackReceiver) (scripttype.CallbackProxy, error) {
	if identity.Name == "" {
		return nil, errors.New("identity name cannot be empty")
	}
	if receiver == nil {
		return nil, errors.New("receiver cannot be nil")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.servants[identity]; ok {
		return nil, fmt.Errorf("error publishing %s: %w", identity, ErrIdentityInUse)
	}
	e.servants[identity] = receiver

	return &proxy{endpoint: e, identity: identity}, nil
}

// Remove stops the object published under identity from being addressable.
// Queued notifications for it are dropped. Returns
// scripttype.ErrObjectNotExist if nothing is published under identity.
func (e *Endpoint) Remove(ctx context.Context, identity scripttype.Identity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.servants[identity]; !ok {
		return fmt.Errorf("error removing %s: %w", identity, scripttype.ErrObjectNotExist)
	}
	delete(e.servants, identity)

	return nil
}

// NumPublished returns the number of objects currently published.
func (e *Endpoint) NumPublished() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.servants)
}

func (e *Endpoint) send(ctx context.Context, notif notification) error {
	e.mu.RLock()
	_, ok := e.servants[notif.identity]
	e.mu.RUnlock()

	if !ok {
		return fmt.Errorf("error sending %s to %s: %w", notif.name, notif.identity, scripttype.ErrObjectNotExist)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e.queue <- notif:
		return nil
	}
}

// proxy is a CallbackProxy which sends notifications through an endpoint's
// queue.
type proxy struct {
	endpoint *Endpoint
	identity scripttype.Identity
}

func (p *proxy) Identity() scripttype.Identity { return p.identity }

func (p *proxy) ProcessCancelled(ctx context.Context, success bool) error {
	return p.endpoint.send(ctx, notification{
		deliver: func(ctx context.Context, receiver scripttype.ProcessCallbackReceiver) {
			receiver.ProcessCancelled(ctx, success)
		},
		identity: p.identity,
		name:     "process_cancelled",
	})
}

func (p *proxy) ProcessFinished(ctx context.Context, returnCode int) error {
	return p.endpoint.send(ctx, notification{
		deliver: func(ctx context.Context, receiver scripttype.ProcessCallbackReceiver) {
			receiver.ProcessFinished(ctx, returnCode)
		},
		identity: p.identity,
		name:     "process_finished",
	})
}

func (p *proxy) ProcessKilled(ctx context.Context, success bool) error {
	return p.endpoint.send(ctx, notification{
		deliver: func(ctx context.Context, receiver scripttype.ProcessCallbackReceiver) {
			receiver.ProcessKilled(ctx, success)
		},
		identity: p.identity,
		name:     "process_killed",
	})
}
