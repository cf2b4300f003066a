// Package startstop provides a lifecycle helper for long-lived objects that
// run background goroutines, like the callback endpoint's dispatcher.
package startstop

import (
	"context"
	"errors"
	"sync"
)

// ErrStop is an error injected into WithCancelCause when context is canceled
// because a service is stopping. Makes it possible to differentiate a
// controlled stop from a context cancellation.
var ErrStop = errors.New("service stopped")

// Service is a generalized interface for a service that starts and stops,
// usually one backed by embedding BaseStartStop.
type Service interface {
	// Start starts a service. Services are responsible for backgrounding
	// themselves, so this function should be invoked synchronously. Services
	// may return an error if they have trouble starting up, so the caller
	// should wait and respond to the error if necessary.
	Start(ctx context.Context) error

	// Stop stops a service. Services are responsible for making sure their stop
	// is complete before returning so a caller can wait on this invocation
	// synchronously and be guaranteed the service is fully stopped. Services
	// are expected to be able to tolerate (1) being stopped without having been
	// started, and (2) being double-stopped.
	Stop()
}

// BaseStartStop is a helper that can be embedded on a service and which will
// provide the basic necessities to safely implement the Service interface in a
// way that's not racy and can tolerate a number of edge cases.
//
// Services should implement their own Start function which invokes StartInit
// first thing, return if told not to start, spawn a goroutine with their main
// run block otherwise, and make sure to defer a close on the stop channel
// returned by StartInit within that goroutine.
//
//	ctx, shouldStart, stopped := s.StartInit(ctx)
//	if !shouldStart {
//	    return nil
//	}
//
//	go func() {
//	     defer close(stopped)
//
//	     ...
//
// Be careful to also close it in the event of startup errors, otherwise a
// service that failed to start once will never be able to start up.
type BaseStartStop struct {
	cancelFunc context.CancelCauseFunc
	mu         sync.Mutex
	started    bool
	stopped    chan struct{}
}

// StartInit should be invoked at the beginning of a service's Start function.
// It returns a context for the service to use, a boolean indicating whether it
// should start (which will be false if the service is already started), and a
// stopped channel. Services should defer a close on the stop channel in their
// main run loop.
func (s *BaseStartStop) StartInit(ctx context.Context) (context.Context, bool, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ctx, false, nil
	}

	s.started = true
	s.stopped = make(chan struct{})
	ctx, s.cancelFunc = context.WithCancelCause(ctx)

	return ctx, true, s.stopped
}

// Started returns true if the service is currently started.
func (s *BaseStartStop) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.started
}

// Stop is an automatically provided implementation for the Service interface's
// Stop.
func (s *BaseStartStop) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Tolerate being told to stop without having been started.
	if s.stopped == nil {
		return
	}

	s.cancelFunc(ErrStop)
	<-s.stopped

	s.started = false
	s.stopped = nil
}

// Stopped returns a channel that can be waited on for the service to be
// stopped. This function is only safe to invoke after successfully waiting on a
// service's Start, and a reference to it must be taken _before_ invoking Stop.
func (s *BaseStartStop) Stopped() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped
}
