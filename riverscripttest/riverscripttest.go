// Package riverscripttest contains test helpers and assertions for projects
// that declare riverscript jobs or wait on remote processes with process
// callbacks.
package riverscripttest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/riverqueue/riverscript"
	"github.com/riverqueue/riverscript/internal/scriptsharedtest"
	"github.com/riverqueue/riverscript/scriptendpoint"
	"github.com/riverqueue/riverscript/scripttype"
)

// testingT is an interface wrapper around *testing.T that's implemented by all
// of *testing.T, *testing.F, and *testing.B.
//
// It's used internally to verify that riverscript's test assertions are
// working as expected.
type testingT interface {
	Errorf(format string, args ...any)
	FailNow()
	Helper()
	Log(args ...any)
	Logf(format string, args ...any)
}

// Process is a riverscript.ProcessHandle standing in for a remotely executing
// process. Proxies registered with it are kept, and its Finish, Cancel, and
// Kill methods deliver the corresponding notification to all of them the way
// a process's executor would.
//
//	process := &riverscripttest.Process{}
//	callback, err := riverscript.NewProcessCallback(ctx, endpoint, process, nil)
//	...
//	process.Finish(ctx, t, 0)
//	riverscripttest.RequireCallbackState(t, callback, riverscript.CallbackState{Status: riverscript.CallbackStatusFinished})
type Process struct {
	// RegisterErr, when set, is returned from RegisterCallback and the proxy
	// isn't kept.
	RegisterErr error

	mu      sync.Mutex
	proxies []scripttype.CallbackProxy
}

// RegisterCallback records proxy so that notifications can be delivered to it.
func (p *Process) RegisterCallback(ctx context.Context, proxy scripttype.CallbackProxy) error {
	if p.RegisterErr != nil {
		return p.RegisterErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.proxies = append(p.proxies, proxy)
	return nil
}

// Proxies returns the proxies registered so far.
func (p *Process) Proxies() []scripttype.CallbackProxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]scripttype.CallbackProxy(nil), p.proxies...)
}

// Finish delivers a finished notification with the given return code to every
// registered proxy. The test fails if delivery to any of them fails.
func (p *Process) Finish(ctx context.Context, tb testing.TB, returnCode int) {
	tb.Helper()
	p.notify(tb, "finished", func(proxy scripttype.CallbackProxy) error {
		return proxy.ProcessFinished(ctx, returnCode)
	})
}

// Cancel delivers a cancelled notification to every registered proxy. The
// test fails if delivery to any of them fails.
func (p *Process) Cancel(ctx context.Context, tb testing.TB, success bool) {
	tb.Helper()
	p.notify(tb, "cancelled", func(proxy scripttype.CallbackProxy) error {
		return proxy.ProcessCancelled(ctx, success)
	})
}

// Kill delivers a killed notification to every registered proxy. The test
// fails if delivery to any of them fails.
func (p *Process) Kill(ctx context.Context, tb testing.TB, success bool) {
	tb.Helper()
	p.notify(tb, "killed", func(proxy scripttype.CallbackProxy) error {
		return proxy.ProcessKilled(ctx, success)
	})
}

func (p *Process) notify(t testingT, notification string, send func(proxy scripttype.CallbackProxy) error) {
	t.Helper()

	proxies := p.Proxies()
	if len(proxies) < 1 {
		failure(t, "No callbacks registered to deliver %s notification to", notification)
		return
	}

	for _, proxy := range proxies {
		if err := send(proxy); err != nil {
			failure(t, "Error delivering %s notification to %s: %s", notification, proxy.Identity(), err)
			return
		}
	}
}

// StartEndpoint returns a started in-process callback endpoint which is
// stopped when the test finishes.
func StartEndpoint(ctx context.Context, tb testing.TB, config *scriptendpoint.Config) *scriptendpoint.Endpoint {
	tb.Helper()

	endpoint := scriptendpoint.NewEndpoint(config)
	if err := endpoint.Start(ctx); err != nil {
		failure(tb, "Error starting endpoint: %s", err)
		return nil
	}
	tb.Cleanup(endpoint.Stop)

	return endpoint
}

// RequireCallbackState waits for callback to reach a terminal state and
// verifies that it's the expected one, failing the test if it's different or
// if no terminal state is reached in time.
func RequireCallbackState(tb testing.TB, callback *riverscript.ProcessCallback, expected riverscript.CallbackState) riverscript.CallbackState {
	tb.Helper()
	return requireCallbackState(tb, callback, expected)
}

func requireCallbackState(t testingT, callback *riverscript.ProcessCallback, expected riverscript.CallbackState) riverscript.CallbackState {
	t.Helper()

	timeout := scriptsharedtest.WaitTimeout()

	actual, ok := callback.Block(timeout)
	if !ok {
		failure(t, "Process callback %s didn't reach a terminal state after %s (expected %s)", callback.Identity(), timeout, expected)
		return actual
	}

	if actual != expected {
		failure(t, "Process callback %s reached state %s, but expected %s", callback.Identity(), actual, expected)
	}
	return actual
}

// RequireValid verifies that a validation report contains no problems,
// failing the test and printing the report if it does.
func RequireValid(tb testing.TB, report riverscript.ValidationReport) {
	tb.Helper()
	requireValid(tb, report)
}

func requireValid(t testingT, report riverscript.ValidationReport) {
	t.Helper()

	if !report.Valid() {
		failure(t, "Expected inputs to be valid, but validation reported %d problem(s):\n%s", len(report), report)
	}
}

// RequireReportContains verifies that a validation report contains a line of
// the given category whose message contains substr. Pass an empty substr to
// match any line of the category.
func RequireReportContains(tb testing.TB, report riverscript.ValidationReport, category riverscript.ReportCategory, substr string) {
	tb.Helper()
	requireReportContains(tb, report, category, substr)
}

func requireReportContains(t testingT, report riverscript.ValidationReport, category riverscript.ReportCategory, substr string) {
	t.Helper()

	tag := category.Tag()
	if len(tag) > reportTagWidth {
		tag = tag[0:reportTagWidth]
	}

	for _, line := range report {
		tagPart, message, ok := strings.Cut(line, reportSeparator)
		if !ok {
			continue
		}
		if strings.TrimSpace(tagPart) == tag && strings.Contains(message, substr) {
			return
		}
	}

	failure(t, "Expected validation report to contain a %q line containing %q, but it was:\n%s", category, substr, report)
}

// Line layout of riverscript.ValidationReport: a tag padded or truncated to
// reportTagWidth, then reportSeparator, then the message.
const (
	reportSeparator = " ---   "
	reportTagWidth  = 15
)

func failure(t testingT, format string, a ...any) {
	t.Helper()
	t.Log(failureString(format, a...))
	t.FailNow()
}

// failureString wraps a printf-style formatting directive with a riverscript
// header and footer common to all failure messages.
func failureString(format string, a ...any) string {
	return "\n    riverscript assertion failure:\n    " + fmt.Sprintf(format, a...) + "\n"
}
