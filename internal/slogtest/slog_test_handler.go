// Package slogtest provides slog loggers for use in tests.
package slogtest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// NewLogger returns a new slog text logger that outputs to `t.Log`. This helps
// keep test output better formatted, and allows it to be differentiated in case
// of a failure during a parallel test suite run.
func NewLogger(tb testing.TB, opts *slog.HandlerOptions) *slog.Logger {
	tb.Helper()

	logger, _ := NewRecordingLogger(tb, opts)
	return logger
}

// NewRecordingLogger is like NewLogger, but also returns a Recorder which
// keeps every record emitted through the logger so that tests can make
// assertions on log output.
func NewRecordingLogger(tb testing.TB, opts *slog.HandlerOptions) (*slog.Logger, *Recorder) {
	tb.Helper()

	var (
		buf      bytes.Buffer
		recorder = &Recorder{}
	)

	return slog.New(&slogTestHandler{
		buf:      &buf,
		inner:    slog.NewTextHandler(&buf, opts),
		mu:       &sync.Mutex{},
		recorder: recorder,
		tb:       tb,
	}), recorder
}

// Recorder keeps records emitted through a recording logger.
type Recorder struct {
	mu      sync.Mutex
	records []slog.Record
}

// Messages returns the messages of all records emitted at or above the given
// level, in order of emission.
func (r *Recorder) Messages(level slog.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var messages []string
	for _, rec := range r.records {
		if rec.Level >= level {
			messages = append(messages, rec.Message)
		}
	}
	return messages
}

func (r *Recorder) record(rec slog.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec.Clone())
}

type slogTestHandler struct {
	buf      *bytes.Buffer
	inner    slog.Handler
	mu       *sync.Mutex
	recorder *Recorder
	tb       testing.TB
}

func (b *slogTestHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return b.inner.Enabled(ctx, level)
}

func (b *slogTestHandler) Handle(ctx context.Context, rec slog.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.inner.Handle(ctx, rec); err != nil {
		return err
	}
	b.recorder.record(rec)

	output, err := io.ReadAll(b.buf)
	if err != nil {
		return err
	}

	// t.Log adds its own newline, so trim the one from slog.
	output = bytes.TrimSuffix(output, []byte("\n"))

	b.tb.Helper()
	b.tb.Log(string(output))

	return nil
}

func (b *slogTestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &slogTestHandler{
		buf:      b.buf,
		inner:    b.inner.WithAttrs(attrs),
		mu:       b.mu,
		recorder: b.recorder,
		tb:       b.tb,
	}
}

func (b *slogTestHandler) WithGroup(name string) slog.Handler {
	return &slogTestHandler{
		buf:      b.buf,
		inner:    b.inner.WithGroup(name),
		mu:       b.mu,
		recorder: b.recorder,
		tb:       b.tb,
	}
}
