package riverscripttest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverqueue/riverscript"
	"github.com/riverqueue/riverscript/internal/scriptsharedtest"
	"github.com/riverqueue/riverscript/internal/util/ptrutil"
	"github.com/riverqueue/riverscript/scriptendpoint"
	"github.com/riverqueue/riverscript/scripttype"
)

func TestMain(m *testing.M) {
	scriptsharedtest.WrapTestMain(m)
}

func TestProcess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	type testBundle struct {
		endpoint *scriptendpoint.Endpoint
		mockT    *MockT
		process  *Process
	}

	setup := func(t *testing.T) (*riverscript.ProcessCallback, *testBundle) {
		t.Helper()

		var (
			endpoint = StartEndpoint(ctx, t, &scriptendpoint.Config{Logger: scriptsharedtest.Logger(t)})
			process  = &Process{}
		)

		callback, err := riverscript.NewProcessCallback(ctx, endpoint, process, &riverscript.ProcessCallbackConfig{Logger: scriptsharedtest.Logger(t)})
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, callback.Close(ctx)) })

		return callback, &testBundle{
			endpoint: endpoint,
			mockT:    NewMockT(t),
			process:  process,
		}
	}

	t.Run("RegistersProxy", func(t *testing.T) {
		t.Parallel()

		callback, bundle := setup(t)

		proxies := bundle.process.Proxies()
		require.Len(t, proxies, 1)
		require.Equal(t, callback.Identity(), proxies[0].Identity())
	})

	t.Run("Finish", func(t *testing.T) {
		t.Parallel()

		callback, bundle := setup(t)

		bundle.process.Finish(ctx, t, 3)
		RequireCallbackState(t, callback, riverscript.CallbackState{Status: riverscript.CallbackStatusFinished, ReturnCode: 3})
	})

	t.Run("Cancel", func(t *testing.T) {
		t.Parallel()

		callback, bundle := setup(t)

		bundle.process.Cancel(ctx, t, true)
		RequireCallbackState(t, callback, riverscript.CallbackState{Status: riverscript.CallbackStatusCancelled, Success: true})
	})

	t.Run("Kill", func(t *testing.T) {
		t.Parallel()

		callback, bundle := setup(t)

		bundle.process.Kill(ctx, t, false)
		RequireCallbackState(t, callback, riverscript.CallbackState{Status: riverscript.CallbackStatusKilled})
	})

	t.Run("NotifyWithoutCallbacksFails", func(t *testing.T) {
		t.Parallel()

		_, bundle := setup(t)

		process := &Process{}
		process.notify(bundle.mockT, "finished", func(proxy scripttype.CallbackProxy) error {
			return proxy.ProcessFinished(ctx, 0)
		})
		require.True(t, bundle.mockT.Failed)
		require.Equal(t,
			failureString("No callbacks registered to deliver finished notification to")+"\n",
			bundle.mockT.LogOutput())
	})

	t.Run("NotifyAfterCloseFails", func(t *testing.T) {
		t.Parallel()

		callback, bundle := setup(t)

		require.NoError(t, callback.Close(ctx))

		bundle.process.notify(bundle.mockT, "finished", func(proxy scripttype.CallbackProxy) error {
			return proxy.ProcessFinished(ctx, 0)
		})
		require.True(t, bundle.mockT.Failed)
		require.Contains(t, bundle.mockT.LogOutput(), scripttype.ErrObjectNotExist.Error())
	})

	t.Run("RegisterErr", func(t *testing.T) {
		t.Parallel()

		_, bundle := setup(t)

		registerErr := errors.New("process gone")

		_, err := riverscript.NewProcessCallback(ctx, bundle.endpoint, &Process{RegisterErr: registerErr}, nil)
		require.ErrorIs(t, err, registerErr)
		require.Equal(t, 1, bundle.endpoint.NumPublished())
	})

	t.Run("RequireCallbackStateMismatch", func(t *testing.T) {
		t.Parallel()

		callback, bundle := setup(t)

		bundle.process.Finish(ctx, t, 1)

		_ = requireCallbackState(bundle.mockT, callback, riverscript.CallbackState{Status: riverscript.CallbackStatusFinished})
		require.True(t, bundle.mockT.Failed)
		require.Equal(t,
			failureString("Process callback %s reached state finished(1), but expected finished(0)", callback.Identity())+"\n",
			bundle.mockT.LogOutput())
	})
}

// Not parallel because it waits out the full wait timeout.
func TestRequireCallbackStateTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the wait timeout")
	}

	ctx := context.Background()

	endpoint := StartEndpoint(ctx, t, nil)

	callback, err := riverscript.NewProcessCallback(ctx, endpoint, &Process{}, nil)
	require.NoError(t, err)
	defer callback.Close(ctx)

	mockT := NewMockT(t)

	start := time.Now()
	state := requireCallbackState(mockT, callback, riverscript.CallbackState{Status: riverscript.CallbackStatusFinished})
	require.True(t, mockT.Failed)
	require.Equal(t, riverscript.CallbackStatusPending, state.Status)
	require.GreaterOrEqual(t, time.Since(start), scriptsharedtest.WaitTimeout())
	require.Contains(t, mockT.LogOutput(), "didn't reach a terminal state")
}

func TestRequireValid(t *testing.T) {
	t.Parallel()

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()

		mockT := NewMockT(t)
		requireValid(mockT, nil)
		require.False(t, mockT.Failed)
	})

	t.Run("Invalid", func(t *testing.T) {
		t.Parallel()

		report := riverscript.ValidationReport{"MISSING INPUT   ---   width"}

		mockT := NewMockT(t)
		requireValid(mockT, report)
		require.True(t, mockT.Failed)
		require.Equal(t,
			failureString("Expected inputs to be valid, but validation reported 1 problem(s):\n\tMISSING INPUT   ---   width\n")+"\n",
			mockT.LogOutput())
	})
}

func TestRequireReportContains(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	spec, err := riverscript.NewJobSpec(nil, "job",
		riverscript.Integer("width", nil),
		riverscript.Integer("count", &riverscript.ParamOpts{Max: ptrutil.Ptr(int64(10))}),
		riverscript.Integer("retries", &riverscript.ParamOpts{UseDefault: true}),
	)
	require.NoError(t, err)

	report := riverscript.ValidateInputs(ctx, spec, map[string]*scripttype.Value{
		"count": scripttype.NewInteger(11),
	}, nil)

	t.Run("Matches", func(t *testing.T) {
		t.Parallel()

		for _, tt := range []struct {
			category riverscript.ReportCategory
			substr   string
		}{
			{riverscript.ReportCategoryMissingInput, "width"},
			{riverscript.ReportCategoryOutOfBounds, "11 is above max 10"},
			{riverscript.ReportCategoryOutOfBounds, ""},
			{riverscript.ReportCategoryFailedToSet, "retries"},
		} {
			mockT := NewMockT(t)
			requireReportContains(mockT, report, tt.category, tt.substr)
			require.False(t, mockT.Failed, "expected %s line containing %q", tt.category, tt.substr)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		t.Parallel()

		mockT := NewMockT(t)
		requireReportContains(mockT, report, riverscript.ReportCategoryWrongType, "")
		require.True(t, mockT.Failed)

		mockT = NewMockT(t)
		requireReportContains(mockT, report, riverscript.ReportCategoryMissingInput, "height")
		require.True(t, mockT.Failed)
		require.Contains(t, mockT.LogOutput(), `Expected validation report to contain a "missing input" line containing "height"`)
	})
}

// MockT mocks testingT (or *testing.T). It's used to let us verify our test
// helpers.
type MockT struct {
	Failed    bool
	logOutput bytes.Buffer
	tb        testing.TB
}

func NewMockT(tb testing.TB) *MockT {
	tb.Helper()
	return &MockT{tb: tb}
}

func (t *MockT) Errorf(format string, args ...any) {
	_, _ = format, args
}

func (t *MockT) FailNow() {
	t.Failed = true
}

func (t *MockT) Helper() {}

func (t *MockT) Log(args ...any) {
	t.tb.Log(args...)

	t.logOutput.WriteString(fmt.Sprint(args...))
	t.logOutput.WriteString("\n")
}

func (t *MockT) Logf(format string, args ...any) {
	t.tb.Logf(format, args...)

	t.logOutput.WriteString(fmt.Sprintf(format, args...))
	t.logOutput.WriteString("\n")
}

func (t *MockT) LogOutput() string {
	return t.logOutput.String()
}
