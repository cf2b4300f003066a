package scriptendpoint

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riverqueue/riverscript/internal/scriptsharedtest"
	"github.com/riverqueue/riverscript/scripttype"
)

func TestMain(m *testing.M) {
	scriptsharedtest.WrapTestMain(m)
}

type recordingReceiver struct {
	mu            sync.Mutex
	notifications []string
}

func (r *recordingReceiver) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, name)
}

func (r *recordingReceiver) Notifications() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notifications...)
}

func (r *recordingReceiver) ProcessCancelled(ctx context.Context, success bool) {
	r.record("cancelled")
}

func (r *recordingReceiver) ProcessFinished(ctx context.Context, returnCode int) {
	r.record("finished")
}

func (r *recordingReceiver) ProcessKilled(ctx context.Context, success bool) {
	r.record("killed")
}

func TestEndpoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	type testBundle struct {
		identity scripttype.Identity
		receiver *recordingReceiver
	}

	setup := func(t *testing.T) (*Endpoint, *testBundle) {
		t.Helper()

		endpoint := newEndpoint(scriptsharedtest.BaseServiceArchetype(t), &Config{})
		endpoint.testSignals.Init(t)

		return endpoint, &testBundle{
			identity: scripttype.Identity{Name: "callback-1", Category: scripttype.CategoryProcessCallback},
			receiver: &recordingReceiver{},
		}
	}

	startEndpoint := func(t *testing.T, endpoint *Endpoint) {
		t.Helper()

		require.NoError(t, endpoint.Start(ctx))
		t.Cleanup(endpoint.Stop)
	}

	t.Run("DeliversNotifications", func(t *testing.T) {
		t.Parallel()

		endpoint, bundle := setup(t)
		startEndpoint(t, endpoint)

		proxy, err := endpoint.Publish(ctx, bundle.identity, bundle.receiver)
		require.NoError(t, err)
		require.Equal(t, bundle.identity, proxy.Identity())

		require.NoError(t, proxy.ProcessFinished(ctx, 0))
		require.Equal(t, "process_finished", endpoint.testSignals.delivered.WaitOrTimeout())
		require.Equal(t, []string{"finished"}, bundle.receiver.Notifications())

		require.NoError(t, proxy.ProcessCancelled(ctx, true))
		endpoint.testSignals.delivered.WaitOrTimeout()
		require.NoError(t, proxy.ProcessKilled(ctx, false))
		endpoint.testSignals.delivered.WaitOrTimeout()

		require.ElementsMatch(t, []string{"finished", "cancelled", "killed"}, bundle.receiver.Notifications())
	})

	t.Run("QueuedBeforeStart", func(t *testing.T) {
		t.Parallel()

		endpoint, bundle := setup(t)

		proxy, err := endpoint.Publish(ctx, bundle.identity, bundle.receiver)
		require.NoError(t, err)
		require.NoError(t, proxy.ProcessKilled(ctx, true))

		endpoint.testSignals.delivered.RequireEmpty()

		startEndpoint(t, endpoint)
		require.Equal(t, "process_killed", endpoint.testSignals.delivered.WaitOrTimeout())
	})

	t.Run("PublishDuplicateIdentity", func(t *testing.T) {
		t.Parallel()

		endpoint, bundle := setup(t)

		_, err := endpoint.Publish(ctx, bundle.identity, bundle.receiver)
		require.NoError(t, err)

		_, err = endpoint.Publish(ctx, bundle.identity, &recordingReceiver{})
		require.ErrorIs(t, err, ErrIdentityInUse)
	})

	t.Run("PublishEmptyName", func(t *testing.T) {
		t.Parallel()

		endpoint, bundle := setup(t)

		_, err := endpoint.Publish(ctx, scripttype.Identity{Category: scripttype.CategoryProcessCallback}, bundle.receiver)
		require.EqualError(t, err, "identity name cannot be empty")
	})

	t.Run("RemoveUnknown", func(t *testing.T) {
		t.Parallel()

		endpoint, bundle := setup(t)

		require.ErrorIs(t, endpoint.Remove(ctx, bundle.identity), scripttype.ErrObjectNotExist)
	})

	t.Run("SendAfterRemove", func(t *testing.T) {
		t.Parallel()

		endpoint, bundle := setup(t)

		proxy, err := endpoint.Publish(ctx, bundle.identity, bundle.receiver)
		require.NoError(t, err)
		require.Equal(t, 1, endpoint.NumPublished())

		require.NoError(t, endpoint.Remove(ctx, bundle.identity))
		require.Zero(t, endpoint.NumPublished())

		require.ErrorIs(t, proxy.ProcessFinished(ctx, 0), scripttype.ErrObjectNotExist)
	})

	t.Run("QueuedNotificationDroppedAfterRemove", func(t *testing.T) {
		t.Parallel()

		endpoint, bundle := setup(t)

		proxy, err := endpoint.Publish(ctx, bundle.identity, bundle.receiver)
		require.NoError(t, err)
		require.NoError(t, proxy.ProcessFinished(ctx, 3))
		require.NoError(t, endpoint.Remove(ctx, bundle.identity))

		startEndpoint(t, endpoint)
		require.Equal(t, "process_finished", endpoint.testSignals.dropped.WaitOrTimeout())
		require.Empty(t, bundle.receiver.Notifications())
	})

	t.Run("SendBlockedOnFullQueueRespectsContext", func(t *testing.T) {
		t.Parallel()

		endpoint := newEndpoint(scriptsharedtest.BaseServiceArchetype(t), &Config{QueueSize: 1})
		bundle := &testBundle{
			identity: scripttype.Identity{Name: "callback-1", Category: scripttype.CategoryProcessCallback},
			receiver: &recordingReceiver{},
		}

		proxy, err := endpoint.Publish(ctx, bundle.identity, bundle.receiver)
		require.NoError(t, err)
		require.NoError(t, proxy.ProcessFinished(ctx, 0))

		cancelledCtx, cancel := context.WithCancel(ctx)
		cancel()

		require.ErrorIs(t, proxy.ProcessFinished(cancelledCtx, 0), context.Canceled)
	})

	t.Run("StartStopIdempotent", func(t *testing.T) {
		t.Parallel()

		endpoint, _ := setup(t)

		require.NoError(t, endpoint.Start(ctx))
		require.NoError(t, endpoint.Start(ctx))
		endpoint.Stop()
		endpoint.Stop()
	})
}

func TestConfigMustValidate(t *testing.T) {
	t.Parallel()

	require.PanicsWithValue(t, "Config.NumDispatchers must be greater or equal to 0", func() {
		NewEndpoint(&Config{NumDispatchers: -1})
	})
	require.PanicsWithValue(t, "Config.QueueSize must be greater or equal to 0", func() {
		NewEndpoint(&Config{QueueSize: -1})
	})
}

func TestNewEndpointDefaults(t *testing.T) {
	t.Parallel()

	endpoint := NewEndpoint(&Config{})
	require.Equal(t, NumDispatchersDefault, endpoint.config.NumDispatchers)
	require.Equal(t, QueueSizeDefault, endpoint.config.QueueSize)
	require.Equal(t, QueueSizeDefault, cap(endpoint.queue))

	endpoint = NewEndpoint(&Config{NumDispatchers: 5, QueueSize: 7})
	require.Equal(t, 5, endpoint.config.NumDispatchers)
	require.Equal(t, 7, cap(endpoint.queue))
}
