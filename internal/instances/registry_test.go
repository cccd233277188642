package instances

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/twelvestocks/visual-studio-mcp-server/internal/automation/automationtest"
	"github.com/twelvestocks/visual-studio-mcp-server/internal/errdefs"
)

func newTestRegistry(t *testing.T, discovery *automationtest.FakeDiscovery) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	// No periodic sweep; tests drive Sweep explicitly.
	return NewRegistry(ctx, discovery, Options{ProbeTimeout: time.Second}, logr.Discard())
}

func TestResolveAcquiresAndCaches(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	discovery := automationtest.NewFakeDiscovery(root)
	reg := newTestRegistry(t, discovery)

	h, err := reg.Resolve(context.Background(), 15420)
	require.NoError(t, err)
	require.NotNil(t, h)
	require.Equal(t, int32(15420), h.PID)
	require.EqualValues(t, 1, discovery.AcquireCalls.Load())

	// Second resolve is served from the cache: no new acquisition.
	h2, err := reg.Resolve(context.Background(), 15420)
	require.NoError(t, err)
	require.NotNil(t, h2)
	require.Equal(t, h.Generation, h2.Generation)
	require.EqualValues(t, 1, discovery.AcquireCalls.Load())
}

func TestResolveUnknownPidReturnsNilNotError(t *testing.T) {
	t.Parallel()

	discovery := automationtest.NewFakeDiscovery()
	reg := newTestRegistry(t, discovery)

	h, err := reg.Resolve(context.Background(), 4242)
	require.NoError(t, err)
	require.Nil(t, h)
	require.EqualValues(t, 1, discovery.AcquireCalls.Load())
}

func TestResolveMakesExactlyOneAcquisitionAttemptPerCall(t *testing.T) {
	t.Parallel()

	discovery := automationtest.NewFakeDiscovery()
	reg := newTestRegistry(t, discovery)

	for i := 1; i <= 3; i++ {
		h, err := reg.Resolve(context.Background(), 100)
		require.NoError(t, err)
		require.Nil(t, h)
		require.EqualValues(t, int64(i), discovery.AcquireCalls.Load())
	}
}

func TestResolveAfterProbeFailureDropsEntryAndReacquires(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	discovery := automationtest.NewFakeDiscovery(root)
	reg := newTestRegistry(t, discovery)

	h, err := reg.Resolve(context.Background(), 15420)
	require.NoError(t, err)
	require.NotNil(t, h)

	// The instance dies: probes fail and discovery no longer offers it.
	root.SetPingError(errors.New("RPC server unavailable"))
	discovery.RemoveRoot(15420)

	h, err = reg.Resolve(context.Background(), 15420)
	require.NoError(t, err)
	require.Nil(t, h)
	require.EqualValues(t, 2, discovery.AcquireCalls.Load())

	// The dead entry is gone from the registry's state.
	infos, err := reg.Snapshot(context.Background())
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestSweepPrunesDeadHandles(t *testing.T) {
	t.Parallel()

	healthy := automationtest.NewFakeRoot(100)
	dying := automationtest.NewFakeRoot(200)
	discovery := automationtest.NewFakeDiscovery(healthy, dying)
	reg := newTestRegistry(t, discovery)

	_, err := reg.Resolve(context.Background(), 100)
	require.NoError(t, err)
	_, err = reg.Resolve(context.Background(), 200)
	require.NoError(t, err)

	dying.SetPingError(errors.New("instance exited"))
	require.NoError(t, reg.Sweep(context.Background()))

	infos, err := reg.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, int32(100), infos[0].PID)
}

func TestPeriodicSweepRunsOnItsOwn(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(100)
	discovery := automationtest.NewFakeDiscovery(root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := NewRegistry(ctx, discovery, Options{
		SweepInterval: 20 * time.Millisecond,
		ProbeTimeout:  time.Second,
	}, logr.Discard())

	_, err := reg.Resolve(context.Background(), 100)
	require.NoError(t, err)

	root.SetPingError(errors.New("instance exited"))

	require.Eventually(t, func() bool {
		infos, snapErr := reg.Snapshot(context.Background())
		return snapErr == nil && len(infos) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegisterReplacesExistingEntry(t *testing.T) {
	t.Parallel()

	first := automationtest.NewFakeRoot(300)
	discovery := automationtest.NewFakeDiscovery(first)
	reg := newTestRegistry(t, discovery)

	h1, err := reg.Resolve(context.Background(), 300)
	require.NoError(t, err)

	replacement := automationtest.NewFakeRoot(300)
	h2, err := reg.Register(context.Background(), 300, replacement)
	require.NoError(t, err)
	require.Greater(t, h2.Generation, h1.Generation)

	infos, err := reg.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, h2.Generation, infos[0].Generation)
}

func TestRegisterPanicsOnNonPositivePid(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry(t, automationtest.NewFakeDiscovery())

	require.Panics(t, func() {
		_, _ = reg.Register(context.Background(), 0, automationtest.NewFakeRoot(0))
	})
	require.Panics(t, func() {
		_, _ = reg.Register(context.Background(), -5, automationtest.NewFakeRoot(-5))
	})
}

func TestCallOnStuckHandleSurfacesTimeout(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(15420)
	discovery := automationtest.NewFakeDiscovery(root)
	reg := newTestRegistry(t, discovery)

	h, err := reg.Resolve(context.Background(), 15420)
	require.NoError(t, err)
	require.NotNil(t, h)

	// An operation wedged inside the instance must come back as a timeout
	// fault, not a raw executor error.
	release := make(chan struct{})
	defer close(release)
	err = h.Call(context.Background(), 50*time.Millisecond, "get_call_stack", func() error {
		<-release
		return nil
	})
	require.Error(t, err)
	require.True(t, errdefs.IsTimeout(err))
}

func TestProbePanicCountsAsFailure(t *testing.T) {
	t.Parallel()

	root := automationtest.NewFakeRoot(400)
	discovery := automationtest.NewFakeDiscovery(root)
	reg := newTestRegistry(t, discovery)

	_, err := reg.Resolve(context.Background(), 400)
	require.NoError(t, err)

	root.SetPingError(nil)
	root.PanicOnPing.Store(true)
	require.NoError(t, reg.Sweep(context.Background()))

	infos, err := reg.Snapshot(context.Background())
	require.NoError(t, err)
	require.Empty(t, infos)
}
