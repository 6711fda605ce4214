package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeResource is an in-memory stand-in for an expensive external resource.
type fakeResource struct {
	mu          sync.Mutex
	alive       bool
	descriptor  string
	terminated  bool
	callbacks   []func()
	teardownErr error

	// teardownStarted, if set, is closed when teardown begins.
	// teardownGate, if set, blocks teardown until closed.
	teardownStarted chan struct{}
	teardownGate    chan struct{}
}

func (f *fakeResource) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeResource) Describe() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.alive {
		return ""
	}
	return f.descriptor
}

func (f *fakeResource) OnTerminated(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, fn)
}

// Terminate simulates the resource dying out-of-band, firing the
// registered termination callbacks.
func (f *fakeResource) Terminate() {
	f.mu.Lock()
	if f.terminated {
		f.mu.Unlock()
		return
	}
	f.terminated = true
	f.alive = false
	callbacks := f.callbacks
	f.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// kill marks the resource dead without firing any termination signal,
// simulating a resource that became unreachable silently.
func (f *fakeResource) kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
}

func (f *fakeResource) failTeardown(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardownErr = err
}

// fakeProvider provisions fakeResources and records every call.
type fakeProvider struct {
	mu           sync.Mutex
	provisions   int
	teardowns    int
	resources    []*fakeResource
	provisionErr error

	// blockProvision, if set, makes Provision wait until it is closed.
	blockProvision chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{}
}

func (p *fakeProvider) Provision(ctx context.Context, caller Caller) (*fakeResource, Teardown, error) {
	p.mu.Lock()
	gate := p.blockProvision
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provisionErr != nil {
		return nil, nil, p.provisionErr
	}
	res := &fakeResource{
		alive:      true,
		descriptor: fmt.Sprintf("resource-%d", p.provisions),
	}
	p.provisions++
	p.resources = append(p.resources, res)

	teardown := func(ctx context.Context) error {
		if res.teardownStarted != nil {
			close(res.teardownStarted)
		}
		if res.teardownGate != nil {
			<-res.teardownGate
		}
		p.mu.Lock()
		p.teardowns++
		p.mu.Unlock()
		res.mu.Lock()
		res.alive = false
		err := res.teardownErr
		res.mu.Unlock()
		return err
	}
	return res, teardown, nil
}

func (p *fakeProvider) failProvision(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.provisionErr = err
}

func (p *fakeProvider) provisionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.provisions
}

func (p *fakeProvider) teardownCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.teardowns
}

func (p *fakeProvider) resource(i int) *fakeResource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resources[i]
}

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func infoFor(t *testing.T, r *Registry[*fakeResource], id string) Info {
	t.Helper()
	for _, info := range r.Inspect() {
		if info.ID == id {
			return info
		}
	}
	t.Fatalf("no session %q in registry", id)
	return Info{}
}

func TestRegistry_AcquireCreatesAndReuses(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	res1, release1, err := reg.Acquire(ctx, "research", caller)
	require.NoError(t, err)
	require.NotNil(t, res1)
	assert.Equal(t, 1, provider.provisionCount())
	assert.Equal(t, 1, infoFor(t, reg, "research").RefCount)

	res2, release2, err := reg.Acquire(ctx, "research", caller)
	require.NoError(t, err)
	assert.Same(t, res1, res2)
	assert.Equal(t, 1, provider.provisionCount(), "second acquire must reuse, not re-provision")
	assert.Equal(t, 2, infoFor(t, reg, "research").RefCount)

	release1()
	release2()
	assert.Equal(t, 0, infoFor(t, reg, "research").RefCount)
	assert.Contains(t, reg.List(), "research", "idle session stays resident")
}

func TestRegistry_AcquireDistinctIdentifiers(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	resA, releaseA, err := reg.Acquire(ctx, "a", caller)
	require.NoError(t, err)
	resB, releaseB, err := reg.Acquire(ctx, "b", caller)
	require.NoError(t, err)

	assert.NotSame(t, resA, resB)
	assert.Equal(t, 2, provider.provisionCount())
	assert.ElementsMatch(t, []string{"a", "b"}, reg.List())

	releaseA()
	releaseB()
}

func TestRegistry_ProvisionFailurePropagatesUnchanged(t *testing.T) {
	provider := newFakeProvider()
	errBoom := errors.New("browser refused to start")
	provider.failProvision(errBoom)

	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	_, release, err := reg.Acquire(ctx, "doomed", caller)
	require.Error(t, err)
	assert.Equal(t, errBoom, err, "provisioning failure must not be wrapped")
	assert.Nil(t, release)
	assert.Empty(t, reg.List(), "no session may be registered on failure")

	// The identifier is not poisoned: once the provider recovers,
	// creation works again.
	provider.failProvision(nil)
	_, release, err = reg.Acquire(ctx, "doomed", caller)
	require.NoError(t, err)
	release()
}

func TestRegistry_ReleaseIsIdempotent(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	_, release, err := reg.Acquire(ctx, "r", caller)
	require.NoError(t, err)

	release()
	release() // second call through the same func must not double-release
	assert.Equal(t, 0, infoFor(t, reg, "r").RefCount)

	reg.Release("r") // already at zero: no-op
	assert.Equal(t, 0, infoFor(t, reg, "r").RefCount)

	assert.NotPanics(t, func() { reg.Release("ghost") })
}

func TestRegistry_ConcurrentFirstAcquire(t *testing.T) {
	provider := newFakeProvider()
	gate := make(chan struct{})
	provider.blockProvision = gate

	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("racer")

	const n = 8
	var started, done sync.WaitGroup
	started.Add(n)
	done.Add(n)
	resources := make([]*fakeResource, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer done.Done()
			started.Done()
			res, release, err := reg.Acquire(ctx, "shared", caller)
			resources[i] = res
			errs[i] = err
			_ = release // references stay outstanding for the assertion below
		}(i)
	}

	// Every caller is inside Acquire before provisioning can complete.
	started.Wait()
	close(gate)
	done.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, resources[0], resources[i], "all callers must converge on one resource")
	}
	assert.Equal(t, 1, provider.provisionCount(), "concurrent first-acquire must provision exactly once")
	assert.Equal(t, n, infoFor(t, reg, "shared").RefCount)
	assert.Len(t, reg.List(), 1)
}

func TestRegistry_GetOrCreatePinsSession(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	res1, err := reg.GetOrCreate(ctx, "named", caller)
	require.NoError(t, err)
	assert.Equal(t, 1, infoFor(t, reg, "named").RefCount)

	res2, err := reg.GetOrCreate(ctx, "named", caller)
	require.NoError(t, err)
	assert.Same(t, res1, res2)
	assert.Equal(t, 1, provider.provisionCount())
	assert.Equal(t, 2, infoFor(t, reg, "named").RefCount)

	// Pinned sessions survive even a sweep of everything unreferenced.
	assert.Equal(t, 0, reg.CleanupIdle(ctx, 0))
	assert.Contains(t, reg.List(), "named")

	found, err := reg.CloseSession(ctx, "named")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, reg.List())
}

func TestRegistry_CloseSession(t *testing.T) {
	ctx := context.Background()
	caller := NewCaller("test")

	t.Run("unknown identifier", func(t *testing.T) {
		provider := newFakeProvider()
		reg := New[*fakeResource](provider, Config{})

		found, err := reg.CloseSession(ctx, "missing")
		assert.False(t, found)
		assert.NoError(t, err)
		assert.Equal(t, 0, provider.teardownCount())
	})

	t.Run("existing session", func(t *testing.T) {
		provider := newFakeProvider()
		reg := New[*fakeResource](provider, Config{})
		_, release, err := reg.Acquire(ctx, "s", caller)
		require.NoError(t, err)
		release()

		found, err := reg.CloseSession(ctx, "s")
		assert.True(t, found)
		assert.NoError(t, err)
		assert.Empty(t, reg.List())
		assert.Equal(t, 1, provider.teardownCount())

		// Closing again reports the session as gone.
		found, err = reg.CloseSession(ctx, "s")
		assert.False(t, found)
		assert.NoError(t, err)
		assert.Equal(t, 1, provider.teardownCount(), "teardown must run at most once")
	})

	t.Run("teardown failure still removes the session", func(t *testing.T) {
		provider := newFakeProvider()
		reg := New[*fakeResource](provider, Config{})
		_, release, err := reg.Acquire(ctx, "broken", caller)
		require.NoError(t, err)
		release()
		provider.resource(0).failTeardown(errors.New("teardown exploded"))

		found, err := reg.CloseSession(ctx, "broken")
		assert.True(t, found)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"broken"`)
		assert.Empty(t, reg.List())
	})
}

func TestRegistry_CloseSessionRemovesEntryBeforeTeardownCompletes(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	res, release, err := reg.Acquire(ctx, "slow", caller)
	require.NoError(t, err)
	release()
	res.teardownStarted = make(chan struct{})
	res.teardownGate = make(chan struct{})

	done := make(chan struct{})
	var found bool
	var closeErr error
	go func() {
		defer close(done)
		found, closeErr = reg.CloseSession(ctx, "slow")
	}()

	<-res.teardownStarted
	assert.NotContains(t, reg.List(), "slow", "entry must be gone while teardown is still pending")

	// A new acquire during the pending teardown gets a fresh session.
	res2, release2, err := reg.Acquire(ctx, "slow", caller)
	require.NoError(t, err)
	assert.NotSame(t, res, res2)
	assert.Equal(t, 2, provider.provisionCount())
	release2()

	close(res.teardownGate)
	<-done
	assert.True(t, found)
	assert.NoError(t, closeErr)
}

func TestRegistry_ForceCloseIgnoresOutstandingReferences(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	res, release, err := reg.Acquire(ctx, "held", caller)
	require.NoError(t, err)
	// No release: the reference is still outstanding.

	found, err := reg.CloseSession(ctx, "held")
	assert.True(t, found)
	assert.NoError(t, err)
	assert.Empty(t, reg.List())
	assert.False(t, res.Alive(), "resource is torn down despite the holder")

	// The stale release is harmless.
	assert.NotPanics(t, func() { release() })
}

func TestRegistry_ExternalTerminationRemovesWithoutTeardown(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	res, release, err := reg.Acquire(ctx, "ext", caller)
	require.NoError(t, err)
	release()

	res.Terminate()
	assert.Empty(t, reg.List(), "externally terminated session must be removed")
	assert.Equal(t, 0, provider.teardownCount(), "teardown is redundant after external termination")

	// The identifier is free again; a new acquire provisions a fresh resource.
	res2, release2, err := reg.Acquire(ctx, "ext", caller)
	require.NoError(t, err)
	assert.NotSame(t, res, res2)
	assert.Equal(t, 2, provider.provisionCount())
	release2()
}

func TestRegistry_StaleTerminationSignalIgnored(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	res1, release1, err := reg.Acquire(ctx, "aba", caller)
	require.NoError(t, err)
	release1()
	found, err := reg.CloseSession(ctx, "aba")
	require.True(t, found)
	require.NoError(t, err)

	_, release2, err := reg.Acquire(ctx, "aba", caller)
	require.NoError(t, err)

	// The old resource's termination signal arrives late. It must not
	// evict the successor session that reuses the identifier.
	res1.Terminate()
	assert.Contains(t, reg.List(), "aba")
	assert.Equal(t, 1, infoFor(t, reg, "aba").RefCount)
	release2()
}

func TestRegistry_CloseAll(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	for _, id := range []string{"a", "b", "c"} {
		_, release, err := reg.Acquire(ctx, id, caller)
		require.NoError(t, err)
		release()
	}
	provider.resource(1).failTeardown(errors.New("teardown exploded"))

	err := reg.CloseAll(ctx)
	require.Error(t, err, "the one failed teardown is reported")
	assert.Empty(t, reg.List(), "all sessions are removed regardless of failures")
	assert.Equal(t, 3, provider.teardownCount(), "one failure must not stop the others")
}

func TestRegistry_CloseAllEmpty(t *testing.T) {
	reg := New[*fakeResource](newFakeProvider(), Config{})
	assert.NoError(t, reg.CloseAll(context.Background()))
}

func TestRegistry_CleanupIdleSweepsOnlyUnreferenced(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	_, releaseA, err := reg.Acquire(ctx, "a", caller)
	require.NoError(t, err)
	_, releaseB, err := reg.Acquire(ctx, "b", caller)
	require.NoError(t, err)
	releaseA() // "a" idle, "b" still referenced

	removed := reg.CleanupIdle(ctx, 0)
	assert.Equal(t, 1, removed)
	assert.ElementsMatch(t, []string{"b"}, reg.List())
	assert.Equal(t, 1, provider.teardownCount())

	releaseB()
}

func TestRegistry_CleanupIdleRespectsAge(t *testing.T) {
	provider := newFakeProvider()
	clock := newFakeClock()
	reg := New[*fakeResource](provider, Config{Clock: clock})
	ctx := context.Background()
	caller := NewCaller("test")

	_, releaseOld, err := reg.Acquire(ctx, "old", caller)
	require.NoError(t, err)
	releaseOld()
	_, releasePinned, err := reg.Acquire(ctx, "pinned", caller)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)

	_, releaseFresh, err := reg.Acquire(ctx, "fresh", caller)
	require.NoError(t, err)
	releaseFresh()

	removed := reg.CleanupIdle(ctx, 5*time.Minute)
	assert.Equal(t, 1, removed, "only the stale idle session is swept")
	assert.ElementsMatch(t, []string{"pinned", "fresh"}, reg.List())

	releasePinned()
}

func TestRegistry_CleanupIdleCountsFailedTeardowns(t *testing.T) {
	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("test")

	for _, id := range []string{"x", "y"} {
		_, release, err := reg.Acquire(ctx, id, caller)
		require.NoError(t, err)
		release()
	}
	provider.resource(0).failTeardown(errors.New("teardown exploded"))

	removed := reg.CleanupIdle(ctx, 0)
	assert.Equal(t, 2, removed, "count reflects sessions claimed, not teardown outcomes")
	assert.Empty(t, reg.List())
	assert.Equal(t, 2, provider.teardownCount())
}

func TestRegistry_InspectProbesResources(t *testing.T) {
	provider := newFakeProvider()
	clock := newFakeClock()
	start := clock.Now()
	reg := New[*fakeResource](provider, Config{Clock: clock})
	ctx := context.Background()
	caller := NewCaller("test")

	res, release, err := reg.Acquire(ctx, "watch", caller)
	require.NoError(t, err)

	info := infoFor(t, reg, "watch")
	assert.Equal(t, 1, info.RefCount)
	assert.True(t, info.CreatedAt.Equal(start))
	assert.True(t, info.LastAccessed.Equal(start))
	assert.True(t, info.Alive)
	assert.Equal(t, "resource-0", info.Descriptor)

	clock.Advance(time.Minute)
	_, release2, err := reg.Acquire(ctx, "watch", caller)
	require.NoError(t, err)
	info = infoFor(t, reg, "watch")
	assert.True(t, info.LastAccessed.Equal(start.Add(time.Minute)), "acquire refreshes last access")
	assert.True(t, info.CreatedAt.Equal(start), "creation time is stable")

	// A silently dead resource reports a degraded status instead of failing.
	res.kill()
	info = infoFor(t, reg, "watch")
	assert.False(t, info.Alive)
	assert.Equal(t, "", info.Descriptor)
	assert.Contains(t, reg.List(), "watch", "degraded sessions stay listed until closed")

	release()
	release2()
}

func TestRegistry_NoGoroutineLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	provider := newFakeProvider()
	reg := New[*fakeResource](provider, Config{})
	ctx := context.Background()
	caller := NewCaller("leak")

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i)
		_, release, err := reg.Acquire(ctx, id, caller)
		require.NoError(t, err)
		release()
	}

	found, err := reg.CloseSession(ctx, "s0")
	require.True(t, found)
	require.NoError(t, err)
	assert.Equal(t, 4, reg.CleanupIdle(ctx, 0))
	require.NoError(t, reg.CloseAll(ctx))
}
