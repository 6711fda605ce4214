package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Config carries the registry's collaborators. The zero value is usable:
// logging is disabled and the system clock is used.
type Config struct {
	Logger zerolog.Logger
	Clock  Clock
}

// Registry owns the mapping from session identifier to live session. It
// decides when the underlying resource is created and destroyed, independent
// of any single acquire/release pair: a session whose reference count drops
// to zero stays resident until an explicit close, an idle sweep, or an
// external termination takes it out.
type Registry[R Resource] struct {
	provider Provider[R]
	logger   zerolog.Logger
	clock    Clock

	// flights deduplicates in-flight creations per identifier so
	// concurrent first-acquires converge on a single provisioning call.
	flights singleflight.Group

	// mu guards sessions and every field of the sessions it holds. It is
	// never held across Provision, Teardown, or resource probes.
	mu       sync.Mutex
	sessions map[string]*Session[R]
}

// New creates an empty registry backed by the given provider.
func New[R Resource](provider Provider[R], cfg Config) *Registry[R] {
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Registry[R]{
		provider: provider,
		logger:   cfg.Logger,
		clock:    clock,
		sessions: make(map[string]*Session[R]),
	}
}

// Acquire returns the resource for id, creating the session first if none
// exists. The reference count is incremented and the last-access time
// refreshed; the returned ReleaseFunc gives the reference back and is safe
// to call more than once.
//
// Provisioning failures are returned unchanged and leave no session behind.
func (r *Registry[R]) Acquire(ctx context.Context, id string, caller Caller) (R, ReleaseFunc, error) {
	var zero R
	for {
		if res, release, ok := r.retainExisting(id); ok {
			return res, release, nil
		}

		v, err, _ := r.flights.Do(id, func() (interface{}, error) {
			return r.create(ctx, id, caller)
		})
		if err != nil {
			return zero, nil, err
		}

		// The session may have been force-closed between the flight
		// completing and us taking a reference. Start over if so.
		if res, release, ok := r.retain(id, v.(*Session[R])); ok {
			return res, release, nil
		}
	}
}

// GetOrCreate is the same creation/reuse path as Acquire but returns the raw
// resource without a bound release. The reference it takes stays outstanding
// until a matching Release or an explicit close, which pins the session for
// callers that manage lifecycles via CloseSession.
func (r *Registry[R]) GetOrCreate(ctx context.Context, id string, caller Caller) (R, error) {
	res, _, err := r.Acquire(ctx, id, caller)
	return res, err
}

// Release gives back one reference to id. Releasing an unknown session, or
// one whose count is already zero, is a no-op.
func (r *Registry[R]) Release(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	released := ok && s.refCount > 0
	if released {
		s.refCount--
	}
	r.mu.Unlock()
	if !released {
		r.logger.Debug().Str("session", id).Msg("release without outstanding reference ignored")
	}
}

// CloseSession removes id from the registry and tears its resource down.
// The entry is gone before teardown runs, so no new acquire can land on a
// closing session. Closing ignores outstanding references: holders of the
// resource will see errors from it on next use.
//
// Returns (false, nil) when no session exists for id. A teardown failure is
// returned alongside found=true; the session is removed regardless.
func (r *Registry[R]) CloseSession(ctx context.Context, id string) (bool, error) {
	s, ok := r.claim(id)
	if !ok {
		return false, nil
	}
	if s.refCount > 0 {
		r.logger.Warn().
			Str("session", id).
			Int("ref_count", s.refCount).
			Msg("closing session with outstanding references")
	}
	if err := r.teardownClaimed(ctx, s); err != nil {
		return true, err
	}
	r.logger.Info().Str("session", id).Msg("session closed")
	return true, nil
}

// List returns a snapshot of the current session identifiers, in no
// particular order.
func (r *Registry[R]) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Inspect returns a snapshot of every session, probing each resource for
// liveness and a descriptor. Probes run outside the registry lock, so a slow
// or dead resource does not block concurrent registry operations.
func (r *Registry[R]) Inspect() []Info {
	r.mu.Lock()
	infos := make([]Info, 0, len(r.sessions))
	resources := make([]R, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, Info{
			ID:           s.id,
			RefCount:     s.refCount,
			CreatedAt:    s.createdAt,
			LastAccessed: s.lastAccessed,
		})
		resources = append(resources, s.resource)
	}
	r.mu.Unlock()

	for i, res := range resources {
		infos[i].Alive = res.Alive()
		infos[i].Descriptor = res.Describe()
	}
	return infos
}

// CloseAll tears down every resident session concurrently. Individual
// teardown failures are logged and do not stop the others; the first one is
// returned after all attempts finish. The mapping is cleared up front, so
// the registry holds no sessions once this returns. Intended as the terminal
// shutdown path.
func (r *Registry[R]) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	claimed := make([]*Session[R], 0, len(r.sessions))
	for _, s := range r.sessions {
		s.closing = true
		claimed = append(claimed, s)
	}
	r.sessions = make(map[string]*Session[R])
	r.mu.Unlock()

	var g errgroup.Group
	for _, s := range claimed {
		s := s
		g.Go(func() error {
			return r.teardownClaimed(ctx, s)
		})
	}
	err := g.Wait()
	r.logger.Info().Int("count", len(claimed)).Msg("all sessions closed")
	return err
}

// CleanupIdle closes every session with no outstanding references whose last
// access is at least olderThan ago. Zero sweeps all currently idle sessions
// regardless of age. Sessions with active references are never touched.
//
// Returns the number of sessions claimed for closure; individual teardown
// failures are logged and do not reduce the count.
func (r *Registry[R]) CleanupIdle(ctx context.Context, olderThan time.Duration) int {
	now := r.clock.Now()

	r.mu.Lock()
	var claimed []*Session[R]
	for id, s := range r.sessions {
		if s.refCount > 0 || s.closing {
			continue
		}
		if now.Sub(s.lastAccessed) >= olderThan {
			s.closing = true
			delete(r.sessions, id)
			claimed = append(claimed, s)
		}
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range claimed {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.teardownClaimed(ctx, s)
		}()
	}
	wg.Wait()

	if len(claimed) > 0 {
		r.logger.Info().
			Int("count", len(claimed)).
			Dur("older_than", olderThan).
			Msg("idle sessions cleaned up")
	}
	return len(claimed)
}

// retainExisting takes a reference on id if a live session already exists.
func (r *Registry[R]) retainExisting(id string) (R, ReleaseFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero R
	s, ok := r.sessions[id]
	if !ok || s.closing {
		return zero, nil, false
	}
	s.refCount++
	s.lastAccessed = r.clock.Now()
	return s.resource, r.releaseOnce(id), true
}

// retain takes a reference on the specific session returned by a creation
// flight. It fails if that exact session is no longer resident, which means
// it was closed between the flight completing and this reference being
// taken.
func (r *Registry[R]) retain(id string, created *Session[R]) (R, ReleaseFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero R
	s, ok := r.sessions[id]
	if !ok || s != created || s.closing {
		return zero, nil, false
	}
	s.refCount++
	s.lastAccessed = r.clock.Now()
	return s.resource, r.releaseOnce(id), true
}

// create provisions a new session for id. It runs inside a singleflight, so
// at most one provisioning call is in flight per identifier; losers of the
// race share the winner's session. The session is only visible in the map
// once fully initialized.
func (r *Registry[R]) create(ctx context.Context, id string, caller Caller) (*Session[R], error) {
	// A session may have landed between the caller's map check and the
	// flight starting.
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok && !s.closing {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	res, teardown, err := r.provider.Provision(ctx, caller)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	s := &Session[R]{
		id:           id,
		resource:     res,
		teardown:     teardown,
		createdAt:    now,
		lastAccessed: now,
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.watchTermination(s)
	r.logger.Info().
		Str("session", id).
		Str("caller", caller.Name).
		Msg("session created")
	return s, nil
}

// watchTermination subscribes to the resource's own termination signal, if
// it exposes one. An external death removes the session entry without
// invoking teardown: the resource is already gone and teardown would be
// redundant. The identity check keeps a late signal from an old resource
// from evicting a newer session reusing the same identifier.
func (r *Registry[R]) watchTermination(s *Session[R]) {
	n, ok := any(s.resource).(TerminationNotifier)
	if !ok {
		return
	}
	n.OnTerminated(func() {
		r.mu.Lock()
		cur, ok := r.sessions[s.id]
		claimed := ok && cur == s && !cur.closing
		if claimed {
			cur.closing = true
			delete(r.sessions, s.id)
		}
		r.mu.Unlock()
		if claimed {
			r.logger.Info().Str("session", s.id).Msg("session resource terminated externally")
		}
	})
}

// claim removes id from the mapping and marks it closing, all in one
// critical section. Exactly one closure path can claim a given session,
// which is what keeps teardown to at most one invocation.
func (r *Registry[R]) claim(id string) (*Session[R], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.closing {
		return nil, false
	}
	s.closing = true
	delete(r.sessions, id)
	return s, true
}

// teardownClaimed invokes teardown for a session already removed from the
// mapping. The session is gone from the registry's perspective whether or
// not teardown succeeds.
func (r *Registry[R]) teardownClaimed(ctx context.Context, s *Session[R]) error {
	if err := s.teardown(ctx); err != nil {
		r.logger.Error().Err(err).Str("session", s.id).Msg("session teardown failed")
		return fmt.Errorf("close session %q: %w", s.id, err)
	}
	return nil
}

// releaseOnce binds Release(id) to a single-use func so one acquire can
// never give back more than one reference.
func (r *Registry[R]) releaseOnce(id string) ReleaseFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.Release(id)
		})
	}
}
