package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultID is the session identifier used on behalf of callers that do not
// name one. It is an ordinary key in the identifier space, so single-session
// and multi-session callers share the same code path.
const DefaultID = "default"

// Caller identifies who asked for a session. It is forwarded to the Provider
// on creation so provisioned resources can be attributed.
type Caller struct {
	ID   string
	Name string
}

// NewCaller mints a caller identity with a fresh unique ID.
func NewCaller(name string) Caller {
	return Caller{
		ID:   uuid.New().String(),
		Name: name,
	}
}

// Teardown releases a session's underlying resource. The registry invokes it
// at most once per session; holders of the resource must never call it.
type Teardown func(ctx context.Context) error

// ReleaseFunc returns the reference taken by an Acquire. Calling it more than
// once has no further effect.
type ReleaseFunc func()

// Resource is the minimal surface the registry needs from the values it
// manages. Both probes are best-effort: they must not panic or block
// indefinitely when the underlying resource has died, they report a degraded
// state instead (Alive false, Describe empty).
type Resource interface {
	// Alive reports whether the resource is still usable.
	Alive() bool

	// Describe returns a short human-readable descriptor of the resource's
	// current state, such as the URL it is pointed at.
	Describe() string
}

// TerminationNotifier is implemented by resources that can terminate on
// their own, outside the registry's control. The registry registers a
// callback at session creation so an out-of-band death removes the session
// entry instead of leaving a zombie behind.
type TerminationNotifier interface {
	// OnTerminated registers fn to run when the resource terminates
	// externally. Implementations fire fn at most once.
	OnTerminated(fn func())
}

// Provider provisions the expensive underlying resource for a new session.
// It is invoked at most once per session creation, even when multiple
// callers race to create the same identifier.
type Provider[R Resource] interface {
	Provision(ctx context.Context, caller Caller) (R, Teardown, error)
}

// Clock abstracts time for idle-eviction decisions so tests can control it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Session binds an identifier to one live resource instance. All fields are
// guarded by the owning registry's mutex; sessions never leave the registry,
// callers only ever receive the resource and an Info snapshot.
type Session[R Resource] struct {
	id       string
	resource R
	teardown Teardown

	// refCount is the number of outstanding acquires not yet released.
	// It never goes negative and does not keep the session alive on its
	// own: an explicit close wins over holders.
	refCount int

	createdAt    time.Time
	lastAccessed time.Time

	// closing marks that teardown has been claimed for this session,
	// preventing a second closure path from invoking it again.
	closing bool
}

// Info is a point-in-time snapshot of one session, including a best-effort
// probe of the resource taken at read time.
type Info struct {
	ID           string
	RefCount     int
	CreatedAt    time.Time
	LastAccessed time.Time
	Alive        bool
	Descriptor   string
}
