// Package session provides a registry that decouples the lifetime of an
// expensive, externally-provisioned resource from the lifetime of the
// individual operations that use it.
//
// Callers acquire a handle to a named session, use the resource behind it,
// and release the handle; the registry decides when the resource is actually
// created and destroyed. A session whose reference count drops to zero stays
// resident, keeping the resource warm across caller disconnects, until an
// explicit close, an idle sweep, or the resource's own out-of-band
// termination removes it.
//
// # Lifecycle
//
// A session is created on the first Acquire or GetOrCreate for an identifier
// not yet present. Concurrent first-acquires for the same identifier are
// deduplicated: exactly one Provision call runs and every caller converges
// on the session it produced. A session is destroyed by CloseSession,
// CloseAll, CleanupIdle, or the resource terminating externally; in every
// case the mapping entry is removed before teardown runs and teardown is
// invoked at most once.
//
// # Authority
//
// An explicit close is authoritative: it tears the resource down even while
// other callers hold outstanding references. Those holders see errors from
// the defunct resource on next use. This is deliberate, not a race to be
// fixed at call sites.
package session
