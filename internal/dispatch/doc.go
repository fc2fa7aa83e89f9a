// Package dispatch resolves runtime faults to registered handlers and
// guards their invocation.
//
// The Registry maps (fault kind, optional route scope) pairs to handlers,
// with hierarchy-aware fallback along the kind's ancestor chain and a
// memoization cache that makes repeat resolutions O(1). The Guard wraps
// invocation of the resolved handler: it applies the logging policy,
// renders a default response when no handler matches, and contains
// secondary faults so that handling an error can never crash the request
// loop.
//
// Registration must complete before the first resolution. The cache is
// populated but never invalidated, so a handler added after a miss has
// been cached for its exact kind/scope pair will be shadowed by the stale
// cached absence.
package dispatch
