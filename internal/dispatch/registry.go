package dispatch

import (
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"faultgate/internal/fault"
)

// Handler renders a response for a fault. Returning a nil response with a
// nil error falls through to the guard's default path; a non-nil error (or
// a panic) is treated as a secondary fault and contained by the guard.
type Handler func(r *http.Request, f *fault.Fault) (*Response, error)

// Entry is a registered handler together with its display name, used when
// reporting secondary faults.
type Entry struct {
	Name    string
	Handler Handler
}

type entryKey struct {
	kind  *fault.Kind
	scope string
}

// Registry owns the mapping from (fault kind, optional route scope) to
// handler and performs hierarchy-aware resolution with memoization.
//
// The entry table is written only during setup, before serving begins, and
// is read without locking afterwards. The resolution cache is populated
// concurrently on first use; duplicate writes under the first-miss race
// store identical values, so no lock is needed beyond the sync.Map itself.
type Registry struct {
	entries map[entryKey]*Entry
	cache   sync.Map // entryKey -> *Entry, nil for cached absence

	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	hierarchyWalks atomic.Int64
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[entryKey]*Entry),
	}
}

// Add registers a handler for the given kind. With no scopes a single
// global entry is created; otherwise one entry per scope. Re-registering
// an identical key overwrites the previous handler.
//
// All registration must complete before the first Resolve: the cache is
// never invalidated, so a handler added after a miss has been cached for
// its exact kind/scope pair stays shadowed by the cached absence.
func (rg *Registry) Add(kind *fault.Kind, h Handler, scopes ...string) {
	rg.AddNamed(handlerName(h), kind, h, scopes...)
}

// AddNamed is Add with an explicit display name for the handler.
func (rg *Registry) AddNamed(name string, kind *fault.Kind, h Handler, scopes ...string) {
	if kind == nil {
		kind = fault.Base
	}
	entry := &Entry{Name: name, Handler: h}
	if len(scopes) == 0 {
		rg.entries[entryKey{kind: kind}] = entry
		return
	}
	for _, scope := range scopes {
		rg.entries[entryKey{kind: kind, scope: scope}] = entry
	}
}

// Resolve returns the best-matching handler entry for the fault at the
// given route scope, or nil when no handler matches. Resolution never
// fails; absence is a normal, cached outcome.
//
// Precedence: scoped exact kind, global exact kind, scoped ancestor
// (nearest first), global ancestor (nearest first), none.
func (rg *Registry) Resolve(f *fault.Fault, scope string) *Entry {
	kind := f.Kind()
	key := entryKey{kind: kind, scope: scope}

	if cached, ok := rg.cache.Load(key); ok {
		rg.cacheHits.Add(1)
		return cached.(*Entry)
	}
	rg.cacheMisses.Add(1)

	entry := rg.lookup(kind, scope)
	rg.cache.Store(key, entry)
	return entry
}

func (rg *Registry) lookup(kind *fault.Kind, scope string) *Entry {
	scopes := []string{scope, ""}
	if scope == "" {
		scopes = scopes[1:]
	}

	// Exact kind across both scopes before any ancestor walk: a global
	// entry for the exact kind outranks a scoped entry for an ancestor.
	for _, s := range scopes {
		if entry, ok := rg.entries[entryKey{kind: kind, scope: s}]; ok {
			return entry
		}
	}

	rg.hierarchyWalks.Add(1)
	for _, s := range scopes {
		// Lineage is bounded at fault.Base, so the walk stops there.
		for _, ancestor := range kind.Lineage()[1:] {
			if entry, ok := rg.entries[entryKey{kind: ancestor, scope: s}]; ok {
				return entry
			}
		}
	}
	return nil
}

// Stats is a snapshot of registry counters for health reporting.
type Stats struct {
	Entries        int   `json:"entries"`
	CacheSize      int   `json:"cache_size"`
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	HierarchyWalks int64 `json:"hierarchy_walks"`
}

// Stats returns a snapshot of the registry's counters.
func (rg *Registry) Stats() Stats {
	size := 0
	rg.cache.Range(func(_, _ any) bool {
		size++
		return true
	})
	return Stats{
		Entries:        len(rg.entries),
		CacheSize:      size,
		CacheHits:      rg.cacheHits.Load(),
		CacheMisses:    rg.cacheMisses.Load(),
		HierarchyWalks: rg.hierarchyWalks.Load(),
	}
}

// handlerName derives a readable name for a handler func, e.g.
// "app.renderJSON". Method values carry a "-fm" suffix that is stripped.
func handlerName(h Handler) string {
	if h == nil {
		return "<nil>"
	}
	name := runtime.FuncForPC(reflect.ValueOf(h).Pointer()).Name()
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}
