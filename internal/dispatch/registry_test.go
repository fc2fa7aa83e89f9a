package dispatch

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faultgate/internal/fault"
)

func textHandler(body string) Handler {
	return func(r *http.Request, f *fault.Fault) (*Response, error) {
		return Text(f.Status(), body), nil
	}
}

func handlerBody(t *testing.T, entry *Entry) string {
	t.Helper()
	require.NotNil(t, entry)
	resp, err := entry.Handler(nil, fault.New(fault.Base, "probe"))
	require.NoError(t, err)
	return string(resp.Body)
}

func TestRegistry_ExactMatchBeatsAncestor(t *testing.T) {
	parent := fault.NewKind("parent", nil, 0)
	child := fault.NewKind("child", parent, 0)

	rg := NewRegistry()
	rg.AddNamed("exact", child, textHandler("exact"))
	rg.AddNamed("ancestor", parent, textHandler("ancestor"))

	entry := rg.Resolve(fault.New(child, "boom"), "")
	assert.Equal(t, "exact", handlerBody(t, entry))
}

func TestRegistry_RouteScopePrecedence(t *testing.T) {
	kind := fault.NewKind("scoped_kind", nil, 0)

	rg := NewRegistry()
	rg.AddNamed("scoped", kind, textHandler("scoped"), "routeA")
	rg.AddNamed("global", kind, textHandler("global"))

	tests := []struct {
		name  string
		scope string
		want  string
	}{
		{"matching scope wins", "routeA", "scoped"},
		{"other scope falls back to global", "routeB", "global"},
		{"no scope uses global", "", "global"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := rg.Resolve(fault.New(kind, "boom"), tt.scope)
			assert.Equal(t, tt.want, handlerBody(t, entry))
		})
	}
}

func TestRegistry_GlobalExactBeatsScopedAncestor(t *testing.T) {
	// The exact-kind probe runs over both scopes before any ancestor
	// walk: a global entry for the raised kind wins even when the route
	// scope has an entry for an ancestor.
	parent := fault.NewKind("prec_parent", nil, 0)
	child := fault.NewKind("prec_child", parent, 0)

	rg := NewRegistry()
	rg.AddNamed("scoped_ancestor", parent, textHandler("scoped_ancestor"), "api")
	rg.AddNamed("global_exact", child, textHandler("global_exact"))

	entry := rg.Resolve(fault.New(child, "boom"), "api")
	assert.Equal(t, "global_exact", handlerBody(t, entry))

	entry = rg.Resolve(fault.New(child, "boom"), "web")
	assert.Equal(t, "global_exact", handlerBody(t, entry))
}

func TestRegistry_ScopedAncestorBeatsGlobalAncestor(t *testing.T) {
	parent := fault.NewKind("anc_parent", nil, 0)
	child := fault.NewKind("anc_child", parent, 0)

	rg := NewRegistry()
	rg.AddNamed("scoped_ancestor", parent, textHandler("scoped_ancestor"), "api")
	rg.AddNamed("global_ancestor", parent, textHandler("global_ancestor"))

	entry := rg.Resolve(fault.New(child, "boom"), "api")
	assert.Equal(t, "scoped_ancestor", handlerBody(t, entry))

	entry = rg.Resolve(fault.New(child, "boom"), "web")
	assert.Equal(t, "global_ancestor", handlerBody(t, entry))
}

func TestRegistry_HierarchyOrder(t *testing.T) {
	// Three levels a -> b -> c with handlers only for a and b: resolving a
	// c fault returns the nearest ancestor's handler.
	a := fault.NewKind("ho_a", nil, 0)
	b := fault.NewKind("ho_b", a, 0)
	c := fault.NewKind("ho_c", b, 0)

	rg := NewRegistry()
	rg.AddNamed("for_a", a, textHandler("for_a"))
	rg.AddNamed("for_b", b, textHandler("for_b"))

	entry := rg.Resolve(fault.New(c, "boom"), "")
	assert.Equal(t, "for_b", handlerBody(t, entry))
}

func TestRegistry_BaseHandlerCatchesEverything(t *testing.T) {
	rg := NewRegistry()
	rg.AddNamed("catchall", fault.Base, textHandler("catchall"))

	orphan := fault.NewKind("orphan_kind", nil, 0)
	entry := rg.Resolve(fault.New(orphan, "boom"), "some-route")
	assert.Equal(t, "catchall", handlerBody(t, entry))
}

func TestRegistry_CacheIdempotence(t *testing.T) {
	parent := fault.NewKind("cache_parent", nil, 0)
	child := fault.NewKind("cache_child", parent, 0)

	rg := NewRegistry()
	rg.AddNamed("ancestor", parent, textHandler("ancestor"))

	first := rg.Resolve(fault.New(child, "boom"), "api")
	walksAfterFirst := rg.hierarchyWalks.Load()
	require.Equal(t, int64(1), walksAfterFirst)

	second := rg.Resolve(fault.New(child, "boom"), "api")

	assert.Same(t, first, second, "both resolutions return the identical entry")
	assert.Equal(t, walksAfterFirst, rg.hierarchyWalks.Load(),
		"second resolution must not walk the hierarchy")
	assert.Equal(t, int64(1), rg.cacheHits.Load())
}

func TestRegistry_CachedAbsenceIsStable(t *testing.T) {
	rg := NewRegistry()
	unmatched := fault.NewKind("unmatched", nil, 0)

	assert.Nil(t, rg.Resolve(fault.New(unmatched, "boom"), ""))
	assert.Nil(t, rg.Resolve(fault.New(unmatched, "boom"), ""))
	assert.Equal(t, int64(1), rg.cacheHits.Load(), "absence is served from cache")
}

func TestRegistry_LateAddShadowedByCachedMiss(t *testing.T) {
	// Documented constraint: registration after a cached miss stays
	// invisible for that exact kind/scope pair.
	rg := NewRegistry()
	kind := fault.NewKind("late_kind", nil, 0)

	require.Nil(t, rg.Resolve(fault.New(kind, "boom"), ""))

	rg.AddNamed("late", kind, textHandler("late"))
	assert.Nil(t, rg.Resolve(fault.New(kind, "boom"), ""))
}

func TestRegistry_LastWriteWinsForExactKey(t *testing.T) {
	kind := fault.NewKind("lww_kind", nil, 0)

	rg := NewRegistry()
	rg.AddNamed("first", kind, textHandler("first"))
	rg.AddNamed("second", kind, textHandler("second"))

	entry := rg.Resolve(fault.New(kind, "boom"), "")
	assert.Equal(t, "second", handlerBody(t, entry))
}

func TestRegistry_ScopedEntriesCoexist(t *testing.T) {
	kind := fault.NewKind("coexist_kind", nil, 0)

	rg := NewRegistry()
	rg.Add(kind, textHandler("shared"), "api", "admin")

	stats := rg.Stats()
	assert.Equal(t, 2, stats.Entries)

	for _, scope := range []string{"api", "admin"} {
		entry := rg.Resolve(fault.New(kind, "boom"), scope)
		assert.Equal(t, "shared", handlerBody(t, entry))
	}
}

func TestRegistry_ConcurrentFirstResolution(t *testing.T) {
	parent := fault.NewKind("conc_parent", nil, 0)
	child := fault.NewKind("conc_child", parent, 0)

	rg := NewRegistry()
	rg.AddNamed("ancestor", parent, textHandler("ancestor"))

	var wg sync.WaitGroup
	results := make([]*Entry, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = rg.Resolve(fault.New(child, "boom"), "api")
		}(i)
	}
	wg.Wait()

	for _, entry := range results {
		assert.Equal(t, "ancestor", handlerBody(t, entry))
	}
}

func TestRegistry_Stats(t *testing.T) {
	kind := fault.NewKind("stats_kind", nil, 0)

	rg := NewRegistry()
	rg.AddNamed("h", kind, textHandler("h"))

	rg.Resolve(fault.New(kind, "boom"), "")
	rg.Resolve(fault.New(kind, "boom"), "")

	stats := rg.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.CacheSize)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
}

func TestHandlerName(t *testing.T) {
	assert.Equal(t, "<nil>", handlerName(nil))

	name := handlerName(namedProbeHandler)
	assert.Contains(t, name, "namedProbeHandler")
	assert.NotContains(t, name, "/")
}

func namedProbeHandler(r *http.Request, f *fault.Fault) (*Response, error) {
	return nil, nil
}
