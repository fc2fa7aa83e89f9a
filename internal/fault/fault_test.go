package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKind(t *testing.T) {
	tests := []struct {
		name       string
		kindName   string
		parent     *Kind
		status     int
		wantParent *Kind
		wantStatus int
	}{
		{
			name:       "nil parent attaches to Base",
			kindName:   "orphan",
			parent:     nil,
			status:     http.StatusTeapot,
			wantParent: Base,
			wantStatus: http.StatusTeapot,
		},
		{
			name:       "zero status inherits parent status",
			kindName:   "child",
			parent:     NotFound,
			status:     0,
			wantParent: NotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "explicit parent and status",
			kindName:   "payload_too_large",
			parent:     BadRequest,
			status:     http.StatusRequestEntityTooLarge,
			wantParent: BadRequest,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewKind(tt.kindName, tt.parent, tt.status)

			assert.Equal(t, tt.kindName, k.Name())
			assert.Equal(t, tt.wantParent, k.Parent())
			assert.Equal(t, tt.wantStatus, k.Status())
		})
	}
}

func TestNewKind_EmptyNamePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewKind("", nil, 0)
	})
}

func TestKind_Lineage(t *testing.T) {
	// Three levels: Base -> a -> b -> c, most specific first in the chain.
	a := NewKind("a", nil, 0)
	b := NewKind("b", a, 0)
	c := NewKind("c", b, 0)

	require.Equal(t, []*Kind{c, b, a, Base}, c.Lineage())
	require.Equal(t, []*Kind{b, a, Base}, b.Lineage())
	require.Equal(t, []*Kind{Base}, Base.Lineage())
}

func TestKind_Is(t *testing.T) {
	tests := []struct {
		name     string
		kind     *Kind
		ancestor *Kind
		want     bool
	}{
		{"kind is itself", Validation, Validation, true},
		{"kind is its parent", Validation, BadRequest, true},
		{"every kind is Base", Validation, Base, true},
		{"sibling is not ancestor", Validation, NotFound, false},
		{"parent is not child", BadRequest, Validation, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Is(tt.ancestor))
		})
	}
}

func TestBuiltinKindStatuses(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Validation.Status())
	assert.Equal(t, http.StatusNotFound, NotFound.Status())
	assert.Equal(t, http.StatusTooManyRequests, RateLimit.Status())
	assert.Equal(t, http.StatusInternalServerError, Base.Status())
}

func TestNew(t *testing.T) {
	f := New(NotFound, "report missing")

	assert.Equal(t, NotFound, f.Kind())
	assert.Equal(t, http.StatusNotFound, f.Status())
	assert.False(t, f.Quiet())
	assert.Equal(t, "[not_found] report missing", f.Error())
}

func TestNew_NilKindFallsBackToBase(t *testing.T) {
	f := New(nil, "unclassified")
	assert.Equal(t, Base, f.Kind())
	assert.Equal(t, http.StatusInternalServerError, f.Status())
}

func TestFault_Chaining(t *testing.T) {
	cause := errors.New("disk full")
	f := New(ServerError, "write failed").
		WithStatus(http.StatusInsufficientStorage).
		WithQuiet().
		WithCause(cause)

	assert.Equal(t, http.StatusInsufficientStorage, f.Status())
	assert.True(t, f.Quiet())
	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "disk full")
}

func TestFrom(t *testing.T) {
	orig := New(Validation, "bad field")

	tests := []struct {
		name     string
		err      error
		wantKind *Kind
		wantSame bool
	}{
		{"nil error", nil, nil, false},
		{"fault passes through", orig, Validation, true},
		{"wrapped fault is unwrapped", fmt.Errorf("handler: %w", orig), Validation, true},
		{"plain error becomes server error", errors.New("boom"), ServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := From(tt.err)
			if tt.err == nil {
				assert.Nil(t, f)
				return
			}
			require.NotNil(t, f)
			assert.Equal(t, tt.wantKind, f.Kind())
			if tt.wantSame {
				assert.Same(t, orig, f)
			} else {
				assert.ErrorIs(t, f, tt.err)
			}
		})
	}
}

func TestFromPanic(t *testing.T) {
	tests := []struct {
		name        string
		rec         any
		wantMessage string
	}{
		{"string value", "index out of range", "panic: index out of range"},
		{"error value", errors.New("nil map write"), "panic: nil map write"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FromPanic(tt.rec)

			require.NotNil(t, f)
			assert.Equal(t, ServerError, f.Kind())
			assert.Equal(t, tt.wantMessage, f.Message())
			assert.NotEmpty(t, f.Stack())
		})
	}
}

func TestFromPanic_FaultKeepsKind(t *testing.T) {
	f := FromPanic(New(Timeout, "deadline blew"))

	assert.Equal(t, Timeout, f.Kind())
	assert.NotEmpty(t, f.Stack(), "stack is captured even for fault panics")
}
