package fault

import (
	"fmt"
	"net/http"
)

// Kind identifies a node in the fault hierarchy. Kinds are created once
// during setup and are immutable afterwards; the ancestor chain is
// precomputed at construction so resolution never walks pointers at
// request time.
type Kind struct {
	name    string
	parent  *Kind
	status  int
	lineage []*Kind
}

// Base is the universal root of the fault hierarchy. Every Kind descends
// from it and every hierarchy walk terminates at it.
var Base = &Kind{name: "fault", status: http.StatusInternalServerError}

func init() {
	Base.lineage = []*Kind{Base}
}

// NewKind creates a new fault kind under the given parent. A nil parent
// attaches the kind directly to Base. A zero status inherits the parent's
// status.
func NewKind(name string, parent *Kind, status int) *Kind {
	if name == "" {
		panic("fault: kind name must not be empty")
	}
	if parent == nil {
		parent = Base
	}
	if status == 0 {
		status = parent.status
	}

	k := &Kind{
		name:   name,
		parent: parent,
		status: status,
	}
	k.lineage = make([]*Kind, 0, len(parent.lineage)+1)
	k.lineage = append(k.lineage, k)
	k.lineage = append(k.lineage, parent.lineage...)
	return k
}

// Name returns the kind's name.
func (k *Kind) Name() string {
	return k.name
}

// Parent returns the kind's parent, or nil for Base.
func (k *Kind) Parent() *Kind {
	return k.parent
}

// Status returns the default HTTP status for faults of this kind.
func (k *Kind) Status() int {
	return k.status
}

// Lineage returns the ancestor chain from the kind itself down to Base,
// most specific first. The returned slice must not be modified.
func (k *Kind) Lineage() []*Kind {
	return k.lineage
}

// Is reports whether the kind equals ancestor or descends from it.
func (k *Kind) Is(ancestor *Kind) bool {
	for _, a := range k.lineage {
		if a == ancestor {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (k *Kind) String() string {
	if k.parent == nil {
		return k.name
	}
	return fmt.Sprintf("%s(%d)", k.name, k.status)
}

// Built-in kinds covering the common HTTP failure classes. Validation is
// deliberately a child of BadRequest so that a handler registered for
// BadRequest also covers validation faults.
var (
	BadRequest   = NewKind("bad_request", nil, http.StatusBadRequest)
	Validation   = NewKind("validation", BadRequest, 0)
	Unauthorized = NewKind("unauthorized", nil, http.StatusUnauthorized)
	Forbidden    = NewKind("forbidden", nil, http.StatusForbidden)
	NotFound     = NewKind("not_found", nil, http.StatusNotFound)
	Conflict     = NewKind("conflict", nil, http.StatusConflict)
	RateLimit    = NewKind("rate_limit", nil, http.StatusTooManyRequests)
	Timeout      = NewKind("timeout", nil, http.StatusGatewayTimeout)
	ServerError  = NewKind("server_error", nil, http.StatusInternalServerError)
	Unavailable  = NewKind("unavailable", nil, http.StatusServiceUnavailable)
)
