// Package fault defines the fault taxonomy used by the dispatch engine.
//
// Faults are classified by Kind, a named node in an explicit hierarchy that
// bottoms out at the universal Base kind. The hierarchy is declared up front
// (every Kind names its parent at construction) so that handler resolution is
// a walk over a precomputed ancestor list rather than runtime reflection.
//
// A Fault is a concrete error instance carrying its Kind, an HTTP status, an
// optional wrapped cause and a quiet flag that suppresses default-path
// logging. Route handlers surface faults as ordinary error returns; the
// dispatch guard is the single place that turns them into responses.
package fault
