package graph

import "errors"

// ErrReadOnly is returned when a mutation is attempted against a
// ReadOnlyView.
var ErrReadOnly = errors.New("graph: mutation attempted on a read-only view")

// ErrBaseCapability is returned when a graph is wrapped as a DeltaGraph base
// but its capability descriptor fails the engine's prerequisites (inaccurate
// size reporting, or literal-normalizing equality).
var ErrBaseCapability = errors.New("graph: base graph does not satisfy required capabilities")

// Capabilities describes what a Store supports and guarantees. The engine
// checks this descriptor at wrap time; see Capabilities.Validate.
type Capabilities struct {
	// SizeAccurate must be true: DeltaGraph.Size relies on the base
	// reporting an exact count.
	SizeAccurate bool

	// AddAllowed and DeleteAllowed describe whether the store accepts
	// direct mutation. ReadOnlyView forces both to false regardless of the
	// wrapped store's own descriptor.
	AddAllowed bool

	// DeleteAllowed mirrors AddAllowed for deletions.
	DeleteAllowed bool

	// HandlesLiteralTyping must be false: a store that normalizes literals
	// (e.g. canonicalizes "1" and "1.0" to the same literal) breaks the
	// structural equality DeltaGraph.deletions relies on.
	HandlesLiteralTyping bool
}

// Validate checks the prerequisites the engine requires of any DeltaGraph
// base: accurate size, and no literal-typing-aware equality.
func (c Capabilities) Validate() error {
	if !c.SizeAccurate {
		return ErrBaseCapability
	}
	if c.HandlesLiteralTyping {
		return ErrBaseCapability
	}
	return nil
}

// TripleIterator yields the triples produced by Store.Find. It follows the
// bufio.Scanner shape: call Next until it returns false, reading Triple
// after each true return; check Err once iteration stops. An iterator may be
// consumed exactly once and is not safe for concurrent use.
type TripleIterator interface {
	Next() bool
	Triple() Triple
	Err() error
}

// Store is the capability contract the engine requires of any external
// triple container it wraps as a graph base. Implementations are expected to
// be simple, unindexed or indexed collections; RDF parsing, serialization,
// and query planning live outside the core and are not part of this
// contract.
type Store interface {
	// Add inserts t if absent. Adding an existing triple is a no-op.
	Add(t Triple) error

	// Delete removes t if present. Deleting an absent triple is a no-op.
	Delete(t Triple) error

	// Contains reports whether a concrete (wildcard-free) triple is a
	// member of the store.
	Contains(t Triple) bool

	// Find returns an iterator over triples matching pattern. Ordering is
	// implementation-defined but stable within one iterator's lifetime.
	Find(pattern Pattern) TripleIterator

	// Size reports the exact number of triples held.
	Size() int

	// IsEmpty reports whether Size() == 0, without necessarily computing
	// the full count.
	IsEmpty() bool

	// Capabilities describes this store's guarantees; see Capabilities.
	Capabilities() Capabilities
}

// Copier is an optional capability: a Store that can produce an independent
// copy of itself cheaply. When a Store does not implement Copier, callers
// that need a copy fall back to iterate+add (see CopyStore).
type Copier interface {
	Copy() Store
}

// CopyStore returns an independent copy of s: s.Copy() if s implements
// Copier, otherwise a fresh store built by iterate+add into dst.
func CopyStore(s Store, dst Store) (Store, error) {
	if c, ok := s.(Copier); ok {
		return c.Copy(), nil
	}
	it := s.Find(AnyPattern)
	for it.Next() {
		if err := dst.Add(it.Triple()); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return dst, nil
}

// sliceIterator is the simplest TripleIterator: a pre-materialized slice.
// Stores with no native streaming query path can build Find results this
// way.
type sliceIterator struct {
	triples []Triple
	pos     int
}

// NewSliceIterator returns a TripleIterator over a pre-computed slice of
// triples, for Store implementations with no native lazy query path.
func NewSliceIterator(triples []Triple) TripleIterator {
	return &sliceIterator{triples: triples, pos: -1}
}

func (it *sliceIterator) Next() bool {
	it.pos++
	return it.pos < len(it.triples)
}

func (it *sliceIterator) Triple() Triple {
	if it.pos < 0 || it.pos >= len(it.triples) {
		return Triple{}
	}
	return it.triples[it.pos]
}

func (it *sliceIterator) Err() error { return nil }
