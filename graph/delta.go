package graph

import "sync"

// DeltaGraph overlays additions and deletions on top of a base graph without
// copying or mutating it. A DeltaGraph's base may itself be a DeltaGraph,
// forming a linear spine of overlays rooted at an original Store; the spine
// is strictly tree-like (each DeltaGraph holds exactly one non-owning
// reference to its base), never cyclic.
//
// Invariants (see spec §3):
//   - additions and base are disjoint: adding a triple already visible
//     through base is a no-op on additions; deleting a triple always clears
//     it from additions first.
//   - a triple in deletions is never also in additions.
//   - membership: t ∈ delta iff t ∈ additions, or (t ∈ base and t ∉
//     deletions).
//   - size(delta) = size(base) + |additions| - |deletions|.
//
// DeltaGraph itself satisfies Store, so a chain of overlays composes without
// any special-casing by callers: base is typed as Store, and a DeltaGraph is
// a valid Store.
type DeltaGraph struct {
	mu sync.RWMutex

	base      Store
	additions Store
	deletions map[Triple]struct{}
}

// NewDeltaGraph wraps base in a fresh, empty overlay. It returns
// ErrBaseCapability if base's capability descriptor does not satisfy the
// engine's prerequisites (accurate size, no literal-typing normalization).
func NewDeltaGraph(base Store) (*DeltaGraph, error) {
	if err := base.Capabilities().Validate(); err != nil {
		return nil, err
	}
	return &DeltaGraph{
		base:      base,
		additions: newTripleSet(),
		deletions: make(map[Triple]struct{}),
	}, nil
}

// NewDeltaGraphFromOverlay wraps base with a pre-built additions store and
// deletions set, rather than starting from an empty overlay. It is used by
// the chain rebase procedure to construct a new DeltaGraph atop a different
// base while reusing an existing commit's additions/deletions.
func NewDeltaGraphFromOverlay(base Store, additions Store, deletions map[Triple]struct{}) (*DeltaGraph, error) {
	if err := base.Capabilities().Validate(); err != nil {
		return nil, err
	}
	if deletions == nil {
		deletions = make(map[Triple]struct{})
	}
	return &DeltaGraph{base: base, additions: additions, deletions: deletions}, nil
}

// Add ensures t is visible through the overlay: if t is already reachable
// through base, any tombstone on it is lifted; otherwise t is inserted into
// additions. Add is idempotent with respect to final membership.
func (d *DeltaGraph) Add(t Triple) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.base.Contains(t) {
		delete(d.deletions, t)
		return nil
	}
	return d.additions.Add(t)
}

// Delete removes t from the overlay's visible membership: it is cleared
// from additions if present there, and if it is also reachable through base
// a tombstone is recorded in deletions. Delete is idempotent.
func (d *DeltaGraph) Delete(t Triple) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.additions.Delete(t); err != nil {
		return err
	}
	if d.base.Contains(t) {
		d.deletions[t] = struct{}{}
	}
	return nil
}

// Contains reports overlay membership for a concrete triple: if t is
// reachable through base, it is visible unless tombstoned; otherwise it is
// visible only if present in additions.
func (d *DeltaGraph) Contains(t Triple) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.base.Contains(t) {
		_, deleted := d.deletions[t]
		return !deleted
	}
	return d.additions.Contains(t)
}

// Find produces the lazy concatenation of base's matches (filtered by
// deletions) followed by additions' matches. The two streams are never
// interleaved; the returned iterator may be consumed exactly once.
func (d *DeltaGraph) Find(pattern Pattern) TripleIterator {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return &deltaIterator{
		base:      d.base.Find(pattern),
		deletions: d.deletions,
		additions: d.additions.Find(pattern),
	}
}

// Size reports size(base) + |additions| - |deletions|.
func (d *DeltaGraph) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.base.Size() + d.additions.Size() - len(d.deletions)
}

// IsEmpty reports whether Size() == 0.
func (d *DeltaGraph) IsEmpty() bool {
	return d.Size() == 0
}

// Capabilities forwards the descriptor a writer would see: the overlay
// itself always allows add/delete.
func (d *DeltaGraph) Capabilities() Capabilities {
	return Capabilities{
		SizeAccurate:         true,
		AddAllowed:           true,
		DeleteAllowed:        true,
		HandlesLiteralTyping: false,
	}
}

// HasChanges reports whether this overlay carries any additions or
// deletions relative to its base.
func (d *DeltaGraph) HasChanges() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.additions.Size() > 0 || len(d.deletions) > 0
}

// Base returns the graph this overlay is layered on, for chain-walking code
// (merge, rebase) that needs to recurse down the spine.
func (d *DeltaGraph) Base() Store { return d.base }

// Additions returns the store holding triples added on top of Base.
func (d *DeltaGraph) Additions() Store { return d.additions }

// Deletions returns the set of triples tombstoned from Base. The returned
// map must not be mutated by callers.
func (d *DeltaGraph) Deletions() map[Triple]struct{} { return d.deletions }

// deltaIterator concatenates base.Find (filtered by deletions) then
// additions.Find, never interleaving the two streams.
type deltaIterator struct {
	base      TripleIterator
	deletions map[Triple]struct{}
	additions TripleIterator

	inAdditions bool
	current     Triple
	err         error
}

func (it *deltaIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.inAdditions {
		for it.base.Next() {
			t := it.base.Triple()
			if _, deleted := it.deletions[t]; deleted {
				continue
			}
			it.current = t
			return true
		}
		if err := it.base.Err(); err != nil {
			it.err = err
			return false
		}
		it.inAdditions = true
	}
	if it.additions.Next() {
		it.current = it.additions.Triple()
		return true
	}
	if err := it.additions.Err(); err != nil {
		it.err = err
		return false
	}
	return false
}

func (it *deltaIterator) Triple() Triple { return it.current }
func (it *deltaIterator) Err() error     { return it.err }

// tripleSet is the unindexed Store implementation DeltaGraph uses internally
// for its additions store: a plain set keyed by the full triple, with a
// linear Find scan. It is not exported because additions bookkeeping is an
// implementation detail of DeltaGraph, not a pluggable base graph.
type tripleSet struct {
	mu      sync.RWMutex
	members map[Triple]struct{}
}

func newTripleSet() *tripleSet {
	return &tripleSet{members: make(map[Triple]struct{})}
}

func (s *tripleSet) Add(t Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[t] = struct{}{}
	return nil
}

func (s *tripleSet) Delete(t Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, t)
	return nil
}

func (s *tripleSet) Contains(t Triple) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[t]
	return ok
}

func (s *tripleSet) Find(pattern Pattern) TripleIterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := make([]Triple, 0, len(s.members))
	for t := range s.members {
		if pattern.Matches(t) {
			matches = append(matches, t)
		}
	}
	return NewSliceIterator(matches)
}

func (s *tripleSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

func (s *tripleSet) IsEmpty() bool { return s.Size() == 0 }

func (s *tripleSet) Capabilities() Capabilities {
	return Capabilities{SizeAccurate: true, AddAllowed: true, DeleteAllowed: true}
}
