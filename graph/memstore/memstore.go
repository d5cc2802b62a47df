// Package memstore provides a reference, thread-safe, indexed in-memory
// triple store implementing graph.Store. It plays the role of the engine's
// "external collaborator" (the unindexed/indexed triple container the spec
// treats as a passthrough dependency): RDF parsing, serialization, and query
// planning are out of scope here, same as for the transactional core.
//
// Store is indexed by subject, predicate, and object independently so that
// Find(pattern) can use whichever index the pattern's first bound component
// picks, rather than always scanning every triple.
//
// Example:
//
//	s := memstore.New()
//	s.Add(graph.NewTriple("alice", "knows", "bob"))
//	it := s.Find(graph.WithSubject("alice"))
//	for it.Next() {
//		fmt.Println(it.Triple())
//	}
package memstore

import (
	"sync"

	"github.com/nornicdb/txgraph/graph"
)

// Store is a thread-safe, indexed, in-memory graph.Store implementation.
// All operations are safe for concurrent use; Find returns a snapshot
// iterator taken under a read lock, so concurrent mutation during iteration
// never races but may or may not be reflected in an in-flight Find,
// depending on whether the mutation happened before the snapshot was taken.
type Store struct {
	mu sync.RWMutex

	triples map[graph.Triple]struct{}

	bySubject   map[string]map[graph.Triple]struct{}
	byPredicate map[string]map[graph.Triple]struct{}
	byObject    map[string]map[graph.Triple]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		triples:     make(map[graph.Triple]struct{}),
		bySubject:   make(map[string]map[graph.Triple]struct{}),
		byPredicate: make(map[string]map[graph.Triple]struct{}),
		byObject:    make(map[string]map[graph.Triple]struct{}),
	}
}

// Add inserts t if absent; adding an existing triple is a no-op.
func (s *Store) Add(t graph.Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.triples[t]; exists {
		return nil
	}
	s.triples[t] = struct{}{}
	s.indexInsert(t)
	return nil
}

// Delete removes t if present; deleting an absent triple is a no-op.
func (s *Store) Delete(t graph.Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.triples[t]; !exists {
		return nil
	}
	delete(s.triples, t)
	s.indexRemove(t)
	return nil
}

// Contains reports whether t is a member.
func (s *Store) Contains(t graph.Triple) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.triples[t]
	return ok
}

// Find returns a snapshot iterator over triples matching pattern, picking
// the most selective available index: subject, then predicate, then
// object, falling back to a full scan when the pattern has no bound
// component.
func (s *Store) Find(pattern graph.Pattern) graph.TripleIterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates map[graph.Triple]struct{}
	switch {
	case pattern.Subject != "":
		candidates = s.bySubject[pattern.Subject]
	case pattern.Predicate != "":
		candidates = s.byPredicate[pattern.Predicate]
	case pattern.Object != "":
		candidates = s.byObject[pattern.Object]
	default:
		candidates = s.triples
	}

	matches := make([]graph.Triple, 0, len(candidates))
	for t := range candidates {
		if pattern.Matches(t) {
			matches = append(matches, t)
		}
	}
	return graph.NewSliceIterator(matches)
}

// Size reports the exact number of triples held.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.triples)
}

// IsEmpty reports whether Size() == 0.
func (s *Store) IsEmpty() bool { return s.Size() == 0 }

// Capabilities reports accurate size and no literal-typing normalization,
// satisfying the engine's DeltaGraph base prerequisites.
func (s *Store) Capabilities() graph.Capabilities {
	return graph.Capabilities{
		SizeAccurate:         true,
		AddAllowed:           true,
		DeleteAllowed:        true,
		HandlesLiteralTyping: false,
	}
}

// Copy returns an independent Store holding the same triples, satisfying
// graph.Copier so callers avoid an iterate+add fallback.
func (s *Store) Copy() graph.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dst := New()
	for t := range s.triples {
		dst.triples[t] = struct{}{}
		dst.indexInsert(t)
	}
	return dst
}

func (s *Store) indexInsert(t graph.Triple) {
	insertIndex(s.bySubject, t.Subject, t)
	insertIndex(s.byPredicate, t.Predicate, t)
	insertIndex(s.byObject, t.Object, t)
}

func (s *Store) indexRemove(t graph.Triple) {
	removeIndex(s.bySubject, t.Subject, t)
	removeIndex(s.byPredicate, t.Predicate, t)
	removeIndex(s.byObject, t.Object, t)
}

func insertIndex(idx map[string]map[graph.Triple]struct{}, key string, t graph.Triple) {
	bucket, ok := idx[key]
	if !ok {
		bucket = make(map[graph.Triple]struct{})
		idx[key] = bucket
	}
	bucket[t] = struct{}{}
}

func removeIndex(idx map[string]map[graph.Triple]struct{}, key string, t graph.Triple) {
	bucket, ok := idx[key]
	if !ok {
		return
	}
	delete(bucket, t)
	if len(bucket) == 0 {
		delete(idx, key)
	}
}
