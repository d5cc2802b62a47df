// Package graph provides the core RDF graph types shared by the transactional
// engine: the immutable Triple value, the Store capability contract external
// triple containers must satisfy, and the DeltaGraph overlay that lets a
// writer stage additions and deletions without copying or mutating a base
// graph.
//
// Design Principles:
//   - Base graphs are treated as opaque collaborators reached only through
//     the Store interface (add/delete/contains/find/size/copy).
//   - Triples are immutable values; equality is structural.
//   - Overlaying (DeltaGraph) is the only mutation strategy exposed to a
//     transaction — the base is never written to directly by a live writer.
package graph

import "fmt"

// Triple is an immutable RDF statement (subject, predicate, object).
// Equality is by component equality; the core never interprets the
// components beyond that.
type Triple struct {
	Subject   string
	Predicate string
	Object    string
}

// NewTriple constructs a Triple from its three components.
func NewTriple(subject, predicate, object string) Triple {
	return Triple{Subject: subject, Predicate: predicate, Object: object}
}

// String renders the triple in "(s, p, o)" form for logs and error messages.
func (t Triple) String() string {
	return fmt.Sprintf("(%s, %s, %s)", t.Subject, t.Predicate, t.Object)
}

// wildcard is the pattern placeholder matching any value in that position.
const wildcard = ""

// Pattern is a triple with optional wildcards (empty string) in any
// position, used by Find to match a subset of a graph's triples.
type Pattern struct {
	Subject   string
	Predicate string
	Object    string
}

// AnyPattern matches every triple in a graph.
var AnyPattern = Pattern{}

// PatternOf builds a Pattern from the given components; pass "" (or use one
// of the wildcard helpers) for a position that should match anything.
func PatternOf(subject, predicate, object string) Pattern {
	return Pattern{Subject: subject, Predicate: predicate, Object: object}
}

// WithSubject returns a pattern matching only the given subject, any
// predicate, any object.
func WithSubject(subject string) Pattern {
	return Pattern{Subject: subject}
}

// WithPredicate returns a pattern matching only the given predicate.
func WithPredicate(predicate string) Pattern {
	return Pattern{Predicate: predicate}
}

// WithObject returns a pattern matching only the given object.
func WithObject(object string) Pattern {
	return Pattern{Object: object}
}

// Matches reports whether t satisfies the pattern, i.e. every
// non-wildcard component of p equals the corresponding component of t.
func (p Pattern) Matches(t Triple) bool {
	if p.Subject != wildcard && p.Subject != t.Subject {
		return false
	}
	if p.Predicate != wildcard && p.Predicate != t.Predicate {
		return false
	}
	if p.Object != wildcard && p.Object != t.Object {
		return false
	}
	return true
}
