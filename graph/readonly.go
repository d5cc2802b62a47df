package graph

// ReadOnlyView wraps a Store and denies mutation, forwarding every read
// operation unchanged. It is a zero-overhead, non-owning wrapper: its
// lifetime is bounded by the reader session that created it, and it holds
// no state of its own beyond the wrapped graph.
type ReadOnlyView struct {
	wrapped Store
}

// NewReadOnlyView returns a read-only wrapper over g.
func NewReadOnlyView(g Store) *ReadOnlyView {
	return &ReadOnlyView{wrapped: g}
}

// Add always fails with ErrReadOnly.
func (r *ReadOnlyView) Add(Triple) error { return ErrReadOnly }

// Delete always fails with ErrReadOnly.
func (r *ReadOnlyView) Delete(Triple) error { return ErrReadOnly }

// Contains forwards to the wrapped graph.
func (r *ReadOnlyView) Contains(t Triple) bool { return r.wrapped.Contains(t) }

// Find forwards to the wrapped graph.
func (r *ReadOnlyView) Find(pattern Pattern) TripleIterator { return r.wrapped.Find(pattern) }

// Size forwards to the wrapped graph.
func (r *ReadOnlyView) Size() int { return r.wrapped.Size() }

// IsEmpty forwards to the wrapped graph.
func (r *ReadOnlyView) IsEmpty() bool { return r.wrapped.IsEmpty() }

// Capabilities reports the wrapped graph's descriptor with Add/Delete
// permissions forced to false, regardless of what the wrapped graph itself
// allows.
func (r *ReadOnlyView) Capabilities() Capabilities {
	c := r.wrapped.Capabilities()
	c.AddAllowed = false
	c.DeleteAllowed = false
	return c
}

// Unwrap returns the underlying graph, for internal chain-walking code
// (merge, rebase) that needs to see past the read-only wrapper. It is not
// part of the Store contract exposed to transaction sessions.
func (r *ReadOnlyView) Unwrap() Store { return r.wrapped }
