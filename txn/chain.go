package txn

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nornicdb/txgraph/graph"
)

// ReaderID identifies one reader session registered against a GraphChain.
type ReaderID string

// GraphChain holds one side of the active/stale pair: the last-committed
// graph, an at-most-one write slot, the set of live readers snapshotted on
// lastCommitted, the FIFO of committed deltas waiting to be replayed once
// this chain becomes stale, the depth of the delta spine rooted at the
// chain's original base, and a monotonic data version.
//
// Every method below that touches lastCommitted, writeSlot, chainLength, or
// pendingDeltas assumes the caller already holds whatever outer
// synchronization the spec assigns to that operation (TransactionalGraph's
// swap lock, in this engine); GraphChain's own mutex exists so the type
// remains safe to use on its own (e.g. in tests) without relying on that
// external discipline.
type GraphChain struct {
	mu sync.Mutex

	lastCommitted graph.Store
	writeSlot     *graph.DeltaGraph
	readers       map[ReaderID]struct{}
	pendingDeltas []*graph.DeltaGraph

	chainLength atomic.Int64
	dataVersion atomic.Int64
}

// NewGraphChain returns a chain whose last-committed graph is base, with no
// readers, no write slot, and an empty delta spine.
func NewGraphChain(base graph.Store) *GraphChain {
	return &GraphChain{
		lastCommitted: base,
		readers:       make(map[ReaderID]struct{}),
	}
}

// GetLastCommittedAndAddReader registers id in the reader set and returns a
// ReadOnlyView over the chain's current last-committed graph. It fails with
// ErrChainState if id is already registered.
func (c *GraphChain) GetLastCommittedAndAddReader(id ReaderID) (*graph.ReadOnlyView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.readers[id]; exists {
		return nil, fmt.Errorf("%w: reader %q already registered", ErrChainState, id)
	}
	c.readers[id] = struct{}{}
	return graph.NewReadOnlyView(c.lastCommitted), nil
}

// RemoveReader removes id from the reader set. It is idempotent: removing an
// id that is not present (already removed, or never registered) is a no-op.
func (c *GraphChain) RemoveReader(id ReaderID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.readers, id)
}

// ReaderCount returns the number of currently registered readers.
func (c *GraphChain) ReaderCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.readers)
}

// HasNoReaders reports whether the chain currently has zero registered
// readers.
func (c *GraphChain) HasNoReaders() bool { return c.ReaderCount() == 0 }

// PrepareGraphForWriting creates a new DeltaGraph layered on the chain's
// current last-committed graph, stores it in the write slot, and returns
// it. It requires the write slot to be empty; calling it twice without an
// intervening Link/Discard is a ChainStateError.
func (c *GraphChain) PrepareGraphForWriting() (*graph.DeltaGraph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeSlot != nil {
		return nil, fmt.Errorf("%w: write slot already occupied", ErrChainState)
	}
	delta, err := graph.NewDeltaGraph(c.lastCommitted)
	if err != nil {
		return nil, err
	}
	c.writeSlot = delta
	return delta, nil
}

// LinkGraphForWritingToChain installs the chain's write slot as the new
// last-committed graph, increments chainLength and dataVersion, and clears
// the write slot. It requires a non-empty write slot.
func (c *GraphChain) LinkGraphForWritingToChain() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeSlot == nil {
		return fmt.Errorf("%w: no write in progress to link", ErrChainState)
	}
	c.lastCommitted = c.writeSlot
	c.writeSlot = nil
	c.chainLength.Add(1)
	c.dataVersion.Add(1)
	return nil
}

// RebaseAndLinkDelta constructs a new DeltaGraph whose base is the chain's
// current last-committed graph and which reuses delta's additions store and
// deletions set (shared with delta, not copied), installs it as the new
// last-committed graph, and increments
// chainLength and dataVersion. It is used when a commit's original chain
// has been demoted to stale between begin and commit (see the reconciler).
func (c *GraphChain) RebaseAndLinkDelta(delta *graph.DeltaGraph) (*graph.DeltaGraph, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rebased, err := graph.NewDeltaGraphFromOverlay(c.lastCommitted, delta.Additions(), delta.Deletions())
	if err != nil {
		return nil, err
	}
	c.lastCommitted = rebased
	c.chainLength.Add(1)
	c.dataVersion.Add(1)
	return rebased, nil
}

// DiscardGraphForWriting clears the write slot without changing
// lastCommitted. Discarding an already-empty slot is a no-op.
func (c *GraphChain) DiscardGraphForWriting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeSlot = nil
}

// QueueDelta appends delta to the chain's pending-delta FIFO, to be applied
// the next time this chain is reconciled as the stale chain.
func (c *GraphChain) QueueDelta(delta *graph.DeltaGraph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingDeltas = append(c.pendingDeltas, delta)
}

// ChainLength returns the current depth of the delta spine rooted at the
// chain's original base.
func (c *GraphChain) ChainLength() int { return int(c.chainLength.Load()) }

// DataVersion returns the chain's monotonic write counter.
func (c *GraphChain) DataVersion() int64 { return c.dataVersion.Load() }

// PendingDeltaCount returns the number of deltas currently queued for
// replay onto this chain.
func (c *GraphChain) PendingDeltaCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingDeltas)
}

// IsDirty reports whether the chain has anything to reconcile: an unmerged
// delta spine, or queued deltas awaiting replay.
func (c *GraphChain) IsDirty() bool {
	return c.ChainLength() > 0 || c.PendingDeltaCount() > 0
}

// IsClean is the complement of IsDirty.
func (c *GraphChain) IsClean() bool { return !c.IsDirty() }

// LastCommitted returns the chain's current head graph. It is exposed for
// snapshotting by the transactional graph (e.g. comparing chain identity
// across the swap lock) and for tests; transaction sessions only ever see a
// graph through GetLastCommittedAndAddReader or PrepareGraphForWriting.
func (c *GraphChain) LastCommitted() graph.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCommitted
}

// MergeDeltaChain collapses the chain's delta spine onto its original base,
// mutating that base in place and resetting lastCommitted to it with
// chainLength 0. It requires no readers and no in-flight write; calling it
// otherwise is a ChainStateError. If the chain is already merged
// (chainLength == 0) it is a no-op.
func (c *GraphChain) MergeDeltaChain() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.readersEmptyLocked() || c.writeSlot != nil {
		return fmt.Errorf("%w: cannot merge while readers or a write are active", ErrChainState)
	}
	if c.chainLength.Load() == 0 {
		return nil
	}

	deltas, root := collectSpine(c.lastCommitted)
	// deltas is ordered top (lastCommitted) to bottom (just above root);
	// apply bottom-up so each step's base is already merged.
	for i := len(deltas) - 1; i >= 0; i-- {
		if err := applyOverlay(root, deltas[i]); err != nil {
			return err
		}
	}

	c.lastCommitted = root
	c.chainLength.Store(0)
	return nil
}

// ApplyQueuedDeltas drains the chain's pending-delta FIFO, applying each
// delta's additions then deletions directly onto lastCommitted and
// incrementing dataVersion once per applied delta. It requires a merged
// spine (chainLength == 0), no readers, and no in-flight write.
func (c *GraphChain) ApplyQueuedDeltas() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainLength.Load() != 0 {
		return fmt.Errorf("%w: cannot apply queued deltas onto an unmerged chain", ErrChainState)
	}
	if !c.readersEmptyLocked() || c.writeSlot != nil {
		return fmt.Errorf("%w: cannot apply queued deltas while readers or a write are active", ErrChainState)
	}

	for len(c.pendingDeltas) > 0 {
		delta := c.pendingDeltas[0]
		c.pendingDeltas = c.pendingDeltas[1:]
		if err := applyOverlay(c.lastCommitted, delta); err != nil {
			return err
		}
		c.dataVersion.Add(1)
	}
	return nil
}

func (c *GraphChain) readersEmptyLocked() bool { return len(c.readers) == 0 }

// collectSpine walks the DeltaGraph spine rooted at g, returning the
// deltas from the top (g itself, if it is a DeltaGraph) down to the
// original, non-overlay base.
func collectSpine(g graph.Store) (deltas []*graph.DeltaGraph, root graph.Store) {
	cur := g
	for {
		d, ok := cur.(*graph.DeltaGraph)
		if !ok {
			return deltas, cur
		}
		deltas = append(deltas, d)
		cur = d.Base()
	}
}

// applyOverlay applies delta's additions then deletions directly onto dst,
// a mutable Store. Additions are applied before deletions so a
// hash-indexed store never briefly shrinks only to re-grow.
func applyOverlay(dst graph.Store, delta *graph.DeltaGraph) error {
	it := delta.Additions().Find(graph.AnyPattern)
	for it.Next() {
		if err := dst.Add(it.Triple()); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	for t := range delta.Deletions() {
		if err := dst.Delete(t); err != nil {
			return err
		}
	}
	return nil
}
