// Package txn implements the transactional wrapper around a pair of
// graph.Store-based GraphChains: begin/commit/abort/end/promote semantics,
// per-session transaction state, snapshot isolation, and the background
// reconciliation that keeps one chain shallow while the other absorbs
// replayed commits.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nornicdb/txgraph/graph"
)

// TxnType is the transaction kind passed to Begin. READ_PROMOTE and
// READ_COMMITTED_PROMOTE begin exactly like READ; they exist only to record
// the caller's intent to promote later (see Session.Promote).
type TxnType int

const (
	Read TxnType = iota
	Write
	ReadPromote
	ReadCommittedPromote
)

// Mode is the effective READ/WRITE mode a TxnType maps to.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

func (m Mode) String() string {
	if m == ModeWrite {
		return "WRITE"
	}
	return "READ"
}

func effectiveMode(t TxnType) Mode {
	if t == Write {
		return ModeWrite
	}
	return ModeRead
}

// PromoteMode selects how Session.Promote validates the transition from
// READ to WRITE.
type PromoteMode int

const (
	// Isolated requires that no commit has happened since the read
	// session began; promotion fails if the global data version moved.
	Isolated PromoteMode = iota

	// ReadCommitted promotes unconditionally onto the current active
	// chain, accepting whatever has committed since the session began.
	ReadCommitted
)

// TransactionalGraph orchestrates two GraphChains (active, stale), a single
// write permit, a coordinator, and a background reconciler. Writers always
// target active; a read begun before a chain swap stays bound to the chain
// it snapshotted. See Begin, Session.Commit, Session.Abort, and
// Session.Promote for the per-session lifecycle, and the unexported
// reconcileLoop/preSwapLoop for the active/stale swap scheme.
type TransactionalGraph struct {
	cfg Config

	swapMu sync.Mutex // the "swap lock": guards active, stale, and any GraphChain mutation reachable from them
	active *GraphChain
	stale  *GraphChain

	writePermit *semaphore.Weighted
	dataVersion atomic.Int64 // global version, distinct from each chain's own dataVersion

	coordinator *Coordinator

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a TransactionalGraph from cfg, starts its coordinator's
// timeout sweep, and starts its background reconciler. Callers must call
// Close when finished to stop both goroutines.
func New(cfg Config) (*TransactionalGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	activeBase := cfg.GraphFactory()
	staleBase := cfg.GraphFactory()
	if cfg.InitialGraph != nil {
		copied, err := graph.CopyStore(cfg.InitialGraph, activeBase)
		if err != nil {
			return nil, fmt.Errorf("txn: load initial graph into active chain: %w", err)
		}
		activeBase = copied

		copied, err = graph.CopyStore(cfg.InitialGraph, staleBase)
		if err != nil {
			return nil, fmt.Errorf("txn: load initial graph into stale chain: %w", err)
		}
		staleBase = copied
	}

	tg := &TransactionalGraph{
		cfg:         cfg,
		active:      NewGraphChain(activeBase),
		stale:       NewGraphChain(staleBase),
		writePermit: semaphore.NewWeighted(1),
		coordinator: NewCoordinator(cfg, nil),
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	tg.coordinator.Start()
	go tg.reconcileLoop()
	return tg, nil
}

// Close stops the background reconciler and the coordinator's sweep. Close
// is idempotent.
func (tg *TransactionalGraph) Close() {
	tg.stopOnce.Do(func() { close(tg.stopCh) })
	<-tg.done
	tg.coordinator.Stop()
}

// Stats is a point-in-time snapshot of chain depth, reader counts, and data
// version, for operational visibility (SPEC_FULL §4); it is a passive read,
// not a metrics exporter.
type Stats struct {
	ActiveChainLength int
	StaleChainLength  int
	ActiveReaders     int
	StaleReaders      int
	DataVersion       int64
}

// Stats returns a snapshot of the engine's current chain state.
func (tg *TransactionalGraph) Stats() Stats {
	tg.swapMu.Lock()
	defer tg.swapMu.Unlock()
	return Stats{
		ActiveChainLength: tg.active.ChainLength(),
		StaleChainLength:  tg.stale.ChainLength(),
		ActiveReaders:     tg.active.ReaderCount(),
		StaleReaders:      tg.stale.ReaderCount(),
		DataVersion:       tg.dataVersion.Load(),
	}
}

// Session is the handle returned by Begin, threaded explicitly through the
// rest of a transaction's lifecycle. Per spec's "thread-local session
// state" design note, this engine carries the session as an explicit
// handle rather than binding it implicitly to the calling goroutine; see
// BeginContext for a context.Context-carried convenience layer that
// recovers the spec's "begin while already in a session" check.
type Session struct {
	id   SessionID
	tg   *TransactionalGraph
	mode Mode

	mu       sync.Mutex
	chain    *GraphChain
	readOnly *graph.ReadOnlyView
	delta    *graph.DeltaGraph

	snapshotVersion int64

	live     atomic.Bool
	terminal bool // set once Commit or Abort has run, guards End's MissingCommitOrAbort check
}

// Begin starts a new session of the given type. WRITE blocks up to
// TransactionTimeout+SweepInterval acquiring the single write
// permit; READ (and its promote-intent aliases) never block beyond the
// short swap-lock section.
func (tg *TransactionalGraph) Begin(txnType TxnType) (*Session, error) {
	if effectiveMode(txnType) == ModeWrite {
		return tg.beginWrite(txnType)
	}
	return tg.beginRead(txnType)
}

func (tg *TransactionalGraph) beginWrite(txnType TxnType) (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tg.cfg.TransactionTimeout+tg.cfg.SweepInterval)
	defer cancel()

	if err := tg.writePermit.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrPermitInterrupted
		}
		return nil, ErrWriteAcquireTimeout
	}

	tg.preSwapLoop(ctx)

	tg.swapMu.Lock()
	chain := tg.active
	delta, err := chain.PrepareGraphForWriting()
	tg.swapMu.Unlock()
	if err != nil {
		tg.writePermit.Release(1)
		return nil, err
	}

	id := newSessionID()
	sess := &Session{id: id, tg: tg, mode: ModeWrite, chain: chain, delta: delta}
	sess.live.Store(true)

	timeoutRunnable := func() {
		tg.swapMu.Lock()
		chain.DiscardGraphForWriting()
		tg.swapMu.Unlock()
		tg.writePermit.Release(1)
		sess.live.Store(false)
	}
	if err := tg.coordinator.Register(id, timeoutRunnable); err != nil {
		tg.swapMu.Lock()
		chain.DiscardGraphForWriting()
		tg.swapMu.Unlock()
		tg.writePermit.Release(1)
		return nil, err
	}
	return sess, nil
}

func (tg *TransactionalGraph) beginRead(txnType TxnType) (*Session, error) {
	id := newSessionID()

	tg.swapMu.Lock()
	chain := tg.active
	view, err := chain.GetLastCommittedAndAddReader(ReaderIDFor(id))
	snapshotVersion := tg.dataVersion.Load()
	tg.swapMu.Unlock()
	if err != nil {
		return nil, err
	}

	sess := &Session{id: id, tg: tg, mode: ModeRead, chain: chain, readOnly: view, snapshotVersion: snapshotVersion}
	sess.live.Store(true)

	timeoutRunnable := func() {
		chain.RemoveReader(ReaderIDFor(id))
		sess.live.Store(false)
	}
	if err := tg.coordinator.Register(id, timeoutRunnable); err != nil {
		chain.RemoveReader(ReaderIDFor(id))
		return nil, err
	}
	return sess, nil
}

// ID returns the session's identifier, stable across Promote.
func (s *Session) ID() SessionID { return s.id }

// Mode reports the session's current effective mode (READ or WRITE);
// Promote changes this from READ to WRITE in place.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// IsLive reports whether the session is still usable: not yet committed,
// aborted, ended, or timed out.
func (s *Session) IsLive() bool { return s.live.Load() }

func (s *Session) checkLive() error {
	if !s.live.Load() {
		if s.tg.coordinator.IsTimedOut(s.id) {
			return ErrTimedOut
		}
		return ErrNotInTransaction
	}
	if err := s.tg.coordinator.RefreshHeartbeat(s.id); err != nil {
		if errors.Is(err, ErrTimedOut) {
			s.live.Store(false)
		}
		return err
	}
	return nil
}

func (s *Session) handle() graph.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeWrite {
		return s.delta
	}
	return s.readOnly
}

// Add stages t for addition. Outside a live session it returns
// ErrNotInTransaction or ErrTimedOut; on a READ session it returns
// graph.ErrReadOnly.
func (s *Session) Add(t graph.Triple) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	return s.handle().Add(t)
}

// Delete stages t for deletion. See Add for the error conditions outside a
// live WRITE session.
func (s *Session) Delete(t graph.Triple) error {
	if err := s.checkLive(); err != nil {
		return err
	}
	return s.handle().Delete(t)
}

// Contains reports whether t is visible through the session's graph.
func (s *Session) Contains(t graph.Triple) (bool, error) {
	if err := s.checkLive(); err != nil {
		return false, err
	}
	return s.handle().Contains(t), nil
}

// Find returns an iterator over triples matching pattern, as seen through
// the session's graph.
func (s *Session) Find(pattern graph.Pattern) (graph.TripleIterator, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	return s.handle().Find(pattern), nil
}

// Size reports the triple count visible through the session's graph.
func (s *Session) Size() (int, error) {
	if err := s.checkLive(); err != nil {
		return 0, err
	}
	return s.handle().Size(), nil
}

// IsEmpty reports whether Size() == 0.
func (s *Session) IsEmpty() (bool, error) {
	if err := s.checkLive(); err != nil {
		return false, err
	}
	return s.handle().IsEmpty(), nil
}

// Commit finalizes the session. For READ it releases the chain reader. For
// WRITE with no staged changes it discards the write slot without
// affecting any chain; with staged changes it links the delta into the
// current active chain (rebasing first if active was swapped out from
// under the session while it was writing) and queues the delta onto the
// new stale chain for replay.
func (s *Session) Commit() error {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	if mode == ModeRead {
		return s.commitRead()
	}
	return s.commitWrite()
}

func (s *Session) commitRead() error {
	unregErr := s.tg.coordinator.Unregister(s.id)
	s.chain.RemoveReader(ReaderIDFor(s.id))
	s.markTerminal()
	if errors.Is(unregErr, ErrTimedOut) {
		return ErrTimedOut
	}
	return nil
}

func (s *Session) commitWrite() error {
	unregErr := s.tg.coordinator.Unregister(s.id)
	if errors.Is(unregErr, ErrTimedOut) {
		s.markTerminal()
		return ErrTimedOut
	}

	if !s.delta.HasChanges() {
		s.tg.swapMu.Lock()
		s.chain.DiscardGraphForWriting()
		s.tg.swapMu.Unlock()
		s.tg.writePermit.Release(1)
		s.markTerminal()
		return nil
	}

	s.tg.swapMu.Lock()

	if s.chain == s.tg.active {
		if err := s.chain.LinkGraphForWritingToChain(); err != nil {
			s.tg.swapMu.Unlock()
			s.tg.writePermit.Release(1)
			s.markTerminal()
			return err
		}
		s.tg.stale.QueueDelta(s.delta)
	} else {
		// s.chain (the chain this write began against) has been demoted
		// to stale by a swap that happened while this writer was active.
		if s.tg.stale.DataVersion() != s.tg.active.DataVersion() {
			s.tg.swapMu.Unlock()
			s.chain.DiscardGraphForWriting()
			s.tg.writePermit.Release(1)
			s.markTerminal()
			return ErrRebaseImpossible
		}
		s.chain.DiscardGraphForWriting()
		s.chain.QueueDelta(s.delta)
		if _, err := s.tg.active.RebaseAndLinkDelta(s.delta); err != nil {
			s.tg.swapMu.Unlock()
			s.tg.writePermit.Release(1)
			s.markTerminal()
			return err
		}
	}

	s.tg.dataVersion.Add(1)
	s.tg.swapMu.Unlock()

	s.tg.writePermit.Release(1)
	s.tg.signalReconciler()
	s.markTerminal()
	return nil
}

// Abort discards the session's changes (if WRITE) or releases its reader
// (if READ), always clearing the session's local state.
func (s *Session) Abort() error {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	unregErr := s.tg.coordinator.Unregister(s.id)

	if mode == ModeRead {
		s.chain.RemoveReader(ReaderIDFor(s.id))
	} else {
		s.tg.swapMu.Lock()
		s.chain.DiscardGraphForWriting()
		s.tg.swapMu.Unlock()
		s.tg.writePermit.Release(1)
	}
	s.markTerminal()

	if errors.Is(unregErr, ErrTimedOut) {
		return ErrTimedOut
	}
	return nil
}

// End closes the session. If it is a WRITE session that was never
// committed or aborted, End performs an abort and additionally returns
// ErrMissingCommitOrAbort. Calling End after Commit/Abort (or after a
// prior End) is a no-op.
func (s *Session) End() error {
	s.mu.Lock()
	alreadyTerminal := s.terminal
	mode := s.mode
	s.mu.Unlock()

	if alreadyTerminal {
		return nil
	}

	if mode == ModeWrite {
		_ = s.Abort()
		return ErrMissingCommitOrAbort
	}
	return s.Abort()
}

func (s *Session) markTerminal() {
	s.mu.Lock()
	s.terminal = true
	s.mu.Unlock()
	s.live.Store(false)
}

// Promote attempts to turn a live READ session into a WRITE session,
// preserving its SessionID. It returns false (with no error) if the write
// permit cannot be acquired immediately, or if mode is Isolated and a
// commit has landed since the session began. Any error during promotion
// releases the write permit before it is returned.
func (s *Session) Promote(mode PromoteMode) (bool, error) {
	s.mu.Lock()
	if s.mode != ModeRead {
		s.mu.Unlock()
		return false, fmt.Errorf("txn: promote requires a READ session")
	}
	snapshotVersion := s.snapshotVersion
	s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return false, err
	}

	if !s.tg.writePermit.TryAcquire(1) {
		return false, nil
	}

	permitHeld := true
	defer func() {
		if permitHeld {
			s.tg.writePermit.Release(1)
		}
	}()

	if mode == Isolated && snapshotVersion != s.tg.dataVersion.Load() {
		return false, nil
	}

	if err := s.tg.coordinator.Unregister(s.id); err != nil && !errors.Is(err, ErrTimedOut) {
		return false, err
	}
	s.chain.RemoveReader(ReaderIDFor(s.id))

	s.tg.swapMu.Lock()
	newChain := s.tg.active
	delta, err := newChain.PrepareGraphForWriting()
	s.tg.swapMu.Unlock()
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.mode = ModeWrite
	s.chain = newChain
	s.delta = delta
	s.readOnly = nil
	s.mu.Unlock()
	s.live.Store(true)

	timeoutRunnable := func() {
		s.tg.swapMu.Lock()
		newChain.DiscardGraphForWriting()
		s.tg.swapMu.Unlock()
		s.tg.writePermit.Release(1)
		s.live.Store(false)
	}
	if err := s.tg.coordinator.Register(s.id, timeoutRunnable); err != nil {
		s.tg.swapMu.Lock()
		newChain.DiscardGraphForWriting()
		s.tg.swapMu.Unlock()
		return false, err
	}

	permitHeld = false // ownership transferred to the now-WRITE session
	return true, nil
}

// sessionCtxKey is the context.Context key BeginContext/SessionFromContext
// use to carry a *Session, recovering the spec's "begin while already in a
// session" check for callers that prefer context-threaded session state
// over passing *Session explicitly.
type sessionCtxKey struct{}

// BeginContext begins a session and returns a child context carrying it. If
// ctx already carries a live session, it returns ErrAlreadyInTransaction
// instead of beginning a new one.
func BeginContext(ctx context.Context, tg *TransactionalGraph, txnType TxnType) (context.Context, *Session, error) {
	if existing, ok := SessionFromContext(ctx); ok && existing.IsLive() {
		return ctx, nil, ErrAlreadyInTransaction
	}
	sess, err := tg.Begin(txnType)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, sessionCtxKey{}, sess), sess, nil
}

// SessionFromContext returns the *Session carried by ctx, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionCtxKey{}).(*Session)
	return sess, ok
}

// preSwapLoop is the synchronous reconciliation fallback run at the start
// of every WRITE begin: while active is dirty and stale can be reconciled
// (clean already, no readers, or active has reached MaxChainLength), it
// merges+drains stale and swaps, bounding active's chain depth even when
// the background reconciler has fallen behind.
func (tg *TransactionalGraph) preSwapLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tg.swapMu.Lock()
		shouldLoop := tg.active.IsDirty() &&
			(tg.stale.IsClean() || tg.stale.HasNoReaders() || tg.active.ChainLength() >= tg.cfg.MaxChainLength)
		if !shouldLoop {
			tg.swapMu.Unlock()
			return
		}
		progressed := tg.reconcileStaleLocked()
		tg.swapMu.Unlock()

		if !progressed {
			time.Sleep(time.Millisecond)
		}
	}
}

// reconcileStaleLocked merges and drains stale if it has no readers, then
// swaps active and stale if stale is now clean. Callers must hold swapMu.
func (tg *TransactionalGraph) reconcileStaleLocked() bool {
	progressed := false
	if tg.stale.HasNoReaders() && tg.stale.IsDirty() {
		_ = tg.stale.MergeDeltaChain()
		_ = tg.stale.ApplyQueuedDeltas()
		progressed = true
	}
	if tg.stale.IsClean() {
		tg.active, tg.stale = tg.stale, tg.active
		progressed = true
	}
	return progressed
}

func (tg *TransactionalGraph) signalReconciler() {
	select {
	case tg.wake <- struct{}{}:
	default:
	}
}

// reconcileLoop is the background reconciler (C7): woken after every
// commit/abort, it merges+drains stale and swaps when active is dirty and
// stale has no readers, and separately merges+drains a dirty, idle stale
// even when active itself has nothing to reconcile. A delayed retry on a
// shared timer handles the case where stale still has readers when the
// loop wakes.
func (tg *TransactionalGraph) reconcileLoop() {
	defer close(tg.done)

	timer := time.NewTimer(tg.cfg.SweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-tg.stopCh:
			return
		case <-tg.wake:
		case <-timer.C:
		}

		tg.swapMu.Lock()
		if tg.active.IsDirty() && tg.stale.HasNoReaders() {
			_ = tg.stale.MergeDeltaChain()
			_ = tg.stale.ApplyQueuedDeltas()
			if tg.stale.IsClean() {
				tg.active, tg.stale = tg.stale, tg.active
			}
		} else if tg.stale.IsDirty() && tg.stale.HasNoReaders() {
			_ = tg.stale.MergeDeltaChain()
			_ = tg.stale.ApplyQueuedDeltas()
		}
		tg.swapMu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(tg.cfg.SweepInterval)
	}
}
