package txn

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nornicdb/txgraph/graph"
)

func newTestGraph(t *testing.T) *TransactionalGraph {
	t.Helper()
	cfg := NewConfig(
		WithMaxChainLength(2),
		WithTransactionTimeout(100*time.Millisecond),
		WithSweepInterval(20*time.Millisecond),
	)
	tg, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(tg.Close)
	return tg
}

func TestTransactionalGraph_WriteThenReadSeesCommit(t *testing.T) {
	tg := newTestGraph(t)

	w, err := tg.Begin(Write)
	require.NoError(t, err)
	require.NoError(t, w.Add(graph.NewTriple("alice", "knows", "bob")))
	require.NoError(t, w.Commit())
	require.NoError(t, w.End())

	r, err := tg.Begin(Read)
	require.NoError(t, err)
	ok, err := r.Contains(graph.NewTriple("alice", "knows", "bob"))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, r.End())
}

func TestTransactionalGraph_ReadSnapshotIsolatedFromLaterWrite(t *testing.T) {
	tg := newTestGraph(t)

	r, err := tg.Begin(Read)
	require.NoError(t, err)

	w, err := tg.Begin(Write)
	require.NoError(t, err)
	require.NoError(t, w.Add(graph.NewTriple("x", "y", "z")))
	require.NoError(t, w.Commit())
	require.NoError(t, w.End())

	ok, err := r.Contains(graph.NewTriple("x", "y", "z"))
	require.NoError(t, err)
	assert.False(t, ok, "a reader begun before the write must not observe it")
	require.NoError(t, r.End())

	r2, err := tg.Begin(Read)
	require.NoError(t, err)
	ok, err = r2.Contains(graph.NewTriple("x", "y", "z"))
	require.NoError(t, err)
	assert.True(t, ok, "a reader begun after commit must observe it")
	require.NoError(t, r2.End())
}

func TestTransactionalGraph_WriteIsExclusive(t *testing.T) {
	tg := newTestGraph(t)

	w1, err := tg.Begin(Write)
	require.NoError(t, err)

	done := make(chan struct{})
	var w2 *Session
	go func() {
		var beginErr error
		w2, beginErr = tg.Begin(Write)
		require.NoError(t, beginErr)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second writer began before the first released the permit")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, w1.Commit())
	require.NoError(t, w1.End())

	<-done
	require.NoError(t, w2.Commit())
	require.NoError(t, w2.End())
}

func TestTransactionalGraph_AbortDiscardsChanges(t *testing.T) {
	tg := newTestGraph(t)

	w, err := tg.Begin(Write)
	require.NoError(t, err)
	require.NoError(t, w.Add(graph.NewTriple("a", "b", "c")))
	require.NoError(t, w.Abort())

	r, err := tg.Begin(Read)
	require.NoError(t, err)
	ok, err := r.Contains(graph.NewTriple("a", "b", "c"))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, r.End())
}

func TestTransactionalGraph_EndWithoutCommitOrAbortReportsMissing(t *testing.T) {
	tg := newTestGraph(t)

	w, err := tg.Begin(Write)
	require.NoError(t, err)
	require.NoError(t, w.Add(graph.NewTriple("a", "b", "c")))

	err = w.End()
	assert.ErrorIs(t, err, ErrMissingCommitOrAbort)
	assert.False(t, w.IsLive())

	// the abort End() performed on our behalf must have discarded the change
	// and released the write permit for the next writer.
	w2, err := tg.Begin(Write)
	require.NoError(t, err)
	ok, err := w2.Contains(graph.NewTriple("a", "b", "c"))
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, w2.Abort())
}

func TestTransactionalGraph_EndAfterCommitIsNoOp(t *testing.T) {
	tg := newTestGraph(t)

	w, err := tg.Begin(Write)
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	assert.NoError(t, w.End())
}

func TestTransactionalGraph_PromoteIsolatedFailsOnIntervening(t *testing.T) {
	tg := newTestGraph(t)

	r, err := tg.Begin(Read)
	require.NoError(t, err)

	w, err := tg.Begin(Write)
	require.NoError(t, err)
	require.NoError(t, w.Add(graph.NewTriple("p", "q", "r")))
	require.NoError(t, w.Commit())
	require.NoError(t, w.End())

	ok, err := r.Promote(Isolated)
	require.NoError(t, err)
	assert.False(t, ok, "isolated promote must fail once another transaction committed")
}

func TestTransactionalGraph_PromoteIsolatedSucceedsWithNoIntervening(t *testing.T) {
	tg := newTestGraph(t)

	r, err := tg.Begin(Read)
	require.NoError(t, err)

	ok, err := r.Promote(Isolated)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ModeWrite, r.Mode())

	require.NoError(t, r.Add(graph.NewTriple("m", "n", "o")))
	require.NoError(t, r.Commit())
	require.NoError(t, r.End())
}

func TestTransactionalGraph_PromoteReadCommittedIgnoresIntervening(t *testing.T) {
	tg := newTestGraph(t)

	r, err := tg.Begin(Read)
	require.NoError(t, err)

	w, err := tg.Begin(Write)
	require.NoError(t, err)
	require.NoError(t, w.Add(graph.NewTriple("p", "q", "r")))
	require.NoError(t, w.Commit())
	require.NoError(t, w.End())

	ok, err := r.Promote(ReadCommitted)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, r.Abort())
}

func TestTransactionalGraph_PromoteFailsWhenWriterHoldsPermit(t *testing.T) {
	tg := newTestGraph(t)

	w, err := tg.Begin(Write)
	require.NoError(t, err)

	r, err := tg.Begin(Read)
	require.NoError(t, err)

	ok, err := r.Promote(ReadCommitted)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, w.Commit())
	require.NoError(t, r.End())
}

func TestTransactionalGraph_OperationsOutsideSessionFail(t *testing.T) {
	tg := newTestGraph(t)

	w, err := tg.Begin(Write)
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	require.NoError(t, w.End())

	_, err = w.Contains(graph.NewTriple("a", "b", "c"))
	assert.ErrorIs(t, err, ErrNotInTransaction)
}

func TestTransactionalGraph_ManyWritesAcrossSwapsStayConsistent(t *testing.T) {
	tg := newTestGraph(t)

	for i := 0; i < 10; i++ {
		w, err := tg.Begin(Write)
		require.NoError(t, err)
		require.NoError(t, w.Add(graph.NewTriple("n", "p", string(rune('a'+i)))))
		require.NoError(t, w.Commit())
		require.NoError(t, w.End())
	}

	r, err := tg.Begin(Read)
	require.NoError(t, err)
	size, err := r.Size()
	require.NoError(t, err)
	assert.Equal(t, 10, size)
	require.NoError(t, r.End())
}

func TestBeginContext_RejectsNestedBegin(t *testing.T) {
	tg := newTestGraph(t)

	ctx, sess, err := BeginContext(t.Context(), tg, Read)
	require.NoError(t, err)
	require.NotNil(t, sess)

	_, _, err = BeginContext(ctx, tg, Read)
	assert.ErrorIs(t, err, ErrAlreadyInTransaction)

	require.NoError(t, sess.End())
}

func TestTransactionalGraph_ConcurrentReadersDoNotBlockEachOther(t *testing.T) {
	tg := newTestGraph(t)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := tg.Begin(Read)
			if err != nil {
				errs <- err
				return
			}
			time.Sleep(5 * time.Millisecond)
			errs <- r.End()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestTransactionalGraph_RebaseImpossibleIsASentinelError(t *testing.T) {
	assert.True(t, errors.Is(ErrRebaseImpossible, ErrRebaseImpossible))
}
