package txn

import "errors"

// Sentinel errors surfaced by the transactional engine. Each maps to one of
// the error kinds in spec §7; callers should compare with errors.Is, since
// several are wrapped with additional context via fmt.Errorf("...: %w", ...).
var (
	// ErrNotInTransaction is returned by any session read/write operation
	// issued outside a begin..end span.
	ErrNotInTransaction = errors.New("txn: not in a transaction")

	// ErrAlreadyInTransaction is returned by BeginContext when the given
	// context already carries a live session.
	ErrAlreadyInTransaction = errors.New("txn: already in a transaction")

	// ErrWriteAcquireTimeout is returned by Begin(Write) when the write
	// permit is not obtained within transactionTimeout + sweepInterval.
	ErrWriteAcquireTimeout = errors.New("txn: timed out waiting for the write permit")

	// ErrPermitInterrupted is returned when a blocked permit wait is
	// cancelled via context.
	ErrPermitInterrupted = errors.New("txn: write permit wait interrupted")

	// ErrNotRegistered is returned by coordinator operations for a session
	// the coordinator has no record of.
	ErrNotRegistered = errors.New("txn: session not registered with coordinator")

	// ErrTimedOut is returned to a session whose heartbeat lapsed and was
	// swept by the coordinator. Heartbeat staleness is the only timeout
	// signal; whether the goroutine that began the session is still running
	// is not observed.
	ErrTimedOut = errors.New("txn: transaction timed out")

	// ErrRebaseImpossible indicates the invariant a commit depends on
	// (stale.dataVersion == active.dataVersion at swap time) was violated.
	// This signals a bug in the swap/merge bookkeeping, not a user error.
	ErrRebaseImpossible = errors.New("txn: rebase invariant violated, stale chain has diverged")

	// ErrMissingCommitOrAbort is returned (in addition to performing an
	// abort) when End is called on a WRITE session with no prior commit or
	// abort.
	ErrMissingCommitOrAbort = errors.New("txn: end called on a write session without commit or abort")

	// ErrChainState signals an internal GraphChain precondition violation:
	// a double write slot, a double reader registration, or a merge
	// attempted while the chain is not quiescent. These are programmer
	// errors, not recoverable user conditions.
	ErrChainState = errors.New("txn: graph chain state invariant violated")
)
