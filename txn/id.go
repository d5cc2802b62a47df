package txn

import (
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// SessionID identifies one begin..commit/abort/end transaction lifecycle.
// Promote preserves the SessionID across the READ→WRITE transition.
type SessionID string

// txnSeq is a process-wide monotonic counter folded into every generated
// SessionID, guaranteeing uniqueness without a wall-clock read (the
// teacher's storage.generateTxID instead formats a timestamp, which can
// collide under high-frequency begins within the same microsecond bucket).
var txnSeq atomic.Uint64

// newSessionID returns a short, collision-resistant session id: a
// blake2b-256 hash of the next sequence number, hex-encoded and truncated.
// Hashing (rather than printing the counter directly) keeps ids a fixed,
// short width regardless of how large the counter grows, and avoids leaking
// the exact number of transactions a caller has begun.
func newSessionID() SessionID {
	seq := txnSeq.Add(1)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)

	sum := blake2b.Sum256(buf[:])
	return SessionID("tx-" + hex.EncodeToString(sum[:8]))
}

// ReaderIDFor derives the GraphChain reader id used for a read session,
// keeping the two id spaces (SessionID, ReaderID) visibly related for
// debugging without aliasing the same Go type.
func ReaderIDFor(id SessionID) ReaderID { return ReaderID(id) }
