package ledger

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// Event is emitted once per accepted attestation. Seq is assigned by the
// ledger, is strictly increasing, and plays the block-height role for
// backfill scans.
type Event struct {
	Seq            uint64    `json:"seq"`
	Submitter      string    `json:"submitter"`
	Fingerprint    string    `json:"fingerprint"`
	ContentAddress string    `json:"contentAddress"`
	Auxiliary      []byte    `json:"auxiliary,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Fingerprint derives the ledger dedup key for a content address.
// The same address always yields the same fingerprint, so a resubmission
// of an already-attested address is rejected by the duplicate check.
func Fingerprint(contentAddress string) string {
	sum := blake3.Sum256([]byte(contentAddress))
	return hex.EncodeToString(sum[:])
}

// Client is the read surface the indexer consumes. The in-process Ledger
// implements it directly; WSClient implements it against a remote node.
type Client interface {
	// Head returns the sequence number of the most recent event.
	Head(ctx context.Context) (uint64, error)
	// ReadRange returns events with from <= Seq <= to, in order.
	ReadRange(ctx context.Context, from, to uint64) ([]Event, error)
	// Subscribe delivers events accepted after the call. The returned
	// cancel func releases the subscription; the channel is closed after
	// cancellation or context end.
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

// Submitter is the write surface used by the submission API.
type Submitter interface {
	Attest(ctx context.Context, submitter, fingerprint, contentAddress string, auxiliary []byte) error
	IsAttested(fingerprint string) bool
}
