package ledger_test

import (
	"context"
	"testing"

	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	cidV0 = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	cidV1 = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
)

func TestFingerprint_Deterministic(t *testing.T) {
	f1 := ledger.Fingerprint(cidV0)
	f2 := ledger.Fingerprint(cidV0)
	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 64) // hex of a 256-bit digest
	assert.NotEqual(t, f1, ledger.Fingerprint(cidV1))
}

func TestAttest_RejectsDuplicateFingerprint(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t))
	ctx := context.Background()
	fp := ledger.Fingerprint(cidV0)

	require.NoError(t, l.Attest(ctx, "alice", fp, cidV0, nil))
	assert.True(t, l.IsAttested(fp))

	err := l.Attest(ctx, "alice", fp, cidV0, nil)
	require.ErrorIs(t, err, ledger.ErrDuplicateFingerprint)

	// The original attestation survives the rejected resubmission.
	assert.True(t, l.IsAttested(fp))
	head, err := l.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head)
}

func TestAttest_DuplicateFromOtherSubmitterStillRejected(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t))
	ctx := context.Background()
	fp := ledger.Fingerprint(cidV0)

	require.NoError(t, l.Attest(ctx, "alice", fp, cidV0, nil))
	err := l.Attest(ctx, "mallory", fp, cidV0, []byte("other"))
	require.ErrorIs(t, err, ledger.ErrDuplicateFingerprint)

	assert.Empty(t, l.ContentAddresses("mallory"))
}

func TestContentAddresses_InsertionOrder(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, l.Attest(ctx, "alice", ledger.Fingerprint(cidV0), cidV0, nil))
	require.NoError(t, l.Attest(ctx, "bob", ledger.Fingerprint(cidV1), cidV1, nil))
	require.NoError(t, l.Attest(ctx, "alice", ledger.Fingerprint("third"), "third", nil))

	assert.Equal(t, []string{cidV0, "third"}, l.ContentAddresses("alice"))
	assert.Equal(t, []string{cidV1}, l.ContentAddresses("bob"))
}

func TestReadRange_Bounds(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t))
	ctx := context.Background()

	for _, addr := range []string{"a", "b", "c", "d"} {
		require.NoError(t, l.Attest(ctx, "alice", ledger.Fingerprint(addr), addr, nil))
	}

	events, err := l.ReadRange(ctx, 2, 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Seq)
	assert.Equal(t, "b", events[0].ContentAddress)
	assert.Equal(t, uint64(3), events[1].Seq)

	// to beyond head is clamped
	events, err = l.ReadRange(ctx, 3, 100)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// empty range
	events, err = l.ReadRange(ctx, 10, 20)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSubscribe_DeliversNewEvents(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t))
	ctx := context.Background()

	events, cancel, err := l.Subscribe(ctx)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, l.Attest(ctx, "alice", ledger.Fingerprint(cidV0), cidV0, []byte("aux")))

	ev := <-events
	assert.Equal(t, uint64(1), ev.Seq)
	assert.Equal(t, "alice", ev.Submitter)
	assert.Equal(t, cidV0, ev.ContentAddress)
	assert.Equal(t, []byte("aux"), ev.Auxiliary)
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	l := ledger.New(zaptest.NewLogger(t))

	events, cancel, err := l.Subscribe(context.Background())
	require.NoError(t, err)

	cancel()
	_, open := <-events
	assert.False(t, open)

	// Attesting after cancellation must not panic or block.
	require.NoError(t, l.Attest(context.Background(), "alice", ledger.Fingerprint(cidV0), cidV0, nil))
}
