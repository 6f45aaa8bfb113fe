package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// ErrDuplicateFingerprint is returned when a fingerprint has already been
// recorded. The original attestation is never overwritten.
var ErrDuplicateFingerprint = errors.New("fingerprint already attested")

const subscriberBuffer = 256

// Ledger is an append-only attestation log with a live event feed.
// It performs no validation of content beyond the duplicate check: it is a
// neutral log, not a validator of encrypted payload semantics.
//
// The live feed is best-effort: a subscriber that falls more than
// subscriberBuffer events behind loses the oldest ones. Consumers recover
// via ReadRange, which is the authoritative history.
type Ledger struct {
	logger *zap.Logger

	// seen maps fingerprint -> seq for lock-free IsAttested reads.
	seen *xsync.Map[string, uint64]

	mu          sync.RWMutex
	log         []Event
	bySubmitter map[string][]string
	subs        map[uint64]chan Event
	nextSub     uint64
}

func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		logger:      logger,
		seen:        xsync.NewMap[string, uint64](),
		bySubmitter: make(map[string][]string),
		subs:        make(map[uint64]chan Event),
	}
}

// Attest records (fingerprint, contentAddress, auxiliary) under the given
// submitter and broadcasts the resulting event. The sole failure mode is
// the duplicate check.
func (l *Ledger) Attest(_ context.Context, submitter, fingerprint, contentAddress string, auxiliary []byte) error {
	if fingerprint == "" {
		return fmt.Errorf("empty fingerprint")
	}

	l.mu.Lock()
	if _, dup := l.seen.Load(fingerprint); dup {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateFingerprint, fingerprint)
	}

	ev := Event{
		Seq:            uint64(len(l.log)) + 1,
		Submitter:      submitter,
		Fingerprint:    fingerprint,
		ContentAddress: contentAddress,
		Auxiliary:      auxiliary,
		Timestamp:      time.Now().UTC(),
	}
	l.log = append(l.log, ev)
	l.seen.Store(fingerprint, ev.Seq)
	l.bySubmitter[submitter] = append(l.bySubmitter[submitter], contentAddress)

	for id, ch := range l.subs {
		select {
		case ch <- ev:
		default:
			l.logger.Warn("Subscriber lagging, event not delivered live",
				zap.Uint64("subscriber", id),
				zap.Uint64("seq", ev.Seq))
		}
	}
	l.mu.Unlock()

	l.logger.Debug("Attestation recorded",
		zap.Uint64("seq", ev.Seq),
		zap.String("fingerprint", fingerprint),
		zap.String("contentAddress", contentAddress))
	return nil
}

// IsAttested reports whether the fingerprint has been recorded.
func (l *Ledger) IsAttested(fingerprint string) bool {
	_, ok := l.seen.Load(fingerprint)
	return ok
}

// ContentAddresses returns the submitter's content addresses in insertion
// order. Unbounded; pagination is a query-layer concern.
func (l *Ledger) ContentAddresses(submitter string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	addrs := l.bySubmitter[submitter]
	out := make([]string, len(addrs))
	copy(out, addrs)
	return out
}

func (l *Ledger) Head(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.log)), nil
}

func (l *Ledger) ReadRange(_ context.Context, from, to uint64) ([]Event, error) {
	if from == 0 {
		from = 1
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	head := uint64(len(l.log))
	if to > head {
		to = head
	}
	if from > to {
		return []Event{}, nil
	}
	out := make([]Event, to-from+1)
	copy(out, l.log[from-1:to])
	return out, nil
}

func (l *Ledger) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, nil
}
