package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cloaklabs/attestx/pkg/db"
	"github.com/cloaklabs/attestx/pkg/db/models"
	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// State of an Indexer instance. Transitions are one-way:
// inactive -> running -> stopped.
type State int32

const (
	StateInactive State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Notifier publishes fire-and-forget confirmation notices. Optional.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ConfirmedChannel is the pub/sub channel for record confirmations.
const ConfirmedChannel = "attestx:records:confirmed"

// Config tunes the indexer's recovery behavior.
type Config struct {
	// BackfillWindow is the trailing number of ledger sequence numbers
	// scanned on start and on each rescan. Full-history scans are off the
	// table: the upstream provider rate-limits them.
	BackfillWindow uint64

	// RescanSchedule is a cron spec for periodic backfill rescans, which
	// recover events that failed persistence earlier. Empty disables.
	RescanSchedule string
}

func DefaultConfig() Config {
	return Config{
		BackfillWindow: 500,
		RescanSchedule: "@every 5m",
	}
}

// Indexer reconciles the ledger's event stream into the record store with
// at-most-one-record-per-content-address semantics. Each instance owns its
// own state machine; construct as many as tests need.
type Indexer struct {
	logger   *zap.Logger
	client   ledger.Client
	store    db.RecordStore
	dlq      DeadLetter
	notifier Notifier
	cfg      Config

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	unsub    func()
	schedule *cron.Cron
	wg       sync.WaitGroup
}

// New wires an indexer from its collaborators. dlq and notifier may be nil,
// in which case failed events are only logged and confirmations are silent.
func New(logger *zap.Logger, client ledger.Client, store db.RecordStore, dlq DeadLetter, notifier Notifier, cfg Config) *Indexer {
	if cfg.BackfillWindow == 0 {
		cfg.BackfillWindow = DefaultConfig().BackfillWindow
	}
	return &Indexer{
		logger:   logger,
		client:   client,
		store:    store,
		dlq:      dlq,
		notifier: notifier,
		cfg:      cfg,
	}
}

// State returns the instance's current lifecycle state.
func (i *Indexer) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Start establishes the live subscription and fires the background
// listen-and-reconcile loop plus a bounded backfill scan. It does not block
// on the subscription. Calling Start on a running indexer is a logged no-op.
func (i *Indexer) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.state {
	case StateRunning:
		i.logger.Info("Indexer already running, start is a no-op")
		return nil
	case StateStopped:
		return fmt.Errorf("indexer already stopped")
	}

	runCtx, cancel := context.WithCancel(ctx)

	events, unsub, err := i.client.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to ledger: %w", err)
	}

	i.cancel = cancel
	i.unsub = unsub
	i.state = StateRunning

	i.wg.Add(2)
	go i.consume(runCtx, events)
	go func() {
		defer i.wg.Done()
		i.backfill(runCtx)
	}()

	if i.cfg.RescanSchedule != "" {
		i.schedule = cron.New()
		if _, err := i.schedule.AddFunc(i.cfg.RescanSchedule, func() {
			i.backfill(runCtx)
		}); err != nil {
			i.logger.Error("Invalid rescan schedule, periodic backfill disabled",
				zap.String("schedule", i.cfg.RescanSchedule),
				zap.Error(err))
			i.schedule = nil
		} else {
			i.schedule.Start()
		}
	}

	i.logger.Info("Indexer running",
		zap.Uint64("backfillWindow", i.cfg.BackfillWindow),
		zap.String("rescanSchedule", i.cfg.RescanSchedule))
	return nil
}

// Stop cancels the subscription and waits for in-flight event handling to
// finish. Cooperative: nothing is forcibly interrupted.
func (i *Indexer) Stop() {
	i.mu.Lock()
	if i.state != StateRunning {
		i.mu.Unlock()
		return
	}
	i.state = StateStopped
	if i.schedule != nil {
		i.schedule.Stop()
	}
	i.unsub()
	i.cancel()
	i.mu.Unlock()

	i.wg.Wait()
	i.logger.Info("Indexer stopped")
}

func (i *Indexer) consume(ctx context.Context, events <-chan ledger.Event) {
	defer i.wg.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = i.HandleEvent(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// HandleEvent upserts the record for one attestation event. Idempotent:
// replays and out-of-order re-deliveries collapse into the same final row.
// A persistence failure is logged, dead-lettered for replay, and reported
// to the caller; processing of later events continues regardless.
func (i *Indexer) HandleEvent(ctx context.Context, ev ledger.Event) error {
	rec := &models.Record{
		ContentAddress: ev.ContentAddress,
		Fingerprint:    ev.Fingerprint,
		Submitter:      ev.Submitter,
		LedgerSeq:      ev.Seq,
		Status:         models.StatusConfirmed,
	}

	if err := i.store.Confirm(ctx, rec); err != nil {
		i.logger.Error("Failed to persist event",
			zap.Uint64("seq", ev.Seq),
			zap.String("contentAddress", ev.ContentAddress),
			zap.Error(err))
		if i.dlq != nil {
			if dlqErr := i.dlq.Enqueue(ctx, ev, err.Error()); dlqErr != nil {
				i.logger.Error("Failed to dead-letter event, event lost",
					zap.Uint64("seq", ev.Seq),
					zap.Error(dlqErr))
			}
		}
		return err
	}

	if i.notifier != nil {
		payload, _ := json.Marshal(map[string]any{
			"contentAddress": ev.ContentAddress,
			"fingerprint":    ev.Fingerprint,
			"seq":            ev.Seq,
		})
		if err := i.notifier.Publish(ctx, ConfirmedChannel, payload); err != nil {
			i.logger.Warn("Confirmation notify failed", zap.Error(err))
		}
	}

	i.logger.Debug("Event reconciled",
		zap.Uint64("seq", ev.Seq),
		zap.String("contentAddress", ev.ContentAddress))
	return nil
}

// backfill scans the trailing BackfillWindow of the ledger and re-handles
// every event in it. Handling is idempotent, so overlap with the live feed
// is harmless.
func (i *Indexer) backfill(ctx context.Context) {
	head, err := i.client.Head(ctx)
	if err != nil {
		i.logger.Error("Backfill head lookup failed", zap.Error(err))
		return
	}
	if head == 0 {
		return
	}

	from := uint64(1)
	if head > i.cfg.BackfillWindow {
		from = head - i.cfg.BackfillWindow + 1
	}

	events, err := i.client.ReadRange(ctx, from, head)
	if err != nil {
		i.logger.Error("Backfill range read failed",
			zap.Uint64("from", from),
			zap.Uint64("to", head),
			zap.Error(err))
		return
	}

	var failed int
	for _, ev := range events {
		if ctx.Err() != nil {
			return
		}
		if err := i.HandleEvent(ctx, ev); err != nil {
			failed++
		}
	}

	i.logger.Info("Backfill scan complete",
		zap.Uint64("from", from),
		zap.Uint64("to", head),
		zap.Int("events", len(events)),
		zap.Int("failed", failed))
}
