package indexer

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/cloaklabs/attestx/pkg/ledger"
	"github.com/cloaklabs/attestx/pkg/redis"
)

// DeadLetter receives events that failed persistence so they can be
// replayed later instead of silently lost.
type DeadLetter interface {
	Enqueue(ctx context.Context, ev ledger.Event, reason string) error
}

// DeadLetterStream is the Redis stream failed events land on.
const DeadLetterStream = "attestx:indexer:deadletter"

// RedisDeadLetter persists failed events to a capped Redis stream.
type RedisDeadLetter struct {
	Client *redis.Client
}

func (d *RedisDeadLetter) Enqueue(ctx context.Context, ev ledger.Event, reason string) error {
	return d.Client.Append(ctx, DeadLetterStream, map[string]any{
		"seq":             ev.Seq,
		"submitter":       ev.Submitter,
		"fingerprint":     ev.Fingerprint,
		"content_address": ev.ContentAddress,
		"auxiliary":       base64.StdEncoding.EncodeToString(ev.Auxiliary),
		"timestamp":       ev.Timestamp.Format(time.RFC3339Nano),
		"reason":          reason,
	})
}
