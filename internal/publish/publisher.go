// Package publish pushes the ranked slow peer snapshot to an external
// key/value store so dashboards can read it without calling the tracker.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-slowpeers/internal/metrics"
)

// SnapshotSource renders the current snapshot; ok is false when none is available.
type SnapshotSource interface {
	Snapshot() (string, bool)
}

// Publisher periodically writes the snapshot under a fixed key.
type Publisher struct {
	logger   *slog.Logger
	provider Provider
	source   SnapshotSource
	key      string
	ttl      time.Duration
	interval time.Duration
}

// NewPublisher wires a publisher. A nil provider publishes nowhere.
func NewPublisher(logger *slog.Logger, provider Provider, source SnapshotSource, key string, ttl, interval time.Duration) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = NoopProvider{}
	}
	return &Publisher{
		logger:   logger,
		provider: provider,
		source:   source,
		key:      key,
		ttl:      ttl,
		interval: interval,
	}
}

// PublishOnce writes the current snapshot. An unavailable snapshot is
// skipped without error so the previous value simply expires.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	text, ok := p.source.Snapshot()
	if !ok {
		metrics.ObservePublish(metrics.OutcomeSkipped)
		p.logger.Debug("snapshot unavailable, skipping publish", slog.String("key", p.key))
		return nil
	}
	if err := p.provider.Set(ctx, p.key, []byte(text), p.ttl); err != nil {
		metrics.ObservePublish(metrics.OutcomeError)
		return fmt.Errorf("publish snapshot to %s: %w", p.key, err)
	}
	metrics.ObservePublish(metrics.OutcomeSuccess)
	return nil
}

// Run publishes immediately and then every interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.PublishOnce(ctx); err != nil {
			p.logger.Warn("snapshot publish failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases the provider.
func (p *Publisher) Close() error {
	return p.provider.Close()
}
