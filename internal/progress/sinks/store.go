package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/progress"
	"github.com/JakeFAU/feedharvest/internal/store"
)

// StoreSink persists progress events through a ProgressRepository. Fetch
// events inside a batch are collapsed into per-site deltas so one round trip
// covers many entries.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink wires a repository-backed sink.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type statsKey struct {
	batch [16]byte
	site  string
	class string
}

type statsDelta struct {
	entries int64
	bytes   int64
	at      time.Time
}

// Consume applies lifecycle events in arrival order, then flushes the
// collapsed site deltas. Extraction milestones are not stored; the articles
// table already records successful extractions.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	stats := make(map[statsKey]statsDelta)
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageBatchStart, progress.StageBatchDone, progress.StageBatchError:
			if err := s.handleBatchEvent(ctx, evt); err != nil {
				return err
			}
		case progress.StageFetchDone:
			key := statsKey{batch: evt.BatchID, site: evt.Site, class: string(evt.StatusClass)}
			delta := stats[key]
			delta.entries += evt.Entries
			delta.bytes += evt.Bytes
			if evt.TS.After(delta.at) {
				delta.at = evt.TS
			}
			stats[key] = delta
		}
	}
	for key, delta := range stats {
		if delta.entries == 0 && delta.bytes == 0 {
			continue
		}
		err := s.repo.UpsertSiteStats(ctx, uuid.UUID(key.batch), key.site, delta.entries, delta.bytes, key.class, delta.at)
		if err != nil {
			return fmt.Errorf("upsert site stats for %s: %w", key.site, err)
		}
	}
	if len(stats) > 0 {
		s.logger.Debug("flushed site stats", zap.Int("groups", len(stats)))
	}
	return nil
}

func (s *StoreSink) handleBatchEvent(ctx context.Context, evt progress.Event) error {
	id := evt.BatchUUID()
	switch evt.Stage {
	case progress.StageBatchStart:
		if err := s.repo.UpsertBatchStart(ctx, id, evt.TS); err != nil {
			return fmt.Errorf("record batch start: %w", err)
		}
	case progress.StageBatchDone:
		if err := s.repo.CompleteBatch(ctx, id, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("record batch done: %w", err)
		}
	case progress.StageBatchError:
		var msg *string
		if evt.Note != "" {
			note := evt.Note
			msg = &note
		}
		if err := s.repo.CompleteBatch(ctx, id, evt.TS, store.RunError, msg); err != nil {
			return fmt.Errorf("record batch error: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
