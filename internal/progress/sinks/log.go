package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/feedharvest/internal/progress"
)

// LogSink mirrors the progress stream into structured logs, for development
// runs and audits where no durable store is wired.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume writes one log line per event, keeping only the fields the stage
// populated.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := make([]zap.Field, 0, 10)
		fields = append(fields,
			zap.String("batch_id", evt.BatchUUID().String()),
			zap.String("stage", string(evt.Stage)),
		)
		if evt.Site != "" {
			fields = append(fields, zap.String("site", evt.Site))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Strategy != "" {
			fields = append(fields, zap.String("strategy", evt.Strategy))
		}
		if evt.StatusClass != "" {
			fields = append(fields, zap.String("status_class", string(evt.StatusClass)))
		}
		if evt.Bytes > 0 {
			fields = append(fields, zap.Int64("bytes", evt.Bytes))
		}
		if evt.Entries > 0 {
			fields = append(fields, zap.Int64("entries", evt.Entries))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; there is nothing to release.
func (s *LogSink) Close(context.Context) error {
	return nil
}
