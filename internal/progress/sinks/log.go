package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Uint64("job_id", uint64(evt.JobID)),
			zap.String("kind", string(evt.Kind)),
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
			zap.Int64("bytes", evt.Bytes),
			zap.Int("tokens", evt.Tokens),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Failure != "" {
			fields = append(fields, zap.String("failure", string(evt.Failure)))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
