package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-downloader/internal/progress"
)

// LogSink writes one structured log line per event.
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

// Consume logs each event in the batch. Worker failures log at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("batch_id", evt.BatchUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageURLDone:
			fields = append(fields,
				zap.Int("worker", evt.Worker),
				zap.String("url", evt.URL),
				zap.String("status", string(evt.Status)),
			)
		case progress.StageWorkerStart, progress.StageWorkerDone, progress.StageWorkerError:
			fields = append(fields, zap.Int("worker", evt.Worker), zap.Int("urls", evt.Total))
		default:
			fields = append(fields, zap.Int("urls", evt.Total))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageWorkerError {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
