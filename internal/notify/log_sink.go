package notify

import (
	"context"

	"latera/internal/logging"
)

// LogSink writes notifications as structured log lines.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogSink{logger: logger.For("notifications")}
}

func (sink *LogSink) Emit(_ context.Context, event Event) error {
	fields := make(map[string]string, len(event.Fields)+2)
	for key, value := range event.Fields {
		fields[key] = value
	}
	fields["notify.type"] = event.Type
	fields["notify.title"] = event.Title
	sink.logger.Info(event.Message, fields)
	return nil
}
