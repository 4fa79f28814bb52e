package scheduling

import (
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

// LogSink is a NotificationSink that writes notifications to the
// structured log. A real deployment would swap in email or push delivery;
// either way, delivery failures never propagate to the caller.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a logging notification sink
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Notify logs the notification
func (s *LogSink) Notify(n types.Notification) {
	s.logger.WithFields(map[string]interface{}{
		"notification_type": n.Type,
		"title":             n.Title,
		"link":              n.Link,
	}).Info(n.Message)
}
