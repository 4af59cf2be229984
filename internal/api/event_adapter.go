package api

import (
	"sheetlens/domain/upload"
	"sheetlens/internal"
)

// LoggingPublisher records events in the log before handing them to the hub
type LoggingPublisher struct {
	hub    *SSEHub
	logger *internal.Logger
}

// NewLoggingPublisher creates a publisher over hub
func NewLoggingPublisher(hub *SSEHub, logger *internal.Logger) *LoggingPublisher {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &LoggingPublisher{hub: hub, logger: logger}
}

// Publish logs the event and forwards it to connected clients
func (p *LoggingPublisher) Publish(event upload.Event) {
	p.logger.WithFields(map[string]interface{}{
		"event":       event.Type,
		"file_id":     event.FileID,
		"status":      event.Status,
		"has_insight": event.HasInsight,
	}).Debug("record event")

	if p.hub != nil {
		p.hub.Publish(event)
	}
}
