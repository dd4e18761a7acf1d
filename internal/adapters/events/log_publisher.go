package events

import (
	"context"

	"github.com/kevin07696/bakery-service/internal/domain/ports"
)

// LogPublisher records change events in the service log.
// Used when no broker is configured.
type LogPublisher struct {
	logger ports.Logger
}

func NewLogPublisher(logger ports.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event ports.ChangeEvent) error {
	p.logger.Info("Change event",
		ports.String("event_id", event.ID),
		ports.String("type", event.Type),
		ports.String("reference", event.Reference),
		ports.String("collection", event.Collection),
		ports.String("document_id", event.DocumentID),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
