package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/outbox"
	"github.com/ghost-254/escrow-engine/internal/domain/shared"
	"github.com/ghost-254/escrow-engine/internal/platform/messaging/producers"
)

// EventPublisher drains one outbox message: publish the domain event to the
// events topic, record it in the audit store, mark the message processed.
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl implements EventPublisher
type EventPublisherImpl struct {
	outboxRepo     outbox.Repository
	eventRepo      event.Repository
	streamProducer producers.MessagePublisher
	logger         *slog.Logger
}

// NewEventPublisher creates a new publisher
func NewEventPublisher(
	outboxRepo outbox.Repository,
	eventRepo event.Repository,
	streamProducer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &EventPublisherImpl{
		outboxRepo:     outboxRepo,
		eventRepo:      eventRepo,
		streamProducer: streamProducer,
		logger:         logger,
	}
}

// PublishEvent processes and publishes a single outbox message
func (p *EventPublisherImpl) PublishEvent(ctx context.Context, message *outbox.Message) error {
	e, err := message.GetEvent()
	if err != nil {
		p.logger.Error("Failed to unmarshal domain event from outbox payload",
			"outbox_id", message.ID, "event_id", message.EventID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("unmarshal payload for outbox %d failed: %w", message.ID, err)
	}

	// Add correlation ID to logger
	logger := p.logger
	if e.CorrelationID != "" {
		logger = p.logger.With("correlation_id", e.CorrelationID)
	}

	logger.Info("Attempting to publish outbox event", "outbox_id", message.ID, "event_id", e.ID.String(), "type", e.Type)

	// Key by group so consumers see each group's events in order
	key := e.ID.String()
	if e.GroupID != nil {
		key = e.GroupID.String()
	}

	if err := p.streamProducer.Publish(ctx, key, e); err != nil {
		logger.Error("Failed to publish event to events topic", "outbox_id", message.ID, "event_id", e.ID.String(), "error", err)
		return fmt.Errorf("failed to publish event %s: %w", e.ID.String(), err)
	}

	now := time.Now().UTC()
	e.RecordedAt = &now

	// Duplicate inserts happen when a previous run published but crashed
	// before marking the message processed
	if err := p.eventRepo.Insert(ctx, e); err != nil {
		var dup event.ErrDuplicateEvent
		if errors.As(err, &dup) {
			logger.Info("Audit event already recorded, continuing", "event_id", e.ID.String())
		} else {
			logger.Error("Failed to insert audit event in MongoDB", "event_id", e.ID.String(), "error", err)
			return fmt.Errorf("failed to insert audit event %s: %w", e.ID.String(), err)
		}
	} else {
		logger.Info("Successfully inserted audit event in MongoDB", "event_id", e.ID.String())
	}

	// Mark outbox message as processed
	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "event_id", e.ID.String(), "error", err,
		)
		return fmt.Errorf("event %s published OK, but failed to mark outbox %d as PROCESSED: %w", e.ID.String(), message.ID, err)
	}

	logger.Info("Outbox message successfully processed and marked as PROCESSED", "outbox_id", message.ID, "event_id", e.ID.String())
	return nil
}
