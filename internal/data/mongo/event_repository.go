package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ghost-254/escrow-engine/internal/domain/event"
)

const (
	// EventCollectionName is the name of the audit event collection in MongoDB
	EventCollectionName = "audit_events"
)

// EventRepository implements the event.Repository interface for MongoDB.
// The collection is append-only; the insert path is the only write.
type EventRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewEventRepository creates a new MongoDB audit event repository
func NewEventRepository(logger *slog.Logger, db *mongo.Database) event.Repository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a new audit event after checking for duplicates.
// Returns ErrDuplicateEvent if an event with the same ID already exists,
// which makes redelivered outbox messages safe to replay.
func (r *EventRepository) Insert(ctx context.Context, e *event.Event) error {
	collection := r.db.Collection(EventCollectionName)

	existing, err := r.GetByID(ctx, e.ID)
	if err != nil && !errors.Is(err, event.ErrEventNotFound{}) {
		r.logger.Error("Failed to check for existing audit event",
			"event_id", e.ID.String(),
			"error", err)
		return fmt.Errorf("failed to check for existing audit event: %w", err)
	}

	if existing != nil {
		return event.ErrDuplicateEvent{EventID: e.ID}
	}

	now := time.Now()
	e.RecordedAt = &now

	_, err = collection.InsertOne(ctx, e)
	if err != nil {
		r.logger.Error("Failed to insert audit event",
			"event_id", e.ID.String(),
			"error", err)
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// GetByID retrieves an audit event by its ID.
// Returns ErrEventNotFound if no event exists with the given ID.
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	collection := r.db.Collection(EventCollectionName)

	filter := bson.M{"event_id": id}
	var e event.Event
	err := collection.FindOne(ctx, filter).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, event.ErrEventNotFound{EventID: id}
		}
		r.logger.Error("Failed to get audit event",
			"event_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}

	return &e, nil
}

// GetByPaymentID retrieves the audit event produced by a payment notification.
// Returns nil if no event exists, enabling idempotent payment processing.
func (r *EventRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*event.Event, error) {
	collection := r.db.Collection(EventCollectionName)

	filter := bson.M{"payment_id": paymentID}
	var e event.Event
	err := collection.FindOne(ctx, filter).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // No event recorded for this payment
		}
		r.logger.Error("Failed to get audit event by payment ID",
			"payment_id", paymentID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit event by payment ID: %w", err)
	}

	return &e, nil
}

// GetByGroupID retrieves paginated audit events for an escrow group.
// Results are sorted by occurrence time in descending order (newest first).
func (r *EventRepository) GetByGroupID(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*event.Event, error) {
	collection := r.db.Collection(EventCollectionName)

	filter := bson.M{"group_id": groupID}
	opts := options.Find().
		SetSort(bson.M{"occurred_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get audit events",
			"group_id", groupID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*event.Event
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode audit events",
			"group_id", groupID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}

	return events, nil
}

// CountByGroupID counts the total number of audit events for an escrow group
func (r *EventRepository) CountByGroupID(ctx context.Context, groupID uuid.UUID) (int64, error) {
	collection := r.db.Collection(EventCollectionName)

	filter := bson.M{"group_id": groupID}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count audit events",
			"group_id", groupID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	return count, nil
}
