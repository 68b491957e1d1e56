package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ghost-254/escrow-engine/internal/domain/shared"
	"github.com/ghost-254/escrow-engine/internal/payment_processor/service"
	"github.com/ghost-254/escrow-engine/internal/platform/messaging/producers"
)

// PaymentEventHandler handles incoming payment notification messages from Kafka
type PaymentEventHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

// NewPaymentEventHandler creates a new handler
func NewPaymentEventHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *PaymentEventHandler {
	return &PaymentEventHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage processes Kafka messages
func (h *PaymentEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var notification shared.PaymentNotification
	if err := json.Unmarshal(value, &notification); err != nil {
		unmarshalErrorMsg := "Failed to unmarshal payment notification from Kafka message"
		h.logger.Error(unmarshalErrorMsg,
			"error", err,
			"message_key", string(key),
		)

		// Send to DLQ if available
		if h.producer != nil {
			dlqReason := fmt.Sprintf("%s: %s", unmarshalErrorMsg, err.Error())
			if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
				h.logger.Error("Failed to publish message to DLQ after unmarshal error",
					"dlq_error", dlqErr,
					"original_error", err,
					"message_key", string(key),
				)
				// Return original error if DLQ fails
			} else {
				h.logger.Info("Successfully published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
				// Message handled, commit offset
				return nil
			}
		}
		// Allow Kafka retries
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	// Add correlation ID to logger
	logger := h.logger
	if notification.CorrelationID != "" {
		logger = h.logger.With("correlation_id", notification.CorrelationID)
	}

	logger.Info("Received payment notification for processing",
		"payment_id", notification.PaymentID.String(),
		"user_id", notification.UserID.String(),
		"direction", notification.Direction,
		"result", notification.Result,
		"amount", notification.Amount,
	)

	if err := h.processingService.ProcessPayment(ctx, &notification); err != nil {
		logger.Error("Failed to process payment",
			"payment_id", notification.PaymentID.String(),
			"user_id", notification.UserID.String(),
			"error", err,
		)
		return fmt.Errorf("processing payment %s failed: %w", notification.PaymentID.String(), err)
	}

	logger.Info("Successfully processed payment", "payment_id", notification.PaymentID.String())
	return nil // Success, commit offset
}
