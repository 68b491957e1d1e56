package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ghost-254/escrow-engine/internal/api/service"
	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/escrow"
	"github.com/ghost-254/escrow-engine/internal/domain/event"
	"github.com/ghost-254/escrow-engine/internal/domain/fees"
)

// EscrowHandler handles HTTP requests for escrow group operations
type EscrowHandler struct {
	escrowService service.EscrowService
	logger        *slog.Logger
}

// NewEscrowHandler creates a new escrow handler
func NewEscrowHandler(logger *slog.Logger, escrowService service.EscrowService) *EscrowHandler {
	return &EscrowHandler{
		escrowService: escrowService,
		logger:        logger,
	}
}

// Create handles creation of a new escrow group, freezing the buyer's deposit
func (h *EscrowHandler) Create(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	buyerID, err := uuid.Parse(req.BuyerID)
	if err != nil {
		RespondBadRequest(c, "Invalid buyer ID")
		return
	}

	g, err := h.escrowService.CreateGroup(c.Request.Context(), buyerID, req.Price, req.Currency, escrow.Responsibility(req.Responsibility))
	if err != nil {
		h.respondGroupError(c, err)
		return
	}

	RespondCreated(c, mapGroupToResponse(g))
}

// Join handles a seller joining an open escrow group
func (h *EscrowHandler) Join(c *gin.Context) {
	groupID, ok := h.parseGroupID(c)
	if !ok {
		return
	}

	var req JoinGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		RespondBadRequest(c, "Invalid seller ID")
		return
	}

	g, err := h.escrowService.JoinGroup(c.Request.Context(), groupID, sellerID)
	if err != nil {
		h.respondGroupError(c, err)
		return
	}

	RespondOK(c, mapGroupToResponse(g))
}

// GetByID retrieves an escrow group by its ID, returning 404 if not found
func (h *EscrowHandler) GetByID(c *gin.Context) {
	groupID, ok := h.parseGroupID(c)
	if !ok {
		return
	}

	g, err := h.escrowService.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		h.respondGroupError(c, err)
		return
	}

	RespondOK(c, mapGroupToResponse(g))
}

// Events retrieves the paginated audit trail for an escrow group
func (h *EscrowHandler) Events(c *gin.Context) {
	groupID, ok := h.parseGroupID(c)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	events, total, err := h.escrowService.GroupEvents(c.Request.Context(), groupID, pagination.Page, pagination.PerPage)
	if err != nil {
		h.respondGroupError(c, err)
		return
	}

	responses := make([]EventResponse, 0, len(events))
	for _, e := range events {
		responses = append(responses, mapEventToResponse(e))
	}

	RespondWithPaginatedData(c, http.StatusOK, EventListResponse{Events: responses}, pagination.Page, pagination.PerPage, int(total))
}

// Propose records the acting user's agreement in the given workflow. Both
// parties agreeing resolves the workflow: completion settles the deposit to
// the seller, cancellation refunds the buyer.
func (h *EscrowHandler) Propose(wf escrow.Workflow) gin.HandlerFunc {
	return h.agreementAction(wf, h.escrowService.Propose)
}

// Reject refuses the counterparty's open proposal in the given workflow
func (h *EscrowHandler) Reject(wf escrow.Workflow) gin.HandlerFunc {
	return h.agreementAction(wf, h.escrowService.Reject)
}

// Acknowledge clears a pending rejection in the given workflow
func (h *EscrowHandler) Acknowledge(wf escrow.Workflow) gin.HandlerFunc {
	return h.agreementAction(wf, h.escrowService.AcknowledgeRejection)
}

func (h *EscrowHandler) agreementAction(wf escrow.Workflow, action func(ctx context.Context, groupID, userID uuid.UUID, wf escrow.Workflow) (*escrow.Group, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID, ok := h.parseGroupID(c)
		if !ok {
			return
		}

		var req AgreementActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error("Invalid request body", "error", err)
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			RespondBadRequest(c, "Invalid user ID")
			return
		}

		g, err := action(c.Request.Context(), groupID, userID, wf)
		if err != nil {
			h.respondGroupError(c, err)
			return
		}

		RespondOK(c, mapGroupToResponse(g))
	}
}

func (h *EscrowHandler) parseGroupID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid group ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid group ID")
		return uuid.Nil, false
	}
	return id, true
}

// respondGroupError maps domain errors from escrow operations onto HTTP
// status codes and stable error codes
func (h *EscrowHandler) respondGroupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, escrow.ErrGroupNotFound{}):
		RespondNotFound(c, "Escrow group not found")
	case errors.Is(err, account.ErrInsufficientFunds):
		RespondUnprocessable(c, "INSUFFICIENT_FUNDS", "Insufficient available funds for the required deposit")
	case errors.Is(err, account.ErrFeeExceedsFrozen):
		RespondConflict(c, "FEE_EXCEEDS_FROZEN_AMOUNT", "The escrow fee exceeds the held amount; the agreement has been reset")
	case errors.Is(err, escrow.ErrSellerAlreadyJoined):
		RespondConflict(c, "ALREADY_FULL", "The group already has a seller")
	case errors.Is(err, escrow.ErrBuyerCannotBeSeller):
		RespondConflict(c, "BUYER_CANNOT_BE_SELLER", "The buyer cannot join their own group as seller")
	case errors.Is(err, escrow.ErrNoSeller):
		RespondConflict(c, "NO_SELLER", "The group has no seller to agree with yet")
	case errors.Is(err, escrow.ErrInvalidTransition):
		RespondConflict(c, "INVALID_TRANSITION", "The operation is not permitted from the group's current state")
	case errors.Is(err, escrow.ErrNotParticipant):
		RespondWithError(c, http.StatusForbidden, "NOT_PARTICIPANT", "The user is not a participant of this group")
	case errors.Is(err, fees.ErrNonPositivePrice), errors.Is(err, escrow.ErrInvalidPrice):
		RespondBadRequest(c, "Price must be positive")
	case errors.Is(err, account.ErrInvalidCurrencyCode):
		RespondBadRequest(c, "Currency must be a 3-letter code")
	default:
		h.logger.Error("Escrow operation failed", "error", err)
		RespondInternalError(c)
	}
}

// mapGroupToResponse maps an escrow group entity to a group response DTO
func mapGroupToResponse(g *escrow.Group) GroupResponse {
	resp := GroupResponse{
		ID:             g.ID.String(),
		BuyerID:        g.BuyerID.String(),
		Price:          g.Price,
		Fee:            g.Fee,
		Deposit:        g.Deposit(),
		Currency:       g.Currency,
		Responsibility: string(g.FeePolicy),
		Status:         string(g.Status),
		Completion:     mapAgreementToResponse(&g.Completion),
		Cancellation:   mapAgreementToResponse(&g.Cancellation),
		CreatedAt:      g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      g.UpdatedAt.Format(time.RFC3339),
	}
	if g.SellerID != nil {
		resp.SellerID = g.SellerID.String()
	}
	if g.ClosedAt != nil {
		resp.ClosedAt = g.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

// mapAgreementToResponse maps an agreement instance to its response DTO
func mapAgreementToResponse(a *escrow.Agreement) AgreementResponse {
	resp := AgreementResponse{
		State:        string(a.State()),
		BuyerAgreed:  a.BuyerAgreed,
		SellerAgreed: a.SellerAgreed,
		Initiator:    string(a.Initiator),
	}
	if a.Rejection != nil {
		resp.RejectedBy = string(a.Rejection.By)
		resp.RejectedAt = a.Rejection.At.Format(time.RFC3339)
	}
	return resp
}

// mapEventToResponse maps an audit event to its response DTO
func mapEventToResponse(e *event.Event) EventResponse {
	resp := EventResponse{
		EventID:       e.ID.String(),
		Type:          string(e.Type),
		Workflow:      e.Workflow,
		Amount:        e.Amount,
		Fee:           e.Fee,
		Currency:      e.Currency,
		Detail:        e.Detail,
		CorrelationID: e.CorrelationID,
		OccurredAt:    e.OccurredAt.Format(time.RFC3339),
	}
	if e.GroupID != nil {
		resp.GroupID = e.GroupID.String()
	}
	if e.ActorID != nil {
		resp.ActorID = e.ActorID.String()
	}
	return resp
}
