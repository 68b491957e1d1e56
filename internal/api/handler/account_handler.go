package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ghost-254/escrow-engine/internal/api/service"
	"github.com/ghost-254/escrow-engine/internal/domain/account"
	"github.com/ghost-254/escrow-engine/internal/domain/hold"
)

// AccountHandler handles HTTP requests for balance and hold queries
type AccountHandler struct {
	accountService service.AccountService
	logger         *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, accountService service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// Deposit credits a confirmed deposit straight to the user's balance. This
// mirrors the payment processor's gateway path for development and testing.
func (h *AccountHandler) Deposit(c *gin.Context) {
	userID, ok := h.parseUserID(c)
	if !ok {
		return
	}

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	acc, err := h.accountService.RecordDeposit(c.Request.Context(), userID, req.Amount, req.Currency)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrInvalidAmount):
			RespondBadRequest(c, "Amount must be positive")
		case errors.Is(err, account.ErrInvalidCurrencyCode):
			RespondBadRequest(c, "Currency must be a 3-letter code")
		default:
			h.logger.Error("Failed to record deposit", "user_id", userID.String(), "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondOK(c, mapAccountToBalanceResponse(acc))
}

// ListBalances retrieves all currency balances held by a user
func (h *AccountHandler) ListBalances(c *gin.Context) {
	userID, ok := h.parseUserID(c)
	if !ok {
		return
	}

	balances, err := h.accountService.GetBalances(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list balances", "user_id", userID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]BalanceResponse, 0, len(balances))
	for _, acc := range balances {
		responses = append(responses, mapAccountToBalanceResponse(acc))
	}

	RespondOK(c, BalanceListResponse{Balances: responses})
}

// ListHolds retrieves the per-group frozen amounts against a user's accounts
func (h *AccountHandler) ListHolds(c *gin.Context) {
	userID, ok := h.parseUserID(c)
	if !ok {
		return
	}

	holds, err := h.accountService.GetHolds(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list holds", "user_id", userID.String(), "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]HoldResponse, 0, len(holds))
	for _, hld := range holds {
		responses = append(responses, mapHoldToResponse(hld))
	}

	RespondOK(c, HoldListResponse{Holds: responses})
}

func (h *AccountHandler) parseUserID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("user_id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid user ID", "user_id", idParam, "error", err)
		RespondBadRequest(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

// mapAccountToBalanceResponse maps an account entity to a balance response DTO
func mapAccountToBalanceResponse(acc *account.Account) BalanceResponse {
	return BalanceResponse{
		UserID:    acc.UserID.String(),
		Currency:  acc.Currency,
		Available: acc.Available,
		Frozen:    acc.Frozen,
		UpdatedAt: acc.UpdatedAt.Format(time.RFC3339),
	}
}

// mapHoldToResponse maps a hold entity to its response DTO
func mapHoldToResponse(h *hold.Hold) HoldResponse {
	resp := HoldResponse{
		ID:        h.ID.String(),
		GroupID:   h.GroupID.String(),
		Currency:  h.Currency,
		Amount:    h.Amount,
		Status:    string(h.Status),
		CreatedAt: h.CreatedAt.Format(time.RFC3339),
	}
	if h.ClosedAt != nil {
		resp.ClosedAt = h.ClosedAt.Format(time.RFC3339)
	}
	return resp
}
