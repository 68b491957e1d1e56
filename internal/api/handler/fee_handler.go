package handler

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ghost-254/escrow-engine/internal/api/service"
	"github.com/ghost-254/escrow-engine/internal/domain/escrow"
)

// FeeHandler handles HTTP requests for fee schedule lookups
type FeeHandler struct {
	escrowService service.EscrowService
	logger        *slog.Logger
}

// NewFeeHandler creates a new fee handler
func NewFeeHandler(logger *slog.Logger, escrowService service.EscrowService) *FeeHandler {
	return &FeeHandler{
		escrowService: escrowService,
		logger:        logger,
	}
}

// Quote computes the fee and required buyer deposit for a prospective price.
// The quote is informational; group creation snapshots its own fee.
func (h *FeeHandler) Quote(c *gin.Context) {
	priceParam := c.Query("price")
	price, err := strconv.ParseInt(priceParam, 10, 64)
	if err != nil {
		RespondBadRequest(c, "Invalid price: "+priceParam)
		return
	}

	policy := escrow.Responsibility(c.DefaultQuery("fee_responsibility", string(escrow.FeeOnBuyer)))
	if !policy.Valid() {
		RespondBadRequest(c, "Unknown fee responsibility: "+string(policy))
		return
	}

	fee, deposit, err := h.escrowService.QuoteFee(price, policy)
	if err != nil {
		RespondBadRequest(c, "Price must be positive")
		return
	}

	RespondOK(c, FeeQuoteResponse{
		Price:          price,
		Fee:            fee,
		Deposit:        deposit,
		Responsibility: string(policy),
	})
}
