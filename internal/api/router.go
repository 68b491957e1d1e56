package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ghost-254/escrow-engine/internal/api/handler"
	"github.com/ghost-254/escrow-engine/internal/api/middleware"
	"github.com/ghost-254/escrow-engine/internal/domain/escrow"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	accountHandler *handler.AccountHandler,
	escrowHandler *handler.EscrowHandler,
	feeHandler *handler.FeeHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CorrelationID())

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Balance and hold queries, plus the deposit dev hook
		accounts := v1.Group("/accounts")
		{
			accounts.POST("/:user_id/deposits", accountHandler.Deposit)
			accounts.GET("/:user_id/balances", accountHandler.ListBalances)
			accounts.GET("/:user_id/holds", accountHandler.ListHolds)
		}

		// Escrow group lifecycle and agreement workflows
		groups := v1.Group("/groups")
		{
			groups.POST("", escrowHandler.Create)
			groups.GET("/:id", escrowHandler.GetByID)
			groups.GET("/:id/events", escrowHandler.Events)
			groups.POST("/:id/join", escrowHandler.Join)

			groups.POST("/:id/completion/propose", escrowHandler.Propose(escrow.WorkflowCompletion))
			groups.POST("/:id/completion/reject", escrowHandler.Reject(escrow.WorkflowCompletion))
			groups.POST("/:id/completion/ack", escrowHandler.Acknowledge(escrow.WorkflowCompletion))

			groups.POST("/:id/cancellation/propose", escrowHandler.Propose(escrow.WorkflowCancellation))
			groups.POST("/:id/cancellation/reject", escrowHandler.Reject(escrow.WorkflowCancellation))
			groups.POST("/:id/cancellation/ack", escrowHandler.Acknowledge(escrow.WorkflowCancellation))
		}

		// Fee schedule lookup
		v1.GET("/fees/quote", feeHandler.Quote)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
