package handlers

import (
	"database/sql"
	"fmt"
	"net/http"

	"keycraft-api/middleware"
	"keycraft-api/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type AdminHandler struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewAdminHandler(db *sql.DB, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		db:     db,
		logger: logger,
	}
}

// UpdateUserStatus sets a user's account status. Any status is reachable
// from any other; banned users are rejected at login.
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	ctx, span := otel.Tracer("keycraft-api").Start(c.Request.Context(), "UpdateUserStatus")
	defer span.End()

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !models.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status. Use: 'Active', 'Banned', or 'Inactive'."})
		return
	}

	result, err := h.db.ExecContext(ctx,
		"UPDATE users SET status = $1 WHERE id = $2",
		req.Status, req.UserID,
	)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to update user status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found."})
		return
	}

	span.SetAttributes(
		attribute.Int("user.id", req.UserID),
		attribute.String("user.status", req.Status),
	)
	h.logger.Info("User status updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("user_id", req.UserID),
		zap.String("status", req.Status),
	)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("User %d has been updated to %s.", req.UserID, req.Status)})
}
