package handler

import (
	"errors"
	"net/http"

	"ticket-transaction-engine/internal/model"
	"ticket-transaction-engine/internal/service"
	apperrors "ticket-transaction-engine/pkg/app_errors"
	"ticket-transaction-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TransactionHandler struct {
	service service.TransactionService
}

func NewTransactionHandler(service service.TransactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

func (h *TransactionHandler) RegisterRoutes(r *gin.Engine) {
	router := r.Group("/api/v1")
	{
		router.POST("transactions", h.CreateTransaction)
		router.GET("transactions/:id", h.GetTransaction)
		router.PUT("transactions/:id/payment-proof", h.UploadPaymentProof)
		router.PUT("transactions/:id/accept", h.AcceptTransaction)
		router.PUT("transactions/:id/reject", h.RejectTransaction)
		router.GET("users/:id/transactions", h.ListUserTransactions)
	}
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	actorID, ok := ActorID(c)
	if !ok {
		return
	}

	var req model.CreateTransactionRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	req.UserID = actorID

	created, err := h.service.CreateTransaction(c, req)
	if err != nil {
		h.handleTransactionError(c, err, "CreateTransaction")
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	actorID, ok := ActorID(c)
	if !ok {
		return
	}
	id, ok := ParseIDParam(c, "id")
	if !ok {
		return
	}

	t, err := h.service.GetTransaction(c, id, actorID)
	if err != nil {
		h.handleTransactionError(c, err, "GetTransaction")
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *TransactionHandler) ListUserTransactions(c *gin.Context) {
	actorID, ok := ActorID(c)
	if !ok {
		return
	}
	userID, ok := ParseIDParam(c, "id")
	if !ok {
		return
	}
	// 只能查自己的交易
	if userID != actorID {
		h.handleTransactionError(c, apperrors.ErrUnauthorized, "ListUserTransactions")
		return
	}

	list, err := h.service.ListUserTransactions(c, userID)
	if err != nil {
		h.handleTransactionError(c, err, "ListUserTransactions")
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *TransactionHandler) UploadPaymentProof(c *gin.Context) {
	actorID, ok := ActorID(c)
	if !ok {
		return
	}
	id, ok := ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req model.UploadPaymentProofRequest
	if err := BindJson(c, &req); err != nil {
		return
	}
	req.TransactionID = id
	req.UserID = actorID

	t, err := h.service.UploadPaymentProof(c, req)
	if err != nil {
		h.handleTransactionError(c, err, "UploadPaymentProof")
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *TransactionHandler) AcceptTransaction(c *gin.Context) {
	actorID, ok := ActorID(c)
	if !ok {
		return
	}
	id, ok := ParseIDParam(c, "id")
	if !ok {
		return
	}

	t, err := h.service.AcceptTransaction(c, id, actorID)
	if err != nil {
		h.handleTransactionError(c, err, "AcceptTransaction")
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *TransactionHandler) RejectTransaction(c *gin.Context) {
	actorID, ok := ActorID(c)
	if !ok {
		return
	}
	id, ok := ParseIDParam(c, "id")
	if !ok {
		return
	}

	// 拒絕原因可省略
	var req model.RejectTransactionRequest
	if err := BindOptionalJson(c, &req); err != nil {
		return
	}

	result, err := h.service.RejectTransaction(c, id, actorID, req.Reason)
	if err != nil {
		h.handleTransactionError(c, err, "RejectTransaction")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Helper functions

func (h *TransactionHandler) handleTransactionError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	var pointsErr *apperrors.InsufficientPointsError
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		log.Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		log.Warn("Resource not found")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrUnauthorized):
		log.Warn("Unauthorized actor")
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, apperrors.ErrInvalidState):
		log.Warn("Invalid state")
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrInsufficientSeats):
		log.Warn("Insufficient seats")
		c.JSON(http.StatusConflict, gin.H{"error": "Insufficient seats"})
	case errors.As(err, &pointsErr):
		log.Warn("Insufficient points")
		c.JSON(http.StatusConflict, gin.H{
			"error":     "Insufficient points",
			"available": pointsErr.Available,
			"required":  pointsErr.Required,
		})
	case errors.Is(err, apperrors.ErrInvalidPromotion):
		log.Warn("Invalid promotion")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired promotion"})
	case errors.Is(err, apperrors.ErrInvalidOrUsedCoupon):
		log.Warn("Invalid coupon")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or used coupon"})
	case errors.Is(err, apperrors.ErrTransactionExpired):
		log.Warn("Transaction expired")
		c.JSON(http.StatusGone, gin.H{"error": "Transaction expired"})
	default:
		log.Error("Unexpected error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
