package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/middleware"
	"github.com/shopsphere/shopsphere-api/internal/service"
)

const signatureHeader = "Stripe-Signature"

type PaymentHandler struct {
	paymentService *service.PaymentService
	log            *zap.Logger
}

func NewPaymentHandler(paymentService *service.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService, log: log}
}

func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	var req dto.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	session, err := h.paymentService.CreateCheckoutSession(c.Request.Context(), middleware.GetActor(c), req.OrderID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": session.SessionID, "url": session.URL})
}

// Webhook must see the body exactly as sent; it is never bound.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, "Unable to read request body")
		return
	}

	err = h.paymentService.HandleWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			fail(c, http.StatusBadRequest, "Webhook Error: "+err.Error())
			return
		}
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	v, err := h.paymentService.VerifyPayment(c.Request.Context(), middleware.GetActor(c), c.Param("orderId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, v)
}
