package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/middleware"
	"github.com/shopsphere/shopsphere-api/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
	log          *zap.Logger
}

func NewOrderHandler(orderService *service.OrderService, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orderService: orderService, log: log}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	order, err := h.orderService.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusCreated, order)
}

func (h *OrderHandler) MyOrders(c *gin.Context) {
	orders, err := h.orderService.MyOrders(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okList(c, orders, nil)
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	orders, page, err := h.orderService.List(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okList(c, orders, page)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, order)
}

func (h *OrderHandler) PayOrder(c *gin.Context) {
	var req dto.PayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	order, err := h.orderService.MarkPaid(c.Request.Context(), middleware.GetActor(c), c.Param("id"), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okMessage(c, "Order marked as paid", order)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okMessage(c, "Order status updated", order)
}

func (h *OrderHandler) CancelOrder(c *gin.Context) {
	order, err := h.orderService.Cancel(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okMessage(c, "Order cancelled", order)
}
