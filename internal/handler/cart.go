package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shopsphere/shopsphere-api/internal/dto"
	"github.com/shopsphere/shopsphere-api/internal/middleware"
	"github.com/shopsphere/shopsphere-api/internal/service"
)

type CartHandler struct {
	cartService *service.CartService
	log         *zap.Logger
}

func NewCartHandler(cartService *service.CartService, log *zap.Logger) *CartHandler {
	return &CartHandler{cartService: cartService, log: log}
}

func (h *CartHandler) GetCart(c *gin.Context) {
	cart, err := h.cartService.GetCart(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(c *gin.Context) {
	req := dto.AddCartItemRequest{Quantity: 1}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	cart, err := h.cartService.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okMessage(c, "Item added to cart", cart)
}

func (h *CartHandler) UpdateItem(c *gin.Context) {
	var req dto.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	cart, err := h.cartService.UpdateItem(c.Request.Context(), middleware.GetUserID(c), c.Param("itemId"), req.Quantity)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okMessage(c, "Cart updated", cart)
}

func (h *CartHandler) DeleteItem(c *gin.Context) {
	cart, err := h.cartService.RemoveItem(c.Request.Context(), middleware.GetUserID(c), c.Param("itemId"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okMessage(c, "Item removed from cart", cart)
}

func (h *CartHandler) Clear(c *gin.Context) {
	cart, err := h.cartService.Clear(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	okMessage(c, "Cart cleared", cart)
}
