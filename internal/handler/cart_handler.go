package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"checkout/internal/model"
	"checkout/internal/monitor"
	"checkout/internal/service"
	"checkout/pkg/utils"
)

// CartHandler cart handler
type CartHandler struct {
	cartService service.CartService
	tracer      *monitor.Tracer
}

// NewCartHandler creates a cart handler
func NewCartHandler(cartService service.CartService, tracer *monitor.Tracer) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		tracer:      tracer,
	}
}

// userID reads the caller identity from the X-User-ID header
func userID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.GetHeader("X-User-ID"), 10, 64)
	if err != nil || id == 0 {
		utils.Error(c, utils.CodeInvalidParam, "missing or invalid X-User-ID header")
		return 0, false
	}
	return id, true
}

// cartItemRequest one cart line in a request body
type cartItemRequest struct {
	ProductID uint64 `json:"product_id" binding:"required"`
	VariantID uint64 `json:"variant_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// AddItem adds a line to the cart
func (h *CartHandler) AddItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid request body")
		return
	}

	if err := h.cartService.AddItem(c.Request.Context(), uid, req.ProductID, req.VariantID, req.Quantity); err != nil {
		utils.ErrorFrom(c, err)
		return
	}
	utils.Success(c, nil)
}

// UpdateItem overwrites the quantity of a line
func (h *CartHandler) UpdateItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid request body")
		return
	}

	if err := h.cartService.UpdateItem(c.Request.Context(), uid, req.ProductID, req.VariantID, req.Quantity); err != nil {
		utils.ErrorFrom(c, err)
		return
	}
	utils.Success(c, nil)
}

// RemoveItem removes a line
func (h *CartHandler) RemoveItem(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	productID, err1 := strconv.ParseUint(c.Param("product_id"), 10, 64)
	variantID, err2 := strconv.ParseUint(c.Param("variant_id"), 10, 64)
	if err1 != nil || err2 != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid product or variant id")
		return
	}

	if err := h.cartService.RemoveItem(c.Request.Context(), uid, productID, variantID); err != nil {
		utils.ErrorFrom(c, err)
		return
	}
	utils.Success(c, nil)
}

// ListItems lists the cart
func (h *CartHandler) ListItems(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	items, err := h.cartService.ListItems(c.Request.Context(), uid)
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}
	utils.Success(c, gin.H{"items": items})
}

// checkoutRequest checkout request body
type checkoutRequest struct {
	Items []cartItemRequest `json:"items" binding:"required"`
}

// Checkout starts the checkout saga for a selection of lines
func (h *CartHandler) Checkout(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, utils.CodeInvalidParam, "invalid request body")
		return
	}

	selections := make([]model.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		selections = append(selections, model.CartItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
		})
	}

	traceID := h.tracer.TraceID(c.Request.Context())
	orderID, err := h.cartService.Checkout(c.Request.Context(), uid, selections, traceID)
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, gin.H{"order_id": orderID})
}
