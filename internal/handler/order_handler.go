package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"checkout/internal/service"
	"checkout/pkg/utils"
)

// OrderHandler order handler
type OrderHandler struct {
	orderService   service.OrderService
	paymentService service.PaymentService
}

// NewOrderHandler creates an order handler
func NewOrderHandler(orderService service.OrderService, paymentService service.PaymentService) *OrderHandler {
	return &OrderHandler{
		orderService:   orderService,
		paymentService: paymentService,
	}
}

// GetOrder gets an order with its payment record
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("order_id")
	if orderID == "" {
		utils.Error(c, utils.CodeInvalidParam, "missing order_id parameter")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), orderID)
	if err != nil && !errors.Is(err, utils.ErrPaymentNotFound) {
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, gin.H{
		"order":   order,
		"payment": payment,
	})
}

// ListOrders lists the caller's orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), uid, page, pageSize)
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, gin.H{
		"list":  orders,
		"total": total,
		"page":  page,
		"size":  pageSize,
	})
}

// RefundOrder refunds a paid order, which cancels it
func (h *OrderHandler) RefundOrder(c *gin.Context) {
	orderID := c.Param("order_id")
	if orderID == "" {
		utils.Error(c, utils.CodeInvalidParam, "missing order_id parameter")
		return
	}

	if err := h.paymentService.Refund(c.Request.Context(), orderID); err != nil {
		utils.ErrorFrom(c, err)
		return
	}
	utils.Success(c, nil)
}
