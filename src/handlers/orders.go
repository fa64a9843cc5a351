package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// OrderHandler serves order endpoints for both session and API key callers
type OrderHandler struct {
	orders    *services.OrderService
	analytics *services.AnalyticsService
}

// NewOrderHandler creates a new order handler. analytics may be nil.
func NewOrderHandler(orders *services.OrderService, analytics *services.AnalyticsService) *OrderHandler {
	return &OrderHandler{orders: orders, analytics: analytics}
}

// PlaceOrderBody is the body of POST /api/orders
type PlaceOrderBody struct {
	Symbol   string           `json:"symbol" binding:"required"`
	Side     models.OrderSide `json:"side" binding:"required,oneof=buy sell"`
	Type     models.OrderType `json:"type" binding:"required,oneof=market limit stop"`
	Price    *decimal.Decimal `json:"price"`
	Quantity *decimal.Decimal `json:"quantity" binding:"required"`
}

// UpdateOrderBody is the body of PATCH /api/orders/:id
type UpdateOrderBody struct {
	Status   *models.OrderStatus `json:"status" binding:"omitempty,oneof=cancelled"`
	Price    *decimal.Decimal    `json:"price"`
	Quantity *decimal.Decimal    `json:"quantity"`
}

type orderQuery struct {
	Status string `form:"status"`
	Symbol string `form:"symbol"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// HandleList returns the caller's orders
func (h *OrderHandler) HandleList(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var q orderQuery
	if !middleware.BindQuery(c, &q) {
		return
	}

	orders, err := h.orders.List(c.Request.Context(), userID, repositories.OrderFilter{
		Status: models.OrderStatus(q.Status),
		Symbol: q.Symbol,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// HandleCreate places a new order
func (h *OrderHandler) HandleCreate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body PlaceOrderBody
	if !middleware.BindJSON(c, &body) {
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), services.PlaceOrderRequest{
		UserID:   userID,
		Symbol:   body.Symbol,
		Side:     body.Side,
		Type:     body.Type,
		Price:    body.Price,
		Quantity: *body.Quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if h.analytics != nil {
		channel := "web"
		if _, viaKey := c.Get(middleware.APIKeyIDKey); viaKey {
			channel = "api"
		}
		h.analytics.TrackOrderPlaced(c.Request.Context(), userID, order.Symbol, string(order.Side), string(order.Type), channel)
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// HandleGet returns one order
func (h *OrderHandler) HandleGet(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.Get(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// HandleUpdate cancels or amends an open order
func (h *OrderHandler) HandleUpdate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var body UpdateOrderBody
	if !middleware.BindJSON(c, &body) {
		return
	}

	order, err := h.orders.Update(c.Request.Context(), id, userID, services.UpdateOrderRequest{
		Status:   body.Status,
		Price:    body.Price,
		Quantity: body.Quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
