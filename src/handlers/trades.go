package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeHandler serves trade history
type TradeHandler struct {
	trades *services.TradeService
}

// NewTradeHandler creates a new trade handler
func NewTradeHandler(trades *services.TradeService) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// RecordTradeBody is the body of POST /api/trades
type RecordTradeBody struct {
	OrderID  *uuid.UUID       `json:"order_id"`
	Symbol   string           `json:"symbol" binding:"required"`
	Side     models.OrderSide `json:"side" binding:"required,oneof=buy sell"`
	Price    *decimal.Decimal `json:"price" binding:"required"`
	Quantity *decimal.Decimal `json:"quantity" binding:"required"`
	Fee      *decimal.Decimal `json:"fee"`
}

type tradeQuery struct {
	Symbol string `form:"symbol"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// HandleList returns the caller's trades
func (h *TradeHandler) HandleList(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var q tradeQuery
	if !middleware.BindQuery(c, &q) {
		return
	}

	trades, err := h.trades.List(c.Request.Context(), userID, q.Symbol, q.Limit, q.Offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

// HandleCreate records an executed fill
func (h *TradeHandler) HandleCreate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body RecordTradeBody
	if !middleware.BindJSON(c, &body) {
		return
	}

	fee := decimal.Zero
	if body.Fee != nil {
		fee = *body.Fee
	}
	trade, err := h.trades.Record(c.Request.Context(), services.RecordTradeRequest{
		UserID:   userID,
		OrderID:  body.OrderID,
		Symbol:   body.Symbol,
		Side:     body.Side,
		Price:    *body.Price,
		Quantity: *body.Quantity,
		Fee:      fee,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trade": trade})
}
