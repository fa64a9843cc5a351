package handlers

import (
	"net/http"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/middleware"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PortfolioHandler serves balances
type PortfolioHandler struct {
	portfolio *services.PortfolioService
}

// NewPortfolioHandler creates a new portfolio handler
func NewPortfolioHandler(portfolio *services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolio: portfolio}
}

// SetBalanceBody is the body of PATCH /api/portfolio/:asset
type SetBalanceBody struct {
	Balance *decimal.Decimal `json:"balance" binding:"required"`
	Locked  *decimal.Decimal `json:"locked"`
}

// HandleGet returns every balance of the caller
func (h *PortfolioHandler) HandleGet(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	balances, err := h.portfolio.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

// HandleSetBalance sets one asset balance
func (h *PortfolioHandler) HandleSetBalance(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body SetBalanceBody
	if !middleware.BindJSON(c, &body) {
		return
	}
	locked := decimal.Zero
	if body.Locked != nil {
		locked = *body.Locked
	}

	balance, err := h.portfolio.SetBalance(c.Request.Context(), userID, c.Param("asset"), *body.Balance, locked)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
