package services

import (
	"context"
	"fmt"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 200
)

// RecordTradeRequest is the input of Record
type RecordTradeRequest struct {
	UserID   uuid.UUID
	OrderID  *uuid.UUID
	Symbol   string
	Side     models.OrderSide
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Fee      decimal.Decimal
}

// TradeService records executed fills. Balances are not adjusted.
type TradeService struct {
	repo   repositories.TradeRepository
	orders *OrderService
}

// NewTradeService creates a trade service
func NewTradeService(repo repositories.TradeRepository, orders *OrderService) *TradeService {
	return &TradeService{repo: repo, orders: orders}
}

// Record stores a trade. A linked order must be open, match symbol and side, and have
// enough unfilled quantity. Its fill is advanced by a conditional update before the trade
// row is written, so a fill that loses a race with a cancel or another fill stores nothing.
func (s *TradeService) Record(ctx context.Context, req RecordTradeRequest) (*models.Trade, error) {
	symbol, err := normalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return nil, invalid("side", "must be buy or sell")
	}
	if !req.Price.IsPositive() {
		return nil, invalid("price", "must be greater than zero")
	}
	if !req.Quantity.IsPositive() {
		return nil, invalid("quantity", "must be greater than zero")
	}
	if req.Fee.IsNegative() {
		return nil, invalid("fee", "must not be negative")
	}

	if req.OrderID != nil {
		order, err := s.orders.Get(ctx, *req.OrderID, req.UserID)
		if err != nil {
			return nil, err
		}
		if !order.IsOpen() {
			return nil, ErrOrderClosed
		}
		if order.Symbol != symbol || order.Side != req.Side {
			return nil, invalid("order_id", "order symbol or side does not match the trade")
		}
		if order.FilledQuantity.Add(req.Quantity).GreaterThan(order.Quantity) {
			return nil, invalid("quantity", "exceeds the order's remaining quantity")
		}
		if _, err := s.orders.applyFill(ctx, order.ID, req.UserID, req.Quantity); err != nil {
			return nil, err
		}
	}

	trade := &models.Trade{
		ID:       uuid.New(),
		UserID:   req.UserID,
		OrderID:  req.OrderID,
		Symbol:   symbol,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
		Fee:      req.Fee,
	}
	if err := s.repo.Create(ctx, trade); err != nil {
		if req.OrderID != nil {
			s.orders.logger.Error().Err(err).Str("order_id", req.OrderID.String()).
				Str("quantity", req.Quantity.String()).Msg("Order fill applied but trade was not recorded")
		}
		return nil, fmt.Errorf("failed to record trade: %w", err)
	}
	return trade, nil
}

// List returns a user's trades, newest first
func (s *TradeService) List(ctx context.Context, userID uuid.UUID, symbol string, limit, offset int) ([]models.Trade, error) {
	if symbol != "" {
		var err error
		if symbol, err = normalizeSymbol(symbol); err != nil {
			return nil, err
		}
	}
	if offset < 0 {
		offset = 0
	}
	trades, err := s.repo.ListByUser(ctx, userID, symbol, clampLimit(limit, defaultTradeLimit, maxTradeLimit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	return trades, nil
}
