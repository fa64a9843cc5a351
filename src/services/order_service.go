package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/logging"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultOrderLimit = 50
	maxOrderLimit     = 200
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}[/-]?[A-Z0-9]{2,10}$`)

// PlaceOrderRequest is the input of PlaceOrder
type PlaceOrderRequest struct {
	UserID   uuid.UUID
	Symbol   string
	Side     models.OrderSide
	Type     models.OrderType
	Price    *decimal.Decimal
	Quantity decimal.Decimal
}

// UpdateOrderRequest amends or cancels an open order. Nil fields are left unchanged.
type UpdateOrderRequest struct {
	Status   *models.OrderStatus
	Price    *decimal.Decimal
	Quantity *decimal.Decimal
}

// OrderService records user orders. There is no matching engine.
type OrderService struct {
	repo          repositories.OrderRepository
	notifications *NotificationService
	logger        zerolog.Logger
}

// NewOrderService creates an order service. notifications may be nil.
func NewOrderService(repo repositories.OrderRepository, notifications *NotificationService) *OrderService {
	return &OrderService{
		repo:          repo,
		notifications: notifications,
		logger:        logging.NewLogger("orders"),
	}
}

// PlaceOrder validates and stores a new open order
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	symbol, err := normalizeSymbol(req.Symbol)
	if err != nil {
		return nil, err
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		return nil, invalid("side", "must be buy or sell")
	}
	if !req.Quantity.IsPositive() {
		return nil, invalid("quantity", "must be greater than zero")
	}

	switch req.Type {
	case models.OrderTypeMarket:
		if req.Price != nil {
			return nil, invalid("price", "must be omitted for market orders")
		}
	case models.OrderTypeLimit, models.OrderTypeStop:
		if req.Price == nil || !req.Price.IsPositive() {
			return nil, invalid("price", fmt.Sprintf("must be greater than zero for %s orders", req.Type))
		}
	default:
		return nil, invalid("type", "must be market, limit or stop")
	}

	order := &models.Order{
		ID:             uuid.New(),
		UserID:         req.UserID,
		Symbol:         symbol,
		Side:           req.Side,
		Type:           req.Type,
		Price:          req.Price,
		Quantity:       req.Quantity,
		FilledQuantity: decimal.Zero,
		Status:         models.OrderStatusOpen,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info().
		Str("user_id", req.UserID.String()).
		Str("order_id", order.ID.String()).
		Str("symbol", symbol).
		Str("side", string(req.Side)).
		Msg("Order placed")
	return order, nil
}

// List returns a user's orders, newest first
func (s *OrderService) List(ctx context.Context, userID uuid.UUID, filter repositories.OrderFilter) ([]models.Order, error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, invalid("status", "unknown order status")
	}
	if filter.Symbol != "" {
		symbol, err := normalizeSymbol(filter.Symbol)
		if err != nil {
			return nil, err
		}
		filter.Symbol = symbol
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Limit = clampLimit(filter.Limit, defaultOrderLimit, maxOrderLimit)

	orders, err := s.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// Get returns one order owned by userID
func (s *OrderService) Get(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

// Update cancels or amends an open order
func (s *OrderService) Update(ctx context.Context, id, userID uuid.UUID, req UpdateOrderRequest) (*models.Order, error) {
	if req.Status == nil && req.Price == nil && req.Quantity == nil {
		return nil, invalid("body", "nothing to update")
	}

	order, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, ErrOrderClosed
	}

	cancelled := false
	if req.Status != nil {
		if *req.Status != models.OrderStatusCancelled {
			return nil, invalid("status", "only cancelled can be set")
		}
		order.Status = models.OrderStatusCancelled
		cancelled = true
	}
	if req.Price != nil {
		if order.Type == models.OrderTypeMarket {
			return nil, invalid("price", "market orders have no price")
		}
		if !req.Price.IsPositive() {
			return nil, invalid("price", "must be greater than zero")
		}
		order.Price = req.Price
	}
	if req.Quantity != nil {
		if !req.Quantity.IsPositive() {
			return nil, invalid("quantity", "must be greater than zero")
		}
		if req.Quantity.LessThan(order.FilledQuantity) {
			return nil, invalid("quantity", "must not be below the filled quantity")
		}
		order.Quantity = *req.Quantity
	}

	if err := s.repo.Update(ctx, order); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, s.explainConflict(ctx, id, userID, invalid("quantity", "must not be below the filled quantity"))
		}
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	if cancelled {
		s.notify(ctx, order, "Order cancelled", fmt.Sprintf("Your %s %s order was cancelled.", order.Symbol, order.Side))
	}
	return order, nil
}

// applyFill atomically adds qty to an open order's fill and advances its status
func (s *OrderService) applyFill(ctx context.Context, id, userID uuid.UUID, qty decimal.Decimal) (*models.Order, error) {
	order, err := s.repo.ApplyFill(ctx, id, userID, qty)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, s.explainConflict(ctx, id, userID, invalid("quantity", "exceeds the order's remaining quantity"))
		}
		return nil, fmt.Errorf("failed to update order fill: %w", err)
	}
	if order.Status == models.OrderStatusFilled {
		s.notify(ctx, order, "Order filled", fmt.Sprintf("Your %s %s order was filled.", order.Symbol, order.Side))
	}
	return order, nil
}

// explainConflict re-reads an order whose conditional update matched no row
func (s *OrderService) explainConflict(ctx context.Context, id, userID uuid.UUID, quantityErr error) error {
	current, err := s.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	if !current.IsOpen() {
		return ErrOrderClosed
	}
	return quantityErr
}

func (s *OrderService) notify(ctx context.Context, order *models.Order, title, message string) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Notify(ctx, order.UserID, models.NotificationOrder, title, message); err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("Failed to create order notification")
	}
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolPattern.MatchString(symbol) {
		return "", invalid("symbol", "must look like BTC/USDT")
	}
	return symbol, nil
}

func validStatus(s models.OrderStatus) bool {
	switch s {
	case models.OrderStatusOpen, models.OrderStatusPartiallyFilled, models.OrderStatusFilled, models.OrderStatusCancelled:
		return true
	}
	return false
}
