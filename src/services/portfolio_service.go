package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/cache"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/models"
	"github.com/eliwifthehat/cex-eqcrypto-sub000/src/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var assetPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// PortfolioService serves balances through the portfolio cache category
type PortfolioService struct {
	repo  repositories.PortfolioRepository
	cache *cache.Manager
}

// NewPortfolioService creates a portfolio service. A nil cache reads straight from storage.
func NewPortfolioService(repo repositories.PortfolioRepository, c *cache.Manager) *PortfolioService {
	return &PortfolioService{repo: repo, cache: c}
}

// Get returns all balances of a user ordered by asset
func (s *PortfolioService) Get(ctx context.Context, userID uuid.UUID) ([]models.PortfolioBalance, error) {
	var balances []models.PortfolioBalance
	if s.cache != nil && s.cache.GetJSON(ctx, cache.CategoryPortfolio, userID.String(), &balances) {
		return balances, nil
	}

	balances, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if balances == nil {
		balances = []models.PortfolioBalance{}
	}

	if s.cache != nil {
		s.cache.SetJSON(ctx, cache.CategoryPortfolio, userID.String(), balances, 0)
	}
	return balances, nil
}

// SetBalance writes one asset balance and invalidates the cached portfolio
func (s *PortfolioService) SetBalance(ctx context.Context, userID uuid.UUID, asset string, balance, locked decimal.Decimal) (*models.PortfolioBalance, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if !assetPattern.MatchString(asset) {
		return nil, invalid("asset", "must be 2-10 letters or digits")
	}
	if balance.IsNegative() {
		return nil, invalid("balance", "must not be negative")
	}
	if locked.IsNegative() {
		return nil, invalid("locked", "must not be negative")
	}
	if locked.GreaterThan(balance) {
		return nil, invalid("locked", "must not exceed balance")
	}

	b := &models.PortfolioBalance{
		UserID:  userID,
		Asset:   asset,
		Balance: balance,
		Locked:  locked,
	}
	if err := s.repo.Upsert(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	if s.cache != nil {
		s.cache.Delete(ctx, cache.CategoryPortfolio, userID.String())
	}
	return b, nil
}
