package cache

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tier selects which stores back a category
type Tier string

const (
	TierMemory   Tier = "memory"
	TierExternal Tier = "external"
	TierHybrid   Tier = "hybrid"
)

// Categories
const (
	CategoryPrice     = "price"
	CategoryOrderbook = "orderbook"
	CategoryMarket    = "market"
	CategoryUser      = "user"
	CategoryPortfolio = "portfolio"
	CategorySession   = "session"
)

// Policy is the storage tier and default TTL of one category
type Policy struct {
	Tier Tier          `yaml:"tier"`
	TTL  time.Duration `yaml:"ttl"`
}

// Policies maps category name to policy
type Policies map[string]Policy

// DefaultPolicies returns the built-in category table
func DefaultPolicies() Policies {
	return Policies{
		CategoryPrice:     {Tier: TierMemory, TTL: 5 * time.Second},
		CategoryOrderbook: {Tier: TierMemory, TTL: 2 * time.Second},
		CategoryMarket:    {Tier: TierHybrid, TTL: 60 * time.Second},
		CategoryUser:      {Tier: TierHybrid, TTL: 15 * time.Minute},
		CategoryPortfolio: {Tier: TierHybrid, TTL: 60 * time.Second},
		CategorySession:   {Tier: TierExternal, TTL: 24 * time.Hour},
	}
}

type policyFile struct {
	Categories map[string]Policy `yaml:"categories"`
}

// LoadPolicies returns the defaults overlaid with the categories in a YAML file.
// An empty path returns the defaults.
//
//	categories:
//	  price: {tier: memory, ttl: 3s}
//	  leaderboard: {tier: hybrid, ttl: 30s}
func LoadPolicies(path string) (Policies, error) {
	policies := DefaultPolicies()
	if path == "" {
		return policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse cache policy file: %w", err)
	}

	for name, p := range file.Categories {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("category %q: %w", name, err)
		}
		policies[name] = p
	}
	return policies, nil
}

func (p Policy) validate() error {
	switch p.Tier {
	case TierMemory, TierExternal, TierHybrid:
	default:
		return fmt.Errorf("unknown tier %q", p.Tier)
	}
	if p.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	return nil
}
