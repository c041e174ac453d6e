package services

import (
	"context"
	"fmt"
	"log"

	"github.com/i1dus/listing-rater/models"
)

// MatchConfigStore is the slice of storage the config provider needs.
type MatchConfigStore interface {
	GetActiveMatchConfig(ctx context.Context) (*models.MatchConfig, error)
	SaveMatchConfig(ctx context.Context, cfg *models.MatchConfig) error
}

// DefaultMatchConfig returns the built-in weight profile used when the
// database has no active configuration. Address components dominate because
// two listings at the same address are almost always the same property.
func DefaultMatchConfig() *models.MatchConfig {
	return &models.MatchConfig{
		Name: "default",
		Weights: map[string]float64{
			"city":          15,
			"street":        20,
			"house_number":  15,
			"rooms":         10,
			"area_total":    15,
			"floor":         5,
			"property_type": 10,
			"district":      5,
			"area_living":   3,
			"area_kitchen":  2,
		},
		StrictAttributes: []string{"city", "street", "house_number"},
		Threshold:        70.0,
		IsActive:         true,
	}
}

// ValidateMatchConfig checks that every strict attribute carries a weight.
// A strict attribute without a weight could veto a match without ever
// contributing to the score, which is almost certainly a typo.
func ValidateMatchConfig(cfg *models.MatchConfig) error {
	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		return fmt.Errorf("threshold %.1f out of range [0, 100]", cfg.Threshold)
	}
	for _, attr := range cfg.StrictAttributes {
		if _, ok := cfg.Weights[attr]; !ok {
			return fmt.Errorf("strict attribute %q has no weight", attr)
		}
	}
	return nil
}

// MatchConfigProvider resolves the active matching configuration, falling
// back to the built-in default when none is stored.
type MatchConfigProvider struct {
	store MatchConfigStore
}

func NewMatchConfigProvider(store MatchConfigStore) *MatchConfigProvider {
	return &MatchConfigProvider{store: store}
}

// Active returns the active stored config, or the default when the store has
// none. Storage errors fall back to the default as well so matching keeps
// working through transient database trouble.
func (p *MatchConfigProvider) Active(ctx context.Context) *models.MatchConfig {
	if p.store == nil {
		return DefaultMatchConfig()
	}
	cfg, err := p.store.GetActiveMatchConfig(ctx)
	if err != nil {
		log.Printf("Warning: failed to load match config, using default: %v", err)
		return DefaultMatchConfig()
	}
	if cfg == nil {
		return DefaultMatchConfig()
	}
	return cfg
}

// Save validates and persists a configuration.
func (p *MatchConfigProvider) Save(ctx context.Context, cfg *models.MatchConfig) error {
	if err := ValidateMatchConfig(cfg); err != nil {
		return fmt.Errorf("invalid match config: %w", err)
	}
	return p.store.SaveMatchConfig(ctx, cfg)
}
