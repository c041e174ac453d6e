package services

import (
	"context"
	"math"

	"github.com/i1dus/listing-rater/models"
)

// ConfidenceInterval bounds a probability estimate, in percent.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// ScoreResult is the full sale-probability assessment for one listing.
// Probability is a percentage; Category and Factors are display strings in
// the language of the source site.
type ScoreResult struct {
	Probability   float64 `json:"probability"`
	Category      string  `json:"category"`
	CategoryColor string  `json:"category_color"`

	Factors      []string `json:"factors"`
	ModelName    string   `json:"model_name"`
	ModelVersion string   `json:"model_version"`

	// Detail fields, populated only when requested.
	ConfidenceInterval *ConfidenceInterval `json:"confidence_interval,omitempty"`
	FeatureImportance  map[string]float64  `json:"feature_importance,omitempty"`
	FeaturesCount      int                 `json:"features_count,omitempty"`
	RegionalStatsUsed  bool                `json:"regional_stats_used,omitempty"`
}

// Scorer estimates sale probability from extracted features.
type Scorer struct {
	model     Model
	extractor *FeatureExtractor
}

func NewScorer(model Model, extractor *FeatureExtractor) *Scorer {
	if model == nil {
		model = HeuristicModel{}
	}
	return &Scorer{model: model, extractor: extractor}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CalculateProbability scores one listing. With includeDetails the result
// carries the confidence interval, feature importance and extraction
// metadata; without, only the probability, category and factors.
func (s *Scorer) CalculateProbability(ctx context.Context, listing *models.Listing, includeDetails bool) *ScoreResult {
	features := s.extractor.Extract(ctx, listing)
	pred := s.model.Predict(features)

	percent := pred.Probability * 100
	category, color := categorizeProbability(percent)

	result := &ScoreResult{
		Probability:   round1(percent),
		Category:      category,
		CategoryColor: color,
		Factors:       generateFactors(features),
		ModelName:     s.model.Name(),
		ModelVersion:  s.model.Version(),
	}

	if includeDetails {
		result.ConfidenceInterval = &ConfidenceInterval{
			Lower: round1(pred.ConfidenceLow * 100),
			Upper: round1(pred.ConfidenceHigh * 100),
			Level: pred.ConfidenceLevel,
		}
		importance := make(map[string]float64)
		for k, v := range s.model.Importance(features) {
			importance[k] = round1(v * 100)
		}
		result.FeatureImportance = importance
		result.FeaturesCount = len(features)
		result.RegionalStatsUsed = s.extractor.stats != nil
	}
	return result
}

// categorizeProbability buckets a percentage into a display category and the
// UI color tag that goes with it.
func categorizeProbability(percent float64) (string, string) {
	switch {
	case percent >= 75:
		return "Высокая", "success"
	case percent >= 60:
		return "Средняя", "info"
	case percent >= 45:
		return "Низкая", "warning"
	default:
		return "Очень низкая", "danger"
	}
}

// generateFactors renders the human-readable drivers behind a score. The
// thresholds mirror the heuristic model's rules so the explanation matches
// the number.
func generateFactors(f FeatureVector) []string {
	var factors []string

	switch norm := f["price_per_m2_normalized"]; {
	case norm < -1.0:
		factors = append(factors, "Низкая цена за м² относительно региона (+15%)")
	case norm < -0.5:
		factors = append(factors, "Умеренная цена за м² (+10%)")
	case norm > 1.5:
		factors = append(factors, "Высокая цена за м² (-10%)")
	}

	if f["has_metro"] == 1 {
		switch prox := f["metro_proximity"]; {
		case prox >= 0.7:
			factors = append(factors, "Очень близко к метро (+10%)")
		case prox >= 0.4:
			factors = append(factors, "Близко к метро (+7%)")
		default:
			factors = append(factors, "Есть метро (+5%)")
		}
	} else {
		factors = append(factors, "Нет информации о метро (-5%)")
	}

	switch f["floor_category"] {
	case 2:
		factors = append(factors, "Оптимальный этаж (+8%)")
	case 0, 4:
		factors = append(factors, "Неоптимальный этаж (-5%)")
	}

	switch f["area_category"] {
	case 2:
		factors = append(factors, "Оптимальная площадь (+8%)")
	case 0, 4:
		factors = append(factors, "Неоптимальная площадь (-5%)")
	}

	switch f["rooms"] {
	case 1, 2, 3:
		factors = append(factors, "Популярное количество комнат (+5%)")
	}

	switch quality := f["data_completeness"]; {
	case quality >= 0.8:
		factors = append(factors, "Полные данные (+5%)")
	case quality < 0.5:
		factors = append(factors, "Неполные данные (-5%)")
	}

	if f["price_per_m2_percentile"] < 25 {
		factors = append(factors, "Цена ниже 25% объявлений в регионе")
	}

	return factors
}
