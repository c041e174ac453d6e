package services

import (
	"context"
	"testing"

	"github.com/i1dus/listing-rater/models"
)

func TestCategorizeProbability(t *testing.T) {
	cases := []struct {
		percent  float64
		category string
		color    string
	}{
		{90, "Высокая", "success"},
		{75, "Высокая", "success"},
		{74.9, "Средняя", "info"},
		{60, "Средняя", "info"},
		{59.9, "Низкая", "warning"},
		{45, "Низкая", "warning"},
		{44.9, "Очень низкая", "danger"},
		{0, "Очень низкая", "danger"},
	}

	for _, c := range cases {
		category, color := categorizeProbability(c.percent)
		if category != c.category || color != c.color {
			t.Errorf("categorizeProbability(%.1f) = (%q, %q), want (%q, %q)",
				c.percent, category, color, c.category, c.color)
		}
	}
}

func TestGenerateFactors(t *testing.T) {
	f := FeatureVector{
		"price_per_m2_normalized": -1.5,
		"has_metro":               1,
		"metro_proximity":         0.4,
		"floor_category":          2,
		"area_category":           0,
		"rooms":                   2,
		"data_completeness":       0.875,
		"price_per_m2_percentile": 10,
	}

	factors := generateFactors(f)
	want := []string{
		"Низкая цена за м² относительно региона (+15%)",
		"Близко к метро (+7%)",
		"Оптимальный этаж (+8%)",
		"Неоптимальная площадь (-5%)",
		"Популярное количество комнат (+5%)",
		"Полные данные (+5%)",
		"Цена ниже 25% объявлений в регионе",
	}

	if len(factors) != len(want) {
		t.Fatalf("got %d factors %v, want %d", len(factors), factors, len(want))
	}
	for i := range want {
		if factors[i] != want[i] {
			t.Errorf("factor %d = %q, want %q", i, factors[i], want[i])
		}
	}
}

func TestGenerateFactors_NoMetro(t *testing.T) {
	f := FeatureVector{
		"has_metro":               0,
		"floor_category":          -1,
		"area_category":           -1,
		"data_completeness":       0.5,
		"price_per_m2_percentile": 50,
	}

	factors := generateFactors(f)
	if len(factors) != 1 || factors[0] != "Нет информации о метро (-5%)" {
		t.Fatalf("factors = %v", factors)
	}
}

func TestCalculateProbability(t *testing.T) {
	scorer := NewScorer(HeuristicModel{}, NewFeatureExtractor(nil))

	listing := &models.Listing{
		Price:       int64Ptr(5000000),
		AreaTotal:   floatPtr(50),
		Rooms:       intPtr(2),
		Floor:       intPtr(5),
		FloorsTotal: intPtr(10),
		Metro:       "Площадь Восстания",
		MetroTime:   intPtr(5),
		Address:     "ул. Ленина, д. 10",
		Description: "Светлая квартира",
		Images:      []string{"https://example.com/1.jpg"},
	}

	result := scorer.CalculateProbability(context.Background(), listing, false)

	// 0.5 + 0.10 + 0.05 + 0.08 + 0.08 + 0.05 + 0.05 = 0.91
	if result.Probability != 91.0 {
		t.Fatalf("probability = %v, want 91.0", result.Probability)
	}
	if result.Category != "Высокая" || result.CategoryColor != "success" {
		t.Errorf("category = %s/%s", result.Category, result.CategoryColor)
	}
	if result.ModelName != "heuristic" || result.ModelVersion != "1.0.0" {
		t.Errorf("model = %s v%s", result.ModelName, result.ModelVersion)
	}
	if len(result.Factors) == 0 {
		t.Error("expected factors")
	}
	if result.ConfidenceInterval != nil || result.FeatureImportance != nil {
		t.Error("details must be omitted unless requested")
	}
}

func TestCalculateProbability_WithDetails(t *testing.T) {
	scorer := NewScorer(HeuristicModel{}, NewFeatureExtractor(nil))

	result := scorer.CalculateProbability(context.Background(), &models.Listing{}, true)

	if result.ConfidenceInterval == nil {
		t.Fatal("expected confidence interval")
	}
	if result.ConfidenceInterval.Level != 0.95 {
		t.Errorf("confidence level = %v", result.ConfidenceInterval.Level)
	}
	if result.FeatureImportance == nil {
		t.Fatal("expected feature importance")
	}
	if result.FeatureImportance["other"] != 2.0 {
		t.Errorf("other importance = %v, want 2.0 percent", result.FeatureImportance["other"])
	}
	if result.FeaturesCount == 0 {
		t.Error("expected a feature count")
	}
	if result.RegionalStatsUsed {
		t.Error("no stats service wired, regional stats must read false")
	}
}
