package services

import (
	"math"
	"testing"
)

func TestLoadModel(t *testing.T) {
	m := LoadModel("heuristic")
	if m.Name() != "heuristic" || m.Version() != "1.0.0" {
		t.Fatalf("model = %s v%s", m.Name(), m.Version())
	}
	if LoadModel("").Name() != "heuristic" {
		t.Fatal("empty name should load heuristic")
	}
	if LoadModel("gradient_boosting").Name() != "heuristic" {
		t.Fatal("unknown name should fall back to heuristic")
	}
}

func TestHeuristicModel_Predict_StrongListing(t *testing.T) {
	f := FeatureVector{
		"price_per_m2_normalized": -1.2,
		"has_metro":               1,
		"metro_proximity":         1.0,
		"floor_category":          2,
		"area_category":           2,
		"rooms":                   2,
		"data_completeness":       1.0,
	}

	pred := HeuristicModel{}.Predict(f)

	// 0.5 + 0.15 + 0.10 + 0.05 + 0.08 + 0.08 + 0.05 + 0.05 clamps at 1.
	if pred.Probability != 1.0 {
		t.Fatalf("probability = %v, want clamped 1.0", pred.Probability)
	}
	if pred.ConfidenceHigh != 1.0 {
		t.Errorf("confidence high = %v, want clamped 1.0", pred.ConfidenceHigh)
	}
	if math.Abs(pred.ConfidenceLow-0.9) > 0.001 {
		t.Errorf("confidence low = %v, want 0.9", pred.ConfidenceLow)
	}
	if pred.ConfidenceLevel != 0.95 {
		t.Errorf("confidence level = %v, want 0.95", pred.ConfidenceLevel)
	}
}

func TestHeuristicModel_Predict_WeakListing(t *testing.T) {
	f := FeatureVector{
		"price_per_m2_normalized": 2.0,
		"has_metro":               0,
		"metro_proximity":         0,
		"floor_category":          4,
		"area_category":           0,
		"rooms":                   5,
		"data_completeness":       0,
	}

	pred := HeuristicModel{}.Predict(f)

	// 0.5 - 0.10 - 0.05 - 0.05
	if math.Abs(pred.Probability-0.30) > 0.001 {
		t.Fatalf("probability = %v, want 0.30", pred.Probability)
	}
	if math.Abs(pred.ConfidenceLow-0.20) > 0.001 || math.Abs(pred.ConfidenceHigh-0.40) > 0.001 {
		t.Errorf("confidence = [%v, %v], want [0.20, 0.40]", pred.ConfidenceLow, pred.ConfidenceHigh)
	}
}

func TestHeuristicModel_Predict_ModeratePriceDiscount(t *testing.T) {
	f := FeatureVector{
		"price_per_m2_normalized": -0.7,
		"floor_category":          -1,
		"area_category":           -1,
	}

	pred := HeuristicModel{}.Predict(f)
	if math.Abs(pred.Probability-0.60) > 0.001 {
		t.Fatalf("probability = %v, want 0.60", pred.Probability)
	}
}

func TestHeuristicModel_Importance(t *testing.T) {
	imp := HeuristicModel{}.Importance(nil)

	if imp["price_per_m2_normalized"] != 0.25 {
		t.Errorf("price importance = %v", imp["price_per_m2_normalized"])
	}
	if imp["other"] != 0.02 {
		t.Errorf("other importance = %v, want 0.02", imp["other"])
	}

	var sum float64
	for _, v := range imp {
		sum += v
	}
	if math.Abs(sum-1.0) > 0.001 {
		t.Errorf("importance sums to %v, want 1.0", sum)
	}
}
