package services

import "log"

// Prediction is a model's estimate for one listing.
type Prediction struct {
	Probability     float64 `json:"probability"` // 0..1
	ConfidenceLow   float64 `json:"confidence_low"`
	ConfidenceHigh  float64 `json:"confidence_high"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

// Model predicts the probability that a listing sells in the near term.
type Model interface {
	Name() string
	Version() string
	Predict(features FeatureVector) Prediction
	// Importance reports per-feature weight in the prediction. A trained
	// model would compute this from the fit; the heuristic reports its
	// static table.
	Importance(features FeatureVector) map[string]float64
}

// LoadModel returns the model registered under the given name, logging and
// falling back to the heuristic baseline for unknown names.
func LoadModel(name string) Model {
	switch name {
	case "", "heuristic":
		return HeuristicModel{}
	}
	log.Printf("Warning: unknown model %q, falling back to heuristic", name)
	return HeuristicModel{}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HeuristicModel is a hand-tuned rule stack over the same feature vector a
// trained model would consume. It starts from an even-odds baseline and
// rewards below-market prices, metro access, mid-building floors,
// family-sized areas, common room counts and complete data.
type HeuristicModel struct{}

func (HeuristicModel) Name() string    { return "heuristic" }
func (HeuristicModel) Version() string { return "1.0.0" }

func (HeuristicModel) Importance(_ FeatureVector) map[string]float64 {
	out := make(map[string]float64, len(featureImportance)+1)
	for k, v := range featureImportance {
		out[k] = v
	}
	out["other"] = 0.02
	return out
}

func (HeuristicModel) Predict(f FeatureVector) Prediction {
	p := 0.5

	switch norm := f["price_per_m2_normalized"]; {
	case norm < -1.0:
		p += 0.15
	case norm < -0.5:
		p += 0.10
	case norm > 1.5:
		p -= 0.10
	}

	if f["has_metro"] == 1 {
		p += 0.10
		p += f["metro_proximity"] * 0.05
	}

	switch f["floor_category"] {
	case 2:
		p += 0.08
	case 0, 4:
		p -= 0.05
	}

	switch f["area_category"] {
	case 2:
		p += 0.08
	case 0, 4:
		p -= 0.05
	}

	switch f["rooms"] {
	case 1, 2, 3:
		p += 0.05
	}

	p += f["data_completeness"] * 0.05

	p = clamp01(p)
	return Prediction{
		Probability:     p,
		ConfidenceLow:   clamp01(p - 0.1),
		ConfidenceHigh:  clamp01(p + 0.1),
		ConfidenceLevel: 0.95,
	}
}
