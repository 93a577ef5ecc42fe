package predict

import (
	"time"

	"github.com/ritzau/build-intel/pkg/model"
)

// Normalization caps. Values beyond these clamp to 1.0; builds that large
// are all equally "big" as far as the model is concerned.
const (
	maxTargets      = 50.0
	maxChangedFiles = 100.0
)

// FeatureVector is the fixed set of numeric signals used to predict build
// duration. All components are normalized to [0,1].
type FeatureVector struct {
	TargetCount  float64 `json:"targetCount"`
	ChangedFiles float64 `json:"changedFiles"`
	CacheHitRate float64 `json:"cacheHitRate"`
	Complexity   float64 `json:"complexity"`
	TimeOfDay    float64 `json:"timeOfDay"`
	DayOfWeek    float64 `json:"dayOfWeek"`
}

// Dimensions is the number of features in a FeatureVector
const Dimensions = 6

// NewFeatureVector builds a normalized feature vector from raw signals
func NewFeatureVector(targetCount, changedFiles int, cacheHitRate, complexity float64, at time.Time) FeatureVector {
	return FeatureVector{
		TargetCount:  clamp01(float64(targetCount) / maxTargets),
		ChangedFiles: clamp01(float64(changedFiles) / maxChangedFiles),
		CacheHitRate: clamp01(cacheHitRate),
		Complexity:   clamp01(complexity),
		TimeOfDay:    float64(at.Hour()) / 23.0,
		DayOfWeek:    float64(at.Weekday()) / 6.0,
	}
}

// FeaturesFromMetrics derives the feature vector a historical build would
// have presented at prediction time
func FeaturesFromMetrics(m model.BuildMetrics, cacheHitRate, complexity float64) FeatureVector {
	return NewFeatureVector(
		len(m.Configuration.Targets), m.ChangedFiles, cacheHitRate, complexity, m.Timestamp)
}

// Slice returns the vector components in canonical order
func (f FeatureVector) Slice() []float64 {
	return []float64{
		f.TargetCount, f.ChangedFiles, f.CacheHitRate,
		f.Complexity, f.TimeOfDay, f.DayOfWeek,
	}
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
