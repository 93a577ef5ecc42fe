package predict

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Training parameters for batch gradient descent
const (
	trainEpochs  = 100
	learningRate = 0.01
)

// Sample is one training observation: the features a build presented and
// the duration it actually took, in seconds
type Sample struct {
	Features FeatureVector `json:"features"`
	Seconds  float64       `json:"seconds"`
}

// ModelStatus describes the training state of a regressor
type ModelStatus struct {
	Trained     bool      `json:"trained"`
	TrainedAt   time.Time `json:"trainedAt,omitempty"`
	SampleCount int       `json:"sampleCount"`
}

// Regressor is a pluggable online duration model. The concrete model can be
// swapped without touching the predictor or the orchestrator.
type Regressor interface {
	// Predict returns the modeled duration in seconds, or false if the
	// model has not been trained yet
	Predict(f FeatureVector) (float64, bool)

	// Train fits the model to the given samples
	Train(samples []Sample)

	// Status reports the model's training state
	Status() ModelStatus
}

// LinearModel is a least-squares linear regressor fit by batch gradient
// descent. Weights are mutated only by Train; reads are lock-free because
// the predictor serializes access.
type LinearModel struct {
	weights     []float64
	bias        float64
	trainedAt   time.Time
	sampleCount int
}

// NewLinearModel creates an untrained linear model
func NewLinearModel() *LinearModel {
	return &LinearModel{weights: make([]float64, Dimensions)}
}

// Predict applies the trained linear model to the feature vector
func (m *LinearModel) Predict(f FeatureVector) (float64, bool) {
	if m.sampleCount == 0 {
		return 0, false
	}
	return floats.Dot(m.weights, f.Slice()) + m.bias, true
}

// Train runs batch gradient descent over the samples, minimizing squared
// error between predicted and actual duration
func (m *LinearModel) Train(samples []Sample) {
	if len(samples) == 0 {
		return
	}

	weights := make([]float64, Dimensions)
	copy(weights, m.weights)
	bias := m.bias
	n := float64(len(samples))

	for epoch := 0; epoch < trainEpochs; epoch++ {
		gradW := make([]float64, Dimensions)
		gradB := 0.0

		for _, s := range samples {
			features := s.Features.Slice()
			err := floats.Dot(weights, features) + bias - s.Seconds
			for i, x := range features {
				gradW[i] += err * x
			}
			gradB += err
		}

		for i := range weights {
			weights[i] -= learningRate * gradW[i] / n
		}
		bias -= learningRate * gradB / n
	}

	// Discard a diverged fit rather than poisoning future predictions
	if math.IsNaN(bias) || math.IsInf(bias, 0) {
		return
	}
	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return
		}
	}

	m.weights = weights
	m.bias = bias
	m.trainedAt = time.Now()
	m.sampleCount = len(samples)
}

// Status reports whether the model has been trained and on how many samples
func (m *LinearModel) Status() ModelStatus {
	return ModelStatus{
		Trained:     m.sampleCount > 0,
		TrainedAt:   m.trainedAt,
		SampleCount: m.sampleCount,
	}
}
