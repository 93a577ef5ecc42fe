package predict

import (
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ritzau/build-intel/pkg/logging"
	"github.com/ritzau/build-intel/pkg/model"
)

const (
	// Prediction bounds
	minPredictionSeconds  = 5.0
	maxPredictionSeconds  = 3600.0
	basePredictionSeconds = 1800.0 // scaled by (1 + complexity) before the hard ceiling

	// Heuristic fallback terms, used until the model is trained
	heuristicBaseSeconds    = 30.0
	heuristicPerTarget      = 15.0
	heuristicPerFile        = 2.0
	heuristicMissPenalty    = 60.0 // full penalty at zero cache hit rate
	heuristicComplexityTerm = 120.0

	// Training window and retraining policy
	maxSamples       = 500
	minTrainSamples  = 10
	retrainThreshold = 10

	// Residual window for confidence intervals and accuracy reporting
	maxResiduals = 50

	// 95% interval multiplier
	confidenceZ = 1.96
)

// similarityWeights emphasize structural features over calendar features
// when measuring how close a query is to historical training points
var similarityWeights = []float64{2.0, 2.0, 1.5, 1.0, 0.5, 0.5}

// ConfidentPrediction is a point prediction with a confidence score and a
// 95% interval derived from recent prediction residuals
type ConfidentPrediction struct {
	Prediction time.Duration `json:"prediction"`
	Confidence float64       `json:"confidence"`
	LowerBound time.Duration `json:"lowerBound"`
	UpperBound time.Duration `json:"upperBound"`
}

// Report summarizes recent prediction accuracy for diagnostics
type Report struct {
	MeanRelativeAccuracy float64       `json:"meanRelativeAccuracy"`
	MeanAbsoluteError    time.Duration `json:"meanAbsoluteError"`
	Samples              int           `json:"samples"`
}

// residual is one historical prediction compared against the actual outcome
type residual struct {
	predicted float64
	actual    float64
}

// Predictor maintains an online regression model over historical build
// records and produces duration predictions with confidence bounds. It
// exclusively owns its model weights and sample window.
type Predictor struct {
	mu        sync.Mutex
	model     Regressor
	samples   []Sample
	residuals []residual
	untrained int // samples accumulated since the last retraining
}

// NewPredictor creates a predictor backed by the given regressor
func NewPredictor(r Regressor) *Predictor {
	if r == nil {
		r = NewLinearModel()
	}
	return &Predictor{model: r}
}

// Predict returns a duration estimate for a prospective build. Falls back
// to a heuristic until the model has been trained; the result is always
// within [5s, 3600s] and never NaN.
func (p *Predictor) Predict(f FeatureVector) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.predictLocked(f)
}

func (p *Predictor) predictLocked(f FeatureVector) time.Duration {
	seconds, trained := p.model.Predict(f)
	if !trained || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = heuristic(f)
	}
	return time.Duration(clampSeconds(seconds, f.Complexity) * float64(time.Second))
}

// PredictWithConfidence returns the point prediction together with a
// similarity-based confidence score and a 95% interval over recent residuals.
// The similarity search fans out across worker goroutines; history is only
// read, never mutated, during the search.
func (p *Predictor) PredictWithConfidence(f FeatureVector) ConfidentPrediction {
	p.mu.Lock()
	defer p.mu.Unlock()

	prediction := p.predictLocked(f)

	result := ConfidentPrediction{
		Prediction: prediction,
		Confidence: p.maxSimilarityLocked(f),
		LowerBound: prediction,
		UpperBound: prediction,
	}

	if len(p.residuals) >= 2 {
		diffs := make([]float64, len(p.residuals))
		for i, r := range p.residuals {
			diffs[i] = r.predicted - r.actual
		}
		stderr := stat.StdDev(diffs, nil) / math.Sqrt(float64(len(diffs)))
		margin := time.Duration(confidenceZ * stderr * float64(time.Second))

		result.LowerBound = prediction - margin
		if result.LowerBound < time.Duration(minPredictionSeconds*float64(time.Second)) {
			result.LowerBound = time.Duration(minPredictionSeconds * float64(time.Second))
		}
		result.UpperBound = prediction + margin
	}

	return result
}

// maxSimilarityLocked computes the maximum feature similarity between the
// query and any historical sample, fanned out across shards of the window
func (p *Predictor) maxSimilarityLocked(f FeatureVector) float64 {
	if len(p.samples) == 0 {
		return 0
	}

	shards := runtime.NumCPU()
	if shards > len(p.samples) {
		shards = len(p.samples)
	}

	maxes := make([]float64, shards)
	chunk := (len(p.samples) + shards - 1) / shards

	var g errgroup.Group
	for i := 0; i < shards; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(p.samples) {
			end = len(p.samples)
		}
		slot := i
		window := p.samples[start:end]

		g.Go(func() error {
			best := 0.0
			for _, s := range window {
				if sim := similarity(f, s.Features); sim > best {
					best = sim
				}
			}
			maxes[slot] = best
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	best := 0.0
	for _, m := range maxes {
		if m > best {
			best = m
		}
	}
	return best
}

// Update converts a completed build into a training sample. Failed builds
// are ignored; their durations say nothing about a clean rebuild. Retrains
// once enough new samples have accumulated.
func (p *Predictor) Update(m model.BuildMetrics, cacheHitRate float64) {
	if !m.Success {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	complexity := ComplexityScore(len(m.Configuration.Targets), m.ChangedFiles)
	features := FeaturesFromMetrics(m, cacheHitRate, complexity)
	actual := m.Duration.Seconds()

	// Record the residual against the model as it stood for this build
	predicted := p.predictLocked(features).Seconds()
	p.residuals = append(p.residuals, residual{predicted: predicted, actual: actual})
	if len(p.residuals) > maxResiduals {
		p.residuals = p.residuals[len(p.residuals)-maxResiduals:]
	}

	p.samples = append(p.samples, Sample{Features: features, Seconds: actual})
	if len(p.samples) > maxSamples {
		p.samples = p.samples[len(p.samples)-maxSamples:]
	}
	p.untrained++

	if p.untrained >= retrainThreshold && len(p.samples) >= minTrainSamples {
		p.model.Train(p.samples)
		p.untrained = 0
		status := p.model.Status()
		logging.Info("prediction model retrained",
			"samples", status.SampleCount, "trainedAt", status.TrainedAt)
	}
}

// Status reports the underlying model's training state
func (p *Predictor) Status() ModelStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.Status()
}

// Accuracy reports average relative accuracy and mean absolute error over
// the most recent predictions
func (p *Predictor) Accuracy() Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.residuals) == 0 {
		return Report{}
	}

	sumAccuracy := 0.0
	sumAbsErr := 0.0
	for _, r := range p.residuals {
		absErr := math.Abs(r.predicted - r.actual)
		sumAbsErr += absErr

		if r.actual > 0 {
			accuracy := 1.0 - absErr/r.actual
			if accuracy < 0 {
				accuracy = 0
			}
			sumAccuracy += accuracy
		}
	}

	n := float64(len(p.residuals))
	return Report{
		MeanRelativeAccuracy: sumAccuracy / n,
		MeanAbsoluteError:    time.Duration(sumAbsErr / n * float64(time.Second)),
		Samples:              len(p.residuals),
	}
}

// ComplexityScore derives a crude project-complexity signal from target and
// changed-file counts
func ComplexityScore(targetCount, changedFiles int) float64 {
	return clamp01(0.7*float64(targetCount)/maxTargets + 0.3*float64(changedFiles)/maxChangedFiles)
}

// heuristic estimates duration without a trained model: a base time plus
// linear terms over target count and changed files, with a penalty that
// grows as the cache hit rate drops
func heuristic(f FeatureVector) float64 {
	return heuristicBaseSeconds +
		f.TargetCount*maxTargets*heuristicPerTarget +
		f.ChangedFiles*maxChangedFiles*heuristicPerFile +
		(1.0-f.CacheHitRate)*heuristicMissPenalty +
		f.Complexity*heuristicComplexityTerm
}

// clampSeconds bounds a prediction to [5s, 3600s], with the upper bound
// scaled by project complexity below the hard ceiling
func clampSeconds(seconds, complexity float64) float64 {
	maxSeconds := basePredictionSeconds * (1.0 + complexity)
	if maxSeconds > maxPredictionSeconds {
		maxSeconds = maxPredictionSeconds
	}
	if seconds < minPredictionSeconds {
		return minPredictionSeconds
	}
	if seconds > maxSeconds {
		return maxSeconds
	}
	return seconds
}

// similarity converts a weighted Euclidean distance in normalized feature
// space into a similarity score in (0,1]
func similarity(a, b FeatureVector) float64 {
	av, bv := a.Slice(), b.Slice()
	sum := 0.0
	for i := range av {
		d := av[i] - bv[i]
		sum += similarityWeights[i] * d * d
	}
	return 1.0 / (1.0 + math.Sqrt(sum))
}
