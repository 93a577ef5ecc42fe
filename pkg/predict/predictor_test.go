package predict

import (
	"math"
	"testing"
	"time"

	"github.com/ritzau/build-intel/pkg/model"
)

func metricsFor(targets, files int, duration time.Duration, success bool) model.BuildMetrics {
	names := make([]string, targets)
	for i := range names {
		names[i] = "target"
	}
	return model.BuildMetrics{
		Project:      "/proj",
		Duration:     duration,
		Success:      success,
		ChangedFiles: files,
		Configuration: model.BuildConfiguration{
			Targets:      names,
			ParallelJobs: 4,
		},
		Timestamp: time.Now(),
	}
}

func TestPredictBoundsUntrained(t *testing.T) {
	p := NewPredictor(nil)

	tests := []struct {
		name string
		f    FeatureVector
	}{
		{"zero vector", FeatureVector{}},
		{"all ones", FeatureVector{1, 1, 1, 1, 1, 1}},
		{"typical", NewFeatureVector(5, 20, 0.5, 0.3, time.Now())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Predict(tt.f)
			if got < 5*time.Second || got > 3600*time.Second {
				t.Errorf("Predict() = %v, want within [5s, 3600s]", got)
			}
		})
	}
}

func TestPredictBoundsTrained(t *testing.T) {
	p := NewPredictor(nil)

	// 25 successful historical builds between 10s and 120s
	for i := 0; i < 25; i++ {
		duration := time.Duration(10+i*4) * time.Second
		p.Update(metricsFor(5, 10+i, duration, true), 0.5)
	}

	if !p.Status().Trained {
		t.Fatal("model should be trained after 25 samples")
	}

	got := p.Predict(NewFeatureVector(5, 20, 0.5, 0.3, time.Now()))
	if got < 5*time.Second || got > 3600*time.Second {
		t.Errorf("Predict() = %v, want within [5s, 3600s]", got)
	}
}

func TestPredictNeverNaN(t *testing.T) {
	p := NewPredictor(nil)
	for i := 0; i < 30; i++ {
		p.Update(metricsFor(50, 100, time.Duration(i+1)*time.Minute, true), 0)
	}

	got := p.Predict(FeatureVector{1, 1, 1, 1, 1, 1})
	if math.IsNaN(got.Seconds()) {
		t.Error("Predict() returned NaN")
	}
}

func TestHeuristicPenalizesLowHitRate(t *testing.T) {
	p := NewPredictor(nil)
	at := time.Now()

	coldCache := p.Predict(NewFeatureVector(5, 20, 0.0, 0.3, at))
	warmCache := p.Predict(NewFeatureVector(5, 20, 1.0, 0.3, at))

	if coldCache <= warmCache {
		t.Errorf("cold cache prediction %v should exceed warm cache prediction %v",
			coldCache, warmCache)
	}
}

func TestUpdateIgnoresFailedBuilds(t *testing.T) {
	p := NewPredictor(nil)

	for i := 0; i < 30; i++ {
		p.Update(metricsFor(5, 10, time.Minute, false), 0.5)
	}

	if p.Status().Trained {
		t.Error("failed builds must not train the model")
	}
}

func TestRetrainingThreshold(t *testing.T) {
	p := NewPredictor(nil)

	for i := 0; i < 9; i++ {
		p.Update(metricsFor(5, 10, time.Minute, true), 0.5)
	}
	if p.Status().Trained {
		t.Error("model trained before minimum sample threshold")
	}

	p.Update(metricsFor(5, 10, time.Minute, true), 0.5)
	status := p.Status()
	if !status.Trained {
		t.Error("model should train at the sample threshold")
	}
	if status.SampleCount != 10 {
		t.Errorf("SampleCount = %d, want 10", status.SampleCount)
	}
}

func TestConfidenceZeroWithoutHistory(t *testing.T) {
	p := NewPredictor(nil)

	result := p.PredictWithConfidence(NewFeatureVector(5, 20, 0.5, 0.3, time.Now()))
	if result.Confidence != 0 {
		t.Errorf("Confidence = %v with no history, want 0", result.Confidence)
	}
}

func TestConfidencePositiveWithHistory(t *testing.T) {
	p := NewPredictor(nil)
	at := time.Now()

	for i := 0; i < 12; i++ {
		p.Update(metricsFor(5, 20, time.Duration(30+i)*time.Second, true), 0.5)
	}

	result := p.PredictWithConfidence(NewFeatureVector(5, 20, 0.5, 0.3, at))
	if result.Confidence <= 0 {
		t.Errorf("Confidence = %v with 12 samples, want > 0", result.Confidence)
	}
	if result.LowerBound > result.Prediction || result.UpperBound < result.Prediction {
		t.Errorf("interval [%v, %v] does not bracket prediction %v",
			result.LowerBound, result.UpperBound, result.Prediction)
	}
}

func TestConfidenceDoesNotDecreaseWithMoreSamples(t *testing.T) {
	p := NewPredictor(nil)
	query := NewFeatureVector(5, 20, 0.5, 0.3, time.Now())

	p.Update(metricsFor(20, 80, 2*time.Minute, true), 0.1)
	early := p.PredictWithConfidence(query).Confidence

	// Add samples closer to the query; max similarity can only grow
	for i := 0; i < 15; i++ {
		p.Update(metricsFor(5, 20, time.Minute, true), 0.5)
	}
	late := p.PredictWithConfidence(query).Confidence

	if late < early {
		t.Errorf("confidence decreased from %v to %v as samples accumulated", early, late)
	}
}

func TestAccuracyReport(t *testing.T) {
	p := NewPredictor(nil)

	for i := 0; i < 20; i++ {
		p.Update(metricsFor(5, 10, 45*time.Second, true), 0.5)
	}

	report := p.Accuracy()
	if report.Samples == 0 {
		t.Fatal("Accuracy() reported no samples")
	}
	if report.MeanRelativeAccuracy < 0 || report.MeanRelativeAccuracy > 1 {
		t.Errorf("MeanRelativeAccuracy = %v, want within [0,1]", report.MeanRelativeAccuracy)
	}
	if report.MeanAbsoluteError < 0 {
		t.Errorf("MeanAbsoluteError = %v, want >= 0", report.MeanAbsoluteError)
	}
}

func TestComplexityScoreBounds(t *testing.T) {
	tests := []struct {
		targets, files int
	}{
		{0, 0}, {5, 20}, {50, 100}, {1000, 10000},
	}
	for _, tt := range tests {
		score := ComplexityScore(tt.targets, tt.files)
		if score < 0 || score > 1 {
			t.Errorf("ComplexityScore(%d, %d) = %v, want within [0,1]",
				tt.targets, tt.files, score)
		}
	}
}

func TestLinearModelTrainConverges(t *testing.T) {
	m := NewLinearModel()

	// Constant-duration builds: the model should learn a value near 60s
	var samples []Sample
	f := NewFeatureVector(5, 20, 0.5, 0.3, time.Now())
	for i := 0; i < 50; i++ {
		samples = append(samples, Sample{Features: f, Seconds: 60})
	}
	m.Train(samples)

	got, trained := m.Predict(f)
	if !trained {
		t.Fatal("model should report trained after Train()")
	}
	if got < 20 || got > 100 {
		t.Errorf("Predict() = %v, want near 60", got)
	}
}
