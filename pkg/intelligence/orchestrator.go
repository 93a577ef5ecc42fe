package intelligence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/build-intel/pkg/cache"
	"github.com/ritzau/build-intel/pkg/changes"
	"github.com/ritzau/build-intel/pkg/events"
	"github.com/ritzau/build-intel/pkg/impact"
	"github.com/ritzau/build-intel/pkg/logging"
	"github.com/ritzau/build-intel/pkg/model"
	"github.com/ritzau/build-intel/pkg/predict"
	"github.com/ritzau/build-intel/pkg/resources"
)

const (
	// defaultHitRateThreshold is the cache hit rate below which a rebuild
	// is recommended even when nothing forces one
	defaultHitRateThreshold = 0.8

	// defaultHistorySize bounds the rolling build-history window
	defaultHistorySize = 100

	// memoryPerJobBytes is the conservative memory budget per parallel job
	memoryPerJobBytes = 768 * 1024 * 1024

	// maxEstimatedReduction caps the optimization benefit estimate
	maxEstimatedReduction = 0.5
)

// Options configures an Orchestrator
type Options struct {
	Cache            *cache.Cache        // required
	Inspector        resources.Inspector // defaults to the live system inspector
	Publisher        events.Publisher    // optional; nil disables event publishing
	HistorySize      int                 // defaults to 100
	HitRateThreshold float64             // defaults to 0.8
}

// Orchestrator composes change analysis, impact resolution, artifact cache
// state, and duration prediction into rebuild recommendations. It
// exclusively owns the bounded build-history window.
type Orchestrator struct {
	analyzer  *changes.Analyzer
	resolver  *impact.Resolver
	cache     *cache.Cache
	predictor *predict.Predictor
	inspector resources.Inspector
	publisher events.Publisher

	hitRateThreshold float64
	historySize      int

	// analysisMu serializes rebuild-necessity analyses; a concurrent caller
	// gets a conservative answer instead of blocking
	analysisMu sync.Mutex

	historyMu sync.Mutex
	history   []model.BuildMetrics
}

// New creates an orchestrator from the given options
func New(opts Options) *Orchestrator {
	inspector := opts.Inspector
	if inspector == nil {
		inspector = resources.NewSystemInspector()
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	threshold := opts.HitRateThreshold
	if threshold <= 0 {
		threshold = defaultHitRateThreshold
	}

	return &Orchestrator{
		analyzer:         changes.NewAnalyzer(),
		resolver:         impact.NewResolver(),
		cache:            opts.Cache,
		predictor:        predict.NewPredictor(nil),
		inspector:        inspector,
		publisher:        opts.Publisher,
		hitRateThreshold: threshold,
		historySize:      historySize,
	}
}

// analysisOutcome is the internal tagged result of a rebuild-necessity
// analysis: either a recommendation or an unavailability reason. The public
// API always coalesces the latter into a conservative recommendation.
type analysisOutcome struct {
	recommendation *model.Recommendation
	unavailable    string
}

// ShouldRebuild decides whether a rebuild is necessary for files changed
// after since. Every internal failure degrades to a conservative
// "rebuild" answer; this method never returns an error and never blocks
// behind another in-flight analysis.
func (o *Orchestrator) ShouldRebuild(projectRoot string, since time.Time) model.Recommendation {
	if !o.analysisMu.TryLock() {
		return model.Recommendation{
			ShouldRebuild: true,
			Reason:        "analysis in progress, assuming rebuild needed",
		}
	}
	defer o.analysisMu.Unlock()

	ctx := logging.WithAnalysisID(context.Background(), uuid.NewString())
	o.publish(events.TopicAnalysis, "started", map[string]string{"project": projectRoot})

	outcome := o.analyze(ctx, projectRoot, since)
	if outcome.unavailable != "" {
		logging.WarnContext(ctx, "analysis unavailable, recommending rebuild",
			"reason", outcome.unavailable)
		rec := model.Recommendation{
			ShouldRebuild: true,
			Reason:        "intelligence unavailable: " + outcome.unavailable,
		}
		o.publish(events.TopicAnalysis, "failed", rec)
		return rec
	}

	o.publish(events.TopicAnalysis, "completed", outcome.recommendation)
	return *outcome.recommendation
}

func (o *Orchestrator) analyze(ctx context.Context, projectRoot string, since time.Time) analysisOutcome {
	changed, err := o.analyzer.Analyze(projectRoot, since)
	if err != nil {
		return analysisOutcome{unavailable: err.Error()}
	}

	if len(changed) == 0 {
		logging.InfoContext(ctx, "no changes detected, rebuild unnecessary",
			"project", projectRoot)
		return analysisOutcome{recommendation: &model.Recommendation{
			ShouldRebuild:          false,
			Reason:                 "no files changed since last build",
			EstimatedTimeReduction: 1.0,
		}}
	}

	analysis, err := o.resolver.Resolve(changed, projectRoot)
	if err != nil {
		return analysisOutcome{unavailable: err.Error()}
	}

	status, err := o.cache.AnalyzeStatus(analysis.AffectedTargets, projectRoot)
	if err != nil {
		return analysisOutcome{unavailable: err.Error()}
	}

	complexity := predict.ComplexityScore(len(analysis.AffectedTargets), len(changed))
	features := predict.NewFeatureVector(
		len(analysis.AffectedTargets), len(changed), status.HitRate, complexity, time.Now())
	estimate := o.predictor.Predict(features)

	rec := &model.Recommendation{
		AffectedTargets: analysis.AffectedTargets,
		ChangedFiles:    len(changed),
		CacheHitRate:    status.HitRate,
	}

	switch {
	case analysis.RequiresFullRebuild:
		rec.ShouldRebuild = true
		rec.Reason = fmt.Sprintf("build configuration changed (severity %s), full rebuild required, estimated %s",
			analysis.Severity, estimate.Round(time.Second))

	case status.HitRate < o.hitRateThreshold:
		rec.ShouldRebuild = true
		rec.Reason = fmt.Sprintf("%d files changed, cache hit rate %.0f%% below threshold, estimated %s",
			len(changed), status.HitRate*100, estimate.Round(time.Second))
		// Whatever is still cached shaves off part of the rebuild
		rec.EstimatedTimeReduction = status.HitRate * 0.5

	default:
		rec.ShouldRebuild = false
		rec.Reason = fmt.Sprintf("cached artifacts cover %.0f%% of affected targets", status.HitRate*100)
		rec.EstimatedTimeReduction = status.HitRate
	}

	logging.InfoContext(ctx, "rebuild analysis complete",
		"project", projectRoot,
		"changed", len(changed),
		"targets", len(analysis.AffectedTargets),
		"severity", analysis.Severity.String(),
		"hitRate", status.HitRate,
		"rebuild", rec.ShouldRebuild)

	return analysisOutcome{recommendation: rec}
}

// OptimizeConfiguration proposes a parallelism and optimization profile
// bounded by both CPU cores and available memory
func (o *Orchestrator) OptimizeConfiguration(projectRoot string, current model.BuildConfiguration) model.OptimizedConfig {
	cores := o.inspector.CPUCores()
	memory := o.inspector.AvailableMemory()

	cpuJobs := cores + 2
	memJobs := int(memory / memoryPerJobBytes)
	jobs := cpuJobs
	if memJobs < jobs {
		jobs = memJobs
	}
	if jobs < 1 {
		jobs = 1
	}

	targetCount := len(current.Targets)
	if tg, err := impact.BuildTargetGraph(projectRoot); err == nil {
		if discovered := len(tg.Targets()); discovered > targetCount {
			targetCount = discovered
		}
	}

	config := model.OptimizedConfig{
		ParallelJobs: jobs,
		Reasoning: []string{
			fmt.Sprintf("%d parallel jobs (cpu allows %d, memory allows %d)", jobs, cpuJobs, memJobs),
		},
	}

	memGB := float64(memory) / (1024 * 1024 * 1024)
	reduction := 0.0
	addOpt := func(name, why string, gain float64) {
		config.Optimizations = append(config.Optimizations, name)
		config.Reasoning = append(config.Reasoning, why)
		reduction += gain
	}

	addOpt("incremental-linking", "incremental linking avoids full relinks", 0.15)
	if cores >= 4 {
		addOpt("cache-warming", fmt.Sprintf("%d cores leave headroom for cache warming", cores), 0.10)
	}
	if memGB >= 8 {
		addOpt("parallel-codegen", fmt.Sprintf("%.0fGB memory supports parallel code generation", memGB), 0.12)
	}
	if targetCount >= 20 {
		addOpt("unity-build", fmt.Sprintf("%d targets benefit from unity builds", targetCount), 0.08)
	}

	// Small projects see less benefit from any of this
	sizeScale := float64(targetCount) / 20.0
	if sizeScale > 1.0 {
		sizeScale = 1.0
	}
	reduction *= sizeScale
	if reduction > maxEstimatedReduction {
		reduction = maxEstimatedReduction
	}
	config.EstimatedTimeReduction = reduction

	return config
}

// RecordBuildCompletion appends the build to the bounded history window and
// forwards it to the predictor and cache statistics for learning
func (o *Orchestrator) RecordBuildCompletion(m model.BuildMetrics) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	o.historyMu.Lock()
	o.history = append(o.history, m)
	if len(o.history) > o.historySize {
		o.history = o.history[len(o.history)-o.historySize:]
	}
	o.historyMu.Unlock()

	before := o.predictor.Status()
	o.predictor.Update(m, o.cache.HitRate())
	after := o.predictor.Status()

	o.publish(events.TopicBuild, "recorded", m)
	if after.TrainedAt.After(before.TrainedAt) {
		o.publish(events.TopicModel, "retrained", after)
	}

	logging.Info("build recorded",
		"project", m.Project,
		"duration", m.Duration,
		"success", m.Success,
		"changedFiles", m.ChangedFiles)
}

// Predict estimates the duration of a prospective build
func (o *Orchestrator) Predict(targets []string, changedFileCount int, cacheHitRate float64) time.Duration {
	complexity := predict.ComplexityScore(len(targets), changedFileCount)
	f := predict.NewFeatureVector(len(targets), changedFileCount, cacheHitRate, complexity, time.Now())
	return o.predictor.Predict(f)
}

// PredictWithConfidence estimates duration with a confidence score and a
// 95% interval
func (o *Orchestrator) PredictWithConfidence(targets []string, changedFileCount int, cacheHitRate float64) predict.ConfidentPrediction {
	complexity := predict.ComplexityScore(len(targets), changedFileCount)
	f := predict.NewFeatureVector(len(targets), changedFileCount, cacheHitRate, complexity, time.Now())
	return o.predictor.PredictWithConfidence(f)
}

// StoreArtifacts caches build outputs for a target under a fingerprint
func (o *Orchestrator) StoreArtifacts(target, projectRoot string, artifacts []string, fingerprint string) error {
	return o.cache.Store(target, projectRoot, artifacts, fingerprint)
}

// RetrieveArtifacts returns verified cached artifacts, or cache.ErrCacheMiss
func (o *Orchestrator) RetrieveArtifacts(target, projectRoot, fingerprint string) ([]model.Artifact, error) {
	return o.cache.Retrieve(target, projectRoot, fingerprint)
}

// Stats aggregates effectiveness metrics over the recent history window
func (o *Orchestrator) Stats() model.IntelligenceStats {
	o.historyMu.Lock()
	history := make([]model.BuildMetrics, len(o.history))
	copy(history, o.history)
	o.historyMu.Unlock()

	stats := model.IntelligenceStats{
		TotalBuilds:        len(history),
		CacheEffectiveness: o.cache.HitRate(),
		PredictionAccuracy: o.predictor.Accuracy().MeanRelativeAccuracy,
	}

	if len(history) == 0 {
		return stats
	}

	var total time.Duration
	successes := 0
	for _, m := range history {
		total += m.Duration
		if m.Success {
			successes++
		}
	}
	stats.AvgBuildTime = total / time.Duration(len(history))
	stats.SuccessRate = float64(successes) / float64(len(history))
	stats.AchievedTimeReduction = achievedReduction(history)

	return stats
}

// achievedReduction compares the average duration of the earliest builds in
// the window against the latest ones. A crude drift measure of whether the
// intelligence layer is actually shortening builds over time.
func achievedReduction(history []model.BuildMetrics) float64 {
	n := len(history) / 2
	if n > 5 {
		n = 5
	}
	if n == 0 {
		return 0
	}

	var early, late time.Duration
	for _, m := range history[:n] {
		early += m.Duration
	}
	for _, m := range history[len(history)-n:] {
		late += m.Duration
	}

	if early <= 0 {
		return 0
	}
	reduction := float64(early-late) / float64(early)
	if reduction < 0 {
		return 0
	}
	return reduction
}

func (o *Orchestrator) publish(topic, eventType string, data interface{}) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(topic, eventType, data); err != nil {
		logging.Debug("event publish failed", "topic", topic, "error", err)
	}
}
