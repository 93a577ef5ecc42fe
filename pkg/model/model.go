package model

import "time"

// FileCategory classifies a changed file by its role in the build
type FileCategory string

const (
	CategorySource      FileCategory = "source"       // Compiled source files (.cc, .go, .rs, ...)
	CategoryHeader      FileCategory = "header"       // Interface files included by other sources
	CategoryResource    FileCategory = "resource"     // Bundled assets (images, strings, data)
	CategoryBuildConfig FileCategory = "build-config" // Build tool configuration (BUILD, Makefile, ...)
	CategoryOther       FileCategory = "other"        // Everything else
)

// Severity is an ordinal classification of how disruptive a change set is
type Severity int

const (
	SeverityMinimal Severity = iota
	SeverityModerate
	SeveritySignificant
	SeverityCritical
)

// String returns the lowercase name of the severity level
func (s Severity) String() string {
	switch s {
	case SeverityMinimal:
		return "minimal"
	case SeverityModerate:
		return "moderate"
	case SeveritySignificant:
		return "significant"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Max returns the higher of two severity levels
func (s Severity) Max(other Severity) Severity {
	if other > s {
		return other
	}
	return s
}

// FileChange describes a single file modified since a reference timestamp.
// Records are immutable once created by the change analyzer.
type FileChange struct {
	Path     string       `json:"path"`
	Category FileCategory `json:"category"`
	ModTime  time.Time    `json:"modTime"`
	Size     int64        `json:"size"`
	Impact   float64      `json:"impact"` // Rebuild impact score in [0,1]
}

// ImpactAnalysis aggregates per-file changes into a project-level decision.
// Derived value, recomputed per request; never persisted.
type ImpactAnalysis struct {
	AffectedTargets     []string             `json:"affectedTargets"`
	RequiresFullRebuild bool                 `json:"requiresFullRebuild"`
	Severity            Severity             `json:"severity"`
	EstimatedDuration   time.Duration        `json:"estimatedDuration"`
	ChangesByCategory   map[FileCategory]int `json:"changesByCategory"`
}

// Artifact is a single build output tracked by the artifact cache
type Artifact struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"` // Hex-encoded SHA-256
}

// BuildConfiguration captures the settings a build was (or would be) run with
type BuildConfiguration struct {
	Targets       []string `json:"targets"`
	ParallelJobs  int      `json:"parallelJobs"`
	Optimizations []string `json:"optimizations,omitempty"`
}

// BuildMetrics is the outcome record of one completed build, reported by the
// external build executor. Append-only; kept in a bounded rolling window.
type BuildMetrics struct {
	Project       string             `json:"project"`
	Duration      time.Duration      `json:"duration"`
	Success       bool               `json:"success"`
	Errors        int                `json:"errors"`
	Warnings      int                `json:"warnings"`
	ChangedFiles  int                `json:"changedFiles"`
	Configuration BuildConfiguration `json:"configuration"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Recommendation is the answer to "should I rebuild, and why"
type Recommendation struct {
	ShouldRebuild          bool     `json:"shouldRebuild"`
	Reason                 string   `json:"reason"`
	EstimatedTimeReduction float64  `json:"estimatedTimeReduction"` // Fraction in [0,1]
	AffectedTargets        []string `json:"affectedTargets,omitempty"`
	ChangedFiles           int      `json:"changedFiles"`
	CacheHitRate           float64  `json:"cacheHitRate"` // Hit rate across affected targets
}

// OptimizedConfig is a hardware-aware build configuration proposal
type OptimizedConfig struct {
	ParallelJobs           int      `json:"parallelJobs"`
	Optimizations          []string `json:"optimizations"`
	EstimatedTimeReduction float64  `json:"estimatedTimeReduction"`
	Reasoning              []string `json:"reasoning"`
}

// IntelligenceStats aggregates effectiveness metrics over the recent history window
type IntelligenceStats struct {
	TotalBuilds           int           `json:"totalBuilds"`
	AvgBuildTime          time.Duration `json:"avgBuildTime"`
	SuccessRate           float64       `json:"successRate"`
	CacheEffectiveness    float64       `json:"cacheEffectiveness"`
	PredictionAccuracy    float64       `json:"predictionAccuracy"`
	AchievedTimeReduction float64       `json:"achievedTimeReduction"`
}
