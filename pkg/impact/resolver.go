package impact

import (
	"sort"
	"time"

	"github.com/ritzau/build-intel/pkg/changes"
	"github.com/ritzau/build-intel/pkg/logging"
	"github.com/ritzau/build-intel/pkg/model"
)

// Resolver aggregates per-file changes into a project-level impact analysis
type Resolver struct{}

// NewResolver creates a new impact resolver
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve maps every changed file to the targets it invalidates and derives
// the overall severity, full-rebuild flag, and a coarse duration estimate.
// The duration estimate is a fallback for when the predictor lacks history.
func (r *Resolver) Resolve(changed []model.FileChange, projectRoot string) (*model.ImpactAnalysis, error) {
	tg, err := BuildTargetGraph(projectRoot)
	if err != nil {
		return nil, err
	}
	return r.resolveWithGraph(changed, projectRoot, tg), nil
}

func (r *Resolver) resolveWithGraph(changed []model.FileChange, projectRoot string, tg *TargetGraph) *model.ImpactAnalysis {
	analysis := &model.ImpactAnalysis{
		Severity:          model.SeverityMinimal,
		ChangesByCategory: make(map[model.FileCategory]int),
	}

	affected := make(map[string]bool)

	for _, change := range changed {
		analysis.ChangesByCategory[change.Category]++

		switch change.Category {
		case model.CategoryBuildConfig:
			// Target definitions or dependencies changed: everything is suspect
			for _, target := range tg.Targets() {
				affected[target] = true
			}
			analysis.RequiresFullRebuild = true
			analysis.Severity = analysis.Severity.Max(model.SeverityCritical)

		case model.CategoryHeader:
			// The owning target plus everything that transitively depends on
			// it, conservatively including all test targets
			owner := tg.OwningTarget(projectRoot, change.Path)
			if owner != "" {
				affected[owner] = true
				for _, dep := range tg.Dependents(owner) {
					affected[dep] = true
				}
			}
			for _, test := range tg.TestTargets() {
				affected[test] = true
			}
			analysis.Severity = analysis.Severity.Max(model.SeveritySignificant)

		case model.CategorySource:
			if owner := tg.OwningTarget(projectRoot, change.Path); owner != "" {
				affected[owner] = true
			}
			severity := model.SeverityModerate
			if isEntryPointChange(change.Path) {
				severity = model.SeveritySignificant
			}
			analysis.Severity = analysis.Severity.Max(severity)

		default: // resource, other
			if owner := tg.OwningTarget(projectRoot, change.Path); owner != "" {
				affected[owner] = true
			}
			analysis.Severity = analysis.Severity.Max(model.SeverityMinimal)
		}
	}

	analysis.AffectedTargets = make([]string, 0, len(affected))
	for target := range affected {
		analysis.AffectedTargets = append(analysis.AffectedTargets, target)
	}
	sort.Strings(analysis.AffectedTargets)

	analysis.EstimatedDuration = fallbackDuration(len(analysis.AffectedTargets), analysis.Severity)

	logging.Debug("impact resolved",
		"targets", len(analysis.AffectedTargets),
		"severity", analysis.Severity.String(),
		"fullRebuild", analysis.RequiresFullRebuild)

	return analysis
}

func isEntryPointChange(path string) bool {
	return changes.IsEntryPoint(path)
}

// fallbackDuration estimates rebuild time from target count and severity.
// Coarse on purpose: the time predictor supersedes this once trained.
func fallbackDuration(targetCount int, severity model.Severity) time.Duration {
	d := 30*time.Second + time.Duration(targetCount)*20*time.Second
	scale := 1.0 + 0.5*float64(severity)
	return time.Duration(float64(d) * scale)
}
