package watcher

import "github.com/ritzau/build-intel/pkg/model"

// RefreshScope describes which downstream state a change batch invalidates
type RefreshScope struct {
	NeedFullAnalysis  bool // re-run change analysis and impact resolution from scratch
	NeedImpactRefresh bool // affected target set may have changed
	NeedCacheCheck    bool // cached artifacts for affected targets may be stale
	ChangedFiles      []string
}

// ScopeChanges determines what needs to be refreshed after a change batch
func ScopeChanges(event ChangeEvent) *RefreshScope {
	scope := &RefreshScope{
		ChangedFiles: event.Paths,
	}

	switch event.Category {
	case model.CategoryBuildConfig:
		// Target definitions or dependencies changed; nothing survives
		scope.NeedFullAnalysis = true
		scope.NeedImpactRefresh = true
		scope.NeedCacheCheck = true

	case model.CategoryHeader:
		// Interfaces changed; dependents and their cached artifacts are suspect
		scope.NeedImpactRefresh = true
		scope.NeedCacheCheck = true

	case model.CategorySource:
		scope.NeedImpactRefresh = true
		scope.NeedCacheCheck = true

	case model.CategoryResource, model.CategoryOther:
		// Only the owning target's artifacts need a look
		scope.NeedCacheCheck = true
	}

	return scope
}
