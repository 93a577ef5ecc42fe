package changes

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ritzau/build-intel/pkg/logging"
	"github.com/ritzau/build-intel/pkg/model"
)

// Base impact weights per category. Build configuration changes invalidate
// everything, headers ripple into dependents, resources rarely matter.
var categoryWeights = map[model.FileCategory]float64{
	model.CategoryBuildConfig: 1.0,
	model.CategoryHeader:      0.8,
	model.CategorySource:      0.6,
	model.CategoryResource:    0.3,
	model.CategoryOther:       0.1,
}

// largeFileThreshold is the size above which a file gets an impact bonus
const largeFileThreshold = 10 * 1024

// Analyzer scans a project tree for files modified since a reference timestamp
type Analyzer struct{}

// NewAnalyzer creates a new change analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze walks projectRoot and returns all regular files modified after
// since, classified and scored, sorted descending by impact score.
// A single unreadable file is logged and skipped; an unreadable root is an error.
func (a *Analyzer) Analyze(projectRoot string, since time.Time) ([]model.FileChange, error) {
	var changed []model.FileChange

	err := filepath.WalkDir(projectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == projectRoot {
				return err
			}
			logging.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}

		if d.IsDir() {
			if IsIgnoredDir(d.Name()) && path != projectRoot {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Fail open per file: a vanished or unreadable file must not
			// abort the whole scan
			logging.Warn("cannot stat file, skipping", "path", path, "error", err)
			return nil
		}

		if !info.ModTime().After(since) {
			return nil
		}

		category := Classify(path)
		changed = append(changed, model.FileChange{
			Path:     path,
			Category: category,
			ModTime:  info.ModTime(),
			Size:     info.Size(),
			Impact:   impactScore(path, category, info.Size()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking project root %s: %w", projectRoot, err)
	}

	sort.SliceStable(changed, func(i, j int) bool {
		return changed[i].Impact > changed[j].Impact
	})

	logging.Debug("change scan complete", "root", projectRoot, "changed", len(changed))
	return changed, nil
}

// IsIgnoredDir reports whether a directory holds build outputs, VCS metadata,
// or vendored code that should never count as a project change
func IsIgnoredDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if strings.HasPrefix(name, "bazel-") {
		return true
	}
	switch name {
	case "build", "out", "dist", "target", "node_modules", "DerivedData", "vendor":
		return true
	}
	return false
}

// Classify derives a file's category from its extension and name
func Classify(path string) model.FileCategory {
	base := filepath.Base(path)

	// Build files often have no extension (BUILD, Makefile)
	switch base {
	case "BUILD", "BUILD.bazel", "WORKSPACE", "MODULE.bazel", "Makefile", "CMakeLists.txt":
		return model.CategoryBuildConfig
	}

	switch strings.ToLower(filepath.Ext(base)) {
	case ".bzl", ".bazel", ".cmake", ".gradle", ".mk", ".pro", ".pbxproj", ".xcconfig":
		return model.CategoryBuildConfig
	case ".c", ".cc", ".cpp", ".cxx", ".m", ".mm", ".go", ".rs", ".swift", ".java", ".kt":
		return model.CategorySource
	case ".h", ".hh", ".hpp", ".hxx", ".inl", ".pch":
		return model.CategoryHeader
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".strings", ".json", ".xml",
		".yaml", ".yml", ".plist", ".storyboard", ".xib", ".ttf", ".otf":
		return model.CategoryResource
	default:
		return model.CategoryOther
	}
}

// IsEntryPoint reports whether a file name matches a known entry-point
// convention. Entry points tend to pull in most of the project.
func IsEntryPoint(path string) bool {
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	switch strings.ToLower(stem) {
	case "main", "index", "app", "appdelegate":
		return true
	}
	return false
}

// impactScore computes the rebuild impact of a single changed file in [0,1]
func impactScore(path string, category model.FileCategory, size int64) float64 {
	score := categoryWeights[category]
	if size > largeFileThreshold {
		score += 0.1
	}
	if IsEntryPoint(path) {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
