package changes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ritzau/build-intel/pkg/model"
)

func writeFile(t *testing.T, dir, name string, size int, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
	return path
}

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want model.FileCategory
	}{
		{"core/engine.cc", model.CategorySource},
		{"core/engine.h", model.CategoryHeader},
		{"app/Main.swift", model.CategorySource},
		{"pkg/BUILD.bazel", model.CategoryBuildConfig},
		{"Makefile", model.CategoryBuildConfig},
		{"project.pbxproj", model.CategoryBuildConfig},
		{"assets/icon.png", model.CategoryResource},
		{"config/settings.yaml", model.CategoryResource},
		{"README.md", model.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := Classify(tt.path); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestAnalyzeFindsOnlyModifiedFiles(t *testing.T) {
	dir := t.TempDir()
	since := time.Now().Add(-1 * time.Hour)

	old := since.Add(-2 * time.Hour)
	recent := since.Add(30 * time.Minute)

	writeFile(t, dir, "core/old.cc", 100, old)
	writeFile(t, dir, "core/fresh.cc", 100, recent)
	writeFile(t, dir, "core/fresh.h", 100, recent)

	analyzer := NewAnalyzer()
	changed, err := analyzer.Analyze(dir, since)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if len(changed) != 2 {
		t.Fatalf("Analyze() found %d changes, want 2", len(changed))
	}

	// Header (0.8) must sort before source (0.6)
	if changed[0].Category != model.CategoryHeader {
		t.Errorf("first change category = %v, want header (descending impact order)", changed[0].Category)
	}
}

func TestAnalyzeSkipsBuildOutputDirs(t *testing.T) {
	dir := t.TempDir()
	since := time.Now().Add(-1 * time.Hour)
	recent := time.Now()

	writeFile(t, dir, "build/generated.cc", 100, recent)
	writeFile(t, dir, "bazel-out/obj.o", 100, recent)
	writeFile(t, dir, ".git/index", 100, recent)
	writeFile(t, dir, "src/real.cc", 100, recent)

	analyzer := NewAnalyzer()
	changed, err := analyzer.Analyze(dir, since)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if len(changed) != 1 {
		t.Fatalf("Analyze() found %d changes, want 1 (build dirs must be skipped)", len(changed))
	}
	if filepath.Base(changed[0].Path) != "real.cc" {
		t.Errorf("unexpected change: %s", changed[0].Path)
	}
}

func TestAnalyzeErrorsOnMissingRoot(t *testing.T) {
	analyzer := NewAnalyzer()
	if _, err := analyzer.Analyze(filepath.Join(t.TempDir(), "nope"), time.Now()); err == nil {
		t.Error("Analyze() on missing root should fail")
	}
}

func TestImpactScore(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		category model.FileCategory
		size     int64
		want     float64
	}{
		{"plain source", "src/util.cc", model.CategorySource, 100, 0.6},
		{"large source", "src/util.cc", model.CategorySource, 20 * 1024, 0.7},
		{"entry point source", "src/main.cc", model.CategorySource, 100, 0.7},
		{"build config capped at one", "BUILD", model.CategoryBuildConfig, 20 * 1024, 1.0},
		{"resource", "icon.png", model.CategoryResource, 100, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := impactScore(tt.path, tt.category, tt.size)
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("impactScore() = %v, want %v", got, tt.want)
			}
		})
	}
}
