package impact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ritzau/build-intel/pkg/model"
)

// newProject creates a project tree with core, util, app, and tests directories
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"core", "util", "app", "tests"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", sub, err)
		}
	}
	return dir
}

func change(path string, category model.FileCategory) model.FileChange {
	return model.FileChange{
		Path:     path,
		Category: category,
		ModTime:  time.Now(),
		Size:     100,
		Impact:   0.5,
	}
}

func TestResolveBuildConfigForcesFullRebuild(t *testing.T) {
	dir := newProject(t)
	resolver := NewResolver()

	analysis, err := resolver.Resolve([]model.FileChange{
		change(filepath.Join(dir, "core", "engine.cc"), model.CategorySource),
		change(filepath.Join(dir, "core", "BUILD"), model.CategoryBuildConfig),
	}, dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if !analysis.RequiresFullRebuild {
		t.Error("build-config change must force a full rebuild")
	}
	if analysis.Severity != model.SeverityCritical {
		t.Errorf("severity = %v, want critical", analysis.Severity)
	}
	if len(analysis.AffectedTargets) != 4 {
		t.Errorf("affected targets = %v, want all 4", analysis.AffectedTargets)
	}
}

func TestResolveSourceChangeAffectsOwningTarget(t *testing.T) {
	dir := newProject(t)
	resolver := NewResolver()

	analysis, err := resolver.Resolve([]model.FileChange{
		change(filepath.Join(dir, "core", "engine.cc"), model.CategorySource),
	}, dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if analysis.RequiresFullRebuild {
		t.Error("source change must not force a full rebuild")
	}
	if analysis.Severity != model.SeverityModerate {
		t.Errorf("severity = %v, want moderate", analysis.Severity)
	}
	if len(analysis.AffectedTargets) != 1 || analysis.AffectedTargets[0] != "core" {
		t.Errorf("affected targets = %v, want [core]", analysis.AffectedTargets)
	}
}

func TestResolveEntryPointPromotesSeverity(t *testing.T) {
	dir := newProject(t)
	resolver := NewResolver()

	analysis, err := resolver.Resolve([]model.FileChange{
		change(filepath.Join(dir, "app", "main.cc"), model.CategorySource),
	}, dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if analysis.Severity != model.SeveritySignificant {
		t.Errorf("severity = %v, want significant for entry-point change", analysis.Severity)
	}
}

func TestResolveHeaderChangeIncludesTestTargets(t *testing.T) {
	dir := newProject(t)
	resolver := NewResolver()

	analysis, err := resolver.Resolve([]model.FileChange{
		change(filepath.Join(dir, "util", "strings.h"), model.CategoryHeader),
	}, dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	got := make(map[string]bool)
	for _, target := range analysis.AffectedTargets {
		got[target] = true
	}
	if !got["util"] {
		t.Error("header change must affect the owning target")
	}
	if !got["tests"] {
		t.Error("header change must conservatively affect test targets")
	}
	if analysis.Severity < model.SeveritySignificant {
		t.Errorf("severity = %v, want at least significant", analysis.Severity)
	}
}

func TestResolveResourceChangeIsMinimal(t *testing.T) {
	dir := newProject(t)
	resolver := NewResolver()

	analysis, err := resolver.Resolve([]model.FileChange{
		change(filepath.Join(dir, "app", "icon.png"), model.CategoryResource),
	}, dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if analysis.Severity != model.SeverityMinimal {
		t.Errorf("severity = %v, want minimal", analysis.Severity)
	}
	if analysis.RequiresFullRebuild {
		t.Error("resource change must not force a full rebuild")
	}
}

func TestSeverityIsMaxNotSum(t *testing.T) {
	dir := newProject(t)
	resolver := NewResolver()

	// Many minimal changes must not stack up to a higher severity
	var changed []model.FileChange
	for i := 0; i < 50; i++ {
		changed = append(changed, change(filepath.Join(dir, "app", "icon.png"), model.CategoryResource))
	}

	analysis, err := resolver.Resolve(changed, dir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if analysis.Severity != model.SeverityMinimal {
		t.Errorf("severity = %v, want minimal (ordinal max, not sum)", analysis.Severity)
	}
}

func TestDependentsTraversesTransitively(t *testing.T) {
	tg := NewTargetGraph()
	tg.AddTarget("app", KindLibrary, "app")
	tg.AddTarget("core", KindLibrary, "core")
	tg.AddTarget("util", KindLibrary, "util")

	// app -> core -> util
	if err := tg.AddDependency("app", "core"); err != nil {
		t.Fatal(err)
	}
	if err := tg.AddDependency("core", "util"); err != nil {
		t.Fatal(err)
	}

	deps := tg.Dependents("util")
	got := make(map[string]bool)
	for _, d := range deps {
		got[d] = true
	}
	if !got["core"] || !got["app"] {
		t.Errorf("Dependents(util) = %v, want core and app", deps)
	}
}

func TestCycleGroupsTreatedAsUnit(t *testing.T) {
	tg := NewTargetGraph()
	tg.AddTarget("a", KindLibrary, "a")
	tg.AddTarget("b", KindLibrary, "b")
	tg.AddTarget("c", KindLibrary, "c")

	// a <-> b cycle, c depends on a
	for _, edge := range [][2]string{{"a", "b"}, {"b", "a"}, {"c", "a"}} {
		if err := tg.AddDependency(edge[0], edge[1]); err != nil {
			t.Fatal(err)
		}
	}

	groups := tg.CycleGroups()
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("CycleGroups() = %v, want one group of two", groups)
	}

	// A change to b must reach c through the cycle with a
	deps := tg.Dependents("b")
	got := make(map[string]bool)
	for _, d := range deps {
		got[d] = true
	}
	if !got["a"] || !got["c"] {
		t.Errorf("Dependents(b) = %v, want a and c", deps)
	}
}

func TestBuildTargetGraphSingleTargetFallback(t *testing.T) {
	dir := t.TempDir() // no subdirectories

	tg, err := BuildTargetGraph(dir)
	if err != nil {
		t.Fatalf("BuildTargetGraph() error = %v", err)
	}
	if len(tg.Targets()) != 1 {
		t.Errorf("targets = %v, want a single fallback target", tg.Targets())
	}
}
