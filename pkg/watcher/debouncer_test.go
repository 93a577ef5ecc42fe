package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/ritzau/build-intel/pkg/model"
)

func TestDebouncerCoalescesBursts(t *testing.T) {
	input := make(chan ChangeEvent, 10)
	d := NewDebouncer(input, 50*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	// A burst of source changes should come out as a single batch
	input <- ChangeEvent{Category: model.CategorySource, Paths: []string{"a.cpp"}}
	input <- ChangeEvent{Category: model.CategorySource, Paths: []string{"b.cpp"}}
	input <- ChangeEvent{Category: model.CategorySource, Paths: []string{"c.cpp"}}

	select {
	case event := <-d.Output():
		if event.Category != model.CategorySource {
			t.Errorf("Category = %v, want %v", event.Category, model.CategorySource)
		}
		if len(event.Paths) != 3 {
			t.Errorf("Paths = %v, want the full burst of 3", event.Paths)
		}
	case <-time.After(time.Second):
		t.Fatal("no debounced event after quiet period")
	}
}

func TestDebouncerOrdersBuildConfigFirst(t *testing.T) {
	input := make(chan ChangeEvent, 10)
	d := NewDebouncer(input, 50*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	input <- ChangeEvent{Category: model.CategorySource, Paths: []string{"a.cpp"}}
	input <- ChangeEvent{Category: model.CategoryBuildConfig, Paths: []string{"CMakeLists.txt"}}

	first := <-d.Output()
	if first.Category != model.CategoryBuildConfig {
		t.Errorf("first batch = %v, want build config before source", first.Category)
	}
	second := <-d.Output()
	if second.Category != model.CategorySource {
		t.Errorf("second batch = %v, want source", second.Category)
	}
}

func TestDebouncerFlushesOnClose(t *testing.T) {
	input := make(chan ChangeEvent, 10)
	d := NewDebouncer(input, time.Hour, time.Hour)

	d.Start(context.Background())

	input <- ChangeEvent{Category: model.CategoryHeader, Paths: []string{"api.h"}}
	close(input)

	select {
	case event, ok := <-d.Output():
		if !ok {
			t.Fatal("output closed without flushing pending batch")
		}
		if len(event.Paths) != 1 || event.Paths[0] != "api.h" {
			t.Errorf("Paths = %v, want [api.h]", event.Paths)
		}
	case <-time.After(time.Second):
		t.Fatal("pending batch not flushed on input close")
	}
}

func TestScopeChanges(t *testing.T) {
	tests := []struct {
		name       string
		category   model.FileCategory
		wantFull   bool
		wantImpact bool
	}{
		{"build config forces full analysis", model.CategoryBuildConfig, true, true},
		{"header refreshes impact", model.CategoryHeader, false, true},
		{"source refreshes impact", model.CategorySource, false, true},
		{"resource only checks cache", model.CategoryResource, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := ScopeChanges(ChangeEvent{Category: tt.category, Paths: []string{"x"}})
			if scope.NeedFullAnalysis != tt.wantFull {
				t.Errorf("NeedFullAnalysis = %v, want %v", scope.NeedFullAnalysis, tt.wantFull)
			}
			if scope.NeedImpactRefresh != tt.wantImpact {
				t.Errorf("NeedImpactRefresh = %v, want %v", scope.NeedImpactRefresh, tt.wantImpact)
			}
			if !scope.NeedCacheCheck {
				t.Error("NeedCacheCheck = false, want true for every category")
			}
		})
	}
}
