package output

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/ritzau/build-intel/pkg/model"
	"github.com/ritzau/build-intel/pkg/predict"
)

// PrintRecommendation prints a rebuild recommendation with colors
func PrintRecommendation(project string, rec model.Recommendation, prediction predict.ConfidentPrediction) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	bold.Println("Build Intelligence - Rebuild Analysis")
	bold.Println("=====================================")
	fmt.Printf("Project: %s\n", project)
	fmt.Println()

	if rec.ShouldRebuild {
		red.Println("REBUILD RECOMMENDED")
	} else {
		green.Println("REBUILD NOT NEEDED")
	}
	fmt.Printf("Reason: %s\n", rec.Reason)

	if len(rec.AffectedTargets) > 0 {
		fmt.Println()
		cyan.Printf("Affected targets (%d):\n", len(rec.AffectedTargets))
		for _, target := range rec.AffectedTargets {
			fmt.Printf("  %s\n", target)
		}
	}

	if rec.ShouldRebuild {
		fmt.Println()
		fmt.Printf("Estimated duration: %s", prediction.Prediction.Round(time.Second))
		if prediction.Confidence > 0 {
			fmt.Printf(" (%s - %s, confidence %.0f%%)",
				prediction.LowerBound.Round(time.Second),
				prediction.UpperBound.Round(time.Second),
				prediction.Confidence*100)
		}
		fmt.Println()
	}

	if rec.EstimatedTimeReduction > 0 {
		savings := rec.EstimatedTimeReduction * 100
		switch {
		case savings >= 50:
			green.Printf("Estimated time reduction: %.0f%%\n", savings)
		default:
			yellow.Printf("Estimated time reduction: %.0f%%\n", savings)
		}
	}
}

// PrintOptimizedConfig prints a hardware-aware configuration proposal
func PrintOptimizedConfig(config model.OptimizedConfig) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	bold.Println("Build Intelligence - Configuration Proposal")
	bold.Println("===========================================")
	fmt.Printf("Parallel jobs: %d\n", config.ParallelJobs)

	if len(config.Optimizations) > 0 {
		cyan.Println("Optimizations:")
		for _, opt := range config.Optimizations {
			fmt.Printf("  %s\n", opt)
		}
	}

	if len(config.Reasoning) > 0 {
		fmt.Println()
		for _, why := range config.Reasoning {
			fmt.Printf("  - %s\n", why)
		}
	}

	fmt.Println()
	green.Printf("Estimated time reduction: %.0f%%\n", config.EstimatedTimeReduction*100)
}

// PrintStats prints intelligence effectiveness metrics
func PrintStats(stats model.IntelligenceStats) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	bold.Println("Build Intelligence - Statistics")
	bold.Println("===============================")
	fmt.Printf("Builds recorded: %d\n", stats.TotalBuilds)

	if stats.TotalBuilds == 0 {
		yellow.Println("No build history yet")
		return
	}

	fmt.Printf("Average build time: %s\n", stats.AvgBuildTime.Round(time.Second))

	rateColor := green
	if stats.SuccessRate < 0.9 {
		rateColor = yellow
	}
	if stats.SuccessRate < 0.5 {
		rateColor = red
	}
	rateColor.Printf("Success rate: %.0f%%\n", stats.SuccessRate*100)

	cacheColor := green
	if stats.CacheEffectiveness < 0.8 {
		cacheColor = yellow
	}
	if stats.CacheEffectiveness < 0.5 {
		cacheColor = red
	}
	cacheColor.Printf("Cache effectiveness: %.0f%%\n", stats.CacheEffectiveness*100)

	fmt.Printf("Prediction accuracy: %.0f%%\n", stats.PredictionAccuracy*100)
	fmt.Printf("Achieved time reduction: %.0f%%\n", stats.AchievedTimeReduction*100)

	if stats.SuccessRate == 1.0 && stats.CacheEffectiveness >= 0.8 {
		green.Println("✓ Builds are healthy and well cached")
	}
}
