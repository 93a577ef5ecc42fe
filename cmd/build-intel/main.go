package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ritzau/build-intel/pkg/cache"
	"github.com/ritzau/build-intel/pkg/config"
	"github.com/ritzau/build-intel/pkg/events"
	"github.com/ritzau/build-intel/pkg/intelligence"
	"github.com/ritzau/build-intel/pkg/logging"
	"github.com/ritzau/build-intel/pkg/model"
	"github.com/ritzau/build-intel/pkg/output"
	"github.com/ritzau/build-intel/pkg/watcher"
)

func main() {
	f := pflag.NewFlagSet("build-intel", pflag.ExitOnError)
	f.String("project", ".", "Path to the project root")
	f.String("cache-dir", "", "Artifact cache directory")
	f.Int64("cache-max-size-mb", 1024, "Artifact cache size cap in MB")
	f.Int("cache-max-age-hours", 168, "Artifact cache entry max age in hours")
	f.Int("history-size", 100, "Build history window size")
	f.Float64("hit-rate-threshold", 0.8, "Cache hit rate below which a rebuild is recommended")
	f.Int("since-hours", 24, "Look for changes in the last N hours")
	f.Bool("watch", false, "Watch the project and re-analyze on changes")
	f.Bool("optimize", false, "Print a hardware-aware configuration proposal")
	f.Bool("stats", false, "Print intelligence effectiveness statistics")
	f.String("verbosity", "", "Log level (trace, debug, info, warn, error)")
	f.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	if err := f.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	configureLogging(cfg)

	publisher := events.NewBusPublisher()
	defer publisher.Close()

	c, err := cache.New(cache.Options{
		Root:    cfg.CacheDir,
		MaxSize: cfg.CacheMaxSize(),
		MaxAge:  cfg.CacheMaxAge(),
		Events:  publisher,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening artifact cache: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	orch := intelligence.New(intelligence.Options{
		Cache:            c,
		Publisher:        publisher,
		HistorySize:      cfg.HistorySize,
		HitRateThreshold: cfg.HitRateThreshold,
	})

	optimize, _ := f.GetBool("optimize")
	stats, _ := f.GetBool("stats")

	switch {
	case optimize:
		output.PrintOptimizedConfig(orch.OptimizeConfiguration(cfg.Project, model.BuildConfiguration{}))

	case stats:
		output.PrintStats(orch.Stats())

	case cfg.Watch:
		if err := runWatch(cfg, orch, c, publisher); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	default:
		printAnalysis(cfg.Project, orch, cfg.Since())
	}
}

// printAnalysis runs one rebuild-necessity analysis and prints the result
func printAnalysis(project string, orch *intelligence.Orchestrator, since time.Time) {
	rec := orch.ShouldRebuild(project, since)

	prediction := orch.PredictWithConfidence(
		rec.AffectedTargets, rec.ChangedFiles, rec.CacheHitRate)

	output.PrintRecommendation(project, rec, prediction)
}

// runWatch re-analyzes the project after every debounced change batch
// until interrupted
func runWatch(cfg *config.Config, orch *intelligence.Orchestrator, c *cache.Cache, publisher events.Publisher) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pw, err := watcher.NewProjectWatcher(cfg.Project)
	if err != nil {
		return err
	}
	if err := pw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(pw.Events(), 500*time.Millisecond, 2*time.Second)
	debouncer.Start(ctx)

	go logBusEvents(ctx, publisher)

	fmt.Printf("Watching %s for changes (Ctrl-C to stop)\n", cfg.Project)

	lastAnalysis := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-debouncer.Output():
			if !ok {
				return nil
			}

			scope := watcher.ScopeChanges(event)
			logging.Debug("change batch received",
				"category", string(event.Category),
				"files", len(event.Paths),
				"fullAnalysis", scope.NeedFullAnalysis)

			if !scope.NeedImpactRefresh {
				// Resources and the like touch no target attribution;
				// revalidating the cache is enough
				if scope.NeedCacheCheck {
					if err := c.Maintain(); err != nil {
						logging.Warn("cache maintenance failed", "error", err)
					}
				}
				fmt.Printf("· %s (%d files changed): no impact on targets, cache revalidated\n",
					time.Now().Format("15:04:05"), len(event.Paths))
				continue
			}

			since := lastAnalysis
			if scope.NeedFullAnalysis {
				// Build configuration changed; look at everything again
				since = time.Time{}
			}

			rec := orch.ShouldRebuild(cfg.Project, since)
			lastAnalysis = time.Now()

			marker := "·"
			if rec.ShouldRebuild {
				marker = "!"
			}
			fmt.Printf("%s %s (%d files changed): %s\n",
				marker, time.Now().Format("15:04:05"), len(event.Paths), rec.Reason)
		}
	}
}

// logBusEvents surfaces model retraining and cache maintenance events while
// watch mode runs
func logBusEvents(ctx context.Context, publisher events.Publisher) {
	for _, topic := range []string{events.TopicModel, events.TopicCache} {
		sub, err := publisher.Subscribe(ctx, topic)
		if err != nil {
			logging.Warn("cannot subscribe to events", "topic", topic, "error", err)
			continue
		}
		go func() {
			for event := range sub.Events() {
				logging.Info("event", "topic", event.Topic, "type", event.Type,
					"data", string(event.Data))
			}
		}()
	}
}

// configureLogging maps verbosity settings to a log level.
// An explicit --verbosity wins over repeated -v.
func configureLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.VerboseCnt {
	case 0:
	case 1:
		level = slog.LevelDebug
	default:
		level = slog.LevelDebug - 4
	}

	switch strings.ToLower(cfg.Verbosity) {
	case "trace":
		level = slog.LevelDebug - 4
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	logging.SetLevel(level)
}
