package watcher

import (
	"context"
	"time"

	"github.com/ritzau/build-intel/pkg/logging"
	"github.com/ritzau/build-intel/pkg/model"
)

// Debouncer batches rapid change events to avoid excessive re-analysis.
// Saves and compiler output touch many files in quick succession; one
// analysis per burst is enough.
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a debouncer that emits a batch once the input has
// been quiet for quietPeriod, or after maxWait regardless
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Debouncer) run(ctx context.Context) {
	var (
		quietTimer   *time.Timer
		maxWaitTimer *time.Timer
		accumulated  = make(map[model.FileCategory][]string)
		eventCount   int
	)

	timerC := func(t *time.Timer) <-chan time.Time {
		if t == nil {
			return nil
		}
		return t.C
	}

	flush := func() {
		if eventCount == 0 {
			return
		}

		logging.Debug("flushing accumulated change events", "count", eventCount)

		// Highest-invalidation category first
		for _, category := range []model.FileCategory{
			model.CategoryBuildConfig,
			model.CategoryHeader,
			model.CategorySource,
			model.CategoryResource,
			model.CategoryOther,
		} {
			if paths := accumulated[category]; len(paths) > 0 {
				d.output <- ChangeEvent{
					Category:  category,
					Paths:     paths,
					Timestamp: time.Now(),
				}
			}
		}

		accumulated = make(map[model.FileCategory][]string)
		eventCount = 0

		if quietTimer != nil {
			quietTimer.Stop()
			quietTimer = nil
		}
		if maxWaitTimer != nil {
			maxWaitTimer.Stop()
			maxWaitTimer = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(d.output)
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				close(d.output)
				return
			}

			accumulated[event.Category] = append(accumulated[event.Category], event.Paths...)
			eventCount++

			if quietTimer == nil {
				quietTimer = time.NewTimer(d.quietPeriod)
			} else {
				quietTimer.Reset(d.quietPeriod)
			}
			if maxWaitTimer == nil {
				maxWaitTimer = time.NewTimer(d.maxWait)
			}

		case <-timerC(quietTimer):
			flush()

		case <-timerC(maxWaitTimer):
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
