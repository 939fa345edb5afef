package dlq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor purges DLQ entries older than a retention period on a cron
// schedule. It exists so failed jobs stay visible to operators for a
// bounded window instead of accumulating forever.
type Janitor struct {
	store     Store
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runs   bool
}

// NewJanitor creates a Janitor. spec is a standard 5-field cron expression
// (e.g. "0 3 * * *" for daily at 03:00); retention is how long failed
// entries are kept before purging.
func NewJanitor(store Store, spec string, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:     store,
		schedule:  schedule,
		retention: retention,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start launches the purge loop. It returns immediately.
func (jn *Janitor) Start() {
	jn.mu.Lock()
	defer jn.mu.Unlock()

	if jn.runs {
		return
	}
	jn.runs = true

	jn.wg.Add(1)
	go jn.loop()
}

// Stop signals the purge loop to exit and waits for it.
func (jn *Janitor) Stop() {
	jn.mu.Lock()
	if !jn.runs {
		jn.mu.Unlock()
		return
	}
	jn.runs = false
	jn.mu.Unlock()

	close(jn.stopCh)
	jn.wg.Wait()
}

func (jn *Janitor) loop() {
	defer jn.wg.Done()

	for {
		next := jn.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-jn.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			jn.purge()
		}
	}
}

func (jn *Janitor) purge() {
	cutoff := time.Now().UTC().Add(-jn.retention)
	removed, err := jn.store.PurgeDLQ(context.Background(), cutoff)
	if err != nil {
		jn.logger.Error("dlq purge failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		jn.logger.Info("dlq purged",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
}
