package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"taskagent/pkg/metrics"
)

// DefaultJanitorSchedule is how often the work directory is swept.
const DefaultJanitorSchedule = "@every 10m"

// Janitor removes script artifacts left behind by an agent that died mid-run.
// Anything younger than MaxAge is left alone, so artifacts of live executions
// are never touched as long as MaxAge exceeds the execution timeout.
type Janitor struct {
	dir    string
	maxAge time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewJanitor creates a janitor for the engine's work directory. Stale means
// older than twice the execution timeout.
func NewJanitor(e *Engine, logger *zap.Logger) *Janitor {
	return &Janitor{
		dir:    e.cfg.WorkDir,
		maxAge: 2 * e.cfg.Timeout,
		logger: logger,
		now:    time.Now,
	}
}

// Sweep deletes stale artifacts once and reports how many were removed.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read work directory: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasPrefix(entry.Name(), artifactPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed concurrently
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			j.logger.Warn("failed to remove stale artifact", zap.String("artifact", path), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.ArtifactsSwept.Add(float64(removed))
		j.logger.Info("swept stale script artifacts", zap.Int("count", removed))
	}
	return removed, nil
}

// Run sweeps on the given cron schedule until ctx is cancelled. The first
// sweep happens immediately.
func (j *Janitor) Run(ctx context.Context, schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, j.sweepLogged); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}

	j.sweepLogged()
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (j *Janitor) sweepLogged() {
	if _, err := j.Sweep(); err != nil {
		j.logger.Warn("janitor sweep failed", zap.Error(err))
	}
}
