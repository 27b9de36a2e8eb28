// Package janitor removes what quote generation leaves behind: uploaded
// models whose retention has lapsed and slicer workspaces orphaned by a
// crash.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Simplici0/printquote/internal/slicer"
	"github.com/Simplici0/printquote/internal/store"
)

const (
	defaultFilesSchedule      = "0 */5 * * * *"
	defaultWorkspacesSchedule = "30 */15 * * * *"
)

// Config configures a Janitor. Schedules use six-field cron syntax with
// seconds.
type Config struct {
	Files              store.FileStore
	SlicerTempDir      string
	WorkspaceMaxAge    time.Duration
	FilesSchedule      string
	WorkspacesSchedule string
	Logger             *zap.Logger
}

// Janitor runs the sweeps on a cron schedule.
type Janitor struct {
	cfg    Config
	cron   *cron.Cron
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config) *Janitor {
	if cfg.FilesSchedule == "" {
		cfg.FilesSchedule = defaultFilesSchedule
	}
	if cfg.WorkspacesSchedule == "" {
		cfg.WorkspacesSchedule = defaultWorkspacesSchedule
	}
	if cfg.WorkspaceMaxAge <= 0 {
		cfg.WorkspaceMaxAge = 2 * slicer.DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		cfg:    cfg,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With(zap.String("component", "janitor")),
		now:    time.Now,
	}
}

// Start registers both sweeps and starts the scheduler.
func (j *Janitor) Start() error {
	if j.cfg.Files != nil {
		if _, err := j.cron.AddFunc(j.cfg.FilesSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if _, err := j.SweepFiles(ctx); err != nil {
				j.logger.Warn("sweep expired quote files", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule file sweep: %w", err)
		}
	}
	if _, err := j.cron.AddFunc(j.cfg.WorkspacesSchedule, func() {
		if _, err := j.SweepWorkspaces(); err != nil {
			j.logger.Warn("sweep slicer workspaces", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule workspace sweep: %w", err)
	}
	j.cron.Start()
	j.logger.Info("janitor started",
		zap.String("files_schedule", j.cfg.FilesSchedule),
		zap.String("workspaces_schedule", j.cfg.WorkspacesSchedule))
	return nil
}

// Stop halts the scheduler and waits for a running sweep, or until ctx ends.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// SweepFiles deletes expired model files and their entries. A file already
// gone from disk still has its entry removed.
func (j *Janitor) SweepFiles(ctx context.Context) (int, error) {
	if j.cfg.Files == nil {
		return 0, nil
	}
	expired, err := j.cfg.Files.Expired(ctx, j.now())
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, e := range expired {
		if e.Path != "" {
			if err := os.Remove(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", e.QuoteID, err))
				continue
			}
		}
		if err := j.cfg.Files.Delete(ctx, e.QuoteID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("removed expired quote files", zap.Int("count", removed))
	}
	return removed, errors.Join(errs...)
}

// SweepWorkspaces removes slicer workspaces older than the configured age.
func (j *Janitor) SweepWorkspaces() (int, error) {
	n, err := slicer.SweepStale(j.cfg.SlicerTempDir, j.now().Add(-j.cfg.WorkspaceMaxAge))
	if n > 0 {
		j.logger.Info("removed stale slicer workspaces", zap.Int("count", n))
	}
	return n, err
}
