package dfm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Simplici0/printquote/internal/faults"
	"github.com/Simplici0/printquote/internal/material"
	"github.com/Simplici0/printquote/internal/mesh"
)

// Input is everything a check may look at. Checks must treat it as read-only.
type Input struct {
	Mesh     *mesh.Mesh
	Props    mesh.Properties
	Material material.Material
	Profile  Profile
}

// Check is one independent rule.
type Check struct {
	Name string
	Run  func(ctx context.Context, in Input) ([]Issue, error)
}

// Observer receives per-check timings.
type Observer interface {
	ObserveCheck(name string, d time.Duration, degraded bool)
}

// Engine runs a fixed, ordered battery of checks concurrently. Issues are
// reported in check order regardless of completion order.
type Engine struct {
	checks   []Check
	logger   *zap.Logger
	observer Observer
	limit    int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver sets the per-check timing observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// WithConcurrency caps the number of checks running at once. Zero or
// negative means no cap.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) { e.limit = n }
}

// NewEngine returns an engine over checks in the given order.
func NewEngine(checks []Check, opts ...EngineOption) *Engine {
	e := &Engine{checks: checks, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Checks returns the check names in execution order.
func (e *Engine) Checks() []string {
	names := make([]string, len(e.checks))
	for i, c := range e.checks {
		names[i] = c.Name
	}
	return names
}

// Run executes every check and aggregates the result. A failing or panicking
// check becomes a single ANALYSIS_DEGRADED warning; the others still run.
func (e *Engine) Run(ctx context.Context, in Input) Report {
	start := time.Now()
	results := make([][]Issue, len(e.checks))

	var g errgroup.Group
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i, c := range e.checks {
		g.Go(func() error {
			results[i] = e.runCheck(ctx, c, in)
			return nil
		})
	}
	_ = g.Wait()

	var issues []Issue
	for _, r := range results {
		issues = append(issues, r...)
	}
	report := newReport(issues, time.Since(start))
	e.logger.Debug("dfm analysis finished",
		zap.String("status", string(report.Status)),
		zap.Int("issues", len(report.Issues)),
		zap.Duration("duration", report.Duration))
	return report
}

func (e *Engine) runCheck(ctx context.Context, c Check, in Input) (issues []Issue) {
	start := time.Now()
	degraded := false
	defer func() {
		if r := recover(); r != nil {
			err := faults.New(faults.KindDFMCheck, "check %s panicked: %v", c.Name, r)
			e.logger.Warn("dfm check panicked", zap.String("check", c.Name), zap.Error(err))
			issues = []Issue{degradedIssue(c.Name, "internal error")}
			degraded = true
		}
		if e.observer != nil {
			e.observer.ObserveCheck(c.Name, time.Since(start), degraded)
		}
	}()

	if err := ctx.Err(); err != nil {
		degraded = true
		return []Issue{degradedIssue(c.Name, "analysis cancelled")}
	}
	found, err := c.Run(ctx, in)
	if err != nil {
		err = faults.Wrap(faults.KindDFMCheck, err, "check %s failed", c.Name)
		e.logger.Warn("dfm check failed", zap.String("check", c.Name), zap.Error(err))
		degraded = true
		return []Issue{degradedIssue(c.Name, fmt.Sprintf("%s did not complete", c.Name))}
	}
	return found
}
