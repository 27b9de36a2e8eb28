package process

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/faults"
	"github.com/Simplici0/printquote/internal/material"
	"github.com/Simplici0/printquote/internal/pricing"
)

// DefaultRemovalRate is the machining removal rate in cm³ per minute.
const DefaultRemovalRate = 10.0

// SubtractiveConfig configures a Subtractive processor.
type SubtractiveConfig struct {
	Catalog *material.Catalog
	Profile *dfm.Profile
	// RemovalRate is cm³ of stock removed per minute; zero means
	// DefaultRemovalRate.
	RemovalRate float64
	Logger      *zap.Logger
	Observer    dfm.Observer
}

// Subtractive covers CNC milling. Cost and time are closed-form; nothing
// external is called.
type Subtractive struct {
	catalog     *material.Catalog
	profile     dfm.Profile
	removalRate float64
	engine      *dfm.Engine
	logger      *zap.Logger
}

func NewSubtractive(cfg SubtractiveConfig) (*Subtractive, error) {
	if cfg.Catalog == nil {
		return nil, faults.New(faults.KindConfiguration, "cnc needs a material catalog")
	}
	if cfg.RemovalRate < 0 {
		return nil, faults.New(faults.KindConfiguration, "removal rate must be positive, got %v", cfg.RemovalRate)
	}
	rate := cfg.RemovalRate
	if rate == 0 {
		rate = DefaultRemovalRate
	}
	prof := dfm.DefaultProfile(dfm.TechnologyCNCMilling)
	if cfg.Profile != nil {
		prof = *cfg.Profile
	}
	prof.Technology = dfm.TechnologyCNCMilling
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("process", NameSubtractive))
	engine := dfm.NewEngine(dfm.SubtractiveChecks(prof),
		dfm.WithLogger(logger),
		dfm.WithObserver(cfg.Observer))
	return &Subtractive{
		catalog:     cfg.Catalog,
		profile:     prof,
		removalRate: rate,
		engine:      engine,
		logger:      logger,
	}, nil
}

func (s *Subtractive) Name() string               { return NameSubtractive }
func (s *Subtractive) CatalogPath() string        { return s.catalog.Path() }
func (s *Subtractive) Catalog() *material.Catalog { return s.catalog }

func (s *Subtractive) RunDFMChecks(ctx context.Context, m Model, mat material.Material) dfm.Report {
	return s.engine.Run(ctx, dfm.Input{Mesh: m.Mesh, Props: m.Props, Material: mat, Profile: s.profile})
}

// EstimateCostAndTime weighs the finished part and times the removal of
// everything between it and its bounding-box stock.
func (s *Subtractive) EstimateCostAndTime(_ context.Context, m Model, mat material.Material) (pricing.CostEstimate, error) {
	start := time.Now()
	if mat.Density <= 0 {
		return pricing.CostEstimate{}, faults.New(faults.KindConfiguration, "material %q has no density", mat.ID)
	}
	partCM3 := m.Props.Volume
	if partCM3 <= 0 {
		return pricing.CostEstimate{}, faults.New(faults.KindGeometryProcessing, "part volume %.3f cm³ cannot be machined", partCM3)
	}
	size := m.Props.BoundingBox.Size()
	stockCM3 := size.X * size.Y * size.Z / 1000
	removedCM3 := stockCM3 - partCM3
	if removedCM3 < 0 {
		removedCM3 = 0
	}
	seconds := removedCM3 / s.removalRate * 60

	weightG := partCM3 * mat.Density
	cost, err := pricing.MaterialCost(mat, weightG, partCM3)
	if err != nil {
		return pricing.CostEstimate{}, err
	}
	s.logger.Debug("estimated machining cost",
		zap.Float64("stock_cm3", stockCM3),
		zap.Float64("removed_cm3", removedCM3),
		zap.Float64("machining_seconds", seconds))
	return pricing.NewCostEstimate(partCM3, nil, weightG, cost, seconds, time.Since(start)), nil
}
