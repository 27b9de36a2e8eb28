package process

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/faults"
	"github.com/Simplici0/printquote/internal/material"
	"github.com/Simplici0/printquote/internal/mesh"
	"github.com/Simplici0/printquote/internal/pricing"
	"github.com/Simplici0/printquote/internal/slicer"
)

// DefaultSlicing returns the slicer settings used for t when none are
// configured.
func DefaultSlicing(t dfm.Technology) slicer.Settings {
	switch t {
	case dfm.TechnologySLA:
		return slicer.Settings{Technology: string(t), LayerHeightMM: 0.05, Infill: 1, Supports: true}
	case dfm.TechnologySLS:
		return slicer.Settings{Technology: string(t), LayerHeightMM: 0.1, Infill: 1}
	default:
		return slicer.Settings{Technology: string(dfm.TechnologyFDM), LayerHeightMM: 0.2, Infill: 0.2, Supports: true}
	}
}

// AdditiveConfig configures an Additive processor. Zero-valued maps fall back
// to the built-in profiles and slicer settings.
type AdditiveConfig struct {
	Catalog     *material.Catalog
	Slicer      slicer.Slicer
	Profiles    map[dfm.Technology]dfm.Profile
	Slicing     map[dfm.Technology]slicer.Settings
	Logger      *zap.Logger
	Observer    dfm.Observer
	Concurrency int
}

// Additive covers FDM, SLA and SLS printing. The technology comes from the
// selected material.
type Additive struct {
	catalog  *material.Catalog
	slicer   slicer.Slicer
	profiles map[dfm.Technology]dfm.Profile
	slicing  map[dfm.Technology]slicer.Settings
	engines  map[dfm.Technology]*dfm.Engine
	logger   *zap.Logger
}

var additiveTechnologies = []dfm.Technology{dfm.TechnologyFDM, dfm.TechnologySLA, dfm.TechnologySLS}

func NewAdditive(cfg AdditiveConfig) (*Additive, error) {
	if cfg.Catalog == nil {
		return nil, faults.New(faults.KindConfiguration, "3d printing needs a material catalog")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Additive{
		catalog:  cfg.Catalog,
		slicer:   cfg.Slicer,
		profiles: make(map[dfm.Technology]dfm.Profile),
		slicing:  make(map[dfm.Technology]slicer.Settings),
		engines:  make(map[dfm.Technology]*dfm.Engine),
		logger:   logger.With(zap.String("process", NameAdditive)),
	}
	for _, t := range additiveTechnologies {
		prof, ok := cfg.Profiles[t]
		if !ok {
			prof = dfm.DefaultProfile(t)
		}
		prof.Technology = t
		settings, ok := cfg.Slicing[t]
		if !ok {
			settings = DefaultSlicing(t)
		}
		settings.Technology = string(t)

		a.profiles[t] = prof
		a.slicing[t] = settings
		a.engines[t] = dfm.NewEngine(dfm.AdditiveChecks(prof),
			dfm.WithLogger(a.logger.With(zap.String("technology", string(t)))),
			dfm.WithObserver(cfg.Observer),
			dfm.WithConcurrency(cfg.Concurrency))
	}
	return a, nil
}

func (a *Additive) Name() string               { return NameAdditive }
func (a *Additive) CatalogPath() string        { return a.catalog.Path() }
func (a *Additive) Catalog() *material.Catalog { return a.catalog }

// Technology resolves the printing technology for mat; FDM when unset or
// unknown.
func (a *Additive) Technology(mat material.Material) dfm.Technology {
	t := dfm.ParseTechnology(mat.Technology)
	if _, ok := a.profiles[t]; ok {
		return t
	}
	return dfm.TechnologyFDM
}

// Profile returns the DFM thresholds in force for t.
func (a *Additive) Profile(t dfm.Technology) dfm.Profile {
	return a.profiles[t]
}

func (a *Additive) RunDFMChecks(ctx context.Context, m Model, mat material.Material) dfm.Report {
	t := a.Technology(mat)
	return a.engines[t].Run(ctx, dfm.Input{
		Mesh:     m.Mesh,
		Props:    m.Props,
		Material: mat,
		Profile:  a.profiles[t],
	})
}

// EstimateCostAndTime slices the model and prices the reported material
// usage. Weight is derived from density when the slicer prints none.
func (a *Additive) EstimateCostAndTime(ctx context.Context, m Model, mat material.Material) (pricing.CostEstimate, error) {
	start := time.Now()
	if mat.Density <= 0 {
		return pricing.CostEstimate{}, faults.New(faults.KindConfiguration, "material %q has no density", mat.ID)
	}
	if a.slicer == nil {
		return pricing.CostEstimate{}, faults.New(faults.KindSlicer, "no slicer is configured")
	}
	t := a.Technology(mat)
	settings := a.slicing[t]
	settings.DensityGCM3 = mat.Density

	path, cleanup, err := sliceable(m)
	if err != nil {
		return pricing.CostEstimate{}, err
	}
	defer cleanup()

	res, err := a.slicer.Slice(ctx, path, settings)
	if err != nil {
		return pricing.CostEstimate{}, faults.Classify(faults.KindSlicer, err, "slice model")
	}

	volumeCM3 := res.VolumeMM3 / 1000
	weightG := volumeCM3 * mat.Density
	if res.WeightG != nil && *res.WeightG > 0 {
		weightG = *res.WeightG
	}
	cost, err := pricing.MaterialCost(mat, weightG, volumeCM3)
	if err != nil {
		return pricing.CostEstimate{}, err
	}
	a.logger.Debug("estimated additive cost",
		zap.String("technology", string(t)),
		zap.Float64("volume_cm3", volumeCM3),
		zap.Float64("weight_g", weightG),
		zap.Float64("print_time_seconds", res.PrintTimeSeconds))
	return pricing.NewCostEstimate(volumeCM3, nil, weightG, cost, res.PrintTimeSeconds, time.Since(start)), nil
}

// sliceable returns a path the slicer can read. Mesh formats are passed
// through; anything else (STEP) is exported to a temporary STL removed by
// the returned cleanup.
func sliceable(m Model) (string, func(), error) {
	switch strings.ToLower(filepath.Ext(m.Path)) {
	case ".stl", ".obj", ".3mf":
		return m.Path, func() {}, nil
	}
	if m.Mesh == nil {
		return "", nil, faults.New(faults.KindGeometryProcessing, "no mesh to slice")
	}
	dir, err := os.MkdirTemp("", "printquote-export-*")
	if err != nil {
		return "", nil, faults.Wrap(faults.KindSlicer, err, "create export workspace")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	path := filepath.Join(dir, "model.stl")
	if err := mesh.SaveSTL(path, m.Mesh); err != nil {
		cleanup()
		return "", nil, faults.Wrap(faults.KindSlicer, err, "export mesh for slicing")
	}
	return path, cleanup, nil
}
