// Package quote turns an uploaded model and a material choice into a quote.
package quote

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/faults"
	"github.com/Simplici0/printquote/internal/material"
	"github.com/Simplici0/printquote/internal/mesh"
	"github.com/Simplici0/printquote/internal/pricing"
	"github.com/Simplici0/printquote/internal/process"
)

// State is a step of quote generation.
type State string

const (
	StateLoaded         State = "LOADED"
	StatePropertiesOK   State = "PROPERTIES_OK"
	StateDFMDone        State = "DFM_DONE"
	StateSkippedCosting State = "SKIPPED_COSTING"
	StateCosted         State = "COSTED"
	StatePriced         State = "PRICED"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

// Result is the quote handed back to the caller. Cost and CustomerPrice are
// nil whenever the DFM verdict is FAIL or costing failed.
type Result struct {
	ID            string                `json:"quote_id"`
	FileName      string                `json:"file_name"`
	Process       string                `json:"process"`
	Material      string                `json:"material_id"`
	MaterialName  string                `json:"material_name,omitempty"`
	Technology    string                `json:"technology,omitempty"`
	DFM           dfm.Report            `json:"dfm_report"`
	Properties    *mesh.Properties      `json:"mesh_properties,omitempty"`
	Cost          *pricing.CostEstimate `json:"cost_estimate"`
	Price         *pricing.Breakdown    `json:"price_breakdown,omitempty"`
	CustomerPrice *float64              `json:"customer_price"`
	ProcessTime   string                `json:"process_time,omitempty"`
	TotalSeconds  float64               `json:"total_processing_time_seconds"`
	Error         string                `json:"error_message,omitempty"`
	ErrorKind     faults.Kind           `json:"error_kind,omitempty"`
	State         State                 `json:"state"`
	Stages        []State               `json:"stages"`
	CreatedAt     time.Time             `json:"created_at"`
}

// Succeeded reports whether the quote carries a price.
func (r *Result) Succeeded() bool {
	return r.CustomerPrice != nil
}

// Loader reads a model file into a mesh.
type Loader interface {
	Load(ctx context.Context, path string) (*mesh.Mesh, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (*mesh.Mesh, error)

func (f LoaderFunc) Load(ctx context.Context, path string) (*mesh.Mesh, error) { return f(ctx, path) }

// Observer is told about every finished quote.
type Observer interface {
	ObserveQuote(process string, status dfm.Status, state State, d time.Duration)
}

// Request names the model file and what to make it from.
type Request struct {
	Path       string
	FileName   string
	Processor  process.Processor
	MaterialID string
}

// Orchestrator sequences loading, property extraction, DFM, costing and
// pricing. It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	loader   Loader
	pricer   *pricing.Pricer
	logger   *zap.Logger
	observer Observer
	now      func() time.Time
	newID    func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock replaces time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDs replaces the quote id generator.
func WithIDs(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

func NewOrchestrator(loader Loader, pricer *pricing.Pricer, opts ...Option) (*Orchestrator, error) {
	if loader == nil {
		return nil, faults.New(faults.KindConfiguration, "quote orchestrator needs a model loader")
	}
	if pricer == nil {
		return nil, faults.New(faults.KindConfiguration, "quote orchestrator needs a pricer")
	}
	o := &Orchestrator{
		loader: loader,
		pricer: pricer,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run is the state of one Generate call.
type run struct {
	o      *Orchestrator
	res    *Result
	logger *zap.Logger
}

func (r *run) enter(s State) {
	r.res.State = s
	r.res.Stages = append(r.res.Stages, s)
	r.logger.Debug("quote state", zap.String("state", string(s)))
}

// fail records err on the result. The DFM report is left as it is.
func (r *run) fail(err error) {
	r.res.Error = faults.Public(err)
	r.res.ErrorKind = faults.KindOf(err)
	r.res.Cost = nil
	r.res.Price = nil
	r.res.CustomerPrice = nil
	r.res.ProcessTime = ""
	r.logger.Warn("quote failed",
		zap.String("state", string(r.res.State)),
		zap.String("kind", string(r.res.ErrorKind)),
		zap.String("error", err.Error()))
	r.enter(StateFailed)
}

// Generate runs the pipeline for req. It always returns a populated result;
// every failure, including panics, is classified onto it.
func (o *Orchestrator) Generate(ctx context.Context, req Request) *Result {
	start := time.Now()
	res := &Result{
		ID:        o.newID(),
		FileName:  req.FileName,
		Material:  req.MaterialID,
		DFM:       dfm.FailedReport(),
		Stages:    []State{},
		CreatedAt: o.now().UTC(),
	}
	if res.FileName == "" {
		res.FileName = filepath.Base(req.Path)
	}
	if req.Processor != nil {
		res.Process = req.Processor.Name()
	}
	r := &run{o: o, res: res, logger: o.logger.With(zap.String("quote_id", res.ID))}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("quote pipeline panicked", zap.Any("panic", p))
			r.fail(faults.New(faults.KindQuoteGeneration, "quote generation failed"))
		}
		res.TotalSeconds = time.Since(start).Seconds()
		r.logger.Info("quote generated",
			zap.String("process", res.Process),
			zap.String("material_id", res.Material),
			zap.String("status", string(res.DFM.Status)),
			zap.String("state", string(res.State)),
			zap.Float64("duration_seconds", res.TotalSeconds))
		if o.observer != nil {
			o.observer.ObserveQuote(res.Process, res.DFM.Status, res.State, time.Since(start))
		}
	}()

	if err := r.execute(ctx, req); err != nil {
		r.fail(err)
	}
	return res
}

func (r *run) execute(ctx context.Context, req Request) error {
	res := r.res
	p := req.Processor
	if p == nil {
		return faults.New(faults.KindConfiguration, "no processor selected")
	}
	mat, err := p.Catalog().Lookup(req.MaterialID)
	if err != nil {
		return err
	}
	res.MaterialName = mat.Name
	res.Technology = mat.Technology

	m, err := r.o.loader.Load(ctx, req.Path)
	if err != nil {
		return faults.Classify(faults.KindFileFormat, err, "could not read the model file")
	}
	r.enter(StateLoaded)

	props, err := mesh.Extract(m)
	if err != nil {
		return faults.Classify(faults.KindGeometryProcessing, err, "could not measure the model")
	}
	res.Properties = &props
	r.enter(StatePropertiesOK)

	model := process.Model{Path: req.Path, Mesh: m, Props: props}
	report, err := r.runDFM(ctx, p, model, mat)
	if err != nil {
		return err
	}
	res.DFM = report
	r.enter(StateDFMDone)

	if report.Status == dfm.StatusFail {
		r.enter(StateSkippedCosting)
		r.enter(StateDone)
		return nil
	}

	est, err := p.EstimateCostAndTime(ctx, model, mat)
	if err != nil {
		return faults.Classify(faults.KindQuoteGeneration, err, "cost estimation failed")
	}
	res.Cost = &est
	res.ProcessTime = pricing.FormatTime(est.ProcessTimeSeconds)
	r.enter(StateCosted)

	price := r.o.pricer.Calculate(est)
	res.Price = &price
	res.CustomerPrice = &price.CustomerPrice
	r.enter(StatePriced)
	r.enter(StateDone)
	return nil
}

// runDFM isolates a crash in the engine itself; per-check failures never
// reach here.
func (r *run) runDFM(ctx context.Context, p process.Processor, m process.Model, mat material.Material) (report dfm.Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("dfm engine panicked", zap.Any("panic", rec))
			err = faults.New(faults.KindDFMCheck, "design analysis could not complete")
		}
	}()
	return p.RunDFMChecks(ctx, m, mat), nil
}

// String renders a one-line summary for logs.
func (r *Result) String() string {
	price := "n/a"
	if r.CustomerPrice != nil {
		price = fmt.Sprintf("%.2f", *r.CustomerPrice)
	}
	return fmt.Sprintf("quote %s %s/%s %s price=%s", r.ID, r.Process, r.Material, r.DFM.Status, price)
}
