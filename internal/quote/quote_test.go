package quote_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/faults"
	"github.com/Simplici0/printquote/internal/material"
	"github.com/Simplici0/printquote/internal/mesh"
	"github.com/Simplici0/printquote/internal/mesh/meshtest"
	"github.com/Simplici0/printquote/internal/pricing"
	"github.com/Simplici0/printquote/internal/process"
	"github.com/Simplici0/printquote/internal/quote"
	"github.com/Simplici0/printquote/internal/slicer"
)

func ptr(v float64) *float64 { return &v }

type countingSlicer struct {
	res   slicer.Result
	err   error
	calls int
}

func (s *countingSlicer) Slice(context.Context, string, slicer.Settings) (slicer.Result, error) {
	s.calls++
	return s.res, s.err
}

type fixture struct {
	orch     *quote.Orchestrator
	additive *process.Additive
	slicer   *countingSlicer
	seen     []quote.State
}

func (f *fixture) ObserveQuote(_ string, _ dfm.Status, state quote.State, _ time.Duration) {
	f.seen = append(f.seen, state)
}

func newFixture(t *testing.T, opts ...quote.Option) *fixture {
	t.Helper()

	catalog, err := material.NewCatalog(process.NameAdditive, []material.Material{
		{ID: "pla", Name: "PLA", Process: "3d_printing", Technology: "FDM", CostPerKg: ptr(20), Density: 1.24},
		{ID: "petg", Name: "PETG", Process: "3d_printing", Technology: "FDM", CostPerKg: ptr(25), Density: 1.27},
	})
	require.NoError(t, err)
	f := &fixture{slicer: &countingSlicer{res: slicer.Result{PrintTimeSeconds: 3723, VolumeMM3: 8000}}}
	f.additive, err = process.NewAdditive(process.AdditiveConfig{Catalog: catalog, Slicer: f.slicer})
	require.NoError(t, err)
	pricer, err := pricing.NewPricer(1.5, 10)
	require.NoError(t, err)

	opts = append([]quote.Option{
		quote.WithObserver(f),
		quote.WithIDs(func() string { return "q-1" }),
	}, opts...)
	f.orch, err = quote.NewOrchestrator(mesh.Loader{}, pricer, opts...)
	require.NoError(t, err)
	return f
}

func (f *fixture) generate(t *testing.T, m *mesh.Mesh, materialID string) *quote.Result {
	t.Helper()
	path := meshtest.WriteSTL(t, "model.stl", m)
	return f.orch.Generate(context.Background(), quote.Request{
		Path:       path,
		FileName:   "bracket.stl",
		Processor:  f.additive,
		MaterialID: materialID,
	})
}

func TestSolidCubeIsPriced(t *testing.T) {
	f := newFixture(t)

	res := f.generate(t, meshtest.Cube(20), "pla")

	assert.Equal(t, "q-1", res.ID)
	assert.Equal(t, "bracket.stl", res.FileName)
	assert.Equal(t, "3d_printing", res.Process)
	assert.Equal(t, "PLA", res.MaterialName)
	assert.Equal(t, dfm.StatusPass, res.DFM.Status)
	require.NotNil(t, res.Cost)
	require.NotNil(t, res.CustomerPrice)
	assert.Greater(t, *res.CustomerPrice, 0.0)
	assert.GreaterOrEqual(t, *res.CustomerPrice, res.Cost.BaseCost)
	// 8 cm³ PLA = 9.92 g = 0.1984; ×1.5 + 1.034h × 10
	assert.InDelta(t, 10.64, *res.CustomerPrice, 1e-9)
	assert.Equal(t, "1h 2m", res.ProcessTime)
	assert.Empty(t, res.Error)
	assert.Equal(t, quote.StateDone, res.State)
	assert.Equal(t, []quote.State{
		quote.StateLoaded, quote.StatePropertiesOK, quote.StateDFMDone,
		quote.StateCosted, quote.StatePriced, quote.StateDone,
	}, res.Stages)
	assert.True(t, res.Succeeded())
	assert.Equal(t, []quote.State{quote.StateDone}, f.seen)
}

func TestTwoCubesSkipCosting(t *testing.T) {
	f := newFixture(t)
	m := meshtest.Merge(
		meshtest.Cube(10),
		meshtest.Box(mesh.Vec3{X: 20}, mesh.Vec3{X: 30, Y: 10, Z: 10}),
	)

	res := f.generate(t, m, "pla")

	assert.Equal(t, dfm.StatusFail, res.DFM.Status)
	is, ok := res.DFM.Find(dfm.KindMultipleShells)
	require.True(t, ok)
	assert.Equal(t, dfm.SeverityCritical, is.Severity)
	assert.Nil(t, res.Cost)
	assert.Nil(t, res.CustomerPrice)
	assert.Empty(t, res.Error)
	assert.Zero(t, f.slicer.calls, "costing must not run on FAIL")
	assert.Equal(t, []quote.State{
		quote.StateLoaded, quote.StatePropertiesOK, quote.StateDFMDone,
		quote.StateSkippedCosting, quote.StateDone,
	}, res.Stages)
}

func TestThinWallFails(t *testing.T) {
	f := newFixture(t)

	res := f.generate(t, meshtest.Box(mesh.Vec3{}, mesh.Vec3{X: 20, Y: 20, Z: 0.3}), "pla")

	assert.Equal(t, dfm.StatusFail, res.DFM.Status)
	is, ok := res.DFM.Find(dfm.KindThinWall)
	require.True(t, ok)
	assert.Equal(t, dfm.SeverityCritical, is.Severity)
	assert.Nil(t, res.Cost)
}

func TestUnknownMaterial(t *testing.T) {
	f := newFixture(t)

	res := f.generate(t, meshtest.Cube(20), "unobtainium")

	assert.Equal(t, faults.KindMaterialNotFound, res.ErrorKind)
	assert.Contains(t, res.Error, "unobtainium")
	assert.Contains(t, res.Error, "petg, pla")
	assert.Equal(t, dfm.StatusFail, res.DFM.Status)
	assert.Nil(t, res.Cost)
	assert.Equal(t, quote.StateFailed, res.State)
}

func TestUnsupportedFile(t *testing.T) {
	f := newFixture(t)
	path := meshtest.WriteFile(t, "notes.txt", []byte("hello"))

	res := f.orch.Generate(context.Background(), quote.Request{Path: path, Processor: f.additive, MaterialID: "pla"})

	assert.Equal(t, "notes.txt", res.FileName)
	assert.Equal(t, faults.KindFileFormat, res.ErrorKind)
	assert.Equal(t, dfm.StatusFail, res.DFM.Status)
	assert.NotNil(t, res.DFM.Issues)
	assert.Equal(t, []quote.State{quote.StateFailed}, res.Stages)
}

func TestCorruptSTL(t *testing.T) {
	f := newFixture(t)
	path := meshtest.WriteFile(t, "broken.stl", []byte{0x01, 0x02, 0x03})

	res := f.orch.Generate(context.Background(), quote.Request{Path: path, Processor: f.additive, MaterialID: "pla"})

	assert.Equal(t, faults.KindFileFormat, res.ErrorKind)
	assert.NotEmpty(t, res.Error)
}

func TestDegenerateMesh(t *testing.T) {
	f := newFixture(t)
	flat := &mesh.Mesh{
		Vertices: []mesh.Vec3{{}, {X: 1}, {X: 2}},
		Faces:    [][3]int{{0, 1, 2}},
	}
	pricer, err := pricing.NewPricer(1, 0)
	require.NoError(t, err)
	orch, err := quote.NewOrchestrator(quote.LoaderFunc(func(context.Context, string) (*mesh.Mesh, error) {
		return flat, nil
	}), pricer)
	require.NoError(t, err)

	res := orch.Generate(context.Background(), quote.Request{Path: "flat.stl", Processor: f.additive, MaterialID: "pla"})

	assert.Equal(t, faults.KindGeometryProcessing, res.ErrorKind)
	assert.Equal(t, []quote.State{quote.StateLoaded, quote.StateFailed}, res.Stages)
	assert.Equal(t, dfm.StatusFail, res.DFM.Status)
}

func TestSlicerFailureKeepsDFMFindings(t *testing.T) {
	f := newFixture(t)
	f.slicer.err = faults.New(faults.KindSlicer, "slicer timed out after 5m0s")
	slab := meshtest.Box(mesh.Vec3{}, mesh.Vec3{X: 100, Y: 100, Z: 5})

	res := f.generate(t, slab, "pla")

	assert.Equal(t, dfm.StatusWarning, res.DFM.Status)
	assert.True(t, res.DFM.Has(dfm.KindWarpingRisk))
	assert.Nil(t, res.Cost)
	assert.Nil(t, res.CustomerPrice)
	assert.Empty(t, res.ProcessTime)
	assert.Equal(t, "SlicerError: slicer timed out after 5m0s", res.Error)
	assert.Equal(t, quote.StateFailed, res.State)
	assert.Equal(t, 1, f.slicer.calls)
}

func TestPlainSlicerErrorIsClassified(t *testing.T) {
	f := newFixture(t)
	f.slicer.err = errors.New("exec: \"prusa-slicer\": executable file not found in $PATH")

	res := f.generate(t, meshtest.Cube(20), "pla")

	assert.Equal(t, faults.KindSlicer, res.ErrorKind)
	assert.NotContains(t, res.Error, "$PATH")
}

type panickingProcessor struct {
	process.Processor
	inDFM bool
}

func (p panickingProcessor) RunDFMChecks(ctx context.Context, m process.Model, mat material.Material) dfm.Report {
	if p.inDFM {
		panic("engine exploded")
	}
	return p.Processor.RunDFMChecks(ctx, m, mat)
}

func (p panickingProcessor) EstimateCostAndTime(context.Context, process.Model, material.Material) (pricing.CostEstimate, error) {
	panic("estimator exploded")
}

func TestPanicsBecomeResults(t *testing.T) {
	f := newFixture(t)
	path := meshtest.WriteSTL(t, "cube.stl", meshtest.Cube(20))

	res := f.orch.Generate(context.Background(), quote.Request{
		Path:       path,
		Processor:  panickingProcessor{Processor: f.additive, inDFM: true},
		MaterialID: "pla",
	})
	assert.Equal(t, faults.KindDFMCheck, res.ErrorKind)
	assert.NotContains(t, res.Error, "exploded")
	assert.Equal(t, quote.StateFailed, res.State)

	res = f.orch.Generate(context.Background(), quote.Request{
		Path:       path,
		Processor:  panickingProcessor{Processor: f.additive},
		MaterialID: "pla",
	})
	assert.Equal(t, faults.KindQuoteGeneration, res.ErrorKind)
	assert.Equal(t, "QuoteGenerationError: quote generation failed", res.Error)
	assert.Equal(t, dfm.StatusPass, res.DFM.Status)
	assert.Nil(t, res.Cost)
}

func TestMissingProcessor(t *testing.T) {
	f := newFixture(t)

	res := f.orch.Generate(context.Background(), quote.Request{Path: "x.stl", MaterialID: "pla"})

	assert.Equal(t, faults.KindConfiguration, res.ErrorKind)
}

func TestNewOrchestratorValidates(t *testing.T) {
	pricer, err := pricing.NewPricer(1, 0)
	require.NoError(t, err)

	_, err = quote.NewOrchestrator(nil, pricer)
	require.ErrorIs(t, err, faults.ErrConfiguration)
	_, err = quote.NewOrchestrator(mesh.Loader{}, nil)
	require.ErrorIs(t, err, faults.ErrConfiguration)
}

func TestResultJSON(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, quote.WithClock(func() time.Time { return created }))

	res := f.generate(t, meshtest.Merge(
		meshtest.Cube(10),
		meshtest.Box(mesh.Vec3{X: 20}, mesh.Vec3{X: 30, Y: 10, Z: 10}),
	), "pla")
	b, err := json.Marshal(res)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Nil(t, got["cost_estimate"])
	assert.Nil(t, got["customer_price"])
	assert.Equal(t, "2026-03-01T12:00:00Z", got["created_at"])
	report := got["dfm_report"].(map[string]any)
	assert.Equal(t, "FAIL", report["status"])
}
