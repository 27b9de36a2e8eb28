// Package process binds a material catalog, a DFM battery and a cost model
// into one manufacturing process.
package process

import (
	"context"
	"sort"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/material"
	"github.com/Simplici0/printquote/internal/mesh"
	"github.com/Simplici0/printquote/internal/pricing"
)

const (
	NameAdditive    = "3d_printing"
	NameSubtractive = "cnc"
)

// Model is one loaded upload: the file it came from, its mesh and the
// properties derived from that mesh.
type Model struct {
	Path  string
	Mesh  *mesh.Mesh
	Props mesh.Properties
}

// Processor is the capability set the quote pipeline needs from a process.
type Processor interface {
	Name() string
	CatalogPath() string
	Catalog() *material.Catalog
	RunDFMChecks(ctx context.Context, m Model, mat material.Material) dfm.Report
	EstimateCostAndTime(ctx context.Context, m Model, mat material.Material) (pricing.CostEstimate, error)
}

// Registry looks processors up by name.
type Registry struct {
	byName map[string]Processor
}

func NewRegistry(ps ...Processor) *Registry {
	r := &Registry{byName: make(map[string]Processor, len(ps))}
	for _, p := range ps {
		r.byName[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name string) (Processor, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns the registered process names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
