package mesh

import (
	"math"

	"github.com/Simplici0/printquote/internal/faults"
)

// Units is the length unit of mesh coordinates.
const Units = "mm"

// BoundingBox is an axis-aligned box in millimetres.
type BoundingBox struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// Size returns the extent along each axis.
func (b BoundingBox) Size() Vec3 { return b.Max.Sub(b.Min) }

// Properties are derived from a Mesh and must be recomputed if the mesh is
// replaced.
type Properties struct {
	BoundingBox  BoundingBox `json:"bounding_box"`
	Volume       float64     `json:"volume_cm3"`       // signed, cm³; inverted winding makes it negative
	SurfaceArea  float64     `json:"surface_area_cm2"` // cm²
	Watertight   bool        `json:"watertight"`
	Units        string      `json:"units"`
	Topology     Topology    `json:"topology"`
	ShellVolumes []float64   `json:"shell_volumes_cm3"` // signed, per shell
}

// ShellCount returns the number of connected components.
func (p Properties) ShellCount() int { return p.Topology.Shells }

// Extract computes bounding box, volume, surface area, watertightness and
// topology for m.
func Extract(m *Mesh) (Properties, error) {
	if m == nil || len(m.Vertices) == 0 || len(m.Faces) == 0 {
		return Properties{}, faults.New(faults.KindGeometryProcessing, "mesh is empty")
	}

	bb := BoundingBox{Min: m.Vertices[m.Faces[0][0]], Max: m.Vertices[m.Faces[0][0]]}
	for _, face := range m.Faces {
		for _, idx := range face {
			v := m.Vertices[idx]
			bb.Min = Vec3{math.Min(bb.Min.X, v.X), math.Min(bb.Min.Y, v.Y), math.Min(bb.Min.Z, v.Z)}
			bb.Max = Vec3{math.Max(bb.Max.X, v.X), math.Max(bb.Max.Y, v.Y), math.Max(bb.Max.Z, v.Z)}
		}
	}

	topo := AnalyzeTopology(m)
	shellVolumes := make([]float64, topo.Shells)
	var volume, area float64
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		v := a.Dot(b.Cross(c)) / 6
		volume += v
		shellVolumes[topo.FaceShell[i]] += v
		area += b.Sub(a).Cross(c.Sub(a)).Len() / 2
	}

	if !finite(volume) || !finite(area) || area == 0 {
		return Properties{}, faults.New(faults.KindGeometryProcessing, "mesh is degenerate: volume or surface area cannot be computed")
	}

	for i := range shellVolumes {
		shellVolumes[i] /= 1000
	}
	return Properties{
		BoundingBox:  bb,
		Volume:       volume / 1000,
		SurfaceArea:  area / 100,
		Watertight:   topo.BoundaryEdges == 0 && topo.NonManifoldEdges == 0,
		Units:        Units,
		Topology:     topo,
		ShellVolumes: shellVolumes,
	}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
