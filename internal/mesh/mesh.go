// Package mesh loads triangle meshes and derives the geometric properties the
// DFM checks and cost estimators run on. Coordinates are millimetres.
package mesh

import (
	"math"

	"github.com/Simplici0/printquote/internal/faults"
)

// Vec3 is a point or direction in model space.
type Vec3 struct {
	X, Y, Z float64
}

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64   { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Len() float64         { return math.Sqrt(a.Dot(a)) }
func (a Vec3) Axis(i int) float64   { return [3]float64{a.X, a.Y, a.Z}[i] }
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

// Normalize returns a unit vector, or the zero vector for zero input.
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

// Mesh is an indexed triangle mesh. It is not modified after loading.
type Mesh struct {
	Vertices []Vec3
	Faces    [][3]int
}

// New validates vertices and faces and returns the mesh.
func New(vertices []Vec3, faces [][3]int) (*Mesh, error) {
	if len(vertices) == 0 || len(faces) == 0 {
		return nil, faults.New(faults.KindGeometryProcessing, "mesh has no vertices or faces")
	}
	for i, f := range faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(vertices) {
				return nil, faults.New(faults.KindGeometryProcessing, "face %d references vertex %d outside [0,%d)", i, idx, len(vertices))
			}
		}
	}
	return &Mesh{Vertices: vertices, Faces: faces}, nil
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Faces) }

// Triangle returns the corner positions of face i.
func (m *Mesh) Triangle(i int) (Vec3, Vec3, Vec3) {
	f := m.Faces[i]
	return m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
}

// FaceNormal returns the unit normal of face i following the winding order.
func (m *Mesh) FaceNormal(i int) Vec3 {
	a, b, c := m.Triangle(i)
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}

// FaceArea returns the area of face i in mm².
func (m *Mesh) FaceArea(i int) float64 {
	a, b, c := m.Triangle(i)
	return b.Sub(a).Cross(c.Sub(a)).Len() / 2
}

// FaceCentroid returns the centroid of face i.
func (m *Mesh) FaceCentroid(i int) Vec3 {
	a, b, c := m.Triangle(i)
	return a.Add(b).Add(c).Scale(1.0 / 3.0)
}

// Builder assembles a mesh from triangle soup, welding vertices that share
// exact coordinates so that edge topology can be recovered.
type Builder struct {
	index    map[Vec3]int
	vertices []Vec3
	faces    [][3]int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{index: make(map[Vec3]int)}
}

// Vertex returns the index of v, adding it if unseen.
func (b *Builder) Vertex(v Vec3) int {
	if idx, ok := b.index[v]; ok {
		return idx
	}
	idx := len(b.vertices)
	b.index[v] = idx
	b.vertices = append(b.vertices, v)
	return idx
}

// Triangle adds a face over three positions. Faces that collapse onto
// repeated vertices are dropped.
func (b *Builder) Triangle(p0, p1, p2 Vec3) {
	b.Face(b.Vertex(p0), b.Vertex(p1), b.Vertex(p2))
}

// Face adds a face over existing vertex indices.
func (b *Builder) Face(i0, i1, i2 int) {
	if i0 == i1 || i1 == i2 || i0 == i2 {
		return
	}
	b.faces = append(b.faces, [3]int{i0, i1, i2})
}

// Build validates and returns the mesh.
func (b *Builder) Build() (*Mesh, error) {
	return New(b.vertices, b.faces)
}
