// Package meshtest builds small meshes for tests.
package meshtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Simplici0/printquote/internal/mesh"
)

// boxFaces lists outward-wound triangles over corners indexed x + 2y + 4z.
var boxFaces = [][3]int{
	{0, 2, 3}, {0, 3, 1}, // -Z
	{4, 5, 7}, {4, 7, 6}, // +Z
	{0, 1, 5}, {0, 5, 4}, // -Y
	{2, 6, 7}, {2, 7, 3}, // +Y
	{0, 4, 6}, {0, 6, 2}, // -X
	{1, 3, 7}, {1, 7, 5}, // +X
}

// Box returns a closed box spanning min..max with outward normals.
func Box(min, max mesh.Vec3) *mesh.Mesh {
	vertices := make([]mesh.Vec3, 8)
	for i := range vertices {
		v := min
		if i&1 != 0 {
			v.X = max.X
		}
		if i&2 != 0 {
			v.Y = max.Y
		}
		if i&4 != 0 {
			v.Z = max.Z
		}
		vertices[i] = v
	}
	faces := make([][3]int, len(boxFaces))
	copy(faces, boxFaces)
	return &mesh.Mesh{Vertices: vertices, Faces: faces}
}

// Cube returns an axis-aligned cube of edge length size with its minimum
// corner at the origin.
func Cube(size float64) *mesh.Mesh {
	return Box(mesh.Vec3{}, mesh.Vec3{X: size, Y: size, Z: size})
}

// Inverted returns m with every face wound the other way.
func Inverted(m *mesh.Mesh) *mesh.Mesh {
	faces := make([][3]int, len(m.Faces))
	for i, f := range m.Faces {
		faces[i] = [3]int{f[0], f[2], f[1]}
	}
	return &mesh.Mesh{Vertices: append([]mesh.Vec3(nil), m.Vertices...), Faces: faces}
}

// Merge concatenates meshes without welding shared positions.
func Merge(parts ...*mesh.Mesh) *mesh.Mesh {
	out := &mesh.Mesh{}
	for _, p := range parts {
		base := len(out.Vertices)
		out.Vertices = append(out.Vertices, p.Vertices...)
		for _, f := range p.Faces {
			out.Faces = append(out.Faces, [3]int{f[0] + base, f[1] + base, f[2] + base})
		}
	}
	return out
}

// HollowBox returns a closed box with a sealed internal cavity inset by wall
// on every side.
func HollowBox(size, wall float64) *mesh.Mesh {
	outer := Cube(size)
	inner := Inverted(Box(
		mesh.Vec3{X: wall, Y: wall, Z: wall},
		mesh.Vec3{X: size - wall, Y: size - wall, Z: size - wall},
	))
	return Merge(outer, inner)
}

// Open returns m with its last face removed, leaving a hole.
func Open(m *mesh.Mesh) *mesh.Mesh {
	return &mesh.Mesh{Vertices: m.Vertices, Faces: m.Faces[:len(m.Faces)-1]}
}

// WriteSTL saves m as a binary STL under t.TempDir and returns the path.
func WriteSTL(t testing.TB, name string, m *mesh.Mesh) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := mesh.SaveSTL(path, m); err != nil {
		t.Fatalf("write stl fixture: %v", err)
	}
	return path
}

// WriteFile saves raw bytes under t.TempDir and returns the path.
func WriteFile(t testing.TB, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}
