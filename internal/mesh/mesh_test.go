package mesh_test

import (
	"archive/zip"
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/printquote/internal/faults"
	"github.com/Simplici0/printquote/internal/mesh"
	"github.com/Simplici0/printquote/internal/mesh/meshtest"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func TestExtractSolidCube(t *testing.T) {
	props, err := mesh.Extract(meshtest.Cube(10))
	require.NoError(t, err)

	nearlyEqual(t, "volume", props.Volume, 1)
	nearlyEqual(t, "surface area", props.SurfaceArea, 6)
	assert.True(t, props.Watertight)
	assert.Equal(t, 1, props.ShellCount())
	assert.Equal(t, mesh.Vec3{X: 10, Y: 10, Z: 10}, props.BoundingBox.Size())
	assert.Equal(t, "mm", props.Units)
	assert.Zero(t, props.Topology.BoundaryEdges)
	assert.Zero(t, props.Topology.NonManifoldEdges)
	assert.Zero(t, props.Topology.NonManifoldVertices)
}

func TestExtractTwoDisjointCubes(t *testing.T) {
	m := meshtest.Merge(
		meshtest.Cube(10),
		meshtest.Box(mesh.Vec3{X: 20}, mesh.Vec3{X: 30, Y: 10, Z: 10}),
	)

	props, err := mesh.Extract(m)
	require.NoError(t, err)

	assert.Equal(t, 2, props.ShellCount())
	require.Len(t, props.ShellVolumes, 2)
	nearlyEqual(t, "shell 0", props.ShellVolumes[0], 1)
	nearlyEqual(t, "shell 1", props.ShellVolumes[1], 1)
	nearlyEqual(t, "volume", props.Volume, 2)
	assert.True(t, props.Watertight)
}

func TestExtractOpenMeshIsNotWatertight(t *testing.T) {
	props, err := mesh.Extract(meshtest.Open(meshtest.Cube(10)))
	require.NoError(t, err)

	assert.False(t, props.Watertight)
	assert.Equal(t, 3, props.Topology.BoundaryEdges)
	assert.Zero(t, props.Topology.NonManifoldEdges)
}

func TestExtractInvertedCubeHasNegativeVolume(t *testing.T) {
	props, err := mesh.Extract(meshtest.Inverted(meshtest.Cube(10)))
	require.NoError(t, err)

	nearlyEqual(t, "volume", props.Volume, -1)
}

func TestExtractHollowBox(t *testing.T) {
	props, err := mesh.Extract(meshtest.HollowBox(20, 2))
	require.NoError(t, err)

	assert.True(t, props.Watertight)
	assert.Equal(t, 2, props.ShellCount())
	nearlyEqual(t, "volume", props.Volume, (8000.0-16.0*16.0*16.0)/1000)
}

func TestExtractNonManifoldVertex(t *testing.T) {
	joined := meshtest.Merge(
		meshtest.Cube(10),
		meshtest.Box(mesh.Vec3{X: 10, Y: 10, Z: 10}, mesh.Vec3{X: 20, Y: 20, Z: 20}),
	)
	b := mesh.NewBuilder()
	for i := range joined.Faces {
		b.Triangle(joined.Triangle(i))
	}
	welded, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, 15, welded.VertexCount())

	props, err := mesh.Extract(welded)
	require.NoError(t, err)

	assert.Equal(t, 1, props.Topology.NonManifoldVertices)
	assert.Equal(t, 1, props.ShellCount())
}

func TestExtractDegenerateMesh(t *testing.T) {
	m := &mesh.Mesh{
		Vertices: []mesh.Vec3{{X: 0}, {X: 1}, {X: 2}},
		Faces:    [][3]int{{0, 1, 2}},
	}

	_, err := mesh.Extract(m)
	assert.ErrorIs(t, err, faults.ErrGeometryProcessing)
}

func TestNewRejectsEmptyAndOutOfRange(t *testing.T) {
	_, err := mesh.New(nil, nil)
	assert.ErrorIs(t, err, faults.ErrGeometryProcessing)

	_, err = mesh.New([]mesh.Vec3{{}, {X: 1}, {Y: 1}}, [][3]int{{0, 1, 3}})
	assert.ErrorIs(t, err, faults.ErrGeometryProcessing)
}

func TestLoadBinarySTLWeldsVertices(t *testing.T) {
	path := meshtest.WriteSTL(t, "cube.stl", meshtest.Cube(10))

	m, err := mesh.Loader{}.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 8, m.VertexCount())
	assert.Equal(t, 12, m.TriangleCount())

	props, err := mesh.Extract(m)
	require.NoError(t, err)
	assert.True(t, props.Watertight)
	nearlyEqual(t, "volume", props.Volume, 1)
}

func TestReadASCIISTL(t *testing.T) {
	src := `solid tri
facet normal 0 0 1
  outer loop
    vertex 0 0 0
    vertex 1 0 0
    vertex 0 1 0
  endloop
endfacet
endsolid tri
`
	m, err := mesh.ReadSTL([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, 3, m.VertexCount())
	assert.Equal(t, 1, m.TriangleCount())
}

func TestReadSTLRejectsGarbage(t *testing.T) {
	_, err := mesh.ReadSTL([]byte("definitely not a mesh"))
	assert.ErrorIs(t, err, faults.ErrFileFormat)
}

func TestReadOBJTriangulatesQuads(t *testing.T) {
	src := `# unit cube
v 0 0 0
v 1 0 0
v 0 1 0
v 1 1 0
v 0 0 1
v 1 0 1
v 0 1 1
v 1 1 1
f 1 3 4 2
f 5 6 8 7
f 1 2 6 5
f 3 7 8 4
f 1 5 7 3
f 2/1 4/1 8/1 6/1
`
	m, err := mesh.ReadOBJ([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, 12, m.TriangleCount())

	props, err := mesh.Extract(m)
	require.NoError(t, err)
	assert.True(t, props.Watertight)
	nearlyEqual(t, "volume", props.Volume, 0.001)
}

func TestReadOBJBadReference(t *testing.T) {
	_, err := mesh.ReadOBJ([]byte("v 0 0 0\nv 1 0 0\nf 1 2 9\n"))
	assert.ErrorIs(t, err, faults.ErrFileFormat)
}

func TestRead3MFConvertsUnits(t *testing.T) {
	model := `<?xml version="1.0" encoding="UTF-8"?>
<model unit="centimeter" xmlns="http://schemas.microsoft.com/3dmanufacturing/core/2015/02">
  <resources>
    <object id="1" type="model">
      <mesh>
        <vertices>
          <vertex x="0" y="0" z="0"/>
          <vertex x="1" y="0" z="0"/>
          <vertex x="0" y="1" z="0"/>
          <vertex x="0" y="0" z="1"/>
        </vertices>
        <triangles>
          <triangle v1="0" v2="2" v3="1"/>
          <triangle v1="0" v2="1" v3="3"/>
          <triangle v1="0" v2="3" v3="2"/>
          <triangle v1="1" v2="2" v3="3"/>
        </triangles>
      </mesh>
    </object>
  </resources>
  <build><item objectid="1"/></build>
</model>`
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("3D/3dmodel.model")
	require.NoError(t, err)
	_, err = w.Write([]byte(model))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	m, err := mesh.Read3MF(buf.Bytes())
	require.NoError(t, err)

	props, err := mesh.Extract(m)
	require.NoError(t, err)
	assert.Equal(t, 10.0, props.BoundingBox.Max.X)
	assert.True(t, props.Watertight)
	nearlyEqual(t, "volume", props.Volume, 1000.0/6/1000)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := meshtest.WriteFile(t, "part.dwg", []byte("x"))

	_, err := mesh.Loader{}.Load(context.Background(), path)
	assert.ErrorIs(t, err, faults.ErrFileFormat)
}

func TestLoadStepWithoutConverter(t *testing.T) {
	path := meshtest.WriteFile(t, "part.step", []byte("ISO-10303-21;"))

	_, err := mesh.Loader{}.Load(context.Background(), path)
	assert.ErrorIs(t, err, faults.ErrFileFormat)
	assert.Contains(t, err.Error(), "STEP support is not available")
}
