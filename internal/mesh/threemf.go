package mesh

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/Simplici0/printquote/internal/faults"
)

const threeMFModelPath = "3D/3dmodel.model"

type threeMFModel struct {
	Unit    string          `xml:"unit,attr"`
	Objects []threeMFObject `xml:"resources>object"`
}

type threeMFObject struct {
	ID       string            `xml:"id,attr"`
	Vertices []threeMFVertex   `xml:"mesh>vertices>vertex"`
	Tris     []threeMFTriangle `xml:"mesh>triangles>triangle"`
}

type threeMFVertex struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
	Z float64 `xml:"z,attr"`
}

type threeMFTriangle struct {
	V1 int `xml:"v1,attr"`
	V2 int `xml:"v2,attr"`
	V3 int `xml:"v3,attr"`
}

var threeMFUnits = map[string]float64{
	"":           1,
	"millimeter": 1,
	"micron":     0.001,
	"centimeter": 10,
	"inch":       25.4,
	"foot":       304.8,
	"meter":      1000,
}

// Read3MF parses the mesh objects of a 3MF package and merges them into one
// mesh in millimetres. Build-item transforms are not applied.
func Read3MF(data []byte) (*Mesh, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, faults.Wrap(faults.KindFileFormat, err, "3mf is not a zip package")
	}

	var modelFile *zip.File
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "/")
		if strings.EqualFold(name, threeMFModelPath) {
			modelFile = f
			break
		}
		if modelFile == nil && strings.EqualFold(path.Ext(name), ".model") {
			modelFile = f
		}
	}
	if modelFile == nil {
		return nil, faults.New(faults.KindFileFormat, "3mf package has no model part")
	}

	rc, err := modelFile.Open()
	if err != nil {
		return nil, faults.Wrap(faults.KindFileFormat, err, "open 3mf model part")
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, faults.Wrap(faults.KindFileFormat, err, "read 3mf model part")
	}

	var model threeMFModel
	if err := xml.Unmarshal(raw, &model); err != nil {
		return nil, faults.Wrap(faults.KindFileFormat, err, "parse 3mf model xml")
	}
	scale, ok := threeMFUnits[model.Unit]
	if !ok {
		return nil, faults.New(faults.KindFileFormat, "3mf unit %q not supported", model.Unit)
	}

	b := NewBuilder()
	for _, obj := range model.Objects {
		idx := make([]int, len(obj.Vertices))
		for i, v := range obj.Vertices {
			idx[i] = b.Vertex(Vec3{v.X * scale, v.Y * scale, v.Z * scale})
		}
		for _, t := range obj.Tris {
			for _, v := range []int{t.V1, t.V2, t.V3} {
				if v < 0 || v >= len(idx) {
					return nil, faults.New(faults.KindFileFormat, "3mf object %s: triangle references vertex %d", obj.ID, v)
				}
			}
			b.Face(idx[t.V1], idx[t.V2], idx[t.V3])
		}
	}
	return b.Build()
}
