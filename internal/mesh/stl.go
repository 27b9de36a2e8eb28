package mesh

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Simplici0/printquote/internal/faults"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// ReadSTL parses binary or ASCII STL data.
func ReadSTL(data []byte) (*Mesh, error) {
	if isBinarySTL(data) {
		return readBinarySTL(data)
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("solid")) {
		return readASCIISTL(data)
	}
	return nil, faults.New(faults.KindFileFormat, "not a valid STL file")
}

// isBinarySTL checks the declared triangle count against the payload size;
// binary files may also begin with "solid", so the prefix alone is not enough.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return uint64(len(data)) == uint64(stlHeaderSize+4)+uint64(n)*stlTriangleSize
}

func readBinarySTL(data []byte) (*Mesh, error) {
	n := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	b := NewBuilder()
	off := stlHeaderSize + 4
	for i := 0; i < n; i++ {
		rec := data[off : off+stlTriangleSize]
		// skip the 12-byte facet normal; normals are recomputed from winding
		var p [3]Vec3
		for k := 0; k < 3; k++ {
			base := 12 + k*12
			p[k] = Vec3{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[base:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[base+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[base+8:]))),
			}
		}
		b.Triangle(p[0], p[1], p[2])
		off += stlTriangleSize
	}
	return b.Build()
}

func readASCIISTL(data []byte) (*Mesh, error) {
	b := NewBuilder()
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var corners []Vec3
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || fields[0] != "vertex" {
			continue
		}
		if len(fields) != 4 {
			return nil, faults.New(faults.KindFileFormat, "stl line %d: malformed vertex", line)
		}
		v, err := parseVec3(fields[1:])
		if err != nil {
			return nil, faults.Wrap(faults.KindFileFormat, err, "stl line %d: malformed vertex", line)
		}
		corners = append(corners, v)
		if len(corners) == 3 {
			b.Triangle(corners[0], corners[1], corners[2])
			corners = corners[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, faults.Wrap(faults.KindFileFormat, err, "read ascii stl")
	}
	if len(corners) != 0 {
		return nil, faults.New(faults.KindFileFormat, "stl ends inside a facet")
	}
	return b.Build()
}

func parseVec3(fields []string) (Vec3, error) {
	var out [3]float64
	for i, f := range fields[:3] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Vec3{}, err
		}
		out[i] = v
	}
	return Vec3{out[0], out[1], out[2]}, nil
}

// WriteSTL encodes m as binary STL.
func WriteSTL(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	header := make([]byte, stlHeaderSize)
	copy(header, "printquote")
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("write stl header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.Faces))); err != nil {
		return fmt.Errorf("write stl triangle count: %w", err)
	}

	rec := make([]byte, stlTriangleSize)
	for i := range m.Faces {
		n := m.FaceNormal(i)
		a, b, c := m.Triangle(i)
		for k, v := range []Vec3{n, a, b, c} {
			base := k * 12
			binary.LittleEndian.PutUint32(rec[base:], math.Float32bits(float32(v.X)))
			binary.LittleEndian.PutUint32(rec[base+4:], math.Float32bits(float32(v.Y)))
			binary.LittleEndian.PutUint32(rec[base+8:], math.Float32bits(float32(v.Z)))
		}
		rec[48], rec[49] = 0, 0
		if _, err := bw.Write(rec); err != nil {
			return fmt.Errorf("write stl triangle %d: %w", i, err)
		}
	}
	return bw.Flush()
}
