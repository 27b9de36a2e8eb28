package mesh

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/Simplici0/printquote/internal/faults"
)

// ReadOBJ parses Wavefront OBJ geometry. Only "v" and "f" records are used;
// polygons are triangulated as fans.
func ReadOBJ(data []byte) (*Mesh, error) {
	var positions []Vec3
	b := NewBuilder()

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, faults.New(faults.KindFileFormat, "obj line %d: vertex needs 3 coordinates", line)
			}
			v, err := parseVec3(fields[1:4])
			if err != nil {
				return nil, faults.Wrap(faults.KindFileFormat, err, "obj line %d: malformed vertex", line)
			}
			positions = append(positions, v)
		case "f":
			if len(fields) < 4 {
				return nil, faults.New(faults.KindFileFormat, "obj line %d: face needs at least 3 vertices", line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := objIndex(ref, len(positions))
				if err != nil {
					return nil, faults.Wrap(faults.KindFileFormat, err, "obj line %d: bad face reference %q", line, ref)
				}
				idx = append(idx, b.Vertex(positions[i]))
			}
			for k := 1; k+1 < len(idx); k++ {
				b.Face(idx[0], idx[k], idx[k+1])
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, faults.Wrap(faults.KindFileFormat, err, "read obj")
	}
	return b.Build()
}

// objIndex resolves a "v", "v/vt" or "v/vt/vn" reference to a zero-based
// position index. Negative references count back from the latest vertex.
func objIndex(ref string, count int) (int, error) {
	head, _, _ := strings.Cut(ref, "/")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, err
	}
	var i int
	switch {
	case n > 0:
		i = n - 1
	case n < 0:
		i = count + n
	default:
		return 0, strconv.ErrRange
	}
	if i < 0 || i >= count {
		return 0, strconv.ErrRange
	}
	return i, nil
}
