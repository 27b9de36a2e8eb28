package mesh

// Topology summarises edge manifoldness and connectivity. FaceShell maps each
// face to its shell index in [0, Shells).
type Topology struct {
	BoundaryEdges       int   `json:"boundary_edges"`
	NonManifoldEdges    int   `json:"non_manifold_edges"`
	NonManifoldVertices int   `json:"non_manifold_vertices"`
	Shells              int   `json:"shells"`
	FaceShell           []int `json:"-"`
}

type unionFind []int

func newUnionFind(n int) unionFind {
	u := make(unionFind, n)
	for i := range u {
		u[i] = i
	}
	return u
}

func (u unionFind) find(i int) int {
	for u[i] != i {
		u[i] = u[u[i]]
		i = u[i]
	}
	return i
}

func (u unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u[ra] = rb
	}
}

type edgeKey [2]int

func makeEdge(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// corner identifies face f at corner k (0..2).
type corner struct{ f, k int }

// AnalyzeTopology computes boundary and non-manifold counts and shell
// membership for m.
func AnalyzeTopology(m *Mesh) Topology {
	edges := make(map[edgeKey][]corner, len(m.Faces)*3/2)
	for f, face := range m.Faces {
		for k := 0; k < 3; k++ {
			e := makeEdge(face[k], face[(k+1)%3])
			edges[e] = append(edges[e], corner{f, k})
		}
	}

	var t Topology
	// corner incidences around a vertex join when their faces share an edge
	// through that vertex; more than one group means a non-manifold vertex
	fans := newUnionFind(len(m.Faces) * 3)
	for _, uses := range edges {
		switch {
		case len(uses) == 1:
			t.BoundaryEdges++
		case len(uses) > 2:
			t.NonManifoldEdges++
		}
		for i := 1; i < len(uses); i++ {
			a, b := uses[0], uses[i]
			fans.union(a.f*3+a.k, m.cornerOf(b.f, m.Faces[a.f][a.k]))
			fans.union(a.f*3+(a.k+1)%3, m.cornerOf(b.f, m.Faces[a.f][(a.k+1)%3]))
		}
	}

	groups := make(map[int]map[int]struct{}, len(m.Vertices))
	for f, face := range m.Faces {
		for k, v := range face {
			g, ok := groups[v]
			if !ok {
				g = make(map[int]struct{}, 1)
				groups[v] = g
			}
			g[fans.find(f*3+k)] = struct{}{}
		}
	}
	for _, g := range groups {
		if len(g) > 1 {
			t.NonManifoldVertices++
		}
	}

	shells := newUnionFind(len(m.Vertices))
	for _, face := range m.Faces {
		shells.union(face[0], face[1])
		shells.union(face[1], face[2])
	}
	ids := make(map[int]int)
	t.FaceShell = make([]int, len(m.Faces))
	for f, face := range m.Faces {
		root := shells.find(face[0])
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		t.FaceShell[f] = id
	}
	t.Shells = len(ids)
	return t
}

// cornerOf returns the corner incidence id of vertex v on face f.
func (m *Mesh) cornerOf(f, v int) int {
	face := m.Faces[f]
	for k := 0; k < 3; k++ {
		if face[k] == v {
			return f*3 + k
		}
	}
	return f * 3
}
