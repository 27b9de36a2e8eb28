package dfm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Simplici0/printquote/internal/mesh"
)

const hintFaceLimit = 200

var axisNames = [3]string{"X", "Y", "Z"}

// AdditiveChecks returns the additive battery for p in execution order.
func AdditiveChecks(p Profile) []Check {
	checks := []Check{
		{Name: "bounding_box", Run: checkBoundingBox},
		{Name: "mesh_integrity", Run: checkIntegrity},
		{Name: "thin_walls", Run: checkThinWalls},
	}
	if p.CheckOverhang {
		checks = append(checks, Check{Name: "overhang", Run: checkOverhang})
	}
	if p.CheckWarping {
		checks = append(checks, Check{Name: "warping", Run: checkWarping})
	}
	if p.Voids != VoidPolicyNone {
		checks = append(checks, Check{Name: "internal_voids", Run: checkInternalVoids})
	}
	return checks
}

// SubtractiveChecks returns the reduced battery used for machining.
func SubtractiveChecks(Profile) []Check {
	return []Check{
		{Name: "bounding_box", Run: checkBoundingBox},
		{Name: "mesh_integrity", Run: checkIntegrity},
		{Name: "thin_walls", Run: checkThinWalls},
	}
}

func checkBoundingBox(_ context.Context, in Input) ([]Issue, error) {
	size := in.Props.BoundingBox.Size()
	limit := in.Profile.BuildVolumeMM
	var over []string
	for i := 0; i < 3; i++ {
		if limit[i] > 0 && size.Axis(i) > limit[i] {
			over = append(over, axisNames[i])
		}
	}
	if len(over) == 0 {
		return nil, nil
	}
	return []Issue{NewIssue(SeverityCritical,
		BoundingBoxDetails{
			SizeMM:  [3]float64{size.X, size.Y, size.Z},
			LimitMM: limit,
			Axes:    over,
		},
		fmt.Sprintf("Model measures %.1f x %.1f x %.1f mm and exceeds the %.0f x %.0f x %.0f mm build volume on %s.",
			size.X, size.Y, size.Z, limit[0], limit[1], limit[2], strings.Join(over, ", ")),
		"Scale the model down or split it into parts that fit the build volume.",
	)}, nil
}

func checkIntegrity(_ context.Context, in Input) ([]Issue, error) {
	p := in.Props
	if p.Volume < 0 {
		// remaining measurements are meaningless on an inside-out mesh
		return []Issue{NewIssue(SeverityCritical,
			InvertedNormalsDetails{VolumeCM3: p.Volume},
			fmt.Sprintf("Mesh encloses a negative volume (%.3f cm³); its faces are wound inside out.", p.Volume),
			"Recalculate outward normals in your CAD or mesh tool and export again.",
		)}, nil
	}

	var issues []Issue
	t := p.Topology
	details := NonManifoldDetails{
		BoundaryEdges:       t.BoundaryEdges,
		NonManifoldEdges:    t.NonManifoldEdges,
		NonManifoldVertices: t.NonManifoldVertices,
	}
	switch {
	case t.NonManifoldEdges > 0 || t.NonManifoldVertices > 0:
		issues = append(issues, NewIssue(SeverityCritical, details,
			fmt.Sprintf("Mesh is non-manifold: %d edges shared by more than two faces, %d vertices joining separate surfaces.",
				t.NonManifoldEdges, t.NonManifoldVertices),
			"Repair the mesh so every edge joins exactly two faces.",
		))
	case t.BoundaryEdges > 0 && !p.Watertight:
		issues = append(issues, NewIssue(SeverityError, details,
			fmt.Sprintf("Mesh has holes: %d open edges.", t.BoundaryEdges),
			"Close the open edges so the model is watertight.",
		))
	}

	maxShells := in.Profile.MaxShells
	if maxShells <= 0 {
		maxShells = 1
	}
	if t.Shells > maxShells {
		issues = append(issues, NewIssue(SeverityCritical,
			MultipleShellsDetails{Shells: t.Shells, MaxShells: maxShells},
			fmt.Sprintf("File contains %d separate bodies; at most %d allowed.", t.Shells, maxShells),
			"Upload each part as its own file or join the bodies into one solid.",
		))
	}
	return issues, nil
}

type faceBox struct{ min, max mesh.Vec3 }

func checkThinWalls(ctx context.Context, in Input) ([]Issue, error) {
	m := in.Mesh
	prof := in.Profile
	if prof.MinWallMM <= 0 || m == nil {
		return nil, nil
	}
	minWall := prof.MinWallMM
	critical := prof.CriticalWallMM()
	cosTol := math.Cos(prof.AntiParallelTolDeg * math.Pi / 180)

	n := len(m.Faces)
	normals := make([]mesh.Vec3, n)
	boxes := make([]faceBox, n)
	for i := range m.Faces {
		normals[i] = m.FaceNormal(i)
		a, b, c := m.Triangle(i)
		boxes[i] = faceBox{
			min: mesh.Vec3{X: math.Min(a.X, math.Min(b.X, c.X)), Y: math.Min(a.Y, math.Min(b.Y, c.Y)), Z: math.Min(a.Z, math.Min(b.Z, c.Z))},
			max: mesh.Vec3{X: math.Max(a.X, math.Max(b.X, c.X)), Y: math.Max(a.Y, math.Max(b.Y, c.Y)), Z: math.Max(a.Z, math.Max(b.Z, c.Z))},
		}
	}

	step := 1
	if prof.WallSampleFaces > 0 && n > prof.WallSampleFaces {
		step = (n + prof.WallSampleFaces - 1) / prof.WallSampleFaces
	}

	measured := math.Inf(1)
	var thin []int
	sampled := 0
	for i := 0; i < n; i += step {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ni := normals[i]
		if ni == (mesh.Vec3{}) {
			continue
		}
		sampled++
		origin := m.FaceCentroid(i)
		dir := ni.Scale(-1)
		end := origin.Add(dir.Scale(minWall))
		seg := faceBox{
			min: mesh.Vec3{X: math.Min(origin.X, end.X), Y: math.Min(origin.Y, end.Y), Z: math.Min(origin.Z, end.Z)},
			max: mesh.Vec3{X: math.Max(origin.X, end.X), Y: math.Max(origin.Y, end.Y), Z: math.Max(origin.Z, end.Z)},
		}

		best := math.Inf(1)
		for j := 0; j < n; j++ {
			if j == i || normals[j].Dot(ni) > -cosTol || !boxesOverlap(seg, boxes[j]) {
				continue
			}
			a, b, c := m.Triangle(j)
			if t, ok := rayTriangle(origin, dir, a, b, c); ok && t < best {
				best = t
			}
		}
		if best < minWall {
			thin = append(thin, i)
			measured = math.Min(measured, best)
		}
	}
	if len(thin) == 0 {
		return nil, nil
	}

	severity := SeverityError
	msg := fmt.Sprintf("Walls as thin as %.2f mm found; %s needs at least %.2f mm.", measured, prof.Technology, minWall)
	if measured < critical {
		severity = SeverityCritical
		msg = fmt.Sprintf("Walls as thin as %.2f mm found, below the %.2f mm %s cannot produce reliably.", measured, critical, prof.Technology)
	}
	issue := NewIssue(severity,
		ThinWallDetails{
			MeasuredMM:  measured,
			MinimumMM:   minWall,
			CriticalMM:  critical,
			ThinSamples: len(thin),
			Sampled:     sampled,
		},
		msg,
		fmt.Sprintf("Thicken walls to at least %.2f mm.", minWall),
	)
	return []Issue{issue.WithFaces(thin, hintFaceLimit)}, nil
}

func boxesOverlap(a, b faceBox) bool {
	const eps = 1e-9
	return a.min.X <= b.max.X+eps && a.max.X+eps >= b.min.X &&
		a.min.Y <= b.max.Y+eps && a.max.Y+eps >= b.min.Y &&
		a.min.Z <= b.max.Z+eps && a.max.Z+eps >= b.min.Z
}

// rayTriangle intersects the ray origin+t*dir with triangle abc
// (Möller–Trumbore) and returns t for hits in front of the origin.
func rayTriangle(origin, dir, a, b, c mesh.Vec3) (float64, bool) {
	const eps = 1e-9
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < 1e-12 {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(a)
	u := s.Dot(p) * inv
	if u < -eps || u > 1+eps {
		return 0, false
	}
	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < -eps || u+v > 1+eps {
		return 0, false
	}
	t := e2.Dot(q) * inv
	return t, t > eps
}

func checkOverhang(_ context.Context, in Input) ([]Issue, error) {
	m := in.Mesh
	prof := in.Profile
	minZ := in.Props.BoundingBox.Min.Z

	var total, warnArea, errArea, maxAngle float64
	var warnFaces, errFaces []int
	for i := range m.Faces {
		area := m.FaceArea(i)
		total += area
		n := m.FaceNormal(i)
		if n.Z >= 0 || onPlate(m, i, minZ, prof.PlateToleranceMM) {
			continue
		}
		// tilt past vertical toward the build plate: 0° for a wall, 90° for a ceiling
		angle := 90 - math.Acos(clamp(-n.Z, -1, 1))*180/math.Pi
		switch {
		case angle > prof.OverhangErrorDeg:
			errArea += area
			errFaces = append(errFaces, i)
		case angle > prof.OverhangWarnDeg:
			warnArea += area
			warnFaces = append(warnFaces, i)
		default:
			continue
		}
		maxAngle = math.Max(maxAngle, angle)
	}
	if total == 0 {
		return nil, nil
	}

	if errArea > 0 {
		pct := errArea / total * 100
		issue := NewIssue(SeverityError,
			OverhangDetails{AreaPercent: pct, ThresholdDeg: prof.OverhangErrorDeg, MaxAngleDeg: maxAngle},
			fmt.Sprintf("%.1f%% of the surface overhangs more than %.0f° and needs support structures.", pct, prof.OverhangErrorDeg),
			"Reorient the part or add chamfers so overhangs stay under 45°.",
		)
		return []Issue{issue.WithFaces(errFaces, hintFaceLimit)}, nil
	}
	if warnArea > 0 {
		pct := warnArea / total * 100
		issue := NewIssue(SeverityWarn,
			OverhangDetails{AreaPercent: pct, ThresholdDeg: prof.OverhangWarnDeg, MaxAngleDeg: maxAngle},
			fmt.Sprintf("%.1f%% of the surface overhangs more than %.0f°; supports may be required.", pct, prof.OverhangWarnDeg),
			"Consider reorienting the part to reduce supported area.",
		)
		return []Issue{issue.WithFaces(warnFaces, hintFaceLimit)}, nil
	}
	return nil, nil
}

func onPlate(m *mesh.Mesh, face int, minZ, tol float64) bool {
	a, b, c := m.Triangle(face)
	return a.Z-minZ <= tol && b.Z-minZ <= tol && c.Z-minZ <= tol
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func checkWarping(_ context.Context, in Input) ([]Issue, error) {
	m := in.Mesh
	prof := in.Profile
	minZ := in.Props.BoundingBox.Min.Z

	var area float64
	var faces []int
	for i := range m.Faces {
		if math.Abs(m.FaceNormal(i).Z) <= prof.WarpNormalThreshold {
			continue
		}
		if m.FaceCentroid(i).Z-minZ > prof.WarpBaseBandMM {
			continue
		}
		area += m.FaceArea(i)
		faces = append(faces, i)
	}
	areaCM2 := area / 100
	if areaCM2 <= prof.WarpAreaCM2 {
		return nil, nil
	}
	issue := NewIssue(SeverityWarn,
		WarpingDetails{AreaCM2: areaCM2, ThresholdCM2: prof.WarpAreaCM2},
		fmt.Sprintf("Large flat base (%.1f cm²) is prone to warping.", areaCM2),
		"Add a brim, round the base corners, or split the flat base.",
	)
	return []Issue{issue.WithFaces(faces, hintFaceLimit)}, nil
}

func checkInternalVoids(_ context.Context, in Input) ([]Issue, error) {
	p := in.Props
	prof := in.Profile
	if !p.Watertight || p.ShellCount() <= 1 || p.Volume <= prof.VoidMinVolumeCM3 {
		return nil, nil
	}
	cavities := 0
	for _, v := range p.ShellVolumes {
		if v < 0 {
			cavities++
		}
	}
	if cavities == 0 {
		return nil, nil
	}
	details := InternalVoidsDetails{Shells: p.ShellCount(), CavityShells: cavities, VolumeCM3: p.Volume}

	switch prof.Voids {
	case VoidPolicyResin:
		return []Issue{NewIssue(SeverityError, details,
			"Enclosed volumes will trap uncured resin inside the part.",
			"Add at least two drain holes of 3.5 mm or more to every enclosed cavity.",
		)}, nil
	case VoidPolicyPowder:
		return []Issue{NewIssue(SeverityWarn, details,
			"Enclosed volumes will trap unsintered powder inside the part.",
			"Add escape holes of 5 mm or more so powder can be removed.",
		)}, nil
	default:
		return nil, nil
	}
}
