// Package dfm runs design-for-manufacturing checks against a loaded mesh and
// reduces their findings to a verdict.
package dfm

import (
	"encoding/json"
	"fmt"
)

// Severity orders findings: Info < Warn < Error < Critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityCritical
)

var severityNames = [...]string{"INFO", "WARN", "ERROR", "CRITICAL"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range severityNames {
		if n == name {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", name)
}

// Kind tags an issue. Each kind has exactly one Details type.
type Kind string

const (
	KindBoundingBoxLimit Kind = "BOUNDING_BOX_LIMIT"
	KindInvertedNormals  Kind = "INVERTED_NORMALS"
	KindNonManifold      Kind = "NON_MANIFOLD"
	KindMultipleShells   Kind = "MULTIPLE_SHELLS"
	KindThinWall         Kind = "THIN_WALL"
	KindSupportOverhang  Kind = "SUPPORT_OVERHANG"
	KindWarpingRisk      Kind = "WARPING_RISK"
	KindInternalVoids    Kind = "INTERNAL_VOIDS"
	KindAnalysisDegraded Kind = "ANALYSIS_DEGRADED"
)

// Details carries the measurements behind one issue kind.
type Details interface {
	Kind() Kind
}

type BoundingBoxDetails struct {
	SizeMM  [3]float64 `json:"size_mm"`
	LimitMM [3]float64 `json:"limit_mm"`
	Axes    []string   `json:"axes_over_limit"`
}

type InvertedNormalsDetails struct {
	VolumeCM3 float64 `json:"volume_cm3"`
}

type NonManifoldDetails struct {
	BoundaryEdges       int `json:"boundary_edges"`
	NonManifoldEdges    int `json:"non_manifold_edges"`
	NonManifoldVertices int `json:"non_manifold_vertices"`
}

type MultipleShellsDetails struct {
	Shells    int `json:"shells"`
	MaxShells int `json:"max_shells"`
}

type ThinWallDetails struct {
	MeasuredMM  float64 `json:"measured_thickness_mm"`
	MinimumMM   float64 `json:"minimum_thickness_mm"`
	CriticalMM  float64 `json:"critical_thickness_mm"`
	ThinSamples int     `json:"thin_samples"`
	Sampled     int     `json:"sampled_faces"`
}

type OverhangDetails struct {
	AreaPercent  float64 `json:"area_percent"`
	ThresholdDeg float64 `json:"threshold_deg"`
	MaxAngleDeg  float64 `json:"max_angle_deg"`
}

type WarpingDetails struct {
	AreaCM2      float64 `json:"base_area_cm2"`
	ThresholdCM2 float64 `json:"threshold_cm2"`
}

type InternalVoidsDetails struct {
	Shells       int     `json:"shells"`
	CavityShells int     `json:"cavity_shells"`
	VolumeCM3    float64 `json:"volume_cm3"`
}

type AnalysisDegradedDetails struct {
	Check  string `json:"check"`
	Reason string `json:"reason"`
}

func (BoundingBoxDetails) Kind() Kind      { return KindBoundingBoxLimit }
func (InvertedNormalsDetails) Kind() Kind  { return KindInvertedNormals }
func (NonManifoldDetails) Kind() Kind      { return KindNonManifold }
func (MultipleShellsDetails) Kind() Kind   { return KindMultipleShells }
func (ThinWallDetails) Kind() Kind         { return KindThinWall }
func (OverhangDetails) Kind() Kind         { return KindSupportOverhang }
func (WarpingDetails) Kind() Kind          { return KindWarpingRisk }
func (InternalVoidsDetails) Kind() Kind    { return KindInternalVoids }
func (AnalysisDegradedDetails) Kind() Kind { return KindAnalysisDegraded }

// VisualHint points a viewer at the faces an issue concerns.
type VisualHint struct {
	FaceIndices []int `json:"face_indices"`
}

// Issue is one finding. Its Kind is always Details.Kind().
type Issue struct {
	Kind           Kind        `json:"kind"`
	Severity       Severity    `json:"severity"`
	Message        string      `json:"message"`
	Recommendation string      `json:"recommendation,omitempty"`
	Details        Details     `json:"details,omitempty"`
	Hint           *VisualHint `json:"visualization,omitempty"`
}

// NewIssue builds an issue whose kind is taken from details.
func NewIssue(severity Severity, details Details, message, recommendation string) Issue {
	return Issue{
		Kind:           details.Kind(),
		Severity:       severity,
		Message:        message,
		Recommendation: recommendation,
		Details:        details,
	}
}

// WithFaces attaches a visualization hint, keeping at most limit faces.
func (i Issue) WithFaces(faces []int, limit int) Issue {
	if len(faces) == 0 {
		return i
	}
	if limit > 0 && len(faces) > limit {
		faces = faces[:limit]
	}
	i.Hint = &VisualHint{FaceIndices: append([]int(nil), faces...)}
	return i
}

func degradedIssue(check string, reason string) Issue {
	return NewIssue(SeverityWarn,
		AnalysisDegradedDetails{Check: check, Reason: reason},
		fmt.Sprintf("The %s check could not complete; results may be incomplete.", check),
		"Review the model manually or contact support.")
}
