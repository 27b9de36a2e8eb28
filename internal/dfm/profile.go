package dfm

import "strings"

// Technology identifies a manufacturing technology within a process.
type Technology string

const (
	TechnologyFDM        Technology = "FDM"
	TechnologySLA        Technology = "SLA"
	TechnologySLS        Technology = "SLS"
	TechnologyCNCMilling Technology = "CNC_MILLING"
)

// ParseTechnology normalises a catalog technology label.
func ParseTechnology(s string) Technology {
	return Technology(strings.ToUpper(strings.TrimSpace(s)))
}

// VoidPolicy selects how trapped volumes are graded.
type VoidPolicy string

const (
	VoidPolicyNone   VoidPolicy = ""
	VoidPolicyResin  VoidPolicy = "resin"
	VoidPolicyPowder VoidPolicy = "powder"
)

// Profile holds the thresholds the checks use for one technology. Lengths are
// millimetres, areas cm², volumes cm³, angles degrees.
type Profile struct {
	Technology Technology `yaml:"-"`

	BuildVolumeMM [3]float64 `yaml:"build_volume_mm"`

	MinWallMM          float64 `yaml:"min_wall_mm"`
	CriticalWallFactor float64 `yaml:"critical_wall_factor"`
	WallSampleFaces    int     `yaml:"wall_sample_faces"`
	AntiParallelTolDeg float64 `yaml:"anti_parallel_tolerance_deg"`

	CheckOverhang    bool    `yaml:"check_overhang"`
	OverhangWarnDeg  float64 `yaml:"overhang_warn_deg"`
	OverhangErrorDeg float64 `yaml:"overhang_error_deg"`
	PlateToleranceMM float64 `yaml:"plate_tolerance_mm"`

	CheckWarping        bool    `yaml:"check_warping"`
	WarpNormalThreshold float64 `yaml:"warp_normal_threshold"`
	WarpBaseBandMM      float64 `yaml:"warp_base_band_mm"`
	WarpAreaCM2         float64 `yaml:"warp_area_cm2"`

	MaxShells int `yaml:"max_shells"`

	Voids            VoidPolicy `yaml:"voids"`
	VoidMinVolumeCM3 float64    `yaml:"void_min_volume_cm3"`
}

// CriticalWallMM is the thickness below which thin walls are critical.
func (p Profile) CriticalWallMM() float64 {
	return p.MinWallMM * p.CriticalWallFactor
}

func baseProfile(t Technology) Profile {
	return Profile{
		Technology:          t,
		CriticalWallFactor:  0.6,
		WallSampleFaces:     500,
		AntiParallelTolDeg:  30,
		OverhangWarnDeg:     45,
		OverhangErrorDeg:    65,
		PlateToleranceMM:    0.05,
		WarpNormalThreshold: 0.95,
		WarpBaseBandMM:      1.0,
		WarpAreaCM2:         50,
		MaxShells:           1,
		VoidMinVolumeCM3:    1.0,
	}
}

// DefaultProfile returns the built-in thresholds for t. Unknown technologies
// get the FDM profile.
func DefaultProfile(t Technology) Profile {
	switch t {
	case TechnologySLA:
		p := baseProfile(t)
		p.BuildVolumeMM = [3]float64{145, 145, 175}
		p.MinWallMM = 0.4
		p.CheckOverhang = true
		p.Voids = VoidPolicyResin
		return p
	case TechnologySLS:
		p := baseProfile(t)
		p.BuildVolumeMM = [3]float64{300, 300, 300}
		p.MinWallMM = 0.7
		p.CheckWarping = true
		p.Voids = VoidPolicyPowder
		return p
	case TechnologyCNCMilling:
		p := baseProfile(t)
		p.BuildVolumeMM = [3]float64{400, 300, 150}
		p.MinWallMM = 1.0
		return p
	default:
		p := baseProfile(TechnologyFDM)
		p.BuildVolumeMM = [3]float64{250, 210, 210}
		p.MinWallMM = 0.8
		p.CheckOverhang = true
		p.CheckWarping = true
		return p
	}
}
