// Package slicer estimates print time and material usage by driving an
// external slicing tool and reading the comments it leaves in its output.
package slicer

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// Settings are the slicing parameters derived from technology and material.
type Settings struct {
	Technology    string  `json:"technology"`
	LayerHeightMM float64 `json:"layer_height_mm"`
	Infill        float64 `json:"infill"`
	Supports      bool    `json:"supports"`
	DensityGCM3   float64 `json:"density_g_cm3,omitempty"`
}

// Result is what a slicer reports for one model. WeightG is nil when the tool
// did not print a weight; callers derive it from density.
type Result struct {
	PrintTimeSeconds float64  `json:"print_time_seconds"`
	VolumeMM3        float64  `json:"filament_volume_mm3"`
	WeightG          *float64 `json:"filament_weight_g,omitempty"`
}

// Slicer slices the model file at path.
type Slicer interface {
	Slice(ctx context.Context, path string, s Settings) (Result, error)
}

// Func adapts a function to Slicer.
type Func func(ctx context.Context, path string, s Settings) (Result, error)

func (f Func) Slice(ctx context.Context, path string, s Settings) (Result, error) {
	return f(ctx, path, s)
}

// values renders settings as slicer config keys.
func (s Settings) values() map[string]string {
	support := "0"
	if s.Supports {
		support = "1"
	}
	tech := "FFF"
	if s.Technology == "SLA" {
		tech = "SLA"
	}
	v := map[string]string{
		"layer_height":       fmt.Sprintf("%g", s.LayerHeightMM),
		"fill_density":       fmt.Sprintf("%g%%", s.Infill*100),
		"support_material":   support,
		"printer_technology": tech,
	}
	if s.DensityGCM3 > 0 {
		v["filament_density"] = fmt.Sprintf("%g", s.DensityGCM3)
	}
	return v
}

// writeConfig writes settings as a key = value ini file with sorted keys.
func writeConfig(w io.Writer, s Settings) error {
	v := s.values()
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s = %s\n", k, v[k]); err != nil {
			return err
		}
	}
	return nil
}
