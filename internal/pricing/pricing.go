package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/Simplici0/printquote/internal/faults"
	"github.com/Simplici0/printquote/internal/material"
)

// CostEstimate is the cost and time of producing one part.
type CostEstimate struct {
	MaterialVolumeCM3  float64       `json:"material_volume_cm3"`
	SupportVolumeCM3   *float64      `json:"support_volume_cm3,omitempty"`
	TotalVolumeCM3     float64       `json:"total_volume_cm3"`
	WeightG            float64       `json:"weight_g"`
	MaterialCost       float64       `json:"material_cost"`
	ProcessTimeSeconds float64       `json:"process_time_seconds"`
	BaseCost           float64       `json:"base_cost"`
	Duration           time.Duration `json:"-"`
	DurationSeconds    float64       `json:"estimation_duration_seconds"`
}

// NewCostEstimate fills the derived fields. Base cost is material cost only;
// process time is reported alongside and charged separately by the Pricer.
func NewCostEstimate(materialCM3 float64, supportCM3 *float64, weightG, materialCost, seconds float64, d time.Duration) CostEstimate {
	total := materialCM3
	if supportCM3 != nil {
		total += *supportCM3
	}
	return CostEstimate{
		MaterialVolumeCM3:  materialCM3,
		SupportVolumeCM3:   supportCM3,
		TotalVolumeCM3:     total,
		WeightG:            weightG,
		MaterialCost:       materialCost,
		ProcessTimeSeconds: seconds,
		BaseCost:           materialCost,
		Duration:           d,
		DurationSeconds:    d.Seconds(),
	}
}

// MaterialCost prices weightG grams (or volumeCM3 for materials sold by the
// liter) of m. Materials with a per-liter price use it; otherwise the
// per-kg price applies.
func MaterialCost(m material.Material, weightG, volumeCM3 float64) (float64, error) {
	switch {
	case m.CostPerLiter != nil && *m.CostPerLiter > 0:
		return volumeCM3 / 1000 * *m.CostPerLiter, nil
	case m.CostPerKg != nil && *m.CostPerKg > 0:
		return weightG / 1000 * *m.CostPerKg, nil
	default:
		return 0, faults.New(faults.KindConfiguration, "material %q has no cost per kg or per liter", m.ID)
	}
}

// Breakdown itemises a customer price.
type Breakdown struct {
	BaseCost      float64 `json:"base_cost"`
	MarkedUp      float64 `json:"marked_up_cost"`
	TimeCharge    float64 `json:"time_charge"`
	CustomerPrice float64 `json:"customer_price"`
}

// Pricer turns a cost estimate into a customer price.
type Pricer struct {
	markup     float64
	hourlyRate float64
}

// NewPricer validates the markup factor (at least 1) and hourly rate (not
// negative).
func NewPricer(markup, hourlyRate float64) (*Pricer, error) {
	if math.IsNaN(markup) || markup < 1 {
		return nil, faults.New(faults.KindConfiguration, "markup must be at least 1.0, got %v", markup)
	}
	if math.IsNaN(hourlyRate) || hourlyRate < 0 {
		return nil, faults.New(faults.KindConfiguration, "hourly rate must not be negative, got %v", hourlyRate)
	}
	return &Pricer{markup: markup, hourlyRate: hourlyRate}, nil
}

func (p *Pricer) Markup() float64     { return p.markup }
func (p *Pricer) HourlyRate() float64 { return p.hourlyRate }

// Calculate prices est:
// ceil100(base × markup + hours × hourly rate).
func (p *Pricer) Calculate(est CostEstimate) Breakdown {
	markedUp := est.BaseCost * p.markup
	timeCharge := est.ProcessTimeSeconds / 3600 * p.hourlyRate
	return Breakdown{
		BaseCost:      est.BaseCost,
		MarkedUp:      markedUp,
		TimeCharge:    timeCharge,
		CustomerPrice: Ceil100(markedUp + timeCharge),
	}
}

// CustomerPrice is Calculate(est).CustomerPrice.
func (p *Pricer) CustomerPrice(est CostEstimate) float64 {
	return p.Calculate(est).CustomerPrice
}

// Ceil100 rounds x up to the next cent. The small epsilon keeps values that
// are already whole cents (up to float noise) where they are.
func Ceil100(x float64) float64 {
	return math.Ceil(x*100-1e-9) / 100
}

// FormatTime renders a duration in seconds for display: "N/A" for negative
// input, "0s" for zero, milliseconds below one second, "Ns" below a minute,
// "Mm Ss" below an hour and "Hh Mm" from one hour up.
func FormatTime(seconds float64) string {
	switch {
	case math.IsNaN(seconds) || seconds < 0:
		return "N/A"
	case seconds == 0:
		return "0s"
	case seconds < 1:
		return fmt.Sprintf("%dms", int(math.Round(seconds*1000)))
	case seconds < 60:
		return fmt.Sprintf("%ds", int(seconds))
	case seconds < 3600:
		s := int(seconds)
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		s := int64(seconds)
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	}
}
