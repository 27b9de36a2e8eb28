package slicer

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/Simplici0/printquote/internal/faults"
)

var (
	timeLine     = regexp.MustCompile(`^;\s*estimated printing time(?:\s*\(normal mode\))?\s*=\s*(.+)$`)
	timePart     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([dhms])`)
	filamentLine = regexp.MustCompile(`^;\s*(?:filament|material) used\s*\[(mm3|cm3|g|ml)\]\s*=\s*(.+)$`)
)

// ParseGCode reads the summary comments a slicer appends to its output.
// Time may be written as any of "1d 2h 3m 4s"; volume in mm³, cm³ or ml;
// weight in grams. Comma-separated per-extruder values are summed.
func ParseGCode(r io.Reader) (Result, error) {
	var (
		res                  Result
		haveTime, haveVolume bool
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, ";") {
			continue
		}
		if m := timeLine.FindStringSubmatch(line); m != nil {
			secs, ok := parseDuration(m[1])
			if !ok {
				return Result{}, faults.New(faults.KindSlicer, "unparseable print time %q", m[1])
			}
			res.PrintTimeSeconds = secs
			haveTime = true
			continue
		}
		if m := filamentLine.FindStringSubmatch(line); m != nil {
			v, ok := sumList(m[2])
			if !ok {
				return Result{}, faults.New(faults.KindSlicer, "unparseable material usage %q", m[2])
			}
			switch m[1] {
			case "mm3":
				res.VolumeMM3 = v
				haveVolume = true
			case "cm3", "ml":
				if !haveVolume {
					res.VolumeMM3 = v * 1000
					haveVolume = true
				}
			case "g":
				g := v
				res.WeightG = &g
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, faults.Wrap(faults.KindSlicer, err, "read slicer output")
	}
	if !haveTime {
		return Result{}, faults.New(faults.KindSlicer, "slicer output has no print time")
	}
	if !haveVolume {
		return Result{}, faults.New(faults.KindSlicer, "slicer output has no material volume")
	}
	return res, nil
}

func parseDuration(s string) (float64, bool) {
	parts := timePart.FindAllStringSubmatch(s, -1)
	if len(parts) == 0 {
		return 0, false
	}
	var total float64
	for _, p := range parts {
		n, err := strconv.ParseFloat(p[1], 64)
		if err != nil {
			return 0, false
		}
		switch p[2] {
		case "d":
			total += n * 86400
		case "h":
			total += n * 3600
		case "m":
			total += n * 60
		case "s":
			total += n
		}
	}
	return total, true
}

func sumList(s string) (float64, bool) {
	var total float64
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, false
		}
		total += n
	}
	return total, true
}
