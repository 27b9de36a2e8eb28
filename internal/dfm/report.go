package dfm

import "time"

// Status is the overall verdict.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusWarning Status = "WARNING"
	StatusFail    Status = "FAIL"
)

// Aggregate reduces issues to a status: FAIL if any issue is critical,
// WARNING if any is a warning or error, PASS otherwise. Order is irrelevant.
func Aggregate(issues []Issue) Status {
	worst := SeverityInfo
	for _, is := range issues {
		if is.Severity > worst {
			worst = is.Severity
		}
	}
	switch worst {
	case SeverityCritical:
		return StatusFail
	case SeverityWarn, SeverityError:
		return StatusWarning
	default:
		return StatusPass
	}
}

// Report is the outcome of one DFM run.
type Report struct {
	Status          Status        `json:"status"`
	Issues          []Issue       `json:"issues"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"analysis_duration_seconds"`
}

func newReport(issues []Issue, d time.Duration) Report {
	if issues == nil {
		issues = []Issue{}
	}
	return Report{
		Status:          Aggregate(issues),
		Issues:          issues,
		Duration:        d,
		DurationSeconds: d.Seconds(),
	}
}

// FailedReport is the report attached to a quote that never reached DFM.
func FailedReport() Report {
	return Report{Status: StatusFail, Issues: []Issue{}}
}

// Has reports whether any issue has kind k.
func (r Report) Has(k Kind) bool {
	_, ok := r.Find(k)
	return ok
}

// Find returns the first issue of kind k.
func (r Report) Find(k Kind) (Issue, bool) {
	for _, is := range r.Issues {
		if is.Kind == k {
			return is, true
		}
	}
	return Issue{}, false
}

// Count returns the number of issues at severity s.
func (r Report) Count(s Severity) int {
	n := 0
	for _, is := range r.Issues {
		if is.Severity == s {
			n++
		}
	}
	return n
}
