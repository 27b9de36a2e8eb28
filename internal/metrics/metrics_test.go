package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/quote"
	"github.com/Simplici0/printquote/internal/slicer"
)

var (
	_ dfm.Observer    = (*Metrics)(nil)
	_ slicer.Observer = (*Metrics)(nil)
	_ quote.Observer  = (*Metrics)(nil)
)

func TestObservers(t *testing.T) {
	m := New()

	m.ObserveQuote("3d_printing", dfm.StatusPass, quote.StateDone, time.Second)
	m.ObserveQuote("3d_printing", dfm.StatusPass, quote.StateDone, time.Second)
	m.ObserveQuote("", dfm.StatusFail, quote.StateFailed, time.Millisecond)
	m.ObserveCheck("thin_walls", time.Millisecond, false)
	m.ObserveCheck("overhang", time.Millisecond, true)
	m.ObserveSlice(30*time.Second, "timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.quotes.WithLabelValues("3d_printing", "PASS", "DONE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quotes.WithLabelValues("unknown", "FAIL", "FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkDegraded.WithLabelValues("overhang")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.checkDegraded.WithLabelValues("thin_walls")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slices.WithLabelValues("timeout")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveSlice(time.Second, "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `printquote_slicer_runs_total{outcome="ok"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
