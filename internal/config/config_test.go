package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/printquote/internal/dfm"
	"github.com/Simplici0/printquote/internal/slicer"
)

var envKeys = []string{
	"ADMIN_EMAIL", "ADMIN_PASSWORD", "SESSION_SECRET", "DB_PATH", "PORT", "APP_ENV", "LOG_LEVEL",
	"QUOTE_CONFIG", "CATALOG_DIR", "UPLOAD_DIR", "REDIS_ADDR", "SLICER_TEMP_DIR", "SLICER_COMMAND",
	"SLICER_TIMEOUT", "STEP_CONVERTER_COMMAND", "MARKUP", "HOURLY_RATE", "QUOTE_FILE_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "./dev.db", cfg.DBPath)
	assert.Equal(t, 1.0, cfg.Markup)
	assert.Equal(t, slicer.DefaultTimeout, cfg.Slicer.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.QuoteFileTTL)
	assert.True(t, cfg.IsDev())
	assert.Contains(t, cfg.Warnings, "SESSION_SECRET is not set")
	assert.Empty(t, cfg.Profiles)
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("APP_ENV", "production")
	t.Setenv("MARKUP", "1.35")
	t.Setenv("HOURLY_RATE", "12")
	t.Setenv("SLICER_COMMAND", "prusa-slicer --export-gcode {input} --load {config} -o {output}")
	t.Setenv("SLICER_TIMEOUT", "90")
	t.Setenv("QUOTE_FILE_TTL", "2h")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, 1.35, cfg.Markup)
	assert.Equal(t, 12.0, cfg.HourlyRate)
	assert.Equal(t, []string{"prusa-slicer", "--export-gcode", "{input}", "--load", "{config}", "-o", "{output}"}, cfg.Slicer.Command)
	assert.Equal(t, 90*time.Second, cfg.Slicer.Timeout)
	assert.Equal(t, 2*time.Hour, cfg.QuoteFileTTL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"markup below one":   {"MARKUP", "0.9"},
		"markup not numeric": {"MARKUP", "lots"},
		"zero timeout":       {"SLICER_TIMEOUT", "0"},
		"bad ttl":            {"QUOTE_FILE_TTL", "forever"},
		"negative rate":      {"HOURLY_RATE", "-1"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "quote.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pricing:
  markup: 1.8
  hourly_rate: 4.5
slicer:
  command: ["slicer", "{input}"]
  timeout: 2m
quote_files:
  ttl: 6h
profiles:
  fdm:
    min_wall_mm: 1.2
    build_volume_mm: [300, 300, 400]
  sla:
    voids: powder
slicing:
  FDM:
    infill: 0.4
cnc:
  removal_rate_cm3_min: 25
`), 0o600))
	t.Setenv("QUOTE_CONFIG", path)
	t.Setenv("HOURLY_RATE", "6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1.8, cfg.Markup)
	assert.Equal(t, 6.0, cfg.HourlyRate, "env wins over the file")
	assert.Equal(t, []string{"slicer", "{input}"}, cfg.Slicer.Command)
	assert.Equal(t, 2*time.Minute, cfg.Slicer.Timeout)
	assert.Equal(t, 6*time.Hour, cfg.QuoteFileTTL)
	assert.Equal(t, 25.0, cfg.RemovalRate)

	fdm := cfg.Profiles[dfm.TechnologyFDM]
	assert.Equal(t, dfm.TechnologyFDM, fdm.Technology)
	assert.Equal(t, 1.2, fdm.MinWallMM)
	assert.Equal(t, [3]float64{300, 300, 400}, fdm.BuildVolumeMM)
	assert.Equal(t, 45.0, fdm.OverhangWarnDeg, "unset fields keep the built-in profile")
	assert.True(t, fdm.CheckWarping)

	assert.Equal(t, dfm.VoidPolicyPowder, cfg.Profiles[dfm.TechnologySLA].Voids)

	fdmSlicing := cfg.Slicing[dfm.TechnologyFDM]
	assert.Equal(t, 0.4, fdmSlicing.Infill)
	assert.Equal(t, 0.2, fdmSlicing.LayerHeightMM)
	assert.True(t, fdmSlicing.Supports)
}

func TestLoadMissingYAMLFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUOTE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
