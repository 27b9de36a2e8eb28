package slicer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/printquote/internal/faults"
)

// WorkspacePrefix names the temp directories a Runner creates.
const WorkspacePrefix = "printquote-slice-"

// DefaultTimeout bounds a single slicer invocation.
const DefaultTimeout = 300 * time.Second

// Observer receives the outcome of each invocation: "ok", "timeout" or "error".
type Observer interface {
	ObserveSlice(d time.Duration, outcome string)
}

// Runner invokes a slicer binary. Command is an argv template; "{input}",
// "{output}" and "{config}" are substituted with paths inside a private
// workspace that is removed on every return path.
type Runner struct {
	Command  []string
	Timeout  time.Duration
	TempDir  string
	Logger   *zap.Logger
	Observer Observer
}

// Slice copies the model into a fresh workspace, writes the settings file,
// runs the tool under the timeout and parses its output.
func (r *Runner) Slice(ctx context.Context, path string, s Settings) (res Result, err error) {
	if r == nil || len(r.Command) == 0 {
		return Result{}, faults.New(faults.KindSlicer, "no slicer is configured")
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil && outcome == "ok" {
			outcome = "error"
		}
		if r.Observer != nil {
			r.Observer.ObserveSlice(time.Since(start), outcome)
		}
	}()

	dir, err := os.MkdirTemp(r.TempDir, WorkspacePrefix+"*")
	if err != nil {
		return Result{}, faults.Wrap(faults.KindSlicer, err, "create slicer workspace")
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn("remove slicer workspace", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	input := filepath.Join(dir, "model"+strings.ToLower(filepath.Ext(path)))
	if err := copyFile(path, input); err != nil {
		return Result{}, faults.Wrap(faults.KindSlicer, err, "stage model for slicing")
	}
	config := filepath.Join(dir, "config.ini")
	if err := writeConfigFile(config, s); err != nil {
		return Result{}, faults.Wrap(faults.KindSlicer, err, "write slicer settings")
	}
	output := filepath.Join(dir, "output.gcode")

	replacer := strings.NewReplacer("{input}", input, "{output}", output, "{config}", config)
	args := make([]string, len(r.Command))
	for i, a := range r.Command {
		args[i] = replacer.Replace(a)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir
	// the tool may leave children holding the pipes after a kill
	cmd.WaitDelay = time.Second
	out, err := cmd.CombinedOutput()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		outcome = "timeout"
		logger.Warn("slicer timed out", zap.Duration("timeout", timeout))
		return Result{}, faults.New(faults.KindSlicer, "slicer timed out after %s", timeout)
	}
	if err != nil {
		logger.Warn("slicer failed", zap.Error(err), zap.ByteString("output", tail(out, 512)))
		return Result{}, faults.Wrap(faults.KindSlicer, err, "slicer failed")
	}

	f, err := os.Open(output)
	if err != nil {
		return Result{}, faults.Wrap(faults.KindSlicer, err, "slicer produced no output")
	}
	defer f.Close()
	res, err = ParseGCode(f)
	if err != nil {
		return Result{}, err
	}
	logger.Debug("sliced model",
		zap.Float64("print_time_seconds", res.PrintTimeSeconds),
		zap.Float64("volume_mm3", res.VolumeMM3),
		zap.Duration("duration", time.Since(start)))
	return res, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeConfigFile(path string, s Settings) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeConfig(f, s); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	return f.Close()
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
