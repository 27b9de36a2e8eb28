package mesh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/printquote/internal/faults"
)

const (
	defaultDeflection     = 0.1
	defaultConvertTimeout = 2 * time.Minute
)

// StepConverter tessellates STEP solids by running an external geometry
// kernel. Command is an argv template; "{input}", "{output}" and
// "{deflection}" are substituted. The kernel must write binary or ASCII STL.
type StepConverter struct {
	Command    []string
	Deflection float64
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Available reports whether a converter command is configured.
func (c *StepConverter) Available() bool {
	return c != nil && len(c.Command) > 0
}

// Convert tessellates the STEP file at input. The intermediate STL lives in
// a private temp directory that is removed before Convert returns.
func (c *StepConverter) Convert(ctx context.Context, input string) (*Mesh, error) {
	if !c.Available() {
		return nil, faults.New(faults.KindFileFormat, "STEP support is not available on this server")
	}
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	deflection := c.Deflection
	if deflection <= 0 {
		deflection = defaultDeflection
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultConvertTimeout
	}

	dir, err := os.MkdirTemp("", "printquote-step-*")
	if err != nil {
		return nil, faults.Wrap(faults.KindStepConversion, err, "create conversion workspace")
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("remove step workspace", zap.String("dir", dir), zap.Error(err))
		}
	}()
	output := filepath.Join(dir, "converted.stl")

	replacer := strings.NewReplacer(
		"{input}", input,
		"{output}", output,
		"{deflection}", strconv.FormatFloat(deflection, 'f', -1, 64),
	)
	args := make([]string, len(c.Command))
	for i, a := range c.Command {
		args[i] = replacer.Replace(a)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, faults.New(faults.KindStepConversion, "STEP conversion timed out after %s", timeout)
	}
	if err != nil {
		logger.Warn("step converter failed", zap.Error(err), zap.ByteString("output", tail(out, 512)))
		return nil, faults.Wrap(faults.KindStepConversion, err, "STEP conversion failed")
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, faults.Wrap(faults.KindStepConversion, err, "STEP converter produced no mesh")
	}
	m, err := ReadSTL(data)
	if err != nil {
		return nil, faults.Wrap(faults.KindStepConversion, err, "STEP converter produced an unreadable mesh")
	}
	return m, nil
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}

// Loader reads model files by extension.
type Loader struct {
	Step *StepConverter
}

// Load reads the model at path. Supported: .stl, .obj, .3mf and, when a
// converter is configured, .step/.stp.
func (l Loader) Load(ctx context.Context, path string) (*Mesh, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".step", ".stp":
		return l.Step.Convert(ctx, path)
	case ".stl", ".obj", ".3mf":
	default:
		return nil, faults.New(faults.KindFileFormat, "unsupported file type %q (accepted: .stl, .step, .stp, .3mf, .obj)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.Wrap(faults.KindFileFormat, err, "read model file")
	}
	switch ext {
	case ".obj":
		return ReadOBJ(data)
	case ".3mf":
		return Read3MF(data)
	default:
		return ReadSTL(data)
	}
}

// SaveSTL writes m to path as binary STL.
func SaveSTL(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create stl: %w", err)
	}
	if err := WriteSTL(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
