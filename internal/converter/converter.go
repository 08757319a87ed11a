// Package converter invokes the external lottie converter to turn SVG
// documents into TGS animated stickers.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SizeWarnLimit is the soft ceiling on converter output. Telegram rejects
// animated stickers above 64 KiB, but an oversized artifact is still returned
// to the user with a warning rather than dropped.
const SizeWarnLimit = 64 * 1024

// ErrEmptyOutput is returned when the converter exits successfully but the
// output file is missing or empty.
var ErrEmptyOutput = errors.New("conversion produced no output file")

// ProcessError is returned when the converter process exits with a non-zero
// status.
type ProcessError struct {
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("converter exited with code %d: %s", e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Result holds a successful conversion.
type Result struct {
	TGS []byte
	// SizeWarning is set when the output exceeds SizeWarnLimit. Non-fatal.
	SizeWarning bool
}

// Options configures the conversion command. Zero values fall back to the
// Telegram sticker requirements (512x512, 30 fps, sanitize on).
type Options struct {
	// Command is the converter executable. When empty, Resolve picks
	// lottie_convert.py from PATH, falling back to "python -m lottie".
	Command  string
	FPS      int
	Width    int
	Height   int
	Optimize int
	Sanitize bool
}

func (o *Options) applyDefaults() {
	if o.FPS == 0 {
		o.FPS = 30
	}
	if o.Width == 0 {
		o.Width = 512
	}
	if o.Height == 0 {
		o.Height = 512
	}
}

// Converter runs a single SVG through the external conversion process.
type Converter interface {
	Convert(ctx context.Context, data []byte, filename string) (*Result, error)
}

// TGSConverter invokes the lottie converter as a subprocess. The command path
// is resolved once at construction; each Convert call is independent and may
// run concurrently with others.
type TGSConverter struct {
	command string
	args    []string // fixed prefix before input/output paths
	opts    Options
	logger  *slog.Logger
}

// New creates a TGSConverter, resolving the converter command once.
func New(logger *slog.Logger, opts Options) (*TGSConverter, error) {
	opts.applyDefaults()

	command := opts.Command
	var prefix []string
	if command == "" {
		if path, err := exec.LookPath("lottie_convert.py"); err == nil {
			command = path
		} else if path, err := exec.LookPath("python3"); err == nil {
			// lottie_convert.py not installed as a script; use the module
			// entry point instead.
			command = path
			prefix = []string{"-m", "lottie"}
		} else {
			return nil, fmt.Errorf("converter command not found: install lottie or set converter.command")
		}
	}

	return &TGSConverter{
		command: command,
		args:    prefix,
		opts:    opts,
		logger:  logger.With("component", "converter"),
	}, nil
}

// OutputName derives the .tgs filename from an .svg filename.
func OutputName(svgName string) string {
	base := strings.TrimSuffix(filepath.Base(svgName), filepath.Ext(svgName))
	return base + ".tgs"
}

// Convert writes the SVG to a fresh scratch directory, runs the converter,
// and reads back the TGS artifact. The scratch directory is removed on every
// exit path.
func (c *TGSConverter) Convert(ctx context.Context, data []byte, filename string) (*Result, error) {
	start := time.Now()

	scratch, err := os.MkdirTemp("", "tgsforge-*")
	if err != nil {
		recordConversion(statusError, time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			c.logger.Warn("failed to remove scratch dir", "dir", scratch, "error", err)
		}
	}()

	inputPath := filepath.Join(scratch, "input_"+filepath.Base(filename))
	outputPath := filepath.Join(scratch, "output_"+OutputName(filename))

	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		recordConversion(statusError, time.Since(start).Seconds(), 0)
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}

	args := append(append([]string{}, c.args...), inputPath, outputPath)
	if c.opts.Sanitize {
		args = append(args, "--sanitize")
	}
	args = append(args,
		"--optimize", strconv.Itoa(c.opts.Optimize),
		"--fps", strconv.Itoa(c.opts.FPS),
		"--width", strconv.Itoa(c.opts.Width),
		"--height", strconv.Itoa(c.opts.Height),
	)

	c.logger.Debug("running converter", "command", c.command, "args", args)

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		recordConversion(statusError, time.Since(start).Seconds(), 0)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ProcessError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("failed to run converter: %w", err)
	}

	out, err := os.ReadFile(outputPath)
	if err != nil || len(out) == 0 {
		recordConversion(statusEmpty, time.Since(start).Seconds(), 0)
		return nil, ErrEmptyOutput
	}

	result := &Result{TGS: out}
	if len(out) > SizeWarnLimit {
		result.SizeWarning = true
		c.logger.Warn("converted sticker exceeds the Telegram size limit",
			"filename", filename,
			"size", len(out),
			"limit", SizeWarnLimit,
		)
	}

	recordConversion(statusSuccess, time.Since(start).Seconds(), int64(len(out)))
	c.logger.Info("converted file",
		"filename", filename,
		"input_size", len(data),
		"output_size", len(out),
		"duration", time.Since(start),
	)
	return result, nil
}

var _ Converter = (*TGSConverter)(nil)
