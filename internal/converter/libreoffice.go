package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned when the LibreOffice binary cannot be found.
var ErrUnavailable = errors.New("libreoffice not available")

const defaultTimeout = 180 * time.Second

// LibreOffice converts presentations to PDF with a headless soffice process
// per job.
type LibreOffice struct {
	binary    string
	timeout   time.Duration
	semaphore chan struct{}
}

// Job represents a document conversion job
type Job struct {
	InputPath string
	OutputDir string
}

// Result represents the result of a conversion operation
type Result struct {
	OutputPath string
	Duration   time.Duration
}

// NewLibreOffice creates a converter running at most maxWorkers conversions at once.
func NewLibreOffice(binary string, maxWorkers int, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = "libreoffice"
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &LibreOffice{binary: binary, timeout: timeout, semaphore: make(chan struct{}, maxWorkers)}
}

// Available verifies the binary is on PATH.
func (l *LibreOffice) Available() error {
	if _, err := exec.LookPath(l.binary); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ConvertToPDF converts a document to PDF format
func (l *LibreOffice) ConvertToPDF(ctx context.Context, job Job) (Result, error) {
	start := time.Now()

	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-l.semaphore }()

	if err := validateInput(job.InputPath); err != nil {
		return Result{}, fmt.Errorf("input validation failed: %w", err)
	}
	if err := l.Available(); err != nil {
		return Result{}, err
	}

	// A private profile lets conversions run in parallel
	profileDir := filepath.Join(os.TempDir(), fmt.Sprintf("libreoffice_profile_%s", uuid.New().String()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create profile directory: %w", err)
	}
	defer os.RemoveAll(profileDir)

	outputDir := job.OutputDir
	if outputDir == "" {
		outputDir = filepath.Dir(job.InputPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	cmd := exec.CommandContext(cctx,
		l.binary,
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outputDir,
		job.InputPath,
	)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if out, err := cmd.CombinedOutput(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return Result{}, fmt.Errorf("conversion timeout after %v", l.timeout)
		}
		msg := strings.ToLower(string(out))
		if strings.Contains(msg, "password") || strings.Contains(msg, "encrypted") {
			return Result{}, fmt.Errorf("document is password protected: %w", err)
		}
		return Result{}, fmt.Errorf("conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	output := expectedOutputPath(job.InputPath, outputDir)
	if _, err := os.Stat(output); err != nil {
		return Result{}, fmt.Errorf("output file not created: %w", err)
	}

	log.Info().Str("input", job.InputPath).Str("output", output).Dur("duration", time.Since(start)).Msg("conversion successful")
	return Result{OutputPath: output, Duration: time.Since(start)}, nil
}

// validateInput checks if the input file is readable
func validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}

// expectedOutputPath is where LibreOffice writes the PDF for inputPath.
func expectedOutputPath(inputPath, outputDir string) string {
	baseName := filepath.Base(inputPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(outputDir, nameWithoutExt+".pdf")
}
