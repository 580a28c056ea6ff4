// Package muxer combines separately downloaded audio and video streams into a
// single MP4 container with ffmpeg, copying both codecs.
package muxer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MuxError reports an ffmpeg failure. ExitCode is -1 when the process never produced one.
type MuxError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *MuxError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("mux failed: %v", e.Err)
}

func (e *MuxError) Unwrap() error {
	return e.Err
}

// Job holds the three temporary paths used by one mux invocation
type Job struct {
	VideoPath  string
	AudioPath  string
	OutputPath string
}

// Cleanup removes every path of the job, ignoring files that were never created
func (j Job) Cleanup() error {
	var errs []error
	for _, p := range []string{j.VideoPath, j.AudioPath, j.OutputPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Muxer runs ffmpeg against temporary files
type Muxer struct {
	binary string
	tmpDir string
	logger *zap.Logger
}

// New creates a muxer. An empty binary defaults to "ffmpeg", an empty tmpDir to os.TempDir().
func New(binary, tmpDir string, logger *zap.Logger) *Muxer {
	if binary == "" {
		binary = "ffmpeg"
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Muxer{binary: binary, tmpDir: tmpDir, logger: logger}
}

// CheckInstallation verifies the ffmpeg binary can be resolved
func (m *Muxer) CheckInstallation() error {
	if _, err := exec.LookPath(m.binary); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	return nil
}

func (m *Muxer) newJob() Job {
	id := uuid.New().String()
	return Job{
		VideoPath:  filepath.Join(m.tmpDir, fmt.Sprintf("reel-%s-video.mp4", id)),
		AudioPath:  filepath.Join(m.tmpDir, fmt.Sprintf("reel-%s-audio.mp4", id)),
		OutputPath: filepath.Join(m.tmpDir, fmt.Sprintf("reel-%s-output.mp4", id)),
	}
}

// Mux writes both inputs to disk, runs ffmpeg and returns the combined file.
// No file of the job survives the call.
func (m *Muxer) Mux(ctx context.Context, video, audio []byte) ([]byte, error) {
	job := m.newJob()
	defer func() {
		if err := job.Cleanup(); err != nil {
			m.logger.Warn("failed to remove mux temp files", zap.Error(err))
		}
	}()

	if err := os.WriteFile(job.VideoPath, video, 0o600); err != nil {
		return nil, &MuxError{ExitCode: -1, Err: fmt.Errorf("write video input: %w", err)}
	}
	if err := os.WriteFile(job.AudioPath, audio, 0o600); err != nil {
		return nil, &MuxError{ExitCode: -1, Err: fmt.Errorf("write audio input: %w", err)}
	}

	args := []string{
		"-y",
		"-i", job.VideoPath,
		"-i", job.AudioPath,
		"-c:v", "copy",
		"-c:a", "copy",
		job.OutputPath,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.binary, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			m.logger.Debug("ffmpeg output", zap.String("stderr", stderr.String()))
			return nil, &MuxError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String(), Err: err}
		}
		return nil, &MuxError{ExitCode: -1, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}
	m.logger.Debug("ffmpeg output", zap.String("stderr", stderr.String()))

	out, err := os.ReadFile(job.OutputPath)
	if err != nil {
		return nil, &MuxError{ExitCode: -1, Err: fmt.Errorf("read muxed output: %w", err)}
	}
	return out, nil
}
