package services

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
)

// DocumentViewer shows a rendered document to the operator
type DocumentViewer interface {
	Open(path string) error
}

// OSViewer opens files with the default application of the host OS
type OSViewer struct {
	goos  string
	start func(cmd *exec.Cmd) error
}

// NewOSViewer creates a viewer for the running OS
func NewOSViewer() *OSViewer {
	return &OSViewer{
		goos: runtime.GOOS,
		start: func(cmd *exec.Cmd) error {
			_, err := startDetached(cmd)
			return err
		},
	}
}

// startDetached starts cmd and reaps it in the background. The channel
// receives the exit result once the process is gone.
func startDetached(cmd *exec.Cmd) (<-chan error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done, nil
}

// Open launches the viewer without waiting for it to exit
func (v *OSViewer) Open(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	if err := v.start(viewerCommand(v.goos, absPath)); err != nil {
		return fmt.Errorf("open %s: %w", absPath, err)
	}
	return nil
}

func viewerCommand(goos, absPath string) *exec.Cmd {
	switch goos {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", absPath)
	case "darwin":
		return exec.Command("open", absPath)
	default: // linux, etc.
		return exec.Command("xdg-open", absPath)
	}
}

// NoopViewer leaves documents closed; used when open_after_render is off
type NoopViewer struct{}

// Open does nothing
func (NoopViewer) Open(string) error { return nil }
