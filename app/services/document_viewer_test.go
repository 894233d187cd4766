package services

import (
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewerCommand(t *testing.T) {
	tests := map[string][]string{
		"windows": {"rundll32", "url.dll,FileProtocolHandler", "/x/ORDER_A.pdf"},
		"darwin":  {"open", "/x/ORDER_A.pdf"},
		"linux":   {"xdg-open", "/x/ORDER_A.pdf"},
		"freebsd": {"xdg-open", "/x/ORDER_A.pdf"},
	}

	for goos, want := range tests {
		t.Run(goos, func(t *testing.T) {
			assert.Equal(t, want, viewerCommand(goos, "/x/ORDER_A.pdf").Args)
		})
	}
}

func TestOSViewer_OpenUsesAbsolutePath(t *testing.T) {
	var started *exec.Cmd
	v := &OSViewer{goos: "linux", start: func(cmd *exec.Cmd) error {
		started = cmd
		return nil
	}}

	require.NoError(t, v.Open("labels/ORDER_A.pdf"))
	require.NotNil(t, started)

	arg := started.Args[len(started.Args)-1]
	assert.True(t, filepath.IsAbs(arg))
	assert.Equal(t, "ORDER_A.pdf", filepath.Base(arg))
}

func TestOSViewer_StartFailure(t *testing.T) {
	v := &OSViewer{goos: "linux", start: func(*exec.Cmd) error { return errors.New("no viewer") }}
	assert.Error(t, v.Open("ORDER_A.pdf"))
}

func TestStartDetached_ReapsChild(t *testing.T) {
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}

	done, err := startDetached(exec.Command(path))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("child was not reaped")
	}
}

func TestStartDetached_StartFailure(t *testing.T) {
	done, err := startDetached(exec.Command(filepath.Join(t.TempDir(), "missing-viewer")))
	assert.Error(t, err)
	assert.Nil(t, done)
}
