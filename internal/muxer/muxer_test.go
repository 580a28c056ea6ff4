package muxer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg writes a shell script standing in for ffmpeg
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// concatenates both inputs into the last argument, like a mux would combine them
const concatScript = `for a; do out="$a"; done
cat "$3" "$5" > "$out"`

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMuxSuccess(t *testing.T) {
	tmp := t.TempDir()
	m := New(fakeFFmpeg(t, concatScript), tmp, nil)

	out, err := m.Mux(context.Background(), []byte("VIDEO"), []byte("AUDIO"))
	require.NoError(t, err)
	assert.Equal(t, []byte("VIDEOAUDIO"), out)
	assertEmptyDir(t, tmp)
}

func TestMuxNonZeroExit(t *testing.T) {
	tmp := t.TempDir()
	m := New(fakeFFmpeg(t, `for a; do out="$a"; done
echo partial > "$out"
echo "Invalid data found" >&2
exit 3`), tmp, nil)

	_, err := m.Mux(context.Background(), []byte("VIDEO"), []byte("AUDIO"))
	require.Error(t, err)

	var muxErr *MuxError
	require.True(t, errors.As(err, &muxErr))
	assert.Equal(t, 3, muxErr.ExitCode)
	assert.Contains(t, muxErr.Stderr, "Invalid data found")
	assertEmptyDir(t, tmp)
}

func TestMuxMissingOutput(t *testing.T) {
	tmp := t.TempDir()
	m := New(fakeFFmpeg(t, "exit 0"), tmp, nil)

	_, err := m.Mux(context.Background(), []byte("VIDEO"), []byte("AUDIO"))

	var muxErr *MuxError
	require.True(t, errors.As(err, &muxErr))
	assert.Equal(t, -1, muxErr.ExitCode)
	assertEmptyDir(t, tmp)
}

func TestMuxSpawnFailure(t *testing.T) {
	tmp := t.TempDir()
	m := New(filepath.Join(tmp, "does-not-exist"), tmp, nil)

	_, err := m.Mux(context.Background(), []byte("VIDEO"), []byte("AUDIO"))

	var muxErr *MuxError
	require.True(t, errors.As(err, &muxErr))
	assert.Equal(t, -1, muxErr.ExitCode)
	assertEmptyDir(t, tmp)
}

func TestJobCleanupIgnoresMissingFiles(t *testing.T) {
	m := New("", t.TempDir(), nil)
	job := m.newJob()
	assert.NoError(t, job.Cleanup())
}

func TestCheckInstallation(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "nope"), "", nil)
	assert.Error(t, m.CheckInstallation())
}
