package logging

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

const chunkSize = 600 * 1024

func chunk(b byte) []byte {
	return bytes.Repeat([]byte{b}, chunkSize)
}

func openTestFile(t *testing.T, rot Rotation) (*rotatingFile, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", LogFileName)
	r, err := openRotating(path, rot)
	if err != nil {
		t.Fatalf("openRotating() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, path
}

func write(t *testing.T, r *rotatingFile, p []byte) {
	t.Helper()
	if _, err := r.Write(p); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Size()
}

func TestRotatingFile_KeepsBackups(t *testing.T) {
	r, path := openTestFile(t, Rotation{MaxSizeMB: 1, MaxBackups: 2})

	for _, b := range []byte("abcd") {
		write(t, r, chunk(b))
	}
	if err := r.Sync(); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{path, backupPath(path, 1), backupPath(path, 2)} {
		if got := fileSize(t, p); got != chunkSize {
			t.Errorf("%s size = %d, want %d", filepath.Base(p), got, chunkSize)
		}
	}
	if exists(backupPath(path, 3)) {
		t.Error("backup past MaxBackups was kept")
	}

	// Newest backup holds the chunk written just before the current one.
	data, err := os.ReadFile(backupPath(path, 1))
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 'c' {
		t.Errorf("backup 1 starts with %q, want c", data[0])
	}
}

func TestRotatingFile_Disabled(t *testing.T) {
	r, path := openTestFile(t, Rotation{})
	write(t, r, chunk('a'))
	write(t, r, chunk('b'))

	if got := fileSize(t, path); got != 2*chunkSize {
		t.Errorf("size = %d, want %d", got, 2*chunkSize)
	}
	if exists(backupPath(path, 1)) {
		t.Error("rotation happened with MaxSizeMB 0")
	}
}

func TestRotatingFile_NoBackups(t *testing.T) {
	r, path := openTestFile(t, Rotation{MaxSizeMB: 1})
	write(t, r, chunk('a'))
	write(t, r, chunk('b'))

	if got := fileSize(t, path); got != chunkSize {
		t.Errorf("size = %d, want %d", got, chunkSize)
	}
	if exists(backupPath(path, 1)) {
		t.Error("backup kept with MaxBackups 0")
	}
}

func TestRotatingFile_Compress(t *testing.T) {
	r, path := openTestFile(t, Rotation{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	write(t, r, chunk('a'))
	write(t, r, chunk('b'))

	if exists(backupPath(path, 1)) {
		t.Error("uncompressed backup left behind")
	}
	f, err := os.Open(backupPath(path, 1) + ".gz")
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, chunk('a')) {
		t.Error("compressed backup content differs")
	}
}

func TestRotatingFile_WriteAfterClose(t *testing.T) {
	r, _ := openTestFile(t, DefaultRotation())
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := r.Write([]byte("x")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Write() after Close error = %v, want os.ErrClosed", err)
	}
}

func TestNewLoggerWithRotation_ReopensExistingFile(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		logger, err := NewLoggerWithRotation(dir, LevelInfo, Rotation{MaxSizeMB: 1, MaxBackups: 1})
		if err != nil {
			t.Fatalf("NewLoggerWithRotation() error = %v", err)
		}
		logger.Info("started", "run", i)
		if err := logger.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(readLines(t, dir)); got != 2 {
		t.Errorf("lines = %d, want 2 appended across runs", got)
	}
}
