package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Rotation bounds the size of the log file.
type Rotation struct {
	// MaxSizeMB is the size at which the file is rotated; 0 disables rotation.
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept as LogFileName.1..N.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// DefaultRotation returns the rotation used by NewLogger.
func DefaultRotation() Rotation {
	return Rotation{MaxSizeMB: 10, MaxBackups: 3}
}

// rotatingFile is an append-only log file. A write that would push it past
// the size limit first renames it to path.1, shifting older backups up and
// dropping the one past MaxBackups.
type rotatingFile struct {
	mu   sync.Mutex
	path string
	rot  Rotation
	f    *os.File
	size int64
}

func openRotating(path string, rot Rotation) (*rotatingFile, error) {
	r := &rotatingFile{path: path, rot: rot}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	r.f = f
	r.size = info.Size()
	return nil
}

func (r *rotatingFile) limit() int64 {
	return int64(r.rot.MaxSizeMB) * 1024 * 1024
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return 0, os.ErrClosed
	}
	if max := r.limit(); max > 0 && r.size > 0 && r.size+int64(len(p)) > max {
		if err := r.rotate(); err != nil {
			// Keep writing to whatever file is open rather than drop lines.
			fmt.Fprintf(os.Stderr, "mapcore: log rotation failed: %v\n", err)
			if r.f == nil {
				return 0, err
			}
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	r.f = nil

	r.shiftBackups()
	if r.rot.MaxBackups > 0 {
		first := backupPath(r.path, 1)
		if err := os.Rename(r.path, first); err != nil {
			_ = r.open()
			return fmt.Errorf("failed to rename log file: %w", err)
		}
		if r.rot.Compress {
			if err := gzipFile(first); err != nil {
				fmt.Fprintf(os.Stderr, "mapcore: failed to compress %s: %v\n", first, err)
			}
		}
	} else if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		_ = r.open()
		return fmt.Errorf("failed to truncate log file: %w", err)
	}
	return r.open()
}

// shiftBackups renames path.N to path.N+1 from the oldest down, removing
// the backup that would fall past MaxBackups.
func (r *rotatingFile) shiftBackups() {
	n := r.rot.MaxBackups
	if n <= 0 {
		return
	}
	for _, suffix := range []string{"", ".gz"} {
		_ = os.Remove(backupPath(r.path, n) + suffix)
	}
	for i := n - 1; i >= 1; i-- {
		for _, suffix := range []string{"", ".gz"} {
			from := backupPath(r.path, i) + suffix
			if _, err := os.Stat(from); err == nil {
				_ = os.Rename(from, backupPath(r.path, i+1)+suffix)
			}
		}
	}
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	return r.f.Sync()
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	err := r.f.Close()
	r.f = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

func backupPath(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path + ".gz")
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		_ = os.Remove(path + ".gz")
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
