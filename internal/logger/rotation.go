package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const rotationStamp = "20060102T150405"

// RotationOptions bound the size and age of the log file
type RotationOptions struct {
	MaxSizeMB int  // rotate once the file would exceed this size
	MaxAge    int  // days a rotated file is kept; 0 keeps them all
	Compress  bool // gzip rotated files
}

// RotatingWriter appends to a log file and moves it aside as
// <name>-<timestamp><ext> once it reaches the size limit.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	opts     RotationOptions
	maxBytes int64
	file     *os.File
	size     int64

	// background compression and pruning
	pending sync.WaitGroup
	now     func() time.Time
}

// NewRotatingWriter opens path for appending and prunes expired rotations
func NewRotatingWriter(path string, opts RotationOptions) (*RotatingWriter, error) {
	if opts.MaxSizeMB <= 0 {
		return nil, fmt.Errorf("rotation max size must be positive, got %d MB", opts.MaxSizeMB)
	}

	file, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		opts:     opts,
		maxBytes: int64(opts.MaxSizeMB) * 1024 * 1024,
		file:     file,
		size:     info.Size(),
		now:      time.Now,
	}
	w.background(w.prune)
	return w, nil
}

// Write appends p, rotating first when p would push the file past the limit.
// A non-empty file is never split across rotations mid-line.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the file and waits for compression and pruning to finish
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.pending.Wait()
	return err
}

// Rotations lists rotated files, compressed or not
func (w *RotatingWriter) Rotations() ([]string, error) {
	matches, err := filepath.Glob(w.rotationPrefix() + "*")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		if m != w.path {
			out = append(out, m)
		}
	}
	return out, nil
}

// rotate moves the file aside and reopens; caller holds mu
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	rotated := w.rotatedName()
	if err := os.Rename(w.path, rotated); err != nil {
		return err
	}

	file, err := openAppend(w.path)
	if err != nil {
		return err
	}
	w.file = file
	w.size = 0

	if w.opts.Compress {
		w.background(func() { _ = compressFile(rotated) })
	}
	w.background(w.prune)
	return nil
}

// rotationPrefix is the path without extension plus a dash, e.g. /data/fablebot-
func (w *RotatingWriter) rotationPrefix() string {
	ext := filepath.Ext(w.path)
	return strings.TrimSuffix(w.path, ext) + "-"
}

// rotatedName picks a free name for this second, adding .1, .2 on collision
func (w *RotatingWriter) rotatedName() string {
	ext := filepath.Ext(w.path)
	base := w.rotationPrefix() + w.now().Format(rotationStamp)
	name := base + ext
	for i := 1; exists(name) || exists(name+".gz"); i++ {
		name = fmt.Sprintf("%s.%d%s", base, i, ext)
	}
	return name
}

// prune removes rotations older than MaxAge days
func (w *RotatingWriter) prune() {
	if w.opts.MaxAge <= 0 {
		return
	}
	rotations, err := w.Rotations()
	if err != nil {
		return
	}

	cutoff := w.now().AddDate(0, 0, -w.opts.MaxAge)
	for _, path := range rotations {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}

func (w *RotatingWriter) background(fn func()) {
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		fn()
	}()
}

// compressFile gzips path to path.gz and removes path
func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		os.Remove(path + ".gz")
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}
