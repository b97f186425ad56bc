// Package logging provides the file sink and logger constructors used by boltd.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes caps a single log file before it rolls over within the day.
const DefaultMaxBytes int64 = 300 * 1024 * 1024

// RotatingWriter writes to files that rotate daily and when exceeding max size.
//
// A base path of logs/boltd.log produces logs/boltd-2026-01-02.log, then
// logs/boltd-2026-01-02-2.log once MaxBytes is reached the same day. The base
// path itself is kept as a link to the file currently written.
type RotatingWriter struct {
	BasePath string
	MaxBytes int64

	now func() time.Time

	mu       sync.Mutex
	curDate  string
	curIndex int
	file     *os.File
	size     int64
}

// NewRotatingWriter creates a rotating writer using basePath as the logical
// log file. A basePath of "-" discards all output.
func NewRotatingWriter(basePath string, maxBytes int64) (io.WriteCloser, error) {
	return newRotatingWriter(basePath, maxBytes, time.Now)
}

func newRotatingWriter(basePath string, maxBytes int64, now func() time.Time) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	rw := &RotatingWriter{BasePath: basePath, MaxBytes: maxBytes, now: now}
	if err := rw.rotateIfNeeded(0); err != nil {
		return nil, err
	}
	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// CurrentPath returns the file that receives writes right now.
func (w *RotatingWriter) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

func (w *RotatingWriter) rotateIfNeeded(incoming int64) error {
	// UTC day boundaries
	today := w.now().UTC().Format("2006-01-02")
	if w.file == nil || w.curDate != today {
		w.curDate = today
		w.curIndex = 1
		return w.openCurrent()
	}
	// an empty file always takes the write, however large
	if w.size > 0 && w.size+incoming > w.MaxBytes {
		w.curIndex++
		return w.openCurrent()
	}
	return nil
}

func (w *RotatingWriter) openCurrent() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	dir, name := filepath.Split(w.BasePath)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	filename := fmt.Sprintf("%s-%s%s", base, w.curDate, ext)
	if w.curIndex > 1 {
		filename = fmt.Sprintf("%s-%s-%d%s", base, w.curDate, w.curIndex, ext)
	}
	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	w.file = f
	w.size = size
	w.updatePointer(path)
	return nil
}

func (w *RotatingWriter) updatePointer(target string) {
	base := strings.TrimSpace(w.BasePath)
	if base == "" || base == "-" {
		return
	}
	if info, err := os.Lstat(base); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, derr := os.Readlink(base); derr == nil && dest == target {
				return
			}
		}
		_ = os.Remove(base)
	}
	// symlink, else hard link, else a text pointer
	if err := os.Symlink(target, base); err == nil {
		return
	}
	if err := os.Link(target, base); err == nil {
		return
	}
	if f, err := os.OpenFile(base, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644); err == nil {
		defer f.Close()
		_, _ = fmt.Fprintf(f, "current log file: %s\n", target)
	}
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }

// Output returns stdout, teed into a rotating file when logFile is set. The
// returned closer releases the file.
func Output(logFile string, maxBytes int64) (io.Writer, io.Closer, error) {
	if strings.TrimSpace(logFile) == "" {
		return os.Stdout, nopWriteCloser{}, nil
	}
	rot, err := NewRotatingWriter(logFile, maxBytes)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stdout, rot), rot, nil
}

// New returns a logger tagged with the component name, e.g. "[boltd/http] ".
func New(out io.Writer, component string) *log.Logger {
	if out == nil {
		out = io.Discard
	}
	return log.New(out, "["+component+"] ", log.LstdFlags|log.Lmicroseconds)
}
