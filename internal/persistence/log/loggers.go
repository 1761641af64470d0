package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"gemcraft.ai/internal/gems/engine"
	"gemcraft.ai/internal/sim/world"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// ReadJSONL decodes every line of a .jsonl.zst file into a fresh T and hands it to fn.
// A file holding several concatenated zstd frames, as written across restarts, reads as one
// stream.
func ReadJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	jd := json.NewDecoder(dec)
	for {
		var v T
		if err := jd.Decode(&v); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// Files lists the rotated files of prefix under baseDir, oldest first.
func Files(baseDir, prefix string) ([]string, error) {
	return filepath.Glob(filepath.Join(baseDir, prefix+"-*.jsonl.zst"))
}

// ActivationLog writes one entry per primary activation attempt (compressed).
type ActivationLog struct{ w *JSONLZstdWriter }

func NewActivationLog(dataDir string) *ActivationLog {
	return &ActivationLog{w: NewJSONLZstdWriter(ActivationDir(dataDir), "activations")}
}

func ActivationDir(dataDir string) string { return filepath.Join(dataDir, "activations") }

func (l *ActivationLog) WriteActivation(e engine.ActivationEntry) error { return l.w.Write(e) }
func (l *ActivationLog) Close() error                                  { return l.w.Close() }

// NoticeLog keeps every notice shown to actors (compressed). Write errors are dropped;
// notices are best effort.
type NoticeLog struct{ w *JSONLZstdWriter }

func NewNoticeLog(dataDir string) *NoticeLog {
	return &NoticeLog{w: NewJSONLZstdWriter(filepath.Join(dataDir, "notices"), "notices")}
}

func (l *NoticeLog) WriteNotice(n world.Notice) { _ = l.w.Write(n) }
func (l *NoticeLog) Close() error               { return l.w.Close() }
