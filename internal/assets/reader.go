// Package assets reads linked asset content for composition.
//
// Reads never return errors; failures are reported in ReadResult so a
// missing or unreadable asset is an ordinary outcome.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// DefaultMaxBytes bounds inlined asset size when no limit is configured.
const DefaultMaxBytes int64 = 1 << 20

// Stats describes an asset's content.
type Stats struct {
	Lines      int       `json:"lines" yaml:"lines"`
	Bytes      int64     `json:"bytes" yaml:"bytes"`
	Pages      int       `json:"pages,omitempty" yaml:"pages,omitempty"`
	ModifiedAt time.Time `json:"modified_at" yaml:"modified_at"`
}

// ReadResult is the outcome of reading one asset.
type ReadResult struct {
	Path    string `json:"path" yaml:"path"`
	Success bool   `json:"success" yaml:"success"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
	Stats   Stats  `json:"stats" yaml:"stats"`
}

// Reader reads assets from the local filesystem.
type Reader struct {
	mu       sync.RWMutex
	root     string
	maxBytes int64
	logger   *slog.Logger
}

// NewReader creates a reader. Relative paths resolve against root;
// maxBytes <= 0 uses DefaultMaxBytes.
func NewReader(root string, maxBytes int64, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Reader{root: root, maxBytes: maxBytes, logger: logger}
}

// SetLimits replaces the root and size limit used by later reads.
func (r *Reader) SetLimits(root string, maxBytes int64) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root, r.maxBytes = root, maxBytes
}

func (r *Reader) limits() (string, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root, r.maxBytes
}

// Resolve returns the filesystem path for an asset path.
func (r *Reader) Resolve(path string) string {
	root, _ := r.limits()
	if filepath.IsAbs(path) || root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

// Read reads one asset.
func (r *Reader) Read(ctx context.Context, path string) ReadResult {
	res := ReadResult{Path: path}
	fail := func(err error) ReadResult {
		res.Error = err.Error()
		r.logger.Debug("asset read failed", "path", path, "error", err)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	full := r.Resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return fail(err)
	}
	if info.IsDir() {
		return fail(fmt.Errorf("%s is a directory", path))
	}
	res.Stats.Bytes = info.Size()
	res.Stats.ModifiedAt = info.ModTime().UTC()

	if strings.EqualFold(filepath.Ext(full), ".pdf") {
		return r.readPDF(full, res, fail)
	}

	if _, maxBytes := r.limits(); info.Size() > maxBytes {
		return fail(fmt.Errorf("asset is %d bytes, limit is %d", info.Size(), maxBytes))
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res.Success = true
	res.Content = string(data)
	res.Stats.Lines = countLines(data)
	return res
}

// readPDF reports page count instead of inlining binary content.
func (r *Reader) readPDF(full string, res ReadResult, fail func(error) ReadResult) ReadResult {
	f, err := os.Open(full)
	if err != nil {
		return fail(err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(f, conf)
	if err != nil {
		return fail(fmt.Errorf("failed to get page count: %w", err))
	}

	res.Success = true
	res.Stats.Pages = pages
	res.Content = fmt.Sprintf("[PDF document %s: %d pages, %d bytes]", filepath.Base(full), pages, res.Stats.Bytes)
	res.Stats.Lines = 1
	return res
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte("\n"))
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
