package storagesink

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
	jsoniter "github.com/json-iterator/go"
	"github.com/oakmoss/crawler/internal/fileutil"
	"github.com/oakmoss/crawler/internal/hashutil"
)

var sinkJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Format selects the on-disk encoding the default Sink implementation
// writes. FormatJSON writes the same one-object-per-line records as
// FormatNDJSON; it does not wrap them in a JSON array.
type Format string

const (
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
	FormatCSV    Format = "csv"
)

var csvHeader = []string{"url", "title", "word_count", "language", "status", "content_type", "content_length", "response_time_ms", "depth", "parent", "session_id", "timestamp"}

// Config controls the default Sink's file layout.
type Config struct {
	Dir          string
	Format       Format
	MaxFileBytes int64
	Compress     bool

	// RenderPreview, if true, additionally renders each stored result's
	// Markdown field to a standalone HTML file under PreviewDir (or
	// Dir/"previews" if PreviewDir is unset), for eyeballing a crawl's
	// output without a Markdown viewer. Results with no Markdown are
	// skipped silently.
	RenderPreview bool
	PreviewDir    string
}

func (c Config) withDefaults() Config {
	if c.Format == "" {
		c.Format = FormatNDJSON
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 64 << 20 // 64MiB
	}
	if c.RenderPreview && c.PreviewDir == "" {
		c.PreviewDir = filepath.Join(c.Dir, "previews")
	}
	return c
}

// Interface is the pluggable storage sink contract from the external
// interfaces section: store, store_batch, load, analytics.
type Interface interface {
	Store(result StoredCrawlResult) error
	StoreBatch(results []StoredCrawlResult) error
	Load(filter Filter) ([]StoredCrawlResult, error)
	Analytics() Analytics
}

// Sink is the default file-backed Interface implementation. It keeps an
// in-memory index alongside the on-disk rotated files so Load/Analytics
// don't need to re-parse prior rotations.
type Sink struct {
	cfg Config

	mu          sync.Mutex
	file        *os.File
	writer      io.WriteCloser
	csvWriter   *csv.Writer
	bytesInFile int64
	rotation    int
	wroteHeader bool

	indexMu sync.Mutex
	index   []StoredCrawlResult
}

func New(cfg Config) (*Sink, error) {
	cfg = cfg.withDefaults()
	if err := fileutil.EnsureDir(cfg.Dir); err != nil {
		return nil, err
	}
	if cfg.RenderPreview {
		if err := fileutil.EnsureDir(cfg.PreviewDir); err != nil {
			return nil, err
		}
	}
	s := &Sink{cfg: cfg}
	if err := s.openNewFile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) openNewFile() error {
	if s.writer != nil {
		s.writer.Close()
	}
	ext := string(s.cfg.Format)
	if s.cfg.Compress {
		ext += ".gz"
	}
	path := filepath.Join(s.cfg.Dir, fmt.Sprintf("results-%04d.%s", s.rotation, ext))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Path: path}
	}
	s.file = f
	s.rotation++
	s.bytesInFile = 0
	s.wroteHeader = false

	var w io.WriteCloser = f
	if s.cfg.Compress {
		w = gzip.NewWriter(f)
	}
	s.writer = w
	if s.cfg.Format == FormatCSV {
		s.csvWriter = csv.NewWriter(w)
	}
	return nil
}

func (s *Sink) rotateIfNeeded(nextWriteSize int64) error {
	if s.bytesInFile+nextWriteSize <= s.cfg.MaxFileBytes {
		return nil
	}
	return s.openNewFile()
}

// Store persists a single result.
func (s *Sink) Store(result StoredCrawlResult) error {
	return s.StoreBatch([]StoredCrawlResult{result})
}

// StoreBatch persists multiple results in one call, sharing rotation
// decisions across the batch.
func (s *Sink) StoreBatch(results []StoredCrawlResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range results {
		if err := s.writeOne(r); err != nil {
			return err
		}
		if s.cfg.RenderPreview && r.Markdown != "" {
			if err := s.writePreview(r); err != nil {
				return err
			}
		}
	}
	if s.cfg.Format == FormatCSV {
		s.csvWriter.Flush()
		if err := s.csvWriter.Error(); err != nil {
			return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
	}

	s.indexMu.Lock()
	s.index = append(s.index, results...)
	s.indexMu.Unlock()
	return nil
}

func (s *Sink) writeOne(r StoredCrawlResult) error {
	switch s.cfg.Format {
	case FormatCSV:
		return s.writeCSVRow(r)
	case FormatJSON, FormatNDJSON:
		return s.writeJSONLine(r)
	default:
		return &StorageError{Message: string(s.cfg.Format), Cause: ErrCauseUnsupported}
	}
}

func (s *Sink) writeJSONLine(r StoredCrawlResult) error {
	encoded, err := sinkJSON.Marshal(r)
	if err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseEncodeFailure}
	}
	encoded = append(encoded, '\n')
	if err := s.rotateIfNeeded(int64(len(encoded))); err != nil {
		return err
	}
	n, err := s.writer.Write(encoded)
	s.bytesInFile += int64(n)
	if err != nil {
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	return nil
}

func (s *Sink) writeCSVRow(r StoredCrawlResult) error {
	if err := s.rotateIfNeeded(256); err != nil {
		return err
	}
	if !s.wroteHeader {
		if err := s.csvWriter.Write(csvHeader); err != nil {
			return &StorageError{Message: err.Error(), Cause: ErrCauseWriteFailure}
		}
		s.wroteHeader = true
	}
	row := []string{
		r.URL, r.Title, strconv.Itoa(r.WordCount), r.Language,
		strconv.Itoa(r.Metadata.Status), r.Metadata.ContentType,
		strconv.FormatInt(r.Metadata.ContentLength, 10),
		strconv.FormatInt(r.Metadata.ResponseTimeMS, 10),
		strconv.Itoa(r.Metadata.Depth), r.Metadata.Parent, r.Metadata.SessionID,
		r.Timestamp.Format(time.RFC3339),
	}
	if err := s.csvWriter.Write(row); err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseWriteFailure}
	}
	s.bytesInFile += 256
	return nil
}

// writePreview renders r.Markdown to HTML and writes it under PreviewDir,
// named by a content hash of the URL so repeated crawls of the same page
// overwrite rather than accumulate.
func (s *Sink) writePreview(r StoredCrawlResult) error {
	name, err := hashutil.HashBytes([]byte(r.URL), hashutil.HashAlgoBLAKE3)
	if err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseEncodeFailure}
	}
	rendered := markdown.ToHTML([]byte(r.Markdown), nil, nil)
	path := filepath.Join(s.cfg.PreviewDir, name+".html")
	if err := os.WriteFile(path, rendered, 0644); err != nil {
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Path: path}
	}
	return nil
}

// Load returns every stored result matching filter. An empty Filter
// matches everything.
func (s *Sink) Load(filter Filter) ([]StoredCrawlResult, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	var out []StoredCrawlResult
	for _, r := range s.index {
		if filter.Host != "" && hostOf(r.URL) != filter.Host {
			continue
		}
		if filter.Language != "" && r.Language != filter.Language {
			continue
		}
		if !filter.Since.IsZero() && r.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Analytics summarizes everything stored so far.
func (s *Sink) Analytics() Analytics {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	a := Analytics{ByLanguage: map[string]int{}}
	var totalWords int64
	for _, r := range s.index {
		a.TotalStored++
		a.TotalBytes += r.Metadata.ContentLength
		a.ByLanguage[r.Language]++
		totalWords += int64(r.WordCount)
	}
	if a.TotalStored > 0 {
		a.AverageWordCount = float64(totalWords) / float64(a.TotalStored)
	}
	return a
}

// Close flushes and closes the active file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Format == FormatCSV && s.csvWriter != nil {
		s.csvWriter.Flush()
	}
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			return err
		}
	}
	if s.cfg.Compress {
		return s.file.Close()
	}
	return nil
}

func hostOf(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == '/' && i+1 < len(rawURL) && rawURL[i+1] == '/' {
			rest := rawURL[i+2:]
			for j := 0; j < len(rest); j++ {
				if rest[j] == '/' {
					return rest[:j]
				}
			}
			return rest
		}
	}
	return rawURL
}

var _ Interface = (*Sink)(nil)
