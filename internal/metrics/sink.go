package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// CrawlEvent is a single structured log line: one per fetch, error, or
// lifecycle transition. Sinks decide how to render it.
type CrawlEvent struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	URL     string    `json:"url,omitempty"`
	Host    string    `json:"host,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Status  int       `json:"status,omitempty"`
	Bytes   int64     `json:"bytes,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Sink receives emitted events. Implementations must not block the
// emitting goroutine for long; a slow sink should buffer internally.
type Sink interface {
	Emit(e CrawlEvent)
}

// StdoutSink writes one truncated line per event, sized to the detected
// terminal width (falling back to 80 columns when not a TTY).
type StdoutSink struct {
	mu    sync.Mutex
	out   io.Writer
	width int
}

// NewStdoutSink detects the current terminal width once at construction;
// callers running long sessions in a resizable terminal should recreate it
// if they want the width to track resizes.
func NewStdoutSink(out io.Writer) *StdoutSink {
	width := 80
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	return &StdoutSink{out: out, width: width}
}

func (s *StdoutSink) Emit(e CrawlEvent) {
	line := fmt.Sprintf("%s %-7s %-16s %3d %s", e.Time.Format("15:04:05"), e.Kind, e.Outcome, e.Status, e.URL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if runewidth.StringWidth(line) > s.width {
		line = runewidth.Truncate(line, s.width-1, "…")
	}
	fmt.Fprintln(s.out, line)
}

// FileSink writes one JSON object per line (newline-delimited), suited to
// being tailed or fed into log aggregation.
type FileSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{enc: json.NewEncoder(w)}
}

func (s *FileSink) Emit(e CrawlEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(e)
}
