package storagesink

import (
	"time"

	"github.com/oakmoss/crawler/internal/fetchpipeline"
)

// PipelineResultSink adapts a fetchpipeline.Result into a StoredCrawlResult
// and stores it. SessionID is stamped on every record it stores.
type PipelineResultSink struct {
	Sink      *Sink
	SessionID string
}

// Handle implements session.ResultSink.
func (s *PipelineResultSink) Handle(result fetchpipeline.Result) {
	if result.Outcome != fetchpipeline.OutcomeSuccess {
		return
	}
	_ = s.Sink.Store(StoredCrawlResult{
		URL:       result.URL,
		Text:      result.Text,
		Markdown:  result.Markdown,
		WordCount: result.WordCount,
		Language:  result.Language,
		Metadata: ResultMetadata{
			Status:         result.StatusCode,
			ContentLength:  int64(len(result.Text)),
			ResponseTimeMS: result.Duration.Milliseconds(),
			SessionID:      s.SessionID,
		},
		Timestamp: time.Now(),
	})
}
