// Package fetchpipeline implements C10: the per-task pipeline that chains
// dedup, robots, rate-limiting, DNS warming, fetch, extraction and link
// discovery for a single dequeued task.
package fetchpipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/oakmoss/crawler/internal/assets"
	"github.com/oakmoss/crawler/internal/dnscache"
	"github.com/oakmoss/crawler/internal/extract"
	"github.com/oakmoss/crawler/internal/httppool"
	"github.com/oakmoss/crawler/internal/linkdiscover"
	"github.com/oakmoss/crawler/internal/queue"
	"github.com/oakmoss/crawler/internal/robots"
	"github.com/oakmoss/crawler/internal/visited"
)

// Outcome classifies how a task's pipeline run concluded, for metrics and
// the event log.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeAlreadyVisited Outcome = "already_visited"
	OutcomeRobotsBlocked  Outcome = "robots_blocked"
	OutcomeHTTPError      Outcome = "http_error"
	OutcomeNetworkError   Outcome = "network_error"
	OutcomeExtractSkipped Outcome = "extract_skipped"
)

// Result is the TaskResult emitted per spec.md 4.10 step 9.
type Result struct {
	URL         string
	Outcome     Outcome
	StatusCode  int
	Text        string
	Markdown    string
	WordCount   int
	Language    string
	Keywords    []string
	Duration    time.Duration
	DiscoveredLinks int
	Err         string

	// Retryable classifies an HTTP/network failure per spec.md 7: true iff
	// the status code is 408, 429 or in 500..599, or the failure never
	// reached the server (a transport-level error with no status code).
	// Meaningless when Outcome != OutcomeHTTPError/OutcomeNetworkError; C9's
	// Fail uses it to skip the retry budget entirely for non-retryable
	// causes like a bare 404/403/410.
	Retryable bool
}

// Pipeline bundles the C1-C9 collaborators a single task run needs. Bloom,
// Robots, RateLimit, HTTP and Extract are required; DNS, Assets, Queue and
// LinkConfig may be nil, and the step that uses each is then skipped.
type Pipeline struct {
	Bloom     *visited.BloomVisitedSet
	Robots    *robots.Cache
	RateLimit RateWaiter
	DNS       *dnscache.Cache
	HTTP      *httppool.Pool
	Extract   *extract.Extractor
	Queue     *queue.Queue

	// Assets, if set, downloads and localizes the images referenced in a
	// successfully extracted page's Markdown rendering.
	Assets *assets.Resolver

	LinkConfig func(task *queue.Task) linkdiscover.Config
	UserAgent  string
}

// RateWaiter is the subset of *ratelimit.Limiter the pipeline depends on,
// named here so tests can substitute a no-op waiter.
type RateWaiter interface {
	Wait(host string)
}

// Run executes the full pipeline for a dequeued task. It is
// cancellation-safe: the only effects that can survive a cancelled ctx are
// the bloom insertion and the rate-limiter's timestamp recording, both of
// which are monotone and safe to have happened even if nothing downstream
// did.
func (p *Pipeline) Run(ctx context.Context, task *queue.Task) Result {
	start := time.Now()
	result := Result{URL: task.URL}

	if p.Bloom.TestAndInsert(task.URL) {
		result.Outcome = OutcomeAlreadyVisited
		result.Duration = time.Since(start)
		return result
	}

	parsed, err := url.Parse(task.URL)
	if err != nil {
		result.Outcome = OutcomeNetworkError
		result.Err = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	if !p.Robots.IsAllowed(ctx, parsed) {
		result.Outcome = OutcomeRobotsBlocked
		result.Duration = time.Since(start)
		return result
	}

	p.RateLimit.Wait(parsed.Host)

	if p.DNS != nil {
		_, _ = p.DNS.Resolve(ctx, parsed.Hostname())
	}

	if err := ctx.Err(); err != nil {
		result.Outcome = OutcomeNetworkError
		result.Retryable = true
		result.Err = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	body, statusCode, fetchErr := p.fetch(ctx, parsed)
	result.StatusCode = statusCode
	if fetchErr != nil {
		result.Outcome, result.Retryable = classifyFetchError(statusCode)
		result.Err = fetchErr.Error()
		result.Duration = time.Since(start)
		return result
	}

	extracted, extractErr := p.Extract.Extract(body)
	if extractErr != nil {
		result.Outcome = OutcomeExtractSkipped
		result.Err = extractErr.Error()
		result.Duration = time.Since(start)
		return result
	}
	result.Text = extracted.Text
	result.Markdown = extracted.Markdown
	result.WordCount = extracted.WordCount
	result.Language = extracted.Language
	result.Keywords = extracted.Keywords

	if p.Assets != nil {
		assetResult := p.Assets.Resolve(ctx, parsed, []byte(extracted.Markdown))
		result.Markdown = string(assetResult.Markdown)
	}

	if p.Queue != nil && p.LinkConfig != nil {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body))); err == nil {
			links := linkdiscover.Discover(doc, parsed, p.LinkConfig(task))
			result.DiscoveredLinks = p.enqueueDiscovered(task, links)
		}
	}

	result.Outcome = OutcomeSuccess
	result.Duration = time.Since(start)
	return result
}

func (p *Pipeline) enqueueDiscovered(parent *queue.Task, links []linkdiscover.Link) int {
	enqueued := 0
	for _, link := range links {
		id := queue.NewTaskID(link.URL, parent.Depth+1)
		t := &queue.Task{
			TaskID:     id,
			URL:        link.URL,
			Priority:   queuePriorityFor(link.Priority),
			Depth:      parent.Depth + 1,
			MaxRetries: parent.MaxRetries,
		}
		if p.Queue.Enqueue(t) == nil {
			enqueued++
		}
	}
	return enqueued
}

// queuePriorityFor maps a linkdiscover.TaskPriority to its queue.Priority
// counterpart via an explicit switch, not a raw int cast: the two enums
// happen to share ordinal values today, but a cast would silently break if
// either scale is ever reordered or extended independently of the other.
func queuePriorityFor(p linkdiscover.TaskPriority) queue.Priority {
	switch p {
	case linkdiscover.PriorityCritical:
		return queue.PriorityCritical
	case linkdiscover.PriorityHigh:
		return queue.PriorityHigh
	case linkdiscover.PriorityMedium:
		return queue.PriorityMedium
	case linkdiscover.PriorityLow:
		return queue.PriorityLow
	default:
		return queue.PriorityNormal
	}
}

func (p *Pipeline) fetch(ctx context.Context, target *url.URL) ([]byte, int, error) {
	client := p.HTTP.Client()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	for k, values := range p.HTTP.Headers() {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	p.HTTP.LogTransferred(target.String(), int64(len(body)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp.StatusCode, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

// classifyFetchError maps a failed fetch to its Outcome and retry
// eligibility per spec.md 7: HttpError(code) is retryable iff
// code ∈ {408, 429, 500..599}. A statusCode of 0 means the request never
// got a response (DNS/connect/timeout/context failure); those are
// transport-transient and treated as retryable.
func classifyFetchError(statusCode int) (Outcome, bool) {
	if statusCode == 0 {
		return OutcomeNetworkError, true
	}
	retryable := statusCode == 408 || statusCode == 429 || (statusCode >= 500 && statusCode <= 599)
	return OutcomeHTTPError, retryable
}
