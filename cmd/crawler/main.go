// Command crawler is the CLI control surface binding: it parses flags into
// a WebCrawlerConfig, starts a single session through the orchestrator's
// Manager, and prints a status line until the crawl finishes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oakmoss/crawler/internal/assets"
	"github.com/oakmoss/crawler/internal/build"
	"github.com/oakmoss/crawler/internal/config"
	"github.com/oakmoss/crawler/internal/dnscache"
	"github.com/oakmoss/crawler/internal/extract"
	"github.com/oakmoss/crawler/internal/fetchpipeline"
	"github.com/oakmoss/crawler/internal/httppool"
	"github.com/oakmoss/crawler/internal/linkdiscover"
	"github.com/oakmoss/crawler/internal/metrics"
	"github.com/oakmoss/crawler/internal/queue"
	"github.com/oakmoss/crawler/internal/ratelimit"
	"github.com/oakmoss/crawler/internal/retry"
	"github.com/oakmoss/crawler/internal/robots"
	"github.com/oakmoss/crawler/internal/session"
	"github.com/oakmoss/crawler/internal/storagesink"
	"github.com/oakmoss/crawler/internal/timeutil"
	"github.com/oakmoss/crawler/internal/urlnorm"
	"github.com/oakmoss/crawler/internal/visited"
)

const (
	exitSuccess         = 0
	exitValidationError = 2
	exitSessionFailure  = 3
	exitIOError         = 4
)

var (
	seedURLs          []string
	acceptedLanguages []string
	userAgent         string
	maxConcurrent     int
	maxDepth          int
	maxTotalURLs      int
	sessionTimeout    time.Duration
	outputDir         string
	persistencePath   string
	downloadAssets    bool
	renderPreview     bool
)

var rootCmd = &cobra.Command{
	Use:   "crawler",
	Short: "A polite, concurrent web crawler.",
	Long: `crawler drives a priority task queue against a per-host rate-limited
fetch pipeline, extracting and storing page content while respecting
robots.txt and configured crawl-scope limits.`,
	RunE:    runCrawl,
	Version: build.FullVersion(),
}

func init() {
	rootCmd.Flags().StringArrayVar(&seedURLs, "seed-url", nil, "one or more starting URLs (can be repeated)")
	rootCmd.Flags().StringArrayVar(&acceptedLanguages, "accepted-language", []string{"en"}, "languages admissible post-detection")
	rootCmd.Flags().StringVar(&userAgent, "user-agent", "crawler/1.0", "default user agent (pool still randomizes per request)")
	rootCmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 10, "worker pool size")
	rootCmd.Flags().IntVar(&maxDepth, "max-depth", 5, "hard depth cap")
	rootCmd.Flags().IntVar(&maxTotalURLs, "max-total-urls", 100_000, "hard session-wide URL cap")
	rootCmd.Flags().DurationVar(&sessionTimeout, "session-timeout", time.Hour, "cancel the session after this long")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "output", "directory for stored crawl results")
	rootCmd.Flags().StringVar(&persistencePath, "persistence-path", "", "checkpoint file for queue snapshots (disabled if empty)")
	rootCmd.Flags().BoolVar(&downloadAssets, "download-assets", false, "download and localize images referenced by extracted pages")
	rootCmd.Flags().BoolVar(&renderPreview, "render-preview", false, "also render each stored page's Markdown to a standalone HTML preview file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

type sessionFailureError struct{ err error }

func (e *sessionFailureError) Error() string { return e.err.Error() }

type ioError struct{ err error }

func (e *ioError) Error() string { return e.err.Error() }

func exitCodeFor(err error) int {
	switch err.(type) {
	case *sessionFailureError:
		return exitSessionFailure
	case *ioError:
		return exitIOError
	default:
		return exitValidationError
	}
}

func runCrawl(cmd *cobra.Command, args []string) error {
	if len(seedURLs) == 0 {
		return fmt.Errorf("--seed-url is required")
	}

	defaultCfg, err := session.GetDefaultConfig(seedURLs)
	if err != nil {
		return err
	}
	cfg, err := (&defaultCfg).
		WithAcceptedLanguages(acceptedLanguages).
		WithUserAgent(userAgent).
		WithMaxConcurrent(maxConcurrent).
		WithMaxCrawlDepth(maxDepth).
		WithMaxTotalURLs(maxTotalURLs).
		WithSessionTimeout(sessionTimeout).
		WithPersistencePath(persistencePath).
		Build()
	if err != nil {
		return err
	}

	resultSink, err := storagesink.New(storagesink.Config{Dir: outputDir, Format: storagesink.FormatNDJSON, RenderPreview: renderPreview})
	if err != nil {
		return &ioError{err}
	}
	manager := session.NewManager(buildPipeline, &storagesink.PipelineResultSink{Sink: resultSink})

	req := session.CrawlRequest{Seeds: seedURLs, Config: cfg}
	if err := session.ValidateCrawlRequest(req); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := manager.StartCrawl(ctx, req)
	if err != nil {
		return &sessionFailureError{err}
	}

	fmt.Printf("session %s started\n", id)
	for {
		status, err := manager.GetCrawlStatus(id)
		if err != nil {
			return &sessionFailureError{err}
		}
		fmt.Printf("\rstate=%-10s pending=%d in_progress=%d completed=%d dead=%d",
			status.State, status.Counters.Pending, status.Counters.InProgress, status.Counters.Completed, status.Counters.Dead)

		switch status.State {
		case session.StateCompleted:
			fmt.Println()
			return nil
		case session.StateFailed:
			fmt.Println()
			return &sessionFailureError{fmt.Errorf("session %s failed", id)}
		case session.StateCancelled:
			fmt.Println()
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// buildPipeline wires C1-C9 collaborators from a WebCrawlerConfig. It is
// the PipelineFactory the Manager uses for every StartCrawl call.
func buildPipeline(cfg config.WebCrawlerConfig) (*queue.Queue, *fetchpipeline.Pipeline, *metrics.Collector, error) {
	q := queue.New(queue.Config{
		MaxQueueSize:  cfg.MaxTotalURLs(),
		MaxConcurrent: cfg.MaxConcurrent(),
		MaxRetries:    cfg.Retry().MaxAttempts,
		Backoff: queue.BackoffParam{
			BaseDelay:    time.Duration(cfg.Retry().BaseDelayMS) * time.Millisecond,
			Multiplier:   cfg.Retry().Multiplier,
			MaxDelay:     time.Duration(cfg.Retry().MaxDelayMS) * time.Millisecond,
			JitterFactor: cfg.Retry().JitterFactor,
		},
	})

	limiter := ratelimit.New(ratelimit.HostLimit{
		MaxRequests: int(cfg.DefaultRateLimit().MaxRPS),
		Window:      time.Duration(cfg.DefaultRateLimit().WindowMS) * time.Millisecond,
	})
	for host, override := range cfg.DomainRateLimits() {
		limiter.SetHostLimit(host, ratelimit.HostLimit{
			MaxRequests: int(override.MaxRPS),
			Window:      time.Duration(override.WindowMS) * time.Millisecond,
		})
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	robotsCache := robots.New(httpClient, cfg.UserAgent(), time.Hour)

	proxyURLs := make([]string, 0, len(cfg.ProxyPool()))
	for _, p := range cfg.ProxyPool() {
		proxyURLs = append(proxyURLs, p.String())
	}
	pool := httppool.New(httppool.Config{
		UserAgent:         cfg.UserAgent(),
		ProxyURLs:         proxyURLs,
		AcceptedLanguages: cfg.AcceptedLanguages(),
	}, nil)

	acceptedLangs := make(map[string]struct{}, len(cfg.AcceptedLanguages()))
	for _, lang := range cfg.AcceptedLanguages() {
		acceptedLangs[lang] = struct{}{}
	}
	extractor := extract.New(extract.Config{
		AcceptedLanguages: acceptedLangs,
		MinWordCount:      cfg.MinWordLength(),
	}, nil)

	dns := dnscache.New(time.Hour, 10_000)

	var assetResolver *assets.Resolver
	if downloadAssets {
		assetResolver = assets.New(assets.Config{
			OutputDir: outputDir,
			UserAgent: cfg.UserAgent(),
		}, httpClient, retry.NewRetryParam(
			100*time.Millisecond,
			time.Now().UnixNano(),
			cfg.Retry().MaxAttempts,
			timeutil.NewBackoffParam(
				time.Duration(cfg.Retry().BaseDelayMS)*time.Millisecond,
				cfg.Retry().Multiplier,
				time.Duration(cfg.Retry().MaxDelayMS)*time.Millisecond,
			),
		))
	}

	pipeline := &fetchpipeline.Pipeline{
		Bloom:     visited.New(cfg.MaxTotalURLs(), 0.01),
		Robots:    robotsCache,
		RateLimit: limiter,
		DNS:       dns,
		HTTP:      pool,
		Extract:   extractor,
		Queue:     q,
		Assets:    assetResolver,
		UserAgent: cfg.UserAgent(),
		LinkConfig: func(task *queue.Task) linkdiscover.Config {
			base, _ := url.Parse(task.URL)
			host := ""
			if base != nil {
				host = base.Host
			}
			return linkdiscover.Config{
				BaseHost:     host,
				MaxDepth:     cfg.MaxCrawlDepth(),
				CurrentDepth: task.Depth,
				URLNorm: urlnorm.Config{
					AvoidExtensions: cfg.AvoidURLExtensions(),
				},
			}
		},
	}

	return q, pipeline, metrics.New(10_000), nil
}
