// Package assets downloads the images referenced by an extracted page's
// Markdown rendering, deduplicates them by content hash, and rewrites the
// Markdown to point at the local copies. Missing assets are reported, not
// fatal: a page is still stored even if every image fails to download.
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oakmoss/crawler/internal/failure"
	"github.com/oakmoss/crawler/internal/hashutil"
	"github.com/oakmoss/crawler/internal/retry"
)

var imageRef = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)

// Config tunes where assets land and how large one is allowed to be.
type Config struct {
	OutputDir    string
	MaxAssetSize int64
	HashAlgo     hashutil.HashAlgo
	UserAgent    string
}

func (c Config) withDefaults() Config {
	if c.MaxAssetSize <= 0 {
		c.MaxAssetSize = 10 << 20 // 10MiB
	}
	if c.HashAlgo == "" {
		c.HashAlgo = hashutil.HashAlgoBLAKE3
	}
	return c
}

// Result reports what Resolve did to one page's Markdown.
type Result struct {
	Markdown      []byte
	Downloaded    int
	Deduplicated  int
	Missing       map[string]error
}

type fetchError struct {
	msg       string
	retryable bool
}

func (e *fetchError) Error() string                   { return e.msg }
func (e *fetchError) Severity() failure.Severity {
	if e.retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
func (e *fetchError) IsRetryable() bool { return e.retryable }

// Resolver downloads and deduplicates image assets across an entire
// crawl session; hashToPath is shared so the same image referenced from
// multiple pages is only ever written once.
type Resolver struct {
	cfg        Config
	httpClient *http.Client
	retryParam retry.RetryParam

	hashToPath map[string]string
}

func New(cfg Config, httpClient *http.Client, retryParam retry.RetryParam) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Resolver{
		cfg:        cfg.withDefaults(),
		httpClient: httpClient,
		retryParam: retryParam,
		hashToPath: make(map[string]string),
	}
}

// Resolve downloads every image referenced in markdown, relative to
// pageURL, and returns a rewritten copy pointing at local paths.
func (r *Resolver) Resolve(ctx context.Context, pageURL *url.URL, markdown []byte) Result {
	result := Result{Missing: make(map[string]error)}
	localByRaw := make(map[string]string)

	for _, match := range imageRef.FindAllStringSubmatch(string(markdown), -1) {
		raw := match[2]
		resolved, err := resolveAgainst(pageURL, raw)
		if err != nil {
			result.Missing[raw] = err
			continue
		}

		localPath, downloaded, err := r.fetchOne(ctx, resolved)
		if err != nil {
			result.Missing[raw] = err
			continue
		}
		if downloaded {
			result.Downloaded++
		} else {
			result.Deduplicated++
		}
		localByRaw[raw] = localPath
	}

	result.Markdown = rewrite(markdown, localByRaw)
	return result
}

func resolveAgainst(base *url.URL, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("unparseable asset url %q: %w", raw, err)
	}
	if base == nil {
		return u, nil
	}
	return base.ResolveReference(u), nil
}

// fetchOne downloads and writes a single asset, returning whether a new
// file was actually written (false means content-hash deduplicated).
func (r *Resolver) fetchOne(ctx context.Context, assetURL *url.URL) (string, bool, error) {
	key := assetURL.String()

	fetchResult := retry.Retry(r.retryParam, func() ([]byte, failure.ClassifiedError) {
		return r.download(ctx, assetURL)
	})
	if fetchResult.Err() != nil {
		return "", false, fetchResult.Err()
	}

	data := fetchResult.Value()
	hash, err := hashutil.HashBytes(data, r.cfg.HashAlgo)
	if err != nil {
		return "", false, err
	}

	if existing, ok := r.hashToPath[hash]; ok {
		return existing, false, nil
	}

	localPath := assetPath(assetURL.Path, hash)
	fullPath := filepath.Join(r.cfg.OutputDir, localPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", false, err
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", false, err
	}

	r.hashToPath[hash] = localPath
	return localPath, true, nil
}

func (r *Resolver) download(ctx context.Context, assetURL *url.URL) ([]byte, failure.ClassifiedError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL.String(), nil)
	if err != nil {
		return nil, &fetchError{msg: err.Error(), retryable: false}
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &fetchError{msg: err.Error(), retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &fetchError{msg: fmt.Sprintf("status %d", resp.StatusCode), retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &fetchError{msg: fmt.Sprintf("status %d", resp.StatusCode), retryable: false}
	}

	limited := io.LimitReader(resp.Body, r.cfg.MaxAssetSize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &fetchError{msg: err.Error(), retryable: true}
	}
	if int64(len(body)) > r.cfg.MaxAssetSize {
		return nil, &fetchError{msg: "asset exceeds max size", retryable: false}
	}
	return body, nil
}

func assetPath(originalPath, hash string) string {
	base := filepath.Base(originalPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	ext := filepath.Ext(base)
	name = sanitizeName(name)
	if name == "" {
		name = "asset"
	}
	short := hash
	if len(short) > 7 {
		short = short[:7]
	}
	return filepath.Join("assets", "images", name+"-"+short+ext)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func rewrite(markdown []byte, localByRaw map[string]string) []byte {
	if len(localByRaw) == 0 {
		return markdown
	}
	return []byte(imageRef.ReplaceAllStringFunc(string(markdown), func(match string) string {
		sub := imageRef.FindStringSubmatch(match)
		if len(sub) < 3 {
			return match
		}
		if local, ok := localByRaw[sub[2]]; ok {
			return "![" + sub[1] + "](" + local + ")"
		}
		return match
	}))
}
