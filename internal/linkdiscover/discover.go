// Package linkdiscover implements C8: extraction, classification, filtering
// and priority scoring of outbound links found on a fetched page.
package linkdiscover

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dlclark/regexp2"
	"github.com/oakmoss/crawler/internal/urlnorm"
)

// TaskPriority mirrors queue.Priority's five-level scale; higher runs
// first. Values share their ordinals with their queue.Priority
// counterparts; fetchpipeline.queuePriorityFor converts between the two
// with an explicit switch.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// Link is a discovered, classified, scored candidate.
type Link struct {
	URL      string
	Class    urlnorm.Class
	Score    int
	Priority TaskPriority
}

// ScoringConfig carries the configurable deltas from spec.md 4.8.
type ScoringConfig struct {
	BasePriority        int
	InternalBonus       int
	DocumentBonus       int
	AnchorTextBonus     int
	ShallowPathBonus    int
	PriorityPatternBonus int
	AssetPenalty        int
	MediaPenalty        int
	DeepPathPenalty     int
	QueryPenalty        int
	FragmentPenalty     int
	ShallowPathDepth    int
	DeepPathDepth       int
	CriticalThreshold   int
	HighThreshold       int
	MediumThreshold     int
	LowThreshold        int
}

func (c ScoringConfig) withDefaults() ScoringConfig {
	if c.BasePriority == 0 {
		c.BasePriority = 50
	}
	if c.InternalBonus == 0 {
		c.InternalBonus = 10
	}
	if c.DocumentBonus == 0 {
		c.DocumentBonus = 5
	}
	if c.AnchorTextBonus == 0 {
		c.AnchorTextBonus = 5
	}
	if c.ShallowPathBonus == 0 {
		c.ShallowPathBonus = 5
	}
	if c.PriorityPatternBonus == 0 {
		c.PriorityPatternBonus = 15
	}
	if c.AssetPenalty == 0 {
		c.AssetPenalty = 20
	}
	if c.MediaPenalty == 0 {
		c.MediaPenalty = 20
	}
	if c.DeepPathPenalty == 0 {
		c.DeepPathPenalty = 10
	}
	if c.QueryPenalty == 0 {
		c.QueryPenalty = 5
	}
	if c.FragmentPenalty == 0 {
		c.FragmentPenalty = 5
	}
	if c.ShallowPathDepth == 0 {
		c.ShallowPathDepth = 2
	}
	if c.DeepPathDepth == 0 {
		c.DeepPathDepth = 5
	}
	if c.CriticalThreshold == 0 {
		c.CriticalThreshold = 90
	}
	if c.HighThreshold == 0 {
		c.HighThreshold = 70
	}
	if c.MediumThreshold == 0 {
		c.MediumThreshold = 55
	}
	if c.LowThreshold == 0 {
		c.LowThreshold = 40
	}
	return c
}

// Config bundles filtering and scoring options for Discover.
type Config struct {
	BaseHost             string
	Allowlist            map[string]struct{}
	AllowExternal        bool
	AllowAssetsAndMedia  bool
	MaxDepth             int
	CurrentDepth         int
	IncludePattern       *regexp2.Regexp
	ExcludePattern       *regexp2.Regexp
	MaxURLLength         int
	PriorityPatterns     []*regexp2.Regexp
	URLNorm              urlnorm.Config
	Scoring              ScoringConfig
}

// candidate pairs a raw discovered URL with the anchor text it came from (if
// any), for the anchor-text scoring bonus.
type candidate struct {
	raw        string
	anchorText string
}

// Discover extracts, normalizes, classifies, filters and scores every
// outbound link reachable from an already-parsed document, resolved
// against baseURL.
func Discover(doc *goquery.Document, baseURL *url.URL, cfg Config) []Link {
	cfg.Scoring = cfg.Scoring.withDefaults()
	compiled := urlnorm.Compile(cfg.URLNorm)

	candidates := collectCandidates(doc)

	links := make([]Link, 0, len(candidates))
	for _, c := range candidates {
		resolved, ok := resolve(baseURL, c.raw)
		if !ok {
			continue
		}

		normalized, reason := urlnorm.NormalizeCompiled(resolved, compiled)
		if reason != urlnorm.SkipNone {
			continue
		}

		parsed, err := url.Parse(normalized)
		if err != nil {
			continue
		}

		class := urlnorm.Classify(parsed.Host, cfg.BaseHost, cfg.Allowlist)
		class = urlnorm.ClassifyExtension(class, parsed.Path)

		if !passesFilters(normalized, class, cfg) {
			continue
		}

		score := score(parsed, class, c.anchorText, cfg.PriorityPatterns, cfg.Scoring)
		links = append(links, Link{
			URL:      normalized,
			Class:    class,
			Score:    score,
			Priority: priorityFor(score, cfg.Scoring),
		})
	}

	stableSortByScoreDesc(links)
	return links
}

func collectCandidates(doc *goquery.Document) []candidate {
	var out []candidate

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out = append(out, candidate{raw: href, anchorText: strings.TrimSpace(s.Text())})
		}
	})
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			out = append(out, candidate{raw: src})
		}
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out = append(out, candidate{raw: href})
		}
	})

	return out
}

func resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "mailto:") || strings.HasPrefix(raw, "data:") {
		return "", false
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

func passesFilters(rawURL string, class urlnorm.Class, cfg Config) bool {
	if class == urlnorm.ClassExternal && !cfg.AllowExternal {
		return false
	}
	if (class == urlnorm.ClassAsset || class == urlnorm.ClassMedia) && !cfg.AllowAssetsAndMedia {
		return false
	}
	if cfg.MaxDepth > 0 && cfg.CurrentDepth+1 > cfg.MaxDepth {
		return false
	}
	if cfg.MaxURLLength > 0 && len(rawURL) > cfg.MaxURLLength {
		return false
	}
	if cfg.ExcludePattern != nil {
		if matched, _ := cfg.ExcludePattern.MatchString(rawURL); matched {
			return false
		}
	}
	if cfg.IncludePattern != nil {
		matched, _ := cfg.IncludePattern.MatchString(rawURL)
		if !matched {
			return false
		}
	}
	return true
}

func score(parsed *url.URL, class urlnorm.Class, anchorText string, priorityPatterns []*regexp2.Regexp, s ScoringConfig) int {
	total := s.BasePriority

	switch class {
	case urlnorm.ClassInternal, urlnorm.ClassSubdomain:
		total += s.InternalBonus
	case urlnorm.ClassAsset:
		total -= s.AssetPenalty
	case urlnorm.ClassMedia:
		total -= s.MediaPenalty
	}
	if class == urlnorm.ClassDocument {
		total += s.DocumentBonus
	}
	if strings.TrimSpace(anchorText) != "" {
		total += s.AnchorTextBonus
	}

	depth := pathDepth(parsed.Path)
	if depth <= s.ShallowPathDepth {
		total += s.ShallowPathBonus
	}
	if depth >= s.DeepPathDepth {
		total -= s.DeepPathPenalty
	}
	if parsed.RawQuery != "" {
		total -= s.QueryPenalty
	}
	if parsed.Fragment != "" {
		total -= s.FragmentPenalty
	}

	for _, pattern := range priorityPatterns {
		if matched, _ := pattern.MatchString(parsed.String()); matched {
			total += s.PriorityPatternBonus
			break
		}
	}

	return total
}

func pathDepth(p string) int {
	p = strings.Trim(p, "/")
	if p == "" {
		return 0
	}
	return len(strings.Split(p, "/"))
}

func priorityFor(score int, s ScoringConfig) TaskPriority {
	switch {
	case score >= s.CriticalThreshold:
		return PriorityCritical
	case score >= s.HighThreshold:
		return PriorityHigh
	case score >= s.MediumThreshold:
		return PriorityMedium
	case score < s.LowThreshold:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// stableSortByScoreDesc sorts links by Score descending, preserving relative
// order of equal scores.
func stableSortByScoreDesc(links []Link) {
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].Score > links[j].Score
	})
}
