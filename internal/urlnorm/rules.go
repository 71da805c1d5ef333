package urlnorm

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	whatwgurl "github.com/nlnwa/whatwg-url/url"
)

// Config is the subset of the engine-wide configuration this package needs.
// It is intentionally duplicated (rather than importing internal/config)
// so urlnorm stays a leaf package with no dependents upward in the graph.
type Config struct {
	AvoidExtensions []string
	BlockedDomains  []string
	AvoidPathGlobs  []string
}

// compiled holds a Config's patterns compiled once by Compile; reusing it
// avoids recompiling on every Normalize call inside a hot crawl loop.
type compiled struct {
	extensions map[string]struct{}
	domains    []string
	avoidPaths []glob.Glob
}

// Compile pre-compiles a Config's glob patterns. Callers that normalize many
// URLs against the same Config should Compile once and reuse it; Normalize
// also accepts a raw Config and compiles on the fly for convenience.
func Compile(cfg Config) compiled {
	exts := make(map[string]struct{}, len(cfg.AvoidExtensions))
	for _, e := range cfg.AvoidExtensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	globs := make([]glob.Glob, 0, len(cfg.AvoidPathGlobs))
	for _, pattern := range cfg.AvoidPathGlobs {
		if g, err := glob.Compile(pattern); err == nil {
			globs = append(globs, g)
		}
	}
	return compiled{extensions: exts, domains: cfg.BlockedDomains, avoidPaths: globs}
}

// whatwgParser performs a WHATWG-URL-Standard-conformant parse before the
// detailed, spec-specific normalization below runs. It rejects URLs that no
// browser would ever consider well-formed (e.g. malformed percent-encoding)
// ahead of our own scheme/length checks.
var whatwgParser = whatwgurl.NewParser()

// Normalize parses, validates and normalizes a candidate URL string.
// reason == SkipNone indicates success; normalized is then the canonical
// string form satisfying the idempotence invariant:
// Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string, cfg Config) (normalized string, reason SkipReason) {
	return NormalizeCompiled(raw, Compile(cfg))
}

// NormalizeCompiled is the hot-path entry point taking a pre-compiled
// Config; see Compile.
func NormalizeCompiled(raw string, c compiled) (string, SkipReason) {
	if len(raw) > MaxURLLength {
		return "", SkipTooLong
	}

	// WHATWG pre-validation: reject anything that isn't a spec-conformant
	// absolute URL before we do our own, narrower parsing.
	if _, err := whatwgParser.Parse(raw); err != nil {
		return "", SkipUnparseable
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", SkipUnparseable
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", SkipUnsupportedScheme
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	for _, blocked := range c.domains {
		if blocked != "" && strings.Contains(u.Host, strings.ToLower(blocked)) {
			return "", SkipBlockedDomain
		}
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if ext != "" {
		if _, blocked := c.extensions[ext]; blocked {
			return "", SkipBlockedExtension
		}
	}

	for _, g := range c.avoidPaths {
		if g.Match(u.Path) {
			return "", SkipAvoidPath
		}
	}

	u.RawQuery = stripAndSortQuery(u.RawQuery)

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	result := u.String()
	if len(result) > MaxURLLength {
		return "", SkipTooLong
	}
	return result, SkipNone
}

// stripAndSortQuery removes tracking parameters and returns the remaining
// parameters re-encoded with a stable, lexicographically sorted key order so
// that query-parameter permutations normalize identically.
func stripAndSortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return ""
	}
	for key := range values {
		lower := strings.ToLower(key)
		if _, exact := trackingParamExact[lower]; exact {
			delete(values, key)
			continue
		}
		for _, prefix := range trackingParamPrefixes {
			if strings.HasPrefix(lower, prefix) {
				delete(values, key)
				break
			}
		}
	}
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		vals := values[k]
		sort.Strings(vals)
		for j, v := range vals {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Classify determines the relationship of link (already normalized) to
// baseHost, following the glossary's string-suffix definition of
// "registrable host" (no eTLD+1 computation).
func Classify(linkHost, baseHost string, allowlist map[string]struct{}) Class {
	linkHost = strings.ToLower(linkHost)
	baseHost = strings.ToLower(baseHost)
	if linkHost == baseHost {
		return ClassInternal
	}
	if _, ok := allowlist[linkHost]; ok {
		return ClassInternal
	}
	if strings.HasSuffix(linkHost, "."+baseHost) {
		return ClassSubdomain
	}
	return ClassExternal
}

var assetExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".svg": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".ico": {},
}

var resourceExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
}

var mediaExtensions = map[string]struct{}{
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {}, ".webm": {}, ".ogg": {},
}

var documentExtensions = map[string]struct{}{
	".html": {}, ".htm": {}, ".xhtml": {}, "": {},
}

// ClassifyExtension refines a Class derived from host relationship into the
// Asset/Resource/Media/Document families based on the path extension, as
// described in spec.md section 4.8. Internal/Subdomain/External classes are
// left untouched if the extension does not match a known family.
func ClassifyExtension(base Class, urlPath string) Class {
	ext := strings.ToLower(path.Ext(urlPath))
	switch {
	case hasExt(assetExtensions, ext):
		return ClassAsset
	case hasExt(resourceExtensions, ext):
		return ClassResource
	case hasExt(mediaExtensions, ext):
		return ClassMedia
	case hasExt(documentExtensions, ext):
		if base == ClassInternal || base == ClassSubdomain {
			return ClassDocument
		}
		return base
	default:
		return base
	}
}

func hasExt(set map[string]struct{}, ext string) bool {
	_, ok := set[ext]
	return ok
}
