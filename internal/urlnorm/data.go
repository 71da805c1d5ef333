// Package urlnorm implements C1: URL parsing, validation and normalization.
//
// Responsibilities
//   - Parse and WHATWG-validate candidate URL strings
//   - Lowercase host, strip fragment, strip tracking params, sort the
//     remaining query, drop a trailing slash
//   - Reject by scheme, length, blocked extension, blocked-domain substring
//     or avoid-path pattern
//
// Normalizer knows nothing about fetching, robots, or the queue. It is a
// pure, allocation-light function library over strings and url.URL.
package urlnorm

// SkipReason is a closed classification of why a candidate URL was rejected
// before ever reaching the frontier. It is observational, mirrored into
// CrawlEvent/metrics, and never retried.
type SkipReason int

const (
	SkipNone SkipReason = iota
	SkipUnsupportedScheme
	SkipTooLong
	SkipBlockedExtension
	SkipBlockedDomain
	SkipAvoidPath
	SkipUnparseable
)

func (r SkipReason) String() string {
	switch r {
	case SkipUnsupportedScheme:
		return "unsupported_scheme"
	case SkipTooLong:
		return "too_long"
	case SkipBlockedExtension:
		return "blocked_extension"
	case SkipBlockedDomain:
		return "blocked_domain"
	case SkipAvoidPath:
		return "avoid_path"
	case SkipUnparseable:
		return "unparseable"
	default:
		return "none"
	}
}

// MaxURLLength is the hard length cap from spec.md section 4.1.
const MaxURLLength = 2048

// Query parameters matching trackingParamPrefixes or trackingParamExact are
// stripped unconditionally; ordering does not matter
// since the remainder is sorted afterwards.
var trackingParamPrefixes = []string{"utm_"}

var trackingParamExact = map[string]struct{}{
	"fbclid":   {},
	"gclid":    {},
	"ref":      {},
	"source":   {},
	"campaign": {},
}

// Class is the link classification shared between the normalizer and C8's
// link discoverer so the latter never has to re-derive host relationships.
type Class int

const (
	ClassInternal Class = iota
	ClassSubdomain
	ClassExternal
	ClassAsset
	ClassResource
	ClassMedia
	ClassDocument
)
