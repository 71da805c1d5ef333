// Package extract implements C7: turns raw fetched HTML bytes into cleaned
// text, gated by length/word-count/language thresholds, with an optional
// Markdown rendering and a best-effort stemmed keyword list.
//
// Responsibilities
//   - Sniff the response encoding and reject non-UTF-8 payloads
//   - Stream-remove script/style/nav/header/footer/aside/noscript subtrees
//   - Fall back to regex-based tag stripping if the streaming pass fails
//   - Gate on text length, detected language, and word count
//   - Render a Markdown-flavored copy of the text for storage
package extract

import (
	"io"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/kennygrant/sanitize"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
)

// LanguageDetector identifies the dominant language of a text sample,
// returning an ISO 639-1-ish code and whether detection succeeded. It is an
// external collaborator: production wiring supplies a real detector, tests
// supply a stub.
type LanguageDetector func(sample string) (lang string, ok bool)

var skippedTags = map[string]struct{}{
	"script": {}, "style": {}, "nav": {}, "header": {}, "footer": {},
	"aside": {}, "noscript": {},
}

// Extractor runs the C7 pipeline.
type Extractor struct {
	cfg    Config
	detect LanguageDetector
}

// New creates an Extractor. detect may be nil, in which case language
// gating is skipped (every language is accepted) -- useful when no detector
// collaborator is wired yet.
func New(cfg Config, detect LanguageDetector) *Extractor {
	return &Extractor{cfg: cfg.withDefaults(), detect: detect}
}

// Extract runs the full pipeline against raw response bytes.
func (e *Extractor) Extract(raw []byte) (ExtractedContent, *ExtractError) {
	if err := checkEncoding(raw); err != nil {
		return ExtractedContent{}, err
	}

	text, err := e.rewriteAndStrip(raw)
	if err != nil {
		return ExtractedContent{}, err
	}

	if len(text) < e.cfg.MinTextLength {
		return ExtractedContent{}, &ExtractError{
			Message: "stripped text shorter than minimum",
			Cause:   ErrCauseContentTooShort,
		}
	}

	if e.rejectedByLinkDensity(raw, text) {
		return ExtractedContent{}, &ExtractError{
			Message: "content dominated by navigation/boilerplate",
			Cause:   ErrCauseContentTooShort,
		}
	}

	lang := ""
	if e.detect != nil {
		sample := sampleRunes(text, e.cfg.LanguageSampleSize)
		detected, ok := e.detect(sample)
		if !ok || !e.languageAccepted(detected) {
			return ExtractedContent{}, &ExtractError{
				Message: "detected language not in the accepted set",
				Cause:   ErrCauseLanguageNotAccepted,
			}
		}
		lang = detected
	}

	wordCount := countWords(text, lang, e.cfg.CJKSampleSize)
	if wordCount < e.cfg.MinWordCount {
		return ExtractedContent{}, &ExtractError{
			Message: "word count below minimum",
			Cause:   ErrCauseContentTooShort,
		}
	}

	markdown, _ := htmltomarkdown.ConvertString(string(raw))
	keywords := topKeywords(text, lang, 8)

	return ExtractedContent{
		Text:      text,
		Markdown:  markdown,
		Language:  lang,
		WordCount: wordCount,
		Keywords:  keywords,
	}, nil
}

func (e *Extractor) languageAccepted(lang string) bool {
	if len(e.cfg.AcceptedLanguages) == 0 {
		return true
	}
	_, ok := e.cfg.AcceptedLanguages[lang]
	return ok
}

func checkEncoding(raw []byte) *ExtractError {
	if utf8.Valid(raw) {
		return nil
	}
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(raw)
	if err != nil || result == nil {
		return &ExtractError{Message: "unable to determine response encoding", Cause: ErrCauseEncodingError}
	}
	switch strings.ToUpper(result.Charset) {
	case "UTF-8", "ASCII", "US-ASCII":
		return nil
	default:
		return &ExtractError{
			Message: "non-UTF-8 charset " + result.Charset + " without a transcoder wired in",
			Cause:   ErrCauseEncodingError,
		}
	}
}

// rewriteAndStrip removes skipped subtrees via the streaming tokenizer; if
// that pass errors out partway, it falls back to a regex/string-based strip
// of the raw bytes so extraction still produces something.
func (e *Extractor) rewriteAndStrip(raw []byte) (string, *ExtractError) {
	text, err := streamStrip(raw)
	if err == nil {
		return collapseWhitespace(text), nil
	}

	fallback, ferr := sanitize.HTML(string(raw))
	if ferr != nil {
		return "", &ExtractError{Message: ferr.Error(), Cause: ErrCauseUnparseableHTML}
	}
	return collapseWhitespace(fallback), nil
}

func streamStrip(raw []byte) (string, error) {
	z := html.NewTokenizer(strings.NewReader(string(raw)))
	var sb strings.Builder
	var skipStack []string

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return sb.String(), err
			}
			return sb.String(), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if _, skip := skippedTags[tag]; skip {
				skipStack = append(skipStack, tag)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if len(skipStack) > 0 && skipStack[len(skipStack)-1] == tag {
				skipStack = skipStack[:len(skipStack)-1]
			}
		case html.TextToken:
			if len(skipStack) == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.TrimSpace(strings.Join(fields, " "))
}

func sampleRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// rejectedByLinkDensity is the content-score pre-filter: it approximates
// link density as one minus the ratio of stripped text length to raw
// markup length and rejects pages dominated by markup/navigation before
// spending a language-detection call on them.
func (e *Extractor) rejectedByLinkDensity(raw []byte, text string) bool {
	if len(raw) == 0 {
		return false
	}
	ratio := 1 - float64(len(text))/float64(len(raw))
	return ratio >= e.cfg.LinkDensityThreshold
}
