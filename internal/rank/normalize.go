package rank

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeURL reduces a URL to lower-case host (without "www.") plus path,
// dropping the trailing slash, query string and fragment. Unparsable input is
// returned lower-cased.
func NormalizeURL(raw string) string {
	parsed, ok := parseAbsoluteURL(raw)
	if !ok {
		return strings.ToLower(raw)
	}
	normalized := hostWithoutWWW(parsed) + parsed.EscapedPath()
	normalized = strings.TrimSuffix(normalized, "/")
	return strings.ToLower(normalized)
}

// DomainOf returns the lower-case host without "www.", or "" when the URL does not parse.
func DomainOf(raw string) string {
	parsed, ok := parseAbsoluteURL(raw)
	if !ok {
		return ""
	}
	return hostWithoutWWW(parsed)
}

// NormalizeTitle lower-cases the title, folds accents, turns punctuation into
// spaces and collapses whitespace.
func NormalizeTitle(title string) string {
	folded := foldAccents(strings.ToLower(title))
	var builder strings.Builder
	builder.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			builder.WriteRune(r)
			continue
		}
		builder.WriteByte(' ')
	}
	return strings.Join(strings.Fields(builder.String()), " ")
}

// IsWikipedia reports whether the URL points at wikipedia.org or one of its language hosts.
func IsWikipedia(raw string) bool {
	domain := DomainOf(raw)
	return domain == "wikipedia.org" || strings.HasSuffix(domain, ".wikipedia.org")
}

func parseAbsoluteURL(raw string) (*url.URL, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, false
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, false
	}
	return parsed, true
}

func hostWithoutWWW(parsed *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

func foldAccents(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return folded
}
