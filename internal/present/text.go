package present

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"scuba/searchservice/internal/domain"
)

const ellipsis = "..."

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
// Plain text passes through apart from whitespace.
func StripHTML(value string) string {
	if !strings.ContainsAny(value, "<&") {
		return strings.Join(strings.Fields(value), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return strings.Join(strings.Fields(value), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Truncate shortens text to at most limit runes, drops a trailing partial word
// and appends "...".
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)[:limit]
	cut := string(runes)
	if idx := lastSpaceRun(cut); idx >= 0 {
		cut = cut[:idx]
	}
	return cut + ellipsis
}

// lastSpaceRun returns the byte offset of the whitespace run before the final word.
func lastSpaceRun(value string) int {
	end := strings.LastIndexFunc(value, unicode.IsSpace)
	if end < 0 {
		return -1
	}
	start := end
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(value[:start])
		if !unicode.IsSpace(r) {
			break
		}
		start -= size
	}
	return start
}

// HighlightTerms returns the query words worth marking: lower-cased, longer than two runes.
func HighlightTerms(query string) []string {
	fields := strings.Split(strings.ToLower(query), " ")
	terms := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if utf8.RuneCountInString(field) <= 2 {
			continue
		}
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		terms = append(terms, field)
	}
	return terms
}

// Highlights finds case-insensitive occurrences of terms in text as merged,
// sorted byte ranges.
func Highlights(text string, terms []string) []domain.Highlight {
	if text == "" || len(terms) == 0 {
		return nil
	}
	var spans []domain.Highlight
	for _, term := range terms {
		termRunes := utf8.RuneCountInString(term)
		for start := 0; start < len(text); {
			end := advanceRunes(text, start, termRunes)
			if end > 0 && strings.EqualFold(text[start:end], term) {
				spans = append(spans, domain.Highlight{Start: start, End: end})
				start = end
				continue
			}
			_, size := utf8.DecodeRuneInString(text[start:])
			start += size
		}
	}
	return mergeHighlights(spans)
}

// advanceRunes returns the byte offset n runes after start, or -1 if text is too short.
func advanceRunes(text string, start, n int) int {
	offset := start
	for i := 0; i < n; i++ {
		if offset >= len(text) {
			return -1
		}
		_, size := utf8.DecodeRuneInString(text[offset:])
		offset += size
	}
	return offset
}

func mergeHighlights(spans []domain.Highlight) []domain.Highlight {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End > spans[j].End
	})
	merged := []domain.Highlight{spans[0]}
	for _, span := range spans[1:] {
		last := &merged[len(merged)-1]
		if span.Start <= last.End {
			if span.End > last.End {
				last.End = span.End
			}
			continue
		}
		merged = append(merged, span)
	}
	return merged
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// FormatDate renders a backend date as "Jan 2, 2006". Unparsable values pass through.
func FormatDate(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("Jan 2, 2006")
		}
	}
	return value
}
