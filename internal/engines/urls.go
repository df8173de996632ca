package engines

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"scuba/searchservice/internal/domain"
)

// SearchURL is the human-facing results page of the engine for query.
func SearchURL(descriptor domain.EngineDescriptor, query string) string {
	return descriptor.BaseURL + descriptor.SearchPath + "?q=" + url.QueryEscape(query)
}

// APIURL builds the structured-results request for one category.
func APIURL(descriptor domain.EngineDescriptor, query string, opts domain.SearchOptions) (string, error) {
	if !descriptor.Structured {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedEngine, descriptor.Key)
	}
	path := descriptor.APIPath
	if path == "" {
		path = descriptor.SearchPath
	}

	var builder strings.Builder
	builder.WriteString(descriptor.BaseURL)
	builder.WriteString(path)
	builder.WriteString("?q=")
	builder.WriteString(url.QueryEscape(query))
	builder.WriteString("&format=json")
	if param := descriptor.CategoryParam(opts.Category); param != "" {
		builder.WriteString("&")
		builder.WriteString(url.QueryEscape(param))
		builder.WriteString("=1")
	}
	if lang := NormalizeLanguage(opts.Language); lang != "" {
		builder.WriteString("&language=")
		builder.WriteString(url.QueryEscape(lang))
	}
	if opts.SafeSearch >= 0 {
		level := opts.SafeSearch
		if level > 2 {
			level = 2
		}
		builder.WriteString("&safesearch=")
		builder.WriteString(strconv.Itoa(level))
	}
	return builder.String(), nil
}

// NormalizeLanguage canonicalizes a BCP 47 tag. "all" and "auto" pass through;
// anything unparsable is dropped.
func NormalizeLanguage(raw string) string {
	value := strings.TrimSpace(raw)
	switch strings.ToLower(value) {
	case "":
		return ""
	case "all", "auto":
		return strings.ToLower(value)
	}
	tag, err := language.Parse(value)
	if err != nil {
		return ""
	}
	return tag.String()
}
