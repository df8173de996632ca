package search

import "strings"

type InputKind string

const (
	InputSearch   InputKind = "search"
	InputNavigate InputKind = "navigate"
)

type Input struct {
	Kind  InputKind `json:"kind"`
	Query string    `json:"query"`
	URL   string    `json:"url,omitempty"`
}

// ClassifyInput decides whether address-bar style input is a URL to open or a query.
// Absolute http(s) URLs open as is; a single token containing a dot opens over https.
func ClassifyInput(raw string) Input {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Input{Kind: InputSearch}
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return Input{Kind: InputNavigate, Query: value, URL: value}
	}
	if !strings.Contains(value, " ") && strings.Contains(value, ".") {
		return Input{Kind: InputNavigate, Query: value, URL: "https://" + value}
	}
	return Input{Kind: InputSearch, Query: value}
}
