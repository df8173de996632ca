package search

import "testing"

func TestClassifyInput(t *testing.T) {
	tests := []struct {
		raw  string
		want Input
	}{
		{"penguins", Input{Kind: InputSearch, Query: "penguins"}},
		{"  emperor penguin  ", Input{Kind: InputSearch, Query: "emperor penguin"}},
		{"https://example.com/a b", Input{Kind: InputNavigate, Query: "https://example.com/a b", URL: "https://example.com/a b"}},
		{"http://localhost:8080", Input{Kind: InputNavigate, Query: "http://localhost:8080", URL: "http://localhost:8080"}},
		{"example.com", Input{Kind: InputNavigate, Query: "example.com", URL: "https://example.com"}},
		{"node.js tutorial", Input{Kind: InputSearch, Query: "node.js tutorial"}},
		{"   ", Input{Kind: InputSearch}},
	}
	for _, tc := range tests {
		if got := ClassifyInput(tc.raw); got != tc.want {
			t.Fatalf("ClassifyInput(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
}
