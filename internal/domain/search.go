package domain

import (
	"strings"
	"time"
)

type Category string

const (
	CategoryGeneral Category = "general"
	CategoryImages  Category = "images"
	CategoryVideos  Category = "videos"
	CategoryNews    Category = "news"
	CategoryMap     Category = "map"
	CategoryMusic   Category = "music"
	CategoryIT      Category = "it"
)

// Categories lists every search vertical in tab order.
var Categories = []Category{
	CategoryGeneral,
	CategoryImages,
	CategoryVideos,
	CategoryNews,
	CategoryMap,
	CategoryMusic,
	CategoryIT,
}

// ParseCategory maps a raw category name to a Category. An empty value means general.
func ParseCategory(raw string) (Category, error) {
	value := Category(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" || value == "all" {
		return CategoryGeneral, nil
	}
	for _, category := range Categories {
		if category == value {
			return category, nil
		}
	}
	return "", ErrUnknownCategory
}

func (c Category) Valid() bool {
	for _, category := range Categories {
		if category == c {
			return true
		}
	}
	return false
}

// SearchQuery is created once per submitted query and never mutated.
type SearchQuery struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	TabID    string    `json:"tabId"`
	IssuedAt time.Time `json:"issuedAt"`
}

type SearchOptions struct {
	Category   Category
	Language   string
	SafeSearch int // negative omits the parameter
	// Fresh asks shared response caches to skip lookup. The response still
	// refreshes them.
	Fresh bool
}

type UniformResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Description   string  `json:"description"`
	Engine        string  `json:"engine"`
	Category      string  `json:"category"`
	Thumbnail     string  `json:"thumbnail,omitempty"`
	ImageURL      string  `json:"imgSrc,omitempty"`
	PublishedDate string  `json:"publishedDate,omitempty"`
	Length        string  `json:"length,omitempty"`
	Score         float64 `json:"score"`
}

type InfoboxURL struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type Infobox struct {
	Title   string       `json:"infobox"`
	Content string       `json:"content"`
	ImgSrc  string       `json:"imgSrc,omitempty"`
	URLs    []InfoboxURL `json:"urls,omitempty"`
}

// CategoryResultSet is one backend answer for a (tab, category, query).
// A newer search supersedes it; sets are never merged.
type CategoryResultSet struct {
	Query               string          `json:"query"`
	Category            Category        `json:"category"`
	TotalCount          int             `json:"totalCount"`
	Results             []UniformResult `json:"results"`
	Suggestions         []string        `json:"suggestions"`
	Infoboxes           []Infobox       `json:"infoboxes"`
	RespondingEngines   []string        `json:"engines"`
	UnresponsiveEngines []string        `json:"unresponsiveEngines,omitempty"`
}

// Clone returns a deep copy so cached sets cannot be mutated through callers.
func (s CategoryResultSet) Clone() CategoryResultSet {
	cloned := s
	cloned.Results = append([]UniformResult(nil), s.Results...)
	cloned.Suggestions = append([]string(nil), s.Suggestions...)
	cloned.RespondingEngines = append([]string(nil), s.RespondingEngines...)
	cloned.UnresponsiveEngines = append([]string(nil), s.UnresponsiveEngines...)
	if s.Infoboxes != nil {
		cloned.Infoboxes = make([]Infobox, len(s.Infoboxes))
		for i, box := range s.Infoboxes {
			box.URLs = append([]InfoboxURL(nil), box.URLs...)
			cloned.Infoboxes[i] = box
		}
	}
	return cloned
}
