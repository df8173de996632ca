package searxng

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"scuba/searchservice/internal/domain"
)

// looseString accepts strings, numbers and booleans; anything else decodes to "".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*s = ""
		return nil
	}
	switch trimmed[0] {
	case '"':
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		*s = looseString(value)
	case 't', 'f':
		*s = looseString(string(trimmed))
	case 'n', '[', '{':
		*s = ""
	default:
		*s = looseString(string(trimmed))
	}
	return nil
}

// looseFloat accepts numbers and numeric strings; anything else decodes to 0.
type looseFloat float64

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*f = 0
		return nil
	}
	raw := string(trimmed)
	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return err
		}
		raw = value
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = looseFloat(value)
	return nil
}

type rawResult struct {
	Title         looseString `json:"title"`
	URL           looseString `json:"url"`
	Content       looseString `json:"content"`
	Description   looseString `json:"description"`
	Engine        looseString `json:"engine"`
	Category      looseString `json:"category"`
	ImgSrc        looseString `json:"img_src"`
	Thumbnail     looseString `json:"thumbnail"`
	ThumbnailSrc  looseString `json:"thumbnail_src"`
	PublishedDate looseString `json:"publishedDate"`
	Length        looseString `json:"length"`
	Score         looseFloat  `json:"score"`
}

type rawInfoboxURL struct {
	Title looseString `json:"title"`
	URL   looseString `json:"url"`
}

type rawInfobox struct {
	Infobox looseString     `json:"infobox"`
	Content looseString     `json:"content"`
	ImgSrc  looseString     `json:"img_src"`
	URLs    []rawInfoboxURL `json:"urls"`
}

type rawResponse struct {
	Query               looseString       `json:"query"`
	Results             []json.RawMessage `json:"results"`
	Suggestions         []looseString     `json:"suggestions"`
	Infoboxes           []json.RawMessage `json:"infoboxes"`
	UnresponsiveEngines []json.RawMessage `json:"unresponsive_engines"`
	Engines             []json.RawMessage `json:"engines"`
}

// parseResponse decodes a SearXNG JSON body. Only a body that is not a JSON
// object fails; individual entries with unexpected shapes are skipped.
func parseResponse(body []byte, query string, category domain.Category) (domain.CategoryResultSet, error) {
	var payload rawResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.CategoryResultSet{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if category == "" {
		category = domain.CategoryGeneral
	}

	set := domain.CategoryResultSet{
		Query:               strings.TrimSpace(string(payload.Query)),
		Category:            category,
		Results:             make([]domain.UniformResult, 0, len(payload.Results)),
		Suggestions:         make([]string, 0, len(payload.Suggestions)),
		Infoboxes:           make([]domain.Infobox, 0, len(payload.Infoboxes)),
		RespondingEngines:   []string{},
		UnresponsiveEngines: []string{},
	}
	if set.Query == "" {
		set.Query = query
	}

	for _, item := range payload.Results {
		var raw rawResult
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		set.Results = append(set.Results, toUniform(raw, category))
	}
	set.TotalCount = len(set.Results)

	for _, suggestion := range payload.Suggestions {
		if value := strings.TrimSpace(string(suggestion)); value != "" {
			set.Suggestions = append(set.Suggestions, value)
		}
	}

	for _, item := range payload.Infoboxes {
		var raw rawInfobox
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		set.Infoboxes = append(set.Infoboxes, toInfobox(raw))
	}

	for _, item := range payload.UnresponsiveEngines {
		if name := engineName(item); name != "" {
			set.UnresponsiveEngines = append(set.UnresponsiveEngines, name)
		}
	}

	responding := make([]string, 0, len(payload.Engines))
	for _, item := range payload.Engines {
		if name := engineName(item); name != "" {
			responding = append(responding, name)
		}
	}
	if len(responding) == 0 {
		for _, result := range set.Results {
			responding = append(responding, result.Engine)
		}
	}
	set.RespondingEngines = uniqueNonEmpty(responding)
	return set, nil
}

func toUniform(raw rawResult, category domain.Category) domain.UniformResult {
	description := strings.TrimSpace(string(raw.Content))
	if description == "" {
		description = strings.TrimSpace(string(raw.Description))
	}
	thumbnail := strings.TrimSpace(string(raw.Thumbnail))
	if thumbnail == "" {
		thumbnail = strings.TrimSpace(string(raw.ThumbnailSrc))
	}
	resultCategory := strings.TrimSpace(string(raw.Category))
	if resultCategory == "" {
		resultCategory = string(category)
	}
	return domain.UniformResult{
		Title:         strings.TrimSpace(string(raw.Title)),
		URL:           strings.TrimSpace(string(raw.URL)),
		Description:   description,
		Engine:        strings.TrimSpace(string(raw.Engine)),
		Category:      resultCategory,
		Thumbnail:     thumbnail,
		ImageURL:      strings.TrimSpace(string(raw.ImgSrc)),
		PublishedDate: strings.TrimSpace(string(raw.PublishedDate)),
		Length:        strings.TrimSpace(string(raw.Length)),
		Score:         float64(raw.Score),
	}
}

func toInfobox(raw rawInfobox) domain.Infobox {
	box := domain.Infobox{
		Title:   strings.TrimSpace(string(raw.Infobox)),
		Content: strings.TrimSpace(string(raw.Content)),
		ImgSrc:  strings.TrimSpace(string(raw.ImgSrc)),
		URLs:    make([]domain.InfoboxURL, 0, len(raw.URLs)),
	}
	for _, link := range raw.URLs {
		target := strings.TrimSpace(string(link.URL))
		if target == "" {
			continue
		}
		box.URLs = append(box.URLs, domain.InfoboxURL{
			Title: strings.TrimSpace(string(link.Title)),
			URL:   target,
		})
	}
	return box
}

// engineName reads either "name" or ["name", "reason"].
func engineName(raw json.RawMessage) string {
	var name looseString
	if err := json.Unmarshal(raw, &name); err == nil && name != "" {
		return strings.TrimSpace(string(name))
	}
	var pair []looseString
	if err := json.Unmarshal(raw, &pair); err == nil && len(pair) > 0 {
		return strings.TrimSpace(string(pair[0]))
	}
	var object struct {
		Name looseString `json:"name"`
	}
	if err := json.Unmarshal(raw, &object); err == nil {
		return strings.TrimSpace(string(object.Name))
	}
	return ""
}

func uniqueNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
