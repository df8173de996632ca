package present

import (
	"net/url"
	"strconv"
	"strings"

	"scuba/searchservice/internal/domain"
	"scuba/searchservice/internal/rank"
)

const (
	defaultMaxSuggestions        = 6
	defaultMaxInfoboxLinks       = 3
	defaultDescriptionLimit      = 160
	defaultVideoDescriptionLimit = 100

	faviconEndpoint = "https://www.google.com/s2/favicons"
)

type Config struct {
	MaxSuggestions        int
	MaxInfoboxLinks       int
	DescriptionLimit      int
	VideoDescriptionLimit int
	// ImageProxyPath, when set, routes image and thumbnail URLs through the local proxy.
	ImageProxyPath string
}

// Presenter turns a CategoryResultSet into a render payload. Output depends only
// on its inputs, so payloads can be cached and replayed.
type Presenter struct {
	pipeline *rank.Pipeline
	cfg      Config
}

func New(pipeline *rank.Pipeline, cfg Config) *Presenter {
	if pipeline == nil {
		pipeline = rank.NewPipeline(rank.DefaultPipelineConfig())
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = defaultMaxSuggestions
	}
	if cfg.MaxInfoboxLinks <= 0 {
		cfg.MaxInfoboxLinks = defaultMaxInfoboxLinks
	}
	if cfg.DescriptionLimit <= 0 {
		cfg.DescriptionLimit = defaultDescriptionLimit
	}
	if cfg.VideoDescriptionLimit <= 0 {
		cfg.VideoDescriptionLimit = defaultVideoDescriptionLimit
	}
	return &Presenter{pipeline: pipeline, cfg: cfg}
}

func LayoutFor(category domain.Category) domain.Layout {
	switch category {
	case domain.CategoryImages:
		return domain.LayoutImages
	case domain.CategoryVideos:
		return domain.LayoutVideos
	default:
		return domain.LayoutGeneral
	}
}

func (p *Presenter) Present(queryID string, set domain.CategoryResultSet) domain.RenderPayload {
	category := set.Category
	if category == "" {
		category = domain.CategoryGeneral
	}
	layout := LayoutFor(category)
	ranked := p.pipeline.Apply(category, set.Results)
	terms := HighlightTerms(set.Query)

	payload := domain.RenderPayload{
		QueryID:  queryID,
		Query:    set.Query,
		Category: category,
		Layout:   layout,
		Header:   buildHeader(set),
		Cards:    make([]domain.Card, 0, len(ranked)+len(set.Infoboxes)+1),
	}

	switch layout {
	case domain.LayoutImages:
		for _, result := range ranked {
			payload.Cards = append(payload.Cards, p.imageCard(result))
		}
	case domain.LayoutVideos:
		for _, result := range ranked {
			payload.Cards = append(payload.Cards, p.videoCard(result, terms))
		}
	default:
		for _, box := range set.Infoboxes {
			payload.Cards = append(payload.Cards, p.infoboxCard(box))
		}
		primary := -1
		if category == domain.CategoryGeneral {
			primary = primaryIndex(ranked)
		}
		if primary >= 0 {
			card := p.resultCard(ranked[primary], terms)
			card.Primary = true
			payload.Cards = append(payload.Cards, card)
		}
		for i, result := range ranked {
			if i == primary {
				continue
			}
			payload.Cards = append(payload.Cards, p.resultCard(result, terms))
		}
		if suggestions := p.suggestions(set.Suggestions); len(suggestions) > 0 {
			payload.Cards = append(payload.Cards, domain.Card{
				Kind:        domain.CardSuggestions,
				Title:       "Related Searches",
				Suggestions: suggestions,
			})
		}
	}
	return payload
}

func buildHeader(set domain.CategoryResultSet) domain.RenderHeader {
	header := domain.RenderHeader{
		ResultCount: set.TotalCount,
		CountLabel:  strconv.Itoa(set.TotalCount) + " results",
		Engines:     append([]string(nil), set.RespondingEngines...),
	}
	if len(set.RespondingEngines) > 0 {
		header.EngineLabel = "from " + strings.Join(set.RespondingEngines, ", ")
	}
	return header
}

// primaryIndex picks the first Wikipedia-origin result.
func primaryIndex(results []domain.UniformResult) int {
	for i, result := range results {
		if rank.IsWikipedia(result.URL) || strings.Contains(strings.ToLower(result.Engine), "wikipedia") {
			return i
		}
	}
	return -1
}

func (p *Presenter) resultCard(result domain.UniformResult, terms []string) domain.Card {
	title := StripHTML(result.Title)
	description := Truncate(StripHTML(result.Description), p.cfg.DescriptionLimit)
	domainName := displayDomain(result.URL)
	return domain.Card{
		Kind:                  domain.CardResult,
		Title:                 title,
		URL:                   result.URL,
		Domain:                domainName,
		Favicon:               FaviconURL(domainName),
		Description:           description,
		Date:                  FormatDate(result.PublishedDate),
		Engine:                result.Engine,
		Thumbnail:             p.proxied(result.Thumbnail),
		Score:                 result.Score,
		TitleHighlights:       Highlights(title, terms),
		DescriptionHighlights: Highlights(description, terms),
	}
}

func (p *Presenter) imageCard(result domain.UniformResult) domain.Card {
	title := StripHTML(result.Title)
	if title == "" {
		title = "Image"
	}
	image := firstNonEmpty(result.ImageURL, result.Thumbnail, result.URL)
	return domain.Card{
		Kind:      domain.CardImage,
		Title:     title,
		URL:       result.URL,
		Domain:    displayDomain(result.URL),
		Engine:    result.Engine,
		ImageURL:  p.proxied(image),
		Thumbnail: p.proxied(firstNonEmpty(result.Thumbnail, image)),
		Score:     result.Score,
	}
}

func (p *Presenter) videoCard(result domain.UniformResult, terms []string) domain.Card {
	title := StripHTML(result.Title)
	if title == "" {
		title = "Video"
	}
	description := Truncate(StripHTML(result.Description), p.cfg.VideoDescriptionLimit)
	return domain.Card{
		Kind:            domain.CardVideo,
		Title:           title,
		URL:             result.URL,
		Domain:          displayDomain(result.URL),
		Description:     description,
		Date:            FormatDate(result.PublishedDate),
		Engine:          result.Engine,
		Thumbnail:       p.proxied(firstNonEmpty(result.Thumbnail, result.ImageURL)),
		Duration:        result.Length,
		Score:           result.Score,
		TitleHighlights: Highlights(title, terms),
	}
}

func (p *Presenter) infoboxCard(box domain.Infobox) domain.Card {
	links := box.URLs
	if len(links) > p.cfg.MaxInfoboxLinks {
		links = links[:p.cfg.MaxInfoboxLinks]
	}
	return domain.Card{
		Kind:  domain.CardInfobox,
		Title: box.Title,
		Infobox: &domain.InfoboxCard{
			Title:   box.Title,
			Content: StripHTML(box.Content),
			ImgSrc:  p.proxied(box.ImgSrc),
			Links:   append([]domain.InfoboxURL(nil), links...),
		},
	}
}

func (p *Presenter) suggestions(values []string) []string {
	if len(values) > p.cfg.MaxSuggestions {
		values = values[:p.cfg.MaxSuggestions]
	}
	return append([]string(nil), values...)
}

func (p *Presenter) proxied(target string) string {
	if target == "" || p.cfg.ImageProxyPath == "" {
		return target
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return target
	}
	return p.cfg.ImageProxyPath + "?url=" + url.QueryEscape(target)
}

// displayDomain falls back to the raw URL when it has no host.
func displayDomain(raw string) string {
	if domainName := rank.DomainOf(raw); domainName != "" {
		return domainName
	}
	return raw
}

// FaviconURL points at the public favicon service for a domain.
func FaviconURL(domainName string) string {
	if domainName == "" || strings.ContainsAny(domainName, "/:") {
		return ""
	}
	return faviconEndpoint + "?domain=" + url.QueryEscape(domainName) + "&sz=16"
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
