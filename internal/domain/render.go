package domain

type Layout string

const (
	LayoutGeneral Layout = "general-grid"
	LayoutImages  Layout = "images-grid"
	LayoutVideos  Layout = "videos-grid"
)

type CardKind string

const (
	CardInfobox     CardKind = "infobox"
	CardResult      CardKind = "result"
	CardImage       CardKind = "image"
	CardVideo       CardKind = "video"
	CardSuggestions CardKind = "suggestions"
)

// Highlight is a half-open byte range of a query term inside a text field.
type Highlight struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type InfoboxCard struct {
	Title   string       `json:"title"`
	Content string       `json:"content"`
	ImgSrc  string       `json:"imgSrc,omitempty"`
	Links   []InfoboxURL `json:"links,omitempty"`
}

type Card struct {
	Kind                  CardKind     `json:"kind"`
	Title                 string       `json:"title,omitempty"`
	URL                   string       `json:"url,omitempty"`
	Domain                string       `json:"domain,omitempty"`
	Favicon               string       `json:"favicon,omitempty"`
	Description           string       `json:"description,omitempty"`
	Date                  string       `json:"date,omitempty"`
	Engine                string       `json:"engine,omitempty"`
	Thumbnail             string       `json:"thumbnail,omitempty"`
	ImageURL              string       `json:"imageUrl,omitempty"`
	Duration              string       `json:"duration,omitempty"`
	Score                 float64      `json:"score,omitempty"`
	Primary               bool         `json:"primary,omitempty"`
	TitleHighlights       []Highlight  `json:"titleHighlights,omitempty"`
	DescriptionHighlights []Highlight  `json:"descriptionHighlights,omitempty"`
	Infobox               *InfoboxCard `json:"infobox,omitempty"`
	Suggestions           []string     `json:"suggestions,omitempty"`
}

// Navigable reports whether activating the card opens a page.
func (c Card) Navigable() bool {
	switch c.Kind {
	case CardResult, CardImage, CardVideo:
		return c.URL != ""
	default:
		return false
	}
}

type RenderHeader struct {
	ResultCount int      `json:"resultCount"`
	CountLabel  string   `json:"countLabel"`
	Engines     []string `json:"engines,omitempty"`
	EngineLabel string   `json:"engineLabel,omitempty"`
}

// RenderPayload is the materialized, render-ready view of one CategoryResultSet.
type RenderPayload struct {
	QueryID  string       `json:"queryId"`
	Query    string       `json:"query"`
	Category Category     `json:"category"`
	Layout   Layout       `json:"layout"`
	Header   RenderHeader `json:"header"`
	Cards    []Card       `json:"cards"`
}

// ImageRefs lists every image reference the payload asks the shell to load.
func (p RenderPayload) ImageRefs() []string {
	refs := make([]string, 0, len(p.Cards))
	for _, card := range p.Cards {
		for _, ref := range []string{card.Thumbnail, card.ImageURL} {
			if ref != "" {
				refs = append(refs, ref)
			}
		}
		if card.Infobox != nil && card.Infobox.ImgSrc != "" {
			refs = append(refs, card.Infobox.ImgSrc)
		}
	}
	return refs
}
