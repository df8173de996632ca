package present

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"scuba/searchservice/internal/domain"
)

func generalSet() domain.CategoryResultSet {
	return domain.CategoryResultSet{
		Query:      "emperor penguin",
		Category:   domain.CategoryGeneral,
		TotalCount: 4,
		Results: []domain.UniformResult{
			{Title: "Zoo tickets", URL: "https://zoo.test/tickets", Engine: "bing", Score: 0.9},
			{Title: "Emperor penguin", URL: "https://en.wikipedia.org/wiki/Emperor_penguin", Engine: "wikipedia", Score: 0.5, Description: "The <b>emperor penguin</b> is the tallest"},
			{Title: "Krill recipes", URL: "https://food.test/krill", Engine: "ddg", Score: 0.7, PublishedDate: "2024-03-05"},
			{Title: "Noise", URL: "https://noise.test/", Score: 0.01},
		},
		Suggestions:       []string{"a", "b", "c", "d", "e", "f", "g"},
		Infoboxes:         []domain.Infobox{{Title: "Emperor penguin", Content: "<p>Largest penguin</p>", URLs: []domain.InfoboxURL{{URL: "1"}, {URL: "2"}, {URL: "3"}, {URL: "4"}}}},
		RespondingEngines: []string{"bing", "wikipedia", "ddg"},
	}
}

func TestPresentGeneralOrdering(t *testing.T) {
	payload := New(nil, Config{}).Present("q1", generalSet())

	require.Equal(t, domain.LayoutGeneral, payload.Layout)
	require.Equal(t, "q1", payload.QueryID)
	require.Equal(t, "4 results", payload.Header.CountLabel)
	require.Equal(t, "from bing, wikipedia, ddg", payload.Header.EngineLabel)

	kinds := make([]domain.CardKind, 0, len(payload.Cards))
	for _, card := range payload.Cards {
		kinds = append(kinds, card.Kind)
	}
	require.Equal(t, []domain.CardKind{
		domain.CardInfobox,
		domain.CardResult,
		domain.CardResult,
		domain.CardResult,
		domain.CardSuggestions,
	}, kinds)

	infobox := payload.Cards[0].Infobox
	require.NotNil(t, infobox)
	require.Len(t, infobox.Links, 3)
	require.Equal(t, "Largest penguin", infobox.Content)

	primary := payload.Cards[1]
	require.True(t, primary.Primary)
	require.Equal(t, "en.wikipedia.org", primary.Domain)
	require.Equal(t, "The emperor penguin is the tallest", primary.Description)
	require.NotEmpty(t, primary.TitleHighlights)
	require.Equal(t, "https://www.google.com/s2/favicons?domain=en.wikipedia.org&sz=16", primary.Favicon)

	require.Equal(t, "Zoo tickets", payload.Cards[2].Title)
	require.Equal(t, "Krill recipes", payload.Cards[3].Title)
	require.Equal(t, "Mar 5, 2024", payload.Cards[3].Date)
	require.Len(t, payload.Cards[4].Suggestions, 6)
}

func TestPresentIsDeterministic(t *testing.T) {
	presenter := New(nil, Config{})
	require.Equal(t, presenter.Present("q", generalSet()), presenter.Present("q", generalSet()))
}

func TestPresentPrimaryOnlyForGeneral(t *testing.T) {
	set := generalSet()
	set.Category = domain.CategoryNews
	payload := New(nil, Config{}).Present("q", set)
	for _, card := range payload.Cards {
		require.False(t, card.Primary)
	}
}

func TestPresentImages(t *testing.T) {
	set := domain.CategoryResultSet{
		Query:    "penguin",
		Category: domain.CategoryImages,
		Results: []domain.UniformResult{
			{URL: "https://img.test/a", ImageURL: "https://img.test/a.jpg", Score: 1},
			{Title: "Thumb only", URL: "https://img2.test/b", Thumbnail: "https://img2.test/b_t.jpg"},
			{Title: "No image", URL: "https://img3.test/c", Score: 5},
		},
		Suggestions: []string{"ignored"},
	}
	payload := New(nil, Config{ImageProxyPath: "/proxy/image"}).Present("q", set)

	require.Equal(t, domain.LayoutImages, payload.Layout)
	require.Len(t, payload.Cards, 2)
	require.Equal(t, "Image", payload.Cards[0].Title)
	require.Equal(t, "/proxy/image?url=https%3A%2F%2Fimg.test%2Fa.jpg", payload.Cards[0].ImageURL)
	require.Equal(t, "/proxy/image?url=https%3A%2F%2Fimg2.test%2Fb_t.jpg", payload.Cards[1].ImageURL)
	for _, card := range payload.Cards {
		require.Equal(t, domain.CardImage, card.Kind)
		require.True(t, card.Navigable())
	}
}

func TestPresentVideosTruncatesDescription(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += fmt.Sprintf("word%d ", i)
	}
	set := domain.CategoryResultSet{
		Query:    "penguin",
		Category: domain.CategoryVideos,
		Results: []domain.UniformResult{
			{URL: "https://v.test/1", Description: long, Length: "3:05", ImageURL: "https://v.test/1.jpg"},
		},
	}
	payload := New(nil, Config{}).Present("q", set)
	require.Len(t, payload.Cards, 1)
	card := payload.Cards[0]
	require.Equal(t, domain.CardVideo, card.Kind)
	require.Equal(t, "Video", card.Title)
	require.Equal(t, "3:05", card.Duration)
	require.Equal(t, "https://v.test/1.jpg", card.Thumbnail)
	require.LessOrEqual(t, len([]rune(card.Description)), 103)
	require.Contains(t, card.Description, "...")
}

func TestFaviconURL(t *testing.T) {
	require.Equal(t, "", FaviconURL(""))
	require.Equal(t, "", FaviconURL("not a url:/"))
	require.Equal(t, "https://www.google.com/s2/favicons?domain=example.com&sz=16", FaviconURL("example.com"))
}
