package present

import (
	"testing"

	"github.com/stretchr/testify/require"

	"scuba/searchservice/internal/domain"
)

func TestStripHTML(t *testing.T) {
	require.Equal(t, "Emperor penguins & chicks", StripHTML("<b>Emperor</b> penguins &amp; <i>chicks</i>"))
	require.Equal(t, "plain text", StripHTML("  plain \n text "))
	require.Equal(t, "", StripHTML(""))
}

func TestTruncateDropsPartialWord(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "the quick...", Truncate("the quick brown fox", 12))
	require.Equal(t, "abcdefghij...", Truncate("abcdefghijklmnop", 10))
	require.Equal(t, "the quick...", Truncate("the quick  brown", 11))
}

func TestTruncateCountsRunes(t *testing.T) {
	require.Equal(t, "ñandú ñandú", Truncate("ñandú ñandú", 11))
	require.Equal(t, "ñandú...", Truncate("ñandú ñandú", 8))
}

func TestHighlightTermsSkipsShortWords(t *testing.T) {
	require.Equal(t, []string{"emperor", "penguin"}, HighlightTerms("An emperor of penguin EMPEROR"))
}

func TestHighlightsAreCaseInsensitiveAndMerged(t *testing.T) {
	text := "Penguins and penguin chicks"
	spans := Highlights(text, []string{"penguin", "penguins"})
	require.Equal(t, []domain.Highlight{{Start: 0, End: 8}, {Start: 13, End: 20}}, spans)
	require.Equal(t, "Penguins", text[spans[0].Start:spans[0].End])
	require.Nil(t, Highlights(text, nil))
}

func TestFormatDate(t *testing.T) {
	require.Equal(t, "Mar 5, 2024", FormatDate("2024-03-05T10:00:00Z"))
	require.Equal(t, "Mar 5, 2024", FormatDate("2024-03-05 10:00:00"))
	require.Equal(t, "Mar 5, 2024", FormatDate("2024-03-05"))
	require.Equal(t, "yesterday", FormatDate("yesterday"))
	require.Equal(t, "", FormatDate(""))
}
