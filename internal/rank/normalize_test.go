package rank

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURLIgnoresCaseSlashAndQuery(t *testing.T) {
	variants := []string{
		"https://www.Example.com/Docs/Page/",
		"http://example.com/docs/page?utm_source=x",
		"https://EXAMPLE.com/docs/page#intro",
	}
	want := NormalizeURL("https://example.com/docs/page")
	for _, raw := range variants {
		require.Equal(t, want, NormalizeURL(raw), raw)
	}
}

func TestNormalizeURLFallsBackToLowercasedInput(t *testing.T) {
	require.Equal(t, "not a url", NormalizeURL("Not A URL"))
	require.Equal(t, "", NormalizeURL(""))
}

func TestDomainOfStripsWWW(t *testing.T) {
	require.Equal(t, "example.com", DomainOf("https://www.example.com/a"))
	require.Equal(t, "en.wikipedia.org", DomainOf("https://en.wikipedia.org/wiki/Penguin"))
	require.Equal(t, "", DomainOf("::bad"))
}

func TestNormalizeTitleFoldsPunctuationAndAccents(t *testing.T) {
	require.Equal(t, "creme brulee recipe", NormalizeTitle("  Crème   Brûlée — Recipe! "))
	require.Equal(t, "", NormalizeTitle("!!!"))
}

func TestIsWikipedia(t *testing.T) {
	require.True(t, IsWikipedia("https://en.wikipedia.org/wiki/Penguin"))
	require.True(t, IsWikipedia("https://wikipedia.org/"))
	require.False(t, IsWikipedia("https://notwikipedia.org/wiki"))
	require.False(t, IsWikipedia(""))
}
