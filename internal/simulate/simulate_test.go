package simulate

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageDataDeterministic(t *testing.T) {
	t.Parallel()

	a := PageData("https://example.com")
	b := PageData("https://example.com")
	assert.Equal(t, a, b)
	assert.Equal(t, Seed("https://example.com"), Seed("  https://example.com "))
	assert.NotEqual(t, Seed("https://example.com"), Seed("https://example.org"))
}

func TestPageDataRespectsInvariants(t *testing.T) {
	t.Parallel()

	for _, u := range []string{
		"https://example.com",
		"https://shop.example.org/path?q=1",
		"http://localhost:8080",
		"not a url",
		"",
	} {
		data := PageData(u)
		require.LessOrEqual(t, data.MissingAltCount, data.ImgCount, u)
		require.LessOrEqual(t, data.InternalLinkCount, data.LinkCount, u)
		require.GreaterOrEqual(t, data.LinkCount, 10, u)
		require.GreaterOrEqual(t, data.WordCount, 200, u)
		require.GreaterOrEqual(t, data.LoadTime, int64(800), u)
		require.LessOrEqual(t, len(data.H1s), 2, u)
		require.NotEmpty(t, data.Title, u)
	}
}

func TestAuditUsesScoringEngine(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	first := Audit("sim-1", "https://example.com", at)
	second := Audit("sim-1", "https://example.com", at)
	assert.Equal(t, first, second)
	assert.Equal(t, "sim-1", first.ID)
	assert.Equal(t, "https://example.com", first.URL)
	assert.Equal(t, at, first.Timestamp)
	assert.Equal(t, 100, first.Technical.SSL.Score)
	assert.Equal(t, PageData("https://example.com").LoadTime, first.Technical.PageSpeed.LoadTimeMs)
	assert.Nil(t, first.AI)
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Example", displayName(""))
	assert.Equal(t, "Www", displayName("www"))
	assert.Equal(t, "Ünicode", displayName("ünicode"))
	assert.Equal(t, "東京", displayName("東京"))
}

func TestPageDataNonASCIIHost(t *testing.T) {
	t.Parallel()

	data := PageData("https://ünicode.com")
	require.True(t, utf8.ValidString(data.Title), "title %q", data.Title)
	require.True(t, utf8.ValidString(data.Description), "description %q", data.Description)
	assert.Contains(t, data.Title, "Ünicode")
	for _, h := range data.H1s {
		require.True(t, utf8.ValidString(h), "h1 %q", h)
		assert.Contains(t, h, "Ünicode")
	}
}
