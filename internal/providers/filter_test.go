package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"newscrunch/internal/core"
)

func TestAllowedBlacklistSegment(t *testing.T) {
	assert.False(t, Allowed("CNN", "https://edition.cnn.com/sport/football/match-report"))
	assert.True(t, Allowed("CNN", "https://edition.cnn.com/2025/08/20/politics/senate-vote"))
}

func TestAllowedSegmentBoundaries(t *testing.T) {
	// "sport" is blacklisted but "sports" is a different segment.
	assert.True(t, Allowed("CNN", "https://edition.cnn.com/esports/tournament"))
	// Blacklisted segments match between dots as well as slashes.
	assert.False(t, Allowed("9 News", "https://www.domain.com.au/some-listing"))
}

func TestAllowedUnknownProviderAcceptsAll(t *testing.T) {
	assert.True(t, Allowed("Al Jazeera", "https://www.aljazeera.com/sport/whatever"))
}

func TestAllowedMinURLLength(t *testing.T) {
	assert.False(t, Allowed("The Telegraph", "https://www.telegraph.co.uk/news/"))
	assert.True(t, Allowed("The Telegraph",
		"https://www.telegraph.co.uk/world-news/2025/08/20/some-long-article-slug-here/"))
}

func TestCriteriaWhitelist(t *testing.T) {
	c := Criteria{Whitelist: []string{"news"}, Blacklist: []string{"opinion"}}
	assert.True(t, c.Allows("https://example.com/news/story-one"))
	assert.False(t, c.Allows("https://example.com/weather/today"))
	assert.False(t, c.Allows("https://example.com/news/opinion/column"))
}

func TestZoneCountryDefault(t *testing.T) {
	loc, err := Zone(core.Provider{Name: "BBC", Country: "UK"})
	assert.NoError(t, err)
	assert.Equal(t, "Europe/London", loc.String())
}

func TestZoneProviderOverride(t *testing.T) {
	loc, err := Zone(core.Provider{Name: "The Associated Press", Country: "USA", Timezone: "Australia/Sydney"})
	assert.NoError(t, err)
	assert.Equal(t, "Australia/Sydney", loc.String())
}

func TestZoneUnknownCountry(t *testing.T) {
	_, err := Zone(core.Provider{Name: "X", Country: "Atlantis"})
	assert.Error(t, err)
}
