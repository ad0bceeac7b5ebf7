// Package providers holds the static per-provider crawl configuration: the
// URL filter table and the publish-timezone defaults.
package providers

import "strings"

// Criteria filters candidate article URLs for one provider. A URL passes when
// at least one whitelist segment appears in it (if a whitelist is set) and no
// blacklist segment does. Segments are the parts of the URL between slashes
// or dots, so a blacklisted "sport" matches "/sport/" but not "/sports/".
type Criteria struct {
	Whitelist []string
	Blacklist []string
	// MinURLLen rejects URLs shorter than this many bytes. The Telegraph
	// links its section fronts with short vanity URLs that parse as articles.
	MinURLLen int
}

// Allows reports whether the URL passes the criteria.
func (c Criteria) Allows(rawURL string) bool {
	if c.MinURLLen > 0 && len(rawURL) < c.MinURLLen {
		return false
	}
	segments := splitSegments(rawURL)
	if len(c.Whitelist) > 0 {
		found := false
		for _, w := range c.Whitelist {
			if _, ok := segments[w]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, b := range c.Blacklist {
		if _, ok := segments[b]; ok {
			return false
		}
	}
	return true
}

func splitSegments(rawURL string) map[string]struct{} {
	parts := strings.FieldsFunc(rawURL, func(r rune) bool {
		return r == '/' || r == '.'
	})
	segments := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		segments[p] = struct{}{}
	}
	return segments
}

// criteria maps provider name to its URL filter. Providers absent from the
// table accept everything.
var criteria = map[string]Criteria{
	"The Washington Post": {Blacklist: []string{"food", "advice", "sports", "style", "lifestyle", "podcasts"}},
	"NPR":                 {Blacklist: []string{"sections", "series", "podcasts", "transcripts"}},
	"CNN":                 {Blacklist: []string{"entertainment", "travel", "cars", "sport", "style"}},
	"The New York Times":  {Blacklist: []string{"arts", "podcasts", "crosswords"}},
	"Fox News":            {Blacklist: []string{"media", "sports", "entertainment", "lifestyle", "personal-finance", "travel"}},
	"ABC":                 {Blacklist: []string{"everyday"}},
	"The Sydney Morning Herald": {
		Blacklist: []string{"property", "sport", "culture", "goodfood", "living", "topic", "traveller", "domain"},
	},
	"SBS":    {Blacklist: []string{"audio", "whats-on", "sport", "food"}},
	"9 News": {Blacklist: []string{"nrl", "olympics", "motorsport", "domain"}},
	"The Age": {
		Blacklist: []string{"property", "goodfood", "culture", "sport", "living", "drive"},
	},
	"The Guardian Australia": {
		Blacklist: []string{"film", "books", "lifeandstyle", "tv-and-radio", "sport", "society", "football"},
	},
	"The Guardian": {
		Blacklist: []string{"film", "books", "lifeandstyle", "tv-and-radio", "sport", "society", "football"},
	},
	"Financial Review": {Blacklist: []string{"life-and-luxury", "topic"}},
	"Euronews":         {Blacklist: []string{"culture", "travel"}},
	"Hindustan Times":  {Blacklist: []string{"lifestyle", "trending", "entertainment", "cricket"}},
	"The Globe and Mail": {
		Blacklist: []string{"podcast", "arts", "sports", "drive", "standards-editor", "life", "real-estate"},
	},
	"The Telegraph": {
		MinURLLen: 50,
		Blacklist: []string{"travel", "health-fitness", "golf", "rugby-union", "s", "football", "snooker", "sport", "royal-family", "cricket"},
	},
}

// Allowed reports whether the provider's filter accepts the URL.
func Allowed(providerName, rawURL string) bool {
	c, ok := criteria[providerName]
	if !ok {
		return true
	}
	return c.Allows(rawURL)
}
