package providers

import (
	"fmt"
	"time"

	"newscrunch/internal/core"
)

// countryZones maps a provider's country to the timezone its publish
// timestamps are assumed to be in when the provider has no override.
var countryZones = map[string]string{
	"Australia": "Australia/Sydney",
	"UK":        "Europe/London",
	"USA":       "America/New_York",
	"Canada":    "America/Toronto",
	"France":    "Europe/Paris",
	"Europe":    "Europe/Paris",
	"India":     "Asia/Kolkata",
	"Qatar":     "Asia/Qatar",
}

// Zone resolves the timezone a provider publishes in. A provider-level
// override wins over the country default.
func Zone(p core.Provider) (*time.Location, error) {
	name := p.Timezone
	if name == "" {
		var ok bool
		name, ok = countryZones[p.Country]
		if !ok {
			return nil, fmt.Errorf("no timezone for country %q (provider %q)", p.Country, p.Name)
		}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("bad timezone %q for provider %q: %w", name, p.Name, err)
	}
	return loc, nil
}
