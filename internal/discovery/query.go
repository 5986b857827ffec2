package discovery

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mathiasgse/screenfree/internal/rubric"
)

// Query is one search to execute.
type Query struct {
	Text    string
	Region  string
	Country string
}

// BuildQueries expands templates over each preset's microregions and
// keywords in the order preset, template, microregion, keyword, stopping at
// limit.
func BuildQueries(presets []rubric.RegionPreset, templates []string, limit int) []Query {
	var out []Query
	if limit <= 0 {
		return out
	}
	for _, p := range presets {
		for _, tmpl := range templates {
			for _, micro := range p.Microregions {
				for _, kw := range p.Keywords {
					text := strings.Replace(tmpl, "{keyword}", kw, 1)
					text = strings.Replace(text, "{microregion}", micro, 1)
					out = append(out, Query{
						Text:    text,
						Region:  p.Label + " / " + micro,
						Country: p.Country,
					})
					if len(out) >= limit {
						return out
					}
				}
			}
		}
	}
	return out
}

// ResolvePresets selects presets by key, else by country, else all of them.
func ResolvePresets(cat *rubric.Catalog, preset, country string) ([]rubric.RegionPreset, error) {
	switch {
	case preset != "":
		p, ok := cat.Preset(preset)
		if !ok {
			return nil, eris.Wrapf(ErrUnknownPreset, "%q (available: %s)", preset, strings.Join(cat.PresetKeys(), ", "))
		}
		return []rubric.RegionPreset{p}, nil
	case country != "":
		ps := cat.PresetsForCountry(country)
		if len(ps) == 0 {
			return nil, eris.Wrapf(ErrUnknownCountry, "%q (available: %s)", country, strings.Join(cat.CountryCodes(), ", "))
		}
		return ps, nil
	default:
		return cat.Presets, nil
	}
}

// RunLabel names a run after its selection.
func RunLabel(cat *rubric.Catalog, preset, country string) string {
	switch {
	case preset != "":
		if p, ok := cat.Preset(preset); ok {
			return p.Label
		}
		return preset
	case country != "":
		return "Country: " + strings.ToUpper(country)
	default:
		return "All regions"
	}
}
