// Package rubric holds the curatorial catalog: region presets, query
// templates, keyword tables and scoring constants.
package rubric

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// RegionPreset is a searchable region with its microregions and lodging keywords.
type RegionPreset struct {
	Key          string   `yaml:"key" json:"key"`
	Label        string   `yaml:"label" json:"label"`
	Country      string   `yaml:"country" json:"country"`
	Microregions []string `yaml:"microregions" json:"microregions"`
	Keywords     []string `yaml:"keywords" json:"keywords"`
}

// WeightedKeyword is a keyword with a signed score contribution.
type WeightedKeyword struct {
	Keyword string `yaml:"keyword"`
	Weight  int    `yaml:"weight"`
}

// EmailRules filter and rank contact addresses found on a website.
type EmailRules struct {
	BlockedPrefixes   []string `yaml:"blocked_prefixes"`
	BlockedDomains    []string `yaml:"blocked_domains"`
	PreferredPrefixes []string `yaml:"preferred_prefixes"`
}

// ScoringWeights are the deterministic scorer's constants.
type ScoringWeights struct {
	Base                   int     `yaml:"base"`
	MaxOffgridBonus        int     `yaml:"max_offgrid_bonus"`
	MaxResortPenalty       int     `yaml:"max_resort_penalty"`
	SchemaBonus            int     `yaml:"schema_bonus"`
	BookingBonus           int     `yaml:"booking_bonus"`
	NoAccommodationPenalty int     `yaml:"no_accommodation_penalty"`
	SmallRoomThreshold     int     `yaml:"small_room_threshold"`
	SmallBonus             int     `yaml:"small_bonus"`
	RatingThreshold        float64 `yaml:"rating_threshold"`
	RatingMinReviews       int     `yaml:"rating_min_reviews"`
	RatingBonus            int     `yaml:"rating_bonus"`
	SnippetWeight          float64 `yaml:"snippet_weight"`
	SnippetMin             int     `yaml:"snippet_min"`
	SnippetMax             int     `yaml:"snippet_max"`
}

// Thresholds are the gate and AI-pass cut-offs.
type Thresholds struct {
	AutoReject  int `yaml:"auto_reject"`
	AutoPromote int `yaml:"auto_promote"`
	AIScore     int `yaml:"ai_score"`
}

// Catalog is the full rubric. It is read-only after Load and safe to share
// between goroutines.
type Catalog struct {
	QueryTemplates  []string          `yaml:"query_templates"`
	Countries       map[string]string `yaml:"countries"`
	Presets         []RegionPreset    `yaml:"presets"`
	OffgridKeywords []WeightedKeyword `yaml:"offgrid_keywords"`
	ResortPenalties []WeightedKeyword `yaml:"resort_penalties"`
	BlockedDomains  []string          `yaml:"blocked_domains"`
	BookingSignals  []string          `yaml:"booking_signals"`
	LodgingTypes    []string          `yaml:"lodging_types"`
	Email           EmailRules        `yaml:"email"`
	Scoring         ScoringWeights    `yaml:"scoring"`
	Thresholds      Thresholds        `yaml:"thresholds"`
}

// Load parses the catalog compiled into the binary.
func Load() (*Catalog, error) {
	return parse(embeddedCatalog)
}

// LoadFile parses a catalog override from disk. An empty path returns the
// embedded catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Load()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rubric: read %s", path)
	}
	return parse(data)
}

// MustLoad is Load for tests and package-level defaults.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "rubric: parse catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the catalog for structural problems.
func (c *Catalog) Validate() error {
	var errs []string

	if len(c.QueryTemplates) == 0 {
		errs = append(errs, "no query templates")
	}
	seen := make(map[string]bool, len(c.Presets))
	for _, p := range c.Presets {
		if p.Key == "" {
			errs = append(errs, "preset with empty key")
			continue
		}
		if seen[p.Key] {
			errs = append(errs, "duplicate preset key "+p.Key)
		}
		seen[p.Key] = true
		if _, ok := c.Countries[p.Country]; !ok {
			errs = append(errs, "preset "+p.Key+" has unknown country "+p.Country)
		}
	}
	for _, k := range c.OffgridKeywords {
		if k.Weight <= 0 {
			errs = append(errs, "offgrid keyword "+k.Keyword+" must have a positive weight")
		}
	}
	for _, k := range c.ResortPenalties {
		if k.Weight >= 0 {
			errs = append(errs, "resort penalty "+k.Keyword+" must have a negative weight")
		}
	}
	t := c.Thresholds
	if t.AutoReject >= t.AutoPromote {
		errs = append(errs, "auto_reject threshold must be below auto_promote")
	}
	if c.Scoring.SnippetMin > c.Scoring.SnippetMax {
		errs = append(errs, "snippet_min must not exceed snippet_max")
	}

	if len(errs) > 0 {
		return eris.Errorf("rubric: invalid catalog: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Preset returns the preset with the given key.
func (c *Catalog) Preset(key string) (RegionPreset, bool) {
	for _, p := range c.Presets {
		if p.Key == key {
			return p, true
		}
	}
	return RegionPreset{}, false
}

// PresetsForCountry returns all presets of a two-letter country code, in
// catalog order.
func (c *Catalog) PresetsForCountry(country string) []RegionPreset {
	country = strings.ToUpper(country)
	var out []RegionPreset
	for _, p := range c.Presets {
		if p.Country == country {
			out = append(out, p)
		}
	}
	return out
}

// PresetKeys lists every preset key in catalog order.
func (c *Catalog) PresetKeys() []string {
	keys := make([]string, len(c.Presets))
	for i, p := range c.Presets {
		keys[i] = p.Key
	}
	return keys
}

// CountryCodes lists the supported country codes, sorted.
func (c *Catalog) CountryCodes() []string {
	codes := make([]string, 0, len(c.Countries))
	for cc := range c.Countries {
		codes = append(codes, cc)
	}
	sort.Strings(codes)
	return codes
}

// IsBlockedDomain reports whether host belongs to a blocked aggregator.
func (c *Catalog) IsBlockedDomain(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, d := range c.BlockedDomains {
		if strings.HasSuffix(d, ".") {
			// Brand prefix, any TLD.
			if strings.HasPrefix(host, d) || strings.Contains(host, "."+d) {
				return true
			}
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// IsLodgingType reports whether a schema.org @type is in the lodging allow-list.
func (c *Catalog) IsLodgingType(t string) bool {
	for _, lt := range c.LodgingTypes {
		if lt == t {
			return true
		}
	}
	return false
}
