package model

import "github.com/mathiasgse/screenfree/internal/dedup"

// Listing is a lodging extracted from an aggregator detail page.
type Listing struct {
	Name          string       `json:"name"`
	PlatformURL   string       `json:"platformUrl"`
	OwnWebsiteURL string       `json:"ownWebsiteUrl,omitempty"`
	Region        string       `json:"region"`
	Coordinates   *dedup.Point `json:"coordinates,omitempty"`
	Elevation     string       `json:"elevation,omitempty"`
	Capacity      string       `json:"capacity,omitempty"`
	Price         string       `json:"price,omitempty"`
	Description   string       `json:"description"`
	Images        []string     `json:"images"`
	Rating        *float64     `json:"rating,omitempty"`
	ReviewCount   *int         `json:"reviewCount,omitempty"`
	Platform      string       `json:"source"`
}
