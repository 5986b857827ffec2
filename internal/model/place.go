package model

import (
	"time"

	"github.com/mathiasgse/screenfree/internal/dedup"
)

// Region is an editorial region places are filed under.
type Region struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// PlaceDraft is an unpublished place created when a candidate is accepted.
type PlaceDraft struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Slug           string       `json:"slug"`
	RegionID       string       `json:"regionId,omitempty"`
	Coordinates    *dedup.Point `json:"coordinates,omitempty"`
	WhyDisconnect  []string     `json:"whyDisconnect"`
	Attributes     []string     `json:"attributes"`
	SEOTitle       string       `json:"seoTitle"`
	SEODescription string       `json:"seoDescription"`
	OutboundURL    string       `json:"outboundUrl,omitempty"`
	CandidateID    string       `json:"candidateId"`
	CreatedAt      time.Time    `json:"createdAt"`
}
