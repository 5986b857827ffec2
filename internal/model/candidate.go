// Package model holds the domain types shared by the discovery pipeline.
package model

import (
	"time"

	"github.com/mathiasgse/screenfree/internal/dedup"
)

// CandidateStatus is the review workflow state of a candidate.
type CandidateStatus string

const (
	StatusNew      CandidateStatus = "new"
	StatusMaybe    CandidateStatus = "maybe"
	StatusAccepted CandidateStatus = "accepted"
	StatusRejected CandidateStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s CandidateStatus) Valid() bool {
	switch s {
	case StatusNew, StatusMaybe, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Candidate is a lodging found by discovery or a platform scraper, awaiting
// human review.
type Candidate struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	WebsiteURL       string          `json:"websiteUrl"`
	MapsURL          string          `json:"mapsUrl,omitempty"`
	ContactEmail     string          `json:"contactEmail,omitempty"`
	Snippet          string          `json:"snippet"`
	Coordinates      *dedup.Point    `json:"coordinates,omitempty"`
	RegionGuess      string          `json:"regionGuess"`
	Source           string          `json:"source"`
	QualityScore     int             `json:"qualityScore"`
	Reasons          []string        `json:"reasons"`
	RiskFlags        []string        `json:"riskFlags"`
	Confidence       float64         `json:"confidence"`
	RatingValue      *float64        `json:"ratingValue,omitempty"`
	ReviewCount      *int            `json:"reviewCount,omitempty"`
	Images           []string        `json:"images"`
	RawData          RawData         `json:"rawData"`
	DedupeKey        string          `json:"dedupeKey"`
	Status           CandidateStatus `json:"status"`
	RejectionReason  string          `json:"rejectionReason,omitempty"`
	GeneratedEmail   string          `json:"generatedEmail,omitempty"`
	NeedsManualCheck bool            `json:"needsManualCheck"`
	DiscoveryRunID   string          `json:"discoveryRunId,omitempty"`
	AcceptedPlaceID  string          `json:"acceptedPlaceId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// CandidateFilter narrows ListCandidates. Zero values mean no filter.
type CandidateFilter struct {
	Status   CandidateStatus
	MinScore int
	Limit    int
	Offset   int
}

// RawKind tags which producer built a candidate.
type RawKind string

const (
	RawSearch  RawKind = "search"
	RawScraper RawKind = "scraper"
)

// RawData is the audit payload stored next to a candidate. Exactly one of
// Search or Scraper is set, matching Kind.
type RawData struct {
	Kind         RawKind            `json:"kind"`
	Search       *SearchOrigin      `json:"search,omitempty"`
	Scraper      *ScraperOrigin     `json:"scraper,omitempty"`
	Enrichment   *EnrichmentSummary `json:"enrichment,omitempty"`
	AI           *AIVerdict         `json:"ai,omitempty"`
	AutoRejected bool               `json:"autoRejected,omitempty"`
}

// SearchOrigin records where in the search results a candidate came from.
type SearchOrigin struct {
	Query    string `json:"query,omitempty"`
	Position int    `json:"position"`
}

// ScraperOrigin keeps the platform listing fields that have no column.
type ScraperOrigin struct {
	Platform    string `json:"platform"`
	PlatformURL string `json:"platformUrl"`
	Elevation   string `json:"elevation,omitempty"`
	Capacity    string `json:"capacity,omitempty"`
	Price       string `json:"price,omitempty"`
}

// EnrichmentSummary is the part of an Enrichment worth keeping for audit.
type EnrichmentSummary struct {
	OffgridCues       []string `json:"offgridCues"`
	ResortPenalties   []string `json:"resortPenalties"`
	RoomCount         *int     `json:"roomCount,omitempty"`
	IsAccommodation   *bool    `json:"isAccommodation,omitempty"`
	AccommodationType string   `json:"accommodationType,omitempty"`
	HasBookingSignals bool     `json:"hasBookingSignals"`
	FetchError        string   `json:"fetchError,omitempty"`
}

// AIVerdict is the editorial part of an AI assessment.
type AIVerdict struct {
	Summary        string `json:"summary"`
	Recommendation string `json:"recommendation"`
}

// OffgridCues returns the cues recorded at enrichment time, if any.
func (r RawData) OffgridCues() []string {
	if r.Enrichment == nil {
		return nil
	}
	return r.Enrichment.OffgridCues
}
