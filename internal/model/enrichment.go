package model

import "github.com/mathiasgse/screenfree/internal/dedup"

// Enrichment is what a fetch of a candidate's own website revealed.
// A non-empty FetchError means the other fields are unset.
type Enrichment struct {
	OffgridCues       []string
	ResortPenalties   []string
	RoomCount         *int
	Coordinates       *dedup.Point
	Images            []string
	AboutText         string
	FetchError        string
	IsAccommodation   *bool
	AccommodationType string
	HasBookingSignals bool
	ContactEmail      string
}

// Fetched reports whether the page was retrieved.
func (e *Enrichment) Fetched() bool { return e.FetchError == "" }

// Summary extracts the audit fields.
func (e *Enrichment) Summary() *EnrichmentSummary {
	if e == nil {
		return nil
	}
	return &EnrichmentSummary{
		OffgridCues:       nonNil(e.OffgridCues),
		ResortPenalties:   nonNil(e.ResortPenalties),
		RoomCount:         e.RoomCount,
		IsAccommodation:   e.IsAccommodation,
		AccommodationType: e.AccommodationType,
		HasBookingSignals: e.HasBookingSignals,
		FetchError:        e.FetchError,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
