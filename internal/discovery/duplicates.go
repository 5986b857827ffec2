package discovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/store"
)

const (
	nearbyRadiusMeters = 500
	nearbyLimit        = 20
)

// flagPossibleDuplicate adds a risk flag when a stored candidate under a
// different dedupe key has a similar name within walking distance. Lookup
// failures only cost the hint.
func flagPossibleDuplicate(ctx context.Context, st store.Store, c *model.Candidate) {
	if c.Coordinates == nil || !c.Coordinates.Valid() {
		return
	}
	near, err := st.FindCandidatesNear(ctx, *c.Coordinates, nearbyRadiusMeters, nearbyLimit)
	if err != nil {
		zap.L().Debug("discovery: nearby lookup failed", zap.String("dedupe_key", c.DedupeKey), zap.Error(err))
		return
	}
	if other := possibleDuplicate(c, near); other != nil {
		c.RiskFlags = append(c.RiskFlags, fmt.Sprintf("Possible duplicate of %s (%s)", other.Name, other.DedupeKey))
	}
}

func possibleDuplicate(c *model.Candidate, near []model.Candidate) *model.Candidate {
	for i := range near {
		o := &near[i]
		if o.DedupeKey == c.DedupeKey || o.Coordinates == nil {
			continue
		}
		if dedup.IsNearby(*c.Coordinates, *o.Coordinates) && dedup.IsFuzzyMatch(c.Name, o.Name) {
			return o
		}
	}
	return nil
}
