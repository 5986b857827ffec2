package discovery

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mathiasgse/screenfree/internal/lock"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/store"
)

// UpsertResult says what an upsert did.
type UpsertResult string

const (
	Created UpsertResult = "created"
	Updated UpsertResult = "updated"
	Skipped UpsertResult = "skipped"
)

// Upsert writes c under its dedupe key. An existing candidate is refreshed
// only while its status is still new; reviewed candidates are skipped. The
// per-key lock serializes concurrent runs, and the conditional update still
// protects a review that lands between lookup and write.
func Upsert(ctx context.Context, st store.Store, locker lock.Locker, c *model.Candidate, runID string) (UpsertResult, error) {
	if locker == nil {
		locker = lock.Noop{}
	}
	release, err := locker.Acquire(ctx, c.DedupeKey)
	if err != nil {
		return "", eris.Wrapf(err, "upsert: lock %s", c.DedupeKey)
	}
	defer release()

	c.DiscoveryRunID = runID

	// A second pass covers an insert lost to a writer without the lock.
	for range 2 {
		existing, err := st.FindCandidateByDedupeKey(ctx, c.DedupeKey)
		if eris.Is(err, store.ErrNotFound) {
			created, err := st.CreateCandidate(ctx, c)
			if err != nil {
				return "", eris.Wrap(err, "upsert: create")
			}
			if created {
				return Created, nil
			}
			continue
		}
		if err != nil {
			return "", eris.Wrap(err, "upsert: find")
		}

		if existing.Status != model.StatusNew {
			return Skipped, nil
		}
		ok, err := st.UpdateCandidateIfNew(ctx, c)
		if err != nil {
			return "", eris.Wrap(err, "upsert: update")
		}
		if !ok {
			return Skipped, nil
		}
		c.ID = existing.ID
		return Updated, nil
	}
	return Skipped, nil
}
