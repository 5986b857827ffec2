// Package store persists discovery runs, candidates and place drafts.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/mathiasgse/screenfree/internal/config"
	"github.com/mathiasgse/screenfree/internal/db"
	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
)

// ErrNotFound is returned when a run, candidate or region does not exist.
var ErrNotFound = eris.New("store: not found")

// StatusUpdate is a review decision applied to a candidate.
type StatusUpdate struct {
	Status          model.CandidateStatus
	RejectionReason string
	AcceptedPlaceID string
	GeneratedEmail  string
}

// Store defines the persistence contract of the discovery pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, preset, query, region string) (*model.Run, error)
	UpdateRunProgress(ctx context.Context, id string, progress model.RunProgress, stats model.RunStats) error
	CompleteRun(ctx context.Context, id string, progress model.RunProgress, stats model.RunStats) error
	FailRun(ctx context.Context, id, message string, stats model.RunStats) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Candidates
	FindCandidateByDedupeKey(ctx context.Context, key string) (*model.Candidate, error)
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	// CreateCandidate inserts c unless its dedupe key exists. It reports
	// whether a row was written and assigns c.ID when it was.
	CreateCandidate(ctx context.Context, c *model.Candidate) (bool, error)
	// UpdateCandidateIfNew refreshes the discovered fields of the row with
	// c's dedupe key while its status is still new.
	UpdateCandidateIfNew(ctx context.Context, c *model.Candidate) (bool, error)
	SetCandidateStatus(ctx context.Context, id string, u StatusUpdate) error
	ListCandidates(ctx context.Context, f model.CandidateFilter) ([]model.Candidate, error)
	// FindCandidatesNear returns candidates inside the bounding box of the
	// circle around center. Callers refine by exact distance.
	FindCandidatesNear(ctx context.Context, center dedup.Point, radiusMeters float64, limit int) ([]model.Candidate, error)

	// Places
	CreatePlaceDraft(ctx context.Context, p *model.PlaceDraft) error
	// DeletePlaceDraft removes a place that is still a draft.
	DeletePlaceDraft(ctx context.Context, id string) error
	ListRegions(ctx context.Context) ([]model.Region, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const (
	defaultRunLimit       = 20
	defaultCandidateLimit = 50
	maxErrorMessage       = 2000
)

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s := NewPostgres(pool)
		s.closeFn = pool.Close
		return s, nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// TruncateMessage caps a run failure message at 2000 characters.
func TruncateMessage(msg string) string {
	r := []rune(msg)
	if len(r) <= maxErrorMessage {
		return msg
	}
	return string(r[:maxErrorMessage])
}

func marshalList(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}

func unmarshalList(data []byte) ([]string, error) {
	out := []string{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func runLimit(n int) int {
	if n <= 0 {
		return defaultRunLimit
	}
	return n
}

func candidateLimit(n int) int {
	if n <= 0 {
		return defaultCandidateLimit
	}
	return n
}

// candidateJSON holds a candidate's JSON-encoded columns.
type candidateJSON struct {
	reasons, riskFlags, images, rawData []byte
}

func encodeCandidate(c *model.Candidate) (candidateJSON, error) {
	var out candidateJSON
	var err error
	if out.reasons, err = marshalList(c.Reasons); err != nil {
		return out, eris.Wrap(err, "store: marshal reasons")
	}
	if out.riskFlags, err = marshalList(c.RiskFlags); err != nil {
		return out, eris.Wrap(err, "store: marshal risk flags")
	}
	if out.images, err = marshalList(c.Images); err != nil {
		return out, eris.Wrap(err, "store: marshal images")
	}
	if out.rawData, err = json.Marshal(c.RawData); err != nil {
		return out, eris.Wrap(err, "store: marshal raw data")
	}
	return out, nil
}

func (j candidateJSON) decodeInto(c *model.Candidate) error {
	var err error
	if c.Reasons, err = unmarshalList(j.reasons); err != nil {
		return eris.Wrap(err, "store: unmarshal reasons")
	}
	if c.RiskFlags, err = unmarshalList(j.riskFlags); err != nil {
		return eris.Wrap(err, "store: unmarshal risk flags")
	}
	if c.Images, err = unmarshalList(j.images); err != nil {
		return eris.Wrap(err, "store: unmarshal images")
	}
	if len(j.rawData) > 0 {
		if err := json.Unmarshal(j.rawData, &c.RawData); err != nil {
			return eris.Wrap(err, "store: unmarshal raw data")
		}
	}
	return nil
}
