package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/mathiasgse/screenfree/internal/db"
	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
)

// PostgresStore implements Store on PostgreSQL with PostGIS. Candidate
// coordinates live in a geometry(Point, 4326) column.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore on an open pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies the embedded schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, s.pool)
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const pgRunColumns = `id, preset, query, region, status, started_at, completed_at,
	candidates_found, new_candidates, duplicates_skipped, error_count,
	phase, processed, total, error_message`

func (s *PostgresStore) CreateRun(ctx context.Context, preset, query, region string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Preset:    preset,
		Query:     query,
		Region:    region,
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
		Progress:  model.RunProgress{Phase: model.PhaseSearching},
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO discovery_runs (id, preset, query, region, status, started_at, phase)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, preset, query, region, string(run.Status), run.StartedAt, string(run.Progress.Phase),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) UpdateRunProgress(ctx context.Context, id string, p model.RunProgress, st model.RunStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET phase = $1, processed = $2, total = $3,
		 candidates_found = $4, new_candidates = $5, duplicates_skipped = $6, error_count = $7
		 WHERE id = $8`,
		string(p.Phase), p.Processed, p.Total,
		st.CandidatesFound, st.NewCandidates, st.DuplicatesSkipped, st.ErrorCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run progress %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, id string, p model.RunProgress, st model.RunStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET status = $1, completed_at = $2, phase = $3, processed = $4, total = $5,
		 candidates_found = $6, new_candidates = $7, duplicates_skipped = $8, error_count = $9
		 WHERE id = $10`,
		string(model.RunCompleted), time.Now().UTC(), string(p.Phase), p.Processed, p.Total,
		st.CandidatesFound, st.NewCandidates, st.DuplicatesSkipped, st.ErrorCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, id, message string, st model.RunStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET status = $1, completed_at = $2, error_message = $3,
		 candidates_found = $4, new_candidates = $5, duplicates_skipped = $6, error_count = $7
		 WHERE id = $8`,
		string(model.RunFailed), time.Now().UTC(), TruncateMessage(message),
		st.CandidatesFound, st.NewCandidates, st.DuplicatesSkipped, st.ErrorCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM discovery_runs WHERE id = $1`, id))
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM discovery_runs ORDER BY started_at DESC LIMIT $1`, runLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var errMsg *string
	err := row.Scan(&r.ID, &r.Preset, &r.Query, &r.Region, &r.Status, &r.StartedAt, &r.CompletedAt,
		&r.Stats.CandidatesFound, &r.Stats.NewCandidates, &r.Stats.DuplicatesSkipped, &r.Stats.ErrorCount,
		&r.Progress.Phase, &r.Progress.Processed, &r.Progress.Total, &errMsg)
	if err != nil {
		return nil, err
	}
	r.ErrorMessage = deref(errMsg)
	return &r, nil
}

const pgCandidateColumns = `id, name, website_url, maps_url, contact_email, snippet, ST_AsEWKB(location),
	region_guess, source, quality_score, reasons, risk_flags, confidence, rating_value, review_count,
	images, raw_data, status, rejection_reason, generated_email, needs_manual_check, dedupe_key,
	discovery_run_id, accepted_place_id, created_at, updated_at`

func (s *PostgresStore) FindCandidateByDedupeKey(ctx context.Context, key string) (*model.Candidate, error) {
	c, err := scanPgCandidate(s.pool.QueryRow(ctx,
		`SELECT `+pgCandidateColumns+` FROM candidate_places WHERE dedupe_key = $1`, key))
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: candidate with key %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find candidate %s", key)
	}
	return c, nil
}

func (s *PostgresStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := scanPgCandidate(s.pool.QueryRow(ctx,
		`SELECT `+pgCandidateColumns+` FROM candidate_places WHERE id = $1`, id))
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: candidate %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get candidate %s", id)
	}
	return c, nil
}

func (s *PostgresStore) CreateCandidate(ctx context.Context, c *model.Candidate) (bool, error) {
	enc, err := encodeCandidate(c)
	if err != nil {
		return false, err
	}
	loc, err := encodePoint(c.Coordinates)
	if err != nil {
		return false, err
	}
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO candidate_places (id, name, website_url, maps_url, contact_email, snippet, location,
		 region_guess, source, quality_score, reasons, risk_flags, confidence, rating_value, review_count,
		 images, raw_data, status, needs_manual_check, dedupe_key, discovery_run_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, ST_GeomFromEWKB($7), $8, $9, $10, $11, $12, $13, $14, $15,
		 $16, $17, $18, $19, $20, $21, $22, $22)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		id, c.Name, c.WebsiteURL, nullable(c.MapsURL), nullable(c.ContactEmail), c.Snippet, loc,
		c.RegionGuess, c.Source, c.QualityScore, enc.reasons, enc.riskFlags, c.Confidence, c.RatingValue, c.ReviewCount,
		enc.images, enc.rawData, string(model.StatusNew), c.NeedsManualCheck, c.DedupeKey, nullable(c.DiscoveryRunID), now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert candidate %s", c.DedupeKey)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	c.ID, c.Status, c.CreatedAt, c.UpdatedAt = id, model.StatusNew, now, now
	return true, nil
}

func (s *PostgresStore) UpdateCandidateIfNew(ctx context.Context, c *model.Candidate) (bool, error) {
	enc, err := encodeCandidate(c)
	if err != nil {
		return false, err
	}
	loc, err := encodePoint(c.Coordinates)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE candidate_places SET name = $1, website_url = $2, maps_url = $3, contact_email = $4,
		 snippet = $5, location = ST_GeomFromEWKB($6), region_guess = $7, source = $8, quality_score = $9,
		 reasons = $10, risk_flags = $11, confidence = $12, rating_value = $13, review_count = $14,
		 images = $15, raw_data = $16, needs_manual_check = $17, discovery_run_id = $18, updated_at = $19
		 WHERE dedupe_key = $20 AND status = 'new'`,
		c.Name, c.WebsiteURL, nullable(c.MapsURL), nullable(c.ContactEmail),
		c.Snippet, loc, c.RegionGuess, c.Source, c.QualityScore,
		enc.reasons, enc.riskFlags, c.Confidence, c.RatingValue, c.ReviewCount,
		enc.images, enc.rawData, c.NeedsManualCheck, nullable(c.DiscoveryRunID), time.Now().UTC(),
		c.DedupeKey,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update candidate %s", c.DedupeKey)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetCandidateStatus(ctx context.Context, id string, u StatusUpdate) error {
	if !u.Status.Valid() {
		return eris.Errorf("postgres: invalid status %q", u.Status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidate_places SET status = $1, rejection_reason = $2,
		 accepted_place_id = COALESCE($3, accepted_place_id),
		 generated_email = COALESCE($4, generated_email), updated_at = $5
		 WHERE id = $6`,
		string(u.Status), nullable(u.RejectionReason), nullable(u.AcceptedPlaceID),
		nullable(u.GeneratedEmail), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set candidate status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: candidate %s", id)
	}
	return nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, f model.CandidateFilter) ([]model.Candidate, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.MinScore > 0 {
		where = append(where, "quality_score >= "+arg(f.MinScore))
	}

	query := `SELECT ` + pgCandidateColumns + ` FROM candidate_places`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY quality_score DESC, created_at DESC LIMIT " + arg(candidateLimit(f.Limit))
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}
	return s.queryCandidates(ctx, query, args...)
}

func (s *PostgresStore) FindCandidatesNear(ctx context.Context, center dedup.Point, radiusMeters float64, limit int) ([]model.Candidate, error) {
	lo, hi := dedup.BoundingBox(center, radiusMeters)
	return s.queryCandidates(ctx,
		`SELECT `+pgCandidateColumns+` FROM candidate_places
		 WHERE location && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		 LIMIT $5`,
		lo.Lng, lo.Lat, hi.Lng, hi.Lat, candidateLimit(limit),
	)
}

func (s *PostgresStore) queryCandidates(ctx context.Context, query string, args ...any) ([]model.Candidate, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query candidates")
	}
	defer rows.Close()

	out := []model.Candidate{}
	for rows.Next() {
		c, err := scanPgCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query candidates iterate")
}

func scanPgCandidate(row pgx.Row) (*model.Candidate, error) {
	var c model.Candidate
	var enc candidateJSON
	var loc []byte
	var mapsURL, email, rejection, genEmail, runID, placeID *string

	err := row.Scan(&c.ID, &c.Name, &c.WebsiteURL, &mapsURL, &email, &c.Snippet, &loc,
		&c.RegionGuess, &c.Source, &c.QualityScore, &enc.reasons, &enc.riskFlags, &c.Confidence,
		&c.RatingValue, &c.ReviewCount, &enc.images, &enc.rawData, &c.Status, &rejection, &genEmail,
		&c.NeedsManualCheck, &c.DedupeKey, &runID, &placeID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := enc.decodeInto(&c); err != nil {
		return nil, err
	}
	if c.Coordinates, err = decodePoint(loc); err != nil {
		return nil, err
	}
	c.MapsURL, c.ContactEmail = deref(mapsURL), deref(email)
	c.RejectionReason, c.GeneratedEmail = deref(rejection), deref(genEmail)
	c.DiscoveryRunID, c.AcceptedPlaceID = deref(runID), deref(placeID)
	return &c, nil
}

func (s *PostgresStore) CreatePlaceDraft(ctx context.Context, p *model.PlaceDraft) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	why, err := marshalList(p.WhyDisconnect)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal why disconnect")
	}
	attrs, err := marshalList(p.Attributes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal attributes")
	}
	loc, err := encodePoint(p.Coordinates)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO places (id, title, slug, region_id, location, why_disconnect, attributes,
		 seo_title, seo_description, outbound_url, status, candidate_id, created_at)
		 VALUES ($1, $2, $3, $4, ST_GeomFromEWKB($5), $6, $7, $8, $9, $10, 'draft', $11, $12)`,
		p.ID, p.Title, p.Slug, nullable(p.RegionID), loc, why, attrs,
		p.SEOTitle, p.SEODescription, nullable(p.OutboundURL), p.CandidateID, p.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert place draft for %s", p.CandidateID)
}

func (s *PostgresStore) DeletePlaceDraft(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM places WHERE id = $1 AND status = 'draft'`, id)
	return eris.Wrapf(err, "postgres: delete place draft %s", id)
}

func (s *PostgresStore) ListRegions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, title, slug FROM regions ORDER BY title`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list regions")
	}
	defer rows.Close()

	var out []model.Region
	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list regions iterate")
}

// encodePoint renders p as SRID 4326 EWKB, or nil for a missing point.
func encodePoint(p *dedup.Point) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	g := geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode location")
	}
	return data, nil
}

func decodePoint(data []byte) (*dedup.Point, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: decode location")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("postgres: location is %T, want point", g)
	}
	return &dedup.Point{Lat: pt.Y(), Lng: pt.X()}, nil
}

var _ Store = (*PostgresStore)(nil)
