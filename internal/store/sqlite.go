package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Coordinates are
// kept as two REAL columns and JSON values as TEXT.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS discovery_runs (
	id                 TEXT PRIMARY KEY,
	preset             TEXT NOT NULL,
	query              TEXT NOT NULL DEFAULT '',
	region             TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'running',
	started_at         DATETIME NOT NULL,
	completed_at       DATETIME,
	candidates_found   INTEGER NOT NULL DEFAULT 0,
	new_candidates     INTEGER NOT NULL DEFAULT 0,
	duplicates_skipped INTEGER NOT NULL DEFAULT 0,
	error_count        INTEGER NOT NULL DEFAULT 0,
	phase              TEXT NOT NULL DEFAULT 'searching',
	processed          INTEGER NOT NULL DEFAULT 0,
	total              INTEGER NOT NULL DEFAULT 0,
	error_message      TEXT
);

CREATE TABLE IF NOT EXISTS candidate_places (
	id                 TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	website_url        TEXT NOT NULL,
	maps_url           TEXT,
	contact_email      TEXT,
	snippet            TEXT NOT NULL DEFAULT '',
	lat                REAL,
	lng                REAL,
	region_guess       TEXT NOT NULL DEFAULT '',
	source             TEXT NOT NULL,
	quality_score      INTEGER NOT NULL,
	reasons            TEXT NOT NULL DEFAULT '[]',
	risk_flags         TEXT NOT NULL DEFAULT '[]',
	confidence         REAL NOT NULL,
	rating_value       REAL,
	review_count       INTEGER,
	images             TEXT NOT NULL DEFAULT '[]',
	raw_data           TEXT NOT NULL DEFAULT '{}',
	status             TEXT NOT NULL DEFAULT 'new',
	rejection_reason   TEXT,
	generated_email    TEXT,
	needs_manual_check INTEGER NOT NULL DEFAULT 0,
	dedupe_key         TEXT NOT NULL UNIQUE,
	discovery_run_id   TEXT,
	accepted_place_id  TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS regions (
	id    TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	slug  TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS places (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	slug            TEXT NOT NULL,
	region_id       TEXT REFERENCES regions(id),
	lat             REAL,
	lng             REAL,
	why_disconnect  TEXT NOT NULL DEFAULT '[]',
	attributes      TEXT NOT NULL DEFAULT '[]',
	seo_title       TEXT NOT NULL DEFAULT '',
	seo_description TEXT NOT NULL DEFAULT '',
	outbound_url    TEXT,
	status          TEXT NOT NULL DEFAULT 'draft',
	candidate_id    TEXT REFERENCES candidate_places(id),
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_discovery_runs_started_at ON discovery_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_candidate_places_status_score ON candidate_places(status, quality_score);
CREATE INDEX IF NOT EXISTS idx_candidate_places_lat_lng ON candidate_places(lat, lng);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddRegion inserts an editorial region. Regions are managed outside the
// pipeline; this exists for seeding local databases.
func (s *SQLiteStore) AddRegion(ctx context.Context, r model.Region) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO regions (id, title, slug) VALUES (?, ?, ?)`, r.ID, r.Title, r.Slug)
	return eris.Wrapf(err, "sqlite: insert region %s", r.Slug)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, preset, query, region string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Preset:    preset,
		Query:     query,
		Region:    region,
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
		Progress:  model.RunProgress{Phase: model.PhaseSearching},
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO discovery_runs (id, preset, query, region, status, started_at, phase)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, preset, query, region, string(run.Status), run.StartedAt, string(run.Progress.Phase),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunProgress(ctx context.Context, id string, p model.RunProgress, st model.RunStats) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET phase = ?, processed = ?, total = ?,
		 candidates_found = ?, new_candidates = ?, duplicates_skipped = ?, error_count = ?
		 WHERE id = ?`,
		string(p.Phase), p.Processed, p.Total,
		st.CandidatesFound, st.NewCandidates, st.DuplicatesSkipped, st.ErrorCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run progress %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, p model.RunProgress, st model.RunStats) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET status = ?, completed_at = ?, phase = ?, processed = ?, total = ?,
		 candidates_found = ?, new_candidates = ?, duplicates_skipped = ?, error_count = ?
		 WHERE id = ?`,
		string(model.RunCompleted), time.Now().UTC(), string(p.Phase), p.Processed, p.Total,
		st.CandidatesFound, st.NewCandidates, st.DuplicatesSkipped, st.ErrorCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) FailRun(ctx context.Context, id, message string, st model.RunStats) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET status = ?, completed_at = ?, error_message = ?,
		 candidates_found = ?, new_candidates = ?, duplicates_skipped = ?, error_count = ?
		 WHERE id = ?`,
		string(model.RunFailed), time.Now().UTC(), TruncateMessage(message),
		st.CandidatesFound, st.NewCandidates, st.DuplicatesSkipped, st.ErrorCount, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", id)
	}
	return checkRowsAffected(res, "run", id)
}

const sqliteRunColumns = `id, preset, query, region, status, started_at, completed_at,
	candidates_found, new_candidates, duplicates_skipped, error_count,
	phase, processed, total, error_message`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM discovery_runs WHERE id = ?`, id))
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM discovery_runs ORDER BY started_at DESC LIMIT ?`, runLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

const sqliteCandidateColumns = `id, name, website_url, maps_url, contact_email, snippet, lat, lng,
	region_guess, source, quality_score, reasons, risk_flags, confidence, rating_value, review_count,
	images, raw_data, status, rejection_reason, generated_email, needs_manual_check, dedupe_key,
	discovery_run_id, accepted_place_id, created_at, updated_at`

func (s *SQLiteStore) FindCandidateByDedupeKey(ctx context.Context, key string) (*model.Candidate, error) {
	c, err := scanCandidate(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCandidateColumns+` FROM candidate_places WHERE dedupe_key = ?`, key))
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: candidate with key %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find candidate %s", key)
	}
	return c, nil
}

func (s *SQLiteStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := scanCandidate(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCandidateColumns+` FROM candidate_places WHERE id = ?`, id))
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: candidate %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get candidate %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) CreateCandidate(ctx context.Context, c *model.Candidate) (bool, error) {
	enc, err := encodeCandidate(c)
	if err != nil {
		return false, err
	}
	lat, lng := latLng(c.Coordinates)
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO candidate_places (id, name, website_url, maps_url, contact_email, snippet, lat, lng,
		 region_guess, source, quality_score, reasons, risk_flags, confidence, rating_value, review_count,
		 images, raw_data, status, needs_manual_check, dedupe_key, discovery_run_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		id, c.Name, c.WebsiteURL, nullable(c.MapsURL), nullable(c.ContactEmail), c.Snippet, lat, lng,
		c.RegionGuess, c.Source, c.QualityScore, string(enc.reasons), string(enc.riskFlags), c.Confidence,
		c.RatingValue, c.ReviewCount, string(enc.images), string(enc.rawData), string(model.StatusNew),
		c.NeedsManualCheck, c.DedupeKey, nullable(c.DiscoveryRunID), now, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert candidate %s", c.DedupeKey)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return false, nil
	}
	c.ID, c.Status, c.CreatedAt, c.UpdatedAt = id, model.StatusNew, now, now
	return true, nil
}

func (s *SQLiteStore) UpdateCandidateIfNew(ctx context.Context, c *model.Candidate) (bool, error) {
	enc, err := encodeCandidate(c)
	if err != nil {
		return false, err
	}
	lat, lng := latLng(c.Coordinates)

	res, err := s.db.ExecContext(ctx,
		`UPDATE candidate_places SET name = ?, website_url = ?, maps_url = ?, contact_email = ?,
		 snippet = ?, lat = ?, lng = ?, region_guess = ?, source = ?, quality_score = ?,
		 reasons = ?, risk_flags = ?, confidence = ?, rating_value = ?, review_count = ?,
		 images = ?, raw_data = ?, needs_manual_check = ?, discovery_run_id = ?, updated_at = ?
		 WHERE dedupe_key = ? AND status = 'new'`,
		c.Name, c.WebsiteURL, nullable(c.MapsURL), nullable(c.ContactEmail),
		c.Snippet, lat, lng, c.RegionGuess, c.Source, c.QualityScore,
		string(enc.reasons), string(enc.riskFlags), c.Confidence, c.RatingValue, c.ReviewCount,
		string(enc.images), string(enc.rawData), c.NeedsManualCheck, nullable(c.DiscoveryRunID), time.Now().UTC(),
		c.DedupeKey,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update candidate %s", c.DedupeKey)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetCandidateStatus(ctx context.Context, id string, u StatusUpdate) error {
	if !u.Status.Valid() {
		return eris.Errorf("sqlite: invalid status %q", u.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidate_places SET status = ?, rejection_reason = ?,
		 accepted_place_id = COALESCE(?, accepted_place_id),
		 generated_email = COALESCE(?, generated_email), updated_at = ?
		 WHERE id = ?`,
		string(u.Status), nullable(u.RejectionReason), nullable(u.AcceptedPlaceID),
		nullable(u.GeneratedEmail), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set candidate status %s", id)
	}
	return checkRowsAffected(res, "candidate", id)
}

func (s *SQLiteStore) ListCandidates(ctx context.Context, f model.CandidateFilter) ([]model.Candidate, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.MinScore > 0 {
		where = append(where, "quality_score >= ?")
		args = append(args, f.MinScore)
	}

	query := `SELECT ` + sqliteCandidateColumns + ` FROM candidate_places`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY quality_score DESC, created_at DESC LIMIT ? OFFSET ?"
	args = append(args, candidateLimit(f.Limit), max(f.Offset, 0))
	return s.queryCandidates(ctx, query, args...)
}

func (s *SQLiteStore) FindCandidatesNear(ctx context.Context, center dedup.Point, radiusMeters float64, limit int) ([]model.Candidate, error) {
	lo, hi := dedup.BoundingBox(center, radiusMeters)
	return s.queryCandidates(ctx,
		`SELECT `+sqliteCandidateColumns+` FROM candidate_places
		 WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
		 LIMIT ?`,
		lo.Lat, hi.Lat, lo.Lng, hi.Lng, candidateLimit(limit),
	)
}

func (s *SQLiteStore) queryCandidates(ctx context.Context, query string, args ...any) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query candidates")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query candidates iterate")
}

func (s *SQLiteStore) CreatePlaceDraft(ctx context.Context, p *model.PlaceDraft) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	why, err := marshalList(p.WhyDisconnect)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal why disconnect")
	}
	attrs, err := marshalList(p.Attributes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attributes")
	}
	lat, lng := latLng(p.Coordinates)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO places (id, title, slug, region_id, lat, lng, why_disconnect, attributes,
		 seo_title, seo_description, outbound_url, status, candidate_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'draft', ?, ?)`,
		p.ID, p.Title, p.Slug, nullable(p.RegionID), lat, lng, string(why), string(attrs),
		p.SEOTitle, p.SEODescription, nullable(p.OutboundURL), p.CandidateID, p.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert place draft for %s", p.CandidateID)
}

func (s *SQLiteStore) DeletePlaceDraft(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM places WHERE id = ? AND status = 'draft'`, id)
	return eris.Wrapf(err, "sqlite: delete place draft %s", id)
}

func (s *SQLiteStore) ListRegions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, slug FROM regions ORDER BY title`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list regions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Region
	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.ID, &r.Title, &r.Slug); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list regions iterate")
}

// checkRowsAffected maps a zero-row update to ErrNotFound.
func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

// scannable is satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var completed sql.NullTime
	var errMsg sql.NullString
	err := row.Scan(&r.ID, &r.Preset, &r.Query, &r.Region, &r.Status, &r.StartedAt, &completed,
		&r.Stats.CandidatesFound, &r.Stats.NewCandidates, &r.Stats.DuplicatesSkipped, &r.Stats.ErrorCount,
		&r.Progress.Phase, &r.Progress.Processed, &r.Progress.Total, &errMsg)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		r.CompletedAt = &completed.Time
	}
	r.ErrorMessage = errMsg.String
	return &r, nil
}

func scanCandidate(row scannable) (*model.Candidate, error) {
	var c model.Candidate
	var enc candidateJSON
	var lat, lng, rating sql.NullFloat64
	var reviews sql.NullInt64
	var mapsURL, email, rejection, genEmail, runID, placeID sql.NullString

	err := row.Scan(&c.ID, &c.Name, &c.WebsiteURL, &mapsURL, &email, &c.Snippet, &lat, &lng,
		&c.RegionGuess, &c.Source, &c.QualityScore, &enc.reasons, &enc.riskFlags, &c.Confidence,
		&rating, &reviews, &enc.images, &enc.rawData, &c.Status, &rejection, &genEmail,
		&c.NeedsManualCheck, &c.DedupeKey, &runID, &placeID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := enc.decodeInto(&c); err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		c.Coordinates = &dedup.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if rating.Valid {
		c.RatingValue = &rating.Float64
	}
	if reviews.Valid {
		n := int(reviews.Int64)
		c.ReviewCount = &n
	}
	c.MapsURL, c.ContactEmail = mapsURL.String, email.String
	c.RejectionReason, c.GeneratedEmail = rejection.String, genEmail.String
	c.DiscoveryRunID, c.AcceptedPlaceID = runID.String, placeID.String
	return &c, nil
}

func latLng(p *dedup.Point) (lat, lng *float64) {
	if p == nil {
		return nil, nil
	}
	return &p.Lat, &p.Lng
}

var _ Store = (*SQLiteStore)(nil)
