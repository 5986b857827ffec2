package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mathiasgse/screenfree/internal/dedup"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/store"
)

// mockStore is an in-memory store.Store that records run bookkeeping.
type mockStore struct {
	mu sync.Mutex

	createRunErr    error
	createdRuns     []string
	progress        []model.RunProgress
	completedRuns   []string
	completedStats  model.RunStats
	failedRuns      []string
	failedMessages  []string
	candidates      map[string]*model.Candidate // by dedupe key
	statusUpdates   map[string]store.StatusUpdate
	places          []*model.PlaceDraft
	regions         []model.Region
	createConflicts int // CreateCandidate calls that report a lost race
	setStatusErr    error
	deletedPlaces   []string
	nextID          int
}

func newMockStore() *mockStore {
	return &mockStore{
		candidates:    map[string]*model.Candidate{},
		statusUpdates: map[string]store.StatusUpdate{},
	}
}

func (m *mockStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *mockStore) CreateRun(_ context.Context, preset, query, region string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createRunErr != nil {
		return nil, m.createRunErr
	}
	r := &model.Run{ID: m.id("run"), Preset: preset, Query: query, Region: region, Status: model.RunRunning, StartedAt: time.Now()}
	m.createdRuns = append(m.createdRuns, preset)
	return r, nil
}

func (m *mockStore) UpdateRunProgress(_ context.Context, _ string, p model.RunProgress, _ model.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = append(m.progress, p)
	return nil
}

func (m *mockStore) CompleteRun(_ context.Context, id string, _ model.RunProgress, stats model.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedRuns = append(m.completedRuns, id)
	m.completedStats = stats
	return nil
}

func (m *mockStore) FailRun(_ context.Context, id, message string, _ model.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedRuns = append(m.failedRuns, id)
	m.failedMessages = append(m.failedMessages, message)
	return nil
}

func (m *mockStore) GetRun(context.Context, string) (*model.Run, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) ListRuns(context.Context, int) ([]model.Run, error) {
	return nil, nil
}

func (m *mockStore) FindCandidateByDedupeKey(_ context.Context, key string) (*model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) GetCandidate(_ context.Context, id string) (*model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.candidates {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) CreateCandidate(_ context.Context, c *model.Candidate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createConflicts > 0 {
		m.createConflicts--
		// Another writer got there first.
		m.candidates[c.DedupeKey] = &model.Candidate{ID: m.id("cand"), Name: "racer", DedupeKey: c.DedupeKey, Status: model.StatusNew}
		return false, nil
	}
	if _, ok := m.candidates[c.DedupeKey]; ok {
		return false, nil
	}
	c.ID = m.id("cand")
	if c.Status == "" {
		c.Status = model.StatusNew
	}
	cp := *c
	m.candidates[c.DedupeKey] = &cp
	return true, nil
}

func (m *mockStore) UpdateCandidateIfNew(_ context.Context, c *model.Candidate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.candidates[c.DedupeKey]
	if !ok || existing.Status != model.StatusNew {
		return false, nil
	}
	cp := *c
	cp.ID, cp.Status = existing.ID, existing.Status
	m.candidates[c.DedupeKey] = &cp
	return true, nil
}

func (m *mockStore) SetCandidateStatus(_ context.Context, id string, u store.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setStatusErr != nil {
		return m.setStatusErr
	}
	for _, c := range m.candidates {
		if c.ID == id {
			c.Status = u.Status
			c.RejectionReason = u.RejectionReason
			c.AcceptedPlaceID = u.AcceptedPlaceID
			c.GeneratedEmail = u.GeneratedEmail
			m.statusUpdates[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) ListCandidates(context.Context, model.CandidateFilter) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Candidate, 0, len(m.candidates))
	for _, c := range m.candidates {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockStore) FindCandidatesNear(_ context.Context, center dedup.Point, radius float64, _ int) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Candidate
	for _, c := range m.candidates {
		if c.Coordinates != nil && dedup.Haversine(center, *c.Coordinates) <= radius {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockStore) CreatePlaceDraft(_ context.Context, p *model.PlaceDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id("place")
	m.places = append(m.places, p)
	return nil
}

func (m *mockStore) DeletePlaceDraft(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedPlaces = append(m.deletedPlaces, id)
	kept := m.places[:0]
	for _, p := range m.places {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	m.places = kept
	return nil
}

func (m *mockStore) ListRegions(context.Context) ([]model.Region, error) {
	return m.regions, nil
}

func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }

func (m *mockStore) byName(name string) *model.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.candidates {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// mockEnricher returns canned enrichments per url.
type mockEnricher struct {
	mu    sync.Mutex
	pages map[string]*model.Enrichment
	calls []string
}

func (e *mockEnricher) Enrich(_ context.Context, url string) *model.Enrichment {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, url)
	if p, ok := e.pages[url]; ok {
		return p
	}
	return &model.Enrichment{FetchError: "HTTP 404"}
}

// mockScraper serves fixed listings for one platform domain.
type mockScraper struct {
	domain   string
	listings map[string]*model.Listing
}

func (s *mockScraper) Name() string { return s.domain }

func (s *mockScraper) Supports(url string) bool { return strings.Contains(url, s.domain) }

func (s *mockScraper) Scrape(_ context.Context, url string) (*model.Listing, error) {
	if l, ok := s.listings[url]; ok {
		return l, nil
	}
	return nil, errors.New("listing page not found")
}
