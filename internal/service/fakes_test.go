package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/profile-scores/internal/domain"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type profileKey struct {
	userID   string
	platform domain.Platform
}

// memoryStore is an in-memory ProfileStore
type memoryStore struct {
	mu       sync.Mutex
	profiles map[profileKey]domain.ProfileRecord
	totals   map[string]int64
	events   []domain.RefreshEvent

	listErr      map[string]error
	setTotalErr  error
	setTotalHits int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		profiles: make(map[profileKey]domain.ProfileRecord),
		totals:   make(map[string]int64),
		listErr:  make(map[string]error),
	}
}

func (m *memoryStore) put(rec *domain.ProfileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profileKey{rec.UserID, rec.Platform}] = *rec
}

func (m *memoryStore) get(userID string, platform domain.Platform) (domain.ProfileRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.profiles[profileKey{userID, platform}]
	return rec, ok
}

func (m *memoryStore) GetProfile(_ context.Context, userID string, platform domain.Platform) (*domain.ProfileRecord, error) {
	rec, ok := m.get(userID, platform)
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &rec, nil
}

func (m *memoryStore) ListProfiles(_ context.Context, userID string) ([]domain.ProfileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.listErr[userID]; err != nil {
		return nil, err
	}
	var out []domain.ProfileRecord
	for k, rec := range m.profiles {
		if k.userID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (m *memoryStore) SaveProfile(ctx context.Context, rec *domain.ProfileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := profileKey{rec.UserID, rec.Platform}
	saved := *rec
	if prev, ok := m.profiles[key]; ok && prev.UpdateAttempts > saved.UpdateAttempts {
		saved.UpdateAttempts = prev.UpdateAttempts
	}
	m.profiles[key] = saved
	return nil
}

func (m *memoryStore) IncrementAttempts(_ context.Context, userID string, platform domain.Platform) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := profileKey{userID, platform}
	rec, ok := m.profiles[key]
	if !ok {
		return 0, domain.ErrProfileNotFound
	}
	rec.UpdateAttempts++
	m.profiles[key] = rec
	return rec.UpdateAttempts, nil
}

func (m *memoryStore) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	var ids []string
	for k := range m.profiles {
		if _, ok := seen[k.userID]; !ok {
			seen[k.userID] = struct{}{}
			ids = append(ids, k.userID)
		}
	}
	for id := range m.listErr {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryStore) SetTotalScore(ctx context.Context, userID string, total int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setTotalHits++
	if m.setTotalErr != nil {
		return m.setTotalErr
	}
	m.totals[userID] = total
	return nil
}

func (m *memoryStore) GetTotalScore(_ context.Context, userID string) (*domain.UserScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, ok := m.totals[userID]
	if !ok {
		return nil, domain.ErrScoreNotFound
	}
	return &domain.UserScore{UserID: userID, TotalScore: total}, nil
}

func (m *memoryStore) ListTotals(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.totals))
	for k, v := range m.totals {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) RecordRefreshEvent(_ context.Context, event domain.RefreshEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memoryStore) ListRefreshEvents(_ context.Context, userID string, limit int) ([]domain.RefreshEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RefreshEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].UserID == userID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// fetchFunc answers one dispatch
type fetchFunc func(ctx context.Context, username string) (*domain.ProfileSnapshot, error)

// scriptedDispatcher answers each platform from a script and records calls
type scriptedDispatcher struct {
	mu      sync.Mutex
	answers map[domain.Platform]fetchFunc
	calls   []domain.Platform
}

func newScriptedDispatcher() *scriptedDispatcher {
	return &scriptedDispatcher{answers: make(map[domain.Platform]fetchFunc)}
}

func (d *scriptedDispatcher) succeed(p domain.Platform, score int64) {
	d.answers[p] = func(_ context.Context, username string) (*domain.ProfileSnapshot, error) {
		return &domain.ProfileSnapshot{Platform: p, Username: username, Score: score, ProblemsSolved: int(score / 10), Rank: "1"}, nil
	}
}

func (d *scriptedDispatcher) fail(p domain.Platform, kind error) {
	d.answers[p] = func(_ context.Context, username string) (*domain.ProfileSnapshot, error) {
		return nil, domain.NewAdapterError(kind, p, username, errors.New("scripted failure"))
	}
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, p domain.Platform, username string) (*domain.ProfileSnapshot, error) {
	d.mu.Lock()
	d.calls = append(d.calls, p)
	fn := d.answers[p]
	d.mu.Unlock()
	if fn == nil {
		return nil, domain.NewAdapterError(domain.ErrUnsupported, p, username, nil)
	}
	return fn(ctx, username)
}

func (d *scriptedDispatcher) called(p domain.Platform) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == p {
			n++
		}
	}
	return n
}

// denyLimiter rejects the listed platforms
type denyLimiter map[domain.Platform]bool

func (l denyLimiter) Allow(_ context.Context, p domain.Platform) error {
	if l[p] {
		return domain.NewAdapterError(domain.ErrRateLimited, p, "", nil)
	}
	return nil
}

// recordingCache is a ScoreCache that remembers writes and counts reads
type recordingCache struct {
	mu      sync.Mutex
	totals  map[string]int64
	err     error
	readErr error
	reads   int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{totals: make(map[string]int64)}
}

func (c *recordingCache) SetTotal(_ context.Context, userID string, total int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.totals[userID] = total
	return nil
}

func (c *recordingCache) BatchSetTotals(_ context.Context, totals map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	for k, v := range totals {
		c.totals[k] = v
	}
	return nil
}

func (c *recordingCache) GetTotal(_ context.Context, userID string) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.readErr != nil {
		return 0, false, c.readErr
	}
	v, ok := c.totals[userID]
	return v, ok, nil
}

func (c *recordingCache) get(userID string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.totals[userID]
	return v, ok
}
