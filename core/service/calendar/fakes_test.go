package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// In-memory port fakes shared by the service tests.

type fakeConnRepo struct {
	mu          sync.Mutex
	conns       map[int64]*domain.Connection
	cursorSets  int
	cursorClear int
	tokenSets   int
}

func newFakeConnRepo(conns ...*domain.Connection) *fakeConnRepo {
	r := &fakeConnRepo{conns: make(map[int64]*domain.Connection)}
	for _, c := range conns {
		r.conns[c.ID] = c
	}
	return r
}

func (r *fakeConnRepo) GetByID(_ context.Context, id int64) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (r *fakeConnRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Connection
	for _, c := range r.conns {
		if c.UserID == userID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *fakeConnRepo) ListSyncEnabled(_ context.Context) ([]*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Connection
	for _, c := range r.conns {
		if c.SyncEnabled {
			result = append(result, c)
		}
	}
	return result, nil
}

func (r *fakeConnRepo) GetEnabledForUser(_ context.Context, userID uuid.UUID) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.UserID == userID && c.SyncEnabled {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeConnRepo) GetByCalendar(_ context.Context, userID uuid.UUID, provider domain.Provider, calendarID string) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.UserID == userID && c.Provider == provider && c.CalendarID == calendarID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeConnRepo) Create(_ context.Context, conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn.ID = int64(len(r.conns) + 1)
	r.conns[conn.ID] = conn
	return nil
}

func (r *fakeConnRepo) UpdateTokens(_ context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("connection %d not found", id)
	}
	c.AccessToken = accessToken
	c.RefreshToken = refreshToken
	c.TokenExpiry = expiry
	r.tokenSets++
	return nil
}

func (r *fakeConnRepo) UpdateCursor(_ context.Context, id int64, cursor string, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("connection %d not found", id)
	}
	c.SyncCursor = cursor
	c.LastSyncAt = syncedAt
	r.cursorSets++
	return nil
}

func (r *fakeConnRepo) ClearCursor(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("connection %d not found", id)
	}
	c.SyncCursor = ""
	r.cursorClear++
	return nil
}

func (r *fakeConnRepo) SetSyncEnabled(_ context.Context, id int64, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.SyncEnabled = enabled
	}
	return nil
}

func (r *fakeConnRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	return nil
}

type fakeEventRepo struct {
	mu      sync.Mutex
	events  map[int64]*domain.CalendarEvent
	nextID  int64
	listErr error

	// createErrTitle fails Create for one specific event, leaving the
	// rest of the change set untouched.
	createErrTitle string
}

func newFakeEventRepo(events ...*domain.CalendarEvent) *fakeEventRepo {
	r := &fakeEventRepo{events: make(map[int64]*domain.CalendarEvent)}
	for _, e := range events {
		r.events[e.ID] = e
		if e.ID > r.nextID {
			r.nextID = e.ID
		}
	}
	return r
}

func (r *fakeEventRepo) GetByID(_ context.Context, id int64) (*domain.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (r *fakeEventRepo) ListOverlapping(_ context.Context, userID uuid.UUID, start, end time.Time) ([]*domain.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []*domain.CalendarEvent
	for _, e := range r.events {
		if e.UserID == userID && e.Overlaps(start, end) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *fakeEventRepo) ListStartingBetween(_ context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.CalendarEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var result []*domain.CalendarEvent
	for _, e := range r.events {
		if e.UserID == userID && !e.StartTime.Before(from) && !e.StartTime.After(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *fakeEventRepo) Create(_ context.Context, event *domain.CalendarEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErrTitle != "" && event.Title == r.createErrTitle {
		return fmt.Errorf("insert failed for %q", event.Title)
	}
	r.nextID++
	event.ID = r.nextID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	copied := *event
	r.events[event.ID] = &copied
	return nil
}

func (r *fakeEventRepo) Update(_ context.Context, event *domain.CalendarEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; !ok {
		return fmt.Errorf("event %d not found", event.ID)
	}
	event.UpdatedAt = time.Now()
	copied := *event
	r.events[event.ID] = &copied
	return nil
}

func (r *fakeEventRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	return nil
}

type fakeMappingRepo struct {
	mu       sync.Mutex
	mappings map[int64]*domain.EventMapping
	nextID   int64
	upserts  int
}

func newFakeMappingRepo(mappings ...*domain.EventMapping) *fakeMappingRepo {
	r := &fakeMappingRepo{mappings: make(map[int64]*domain.EventMapping)}
	for _, m := range mappings {
		r.mappings[m.ID] = m
		if m.ID > r.nextID {
			r.nextID = m.ID
		}
	}
	return r
}

func (r *fakeMappingRepo) GetByRemoteID(_ context.Context, connectionID int64, remoteEventID string) (*domain.EventMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.ConnectionID == connectionID && m.RemoteEventID == remoteEventID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeMappingRepo) GetByLocalID(_ context.Context, connectionID, localEventID int64) (*domain.EventMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.mappings {
		if m.ConnectionID == connectionID && m.LocalEventID == localEventID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeMappingRepo) Upsert(_ context.Context, m *domain.EventMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	for id, existing := range r.mappings {
		if existing.ConnectionID == m.ConnectionID && existing.LocalEventID == m.LocalEventID {
			m.ID = id
			copied := *m
			r.mappings[id] = &copied
			return nil
		}
	}
	r.nextID++
	m.ID = r.nextID
	copied := *m
	r.mappings[m.ID] = &copied
	return nil
}

func (r *fakeMappingRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mappings, id)
	return nil
}

func (r *fakeMappingRepo) DeleteByConnection(_ context.Context, connectionID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, m := range r.mappings {
		if m.ConnectionID == connectionID {
			delete(r.mappings, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeMappingRepo) CountByConnection(_ context.Context, connectionID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.mappings {
		if m.ConnectionID == connectionID {
			n++
		}
	}
	return n, nil
}

type fakeRunLogRepo struct {
	mu   sync.Mutex
	runs []*domain.SyncRunLog
}

func (r *fakeRunLogRepo) Append(_ context.Context, run *domain.SyncRunLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func (r *fakeRunLogRepo) ListByConnection(_ context.Context, connectionID int64, limit int) ([]*domain.SyncRunLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.SyncRunLog
	for _, run := range r.runs {
		if run.ConnectionID == connectionID {
			result = append(result, run)
		}
	}
	return result, nil
}

func (r *fakeRunLogRepo) DeleteByConnection(_ context.Context, connectionID int64) (int64, error) {
	return 0, nil
}

func (r *fakeRunLogRepo) last() *domain.SyncRunLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return nil
	}
	return r.runs[len(r.runs)-1]
}

// fakeProvider scripts provider behavior per test.
type fakeProvider struct {
	fetchFn  func(opts *out.FetchOptions) (*out.ChangeSet, error)
	createFn func(event *out.ProviderEvent) (*out.ProviderEvent, error)
	updateFn func(eventID string, event *out.ProviderEvent) (*out.ProviderEvent, error)
	deleteFn func(eventID string) error

	refreshErr error

	fetchCalls   int
	createCalls  int
	updateCalls  int
	deleteCalls  int
	refreshCalls int
}

func (p *fakeProvider) FetchChanges(_ context.Context, _ *oauth2.Token, opts *out.FetchOptions) (*out.ChangeSet, error) {
	p.fetchCalls++
	if p.fetchFn == nil {
		return &out.ChangeSet{}, nil
	}
	return p.fetchFn(opts)
}

func (p *fakeProvider) CreateEvent(_ context.Context, _ *oauth2.Token, _ string, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	p.createCalls++
	if p.createFn == nil {
		created := *event
		created.ID = fmt.Sprintf("remote-%d", p.createCalls)
		created.UpdatedAt = time.Now()
		return &created, nil
	}
	return p.createFn(event)
}

func (p *fakeProvider) UpdateEvent(_ context.Context, _ *oauth2.Token, _ string, eventID string, event *out.ProviderEvent) (*out.ProviderEvent, error) {
	p.updateCalls++
	if p.updateFn == nil {
		updated := *event
		updated.ID = eventID
		updated.UpdatedAt = time.Now()
		return &updated, nil
	}
	return p.updateFn(eventID, event)
}

func (p *fakeProvider) DeleteEvent(_ context.Context, _ *oauth2.Token, _ string, eventID string) error {
	p.deleteCalls++
	if p.deleteFn == nil {
		return nil
	}
	return p.deleteFn(eventID)
}

func (p *fakeProvider) RefreshToken(_ context.Context, _ *oauth2.Token) (*oauth2.Token, error) {
	p.refreshCalls++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return &oauth2.Token{
		AccessToken: fmt.Sprintf("refreshed-%d", p.refreshCalls),
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

func (p *fakeProvider) ListCalendars(_ context.Context, _ *oauth2.Token) ([]*out.ProviderCalendar, error) {
	return []*out.ProviderCalendar{{ID: "primary", Name: "Primary", IsPrimary: true}}, nil
}

type fakeFactory struct {
	provider out.CalendarProviderPort
}

func (f *fakeFactory) ForProvider(domain.Provider) (out.CalendarProviderPort, error) {
	return f.provider, nil
}

type fakeLock struct {
	mu       sync.Mutex
	held     map[int64]bool
	denyNext bool
	acquires int
	releases int
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[int64]bool)}
}

func (l *fakeLock) Acquire(_ context.Context, connectionID int64, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.denyNext || l.held[connectionID] {
		return false, nil
	}
	l.held[connectionID] = true
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, connectionID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	delete(l.held, connectionID)
	return nil
}
