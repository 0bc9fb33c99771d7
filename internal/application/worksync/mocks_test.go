package worksync

import (
	"context"
	"sync"
	"time"

	"github.com/crm/backend/internal/domain/worksync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockTracker is a mock implementation of worksync.Tracker
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) CreateIssue(ctx context.Context, input worksync.IssueInput) (*worksync.CreatedIssue, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*worksync.CreatedIssue), args.Error(1)
}

func (m *MockTracker) AddComment(ctx context.Context, issueKey, text string) error {
	args := m.Called(ctx, issueKey, text)
	return args.Error(0)
}

func (m *MockTracker) ListTransitions(ctx context.Context, issueKey string) ([]worksync.Transition, error) {
	args := m.Called(ctx, issueKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]worksync.Transition), args.Error(1)
}

func (m *MockTracker) ExecuteTransition(ctx context.Context, issueKey string, ref worksync.TransitionRef) error {
	args := m.Called(ctx, issueKey, ref)
	return args.Error(0)
}

func (m *MockTracker) GetIssue(ctx context.Context, issueKey string) (*worksync.Issue, error) {
	args := m.Called(ctx, issueKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*worksync.Issue), args.Error(1)
}

// MockCompanyProvider is a mock implementation of worksync.CompanyProvider
type MockCompanyProvider struct {
	mock.Mock
}

func (m *MockCompanyProvider) ListActiveCompanies(ctx context.Context) ([]worksync.Company, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]worksync.Company), args.Error(1)
}

// MockEntityRepository is a mock implementation of worksync.EntityRepository
type MockEntityRepository struct {
	mock.Mock
}

func (m *MockEntityRepository) FindByID(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, id uuid.UUID) (*worksync.SyncableEntity, error) {
	args := m.Called(ctx, companyID, entityType, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*worksync.SyncableEntity), args.Error(1)
}

func (m *MockEntityRepository) FindByIssueKey(ctx context.Context, issueKey string) (*worksync.SyncableEntity, error) {
	args := m.Called(ctx, issueKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*worksync.SyncableEntity), args.Error(1)
}

func (m *MockEntityRepository) FindAllByIssueKey(ctx context.Context, issueKey string) ([]*worksync.SyncableEntity, error) {
	args := m.Called(ctx, issueKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*worksync.SyncableEntity), args.Error(1)
}

func (m *MockEntityRepository) ListLinked(ctx context.Context, companyID uuid.UUID) ([]*worksync.SyncableEntity, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*worksync.SyncableEntity), args.Error(1)
}

func (m *MockEntityRepository) ListWithLinks(ctx context.Context, companyID uuid.UUID) ([]*worksync.SyncableEntity, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*worksync.SyncableEntity), args.Error(1)
}

func (m *MockEntityRepository) CompareAndSetStatus(ctx context.Context, ref worksync.EntityRef, expected, next string) error {
	args := m.Called(ctx, ref, expected, next)
	return args.Error(0)
}

func (m *MockEntityRepository) AddLink(ctx context.Context, ref worksync.EntityRef, link worksync.ExternalLink) error {
	args := m.Called(ctx, ref, link)
	return args.Error(0)
}

func (m *MockEntityRepository) RemoveLink(ctx context.Context, ref worksync.EntityRef, issueKey string) (bool, error) {
	args := m.Called(ctx, ref, issueKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockEntityRepository) DropIssueKey(ctx context.Context, issueKey string) error {
	args := m.Called(ctx, issueKey)
	return args.Error(0)
}

// memoryEntityRepository is a map-backed EntityRepository with real
// compare-and-set and index semantics.
type memoryEntityRepository struct {
	mu       sync.Mutex
	entities map[uuid.UUID]*worksync.SyncableEntity
	index    map[string]uuid.UUID
	casCalls int
}

func newMemoryEntityRepository(entities ...*worksync.SyncableEntity) *memoryEntityRepository {
	r := &memoryEntityRepository{
		entities: make(map[uuid.UUID]*worksync.SyncableEntity),
		index:    make(map[string]uuid.UUID),
	}
	for _, e := range entities {
		r.entities[e.ID] = e
		for _, l := range e.Links {
			if _, taken := r.index[l.IssueKey]; !taken {
				r.index[l.IssueKey] = e.ID
			}
		}
	}
	return r
}

func cloneEntity(e *worksync.SyncableEntity) *worksync.SyncableEntity {
	c := *e
	c.Links = append([]worksync.ExternalLink(nil), e.Links...)
	return &c
}

func (r *memoryEntityRepository) get(id uuid.UUID) *worksync.SyncableEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneEntity(r.entities[id])
}

func (r *memoryEntityRepository) FindByID(_ context.Context, companyID uuid.UUID, entityType worksync.EntityType, id uuid.UUID) (*worksync.SyncableEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok || e.CompanyID != companyID || e.Type != entityType {
		return nil, worksync.ErrEntityNotFound
	}
	return cloneEntity(e), nil
}

func (r *memoryEntityRepository) FindByIssueKey(_ context.Context, issueKey string) (*worksync.SyncableEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.index[issueKey]
	if !ok {
		return nil, worksync.ErrEntityNotFound
	}
	return cloneEntity(r.entities[id]), nil
}

func (r *memoryEntityRepository) FindAllByIssueKey(_ context.Context, issueKey string) ([]*worksync.SyncableEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*worksync.SyncableEntity
	for _, e := range r.entities {
		if e.HasLink(issueKey) {
			out = append(out, cloneEntity(e))
		}
	}
	return out, nil
}

func (r *memoryEntityRepository) list(companyID uuid.UUID, activeOnly bool) []*worksync.SyncableEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*worksync.SyncableEntity
	for _, e := range r.entities {
		if e.CompanyID != companyID || !e.HasLinks() || (activeOnly && !e.Active) {
			continue
		}
		out = append(out, cloneEntity(e))
	}
	return out
}

func (r *memoryEntityRepository) ListLinked(_ context.Context, companyID uuid.UUID) ([]*worksync.SyncableEntity, error) {
	return r.list(companyID, true), nil
}

func (r *memoryEntityRepository) ListWithLinks(_ context.Context, companyID uuid.UUID) ([]*worksync.SyncableEntity, error) {
	return r.list(companyID, false), nil
}

func (r *memoryEntityRepository) CompareAndSetStatus(_ context.Context, ref worksync.EntityRef, expected, next string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.casCalls++
	e, ok := r.entities[ref.ID]
	if !ok {
		return worksync.ErrEntityNotFound
	}
	if e.Status != expected {
		return worksync.ErrStaleStatus
	}
	e.Status = next
	e.Version++
	return nil
}

func (r *memoryEntityRepository) AddLink(_ context.Context, ref worksync.EntityRef, link worksync.ExternalLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[ref.ID]
	if !ok {
		return worksync.ErrEntityNotFound
	}
	if _, taken := r.index[link.IssueKey]; taken {
		return worksync.ErrIssueAlreadyLinked
	}
	e.Links = append(e.Links, link)
	r.index[link.IssueKey] = e.ID
	return nil
}

func (r *memoryEntityRepository) RemoveLink(_ context.Context, ref worksync.EntityRef, issueKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[ref.ID]
	if !ok {
		return false, worksync.ErrEntityNotFound
	}
	kept, removed := e.WithoutLink(issueKey)
	e.Links = kept
	if owner, ok := r.index[issueKey]; ok && owner == e.ID {
		delete(r.index, issueKey)
	}
	return removed, nil
}

func (r *memoryEntityRepository) DropIssueKey(_ context.Context, issueKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.index, issueKey)
	return nil
}

// stale points the index at id without touching any link list
func (r *memoryEntityRepository) stale(issueKey string, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index[issueKey] = id
}

func (r *memoryEntityRepository) indexed(issueKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[issueKey]
	return ok
}

var _ worksync.EntityRepository = (*memoryEntityRepository)(nil)

// recordingMetrics captures every metric call
type recordingMetrics struct {
	mu       sync.Mutex
	pushes   []string
	webhooks []string
	removed  map[string]int
	sweeps   int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{removed: make(map[string]int)}
}

func (m *recordingMetrics) RecordPush(_ context.Context, entityType string, _, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, entityType)
}

func (m *recordingMetrics) RecordWebhook(_ context.Context, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = append(m.webhooks, outcome)
}

func (m *recordingMetrics) RecordLinksRemoved(_ context.Context, reason string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed[reason] += n
}

func (m *recordingMetrics) RecordSweep(context.Context, time.Duration, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps++
}

// newTask builds an active task with one link per key
func newTask(companyID uuid.UUID, status string, keys ...string) *worksync.SyncableEntity {
	return newEntity(companyID, worksync.EntityTypeTask, status, keys...)
}

func newEntity(companyID uuid.UUID, entityType worksync.EntityType, status string, keys ...string) *worksync.SyncableEntity {
	e := &worksync.SyncableEntity{
		ID:        uuid.New(),
		CompanyID: companyID,
		Type:      entityType,
		Title:     "Prepare onboarding deck",
		Status:    status,
		Active:    true,
		Version:   1,
	}
	for _, k := range keys {
		e.Links = append(e.Links, worksync.ExternalLink{
			IssueKey:  k,
			IssueURL:  "https://example.atlassian.net/browse/" + k,
			CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		})
	}
	return e
}
