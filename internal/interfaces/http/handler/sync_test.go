package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appsync "github.com/crm/backend/internal/application/worksync"
	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/scheduler"
	"github.com/crm/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==================== Mocks ====================

type MockCompanySyncer struct {
	mock.Mock
}

func (m *MockCompanySyncer) SyncNow(ctx context.Context, companyID uuid.UUID) (*appsync.CompanyReport, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.CompanyReport), args.Error(1)
}

func (m *MockCompanySyncer) SweepNow(ctx context.Context) (*appsync.SweepReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.SweepReport), args.Error(1)
}

func (m *MockCompanySyncer) Status() scheduler.Status {
	return m.Called().Get(0).(scheduler.Status)
}

type MockOrphanCleanup struct {
	mock.Mock
}

func (m *MockOrphanCleanup) CleanupCompany(ctx context.Context, companyID uuid.UUID) (int, error) {
	args := m.Called(ctx, companyID)
	return args.Int(0), args.Error(1)
}

type MockEntityLinker struct {
	mock.Mock
}

func (m *MockEntityLinker) LinkIssue(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, req appsync.LinkRequest) (*worksync.ExternalLink, error) {
	args := m.Called(ctx, companyID, entityType, entityID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*worksync.ExternalLink), args.Error(1)
}

func (m *MockEntityLinker) LinkExisting(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, issueKey string) (*worksync.ExternalLink, error) {
	args := m.Called(ctx, companyID, entityType, entityID, issueKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*worksync.ExternalLink), args.Error(1)
}

func (m *MockEntityLinker) Unlink(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID, issueKey string) error {
	return m.Called(ctx, companyID, entityType, entityID, issueKey).Error(0)
}

type MockStatusPusher struct {
	mock.Mock
}

func (m *MockStatusPusher) PushStored(ctx context.Context, companyID uuid.UUID, entityType worksync.EntityType, entityID uuid.UUID) (*appsync.PushResult, error) {
	args := m.Called(ctx, companyID, entityType, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appsync.PushResult), args.Error(1)
}

// ==================== Fixture ====================

type syncFixture struct {
	companyID uuid.UUID
	syncer    *MockCompanySyncer
	cleaner   *MockOrphanCleanup
	linker    *MockEntityLinker
	pusher    *MockStatusPusher
	router    *gin.Engine
}

// newSyncFixture routes the handler behind a fake auth step that pins the company
func newSyncFixture() *syncFixture {
	f := &syncFixture{
		companyID: uuid.New(),
		syncer:    new(MockCompanySyncer),
		cleaner:   new(MockOrphanCleanup),
		linker:    new(MockEntityLinker),
		pusher:    new(MockStatusPusher),
	}
	h := NewSyncHandler(f.syncer, f.cleaner, f.linker, f.pusher)

	f.router = gin.New()
	authed := f.router.Group("/sync", func(c *gin.Context) {
		c.Set(middleware.JWTCompanyIDKey, f.companyID)
		c.Next()
	})
	authed.POST("/sync-all", h.SyncAll)
	authed.POST("/sync-now", h.SyncNow)
	authed.POST("/cleanup-orphaned", h.CleanupOrphaned)
	authed.GET("/scheduler/status", h.SchedulerStatus)
	authed.POST("/scheduler/sweep", h.Sweep)
	authed.POST("/entities/:type/:id/links", h.LinkIssue)
	authed.DELETE("/entities/:type/:id/links/:issue_key", h.Unlink)
	authed.POST("/entities/:type/:id/push", h.Push)

	f.router.POST("/anonymous/sync-now", h.SyncNow)
	f.router.POST("/anonymous/sweep", h.Sweep)
	return f
}

func (f *syncFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func dataMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	resp := decodeResponse(t, w)
	require.True(t, resp.Success, w.Body.String())
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	return data
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error, w.Body.String())
	return resp.Error.Code
}

// ==================== Sync endpoints ====================

func TestSyncHandler_SyncNow(t *testing.T) {
	f := newSyncFixture()
	f.syncer.On("SyncNow", mock.Anything, f.companyID).Return(&appsync.CompanyReport{
		CompanyID:    f.companyID,
		Entities:     3,
		Transitioned: 2,
	}, nil).Once()

	w := f.do(http.MethodPost, "/sync/sync-now", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, w)
	assert.Equal(t, f.companyID.String(), data["company_id"])
	assert.EqualValues(t, 2, data["transitioned"])
	f.cleaner.AssertNotCalled(t, "CleanupCompany", mock.Anything, mock.Anything)
}

func TestSyncHandler_SyncNow_RequiresCompany(t *testing.T) {
	f := newSyncFixture()

	w := f.do(http.MethodPost, "/anonymous/sync-now", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	f.syncer.AssertNotCalled(t, "SyncNow", mock.Anything, mock.Anything)
}

func TestSyncHandler_SyncNow_ListFailure(t *testing.T) {
	f := newSyncFixture()
	f.syncer.On("SyncNow", mock.Anything, f.companyID).Return(nil, assert.AnError)

	w := f.do(http.MethodPost, "/sync/sync-now", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "ERR_INTERNAL", errorCode(t, w))
}

func TestSyncHandler_SyncAll_RunsCleanup(t *testing.T) {
	f := newSyncFixture()
	shared := &appsync.CompanyReport{CompanyID: f.companyID, Errors: []string{"task x CRM-1: boom"}}
	f.syncer.On("SyncNow", mock.Anything, f.companyID).Return(shared, nil).Once()
	f.cleaner.On("CleanupCompany", mock.Anything, f.companyID).Return(2, nil).Once()

	w := f.do(http.MethodPost, "/sync/sync-all", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, w)
	assert.EqualValues(t, 2, data["links_removed"])
	assert.Equal(t, 0, shared.LinksRemoved, "the coalesced report must not be mutated")
	f.cleaner.AssertExpectations(t)
}

func TestSyncHandler_SyncAll_CleanupFailureIsReported(t *testing.T) {
	f := newSyncFixture()
	shared := &appsync.CompanyReport{CompanyID: f.companyID}
	f.syncer.On("SyncNow", mock.Anything, f.companyID).Return(shared, nil)
	f.cleaner.On("CleanupCompany", mock.Anything, f.companyID).Return(0, assert.AnError)

	w := f.do(http.MethodPost, "/sync/sync-all", "")

	assert.Equal(t, http.StatusOK, w.Code)
	errs, ok := dataMap(t, w)["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "orphan cleanup")
	assert.Empty(t, shared.Errors)
}

func TestSyncHandler_CleanupOrphaned(t *testing.T) {
	f := newSyncFixture()
	f.cleaner.On("CleanupCompany", mock.Anything, f.companyID).Return(4, nil)

	w := f.do(http.MethodPost, "/sync/cleanup-orphaned", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, dataMap(t, w)["removed"])
}

func TestSyncHandler_Sweep_ReturnsAggregates(t *testing.T) {
	f := newSyncFixture()
	other := uuid.New()
	f.syncer.On("SweepNow", mock.Anything).Return(&appsync.SweepReport{
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Companies: []appsync.CompanyReport{
			{CompanyID: f.companyID, Entities: 3, Transitioned: 2},
			{CompanyID: other, Entities: 4, Transitioned: 1, FailedLinks: 1, Errors: []string{"task x CRM-9: boom"}},
		},
		FailedCompanies: 1,
	}, nil).Once()

	w := f.do(http.MethodPost, "/sync/scheduler/sweep", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, w)
	assert.EqualValues(t, 2, data["companies"])
	assert.EqualValues(t, 1, data["failed_companies"])
	assert.EqualValues(t, 7, data["entities"])
	assert.EqualValues(t, 3, data["transitioned"])
	assert.EqualValues(t, 1, data["failed_links"])
	assert.EqualValues(t, 1500, data["duration_ms"])
	assert.NotContains(t, w.Body.String(), other.String())
	assert.NotContains(t, w.Body.String(), "CRM-9")
}

func TestSyncHandler_Sweep_RequiresCompany(t *testing.T) {
	f := newSyncFixture()

	w := f.do(http.MethodPost, "/anonymous/sweep", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	f.syncer.AssertNotCalled(t, "SweepNow", mock.Anything)
}

func TestSyncHandler_Sweep_Failure(t *testing.T) {
	f := newSyncFixture()
	f.syncer.On("SweepNow", mock.Anything).Return(nil, assert.AnError).Once()

	w := f.do(http.MethodPost, "/sync/scheduler/sweep", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "ERR_INTERNAL", errorCode(t, w))
}

func TestSyncHandler_SchedulerStatus(t *testing.T) {
	f := newSyncFixture()
	tick := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.syncer.On("Status").Return(scheduler.Status{Running: true, Interval: 5 * time.Minute, LastTickAt: &tick})

	w := f.do(http.MethodGet, "/sync/scheduler/status", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataMap(t, w)["running"])
}

// ==================== Links ====================

func TestSyncHandler_LinkIssue_CreatesIssue(t *testing.T) {
	f := newSyncFixture()
	taskID := uuid.New()
	f.linker.On("LinkIssue", mock.Anything, f.companyID, worksync.EntityTypeTask, taskID, appsync.LinkRequest{ProjectKey: "OPS", Summary: "Deck"}).
		Return(&worksync.ExternalLink{IssueKey: "OPS-7", IssueURL: "https://acme.atlassian.net/browse/OPS-7"}, nil).Once()

	w := f.do(http.MethodPost, "/sync/entities/task/"+taskID.String()+"/links", `{"project_key":"OPS","summary":"Deck"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "OPS-7", dataMap(t, w)["issue_key"])
	f.linker.AssertExpectations(t)
}

func TestSyncHandler_LinkIssue_EmptyBodyUsesDefaults(t *testing.T) {
	f := newSyncFixture()
	orderID := uuid.New()
	f.linker.On("LinkIssue", mock.Anything, f.companyID, worksync.EntityTypeOrder, orderID, appsync.LinkRequest{}).
		Return(&worksync.ExternalLink{IssueKey: "CRM-9"}, nil).Once()

	w := f.do(http.MethodPost, "/sync/entities/order/"+orderID.String()+"/links", "")

	assert.Equal(t, http.StatusCreated, w.Code)
	f.linker.AssertExpectations(t)
}

func TestSyncHandler_LinkIssue_LinksExisting(t *testing.T) {
	f := newSyncFixture()
	clientID := uuid.New()
	f.linker.On("LinkExisting", mock.Anything, f.companyID, worksync.EntityTypeClient, clientID, "CRM-42").
		Return(&worksync.ExternalLink{IssueKey: "CRM-42"}, nil).Once()

	w := f.do(http.MethodPost, "/sync/entities/client/"+clientID.String()+"/links", `{"issue_key":"CRM-42"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	f.linker.AssertNotCalled(t, "LinkIssue", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncHandler_LinkIssue_Errors(t *testing.T) {
	id := uuid.New().String()

	t.Run("unknown entity type", func(t *testing.T) {
		f := newSyncFixture()
		w := f.do(http.MethodPost, "/sync/entities/invoice/"+id+"/links", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_VALIDATION", errorCode(t, w))
	})

	t.Run("bad entity id", func(t *testing.T) {
		f := newSyncFixture()
		w := f.do(http.MethodPost, "/sync/entities/task/not-a-uuid/links", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid issue key", func(t *testing.T) {
		f := newSyncFixture()
		w := f.do(http.MethodPost, "/sync/entities/task/"+id+"/links", `{"issue_key":"crm 42"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_VALIDATION", errorCode(t, w))
	})

	t.Run("broken json", func(t *testing.T) {
		f := newSyncFixture()
		w := f.do(http.MethodPost, "/sync/entities/task/"+id+"/links", `{"issue_key":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_INVALID_JSON", errorCode(t, w))
	})

	t.Run("already linked", func(t *testing.T) {
		f := newSyncFixture()
		f.linker.On("LinkExisting", mock.Anything, f.companyID, worksync.EntityTypeTask, mock.Anything, "CRM-42").
			Return(nil, worksync.ErrIssueAlreadyLinked)
		w := f.do(http.MethodPost, "/sync/entities/task/"+id+"/links", `{"issue_key":"CRM-42"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("entity not found", func(t *testing.T) {
		f := newSyncFixture()
		f.linker.On("LinkIssue", mock.Anything, f.companyID, worksync.EntityTypeTask, mock.Anything, mock.Anything).
			Return(nil, worksync.ErrEntityNotFound)
		w := f.do(http.MethodPost, "/sync/entities/task/"+id+"/links", `{}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("tracker unavailable", func(t *testing.T) {
		f := newSyncFixture()
		f.linker.On("LinkIssue", mock.Anything, f.companyID, worksync.EntityTypeTask, mock.Anything, mock.Anything).
			Return(nil, worksync.ErrTrackerUnavailable)
		w := f.do(http.MethodPost, "/sync/entities/task/"+id+"/links", `{}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestSyncHandler_Unlink(t *testing.T) {
	f := newSyncFixture()
	taskID := uuid.New()
	f.linker.On("Unlink", mock.Anything, f.companyID, worksync.EntityTypeTask, taskID, "CRM-42").Return(nil).Once()
	f.linker.On("Unlink", mock.Anything, f.companyID, worksync.EntityTypeTask, taskID, "CRM-43").Return(worksync.ErrLinkNotFound).Once()

	w := f.do(http.MethodDelete, "/sync/entities/task/"+taskID.String()+"/links/CRM-42", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(http.MethodDelete, "/sync/entities/task/"+taskID.String()+"/links/CRM-43", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.linker.AssertExpectations(t)
}

// ==================== Push ====================

func TestSyncHandler_Push_ReportsPerLinkFailures(t *testing.T) {
	f := newSyncFixture()
	taskID := uuid.New()
	f.pusher.On("PushStored", mock.Anything, f.companyID, worksync.EntityTypeTask, taskID).Return(&appsync.PushResult{
		Entity:     worksync.EntityRef{Type: worksync.EntityTypeTask, ID: taskID, CompanyID: f.companyID},
		Status:     "done",
		Transition: "Done",
		Outcomes: []appsync.LinkOutcome{
			{IssueKey: "CRM-1", Transitioned: true},
			{IssueKey: "CRM-2", Err: &worksync.TransitionNotFoundError{IssueKey: "CRM-2", Name: "Done"}},
		},
	}, nil).Once()

	w := f.do(http.MethodPost, "/sync/entities/task/"+taskID.String()+"/push", "")

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, w)
	assert.EqualValues(t, 1, data["succeeded"])
	assert.EqualValues(t, 1, data["failed"])
	links, ok := data["links"].([]any)
	require.True(t, ok)
	require.Len(t, links, 2)
	second, ok := links[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CRM-2", second["issue_key"])
	assert.Contains(t, second["error"], "not available")
}

func TestSyncHandler_Push_NotFound(t *testing.T) {
	f := newSyncFixture()
	f.pusher.On("PushStored", mock.Anything, f.companyID, worksync.EntityTypeProject, mock.Anything).Return(nil, worksync.ErrEntityNotFound)

	w := f.do(http.MethodPost, "/sync/entities/project/"+uuid.New().String()+"/push", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ERR_NOT_FOUND", errorCode(t, w))
}
