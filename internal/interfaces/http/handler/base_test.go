package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crm/backend/internal/domain/shared"
	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/interfaces/http/dto"
	"github.com/crm/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"entity not found", fmt.Errorf("load task: %w", worksync.ErrEntityNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"link not found", worksync.ErrLinkNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"already linked", worksync.ErrIssueAlreadyLinked, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"invalid type", worksync.ErrInvalidEntityType, http.StatusBadRequest, dto.ErrCodeValidationFormat},
		{"missing project", worksync.ErrMissingProjectKey, http.StatusBadRequest, dto.ErrCodeValidationRequired},
		{"malformed", fmt.Errorf("%w: bad json", worksync.ErrMalformedEvent), http.StatusBadRequest, dto.ErrCodeMalformedWebhook},
		{"stale", worksync.ErrStaleStatus, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"tracker down", fmt.Errorf("create issue: %w", worksync.ErrTrackerUnavailable), http.StatusBadGateway, dto.ErrCodeUpstreamUnavailable},
		{"tracker throttled", worksync.ErrTrackerRateLimited, http.StatusServiceUnavailable, dto.ErrCodeUpstreamRateLimited},
		{"tracker auth", worksync.ErrTrackerAuthRejected, http.StatusBadGateway, dto.ErrCodeUpstreamAuth},
		{"transition missing", &worksync.TransitionNotFoundError{IssueKey: "CRM-1", Name: "Done"}, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"domain error", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{"unknown", assert.AnError, http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Set(middleware.RequestIDContextKey, "req-1")

			var h BaseHandler
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}

func TestBaseHandler_HandleError_HidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	var h BaseHandler
	h.HandleError(c, fmt.Errorf("dial tcp 10.0.0.3:5432: connection refused"))

	assert.NotContains(t, w.Body.String(), "10.0.0.3")
}

func TestBaseHandler_HandleError_Nil(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var h BaseHandler
	h.HandleError(c, nil)

	assert.Equal(t, 0, w.Body.Len())
}
