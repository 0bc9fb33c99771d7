package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkPath struct {
	Type string `uri:"type" binding:"required,entity_type"`
}

type linkBody struct {
	IssueKey string `json:"issue_key" binding:"omitempty,issue_key"`
	Summary  string `json:"summary" binding:"max=10"`
}

func newValidationRouter(t *testing.T) *gin.Engine {
	t.Helper()
	require.NoError(t, SetupValidator())

	router := gin.New()
	router.Use(RequestID())
	router.POST("/entities/:type", func(c *gin.Context) {
		var path linkPath
		if err := c.ShouldBindUri(&path); err != nil {
			HandleValidationError(c, err)
			return
		}
		var body linkBody
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupValidator_EntityType(t *testing.T) {
	router := newValidationRouter(t)

	assert.Equal(t, http.StatusOK, post(router, "/entities/task", `{}`).Code)
	assert.Equal(t, http.StatusOK, post(router, "/entities/client", `{}`).Code)

	w := post(router, "/entities/invoice", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	info := decodeError(t, w)
	require.Len(t, info.Details, 1)
	assert.Equal(t, "type", info.Details[0].Field)
	assert.Equal(t, "entity_type", info.Details[0].Code)
	assert.NotEmpty(t, info.RequestID)
}

func TestSetupValidator_IssueKey(t *testing.T) {
	router := newValidationRouter(t)

	for _, key := range []string{"CRM-42", "OPS_2-7", " CRM-1 "} {
		assert.Equal(t, http.StatusOK, post(router, "/entities/task", `{"issue_key":"`+key+`"}`).Code, key)
	}
	for _, key := range []string{"crm-42", "CRM42", "CRM-0", "-42"} {
		w := post(router, "/entities/task", `{"issue_key":"`+key+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, key)
		assert.Equal(t, "issue_key", decodeError(t, w).Details[0].Field)
	}
}

func TestFormatValidationErrors_Messages(t *testing.T) {
	router := newValidationRouter(t)

	w := post(router, "/entities/task", `{"summary":"far too long for ten"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	info := decodeError(t, w)
	assert.Equal(t, "ERR_VALIDATION", info.Code)
	require.Len(t, info.Details, 1)
	assert.Equal(t, "summary", info.Details[0].Field)
	assert.Equal(t, "Must be at most 10 characters", info.Details[0].Message)
}

func TestFormatValidationErrors_NonValidatorError(t *testing.T) {
	resp := FormatValidationErrors(assert.AnError, "req-1")
	require.NotNil(t, resp.Error)
	assert.Empty(t, resp.Error.Details)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}
