package tracker

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/crm/backend/internal/domain/worksync"
)

// APIError is returned for every non-2xx Jira answer.
// It unwraps to the matching worksync sentinel so callers can branch with errors.Is.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	// JiraBody is set when the body carried Jira's errorMessages/errors envelope.
	JiraBody bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps the HTTP status to a domain sentinel. A 404 only means the
// issue is gone when Jira itself answered; a bare 404 from a proxy or a wrong
// base path is reported as unavailable.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound && e.JiraBody:
		return worksync.ErrIssueNotFound
	case e.StatusCode == http.StatusNotFound:
		return worksync.ErrTrackerUnavailable
	case e.StatusCode == http.StatusTooManyRequests:
		return worksync.ErrTrackerRateLimited
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return worksync.ErrTrackerAuthRejected
	case e.StatusCode >= 500:
		return worksync.ErrTrackerUnavailable
	}
	return nil
}

// jiraErrorBody is the envelope Jira uses for error answers
type jiraErrorBody struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

func isJiraErrorBody(body []byte) bool {
	var env jiraErrorBody
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.ErrorMessages != nil || env.Errors != nil
}

// jiraIssue is the subset of the Jira issue resource the adapter reads
type jiraIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  *struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

type jiraCreateIssueRequest struct {
	Fields jiraCreateFields `json:"fields"`
}

type jiraCreateFields struct {
	Project     jiraKeyRef      `json:"project"`
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description,omitempty"`
	IssueType   jiraNameRef     `json:"issuetype"`
}

type jiraKeyRef struct {
	Key string `json:"key"`
}

type jiraNameRef struct {
	Name string `json:"name"`
}

type jiraCreateIssueResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

type jiraCommentRequest struct {
	Body json.RawMessage `json:"body"`
}

type jiraTransitionsResponse struct {
	Transitions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"transitions"`
}

type jiraTransitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
}
