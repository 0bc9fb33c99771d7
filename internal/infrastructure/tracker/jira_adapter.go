package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/crm/backend/internal/domain/worksync"
)

const (
	// maxJiraResponseSize limits the response body size to prevent memory exhaustion
	maxJiraResponseSize = 2 * 1024 * 1024
	// maxErrorBodyLen truncates error bodies kept on APIError
	maxErrorBodyLen = 2048
	userAgent       = "crm-worksync/1.0"
)

// JiraAdapter implements worksync.Tracker against Jira Cloud REST v3
type JiraAdapter struct {
	config     *JiraConfig
	httpClient *http.Client
	authHeader string
	logger     *zap.Logger
}

// JiraAdapterOption configures a JiraAdapter
type JiraAdapterOption func(*JiraAdapter)

// WithHTTPClient replaces the default HTTP client. The configured timeout is
// applied if the client has none.
func WithHTTPClient(client *http.Client) JiraAdapterOption {
	return func(a *JiraAdapter) {
		if client.Timeout == 0 {
			client.Timeout = a.config.Timeout
		}
		a.httpClient = client
	}
}

// WithLogger sets the adapter logger
func WithLogger(logger *zap.Logger) JiraAdapterOption {
	return func(a *JiraAdapter) {
		a.logger = logger.Named("jira")
	}
}

// NewJiraAdapter creates a Jira adapter. Missing credentials or base URL fail here.
func NewJiraAdapter(config *JiraConfig, opts ...JiraAdapterOption) (*JiraAdapter, error) {
	if config == nil {
		return nil, ErrJiraConfigMissingBaseURL
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &JiraAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(config.Email+":"+config.APIToken)),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// CreateIssue creates an issue with an ADF description
func (a *JiraAdapter) CreateIssue(ctx context.Context, input worksync.IssueInput) (*worksync.CreatedIssue, error) {
	if strings.TrimSpace(input.ProjectKey) == "" {
		return nil, worksync.ErrMissingProjectKey
	}
	issueType := input.IssueType
	if issueType == "" {
		issueType = a.config.DefaultIssueType
	}

	req := jiraCreateIssueRequest{Fields: jiraCreateFields{
		Project:   jiraKeyRef{Key: input.ProjectKey},
		Summary:   input.Summary,
		IssueType: jiraNameRef{Name: issueType},
	}}
	if input.Description != "" {
		description, err := PlainTextToADF(input.Description)
		if err != nil {
			return nil, err
		}
		req.Fields.Description = description
	}

	body, err := a.doJSON(ctx, http.MethodPost, "/issue", req)
	if err != nil {
		return nil, fmt.Errorf("create issue in %s: %w", input.ProjectKey, err)
	}

	var created jiraCreateIssueResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("jira: parse create response: %w", err)
	}
	if created.Key == "" {
		return nil, fmt.Errorf("jira: create response carried no issue key")
	}

	return &worksync.CreatedIssue{
		Key: created.Key,
		ID:  created.ID,
		URL: a.config.BrowseURL(created.Key),
	}, nil
}

// AddComment posts an ADF comment on the issue
func (a *JiraAdapter) AddComment(ctx context.Context, issueKey, text string) error {
	path := "/issue/" + url.PathEscape(issueKey) + "/comment"
	body, err := PlainTextToADF(text)
	if err != nil {
		return err
	}
	if _, err := a.doJSON(ctx, http.MethodPost, path, jiraCommentRequest{Body: body}); err != nil {
		return fmt.Errorf("add comment to %s: %w", issueKey, err)
	}
	return nil
}

// ListTransitions returns the transitions available from the issue's current state
func (a *JiraAdapter) ListTransitions(ctx context.Context, issueKey string) ([]worksync.Transition, error) {
	path := "/issue/" + url.PathEscape(issueKey) + "/transitions"
	body, err := a.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("list transitions for %s: %w", issueKey, err)
	}

	var resp jiraTransitionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("jira: parse transitions response: %w", err)
	}

	transitions := make([]worksync.Transition, 0, len(resp.Transitions))
	for _, t := range resp.Transitions {
		transitions = append(transitions, worksync.Transition{ID: t.ID, Name: t.Name})
	}
	return transitions, nil
}

// ExecuteTransition applies a transition by ID, or by case-insensitive exact
// name match against ListTransitions when no ID is given.
func (a *JiraAdapter) ExecuteTransition(ctx context.Context, issueKey string, ref worksync.TransitionRef) error {
	id := ref.ID
	if id == "" {
		if strings.TrimSpace(ref.Name) == "" {
			return &worksync.TransitionNotFoundError{IssueKey: issueKey, Name: ref.Name}
		}
		transitions, err := a.ListTransitions(ctx, issueKey)
		if err != nil {
			return err
		}
		for _, t := range transitions {
			if strings.EqualFold(t.Name, ref.Name) {
				id = t.ID
				break
			}
		}
		if id == "" {
			return &worksync.TransitionNotFoundError{IssueKey: issueKey, Name: ref.Name}
		}
	}

	var req jiraTransitionRequest
	req.Transition.ID = id
	path := "/issue/" + url.PathEscape(issueKey) + "/transitions"
	if _, err := a.doJSON(ctx, http.MethodPost, path, req); err != nil {
		return fmt.Errorf("execute transition %s on %s: %w", id, issueKey, err)
	}
	return nil
}

// GetIssue fetches the issue. A 404 answer unwraps to worksync.ErrIssueNotFound.
func (a *JiraAdapter) GetIssue(ctx context.Context, issueKey string) (*worksync.Issue, error) {
	path := "/issue/" + url.PathEscape(issueKey) + "?fields=summary,status"
	body, err := a.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", issueKey, err)
	}

	var issue jiraIssue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("jira: parse issue response: %w", err)
	}

	out := &worksync.Issue{Key: issue.Key, ID: issue.ID, Summary: issue.Fields.Summary, URL: a.config.BrowseURL(issue.Key)}
	if issue.Fields.Status != nil {
		out.StatusName = issue.Fields.Status.Name
	}
	return out, nil
}

// doJSON marshals payload, sends it, and retries rate-limit or unavailable
// answers when retries are configured.
func (a *JiraAdapter) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("jira: failed to marshal request: %w", err)
		}
	}

	if a.config.MaxRetries == 0 {
		return a.doRequest(ctx, method, path, data)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.config.RetryInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(a.config.MaxRetries)), ctx)

	var body []byte
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		body, err = a.doRequest(ctx, method, path, data)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			a.logger.Debug("retrying jira request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	return body, err
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode == http.StatusServiceUnavailable
}

// doRequest executes one authenticated request and returns the response body
func (a *JiraAdapter) doRequest(ctx context.Context, method, path string, data []byte) ([]byte, error) {
	var bodyReader io.Reader
	if data != nil {
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.APIBaseURL()+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("jira: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", a.authHeader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", worksync.ErrTrackerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJiraResponseSize))
	if err != nil {
		return nil, fmt.Errorf("jira: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := string(body)
		if len(errBody) > maxErrorBodyLen {
			errBody = errBody[:maxErrorBodyLen]
		}
		return nil, &APIError{
			Method:     method,
			Path:       stripQuery(path),
			StatusCode: resp.StatusCode,
			Body:       errBody,
			JiraBody:   isJiraErrorBody(body),
		}
	}
	return body, nil
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

var _ worksync.Tracker = (*JiraAdapter)(nil)
