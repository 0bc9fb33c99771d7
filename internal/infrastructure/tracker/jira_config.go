package tracker

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// JiraConfig holds configuration for the Jira Cloud REST v3 integration
type JiraConfig struct {
	// BaseURL is the site root, e.g. https://acme.atlassian.net
	BaseURL string
	// Email is the service account used for Basic auth
	Email string
	// APIToken is the service account's API token
	APIToken string
	// Timeout bounds every outbound request
	Timeout time.Duration
	// MaxRetries is the number of retries on 429/503 answers. Zero disables retries.
	MaxRetries int
	// RetryInitialInterval is the first backoff step when retries are enabled
	RetryInitialInterval time.Duration
	// DefaultIssueType is used when an issue is created without an explicit type
	DefaultIssueType string
}

const (
	// jiraAPIBasePath is appended to BaseURL for every REST call
	jiraAPIBasePath = "/rest/api/3"
	// DefaultJiraTimeout is the request timeout used when none is configured
	DefaultJiraTimeout = 15 * time.Second
	// DefaultJiraIssueType is the issue type used when none is configured
	DefaultJiraIssueType = "Task"
	// defaultRetryInitialInterval is the first backoff step
	defaultRetryInitialInterval = 500 * time.Millisecond
)

// Errors for Jira configuration
var (
	ErrJiraConfigMissingBaseURL  = errors.New("jira: base URL is required")
	ErrJiraConfigInvalidBaseURL  = errors.New("jira: base URL must be an absolute http(s) URL")
	ErrJiraConfigMissingEmail    = errors.New("jira: service account email is required")
	ErrJiraConfigMissingAPIToken = errors.New("jira: API token is required")
	ErrJiraConfigNegativeRetries = errors.New("jira: max retries cannot be negative")
)

// NewJiraConfig creates a Jira configuration with defaults
func NewJiraConfig(baseURL, email, apiToken string) *JiraConfig {
	return &JiraConfig{
		BaseURL:          baseURL,
		Email:            email,
		APIToken:         apiToken,
		Timeout:          DefaultJiraTimeout,
		DefaultIssueType: DefaultJiraIssueType,
	}
}

// Validate validates the configuration and fills in defaults
func (c *JiraConfig) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return ErrJiraConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrJiraConfigInvalidBaseURL
	}
	if strings.TrimSpace(c.Email) == "" {
		return ErrJiraConfigMissingEmail
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return ErrJiraConfigMissingAPIToken
	}
	if c.MaxRetries < 0 {
		return ErrJiraConfigNegativeRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultJiraTimeout
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = defaultRetryInitialInterval
	}
	if c.DefaultIssueType == "" {
		c.DefaultIssueType = DefaultJiraIssueType
	}
	return nil
}

// APIBaseURL returns the REST v3 root
func (c *JiraConfig) APIBaseURL() string {
	return c.BaseURL + jiraAPIBasePath
}

// BrowseURL returns the human-facing URL of an issue
func (c *JiraConfig) BrowseURL(issueKey string) string {
	return c.BaseURL + "/browse/" + url.PathEscape(issueKey)
}
