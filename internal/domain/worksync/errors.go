package worksync

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidEntityType   = errors.New("worksync: invalid entity type")
	ErrInvalidStatus       = errors.New("worksync: status not allowed for entity type")
	ErrEntityNotFound      = errors.New("worksync: entity not found")
	ErrIssueNotFound       = errors.New("worksync: issue not found")
	ErrIssueAlreadyLinked  = errors.New("worksync: issue already linked to an entity")
	ErrLinkNotFound        = errors.New("worksync: link not found")
	ErrStaleStatus         = errors.New("worksync: entity status changed concurrently")
	ErrMalformedEvent      = errors.New("worksync: malformed webhook event")
	ErrMissingIssueKey     = errors.New("worksync: issue key is required")
	ErrMissingStatusName   = errors.New("worksync: status name is required for status-change events")
	ErrMissingProjectKey   = errors.New("worksync: project key is required")
	ErrCompanyNotFound     = errors.New("worksync: company not found")
	ErrTrackerUnavailable  = errors.New("worksync: tracker unavailable")
	ErrTrackerRateLimited  = errors.New("worksync: tracker rate limited")
	ErrTrackerAuthRejected = errors.New("worksync: tracker rejected credentials")
)

// TransitionNotFoundError is returned when a named transition is not offered
// by the issue's current workflow state. It is recoverable and only affects
// the link it was raised for.
type TransitionNotFoundError struct {
	IssueKey string
	Name     string
}

func (e *TransitionNotFoundError) Error() string {
	return fmt.Sprintf("worksync: transition %q not available for issue %s", e.Name, e.IssueKey)
}

// IsTransitionNotFound reports whether err wraps a TransitionNotFoundError.
func IsTransitionNotFound(err error) bool {
	var target *TransitionNotFoundError
	return errors.As(err, &target)
}
