package worksync

import "context"

// Transition is one workflow edge offered for an issue
type Transition struct {
	ID   string
	Name string
}

// TransitionRef selects a transition by ID or, when ID is empty, by name.
type TransitionRef struct {
	ID   string
	Name string
}

// IssueInput describes a new tracker issue
type IssueInput struct {
	ProjectKey  string
	Summary     string
	Description string
	IssueType   string
}

// CreatedIssue is the tracker's answer to an issue creation
type CreatedIssue struct {
	Key string
	ID  string
	URL string
}

// Issue is the subset of tracker issue state the engine reads
type Issue struct {
	Key        string
	ID         string
	Summary    string
	StatusName string
	URL        string
}

// Tracker is the port to the external issue tracker.
// Every method returns a structured error on failure; ErrIssueNotFound is
// reserved for a definitive "issue does not exist" answer.
type Tracker interface {
	CreateIssue(ctx context.Context, input IssueInput) (*CreatedIssue, error)
	AddComment(ctx context.Context, issueKey, text string) error
	ListTransitions(ctx context.Context, issueKey string) ([]Transition, error)
	ExecuteTransition(ctx context.Context, issueKey string, ref TransitionRef) error
	GetIssue(ctx context.Context, issueKey string) (*Issue, error)
}
