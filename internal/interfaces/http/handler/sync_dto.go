package handler

import (
	"time"

	appsync "github.com/crm/backend/internal/application/worksync"
	"github.com/crm/backend/internal/domain/worksync"
)

// EntityPath addresses one CRM entity in the URL
type EntityPath struct {
	Type string `uri:"type" binding:"required,entity_type"`
	ID   string `uri:"id" binding:"required,uuid"`
}

// LinkPath addresses one link of an entity
type LinkPath struct {
	EntityPath
	IssueKey string `uri:"issue_key" binding:"required,issue_key"`
}

// LinkIssueRequest links an entity to a tracker issue. With IssueKey set the
// existing issue is linked; otherwise a new issue is created from the other fields.
type LinkIssueRequest struct {
	IssueKey    string `json:"issue_key" binding:"omitempty,issue_key"`
	ProjectKey  string `json:"project_key" binding:"omitempty,max=32"`
	IssueType   string `json:"issue_type" binding:"omitempty,max=64"`
	Summary     string `json:"summary" binding:"omitempty,max=255"`
	Description string `json:"description" binding:"omitempty,max=32000"`
}

func (r LinkIssueRequest) toLinkRequest() appsync.LinkRequest {
	return appsync.LinkRequest{
		ProjectKey:  r.ProjectKey,
		IssueType:   r.IssueType,
		Summary:     r.Summary,
		Description: r.Description,
	}
}

// SweepResponse summarizes a manual sweep without per-company detail
type SweepResponse struct {
	StartedAt       time.Time `json:"started_at"`
	DurationMs      int64     `json:"duration_ms"`
	Companies       int       `json:"companies"`
	FailedCompanies int       `json:"failed_companies"`
	Interrupted     bool      `json:"interrupted"`
	Entities        int       `json:"entities"`
	Transitioned    int       `json:"transitioned"`
	FailedLinks     int       `json:"failed_links"`
}

func newSweepResponse(r *appsync.SweepReport) SweepResponse {
	resp := SweepResponse{
		StartedAt:       r.StartedAt,
		DurationMs:      r.Duration.Milliseconds(),
		Companies:       len(r.Companies),
		FailedCompanies: r.FailedCompanies,
		Interrupted:     r.Interrupted,
	}
	for _, company := range r.Companies {
		resp.Entities += company.Entities
		resp.Transitioned += company.Transitioned
		resp.FailedLinks += company.FailedLinks
	}
	return resp
}

// CleanupResponse reports how many orphaned links were dropped
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// LinkOutcomeResponse is one linked issue's part of a push
type LinkOutcomeResponse struct {
	IssueKey        string `json:"issue_key"`
	Transitioned    bool   `json:"transitioned"`
	AlreadyInTarget bool   `json:"already_in_target,omitempty"`
	Error           string `json:"error,omitempty"`
	CommentError    string `json:"comment_error,omitempty"`
}

// PushResponse reports a user-initiated status push
type PushResponse struct {
	Entity     worksync.EntityRef    `json:"entity"`
	Status     string                `json:"status"`
	Transition string                `json:"transition,omitempty"`
	Skipped    bool                  `json:"skipped"`
	SkipReason string                `json:"skip_reason,omitempty"`
	Succeeded  int                   `json:"succeeded"`
	Failed     int                   `json:"failed"`
	Links      []LinkOutcomeResponse `json:"links"`
}

func newPushResponse(r *appsync.PushResult) PushResponse {
	resp := PushResponse{
		Entity:     r.Entity,
		Status:     r.Status,
		Transition: r.Transition,
		Skipped:    r.Skipped,
		SkipReason: r.SkipReason,
		Succeeded:  r.Succeeded(),
		Failed:     r.Failed(),
		Links:      make([]LinkOutcomeResponse, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		link := LinkOutcomeResponse{
			IssueKey:        o.IssueKey,
			Transitioned:    o.Transitioned,
			AlreadyInTarget: o.AlreadyInTarget,
		}
		if o.Err != nil {
			link.Error = o.Err.Error()
		}
		if o.CommentErr != nil {
			link.CommentError = o.CommentErr.Error()
		}
		resp.Links = append(resp.Links, link)
	}
	return resp
}
