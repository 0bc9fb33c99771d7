package worksync

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crm/backend/internal/domain/worksync"
)

// Jira webhook event names
const (
	JiraEventIssueUpdated = "jira:issue_updated"
	JiraEventIssueDeleted = "jira:issue_deleted"
)

// DeliveryIDHeader carries the tracker's unique webhook delivery identifier
const DeliveryIDHeader = "X-Atlassian-Webhook-Identifier"

// WebhookPayload is the subset of a Jira issue webhook body the service reads
type WebhookPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Timestamp    int64  `json:"timestamp,omitempty"`
	Issue        *struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields *struct {
			Status *struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	} `json:"issue"`
	Changelog *struct {
		Items []struct {
			Field    string `json:"field"`
			FromText string `json:"fromString"`
			ToText   string `json:"toString"`
		} `json:"items"`
	} `json:"changelog"`
}

func (p *WebhookPayload) issueKey() string {
	if p.Issue == nil {
		return ""
	}
	return strings.TrimSpace(p.Issue.Key)
}

// statusName prefers the changelog's new value over the issue snapshot
func (p *WebhookPayload) statusName() string {
	if p.Changelog != nil {
		for _, item := range p.Changelog.Items {
			if item.Field == "status" && strings.TrimSpace(item.ToText) != "" {
				return strings.TrimSpace(item.ToText)
			}
		}
	}
	if p.Issue != nil && p.Issue.Fields != nil && p.Issue.Fields.Status != nil {
		return strings.TrimSpace(p.Issue.Fields.Status.Name)
	}
	return ""
}

// ParseWebhook decodes and validates a delivery body
func ParseWebhook(body []byte, deliveryID string) (*worksync.SyncEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", worksync.ErrMalformedEvent, err)
	}
	if payload.WebhookEvent == "" {
		return nil, fmt.Errorf("%w: webhookEvent is required", worksync.ErrMalformedEvent)
	}

	event := &worksync.SyncEvent{
		IssueKey:   payload.issueKey(),
		DeliveryID: strings.TrimSpace(deliveryID),
		RawEvent:   payload.WebhookEvent,
	}
	switch payload.WebhookEvent {
	case JiraEventIssueUpdated:
		event.Type = worksync.EventTypeStatusChange
		event.ExternalStatusName = payload.statusName()
	case JiraEventIssueDeleted:
		event.Type = worksync.EventTypeIssueDeleted
	default:
		event.Type = worksync.EventTypeIgnored
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", worksync.ErrMalformedEvent, err)
	}
	return event, nil
}
