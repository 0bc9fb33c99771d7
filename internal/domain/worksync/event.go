package worksync

import "strings"

// EventType selects how a webhook delivery is applied
type EventType string

const (
	EventTypeStatusChange EventType = "status-change"
	EventTypeIssueDeleted EventType = "issue-deleted"
	// EventTypeIgnored marks deliveries the engine acknowledges without acting on.
	EventTypeIgnored EventType = "ignored"
)

// IsValid returns true if the event type is known
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeStatusChange, EventTypeIssueDeleted, EventTypeIgnored:
		return true
	}
	return false
}

// SyncEvent is a decoded tracker webhook delivery. It is never persisted.
type SyncEvent struct {
	IssueKey           string
	Type               EventType
	ExternalStatusName string
	// DeliveryID is the tracker's delivery identifier, empty if absent.
	DeliveryID string
	// RawEvent is the tracker's own event name, kept for logging.
	RawEvent string
}

// Validate checks the event shape before any lookup or mutation happens.
func (e *SyncEvent) Validate() error {
	if !e.Type.IsValid() {
		return ErrMalformedEvent
	}
	if strings.TrimSpace(e.IssueKey) == "" {
		return ErrMissingIssueKey
	}
	if e.Type == EventTypeIgnored {
		return nil
	}
	if e.Type == EventTypeStatusChange && strings.TrimSpace(e.ExternalStatusName) == "" {
		return ErrMissingStatusName
	}
	return nil
}
