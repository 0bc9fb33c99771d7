package worksync

import "strings"

// StatusPair is one forward mapping entry.
type StatusPair struct {
	CRMStatus  string
	Transition string
}

// Ambiguity records an external name that more than one CRM status maps to.
// Reverse resolution returns Chosen; Shadowed statuses are never produced by
// inbound events.
type Ambiguity struct {
	EntityType EntityType
	Transition string
	Chosen     string
	Shadowed   []string
}

// DefaultStatusTables returns the built-in forward tables. Entry order is
// significant: it decides which CRM status wins reverse resolution.
func DefaultStatusTables() map[EntityType][]StatusPair {
	return map[EntityType][]StatusPair{
		EntityTypeTask: {
			{"todo", "To Do"},
			{"in_progress", "In Progress"},
			{"in_review", "In Review"},
			{"done", "Done"},
			{"cancelled", "Cancelled"},
		},
		EntityTypeProject: {
			{"planning", "To Do"},
			{"active", "In Progress"},
			{"on_hold", "On Hold"},
			{"completed", "Done"},
			{"cancelled", "Cancelled"},
		},
		EntityTypeOrder: {
			{"pending", "To Do"},
			{"processing", "In Progress"},
			{"shipped", "Shipped"},
			{"delivered", "Done"},
			{"cancelled", "Cancelled"},
		},
		EntityTypeClient: {
			{"lead", "To Do"},
			{"prospect", "In Progress"},
			{"active", "Done"},
			{"churned", "Cancelled"},
		},
	}
}

// StatusMapping resolves CRM statuses to tracker transition names and back.
// Both directions are computed once at construction and read-only afterwards,
// so a StatusMapping is safe for concurrent use.
type StatusMapping struct {
	forward     map[EntityType]map[string]string
	reverse     map[EntityType]map[string]string
	ambiguities []Ambiguity
}

// NewStatusMapping builds the registry from ordered forward tables.
func NewStatusMapping(tables map[EntityType][]StatusPair) *StatusMapping {
	m := &StatusMapping{
		forward: make(map[EntityType]map[string]string, len(tables)),
		reverse: make(map[EntityType]map[string]string, len(tables)),
	}

	for _, entityType := range AllEntityTypes() {
		pairs, ok := tables[entityType]
		if !ok {
			continue
		}
		fwd := make(map[string]string, len(pairs))
		rev := make(map[string]string, len(pairs))
		shadowed := make(map[string][]string)
		var order []string

		for _, p := range pairs {
			if _, dup := fwd[p.CRMStatus]; dup {
				continue
			}
			fwd[p.CRMStatus] = p.Transition

			key := normalizeName(p.Transition)
			if _, taken := rev[key]; taken {
				if len(shadowed[key]) == 0 {
					order = append(order, key)
				}
				shadowed[key] = append(shadowed[key], p.CRMStatus)
				continue
			}
			rev[key] = p.CRMStatus
		}

		for _, key := range order {
			m.ambiguities = append(m.ambiguities, Ambiguity{
				EntityType: entityType,
				Transition: fwd[rev[key]],
				Chosen:     rev[key],
				Shadowed:   shadowed[key],
			})
		}
		m.forward[entityType] = fwd
		m.reverse[entityType] = rev
	}
	return m
}

// NewDefaultStatusMapping builds the registry from DefaultStatusTables.
func NewDefaultStatusMapping() *StatusMapping {
	return NewStatusMapping(DefaultStatusTables())
}

// Resolve returns the transition name for a CRM status. ok is false when
// nothing is mapped, which callers treat as nothing to sync.
func (m *StatusMapping) Resolve(entityType EntityType, crmStatus string) (string, bool) {
	name, ok := m.forward[entityType][crmStatus]
	return name, ok
}

// ReverseResolve returns the CRM status for an external status or transition
// name. Matching ignores case and surrounding whitespace.
func (m *StatusMapping) ReverseResolve(entityType EntityType, externalName string) (string, bool) {
	status, ok := m.reverse[entityType][normalizeName(externalName)]
	return status, ok
}

// Ambiguities lists every external name shared by several CRM statuses.
func (m *StatusMapping) Ambiguities() []Ambiguity {
	out := make([]Ambiguity, len(m.ambiguities))
	copy(out, m.ambiguities)
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
