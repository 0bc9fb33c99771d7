package worksync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Resolve Tests
// ---------------------------------------------------------------------------

func TestStatusMapping_Resolve(t *testing.T) {
	m := NewDefaultStatusMapping()

	tests := []struct {
		name       string
		entityType EntityType
		status     string
		want       string
		wantOK     bool
	}{
		{"task done", EntityTypeTask, "done", "Done", true},
		{"task in progress", EntityTypeTask, "in_progress", "In Progress", true},
		{"project on hold", EntityTypeProject, "on_hold", "On Hold", true},
		{"order shipped", EntityTypeOrder, "shipped", "Shipped", true},
		{"client churned", EntityTypeClient, "churned", "Cancelled", true},
		{"client inactive is unmapped", EntityTypeClient, "inactive", "", false},
		{"unknown status", EntityTypeTask, "archived", "", false},
		{"unknown type", EntityType("invoice"), "done", "", false},
		{"empty status", EntityTypeTask, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Resolve(tt.entityType, tt.status)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusMapping_ResolveIsTotalOverAllowedStatuses(t *testing.T) {
	m := NewDefaultStatusMapping()

	for _, entityType := range AllEntityTypes() {
		for _, status := range entityType.AllowedStatuses() {
			t.Run(entityType.String()+"/"+status, func(t *testing.T) {
				assert.NotPanics(t, func() {
					name, ok := m.Resolve(entityType, status)
					if ok {
						assert.NotEmpty(t, name)
					} else {
						assert.Empty(t, name)
					}
				})
			})
		}
	}
}

// ---------------------------------------------------------------------------
// ReverseResolve Tests
// ---------------------------------------------------------------------------

func TestStatusMapping_ReverseResolve(t *testing.T) {
	m := NewDefaultStatusMapping()

	tests := []struct {
		name       string
		entityType EntityType
		external   string
		want       string
		wantOK     bool
	}{
		{"exact", EntityTypeTask, "Done", "done", true},
		{"case insensitive", EntityTypeTask, "in review", "in_review", true},
		{"surrounding whitespace", EntityTypeProject, "  On Hold ", "on_hold", true},
		{"order shipped", EntityTypeOrder, "shipped", "shipped", true},
		{"unmapped external", EntityTypeTask, "Blocked", "", false},
		{"unknown type", EntityType("invoice"), "Done", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.ReverseResolve(tt.entityType, tt.external)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusMapping_DefaultTablesRoundTrip(t *testing.T) {
	m := NewDefaultStatusMapping()

	for _, entityType := range AllEntityTypes() {
		for _, status := range entityType.AllowedStatuses() {
			name, ok := m.Resolve(entityType, status)
			if !ok {
				continue
			}
			back, ok := m.ReverseResolve(entityType, name)
			require.True(t, ok, name)
			assert.Equal(t, status, back, "%s/%s", entityType, status)
		}
	}
}

// ---------------------------------------------------------------------------
// Ambiguity Tests
// ---------------------------------------------------------------------------

func ambiguousOrderMapping() *StatusMapping {
	return NewStatusMapping(map[EntityType][]StatusPair{
		EntityTypeOrder: {
			{"pending", "To Do"},
			{"processing", "In Progress"},
			{"shipped", "In Progress"},
			{"delivered", "Done"},
		},
	})
}

func TestStatusMapping_DefaultTablesHaveNoAmbiguities(t *testing.T) {
	assert.Empty(t, NewDefaultStatusMapping().Ambiguities())
}

func TestStatusMapping_Ambiguities(t *testing.T) {
	m := ambiguousOrderMapping()

	amb := m.Ambiguities()
	require.Len(t, amb, 1)
	assert.Equal(t, EntityTypeOrder, amb[0].EntityType)
	assert.Equal(t, "In Progress", amb[0].Transition)
	assert.Equal(t, "processing", amb[0].Chosen)
	assert.Equal(t, []string{"shipped"}, amb[0].Shadowed)

	status, ok := m.ReverseResolve(EntityTypeOrder, "in progress")
	require.True(t, ok)
	assert.Equal(t, "processing", status)
}

func TestStatusMapping_AmbiguitiesReturnsCopy(t *testing.T) {
	m := ambiguousOrderMapping()

	amb := m.Ambiguities()
	amb[0].Chosen = "mutated"

	assert.Equal(t, "processing", m.Ambiguities()[0].Chosen)
}

func TestStatusMapping_CustomTables(t *testing.T) {
	m := NewStatusMapping(map[EntityType][]StatusPair{
		EntityTypeTask: {
			{"todo", "Open"},
			{"in_progress", "open"},
			{"done", "Closed"},
			{"todo", "Ignored Duplicate"},
		},
	})

	name, ok := m.Resolve(EntityTypeTask, "todo")
	require.True(t, ok)
	assert.Equal(t, "Open", name)

	status, ok := m.ReverseResolve(EntityTypeTask, "OPEN")
	require.True(t, ok)
	assert.Equal(t, "todo", status)

	_, ok = m.Resolve(EntityTypeProject, "active")
	assert.False(t, ok)

	require.Len(t, m.Ambiguities(), 1)
	assert.Equal(t, []string{"in_progress"}, m.Ambiguities()[0].Shadowed)
}
