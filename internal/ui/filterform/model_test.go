package filterform

import (
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/ideaboard/internal/model"
	"github.com/nhle/ideaboard/internal/views"
)

func TestModel_StartSeedsCurrentFilters(t *testing.T) {
	m := New(80, 24)
	assert.False(t, m.Active())
	assert.Empty(t, m.View())

	q := views.Query{
		Types:      []model.NotificationType{model.TypeError},
		Priorities: []model.Priority{model.PriorityUrgent},
	}
	m.Start(q)
	require.True(t, m.Active())
	assert.Equal(t, q.Types, m.fb.types)
	assert.Equal(t, q.Priorities, m.fb.priorities)
	assert.Contains(t, m.View(), "Filter Notifications")

	// Bindings are copies, not the query's slices.
	m.fb.types[0] = model.TypeInfo
	assert.Equal(t, model.TypeError, q.Types[0])
}

func TestModel_Submit(t *testing.T) {
	m := New(80, 24)
	m.Start(views.Query{})
	m.fb.types = []model.NotificationType{model.TypeWarning}

	msg := m.submit()()
	assert.Equal(t, AppliedMsg{
		Types:      []model.NotificationType{model.TypeWarning},
		Priorities: nil,
	}, msg)
}

func TestModel_AbortCancels(t *testing.T) {
	m := New(80, 24)
	m.Start(views.Query{})
	m.form.State = huh.StateAborted

	m, cmd := m.Update(nil)
	assert.False(t, m.Active())
	require.NotNil(t, cmd)
	assert.Equal(t, CancelMsg{}, cmd())
}

func TestFormSize(t *testing.T) {
	assert.Equal(t, 40, New(10, 5).formWidth())
	assert.Equal(t, 100, New(300, 5).formWidth())
	assert.Equal(t, 10, New(10, 5).formHeight())
}
