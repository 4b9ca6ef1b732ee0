package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refo-app/refo-gamification/internal/models"
)

const validCatalog = `
badges:
  - name: First Steps
    description: Complete your first task
    icon: "🎯"
    requirement_type: tasks_completed
    requirement_value: 1
  - name: On Fire
    description: Stay active three days in a row
    icon: "🔥"
    requirement_type: streak_days
    requirement_value: 3
  - name: Big Earner
    requirement_type: earnings_reached
    requirement_value: 1000
`

func TestParse_Valid(t *testing.T) {
	badges, err := Parse([]byte(validCatalog))
	require.NoError(t, err)
	require.Len(t, badges, 3)

	assert.Equal(t, "First Steps", badges[0].Name)
	assert.Equal(t, models.RequirementTasksCompleted, badges[0].RequirementType)
	assert.Equal(t, models.RequirementStreakDays, badges[1].RequirementType)
	assert.InDelta(t, 1000, badges[2].RequirementValue, 0.001)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "empty",
			yaml: "badges: []\n",
		},
		{
			name: "unknown requirement type",
			yaml: "badges:\n  - name: Referrer\n    requirement_type: referrals\n    requirement_value: 5\n",
		},
		{
			name: "missing name",
			yaml: "badges:\n  - requirement_type: streak_days\n    requirement_value: 5\n",
		},
		{
			name: "non-positive threshold",
			yaml: "badges:\n  - name: Zero\n    requirement_type: streak_days\n    requirement_value: 0\n",
		},
		{
			name: "duplicate names",
			yaml: "badges:\n  - name: A\n    requirement_type: streak_days\n    requirement_value: 1\n  - name: A\n    requirement_type: tasks_completed\n    requirement_value: 1\n",
		},
		{
			name: "unknown field",
			yaml: "badges:\n  - name: A\n    requirement_type: streak_days\n    requirement_value: 1\n    points: 10\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validCatalog), 0o600))

	badges, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, badges, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExampleCatalog(t *testing.T) {
	badges, err := Load(filepath.Join("..", "..", "config", "badges.example.yaml"))
	require.NoError(t, err)
	assert.Len(t, badges, 6)

	for _, b := range badges {
		assert.True(t, b.RequirementType.Valid(), b.Name)
	}
}
