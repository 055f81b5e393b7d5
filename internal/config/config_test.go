package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("acme")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "acme", cfg.Workspace.Name)
	assert.Len(t, cfg.Stages, 5)
	assert.True(t, cfg.Settings.TimeLogsEnabled())
	assert.True(t, cfg.Settings.AutoAssignEnabled())
	assert.Equal(t, 1, cfg.Settings.DeadlineReminderDays)
	assert.Equal(t, []string{"Reproduce", "Fix", "Verify"}, cfg.Templates["bugfix"].Subtasks)
}

func TestRoundTripThroughWorkspace(t *testing.T) {
	dir := t.TempDir()
	cfg := Default("acme")
	off := false
	cfg.Settings.AllowTimeLogs = &off
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(Path(dir), data, 0o644))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.False(t, loaded.Settings.TimeLogsEnabled())
	assert.True(t, loaded.Settings.SubtasksEnabled())
}

func TestLoadOptionalMissing(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no stages": `stages: []`,
		"bad kind": `stages:
  - {name: A, kind: archived}`,
		"no open stage": `stages:
  - {name: Done, kind: done}`,
		"duplicate stage": `stages:
  - {name: A, kind: open}
  - {name: A, kind: done}`,
		"template without title": `stages:
  - {name: A, kind: open}
templates:
  x: {priority: high}`,
		"negative hours": `settings: {default_planned_hours: -1}
stages:
  - {name: A, kind: open}`,
		"webhook url": `stages:
  - {name: A, kind: open}
webhooks:
  - {events: [task.created]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}
