package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models taskline.yml.
type Config struct {
	Workspace struct {
		Name string `yaml:"name"`
	} `yaml:"workspace"`
	Settings  Settings            `yaml:"settings"`
	Stages    []StageSeed         `yaml:"stages"`
	Templates map[string]Template `yaml:"templates"`
	Webhooks  []Webhook           `yaml:"webhooks"`
	Users     map[string]UserSeed `yaml:"users"`
}

type Settings struct {
	DefaultPlannedHours  float64 `yaml:"default_planned_hours"`
	AllowTimeLogs        *bool   `yaml:"allow_time_logs"`
	AllowSubtasks        *bool   `yaml:"allow_subtasks"`
	AutoAssign           *bool   `yaml:"auto_assign"`
	DeadlineReminderDays int     `yaml:"deadline_reminder_days"`
}

// TimeLogsEnabled defaults to true when unset.
func (s Settings) TimeLogsEnabled() bool { return s.AllowTimeLogs == nil || *s.AllowTimeLogs }

// SubtasksEnabled defaults to true when unset.
func (s Settings) SubtasksEnabled() bool { return s.AllowSubtasks == nil || *s.AllowSubtasks }

// AutoAssignEnabled defaults to true when unset.
func (s Settings) AutoAssignEnabled() bool { return s.AutoAssign == nil || *s.AutoAssign }

type StageSeed struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Sequence int    `yaml:"sequence"`
	Fold     bool   `yaml:"fold"`
}

type Template struct {
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	TaskType     string   `yaml:"task_type"`
	Priority     string   `yaml:"priority"`
	PlannedHours float64  `yaml:"planned_hours"`
	Tags         []string `yaml:"tags"`
	Subtasks     []string `yaml:"subtasks"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type UserSeed struct {
	Name  string `yaml:"name"`
	Admin bool   `yaml:"admin"`
}

var stageKinds = map[string]bool{"open": true, "done": true, "cancelled": true}

var taskTypes = map[string]bool{"": true, "individual": true, "team": true}

var priorities = map[string]bool{"": true, "low": true, "normal": true, "high": true, "urgent": true}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with taskline init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Settings.DefaultPlannedHours < 0 {
		return fmt.Errorf("config.settings.default_planned_hours must not be negative")
	}
	if c.Settings.DeadlineReminderDays < 0 {
		return fmt.Errorf("config.settings.deadline_reminder_days must not be negative")
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("config.stages is required")
	}
	seen := map[string]bool{}
	hasOpen := false
	for i, st := range c.Stages {
		if st.Name == "" {
			return fmt.Errorf("config.stages[%d] has empty name", i)
		}
		if seen[st.Name] {
			return fmt.Errorf("config.stages has duplicate stage %s", st.Name)
		}
		seen[st.Name] = true
		if !stageKinds[st.Kind] {
			return fmt.Errorf("stage %s has invalid kind %q", st.Name, st.Kind)
		}
		if st.Kind == "open" {
			hasOpen = true
		}
	}
	if !hasOpen {
		return fmt.Errorf("config.stages must include at least one open stage")
	}
	for name, tpl := range c.Templates {
		if name == "" {
			return fmt.Errorf("config.templates contains empty template name")
		}
		if tpl.Title == "" {
			return fmt.Errorf("template %s has empty title", name)
		}
		if !taskTypes[tpl.TaskType] {
			return fmt.Errorf("template %s has invalid task_type %q", name, tpl.TaskType)
		}
		if !priorities[tpl.Priority] {
			return fmt.Errorf("template %s has invalid priority %q", name, tpl.Priority)
		}
		if tpl.PlannedHours < 0 {
			return fmt.Errorf("template %s has negative planned_hours", name)
		}
		for _, s := range tpl.Subtasks {
			if s == "" {
				return fmt.Errorf("template %s has empty subtask name", name)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d] has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d] has negative timeout_seconds", i)
		}
	}
	for id := range c.Users {
		if id == "" {
			return fmt.Errorf("config.users contains empty user id")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a workspace.
func Default(name string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(name))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  name: %s

settings:
  # 0 leaves planned hours unset on new tasks
  default_planned_hours: 0
  allow_time_logs: true
  allow_subtasks: true
  auto_assign: true
  deadline_reminder_days: 1

stages:
  - {name: To-Do, kind: open, sequence: 1}
  - {name: In Progress, kind: open, sequence: 2}
  - {name: Review, kind: open, sequence: 3}
  - {name: Done, kind: done, sequence: 4, fold: true}
  - {name: Cancelled, kind: cancelled, sequence: 5, fold: true}

templates:
  bugfix:
    title: Fix reported bug
    priority: high
    planned_hours: 4
    tags: [bug]
    subtasks: [Reproduce, Fix, Verify]
  onboarding:
    title: Onboard new member
    task_type: team
    planned_hours: 8
    subtasks: [Accounts, Walkthrough, First task]

webhooks: []
`
