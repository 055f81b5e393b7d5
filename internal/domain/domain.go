package domain

// Task types.
const (
	TaskTypeIndividual = "individual"
	TaskTypeTeam       = "team"
)

// Stage kinds. Done and cancelled close a task.
const (
	StageKindOpen      = "open"
	StageKindDone      = "done"
	StageKindCancelled = "cancelled"
)

// Kanban states.
const (
	KanbanNormal  = "normal"
	KanbanDone    = "done"
	KanbanBlocked = "blocked"
)

// Priorities, lowest first.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Recurrence frequencies and end conditions.
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
	RecurYearly  = "yearly"

	RecurEndCount   = "count"
	RecurEndDate    = "end_date"
	RecurEndForever = "forever"
)

type Stage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind" enum:"open,done,cancelled"`
	Sequence int    `json:"sequence"`
	Fold     bool   `json:"fold"`
}

// Closed reports whether tasks in this stage count as closed.
func (s Stage) Closed() bool {
	return s.Kind == StageKindDone || s.Kind == StageKindCancelled
}

type Task struct {
	ID                    string    `json:"id"`
	Title                 string    `json:"title"`
	Description           string    `json:"description,omitempty"`
	Active                bool      `json:"active"`
	TaskType              string    `json:"task_type" enum:"individual,team"`
	AssigneeID            *string   `json:"assignee_id,omitempty"`
	TeamID                *string   `json:"team_id,omitempty"`
	Collaborators         []string  `json:"collaborators,omitempty"`
	StageID               string    `json:"stage_id"`
	StageName             string    `json:"stage_name"`
	StageKind             string    `json:"stage_kind" enum:"open,done,cancelled"`
	KanbanState           string    `json:"kanban_state" enum:"normal,done,blocked"`
	Priority              string    `json:"priority" enum:"low,normal,high,urgent"`
	Tags                  []string  `json:"tags,omitempty"`
	Progress              float64   `json:"progress"`
	PlannedHours          float64   `json:"planned_hours"`
	EffectiveHours        float64   `json:"effective_hours"`
	RemainingHours        float64   `json:"remaining_hours"`
	IsClosed              bool      `json:"is_closed"`
	AllowTimeLogs         bool      `json:"allow_time_logs"`
	SubtaskCount          int       `json:"subtask_count"`
	SubtaskCompletedCount int       `json:"subtask_completed_count"`
	DaysToDeadline        int       `json:"days_to_deadline"`
	DateStart             *string   `json:"date_start,omitempty" format:"date-time"`
	DateDeadline          *string   `json:"date_deadline,omitempty" format:"date-time"`
	DateAssign            *string   `json:"date_assign,omitempty" format:"date-time"`
	DateEnd               *string   `json:"date_end,omitempty" format:"date-time"`
	TemplateName          string    `json:"template_name,omitempty"`
	CreatedBy             string    `json:"created_by"`
	CreatedAt             string    `json:"created_at" format:"date-time"`
	UpdatedAt             string    `json:"updated_at" format:"date-time"`
	Subtasks              []Subtask `json:"subtasks,omitempty"`
	TimeLogs              []TimeLog `json:"time_logs,omitempty"`
}

type Subtask struct {
	ID          string   `json:"id"`
	TaskID      string   `json:"task_id"`
	Name        string   `json:"name"`
	Sequence    int      `json:"sequence"`
	IsDone      bool     `json:"is_done"`
	Deadline    *string  `json:"deadline,omitempty" format:"date"`
	Description string   `json:"description,omitempty"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
}

// PrimaryAssignee is the first assignee, kept for callers that expect one user.
func (s Subtask) PrimaryAssignee() string {
	if len(s.AssigneeIDs) == 0 {
		return ""
	}
	return s.AssigneeIDs[0]
}

type TimeLog struct {
	ID          string   `json:"id"`
	TaskID      string   `json:"task_id"`
	SubtaskID   *string  `json:"subtask_id,omitempty"`
	UserID      string   `json:"user_id"`
	Description string   `json:"description"`
	Date        string   `json:"date" format:"date"`
	Duration    float64  `json:"duration"`
	TimeStart   *float64 `json:"time_start,omitempty"`
	TimeEnd     *float64 `json:"time_end,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Team struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ManagerID    string   `json:"manager_id"`
	ParentTeamID *string  `json:"parent_team_id,omitempty"`
	MemberIDs    []string `json:"member_ids"`
	Active       bool     `json:"active"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	Admin     bool   `json:"admin"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates its user while the key is unrevoked and the user active.
type APIKey struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	Name       string  `json:"name,omitempty"`
	KeyHash    string  `json:"-"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
	LastUsedAt *string `json:"last_used_at,omitempty" format:"date-time"`
	RevokedAt  *string `json:"revoked_at,omitempty" format:"date-time"`
}

func (k APIKey) Revoked() bool { return k.RevokedAt != nil }

// Recurrence repeats a task series. Each new task copies the series task
// with the latest deadline.
type Recurrence struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Type      string  `json:"recurrence_type" enum:"daily,weekly,monthly,yearly"`
	Interval  int     `json:"interval"`
	EndType   string  `json:"end_type" enum:"count,end_date,forever"`
	Count     int     `json:"count,omitempty"`
	EndDate   *string `json:"end_date,omitempty" format:"date"`
	CreatedBy string  `json:"created_by"`
	CreatedAt string  `json:"created_at" format:"date-time"`
	// Derived from the series.
	TaskIDs  []string `json:"task_ids"`
	NextDate string   `json:"next_date,omitempty" format:"date"`
}
