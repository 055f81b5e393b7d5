package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/repo"
	"taskline/internal/tracking"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskStageCmd())
	task.AddCommand(taskActionCmd("done", "Move task to the first done stage", engine.Engine.MarkDone))
	task.AddCommand(taskActionCmd("archive", "Archive task", engine.Engine.ArchiveTask))
	task.AddCommand(taskActionCmd("restore", "Restore archived task", engine.Engine.RestoreTask))
	task.AddCommand(taskActionCmd("copy", "Copy task with its subtasks", engine.Engine.CopyTask))
	return task
}

func renderTasks(tasks []domain.Task) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Title", "Stage", "Assignee", "Progress", "Planned", "Spent", "Deadline"})
		for _, t := range tasks {
			tw.AppendRow(table.Row{
				t.ID, t.Title, t.StageName, deref(t.AssigneeID),
				fmt.Sprintf("%.0f%%", t.Progress),
				tracking.HoursDisplay(t.PlannedHours), tracking.HoursDisplay(t.EffectiveHours),
				deref(t.DateDeadline),
			})
		}
	}
}

func renderTask(t domain.Task) func(table.Writer) {
	return func(tw table.Writer) {
		tw.SetTitle(t.Title)
		tw.AppendRows([]table.Row{
			{"ID", t.ID},
			{"Type", t.TaskType},
			{"Stage", fmt.Sprintf("%s (%s)", t.StageName, t.StageKind)},
			{"Priority", t.Priority},
			{"Assignee", deref(t.AssigneeID)},
			{"Team", deref(t.TeamID)},
			{"Progress", fmt.Sprintf("%.0f%%", t.Progress)},
			{"Hours", fmt.Sprintf("%s planned, %s spent, %s remaining",
				tracking.HoursDisplay(t.PlannedHours), tracking.HoursDisplay(t.EffectiveHours), tracking.HoursDisplay(t.RemainingHours))},
			{"Subtasks", fmt.Sprintf("%d/%d", t.SubtaskCompletedCount, t.SubtaskCount)},
			{"Deadline", deref(t.DateDeadline)},
			{"Closed", t.IsClosed},
		})
		for _, s := range t.Subtasks {
			mark := "[ ]"
			if s.IsDone {
				mark = "[x]"
			}
			tw.AppendRow(table.Row{"  " + mark, s.Name + " (" + s.ID + ")"})
		}
	}
}

func taskCreateCmd() *cobra.Command {
	var (
		opts              engine.TaskCreateOptions
		progress, planned float64
		allowLogs         bool
		template          string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Progress = flagFloat(cmd, "progress", progress)
			opts.PlannedHours = flagFloat(cmd, "planned-hours", planned)
			opts.AllowTimeLogs = flagBool(cmd, "allow-time-logs", allowLogs)
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					t   domain.Task
					err error
				)
				if template != "" {
					t, err = e.CreateTaskFromTemplate(ctx, template, opts)
				} else {
					t, err = e.CreateTask(ctx, opts)
				}
				if err != nil {
					return err
				}
				return printOut(t, renderTask(t))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Title, "title", "", "task title")
	f.StringVar(&opts.Description, "description", "", "description")
	f.StringVar(&opts.TaskType, "type", "", "individual or team")
	f.StringVar(&opts.AssigneeID, "assignee", "", "assignee user id")
	f.StringVar(&opts.TeamID, "team", "", "team id (makes a team task)")
	f.StringSliceVar(&opts.Collaborators, "collaborator", nil, "collaborator user id (repeatable)")
	f.StringVar(&opts.Stage, "stage", "", "stage id or name")
	f.StringVar(&opts.Priority, "priority", "", "low, normal, high or urgent")
	f.Float64Var(&progress, "progress", 0, "initial progress when the task has no subtasks")
	f.Float64Var(&planned, "planned-hours", 0, "planned hours")
	f.StringVar(&opts.DateStart, "start", "", "start date or timestamp")
	f.StringVar(&opts.DateDeadline, "deadline", "", "deadline date or timestamp")
	f.StringSliceVar(&opts.Tags, "tag", nil, "tag (repeatable)")
	f.BoolVar(&allowLogs, "allow-time-logs", true, "allow time logs on this task")
	f.StringSliceVar(&opts.Subtasks, "subtask", nil, "subtask name (repeatable)")
	f.StringVar(&template, "template", "", "configured template name")
	return cmd
}

func taskListCmd() *cobra.Command {
	var (
		f                repo.TaskFilters
		stage            string
		closed, archived bool
		limit            int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Closed = flagBool(cmd, "closed", closed)
			if archived {
				active := false
				f.Active = &active
			}
			f.Limit = limit
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if stage != "" {
					s, err := e.Repo.GetStageByName(ctx, nil, stage)
					if err != nil {
						return fmt.Errorf("stage %s: %w", stage, err)
					}
					f.StageID = s.ID
				}
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				return printOut(tasks, renderTasks(tasks))
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.AssigneeID, "assignee", "", "filter by assignee")
	fl.StringVar(&f.TeamID, "team", "", "filter by team")
	fl.StringVar(&stage, "stage", "", "filter by stage name")
	fl.StringVar(&f.TaskType, "type", "", "filter by task type")
	fl.StringVar(&f.Tag, "tag", "", "filter by tag")
	fl.BoolVar(&closed, "closed", false, "only closed (true) or open (false) tasks")
	fl.BoolVar(&archived, "archived", false, "list archived tasks instead of active ones")
	fl.IntVar(&limit, "limit", 0, "maximum number of tasks")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printOut(t, renderTask(t))
			})
		},
	}
}

func taskUpdateCmd() *cobra.Command {
	var (
		title, description, priority, start, deadline string
		assignee, team, taskType, stage, kanban       string
		planned, progress                             float64
		allowLogs                                     bool
		collaborators, tags                           []string
	)
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task fields; an empty value clears an optional field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{
				ID:            args[0],
				Title:         flagString(cmd, "title", title),
				Description:   flagString(cmd, "description", description),
				Priority:      flagString(cmd, "priority", priority),
				PlannedHours:  flagFloat(cmd, "planned-hours", planned),
				Progress:      flagFloat(cmd, "progress", progress),
				DateStart:     flagString(cmd, "start", start),
				DateDeadline:  flagString(cmd, "deadline", deadline),
				AssigneeID:    flagString(cmd, "assignee", assignee),
				TeamID:        flagString(cmd, "team", team),
				TaskType:      flagString(cmd, "type", taskType),
				Stage:         flagString(cmd, "stage", stage),
				KanbanState:   flagString(cmd, "kanban", kanban),
				AllowTimeLogs: flagBool(cmd, "allow-time-logs", allowLogs),
				ActorID:       actorID(),
			}
			if cmd.Flags().Changed("collaborator") {
				opts.Collaborators = append([]string{}, collaborators...)
			}
			if cmd.Flags().Changed("tag") {
				opts.Tags = append([]string{}, tags...)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printOut(t, renderTask(t))
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "title")
	f.StringVar(&description, "description", "", "description")
	f.StringVar(&priority, "priority", "", "priority")
	f.Float64Var(&planned, "planned-hours", 0, "planned hours")
	f.Float64Var(&progress, "progress", 0, "progress (tasks without subtasks)")
	f.StringVar(&start, "start", "", "start date")
	f.StringVar(&deadline, "deadline", "", "deadline")
	f.StringVar(&assignee, "assignee", "", "assignee")
	f.StringVar(&team, "team", "", "team id")
	f.StringVar(&taskType, "type", "", "individual or team")
	f.StringVar(&stage, "stage", "", "stage id or name")
	f.StringVar(&kanban, "kanban", "", "normal, done or blocked")
	f.BoolVar(&allowLogs, "allow-time-logs", true, "allow time logs")
	f.StringSliceVar(&collaborators, "collaborator", nil, "replace collaborators")
	f.StringSliceVar(&tags, "tag", nil, "replace tags")
	return cmd
}

func taskStageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stage <task-id> <stage>",
		Short: "Move task to a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetStage(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printOut(t, renderTask(t))
			})
		},
	}
}

func taskActionCmd(use, short string, run func(engine.Engine, context.Context, string, string) (domain.Task, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := run(e, ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printOut(t, renderTask(t))
			})
		},
	}
}

func subtaskCmd() *cobra.Command {
	sub := &cobra.Command{Use: "subtask", Short: "Manage subtasks"}
	sub.AddCommand(subtaskAddCmd())
	sub.AddCommand(subtaskDoneCmd("done", true))
	sub.AddCommand(subtaskDoneCmd("undone", false))
	sub.AddCommand(subtaskRemoveCmd())
	return sub
}

func subtaskAddCmd() *cobra.Command {
	var opts engine.SubtaskOptions
	cmd := &cobra.Command{
		Use:   "add <task-id> <name>",
		Short: "Add subtask",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TaskID, opts.Name, opts.ActorID = args[0], args[1], actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.AddSubtask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringSliceVar(&opts.AssigneeIDs, "assignee", nil, "assignee (repeatable)")
	return cmd
}

func subtaskDoneCmd(use string, done bool) *cobra.Command {
	short := "Mark subtask done"
	if !done {
		short = "Reopen subtask"
	}
	return &cobra.Command{
		Use:   use + " <subtask-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetSubtaskDone(ctx, args[0], done, actorID())
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
}

func subtaskRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <subtask-id>",
		Short: "Delete subtask; its time logs stay on the task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteSubtask(ctx, args[0], actorID())
			})
		},
	}
}
