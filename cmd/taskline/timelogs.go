package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"taskline/internal/engine"
	"taskline/internal/tracking"
)

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Log and review time"}
	log.AddCommand(logAddCmd())
	log.AddCommand(logPreviewCmd())
	log.AddCommand(logEditCmd())
	log.AddCommand(logRemoveCmd())
	log.AddCommand(logListCmd())
	return log
}

type logFlags struct {
	opts       engine.LogTimeOptions
	start, end float64
}

func (lf *logFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&lf.opts.SubtaskID, "subtask", "", "subtask id")
	f.StringVar(&lf.opts.UserID, "user", "", "user the time belongs to (defaults to --actor-id)")
	f.StringVar(&lf.opts.Date, "date", "", "entry date YYYY-MM-DD (defaults to today)")
	f.Float64VarP(&lf.opts.Duration, "hours", "H", 0, "duration in decimal hours")
	f.StringVarP(&lf.opts.QuickTime, "quick", "q", "", fmt.Sprintf("preset duration %v", tracking.QuickTimeKeys()))
	f.Float64Var(&lf.start, "from", 0, "start time in decimal hours, e.g. 9.5")
	f.Float64Var(&lf.end, "to", 0, "end time in decimal hours")
	f.StringVarP(&lf.opts.Description, "message", "m", "", "work description")
	f.BoolVar(&lf.opts.SkipDurationWarning, "no-warn", false, "skip the long-duration warning")
}

func (lf *logFlags) resolve(cmd *cobra.Command, taskID string) engine.LogTimeOptions {
	opts := lf.opts
	opts.TaskID = taskID
	opts.ActorID = actorID()
	if opts.UserID == "" {
		opts.UserID = opts.ActorID
	}
	opts.TimeStart = flagFloat(cmd, "from", lf.start)
	opts.TimeEnd = flagFloat(cmd, "to", lf.end)
	return opts
}

func printWarnings(ws []tracking.Warning) {
	for _, w := range ws {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", w.Title, w.Message)
	}
}

func logAddCmd() *cobra.Command {
	var lf logFlags
	cmd := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Log time on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := lf.resolve(cmd, args[0])
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.LogTime(ctx, opts)
				if err != nil {
					return err
				}
				printWarnings(res.Warnings)
				return printOut(res, func(tw table.Writer) {
					tw.AppendRow(table.Row{res.Entry.ID, res.Entry.WorkSummary})
				})
			})
		},
	}
	lf.bind(cmd)
	return cmd
}

func logPreviewCmd() *cobra.Command {
	var lf logFlags
	cmd := &cobra.Command{
		Use:   "preview <task-id>",
		Short: "Check a time entry without saving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := lf.resolve(cmd, args[0])
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.PreviewTimeLog(ctx, opts)
				if err != nil {
					return err
				}
				return printOut(p, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Kind", "Code", "Message"})
					for _, ve := range p.Errors {
						tw.AppendRow(table.Row{"error", ve.Code, ve.Message})
					}
					for _, w := range p.Warnings {
						tw.AppendRow(table.Row{"warning", w.Code, w.Message})
					}
					tw.AppendFooter(table.Row{"duration", tracking.HoursDisplay(p.Duration), p.Description})
				})
			})
		},
	}
	lf.bind(cmd)
	return cmd
}

func logEditCmd() *cobra.Command {
	var (
		subtask, date, quick, message string
		hours, start, end             float64
		noWarn                        bool
	)
	cmd := &cobra.Command{
		Use:   "edit <log-id>",
		Short: "Edit a time entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TimeLogUpdateOptions{
				ID:                  args[0],
				SubtaskID:           flagString(cmd, "subtask", subtask),
				Date:                flagString(cmd, "date", date),
				Duration:            flagFloat(cmd, "hours", hours),
				QuickTime:           quick,
				TimeStart:           flagFloat(cmd, "from", start),
				TimeEnd:             flagFloat(cmd, "to", end),
				Description:         flagString(cmd, "message", message),
				SkipDurationWarning: noWarn,
				ActorID:             actorID(),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UpdateTimeLog(ctx, opts)
				if err != nil {
					return err
				}
				printWarnings(res.Warnings)
				return printOut(res, func(tw table.Writer) {
					tw.AppendRow(table.Row{res.Entry.ID, res.Entry.WorkSummary})
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&subtask, "subtask", "", "subtask id; empty moves the entry to the task itself")
	f.StringVar(&date, "date", "", "entry date")
	f.Float64VarP(&hours, "hours", "H", 0, "duration in decimal hours")
	f.StringVarP(&quick, "quick", "q", "", "preset duration")
	f.Float64Var(&start, "from", 0, "start time in decimal hours")
	f.Float64Var(&end, "to", 0, "end time in decimal hours")
	f.StringVarP(&message, "message", "m", "", "work description")
	f.BoolVar(&noWarn, "no-warn", false, "skip the long-duration warning")
	return cmd
}

func logRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <log-id>",
		Short: "Delete a time entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTimeLog(ctx, args[0], actorID())
			})
		},
	}
}

func logListCmd() *cobra.Command {
	var f engine.TimeLogFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List time entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.ListTimeLogs(ctx, f)
				if err != nil {
					return err
				}
				return printOut(logs, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Date", "User", "Entry", "Time"})
					var total float64
					for _, l := range logs {
						total += l.Duration
						tw.AppendRow(table.Row{l.ID, l.Date, l.UserID, l.DisplayName, l.HoursDisplay})
					}
					tw.AppendFooter(table.Row{"", "", "", "Total", tracking.HoursDisplay(total)})
				})
			})
		},
	}
	cmd.Flags().StringVar(&f.TaskID, "task", "", "task id")
	cmd.Flags().StringVar(&f.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&f.DateFrom, "from", "", "first date YYYY-MM-DD")
	cmd.Flags().StringVar(&f.DateTo, "to", "", "last date YYYY-MM-DD")
	return cmd
}

func summaryCmd() *cobra.Command {
	sum := &cobra.Command{Use: "summary", Short: "Time summaries"}
	sum.AddCommand(summaryWeekCmd())
	sum.AddCommand(summaryTaskCmd())
	return sum
}

func summaryWeekCmd() *cobra.Command {
	var user, from, to string
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Hours per task for a user; defaults to the current week",
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				user = actorID()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.WeeklySummary(ctx, user, from, to)
				if err != nil {
					return err
				}
				return printOut(s, func(tw table.Writer) {
					tw.SetTitle(fmt.Sprintf("%s: %s to %s", s.UserID, s.DateFrom, s.DateTo))
					tw.AppendHeader(table.Row{"Task", "Entries", "Time"})
					for _, d := range s.Details {
						tw.AppendRow(table.Row{d.Task, d.Entries, tracking.HoursDisplay(d.Hours)})
					}
					tw.AppendFooter(table.Row{
						fmt.Sprintf("%d tasks, %d days", s.TasksWorked, s.DaysWorked), "", tracking.HoursDisplay(s.TotalHours),
					})
				})
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (defaults to --actor-id)")
	cmd.Flags().StringVar(&from, "from", "", "first date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date YYYY-MM-DD")
	return cmd
}

func summaryTaskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "task <task-id>",
		Short: "Planned versus spent hours, grouped by subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.TimeTrackingSummary(ctx, args[0])
				if err != nil {
					return err
				}
				return printOut(s, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Subtask", "Entries", "Time"})
					for _, g := range s.BySubtask {
						tw.AppendRow(table.Row{g.Name, len(g.Entries), tracking.HoursDisplay(g.TotalHours)})
					}
					over := ""
					if s.IsOverBudget {
						over = " (over budget)"
					}
					tw.AppendFooter(table.Row{
						fmt.Sprintf("planned %s, remaining %s%s", tracking.HoursDisplay(s.TotalPlanned), tracking.HoursDisplay(s.Remaining), over),
						fmt.Sprintf("%.0f%%", s.ProgressPercent),
						tracking.HoursDisplay(s.TotalSpent),
					})
				})
			})
		},
	}
}
