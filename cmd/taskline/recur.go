package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

func recurCmd() *cobra.Command {
	recur := &cobra.Command{
		Use:   "recur",
		Short: "Repeat tasks on a schedule",
		Long:  "A series copies its task with the latest deadline into a new task one interval later.",
	}

	var opts engine.RecurrenceOptions
	set := &cobra.Command{
		Use:   "set <task-id>",
		Short: "Make a task repeat, or change the rule of its series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TaskID = args[0]
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.SetRecurrence(ctx, opts)
				if err != nil {
					return err
				}
				return printOut(rec, renderRecurrences([]domain.Recurrence{rec}))
			})
		},
	}
	set.Flags().StringVar(&opts.Type, "every", domain.RecurWeekly, "daily, weekly, monthly or yearly")
	set.Flags().IntVar(&opts.Interval, "interval", 1, "repeat every N periods")
	set.Flags().StringVar(&opts.EndType, "end", domain.RecurEndForever, "count, end_date or forever")
	set.Flags().IntVar(&opts.Count, "count", 0, "total tasks in the series when --end=count")
	set.Flags().StringVar(&opts.EndDate, "until", "", "last allowed deadline (YYYY-MM-DD) when --end=end_date")
	recur.AddCommand(set)

	recur.AddCommand(&cobra.Command{
		Use:   "show <task-id>",
		Short: "Show the series a task belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.RecurrenceForTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printOut(rec, renderRecurrences([]domain.Recurrence{rec}))
			})
		},
	})

	recur.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every series",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				recs, err := e.ListRecurrences(ctx)
				if err != nil {
					return err
				}
				return printOut(recs, renderRecurrences(recs))
			})
		},
	})

	recur.AddCommand(&cobra.Command{
		Use:   "next <task-id>",
		Short: "Create the next task of a task's series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.RecurrenceForTask(ctx, args[0])
				if err != nil {
					return err
				}
				t, created, err := e.CreateNextRecurringTask(ctx, rec.ID, actorID())
				if err != nil {
					return err
				}
				if !created {
					if viper.GetBool("json") {
						return printJSON(map[string]any{"created": false})
					}
					fmt.Println("series has ended or has no deadline to repeat from")
					return nil
				}
				return printOut(t, renderTask(t))
			})
		},
	})

	recur.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Advance every series by at most one task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.RunRecurrences(ctx, actorID())
				if err != nil {
					return err
				}
				return printOut(tasks, renderTasks(tasks))
			})
		},
	})

	recur.AddCommand(&cobra.Command{
		Use:   "stop <task-id>",
		Short: "Stop a task's series; created tasks stay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.RecurrenceForTask(ctx, args[0])
				if err != nil {
					return err
				}
				if err := e.StopRecurrence(ctx, rec.ID, actorID()); err != nil {
					return err
				}
				fmt.Printf("stopped %s\n", rec.ID)
				return nil
			})
		},
	})
	return recur
}

func renderRecurrences(recs []domain.Recurrence) func(table.Writer) {
	return func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Rule", "Ends", "Tasks", "Next"})
		for _, r := range recs {
			ends := r.EndType
			switch r.EndType {
			case domain.RecurEndCount:
				ends = fmt.Sprintf("after %d", r.Count)
			case domain.RecurEndDate:
				ends = "on " + deref(r.EndDate)
			}
			tw.AppendRow(table.Row{r.ID, r.Name, ends, strings.Join(r.TaskIDs, ", "), r.NextDate})
		}
	}
}
