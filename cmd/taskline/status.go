package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/migrate"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		Long:  "Database location, schema version and task counts for the acting user.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if !db.Exists(workspace) {
				return fmt.Errorf("no database at %s; run taskline init", db.Path(workspace))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				version, err := migrate.Version(ctx, e.DB)
				if err != nil {
					return err
				}
				latest, err := migrate.Latest()
				if err != nil {
					return err
				}
				info, err := e.Info(ctx, actorID())
				if err != nil {
					return err
				}
				out := map[string]any{
					"workspace":      e.Config.Workspace.Name,
					"database":       db.Path(workspace),
					"schema_version": version,
					"schema_latest":  latest,
					"tasks":          info,
				}
				return printOut(out, func(tw table.Writer) {
					tw.AppendRows([]table.Row{
						{"Workspace", e.Config.Workspace.Name},
						{"Database", db.Path(workspace)},
						{"Schema", fmt.Sprintf("%d of %d", version, latest)},
						{"My open tasks", info.MyTasks},
						{"Open tasks", info.OpenTasks},
						{"Overdue", info.Overdue},
					})
				})
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "taskline.yml holds the workspace settings, the stage list and task templates.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config)
				}
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(e.Config)
			})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate [file]",
		Short: "Validate taskline.yml or the given file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			var err error
			if len(args) == 1 {
				path = args[0]
				_, err = config.FromFile(path)
			} else {
				_, err = config.Load(workspace)
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s is valid\n", path)
			return nil
		},
	})
	return cfg
}
