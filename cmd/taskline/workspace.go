package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"taskline/internal/app"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/repo"
	"taskline/internal/server"
)

func stageCmd() *cobra.Command {
	stage := &cobra.Command{Use: "stage", Short: "Inspect and configure stages"}
	stage.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stages in sequence order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stages, err := e.ListStages(ctx)
				if err != nil {
					return err
				}
				return printOut(stages, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Seq", "ID", "Name", "Kind", "Folded"})
					for _, s := range stages {
						tw.AppendRow(table.Row{s.Sequence, s.ID, s.Name, s.Kind, s.Fold})
					}
				})
			})
		},
	})
	stage.AddCommand(&cobra.Command{
		Use:   "kind <stage> <open|done|cancelled>",
		Short: "Change a stage kind and refresh the closure of its tasks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SetStageKind(ctx, args[0], args[1], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"stage": args[0], "kind": args[1], "tasks_refreshed": n})
				}
				fmt.Printf("stage %s is now %s, %d tasks refreshed\n", args[0], args[1], n)
				return nil
			})
		},
	})
	return stage
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage teams"}

	var opts engine.TeamOptions
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a team; the manager is always a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			opts.ActorID = actorID()
			if opts.ManagerID == "" {
				opts.ManagerID = opts.ActorID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTeam(ctx, opts)
				if err != nil {
					return err
				}
				return printOut(t, func(tw table.Writer) { renderTeams(tw, []engine.TeamView{t}) })
			})
		},
	}
	create.Flags().StringVar(&opts.ManagerID, "manager", "", "manager user id (defaults to --actor-id)")
	create.Flags().StringVar(&opts.ParentTeamID, "parent", "", "parent team id")
	create.Flags().StringSliceVar(&opts.MemberIDs, "member", nil, "member user id (repeatable)")
	team.AddCommand(create)

	team.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				teams, err := e.ListTeams(ctx)
				if err != nil {
					return err
				}
				return printOut(teams, func(tw table.Writer) { renderTeams(tw, teams) })
			})
		},
	})
	return team
}

func renderTeams(tw table.Writer, teams []engine.TeamView) {
	tw.AppendHeader(table.Row{"ID", "Name", "Kind", "Manager", "Members"})
	for _, t := range teams {
		tw.AppendRow(table.Row{t.ID, t.Name, t.Kind, t.ManagerID, strings.Join(t.AllMembers, ", ")})
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users and credentials"}

	var name string
	var admin bool
	add := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.AddUser(ctx, engine.UserOptions{ID: args[0], Name: name, Admin: admin, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printOut(u, func(tw table.Writer) { renderUsers(tw, []domain.User{u}) })
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().BoolVar(&admin, "admin", false, "grant admin")
	user.AddCommand(add)

	user.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printOut(users, func(tw table.Writer) { renderUsers(tw, users) })
			})
		},
	})

	var keyName string
	key := &cobra.Command{
		Use:   "key <user-id>",
		Short: "Issue an API key; the key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, err := e.CreateAPIKey(ctx, args[0], keyName, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(k)
				}
				fmt.Println(k.Key)
				return nil
			})
		},
	}
	key.Flags().StringVar(&keyName, "name", "", "key label")
	user.AddCommand(key)

	user.AddCommand(&cobra.Command{
		Use:   "keys <user-id>",
		Short: "List a user's API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.ListAPIKeys(ctx, args[0])
				if err != nil {
					return err
				}
				return printOut(keys, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Name", "Created", "Last used", "Revoked"})
					for _, k := range keys {
						tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt, derefOr(k.LastUsedAt, "never"), derefOr(k.RevokedAt, "")})
					}
				})
			})
		},
	})
	user.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, err := e.RevokeAPIKey(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(k)
				}
				fmt.Printf("revoked %s\n", k.ID)
				return nil
			})
		},
	})
	for _, active := range []bool{true, false} {
		use, short := "activate <user-id>", "Reactivate a user and its keys"
		if !active {
			use, short = "deactivate <user-id>", "Deactivate a user; its API keys stop authenticating"
		}
		user.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					u, err := e.SetUserActive(ctx, args[0], active, actorID())
					if err != nil {
						return err
					}
					return printOut(u, func(tw table.Writer) { renderUsers(tw, []domain.User{u}) })
				})
			},
		})
	}

	var ttl time.Duration
	token := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a bearer token with TASKLINE_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return errors.New("TASKLINE_JWT_SECRET is required to sign tokens")
			}
			tok, err := server.SignToken(secret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	user.AddCommand(token)
	return user
}

func renderUsers(tw table.Writer, users []domain.User) {
	tw.AppendHeader(table.Row{"ID", "Name", "Admin", "Active"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.Name, u.Admin, u.Active})
	}
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func notifyCmd() *cobra.Command {
	notify := &cobra.Command{Use: "notify", Short: "Deadline notifications"}
	notify.AddCommand(&cobra.Command{
		Use:   "overdue",
		Short: "Post overdue notices for open tasks past their deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.NotifyOverdue(ctx, actorID())
				if err != nil {
					return err
				}
				return printOut(tasks, renderTasks(tasks))
			})
		},
	})
	var days int
	dueSoon := &cobra.Command{
		Use:   "due-soon",
		Short: "List open tasks due within the reminder window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.DueSoon(ctx, days, "")
				if err != nil {
					return err
				}
				return printOut(tasks, renderTasks(tasks))
			})
		},
	}
	dueSoon.Flags().IntVar(&days, "days", 0, "window in days (defaults to settings.deadline_reminder_days)")
	notify.AddCommand(dueSoon)
	return notify
}

func eventsCmd() *cobra.Command {
	evts := &cobra.Command{Use: "events", Short: "Inspect the event log"}
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				return printOut(items, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
					for _, evt := range items {
						tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
					}
				})
			})
		},
	}
	tail.Flags().IntVarP(&f.Limit, "limit", "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	evts.AddCommand(tail)
	return evts
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return errors.New("TASKLINE_JWT_SECRET is required for bearer auth")
			}
			log, err := newLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := app.Open(ctx, viper.GetString("workspace"), actorID(), log)
			if err != nil {
				return err
			}
			defer ws.Close()

			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:        secret,
					AllowActorHeader: allowActorHeader,
					EnableDevLogin:   devLogin,
					Logger:           log,
				},
				Context: ctx,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn("shutdown", zap.Error(err))
				}
			}()
			log.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
			fmt.Printf("Serving Taskline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", false, "trust X-Actor-Id (local development only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	return cmd
}
