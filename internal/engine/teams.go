package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
)

// Team kinds derived from the hierarchy.
const (
	TeamKindParent     = "parent"
	TeamKindChild      = "child"
	TeamKindStandalone = "standalone"
)

// TeamView is a team with its place in the hierarchy.
type TeamView struct {
	domain.Team
	Kind       string   `json:"kind" enum:"parent,child,standalone"`
	ChildIDs   []string `json:"child_ids"`
	AllMembers []string `json:"all_members"`
}

type TeamOptions struct {
	Name         string
	ManagerID    string
	ParentTeamID string
	MemberIDs    []string
	ActorID      string
}

// membersWithManager keeps the manager in the member list.
func membersWithManager(manager string, members []string) []string {
	return dedupe(append([]string{manager}, members...))
}

func (e Engine) CreateTeam(ctx context.Context, opts TeamOptions) (TeamView, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return TeamView{}, invalidInput("team name is required")
	}
	if opts.ManagerID == "" {
		return TeamView{}, invalidInput("manager_id is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return TeamView{}, err
	}
	defer tx.Rollback()

	team := domain.Team{
		ID:           newID(),
		Name:         name,
		ManagerID:    opts.ManagerID,
		ParentTeamID: optionalString(opts.ParentTeamID),
		MemberIDs:    membersWithManager(opts.ManagerID, opts.MemberIDs),
		Active:       true,
		CreatedAt:    e.stamp(),
	}
	if team.ParentTeamID != nil {
		if _, err := e.Repo.GetTeam(ctx, tx, *team.ParentTeamID); err != nil {
			return TeamView{}, fmt.Errorf("parent team %s: %w", *team.ParentTeamID, err)
		}
	}
	if err := e.Repo.InsertTeam(ctx, tx, team); err != nil {
		return TeamView{}, fmt.Errorf("insert team: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.TeamCreated, "team", team.ID, opts.ActorID, events.EventPayload{
		"name": team.Name, "manager_id": team.ManagerID, "members": team.MemberIDs,
	}); err != nil {
		return TeamView{}, err
	}
	if err := tx.Commit(); err != nil {
		return TeamView{}, err
	}
	e.log().Info("team created", zap.String("team_id", team.ID), zap.String("name", team.Name))
	return e.GetTeam(ctx, team.ID)
}

// TeamUpdateOptions leaves nil fields alone. An empty ParentTeamID detaches the team.
type TeamUpdateOptions struct {
	ID           string
	Name         *string
	ManagerID    *string
	ParentTeamID *string
	MemberIDs    []string
	Active       *bool
	ActorID      string
}

func (e Engine) UpdateTeam(ctx context.Context, opts TeamUpdateOptions) (TeamView, error) {
	tx, err := e.begin(ctx)
	if err != nil {
		return TeamView{}, err
	}
	defer tx.Rollback()

	team, err := e.Repo.GetTeam(ctx, tx, opts.ID)
	if err != nil {
		return TeamView{}, fmt.Errorf("team %s: %w", opts.ID, err)
	}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return TeamView{}, invalidInput("team name is required")
		}
		team.Name = name
	}
	if opts.ManagerID != nil {
		if *opts.ManagerID == "" {
			return TeamView{}, invalidInput("manager_id is required")
		}
		team.ManagerID = *opts.ManagerID
	}
	if opts.MemberIDs != nil {
		team.MemberIDs = opts.MemberIDs
	}
	team.MemberIDs = membersWithManager(team.ManagerID, team.MemberIDs)
	if opts.ParentTeamID != nil {
		team.ParentTeamID = optionalString(*opts.ParentTeamID)
		if team.ParentTeamID != nil {
			if err := e.checkTeamCycle(ctx, tx, team.ID, *team.ParentTeamID); err != nil {
				return TeamView{}, err
			}
		}
	}
	if opts.Active != nil {
		team.Active = *opts.Active
	}
	if err := e.Repo.UpdateTeam(ctx, tx, team); err != nil {
		return TeamView{}, err
	}
	if err := e.appendEvent(ctx, tx, events.TeamUpdated, "team", team.ID, opts.ActorID, events.EventPayload{
		"name": team.Name, "manager_id": team.ManagerID, "members": team.MemberIDs,
	}); err != nil {
		return TeamView{}, err
	}
	if err := tx.Commit(); err != nil {
		return TeamView{}, err
	}
	return e.GetTeam(ctx, team.ID)
}

// checkTeamCycle walks up from parentID and fails if it reaches teamID.
func (e Engine) checkTeamCycle(ctx context.Context, tx *sql.Tx, teamID, parentID string) error {
	seen := map[string]bool{}
	for id := parentID; id != ""; {
		if id == teamID {
			return invalidInput("team %s cannot be its own ancestor", teamID)
		}
		if seen[id] {
			return invalidInput("team hierarchy already contains a cycle at %s", id)
		}
		seen[id] = true
		parent, err := e.Repo.GetTeam(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("parent team %s: %w", id, err)
		}
		if err != nil {
			return err
		}
		id = ""
		if parent.ParentTeamID != nil {
			id = *parent.ParentTeamID
		}
	}
	return nil
}

func (e Engine) GetTeam(ctx context.Context, id string) (TeamView, error) {
	team, err := e.Repo.GetTeam(ctx, nil, id)
	if err != nil {
		return TeamView{}, fmt.Errorf("team %s: %w", id, err)
	}
	return e.viewTeam(ctx, team)
}

func (e Engine) viewTeam(ctx context.Context, team domain.Team) (TeamView, error) {
	children, err := e.Repo.ChildTeamIDs(ctx, nil, team.ID)
	if err != nil {
		return TeamView{}, err
	}
	all, err := e.Repo.AllTeamMembers(ctx, nil, team.ID)
	if err != nil {
		return TeamView{}, err
	}
	if children == nil {
		children = []string{}
	}
	if team.MemberIDs == nil {
		team.MemberIDs = []string{}
	}
	v := TeamView{Team: team, ChildIDs: children, AllMembers: dedupe(all)}
	switch {
	case len(children) > 0:
		v.Kind = TeamKindParent
	case team.ParentTeamID != nil:
		v.Kind = TeamKindChild
	default:
		v.Kind = TeamKindStandalone
	}
	return v, nil
}

func (e Engine) ListTeams(ctx context.Context) ([]TeamView, error) {
	teams, err := e.Repo.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]TeamView, 0, len(teams))
	for _, t := range teams {
		v, err := e.viewTeam(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
