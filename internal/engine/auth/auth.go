package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

// ForbiddenError indicates the principal may not act on a resource.
type ForbiddenError struct {
	Action   string
	Resource string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s on %s is not allowed", e.Action, e.Resource)
}

// Service answers access questions from stored users and teams.
type Service struct {
	Repo repo.Repo
}

func (s Service) IsAdmin(ctx context.Context, tx *sql.Tx, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	u, err := s.Repo.GetUser(ctx, tx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Active && u.Admin, nil
}

// CanAccessTask allows admins, the creator, the assignee, collaborators and
// members of the task's team or any of its sub-teams.
func (s Service) CanAccessTask(ctx context.Context, tx *sql.Tx, userID string, t domain.Task) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if t.CreatedBy == userID || (t.AssigneeID != nil && *t.AssigneeID == userID) {
		return true, nil
	}
	for _, c := range t.Collaborators {
		if c == userID {
			return true, nil
		}
	}
	if t.TeamID != nil {
		team, err := s.Repo.GetTeam(ctx, tx, *t.TeamID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return false, err
		}
		if err == nil && team.ManagerID == userID {
			return true, nil
		}
		members, err := s.Repo.AllTeamMembers(ctx, tx, *t.TeamID)
		if err != nil {
			return false, err
		}
		for _, m := range members {
			if m == userID {
				return true, nil
			}
		}
	}
	return s.IsAdmin(ctx, tx, userID)
}

// RequireTaskAccess returns ForbiddenError when CanAccessTask is false.
func (s Service) RequireTaskAccess(ctx context.Context, userID, action string, t domain.Task) error {
	ok, err := s.CanAccessTask(ctx, nil, userID, t)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Action: action, Resource: "task " + t.ID}
	}
	return nil
}

// RequireAdmin returns ForbiddenError unless the user is an active admin.
func (s Service) RequireAdmin(ctx context.Context, userID, action string) error {
	ok, err := s.IsAdmin(ctx, nil, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Action: action, Resource: "workspace"}
	}
	return nil
}
