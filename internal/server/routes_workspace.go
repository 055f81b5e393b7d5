package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/repo"
)

type teamBody struct {
	Body engine.TeamView `json:"body"`
}

func registerTeams(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateTeamRequest `json:"body"`
	}) (*teamBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := h.requireAdmin(ctx, "team.create")
		if err != nil {
			return nil, h.fail(err)
		}
		team, err := h.e.CreateTeam(ctx, engine.TeamOptions{
			Name:         input.Body.Name,
			ManagerID:    input.Body.ManagerID,
			ParentTeamID: stringOrEmpty(input.Body.ParentTeamID),
			MemberIDs:    input.Body.MemberIDs,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &teamBody{Body: team}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-teams",
		Method:      http.MethodGet,
		Path:        "/teams",
		Summary:     "List teams with their hierarchy",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.TeamView `json:"body"`
	}, error) {
		teams, err := h.e.ListTeams(ctx)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []engine.TeamView `json:"body"`
		}{Body: nonNilSlice(teams)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-team",
		Method:      http.MethodGet,
		Path:        "/teams/{team_id}",
		Summary:     "Get team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TeamID string `path:"team_id"`
	}) (*teamBody, error) {
		team, err := h.e.GetTeam(ctx, input.TeamID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &teamBody{Body: team}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-team",
		Method:      http.MethodPatch,
		Path:        "/teams/{team_id}",
		Summary:     "Update team; the manager or an admin may edit it",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TeamID string            `path:"team_id"`
		Body   UpdateTeamRequest `json:"body"`
	}) (*teamBody, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		current, err := h.e.GetTeam(ctx, input.TeamID)
		if err != nil {
			return nil, h.fail(err)
		}
		if err := h.requireSelfOrAdmin(ctx, actorID, current.ManagerID, "team.update"); err != nil {
			return nil, h.fail(err)
		}
		team, err := h.e.UpdateTeam(ctx, engine.TeamUpdateOptions{
			ID:           input.TeamID,
			Name:         input.Body.Name,
			ManagerID:    input.Body.ManagerID,
			ParentTeamID: input.Body.ParentTeamID,
			MemberIDs:    input.Body.MemberIDs,
			Active:       input.Body.Active,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &teamBody{Body: team}, nil
	})
}

func registerUsers(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		users, err := h.e.ListUsers(ctx)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Register a user or change its admin flag",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := h.requireAdmin(ctx, "user.create")
		if err != nil {
			return nil, h.fail(err)
		}
		u, err := h.e.AddUser(ctx, engine.UserOptions{
			ID:      input.Body.ID,
			Name:    input.Body.Name,
			Admin:   input.Body.Admin,
			ActorID: actorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/api-keys",
		Summary:       "Issue an API key; the raw key is returned once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string              `path:"user_id"`
		Body   CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body engine.CreatedAPIKey `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.requireSelfOrAdmin(ctx, actorID, input.UserID, "apikey.create"); err != nil {
			return nil, h.fail(err)
		}
		key, err := h.e.CreateAPIKey(ctx, input.UserID, input.Body.Name, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body engine.CreatedAPIKey `json:"body"`
		}{Body: key}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/api-keys",
		Summary:     "List a user's API keys with last use and revocation",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.requireSelfOrAdmin(ctx, actorID, input.UserID, "apikey.list"); err != nil {
			return nil, h.fail(err)
		}
		keys, err := h.e.ListAPIKeys(ctx, input.UserID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodPost,
		Path:        "/api-keys/{key_id}/revoke",
		Summary:     "Revoke an API key",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct {
		Body domain.APIKey `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, err := h.e.GetAPIKey(ctx, input.KeyID)
		if err != nil {
			return nil, h.fail(err)
		}
		if err := h.requireSelfOrAdmin(ctx, actorID, key.UserID, "apikey.revoke"); err != nil {
			return nil, h.fail(err)
		}
		key, err = h.e.RevokeAPIKey(ctx, input.KeyID, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body domain.APIKey `json:"body"`
		}{Body: key}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-user",
		Method:      http.MethodPatch,
		Path:        "/users/{user_id}",
		Summary:     "Activate or deactivate a user",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string            `path:"user_id"`
		Body   UpdateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := h.requireAdmin(ctx, "user.update")
		if err != nil {
			return nil, h.fail(err)
		}
		if input.Body.Active == nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "active is required", nil)
		}
		u, err := h.e.SetUserActive(ctx, input.UserID, *input.Body.Active, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerNotifications(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "notify-overdue",
		Method:      http.MethodPost,
		Path:        "/notifications/overdue",
		Summary:     "Post overdue notices for open tasks past their deadline",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		actorID, err := h.requireAdmin(ctx, "notify.overdue")
		if err != nil {
			return nil, h.fail(err)
		}
		tasks, err := h.e.NotifyOverdue(ctx, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "due-soon",
		Method:      http.MethodGet,
		Path:        "/notifications/due-soon",
		Summary:     "Open tasks due within the reminder window",
	}, func(ctx context.Context, input *struct {
		Days int `query:"days" doc:"window in days; defaults to settings.deadline_reminder_days"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		visibleTo, err := h.visibleTo(ctx, actorID)
		if err != nil {
			return nil, h.fail(err)
		}
		tasks, err := h.e.DueSoon(ctx, input.Days, visibleTo)
		if err != nil {
			return nil, h.fail(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})
}

func registerEvents(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		// task-scoped history is open to anyone who can see the task
		if input.EntityKind == "task" && input.EntityID != "" {
			if _, _, err := h.taskFor(ctx, input.EntityID, "task.read"); err != nil {
				return nil, h.fail(err)
			}
		} else if err := h.e.Auth.RequireAdmin(ctx, actorID, "events.read"); err != nil {
			return nil, h.fail(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(strings.TrimSpace(input.Cursor), 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.e.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Cursor:     cursorID,
		})
		if err != nil {
			return nil, h.fail(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
