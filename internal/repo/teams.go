package repo

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
)

func (r Repo) InsertTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO teams(id,name,manager_id,parent_team_id,active,created_at) VALUES (?,?,?,?,?,?)`,
		t.ID, t.Name, t.ManagerID, nullableStringPtr(t.ParentTeamID), boolInt(t.Active), t.CreatedAt)
	if err != nil {
		return err
	}
	return r.setTeamMembers(ctx, tx, t.ID, t.MemberIDs)
}

func (r Repo) UpdateTeam(ctx context.Context, tx *sql.Tx, t domain.Team) error {
	res, err := tx.ExecContext(ctx, `UPDATE teams SET name=?, manager_id=?, parent_team_id=?, active=? WHERE id=?`,
		t.Name, t.ManagerID, nullableStringPtr(t.ParentTeamID), boolInt(t.Active), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return r.setTeamMembers(ctx, tx, t.ID, t.MemberIDs)
}

func (r Repo) GetTeam(ctx context.Context, tx *sql.Tx, id string) (domain.Team, error) {
	q := r.q(tx)
	var t domain.Team
	var parent sql.NullString
	err := q.QueryRowContext(ctx, `SELECT id,name,manager_id,parent_team_id,active,created_at FROM teams WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.ManagerID, &parent, &t.Active, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.ParentTeamID = stringPtr(parent)
	t.MemberIDs, err = r.listTeamMembers(ctx, q, id)
	return t, err
}

func (r Repo) ListTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,manager_id,parent_team_id,active,created_at FROM teams ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	var res []domain.Team
	for rows.Next() {
		var t domain.Team
		var parent sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &t.ManagerID, &parent, &t.Active, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		t.ParentTeamID = stringPtr(parent)
		res = append(res, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].MemberIDs, err = r.listTeamMembers(ctx, r.DB, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// ChildTeamIDs returns the direct sub-teams of a team.
func (r Repo) ChildTeamIDs(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id FROM teams WHERE parent_team_id=? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// TeamIDsForUser returns teams the user manages or belongs to.
func (r Repo) TeamIDsForUser(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id FROM teams WHERE manager_id=?
UNION SELECT team_id FROM team_members WHERE user_id=?`, userID, userID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r Repo) setTeamMembers(ctx context.Context, tx *sql.Tx, teamID string, users []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM team_members WHERE team_id=?`, teamID); err != nil {
		return err
	}
	for _, u := range users {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO team_members(team_id,user_id) VALUES (?,?)`, teamID, u); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) listTeamMembers(ctx context.Context, q querier, teamID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM team_members WHERE team_id=? ORDER BY user_id`, teamID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

// AllTeamMembers returns members of the team and of every sub-team below it.
func (r Repo) AllTeamMembers(ctx context.Context, tx *sql.Tx, teamID string) ([]string, error) {
	q := r.q(tx)
	seenTeams := map[string]bool{}
	seenUsers := map[string]bool{}
	var res []string
	queue := []string{teamID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seenTeams[id] {
			continue
		}
		seenTeams[id] = true
		members, err := r.listTeamMembers(ctx, q, id)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if !seenUsers[m] {
				seenUsers[m] = true
				res = append(res, m)
			}
		}
		children, err := r.ChildTeamIDs(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, children...)
	}
	return res, nil
}
