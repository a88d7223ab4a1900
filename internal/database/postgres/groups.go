package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/omri0111-web/facepace-public/internal/database"
)

// GroupRepository provides PostgreSQL-backed group and membership storage
type GroupRepository struct {
	pool *Pool
}

// NewGroupRepository creates a new PostgreSQL group repository
func NewGroupRepository(pool *Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// GetGroup returns the group with its members, nil if not found
func (r *GroupRepository) GetGroup(ctx context.Context, id string) (*database.Group, error) {
	var g database.Group
	err := r.pool.QueryRow(ctx,
		"SELECT group_id, group_name, guide_id, created_at FROM groups WHERE group_id = $1", id,
	).Scan(&g.ID, &g.Name, &g.GuideID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}

	members, err := r.membersByGroup(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	g.Members = members[id]
	return &g, nil
}

// ListGroups returns all groups ordered by name
func (r *GroupRepository) ListGroups(ctx context.Context) ([]database.Group, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT group_id, group_name, guide_id, created_at FROM groups ORDER BY group_name, group_id")
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []database.Group
	for rows.Next() {
		var g database.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.GuideID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	members, err := r.membersByGroup(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].Members = members[groups[i].ID]
	}
	return groups, nil
}

// MembersOf returns the person ids in a group, ErrNotFound for an unknown group
func (r *GroupRepository) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM groups WHERE group_id = $1)", groupID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check group exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("group %s: %w", groupID, database.ErrNotFound)
	}

	members, err := r.membersByGroup(ctx, []string{groupID})
	if err != nil {
		return nil, err
	}
	if members[groupID] == nil {
		return []string{}, nil
	}
	return members[groupID], nil
}

func (r *GroupRepository) membersByGroup(ctx context.Context, ids []string) (map[string][]string, error) {
	query := "SELECT group_id, person_id FROM group_members ORDER BY group_id, person_id"
	var args []any
	if ids != nil {
		query = `SELECT group_id, person_id FROM group_members
			WHERE group_id = ANY($1) ORDER BY group_id, person_id`
		args = append(args, pq.Array(ids))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	members := make(map[string][]string)
	for rows.Next() {
		var groupID, personID string
		if err := rows.Scan(&groupID, &personID); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		members[groupID] = append(members[groupID], personID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group members: %w", err)
	}
	return members, nil
}

// SaveGroup creates a group or replaces its name and guide
func (r *GroupRepository) SaveGroup(ctx context.Context, g database.Group) error {
	query := `
		INSERT INTO groups (group_id, group_name, guide_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id) DO UPDATE SET
			group_name = EXCLUDED.group_name,
			guide_id = EXCLUDED.guide_id
	`
	if _, err := r.pool.Exec(ctx, query, g.ID, g.Name, g.GuideID); err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	return nil
}

// UpdateGroup changes the non-nil fields of upd
func (r *GroupRepository) UpdateGroup(ctx context.Context, id string, upd database.GroupUpdate) error {
	query := `
		UPDATE groups SET
			group_name = COALESCE($2, group_name),
			guide_id = COALESCE($3, guide_id)
		WHERE group_id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, upd.Name, upd.GuideID)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("group %s: %w", id, database.ErrNotFound)
	}
	return nil
}

// DeleteGroup removes a group and its memberships
func (r *GroupRepository) DeleteGroup(ctx context.Context, id string) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM groups WHERE group_id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete group: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// AddMember adds a person to a group; adding an existing member is a no-op
func (r *GroupRepository) AddMember(ctx context.Context, groupID, personID string) error {
	query := `
		INSERT INTO group_members (group_id, person_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, person_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, groupID, personID); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("group %s or person %s: %w", groupID, personID, database.ErrNotFound)
		}
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// RemoveMember removes a person from a group, reporting whether they were a member
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, personID string) (bool, error) {
	result, err := r.pool.Exec(ctx,
		"DELETE FROM group_members WHERE group_id = $1 AND person_id = $2", groupID, personID)
	if err != nil {
		return false, fmt.Errorf("remove group member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
