package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// GroupOf returns the group filename belongs to, or "" when ungrouped.
func (t *Tx) GroupOf(ctx context.Context, filename string) (string, error) {
	var groupID string
	err := t.q.QueryRowContext(ensureContext(ctx), "SELECT group_id FROM group_members WHERE filename = ?", filename).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("group of %s: %w", filename, err)
	}
	return groupID, nil
}

// GroupMembers returns the sorted members of groupID.
func (t *Tx) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := t.q.QueryContext(ensureContext(ctx),
		"SELECT filename FROM group_members WHERE group_id = ? ORDER BY filename", groupID)
	if err != nil {
		return nil, fmt.Errorf("group members %s: %w", groupID, err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		members = append(members, name)
	}
	return members, rows.Err()
}

// CreateGroup inserts a group and assigns members to it. Members already in
// another group are moved.
func (t *Tx) CreateGroup(ctx context.Context, groupID string, members ...string) error {
	if _, err := t.exec(ctx, "INSERT INTO duplicate_groups (group_id, created_at) VALUES (?, ?)", groupID, t.timestamp()); err != nil {
		return fmt.Errorf("create group %s: %w", groupID, err)
	}
	for _, member := range members {
		if err := t.AddMember(ctx, groupID, member); err != nil {
			return err
		}
	}
	return nil
}

// AddMember places filename in groupID, replacing any previous membership.
func (t *Tx) AddMember(ctx context.Context, groupID, filename string) error {
	if _, err := t.exec(ctx, `INSERT INTO group_members (filename, group_id) VALUES (?, ?)
        ON CONFLICT(filename) DO UPDATE SET group_id = excluded.group_id`, filename, groupID); err != nil {
		return fmt.Errorf("add %s to group %s: %w", filename, groupID, err)
	}
	return nil
}

// MoveMembers reassigns every member of from to into and deletes from.
func (t *Tx) MoveMembers(ctx context.Context, from, into string) error {
	if _, err := t.exec(ctx, "UPDATE group_members SET group_id = ? WHERE group_id = ?", into, from); err != nil {
		return fmt.Errorf("move members %s -> %s: %w", from, into, err)
	}
	if _, err := t.exec(ctx, "DELETE FROM duplicate_groups WHERE group_id = ?", from); err != nil {
		return fmt.Errorf("delete merged group %s: %w", from, err)
	}
	return nil
}

// RemoveMember detaches filename from its group. It returns the group the
// item left, or "" when it was ungrouped.
func (t *Tx) RemoveMember(ctx context.Context, filename string) (string, error) {
	groupID, err := t.GroupOf(ctx, filename)
	if err != nil || groupID == "" {
		return "", err
	}
	if _, err := t.exec(ctx, "DELETE FROM group_members WHERE filename = ?", filename); err != nil {
		return "", fmt.Errorf("remove %s from group %s: %w", filename, groupID, err)
	}
	return groupID, nil
}

// DissolveIfUndersized deletes groupID when fewer than two members remain.
func (t *Tx) DissolveIfUndersized(ctx context.Context, groupID string) (bool, error) {
	if groupID == "" {
		return false, nil
	}
	res, err := t.exec(ctx, `DELETE FROM duplicate_groups WHERE group_id = ?
        AND (SELECT COUNT(1) FROM group_members WHERE group_id = ?) < 2`, groupID, groupID)
	if err != nil {
		return false, fmt.Errorf("dissolve group %s: %w", groupID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DissolveUndersized deletes every group with fewer than two members and
// returns their IDs.
func (t *Tx) DissolveUndersized(ctx context.Context) ([]string, error) {
	rows, err := t.q.QueryContext(ensureContext(ctx), `SELECT g.group_id FROM duplicate_groups g
        LEFT JOIN group_members m ON m.group_id = g.group_id
        GROUP BY g.group_id HAVING COUNT(m.filename) < 2 ORDER BY g.group_id`)
	if err != nil {
		return nil, fmt.Errorf("find undersized groups: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := t.exec(ctx, "DELETE FROM duplicate_groups WHERE group_id IN ("+makePlaceholders(len(ids))+")",
		stringArgs(ids)...); err != nil {
		return nil, fmt.Errorf("dissolve groups: %w", err)
	}
	return ids, nil
}

// ListGroups returns every group ordered by ID with sorted members.
func (t *Tx) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := t.q.QueryContext(ensureContext(ctx), `SELECT g.group_id, g.created_at, m.filename
        FROM duplicate_groups g JOIN group_members m ON m.group_id = g.group_id
        ORDER BY g.group_id, m.filename`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var id, createdRaw, member string
		if err := rows.Scan(&id, &createdRaw, &member); err != nil {
			return nil, err
		}
		if n := len(groups); n == 0 || groups[n-1].GroupID != id {
			group := Group{GroupID: id}
			if created, err := parseTimeString(createdRaw); err == nil {
				group.CreatedAt = created
			}
			groups = append(groups, group)
		}
		last := &groups[len(groups)-1]
		last.Members = append(last.Members, member)
	}
	return groups, rows.Err()
}

// GroupSizes returns member counts for the given groups.
func (t *Tx) GroupSizes(ctx context.Context, groupIDs ...string) (map[string]int, error) {
	sizes := make(map[string]int, len(groupIDs))
	if len(groupIDs) == 0 {
		return sizes, nil
	}
	rows, err := t.q.QueryContext(ensureContext(ctx), "SELECT group_id, COUNT(1) FROM group_members WHERE group_id IN ("+
		makePlaceholders(len(groupIDs))+") GROUP BY group_id", stringArgs(groupIDs)...)
	if err != nil {
		return nil, fmt.Errorf("group sizes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		sizes[id] = count
	}
	return sizes, rows.Err()
}

// ListGroups returns every group ordered by ID.
func (s *Store) ListGroups(ctx context.Context) ([]Group, error) {
	return s.reader().ListGroups(ctx)
}

// GroupMembers returns the sorted members of groupID.
func (s *Store) GroupMembers(ctx context.Context, groupID string) ([]string, error) {
	return s.reader().GroupMembers(ctx, groupID)
}

func sortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
