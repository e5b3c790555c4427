package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"openlms/internal/domain"
	"openlms/internal/query"
)

const resourceColumns = `id,type,title,content,status,parent_id,menu_order,created_at,updated_at`

func scanResource(scan func(dest ...any) error) (domain.Resource, error) {
	var res domain.Resource
	var parent sql.NullInt64
	err := scan(&res.ID, &res.Type, &res.Title, &res.Content, &res.Status, &parent, &res.MenuOrder, &res.CreatedAt, &res.UpdatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	if err != nil {
		return res, err
	}
	if parent.Valid {
		res.ParentID = &parent.Int64
	}
	return res, nil
}

// InsertResource commits the primary row and returns it with the assigned id.
// Meta fields are a secondary mutation written through ReplaceMeta afterwards,
// since some of them need the new id.
func (r Repo) InsertResource(ctx context.Context, res domain.Resource) (domain.Resource, error) {
	now := r.now()
	res.CreatedAt = now
	res.UpdatedAt = now
	out, err := r.DB.ExecContext(ctx, `INSERT INTO resources(type,title,content,status,parent_id,menu_order,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		res.Type, res.Title, res.Content, res.Status, nullableInt64Ptr(res.ParentID), res.MenuOrder, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		return domain.Resource{}, err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return domain.Resource{}, err
	}
	res.ID = id
	return res, nil
}

// UpdateResource rewrites the primary columns of an existing row.
func (r Repo) UpdateResource(ctx context.Context, res domain.Resource) (domain.Resource, error) {
	res.UpdatedAt = r.now()
	out, err := r.DB.ExecContext(ctx, `UPDATE resources SET title=?, content=?, status=?, parent_id=?, menu_order=?, updated_at=? WHERE id=? AND type=?`,
		res.Title, res.Content, res.Status, nullableInt64Ptr(res.ParentID), res.MenuOrder, res.UpdatedAt, res.ID, res.Type)
	if err != nil {
		return domain.Resource{}, err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return domain.Resource{}, ErrNotFound
	}
	return res, nil
}

// ReplaceMeta upserts the given meta fields for a resource. Values are stored
// JSON-encoded.
func (r Repo) ReplaceMeta(ctx context.Context, resourceID int64, meta map[string]any) error {
	for key, value := range meta {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal meta %s: %w", key, err)
		}
		if _, err := r.DB.ExecContext(ctx, `INSERT INTO resource_meta(resource_id,key,value) VALUES (?,?,?)
ON CONFLICT(resource_id,key) DO UPDATE SET value=excluded.value`, resourceID, key, string(data)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) loadMeta(ctx context.Context, resourceID int64) (map[string]any, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,value FROM resource_meta WHERE resource_id=?`, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	meta := map[string]any{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("decode meta %s: %w", key, err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

// GetResource returns one resource of the given type with its meta loaded.
func (r Repo) GetResource(ctx context.Context, resourceType string, id int64) (domain.Resource, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=? AND type=?`, id, resourceType)
	res, err := scanResource(row.Scan)
	if err != nil {
		return res, err
	}
	res.Meta, err = r.loadMeta(ctx, res.ID)
	return res, err
}

// TrashResource soft-deletes: the row stays, status becomes trashed.
func (r Repo) TrashResource(ctx context.Context, resourceType string, id int64) (domain.Resource, error) {
	out, err := r.DB.ExecContext(ctx, `UPDATE resources SET status='trashed', updated_at=? WHERE id=? AND type=?`, r.now(), id, resourceType)
	if err != nil {
		return domain.Resource{}, err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return domain.Resource{}, ErrNotFound
	}
	return r.GetResource(ctx, resourceType, id)
}

// DeleteResource permanently removes the row; meta rows cascade.
func (r Repo) DeleteResource(ctx context.Context, resourceType string, id int64) error {
	out, err := r.DB.ExecContext(ctx, `DELETE FROM resources WHERE id=? AND type=?`, id, resourceType)
	if err != nil {
		return err
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func orderColumn(orderBy string) string {
	switch orderBy {
	case "title":
		return "title"
	case "date_created":
		return "created_at"
	case "date_updated":
		return "updated_at"
	case "menu_order", "order":
		return "menu_order"
	default:
		return "id"
	}
}

func resourceWhere(resourceType string, d query.Descriptor) (string, []any) {
	clauses := []string{"type=?"}
	args := []any{resourceType}
	if status, ok := d.Filters["status"]; ok && status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	} else {
		clauses = append(clauses, "status != 'trashed'")
	}
	if parent, ok := d.Filters["parent"]; ok && parent != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, parent)
	}
	if postID, ok := d.Filters["post_id"]; ok && postID != "" {
		clauses = append(clauses, `id IN (SELECT resource_id FROM resource_meta WHERE key='post_id' AND value=?)`)
		args = append(args, postID)
	}
	if len(d.Include) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(d.Include))+")")
		for _, id := range d.Include {
			args = append(args, id)
		}
	}
	if len(d.Exclude) > 0 {
		clauses = append(clauses, "id NOT IN ("+placeholders(len(d.Exclude))+")")
		for _, id := range d.Exclude {
			args = append(args, id)
		}
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ListResources runs the bounded page query. The returned total comes from a
// window count over the unbounded result; when the offset lands past the end
// the window reports nothing, so the caller-facing contract re-runs the count
// without the limit (the two-count rule) before deciding the page is out of
// range.
func (r Repo) ListResources(ctx context.Context, resourceType string, d query.Descriptor) ([]domain.Resource, int, error) {
	where, args := resourceWhere(resourceType, d)
	dir := "ASC"
	if d.Order == "desc" {
		dir = "DESC"
	}
	q := fmt.Sprintf(`SELECT %s, COUNT(*) OVER() AS total FROM resources %s ORDER BY %s %s, id %s LIMIT ? OFFSET ?`,
		resourceColumns, where, orderColumn(d.OrderBy), dir, dir)
	args = append(args, d.PerPage, d.Offset())
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []domain.Resource
	total := 0
	for rows.Next() {
		var res domain.Resource
		var parent sql.NullInt64
		if err := rows.Scan(&res.ID, &res.Type, &res.Title, &res.Content, &res.Status, &parent, &res.MenuOrder, &res.CreatedAt, &res.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		if parent.Valid {
			res.ParentID = &parent.Int64
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if total == 0 && d.Page > 1 {
		total, err = r.CountResources(ctx, resourceType, d)
		if err != nil {
			return nil, 0, err
		}
	}
	for i := range out {
		meta, err := r.loadMeta(ctx, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Meta = meta
	}
	return out, total, nil
}

// CountResources is the unbounded recount of the same query.
func (r Repo) CountResources(ctx context.Context, resourceType string, d query.Descriptor) (int, error) {
	where, args := resourceWhere(resourceType, d)
	var total int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources `+where, args...).Scan(&total)
	return total, err
}
