package controller

import (
	"context"
	"errors"
	"fmt"

	"openlms/internal/apierr"
	"openlms/internal/domain"
	"openlms/internal/events"
	"openlms/internal/query"
	"openlms/internal/repo"
	"openlms/internal/schema"
)

// Identity is the authenticated caller, threaded through every call rather
// than held in ambient state.
type Identity struct {
	Subject       string
	Permissions   []string
	Authenticated bool
}

// Can reports whether the identity holds the capability. "*" grants all.
func (id Identity) Can(capability string) bool {
	for _, p := range id.Permissions {
		if p == capability || p == "*" {
			return true
		}
	}
	return false
}

// Request is the request-scoped context of one controller call.
type Request struct {
	Identity Identity
	Context  schema.Context
}

// Store is the storage adapter contract the controller is generic over.
// Implementations return repo.ErrNotFound for unresolvable ids.
type Store interface {
	Insert(ctx context.Context, res domain.Resource) (domain.Resource, error)
	Get(ctx context.Context, id int64) (domain.Resource, error)
	Update(ctx context.Context, res domain.Resource) (domain.Resource, error)
	Trash(ctx context.Context, id int64) (domain.Resource, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, d query.Descriptor) ([]domain.Resource, int, error)
	SetMeta(ctx context.Context, id int64, meta map[string]any) error
}

// Hooks are typed extension points evaluated at defined places in the
// lifecycle, in slice order.
type Hooks struct {
	PostValidate []func(ctx context.Context, rc Request, fields map[string]any) error
	PostShape    []func(rc Request, body map[string]any)
}

// Controller is the generic resource controller: one schema, one storage
// adapter, a uniform create/read/update/delete lifecycle. Concrete resources
// supply schema and adapter, nothing else.
type Controller struct {
	Schema   schema.Resource
	Store    Store
	Hooks    Hooks
	Events   *events.Writer
	BasePath string

	// Limits are the configured page-size bounds for collection queries.
	Limits query.Limits

	// ParentRoute names the collection the parent relation link points at,
	// e.g. a section's parent is a course. Empty means the resource's own
	// collection.
	ParentRoute string
}

func (c Controller) capability(action string) string {
	return c.Schema.Type + "." + action
}

func (c Controller) requireCapability(rc Request, action string) *apierr.Error {
	if !rc.Identity.Authenticated {
		return apierr.Unauthorized("")
	}
	capability := c.capability(action)
	if !rc.Identity.Can(capability) {
		return apierr.Forbidden(capability)
	}
	return nil
}

// Create runs the creation lifecycle: permission check, reject an id in the
// input, validate, hooks, primary insert, then secondary meta mutation.
func (c Controller) Create(ctx context.Context, rc Request, rawInput map[string]any) (map[string]any, int64, *apierr.Error) {
	if err := c.requireCapability(rc, "create"); err != nil {
		return nil, 0, err
	}
	if _, hasID := rawInput["id"]; hasID {
		return nil, 0, apierr.BadRequest("cannot_create_existing", fmt.Sprintf("cannot create an existing %s", c.Schema.Type), "id")
	}
	fields, verr := schema.Validate(c.Schema, true, rawInput)
	if verr != nil {
		return nil, 0, verr
	}
	if err := c.runPostValidate(ctx, rc, fields); err != nil {
		return nil, 0, err
	}
	c.applyDefaults(fields)
	rec, meta := c.toRecord(domain.Resource{Type: c.Schema.Type}, fields)
	if rec.Status == "" {
		rec.Status = "publish"
	}
	rec, err := c.Store.Insert(ctx, rec)
	if err != nil {
		return nil, 0, apierr.Server(err)
	}
	// Secondary mutations need the assigned id; a failure here leaves the
	// primary row committed.
	if len(meta) > 0 {
		if err := c.Store.SetMeta(ctx, rec.ID, meta); err != nil {
			return nil, 0, apierr.Server(err)
		}
		rec.Meta = meta
	}
	c.appendEvent(ctx, rc, "created", rec.ID)
	body := c.shape(rc.withContext(schema.ContextEdit), rec)
	return body, rec.ID, nil
}

// Read checks existence before permissions: an unresolvable id is a 404 even
// for anonymous callers.
func (c Controller) Read(ctx context.Context, rc Request, id int64) (map[string]any, *apierr.Error) {
	rec, err := c.Store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apierr.NotFound(fmt.Sprintf("%s %d not found", c.Schema.Type, id))
	}
	if err != nil {
		return nil, apierr.Server(err)
	}
	if rec.Status != "publish" || rc.Context == schema.ContextEdit {
		if err := c.requireCapability(rc, "read"); err != nil {
			return nil, err
		}
	}
	return c.shape(rc, rec), nil
}

// Update mutates the primary fields, then the secondary meta fields. Required
// creation fields are not re-required here.
func (c Controller) Update(ctx context.Context, rc Request, id int64, rawInput map[string]any) (map[string]any, *apierr.Error) {
	rec, err := c.Store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apierr.NotFound(fmt.Sprintf("%s %d not found", c.Schema.Type, id))
	}
	if err != nil {
		return nil, apierr.Server(err)
	}
	if aerr := c.requireCapability(rc, "update"); aerr != nil {
		return nil, aerr
	}
	fields, verr := schema.Validate(c.Schema, false, rawInput)
	if verr != nil {
		return nil, verr
	}
	if aerr := c.runPostValidate(ctx, rc, fields); aerr != nil {
		return nil, aerr
	}
	rec, meta := c.toRecord(rec, fields)
	rec, err = c.Store.Update(ctx, rec)
	if err != nil {
		return nil, apierr.Server(err)
	}
	if len(meta) > 0 {
		if err := c.Store.SetMeta(ctx, rec.ID, meta); err != nil {
			return nil, apierr.Server(err)
		}
		if rec.Meta == nil {
			rec.Meta = map[string]any{}
		}
		for k, v := range meta {
			rec.Meta[k] = v
		}
	}
	c.appendEvent(ctx, rc, "updated", rec.ID)
	return c.shape(rc.withContext(schema.ContextEdit), rec), nil
}

// DeleteResult reports how a delete ended: Removed means the row is gone and
// the response is 204; otherwise Body is the now-trashed representation.
type DeleteResult struct {
	Removed  bool
	Body     map[string]any
	Previous map[string]any
}

// Delete is idempotent: an absent id is a success, not a 404. Trashing is the
// default when the resource type supports it; force skips the trash. A second
// trash request without force is a conflict-class error.
func (c Controller) Delete(ctx context.Context, rc Request, id int64, force bool) (DeleteResult, *apierr.Error) {
	rec, err := c.Store.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return DeleteResult{Removed: true}, nil
	}
	if err != nil {
		return DeleteResult{}, apierr.Server(err)
	}
	if aerr := c.requireCapability(rc, "delete"); aerr != nil {
		return DeleteResult{}, aerr
	}
	if force || !c.Schema.Trashable {
		previous := c.shape(rc.withContext(schema.ContextEdit), rec)
		if err := c.Store.Delete(ctx, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return DeleteResult{}, apierr.Server(err)
		}
		c.appendEvent(ctx, rc, "deleted", id)
		return DeleteResult{Removed: true, Previous: previous}, nil
	}
	if rec.Status == "trashed" {
		return DeleteResult{}, apierr.AlreadyTrashed()
	}
	rec, err = c.Store.Trash(ctx, id)
	if err != nil {
		return DeleteResult{}, apierr.Server(err)
	}
	c.appendEvent(ctx, rc, "trashed", id)
	return DeleteResult{Body: c.shape(rc.withContext(schema.ContextEdit), rec)}, nil
}

// List translates the public query, runs the bounded page query, enforces
// the out-of-bounds policy, and shapes every item. An empty result is a
// legitimate empty page, never an error.
func (c Controller) List(ctx context.Context, rc Request, params query.Params) ([]map[string]any, query.PageMeta, *apierr.Error) {
	if rc.Context == schema.ContextEdit {
		if err := c.requireCapability(rc, "read"); err != nil {
			return nil, query.PageMeta{}, err
		}
	}
	// Collection visibility mirrors Read: without the read capability only
	// published rows are listable, and asking for a non-public status by
	// name is an explicit permission check.
	if !rc.Identity.Authenticated || !rc.Identity.Can(c.capability("read")) {
		if status := params.Filters["status"]; status != "" && status != "publish" {
			if err := c.requireCapability(rc, "read"); err != nil {
				return nil, query.PageMeta{}, err
			}
		}
		filters := map[string]string{"status": "publish"}
		for k, v := range params.Filters {
			if k != "status" {
				filters[k] = v
			}
		}
		params.Filters = filters
	}
	d, verr := query.Translate(c.Schema, params, c.Limits)
	if verr != nil {
		return nil, query.PageMeta{}, verr
	}
	items, total, err := c.Store.List(ctx, d)
	if err != nil {
		return nil, query.PageMeta{}, apierr.Server(err)
	}
	meta, verr := query.Paginate(d, total)
	if verr != nil {
		return nil, query.PageMeta{}, verr
	}
	out := make([]map[string]any, 0, len(items))
	for _, rec := range items {
		out = append(out, c.shape(rc, rec))
	}
	return out, meta, nil
}

func (c Controller) runPostValidate(ctx context.Context, rc Request, fields map[string]any) *apierr.Error {
	for _, hook := range c.Hooks.PostValidate {
		if err := hook(ctx, rc, fields); err != nil {
			var aerr *apierr.Error
			if errors.As(err, &aerr) {
				return aerr
			}
			return apierr.BadRequest("", err.Error())
		}
	}
	return nil
}

// applyDefaults fills schema defaults for editable fields absent from a
// creation payload so the stored instance is complete from the start.
func (c Controller) applyDefaults(fields map[string]any) {
	for _, f := range c.Schema.Fields {
		if f.ReadOnly || f.Default == nil {
			continue
		}
		if _, ok := fields[f.Name]; !ok {
			fields[f.Name] = f.Default
		}
	}
}

// toRecord applies normalized fields onto the primary record and splits off
// the meta fields that live outside the primary columns.
func (c Controller) toRecord(rec domain.Resource, fields map[string]any) (domain.Resource, map[string]any) {
	meta := map[string]any{}
	for name, value := range fields {
		switch name {
		case "title":
			if raw, ok := rawText(value); ok {
				rec.Title = raw
			}
		case "content":
			if raw, ok := rawText(value); ok {
				rec.Content = raw
			}
		case "status":
			if s, ok := value.(string); ok {
				rec.Status = s
			}
		case "parent_id":
			if n, ok := value.(int64); ok {
				parent := n
				rec.ParentID = &parent
			}
		case "menu_order", "order":
			if n, ok := value.(int64); ok {
				rec.MenuOrder = int(n)
			}
		default:
			meta[name] = value
		}
	}
	return rec, meta
}

func rawText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case map[string]any:
		raw, ok := v["raw"].(string)
		return raw, ok
	}
	return "", false
}

func (rc Request) withContext(ctx schema.Context) Request {
	rc.Context = ctx
	return rc
}

func (c Controller) appendEvent(ctx context.Context, rc Request, action string, id int64) {
	if c.Events == nil {
		return
	}
	// Best effort: a failed log append never rolls back the primary write.
	_ = c.Events.Append(ctx, c.Schema.Type+"."+action, c.Schema.Type, fmt.Sprintf("%d", id), rc.Identity.Subject, nil)
}
