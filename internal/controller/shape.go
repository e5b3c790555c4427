package controller

import (
	"fmt"

	"openlms/internal/domain"
	"openlms/internal/schema"
)

// shape renders a stored record as the field map for the active context:
// fields outside the context are dropped, nested raw/rendered objects are
// filtered by their sub-schema, absent fields fall back to their schema
// default or are omitted, and _links is appended after filtering so it is
// always present.
func (c Controller) shape(rc Request, rec domain.Resource) map[string]any {
	values := c.fieldValues(rec)
	body := map[string]any{}
	for _, f := range c.Schema.Fields {
		if !f.InContext(rc.Context) {
			continue
		}
		value, present := values[f.Name]
		if !present || value == nil {
			if f.Default != nil {
				body[f.Name] = f.Default
			}
			continue
		}
		if f.Nested != nil {
			if nested, ok := value.(map[string]any); ok {
				body[f.Name] = shapeNested(*f.Nested, rc.Context, nested)
				continue
			}
		}
		body[f.Name] = value
	}
	body["_links"] = c.links(rec)
	for _, hook := range c.Hooks.PostShape {
		hook(rc, body)
	}
	return body
}

// fieldValues expands the record into the full field map before context
// filtering. Rendered text is derived from the stored raw form.
func (c Controller) fieldValues(rec domain.Resource) map[string]any {
	values := map[string]any{
		"id":           rec.ID,
		"status":       rec.Status,
		"date_created": rec.CreatedAt,
		"date_updated": rec.UpdatedAt,
	}
	if _, ok := c.Schema.Field("title"); ok {
		values["title"] = renderedPair(rec.Title)
	}
	if _, ok := c.Schema.Field("content"); ok {
		values["content"] = renderedPair(rec.Content)
	}
	if rec.ParentID != nil {
		values["parent_id"] = *rec.ParentID
	}
	if _, ok := c.Schema.Field("order"); ok {
		values["order"] = int64(rec.MenuOrder)
	} else if _, ok := c.Schema.Field("menu_order"); ok {
		values["menu_order"] = int64(rec.MenuOrder)
	}
	for k, v := range rec.Meta {
		values[k] = v
	}
	return values
}

func renderedPair(raw string) map[string]any {
	return map[string]any{"raw": raw, "rendered": raw}
}

func shapeNested(sub schema.Resource, ctx schema.Context, value map[string]any) map[string]any {
	out := map[string]any{}
	for _, f := range sub.Fields {
		if !f.InContext(ctx) {
			continue
		}
		if v, ok := value[f.Name]; ok {
			out[f.Name] = v
		}
	}
	return out
}

// links builds the WP-style _links block. Relation links appear only when the
// related entity exists.
func (c Controller) links(rec domain.Resource) map[string]any {
	collection := c.BasePath + "/" + c.Schema.Route
	links := map[string]any{
		"self":       []map[string]string{{"href": fmt.Sprintf("%s/%d", collection, rec.ID)}},
		"collection": []map[string]string{{"href": collection}},
	}
	if rec.ParentID != nil {
		parentRoute := c.ParentRoute
		if parentRoute == "" {
			parentRoute = c.Schema.Route
		}
		links["parent"] = []map[string]string{{"href": fmt.Sprintf("%s/%s/%d", c.BasePath, parentRoute, *rec.ParentID)}}
	}
	return links
}
