package controller

import (
	"context"
	"net/http"
	"testing"

	"openlms/internal/db"
	"openlms/internal/migrate"
	"openlms/internal/query"
	"openlms/internal/repo"
	"openlms/internal/schema"
)

func testController(t *testing.T, sch schema.Resource) Controller {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Controller{
		Schema:   sch,
		Store:    repo.ResourceStore{Repo: repo.Repo{DB: conn}, Type: sch.Type},
		BasePath: "/lms/v1",
	}
}

var admin = Request{
	Identity: Identity{Subject: "admin", Permissions: []string{"*"}, Authenticated: true},
	Context:  schema.ContextView,
}

var anonymous = Request{Context: schema.ContextView}

func TestCreateRequiresIdentityThenCapability(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()

	_, _, err := c.Create(ctx, anonymous, map[string]any{"title": "Go 101"})
	if err == nil || err.Status != http.StatusUnauthorized {
		t.Fatalf("anonymous create must be 401, got %v", err)
	}

	reader := Request{Identity: Identity{Subject: "r", Permissions: []string{"course.read"}, Authenticated: true}}
	_, _, err = c.Create(ctx, reader, map[string]any{"title": "Go 101"})
	if err == nil || err.Status != http.StatusForbidden {
		t.Fatalf("create without course.create must be 403, got %v", err)
	}
}

func TestCreateRejectsClientSuppliedID(t *testing.T) {
	c := testController(t, schema.Course())
	_, _, err := c.Create(context.Background(), admin, map[string]any{
		"id":    123,
		"title": "Go 101",
	})
	if err == nil || err.Status != http.StatusBadRequest || err.Code != "cannot_create_existing" {
		t.Fatalf("id on create must be a hard 400, got %v", err)
	}
}

func TestCreateAppliesDefaultsAndMeta(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()

	body, id, err := c.Create(ctx, admin, map[string]any{
		"title": "Go 101",
		"price": 19.99,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected assigned id")
	}
	if body["status"] != "draft" {
		t.Fatalf("status default is draft, got %v", body["status"])
	}
	if body["catalog_visibility"] != "catalog_search" {
		t.Fatalf("catalog_visibility default missing, got %v", body["catalog_visibility"])
	}
	if body["price"] != 19.99 {
		t.Fatalf("meta field lost: %v", body["price"])
	}
	title, ok := body["title"].(map[string]any)
	if !ok || title["raw"] != "Go 101" || title["rendered"] != "Go 101" {
		t.Fatalf("creation response carries the edit shape, got %#v", body["title"])
	}
	links, ok := body["_links"].(map[string]any)
	if !ok {
		t.Fatalf("_links missing: %#v", body)
	}
	if _, ok := links["self"]; !ok {
		t.Fatalf("self link missing: %#v", links)
	}
}

func TestCreateReadRoundtrip(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()

	input := map[string]any{
		"title":   "Go 101",
		"content": map[string]any{"raw": "Learn Go."},
		"status":  "publish",
		"price":   49.0,
	}
	created, id, err := c.Create(ctx, admin, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	edit := admin
	edit.Context = schema.ContextEdit
	got, rerr := c.Read(ctx, edit, id)
	if rerr != nil {
		t.Fatalf("read: %v", rerr)
	}
	for _, key := range []string{"status", "price"} {
		if got[key] != created[key] {
			t.Fatalf("%s changed across write/read: %v vs %v", key, created[key], got[key])
		}
	}
	content := got["content"].(map[string]any)
	if content["raw"] != "Learn Go." {
		t.Fatalf("content lost: %#v", content)
	}
}

func TestReadContextFiltering(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()

	_, id, err := c.Create(ctx, admin, map[string]any{
		"title":          "Go 101",
		"status":         "publish",
		"sales_page_url": "https://example.com/go",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Published resources are publicly readable in view context.
	body, rerr := c.Read(ctx, anonymous, id)
	if rerr != nil {
		t.Fatalf("anonymous read of published: %v", rerr)
	}
	title := body["title"].(map[string]any)
	if _, present := title["raw"]; present {
		t.Fatalf("raw is edit-only, got %#v", title)
	}
	if title["rendered"] != "Go 101" {
		t.Fatalf("rendered missing in view, got %#v", title)
	}
	if _, present := body["sales_page_url"]; present {
		t.Fatalf("edit-only field leaked into view context: %#v", body)
	}

	edit := admin
	edit.Context = schema.ContextEdit
	body, rerr = c.Read(ctx, edit, id)
	if rerr != nil {
		t.Fatalf("edit read: %v", rerr)
	}
	if body["sales_page_url"] != "https://example.com/go" {
		t.Fatalf("edit context must expose the field: %#v", body)
	}
}

func TestReadUnpublishedNeedsPermission(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()
	_, id, err := c.Create(ctx, admin, map[string]any{"title": "Draft"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, rerr := c.Read(ctx, anonymous, id)
	if rerr == nil || rerr.Status != http.StatusUnauthorized {
		t.Fatalf("anonymous read of a draft must be 401, got %v", rerr)
	}
	if _, rerr = c.Read(ctx, admin, id); rerr != nil {
		t.Fatalf("authorized read: %v", rerr)
	}
}

func TestReadMissingIsNotFoundBeforeAuth(t *testing.T) {
	c := testController(t, schema.Course())
	_, err := c.Read(context.Background(), anonymous, 9999)
	if err == nil || err.Status != http.StatusNotFound {
		t.Fatalf("existence is checked before permissions, got %v", err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()
	_, id, err := c.Create(ctx, admin, map[string]any{"title": "Go 101", "price": 10.0})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	body, uerr := c.Update(ctx, admin, id, map[string]any{"status": "publish"})
	if uerr != nil {
		t.Fatalf("update: %v", uerr)
	}
	if body["status"] != "publish" {
		t.Fatalf("status not updated: %v", body["status"])
	}
	if body["price"] != 10.0 {
		t.Fatalf("untouched meta must survive an update: %v", body["price"])
	}
	title := body["title"].(map[string]any)
	if title["raw"] != "Go 101" {
		t.Fatalf("title must survive an update: %#v", title)
	}
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	c := testController(t, schema.Course())
	_, err := c.Update(context.Background(), admin, 9999, map[string]any{"status": "publish"})
	if err == nil || err.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestDeleteAbsentIsIdempotentSuccess(t *testing.T) {
	c := testController(t, schema.Course())
	result, err := c.Delete(context.Background(), anonymous, 9999, false)
	if err != nil {
		t.Fatalf("deleting a missing id is a success: %v", err)
	}
	if !result.Removed {
		t.Fatalf("expected removed result, got %+v", result)
	}
}

func TestDeleteTrashThenGoneThenForce(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()
	_, id, err := c.Create(ctx, admin, map[string]any{"title": "Go 101"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, derr := c.Delete(ctx, admin, id, false)
	if derr != nil {
		t.Fatalf("trash: %v", derr)
	}
	if result.Removed {
		t.Fatalf("first delete of a trashable resource trashes, not removes")
	}
	if result.Body["status"] != "trashed" {
		t.Fatalf("trashed body must report the new status: %#v", result.Body)
	}

	_, derr = c.Delete(ctx, admin, id, false)
	if derr == nil || derr.Status != http.StatusGone {
		t.Fatalf("re-trash must be 410, got %v", derr)
	}

	result, derr = c.Delete(ctx, admin, id, true)
	if derr != nil {
		t.Fatalf("force delete: %v", derr)
	}
	if !result.Removed {
		t.Fatalf("force delete must remove")
	}
	if _, rerr := c.Read(ctx, admin, id); rerr == nil || rerr.Status != http.StatusNotFound {
		t.Fatalf("row must be gone, got %v", rerr)
	}
}

func TestDeleteUntrashableIsAlwaysPermanent(t *testing.T) {
	c := testController(t, schema.AccessPlan())
	ctx := context.Background()
	_, id, err := c.Create(ctx, admin, map[string]any{
		"title":   "Full access",
		"price":   99.0,
		"post_id": 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	result, derr := c.Delete(ctx, admin, id, false)
	if derr != nil {
		t.Fatalf("delete: %v", derr)
	}
	if !result.Removed {
		t.Fatalf("access plans do not trash; delete must remove")
	}
}

func TestListEmptyIsAValidPage(t *testing.T) {
	c := testController(t, schema.Course())
	items, meta, err := c.List(context.Background(), anonymous, query.Params{})
	if err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", items)
	}
	if meta.Total != 0 || meta.TotalPages != 0 {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestListHidesUnpublishedWithoutReadCap(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()
	if _, _, err := c.Create(ctx, admin, map[string]any{"title": "Secret draft"}); err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, _, err := c.Create(ctx, admin, map[string]any{"title": "Public", "status": "publish"}); err != nil {
		t.Fatalf("create published: %v", err)
	}

	items, meta, err := c.List(ctx, anonymous, query.Params{})
	if err != nil {
		t.Fatalf("anonymous list: %v", err)
	}
	if meta.Total != 1 || len(items) != 1 {
		t.Fatalf("anonymous callers see only published rows, got %d items (total %d)", len(items), meta.Total)
	}
	if items[0]["status"] != "publish" {
		t.Fatalf("unexpected row: %#v", items[0])
	}

	// Naming a non-public status is a permission check, not a filter.
	_, _, err = c.List(ctx, anonymous, query.Params{Filters: map[string]string{"status": "draft"}})
	if err == nil || err.Status != http.StatusUnauthorized {
		t.Fatalf("anonymous draft filter must be 401, got %v", err)
	}
	reader := Request{Identity: Identity{Subject: "w", Permissions: []string{"course.create"}, Authenticated: true}}
	_, _, err = c.List(ctx, reader, query.Params{Filters: map[string]string{"status": "draft"}})
	if err == nil || err.Status != http.StatusForbidden {
		t.Fatalf("draft filter without read cap must be 403, got %v", err)
	}

	items, meta, err = c.List(ctx, admin, query.Params{Filters: map[string]string{"status": "draft"}})
	if err != nil {
		t.Fatalf("authorized draft list: %v", err)
	}
	if meta.Total != 1 || items[0]["status"] != "draft" {
		t.Fatalf("readers list drafts by filter, got %#v (total %d)", items, meta.Total)
	}
}

func TestListOutOfRangePage(t *testing.T) {
	c := testController(t, schema.Course())
	ctx := context.Background()
	if _, _, err := c.Create(ctx, admin, map[string]any{"title": "One", "status": "publish"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _, err := c.List(ctx, anonymous, query.Params{Page: 2})
	if err == nil || err.Status != http.StatusBadRequest || err.Code != "out_of_range" {
		t.Fatalf("page past the end of a non-empty collection is a 400, got %v", err)
	}
}

func TestListEditContextNeedsPermission(t *testing.T) {
	c := testController(t, schema.Course())
	edit := anonymous
	edit.Context = schema.ContextEdit
	_, _, err := c.List(context.Background(), edit, query.Params{})
	if err == nil || err.Status != http.StatusUnauthorized {
		t.Fatalf("anonymous edit-context list must be 401, got %v", err)
	}
}

func TestLessonParentLinkPointsAtSections(t *testing.T) {
	c := testController(t, schema.Lesson())
	c.ParentRoute = "sections"
	ctx := context.Background()
	body, _, err := c.Create(ctx, admin, map[string]any{
		"title":     "Welcome",
		"parent_id": 4,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	links := body["_links"].(map[string]any)
	parent, ok := links["parent"].([]map[string]string)
	if !ok || len(parent) != 1 || parent[0]["href"] != "/lms/v1/sections/4" {
		t.Fatalf("unexpected parent link: %#v", links["parent"])
	}
}
