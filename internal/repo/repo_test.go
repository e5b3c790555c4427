package repo

import (
	"context"
	"strconv"
	"testing"
	"time"

	"openlms/internal/db"
	"openlms/internal/domain"
	"openlms/internal/migrate"
	"openlms/internal/query"
)

func testRepo(t *testing.T) Repo {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func insertCourse(t *testing.T, r Repo, title, status string) domain.Resource {
	t.Helper()
	res, err := r.InsertResource(context.Background(), domain.Resource{
		Type:   "course",
		Title:  title,
		Status: status,
	})
	if err != nil {
		t.Fatalf("insert course %s: %v", title, err)
	}
	return res
}

func TestResourceCRUDWithMeta(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	created := insertCourse(t, r, "Go 101", "publish")
	if created.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if err := r.ReplaceMeta(ctx, created.ID, map[string]any{"price": 19.99}); err != nil {
		t.Fatalf("replace meta: %v", err)
	}

	got, err := r.GetResource(ctx, "course", created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Go 101" || got.Meta["price"] != 19.99 {
		t.Fatalf("unexpected resource %+v", got)
	}

	got.Title = "Go 102"
	if _, err := r.UpdateResource(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := r.ReplaceMeta(ctx, created.ID, map[string]any{"price": 29.99}); err != nil {
		t.Fatalf("upsert meta: %v", err)
	}
	got, err = r.GetResource(ctx, "course", created.ID)
	if err != nil {
		t.Fatalf("re-get: %v", err)
	}
	if got.Title != "Go 102" || got.Meta["price"] != 29.99 {
		t.Fatalf("update not persisted: %+v", got)
	}

	if err := r.DeleteResource(ctx, "course", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetResource(ctx, "course", created.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := r.DeleteResource(ctx, "course", created.ID); err != ErrNotFound {
		t.Fatalf("second delete reports ErrNotFound, got %v", err)
	}
}

func TestResourceTypeScoping(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	course := insertCourse(t, r, "Go 101", "publish")
	if _, err := r.GetResource(ctx, "lesson", course.ID); err != ErrNotFound {
		t.Fatalf("a course id is not a lesson id, got %v", err)
	}
}

func TestTrashExcludedFromDefaultListing(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	keep := insertCourse(t, r, "Keep", "publish")
	gone := insertCourse(t, r, "Gone", "publish")
	if _, err := r.TrashResource(ctx, "course", gone.ID); err != nil {
		t.Fatalf("trash: %v", err)
	}

	items, total, err := r.ListResources(ctx, "course", query.Descriptor{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != keep.ID {
		t.Fatalf("trashed row leaked into default listing: total=%d items=%+v", total, items)
	}

	items, total, err = r.ListResources(ctx, "course", query.Descriptor{Page: 1, PerPage: 10, Filters: map[string]string{"status": "trashed"}})
	if err != nil {
		t.Fatalf("list trashed: %v", err)
	}
	if total != 1 || items[0].ID != gone.ID {
		t.Fatalf("explicit trashed filter must surface the row: %+v", items)
	}
}

func TestListResourcesTwoCountRule(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		insertCourse(t, r, title, "publish")
	}

	items, total, err := r.ListResources(ctx, "course", query.Descriptor{Page: 3, PerPage: 2})
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(items) != 1 || total != 5 {
		t.Fatalf("page 3 of 5@2: want 1 row total 5, got %d rows total %d", len(items), total)
	}

	// The window count sees no rows here; the total must come from the
	// unbounded recount rather than collapsing to zero.
	items, total, err = r.ListResources(ctx, "course", query.Descriptor{Page: 4, PerPage: 2})
	if err != nil {
		t.Fatalf("list page 4: %v", err)
	}
	if len(items) != 0 || total != 5 {
		t.Fatalf("empty page past the end must still report total 5, got %d rows total %d", len(items), total)
	}
}

func TestListResourcesIncludeExcludeAndOrder(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	a := insertCourse(t, r, "Alpha", "publish")
	b := insertCourse(t, r, "Beta", "publish")
	c := insertCourse(t, r, "Gamma", "publish")

	items, total, err := r.ListResources(ctx, "course", query.Descriptor{
		Page: 1, PerPage: 10,
		Include: []int64{a.ID, c.ID},
		OrderBy: "title", Order: "desc",
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(items) != 2 || items[0].ID != c.ID || items[1].ID != a.ID {
		t.Fatalf("unexpected include/order result: %+v", items)
	}

	items, total, err = r.ListResources(ctx, "course", query.Descriptor{
		Page: 1, PerPage: 10,
		Exclude: []int64{b.ID},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Fatalf("exclude must drop one row, got total %d", total)
	}
	for _, item := range items {
		if item.ID == b.ID {
			t.Fatalf("excluded id %d present", b.ID)
		}
	}
}

func TestListResourcesParentFilter(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	course := insertCourse(t, r, "Parent", "publish")
	other := insertCourse(t, r, "Other", "publish")
	for _, parent := range []int64{course.ID, course.ID, other.ID} {
		p := parent
		if _, err := r.InsertResource(ctx, domain.Resource{Type: "section", Title: "s", Status: "publish", ParentID: &p}); err != nil {
			t.Fatalf("insert section: %v", err)
		}
	}
	_, total, err := r.ListResources(ctx, "section", query.Descriptor{
		Page: 1, PerPage: 10,
		Filters: map[string]string{"parent": strconv.FormatInt(course.ID, 10)},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 sections under the course, got %d", total)
	}
}

func TestStudentsCRUD(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	s, err := r.InsertStudent(ctx, domain.Student{Email: "a@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetStudent(ctx, s.ID)
	if err != nil || got.Email != "a@example.com" || got.Name != "Ada" {
		t.Fatalf("get student: %+v %v", got, err)
	}
	list, err := r.ListStudents(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list students: %v %v", list, err)
	}
	if err := r.DeleteStudent(ctx, s.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetStudent(ctx, s.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAPIKeysRoundtrip(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	raw := "lms_testkey"
	key := domain.APIKey{
		ID:          "k1",
		Subject:     "svc",
		Name:        "ci",
		KeyHash:     HashAPIKey(raw),
		Permissions: []string{"course.read", "course.create"},
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey(raw))
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got.Subject != "svc" || len(got.Permissions) != 2 {
		t.Fatalf("unexpected key %+v", got)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("wrong")); err != ErrNotFound {
		t.Fatalf("unknown hash must be ErrNotFound, got %v", err)
	}
	keys, err := r.ListAPIKeys(ctx, "svc")
	if err != nil || len(keys) != 1 {
		t.Fatalf("list: %v %v", keys, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != ErrNotFound {
		t.Fatalf("second delete must be ErrNotFound, got %v", err)
	}
}

func TestRepoNowIsUTCSeconds(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := Repo{Now: func() time.Time { return fixed }}
	if got := r.now(); got != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", got)
	}
}
