package query

import (
	"net/url"
	"strings"
	"testing"

	"openlms/internal/schema"
)

func TestTranslateDefaults(t *testing.T) {
	d, err := Translate(schema.Course(), Params{}, Limits{})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if d.Page != 1 || d.PerPage != DefaultPerPage || d.Order != "asc" || d.OrderBy != "id" {
		t.Fatalf("unexpected defaults: %+v", d)
	}
	if d.Offset() != 0 {
		t.Fatalf("page 1 offset must be 0, got %d", d.Offset())
	}
}

func TestTranslateOrderByAllowList(t *testing.T) {
	if _, err := Translate(schema.Course(), Params{OrderBy: "menu_order"}, Limits{}); err != nil {
		t.Fatalf("menu_order is allowed for courses: %v", err)
	}
	_, err := Translate(schema.Course(), Params{OrderBy: "price"}, Limits{})
	if err == nil || err.Code != "invalid_parameter" {
		t.Fatalf("price is not orderable, got %v", err)
	}
	_, err = Translate(schema.Section(), Params{OrderBy: "menu_order"}, Limits{})
	if err == nil {
		t.Fatalf("sections order by 'order', not 'menu_order'")
	}
}

func TestTranslateIncludeExclude(t *testing.T) {
	d, err := Translate(schema.Course(), Params{Include: "3, 1,2", Exclude: "9"}, Limits{})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(d.Include) != 3 || d.Include[0] != 3 || len(d.Exclude) != 1 {
		t.Fatalf("unexpected id lists: %+v", d)
	}
	if _, err := Translate(schema.Course(), Params{Include: "1,x"}, Limits{}); err == nil {
		t.Fatalf("non-numeric include must fail")
	}
	if _, err := Translate(schema.Course(), Params{Include: "0"}, Limits{}); err == nil {
		t.Fatalf("non-positive include must fail")
	}
	_, err = Translate(schema.Course(), Params{Include: "1,2", Exclude: "2,3"}, Limits{})
	if err == nil || err.Status != 400 {
		t.Fatalf("overlapping include/exclude must be a 400, got %v", err)
	}
}

func TestTranslatePerPageBounds(t *testing.T) {
	if _, err := Translate(schema.Course(), Params{PerPage: MaxPerPage}, Limits{}); err != nil {
		t.Fatalf("max per_page is valid: %v", err)
	}
	if _, err := Translate(schema.Course(), Params{PerPage: MaxPerPage + 1}, Limits{}); err == nil {
		t.Fatalf("per_page above the cap must fail")
	}
	if _, err := Translate(schema.Course(), Params{PerPage: -1}, Limits{}); err == nil {
		t.Fatalf("negative per_page must fail")
	}
}

func TestTranslateConfiguredLimits(t *testing.T) {
	limits := Limits{PerPage: 2, MaxPerPage: 3}
	d, err := Translate(schema.Course(), Params{}, limits)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if d.PerPage != 2 {
		t.Fatalf("configured default page size must apply, got %d", d.PerPage)
	}
	if _, err := Translate(schema.Course(), Params{PerPage: 3}, limits); err != nil {
		t.Fatalf("per_page at the configured cap is valid: %v", err)
	}
	_, err = Translate(schema.Course(), Params{PerPage: 4}, limits)
	if err == nil || err.Code != "invalid_parameter" {
		t.Fatalf("per_page above the configured cap must fail, got %v", err)
	}
}

func TestPaginateCeiling(t *testing.T) {
	meta, err := Paginate(Descriptor{Page: 1, PerPage: 10}, 101)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if meta.TotalPages != 11 {
		t.Fatalf("101 items at 10 per page is 11 pages, got %d", meta.TotalPages)
	}
	meta, err = Paginate(Descriptor{Page: 1, PerPage: 10}, 0)
	if err != nil {
		t.Fatalf("empty collection is a valid page: %v", err)
	}
	if meta.TotalPages != 0 {
		t.Fatalf("empty collection has 0 pages, got %d", meta.TotalPages)
	}
}

func TestPaginateOutOfRange(t *testing.T) {
	_, err := Paginate(Descriptor{Page: 3, PerPage: 10}, 15)
	if err == nil || err.Status != 400 {
		t.Fatalf("page past the end must be a 400, got %v", err)
	}
	if _, err := Paginate(Descriptor{Page: 5, PerPage: 10}, 0); err != nil {
		t.Fatalf("any page of an empty collection is valid: %v", err)
	}
}

func TestLinksSinglePageHasNoRelations(t *testing.T) {
	if links := Links("/lms/v1/courses", url.Values{}, 1, 1); links != nil {
		t.Fatalf("single page must emit no links, got %v", links)
	}
	if links := Links("/lms/v1/courses", url.Values{}, 1, 0); links != nil {
		t.Fatalf("empty collection must emit no links, got %v", links)
	}
}

func relSet(links []Link) map[string]string {
	out := map[string]string{}
	for _, l := range links {
		out[l.Rel] = l.URL
	}
	return out
}

func TestLinksFirstPage(t *testing.T) {
	rels := relSet(Links("/lms/v1/courses", url.Values{}, 1, 3))
	if _, ok := rels["first"]; ok {
		t.Fatalf("first must be absent on page 1")
	}
	if _, ok := rels["prev"]; ok {
		t.Fatalf("prev must be absent on page 1")
	}
	if !strings.Contains(rels["next"], "page=2") {
		t.Fatalf("next must point at page 2, got %q", rels["next"])
	}
	if !strings.Contains(rels["last"], "page=3") {
		t.Fatalf("last must point at page 3, got %q", rels["last"])
	}
}

func TestLinksMiddlePage(t *testing.T) {
	rels := relSet(Links("/lms/v1/courses", url.Values{}, 2, 3))
	for _, rel := range []string{"first", "prev", "next", "last"} {
		if _, ok := rels[rel]; !ok {
			t.Fatalf("middle page must carry %s", rel)
		}
	}
	if !strings.Contains(rels["prev"], "page=1") || !strings.Contains(rels["next"], "page=3") {
		t.Fatalf("unexpected prev/next: %v", rels)
	}
}

func TestLinksLastPage(t *testing.T) {
	rels := relSet(Links("/lms/v1/courses", url.Values{}, 3, 3))
	if _, ok := rels["next"]; ok {
		t.Fatalf("next must be absent on the last page")
	}
	if _, ok := rels["last"]; !ok {
		t.Fatalf("last is present whenever prev or next is")
	}
}

func TestLinksPreserveQueryParams(t *testing.T) {
	values := url.Values{"per_page": {"5"}, "status": {"publish"}, "page": {"2"}}
	rels := relSet(Links("/lms/v1/courses", values, 2, 4))
	for rel, u := range rels {
		if !strings.Contains(u, "per_page=5") || !strings.Contains(u, "status=publish") {
			t.Fatalf("%s link dropped query params: %q", rel, u)
		}
	}
	if !strings.Contains(rels["next"], "page=3") {
		t.Fatalf("next must override page, got %q", rels["next"])
	}
}

func TestFormatLinkHeader(t *testing.T) {
	header := FormatLinkHeader([]Link{
		{Rel: "next", URL: "/lms/v1/courses?page=2"},
		{Rel: "last", URL: "/lms/v1/courses?page=3"},
	})
	want := `</lms/v1/courses?page=2>; rel="next", </lms/v1/courses?page=3>; rel="last"`
	if header != want {
		t.Fatalf("unexpected header %q", header)
	}
	if FormatLinkHeader(nil) != "" {
		t.Fatalf("no links means no header value")
	}
}
