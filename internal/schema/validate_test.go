package schema

import (
	"reflect"
	"testing"
)

func TestValidateMissingRequiredReportedJointly(t *testing.T) {
	_, err := Validate(AccessPlan(), true, map[string]any{
		"frequency": 3,
	})
	if err == nil {
		t.Fatalf("expected missing parameter error")
	}
	if err.Code != "missing_parameter" {
		t.Fatalf("expected missing_parameter, got %s", err.Code)
	}
	want := []string{"post_id", "price", "title"}
	if !reflect.DeepEqual(err.Params, want) {
		t.Fatalf("expected all missing params %v in one error, got %v", want, err.Params)
	}
}

func TestValidateEmptyStringCountsAsMissing(t *testing.T) {
	_, err := Validate(Course(), true, map[string]any{
		"title": "",
	})
	if err == nil || err.Code != "missing_parameter" {
		t.Fatalf("expected missing_parameter for empty title, got %v", err)
	}
	_, err = Validate(Course(), true, map[string]any{
		"title": map[string]any{"raw": ""},
	})
	if err == nil || err.Code != "missing_parameter" {
		t.Fatalf("expected missing_parameter for empty raw title, got %v", err)
	}
}

func TestValidateUpdateDoesNotRequireCreationFields(t *testing.T) {
	fields, err := Validate(Course(), false, map[string]any{
		"menu_order": 5,
	})
	if err != nil {
		t.Fatalf("update without title should pass: %v", err)
	}
	if fields["menu_order"] != int64(5) {
		t.Fatalf("expected normalized int64 menu_order, got %#v", fields["menu_order"])
	}
}

func TestValidateEnumRejected(t *testing.T) {
	_, err := Validate(Course(), true, map[string]any{
		"title":  "Go 101",
		"status": "archived",
	})
	if err == nil || err.Code != "invalid_parameter" {
		t.Fatalf("expected invalid_parameter for bad enum, got %v", err)
	}
	if len(err.Params) != 1 || err.Params[0] != "status" {
		t.Fatalf("expected status named in params, got %v", err.Params)
	}
}

func TestValidateReadOnlyDropped(t *testing.T) {
	fields, err := Validate(Lesson(), true, map[string]any{
		"title":     "Welcome",
		"course_id": 99,
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, present := fields["course_id"]; present {
		t.Fatalf("read-only course_id should be dropped, got %#v", fields)
	}
}

func TestValidateBareStringAcceptedForNested(t *testing.T) {
	fields, err := Validate(Course(), true, map[string]any{
		"title": "Go 101",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	title, ok := fields["title"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %#v", fields["title"])
	}
	if title["raw"] != "Go 101" {
		t.Fatalf("expected raw sub-value, got %#v", title)
	}
}

func TestValidateNestedDropsRenderedInput(t *testing.T) {
	fields, err := Validate(Course(), true, map[string]any{
		"title": map[string]any{"raw": "Go 101", "rendered": "<p>ignored</p>"},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	title := fields["title"].(map[string]any)
	if _, present := title["rendered"]; present {
		t.Fatalf("rendered is read-only and should be dropped, got %#v", title)
	}
}

func TestValidateWholeFloatAcceptedAsInt(t *testing.T) {
	fields, err := Validate(Section(), true, map[string]any{
		"title":     "Intro",
		"parent_id": float64(7),
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if fields["parent_id"] != int64(7) {
		t.Fatalf("expected int64(7), got %#v", fields["parent_id"])
	}
	_, err = Validate(Section(), true, map[string]any{
		"title":     "Intro",
		"parent_id": 7.5,
	})
	if err == nil || err.Code != "invalid_parameter" {
		t.Fatalf("fractional float must be rejected, got %v", err)
	}
}

func TestRegistrySchemasAreConsistent(t *testing.T) {
	if _, err := DefaultRegistry(); err != nil {
		t.Fatalf("default registry: %v", err)
	}
}

func TestCheckRejectsBrokenSchemas(t *testing.T) {
	broken := Resource{
		Type:  "x",
		Route: "xs",
		Fields: []Field{
			{Name: "mode", Kind: KindEnum, Contexts: bothContexts},
		},
	}
	if err := broken.Check(); err == nil {
		t.Fatalf("enum without values must fail Check")
	}
	broken = Resource{
		Type:  "x",
		Route: "xs",
		Fields: []Field{
			{Name: "a", Kind: KindString, Contexts: bothContexts},
		},
		OrderBy: []string{"missing"},
	}
	if err := broken.Check(); err == nil {
		t.Fatalf("orderby naming an unknown field must fail Check")
	}
	broken = Resource{
		Type:  "x",
		Route: "xs",
		Fields: []Field{
			{Name: "a", Kind: KindString},
		},
	}
	if err := broken.Check(); err == nil {
		t.Fatalf("field without contexts must fail Check")
	}
}

func TestOrderableByAlwaysAllowsID(t *testing.T) {
	r := Resource{Type: "x", Route: "xs"}
	if !r.OrderableBy("id") {
		t.Fatalf("id must always be orderable")
	}
	if r.OrderableBy("title") {
		t.Fatalf("title is not in the allow-list")
	}
}
