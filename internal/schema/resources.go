package schema

var bothContexts = []Context{ContextView, ContextEdit}

func idField() Field {
	return Field{Name: "id", Kind: KindInt, Contexts: bothContexts, ReadOnly: true}
}

func dateFields() []Field {
	return []Field{
		{Name: "date_created", Kind: KindString, Contexts: bothContexts, ReadOnly: true},
		{Name: "date_updated", Kind: KindString, Contexts: bothContexts, ReadOnly: true},
	}
}

// renderedText builds an object field carrying a raw/rendered sub-shape. The
// raw form is writable in edit context only; rendered is derived and
// read-only. A bare string on input is accepted as the raw sub-value.
func renderedText(name string, required bool) Field {
	return Field{
		Name:     name,
		Kind:     KindObject,
		Contexts: bothContexts,
		Required: required,
		Nested: &Resource{
			Type:  name,
			Route: name,
			Fields: []Field{
				{Name: "raw", Kind: KindString, Contexts: []Context{ContextEdit}},
				{Name: "rendered", Kind: KindString, Contexts: bothContexts, ReadOnly: true},
			},
		},
	}
}

func statusField() Field {
	return Field{
		Name:     "status",
		Kind:     KindEnum,
		Contexts: bothContexts,
		Default:  "draft",
		Enum:     []string{"draft", "publish"},
	}
}

func catalogVisibilityField() Field {
	return Field{
		Name:     "catalog_visibility",
		Kind:     KindEnum,
		Contexts: bothContexts,
		Default:  "catalog_search",
		Enum:     []string{"catalog_search", "catalog", "search", "hidden"},
	}
}

// Course is the course resource schema.
func Course() Resource {
	return Resource{
		Type:  "course",
		Route: "courses",
		Fields: append([]Field{
			idField(),
			renderedText("title", true),
			renderedText("content", false),
			statusField(),
			catalogVisibilityField(),
			{Name: "menu_order", Kind: KindInt, Contexts: bothContexts, Default: int64(0)},
			{Name: "price", Kind: KindFloat, Contexts: bothContexts, Default: float64(0)},
			{Name: "sales_page_url", Kind: KindString, Contexts: []Context{ContextEdit}},
		}, dateFields()...),
		OrderBy:   []string{"id", "title", "date_created", "date_updated", "menu_order"},
		Trashable: true,
	}
}

// Section is a course section: an ordered container of lessons.
func Section() Resource {
	return Resource{
		Type:  "section",
		Route: "sections",
		Fields: append([]Field{
			idField(),
			renderedText("title", true),
			{Name: "parent_id", Kind: KindInt, Contexts: bothContexts, Required: true},
			{Name: "order", Kind: KindInt, Contexts: bothContexts, Default: int64(1)},
		}, dateFields()...),
		OrderBy:   []string{"id", "title", "date_created", "date_updated", "order"},
		Trashable: true,
	}
}

// Lesson is a lesson inside a section. course_id is derived from the section
// chain and therefore read-only.
func Lesson() Resource {
	return Resource{
		Type:  "lesson",
		Route: "lessons",
		Fields: append([]Field{
			idField(),
			renderedText("title", true),
			renderedText("content", false),
			statusField(),
			{Name: "parent_id", Kind: KindInt, Contexts: bothContexts},
			{Name: "course_id", Kind: KindInt, Contexts: bothContexts, ReadOnly: true},
			{Name: "order", Kind: KindInt, Contexts: bothContexts, Default: int64(1)},
		}, dateFields()...),
		OrderBy:   []string{"id", "title", "date_created", "date_updated", "order"},
		Trashable: true,
	}
}

// Membership is a site membership product.
func Membership() Resource {
	return Resource{
		Type:  "membership",
		Route: "memberships",
		Fields: append([]Field{
			idField(),
			renderedText("title", true),
			renderedText("content", false),
			statusField(),
			catalogVisibilityField(),
			{Name: "menu_order", Kind: KindInt, Contexts: bothContexts, Default: int64(0)},
			{
				Name:     "restriction_action",
				Kind:     KindEnum,
				Contexts: bothContexts,
				Default:  "none",
				Enum:     []string{"none", "redirect"},
			},
			{Name: "restriction_redirect", Kind: KindString, Contexts: []Context{ContextEdit}},
		}, dateFields()...),
		OrderBy:   []string{"id", "title", "date_created", "date_updated", "menu_order"},
		Trashable: true,
	}
}

// AccessPlan sells access to a course or membership. Plans do not support
// trashing; deletion is always permanent.
func AccessPlan() Resource {
	return Resource{
		Type:  "access-plan",
		Route: "access-plans",
		Fields: append([]Field{
			idField(),
			renderedText("title", true),
			{Name: "price", Kind: KindFloat, Contexts: bothContexts, Required: true},
			{Name: "post_id", Kind: KindInt, Contexts: bothContexts, Required: true},
			{Name: "frequency", Kind: KindInt, Contexts: bothContexts, Default: int64(0)},
			{
				Name:     "access_expiration",
				Kind:     KindEnum,
				Contexts: bothContexts,
				Default:  "lifetime",
				Enum:     []string{"lifetime", "limited-period", "limited-date"},
			},
			{
				Name:     "visibility",
				Kind:     KindEnum,
				Contexts: bothContexts,
				Default:  "visible",
				Enum:     []string{"visible", "hidden", "featured"},
			},
			{Name: "menu_order", Kind: KindInt, Contexts: bothContexts, Default: int64(0)},
		}, dateFields()...),
		OrderBy:   []string{"id", "title", "date_created", "date_updated", "menu_order"},
		Trashable: false,
	}
}

// DefaultRegistry returns the registry of every catalog resource.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(Course(), Section(), Lesson(), Membership(), AccessPlan())
}
