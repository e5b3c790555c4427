package schema

import (
	"fmt"
)

// Context is the visibility mode of a request or response: view exposes the
// public-safe field set, edit the full set for authorized editors.
type Context string

const (
	ContextView Context = "view"
	ContextEdit Context = "edit"
)

// ParseContext maps a raw context query value to a Context, defaulting to view.
func ParseContext(raw string) (Context, error) {
	switch raw {
	case "", string(ContextView):
		return ContextView, nil
	case string(ContextEdit):
		return ContextEdit, nil
	}
	return "", fmt.Errorf("context must be view or edit")
}

// Kind is the value kind of a schema field.
type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "integer"
	KindFloat   Kind = "number"
	KindBool    Kind = "boolean"
	KindEnum    Kind = "enum"
	KindObject  Kind = "object"
	KindIntList Kind = "integer-list"
)

// Field is one declarative field definition. Nested is set only for object
// kinds carrying a raw/rendered sub-shape.
type Field struct {
	Name     string
	Kind     Kind
	Contexts []Context
	ReadOnly bool
	Required bool
	Default  any
	Enum     []string
	Nested   *Resource
}

// InContext reports whether the field is visible in ctx. A field absent from
// Contexts for the active context is never emitted or accepted.
func (f Field) InContext(ctx Context) bool {
	for _, c := range f.Contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// Resource is the declarative schema of one resource type: an ordered field
// list plus the collection-level knobs the generic controller needs.
type Resource struct {
	Type      string
	Route     string
	Fields    []Field
	OrderBy   []string
	Trashable bool
}

// Field looks up a field definition by name.
func (r Resource) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// OrderableBy reports whether name is in the orderby allow-list. Every
// resource is orderable by id.
func (r Resource) OrderableBy(name string) bool {
	if name == "id" {
		return true
	}
	for _, f := range r.OrderBy {
		if f == name {
			return true
		}
	}
	return false
}

// Check validates the schema's internal consistency. It is run once at
// startup for every registered resource; a failure is a programming error.
func (r Resource) Check() error {
	if r.Type == "" || r.Route == "" {
		return fmt.Errorf("schema: type and route are required")
	}
	seen := map[string]bool{}
	for _, f := range r.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %s: field with empty name", r.Type)
		}
		if seen[f.Name] {
			return fmt.Errorf("schema %s: duplicate field %s", r.Type, f.Name)
		}
		seen[f.Name] = true
		if len(f.Contexts) == 0 {
			return fmt.Errorf("schema %s: field %s has no contexts", r.Type, f.Name)
		}
		for _, c := range f.Contexts {
			if c != ContextView && c != ContextEdit {
				return fmt.Errorf("schema %s: field %s has invalid context %q", r.Type, f.Name, c)
			}
		}
		if f.Kind == KindEnum && len(f.Enum) == 0 {
			return fmt.Errorf("schema %s: enum field %s has no values", r.Type, f.Name)
		}
		if f.Nested != nil && f.Kind != KindObject {
			return fmt.Errorf("schema %s: field %s has a nested schema but kind %s", r.Type, f.Name, f.Kind)
		}
		if f.Nested != nil {
			if err := f.Nested.Check(); err != nil {
				return fmt.Errorf("schema %s: field %s: %w", r.Type, f.Name, err)
			}
		}
	}
	for _, o := range r.OrderBy {
		if o == "id" || o == "date_created" || o == "date_updated" {
			continue
		}
		if _, ok := r.Field(o); !ok {
			return fmt.Errorf("schema %s: orderby %s is not a field", r.Type, o)
		}
	}
	return nil
}

// Registry holds every resource schema known at startup.
type Registry struct {
	resources map[string]Resource
	order     []string
}

func NewRegistry(resources ...Resource) (*Registry, error) {
	reg := &Registry{resources: map[string]Resource{}}
	for _, r := range resources {
		if err := r.Check(); err != nil {
			return nil, err
		}
		if _, dup := reg.resources[r.Type]; dup {
			return nil, fmt.Errorf("schema: duplicate resource type %s", r.Type)
		}
		reg.resources[r.Type] = r
		reg.order = append(reg.order, r.Type)
	}
	return reg, nil
}

func (reg *Registry) Get(resourceType string) (Resource, bool) {
	r, ok := reg.resources[resourceType]
	return r, ok
}

// All returns schemas in registration order.
func (reg *Registry) All() []Resource {
	out := make([]Resource, 0, len(reg.order))
	for _, t := range reg.order {
		out = append(out, reg.resources[t])
	}
	return out
}
