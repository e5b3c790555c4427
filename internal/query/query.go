package query

import (
	"fmt"
	"strconv"
	"strings"

	"openlms/internal/apierr"
	"openlms/internal/schema"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Limits are the server-configured page-size bounds. The zero value falls
// back to the package defaults.
type Limits struct {
	PerPage    int
	MaxPerPage int
}

func (l Limits) WithDefaults() Limits {
	if l.PerPage < 1 {
		l.PerPage = DefaultPerPage
	}
	if l.MaxPerPage < l.PerPage {
		l.MaxPerPage = MaxPerPage
		if l.MaxPerPage < l.PerPage {
			l.MaxPerPage = l.PerPage
		}
	}
	return l
}

// Params are the raw public collection query parameters, before validation.
type Params struct {
	Page    int
	PerPage int
	Order   string
	OrderBy string
	Include string
	Exclude string
	Filters map[string]string
}

// Descriptor is the validated backend query: sanitized ids, an orderby drawn
// from the resource's allow-list, and a normalized page window.
type Descriptor struct {
	Page    int
	PerPage int
	Order   string
	OrderBy string
	Include []int64
	Exclude []int64
	Filters map[string]string
}

// Offset returns the row offset of the page window.
func (d Descriptor) Offset() int {
	return (d.Page - 1) * d.PerPage
}

// Translate maps public query parameters to a backend query descriptor,
// enforcing the resource's orderby allow-list and sanitizing include/exclude.
func Translate(r schema.Resource, p Params, l Limits) (Descriptor, *apierr.Error) {
	l = l.WithDefaults()
	d := Descriptor{
		Page:    p.Page,
		PerPage: p.PerPage,
		Order:   p.Order,
		OrderBy: p.OrderBy,
		Filters: p.Filters,
	}
	if d.Page == 0 {
		d.Page = 1
	}
	if d.Page < 1 {
		return d, apierr.InvalidParameter("page", "must be a positive integer")
	}
	if d.PerPage == 0 {
		d.PerPage = l.PerPage
	}
	if d.PerPage < 1 || d.PerPage > l.MaxPerPage {
		return d, apierr.InvalidParameter("per_page", fmt.Sprintf("must be between 1 and %d", l.MaxPerPage))
	}
	switch d.Order {
	case "":
		d.Order = "asc"
	case "asc", "desc":
	default:
		return d, apierr.InvalidParameter("order", "must be asc or desc")
	}
	if d.OrderBy == "" {
		d.OrderBy = "id"
	}
	if !r.OrderableBy(d.OrderBy) {
		return d, apierr.InvalidParameter("orderby", fmt.Sprintf("%q is not an orderable field", d.OrderBy))
	}
	var err *apierr.Error
	if d.Include, err = parseIDList("include", p.Include); err != nil {
		return d, err
	}
	if d.Exclude, err = parseIDList("exclude", p.Exclude); err != nil {
		return d, err
	}
	for _, id := range d.Include {
		for _, ex := range d.Exclude {
			if id == ex {
				return d, apierr.BadRequest("invalid_parameter", fmt.Sprintf("id %d present in both include and exclude", id), "include", "exclude")
			}
		}
	}
	return d, nil
}

// parseIDList sanitizes a single id or comma-separated ids into positive
// integers.
func parseIDList(param, raw string) ([]int64, *apierr.Error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 1 {
			return nil, apierr.InvalidParameter(param, "must be a positive integer or a comma-separated list of them")
		}
		out = append(out, n)
	}
	return out, nil
}
