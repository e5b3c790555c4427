package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"openlms/internal/apierr"
	"openlms/internal/controller"
	"openlms/internal/query"
	"openlms/internal/repo"
	"openlms/internal/schema"
)

// registerResources wires one CRUD route set per registered schema. Every
// resource goes through the same generic controller; only schema, storage
// scope and hooks differ.
func registerResources(api huma.API, cfg Config, basePath string) {
	for _, sch := range cfg.Registry.All() {
		ctrl := controller.Controller{
			Schema:      sch,
			Store:       repo.ResourceStore{Repo: cfg.Repo, Type: sch.Type},
			Events:      cfg.Events,
			BasePath:    basePath,
			ParentRoute: parentRouteFor(sch.Type),
			Hooks:       hooksFor(sch.Type, cfg.Repo),
			Limits:      cfg.Limits,
		}
		registerResource(api, ctrl)
	}
}

func parentRouteFor(resourceType string) string {
	switch resourceType {
	case "section":
		return "courses"
	case "lesson":
		return "sections"
	}
	return ""
}

// hooksFor returns the per-type lifecycle hooks. Lessons derive course_id
// from their section's parent chain after validation.
func hooksFor(resourceType string, r repo.Repo) controller.Hooks {
	if resourceType != "lesson" {
		return controller.Hooks{}
	}
	return controller.Hooks{
		PostValidate: []func(context.Context, controller.Request, map[string]any) error{
			func(ctx context.Context, _ controller.Request, fields map[string]any) error {
				parentID, ok := fields["parent_id"].(int64)
				if !ok {
					return nil
				}
				section, err := r.GetResource(ctx, "section", parentID)
				if err == repo.ErrNotFound {
					return apierr.InvalidParameter("parent_id", fmt.Sprintf("section %d not found", parentID))
				}
				if err != nil {
					return err
				}
				if section.ParentID != nil {
					fields["course_id"] = *section.ParentID
				}
				return nil
			},
		},
	}
}

type resourceIDPath struct {
	ID      int64  `path:"id"`
	Context string `query:"context"`
}

type listResourcesInput struct {
	Context string `query:"context"`
	Page    int    `query:"page"`
	PerPage int    `query:"per_page"`
	Order   string `query:"order"`
	OrderBy string `query:"orderby"`
	Include string `query:"include"`
	Exclude string `query:"exclude"`
	Status  string `query:"status"`
	Parent  string `query:"parent"`
	PostID  string `query:"post_id"`
}

type listResourcesOutput struct {
	Total      string `header:"X-WP-Total"`
	TotalPages string `header:"X-WP-TotalPages"`
	Link       string `header:"Link"`
	Body       []map[string]any
}

type resourceOutput struct {
	Body map[string]any
}

type createResourceOutput struct {
	Location string `header:"Location"`
	Body     map[string]any
}

type deleteResourceOutput struct {
	Status int
	Body   map[string]any
}

func requestContext(ctx context.Context, raw string) (controller.Request, huma.StatusError) {
	viewCtx, err := schema.ParseContext(raw)
	if err != nil {
		return controller.Request{}, handleError(apierr.InvalidParameter("context", err.Error()))
	}
	return controller.Request{
		Identity: identityFromContext(ctx),
		Context:  viewCtx,
	}, nil
}

func registerResource(api huma.API, ctrl controller.Controller) {
	sch := ctrl.Schema
	route := "/" + sch.Route

	huma.Register(api, huma.Operation{
		OperationID: "list-" + sch.Route,
		Method:      http.MethodGet,
		Path:        route,
		Summary:     "List " + sch.Route,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *listResourcesInput) (*listResourcesOutput, error) {
		rc, serr := requestContext(ctx, input.Context)
		if serr != nil {
			return nil, serr
		}
		filters := map[string]string{}
		if input.Status != "" {
			filters["status"] = input.Status
		}
		if input.Parent != "" {
			filters["parent"] = input.Parent
		}
		if input.PostID != "" {
			filters["post_id"] = input.PostID
		}
		items, meta, aerr := ctrl.List(ctx, rc, query.Params{
			Page:    input.Page,
			PerPage: input.PerPage,
			Order:   input.Order,
			OrderBy: input.OrderBy,
			Include: input.Include,
			Exclude: input.Exclude,
			Filters: filters,
		})
		if aerr != nil {
			return nil, handleError(aerr)
		}
		out := &listResourcesOutput{
			Total:      strconv.Itoa(meta.Total),
			TotalPages: strconv.Itoa(meta.TotalPages),
			Body:       items,
		}
		if req := requestFromContext(ctx); req != nil {
			page := input.Page
			if page < 1 {
				page = 1
			}
			out.Link = query.FormatLinkHeader(query.Links(req.URL.Path, req.URL.Query(), page, meta.TotalPages))
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-" + sch.Type,
		Method:        http.MethodPost,
		Path:          route,
		Summary:       "Create " + sch.Type,
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*createResourceOutput, error) {
		rc, serr := requestContext(ctx, "")
		if serr != nil {
			return nil, serr
		}
		raw, serr := rawBodyMap(ctx)
		if serr != nil {
			return nil, serr
		}
		body, id, aerr := ctrl.Create(ctx, rc, raw)
		if aerr != nil {
			return nil, handleError(aerr)
		}
		return &createResourceOutput{
			Location: fmt.Sprintf("%s%s/%d", ctrl.BasePath, route, id),
			Body:     body,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-" + sch.Type,
		Method:      http.MethodGet,
		Path:        route + "/{id}",
		Summary:     "Get " + sch.Type,
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *resourceIDPath) (*resourceOutput, error) {
		rc, serr := requestContext(ctx, input.Context)
		if serr != nil {
			return nil, serr
		}
		body, aerr := ctrl.Read(ctx, rc, input.ID)
		if aerr != nil {
			return nil, handleError(aerr)
		}
		return &resourceOutput{Body: body}, nil
	})

	update := func(ctx context.Context, input *resourceIDPath) (*resourceOutput, error) {
		rc, serr := requestContext(ctx, "")
		if serr != nil {
			return nil, serr
		}
		raw, serr := rawBodyMap(ctx)
		if serr != nil {
			return nil, serr
		}
		body, aerr := ctrl.Update(ctx, rc, input.ID, raw)
		if aerr != nil {
			return nil, handleError(aerr)
		}
		return &resourceOutput{Body: body}, nil
	}

	// POST on the item route is the contractual update method; PATCH is
	// accepted as an alias.
	huma.Register(api, huma.Operation{
		OperationID: "update-" + sch.Type,
		Method:      http.MethodPost,
		Path:        route + "/{id}",
		Summary:     "Update " + sch.Type,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, update)

	huma.Register(api, huma.Operation{
		OperationID: "patch-" + sch.Type,
		Method:      http.MethodPatch,
		Path:        route + "/{id}",
		Summary:     "Update " + sch.Type,
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, update)

	huma.Register(api, huma.Operation{
		OperationID: "delete-" + sch.Type,
		Method:      http.MethodDelete,
		Path:        route + "/{id}",
		Summary:     "Delete " + sch.Type,
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusGone},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id"`
		Force bool  `query:"force"`
	}) (*deleteResourceOutput, error) {
		rc, serr := requestContext(ctx, "")
		if serr != nil {
			return nil, serr
		}
		result, aerr := ctrl.Delete(ctx, rc, input.ID, input.Force)
		if aerr != nil {
			return nil, handleError(aerr)
		}
		if result.Removed {
			return &deleteResourceOutput{Status: http.StatusNoContent}, nil
		}
		return &deleteResourceOutput{Status: http.StatusOK, Body: result.Body}, nil
	})
}
