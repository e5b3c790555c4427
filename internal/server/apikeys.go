package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"openlms/internal/apierr"
	"openlms/internal/domain"
	"openlms/internal/repo"
)

type CreateAPIKeyRequest struct {
	Subject     string   `json:"subject"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// APIKeyResponse never carries the stored hash. Key is present only in the
// creation response; it cannot be recovered later.
type APIKeyResponse struct {
	ID          string   `json:"id"`
	Subject     string   `json:"subject"`
	Name        string   `json:"name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	CreatedAt   string   `json:"created_at"`
	Key         string   `json:"key,omitempty"`
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:          k.ID,
		Subject:     k.Subject,
		Name:        k.Name,
		Permissions: k.Permissions,
		CreatedAt:   k.CreatedAt,
	}
}

// NewRawAPIKey generates a fresh key value. Only its hash is persisted.
func NewRawAPIKey() string {
	return "lms_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func registerAPIKeys(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "apikey.create"); serr != nil {
			return nil, serr
		}
		if input.Body.Subject == "" {
			return nil, handleError(apierr.MissingParameter("subject"))
		}
		raw := NewRawAPIKey()
		key := domain.APIKey{
			ID:          uuid.New().String(),
			Subject:     input.Body.Subject,
			Name:        input.Body.Name,
			KeyHash:     repo.HashAPIKey(raw),
			Permissions: input.Body.Permissions,
		}
		if err := cfg.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(apierr.Server(err))
		}
		resp := apiKeyResponse(key)
		resp.Key = raw
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Subject string `query:"subject"`
	}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "apikey.read"); serr != nil {
			return nil, serr
		}
		keys, err := cfg.Repo.ListAPIKeys(ctx, input.Subject)
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{id}",
		Summary:     "Revoke API key",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if serr := requireCapability(ctx, "apikey.delete"); serr != nil {
			return nil, serr
		}
		err := cfg.Repo.DeleteAPIKey(ctx, input.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(apierr.NotFound("api key not found"))
		}
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct{}{}, nil
	})
}

func registerActivity(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activity",
		Method:      http.MethodGet,
		Path:        "/activity",
		Summary:     "Latest activity log entries",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if serr := requireCapability(ctx, "activity.read"); serr != nil {
			return nil, serr
		}
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		items, err := cfg.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(apierr.Server(err))
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
