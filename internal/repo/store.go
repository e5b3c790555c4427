package repo

import (
	"context"

	"openlms/internal/domain"
	"openlms/internal/query"
)

// ResourceStore scopes the shared repository to one resource type so a
// controller can hold a single-type storage adapter.
type ResourceStore struct {
	Repo Repo
	Type string
}

func (s ResourceStore) Insert(ctx context.Context, res domain.Resource) (domain.Resource, error) {
	res.Type = s.Type
	return s.Repo.InsertResource(ctx, res)
}

func (s ResourceStore) Get(ctx context.Context, id int64) (domain.Resource, error) {
	return s.Repo.GetResource(ctx, s.Type, id)
}

func (s ResourceStore) Update(ctx context.Context, res domain.Resource) (domain.Resource, error) {
	res.Type = s.Type
	return s.Repo.UpdateResource(ctx, res)
}

func (s ResourceStore) Trash(ctx context.Context, id int64) (domain.Resource, error) {
	return s.Repo.TrashResource(ctx, s.Type, id)
}

func (s ResourceStore) Delete(ctx context.Context, id int64) error {
	return s.Repo.DeleteResource(ctx, s.Type, id)
}

func (s ResourceStore) List(ctx context.Context, d query.Descriptor) ([]domain.Resource, int, error) {
	return s.Repo.ListResources(ctx, s.Type, d)
}

func (s ResourceStore) SetMeta(ctx context.Context, id int64, meta map[string]any) error {
	return s.Repo.ReplaceMeta(ctx, id, meta)
}
