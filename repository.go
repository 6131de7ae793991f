package formstage

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidroman0O/formstage/store"
)

// Repository persists the two engine collections. Every load returns the revision it
// observed and every save takes the revision the caller expects to replace, so concurrent
// sessions fail with a Conflict error instead of overwriting each other.
type Repository interface {
	// LoadCategories returns every category with its embedded stages.
	LoadCategories(ctx context.Context) ([]ProjectCategory, store.Revision, error)

	// SaveCategories replaces the category collection.
	SaveCategories(ctx context.Context, categories []ProjectCategory, expected store.Revision) (store.Revision, error)

	// LoadVersions returns the version history of every stage under categoryID.
	LoadVersions(ctx context.Context, categoryID string) ([]FormVersion, store.Revision, error)

	// SaveVersions replaces the version history of categoryID.
	SaveVersions(ctx context.Context, categoryID string, versions []FormVersion, expected store.Revision) (store.Revision, error)
}

// KVRepository implements Repository on a store.Backend using one JSON document per
// collection: KeyProjectTypes and VersionsKey(categoryID).
type KVRepository struct {
	backend store.Backend
	logger  Logger

	// OnCorrupt, when set, is called after a malformed document was replaced by an
	// empty collection.
	OnCorrupt func(key string, err error)
}

var _ Repository = (*KVRepository)(nil)

// NewKVRepository creates a repository over backend. A nil logger discards output.
func NewKVRepository(backend store.Backend, logger Logger) *KVRepository {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	return &KVRepository{backend: backend, logger: logger}
}

// Backend returns the underlying key-value backend.
func (r *KVRepository) Backend() store.Backend {
	return r.backend
}

// LoadCategories implements Repository.
func (r *KVRepository) LoadCategories(ctx context.Context) ([]ProjectCategory, store.Revision, error) {
	return loadCollection[ProjectCategory](ctx, r, KeyProjectTypes)
}

// SaveCategories implements Repository.
func (r *KVRepository) SaveCategories(ctx context.Context, categories []ProjectCategory, expected store.Revision) (store.Revision, error) {
	return saveCollection(ctx, r, KeyProjectTypes, categories, expected)
}

// LoadVersions implements Repository.
func (r *KVRepository) LoadVersions(ctx context.Context, categoryID string) ([]FormVersion, store.Revision, error) {
	return loadCollection[FormVersion](ctx, r, VersionsKey(categoryID))
}

// SaveVersions implements Repository.
func (r *KVRepository) SaveVersions(ctx context.Context, categoryID string, versions []FormVersion, expected store.Revision) (store.Revision, error) {
	return saveCollection(ctx, r, VersionsKey(categoryID), versions, expected)
}

// CorruptKeys lists the engine documents that currently fail to decode.
func (r *KVRepository) CorruptKeys(ctx context.Context) ([]string, error) {
	keys, err := r.backend.Keys(ctx, PrefixFormVersions)
	if err != nil {
		return nil, fmt.Errorf("failed to list version keys: %w", err)
	}
	keys = append([]string{KeyProjectTypes}, keys...)

	var corrupt []string
	for _, key := range keys {
		var err error
		if key == KeyProjectTypes {
			_, _, err = store.GetJSON[[]ProjectCategory](ctx, r.backend, key)
		} else {
			_, _, err = store.GetJSON[[]FormVersion](ctx, r.backend, key)
		}
		switch {
		case err == nil, errors.Is(err, store.ErrNotFound):
		case errors.Is(err, store.ErrCorrupt):
			corrupt = append(corrupt, key)
		default:
			return corrupt, fmt.Errorf("failed to read %s: %w", key, err)
		}
	}
	return corrupt, nil
}

// VersionCategoryIDs lists the category ids that have a stored version history.
func (r *KVRepository) VersionCategoryIDs(ctx context.Context) ([]string, error) {
	keys, err := r.backend.Keys(ctx, PrefixFormVersions)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key[len(PrefixFormVersions):])
	}
	return ids, nil
}

func loadCollection[T any](ctx context.Context, r *KVRepository, key string) ([]T, store.Revision, error) {
	items, rev, err := store.GetJSONOrDefault[[]T](ctx, r.backend, key, nil)
	switch {
	case err == nil:
		return items, rev, nil
	case errors.Is(err, store.ErrCorrupt):
		r.logger.Warn("Recovered corrupt document %s (revision %d), starting from an empty collection: %v", key, rev, err)
		if r.OnCorrupt != nil {
			r.OnCorrupt(key, err)
		}
		return nil, rev, nil
	default:
		return nil, store.NoRevision, fmt.Errorf("failed to load %s: %w", key, err)
	}
}

func saveCollection[T any](ctx context.Context, r *KVRepository, key string, items []T, expected store.Revision) (store.Revision, error) {
	if items == nil {
		items = []T{}
	}
	rev, err := store.PutJSON(ctx, r.backend, key, items, expected)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.NoRevision, &Error{Kind: KindConflict, Op: "save", Resource: key, Err: err}
		}
		return store.NoRevision, fmt.Errorf("failed to save %s: %w", key, err)
	}
	return rev, nil
}
