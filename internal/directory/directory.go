// Package directory resolves identities to display names for summaries and
// message lists. Lookups never fail: errors degrade to a placeholder.
package directory

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inbox/internal/models"
)

// IdentityLookup is the subset of the data store the directory reads.
type IdentityLookup interface {
	GetIdentityByID(ctx context.Context, id uuid.UUID) (*models.Identity, error)
}

// NameCache caches display names. RedisStore implements it.
type NameCache interface {
	GetDisplayName(ctx context.Context, id uuid.UUID) (string, bool, error)
	SetDisplayName(ctx context.Context, id uuid.UUID, name string) error
}

// Directory looks up display names.
type Directory struct {
	identities IdentityLookup
	cache      NameCache // optional
	logger     zerolog.Logger
}

// New creates a Directory. cache may be nil.
func New(identities IdentityLookup, cache NameCache, logger zerolog.Logger) *Directory {
	return &Directory{identities: identities, cache: cache, logger: logger}
}

// DisplayName returns the display name for an identity, or
// models.UnknownSender if it cannot be resolved.
func (d *Directory) DisplayName(ctx context.Context, id uuid.UUID) string {
	if d.cache != nil {
		name, ok, err := d.cache.GetDisplayName(ctx, id)
		if err != nil {
			d.logger.Warn().Err(err).Str("identity", id.String()).Msg("display name cache read failed")
		} else if ok {
			return name
		}
	}

	identity, err := d.identities.GetIdentityByID(ctx, id)
	if err != nil {
		d.logger.Warn().Err(err).Str("identity", id.String()).Msg("display name lookup failed")
		return models.UnknownSender
	}
	if identity == nil {
		return models.UnknownSender
	}

	name := identity.Name
	if name == "" {
		name = id.String()[:8]
	}

	if d.cache != nil {
		if err := d.cache.SetDisplayName(ctx, id, name); err != nil {
			d.logger.Warn().Err(err).Str("identity", id.String()).Msg("display name cache write failed")
		}
	}
	return name
}

// DisplayNames resolves a set of identities, looking each up once.
func (d *Directory) DisplayNames(ctx context.Context, ids ...uuid.UUID) map[uuid.UUID]string {
	names := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if _, ok := names[id]; ok {
			continue
		}
		names[id] = d.DisplayName(ctx, id)
	}
	return names
}
