package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrMappingConflict means the triple is already registered to a different internal id. It is
// fatal for the record being processed.
var ErrMappingConflict = errors.New("partner mapping conflict")

// Store is the persistence behind the registry.
type Store interface {
	Get(ctx context.Context, partner string, entityType models.EntityType, externalID string) (*models.PartnerMapping, error)
	Insert(ctx context.Context, partner string, entityType models.EntityType, externalID string, internalID uuid.UUID) (bool, error)
}

// Registry resolves partner identifiers to canonical internal ids. A mapping is created once
// and never changed.
type Registry struct {
	store  Store
	locker Locker
	logger ectologger.Logger
}

func NewRegistry(store Store, locker Locker, logger ectologger.Logger) *Registry {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Registry{
		store:  store,
		locker: locker,
		logger: logger,
	}
}

// Key identifies a registry triple.
func Key(partner string, entityType models.EntityType, externalID string) string {
	return fmt.Sprintf("%s:%s:%s", partner, entityType, externalID)
}

func (r *Registry) Resolve(ctx context.Context, partner string, entityType models.EntityType, externalID string) (uuid.UUID, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Registry.Resolve")
	defer span.End()

	mapping, err := r.store.Get(ctx, partner, entityType, externalID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if mapping == nil {
		return uuid.Nil, false, nil
	}
	return mapping.InternalID, true, nil
}

// Register records the mapping. Registering the same internal id again is a no-op; a different
// internal id returns ErrMappingConflict.
func (r *Registry) Register(ctx context.Context, partner string, entityType models.EntityType, externalID string, internalID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "identity.Registry.Register")
	defer span.End()

	inserted, err := r.store.Insert(ctx, partner, entityType, externalID, internalID)
	if err != nil {
		return err
	}
	if inserted {
		return nil
	}

	existing, err := r.store.Get(ctx, partner, entityType, externalID)
	if err != nil {
		return err
	}
	if existing == nil {
		// the conflicting row vanished between the insert and the read
		return fmt.Errorf("partner mapping %s disappeared during registration", Key(partner, entityType, externalID))
	}
	if existing.InternalID == internalID {
		return nil
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"partner":     partner,
		"entity_type": entityType,
		"external_id": externalID,
		"existing_id": existing.InternalID,
		"proposed_id": internalID,
	}).Warn("Partner mapping conflict")

	return fmt.Errorf("%w: %s is registered to %s, not %s", ErrMappingConflict, Key(partner, entityType, externalID), existing.InternalID, internalID)
}

// Lock serializes resolve-and-insert for one triple. The returned func releases it.
func (r *Registry) Lock(ctx context.Context, partner string, entityType models.EntityType, externalID string) (func(), error) {
	return r.locker.Lock(ctx, Key(partner, entityType, externalID))
}
