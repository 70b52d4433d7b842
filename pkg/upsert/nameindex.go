package upsert

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

type NameSource interface {
	Names(ctx context.Context, entityType models.EntityType) ([]models.NamedEntity, error)
}

// NameIndex maps normalized names to ids. It is built lazily per entity type from a snapshot and
// dropped whenever the run inserts a row of that type. It only serves parent lookups; it never
// decides whether a record is inserted or updated. One index lives for one run.
type NameIndex struct {
	source NameSource
	mu     sync.Mutex
	byType map[models.EntityType]map[string]uuid.UUID
}

func NewNameIndex(source NameSource) *NameIndex {
	return &NameIndex{
		source: source,
		byType: make(map[models.EntityType]map[string]uuid.UUID),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Lookup returns the oldest row with the name.
func (n *NameIndex) Lookup(ctx context.Context, entityType models.EntityType, name string) (uuid.UUID, bool, error) {
	key := normalizeName(name)
	if key == "" {
		return uuid.Nil, false, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	index, ok := n.byType[entityType]
	if !ok {
		rows, err := n.source.Names(ctx, entityType)
		if err != nil {
			return uuid.Nil, false, err
		}
		index = make(map[string]uuid.UUID, len(rows))
		for _, row := range rows {
			if row.Name == nil {
				continue
			}
			k := normalizeName(*row.Name)
			if _, seen := index[k]; !seen && k != "" {
				index[k] = row.ID
			}
		}
		n.byType[entityType] = index
	}

	id, ok := index[key]
	return id, ok, nil
}

func (n *NameIndex) Invalidate(entityType models.EntityType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.byType, entityType)
}
