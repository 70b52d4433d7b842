package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType is a canonical entity kind known to the partner registry.
type EntityType string

const (
	EntityTypeProvider EntityType = "provider"
	EntityTypeStation  EntityType = "station"
	EntityTypeCamper   EntityType = "camper"
	EntityTypeAddon    EntityType = "addon"
)

var entityTables = map[EntityType]string{
	EntityTypeProvider: "providers",
	EntityTypeStation:  "stations",
	EntityTypeCamper:   "campers",
	EntityTypeAddon:    "addons",
}

// Table is the canonical table holding rows of this type.
func (t EntityType) Table() (string, error) {
	table, ok := entityTables[t]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", t)
	}
	return table, nil
}

// ParseEntityType accepts the singular or plural form.
func ParseEntityType(s string) (EntityType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for et, table := range entityTables {
		if s == string(et) || s == table {
			return et, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// PartnerMapping ties a partner's external id to the canonical internal id.
type PartnerMapping struct {
	Partner    string     `db:"partner" json:"partner"`
	EntityType EntityType `db:"entity_type" json:"entity_type"`
	ExternalID string     `db:"external_id" json:"external_id"`
	InternalID uuid.UUID  `db:"internal_id" json:"internal_id"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// NamedEntity is a row of a canonical table projected to id and name.
type NamedEntity struct {
	ID   uuid.UUID `db:"id"`
	Name *string   `db:"name"`
}
