package upsert

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ParentRef declares a foreign key resolved through the registry before the record is written.
type ParentRef struct {
	Column     string
	EntityType models.EntityType
	// ExternalIDExpr selects the parent's external id in the same partner's id space.
	ExternalIDExpr string
	// NameExpr, when set, selects a name looked up in the run's name index if the registry
	// has no mapping (provider by brand).
	NameExpr string
	Required bool
}

// Association declares many-to-many links written after the record itself, e.g. the campers an
// addon applies to.
type Association struct {
	TargetType      models.EntityType
	ExternalIDsExpr string
}

// Definition is how one partner record becomes one canonical row.
type Definition struct {
	EntityType   models.EntityType
	ExternalID   string
	Fields       []mapping.Field
	Parents      []ParentRef
	Associations []Association
}

func (d Definition) Validate(m *mapping.Mapper) error {
	if _, err := d.EntityType.Table(); err != nil {
		return err
	}
	if d.ExternalID == "" {
		return fmt.Errorf("%s definition has no external id expression", d.EntityType)
	}
	if err := m.Evaluator().Validate(d.ExternalID); err != nil {
		return fmt.Errorf("%s external id: %w", d.EntityType, err)
	}
	if err := m.Validate(d.Fields); err != nil {
		return fmt.Errorf("%s %w", d.EntityType, err)
	}

	for _, p := range d.Parents {
		if p.ExternalIDExpr == "" && p.NameExpr == "" {
			return fmt.Errorf("%s parent %s has neither an id nor a name expression", d.EntityType, p.Column)
		}
		for _, expr := range []string{p.ExternalIDExpr, p.NameExpr} {
			if expr == "" {
				continue
			}
			if err := m.Evaluator().Validate(expr); err != nil {
				return fmt.Errorf("%s parent %s: %w", d.EntityType, p.Column, err)
			}
		}
	}

	for _, a := range d.Associations {
		if d.EntityType != models.EntityTypeAddon || a.TargetType != models.EntityTypeCamper {
			return fmt.Errorf("unsupported association %s -> %s", d.EntityType, a.TargetType)
		}
		if err := m.Evaluator().Validate(a.ExternalIDsExpr); err != nil {
			return fmt.Errorf("%s association: %w", d.EntityType, err)
		}
	}

	return nil
}
