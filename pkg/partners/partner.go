// Package partners declares how each partner's API maps onto the canonical model. Mappings are
// hand-written tables, one file per partner.
package partners

import (
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/availability"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

// ImageFields locates image references inside a record. An empty ItemsExpr means the record is
// itself one image.
type ImageFields struct {
	ItemsExpr     string
	URLExpr       string
	CategoryExpr  string
	CaptionExpr   string
	AltTextExpr   string
	CopyrightExpr string
	WidthExpr     string
	HeightExpr    string
}

type HolidayFields struct {
	ItemsExpr string
	StartExpr string
	EndExpr   string
}

// Collection is one partner endpoint feeding one entity type.
type Collection struct {
	upsert.Definition
	Path      string
	ItemsExpr string
	Images    *ImageFields
	Holidays  *HolidayFields
	// FleetCategoriesColumn is the mapped string list column whose values are probed by the
	// date finder after a station import.
	FleetCategoriesColumn string
}

// ImageCollection is a partner endpoint listing images with the entity they belong to.
type ImageCollection struct {
	Path        string
	ItemsExpr   string
	ParentType  string
	ParentID    string
	ParentTypes map[string]models.EntityType
	Image       ImageFields
}

type Partner struct {
	Name        string
	BaseURL     string
	Headers     map[string]string
	Collections map[models.EntityType]*Collection
	Images      *ImageCollection
	// Availability is nil when the partner has no live availability service.
	Availability availability.Oracle
}

func (p *Partner) Collection(entityType models.EntityType) (*Collection, bool) {
	c, ok := p.Collections[entityType]
	return c, ok
}

// Validate compiles every expression the partner declares.
func (p *Partner) Validate(m *mapping.Mapper) error {
	eval := m.Evaluator()
	types := make([]string, 0, len(p.Collections))
	for et := range p.Collections {
		types = append(types, string(et))
	}
	sort.Strings(types)

	for _, et := range types {
		c := p.Collections[models.EntityType(et)]
		if c.EntityType != models.EntityType(et) {
			return fmt.Errorf("%s: collection %s declares entity type %s", p.Name, et, c.EntityType)
		}
		if err := c.Definition.Validate(m); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		if err := validateExprs(eval, c.ItemsExpr); err != nil {
			return fmt.Errorf("%s %s items: %w", p.Name, et, err)
		}
		if c.Images != nil {
			if err := c.Images.validate(eval); err != nil {
				return fmt.Errorf("%s %s images: %w", p.Name, et, err)
			}
		}
		if c.Holidays != nil {
			if err := validateExprs(eval, c.Holidays.ItemsExpr, c.Holidays.StartExpr, c.Holidays.EndExpr); err != nil {
				return fmt.Errorf("%s %s holidays: %w", p.Name, et, err)
			}
		}
	}

	if p.Images != nil {
		if err := validateExprs(eval, p.Images.ItemsExpr, p.Images.ParentType, p.Images.ParentID); err != nil {
			return fmt.Errorf("%s images: %w", p.Name, err)
		}
		if err := p.Images.Image.validate(eval); err != nil {
			return fmt.Errorf("%s images: %w", p.Name, err)
		}
	}
	return nil
}

func (f ImageFields) validate(eval *expressions.Evaluator) error {
	if f.URLExpr == "" {
		return fmt.Errorf("no url expression")
	}
	return validateExprs(eval, f.ItemsExpr, f.URLExpr, f.CategoryExpr, f.CaptionExpr, f.AltTextExpr, f.CopyrightExpr, f.WidthExpr, f.HeightExpr)
}

func validateExprs(eval *expressions.Evaluator, exprs ...string) error {
	for _, expr := range exprs {
		if expr == "" {
			continue
		}
		if err := eval.Validate(expr); err != nil {
			return err
		}
	}
	return nil
}
