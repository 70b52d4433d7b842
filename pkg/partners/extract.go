package partners

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
)

func optionalString(eval *expressions.Evaluator, expr string, item any) (*string, error) {
	if expr == "" {
		return nil, nil
	}
	s, err := eval.EvaluateString(expr, item)
	if err != nil || s == "" {
		return nil, err
	}
	return &s, nil
}

func optionalInt(eval *expressions.Evaluator, expr string, item any) (*int, error) {
	if expr == "" {
		return nil, nil
	}
	raw, err := eval.Evaluate(expr, item)
	if err != nil {
		return nil, err
	}
	v, err := mapping.Coerce(mapping.Int, raw)
	if err != nil || v == nil {
		// a malformed dimension is dropped, the image is still usable
		return nil, nil
	}
	n := int(v.(int64))
	return &n, nil
}

// ref reads one image reference from item.
func (f ImageFields) ref(eval *expressions.Evaluator, item any) (models.ImageRef, error) {
	var ref models.ImageRef
	var err error

	if ref.URL, err = eval.EvaluateString(f.URLExpr, item); err != nil {
		return ref, err
	}
	if f.CategoryExpr != "" {
		if ref.Category, err = eval.EvaluateString(f.CategoryExpr, item); err != nil {
			return ref, err
		}
	}
	if ref.Category == "" {
		ref.Category = models.DefaultImageCategory
	}

	meta := &ref.Metadata
	if meta.Caption, err = optionalString(eval, f.CaptionExpr, item); err != nil {
		return ref, err
	}
	if meta.AltText, err = optionalString(eval, f.AltTextExpr, item); err != nil {
		return ref, err
	}
	if meta.Copyright, err = optionalString(eval, f.CopyrightExpr, item); err != nil {
		return ref, err
	}
	if meta.Width, err = optionalInt(eval, f.WidthExpr, item); err != nil {
		return ref, err
	}
	if meta.Height, err = optionalInt(eval, f.HeightExpr, item); err != nil {
		return ref, err
	}
	return ref, nil
}

// ImageRefs lists the image references embedded in record. Entries without a URL are dropped.
func (c *Collection) ImageRefs(eval *expressions.Evaluator, record any) ([]models.ImageRef, error) {
	if c.Images == nil {
		return nil, nil
	}

	items := []any{record}
	if c.Images.ItemsExpr != "" {
		var err error
		if items, err = eval.EvaluateSlice(c.Images.ItemsExpr, record); err != nil {
			return nil, err
		}
	}

	refs := make([]models.ImageRef, 0, len(items))
	for _, item := range items {
		ref, err := c.Images.ref(eval, item)
		if err != nil {
			return nil, err
		}
		if ref.URL != "" {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// HolidayList reads the station's holiday intervals. Unparseable intervals are returned as
// messages and left out.
func (c *Collection) HolidayList(eval *expressions.Evaluator, record any) ([]models.Holiday, []string, error) {
	if c.Holidays == nil {
		return nil, nil, nil
	}

	items, err := eval.EvaluateSlice(c.Holidays.ItemsExpr, record)
	if err != nil {
		return nil, nil, err
	}

	var holidays []models.Holiday
	var problems []string
	for i, item := range items {
		start, err := eval.EvaluateString(c.Holidays.StartExpr, item)
		if err != nil {
			return nil, nil, err
		}
		end, err := eval.EvaluateString(c.Holidays.EndExpr, item)
		if err != nil {
			return nil, nil, err
		}
		if end == "" {
			end = start
		}

		s, errStart := mapping.ParseDate(start)
		e, errEnd := mapping.ParseDate(end)
		switch {
		case errStart != nil || errEnd != nil:
			problems = append(problems, fmt.Sprintf("holiday %d: invalid dates %q..%q", i, start, end))
		case e.Before(s):
			problems = append(problems, fmt.Sprintf("holiday %d: ends before it starts", i))
		default:
			holidays = append(holidays, models.Holiday{Start: s, End: e})
		}
	}
	return holidays, problems, nil
}

// ImageRecord is one entry of a partner's image collection.
type ImageRecord struct {
	ParentType       models.EntityType
	ParentExternalID string
	Ref              models.ImageRef
}

func (ic *ImageCollection) Parse(eval *expressions.Evaluator, record any) (*ImageRecord, error) {
	kind, err := eval.EvaluateString(ic.ParentType, record)
	if err != nil {
		return nil, err
	}
	parentType, ok := ic.ParentTypes[kind]
	if !ok {
		return nil, fmt.Errorf("unknown image parent type %q", kind)
	}

	parentID, err := eval.EvaluateString(ic.ParentID, record)
	if err != nil {
		return nil, err
	}
	if parentID == "" {
		return nil, fmt.Errorf("missing image parent id")
	}

	ref, err := ic.Image.ref(eval, record)
	if err != nil {
		return nil, err
	}
	if ref.URL == "" {
		return nil, fmt.Errorf("missing image url")
	}

	return &ImageRecord{ParentType: parentType, ParentExternalID: parentID, Ref: ref}, nil
}
