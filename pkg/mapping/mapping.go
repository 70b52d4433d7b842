package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/expressions"
)

// FieldType is the canonical column type a partner value is coerced into.
type FieldType string

const (
	String     FieldType = "string"
	Int        FieldType = "int"
	Float      FieldType = "float"
	Bool       FieldType = "bool"
	Decimal    FieldType = "decimal"
	StringList FieldType = "string_list"
	Date       FieldType = "date"
)

// Field maps one partner expression onto one canonical column.
type Field struct {
	Column string
	Expr   string
	Type   FieldType
	// Flag, when set, is reported in the change log every time the field carries a value.
	Flag string
}

// Degrade is a field stored as NULL because its value could not be coerced.
type Degrade struct {
	Column string
	Reason string
}

type Mapper struct {
	eval *expressions.Evaluator
}

func NewMapper(eval *expressions.Evaluator) *Mapper {
	return &Mapper{eval: eval}
}

func (m *Mapper) Evaluator() *expressions.Evaluator {
	return m.eval
}

// Apply evaluates every field against record. Every column is present in the result: absent
// values are nil and malformed values are nil plus a Degrade.
func (m *Mapper) Apply(fields []Field, record any) (map[string]any, []Degrade, error) {
	values := make(map[string]any, len(fields))
	var degrades []Degrade

	for _, f := range fields {
		raw, err := m.eval.Evaluate(f.Expr, record)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", f.Column, err)
		}

		v, err := Coerce(f.Type, raw)
		if err != nil {
			values[f.Column] = nil
			degrades = append(degrades, Degrade{Column: f.Column, Reason: err.Error()})
			continue
		}
		values[f.Column] = v
	}

	return values, degrades, nil
}

// Validate checks every expression compiles.
func (m *Mapper) Validate(fields []Field) error {
	for _, f := range fields {
		if err := m.eval.Validate(f.Expr); err != nil {
			return fmt.Errorf("field %s: %w", f.Column, err)
		}
	}
	return nil
}

// Coerce converts a decoded JSON value into the Go value bound for the column. nil and blank
// strings coerce to nil.
func Coerce(t FieldType, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	switch t {
	case String:
		return toString(raw)
	case Int:
		return toInt(raw)
	case Float:
		return toFloat(raw)
	case Bool:
		return toBool(raw)
	case Decimal:
		return toDecimal(raw)
	case StringList:
		return toStringList(raw)
	case Date:
		return toDate(raw)
	default:
		return nil, fmt.Errorf("unsupported field type %q", t)
	}
}

func toString(raw any) (any, error) {
	switch v := raw.(type) {
	case string, float64, bool:
		return expressions.Stringify(v), nil
	default:
		return nil, fmt.Errorf("expected a scalar, got %T", raw)
	}
}

func toInt(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("expected an integer, got %T", raw)
	}
}

func toFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected a number, got %T", raw)
	}
}

func toBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case float64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1":
			return true, nil
		case "false", "no", "n", "0":
			return false, nil
		}
	}
	return nil, fmt.Errorf("%v is not a boolean", raw)
}

func toDecimal(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%q is not a decimal", v)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("expected a decimal, got %T", raw)
	}
}

func toStringList(raw any) (any, error) {
	var out []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			s, err := toString(item)
			if err != nil {
				return nil, fmt.Errorf("list item: %w", err)
			}
			if str := s.(string); str != "" {
				out = append(out, str)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	default:
		return nil, fmt.Errorf("expected a list, got %T", raw)
	}
	if out == nil {
		out = []string{}
	}
	return database.NewJSONB(out), nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}

func toDate(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected a date string, got %T", raw)
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ParseDate accepts a calendar date or a timestamp and truncates to the UTC day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", s)
}

// StringListValue extracts the []string stored for a StringList column.
func StringListValue(v any) []string {
	if j, ok := v.(database.JSONB[[]string]); ok {
		return j.Data
	}
	return nil
}
