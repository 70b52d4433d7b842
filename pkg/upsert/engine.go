// Package upsert writes partner records into the canonical tables, keyed by the identity registry.
package upsert

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// ErrSkipped matches every SkipError.
var ErrSkipped = errors.New("record skipped")

// SkipError is a per-record skip: the record is not written and the run continues.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

func (e *SkipError) Is(target error) bool {
	return target == ErrSkipped
}

func skipf(format string, args ...any) error {
	return &SkipError{Reason: fmt.Sprintf(format, args...)}
}

type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
)

type Registry interface {
	Resolve(ctx context.Context, partner string, entityType models.EntityType, externalID string) (uuid.UUID, bool, error)
	Register(ctx context.Context, partner string, entityType models.EntityType, externalID string, internalID uuid.UUID) error
	Lock(ctx context.Context, partner string, entityType models.EntityType, externalID string) (func(), error)
}

type EntityStore interface {
	NameSource
	Insert(ctx context.Context, entityType models.EntityType, id uuid.UUID, values map[string]any) error
	Update(ctx context.Context, entityType models.EntityType, id uuid.UUID, values map[string]any) (bool, error)
}

type AddonLinkStore interface {
	Exists(ctx context.Context, camperID, addonID uuid.UUID) (bool, error)
	Insert(ctx context.Context, camperID, addonID uuid.UUID) error
}

type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Result struct {
	ExternalID string
	InternalID uuid.UUID
	Action     Action
	Values     map[string]any
	Changes    []models.Change
}

// Engine is built once per run; its name index must not outlive the run.
type Engine struct {
	registry Registry
	entities EntityStore
	addons   AddonLinkStore
	tx       Transactor
	mapper   *mapping.Mapper
	names    *NameIndex
	logger   ectologger.Logger
}

func NewEngine(registry Registry, entities EntityStore, addons AddonLinkStore, tx Transactor, mapper *mapping.Mapper, logger ectologger.Logger) *Engine {
	return &Engine{
		registry: registry,
		entities: entities,
		addons:   addons,
		tx:       tx,
		mapper:   mapper,
		names:    NewNameIndex(entities),
		logger:   logger,
	}
}

func (e *Engine) eval() *expressions.Evaluator {
	return e.mapper.Evaluator()
}

// ExternalID evaluates the definition's external id expression.
func (e *Engine) ExternalID(def Definition, record any) (string, error) {
	return e.eval().EvaluateString(def.ExternalID, record)
}

// Upsert inserts or updates the row for one partner record. A *SkipError means nothing was
// written; any other error is a per-record failure.
func (e *Engine) Upsert(ctx context.Context, partner string, def Definition, record any) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "upsert.Engine.Upsert")
	defer span.End()

	externalID, err := e.ExternalID(def, record)
	if err != nil {
		return nil, err
	}
	if externalID == "" {
		return nil, skipf("missing external id")
	}

	res := &Result{ExternalID: externalID}
	change := func(kind models.ChangeKind, field, msg string) {
		res.Changes = append(res.Changes, models.Change{
			Kind:       kind,
			EntityType: def.EntityType,
			ExternalID: externalID,
			Field:      field,
			Message:    msg,
		})
	}

	values, degrades, err := e.mapper.Apply(def.Fields, record)
	if err != nil {
		return nil, err
	}
	for _, d := range degrades {
		change(models.ChangeDegraded, d.Column, d.Reason)
	}
	for _, f := range def.Fields {
		if f.Flag != "" && values[f.Column] != nil {
			change(models.ChangeFlagged, f.Column, f.Flag)
		}
	}

	for _, parent := range def.Parents {
		id, ref, err := e.resolveParent(ctx, partner, parent, record)
		if err != nil {
			return nil, err
		}
		if id != uuid.Nil {
			values[parent.Column] = id
			continue
		}
		values[parent.Column] = nil
		if parent.Required {
			if ref == "" {
				return nil, skipf("missing %s reference", parent.EntityType)
			}
			return nil, skipf("%s %s not found", parent.EntityType, ref)
		}
		if ref != "" {
			change(models.ChangeDegraded, parent.Column, fmt.Sprintf("%s %s not found", parent.EntityType, ref))
		}
	}

	release, err := e.registry.Lock(ctx, partner, def.EntityType, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s %s: %w", def.EntityType, externalID, err)
	}
	defer release()

	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		id, action, err := e.write(ctx, partner, def, externalID, values)
		if err != nil {
			return err
		}
		res.InternalID = id
		res.Action = action

		notes, err := e.associate(ctx, partner, def, id, record)
		if err != nil {
			return err
		}
		for _, n := range notes {
			change(models.ChangeDegraded, "associations", n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Values = values

	e.logger.WithContext(ctx).WithFields(fctx.RunFields(ctx, map[string]any{
		"partner":     partner,
		"entity_type": def.EntityType,
		"external_id": externalID,
		"internal_id": res.InternalID,
		"action":      res.Action,
	})).Debug("Upserted record")

	return res, nil
}

// resolveParent returns uuid.Nil when the parent is unknown, along with the reference that was
// looked up.
func (e *Engine) resolveParent(ctx context.Context, partner string, parent ParentRef, record any) (uuid.UUID, string, error) {
	var ref string
	if parent.ExternalIDExpr != "" {
		ext, err := e.eval().EvaluateString(parent.ExternalIDExpr, record)
		if err != nil {
			return uuid.Nil, "", err
		}
		if ext != "" {
			ref = ext
			id, found, err := e.registry.Resolve(ctx, partner, parent.EntityType, ext)
			if err != nil {
				return uuid.Nil, ref, err
			}
			if found {
				return id, ref, nil
			}
		}
	}

	if parent.NameExpr != "" {
		name, err := e.eval().EvaluateString(parent.NameExpr, record)
		if err != nil {
			return uuid.Nil, ref, err
		}
		if name != "" {
			if ref == "" {
				ref = name
			}
			id, found, err := e.names.Lookup(ctx, parent.EntityType, name)
			if err != nil {
				return uuid.Nil, ref, err
			}
			if found {
				return id, ref, nil
			}
		}
	}

	return uuid.Nil, ref, nil
}

// write must run under the triple lock and inside a transaction. Only the registry decides
// between insert and update.
func (e *Engine) write(ctx context.Context, partner string, def Definition, externalID string, values map[string]any) (uuid.UUID, Action, error) {
	id, found, err := e.registry.Resolve(ctx, partner, def.EntityType, externalID)
	if err != nil {
		return uuid.Nil, "", err
	}

	if found {
		updated, err := e.entities.Update(ctx, def.EntityType, id, values)
		if err != nil {
			return uuid.Nil, "", err
		}
		if updated {
			return id, ActionUpdated, nil
		}
		// mapped row is gone; recreate it under the same id
		if err := e.entities.Insert(ctx, def.EntityType, id, values); err != nil {
			return uuid.Nil, "", err
		}
		e.names.Invalidate(def.EntityType)
		return id, ActionInserted, nil
	}

	id = uuid.New()
	if err := e.entities.Insert(ctx, def.EntityType, id, values); err != nil {
		return uuid.Nil, "", err
	}
	if err := e.registry.Register(ctx, partner, def.EntityType, externalID, id); err != nil {
		return uuid.Nil, "", err
	}
	e.names.Invalidate(def.EntityType)
	return id, ActionInserted, nil
}

// associate returns a note for every target that could not be resolved.
func (e *Engine) associate(ctx context.Context, partner string, def Definition, id uuid.UUID, record any) ([]string, error) {
	var notes []string
	for _, a := range def.Associations {
		refs, err := e.eval().EvaluateSlice(a.ExternalIDsExpr, record)
		if err != nil {
			return nil, err
		}
		for _, raw := range refs {
			ext := expressions.Stringify(raw)
			if ext == "" {
				continue
			}
			target, found, err := e.registry.Resolve(ctx, partner, a.TargetType, ext)
			if err != nil {
				return nil, err
			}
			if !found {
				notes = append(notes, fmt.Sprintf("%s %s not found", a.TargetType, ext))
				continue
			}

			exists, err := e.addons.Exists(ctx, target, id)
			if err != nil {
				return nil, err
			}
			if exists {
				continue
			}
			if err := e.addons.Insert(ctx, target, id); err != nil {
				return nil, err
			}
		}
	}
	return notes, nil
}
