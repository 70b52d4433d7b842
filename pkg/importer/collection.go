package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/availability"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/partners"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

func (im *Importer) importType(ctx context.Context, r *run, typ string) *ImportError {
	ctx, span := tracing.StartSpan(ctx, "importer.Importer.importType")
	defer span.End()

	if typ == TypeImages {
		return im.importImages(ctx, r)
	}

	et, err := models.ParseEntityType(typ)
	if err != nil {
		return fatal(err, "unknown entity type %s", typ)
	}
	coll, ok := r.partner.Collection(et)
	if !ok {
		r.log.Info(fmt.Sprintf("%s does not publish %s", r.partner.Name, typ))
		return nil
	}

	records, err := im.deps.Fetcher.Fetch(ctx, r.partner, coll.Path, coll.ItemsExpr)
	if err != nil {
		return fatal(err, "failed to fetch %s from %s", typ, r.partner.Name)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"partner":     r.partner.Name,
		"entity_type": et,
		"records":     len(records),
	}).Debug("Fetched partner records")

	var targets []availability.Target
	eval := im.deps.Mapper.Evaluator()

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return fatal(err, "import of %s from %s interrupted", typ, r.partner.Name)
		}

		res, err := r.engine.Upsert(ctx, r.partner.Name, coll.Definition, record)
		if err != nil {
			externalID, _ := r.engine.ExternalID(coll.Definition, record)
			var skip *upsert.SkipError
			switch {
			case errors.As(err, &skip):
				r.log.Skipped(et, externalID, skip.Reason)
			case ctx.Err() != nil:
				return fatal(err, "import of %s from %s interrupted", typ, r.partner.Name)
			default:
				r.log.Failed(et, externalID, err)
			}
			continue
		}

		kind := models.ChangeUpdated
		if res.Action == upsert.ActionInserted {
			kind = models.ChangeInserted
		}
		r.log.Add(models.Change{Kind: kind, EntityType: et, ExternalID: res.ExternalID})
		r.log.AddAll(res.Changes)

		if coll.Images != nil {
			refs, err := coll.ImageRefs(eval, record)
			if err != nil {
				r.log.Add(models.Change{Kind: models.ChangeDegraded, EntityType: et, ExternalID: res.ExternalID, Field: "images", Message: err.Error()})
			} else if len(refs) > 0 {
				r.log.AddAll(im.deps.Images.SyncEntityImages(ctx, et, res.InternalID, res.ExternalID, refs))
			}
		}

		if et != models.EntityTypeStation {
			continue
		}

		holidays := im.syncHolidays(ctx, r, coll, res, record)
		if coll.FleetCategoriesColumn == "" {
			continue
		}
		for _, category := range mapping.StringListValue(res.Values[coll.FleetCategoriesColumn]) {
			targets = append(targets, availability.Target{
				StationID:         res.InternalID,
				StationExternalID: res.ExternalID,
				Category:          category,
				Holidays:          holidays,
			})
		}
	}

	if len(targets) > 0 && r.partner.Availability != nil {
		return im.findWindows(ctx, r, targets)
	}
	return nil
}

// syncHolidays replaces the station's holidays when the partner publishes them and returns the
// intervals the date finder must avoid.
func (im *Importer) syncHolidays(ctx context.Context, r *run, coll *partners.Collection, res *upsert.Result, record any) []models.Holiday {
	if coll.Holidays == nil {
		return nil
	}

	note := func(kind models.ChangeKind, msg string) {
		r.log.Add(models.Change{
			Kind:       kind,
			EntityType: models.EntityTypeStation,
			ExternalID: res.ExternalID,
			Field:      "holidays",
			Message:    msg,
		})
	}

	holidays, problems, err := coll.HolidayList(im.deps.Mapper.Evaluator(), record)
	if err != nil {
		note(models.ChangeDegraded, err.Error())
		return nil
	}
	for _, p := range problems {
		note(models.ChangeDegraded, p)
	}
	for i := range holidays {
		holidays[i].StationID = res.InternalID
	}

	if err := im.deps.Stations.ReplaceHolidays(ctx, res.InternalID, holidays); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("station", res.ExternalID).Warn("Failed to store holidays")
		note(models.ChangeFailed, fmt.Sprintf("store holidays: %v", err))
	}
	return holidays
}

// findWindows runs the date finder for every station and fleet category imported in this run.
func (im *Importer) findWindows(ctx context.Context, r *run, targets []availability.Target) *ImportError {
	ctx, span := tracing.StartSpan(ctx, "importer.Importer.findWindows")
	defer span.End()

	partner := r.partner.Name
	finder := availability.NewFinder(r.partner.Availability, im.cfg.Finder, func(outcome string, elapsed time.Duration) {
		metrics.RecordAvailabilityProbe(partner, outcome, elapsed.Seconds())
	}, r.logger)

	for _, target := range targets {
		out, err := finder.Find(ctx, im.now(), target)
		if out != nil {
			r.log.AddAll(out.Changes)
		}
		if err != nil {
			return fatal(err, "availability search for %s interrupted", partner)
		}
		if out.Window == nil {
			continue
		}

		err = im.deps.Stations.SaveSampleWindow(ctx, models.SampleWindow{
			StationID:     target.StationID,
			FleetCategory: target.Category,
			Start:         out.Window.Start,
			End:           out.Window.End,
			FoundAt:       im.now(),
		})
		if err != nil {
			r.log.Add(models.Change{
				Kind:       models.ChangeFailed,
				EntityType: models.EntityTypeStation,
				ExternalID: target.StationExternalID,
				Field:      target.Category,
				Message:    fmt.Sprintf("store window: %v", err),
			})
		}
	}
	return nil
}

// importImages links the partner's standalone image collection to already imported entities.
func (im *Importer) importImages(ctx context.Context, r *run) *ImportError {
	ic := r.partner.Images
	if ic == nil {
		r.log.Info(fmt.Sprintf("%s does not publish %s", r.partner.Name, TypeImages))
		return nil
	}

	records, err := im.deps.Fetcher.Fetch(ctx, r.partner, ic.Path, ic.ItemsExpr)
	if err != nil {
		return fatal(err, "failed to fetch %s from %s", TypeImages, r.partner.Name)
	}

	eval := im.deps.Mapper.Evaluator()
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return fatal(err, "import of %s from %s interrupted", TypeImages, r.partner.Name)
		}

		img, err := ic.Parse(eval, record)
		if err != nil {
			r.log.Add(models.Change{Kind: models.ChangeSkipped, Message: fmt.Sprintf("image: %v", err)})
			continue
		}

		parentID, found, err := im.deps.Registry.Resolve(ctx, r.partner.Name, img.ParentType, img.ParentExternalID)
		switch {
		case err != nil:
			r.log.Failed(img.ParentType, img.ParentExternalID, err)
			continue
		case !found || parentID == uuid.Nil:
			r.log.Skipped(img.ParentType, img.ParentExternalID, fmt.Sprintf("image %s: %s %s not found", img.Ref.URL, img.ParentType, img.ParentExternalID))
			continue
		}

		r.log.AddAll(im.deps.Images.SyncEntityImages(ctx, img.ParentType, parentID, img.ParentExternalID, []models.ImageRef{img.Ref}))
	}
	return nil
}
