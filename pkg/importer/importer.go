// Package importer runs one import of a partner collection end to end and keeps its change log.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/availability"
	"github.com/Ramsey-B/fern/pkg/changelog"
	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/partners"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

const (
	TypeProviders = "providers"
	TypeStations  = "stations"
	TypeCampers   = "campers"
	TypeAddons    = "addons"
	TypeImages    = "images"
	TypeAll       = "all"
)

// RunOrder is the dependency order used for TypeAll.
var RunOrder = []string{TypeProviders, TypeStations, TypeCampers, TypeAddons, TypeImages}

var (
	ErrUnknownPartner    = errors.New("unknown partner")
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// ImportError aborts a run. It is the only failure surfaced to the caller.
type ImportError struct {
	RunID   uuid.UUID
	Message string
	Details string
	Err     error
}

func (e *ImportError) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func fatal(err error, format string, args ...any) *ImportError {
	return &ImportError{Message: fmt.Sprintf(format, args...), Details: err.Error(), Err: err}
}

type Database interface {
	OpenSession(ctx context.Context) (context.Context, func(), error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PartnerLookup interface {
	Get(name string) (*partners.Partner, bool)
}

type Fetcher interface {
	Fetch(ctx context.Context, p *partners.Partner, path, itemsExpr string) ([]any, error)
}

type ImageSyncer interface {
	SyncEntityImages(ctx context.Context, parentType models.EntityType, parentID uuid.UUID, externalID string, refs []models.ImageRef) []models.Change
}

type StationStore interface {
	ReplaceHolidays(ctx context.Context, stationID uuid.UUID, holidays []models.Holiday) error
	SaveSampleWindow(ctx context.Context, w models.SampleWindow) error
}

type RunStore interface {
	Create(ctx context.Context, run *models.SyncRun) error
	Finish(ctx context.Context, run *models.SyncRun) error
	Get(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
}

type EventPublisher interface {
	PublishSyncEvent(ctx context.Context, evt *kafka.SyncEventMessage) error
}

type Deps struct {
	DB       Database
	Partners PartnerLookup
	Fetcher  Fetcher
	Registry upsert.Registry
	Entities upsert.EntityStore
	Addons   upsert.AddonLinkStore
	Images   ImageSyncer
	Stations StationStore
	Runs     RunStore
	// Events is optional.
	Events EventPublisher
	Mapper *mapping.Mapper
	Logger ectologger.Logger
}

type Config struct {
	RunTimeout time.Duration
	Finder     availability.Config
}

type Importer struct {
	deps Deps
	cfg  Config
	now  func() time.Time
}

func New(deps Deps, cfg Config) *Importer {
	return &Importer{
		deps: deps,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

type ImportResult struct {
	RunID      uuid.UUID         `json:"run_id"`
	Partner    string            `json:"partner"`
	EntityType string            `json:"entity_type"`
	Status     models.RunStatus  `json:"status"`
	Summary    models.RunSummary `json:"summary"`
	Changes    []models.Change   `json:"-"`
	Lines      []string          `json:"changes"`
}

// ResolveTypes expands an entity type argument into the collections to import, in order.
func ResolveTypes(entityType string) ([]string, error) {
	entityType = strings.ToLower(strings.TrimSpace(entityType))
	if entityType == TypeAll {
		return RunOrder, nil
	}
	if ectolinq.Contains(RunOrder, entityType) {
		return []string{entityType}, nil
	}
	if et, err := models.ParseEntityType(entityType); err == nil {
		table, _ := et.Table()
		return []string{table}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEntityType, entityType)
}

// run is the state of one import run.
type run struct {
	partner *partners.Partner
	engine  *upsert.Engine
	log     *changelog.Log
	logger  ectologger.Logger
}

// Run imports entityType from partner. Per-record problems end up in the result's change log;
// the returned error is ErrUnknownPartner, ErrUnknownEntityType or an *ImportError.
func (im *Importer) Run(ctx context.Context, partnerName, entityType string) (*ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Importer.Run")
	defer span.End()

	partner, ok := im.deps.Partners.Get(partnerName)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPartner, partnerName)
	}
	types, err := ResolveTypes(entityType)
	if err != nil {
		return nil, err
	}

	if im.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, im.cfg.RunTimeout)
		defer cancel()
	}

	runID := uuid.New()
	ctx = fctx.SetRun(ctx, runID.String(), partner.Name)
	logger := im.deps.Logger

	ctx, release, err := im.deps.DB.OpenSession(ctx)
	if err != nil {
		return nil, &ImportError{RunID: runID, Message: "storage session unavailable", Details: err.Error(), Err: err}
	}
	defer release()

	record := &models.SyncRun{
		ID:         runID,
		Partner:    partner.Name,
		EntityType: entityType,
		Status:     models.RunStatusRunning,
		StartedAt:  im.now(),
	}
	if err := im.deps.Runs.Create(ctx, record); err != nil {
		return nil, &ImportError{RunID: runID, Message: "failed to record import run", Details: err.Error(), Err: err}
	}

	logger.WithContext(ctx).WithFields(fctx.RunFields(ctx, map[string]any{
		"entity_type": entityType,
	})).Info("Import run started")

	r := &run{
		partner: partner,
		engine:  upsert.NewEngine(im.deps.Registry, im.deps.Entities, im.deps.Addons, im.deps.DB, im.deps.Mapper, logger),
		log:     changelog.New(),
		logger:  logger,
	}

	var runErr *ImportError
	for _, typ := range types {
		if runErr = im.importType(ctx, r, typ); runErr != nil {
			runErr.RunID = runID
			break
		}
	}

	result := im.finish(ctx, record, r, runErr)
	if runErr != nil {
		tracing.RecordError(span, runErr)
		return nil, runErr
	}
	return result, nil
}

func (im *Importer) finish(ctx context.Context, record *models.SyncRun, r *run, runErr *ImportError) *ImportResult {
	// the run deadline may have passed; the outcome is still written
	ctx = context.WithoutCancel(ctx)

	finishedAt := im.now()
	record.Status = models.RunStatusSucceeded
	if runErr != nil {
		record.Status = models.RunStatusFailed
		msg := runErr.Error()
		record.Error = &msg
	}
	record.Summary = r.log.Summary()
	record.Changes = r.log.Entries()
	record.FinishedAt = &finishedAt

	log := r.logger.WithContext(ctx).WithFields(fctx.RunFields(ctx, map[string]any{
		"entity_type": record.EntityType,
		"status":      record.Status,
		"inserted":    record.Summary.Inserted,
		"updated":     record.Summary.Updated,
		"skipped":     record.Summary.Skipped,
		"failed":      record.Summary.Failed,
	}))

	if err := im.deps.Runs.Finish(ctx, record); err != nil {
		log.WithError(err).Error("Failed to persist import run")
	}

	metrics.RecordImportRun(record.Partner, record.EntityType, string(record.Status), finishedAt.Sub(record.StartedAt).Seconds())
	metrics.RecordImportRecords(record.Partner, record.EntityType, string(models.ChangeInserted), record.Summary.Inserted)
	metrics.RecordImportRecords(record.Partner, record.EntityType, string(models.ChangeUpdated), record.Summary.Updated)
	metrics.RecordImportRecords(record.Partner, record.EntityType, string(models.ChangeSkipped), record.Summary.Skipped)
	metrics.RecordImportRecords(record.Partner, record.EntityType, string(models.ChangeFailed), record.Summary.Failed)

	if im.deps.Events != nil {
		evt := &kafka.SyncEventMessage{
			RunID:      record.ID.String(),
			Partner:    record.Partner,
			EntityType: record.EntityType,
			Status:     record.Status,
			Summary:    record.Summary,
			Timestamp:  finishedAt,
		}
		if record.Error != nil {
			evt.Error = *record.Error
		}
		if err := im.deps.Events.PublishSyncEvent(ctx, evt); err != nil {
			log.WithError(err).Warn("Failed to publish sync event")
		}
	}

	if runErr != nil {
		log.WithError(runErr).Error("Import run aborted")
	} else {
		log.Info("Import run finished")
	}

	return &ImportResult{
		RunID:      record.ID,
		Partner:    record.Partner,
		EntityType: record.EntityType,
		Status:     record.Status,
		Summary:    record.Summary,
		Changes:    record.Changes,
		Lines:      r.log.Lines(),
	}
}

// GetRun returns nil when the run does not exist.
func (im *Importer) GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	return im.deps.Runs.Get(ctx, id)
}
