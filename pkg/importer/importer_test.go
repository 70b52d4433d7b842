package importer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/availability"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/partners"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func decode(t *testing.T, raw string) []any {
	t.Helper()
	var out []any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

type fakeDB struct {
	mu         sync.Mutex
	sessionErr error
	opened     int
	released   int
}

func (d *fakeDB) OpenSession(ctx context.Context) (context.Context, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessionErr != nil {
		return ctx, func() {}, d.sessionErr
	}
	d.opened++
	return ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.released++
	}, nil
}

func (d *fakeDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeFetcher struct {
	records map[string][]any
	errs    map[string]error
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, _ *partners.Partner, path, _ string) ([]any, error) {
	f.calls = append(f.calls, path)
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	return f.records[path], nil
}

type mappingStore struct {
	mu   sync.Mutex
	rows map[string]uuid.UUID
}

func (s *mappingStore) Get(_ context.Context, partner string, entityType models.EntityType, externalID string) (*models.PartnerMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.rows[identity.Key(partner, entityType, externalID)]
	if !ok {
		return nil, nil
	}
	return &models.PartnerMapping{Partner: partner, EntityType: entityType, ExternalID: externalID, InternalID: id}, nil
}

func (s *mappingStore) Insert(_ context.Context, partner string, entityType models.EntityType, externalID string, internalID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identity.Key(partner, entityType, externalID)
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = internalID
	return true, nil
}

type entityStore struct {
	mu   sync.Mutex
	rows map[models.EntityType]map[uuid.UUID]map[string]any
}

func (s *entityStore) Insert(_ context.Context, entityType models.EntityType, id uuid.UUID, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[entityType] == nil {
		s.rows[entityType] = map[uuid.UUID]map[string]any{}
	}
	s.rows[entityType][id] = values
	return nil
}

func (s *entityStore) Update(_ context.Context, entityType models.EntityType, id uuid.UUID, values map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[entityType][id]; !ok {
		return false, nil
	}
	s.rows[entityType][id] = values
	return true, nil
}

func (s *entityStore) Names(_ context.Context, entityType models.EntityType) ([]models.NamedEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.NamedEntity
	for id, values := range s.rows[entityType] {
		if name, ok := values["name"].(string); ok {
			out = append(out, models.NamedEntity{ID: id, Name: &name})
		}
	}
	return out, nil
}

func (s *entityStore) count(entityType models.EntityType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows[entityType])
}

type addonLinks struct{}

func (addonLinks) Exists(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return false, nil }
func (addonLinks) Insert(context.Context, uuid.UUID, uuid.UUID) error         { return nil }

type imageSyncer struct {
	mu    sync.Mutex
	calls map[uuid.UUID][]models.ImageRef
}

func (s *imageSyncer) SyncEntityImages(_ context.Context, parentType models.EntityType, parentID uuid.UUID, externalID string, refs []models.ImageRef) []models.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[parentID] = append(s.calls[parentID], refs...)
	var changes []models.Change
	for _, ref := range refs {
		changes = append(changes, models.Change{Kind: models.ChangeImage, EntityType: parentType, ExternalID: externalID, Field: "images", Message: ref.URL})
	}
	return changes
}

type stationStore struct {
	holidays map[uuid.UUID][]models.Holiday
	windows  []models.SampleWindow
}

func (s *stationStore) ReplaceHolidays(_ context.Context, stationID uuid.UUID, holidays []models.Holiday) error {
	s.holidays[stationID] = holidays
	return nil
}

func (s *stationStore) SaveSampleWindow(_ context.Context, w models.SampleWindow) error {
	s.windows = append(s.windows, w)
	return nil
}

type runStore struct {
	runs map[uuid.UUID]*models.SyncRun
}

func (s *runStore) Create(_ context.Context, run *models.SyncRun) error {
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *runStore) Finish(_ context.Context, run *models.SyncRun) error {
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *runStore) Get(_ context.Context, id uuid.UUID) (*models.SyncRun, error) {
	return s.runs[id], nil
}

type eventRecorder struct {
	events []*kafka.SyncEventMessage
}

func (e *eventRecorder) PublishSyncEvent(_ context.Context, evt *kafka.SyncEventMessage) error {
	e.events = append(e.events, evt)
	return nil
}

type freeSellOracle struct {
	queries []availability.Query
}

func (o *freeSellOracle) Query(_ context.Context, q availability.Query) (*availability.Response, error) {
	o.queries = append(o.queries, q)
	return &availability.Response{Categories: []availability.CategoryStatus{{Code: q.Category, Status: availability.StatusFreeSell}}}, nil
}

const testPartner = "acme"

func testPartnerDef(oracle availability.Oracle) *partners.Partner {
	providerRef := upsert.ParentRef{Column: "provider_id", EntityType: models.EntityTypeProvider, ExternalIDExpr: "providerId", Required: true}
	images := &partners.ImageFields{ItemsExpr: "images", URLExpr: "url"}
	return &partners.Partner{
		Name: testPartner,
		Collections: map[models.EntityType]*partners.Collection{
			models.EntityTypeProvider: {
				Definition: upsert.Definition{
					EntityType: models.EntityTypeProvider,
					ExternalID: "id",
					Fields:     []mapping.Field{{Column: "name", Expr: "name", Type: mapping.String}},
				},
				Path:   "/providers",
				Images: images,
			},
			models.EntityTypeStation: {
				Definition: upsert.Definition{
					EntityType: models.EntityTypeStation,
					ExternalID: "id",
					Fields: []mapping.Field{
						{Column: "name", Expr: "name", Type: mapping.String},
						{Column: "fleet_categories", Expr: "categories", Type: mapping.StringList},
					},
					Parents: []upsert.ParentRef{providerRef},
				},
				Path:                  "/stations",
				Holidays:              &partners.HolidayFields{ItemsExpr: "holidays", StartExpr: "from", EndExpr: "to"},
				FleetCategoriesColumn: "fleet_categories",
			},
			models.EntityTypeCamper: {
				Definition: upsert.Definition{
					EntityType: models.EntityTypeCamper,
					ExternalID: "id",
					Fields:     []mapping.Field{{Column: "name", Expr: "name", Type: mapping.String}},
					Parents:    []upsert.ParentRef{providerRef},
				},
				Path: "/campers",
			},
		},
		Images: &partners.ImageCollection{
			Path:        "/images",
			ParentType:  "kind",
			ParentID:    "ref",
			ParentTypes: map[string]models.EntityType{"unit": models.EntityTypeCamper},
			Image:       partners.ImageFields{URLExpr: "url"},
		},
		Availability: oracle,
	}
}

type fixture struct {
	db       *fakeDB
	fetcher  *fakeFetcher
	entities *entityStore
	images   *imageSyncer
	stations *stationStore
	runs     *runStore
	events   *eventRecorder
	oracle   *freeSellOracle
	importer *Importer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := newTestLogger()
	eval := expressions.NewEvaluator()

	f := &fixture{
		db:       &fakeDB{},
		fetcher:  &fakeFetcher{records: map[string][]any{}, errs: map[string]error{}},
		entities: &entityStore{rows: map[models.EntityType]map[uuid.UUID]map[string]any{}},
		images:   &imageSyncer{calls: map[uuid.UUID][]models.ImageRef{}},
		stations: &stationStore{holidays: map[uuid.UUID][]models.Holiday{}},
		runs:     &runStore{runs: map[uuid.UUID]*models.SyncRun{}},
		events:   &eventRecorder{},
		oracle:   &freeSellOracle{},
	}

	f.importer = New(Deps{
		DB:       f.db,
		Partners: partners.NewRegistry(testPartnerDef(f.oracle)),
		Fetcher:  f.fetcher,
		Registry: identity.NewRegistry(&mappingStore{rows: map[string]uuid.UUID{}}, nil, logger),
		Entities: f.entities,
		Addons:   addonLinks{},
		Images:   f.images,
		Stations: f.stations,
		Runs:     f.runs,
		Events:   f.events,
		Mapper:   mapping.NewMapper(eval),
		Logger:   logger,
	}, Config{RunTimeout: time.Minute, Finder: availability.DefaultConfig()})
	f.importer.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	return f
}

func TestResolveTypes(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "all", want: RunOrder},
		{in: "providers", want: []string{TypeProviders}},
		{in: "Camper", want: []string{TypeCampers}},
		{in: "images", want: []string{TypeImages}},
		{in: "bookings", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ResolveTypes(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownEntityType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_UnknownPartnerAndType(t *testing.T) {
	f := newFixture(t)

	_, err := f.importer.Run(context.Background(), "nobody", "all")
	assert.ErrorIs(t, err, ErrUnknownPartner)

	_, err = f.importer.Run(context.Background(), testPartner, "bookings")
	assert.ErrorIs(t, err, ErrUnknownEntityType)

	assert.Equal(t, 0, f.db.opened)
	assert.Empty(t, f.runs.runs)
}

func TestRun_SessionUnavailable(t *testing.T) {
	f := newFixture(t)
	f.db.sessionErr = errors.New("pool exhausted")

	_, err := f.importer.Run(context.Background(), testPartner, "providers")

	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Equal(t, "storage session unavailable", importErr.Message)
	assert.Equal(t, "pool exhausted", importErr.Details)
	assert.Empty(t, f.fetcher.calls)
}

func TestRun_FetchFailureAbortsRun(t *testing.T) {
	f := newFixture(t)
	f.fetcher.records["/providers"] = decode(t, `[{"id":"P1","name":"Acme"}]`)
	f.fetcher.errs["/stations"] = errors.New("502 bad gateway")

	result, err := f.importer.Run(context.Background(), testPartner, "all")
	require.Nil(t, result)

	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Contains(t, importErr.Message, "failed to fetch stations")
	assert.Equal(t, "502 bad gateway", importErr.Details)
	assert.NotEqual(t, uuid.Nil, importErr.RunID)

	// stopped at the failing collection
	assert.Equal(t, []string{"/providers", "/stations"}, f.fetcher.calls)

	run := f.runs.runs[importErr.RunID]
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, 1, run.Summary.Inserted)
	assert.NotNil(t, run.FinishedAt)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.RunStatusFailed, f.events.events[0].Status)

	assert.Equal(t, 1, f.db.opened)
	assert.Equal(t, 1, f.db.released)
}

func TestRun_SkippedRecordSucceedsOnLaterRun(t *testing.T) {
	f := newFixture(t)
	f.fetcher.records["/providers"] = decode(t, `[{"id":"P1","name":"Acme"}]`)
	f.fetcher.records["/campers"] = decode(t, `[{"id":"C1","name":"Nomad","providerId":"P1"}]`)

	result, err := f.importer.Run(context.Background(), testPartner, "campers")
	require.NoError(t, err)
	assert.Equal(t, models.RunSummary{Skipped: 1}, result.Summary)
	assert.Contains(t, result.Lines, "skipped camper C1: provider P1 not found")
	assert.Equal(t, 0, f.entities.count(models.EntityTypeCamper))

	_, err = f.importer.Run(context.Background(), testPartner, "providers")
	require.NoError(t, err)

	result, err = f.importer.Run(context.Background(), testPartner, "campers")
	require.NoError(t, err)
	assert.Equal(t, models.RunSummary{Inserted: 1}, result.Summary)
	assert.Equal(t, 1, f.entities.count(models.EntityTypeCamper))

	assert.Equal(t, 3, f.db.released)
}

func TestRun_AllImportsInDependencyOrder(t *testing.T) {
	f := newFixture(t)
	f.fetcher.records["/providers"] = decode(t, `[{"id":"P1","name":"Acme","images":[{"url":"https://cdn.example/logo.png"}]}]`)
	f.fetcher.records["/stations"] = decode(t, `[
		{"id":"S1","name":"Munich","providerId":"P1","categories":["A"],
		 "holidays":[{"from":"2025-03-10","to":"2025-03-12"},{"from":"bogus","to":"2025-03-12"}]}
	]`)
	f.fetcher.records["/campers"] = decode(t, `[
		{"id":"C1","name":"Nomad","providerId":"P1"},
		{"name":"no id","providerId":"P1"}
	]`)
	f.fetcher.records["/images"] = decode(t, `[
		{"kind":"unit","ref":"C1","url":"https://cdn.example/c1.jpg"},
		{"kind":"unit","ref":"C9","url":"https://cdn.example/c9.jpg"}
	]`)

	result, err := f.importer.Run(context.Background(), testPartner, "all")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, result.Status)
	assert.Equal(t, models.RunSummary{Inserted: 3, Skipped: 2}, result.Summary)
	assert.Equal(t, []string{"/providers", "/stations", "/campers", "/images"}, f.fetcher.calls)
	assert.Contains(t, result.Lines, "info: acme does not publish addons")
	assert.Contains(t, result.Lines, "skipped camper C9: image https://cdn.example/c9.jpg: camper C9 not found")

	// holidays: one stored, one reported
	require.Len(t, f.stations.holidays, 1)
	for _, holidays := range f.stations.holidays {
		require.Len(t, holidays, 1)
		assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), holidays[0].Start.UTC())
	}

	// first Tuesday clear of 2025-03-10..12 is 2025-03-18
	require.Len(t, f.stations.windows, 1)
	window := f.stations.windows[0]
	assert.Equal(t, "A", window.FleetCategory)
	assert.Equal(t, "2025-03-18", window.Start.Format(time.DateOnly))
	assert.Equal(t, "2025-04-01", window.End.Format(time.DateOnly))
	assert.Len(t, f.oracle.queries, 1)

	assert.Len(t, f.images.calls, 2)

	run := f.runs.runs[result.RunID]
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	assert.Equal(t, result.Summary, run.Summary)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, result.RunID.String(), f.events.events[0].RunID)
	assert.Equal(t, 1, f.db.released)
}

func TestRun_RerunUpdatesInsteadOfDuplicating(t *testing.T) {
	f := newFixture(t)
	f.fetcher.records["/providers"] = decode(t, `[{"id":"P1","name":"Acme"},{"id":"P2","name":"Bravo"}]`)

	first, err := f.importer.Run(context.Background(), testPartner, "providers")
	require.NoError(t, err)
	assert.Equal(t, models.RunSummary{Inserted: 2}, first.Summary)

	second, err := f.importer.Run(context.Background(), testPartner, "providers")
	require.NoError(t, err)
	assert.Equal(t, models.RunSummary{Updated: 2}, second.Summary)
	assert.Equal(t, 2, f.entities.count(models.EntityTypeProvider))
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRun_DeadlineAbortsRun(t *testing.T) {
	f := newFixture(t)
	f.fetcher.records["/providers"] = decode(t, `[{"id":"P1","name":"Acme"}]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.importer.Run(ctx, testPartner, "providers")

	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.RunStatusFailed, f.runs.runs[importErr.RunID].Status)
	assert.Equal(t, 1, f.db.released)
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	f.fetcher.records["/providers"] = decode(t, `[]`)

	result, err := f.importer.Run(context.Background(), testPartner, "providers")
	require.NoError(t, err)

	run, err := f.importer.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, testPartner, run.Partner)

	missing, err := f.importer.GetRun(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
