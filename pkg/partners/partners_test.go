package partners

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/availability"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestClient() *httpclient.Client {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	return httpclient.NewClient(cfg, newTestLogger())
}

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestDefault_DefinitionsValidate(t *testing.T) {
	mapper := mapping.NewMapper(expressions.NewEvaluator())
	reg, err := Default(Settings{AtlasBaseURL: "http://atlas", DriftwoodBaseURL: "http://driftwood", DriftwoodAPIKey: "k"}, newTestClient(), mapper)
	require.NoError(t, err)

	assert.Equal(t, []string{Atlas, Driftwood}, reg.Names())

	atlas, ok := reg.Get(Atlas)
	require.True(t, ok)
	assert.NotNil(t, atlas.Availability)

	driftwood, ok := reg.Get(Driftwood)
	require.True(t, ok)
	assert.Nil(t, driftwood.Availability)
	assert.Equal(t, "Bearer k", driftwood.Headers["Authorization"])

	_, ok = reg.Get("nope")
	assert.False(t, ok)
}

func TestDriftwood_WeightMappedToHeightIsFlagged(t *testing.T) {
	campers := driftwoodCollections()[models.EntityTypeCamper]
	var found bool
	for _, f := range campers.Fields {
		if f.Column == "height_cm" {
			found = true
			assert.Equal(t, "dimensions.weight", f.Expr)
			assert.Equal(t, WeightAsHeightFlag, f.Flag)
		}
	}
	assert.True(t, found)
}

func TestCollection_ImageRefs(t *testing.T) {
	eval := expressions.NewEvaluator()

	t.Run("objects", func(t *testing.T) {
		c := atlasCollections()[models.EntityTypeCamper]
		refs, err := c.ImageRefs(eval, decode(t, `{"images":[
			{"url":"https://cdn/1.jpg","type":"interior","caption":"Kitchen","width":"800","height":"bad"},
			{"url":""},
			{"url":"https://cdn/2.jpg"}
		]}`))
		require.NoError(t, err)
		require.Len(t, refs, 2)

		assert.Equal(t, "https://cdn/1.jpg", refs[0].URL)
		assert.Equal(t, "interior", refs[0].Category)
		assert.Equal(t, "Kitchen", *refs[0].Metadata.Caption)
		assert.Equal(t, 800, *refs[0].Metadata.Width)
		assert.Nil(t, refs[0].Metadata.Height)
		assert.Equal(t, models.DefaultImageCategory, refs[1].Category)
	})

	t.Run("url list", func(t *testing.T) {
		c := driftwoodCollections()[models.EntityTypeCamper]
		refs, err := c.ImageRefs(eval, decode(t, `{"gallery":["https://cdn/a.jpg","https://cdn/b.jpg"]}`))
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "https://cdn/b.jpg", refs[1].URL)
	})

	t.Run("no images declared", func(t *testing.T) {
		c := atlasCollections()[models.EntityTypeAddon]
		refs, err := c.ImageRefs(eval, decode(t, `{"images":["x"]}`))
		require.NoError(t, err)
		assert.Empty(t, refs)
	})
}

func TestCollection_HolidayList(t *testing.T) {
	eval := expressions.NewEvaluator()
	c := atlasCollections()[models.EntityTypeStation]

	holidays, problems, err := c.HolidayList(eval, decode(t, `{"holidays":[
		{"from":"2025-12-24","to":"2025-12-26"},
		{"from":"2026-01-01"},
		{"from":"2026-02-10","to":"2026-02-01"},
		{"from":"soon","to":"later"}
	]}`))
	require.NoError(t, err)

	require.Len(t, holidays, 2)
	assert.Equal(t, time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC), holidays[0].Start)
	assert.Equal(t, time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC), holidays[0].End)
	assert.Equal(t, holidays[1].Start, holidays[1].End)
	assert.Len(t, problems, 2)
}

func TestImageCollection_Parse(t *testing.T) {
	eval := expressions.NewEvaluator()
	ic := driftwoodImages()

	rec, err := ic.Parse(eval, decode(t, `{"subject":{"kind":"unit","ref":"U-7"},"src":"https://cdn/u7.jpg","tag":"exterior","w":1024}`))
	require.NoError(t, err)
	assert.Equal(t, models.EntityTypeCamper, rec.ParentType)
	assert.Equal(t, "U-7", rec.ParentExternalID)
	assert.Equal(t, "exterior", rec.Ref.Category)
	assert.Equal(t, 1024, *rec.Ref.Metadata.Width)

	_, err = ic.Parse(eval, decode(t, `{"subject":{"kind":"boat","ref":"B"},"src":"https://cdn/b.jpg"}`))
	assert.ErrorContains(t, err, "unknown image parent type")

	_, err = ic.Parse(eval, decode(t, `{"subject":{"kind":"unit","ref":"U-7"}}`))
	assert.ErrorContains(t, err, "missing image url")
}

func TestSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/fleet":
			_, _ = w.Write([]byte(`{"items":[{"unitId":"U1"},{"unitId":"U2"}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	src := NewSource(newTestClient(), expressions.NewEvaluator(), newTestLogger())
	p := &Partner{Name: Driftwood, BaseURL: srv.URL + "/"}

	items, err := src.Fetch(context.Background(), p, "/v2/fleet", "items")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = src.Fetch(context.Background(), p, "/v2/depots", "items")
	assert.ErrorContains(t, err, "fetch driftwood/v2/depots")
}

func TestAtlasOracle_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/availability", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		switch q.Get("station") {
		case "S1":
			assert.Equal(t, "VAN", q.Get("category"))
			assert.Equal(t, "2025-12-30", q.Get("from"))
			assert.Equal(t, "2026-01-13", q.Get("to"))
			_, _ = w.Write([]byte(`{"categories":[{"code":"VAN","status":"FreeSell"}]}`))
		case "S2":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NO_DATA_FOR_SLOT"}}`))
		case "S3":
			_, _ = w.Write([]byte(`{"error":{"code":"NO_DATA_FOR_SLOT"}}`))
		case "S4":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_CATEGORY","message":"unknown"}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	oracle := NewAtlasOracle(newTestClient(), srv.URL, map[string]string{"X-Api-Key": "key"})
	query := func(station string) (*availability.Response, error) {
		return oracle.Query(context.Background(), availability.Query{
			StationExternalID: station,
			Category:          "VAN",
			From:              time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC),
			To:                time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC),
		})
	}

	resp, err := query("S1")
	require.NoError(t, err)
	assert.True(t, resp.Bookable())

	_, err = query("S2")
	assert.True(t, errors.Is(err, availability.ErrNoData))

	_, err = query("S3")
	assert.True(t, errors.Is(err, availability.ErrNoData))

	_, err = query("S4")
	assert.ErrorContains(t, err, "BAD_CATEGORY")

	_, err = query("S5")
	var statusErr *httpclient.StatusError
	assert.True(t, errors.As(err, &statusErr))
}
