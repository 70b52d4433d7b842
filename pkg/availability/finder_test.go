package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type scriptedOracle struct {
	answers []func(q Query) (*Response, error)
	queries []Query
}

func (o *scriptedOracle) Query(ctx context.Context, q Query) (*Response, error) {
	o.queries = append(o.queries, q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := len(o.queries) - 1
	if i >= len(o.answers) {
		return nil, ErrNoData
	}
	return o.answers[i](q)
}

func bookable(Query) (*Response, error) {
	return &Response{Categories: []CategoryStatus{{Code: "C1", Status: "OnRequest"}, {Code: "C2", Status: StatusFreeSell}}}, nil
}

func fullyBooked(Query) (*Response, error) {
	return &Response{Categories: []CategoryStatus{{Code: "C1", Status: "OnRequest"}}}, nil
}

func noData(Query) (*Response, error) {
	return nil, ErrNoData
}

func failing(Query) (*Response, error) {
	return nil, errors.New("502 bad gateway")
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestFinder(oracle Oracle) *Finder {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewFinder(oracle, DefaultConfig(), nil, logger)
}

func TestNextWeekday(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{from: "2025-12-23", want: "2025-12-23"},
		{from: "2025-12-24", want: "2025-12-30"},
		{from: "2025-12-29", want: "2025-12-30"},
		{from: "2025-12-21", want: "2025-12-23"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			assert.Equal(t, date(tt.want), NextWeekday(date(tt.from), time.Tuesday))
		})
	}
}

func TestFind_HolidayScenario(t *testing.T) {
	oracle := &scriptedOracle{answers: []func(Query) (*Response, error){bookable}}
	finder := newTestFinder(oracle)

	out, err := finder.Find(context.Background(), date("2025-12-23"), Target{
		StationExternalID: "S1",
		Category:          "VAN",
		Holidays:          []models.Holiday{{Start: date("2025-12-24"), End: date("2025-12-26")}},
	})
	require.NoError(t, err)
	require.NotNil(t, out.Window)

	assert.Equal(t, date("2025-12-30"), out.Window.Start)
	assert.Equal(t, date("2026-01-13"), out.Window.End)
	assert.Equal(t, 2, out.Attempts)

	require.Len(t, oracle.queries, 1)
	assert.Equal(t, Query{StationExternalID: "S1", Category: "VAN", From: date("2025-12-30"), To: date("2026-01-13")}, oracle.queries[0])
}

func TestFind_NoDataAdvancesPastWindow(t *testing.T) {
	oracle := &scriptedOracle{answers: []func(Query) (*Response, error){noData, fullyBooked, bookable}}
	finder := newTestFinder(oracle)

	out, err := finder.Find(context.Background(), date("2026-03-02"), Target{StationExternalID: "S1", Category: "VAN"})
	require.NoError(t, err)
	require.NotNil(t, out.Window)

	// 03-03, then 03-03+15=03-18 -> Tue 03-24, then 03-24+15=04-08 -> Tue 04-14
	require.Len(t, oracle.queries, 3)
	assert.Equal(t, date("2026-03-03"), oracle.queries[0].From)
	assert.Equal(t, date("2026-03-24"), oracle.queries[1].From)
	assert.Equal(t, date("2026-04-14"), oracle.queries[2].From)
	assert.Equal(t, 3, out.Attempts)
}

func TestFind_TransientErrorAdvancesOneDay(t *testing.T) {
	oracle := &scriptedOracle{answers: []func(Query) (*Response, error){failing, bookable}}
	finder := newTestFinder(oracle)

	out, err := finder.Find(context.Background(), date("2026-03-03"), Target{StationExternalID: "S1", Category: "VAN"})
	require.NoError(t, err)
	require.NotNil(t, out.Window)
	assert.Equal(t, date("2026-03-10"), out.Window.Start)

	require.Len(t, out.Changes, 2)
	assert.Equal(t, models.ChangeTransient, out.Changes[0].Kind)
	assert.Equal(t, models.ChangeWindow, out.Changes[1].Kind)
}

func TestFind_TerminatesAfterMaxAttempts(t *testing.T) {
	tests := []struct {
		name     string
		answer   func(Query) (*Response, error)
		holidays []models.Holiday
		probes   int
	}{
		{name: "never bookable", answer: fullyBooked, probes: 10},
		{name: "always failing", answer: failing, probes: 10},
		{
			name:     "blocked by holidays",
			answer:   bookable,
			holidays: []models.Holiday{{Start: date("2026-01-01"), End: date("2027-12-31")}},
			probes:   0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answers := make([]func(Query) (*Response, error), 20)
			for i := range answers {
				answers[i] = tt.answer
			}
			oracle := &scriptedOracle{answers: answers}
			finder := newTestFinder(oracle)

			out, err := finder.Find(context.Background(), date("2026-03-03"), Target{StationExternalID: "S1", Category: "VAN", Holidays: tt.holidays})
			require.NoError(t, err)
			assert.Nil(t, out.Window)
			assert.Equal(t, 10, out.Attempts)
			assert.Len(t, oracle.queries, tt.probes)

			last := out.Changes[len(out.Changes)-1]
			assert.Equal(t, "no window found after 10 attempts", last.Message)
		})
	}
}

func TestFind_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	oracle := &scriptedOracle{answers: []func(Query) (*Response, error){bookable}}
	_, err := newTestFinder(oracle).Find(ctx, date("2026-03-03"), Target{StationExternalID: "S1", Category: "VAN"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, oracle.queries)
}

func TestFind_ConfigurableWeekdayAndWindow(t *testing.T) {
	oracle := &scriptedOracle{answers: []func(Query) (*Response, error){bookable}}
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	finder := NewFinder(oracle, Config{TargetWeekday: time.Saturday, WindowDays: 7, MaxAttempts: 3}, nil, logger)

	out, err := finder.Find(context.Background(), date("2026-03-03"), Target{StationExternalID: "S1", Category: "VAN"})
	require.NoError(t, err)
	require.NotNil(t, out.Window)
	assert.Equal(t, date("2026-03-07"), out.Window.Start)
	assert.Equal(t, date("2026-03-14"), out.Window.End)
}

func TestFind_ObservesProbes(t *testing.T) {
	oracle := &scriptedOracle{answers: []func(Query) (*Response, error){noData, failing, fullyBooked, bookable}}
	var outcomes []string
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	finder := NewFinder(oracle, DefaultConfig(), func(outcome string, _ time.Duration) {
		outcomes = append(outcomes, outcome)
	}, logger)

	_, err := finder.Find(context.Background(), date("2026-03-03"), Target{StationExternalID: "S1", Category: "VAN"})
	require.NoError(t, err)
	assert.Equal(t, []string{"no_data", "error", "unavailable", "bookable"}, outcomes)
}
