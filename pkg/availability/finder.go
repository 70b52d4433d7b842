// Package availability searches for a bookable rental window by probing a partner's live
// availability service, skipping station holidays.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// StatusFreeSell marks a category bookable without a special request.
const StatusFreeSell = "FreeSell"

// ErrNoData is returned by an Oracle that has nothing for the requested slot.
var ErrNoData = errors.New("no availability data for slot")

type Query struct {
	StationExternalID string
	Category          string
	From              time.Time
	To                time.Time
}

type CategoryStatus struct {
	Code   string `json:"code"`
	Status string `json:"status"`
}

type Response struct {
	Categories []CategoryStatus `json:"categories"`
}

// Bookable reports whether any category is FreeSell.
func (r *Response) Bookable() bool {
	if r == nil {
		return false
	}
	for _, c := range r.Categories {
		if c.Status == StatusFreeSell {
			return true
		}
	}
	return false
}

// Oracle is a partner's availability service.
type Oracle interface {
	Query(ctx context.Context, q Query) (*Response, error)
}

type Config struct {
	TargetWeekday time.Weekday
	WindowDays    int
	MaxAttempts   int
	ProbeTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		TargetWeekday: time.Tuesday,
		WindowDays:    14,
		MaxAttempts:   10,
		ProbeTimeout:  15 * time.Second,
	}
}

// Target is one (station, fleet category) pair to find a window for.
type Target struct {
	StationID         uuid.UUID
	StationExternalID string
	Category          string
	Holidays          []models.Holiday
}

type Outcome struct {
	// Window is nil when no window was found within the attempt budget.
	Window   *models.Window
	Attempts int
	Changes  []models.Change
}

// ProbeObserver is told about every probe outcome.
type ProbeObserver func(outcome string, elapsed time.Duration)

type Finder struct {
	oracle  Oracle
	cfg     Config
	observe ProbeObserver
	logger  ectologger.Logger
}

func NewFinder(oracle Oracle, cfg Config, observe ProbeObserver, logger ectologger.Logger) *Finder {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultConfig().WindowDays
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if observe == nil {
		observe = func(string, time.Duration) {}
	}
	return &Finder{
		oracle:  oracle,
		cfg:     cfg,
		observe: observe,
		logger:  logger,
	}
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextWeekday returns from itself when it already falls on wd.
func NextWeekday(from time.Time, wd time.Weekday) time.Time {
	from = day(from)
	return from.AddDate(0, 0, (int(wd)-int(from.Weekday())+7)%7)
}

// overlapsHoliday treats both the window and the holidays as closed date intervals.
func overlapsHoliday(w models.Window, holidays []models.Holiday) bool {
	for _, h := range holidays {
		if !w.Start.After(day(h.End)) && !day(h.Start).After(w.End) {
			return true
		}
	}
	return false
}

// Find probes at most MaxAttempts candidate windows starting from reference. Only context errors
// are returned; everything else ends up in the outcome.
func (f *Finder) Find(ctx context.Context, reference time.Time, target Target) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "availability.Finder.Find")
	defer span.End()

	log := f.logger.WithContext(ctx).WithFields(fctx.RunFields(ctx, map[string]any{
		"station":  target.StationExternalID,
		"category": target.Category,
	}))

	out := &Outcome{}
	note := func(kind models.ChangeKind, msg string) {
		out.Changes = append(out.Changes, models.Change{
			Kind:       kind,
			EntityType: models.EntityTypeStation,
			ExternalID: target.StationExternalID,
			Field:      target.Category,
			Message:    msg,
		})
	}

	cursor := day(reference)
	for out.Attempts < f.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Attempts++

		start := NextWeekday(cursor, f.cfg.TargetWeekday)
		window := models.Window{Start: start, End: start.AddDate(0, 0, f.cfg.WindowDays)}

		if overlapsHoliday(window, target.Holidays) {
			log.Debugf("Window %s overlaps a holiday", window.Start.Format(time.DateOnly))
			cursor = start.AddDate(0, 0, 1)
			continue
		}

		resp, err := f.probe(ctx, target, window)
		switch {
		case err == nil && resp.Bookable():
			out.Window = &window
			note(models.ChangeWindow, fmt.Sprintf("window %s..%s after %d attempts",
				window.Start.Format(time.DateOnly), window.End.Format(time.DateOnly), out.Attempts))
			return out, nil
		case err == nil || errors.Is(err, ErrNoData):
			cursor = start.AddDate(0, 0, f.cfg.WindowDays+1)
		case ctx.Err() != nil:
			return out, ctx.Err()
		default:
			log.WithError(err).Warn("Availability probe failed")
			note(models.ChangeTransient, fmt.Sprintf("probe %s: %v", window.Start.Format(time.DateOnly), err))
			cursor = start.AddDate(0, 0, 1)
		}
	}

	note(models.ChangeWindow, fmt.Sprintf("no window found after %d attempts", out.Attempts))
	return out, nil
}

func (f *Finder) probe(ctx context.Context, target Target, window models.Window) (*Response, error) {
	if f.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.ProbeTimeout)
		defer cancel()
	}

	began := time.Now()
	resp, err := f.oracle.Query(ctx, Query{
		StationExternalID: target.StationExternalID,
		Category:          target.Category,
		From:              window.Start,
		To:                window.End,
	})

	outcome := "bookable"
	switch {
	case errors.Is(err, ErrNoData):
		outcome = "no_data"
	case err != nil:
		outcome = "error"
	case !resp.Bookable():
		outcome = "unavailable"
	}
	f.observe(outcome, time.Since(began))

	return resp, err
}
