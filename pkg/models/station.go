package models

import (
	"time"

	"github.com/google/uuid"
)

// Holiday is a closed blackout interval [Start, End] in whole days.
type Holiday struct {
	StationID uuid.UUID `db:"station_id" json:"-"`
	Start     time.Time `db:"start_date" json:"start"`
	End       time.Time `db:"end_date" json:"end"`
}

// Window is a rental window [Start, End].
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SampleWindow is the bookable window found for a station and fleet category.
type SampleWindow struct {
	StationID     uuid.UUID `db:"station_id" json:"station_id"`
	FleetCategory string    `db:"fleet_category" json:"fleet_category"`
	Start         time.Time `db:"start_date" json:"start"`
	End           time.Time `db:"end_date" json:"end"`
	FoundAt       time.Time `db:"found_at" json:"found_at"`
}
