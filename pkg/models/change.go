package models

// ChangeKind classifies a change log entry.
type ChangeKind string

const (
	ChangeInserted  ChangeKind = "inserted"
	ChangeUpdated   ChangeKind = "updated"
	ChangeSkipped   ChangeKind = "skipped"
	ChangeFailed    ChangeKind = "failed"
	ChangeDegraded  ChangeKind = "degraded"
	ChangeFlagged   ChangeKind = "flagged"
	ChangeTransient ChangeKind = "transient"
	ChangeImage     ChangeKind = "image"
	ChangeWindow    ChangeKind = "window"
	ChangeInfo      ChangeKind = "info"
)

// Change is one human-readable entry of a run's change log.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	EntityType EntityType `json:"entity_type,omitempty"`
	ExternalID string     `json:"external_id,omitempty"`
	Field      string     `json:"field,omitempty"`
	Message    string     `json:"message"`
}
