package changelog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Log is the ordered change log of one import run.
type Log struct {
	mu      sync.Mutex
	entries []models.Change
}

func New() *Log {
	return &Log{}
}

func (l *Log) Add(c models.Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, c)
}

func (l *Log) AddAll(changes []models.Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, changes...)
}

func (l *Log) Skipped(entityType models.EntityType, externalID string, reason string) {
	l.Add(models.Change{Kind: models.ChangeSkipped, EntityType: entityType, ExternalID: externalID, Message: reason})
}

func (l *Log) Failed(entityType models.EntityType, externalID string, err error) {
	l.Add(models.Change{Kind: models.ChangeFailed, EntityType: entityType, ExternalID: externalID, Message: err.Error()})
}

func (l *Log) Info(message string) {
	l.Add(models.Change{Kind: models.ChangeInfo, Message: message})
}

// Entries returns a copy of the log in insertion order.
func (l *Log) Entries() []models.Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Change, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Summary counts record-level outcomes. Entries scoped to a field are not records.
func (l *Log) Summary() models.RunSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s models.RunSummary
	for _, e := range l.entries {
		if e.Field != "" {
			continue
		}
		switch e.Kind {
		case models.ChangeInserted:
			s.Inserted++
		case models.ChangeUpdated:
			s.Updated++
		case models.ChangeSkipped:
			s.Skipped++
		case models.ChangeFailed:
			s.Failed++
		}
	}
	return s
}

// Lines renders every entry as one human-readable line.
func (l *Log) Lines() []string {
	entries := l.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, Format(e))
	}
	return lines
}

// Format renders e.g. "skipped camper V-1: provider not found".
func Format(c models.Change) string {
	var b strings.Builder
	b.WriteString(string(c.Kind))
	if c.EntityType != "" {
		b.WriteString(" ")
		b.WriteString(string(c.EntityType))
	}
	if c.ExternalID != "" {
		b.WriteString(" ")
		b.WriteString(c.ExternalID)
	}
	if c.Field != "" {
		fmt.Fprintf(&b, " [%s]", c.Field)
	}
	if c.Message != "" {
		b.WriteString(": ")
		b.WriteString(c.Message)
	}
	return b.String()
}
