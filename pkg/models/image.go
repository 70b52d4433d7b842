package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Image is one deduplicated image, unique by URL.
type Image struct {
	ID        uuid.UUID `db:"id" json:"id"`
	URL       string    `db:"url" json:"url"`
	Caption   *string   `db:"caption" json:"caption,omitempty"`
	AltText   *string   `db:"alt_text" json:"alt_text,omitempty"`
	Copyright *string   `db:"copyright" json:"copyright,omitempty"`
	Width     *int      `db:"width" json:"width,omitempty"`
	Height    *int      `db:"height" json:"height,omitempty"`
}

// ImageMetadata holds the optional image attributes. Nil means "not provided".
type ImageMetadata struct {
	Caption   *string `json:"caption,omitempty"`
	AltText   *string `json:"alt_text,omitempty"`
	Copyright *string `json:"copyright,omitempty"`
	Width     *int    `json:"width,omitempty"`
	Height    *int    `json:"height,omitempty"`
}

func (m ImageMetadata) IsEmpty() bool {
	return m.Caption == nil && m.AltText == nil && m.Copyright == nil && m.Width == nil && m.Height == nil
}

// ImageRef is an image referenced by a partner record.
type ImageRef struct {
	URL      string        `validate:"required,url"`
	Category string        `validate:"required,max=64"`
	Metadata ImageMetadata `validate:"-"`
}

const DefaultImageCategory = "gallery"

var imageLinkTables = map[EntityType]string{
	EntityTypeCamper:   "camper_images",
	EntityTypeStation:  "station_images",
	EntityTypeProvider: "provider_images",
}

// ImageLinkTable is the association table for images of parents of type t.
func ImageLinkTable(t EntityType) (string, error) {
	table, ok := imageLinkTables[t]
	if !ok {
		return "", fmt.Errorf("entity type %q has no images", t)
	}
	return table, nil
}

// ImageLinkTables lists every image association table.
func ImageLinkTables() []string {
	return []string{"camper_images", "station_images", "provider_images"}
}
