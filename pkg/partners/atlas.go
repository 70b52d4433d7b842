package partners

import (
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

const Atlas = "atlas"

var atlasImage = ImageFields{
	ItemsExpr:     "images",
	URLExpr:       "url",
	CategoryExpr:  "type",
	CaptionExpr:   "caption",
	AltTextExpr:   "alt",
	CopyrightExpr: "copyright",
	WidthExpr:     "width",
	HeightExpr:    "height",
}

func atlasProviderRef(required bool) upsert.ParentRef {
	return upsert.ParentRef{Column: "provider_id", EntityType: models.EntityTypeProvider, ExternalIDExpr: "providerId", Required: required}
}

func atlasCollections() map[models.EntityType]*Collection {
	return map[models.EntityType]*Collection{
		models.EntityTypeProvider: {
			Definition: upsert.Definition{
				EntityType: models.EntityTypeProvider,
				ExternalID: "id",
				Fields: []mapping.Field{
					{Column: "name", Expr: "name", Type: mapping.String},
					{Column: "legal_name", Expr: "legalName", Type: mapping.String},
					{Column: "website", Expr: "website", Type: mapping.String},
					{Column: "email", Expr: "contact.email", Type: mapping.String},
					{Column: "phone", Expr: "contact.phone", Type: mapping.String},
					{Column: "country", Expr: "country", Type: mapping.String},
					{Column: "description", Expr: "description", Type: mapping.String},
					{Column: "logo_url", Expr: "logoUrl", Type: mapping.String},
				},
			},
			Path:      "/providers",
			ItemsExpr: "data",
			Images:    &atlasImage,
		},
		models.EntityTypeStation: {
			Definition: upsert.Definition{
				EntityType: models.EntityTypeStation,
				ExternalID: "id",
				Fields: []mapping.Field{
					{Column: "name", Expr: "name", Type: mapping.String},
					{Column: "street", Expr: "address.street", Type: mapping.String},
					{Column: "city", Expr: "address.city", Type: mapping.String},
					{Column: "postal_code", Expr: "address.zip", Type: mapping.String},
					{Column: "country", Expr: "address.country", Type: mapping.String},
					{Column: "latitude", Expr: "geo.lat", Type: mapping.Float},
					{Column: "longitude", Expr: "geo.lng", Type: mapping.Float},
					{Column: "phone", Expr: "phone", Type: mapping.String},
					{Column: "email", Expr: "email", Type: mapping.String},
					{Column: "opening_hours", Expr: "openingHours", Type: mapping.String},
					{Column: "fleet_categories", Expr: "fleetCategories", Type: mapping.StringList},
				},
				Parents: []upsert.ParentRef{atlasProviderRef(true)},
			},
			Path:                  "/stations",
			ItemsExpr:             "data",
			Images:                &atlasImage,
			Holidays:              &HolidayFields{ItemsExpr: "holidays", StartExpr: "from", EndExpr: "to"},
			FleetCategoriesColumn: "fleet_categories",
		},
		models.EntityTypeCamper: {
			Definition: upsert.Definition{
				EntityType: models.EntityTypeCamper,
				ExternalID: "id",
				Fields: []mapping.Field{
					{Column: "name", Expr: "name", Type: mapping.String},
					{Column: "brand", Expr: "brand", Type: mapping.String},
					{Column: "model", Expr: "model", Type: mapping.String},
					{Column: "fleet_category", Expr: "category", Type: mapping.String},
					{Column: "seats", Expr: "seats", Type: mapping.Int},
					{Column: "sleeping_places", Expr: "beds", Type: mapping.Int},
					{Column: "length_cm", Expr: "dimensions.lengthCm", Type: mapping.Int},
					{Column: "width_cm", Expr: "dimensions.widthCm", Type: mapping.Int},
					{Column: "height_cm", Expr: "dimensions.heightCm", Type: mapping.Int},
					{Column: "transmission", Expr: "transmission", Type: mapping.String},
					{Column: "fuel_type", Expr: "fuel", Type: mapping.String},
					{Column: "year", Expr: "year", Type: mapping.Int},
					{Column: "min_driver_age", Expr: "minDriverAge", Type: mapping.Int},
					{Column: "description", Expr: "description", Type: mapping.String},
				},
				Parents: []upsert.ParentRef{
					atlasProviderRef(true),
					{Column: "station_id", EntityType: models.EntityTypeStation, ExternalIDExpr: "stationId"},
				},
			},
			Path:      "/vehicles",
			ItemsExpr: "data",
			Images:    &atlasImage,
		},
		models.EntityTypeAddon: {
			Definition: upsert.Definition{
				EntityType: models.EntityTypeAddon,
				ExternalID: "code",
				Fields: []mapping.Field{
					{Column: "name", Expr: "name", Type: mapping.String},
					{Column: "description", Expr: "description", Type: mapping.String},
					{Column: "price", Expr: "price.amount", Type: mapping.Decimal},
					{Column: "currency", Expr: "price.currency", Type: mapping.String},
					{Column: "price_unit", Expr: "price.unit", Type: mapping.String},
					{Column: "max_quantity", Expr: "maxQuantity", Type: mapping.Int},
				},
				Parents: []upsert.ParentRef{atlasProviderRef(true)},
				Associations: []upsert.Association{
					{TargetType: models.EntityTypeCamper, ExternalIDsExpr: "vehicleIds"},
				},
			},
			Path:      "/extras",
			ItemsExpr: "data",
		},
	}
}

func atlasImages() *ImageCollection {
	return &ImageCollection{
		Path:       "/media",
		ItemsExpr:  "data",
		ParentType: "parentType",
		ParentID:   "parentId",
		ParentTypes: map[string]models.EntityType{
			"vehicle":  models.EntityTypeCamper,
			"station":  models.EntityTypeStation,
			"provider": models.EntityTypeProvider,
		},
		Image: ImageFields{
			URLExpr:       "url",
			CategoryExpr:  "type",
			CaptionExpr:   "caption",
			AltTextExpr:   "alt",
			CopyrightExpr: "copyright",
			WidthExpr:     "width",
			HeightExpr:    "height",
		},
	}
}
