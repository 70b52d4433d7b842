package partners

import (
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

const Driftwood = "driftwood"

// WeightAsHeightFlag marks driftwood's dimensions.weight, which is stored as height_cm until
// driftwood confirms what the field measures.
const WeightAsHeightFlag = "height_cm sourced from driftwood dimensions.weight; unit and meaning unconfirmed"

// driftwood identifies brands by name only, so the brand name is the provider external id.
var driftwoodBrandRef = upsert.ParentRef{
	Column:         "provider_id",
	EntityType:     models.EntityTypeProvider,
	ExternalIDExpr: "brand",
	NameExpr:       "brand",
	Required:       true,
}

func driftwoodCollections() map[models.EntityType]*Collection {
	return map[models.EntityType]*Collection{
		models.EntityTypeProvider: {
			Definition: upsert.Definition{
				EntityType: models.EntityTypeProvider,
				ExternalID: "name",
				Fields: []mapping.Field{
					{Column: "name", Expr: "name", Type: mapping.String},
					{Column: "legal_name", Expr: "company", Type: mapping.String},
					{Column: "website", Expr: "homepage", Type: mapping.String},
					{Column: "email", Expr: "support.email", Type: mapping.String},
					{Column: "phone", Expr: "support.phone", Type: mapping.String},
					{Column: "country", Expr: "hq.country", Type: mapping.String},
					{Column: "description", Expr: "about", Type: mapping.String},
					{Column: "logo_url", Expr: "logo", Type: mapping.String},
				},
			},
			Path:      "/v2/brands",
			ItemsExpr: "items",
		},
		models.EntityTypeStation: {
			Definition: upsert.Definition{
				EntityType: models.EntityTypeStation,
				ExternalID: "depotCode",
				Fields: []mapping.Field{
					{Column: "name", Expr: "label", Type: mapping.String},
					{Column: "street", Expr: "location.street", Type: mapping.String},
					{Column: "city", Expr: "location.town", Type: mapping.String},
					{Column: "postal_code", Expr: "location.postcode", Type: mapping.String},
					{Column: "country", Expr: "location.country", Type: mapping.String},
					{Column: "latitude", Expr: "location.lat", Type: mapping.Float},
					{Column: "longitude", Expr: "location.lon", Type: mapping.Float},
					{Column: "phone", Expr: "phone", Type: mapping.String},
					{Column: "email", Expr: "email", Type: mapping.String},
					{Column: "opening_hours", Expr: "hours", Type: mapping.String},
					{Column: "fleet_categories", Expr: "vehicleClasses", Type: mapping.StringList},
				},
				Parents: []upsert.ParentRef{driftwoodBrandRef},
			},
			Path:                  "/v2/depots",
			ItemsExpr:             "items",
			Holidays:              &HolidayFields{ItemsExpr: "closures", StartExpr: "start", EndExpr: "end"},
			FleetCategoriesColumn: "fleet_categories",
		},
		models.EntityTypeCamper: {
			Definition: upsert.Definition{
				EntityType: models.EntityTypeCamper,
				ExternalID: "unitId",
				Fields: []mapping.Field{
					{Column: "name", Expr: "modelName", Type: mapping.String},
					{Column: "brand", Expr: "brand", Type: mapping.String},
					{Column: "model", Expr: "modelName", Type: mapping.String},
					{Column: "fleet_category", Expr: "class", Type: mapping.String},
					{Column: "seats", Expr: "capacity.seats", Type: mapping.Int},
					{Column: "sleeping_places", Expr: "capacity.berths", Type: mapping.Int},
					{Column: "length_cm", Expr: "dimensions.length", Type: mapping.Int},
					{Column: "width_cm", Expr: "dimensions.width", Type: mapping.Int},
					{Column: "height_cm", Expr: "dimensions.weight", Type: mapping.Int, Flag: WeightAsHeightFlag},
					{Column: "transmission", Expr: "gearbox", Type: mapping.String},
					{Column: "fuel_type", Expr: "fuel", Type: mapping.String},
					{Column: "year", Expr: "modelYear", Type: mapping.Int},
					{Column: "min_driver_age", Expr: "requirements.minAge", Type: mapping.Int},
					{Column: "description", Expr: "summary", Type: mapping.String},
				},
				Parents: []upsert.ParentRef{
					driftwoodBrandRef,
					{Column: "station_id", EntityType: models.EntityTypeStation, ExternalIDExpr: "depotCode"},
				},
			},
			Path:      "/v2/fleet",
			ItemsExpr: "items",
			Images:    &ImageFields{ItemsExpr: "gallery", URLExpr: "@"},
		},
		models.EntityTypeAddon: {
			Definition: upsert.Definition{
				EntityType: models.EntityTypeAddon,
				ExternalID: "sku",
				Fields: []mapping.Field{
					{Column: "name", Expr: "title", Type: mapping.String},
					{Column: "description", Expr: "details", Type: mapping.String},
					{Column: "price", Expr: "pricing.amount", Type: mapping.Decimal},
					{Column: "currency", Expr: "pricing.currency", Type: mapping.String},
					{Column: "price_unit", Expr: "pricing.per", Type: mapping.String},
					{Column: "max_quantity", Expr: "limits.max", Type: mapping.Int},
				},
				Parents: []upsert.ParentRef{driftwoodBrandRef},
				Associations: []upsert.Association{
					{TargetType: models.EntityTypeCamper, ExternalIDsExpr: "fleetUnits"},
				},
			},
			Path:      "/v2/options",
			ItemsExpr: "items",
		},
	}
}

func driftwoodImages() *ImageCollection {
	return &ImageCollection{
		Path:       "/v2/photos",
		ItemsExpr:  "items",
		ParentType: "subject.kind",
		ParentID:   "subject.ref",
		ParentTypes: map[string]models.EntityType{
			"unit":  models.EntityTypeCamper,
			"depot": models.EntityTypeStation,
			"brand": models.EntityTypeProvider,
		},
		Image: ImageFields{
			URLExpr:      "src",
			CategoryExpr: "tag",
			CaptionExpr:  "title",
			WidthExpr:    "w",
			HeightExpr:   "h",
		},
	}
}
