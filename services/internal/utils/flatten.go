package utils

import (
	"github.com/qualiteair/hybride/services/internal/models"
)

// Warnings raised while flattening. They never abort a run.
const (
	WarnMissingProperties = "missing_properties"
	WarnMissingGeometry   = "missing_geometry"
	WarnMalformedGeometry = "malformed_geometry"
	WarnUnparsedStartDate = "unparsed_start_date"
)

// Flattened tags a flat record with the recoverable issues found in its
// source document.
type Flattened[T any] struct {
	Record   T
	Warnings []string
}

// Malformed reports whether any warning was raised.
func (f Flattened[T]) Malformed() bool {
	return len(f.Warnings) > 0
}

// Records strips the warnings from a flattened batch.
func Records[T any](in []Flattened[T]) []T {
	out := make([]T, len(in))
	for i, f := range in {
		out[i] = f.Record
	}
	return out
}

// Coordinates extracts [longitude, latitude] from a coordinate pair.
// Missing or malformed pairs yield nil coordinates and a warning.
func Coordinates(v any, present bool) (lon, lat *float64, warn string) {
	if !present || v == nil {
		return nil, nil, WarnMissingGeometry
	}
	pair, ok := asSlice(v)
	if !ok || len(pair) < 2 {
		return nil, nil, WarnMalformedGeometry
	}
	lon = FloatValue(pair[0])
	lat = FloatValue(pair[1])
	if lon == nil || lat == nil {
		return nil, nil, WarnMalformedGeometry
	}
	return lon, lat, ""
}

// FlattenEpisode maps an episode document with properties/geometry
// substructures onto a flat Episode.
func FlattenEpisode(doc map[string]any) Flattened[models.Episode] {
	var out Flattened[models.Episode]
	out.Record.ID = DocumentID(doc["_id"])

	props, ok := lookup(doc, "properties")
	if _, isMap := asMap(props); !ok || !isMap {
		out.Warnings = append(out.Warnings, WarnMissingProperties)
		props = nil
	}

	prop := func(key string) any {
		v, _ := lookup(props, key)
		return v
	}

	out.Record.InseeCode = StringValue(prop("code_insee"))
	out.Record.Pollutant = StringValue(prop("polluant"))
	out.Record.StartDate = TimeValue(prop("date_debut"))
	out.Record.EndDate = TimeValue(prop("date_fin"))
	out.Record.State = StringValue(prop("etat"))
	out.Record.Level = StringValue(prop("niveau"))
	out.Record.TriggerValue = FloatValue(prop("valeur_declenchement"))

	if raw := prop("date_debut"); raw != nil && out.Record.StartDate == nil {
		out.Warnings = append(out.Warnings, WarnUnparsedStartDate)
	}

	coords, present := lookup(doc, "geometry", "coordinates")
	lon, lat, warn := Coordinates(coords, present)
	out.Record.Longitude, out.Record.Latitude = lon, lat
	if warn != "" {
		out.Warnings = append(out.Warnings, warn)
	}
	return out
}

// FlattenDailyAverage maps a daily-average document onto a flat record.
// These documents are already flat except for the coordinates pair.
func FlattenDailyAverage(doc map[string]any) Flattened[models.DailyAverage] {
	var out Flattened[models.DailyAverage]
	out.Record = models.DailyAverage{
		ID:        DocumentID(doc["_id"]),
		StartDate: TimeValue(doc["date_debut"]),
		Organism:  StringValue(doc["organisme"]),
		SiteName:  StringValue(doc["nom_site"]),
		SiteCode:  StringValue(doc["code_site"]),
		Pollutant: StringValue(doc["polluant"]),
		Value:     FloatValue(doc["valeur"]),
		Unit:      StringValue(doc["unite_mesure"]),
	}

	if raw := doc["date_debut"]; raw != nil && out.Record.StartDate == nil {
		out.Warnings = append(out.Warnings, WarnUnparsedStartDate)
	}

	coords, present := doc["coordinates"]
	lon, lat, warn := Coordinates(coords, present)
	out.Record.Longitude, out.Record.Latitude = lon, lat
	if warn != "" {
		out.Warnings = append(out.Warnings, warn)
	}
	return out
}
