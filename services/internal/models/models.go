package models

import "time"

// PollutionIndex is one consolidated row of indices_qualite_air_consolides.
type PollutionIndex struct {
	ID         int64      `json:"id"`
	AASQA      *string    `json:"aasqa,omitempty"`
	NO2        *float64   `json:"no2"`
	O3         *float64   `json:"o3"`
	PM10       *float64   `json:"pm10"`
	PM25       *float64   `json:"pm25"`
	SO2        *float64   `json:"so2,omitempty"`
	MeasuredAt *time.Time `json:"date_prise_mesure"`
	Quality    *string    `json:"qualite_air"`
	ZoneCode   *string    `json:"code_zone"`
	ZoneName   *string    `json:"zone"`
	SourceFile *string    `json:"fichier_source,omitempty"`
}

// Episode is a flattened document from the episodes collection.
type Episode struct {
	ID           string     `json:"episode_id"`
	InseeCode    *string    `json:"code_insee"`
	Pollutant    *string    `json:"polluant"`
	StartDate    *time.Time `json:"date_debut"`
	EndDate      *time.Time `json:"date_fin"`
	State        *string    `json:"etat"`
	Level        *string    `json:"niveau"`
	TriggerValue *float64   `json:"valeur_declenchement"`
	Longitude    *float64   `json:"longitude"`
	Latitude     *float64   `json:"latitude"`
}

// DailyAverage is a flattened document from the daily averages collection.
type DailyAverage struct {
	ID        string     `json:"moyenne_id"`
	StartDate *time.Time `json:"date_debut"`
	Organism  *string    `json:"organisme"`
	SiteName  *string    `json:"nom_site"`
	SiteCode  *string    `json:"code_site"`
	Pollutant *string    `json:"polluant"`
	Value     *float64   `json:"valeur"`
	Unit      *string    `json:"unite_mesure"`
	Longitude *float64   `json:"longitude"`
	Latitude  *float64   `json:"latitude"`
}

// EpisodeDetail is the subset of an episode carried by a correspondence.
type EpisodeDetail struct {
	Pollutant *string `json:"polluant"`
	State     *string `json:"etat"`
	Level     *string `json:"niveau"`
}

// Correspondence pairs one pollution index with the episodes that started
// within the match window around its measurement date. Never persisted.
type Correspondence struct {
	IndexID         int64           `json:"pg_id"`
	ZoneCode        *string         `json:"pg_zone"`
	MeasuredAt      *time.Time      `json:"pg_date"`
	Quality         *string         `json:"pg_qualite"`
	MatchedEpisodes int             `json:"episodes_associes"`
	Episodes        []EpisodeDetail `json:"episodes_details"`
}
