package export

import (
	"strconv"
	"time"

	"github.com/qualiteair/hybride/services/internal/models"
)

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.DateTime)
}

// cell keeps numbers numeric in the workbook and blanks out nulls.
func cell(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

func correspondenceHeader(withDetails bool) []string {
	h := []string{"pg_id", "pg_zone", "pg_date", "pg_qualite", "episodes_associes"}
	if withDetails {
		h = append(h, "episodes_details")
	}
	return h
}

func correspondenceCells(c models.Correspondence) []string {
	return []string{
		strconv.FormatInt(c.IndexID, 10),
		str(c.ZoneCode),
		date(c.MeasuredAt),
		str(c.Quality),
		strconv.Itoa(c.MatchedEpisodes),
	}
}

func header(cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}

func correspondenceSheet(r *Report) [][]any {
	rows := [][]any{header(correspondenceHeader(false))}
	for _, c := range r.Correspondences {
		rows = append(rows, []any{c.IndexID, str(c.ZoneCode), date(c.MeasuredAt), str(c.Quality), c.MatchedEpisodes})
	}
	return rows
}

func relationalSheet(r *Report) [][]any {
	rows := [][]any{header([]string{
		"id", "aasqa", "no2", "o3", "pm10", "pm25", "so2",
		"date_prise_mesure", "qualite_air", "code_zone", "zone", "fichier_source",
	})}
	for _, p := range r.RawData.Relational {
		rows = append(rows, []any{
			p.ID, str(p.AASQA), cell(p.NO2), cell(p.O3), cell(p.PM10), cell(p.PM25), cell(p.SO2),
			date(p.MeasuredAt), str(p.Quality), str(p.ZoneCode), str(p.ZoneName), str(p.SourceFile),
		})
	}
	return rows
}

func episodeSheet(r *Report) [][]any {
	rows := [][]any{header([]string{
		"episode_id", "code_insee", "polluant", "date_debut", "date_fin",
		"etat", "niveau", "valeur_declenchement", "longitude", "latitude",
	})}
	for _, e := range r.RawData.Episodes {
		rows = append(rows, []any{
			e.ID, str(e.InseeCode), str(e.Pollutant), date(e.StartDate), date(e.EndDate),
			str(e.State), str(e.Level), cell(e.TriggerValue), cell(e.Longitude), cell(e.Latitude),
		})
	}
	return rows
}

func dailyAverageSheet(r *Report) [][]any {
	rows := [][]any{header([]string{
		"moyenne_id", "date_debut", "organisme", "nom_site", "code_site",
		"polluant", "valeur", "unite_mesure", "longitude", "latitude",
	})}
	for _, a := range r.RawData.DailyAverages {
		rows = append(rows, []any{
			a.ID, date(a.StartDate), str(a.Organism), str(a.SiteName), str(a.SiteCode),
			str(a.Pollutant), cell(a.Value), str(a.Unit), cell(a.Longitude), cell(a.Latitude),
		})
	}
	return rows
}
