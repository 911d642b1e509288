// Package stats computes the per-source summaries carried by a report.
//
// Means ignore nil values and are nil when nothing was measured. A nil mean
// means "no data", which is not the same as a measured zero.
package stats

import (
	"time"

	"github.com/qualiteair/hybride/services/internal/models"
	"github.com/qualiteair/hybride/services/internal/utils"
)

type DateRange struct {
	Min *time.Time `json:"min"`
	Max *time.Time `json:"max"`
}

type PollutantMeans struct {
	NO2  *float64 `json:"no2"`
	O3   *float64 `json:"o3"`
	PM10 *float64 `json:"pm10"`
	PM25 *float64 `json:"pm25"`
	SO2  *float64 `json:"so2"`
}

// Relational summarizes pollution index records.
type Relational struct {
	Count         int            `json:"count"`
	DateRange     DateRange      `json:"date_range"`
	DistinctZones int            `json:"distinct_zones"`
	Means         PollutantMeans `json:"pollutant_means"`
}

// Episodes summarizes flattened episode documents.
type Episodes struct {
	Count             int            `json:"count"`
	States            map[string]int `json:"states"`
	Pollutants        map[string]int `json:"pollutants"`
	Levels            map[string]int `json:"levels"`
	EndBeforeStart    int            `json:"end_before_start"`
	Malformed         int            `json:"malformed"`
	MalformedGeometry int            `json:"malformed_geometry"`
}

// Exceedance counts values at or above each threshold.
type Exceedance struct {
	Information int `json:"information"`
	Alert       int `json:"alert"`
}

// DailyAverages summarizes flattened daily average documents.
type DailyAverages struct {
	Count       int                   `json:"count"`
	Organisms   map[string]int        `json:"organisms"`
	Pollutants  map[string]int        `json:"pollutants"`
	Regions     map[string]int        `json:"regions"`
	MeanValue   *float64              `json:"mean_value"`
	Exceedances map[string]Exceedance `json:"exceedances"`
	Malformed   int                   `json:"malformed"`
}

// Sources groups the three summaries.
type Sources struct {
	Relational    Relational    `json:"relational"`
	Episodes      Episodes      `json:"episodes"`
	DailyAverages DailyAverages `json:"daily_averages"`
}

// Mean returns the arithmetic mean of the non-nil values, or nil.
func Mean(values []*float64) *float64 {
	var sum float64
	n := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}

// Frequencies counts occurrences of each non-nil value.
func Frequencies(values []*string) map[string]int {
	out := make(map[string]int)
	for _, v := range values {
		if v != nil {
			out[*v]++
		}
	}
	return out
}

// ForRelational summarizes index records.
func ForRelational(rows []models.PollutionIndex) Relational {
	out := Relational{Count: len(rows)}

	zones := make(map[string]struct{})
	no2 := make([]*float64, 0, len(rows))
	o3 := make([]*float64, 0, len(rows))
	pm10 := make([]*float64, 0, len(rows))
	pm25 := make([]*float64, 0, len(rows))
	so2 := make([]*float64, 0, len(rows))

	for _, r := range rows {
		if d := r.MeasuredAt; d != nil {
			if out.DateRange.Min == nil || d.Before(*out.DateRange.Min) {
				out.DateRange.Min = d
			}
			if out.DateRange.Max == nil || d.After(*out.DateRange.Max) {
				out.DateRange.Max = d
			}
		}
		if r.ZoneCode != nil {
			zones[*r.ZoneCode] = struct{}{}
		}
		no2 = append(no2, r.NO2)
		o3 = append(o3, r.O3)
		pm10 = append(pm10, r.PM10)
		pm25 = append(pm25, r.PM25)
		so2 = append(so2, r.SO2)
	}

	out.DistinctZones = len(zones)
	out.Means = PollutantMeans{
		NO2:  Mean(no2),
		O3:   Mean(o3),
		PM10: Mean(pm10),
		PM25: Mean(pm25),
		SO2:  Mean(so2),
	}
	return out
}

// ForEpisodes summarizes flattened episodes.
func ForEpisodes(eps []utils.Flattened[models.Episode]) Episodes {
	out := Episodes{Count: len(eps)}

	states := make([]*string, 0, len(eps))
	pollutants := make([]*string, 0, len(eps))
	levels := make([]*string, 0, len(eps))

	for _, f := range eps {
		e := f.Record
		states = append(states, e.State)
		pollutants = append(pollutants, e.Pollutant)
		levels = append(levels, e.Level)

		if e.StartDate != nil && e.EndDate != nil && e.EndDate.Before(*e.StartDate) {
			out.EndBeforeStart++
		}
		if f.Malformed() {
			out.Malformed++
		}
		for _, w := range f.Warnings {
			if w == utils.WarnMalformedGeometry {
				out.MalformedGeometry++
				break
			}
		}
	}

	out.States = Frequencies(states)
	out.Pollutants = Frequencies(pollutants)
	out.Levels = Frequencies(levels)
	return out
}

// ForDailyAverages summarizes flattened daily averages.
func ForDailyAverages(avgs []utils.Flattened[models.DailyAverage]) DailyAverages {
	out := DailyAverages{
		Count:       len(avgs),
		Regions:     make(map[string]int),
		Exceedances: make(map[string]Exceedance),
	}

	organisms := make([]*string, 0, len(avgs))
	pollutants := make([]*string, 0, len(avgs))
	values := make([]*float64, 0, len(avgs))

	for _, f := range avgs {
		a := f.Record
		organisms = append(organisms, a.Organism)
		pollutants = append(pollutants, a.Pollutant)
		values = append(values, a.Value)

		if f.Malformed() {
			out.Malformed++
		}
		if a.Organism != nil {
			if region := models.RegionForOrganism(*a.Organism); region != "" {
				out.Regions[region]++
			}
		}
		if a.Pollutant == nil || a.Value == nil {
			continue
		}
		th, ok := models.ThresholdFor(*a.Pollutant)
		if !ok {
			continue
		}
		code := models.NormalizePollutant(*a.Pollutant)
		ex := out.Exceedances[code]
		if *a.Value >= th.Information {
			ex.Information++
		}
		if *a.Value >= th.Alert {
			ex.Alert++
		}
		out.Exceedances[code] = ex
	}

	out.Organisms = Frequencies(organisms)
	out.Pollutants = Frequencies(pollutants)
	out.MeanValue = Mean(values)
	return out
}
