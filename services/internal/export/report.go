package export

import (
	"time"

	"github.com/qualiteair/hybride/services/internal/models"
	"github.com/qualiteair/hybride/services/internal/stats"
)

// RunConfig echoes the filters a report was built with.
type RunConfig struct {
	Zone       string     `json:"zone_filter"`
	ZoneLabel  string     `json:"zone_label,omitempty"`
	DateFrom   *time.Time `json:"date_from"`
	DateTo     *time.Time `json:"date_to"`
	Pollutants []string   `json:"pollutants"`
}

// RawData holds per-source samples.
type RawData struct {
	Relational    []models.PollutionIndex `json:"relational_sample"`
	Episodes      []models.Episode        `json:"episodes_sample"`
	DailyAverages []models.DailyAverage   `json:"daily_averages_sample"`
}

// Report is the document produced by one reconciliation run.
type Report struct {
	Timestamp       time.Time               `json:"timestamp"`
	RunID           string                  `json:"run_id"`
	Config          RunConfig               `json:"config"`
	Statistics      stats.Sources           `json:"statistics"`
	Correspondences []models.Correspondence `json:"correspondences"`
	RawData         RawData                 `json:"raw_data"`
}

// Sample returns at most n leading elements of s, never nil.
func Sample[T any](s []T, n int) []T {
	if n > len(s) {
		n = len(s)
	}
	if n < 0 {
		n = 0
	}
	out := make([]T, n)
	copy(out, s[:n])
	return out
}
