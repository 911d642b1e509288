// Package match pairs pollution indices with episodes that started close to
// their measurement date.
package match

import (
	"time"

	"github.com/qualiteair/hybride/services/internal/models"
	"github.com/qualiteair/hybride/services/internal/utils"
)

// Options tune the matcher. Zero caps fall back to the defaults below.
// Window is always used as given: zero only matches the same instant.
type Options struct {
	// Window is the half-width of the closed date window.
	Window time.Duration
	// MaxIndices is how many leading index records are examined.
	MaxIndices int
	// MaxCorrespondences caps the returned entries.
	MaxCorrespondences int
	// IncludeEmpty emits entries with zero matched episodes.
	IncludeEmpty bool
}

const (
	DefaultWindow             = 24 * time.Hour
	DefaultMaxIndices         = 100
	DefaultMaxCorrespondences = 50
)

// DefaultOptions returns the matcher settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Window:             DefaultWindow,
		MaxIndices:         DefaultMaxIndices,
		MaxCorrespondences: DefaultMaxCorrespondences,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxIndices <= 0 {
		o.MaxIndices = DefaultMaxIndices
	}
	if o.MaxCorrespondences <= 0 {
		o.MaxCorrespondences = DefaultMaxCorrespondences
	}
	return o
}

// Correspondences scans every episode for each of the first MaxIndices
// index records and keeps those whose start date lies within Window of the
// measurement date. Episodes keep their input order. Records or episodes
// without a date never match.
func Correspondences(indices []models.PollutionIndex, episodes []models.Episode, opts Options) []models.Correspondence {
	opts = opts.withDefaults()

	if len(episodes) == 0 && !opts.IncludeEmpty {
		return []models.Correspondence{}
	}

	n := len(indices)
	if n > opts.MaxIndices {
		n = opts.MaxIndices
	}

	out := make([]models.Correspondence, 0)
	for _, idx := range indices[:n] {
		if len(out) >= opts.MaxCorrespondences {
			break
		}
		details := matchEpisodes(idx, episodes, opts.Window)
		if len(details) == 0 && !opts.IncludeEmpty {
			continue
		}
		out = append(out, models.Correspondence{
			IndexID:         idx.ID,
			ZoneCode:        idx.ZoneCode,
			MeasuredAt:      idx.MeasuredAt,
			Quality:         idx.Quality,
			MatchedEpisodes: len(details),
			Episodes:        details,
		})
	}
	return out
}

func matchEpisodes(idx models.PollutionIndex, episodes []models.Episode, window time.Duration) []models.EpisodeDetail {
	details := make([]models.EpisodeDetail, 0)
	if idx.MeasuredAt == nil {
		return details
	}
	for _, ep := range episodes {
		if ep.StartDate == nil || !utils.WithinWindow(*ep.StartDate, *idx.MeasuredAt, window) {
			continue
		}
		details = append(details, models.EpisodeDetail{
			Pollutant: ep.Pollutant,
			State:     ep.State,
			Level:     ep.Level,
		})
	}
	return details
}
