// Package hybrid cross-references the relational pollution indices with the
// episode and daily-average documents, and exports the combined report.
//
// A run is single-shot and read-only: one relational call, then the two
// document calls, then in-memory matching and aggregation. Any read failure
// ends the run. Nothing is retried.
package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/qualiteair/hybride/services/internal/audit"
	"github.com/qualiteair/hybride/services/internal/config"
	"github.com/qualiteair/hybride/services/internal/db"
	"github.com/qualiteair/hybride/services/internal/docstore"
	"github.com/qualiteair/hybride/services/internal/export"
	"github.com/qualiteair/hybride/services/internal/match"
	"github.com/qualiteair/hybride/services/internal/models"
	"github.com/qualiteair/hybride/services/internal/stats"
	"github.com/qualiteair/hybride/services/internal/utils"
)

// Store names used in errors and audit entries.
const (
	StoreRelational = "postgresql"
	StoreDocument   = "mongodb"
)

// Steps of a run.
const (
	StepConnect            = "connect"
	StepFetchIndices       = "fetch_indices"
	StepFetchEpisodes      = "fetch_episodes"
	StepFetchDailyAverages = "fetch_daily_averages"
	StepExport             = "export"
)

// IndexReader reads pollution index records.
type IndexReader interface {
	FetchIndices(ctx context.Context, q db.IndexQuery) ([]models.PollutionIndex, error)
}

// DocumentReader reads episode and daily-average documents.
type DocumentReader interface {
	FetchEpisodes(ctx context.Context, q docstore.Query) ([]utils.Flattened[models.Episode], error)
	FetchDailyAverages(ctx context.Context, q docstore.Query) ([]utils.Flattened[models.DailyAverage], error)
}

// Retriever runs reconciliations against one pair of stores.
type Retriever struct {
	cfg     config.Config
	indices IndexReader
	docs    DocumentReader
	log     *slog.Logger
	audit   *audit.Logger
	closers []func()

	now   func() time.Time
	newID func() string
}

// New builds a Retriever over already-opened readers.
func New(cfg config.Config, indices IndexReader, docs DocumentReader, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		cfg:     cfg,
		indices: indices,
		docs:    docs,
		log:     logger.With("component", "hybrid"),
		audit:   audit.New(logger),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Open connects to the relational store, then the document store. When the
// second connection fails the first one is released before returning.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Retriever, error) {
	pgCtx, cancel := connectContext(ctx, cfg.ConnectTimeout)
	store, err := db.New(pgCtx, cfg.Postgres.ConnString())
	cancel()
	if err != nil {
		return nil, &Error{Kind: KindConnectivity, Store: StoreRelational, Step: StepConnect, Err: err}
	}

	client, err := docstore.Connect(ctx, cfg.Mongo.URI, cfg.ConnectTimeout)
	if err != nil {
		store.Close()
		return nil, &Error{Kind: KindConnectivity, Store: StoreDocument, Step: StepConnect, Err: err}
	}

	reader := docstore.NewReader(client.Database(cfg.Mongo.Database), cfg.Mongo.EpisodesCollection, cfg.Mongo.AveragesCollection)
	r := New(cfg, store, reader, logger)
	r.closers = []func(){
		func() {
			dctx, cancel := connectContext(context.Background(), cfg.ConnectTimeout)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				r.log.Warn("mongo disconnect failed", "error", err)
			}
		},
		store.Close,
	}
	r.log.Info("stores connected",
		"mongo_database", cfg.Mongo.Database,
		"episodes", reader.EpisodesCollection(),
		"daily_averages", reader.AveragesCollection())
	return r, nil
}

func connectContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Close releases both store connections.
func (r *Retriever) Close() {
	for _, c := range r.closers {
		c()
	}
	r.closers = nil
}

// Config returns the configuration the Retriever runs with.
func (r *Retriever) Config() config.Config { return r.cfg }

// WithFilters returns a Retriever sharing the same connections but running
// with different filters. The copy must not be closed.
func (r *Retriever) WithFilters(f config.Filters) *Retriever {
	cp := *r
	cp.cfg.Filters = f
	cp.closers = nil
	return &cp
}

func (r *Retriever) indexQuery(limit int) db.IndexQuery {
	f := r.cfg.Filters
	return db.IndexQuery{Zone: f.Zone, DateFrom: f.DateFrom, DateTo: f.DateTo, Limit: limit}
}

func (r *Retriever) documentQuery(limit int) docstore.Query {
	f := r.cfg.Filters
	return docstore.Query{Zone: f.Zone, DateFrom: f.DateFrom, Pollutants: f.Pollutants, Limit: int64(limit)}
}

func (r *Retriever) fetchIndices(ctx context.Context, runID string, limit int) ([]models.PollutionIndex, error) {
	q := r.indexQuery(limit)
	start := time.Now()
	rows, err := r.indices.FetchIndices(ctx, q)
	r.audit.Log(ctx, audit.Entry{Action: StepFetchIndices, RunID: runID, Params: q.Params(), Records: len(rows), Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, &Error{Kind: classify(err), Store: StoreRelational, Step: StepFetchIndices, Filters: q.Params(), Err: err}
	}
	return rows, nil
}

func (r *Retriever) fetchEpisodes(ctx context.Context, runID string, limit int) ([]utils.Flattened[models.Episode], error) {
	q := r.documentQuery(limit)
	start := time.Now()
	docs, err := r.docs.FetchEpisodes(ctx, q)
	r.audit.Log(ctx, audit.Entry{Action: StepFetchEpisodes, RunID: runID, Params: q.Params(), Records: len(docs), Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, &Error{Kind: classify(err), Store: StoreDocument, Step: StepFetchEpisodes, Filters: q.Params(), Err: err}
	}
	return docs, nil
}

func (r *Retriever) fetchDailyAverages(ctx context.Context, runID string, limit int) ([]utils.Flattened[models.DailyAverage], error) {
	q := r.documentQuery(limit)
	start := time.Now()
	docs, err := r.docs.FetchDailyAverages(ctx, q)
	r.audit.Log(ctx, audit.Entry{Action: StepFetchDailyAverages, RunID: runID, Params: q.Params(), Records: len(docs), Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, &Error{Kind: classify(err), Store: StoreDocument, Step: StepFetchDailyAverages, Filters: q.Params(), Err: err}
	}
	return docs, nil
}

func (r *Retriever) params() map[string]any {
	p := r.indexQuery(0).Params()
	delete(p, "limit")
	if len(r.cfg.Filters.Pollutants) > 0 {
		p["pollutants"] = r.cfg.Filters.Pollutants
	}
	return p
}

// Build fetches all three sources and assembles the report without
// exporting it.
func (r *Retriever) Build(ctx context.Context) (*export.Report, error) {
	runID := r.newID()
	start := time.Now()
	rep, err := r.build(ctx, runID)
	r.audit.Log(ctx, audit.Entry{Action: "build", RunID: runID, Params: r.params(), Records: corrCount(rep), Duration: time.Since(start), Err: err})
	return rep, err
}

// Run builds the report and writes it in the configured format. It returns
// the path written. On an export failure the computed report is returned
// along with the error.
func (r *Retriever) Run(ctx context.Context) (string, *export.Report, error) {
	runID := r.newID()
	start := time.Now()

	rep, err := r.build(ctx, runID)
	if err != nil {
		r.audit.Log(ctx, audit.Entry{Action: "run", RunID: runID, Params: r.params(), Duration: time.Since(start), Err: err})
		return "", nil, err
	}

	path, err := export.Write(r.cfg.Output.Format, r.cfg.Output.Path, rep, rep.Timestamp)
	if err != nil {
		err = &Error{Kind: KindExport, Step: StepExport, Filters: r.params(), Err: fmt.Errorf("write %s: %w", path, err)}
		r.audit.Log(ctx, audit.Entry{Action: "run", RunID: runID, Params: r.params(), Records: len(rep.Correspondences), Duration: time.Since(start), Err: err})
		return "", rep, err
	}

	r.audit.Log(ctx, audit.Entry{Action: "run", RunID: runID, Params: r.params(), Records: len(rep.Correspondences), Duration: time.Since(start)})
	r.log.Info("report exported", "run_id", runID, "path", path, "format", r.cfg.Output.Format, "correspondences", len(rep.Correspondences))
	return path, rep, nil
}

func corrCount(rep *export.Report) int {
	if rep == nil {
		return 0
	}
	return len(rep.Correspondences)
}

func (r *Retriever) build(ctx context.Context, runID string) (*export.Report, error) {
	lim := r.cfg.Limits

	indices, err := r.fetchIndices(ctx, runID, lim.MaxRelational)
	if err != nil {
		return nil, err
	}
	episodes, err := r.fetchEpisodes(ctx, runID, lim.MaxDocuments)
	if err != nil {
		return nil, err
	}
	averages, err := r.fetchDailyAverages(ctx, runID, lim.MaxDocuments)
	if err != nil {
		return nil, err
	}

	epRecords := utils.Records(episodes)
	corr := match.Correspondences(indices, epRecords, match.Options{
		Window:             lim.MatchWindow,
		MaxIndices:         lim.MaxMatched,
		MaxCorrespondences: lim.MaxCorrespondences,
		IncludeEmpty:       lim.EmptyMatches == config.EmptyMatchesInclude,
	})

	f := r.cfg.Filters
	rep := &export.Report{
		Timestamp: r.now(),
		RunID:     runID,
		Config: export.RunConfig{
			Zone:       f.Zone,
			ZoneLabel:  r.cfg.ZoneLabel(),
			DateFrom:   f.DateFrom,
			DateTo:     f.DateTo,
			Pollutants: f.Pollutants,
		},
		Statistics: stats.Sources{
			Relational:    stats.ForRelational(indices),
			Episodes:      stats.ForEpisodes(episodes),
			DailyAverages: stats.ForDailyAverages(averages),
		},
		Correspondences: corr,
		RawData: export.RawData{
			Relational:    export.Sample(indices, lim.SampleSize),
			Episodes:      export.Sample(epRecords, lim.SampleSize),
			DailyAverages: export.Sample(utils.Records(averages), lim.SampleSize),
		},
	}

	if n := rep.Statistics.Episodes.Malformed + rep.Statistics.DailyAverages.Malformed; n > 0 {
		r.log.Warn("malformed documents flattened with null fields", "run_id", runID, "count", n)
	}
	r.log.Info("reconciliation done", "run_id", runID,
		"indices", len(indices), "episodes", len(episodes), "daily_averages", len(averages),
		"correspondences", len(corr))
	return rep, nil
}

// Sample is the first record of the relational and episode sources.
type Sample struct {
	Relational *models.PollutionIndex `json:"relational"`
	Episode    *models.Episode        `json:"episode"`
}

// Sample fetches one record from each of the relational and episode sources.
func (r *Retriever) Sample(ctx context.Context) (*Sample, error) {
	runID := r.newID()
	indices, err := r.fetchIndices(ctx, runID, 1)
	if err != nil {
		return nil, err
	}
	episodes, err := r.fetchEpisodes(ctx, runID, 1)
	if err != nil {
		return nil, err
	}

	out := &Sample{}
	if len(indices) > 0 {
		out.Relational = &indices[0]
	}
	if len(episodes) > 0 {
		out.Episode = &episodes[0].Record
	}
	return out, nil
}

// Codes lists the identifying codes of the first record of each source.
type Codes struct {
	ZoneCode  *string  `json:"code_zone"`
	NO2       *float64 `json:"no2"`
	InseeCode *string  `json:"code_insee"`
	Pollutant *string  `json:"polluant"`
}

// Codes returns the zone code and NO2 value of the first relational record
// and the INSEE code and pollutant of the first episode.
func (r *Retriever) Codes(ctx context.Context) (*Codes, error) {
	s, err := r.Sample(ctx)
	if err != nil {
		return nil, err
	}
	out := &Codes{}
	if s.Relational != nil {
		out.ZoneCode = s.Relational.ZoneCode
		out.NO2 = s.Relational.NO2
	}
	if s.Episode != nil {
		out.InseeCode = s.Episode.InseeCode
		out.Pollutant = s.Episode.Pollutant
	}
	return out, nil
}
