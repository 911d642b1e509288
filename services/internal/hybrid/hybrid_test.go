package hybrid

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qualiteair/hybride/services/internal/config"
	"github.com/qualiteair/hybride/services/internal/db"
	"github.com/qualiteair/hybride/services/internal/docstore"
	"github.com/qualiteair/hybride/services/internal/models"
	"github.com/qualiteair/hybride/services/internal/utils"
)

type fakeIndices struct {
	rows  []models.PollutionIndex
	err   error
	calls []db.IndexQuery
}

func (f *fakeIndices) FetchIndices(_ context.Context, q db.IndexQuery) ([]models.PollutionIndex, error) {
	f.calls = append(f.calls, q)
	if f.err != nil {
		return nil, f.err
	}
	if q.Limit > 0 && len(f.rows) > q.Limit {
		return f.rows[:q.Limit], nil
	}
	return f.rows, nil
}

type fakeDocs struct {
	episodes    []utils.Flattened[models.Episode]
	averages    []utils.Flattened[models.DailyAverage]
	episodesErr error
	averagesErr error
	calls       []string
}

func (f *fakeDocs) FetchEpisodes(_ context.Context, q docstore.Query) ([]utils.Flattened[models.Episode], error) {
	f.calls = append(f.calls, "episodes")
	if f.episodesErr != nil {
		return nil, f.episodesErr
	}
	if q.Limit > 0 && int64(len(f.episodes)) > q.Limit {
		return f.episodes[:q.Limit], nil
	}
	return f.episodes, nil
}

func (f *fakeDocs) FetchDailyAverages(_ context.Context, q docstore.Query) ([]utils.Flattened[models.DailyAverage], error) {
	f.calls = append(f.calls, "averages")
	if f.averagesErr != nil {
		return nil, f.averagesErr
	}
	return f.averages, nil
}

func sp(v string) *string   { return &v }
func fp(v float64) *float64 { return &v }

func day(d int) *time.Time {
	t := time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
	return &t
}

var fixedNow = time.Date(2024, 6, 15, 8, 30, 0, 0, time.UTC)

func fixtures() (*fakeIndices, *fakeDocs) {
	idx := &fakeIndices{rows: []models.PollutionIndex{
		{ID: 1, ZoneCode: sp("75056"), Quality: sp("Moyen"), NO2: fp(20), MeasuredAt: day(14)},
		{ID: 2, ZoneCode: sp("75056"), Quality: sp("Bon"), NO2: fp(40), MeasuredAt: day(1)},
		{ID: 3, ZoneCode: sp("75056"), Quality: sp("Bon"), MeasuredAt: day(2)},
	}}
	docs := &fakeDocs{
		episodes: []utils.Flattened[models.Episode]{
			{Record: models.Episode{ID: "a", InseeCode: sp("75056"), Pollutant: sp("NO2"), State: sp("actif"), Level: sp("1"), StartDate: day(13)}},
			{Record: models.Episode{ID: "b", InseeCode: sp("75056"), Pollutant: sp("O3"), State: sp("termine"), Level: sp("2"), StartDate: day(20)}},
		},
		averages: []utils.Flattened[models.DailyAverage]{
			{Record: models.DailyAverage{ID: "m1", Organism: sp("AIRPARIF"), Pollutant: sp("PM10"), Value: fp(5)}},
		},
	}
	return idx, docs
}

func newTestRetriever(t *testing.T, cfg config.Config, idx IndexReader, docs DocumentReader, logs *bytes.Buffer) *Retriever {
	t.Helper()
	var logger *slog.Logger
	if logs != nil {
		logger = slog.New(slog.NewJSONHandler(logs, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	}
	r := New(cfg, idx, docs, logger)
	r.now = func() time.Time { return fixedNow }
	n := 0
	r.newID = func() string { n++; return fmt.Sprintf("run-%d", n) }
	return r
}

func TestBuild(t *testing.T) {
	idx, docs := fixtures()
	cfg := config.Default()
	cfg.Filters.Zone = "75056"
	cfg.Limits.SampleSize = 2

	rep, err := newTestRetriever(t, cfg, idx, docs, nil).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if rep.RunID != "run-1" || !rep.Timestamp.Equal(fixedNow) {
		t.Fatalf("header: %s %s", rep.RunID, rep.Timestamp)
	}
	if rep.Config.Zone != "75056" || rep.Config.ZoneLabel != "Île-de-France" {
		t.Fatalf("config: %+v", rep.Config)
	}
	if len(rep.Correspondences) != 1 {
		t.Fatalf("correspondences: %+v", rep.Correspondences)
	}
	c := rep.Correspondences[0]
	if c.IndexID != 1 || c.MatchedEpisodes != 1 || *c.Episodes[0].Pollutant != "NO2" {
		t.Fatalf("correspondence: %+v", c)
	}

	st := rep.Statistics
	if st.Relational.Count != 3 || st.Episodes.Count != 2 || st.DailyAverages.Count != 1 {
		t.Fatalf("counts: %+v", st)
	}
	if *st.Relational.Means.NO2 != 30 || *st.DailyAverages.MeanValue != 5 {
		t.Fatalf("means: %v %v", *st.Relational.Means.NO2, *st.DailyAverages.MeanValue)
	}
	if len(rep.RawData.Relational) != 2 || len(rep.RawData.Episodes) != 2 || len(rep.RawData.DailyAverages) != 1 {
		t.Fatalf("samples: %+v", rep.RawData)
	}

	if len(idx.calls) != 1 || idx.calls[0].Limit != cfg.Limits.MaxRelational || idx.calls[0].Zone != "75056" {
		t.Fatalf("relational query: %+v", idx.calls)
	}
	if len(docs.calls) != 2 || docs.calls[0] != "episodes" || docs.calls[1] != "averages" {
		t.Fatalf("document calls: %v", docs.calls)
	}
}

func TestBuild_IncludeEmpty(t *testing.T) {
	idx, docs := fixtures()
	cfg := config.Default()
	cfg.Limits.EmptyMatches = config.EmptyMatchesInclude

	rep, err := newTestRetriever(t, cfg, idx, docs, nil).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Correspondences) != 3 || rep.Correspondences[1].MatchedEpisodes != 0 {
		t.Fatalf("correspondences: %+v", rep.Correspondences)
	}
}

func TestBuild_FailFast(t *testing.T) {
	idx, docs := fixtures()
	idx.err = &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}

	rep, err := newTestRetriever(t, config.Default(), idx, docs, nil).Build(context.Background())
	if rep != nil {
		t.Fatal("no report on read failure")
	}
	if !errors.Is(err, ErrQuery) || errors.Is(err, ErrConnectivity) {
		t.Fatalf("kind: %v", err)
	}
	var herr *Error
	if !errors.As(err, &herr) || herr.Store != StoreRelational || herr.Step != StepFetchIndices {
		t.Fatalf("error context: %+v", herr)
	}
	if len(docs.calls) != 0 {
		t.Fatalf("document store must not be read after a relational failure: %v", docs.calls)
	}
}

func TestBuild_DocumentConnectivity(t *testing.T) {
	idx, docs := fixtures()
	docs.averagesErr = &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}

	_, err := newTestRetriever(t, config.Default(), idx, docs, nil).Build(context.Background())
	if !errors.Is(err, ErrConnectivity) {
		t.Fatalf("kind: %v", err)
	}
	var herr *Error
	if !errors.As(err, &herr) || herr.Store != StoreDocument || herr.Step != StepFetchDailyAverages {
		t.Fatalf("error context: %+v", herr)
	}
}

func TestRun(t *testing.T) {
	idx, docs := fixtures()
	cfg := config.Default()
	cfg.Output.Path = filepath.Join(t.TempDir(), "report.json")

	var logs bytes.Buffer
	path, rep, err := newTestRetriever(t, cfg, idx, docs, &logs).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if path != cfg.Output.Path || rep == nil {
		t.Fatalf("path %s report %v", path, rep)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["run_id"] != "run-1" {
		t.Fatalf("run id: %v", doc["run_id"])
	}

	actions := auditActions(t, &logs)
	want := []string{StepFetchIndices, StepFetchEpisodes, StepFetchDailyAverages, "run"}
	if fmt.Sprint(actions) != fmt.Sprint(want) {
		t.Fatalf("audit actions: got %v, want %v", actions, want)
	}
}

func auditActions(t *testing.T, logs *bytes.Buffer) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(logs)
	for sc.Scan() {
		var line struct {
			Msg    string `json:"msg"`
			Action string `json:"action"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatal(err)
		}
		if line.Msg == "audit" || line.Msg == "audit_error" {
			out = append(out, line.Action)
		}
	}
	return out
}

func TestRun_ExportFailureKeepsReport(t *testing.T) {
	idx, docs := fixtures()
	cfg := config.Default()
	cfg.Output.Path = filepath.Join(t.TempDir(), "missing", "report.json")

	path, rep, err := newTestRetriever(t, cfg, idx, docs, nil).Run(context.Background())
	if !errors.Is(err, ErrExport) {
		t.Fatalf("kind: %v", err)
	}
	if path != "" {
		t.Fatalf("no path on failure, got %s", path)
	}
	if rep == nil || rep.Statistics.Relational.Count != 3 {
		t.Fatal("computed report must be returned with an export failure")
	}
}

func TestSampleAndCodes(t *testing.T) {
	idx, docs := fixtures()
	r := newTestRetriever(t, config.Default(), idx, docs, nil)

	s, err := r.Sample(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Relational == nil || s.Relational.ID != 1 || s.Episode == nil || s.Episode.ID != "a" {
		t.Fatalf("sample: %+v", s)
	}
	if idx.calls[0].Limit != 1 {
		t.Fatalf("sample must fetch a single record, limit %d", idx.calls[0].Limit)
	}

	c, err := r.Codes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if *c.ZoneCode != "75056" || *c.NO2 != 20 || *c.InseeCode != "75056" || *c.Pollutant != "NO2" {
		t.Fatalf("codes: %+v", c)
	}

	empty := newTestRetriever(t, config.Default(), &fakeIndices{}, &fakeDocs{}, nil)
	s, err = empty.Sample(context.Background())
	if err != nil || s.Relational != nil || s.Episode != nil {
		t.Fatalf("empty sample: %+v %v", s, err)
	}
}

func TestWithFilters(t *testing.T) {
	idx, docs := fixtures()
	base := newTestRetriever(t, config.Default(), idx, docs, nil)
	base.closers = []func(){func() { t.Fatal("copy must not close shared connections") }}

	r := base.WithFilters(config.Filters{Zone: "75"})
	if _, err := r.Build(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.Close()
	if idx.calls[0].Zone != "75" || base.Config().Filters.Zone != "" {
		t.Fatalf("filters leaked: %+v / %+v", idx.calls[0], base.Config().Filters)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"pg error", &pgconn.PgError{Code: "42703"}, KindQuery},
		{"wrapped pg error", fmt.Errorf("scan: %w", &pgconn.PgError{}), KindQuery},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindConnectivity},
		{"deadline", context.DeadlineExceeded, KindConnectivity},
		{"other", errors.New("cannot decode"), KindQuery},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindQuery, Store: StoreDocument, Step: StepFetchEpisodes, Filters: map[string]any{"zone": "75"}, Err: errors.New("bad filter")}
	want := "query failure: fetch_episodes on mongodb (filters map[zone:75]): bad filter"
	if err.Error() != want {
		t.Fatalf("got %q", err.Error())
	}
}
