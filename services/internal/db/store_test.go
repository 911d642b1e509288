package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRows replays canned rows. Each value must have the exact type of the
// scan destination, or be nil for a NULL.
type fakeRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.pos-1], nil }

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(row) != len(dest) {
		return fmt.Errorf("scan: %d values for %d destinations", len(row), len(dest))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if row[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		v := reflect.ValueOf(row[i])
		if target.Kind() == reflect.Pointer && v.Kind() != reflect.Pointer {
			p := reflect.New(v.Type())
			p.Elem().Set(v)
			v = p
		}
		target.Set(v)
	}
	return nil
}

type fakeQuerier struct {
	rows    *fakeRows
	err     error
	gotSQL  string
	gotArgs []any
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.gotSQL, f.gotArgs = sql, args
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func indexRow(id int64, zone string, day int) []any {
	date := time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC)
	return []any{id, "AIRPARIF", 20.0, 40.0, nil, 10.0, nil, date, "Moyen", zone, "Paris", "assqa_1.csv"}
}

func TestBuildIndexQuery(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		q        IndexQuery
		contains []string
		args     []any
	}{
		{
			name:     "exact zone",
			q:        IndexQuery{Zone: "75056", Limit: 10000},
			contains: []string{"code_zone::text = $1", "LIMIT $2"},
			args:     []any{"75056", 10000},
		},
		{
			name:     "prefix zone",
			q:        IndexQuery{Zone: "75", Limit: 10},
			contains: []string{"code_zone::text LIKE $1", "LIMIT $2"},
			args:     []any{"75%", 10},
		},
		{
			name:     "escaped prefix",
			q:        IndexQuery{Zone: "7_"},
			contains: []string{"LIKE $1"},
			args:     []any{`7\_%`},
		},
		{
			name:     "date range",
			q:        IndexQuery{DateFrom: &from, DateTo: &to, Limit: 5},
			contains: []string{"date_prise_mesure::date >= $1", "date_prise_mesure::date <= $2", "LIMIT $3"},
			args:     []any{from, to, 5},
		},
		{
			name:     "open lower bound",
			q:        IndexQuery{DateTo: &to},
			contains: []string{"date_prise_mesure::date <= $1"},
			args:     []any{to},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sql, args := buildIndexQuery(tc.q, false)
			for _, frag := range tc.contains {
				if !strings.Contains(sql, frag) {
					t.Errorf("sql missing %q:\n%s", frag, sql)
				}
			}
			if !reflect.DeepEqual(args, tc.args) {
				t.Errorf("args: got %v, want %v", args, tc.args)
			}
			if !strings.Contains(sql, "ORDER BY date_prise_mesure::date DESC") {
				t.Error("results must be ordered most recent first")
			}
		})
	}
}

func TestBuildIndexQuery_SO2(t *testing.T) {
	sql, _ := buildIndexQuery(IndexQuery{}, true)
	if !strings.Contains(sql, "so2::double precision AS so2") {
		t.Fatalf("so2 column not selected:\n%s", sql)
	}
	sql, _ = buildIndexQuery(IndexQuery{}, false)
	if !strings.Contains(sql, "NULL::double precision AS so2") {
		t.Fatalf("missing so2 placeholder:\n%s", sql)
	}
}

func TestFetchIndices(t *testing.T) {
	fq := &fakeQuerier{rows: &fakeRows{data: [][]any{
		indexRow(1, "75056", 14),
		indexRow(2, "75056", 13),
		indexRow(3, "75056", 12),
	}}}
	s := &Store{q: fq}

	got, err := s.FetchIndices(context.Background(), IndexQuery{Zone: "75056", Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	first := got[0]
	if first.ID != 1 || first.ZoneCode == nil || *first.ZoneCode != "75056" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if first.PM10 != nil {
		t.Fatal("NULL pm10 must scan as nil")
	}
	if first.NO2 == nil || *first.NO2 != 20 {
		t.Fatalf("no2: got %v", first.NO2)
	}
}

func TestFetchIndices_ZoneGuard(t *testing.T) {
	fq := &fakeQuerier{rows: &fakeRows{data: [][]any{
		indexRow(1, "75056", 14),
		indexRow(2, "75xyz", 14),
		indexRow(3, "69123", 14),
	}}}
	s := &Store{q: fq}

	got, err := s.FetchIndices(context.Background(), IndexQuery{Zone: "75"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestFetchIndices_Cap(t *testing.T) {
	var data [][]any
	for i := 0; i < 25; i++ {
		data = append(data, indexRow(int64(i), "69123", 1+i%28))
	}
	s := &Store{q: &fakeQuerier{rows: &fakeRows{data: data}}}

	got, err := s.FetchIndices(context.Background(), IndexQuery{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Fatalf("cap not enforced: got %d rows", len(got))
	}
}

func TestFetchIndices_Errors(t *testing.T) {
	boom := errors.New("relation does not exist")
	s := &Store{q: &fakeQuerier{err: boom}}
	if _, err := s.FetchIndices(context.Background(), IndexQuery{}); !errors.Is(err, boom) {
		t.Fatalf("query error: got %v", err)
	}

	s = &Store{q: &fakeQuerier{rows: &fakeRows{err: boom}}}
	if _, err := s.FetchIndices(context.Background(), IndexQuery{}); !errors.Is(err, boom) {
		t.Fatalf("rows error: got %v", err)
	}
}

func TestColumnExists(t *testing.T) {
	fq := &fakeQuerier{rows: &fakeRows{data: [][]any{{true}}}}
	s := &Store{q: fq}
	ok, err := s.columnExists(context.Background(), IndexTable, "so2")
	if err != nil || !ok {
		t.Fatalf("got %v, %v", ok, err)
	}
	if !reflect.DeepEqual(fq.gotArgs, []any{IndexTable, "so2"}) {
		t.Fatalf("args: %v", fq.gotArgs)
	}
}
