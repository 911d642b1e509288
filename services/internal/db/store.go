package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qualiteair/hybride/services/internal/models"
	"github.com/qualiteair/hybride/services/internal/utils"
)

// IndexTable is the consolidated pollution index table.
const IndexTable = "indices_qualite_air_consolides"

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store wraps read access to the relational store.
type Store struct {
	pool   *pgxpool.Pool
	q      querier
	hasSO2 bool
}

// New creates a Store backed by a pgx pool and checks that the server
// answers before returning.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{pool: pool, q: pool}
	if s.hasSO2, err = s.columnExists(ctx, IndexTable, "so2"); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const columnExistsSQL = `
    SELECT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = $1 AND column_name = $2
    )
`

func (s *Store) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.q.Query(ctx, columnExistsSQL, table, column)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var exists bool
	if rows.Next() {
		if err := rows.Scan(&exists); err != nil {
			return false, err
		}
	}
	return exists, rows.Err()
}

// IndexQuery holds filters for retrieving pollution indices. Pollutants are
// fixed columns in this table and cannot be filtered by code.
type IndexQuery struct {
	Zone     string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}

// Params renders the filters for audit entries.
func (q IndexQuery) Params() map[string]any {
	p := map[string]any{"zone": q.Zone, "limit": q.Limit}
	if q.DateFrom != nil {
		p["date_from"] = q.DateFrom.Format(utils.ISODate)
	}
	if q.DateTo != nil {
		p["date_to"] = q.DateTo.Format(utils.ISODate)
	}
	return p
}

const indexSelectBase = `
    SELECT id::bigint, aasqa, no2::double precision, o3::double precision,
           pm10::double precision, pm25::double precision, %s AS so2,
           date_prise_mesure::date, qualite_air, code_zone::text, zone, fichier_source
    FROM indices_qualite_air_consolides
    WHERE 1=1
`

func buildIndexQuery(q IndexQuery, withSO2 bool) (string, []any) {
	so2 := "NULL::double precision"
	if withSO2 {
		so2 = "so2::double precision"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(indexSelectBase, so2))

	args := []any{}
	next := func() string { return "$" + strconv.Itoa(len(args)) }

	if q.Zone != "" {
		if utils.IsPrefixZone(q.Zone) {
			args = append(args, utils.EscapeLike(q.Zone)+"%")
			sb.WriteString("    AND code_zone::text LIKE " + next() + ` ESCAPE '\'` + "\n")
		} else {
			args = append(args, q.Zone)
			sb.WriteString("    AND code_zone::text = " + next() + "\n")
		}
	}
	if q.DateFrom != nil {
		args = append(args, *q.DateFrom)
		sb.WriteString("    AND date_prise_mesure::date >= " + next() + "\n")
	}
	if q.DateTo != nil {
		args = append(args, *q.DateTo)
		sb.WriteString("    AND date_prise_mesure::date <= " + next() + "\n")
	}

	sb.WriteString("    ORDER BY date_prise_mesure::date DESC NULLS LAST, id")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT " + next())
	}
	return sb.String(), args
}

// FetchIndices returns pollution indices matching the query, most recent
// measurement first, never more than q.Limit rows when a limit is set.
func (s *Store) FetchIndices(ctx context.Context, q IndexQuery) ([]models.PollutionIndex, error) {
	sql, args := buildIndexQuery(q, s.hasSO2)

	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.PollutionIndex, 0)
	for rows.Next() {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		var rec models.PollutionIndex
		var zoneCode *string
		if err := rows.Scan(
			&rec.ID,
			&rec.AASQA,
			&rec.NO2,
			&rec.O3,
			&rec.PM10,
			&rec.PM25,
			&rec.SO2,
			&rec.MeasuredAt,
			&rec.Quality,
			&zoneCode,
			&rec.ZoneName,
			&rec.SourceFile,
		); err != nil {
			return nil, err
		}
		rec.ZoneCode = utils.NormalizeZoneCode(zoneCode)
		if !utils.MatchZone(q.Zone, rec.ZoneCode) {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
