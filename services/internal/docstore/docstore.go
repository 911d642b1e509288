// Package docstore reads pollution episodes and daily averages from the
// document store and flattens them into row shape.
package docstore

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/qualiteair/hybride/services/internal/models"
	"github.com/qualiteair/hybride/services/internal/utils"
)

// Connect opens a client and pings the primary so connectivity problems
// surface before any read.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetServerSelectionTimeout(timeout).SetConnectTimeout(timeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// Reader fetches the two document collections.
type Reader struct {
	db       *mongo.Database
	episodes string
	averages string
}

// NewReader binds a reader to the given database and collection names.
func NewReader(db *mongo.Database, episodes, averages string) *Reader {
	return &Reader{db: db, episodes: episodes, averages: averages}
}

// Query holds document filters. Zone applies to episodes only.
type Query struct {
	Zone       string
	DateFrom   *time.Time
	Pollutants []string
	Limit      int64
}

// Params renders the filters for audit entries.
func (q Query) Params() map[string]any {
	p := map[string]any{"limit": q.Limit}
	if q.Zone != "" {
		p["zone"] = q.Zone
	}
	if q.DateFrom != nil {
		p["date_from"] = q.DateFrom.Format(utils.ISODate)
	}
	if len(q.Pollutants) > 0 {
		p["pollutants"] = q.Pollutants
	}
	return p
}

// sinceFilter matches dates stored either as ISO strings or as BSON
// datetimes, which sort separately in MongoDB.
func sinceFilter(field string, from time.Time) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{field: bson.M{"$gte": from.Format(utils.ISODate)}},
		bson.M{field: bson.M{"$gte": primitive.NewDateTimeFromTime(from)}},
	}}
}

func and(clauses []bson.M) bson.M {
	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	}
	arr := make(bson.A, len(clauses))
	for i, c := range clauses {
		arr[i] = c
	}
	return bson.M{"$and": arr}
}

// EpisodeFilter builds the episodes filter: zone prefix on the INSEE code,
// start date lower bound and pollutant allow-list.
func EpisodeFilter(q Query) bson.M {
	var clauses []bson.M
	if q.Zone != "" {
		clauses = append(clauses, bson.M{"properties.code_insee": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(q.Zone)}})
	}
	if q.DateFrom != nil {
		clauses = append(clauses, sinceFilter("properties.date_debut", *q.DateFrom))
	}
	if len(q.Pollutants) > 0 {
		clauses = append(clauses, bson.M{"properties.polluant": bson.M{"$in": q.Pollutants}})
	}
	return and(clauses)
}

// DailyAverageFilter builds the daily averages filter. These documents are
// keyed by site, so there is no zone clause.
func DailyAverageFilter(q Query) bson.M {
	var clauses []bson.M
	if q.DateFrom != nil {
		clauses = append(clauses, sinceFilter("date_debut", *q.DateFrom))
	}
	if len(q.Pollutants) > 0 {
		clauses = append(clauses, bson.M{"polluant": bson.M{"$in": q.Pollutants}})
	}
	return and(clauses)
}

var episodeProjection = bson.M{
	"properties.code_insee":           1,
	"properties.polluant":             1,
	"properties.date_debut":           1,
	"properties.date_fin":             1,
	"properties.etat":                 1,
	"properties.niveau":               1,
	"properties.valeur_declenchement": 1,
	"geometry.coordinates":            1,
}

var averageProjection = bson.M{
	"date_debut":   1,
	"organisme":    1,
	"nom_site":     1,
	"code_site":    1,
	"polluant":     1,
	"valeur":       1,
	"unite_mesure": 1,
	"coordinates":  1,
}

func (r *Reader) find(ctx context.Context, coll string, filter, projection bson.M, limit int64) ([]bson.M, error) {
	opts := options.Find().SetProjection(projection)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.db.Collection(coll).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(docs)) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// FetchEpisodes returns flattened episodes in cursor order.
func (r *Reader) FetchEpisodes(ctx context.Context, q Query) ([]utils.Flattened[models.Episode], error) {
	docs, err := r.find(ctx, r.episodes, EpisodeFilter(q), episodeProjection, q.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]utils.Flattened[models.Episode], 0, len(docs))
	for _, d := range docs {
		out = append(out, utils.FlattenEpisode(d))
	}
	return out, nil
}

// FetchDailyAverages returns flattened daily averages in cursor order.
func (r *Reader) FetchDailyAverages(ctx context.Context, q Query) ([]utils.Flattened[models.DailyAverage], error) {
	docs, err := r.find(ctx, r.averages, DailyAverageFilter(q), averageProjection, q.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]utils.Flattened[models.DailyAverage], 0, len(docs))
	for _, d := range docs {
		out = append(out, utils.FlattenDailyAverage(d))
	}
	return out, nil
}

// EpisodesCollection returns the configured episodes collection name.
func (r *Reader) EpisodesCollection() string { return r.episodes }

// AveragesCollection returns the configured daily averages collection name.
func (r *Reader) AveragesCollection() string { return r.averages }
