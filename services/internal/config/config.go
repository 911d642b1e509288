package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/qualiteair/hybride/services/internal/models"
	"github.com/qualiteair/hybride/services/internal/utils"
)

const (
	defaultPGHost             = "localhost"
	defaultPGPort             = 5432
	defaultPGDatabase         = "qualite_air"
	defaultPGUser             = "postgres"
	defaultPGSSLMode          = "disable"
	defaultMongoURI           = "mongodb://localhost:27017/"
	defaultMongoDatabase      = "pollution_data"
	defaultEpisodesCollection = "EPIS_POLLUTION"
	defaultAveragesCollection = "MOY_JOURNALIERE"
	defaultConnectTimeout     = 30 * time.Second
	defaultMatchWindow        = 24 * time.Hour
	defaultMaxRelational      = 10000
	defaultMaxDocuments       = 5000
	defaultMaxMatched         = 100
	defaultMaxCorrespondences = 50
	defaultSampleSize         = 10
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatExcel = "excel"
)

// Empty-match policies for index records without any nearby episode.
const (
	EmptyMatchesOmit    = "omit"
	EmptyMatchesInclude = "include"
)

// Postgres holds relational store connection settings.
type Postgres struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnString returns URL when set, otherwise a URL assembled from the
// discrete fields.
func (p Postgres) ConnString() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else {
		u.User = url.User(p.User)
	}
	return u.String()
}

// Mongo holds document store connection settings.
type Mongo struct {
	URI                string `yaml:"uri"`
	Database           string `yaml:"database"`
	EpisodesCollection string `yaml:"episodes_collection"`
	AveragesCollection string `yaml:"averages_collection"`
}

// Filters restrict what the readers fetch.
type Filters struct {
	Zone       string     `yaml:"zone"`
	DateFrom   *time.Time `yaml:"-"`
	DateTo     *time.Time `yaml:"-"`
	Pollutants []string   `yaml:"pollutants"`
}

// Limits bound memory use and export size.
type Limits struct {
	MaxRelational      int           `yaml:"max_relational"`
	MaxDocuments       int           `yaml:"max_documents"`
	MaxMatched         int           `yaml:"max_matched"`
	MaxCorrespondences int           `yaml:"max_correspondences"`
	SampleSize         int           `yaml:"sample_size"`
	MatchWindow        time.Duration `yaml:"match_window"`
	EmptyMatches       string        `yaml:"empty_matches"`
}

// Output selects the export format and destination.
type Output struct {
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// Config is built once at startup and passed by value into every component.
type Config struct {
	Postgres       Postgres      `yaml:"postgres"`
	Mongo          Mongo         `yaml:"mongo"`
	Filters        Filters       `yaml:"filters"`
	Limits         Limits        `yaml:"limits"`
	Output         Output        `yaml:"output"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Postgres: Postgres{
			Host:     defaultPGHost,
			Port:     defaultPGPort,
			Database: defaultPGDatabase,
			User:     defaultPGUser,
			SSLMode:  defaultPGSSLMode,
		},
		Mongo: Mongo{
			URI:                defaultMongoURI,
			Database:           defaultMongoDatabase,
			EpisodesCollection: defaultEpisodesCollection,
			AveragesCollection: defaultAveragesCollection,
		},
		Limits: Limits{
			MaxRelational:      defaultMaxRelational,
			MaxDocuments:       defaultMaxDocuments,
			MaxMatched:         defaultMaxMatched,
			MaxCorrespondences: defaultMaxCorrespondences,
			SampleSize:         defaultSampleSize,
			MatchWindow:        defaultMatchWindow,
			EmptyMatches:       EmptyMatchesOmit,
		},
		Output:         Output{Format: FormatJSON},
		ConnectTimeout: defaultConnectTimeout,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load builds a configuration from defaults, an optional YAML file and the
// environment (optionally .env). Flags are applied by the caller afterwards.
func Load(path string) (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv("HYBRID_CONFIG"))
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML file onto cfg. A missing file is an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var file struct {
		Filters struct {
			DateFrom string `yaml:"date_from"`
			DateTo   string `yaml:"date_to"`
		} `yaml:"filters"`
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Output.Format = NormalizeFormat(cfg.Output.Format)
	cfg.Limits.EmptyMatches = strings.ToLower(strings.TrimSpace(cfg.Limits.EmptyMatches))
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return SetDateRange(cfg, file.Filters.DateFrom, file.Filters.DateTo)
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if v := get("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := get("PG_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := get("PG_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid PG_PORT: %s", v)
		}
		cfg.Postgres.Port = port
	}
	if v := get("PG_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := get("PG_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := getenv("PG_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := get("PG_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}

	if v := get("MONGO_URI"); v != "" {
		cfg.Mongo.URI = v
	}
	if v := get("MONGO_DATABASE"); v != "" {
		cfg.Mongo.Database = v
	}
	if v := get("MONGO_EPISODES_COLLECTION"); v != "" {
		cfg.Mongo.EpisodesCollection = v
	}
	if v := get("MONGO_AVERAGES_COLLECTION"); v != "" {
		cfg.Mongo.AveragesCollection = v
	}

	if v := get("HYBRID_CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid HYBRID_CONNECT_TIMEOUT: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	if v := get("HYBRID_MATCH_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid HYBRID_MATCH_WINDOW: %w", err)
		}
		cfg.Limits.MatchWindow = d
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"HYBRID_MAX_RELATIONAL", &cfg.Limits.MaxRelational},
		{"HYBRID_MAX_DOCUMENTS", &cfg.Limits.MaxDocuments},
		{"HYBRID_MAX_MATCHED", &cfg.Limits.MaxMatched},
		{"HYBRID_MAX_CORRESPONDENCES", &cfg.Limits.MaxCorrespondences},
		{"HYBRID_SAMPLE_SIZE", &cfg.Limits.SampleSize},
	}
	for _, it := range ints {
		v := get(it.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.key, err)
		}
		*it.dst = n
	}

	if v := get("HYBRID_EMPTY_MATCHES"); v != "" {
		cfg.Limits.EmptyMatches = strings.ToLower(v)
	}
	if v := get("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := get("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	return nil
}

// SetDateRange parses ISO date bounds into cfg. Empty strings leave the
// corresponding bound open.
func SetDateRange(cfg *Config, from, to string) error {
	if from != "" {
		t, err := utils.ParseISODate(from)
		if err != nil {
			return fmt.Errorf("invalid date_from: %w", err)
		}
		cfg.Filters.DateFrom = &t
	}
	if to != "" {
		t, err := utils.ParseISODate(to)
		if err != nil {
			return fmt.Errorf("invalid date_to: %w", err)
		}
		cfg.Filters.DateTo = &t
	}
	return nil
}

// SetPollutants parses a comma-separated allow-list.
func SetPollutants(cfg *Config, list string) {
	cfg.Filters.Pollutants = ParsePollutants(list)
}

// ParsePollutants splits a comma-separated list of pollutant codes,
// upper-casing entries and dropping blanks and duplicates.
func ParsePollutants(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Split(list, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// NormalizeFormat maps format aliases onto the canonical names.
func NormalizeFormat(f string) string {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "json", "document", "structured-document":
		return FormatJSON
	case "csv", "tabular":
		return FormatCSV
	case "excel", "xlsx", "workbook":
		return FormatExcel
	}
	return strings.ToLower(strings.TrimSpace(f))
}

// Validate checks the invariants the readers and exporters rely on.
func (c Config) Validate() error {
	var errs []error
	if c.Postgres.URL == "" && c.Postgres.Host == "" {
		errs = append(errs, errors.New("postgres host or DATABASE_URL is required"))
	}
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		errs = append(errs, errors.New("mongo uri and database are required"))
	}
	if c.Limits.MaxRelational <= 0 || c.Limits.MaxDocuments <= 0 ||
		c.Limits.MaxMatched <= 0 || c.Limits.MaxCorrespondences <= 0 {
		errs = append(errs, errors.New("record caps must be positive"))
	}
	if c.Limits.SampleSize < 0 {
		errs = append(errs, errors.New("sample size must not be negative"))
	}
	if c.Limits.MatchWindow <= 0 {
		errs = append(errs, errors.New("match window must be positive"))
	}
	switch c.Limits.EmptyMatches {
	case EmptyMatchesOmit, EmptyMatchesInclude:
	default:
		errs = append(errs, fmt.Errorf("invalid empty matches policy: %q", c.Limits.EmptyMatches))
	}
	switch c.Output.Format {
	case FormatJSON, FormatCSV, FormatExcel:
	default:
		errs = append(errs, fmt.Errorf("invalid output format: %q", c.Output.Format))
	}
	if f, t := c.Filters.DateFrom, c.Filters.DateTo; f != nil && t != nil && f.After(*t) {
		errs = append(errs, errors.New("date_from is after date_to"))
	}
	return errors.Join(errs...)
}

// ZoneLabel returns the region label for the zone filter, if known.
func (c Config) ZoneLabel() string {
	if c.Filters.Zone == "" {
		return ""
	}
	return models.RegionForZone(c.Filters.Zone)
}
