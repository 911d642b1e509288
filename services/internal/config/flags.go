package config

import (
	"flag"
	"strings"
)

// Flags captures command-line overrides. Only flags that were explicitly
// set take precedence over file and environment values.
type Flags struct {
	fs *flag.FlagSet

	ConfigPath    string
	Zone          string
	DateFrom      string
	DateTo        string
	Pollutants    string
	Format        string
	Output        string
	PGHost        string
	PGPort        int
	PGDatabase    string
	PGUser        string
	MongoURI      string
	MongoDatabase string
	EmptyMatches  string
}

// RegisterFlags declares the retrieval flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&f.Zone, "zone", "", "Zone code (<=3 chars: region prefix, otherwise exact commune code)")
	fs.StringVar(&f.DateFrom, "date-from", "", "Lower date bound (YYYY-MM-DD)")
	fs.StringVar(&f.DateTo, "date-to", "", "Upper date bound (YYYY-MM-DD)")
	fs.StringVar(&f.Pollutants, "pollutants", "", "Comma-separated pollutant codes (e.g. NO2,O3,PM10)")
	fs.StringVar(&f.Format, "format", "", "Output format: json, csv or excel")
	fs.StringVar(&f.Output, "output", "", "Output file (defaults to a timestamped name)")
	fs.StringVar(&f.PGHost, "pg-host", "", "PostgreSQL host")
	fs.IntVar(&f.PGPort, "pg-port", 0, "PostgreSQL port")
	fs.StringVar(&f.PGDatabase, "pg-database", "", "PostgreSQL database")
	fs.StringVar(&f.PGUser, "pg-user", "", "PostgreSQL user")
	fs.StringVar(&f.MongoURI, "mongo-uri", "", "MongoDB URI")
	fs.StringVar(&f.MongoDatabase, "mongo-database", "", "MongoDB database")
	fs.StringVar(&f.EmptyMatches, "empty-matches", "", "Index records without episodes: omit or include")
	return f
}

// Apply overlays the explicitly set flags onto cfg.
func (f *Flags) Apply(cfg *Config) error {
	set := make(map[string]bool)
	f.fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if set["zone"] {
		cfg.Filters.Zone = strings.TrimSpace(f.Zone)
	}
	if set["date-from"] || set["date-to"] {
		if err := SetDateRange(cfg, f.DateFrom, f.DateTo); err != nil {
			return err
		}
	}
	if set["pollutants"] {
		SetPollutants(cfg, f.Pollutants)
	}
	if set["format"] {
		cfg.Output.Format = NormalizeFormat(f.Format)
	}
	if set["output"] {
		cfg.Output.Path = f.Output
	}
	if set["pg-host"] {
		cfg.Postgres.Host = f.PGHost
		cfg.Postgres.URL = ""
	}
	if set["pg-port"] {
		cfg.Postgres.Port = f.PGPort
		cfg.Postgres.URL = ""
	}
	if set["pg-database"] {
		cfg.Postgres.Database = f.PGDatabase
		cfg.Postgres.URL = ""
	}
	if set["pg-user"] {
		cfg.Postgres.User = f.PGUser
		cfg.Postgres.URL = ""
	}
	if set["mongo-uri"] {
		cfg.Mongo.URI = f.MongoURI
	}
	if set["mongo-database"] {
		cfg.Mongo.Database = f.MongoDatabase
	}
	if set["empty-matches"] {
		cfg.Limits.EmptyMatches = strings.ToLower(strings.TrimSpace(f.EmptyMatches))
	}
	return nil
}
