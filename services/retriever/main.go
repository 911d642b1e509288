package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/qualiteair/hybride/services/internal/audit"
	"github.com/qualiteair/hybride/services/internal/config"
	"github.com/qualiteair/hybride/services/internal/export"
	"github.com/qualiteair/hybride/services/internal/hybrid"
)

// Exit codes.
const (
	exitOK     = 0
	exitUsage  = 1
	exitRead   = 2
	exitExport = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	return runWith(args, stdout, stderr, retrieve)
}

func runWith(args []string, stdout, stderr io.Writer, fn retrieveFunc) int {
	fs := flag.NewFlagSet("retriever", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags := config.RegisterFlags(fs)
	every := fs.Duration("every", 0, "Repeat the retrieval on this interval until interrupted (e.g. 24h)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}
	logger := audit.NewSlog(stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *every > 0 {
		if err := scheduleWith(ctx, cfg, *every, logger, fn); err != nil {
			fmt.Fprintf(stderr, "schedule: %v\n", err)
			return exitUsage
		}
		return exitOK
	}

	path, rep, err := fn(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "retrieval failed: %v\n", err)
		if rep != nil && errors.Is(err, hybrid.ErrExport) {
			if werr := writeReport(stdout, rep); werr != nil {
				fmt.Fprintf(stderr, "report dump failed: %v\n", werr)
			} else {
				fmt.Fprintln(stderr, "computed report written to stdout")
			}
		}
		return exitCode(err)
	}
	fmt.Fprintln(stdout, path)
	return exitOK
}

func loadConfig(flags *config.Flags) (config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if err := flags.Apply(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// retrieve performs one full reconciliation. Connections are released on
// every exit path. The report is returned even when only the export failed.
func retrieve(ctx context.Context, cfg config.Config, logger *slog.Logger) (string, *export.Report, error) {
	r, err := hybrid.Open(ctx, cfg, logger)
	if err != nil {
		return "", nil, err
	}
	defer r.Close()

	return r.Run(ctx)
}

// writeReport dumps a report that could not be exported so the data
// survives the failed write.
func writeReport(w io.Writer, rep *export.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(rep)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, hybrid.ErrExport):
		return exitExport
	case errors.Is(err, hybrid.ErrConnectivity), errors.Is(err, hybrid.ErrQuery):
		return exitRead
	}
	return exitUsage
}
