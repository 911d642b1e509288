// Package export writes reports as JSON, CSV or an Excel workbook.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/qualiteair/hybride/services/internal/config"
)

const timestampLayout = "20060102_150405"

var extensions = map[string]string{
	config.FormatJSON:  ".json",
	config.FormatCSV:   ".csv",
	config.FormatExcel: ".xlsx",
}

// DefaultPath returns the timestamped file name used when no destination
// is given.
func DefaultPath(format string, now time.Time) string {
	return "hybrid_data_" + now.Format(timestampLayout) + extensions[format]
}

// StatsPath returns the source-count table written next to a CSV export.
func StatsPath(path string, now time.Time) string {
	return filepath.Join(filepath.Dir(path), "stats_"+now.Format(timestampLayout)+".csv")
}

// Write serializes r in the given format and returns the path written.
// An empty path selects DefaultPath.
func Write(format, path string, r *Report, now time.Time) (string, error) {
	if path == "" {
		path = DefaultPath(format, now)
	}
	var err error
	switch format {
	case config.FormatJSON:
		err = WriteJSON(path, r)
	case config.FormatCSV:
		err = WriteCSV(path, r, now)
	case config.FormatExcel:
		err = WriteExcel(path, r)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	return path, err
}

// WriteJSON writes the whole report as indented JSON.
func WriteJSON(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCSV writes the correspondences at path and the per-source record
// counts in a stats_<timestamp>.csv file in the same directory.
func WriteCSV(path string, r *Report, now time.Time) error {
	rows := [][]string{correspondenceHeader(true)}
	for _, c := range r.Correspondences {
		details, err := json.Marshal(c.Episodes)
		if err != nil {
			return err
		}
		rows = append(rows, append(correspondenceCells(c), string(details)))
	}
	if err := writeCSVFile(path, rows); err != nil {
		return err
	}
	return writeCSVFile(StatsPath(path, now), [][]string{
		{"source", "count"},
		{"relational", strconv.Itoa(r.Statistics.Relational.Count)},
		{"episodes", strconv.Itoa(r.Statistics.Episodes.Count)},
		{"daily_averages", strconv.Itoa(r.Statistics.DailyAverages.Count)},
	})
}

func writeCSVFile(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Workbook sheet names.
const (
	SheetStatistics      = "Statistics"
	SheetCorrespondences = "Correspondences"
	SheetRelational      = "Relational"
	SheetEpisodes        = "Episodes"
	SheetDailyAverages   = "DailyAverages"
)

// WriteExcel writes a workbook with a statistics sheet, the
// correspondences without episode details, and one sheet per source sample.
func WriteExcel(path string, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetStatistics); err != nil {
		return err
	}
	sheets := []struct {
		name string
		rows [][]any
	}{
		{SheetStatistics, [][]any{
			{"Source", "Count"},
			{"relational", r.Statistics.Relational.Count},
			{"episodes", r.Statistics.Episodes.Count},
			{"daily_averages", r.Statistics.DailyAverages.Count},
		}},
		{SheetCorrespondences, correspondenceSheet(r)},
		{SheetRelational, relationalSheet(r)},
		{SheetEpisodes, episodeSheet(r)},
		{SheetDailyAverages, dailyAverageSheet(r)},
	}

	for i, sh := range sheets {
		if i > 0 {
			if _, err := f.NewSheet(sh.name); err != nil {
				return err
			}
		}
		for n, row := range sh.rows {
			cell, err := excelize.CoordinatesToCellName(1, n+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
				return fmt.Errorf("sheet %s: %w", sh.name, err)
			}
		}
	}
	return f.SaveAs(path)
}
