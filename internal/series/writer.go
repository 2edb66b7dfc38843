// Package series writes the daily precipitation time series and the error
// log next to the station file. Both files are flushed after every day so
// an aborted run keeps every completed day.
package series

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
)

var (
	outputHeader = []string{"id", "date", "total_mm"}
	errorHeader  = []string{"date", "message"}
)

// RowSink receives each day's rows after they are flushed to disk.
type RowSink interface {
	Publish(ctx context.Context, rows []domain.OutputRow) error
}

// Paths returns the output and error file paths for a run:
// {stem}_gpm_{ini}_{end}.csv and {stem}_gpm_{ini}_{end}_error.csv, where
// stem is the station file path without its extension.
func Paths(stationsPath string, ini, end time.Time) (out, errs string) {
	stem := strings.TrimSuffix(stationsPath, filepath.Ext(stationsPath))
	name := fmt.Sprintf("%s_gpm_%s_%s", stem, domain.DateLabel(ini), domain.DateLabel(end))
	return name + ".csv", name + "_error.csv"
}

// Summary describes the files left behind by a closed Writer.
type Summary struct {
	OutputPath string
	// ErrorPath is empty when no errors were written and the file was removed.
	ErrorPath string
	Errors    int
	Days      int
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func createCSV(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	w.Comma = Delimiter
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &csvFile{f: f, w: w}, nil
}

func (c *csvFile) flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return err
	}
	return c.f.Sync()
}

func (c *csvFile) close() error {
	c.w.Flush()
	return errors.Join(c.w.Error(), c.f.Close())
}

// Writer appends rows to the output and error files.
type Writer struct {
	out     *csvFile
	errs    *csvFile
	outPath string
	errPath string
	sinks   []RowSink
	logger  *slog.Logger

	errCount int
	days     int
	closed   bool
}

// Create opens both files, truncating any previous run's files.
func Create(outPath, errPath string, logger *slog.Logger, sinks ...RowSink) (*Writer, error) {
	out, err := createCSV(outPath, outputHeader)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	errs, err := createCSV(errPath, errorHeader)
	if err != nil {
		out.close()
		os.Remove(outPath)
		return nil, fmt.Errorf("create error file: %w", err)
	}
	return &Writer{
		out:     out,
		errs:    errs,
		outPath: outPath,
		errPath: errPath,
		sinks:   sinks,
		logger:  logger,
	}, nil
}

// WriteDay appends the day's failures and rows and flushes both files.
// Sinks are notified afterwards; a sink failure is logged and does not fail
// the day.
func (w *Writer) WriteDay(ctx context.Context, day time.Time, rows []domain.OutputRow, failures []*domain.SampleError) error {
	if w.closed {
		return errors.New("series writer is closed")
	}
	label := domain.DateLabel(day)

	if len(failures) > 0 {
		for _, f := range failures {
			if err := w.errs.w.Write([]string{label, f.Message}); err != nil {
				return fmt.Errorf("write error row: %w", err)
			}
		}
		if err := w.errs.flush(); err != nil {
			return fmt.Errorf("flush error file: %w", err)
		}
		w.errCount += len(failures)
	}

	for _, r := range rows {
		if err := w.out.w.Write([]string{r.StationID, r.Date, FormatDecimal(r.PrecipitationMM)}); err != nil {
			return fmt.Errorf("write output row: %w", err)
		}
	}
	if err := w.out.flush(); err != nil {
		return fmt.Errorf("flush output file: %w", err)
	}
	w.days++

	for _, s := range w.sinks {
		if err := s.Publish(ctx, rows); err != nil {
			w.logger.Warn("publish rows failed", "date", label, "rows", len(rows), "error", err)
		}
	}
	return nil
}

// Close closes both files and removes the error file if it holds no rows.
func (w *Writer) Close() (Summary, error) {
	if w.closed {
		return w.summary(), nil
	}
	w.closed = true

	err := errors.Join(w.out.close(), w.errs.close())
	if w.errCount == 0 {
		if rmErr := os.Remove(w.errPath); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("remove empty error file: %w", rmErr))
		}
	}
	return w.summary(), err
}

func (w *Writer) summary() Summary {
	s := Summary{OutputPath: w.outPath, Errors: w.errCount, Days: w.days}
	if w.errCount > 0 {
		s.ErrorPath = w.errPath
	}
	return s
}

// FormatDecimal renders v with the fewest digits that round-trip and
// always with a decimal point: 6 -> "6.0", 1.25 -> "1.25".
func FormatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
