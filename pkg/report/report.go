// Package report writes the CSV files describing a conversion run.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

const (
	ConvertedFile = "converted.csv"
	ReportFile    = "report.csv"

	StatusPartial = "PARTIALLY_CONVERTED"
	StatusSkipped = "SKIPPED"
	StatusError   = "ERROR"

	issueSeparator = ";"
)

var (
	convertedHeader = []string{"ref", "new_url"}
	reportHeader    = []string{"ref", "status", "issue"}
)

// NewRunID returns an identifier for one run, used to group uploaded reports.
func NewRunID() string {
	return uuid.NewString()
}

// Writer appends outcomes to converted.csv and report.csv in a directory. Files that
// do not exist yet are created with a header row.
type Writer struct {
	dir       string
	files     []*os.File
	converted *csv.Writer
	report    *csv.Writer
}

// Create opens both report files in dir, creating the directory when needed.
func Create(dir string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	w := &Writer{dir: dir}

	conv, err := w.open(ConvertedFile, convertedHeader)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	rep, err := w.open(ReportFile, reportHeader)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	w.converted, w.report = conv, rep
	return w, nil
}

func (w *Writer) open(name string, header []string) (*csv.Writer, error) {
	path := filepath.Join(w.dir, name)
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	w.files = append(w.files, f)

	cw := csv.NewWriter(f)
	if isNew {
		_ = cw.Write(header)
		cw.Flush()
		if err := cw.Error(); err != nil {
			return nil, fmt.Errorf("failed to write %s header: %w", name, err)
		}
	}
	return cw, nil
}

// Record writes one outcome. Successful conversions go to converted.csv; partial
// conversions, skips and failures are also listed in report.csv.
func (w *Writer) Record(o state.Outcome) error {
	if o.Success {
		if err := w.converted.Write([]string{o.Ref, o.ConvertedURL}); err != nil {
			return fmt.Errorf("failed to write converted row: %w", err)
		}
	}

	status, issue, ok := Issue(o)
	if !ok {
		return nil
	}
	if err := w.report.Write([]string{o.Ref, status, issue}); err != nil {
		return fmt.Errorf("failed to write report row: %w", err)
	}
	return nil
}

// Issue returns the report.csv status and issue text of an outcome. ok is false for
// complete conversions, which are not reported.
func Issue(o state.Outcome) (status, issue string, ok bool) {
	switch {
	case o.Partial():
		return StatusPartial, strings.Join(o.UnconvertibleFragments, issueSeparator), true
	case o.Success:
		return "", "", false
	case o.Skipped():
		return StatusSkipped, o.ErrorReason, true
	default:
		return StatusError, o.ErrorReason, true
	}
}

// Paths returns the report files in the order they were opened.
func (w *Writer) Paths() []string {
	return []string{filepath.Join(w.dir, ConvertedFile), filepath.Join(w.dir, ReportFile)}
}

// Close flushes and closes both files.
func (w *Writer) Close() error {
	var errs []error
	for _, cw := range []*csv.Writer{w.converted, w.report} {
		if cw == nil {
			continue
		}
		cw.Flush()
		errs = append(errs, cw.Error())
	}
	for _, f := range w.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}
