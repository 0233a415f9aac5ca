// Copyright (c) 2025 Sudo-Ivan
// Licensed under the MIT License

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/Sudo-Ivan/permalink-converter/pkg/catalog"
	"github.com/Sudo-Ivan/permalink-converter/pkg/config"
	"github.com/Sudo-Ivan/permalink-converter/pkg/converter"
	"github.com/Sudo-Ivan/permalink-converter/pkg/export"
	"github.com/Sudo-Ivan/permalink-converter/pkg/geogirafe"
	"github.com/Sudo-Ivan/permalink-converter/pkg/logging"
	"github.com/Sudo-Ivan/permalink-converter/pkg/metrics"
	"github.com/Sudo-Ivan/permalink-converter/pkg/ngeo"
	"github.com/Sudo-Ivan/permalink-converter/pkg/records"
	"github.com/Sudo-Ivan/permalink-converter/pkg/report"
	"github.com/Sudo-Ivan/permalink-converter/pkg/sqlstore"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

// ANSI color codes for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// useColor controls whether colored output is enabled.
var useColor = true

// output receives the human-facing run summary.
var output io.Writer = os.Stdout

// options are the command line settings.
type options struct {
	configPath    string
	batch         bool
	testFile      string
	ref           string
	exportCatalog string
	exportDrawing string
	workers       int
}

func main() {
	configPtr := flag.String("config", "", "YAML configuration file (default: "+config.DefaultFile+" when present)")
	batchPtr := flag.Bool("batch", false, "Convert every record of the input source")
	testPtr := flag.String("test", "", "JSON file of test records [{ref,url,expected}] to convert and compare")
	exportPtr := flag.String("export-catalog", "", "Write the loaded catalog to a file ("+SnapshotExt+" for a snapshot, CSV otherwise) and exit")
	drawingPtr := flag.String("export-drawing", "", "Write the drawing of the converted record to a .kml, .gpx or .geojson file")
	workersPtr := flag.Int("workers", 0, "Records converted concurrently in batch mode (default: configured value)")
	noColorPtr := flag.Bool("no-color", false, "Disable colored output")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [ref]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintln(flag.CommandLine.Output(), "Converts one stored permalink by reference, or all of them with -batch.")
		flag.PrintDefaults()
	}
	flag.Parse()

	useColor = !*noColorPtr

	opts := options{
		configPath:    *configPtr,
		batch:         *batchPtr,
		testFile:      *testPtr,
		ref:           flag.Arg(IndexFirst),
		exportCatalog: *exportPtr,
		exportDrawing: *drawingPtr,
		workers:       *workersPtr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts)
	stop()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, opts options) int {
	if err := opts.validate(); err != nil {
		printError(err.Error())
		return ExitFailure
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		printError(fmt.Sprintf("Error loading configuration: %v", err))
		return ExitFailure
	}
	if opts.testFile != "" {
		cfg.InputSource = opts.testFile
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		printError(err.Error())
		return ExitFailure
	}
	defer func() { _ = logger.Sync() }()

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	defer a.close()

	if err := a.openDatabase(ctx); err != nil {
		printError(fmt.Sprintf("Error opening database: %v", err))
		return ExitFailure
	}

	idx, err := a.loadCatalog(ctx)
	if err != nil {
		printError(fmt.Sprintf("Error loading catalog: %v", err))
		return ExitFailure
	}
	printCatalogSummary(idx)

	if opts.exportCatalog != "" {
		if err := exportCatalog(idx, opts.exportCatalog); err != nil {
			printError(fmt.Sprintf("Error exporting catalog: %v", err))
			return ExitFailure
		}
		printSuccess(fmt.Sprintf("Catalog written to %s", opts.exportCatalog))
		return ExitOK
	}

	source, err := a.recordSource()
	if err != nil {
		printError(fmt.Sprintf("Error opening record source: %v", err))
		return ExitFailure
	}

	parser := ngeo.NewParser(idx, ngeo.Config{Origin: cfg.OriginURL, Resolutions: cfg.Resolutions})
	conv := converter.New(parser, cfg.DestinationURL,
		converter.WithLogger(logger),
		converter.WithMetrics(a.metrics),
		converter.WithWorkers(cfg.Workers))

	if opts.ref != "" {
		return a.convertOne(ctx, conv, source, opts.ref, opts.exportDrawing)
	}
	return a.convertAll(ctx, conv, source)
}

func (o options) validate() error {
	if o.exportCatalog != "" {
		return nil
	}
	if o.ref == "" && !o.batch {
		return errors.New("a record reference or -batch is required")
	}
	if o.ref != "" && o.batch {
		return errors.New("-batch cannot be combined with a record reference")
	}
	if o.exportDrawing != "" {
		if o.ref == "" {
			return errors.New("-export-drawing needs a record reference")
		}
		if _, err := export.FormatFor(o.exportDrawing); err != nil {
			return err
		}
	}
	return nil
}

// app holds what one invocation shares between its steps.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Recorder
	db      *sql.DB
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *app) openDatabase(ctx context.Context) error {
	if !a.cfg.UsesDatabase() {
		return nil
	}
	db, err := sqlstore.Open(ctx, a.cfg.Database.Driver, a.cfg.Database.Connection)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

// catalogProvider selects where the catalog is read from.
func (a *app) catalogProvider() (catalog.Provider, error) {
	c := a.cfg.Catalog
	switch c.Source {
	case config.SourceDatabase:
		return catalog.SQLProvider{DB: a.db, Schema: a.cfg.Database.MainSchema}, nil
	case config.SourceCSV:
		return catalog.CSVProvider{Path: c.CSVPath}, nil
	case config.SourceSnapshot:
		return catalog.SnapshotProvider{Path: c.SnapshotPath}, nil
	case config.SourceHTTP:
		return catalog.NewThemesProvider(c.URL, c.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown catalog source %q", c.Source)
	}
}

func (a *app) loadCatalog(ctx context.Context) (*catalog.Index, error) {
	provider, err := a.catalogProvider()
	if err != nil {
		return nil, err
	}
	idx, err := catalog.Load(ctx, provider)
	if err != nil {
		return nil, err
	}
	a.metrics.SetCatalogSize(idx.Len())
	a.logger.Info("catalog loaded", zap.String("source", a.cfg.Catalog.Source), zap.Int("entries", idx.Len()))
	return idx, nil
}

func (a *app) recordSource() (records.Source, error) {
	if file := a.cfg.RecordFile(); file != "" {
		return records.LoadJSON(file)
	}
	return records.SQLSource{DB: a.db, Schema: a.cfg.Database.StaticSchema, Driver: a.cfg.Database.Driver}, nil
}

// convertOne converts a single record and prints the outcome. The exit code is non
// zero unless the conversion succeeded.
func (a *app) convertOne(ctx context.Context, conv *converter.Converter, source records.Source, ref, drawingPath string) int {
	rec, err := source.Get(ctx, ref)
	if err != nil {
		printError(fmt.Sprintf("Error reading record %s: %v", ref, err))
		return ExitFailure
	}
	out := conv.Convert(ctx, rec)
	printOutcome(out)
	if !out.Success {
		return ExitFailure
	}
	if drawingPath != "" {
		if err := exportDrawing(out, drawingPath); err != nil {
			printError(fmt.Sprintf("Error exporting drawing: %v", err))
			return ExitFailure
		}
		printSuccess(fmt.Sprintf("Drawing written to %s", drawingPath))
	}
	if match, ok := out.ExpectedMatch(); ok && !match {
		return ExitFailure
	}
	return ExitOK
}

// convertAll converts every record, writes the report files and prints the run
// statistics.
func (a *app) convertAll(ctx context.Context, conv *converter.Converter, source records.Source) int {
	recs, err := source.All(ctx)
	if err != nil {
		printError(fmt.Sprintf("Error reading records: %v", err))
		return ExitFailure
	}

	runID := report.NewRunID()
	logger := a.logger.With(zap.String("run_id", runID))
	printInfo(fmt.Sprintf("\nConverting %d record(s) with %d worker(s)...", len(recs), a.cfg.Workers))

	outcomes, stats := conv.ConvertBatch(ctx, recs)

	if err := a.writeReports(ctx, runID, outcomes); err != nil {
		logger.Error("failed to write reports", zap.Error(err))
		printError(fmt.Sprintf("Error writing reports: %v", err))
		return ExitFailure
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
		logger.Warn("failed to write metrics", zap.Error(err))
		printWarning(err.Error())
	}

	mismatches := printMismatches(outcomes)
	printStats(stats)

	if stats.Failed > 0 || mismatches > 0 {
		return ExitFailure
	}
	return ExitOK
}

func (a *app) writeReports(ctx context.Context, runID string, outcomes []state.Outcome) error {
	w, err := report.Create(a.cfg.Report.Dir)
	if err != nil {
		return err
	}
	for _, o := range outcomes {
		if err := w.Record(o); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	printInfo(fmt.Sprintf("Reports written to %s", strings.Join(w.Paths(), ", ")))

	s3cfg := a.cfg.Report.S3
	if s3cfg.Bucket == "" {
		return nil
	}
	pub, err := report.NewS3Publisher(ctx, report.S3Config{
		Bucket:    s3cfg.Bucket,
		Region:    s3cfg.Region,
		Endpoint:  s3cfg.Endpoint,
		Prefix:    s3cfg.Prefix,
		PathStyle: s3cfg.PathStyle,
	})
	if err != nil {
		return err
	}
	keys, err := pub.Publish(ctx, runID, w.Paths()...)
	if err != nil {
		return err
	}
	printInfo(fmt.Sprintf("Reports uploaded to s3://%s/%s", s3cfg.Bucket, strings.Join(keys, ", ")))
	return nil
}

func exportCatalog(idx *catalog.Index, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, DirPerm); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FilePerm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), SnapshotExt) {
		err = catalog.WriteSnapshot(f, idx.Entries())
	} else {
		err = catalog.WriteCSV(f, idx.Entries())
	}
	return errors.Join(err, f.Close())
}

// exportDrawing writes the drawing carried by a converted URL. It reads the features
// back from the URL so the file shows exactly what the destination viewer gets.
func exportDrawing(o state.Outcome, path string) error {
	format, err := export.FormatFor(path)
	if err != nil {
		return err
	}
	_, extended, err := geogirafe.Decode(o.ConvertedURL)
	if err != nil {
		return err
	}
	if len(extended.Drawing) == 0 {
		return fmt.Errorf("record %s has no drawing", o.Ref)
	}
	doc, err := export.Drawing(format, extended.Drawing, o.Ref)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(doc), FilePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func printCatalogSummary(idx *catalog.Index) {
	counts := idx.CountByKind()
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, fmt.Sprintf("%d %s", counts[catalog.Kind(k)], k))
	}
	printInfo(fmt.Sprintf("Catalog loaded: %d entries (%s)", idx.Len(), strings.Join(parts, ", ")))
}

// printOutcome prints the result of a single-record conversion.
func printOutcome(o state.Outcome) {
	switch {
	case o.Partial():
		printWarning(fmt.Sprintf("Record %s partially converted:", o.Ref))
		printColor(colorReset, o.ConvertedURL)
		for _, f := range o.UnconvertibleFragments {
			printWarning(fmt.Sprintf("  not converted: %s", f))
		}
	case o.Success:
		printSuccess(fmt.Sprintf("Record %s converted:", o.Ref))
		printColor(colorReset, o.ConvertedURL)
	case o.Skipped():
		printWarning(fmt.Sprintf("Record %s skipped: %s", o.Ref, o.ErrorReason))
	default:
		printError(fmt.Sprintf("Record %s failed: %s", o.Ref, o.ErrorReason))
	}

	if match, ok := o.ExpectedMatch(); ok {
		if match {
			printSuccess("  matches the expected URL")
		} else {
			printError(fmt.Sprintf("  expected %s", o.Expected))
		}
	}
}

// printMismatches lists test records whose result differs from the expected URL and
// returns how many there were.
func printMismatches(outcomes []state.Outcome) int {
	n := 0
	for _, o := range outcomes {
		match, ok := o.ExpectedMatch()
		if !ok || match {
			continue
		}
		n++
		printError(fmt.Sprintf("Record %s does not match the expected URL", o.Ref))
		printColor(colorReset, fmt.Sprintf("  got:      %s", o.ConvertedURL))
		printColor(colorReset, fmt.Sprintf("  expected: %s", o.Expected))
	}
	return n
}

// printStats prints the run statistics block.
func printStats(s state.Stats) {
	summary := fmt.Sprintf("\nConversion Complete.\n  Total:     %d\n  Converted: %d\n  Skipped:   %d\n  Failed:    %d",
		s.Total, s.Converted, s.Skipped, s.Failed)
	switch {
	case s.Failed > 0:
		printError(summary)
	case s.Skipped > 0:
		printWarning(summary)
	default:
		printSuccess(summary)
	}
}

// printColor prints a message to the console with the specified color.
func printColor(colorCode string, message string) {
	if useColor {
		fmt.Fprintf(output, "%s%s%s\n", colorCode, message, colorReset)
	} else {
		fmt.Fprintln(output, message)
	}
}

// printInfo prints an informational message to the console.
func printInfo(message string) {
	printColor(colorCyan, message)
}

// printSuccess prints a success message to the console.
func printSuccess(message string) {
	printColor(colorGreen, message)
}

// printWarning prints a warning message to the console.
func printWarning(message string) {
	printColor(colorYellow, message)
}

// printError prints an error message to the console.
func printError(message string) {
	printColor(colorRed, message)
}
