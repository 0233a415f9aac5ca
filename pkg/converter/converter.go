// Copyright (c) 2025 Sudo-Ivan
// Licensed under the MIT License

// Package converter runs the per-record pipeline: parse the source permalink, decode
// and map its drawing, compose the destination state and serialize it.
package converter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"github.com/Sudo-Ivan/permalink-converter/pkg/drawing"
	"github.com/Sudo-Ivan/permalink-converter/pkg/featurehash"
	"github.com/Sudo-Ivan/permalink-converter/pkg/geogirafe"
	"github.com/Sudo-Ivan/permalink-converter/pkg/metrics"
	"github.com/Sudo-Ivan/permalink-converter/pkg/ngeo"
	"github.com/Sudo-Ivan/permalink-converter/pkg/state"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// URLParser turns a source permalink into parsed state.
type URLParser interface {
	Parse(rawURL string) (*ngeo.Result, error)
}

// Converter converts records. It keeps no per-record state and is safe for
// concurrent use.
type Converter struct {
	parser      URLParser
	destination string
	workers     int
	logger      *zap.Logger
	metrics     *metrics.Recorder
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// WithMetrics records every outcome in r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Converter) { c.metrics = r }
}

// WithWorkers sets how many records ConvertBatch converts at once.
func WithWorkers(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New creates a converter writing URLs under destination.
func New(parser URLParser, destination string, opts ...Option) *Converter {
	c := &Converter{
		parser:      parser,
		destination: destination,
		workers:     1,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert converts one record. Failures never escape as errors: they are reported in
// the outcome.
//
// Parameters:
//   - ctx: Cancelling it fails records that have not started yet
//   - rec: The stored permalink
//
// Returns:
//   - state.Outcome: The converted URL, or why there is none
func (c *Converter) Convert(ctx context.Context, rec state.Record) state.Outcome {
	start := time.Now()
	out := c.convert(ctx, rec)
	c.metrics.Observe(out, time.Since(start))
	c.log(out)
	return out
}

func (c *Converter) convert(ctx context.Context, rec state.Record) state.Outcome {
	out := state.Outcome{
		Ref:         rec.Ref,
		OriginalURL: rec.URL,
		Expected:    rec.Expected,
	}
	if err := ctx.Err(); err != nil {
		return failed(out, err)
	}

	res, err := c.parser.Parse(rec.URL)
	if errors.Is(err, ngeo.ErrOriginMismatch) {
		out.ErrorKind = state.KindOriginMismatch
		out.ErrorReason = err.Error()
		return out
	}
	if err != nil {
		return failed(out, err)
	}
	if ce := c.logger.Check(zap.DebugLevel, "parsed source state"); ce != nil {
		ce.Write(zap.String("ref", rec.Ref), zap.String("state", dumper.Sdump(res.Source)))
	}

	features, leftovers := c.drawing(res.Source)

	converted, err := geogirafe.Serialize(c.destination, geogirafe.Compose(res, features))
	if err != nil {
		return failed(out, err)
	}

	out.Success = true
	out.ConvertedURL = converted
	out.UnconvertibleFragments = append(append([]string(nil), res.Source.UnresolvedFragments...), leftovers...)
	return out
}

// drawing decodes the geometry token. Features that cannot be shown and text after
// the last complete feature are returned as unconvertible fragments.
func (c *Converter) drawing(src state.SourceState) ([]state.PresentationFeature, []string) {
	if !src.HasGeometry() {
		return nil, nil
	}
	decoded := featurehash.Decode(src.GeometryToken)
	features, leftovers := drawing.Map(decoded.Features)
	if decoded.Trailing != "" {
		leftovers = append(leftovers, drawing.DroppedFragmentParam+"="+decoded.Trailing)
	}
	return features, leftovers
}

func failed(out state.Outcome, err error) state.Outcome {
	out.Success = false
	out.ErrorKind = state.KindFailed
	out.ErrorReason = err.Error()
	return out
}

func (c *Converter) log(out state.Outcome) {
	switch {
	case out.Partial():
		c.logger.Warn("record partially converted",
			zap.String("ref", out.Ref),
			zap.Strings("unconvertible", out.UnconvertibleFragments))
	case out.Success:
		c.logger.Debug("record converted", zap.String("ref", out.Ref), zap.String("url", out.ConvertedURL))
	case out.Skipped():
		c.logger.Info("record skipped", zap.String("ref", out.Ref), zap.String("reason", out.ErrorReason))
	default:
		c.logger.Error("record failed", zap.String("ref", out.Ref), zap.String("reason", out.ErrorReason))
	}
}

// ConvertBatch converts every record and returns the outcomes in input order. A
// record that fails or panics yields a failed outcome and never stops the batch.
func (c *Converter) ConvertBatch(ctx context.Context, records []state.Record) ([]state.Outcome, state.Stats) {
	outcomes := make([]state.Outcome, len(records))
	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup

	for i, rec := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = c.safeConvert(ctx, rec)
		}()
	}
	wg.Wait()

	stats := state.Tally(outcomes)
	c.logger.Info("batch complete",
		zap.Int("total", stats.Total),
		zap.Int("converted", stats.Converted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return outcomes, stats
}

func (c *Converter) safeConvert(ctx context.Context, rec state.Record) (out state.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed(state.Outcome{Ref: rec.Ref, OriginalURL: rec.URL, Expected: rec.Expected},
				fmt.Errorf("panic: %v", r))
			c.metrics.Observe(out, 0)
			c.log(out)
		}
	}()
	return c.Convert(ctx, rec)
}
