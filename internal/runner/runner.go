// Package runner drives one analysis run from input names to a rendered
// report and turns every failure into a single message and exit status.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/yycnik/json-log-parser/internal/aggregator"
	"github.com/yycnik/json-log-parser/internal/linesource"
	"github.com/yycnik/json-log-parser/internal/metrics"
	"github.com/yycnik/json-log-parser/internal/model"
	"github.com/yycnik/json-log-parser/internal/output"
	"github.com/yycnik/json-log-parser/internal/parser"
)

// Exit statuses.
const (
	ExitOK          = 0
	ExitInputAccess = 1
	ExitUnexpected  = 2
)

// Runner holds everything a run needs. Per-run state lives in the
// Aggregator each call creates, so one Runner may serve concurrent calls.
type Runner struct {
	fs           afero.Fs
	parser       *parser.Parser
	renderer     output.Renderer
	log          zerolog.Logger
	metrics      *metrics.Metrics
	metricsFile  string
	logFile      string
	maxLineBytes int
	now          func() time.Time
	out          io.Writer
	errOut       io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithFs reads inputs from fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) Option { return func(r *Runner) { r.fs = fsys } }

// WithRenderer sets the report renderer.
func WithRenderer(rd output.Renderer) Option { return func(r *Runner) { r.renderer = rd } }

// WithLogger sets the run logger and the log file named in failure hints.
func WithLogger(l zerolog.Logger, file string) Option {
	return func(r *Runner) {
		r.log = l
		r.logFile = file
	}
}

// WithMetrics records every run in m and, when file is set, writes the
// metrics there after each run.
func WithMetrics(m *metrics.Metrics, file string) Option {
	return func(r *Runner) {
		r.metrics = m
		r.metricsFile = file
	}
}

// WithMaxLineBytes bounds input lines.
func WithMaxLineBytes(n int) Option { return func(r *Runner) { r.maxLineBytes = n } }

// WithClock sets the report time source.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithOutput sets where reports and failure messages go.
func WithOutput(out, errOut io.Writer) Option {
	return func(r *Runner) {
		r.out = out
		r.errOut = errOut
	}
}

// New creates a Runner around p.
func New(p *parser.Parser, opts ...Option) *Runner {
	r := &Runner{
		fs:           afero.NewOsFs(),
		parser:       p,
		renderer:     output.TextRenderer{},
		log:          zerolog.Nop(),
		maxLineBytes: linesource.DefaultMaxLineBytes,
		now:          time.Now,
		out:          io.Discard,
		errOut:       io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Untracked returns a copy of r that records nothing in its metrics, for
// one-off analyses that must not replace the figures of the watched inputs.
func (r *Runner) Untracked() *Runner {
	c := *r
	c.metrics = nil
	c.metricsFile = ""
	return &c
}

// Run analyses inputs, prints the report and returns the exit status.
func (r *Runner) Run(ctx context.Context, inputs []string) (code int) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Str("stack", string(debug.Stack())).Msgf("panic: %v", p)
			code = r.Exit(fmt.Errorf("%v", p))
		}
	}()

	report, err := r.Analyze(ctx, inputs)
	if err != nil {
		return r.Exit(err)
	}
	if err := r.renderer.Render(r.out, report); err != nil {
		return r.Exit(fmt.Errorf("render report: %w", err))
	}
	return ExitOK
}

// Exit prints the message for err and returns the matching exit status.
func (r *Runner) Exit(err error) int {
	var access *linesource.AccessError
	if errors.As(err, &access) {
		r.log.Error().Err(err).Msg("Input not accessible")
		fmt.Fprintln(r.errOut, access.Error())
		return ExitInputAccess
	}

	r.log.Error().Err(err).Msg("Unexpected error")
	fmt.Fprintf(r.errOut, "jlp encountered unexpected error: %v\n", err)
	if r.logFile != "" {
		fmt.Fprintf(r.errOut, "Check %s for more details\n", r.logFile)
	}
	return ExitUnexpected
}

// Analyze runs one pass over every input and returns the combined report.
// All inputs are checked before any is read so a bad name fails the run
// without partial results.
func (r *Runner) Analyze(ctx context.Context, inputs []string) (model.Report, error) {
	if len(inputs) == 0 {
		return model.Report{}, &linesource.AccessError{Reason: "not provided"}
	}
	for _, name := range inputs {
		if err := linesource.Check(r.fs, name); err != nil {
			return model.Report{}, err
		}
	}

	start := time.Now()
	agg := aggregator.New(r.parser, r.observer())
	for _, name := range inputs {
		if err := ctx.Err(); err != nil {
			return model.Report{}, err
		}
		if err := r.collect(agg, name); err != nil {
			return model.Report{}, err
		}
	}
	return r.finish(agg, inputs, time.Since(start))
}

// AnalyzeReader runs one pass over an already open stream.
func (r *Runner) AnalyzeReader(name string, body io.Reader) (model.Report, error) {
	start := time.Now()
	agg := aggregator.New(r.parser, r.observer())

	r.log.Info().Str("file", name).Msg("Processing file")
	if err := agg.Collect(linesource.FromReader(name, body, r.maxLineBytes)); err != nil {
		return model.Report{}, err
	}
	return r.finish(agg, []string{name}, time.Since(start))
}

func (r *Runner) collect(agg *aggregator.Aggregator, name string) error {
	r.log.Info().Str("file", name).Msg("Processing file")

	src, err := linesource.Open(r.fs, name, r.maxLineBytes)
	if err != nil {
		return err
	}
	defer src.Close()

	return agg.Collect(src)
}

func (r *Runner) finish(agg *aggregator.Aggregator, sources []string, took time.Duration) (model.Report, error) {
	report := agg.Report(r.now(), sources)
	r.logStats(report)

	if r.metrics != nil {
		r.metrics.ObserveReport(report, took)
		if r.metricsFile != "" {
			if err := r.metrics.WriteTextfile(r.metricsFile); err != nil {
				return model.Report{}, fmt.Errorf("write metrics: %w", err)
			}
		}
	}
	return report, nil
}

func (r *Runner) logStats(report model.Report) {
	r.log.Info().Int("count", report.TotalLines).Msg("Total lines")
	r.log.Info().Int("count", report.ValidLines).Msg("Valid lines")
	r.log.Info().Int("count", report.InvalidLines).Msg("Invalid lines")
	for _, rej := range report.Rejections {
		r.log.Debug().
			Str("kind", rej.Kind).
			Str("reason", rej.Message).
			Int("count", rej.Count).
			Msg("Rejected lines")
	}
}

func (r *Runner) observer() aggregator.Observer {
	obs := aggregator.Observers{logObserver{r.log}}
	if r.metrics != nil {
		obs = append(obs, r.metrics)
	}
	return obs
}

// logObserver writes one debug record per rejected line.
type logObserver struct {
	log zerolog.Logger
}

func (logObserver) Accepted(int, model.Document) {}

func (o logObserver) Rejected(line int, err *parser.Error) {
	o.log.Debug().
		Int("line", line).
		Str("kind", err.Kind.String()).
		Str("reason", err.Message).
		Msg("Invalid line")
}
