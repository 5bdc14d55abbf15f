package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yycnik/json-log-parser/internal/config"
	"github.com/yycnik/json-log-parser/internal/logging"
	"github.com/yycnik/json-log-parser/internal/metrics"
	"github.com/yycnik/json-log-parser/internal/output"
	"github.com/yycnik/json-log-parser/internal/parser"
	"github.com/yycnik/json-log-parser/internal/runner"
)

// exitError ends the process with code after the runner has already
// printed the reason.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "jlp",
		Short: "jlp — JSON log parser",
		Long: `jlp validates newline-delimited JSON logs against a fixed schema and
counts the unique files referenced by valid lines per file extension.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./.jlp.yaml or $HOME/.jlp.yaml)")
	config.RegisterFlags(root.PersistentFlags())

	cfg := func() string { return cfgFile }
	root.AddCommand(
		newCountCmd(cfg),
		newWatchCmd(cfg),
		newServeCmd(cfg),
		newGenerateCmd(),
	)
	return root
}

// Execute runs the root command and exits with its status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return runner.ExitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(errOut, "Error:", err)
	return runner.ExitUnexpected
}

// session is what every analysing command sets up before its first run.
type session struct {
	cfg     config.Config
	log     zerolog.Logger
	closer  io.Closer
	metrics *metrics.Metrics
	runner  *runner.Runner
}

func newSession(cmd *cobra.Command, cfgFile string) (*session, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	renderer, err := output.New(cfg.Output)
	if err != nil {
		return nil, err
	}
	p, err := parser.New()
	if err != nil {
		return nil, fmt.Errorf("build parser: %w", err)
	}

	log, closer := logging.Open(cfg.Log, cmd.ErrOrStderr())
	if cfg.FileUsed != "" {
		log.Debug().Str("file", cfg.FileUsed).Msg("Using config file")
	}
	m := metrics.New()

	return &session{
		cfg:     cfg,
		log:     log,
		closer:  closer,
		metrics: m,
		runner: runner.New(p,
			runner.WithRenderer(renderer),
			runner.WithLogger(log, cfg.Log.File),
			runner.WithMetrics(m, cfg.MetricsFile),
			runner.WithMaxLineBytes(cfg.MaxLineBytes),
			runner.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		),
	}, nil
}

func (s *session) Close() error { return s.closer.Close() }

// exit turns a runner status into the command result.
func exit(code int) error {
	if code == runner.ExitOK {
		return nil
	}
	return &exitError{code: code}
}
