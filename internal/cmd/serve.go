package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/yycnik/json-log-parser/internal/config"
	"github.com/yycnik/json-log-parser/internal/hub"
	"github.com/yycnik/json-log-parser/internal/logging"
	"github.com/yycnik/json-log-parser/internal/model"
	"github.com/yycnik/json-log-parser/internal/server"
	"github.com/yycnik/json-log-parser/internal/watcher"
)

func newServeCmd(cfgFile func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [files...]",
		Short: "Serve reports over HTTP and WebSocket",
		Long: `Start an HTTP server with the latest report of the given logs, an
analyze endpoint for uploaded logs, a WebSocket stream of reports and
Prometheus metrics. The logs are re-counted whenever they change.

Examples:
  jlp serve app.json
  jlp serve "logs/*.json" --addr :9090`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, cfgFile())
			if err != nil {
				return err
			}
			defer s.Close()

			inputs, err := watcher.Expand(args)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			reports := make(chan model.Report, 1)
			h := hub.New(reports, logging.WithComponent(s.log, "hub"))
			srv := server.New(h, s.runner.Untracked(), s.metrics.Handler(),
				logging.WithComponent(s.log, "server"), s.cfg.ServerAddr, inputs)

			analyze := func() {
				report, err := s.runner.Analyze(ctx, inputs)
				if err != nil {
					s.runner.Exit(err)
					return
				}
				select {
				case reports <- report:
				case <-ctx.Done():
				}
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.Start(ctx)
			}()

			if len(inputs) > 0 {
				report, err := s.runner.Analyze(ctx, inputs)
				if err != nil {
					cancel()
					wg.Wait()
					return exit(s.runner.Exit(err))
				}
				reports <- report

				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := watchInputs(ctx, inputs, s.log, cmd.ErrOrStderr(), analyze); err != nil {
						s.log.Warn().Err(err).Msg("Not watching inputs")
					}
				}()
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "jlp serving on %s\n", s.cfg.ServerAddr)
			err = srv.Start(ctx)
			cancel()
			wg.Wait()
			return err
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address ("+config.KeyServerAddr+")")
	return cmd
}
