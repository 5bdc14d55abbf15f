package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yycnik/json-log-parser/internal/runner"
	"github.com/yycnik/json-log-parser/internal/watcher"
)

// settle groups bursts of writes into one re-run.
const settle = 200 * time.Millisecond

func newWatchCmd(cfgFile func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [files...]",
		Short: "Re-count whenever the logs change",
		Long: `Count once, then watch the given logs (files or glob patterns) and
print a fresh report after every change.

Examples:
  jlp watch app.json
  jlp watch "/var/log/**/*.json" --output json`,
		Args: cobra.MinimumNArgs(1),
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

			ctx := cmd.Context()
			if code := s.runner.Run(ctx, inputs); code == runner.ExitInputAccess {
				return exit(code)
			}

			errOut := cmd.ErrOrStderr()
			err = watchInputs(ctx, inputs, s.log, errOut, func() {
				s.runner.Run(ctx, inputs)
			})
			fmt.Fprintln(errOut, "jlp shutting down")
			return err
		},
	}
}

// watchInputs calls onChange after every settled burst of changes to
// inputs. It blocks until ctx is cancelled.
func watchInputs(ctx context.Context, inputs []string, log zerolog.Logger, errOut io.Writer, onChange func()) error {
	w, err := watcher.New(inputs, log)
	if err != nil {
		return err
	}
	paths := w.Paths()
	if len(paths) == 0 {
		return errors.New("none of the inputs can be watched")
	}

	fmt.Fprintf(errOut, "jlp watching %d file(s):\n", len(paths))
	for _, p := range paths {
		fmt.Fprintf(errOut, "   • %s\n", p)
	}
	log.Info().Strs("files", paths).Msg("Watching inputs")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.Start(ctx)

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			log.Debug().Str("file", ev.Path).Str("op", ev.Op.String()).Msg("Input changed")
			// Editors and rotation replace the file; follow the new one.
			if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
				if err := w.ReWatch(ev.Path); err != nil {
					log.Warn().Err(err).Str("file", ev.Path).Msg("Input is gone")
				}
			}
			timer.Reset(settle)
		case <-timer.C:
			onChange()
		}
	}
}
