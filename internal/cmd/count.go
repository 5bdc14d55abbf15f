package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yycnik/json-log-parser/internal/watcher"
)

func newCountCmd(cfgFile func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "count [files...]",
		Short: "Count unique files per extension",
		Long: `Validate every line of the given logs (files or glob patterns) and
print the number of unique files per extension.

Examples:
  jlp count sample.json
  jlp count "logs/**/*.json" --output table`,
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
			return exit(s.runner.Run(cmd.Context(), inputs))
		},
	}
}
