package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/yycnik/json-log-parser/internal/generator"
)

func newGenerateCmd() *cobra.Command {
	var (
		lines      int
		extensions int
		seed       int64
	)

	cmd := &cobra.Command{
		Use:   "generate <file>",
		Short: "Write a synthetic log of valid lines",
		Long: `Write a log file in which every line passes validation, for trying
out and benchmarking the other commands.

Examples:
  jlp generate sample.json --lines 100000
  jlp generate small.json --lines 10 --extensions 3 --seed 7`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines < 0 {
				return fmt.Errorf("invalid --lines %d: must not be negative", lines)
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[0], err)
			}
			defer f.Close()

			errOut := cmd.ErrOrStderr()
			bar := progressbar.NewOptions(lines,
				progressbar.OptionSetWriter(errOut),
				progressbar.OptionSetDescription("generating"),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(errOut) }),
			)

			opts := []generator.Option{generator.WithProgress(func() { _ = bar.Add(1) })}
			if seed != 0 {
				opts = append(opts, generator.WithSeed(seed))
			}
			files, err := generator.New(extensions, opts...).Write(f, lines)
			if err != nil {
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d lines (%d unique files) to %s\n", lines, files.Len(), args[0])
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 1000, "number of lines to write")
	cmd.Flags().IntVarP(&extensions, "extensions", "e", generator.DefaultExtSize, "number of distinct extensions to draw from")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	return cmd
}
