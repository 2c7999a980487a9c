package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/okian/triage/internal/adapters/corpus"
	"github.com/okian/triage/internal/mockdata"
	"github.com/okian/triage/pkg/logger"
)

func (c *cli) generateCmd() *cobra.Command {
	var (
		count  int
		seed   int64
		output string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic labeled corpus",
		Long: `Generate deterministic support requests for local training runs.
The output format follows the extension: .json keeps every field, .csv keeps
the columns the classifiers use.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			reqs, err := mockdata.New(mockdata.WithSeed(seed)).Generate(ctx, count)
			if err != nil {
				return err
			}
			if err := corpus.WriteFile(output, mockdata.Records(reqs), reqs); err != nil {
				return fmt.Errorf("write corpus: %w", err)
			}
			c.log.Info(ctx, "corpus generated", logger.String("path", output), logger.Int("count", len(reqs)))

			s := mockdata.Summarize(reqs)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d requests to %s\n", len(reqs), output)
			printCounts(cmd, "category", s.ByCategory)
			printCounts(cmd, "priority", s.ByPriority)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", mockdata.DefaultCount, "number of requests")
	cmd.Flags().Int64Var(&seed, "seed", mockdata.DefaultSeed, "random seed")
	cmd.Flags().StringVarP(&output, "output", "o", "data/raw/requests.json", "output file (.json or .csv)")
	return cmd
}

func printCounts(cmd *cobra.Command, name string, counts map[string]int) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", name)
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %d\n", k, counts[k])
	}
}
