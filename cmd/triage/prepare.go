package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/triage/internal/adapters/artifact"
	"github.com/okian/triage/internal/adapters/corpus"
	service "github.com/okian/triage/internal/app"
)

const (
	sourceFile = "file"
	sourceAPI  = "api"
)

func (c *cli) prepareCmd() *cobra.Command {
	var (
		source   string
		input    string
		selector string
		unique   bool
		window   int
	)

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Fit the vectorizer and label encoders on a corpus",
		Long: `Read a labeled corpus from a CSV, JSON or YAML file or from the backend API,
fit the TF-IDF vectorizer and both label encoders, and write them with the
vectorized features to data_dir.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("selector") {
				selector = c.cfg.RecordsSelector
			}
			opts := []corpus.Option{corpus.WithSelector(selector)}

			var src corpus.Source
			var err error
			switch source {
			case sourceFile:
				src, err = corpus.NewFileSource(input, opts...)
			case sourceAPI:
				src, err = corpus.NewAPISource(c.cfg.BackendAPIURL, c.cfg.BackendAPIKey, opts...)
			default:
				return fmt.Errorf("unknown source %q: want %s or %s", source, sourceFile, sourceAPI)
			}
			if err != nil {
				return err
			}
			if unique {
				src = service.Unique(src, window)
			}

			bar := newProgress(cmd.ErrOrStderr(), 1, "prepare")
			bar.Describe("prepare: " + source)
			store := artifact.New(c.cfg.ModelDir, c.cfg.DataDir, artifact.WithLogger(c.log.Named("artifact")))
			in, err := service.Prepare(ctx, src, store, c.vectorizerOptions()...)
			_ = bar.Finish()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "prepared %d rows, %d features\ncategories: %v\npriorities: %v\nwritten to %s\n",
				in.Dataset.Len(), in.Vectorizer.Dim(), in.Category.Classes(), in.Priority.Classes(), c.cfg.DataDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", sourceFile, "corpus source: file or api")
	cmd.Flags().StringVarP(&input, "input", "i", "data/raw/requests.json", "corpus file for --source file")
	cmd.Flags().StringVar(&selector, "selector", ".", "jq expression selecting the record array (default records_selector)")
	cmd.Flags().BoolVar(&unique, "dedupe-ids", false, "keep only the first record of each request id")
	cmd.Flags().IntVar(&window, "dedupe-window", 0, "remember at most this many recent ids (0 keeps all)")
	return cmd
}
