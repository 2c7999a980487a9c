package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/triage/internal/adapters/artifact"
	service "github.com/okian/triage/internal/app"
	"github.com/okian/triage/internal/domain/training"
	"github.com/okian/triage/internal/report"
	"github.com/okian/triage/pkg/logger"
)

func (c *cli) trainCmd() *cobra.Command {
	var (
		testSize    float64
		randomState int64
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train both classifiers on the prepared data",
		Long: `Split the prepared dataset, fit the category and priority classifiers,
evaluate them on the held-out rows and write the models and metadata.json to
model_dir.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts := c.trainingOptions()
			if cmd.Flags().Changed("test-size") {
				opts = append(opts, training.WithTestSize(testSize))
			}
			if cmd.Flags().Changed("random-state") {
				opts = append(opts, training.WithRandomState(randomState))
			}

			bar := newProgress(cmd.ErrOrStderr(), 4, "train")
			opts = append(opts, training.WithProgress(stepper(bar, "train")))

			store := artifact.New(c.cfg.ModelDir, c.cfg.DataDir, artifact.WithLogger(c.log.Named("artifact")))
			res, err := service.Train(ctx, store, opts...)
			_ = bar.Finish()
			if err != nil {
				return err
			}

			info := res.Metadata.TrainingInfo
			c.log.Info(ctx, "models written",
				logger.String("model_dir", c.cfg.ModelDir),
				logger.String("run_id", info.RunID),
				logger.Float64("category_accuracy", res.Category.Accuracy),
				logger.Float64("priority_accuracy", res.Priority.Accuracy),
			)
			return report.Write(cmd.OutOrStdout(), res.Metadata)
		},
	}

	cmd.Flags().Float64Var(&testSize, "test-size", training.DefaultTestSize, "held-out fraction (default test_size)")
	cmd.Flags().Int64Var(&randomState, "random-state", training.DefaultRandomState, "split seed (default random_state)")
	return cmd
}
