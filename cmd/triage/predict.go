package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	service "github.com/okian/triage/internal/app"
)

func (c *cli) predictCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "predict <title> <description>",
		Short: "Classify one request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("threshold") {
				threshold = c.cfg.ConfidenceThreshold
			}

			svc := service.New(
				service.WithLogger(c.log.Named("service")),
				service.WithArtifactDirs(c.cfg.ModelDir, c.cfg.DataDir),
				service.WithModelVersion(c.cfg.ModelVersion),
				service.WithStrictModelVersion(c.cfg.StrictModelVersion),
				service.WithWorkerCount(1),
			)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()
			if !svc.Ready() {
				return svc.LoadError()
			}

			pred, err := svc.Predict(ctx, args[0], args[1], threshold)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pred)
		},
	}

	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.6, "confidence threshold (default confidence_threshold)")
	return cmd
}
