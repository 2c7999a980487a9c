package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/triage/internal/config"
	"github.com/okian/triage/internal/domain/classifier"
	"github.com/okian/triage/internal/domain/training"
	"github.com/okian/triage/internal/domain/vectorize"
	"github.com/okian/triage/pkg/logger"
)

// cli carries state shared by the subcommands once the root has run.
type cli struct {
	configFile string
	logLevel   string
	cfg        *config.Config
	log        logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "triage",
		Short:         "Train and serve support request classifiers",
		Long:          `Category and priority classifiers for support requests on a shared TF-IDF representation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML config file (default $TRIAGE_CONFIG)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log_level: debug, info, warn, error")

	root.AddCommand(
		c.generateCmd(),
		c.prepareCmd(),
		c.trainCmd(),
		c.predictCmd(),
		c.serveCmd(),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Context(), config.WithFile(c.configFile))
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	if err := logger.InitWith(logger.Options{Format: cfg.LogFormat, Output: os.Stderr}); err != nil {
		return err
	}
	c.log = logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		c.log.Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

func (c *cli) vectorizerOptions() []vectorize.Option {
	return []vectorize.Option{
		vectorize.WithNgramRange(c.cfg.NgramMin, c.cfg.NgramMax),
		vectorize.WithMinDF(c.cfg.MinDF),
		vectorize.WithMaxDF(c.cfg.MaxDF),
		vectorize.WithMaxFeatures(c.cfg.MaxFeatures),
	}
}

func (c *cli) trainingOptions() []training.Option {
	return []training.Option{
		training.WithTestSize(c.cfg.TestSize),
		training.WithRandomState(c.cfg.RandomState),
		training.WithModelVersion(c.cfg.ModelVersion),
		training.WithLogger(c.log.Named("training")),
		training.WithClassifierOptions(
			classifier.WithMaxIter(c.cfg.MaxIter),
			classifier.WithTolerance(c.cfg.Tolerance),
			classifier.WithRegularization(c.cfg.Regularization),
		),
	}
}
