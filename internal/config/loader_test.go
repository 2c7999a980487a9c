package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/triage/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, config.WithDotEnv())

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8001")
				convey.So(cfg.ModelVersion, convey.ShouldEqual, "1.0.0")
				convey.So(cfg.ConfidenceThreshold, convey.ShouldEqual, 0.6)
				convey.So(cfg.StrictModelVersion, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("TRIAGE_ADDR", ":8080")
			_ = os.Setenv("TRIAGE_MODEL_DIR", "/srv/models")
			_ = os.Setenv("TRIAGE_CONFIDENCE_THRESHOLD", "0.75")
			_ = os.Setenv("TRIAGE_STRICT_MODEL_VERSION", "true")
			_ = os.Setenv("TRIAGE_MAX_ITER", "250")
			_ = os.Setenv("TRIAGE_RANDOM_STATE", "7")

			cfg, err := config.Load(ctx, config.WithDotEnv())

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ModelDir, convey.ShouldEqual, "/srv/models")
				convey.So(cfg.ConfidenceThreshold, convey.ShouldEqual, 0.75)
				convey.So(cfg.StrictModelVersion, convey.ShouldBeTrue)
				convey.So(cfg.MaxIter, convey.ShouldEqual, 250)
				convey.So(cfg.RandomState, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
model_version: "2.1.0"
test_size: 0.3
max_features: 1000
ngram_max: 1
log_format: json
`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, config.WithFile(tmpFile), config.WithDotEnv())

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.ModelVersion, convey.ShouldEqual, "2.1.0")
				convey.So(cfg.TestSize, convey.ShouldEqual, 0.3)
				convey.So(cfg.MaxFeatures, convey.ShouldEqual, 1000)
				convey.So(cfg.NgramMax, convey.ShouldEqual, 1)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.MaxIter, convey.ShouldEqual, 1000)
			})
		})

		convey.Convey("When the YAML file configures metrics", func() {
			tmpFile := createTempConfigFile(`
metrics_namespace: support
metrics_refresh_interval: 30s
metrics_latency_buckets: [0.5, 1, 5]
metrics_labels:
  env: staging
`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, config.WithFile(tmpFile), config.WithDotEnv())

			convey.Convey("Then durations, lists and maps are decoded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "support")
				convey.So(cfg.MetricsSubsystem, convey.ShouldEqual, "classifier")
				convey.So(cfg.MetricsRefreshInterval, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.MetricsLatencyBuckets, convey.ShouldResemble, []float64{0.5, 1, 5})
				convey.So(cfg.MetricsLabels, convey.ShouldResemble, map[string]string{"env": "staging"})
			})
		})

		convey.Convey("When TRIAGE_CONFIG names the file and env overrides it", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
model_version: "2.1.0"
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("TRIAGE_CONFIG", tmpFile)
			_ = os.Setenv("TRIAGE_ADDR", ":7070")

			cfg, err := config.Load(ctx, config.WithDotEnv())

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.ModelVersion, convey.ShouldEqual, "2.1.0")
			})
		})

		convey.Convey("When loading a .env file", func() {
			dir, err := os.MkdirTemp("", "triage-dotenv")
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = os.RemoveAll(dir) }()
			path := filepath.Join(dir, ".env")
			convey.So(os.WriteFile(path, []byte("TRIAGE_MODEL_VERSION=3.0.0\nTRIAGE_ADDR=:6060\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("TRIAGE_ADDR", ":5050")

			cfg, err := config.Load(ctx, config.WithDotEnv(path))

			convey.Convey("Then .env fills unset variables but does not override real env", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ModelVersion, convey.ShouldEqual, "3.0.0")
				convey.So(cfg.Addr, convey.ShouldEqual, ":5050")
			})
		})

		convey.Convey("When a missing .env path is given", func() {
			cfg, err := config.Load(ctx, config.WithDotEnv(filepath.Join(os.TempDir(), "does-not-exist.env")))

			convey.Convey("Then it is skipped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, config.WithFile(tmpFile), config.WithDotEnv())

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.Load(ctx, config.WithFile("/non/existent/triage.yaml"), config.WithDotEnv())

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an invalid numeric env var", func() {
			_ = os.Setenv("TRIAGE_MAX_ITER", "many")

			cfg, err := config.Load(ctx, config.WithDotEnv())

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a loaded value fails validation", func() {
			_ = os.Setenv("TRIAGE_CONFIDENCE_THRESHOLD", "1.5")

			cfg, err := config.Load(ctx, config.WithDotEnv())

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When log_format uses mixed case", func() {
			_ = os.Setenv("TRIAGE_LOG_FORMAT", " JSON ")

			cfg, err := config.Load(ctx, config.WithDotEnv())

			convey.Convey("Then it is normalized", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})
	})
}

// clearConfigEnvVars unsets every TRIAGE_ variable, including ones set by .env loading.
func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "TRIAGE_") {
			_ = os.Unsetenv(key)
		}
	}
}

// createTempConfigFile creates a temporary YAML config file with the given content.
func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "triage-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
