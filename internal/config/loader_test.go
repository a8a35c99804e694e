package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/spinta/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"SPINTA_CONFIG",
	"SPINTA_ENV_FILE",
	"SPINTA_ADDR",
	"SPINTA_QUEUE_SIZE",
	"SPINTA_WORKER_COUNT",
	"SPINTA_BACKEND_URL",
	"SPINTA_ANALYSIS_PROVIDER",
	"SPINTA_ANALYSIS_REMOTE_URL",
	"SPINTA_ANALYSIS_MIN_DURATION_MS",
	"SPINTA_LOG_FORMAT",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func writeTemp(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, "127.0.0.1:9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.AnalysisMinDurationMS, convey.ShouldEqual, 5000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SPINTA_ADDR", ":8080")
			_ = os.Setenv("SPINTA_QUEUE_SIZE", "8")
			_ = os.Setenv("SPINTA_ANALYSIS_MIN_DURATION_MS", "0")
			_ = os.Setenv("SPINTA_BACKEND_URL", "https://api.example.com")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 8)
				convey.So(cfg.AnalysisMinDurationMS, convey.ShouldEqual, 0)
				convey.So(cfg.BackendURL, convey.ShouldEqual, "https://api.example.com")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := writeTemp(t, "spinta.yaml", `
addr: ":9090"
queue_size: 300
worker_count: 24
analysis_provider: fixture
`)
			_ = os.Setenv("SPINTA_CONFIG", path)
			_ = os.Setenv("SPINTA_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.AnalysisProvider, convey.ShouldEqual, "fixture")
			})
		})

		convey.Convey("When a dotenv file is given", func() {
			path := writeTemp(t, "test.env", "SPINTA_LOG_FORMAT=json\n")
			_ = os.Setenv("SPINTA_ENV_FILE", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then its variables are applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When the dotenv file is missing", func() {
			_ = os.Setenv("SPINTA_ENV_FILE", "/non/existent/.env")
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			_ = os.Setenv("SPINTA_CONFIG", writeTemp(t, "bad.yaml", `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("SPINTA_ADDR", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "Addr")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the remote provider has no url", func() {
			_ = os.Setenv("SPINTA_ANALYSIS_PROVIDER", "remote")
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the provider is unknown", func() {
			_ = os.Setenv("SPINTA_ANALYSIS_PROVIDER", "magic")
			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}
