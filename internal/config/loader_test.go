package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/shipwatch/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.AlertStalenessMinutes, convey.ShouldEqual, 15)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("SHIPWATCH_ADDR", ":8080")
			_ = os.Setenv("SHIPWATCH_QUEUE_SIZE", "500")
			_ = os.Setenv("SHIPWATCH_WORKER_COUNT", "3")
			_ = os.Setenv("SHIPWATCH_KAFKA_BROKERS", "k1:9092,k2:9092")
			_ = os.Setenv("SHIPWATCH_RISK__STALE_DAYS", "4.5")
			_ = os.Setenv("SHIPWATCH_LIFECYCLE__CANCEL_DWELL_DAYS", "21")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then env vars override defaults, including nested keys", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.Brokers(), convey.ShouldResemble, []string{"k1:9092", "k2:9092"})
				convey.So(cfg.Risk.StaleDays, convey.ShouldEqual, 4.5)
				convey.So(cfg.Risk.LongDwellDays, convey.ShouldEqual, 2)
				convey.So(cfg.Lifecycle.CancelDwellDays, convey.ShouldEqual, 21)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
queue_size: 300
log_format: json
severity_scheme: five
alert_staleness_minutes: 5
risk:
  healthy_cap: 10
  eta_bands:
    - limit: 1
      points: 40
lifecycle:
  cancel_past_eta_days: 7
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SHIPWATCH_CONFIG", tmpFile)
			_ = os.Setenv("SHIPWATCH_QUEUE_SIZE", "900")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 900)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.SeverityScheme, convey.ShouldEqual, "five")
				convey.So(cfg.AlertStaleness(), convey.ShouldEqual, 5*time.Minute)
				convey.So(cfg.Risk.HealthyCap, convey.ShouldEqual, 10)
				convey.So(cfg.Risk.HealthyStaleCap, convey.ShouldEqual, 25)
				convey.So(len(cfg.Risk.ETABands), convey.ShouldEqual, 1)
				convey.So(cfg.Risk.ETABands[0].Points, convey.ShouldEqual, 40)
				convey.So(cfg.Lifecycle.CancelPastETADays, convey.ShouldEqual, 7)
				convey.So(cfg.Lifecycle.CancelDwellDays, convey.ShouldEqual, 30)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("SHIPWATCH_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SHIPWATCH_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("SHIPWATCH_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("SHIPWATCH_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When postgres is selected without a DSN", func() {
			_ = os.Setenv("SHIPWATCH_DB_DRIVER", "postgres")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"SHIPWATCH_CONFIG",
		"SHIPWATCH_ADDR",
		"SHIPWATCH_QUEUE_SIZE",
		"SHIPWATCH_WORKER_COUNT",
		"SHIPWATCH_KAFKA_BROKERS",
		"SHIPWATCH_RISK__STALE_DAYS",
		"SHIPWATCH_LIFECYCLE__CANCEL_DWELL_DAYS",
		"SHIPWATCH_DB_DRIVER",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "shipwatch-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
