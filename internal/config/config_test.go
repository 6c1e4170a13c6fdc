package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/shipwatch/internal/config"
	"github.com/okian/shipwatch/internal/domain/scoring"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.DBDriver, convey.ShouldEqual, config.DriverSQLite)
			convey.So(cfg.SeverityScheme, convey.ShouldEqual, scoring.SchemeThree)
			convey.So(cfg.Risk.StaleDays, convey.ShouldEqual, 3)
			convey.So(cfg.Lifecycle.CancelDwellDays, convey.ShouldEqual, 30)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the duration helpers convert units", func() {
			convey.So(cfg.AlertStaleness(), convey.ShouldEqual, 15*time.Minute)
			convey.So(cfg.RefreshInterval(), convey.ShouldEqual, time.Minute)
			convey.So(cfg.ComputeTimeout(), convey.ShouldEqual, 2*time.Second)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with a single bad value", t, func() {
		cases := map[string]func(c *config.Config){
			"empty addr":          func(c *config.Config) { c.Addr = "" },
			"zero workers":        func(c *config.Config) { c.WorkerCount = 0 },
			"zero queue":          func(c *config.Config) { c.QueueSize = 0 },
			"unknown driver":      func(c *config.Config) { c.DBDriver = "mysql" },
			"postgres no dsn":     func(c *config.Config) { c.DBDriver = config.DriverPostgres },
			"bad log format":      func(c *config.Config) { c.LogFormat = "xml" },
			"bad scheme":          func(c *config.Config) { c.SeverityScheme = "seven" },
			"bad risk policy":     func(c *config.Config) { c.Risk.StaleDays = 0 },
			"bad lifecycle":       func(c *config.Config) { c.Lifecycle.CancelPastETADays = -1 },
			"kafka without group": func(c *config.Config) { c.KafkaBrokers = "localhost:9092"; c.KafkaGroup = "" },
		}
		for _, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		}
	})

	convey.Convey("Given a broker list with blanks", t, func() {
		cfg := config.New()
		cfg.KafkaBrokers = " a:9092, ,b:9092 "
		convey.So(cfg.Brokers(), convey.ShouldResemble, []string{"a:9092", "b:9092"})
	})
}
