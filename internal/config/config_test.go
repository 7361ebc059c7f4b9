package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/finishline/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreSQLite)
			convey.So(cfg.JobQueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then resolved items are kept unless retention is configured", func() {
			convey.So(cfg.RetentionDays, convey.ShouldEqual, 0)
			cfg.RetentionDays = 30
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.Maintenance().RetainFor, convey.ShouldEqual, 30*24*time.Hour)
		})

		convey.Convey("Then derived values follow the raw fields", func() {
			th := cfg.Thresholds()
			convey.So(th.AutoApprove, convey.ShouldEqual, 85)
			convey.So(th.Review, convey.ShouldEqual, 50)
			convey.So(th.FaceMatch, convey.ShouldEqual, 70)
			convey.So(cfg.ClaimLease(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.Maintenance().RetainFor, convey.ShouldEqual, time.Duration(0))
			convey.So(cfg.Maintenance().ClaimSweep, convey.ShouldEqual, "@every 1m")
			convey.So(cfg.DetectionTimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.RetryBackoff(), convey.ShouldEqual, 200*time.Millisecond)
			convey.So(cfg.ShutdownTimeout(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.SQLiteBusyTimeout(), convey.ShouldEqual, 5*time.Second)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*config.Config){
		"empty addr":          func(c *config.Config) { c.Addr = "" },
		"bad level":           func(c *config.Config) { c.LogLevel = "loud" },
		"bad format":          func(c *config.Config) { c.LogFormat = "xml" },
		"bad driver":          func(c *config.Config) { c.StoreDriver = "postgres" },
		"sqlite without path": func(c *config.Config) { c.SQLitePath = " " },
		"inverted thresholds": func(c *config.Config) { c.AutoApproveThreshold = 40 },
		"face threshold":      func(c *config.Config) { c.FaceMatchThreshold = 120 },
		"zero lease":          func(c *config.Config) { c.ClaimLeaseSeconds = 0 },
		"bad sweep":           func(c *config.Config) { c.ClaimSweepSchedule = "every minute" },
		"bad retention":       func(c *config.Config) { c.RetentionSchedule = "99 * * * *" },
		"negative retention":  func(c *config.Config) { c.RetentionDays = -1 },
		"zero queue":          func(c *config.Config) { c.JobQueueSize = 0 },
		"no detection":        func(c *config.Config) { c.DetectionURL = "" },
		"half slack":          func(c *config.Config) { c.SlackToken = "xoxb-1" },
		"page limits":         func(c *config.Config) { c.MaxPageLimit = 5 },
	}

	convey.Convey("Given invalid configurations", t, func() {
		for name, mutate := range cases {
			convey.Convey("When the config has "+name, func() {
				cfg := config.New()
				mutate(cfg)
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Given the memory driver and fixtures instead of a service", t, func() {
		cfg := config.New()
		cfg.StoreDriver = config.StoreMemory
		cfg.SQLitePath = ""
		cfg.DetectionURL = ""
		cfg.DetectionFixtures = "fixtures.yaml"
		cfg.ClaimSweepSchedule = ""
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
