package cron

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sheguard/sheguard/server/logger"
)

var logg = logger.NewLogger()

// NewCronScheduler creates a gocron scheduler in the given time zone,
// falling back to UTC when the zone can't be loaded.
func NewCronScheduler(timeZoneArg string) *gocron.Scheduler {
	timeZone, err := time.LoadLocation(timeZoneArg)
	if err != nil {
		logg.Warnf("unable to load time zone %q, falling back to UTC", timeZoneArg)
		timeZone = time.UTC
	}

	scheduler := gocron.NewScheduler(timeZone)
	scheduler.TagsUnique()

	return scheduler
}
