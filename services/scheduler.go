// services/scheduler.go
package services

import (
	"context"
	"time"

	"referral-tracking-system/utils"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// StartExportScheduler uploads a daily stats snapshot to R2. Skipped
// entirely when R2 is not configured.
func (s *StatsService) StartExportScheduler() {
	if !utils.R2Enabled() {
		logrus.Warn("[Scheduler] R2 not configured, daily stats export disabled")
		return
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		logrus.Errorf("[Scheduler] failed to create scheduler: %v", err)
		return
	}
	sched.Start()

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			urls, err := s.ExportToR2(ctx)
			if err != nil {
				logrus.Errorf("[Scheduler] stats export failed: %v", err)
				return
			}
			logrus.Infof("[Scheduler] stats exported: %v", urls)
		}),
	)
	if err != nil {
		logrus.Errorf("[Scheduler] failed to register export job: %v", err)
	}
}
