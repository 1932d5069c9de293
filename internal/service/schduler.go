package service

import (
	"log"

	"github.com/go-co-op/gocron/v2"
)

// NewScheduler builds the gocron scheduler shared by the pipeline
// cron jobs and the daily cache prune.
func NewScheduler() gocron.Scheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal(err)
	}
	return scheduler
}
