// Package scheduler provides cron-based periodic jobs for the chatbot engine.
//
// The flow-expiry sweep registers here so there is a single place that owns
// recurring background work and its shutdown.
package scheduler

import (
	"github.com/robfig/cron/v3"
)

// CronRunner runs periodic jobs from cron expressions.
type CronRunner struct {
	cron *cron.Cron
}

// NewCronRunner creates and starts a cron runner.
func NewCronRunner() *CronRunner {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &CronRunner{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *CronRunner) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *CronRunner) Stop() {
	s.cron.Stop()
}
