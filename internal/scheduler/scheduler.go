// Package scheduler runs the periodic jobs: reminder delivery and the nightly
// horizon extension.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/finance-tracker/internal/config"
)

// Deliverer sends reminders that are due
type Deliverer interface {
	DeliverDue(ctx context.Context) (int, error)
}

// HorizonExtender tops up open-ended schedules
type HorizonExtender interface {
	ExtendHorizons(ctx context.Context) (int, error)
}

// Scheduler owns the cron instance
type Scheduler struct {
	cron      *cron.Cron
	deliverer Deliverer
	extender  HorizonExtender
	log       *logrus.Logger

	deliverySpec string
	horizonSpec  string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a scheduler evaluating cron specs in the configured time zone
func New(cfg *config.Config, deliverer Deliverer, extender HorizonExtender, log *logrus.Logger) *Scheduler {
	logger := cron.PrintfLogger(log)
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		deliverer:    deliverer,
		extender:     extender,
		log:          log,
		deliverySpec: cfg.DeliveryCron,
		horizonSpec:  cfg.HorizonCron,
	}
}

// Start registers both jobs and starts the cron loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	if _, err := s.cron.AddFunc(s.deliverySpec, func() { s.RunDelivery(s.jobContext()) }); err != nil {
		return fmt.Errorf("invalid delivery schedule %q: %w", s.deliverySpec, err)
	}
	if _, err := s.cron.AddFunc(s.horizonSpec, func() { s.RunHorizon(s.jobContext()) }); err != nil {
		return fmt.Errorf("invalid horizon schedule %q: %w", s.horizonSpec, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.log.Infof("Scheduler started: delivery %q, horizon %q", s.deliverySpec, s.horizonSpec)
	return nil
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// RunDelivery sends due reminders once
func (s *Scheduler) RunDelivery(ctx context.Context) {
	sent, err := s.deliverer.DeliverDue(ctx)
	if err != nil {
		s.log.Errorf("Reminder delivery failed: %v", err)
		return
	}
	if sent > 0 {
		s.log.Infof("Delivered %d reminders", sent)
	}
}

// RunHorizon extends open-ended schedules once
func (s *Scheduler) RunHorizon(ctx context.Context) {
	if _, err := s.extender.ExtendHorizons(ctx); err != nil {
		s.log.Errorf("Horizon extension failed: %v", err)
	}
}
