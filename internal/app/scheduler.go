package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

const batchJobName = "process_batch"

// Poller runs ProcessBatch on a fixed interval. Runs never overlap: a tick
// that fires while a batch is still running is rescheduled.
type Poller struct {
	service   *Service
	scheduler gocron.Scheduler
	logger    logrus.FieldLogger
}

// NewPoller schedules the batch job. The first batch starts immediately
// once Start is called.
func NewPoller(ctx context.Context, service *Service, interval time.Duration, logger logrus.FieldLogger) (*Poller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", interval)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	p := &Poller{service: service, scheduler: scheduler, logger: logger}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { p.run(ctx) }),
		gocron.WithName(batchJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("schedule batch job: %w", err)
	}
	return p, nil
}

func (p *Poller) Start() {
	p.scheduler.Start()
	p.logger.Info("poller started")
}

// Stop waits for a running batch to return and stops the scheduler.
func (p *Poller) Stop() error {
	return p.scheduler.Shutdown()
}

func (p *Poller) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := p.service.ProcessBatch(ctx)
	if err != nil {
		p.logger.WithError(err).WithField("run_id", report.RunID).Error("batch failed")
	}
}
