package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/billing"
	"github.com/trezcool/hostelmess/core/user"
)

const runTimeout = 10 * time.Minute

type BillGenerator interface {
	Generate(ctx context.Context, actor user.User, req billing.GenerateRequest) (billing.Run, error)
}

// Scheduler runs the automatic monthly bill generation.
type Scheduler struct {
	spec    string
	cron    *cron.Cron
	gen     BillGenerator
	logger  core.Logger
	loc     *time.Location
	nowFunc func() time.Time
}

func New(conf *core.Config, gen BillGenerator, logger core.Logger) *Scheduler {
	return &Scheduler{
		spec:    conf.Billing.Schedule,
		cron:    cron.New(cron.WithLocation(conf.Location), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		gen:     gen,
		logger:  logger,
		loc:     conf.Location,
		nowFunc: time.Now,
	}
}

// Start registers the generation job. It does nothing when no schedule is configured.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, func() { _, _ = s.GeneratePreviousMonth() }); err != nil {
		return errors.Wrapf(err, "scheduling bill generation %q", s.spec)
	}
	s.cron.Start()
	s.logger.Info(fmt.Sprintf("bill generation scheduled: %q", s.spec))
	return nil
}

// Stop waits for a running generation to complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// GeneratePreviousMonth bills the month before the current one as the system user.
func (s *Scheduler) GeneratePreviousMonth() (billing.Run, error) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	month, year := previousMonth(s.nowFunc().In(s.loc))
	run, err := s.gen.Generate(ctx, billing.SystemUser, billing.GenerateRequest{Month: month, Year: year})
	if err != nil {
		s.logger.Error(fmt.Sprintf("scheduled bill generation: %v", err), err)
		return billing.Run{}, err
	}
	return run, nil
}

func previousMonth(now time.Time) (int, int) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	return int(prev.Month()), prev.Year()
}
