package settings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core"
	"github.com/trezcool/hostelmess/core/audit"
	"github.com/trezcool/hostelmess/core/user"
)

// EntityType identifies Settings in audit entries.
const EntityType = "Settings"

var (
	// errors
	ErrHolidayNotFound = core.NewNotFoundError("holiday not found")
	ErrHolidayExists   = core.NewConflictError("a holiday already exists on this date")
)

type (
	Repository interface {
		// GetOrCreateSettings returns the singleton Settings, inserting defaults when missing.
		GetOrCreateSettings(ctx context.Context, defaults Settings) (Settings, error)
		UpdateSettings(ctx context.Context, s Settings) (Settings, error)
		// AddHoliday fails with ErrHolidayExists if a holiday already falls on h.Date.
		AddHoliday(ctx context.Context, h Holiday, updatedBy string, at time.Time) (Settings, error)
		// RemoveHoliday fails with ErrHolidayNotFound if no holiday has the given id.
		RemoveHoliday(ctx context.Context, id string, updatedBy string, at time.Time) (Settings, error)
	}

	Service struct {
		repo     Repository
		defaults Settings
		loc      *time.Location
		auditor  audit.Auditor
		logger   core.Logger
		nowFunc  func() time.Time
	}
)

func NewService(repo Repository, conf *core.Config, auditor audit.Auditor, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		defaults: Default(conf.Mess),
		loc:      conf.Location,
		auditor:  auditor,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// SetClock overrides the time source used by the cutoff policy.
func (svc *Service) SetClock(now func() time.Time) {
	svc.nowFunc = now
}

func (svc *Service) Location() *time.Location { return svc.loc }

func (svc *Service) Get(ctx context.Context) (Settings, error) {
	s, err := svc.repo.GetOrCreateSettings(ctx, svc.defaults)
	if err != nil {
		return Settings{}, errors.Wrap(err, "loading settings")
	}
	return s, nil
}

func (svc *Service) Update(ctx context.Context, actor user.User, us UpdateSettings) (Settings, error) {
	if !actor.IsAdmin() {
		return Settings{}, core.ErrPermissionDenied
	}
	before, err := svc.Get(ctx)
	if err != nil {
		return Settings{}, err
	}

	next := us.apply(before)
	next.UpdatedBy = actor.ID
	next.UpdatedAt = svc.nowFunc().UTC()
	after, err := svc.repo.UpdateSettings(ctx, next)
	if err != nil {
		return Settings{}, errors.Wrap(err, "updating settings")
	}

	svc.notify(ctx, actor, audit.ActionSettingsUpdate, before, after)
	return after, nil
}

func (svc *Service) AddHoliday(ctx context.Context, actor user.User, nh NewHoliday) (Settings, error) {
	if !actor.IsAdmin() {
		return Settings{}, core.ErrPermissionDenied
	}
	date := nh.date
	if date.IsZero() {
		var err error
		if date, err = core.ParseDate(nh.Date, svc.loc); err != nil {
			return Settings{}, err
		}
	}
	before, err := svc.Get(ctx)
	if err != nil {
		return Settings{}, err
	}

	h := Holiday{
		ID:     uuid.New().String(),
		Date:   core.Day(date.In(svc.loc)),
		Reason: nh.Reason,
	}
	after, err := svc.repo.AddHoliday(ctx, h, actor.ID, svc.nowFunc().UTC())
	if err != nil {
		return Settings{}, err
	}

	svc.notify(ctx, actor, audit.ActionUpdate, before, after)
	return after, nil
}

func (svc *Service) RemoveHoliday(ctx context.Context, actor user.User, id string) (Settings, error) {
	if !actor.IsAdmin() {
		return Settings{}, core.ErrPermissionDenied
	}
	before, err := svc.Get(ctx)
	if err != nil {
		return Settings{}, err
	}
	after, err := svc.repo.RemoveHoliday(ctx, id, actor.ID, svc.nowFunc().UTC())
	if err != nil {
		return Settings{}, err
	}

	svc.notify(ctx, actor, audit.ActionUpdate, before, after)
	return after, nil
}

// CanConfirmMeal checks the current Settings' holiday and cutoff policy for mealDate.
func (svc *Service) CanConfirmMeal(ctx context.Context, mealDate time.Time) (Decision, error) {
	s, err := svc.Get(ctx)
	if err != nil {
		return Decision{}, err
	}
	return s.CanConfirmMeal(mealDate, svc.nowFunc(), svc.loc)
}

// EnsureCanConfirmMeal is CanConfirmMeal reporting a denial as a *core.PolicyDeniedError.
func (svc *Service) EnsureCanConfirmMeal(ctx context.Context, mealDate time.Time) error {
	d, err := svc.CanConfirmMeal(ctx, mealDate)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return core.NewPolicyDeniedError(d.Reason)
	}
	return nil
}

func (svc *Service) notify(ctx context.Context, actor user.User, action string, before, after Settings) {
	audit.Notify(ctx, svc.auditor, svc.logger, audit.Entry{
		EntityType: EntityType,
		EntityID:   EntityType,
		Action:     action,
		Actor:      actor.ID,
		Before:     before,
		After:      after,
	})
}
