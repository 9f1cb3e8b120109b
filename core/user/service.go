package user

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/hostelmess/core"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("user not found")
	ErrEmailExists     = errors.New("a user with this email already exists")
	ErrInvalidLogin    = core.NewValidationError(errors.New("invalid credentials"))
	ErrUserDeactivated = core.NewPermissionError("account deactivated")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on the set QueryFilter fields.
		QueryUsers(ctx context.Context, filter QueryFilter) ([]User, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckUniqueness(ctx context.Context, email string) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:       nu.Name,
		Email:      nu.Email,
		Role:       nu.Role,
		RoomNumber: nu.RoomNumber,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// ActiveStudents returns every User with the student role that is still active.
func (svc *Service) ActiveStudents(ctx context.Context) ([]User, error) {
	active := true
	return svc.repo.QueryUsers(ctx, QueryFilter{Role: RoleStudent, IsActive: &active})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter)
}

// Authenticate returns the active User matching the given credentials.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidLogin
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidLogin
	}
	if !usr.IsActive {
		return User{}, ErrUserDeactivated
	}
	return usr, nil
}
