package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/hostelmess/core"
)

// Roles
const (
	RoleStudent = "student"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

var (
	AllRoles = []string{RoleStudent, RoleManager, RoleAdmin}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Manager", Value: RoleManager},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	RoomNumber   string    `json:"room_number,omitempty"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) IsStudent() bool { return u.Role == RoleStudent }
func (u User) IsManager() bool { return u.Role == RoleManager }
func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }

// CanManage reports whether u may mark and approve attendance.
func (u User) CanManage() bool { return u.IsManager() || u.IsAdmin() }

// IsActiveStudent reports whether u belongs to the billed population.
func (u User) IsActiveStudent() bool { return u.IsStudent() && u.IsActive }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name       string `json:"name" validate:"required,notblank"`
	Email      string `json:"email" validate:"required,email"`
	Role       string `json:"role" validate:"required,oneof=student manager admin"`
	RoomNumber string `json:"room_number"`
	Password   string `json:"password" validate:"required,min=8"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.RoomNumber = core.CleanString(nu.RoomNumber)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}
