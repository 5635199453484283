package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/examtrack/core"
)

// Roles
const (
	RoleUser     = "user"
	RoleSubadmin = "subadmin"
	RoleAdmin    = "admin"
)

// Account statuses
const (
	StatusPendingApproval = "pending_approval"
	StatusActive          = "active"
	StatusDemo            = "demo"
)

// Unban request statuses
const (
	UnbanPending  = "pending"
	UnbanReviewed = "reviewed"
)

var (
	AllRoles    = []string{RoleUser, RoleSubadmin, RoleAdmin}
	AllStatuses = []string{StatusPendingApproval, StatusActive, StatusDemo}

	rolePriorities = map[string]int{
		RoleAdmin:    20,
		RoleSubadmin: 10,
		RoleUser:     1,
	}

	Roles = []Role{
		{Name: "User", Value: RoleUser},
		{Name: "Sub-Admin", Value: RoleSubadmin},
		{Name: "Admin", Value: RoleAdmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID                     string     `json:"id"`
	Name                   string     `json:"name"`
	Email                  string     `json:"email"`
	PasswordHash           []byte     `json:"-"`
	PatternHash            []byte     `json:"-"`
	Role                   string     `json:"role"`
	AccountStatus          string     `json:"account_status"`
	IsPremium              bool       `json:"is_premium"`
	AccessCode             string     `json:"access_code"`
	Exam                   string     `json:"exam"`
	ClassLevel             string     `json:"class_level"`
	TargetYear             int        `json:"target_year"`
	OnboardingCompleted    bool       `json:"onboarding_completed"`
	IsBanned               bool       `json:"is_banned"`
	BanExpiresAt           *time.Time `json:"ban_expires_at"` // nil: permanent ban
	HasPendingUnbanRequest bool       `json:"has_pending_unban_request"`
	IsDeleted              bool       `json:"is_deleted"`
	Theme                  string     `json:"theme"`
	DarkMode               bool       `json:"dark_mode"`
	CurrentStreak          int        `json:"current_streak"`
	LongestStreak          int        `json:"longest_streak"`
	TotalPoints            int        `json:"total_points"`
	LastGoalCompletedDate  string     `json:"last_goal_completed_date"` // YYYY-MM-DD
	CreatedAt              time.Time  `json:"created_at"`               // UTC
	UpdatedAt              time.Time  `json:"updated_at"`               // UTC
	LastLogin              time.Time  `json:"last_login"`               // UTC
}

// MarshalJSON adds the derived fields to the user's JSON.
func (u User) MarshalJSON() ([]byte, error) {
	type alias User
	return json.Marshal(struct {
		alias
		HasPattern       bool `json:"has_pattern"`
		EffectivePremium bool `json:"effective_premium"`
	}{
		alias:            alias(u),
		HasPattern:       u.HasPattern(),
		EffectivePremium: u.EffectivePremium(),
	})
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

func (u *User) IsAdmin() bool    { return u.Role == RoleAdmin }
func (u *User) IsSubadmin() bool { return u.Role == RoleSubadmin }

// IsStaff reports whether the user can access the admin console.
func (u *User) IsStaff() bool { return u.IsAdmin() || u.IsSubadmin() }

func (u *User) HasPattern() bool { return len(u.PatternHash) > 0 }

// EffectivePremium reports whether premium features are unlocked for the user.
// Admins are premium unless they are still in demo. Sub-admins always are.
func (u *User) EffectivePremium() bool {
	switch u.Role {
	case RoleAdmin:
		return u.AccountStatus != StatusDemo
	case RoleSubadmin:
		return true
	default:
		return u.IsPremium
	}
}

// BanActive reports whether the user is banned at `now`.
func (u *User) BanActive(now time.Time) bool {
	return u.IsBanned && (u.BanExpiresAt == nil || u.BanExpiresAt.After(now))
}

// NewUser contains information needed to create a new User.
// Role, AccountStatus and IsPremium are only honoured when an admin creates the user.
type NewUser struct {
	Name            string `json:"name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,role"`
	AccountStatus   string `json:"account_status" validate:"omitempty,accstatus"`
	IsPremium       bool   `json:"is_premium"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided by an admin to modify an existing User.
type UpdateUser struct {
	Name            string `json:"name" validate:"omitempty,max=100"`
	Email           string `json:"email" validate:"omitempty,email"`
	AccountStatus   string `json:"account_status" validate:"omitempty,accstatus"`
	IsPremium       *bool  `json:"is_premium"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Email, origUsr.ID)
}

// UpdateSettings holds the profile settings a user may change on their own.
type UpdateSettings struct {
	Name     string  `json:"name" validate:"omitempty,max=100"`
	Theme    *string `json:"theme" validate:"omitempty,max=30"`
	DarkMode *bool   `json:"dark_mode"`
}

func (us *UpdateSettings) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	if us.Theme != nil {
		theme := core.CleanString(*us.Theme, true /* lower */)
		us.Theme = &theme
	}
	return validate.Struct(us)
}

// Onboarding holds the exam profile chosen by a user after signing up.
type Onboarding struct {
	Exam       string `json:"exam" validate:"required,exam"`
	ClassLevel string `json:"class_level" validate:"required,oneof=11 12 Dropper"`
	TargetYear int    `json:"target_year" validate:"required"`
}

func (ob *Onboarding) Validate(validate *validator.Validate, currentYear int) error {
	ob.Exam = strings.ToUpper(core.CleanString(ob.Exam))
	ob.ClassLevel = core.CleanString(ob.ClassLevel)
	if err := validate.Struct(ob); err != nil {
		return err
	}
	if ob.TargetYear < currentYear || ob.TargetYear > currentYear+5 {
		return core.NewValidationError(nil, core.FieldError{Field: "target_year", Error: "target year is out of range"})
	}
	return nil
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type SetPattern struct {
	Pattern  string `json:"pattern" validate:"required,pattern"`
	Password string `json:"password" validate:"required"` // current password
}

func (sp *SetPattern) Validate(validate *validator.Validate) error {
	sp.Pattern = core.CleanString(sp.Pattern)
	return validate.Struct(sp)
}

type BanUser struct {
	Hours int `json:"hours" validate:"min=0,max=8760"` // 0: permanent
}

func (bu BanUser) Validate(validate *validator.Validate) error { return validate.Struct(bu) }

// GetFilter selects a single user. The first non-empty field is used.
type GetFilter struct {
	ID         string
	Email      string
	AccessCode string
	ForUpdate  bool // lock the row until the end of the transaction (postgres only)
}

type QueryFilter struct {
	Search    string   `query:"search"`
	Roles     []string `query:"role"`
	Statuses  []string `query:"status"`
	IsBanned  *bool    `query:"is_banned"`
	IsPremium *bool    `query:"is_premium"`
	IsDeleted *bool    `query:"is_deleted"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.Statuses == nil &&
		qf.IsBanned == nil && qf.IsPremium == nil && qf.IsDeleted == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Roles = core.CleanStrings(qf.Roles, true /* lower */)
	qf.Statuses = core.CleanStrings(qf.Statuses, true /* lower */)
}

// OrderingFields are the fields users can be ordered by.
var OrderingFields = map[string]string{
	"name":           "name",
	"email":          "email",
	"role":           "role",
	"created_at":     "created_at",
	"last_login":     "last_login",
	"current_streak": "current_streak",
	"total_points":   "total_points",
}

// UnbanRequest is a banned user's appeal to the admins.
type UnbanRequest struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	UserEmail  string    `json:"user_email"`
	Reason     string    `json:"reason"`
	Status     string    `json:"status"`
	Approved   bool      `json:"approved"`
	ReviewedBy string    `json:"reviewed_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

type NewUnbanRequest struct {
	Reason string `json:"reason" validate:"required,min=10,max=1000"`
}

func (nr *NewUnbanRequest) Validate(validate *validator.Validate) error {
	nr.Reason = core.CleanString(nr.Reason)
	return validate.Struct(nr)
}
