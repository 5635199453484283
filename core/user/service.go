package user

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("user not found")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrUnbanRequestNotFound = core.NewNotFoundError("unban request not found")
	ErrNotBanned            = core.NewConflictError("account is not banned")
	ErrUnbanPending         = core.NewConflictError("an unban request is already pending")
	ErrAlreadyReviewed      = core.NewConflictError("unban request already reviewed")
	ErrInvalidRole          = errors.New("not enough rights to set this role")

	accessCodeLen      = 6
	accessCodeAttempts = 5
	searchLimit        = 20
)

type (
	Repository interface {
		// CheckEmailUniqueness returns ErrEmailExists if any user but the excluded ones has this email.
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		// SearchUsersByName returns active, non deleted users whose name starts with prefix (case-insensitive).
		SearchUsersByName(ctx context.Context, prefix string, limit int, excludedIDs ...string) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		SoftDeleteUsers(ctx context.Context, ids ...string) error

		CreateUnbanRequest(ctx context.Context, req UnbanRequest) (UnbanRequest, error)
		GetUnbanRequest(ctx context.Context, id string) (UnbanRequest, error)
		// QueryUnbanRequests returns requests with the given status (all if empty), newest first.
		QueryUnbanRequests(ctx context.Context, status string) ([]UnbanRequest, error)
		// UpdateUnbanRequest records the review of a pending request. It returns ErrAlreadyReviewed if the request is no longer pending.
		UpdateUnbanRequest(ctx context.Context, req UnbanRequest) (UnbanRequest, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, email string, excludedIDs ...string) error
		// Signup creates a demo account.
		Signup(ctx context.Context, nu NewUser) (User, error)
		// Create creates an account on behalf of an admin.
		Create(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		SearchByName(ctx context.Context, name string, excludedIDs ...string) ([]User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		UpdateSettings(ctx context.Context, usr User, us UpdateSettings) (User, error)
		CompleteOnboarding(ctx context.Context, usr User, ob Onboarding) (User, error)
		SetRole(ctx context.Context, actor User, id, role string) (User, error)
		Delete(ctx context.Context, ids ...string) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		SetPattern(ctx context.Context, usr User, pattern string) (User, error)
		ClearPattern(ctx context.Context, usr User) (User, error)
		Ban(ctx context.Context, actor User, id string, hours int) (User, error)
		Unban(ctx context.Context, actor User, id string) (User, error)
		RequestUnban(ctx context.Context, usr User, reason string) (UnbanRequest, error)
		ListUnbanRequests(ctx context.Context, pendingOnly bool) ([]UnbanRequest, error)
		ResolveUnbanRequest(ctx context.Context, reviewer User, id string, approve bool) (UnbanRequest, error)
	}

	service struct {
		db       core.Transactor
		repo     Repository
		mailSvc  core.EmailService
		pub      core.EventPublisher
		logger   core.Logger
		tokenGen tokenGenerator
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.Transactor,
	repo Repository,
	mailSvc core.EmailService,
	pub core.EventPublisher,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		db:       db,
		repo:     repo,
		mailSvc:  mailSvc,
		pub:      pub,
		logger:   logger,
		tokenGen: newTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		conf:     conf,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excludedIDs...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) newAccessCode(ctx context.Context) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < accessCodeLen; i++ {
		max.Mul(max, big.NewInt(10))
	}
	for attempt := 0; attempt < accessCodeAttempts; attempt++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "generating access code")
		}
		code := fmt.Sprintf("%0*d", accessCodeLen, n.Int64())
		if _, err = svc.repo.GetUser(ctx, GetFilter{AccessCode: code}); err == ErrNotFound {
			return code, nil
		} else if err != nil {
			return "", errors.Wrap(err, "checking access code")
		}
	}
	return "", errors.New("could not generate a unique access code")
}

func (svc *service) create(ctx context.Context, nu NewUser, role, status string, isPremium bool) (User, error) {
	code, err := svc.newAccessCode(ctx)
	if err != nil {
		return User{}, err
	}
	now := core.Now()
	usr := User{
		Name:          nu.Name,
		Email:         nu.Email,
		Role:          role,
		AccountStatus: status,
		IsPremium:     isPremium,
		AccessCode:    code,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Signup(ctx context.Context, nu NewUser) (User, error) {
	return svc.create(ctx, nu, RoleUser, StatusDemo, false)
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	role := nu.Role
	if role == "" {
		role = RoleUser
	}
	status := nu.AccountStatus
	if status == "" {
		status = StatusActive
	}
	return svc.create(ctx, nu, role, status, nu.IsPremium)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	cleanOrdering := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := OrderingFields[ord.Field]; ok {
			cleanOrdering = append(cleanOrdering, core.DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return svc.repo.QueryUsers(ctx, filter, cleanOrdering)
}

func (svc *service) SearchByName(ctx context.Context, name string, excludedIDs ...string) ([]User, error) {
	name = core.CleanString(name)
	if name == "" {
		return []User{}, nil
	}
	return svc.repo.SearchUsersByName(ctx, name, searchLimit, excludedIDs...)
}

// mutate applies fn to a fresh, locked copy of the user row and saves it,
// so fields written concurrently by other services (streak, points, premium) are kept.
func (svc *service) mutate(ctx context.Context, id string, fn func(usr *User) error) (User, error) {
	var usr User
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if usr, err = svc.repo.GetUser(ctx, GetFilter{ID: id, ForUpdate: true}); err != nil {
			return err
		}
		if err = fn(&usr); err != nil {
			return err
		}
		usr.UpdatedAt = core.Now()
		usr, err = svc.repo.UpdateUser(ctx, usr)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// update is mutate followed by a profile.updated event.
func (svc *service) update(ctx context.Context, id string, fn func(usr *User) error) (User, error) {
	usr, err := svc.mutate(ctx, id, fn)
	if err != nil {
		return User{}, err
	}
	core.PublishEvent(ctx, svc.pub, svc.logger, core.EventProfileUpdated, core.UserTopic(usr.ID), usr)
	return usr, nil
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	var hashed User
	if uu.Password != "" {
		if err := hashed.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.update(ctx, usr.ID, func(u *User) error {
		u.Name = uu.Name
		u.Email = uu.Email
		if uu.AccountStatus != "" {
			u.AccountStatus = uu.AccountStatus
		}
		if uu.IsPremium != nil {
			u.IsPremium = *uu.IsPremium
		}
		if hashed.PasswordHash != nil {
			u.PasswordHash = hashed.PasswordHash
		}
		return nil
	})
}

func (svc *service) UpdateSettings(ctx context.Context, usr User, us UpdateSettings) (User, error) {
	return svc.update(ctx, usr.ID, func(u *User) error {
		if us.Name != "" {
			u.Name = us.Name
		}
		if us.Theme != nil {
			u.Theme = *us.Theme
		}
		if us.DarkMode != nil {
			u.DarkMode = *us.DarkMode
		}
		return nil
	})
}

func (svc *service) CompleteOnboarding(ctx context.Context, usr User, ob Onboarding) (User, error) {
	return svc.update(ctx, usr.ID, func(u *User) error {
		u.Exam = ob.Exam
		u.ClassLevel = ob.ClassLevel
		u.TargetYear = ob.TargetYear
		u.OnboardingCompleted = true
		return nil
	})
}

// SetRole changes a user's role. Only admins may do so, never on themselves, and never above their own role.
func (svc *service) SetRole(ctx context.Context, actor User, id, role string) (User, error) {
	if !actor.IsAdmin() || actor.ID == id {
		return User{}, core.ErrForbidden
	}
	if _, ok := rolePriorities[role]; !ok || RolePriority(role) > RolePriority(actor.Role) {
		return User{}, core.NewValidationError(ErrInvalidRole, core.FieldError{Field: "role", Error: ErrInvalidRole.Error()})
	}
	return svc.update(ctx, id, func(u *User) error {
		u.Role = role
		return nil
	})
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.SoftDeleteUsers(ctx, ids...)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	return svc.mutate(ctx, usr.ID, func(u *User) error {
		u.LastLogin = core.Now()
		return nil
	})
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr.IsDeleted {
		return ErrNotFound
	}

	token, err := svc.tokenGen.makeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making password reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]string{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidUID := core.NewValidationError(nil, core.FieldError{Field: "uid", Error: "invalid value"})

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidUID
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if err == ErrNotFound {
			return invalidUID
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if usr.IsDeleted {
		return invalidUID
	}

	if err = svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: "invalid value"})
	}

	var hashed User
	if err = hashed.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	_, err = svc.mutate(ctx, usr.ID, func(u *User) error {
		// the token is bound to the password hash: a concurrent reset invalidates it
		if err := svc.tokenGen.verifyToken(*u, data.Token); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "token", Error: "invalid value"})
		}
		u.PasswordHash = hashed.PasswordHash
		return nil
	})
	if _, ok := err.(*core.ValidationError); ok {
		return err
	}
	return errors.Wrap(err, "updating user")
}

func (svc *service) SetPattern(ctx context.Context, usr User, pattern string) (User, error) {
	var hashed User
	if err := hashed.SetPattern(pattern); err != nil {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "pattern", Error: patternText})
	}
	return svc.update(ctx, usr.ID, func(u *User) error {
		u.PatternHash = hashed.PatternHash
		return nil
	})
}

func (svc *service) ClearPattern(ctx context.Context, usr User) (User, error) {
	return svc.update(ctx, usr.ID, func(u *User) error {
		u.PatternHash = nil
		return nil
	})
}

// canModerate reports whether actor may ban or unban target.
// Staff cannot moderate themselves. Sub-admins may only moderate regular users.
func canModerate(actor, target User) bool {
	if !actor.IsStaff() || actor.ID == target.ID {
		return false
	}
	if actor.IsSubadmin() {
		return target.Role == RoleUser
	}
	return true
}

func (svc *service) Ban(ctx context.Context, actor User, id string, hours int) (User, error) {
	return svc.update(ctx, id, func(u *User) error {
		if !canModerate(actor, *u) {
			return core.ErrForbidden
		}
		u.IsBanned = true
		u.BanExpiresAt = nil
		if hours > 0 {
			exp := core.Now().Add(time.Duration(hours) * time.Hour)
			u.BanExpiresAt = &exp
		}
		return nil
	})
}

func (svc *service) Unban(ctx context.Context, actor User, id string) (User, error) {
	return svc.update(ctx, id, func(u *User) error {
		if !canModerate(actor, *u) {
			return core.ErrForbidden
		}
		u.IsBanned = false
		u.BanExpiresAt = nil
		return nil
	})
}

func (svc *service) RequestUnban(ctx context.Context, usr User, reason string) (UnbanRequest, error) {
	var req UnbanRequest
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		u, err := svc.repo.GetUser(ctx, GetFilter{ID: usr.ID, ForUpdate: true})
		if err != nil {
			return err
		}
		if !u.BanActive(core.Now()) {
			return ErrNotBanned
		}
		if u.HasPendingUnbanRequest {
			return ErrUnbanPending
		}

		if req, err = svc.repo.CreateUnbanRequest(ctx, UnbanRequest{
			UserID:    u.ID,
			UserName:  u.Name,
			UserEmail: u.Email,
			Reason:    reason,
			Status:    UnbanPending,
			CreatedAt: core.Now(),
		}); err != nil {
			return errors.Wrap(err, "creating unban request")
		}

		u.HasPendingUnbanRequest = true
		u.UpdatedAt = core.Now()
		_, err = svc.repo.UpdateUser(ctx, u)
		return errors.Wrap(err, "flagging pending unban request")
	})
	return req, err
}

func (svc *service) ListUnbanRequests(ctx context.Context, pendingOnly bool) ([]UnbanRequest, error) {
	var status string
	if pendingOnly {
		status = UnbanPending
	}
	return svc.repo.QueryUnbanRequests(ctx, status)
}

func (svc *service) ResolveUnbanRequest(ctx context.Context, reviewer User, id string, approve bool) (UnbanRequest, error) {
	var req UnbanRequest
	var usr User
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if req, err = svc.repo.GetUnbanRequest(ctx, id); err != nil {
			return err
		}
		if req.Status != UnbanPending {
			return ErrAlreadyReviewed
		}

		if usr, err = svc.repo.GetUser(ctx, GetFilter{ID: req.UserID, ForUpdate: true}); err != nil {
			return err
		}
		if !canModerate(reviewer, usr) {
			return core.ErrForbidden
		}

		now := core.Now()
		req.Status = UnbanReviewed
		req.Approved = approve
		req.ReviewedBy = reviewer.ID
		req.ReviewedAt = now
		if req, err = svc.repo.UpdateUnbanRequest(ctx, req); err != nil {
			if err == ErrAlreadyReviewed {
				return err
			}
			return errors.Wrap(err, "updating unban request")
		}

		usr.HasPendingUnbanRequest = false
		if approve {
			usr.IsBanned = false
			usr.BanExpiresAt = nil
		}
		usr.UpdatedAt = now
		usr, err = svc.repo.UpdateUser(ctx, usr)
		return errors.Wrap(err, "updating user")
	})
	if err != nil {
		return UnbanRequest{}, err
	}
	core.PublishEvent(ctx, svc.pub, svc.logger, core.EventProfileUpdated, core.UserTopic(usr.ID), usr)
	return req, nil
}
