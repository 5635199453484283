package premium

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
)

const (
	codeLen      = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("code not found")
	ErrInvalidCode    = errors.New("This code is invalid or has already been used.")
	ErrNoDemoUser     = core.NewNotFoundError("No demo user found with this access code.")
	ErrAlreadyPremium = core.NewConflictError("premium is already active")
)

type (
	Repository interface {
		CreateCode(ctx context.Context, code Code) (Code, error)
		// QueryCodes returns all codes, newest first.
		QueryCodes(ctx context.Context) ([]Code, error)
		// DeleteCode returns ErrNotFound unless exactly one code was deleted.
		DeleteCode(ctx context.Context, code string) error
	}

	Service interface {
		Generate(ctx context.Context, admin user.User, count int) ([]Code, error)
		List(ctx context.Context) ([]Code, error)
		Delete(ctx context.Context, code string) error
		// Redeem consumes a code and activates premium for usr.
		Redeem(ctx context.Context, usr user.User, code string) (user.User, error)
		// ActivateByAccessCode activates premium for the demo user with this access code.
		ActivateByAccessCode(ctx context.Context, accessCode string) (user.User, error)
	}

	service struct {
		db       core.Transactor
		repo     Repository
		userRepo user.Repository
		pub      core.EventPublisher
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.Transactor,
	repo Repository,
	userRepo user.Repository,
	pub core.EventPublisher,
	logger core.Logger,
) Service {
	return &service{db: db, repo: repo, userRepo: userRepo, pub: pub, logger: logger}
}

func cleanCode(code string) string {
	return strings.ToUpper(core.CleanString(code))
}

func newCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var sb strings.Builder
	for i := 0; i < codeLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "generating code")
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

func (svc *service) Generate(ctx context.Context, admin user.User, count int) ([]Code, error) {
	if count <= 0 {
		count = 1
	}
	codes := make([]Code, 0, count)
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		for i := 0; i < count; i++ {
			c, err := newCode()
			if err != nil {
				return err
			}
			code, err := svc.repo.CreateCode(ctx, Code{Code: c, CreatedBy: admin.ID, CreatedAt: core.Now()})
			if err != nil {
				return err
			}
			codes = append(codes, code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if svc.logger != nil {
		svc.logger.Info("premium codes generated", map[string]interface{}{"count": count}, admin)
	}
	return codes, nil
}

func (svc *service) List(ctx context.Context) ([]Code, error) {
	return svc.repo.QueryCodes(ctx)
}

func (svc *service) Delete(ctx context.Context, code string) error {
	return svc.repo.DeleteCode(ctx, cleanCode(code))
}

func activate(usr *user.User) {
	usr.IsPremium = true
	usr.AccountStatus = user.StatusActive
	usr.UpdatedAt = core.Now()
}

func (svc *service) Redeem(ctx context.Context, usr user.User, code string) (user.User, error) {
	code = cleanCode(code)
	if code == "" {
		return user.User{}, core.NewValidationError(nil, core.FieldError{Field: "code", Error: "this field is required"})
	}

	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if usr, err = svc.userRepo.GetUser(ctx, user.GetFilter{ID: usr.ID, ForUpdate: true}); err != nil {
			return err
		}
		if usr.IsPremium {
			return ErrAlreadyPremium
		}
		if err = svc.repo.DeleteCode(ctx, code); err != nil {
			if err == ErrNotFound {
				return core.NewValidationError(ErrInvalidCode, core.FieldError{Field: "code", Error: ErrInvalidCode.Error()})
			}
			return err
		}
		activate(&usr)
		usr, err = svc.userRepo.UpdateUser(ctx, usr)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	core.PublishEvent(ctx, svc.pub, svc.logger, core.EventPremiumActivated, core.UserTopic(usr.ID), usr)
	return usr, nil
}

func (svc *service) ActivateByAccessCode(ctx context.Context, accessCode string) (user.User, error) {
	var usr user.User
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		usr, err = svc.userRepo.GetUser(ctx, user.GetFilter{AccessCode: core.CleanString(accessCode), ForUpdate: true})
		if err == user.ErrNotFound || (err == nil && (usr.AccountStatus != user.StatusDemo || usr.IsDeleted)) {
			return ErrNoDemoUser
		}
		if err != nil {
			return err
		}
		activate(&usr)
		usr, err = svc.userRepo.UpdateUser(ctx, usr)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	core.PublishEvent(ctx, svc.pub, svc.logger, core.EventPremiumActivated, core.UserTopic(usr.ID), usr)
	return usr, nil
}
