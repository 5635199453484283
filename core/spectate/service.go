package spectate

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("permission not found")
	ErrLogNotFound = core.NewNotFoundError("spectate session not found")
	ErrNotGranted  = core.NewConflictError("this user has not granted spectate permission")
	ErrSelf        = core.NewConflictError("you cannot spectate yourself")

	logsLimit = 200
)

type (
	Repository interface {
		// GetPermission returns ErrNotFound if the user never granted a permission.
		GetPermission(ctx context.Context, userID string, forUpdate bool) (Permission, error)
		UpsertPermission(ctx context.Context, p Permission) (Permission, error)
		CreateLog(ctx context.Context, l Log) (Log, error)
		GetLog(ctx context.Context, id string) (Log, error)
		UpdateLog(ctx context.Context, l Log) (Log, error)
		// QueryLogs returns the latest logs, newest first.
		QueryLogs(ctx context.Context, limit int) ([]Log, error)
	}

	// Session is a started spectate session.
	Session struct {
		Log    Log       `json:"log"`
		Target user.User `json:"target"`
	}

	Service interface {
		Get(ctx context.Context, usr user.User) (Permission, error)
		Grant(ctx context.Context, usr user.User, hours int) (Permission, error)
		Revoke(ctx context.Context, usr user.User) (Permission, error)
		Start(ctx context.Context, admin user.User, targetID string) (Session, error)
		Stop(ctx context.Context, admin user.User, logID string) (Log, error)
		// CanView returns the target user if admin is spectating them.
		CanView(ctx context.Context, admin user.User, targetID string) (user.User, error)
		Logs(ctx context.Context) ([]Log, error)
	}

	service struct {
		db       core.Transactor
		repo     Repository
		userRepo user.Repository
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(db core.Transactor, repo Repository, userRepo user.Repository, logger core.Logger) Service {
	return &service{db: db, repo: repo, userRepo: userRepo, logger: logger}
}

func (svc *service) permission(ctx context.Context, userID string, forUpdate bool) (Permission, error) {
	p, err := svc.repo.GetPermission(ctx, userID, forUpdate)
	if err == ErrNotFound {
		return Permission{UserID: userID, Status: StatusNone}, nil
	}
	return p, err
}

func (svc *service) Get(ctx context.Context, usr user.User) (Permission, error) {
	return svc.permission(ctx, usr.ID, false)
}

// Grant lets admins spectate usr for the next `hours`. A running session is detached.
func (svc *service) Grant(ctx context.Context, usr user.User, hours int) (Permission, error) {
	now := core.Now()
	exp := now.Add(time.Duration(hours) * time.Hour)
	return svc.repo.UpsertPermission(ctx, Permission{
		UserID:    usr.ID,
		Status:    StatusGranted,
		GrantedAt: &now,
		ExpiresAt: &exp,
		UpdatedAt: now,
	})
}

func (svc *service) Revoke(ctx context.Context, usr user.User) (Permission, error) {
	return svc.repo.UpsertPermission(ctx, Permission{
		UserID:    usr.ID,
		Status:    StatusNone,
		UpdatedAt: core.Now(),
	})
}

func (svc *service) Start(ctx context.Context, admin user.User, targetID string) (Session, error) {
	if !admin.IsStaff() {
		return Session{}, core.ErrForbidden
	}
	if admin.ID == targetID {
		return Session{}, ErrSelf
	}

	var sess Session
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		target, err := svc.userRepo.GetUser(ctx, user.GetFilter{ID: targetID})
		if err != nil {
			return err
		}
		if target.IsDeleted {
			return user.ErrNotFound
		}

		p, err := svc.permission(ctx, target.ID, true)
		if err != nil {
			return err
		}
		now := core.Now()
		if !p.Active(now) {
			return ErrNotGranted
		}
		p.SpectatingAdminID = admin.ID
		p.UpdatedAt = now
		if _, err = svc.repo.UpsertPermission(ctx, p); err != nil {
			return errors.Wrap(err, "updating permission")
		}

		l, err := svc.repo.CreateLog(ctx, Log{
			AdminID:   admin.ID,
			AdminName: admin.Name,
			UserID:    target.ID,
			UserName:  target.Name,
			StartedAt: now,
		})
		if err != nil {
			return errors.Wrap(err, "creating log")
		}
		sess = Session{Log: l, Target: target}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	if svc.logger != nil {
		svc.logger.Info("spectate started", map[string]interface{}{"target": targetID}, admin)
	}
	return sess, nil
}

func (svc *service) Stop(ctx context.Context, admin user.User, logID string) (Log, error) {
	var l Log
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if l, err = svc.repo.GetLog(ctx, logID); err != nil {
			return err
		}
		if l.AdminID != admin.ID {
			return ErrLogNotFound
		}
		if l.EndedAt != nil {
			return nil
		}

		now := core.Now()
		l.EndedAt = &now
		if l, err = svc.repo.UpdateLog(ctx, l); err != nil {
			return errors.Wrap(err, "updating log")
		}

		p, err := svc.permission(ctx, l.UserID, true)
		if err != nil {
			return err
		}
		if p.SpectatingAdminID != admin.ID {
			return nil
		}
		p.SpectatingAdminID = ""
		p.UpdatedAt = now
		_, err = svc.repo.UpsertPermission(ctx, p)
		return errors.Wrap(err, "updating permission")
	})
	if err != nil {
		return Log{}, err
	}
	return l, nil
}

func (svc *service) CanView(ctx context.Context, admin user.User, targetID string) (user.User, error) {
	if !admin.IsStaff() {
		return user.User{}, core.ErrForbidden
	}
	p, err := svc.permission(ctx, targetID, false)
	if err != nil {
		return user.User{}, err
	}
	if !p.Active(core.Now()) || p.SpectatingAdminID != admin.ID {
		return user.User{}, core.ErrForbidden
	}
	return svc.userRepo.GetUser(ctx, user.GetFilter{ID: targetID})
}

func (svc *service) Logs(ctx context.Context) ([]Log, error) {
	return svc.repo.QueryLogs(ctx, logsLimit)
}
