package goal

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/progress"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("goal not found")

	maxCalendarDays = 366
)

type (
	Repository interface {
		GetGoal(ctx context.Context, userID, date string, forUpdate bool) (DailyGoal, error)
		UpsertGoal(ctx context.Context, dg DailyGoal) (DailyGoal, error)
		// QueryGoals returns the goals of a user between two days (inclusive), by date.
		QueryGoals(ctx context.Context, userID, from, to string) ([]DailyGoal, error)
	}

	Service interface {
		SetGoals(ctx context.Context, usr user.User, sg SetGoals) (DailyGoal, error)
		Get(ctx context.Context, usr user.User, date string) (DailyGoal, error)
		Calendar(ctx context.Context, usr user.User, from, to string) ([]DailyGoal, error)
		// CompleteSubGoal completes the sub-goal at index. Finishing today's goals updates the user's streak.
		CompleteSubGoal(ctx context.Context, usr user.User, date string, index int) (Completion, error)
		// Today returns the current calendar day.
		Today() string
	}

	service struct {
		db          core.Transactor
		repo        Repository
		userRepo    user.Repository
		syllabusSvc syllabus.Service
		progressSvc progress.Service
		pub         core.EventPublisher
		logger      core.Logger
		loc         *time.Location
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.Transactor,
	repo Repository,
	userRepo user.Repository,
	syllabusSvc syllabus.Service,
	progressSvc progress.Service,
	pub core.EventPublisher,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		db:          db,
		repo:        repo,
		userRepo:    userRepo,
		syllabusSvc: syllabusSvc,
		progressSvc: progressSvc,
		pub:         pub,
		logger:      logger,
		loc:         conf.Location(),
	}
}

func (svc *service) Today() string { return core.Today(svc.loc) }

func (svc *service) SetGoals(ctx context.Context, usr user.User, sg SetGoals) (DailyGoal, error) {
	if sg.Date < svc.Today() {
		return DailyGoal{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date cannot be in the past"})
	}

	var flds []core.FieldError
	for i, g := range sg.Goals {
		if g.Type != TypeChapter {
			continue
		}
		ok, err := svc.syllabusSvc.HasChapter(ctx, usr.Exam, g.Subject, g.Chapter)
		if err != nil {
			return DailyGoal{}, errors.Wrap(err, "checking chapter")
		}
		if !ok {
			flds = append(flds, core.FieldError{Field: fmt.Sprintf("goals[%d].chapter", i), Error: "unknown chapter"})
		}
	}
	if len(flds) > 0 {
		return DailyGoal{}, core.NewValidationError(nil, flds...)
	}

	var dg DailyGoal
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		prev, err := svc.repo.GetGoal(ctx, usr.ID, sg.Date, true)
		if err != nil && err != ErrNotFound {
			return err
		}

		// keep the completion of goals which were already set
		goals := make([]SubGoal, len(sg.Goals))
		for i, g := range sg.Goals {
			for _, p := range prev.Goals {
				if g.sameAs(p) {
					g.Completed = p.Completed
					break
				}
			}
			goals[i] = g
		}

		dg = DailyGoal{UserID: usr.ID, Date: sg.Date, Goals: goals, UpdatedAt: core.Now()}
		dg.Completed = dg.allCompleted()
		if dg.Completed {
			dg.CompletedAt = prev.CompletedAt
			if dg.CompletedAt == nil {
				dg.CompletedAt = &dg.UpdatedAt
			}
		}
		dg, err = svc.repo.UpsertGoal(ctx, dg)
		return err
	})
	return dg, err
}

func (svc *service) Get(ctx context.Context, usr user.User, date string) (DailyGoal, error) {
	return svc.repo.GetGoal(ctx, usr.ID, date, false)
}

func (svc *service) Calendar(ctx context.Context, usr user.User, from, to string) ([]DailyGoal, error) {
	fromDay, err := core.ParseDate(from)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "from", Error: "date must be formatted as YYYY-MM-DD"})
	}
	toDay, err := core.ParseDate(to)
	if err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "to", Error: "date must be formatted as YYYY-MM-DD"})
	}
	if toDay.Before(fromDay) || toDay.Sub(fromDay) > time.Duration(maxCalendarDays)*24*time.Hour {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "to", Error: "invalid date range"})
	}
	return svc.repo.QueryGoals(ctx, usr.ID, from, to)
}

func (svc *service) CompleteSubGoal(ctx context.Context, usr user.User, date string, index int) (Completion, error) {
	today := svc.Today()
	if date < today {
		return Completion{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "goals of past days cannot be completed"})
	}

	var res Completion
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		dg, err := svc.repo.GetGoal(ctx, usr.ID, date, true)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(dg.Goals) {
			return core.NewValidationError(nil, core.FieldError{Field: "index", Error: "no goal at this index"})
		}
		if dg.Goals[index].Completed {
			res.Goal = dg
			return nil
		}

		wasCompleted := dg.Completed
		sub := dg.Goals[index]
		dg.Goals[index].Completed = true
		if sub.Type == TypeChapter {
			if _, err = svc.progressSvc.MarkCompleted(ctx, usr, sub.Subject, sub.Chapter); err != nil {
				// the chapter may have been removed from the syllabus since the goal was set
				if err != progress.ErrChapterNotFound {
					return errors.Wrap(err, "marking chapter completed")
				}
			}
		}

		dg.UpdatedAt = core.Now()
		dg.Completed = dg.allCompleted()
		res.AllCompleted = dg.Completed && !wasCompleted
		if res.AllCompleted {
			dg.CompletedAt = &dg.UpdatedAt
		}
		if res.Goal, err = svc.repo.UpsertGoal(ctx, dg); err != nil {
			return err
		}

		if res.AllCompleted && date == today {
			streak, err := svc.updateStreak(ctx, usr.ID, today)
			if err != nil {
				return err
			}
			res.Streak = &streak
		}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}

	if res.AllCompleted {
		topic := core.UserTopic(usr.ID)
		core.PublishEvent(ctx, svc.pub, svc.logger, core.EventGoalCompleted, topic, res.Goal)
		if res.Streak != nil && res.Streak.Applied {
			core.PublishEvent(ctx, svc.pub, svc.logger, core.EventStreakUpdated, topic, res.Streak)
		}
	}
	return res, nil
}

// updateStreak runs the streak update on the locked user row. It must be called within a transaction.
func (svc *service) updateStreak(ctx context.Context, userID, today string) (StreakUpdate, error) {
	usr, err := svc.userRepo.GetUser(ctx, user.GetFilter{ID: userID, ForUpdate: true})
	if err != nil {
		return StreakUpdate{}, errors.Wrap(err, "locking user")
	}
	yesterday := core.Yesterday(svc.loc)
	streak := applyStreak(&usr, today, yesterday)
	if !streak.Applied {
		return streak, nil
	}
	usr.UpdatedAt = core.Now()
	if _, err = svc.userRepo.UpdateUser(ctx, usr); err != nil {
		return StreakUpdate{}, errors.Wrap(err, "updating streak")
	}
	return streak, nil
}
