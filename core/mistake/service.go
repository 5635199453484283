package mistake

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("mistake not found")
)

type (
	Repository interface {
		CreateMistake(ctx context.Context, m Mistake) (Mistake, error)
		GetMistake(ctx context.Context, id string) (Mistake, error)
		// QueryMistakes returns the mistakes of a user, newest first. An empty subject matches all subjects.
		QueryMistakes(ctx context.Context, userID, subject string) ([]Mistake, error)
		UpdateMistake(ctx context.Context, m Mistake) (Mistake, error)
		DeleteMistake(ctx context.Context, id string) error
	}

	Service interface {
		Create(ctx context.Context, usr user.User, nm NewMistake) (Mistake, error)
		List(ctx context.Context, usr user.User, filter QueryFilter) ([]Mistake, error)
		// Tags returns the distinct tags used by the user, sorted.
		Tags(ctx context.Context, usr user.User) ([]string, error)
		ToggleStatus(ctx context.Context, usr user.User, id string) (Mistake, error)
		Delete(ctx context.Context, usr user.User, id string) error
	}

	service struct {
		repo        Repository
		syllabusSvc syllabus.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, syllabusSvc syllabus.Service) Service {
	return &service{repo: repo, syllabusSvc: syllabusSvc}
}

func (svc *service) Create(ctx context.Context, usr user.User, nm NewMistake) (Mistake, error) {
	ok, err := svc.syllabusSvc.HasChapter(ctx, usr.Exam, nm.Subject, nm.Chapter)
	if err != nil {
		return Mistake{}, errors.Wrap(err, "checking chapter")
	}
	if !ok {
		return Mistake{}, core.NewValidationError(nil, core.FieldError{Field: "chapter", Error: "unknown chapter"})
	}

	now := core.Now()
	tags := nm.Tags
	if tags == nil {
		tags = []string{}
	}
	return svc.repo.CreateMistake(ctx, Mistake{
		UserID:         usr.ID,
		Subject:        nm.Subject,
		Chapter:        nm.Chapter,
		Question:       nm.Question,
		MyMistake:      nm.MyMistake,
		CorrectConcept: nm.CorrectConcept,
		Tags:           tags,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

func (svc *service) List(ctx context.Context, usr user.User, filter QueryFilter) ([]Mistake, error) {
	mistakes, err := svc.repo.QueryMistakes(ctx, usr.ID, core.CleanString(filter.Subject))
	if err != nil {
		return nil, err
	}
	tag := core.CleanString(filter.Tag)
	if tag == "" {
		return mistakes, nil
	}
	filtered := make([]Mistake, 0, len(mistakes))
	for _, m := range mistakes {
		if m.HasTag(tag) {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func (svc *service) Tags(ctx context.Context, usr user.User) ([]string, error) {
	mistakes, err := svc.repo.QueryMistakes(ctx, usr.ID, "")
	if err != nil {
		return nil, err
	}
	var all []string
	for _, m := range mistakes {
		all = append(all, m.Tags...)
	}
	tags := core.CleanStrings(all)
	sort.Strings(tags)
	return tags, nil
}

// get returns the user's mistake. Other users' mistakes are not found.
func (svc *service) get(ctx context.Context, usr user.User, id string) (Mistake, error) {
	m, err := svc.repo.GetMistake(ctx, id)
	if err != nil {
		return Mistake{}, err
	}
	if m.UserID != usr.ID {
		return Mistake{}, ErrNotFound
	}
	return m, nil
}

func (svc *service) ToggleStatus(ctx context.Context, usr user.User, id string) (Mistake, error) {
	m, err := svc.get(ctx, usr, id)
	if err != nil {
		return Mistake{}, err
	}
	if m.Status == StatusActive {
		m.Status = StatusReviewed
	} else {
		m.Status = StatusActive
	}
	m.UpdatedAt = core.Now()
	return svc.repo.UpdateMistake(ctx, m)
}

func (svc *service) Delete(ctx context.Context, usr user.User, id string) error {
	if _, err := svc.get(ctx, usr, id); err != nil {
		return err
	}
	return svc.repo.DeleteMistake(ctx, id)
}
