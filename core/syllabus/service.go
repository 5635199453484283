package syllabus

import (
	"context"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("syllabus not found")
	ErrDuplicateChapter = errors.New("duplicate chapter")

	searchLimit = 20
)

type (
	Repository interface {
		CountSubjects(ctx context.Context) (int, error)
		// UpsertSubject creates or replaces the syllabus of (exam, subject).
		UpsertSubject(ctx context.Context, s Subject) (Subject, error)
		GetSubject(ctx context.Context, exam, subject string) (Subject, error)
		// QuerySubjects returns the stored subjects of an exam ordered by position.
		QuerySubjects(ctx context.Context, exam string) ([]Subject, error)
	}

	Service interface {
		// Seed writes the default syllabus to storage when it is empty, or always when forced.
		// It returns the number of subjects written.
		Seed(ctx context.Context, force bool) (int, error)
		Tree(ctx context.Context, exam string) (Tree, error)
		Get(ctx context.Context, exam, subject string) (Subject, error)
		Chapters(ctx context.Context, exam, subject string) ([]string, error)
		HasChapter(ctx context.Context, exam, subject, chapter string) (bool, error)
		Update(ctx context.Context, exam, subject string, us UpdateSubject) (Subject, error)
		// SearchChapters does a case-insensitive fuzzy search over the chapters of an exam, best matches first.
		SearchChapters(ctx context.Context, exam, query string) ([]ChapterMatch, error)
	}

	service struct {
		db     core.Transactor
		repo   Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(db core.Transactor, repo Repository, logger core.Logger) Service {
	return &service{db: db, repo: repo, logger: logger}
}

func (svc *service) Seed(ctx context.Context, force bool) (int, error) {
	if !force {
		n, err := svc.repo.CountSubjects(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "counting syllabus subjects")
		}
		if n > 0 {
			return 0, nil
		}
	}

	tree, err := Defaults()
	if err != nil {
		return 0, err
	}

	var count int
	err = svc.db.WithinTx(ctx, func(ctx context.Context) error {
		now := core.Now()
		for _, exam := range AllExams {
			for _, s := range tree[exam] {
				s = copySubject(s)
				s.UpdatedAt = now
				if _, err := svc.repo.UpsertSubject(ctx, s); err != nil {
					return errors.Wrapf(err, "seeding %s %s", exam, s.Subject)
				}
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if svc.logger != nil {
		svc.logger.Info("syllabus seeded", map[string]interface{}{"subjects": count, "force": force})
	}
	return count, nil
}

// Tree returns the syllabus of exam. Subjects missing from storage fall back to the defaults.
func (svc *service) Tree(ctx context.Context, exam string) (Tree, error) {
	if !IsExam(exam) {
		return Tree{}, ErrNotFound
	}
	stored, err := svc.repo.QuerySubjects(ctx, exam)
	if err != nil {
		return Tree{}, errors.Wrap(err, "querying syllabus")
	}
	bySubject := make(map[string]Subject, len(stored))
	for _, s := range stored {
		bySubject[s.Subject] = s
	}

	tree := Tree{Exam: exam, Subjects: make([]Subject, 0, len(ExamSubjects[exam]))}
	for _, name := range ExamSubjects[exam] {
		if s, ok := bySubject[name]; ok {
			tree.Subjects = append(tree.Subjects, s)
		} else if s, ok := defaultSubject(exam, name); ok {
			tree.Subjects = append(tree.Subjects, s)
		}
	}
	return tree, nil
}

func (svc *service) Get(ctx context.Context, exam, subject string) (Subject, error) {
	if !HasSubject(exam, subject) {
		return Subject{}, ErrNotFound
	}
	s, err := svc.repo.GetSubject(ctx, exam, subject)
	if err == ErrNotFound {
		if s, ok := defaultSubject(exam, subject); ok {
			return s, nil
		}
	}
	return s, err
}

func (svc *service) Chapters(ctx context.Context, exam, subject string) ([]string, error) {
	s, err := svc.Get(ctx, exam, subject)
	if err != nil {
		return nil, err
	}
	return s.Chapters(), nil
}

func (svc *service) HasChapter(ctx context.Context, exam, subject, chapter string) (bool, error) {
	s, err := svc.Get(ctx, exam, subject)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return s.HasChapter(chapter), nil
}

func (svc *service) Update(ctx context.Context, exam, subject string, us UpdateSubject) (Subject, error) {
	if !HasSubject(exam, subject) {
		return Subject{}, ErrNotFound
	}
	return svc.repo.UpsertSubject(ctx, Subject{
		Exam:      exam,
		Subject:   subject,
		Position:  subjectPosition(exam, subject),
		Units:     us.Units,
		UpdatedAt: core.Now(),
	})
}

func (svc *service) SearchChapters(ctx context.Context, exam, query string) ([]ChapterMatch, error) {
	query = core.CleanString(query)
	if query == "" {
		return []ChapterMatch{}, nil
	}
	tree, err := svc.Tree(ctx, exam)
	if err != nil {
		return nil, err
	}

	var (
		targets []string
		matches []ChapterMatch
	)
	for _, s := range tree.Subjects {
		for _, u := range s.Units {
			for _, ch := range u.Chapters {
				targets = append(targets, ch)
				matches = append(matches, ChapterMatch{Subject: s.Subject, Unit: u.Name, Chapter: ch})
			}
		}
	}

	ranks := fuzzy.RankFindFold(query, targets)
	sort.Stable(ranks)

	found := make([]ChapterMatch, 0, len(ranks))
	for _, r := range ranks {
		if len(found) == searchLimit {
			break
		}
		m := matches[r.OriginalIndex]
		m.Distance = r.Distance
		found = append(found, m)
	}
	return found, nil
}
