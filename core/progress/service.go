package progress

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("progress not found")
	ErrChapterNotFound = core.NewNotFoundError("chapter not found")
	ErrNoExam          = core.NewConflictError("onboarding not completed")
)

type (
	Repository interface {
		QueryChapters(ctx context.Context, userID string) ([]ChapterProgress, error)
		GetChapter(ctx context.Context, userID, subject, chapter string) (ChapterProgress, error)
		// UpsertChapter creates or replaces the progress of a chapter.
		UpsertChapter(ctx context.Context, userID string, cp ChapterProgress) (ChapterProgress, error)
		CreateRevisionLog(ctx context.Context, log RevisionLog) (RevisionLog, error)
		// QueryRevisionLogs returns the revision logs of a user, oldest first.
		QueryRevisionLogs(ctx context.Context, userID string) ([]RevisionLog, error)
	}

	Service interface {
		// Get returns the progress of every chapter of the user's syllabus.
		Get(ctx context.Context, usr user.User) (State, error)
		Update(ctx context.Context, usr user.User, subject, chapter string, patch Patch) (ChapterProgress, error)
		MarkCompleted(ctx context.Context, usr user.User, subject, chapter string) (ChapterProgress, error)
		LogRevision(ctx context.Context, usr user.User, nr NewRevisionLog) (RevisionLog, error)
		// Revisions returns the user's revision logs grouped by subject.
		Revisions(ctx context.Context, usr user.User) (map[string][]RevisionLog, error)
		Summary(ctx context.Context, usr user.User) (Summary, error)
	}

	service struct {
		db          core.Transactor
		repo        Repository
		syllabusSvc syllabus.Service
		pub         core.EventPublisher
		logger      core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	db core.Transactor,
	repo Repository,
	syllabusSvc syllabus.Service,
	pub core.EventPublisher,
	logger core.Logger,
) Service {
	return &service{db: db, repo: repo, syllabusSvc: syllabusSvc, pub: pub, logger: logger}
}

func (svc *service) tree(ctx context.Context, usr user.User) (syllabus.Tree, error) {
	if usr.Exam == "" {
		return syllabus.Tree{}, ErrNoExam
	}
	return svc.syllabusSvc.Tree(ctx, usr.Exam)
}

func (svc *service) Get(ctx context.Context, usr user.User) (State, error) {
	tree, err := svc.tree(ctx, usr)
	if err != nil {
		return nil, err
	}
	records, err := svc.repo.QueryChapters(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	return merge(tree, records), nil
}

// merge lays stored records over the defaults of every chapter of tree.
// Records of chapters no longer in the syllabus are ignored.
func merge(tree syllabus.Tree, records []ChapterProgress) State {
	state := make(State, len(tree.Subjects))
	for _, s := range tree.Subjects {
		chapters := make(map[string]ChapterProgress)
		for _, ch := range s.Chapters() {
			chapters[ch] = defaultChapter(s.Subject, ch)
		}
		state[s.Subject] = chapters
	}
	for _, r := range records {
		if chapters, ok := state[r.Subject]; ok {
			if _, ok = chapters[r.Chapter]; ok {
				chapters[r.Chapter] = r
			}
		}
	}
	return state
}

func (svc *service) Update(ctx context.Context, usr user.User, subject, chapter string, patch Patch) (ChapterProgress, error) {
	if usr.Exam == "" {
		return ChapterProgress{}, ErrNoExam
	}
	ok, err := svc.syllabusSvc.HasChapter(ctx, usr.Exam, subject, chapter)
	if err != nil {
		return ChapterProgress{}, errors.Wrap(err, "checking chapter")
	}
	if !ok {
		return ChapterProgress{}, ErrChapterNotFound
	}

	var cp ChapterProgress
	err = svc.db.WithinTx(ctx, func(ctx context.Context) error {
		current, err := svc.repo.GetChapter(ctx, usr.ID, subject, chapter)
		if err == ErrNotFound {
			current = defaultChapter(subject, chapter)
		} else if err != nil {
			return err
		}
		cp, err = svc.repo.UpsertChapter(ctx, usr.ID, patch.apply(current, core.Now()))
		return err
	})
	if err != nil {
		return ChapterProgress{}, err
	}
	core.PublishEvent(ctx, svc.pub, svc.logger, core.EventProgressUpdated, core.UserTopic(usr.ID), cp)
	return cp, nil
}

func (svc *service) MarkCompleted(ctx context.Context, usr user.User, subject, chapter string) (ChapterProgress, error) {
	completed := true
	return svc.Update(ctx, usr, subject, chapter, Patch{Completed: &completed})
}

func (svc *service) LogRevision(ctx context.Context, usr user.User, nr NewRevisionLog) (RevisionLog, error) {
	if usr.Exam == "" {
		return RevisionLog{}, ErrNoExam
	}
	if !syllabus.HasSubject(usr.Exam, nr.Subject) {
		return RevisionLog{}, core.NewValidationError(syllabus.ErrNotFound, core.FieldError{Field: "subject", Error: "unknown subject"})
	}
	log, err := svc.repo.CreateRevisionLog(ctx, RevisionLog{
		UserID:    usr.ID,
		Subject:   nr.Subject,
		Questions: nr.Questions,
		CreatedAt: core.Now(),
	})
	if err != nil {
		return RevisionLog{}, errors.Wrap(err, "creating revision log")
	}
	core.PublishEvent(ctx, svc.pub, svc.logger, core.EventProgressUpdated, core.UserTopic(usr.ID), log)
	return log, nil
}

func (svc *service) Revisions(ctx context.Context, usr user.User) (map[string][]RevisionLog, error) {
	logs, err := svc.repo.QueryRevisionLogs(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying revision logs")
	}
	grouped := make(map[string][]RevisionLog)
	for _, l := range logs {
		grouped[l.Subject] = append(grouped[l.Subject], l)
	}
	return grouped, nil
}

func (svc *service) Summary(ctx context.Context, usr user.User) (Summary, error) {
	tree, err := svc.tree(ctx, usr)
	if err != nil {
		return Summary{}, err
	}
	records, err := svc.repo.QueryChapters(ctx, usr.ID)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying progress")
	}
	return Summarize(tree, merge(tree, records)), nil
}
