package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/progress"
)

type chapterProgressRow struct {
	UserID     string    `db:"user_id"`
	Subject    string    `db:"subject"`
	Chapter    string    `db:"chapter"`
	Completed  bool      `db:"completed"`
	Questions  int       `db:"questions"`
	Confidence int       `db:"confidence"`
	Revisions  string    `db:"revisions"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type revisionLogRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Subject   string    `db:"subject"`
	Questions int       `db:"questions"`
	CreatedAt time.Time `db:"created_at"`
}

type progressRepository struct {
	baseRepository
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *sqlx.DB) *progressRepository {
	return &progressRepository{baseRepository{db: db}}
}

func (repo progressRepository) fromRow(row chapterProgressRow) (progress.ChapterProgress, error) {
	cp := progress.ChapterProgress{
		Subject:    row.Subject,
		Chapter:    row.Chapter,
		Completed:  row.Completed,
		Questions:  row.Questions,
		Confidence: row.Confidence,
		Revisions:  []time.Time{},
		UpdatedAt:  utc(row.UpdatedAt),
	}
	if err := fromJSON(row.Revisions, &cp.Revisions); err != nil {
		return progress.ChapterProgress{}, err
	}
	for i := range cp.Revisions {
		cp.Revisions[i] = cp.Revisions[i].UTC()
	}
	return cp, nil
}

func (repo progressRepository) QueryChapters(ctx context.Context, userID string) ([]progress.ChapterProgress, error) {
	var rows []chapterProgressRow
	q := "SELECT * FROM chapter_progress WHERE user_id = ? ORDER BY subject, chapter"
	if err := repo.selectAll(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying chapter progress")
	}
	chapters := make([]progress.ChapterProgress, 0, len(rows))
	for _, row := range rows {
		cp, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, cp)
	}
	return chapters, nil
}

func (repo progressRepository) GetChapter(ctx context.Context, userID, subject, chapter string) (progress.ChapterProgress, error) {
	var row chapterProgressRow
	q := "SELECT * FROM chapter_progress WHERE user_id = ? AND subject = ? AND chapter = ?" + repo.forUpdate(ctx)
	if err := repo.get(ctx, &row, q, userID, subject, chapter); err != nil {
		return progress.ChapterProgress{}, trapNoRowsErr(err, progress.ErrNotFound, "finding chapter progress")
	}
	return repo.fromRow(row)
}

func (repo progressRepository) UpsertChapter(ctx context.Context, userID string, cp progress.ChapterProgress) (progress.ChapterProgress, error) {
	if cp.Revisions == nil {
		cp.Revisions = []time.Time{}
	}
	revisions, err := toJSON(cp.Revisions)
	if err != nil {
		return progress.ChapterProgress{}, err
	}
	row := chapterProgressRow{
		UserID:     userID,
		Subject:    cp.Subject,
		Chapter:    cp.Chapter,
		Completed:  cp.Completed,
		Questions:  cp.Questions,
		Confidence: cp.Confidence,
		Revisions:  revisions,
		UpdatedAt:  cp.UpdatedAt.UTC(),
	}
	q := `INSERT INTO chapter_progress (user_id, subject, chapter, completed, questions, confidence, revisions, updated_at)
		VALUES (:user_id, :subject, :chapter, :completed, :questions, :confidence, :revisions, :updated_at)
		ON CONFLICT (user_id, subject, chapter) DO UPDATE SET
		completed = excluded.completed, questions = excluded.questions, confidence = excluded.confidence,
		revisions = excluded.revisions, updated_at = excluded.updated_at`
	if _, err = repo.namedExec(ctx, q, row); err != nil {
		return progress.ChapterProgress{}, errors.Wrap(err, "upserting chapter progress")
	}
	return repo.fromRow(row)
}

func (repo progressRepository) CreateRevisionLog(ctx context.Context, log progress.RevisionLog) (progress.RevisionLog, error) {
	log.ID = uuid.New().String()
	row := revisionLogRow{
		ID:        log.ID,
		UserID:    log.UserID,
		Subject:   log.Subject,
		Questions: log.Questions,
		CreatedAt: log.CreatedAt.UTC(),
	}
	q := `INSERT INTO revision_logs (id, user_id, subject, questions, created_at)
		VALUES (:id, :user_id, :subject, :questions, :created_at)`
	if _, err := repo.namedExec(ctx, q, row); err != nil {
		return progress.RevisionLog{}, errors.Wrap(err, "inserting revision log")
	}
	log.CreatedAt = row.CreatedAt
	return log, nil
}

func (repo progressRepository) QueryRevisionLogs(ctx context.Context, userID string) ([]progress.RevisionLog, error) {
	var rows []revisionLogRow
	q := "SELECT * FROM revision_logs WHERE user_id = ? ORDER BY created_at ASC"
	if err := repo.selectAll(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying revision logs")
	}
	logs := make([]progress.RevisionLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, progress.RevisionLog{
			ID:        row.ID,
			UserID:    row.UserID,
			Subject:   row.Subject,
			Questions: row.Questions,
			CreatedAt: utc(row.CreatedAt),
		})
	}
	return logs, nil
}
