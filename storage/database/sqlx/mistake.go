package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/mistake"
)

type mistakeRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	Subject        string    `db:"subject"`
	Chapter        string    `db:"chapter"`
	Question       string    `db:"question"`
	MyMistake      string    `db:"my_mistake"`
	CorrectConcept string    `db:"correct_concept"`
	Tags           string    `db:"tags"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type mistakeRepository struct {
	baseRepository
}

var _ mistake.Repository = (*mistakeRepository)(nil) // interface compliance check

func NewMistakeRepository(db *sqlx.DB) *mistakeRepository {
	return &mistakeRepository{baseRepository{db: db}}
}

func (repo mistakeRepository) toRow(m mistake.Mistake) (mistakeRow, error) {
	if m.Tags == nil {
		m.Tags = []string{}
	}
	tags, err := toJSON(m.Tags)
	if err != nil {
		return mistakeRow{}, err
	}
	return mistakeRow{
		ID:             m.ID,
		UserID:         m.UserID,
		Subject:        m.Subject,
		Chapter:        m.Chapter,
		Question:       m.Question,
		MyMistake:      m.MyMistake,
		CorrectConcept: m.CorrectConcept,
		Tags:           tags,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

func (repo mistakeRepository) fromRow(row mistakeRow) (mistake.Mistake, error) {
	m := mistake.Mistake{
		ID:             row.ID,
		UserID:         row.UserID,
		Subject:        row.Subject,
		Chapter:        row.Chapter,
		Question:       row.Question,
		MyMistake:      row.MyMistake,
		CorrectConcept: row.CorrectConcept,
		Tags:           []string{},
		Status:         row.Status,
		CreatedAt:      utc(row.CreatedAt),
		UpdatedAt:      utc(row.UpdatedAt),
	}
	if err := fromJSON(row.Tags, &m.Tags); err != nil {
		return mistake.Mistake{}, err
	}
	return m, nil
}

func (repo mistakeRepository) CreateMistake(ctx context.Context, m mistake.Mistake) (mistake.Mistake, error) {
	m.ID = uuid.New().String()
	row, err := repo.toRow(m)
	if err != nil {
		return mistake.Mistake{}, err
	}
	q := `INSERT INTO mistakes (id, user_id, subject, chapter, question, my_mistake, correct_concept, tags, status, created_at, updated_at)
		VALUES (:id, :user_id, :subject, :chapter, :question, :my_mistake, :correct_concept, :tags, :status, :created_at, :updated_at)`
	if _, err = repo.namedExec(ctx, q, row); err != nil {
		return mistake.Mistake{}, errors.Wrap(err, "inserting mistake")
	}
	return repo.fromRow(row)
}

func (repo mistakeRepository) GetMistake(ctx context.Context, id string) (mistake.Mistake, error) {
	if _, err := uuid.Parse(id); err != nil {
		return mistake.Mistake{}, mistake.ErrNotFound
	}
	var row mistakeRow
	if err := repo.get(ctx, &row, "SELECT * FROM mistakes WHERE id = ?", id); err != nil {
		return mistake.Mistake{}, trapNoRowsErr(err, mistake.ErrNotFound, "finding mistake")
	}
	return repo.fromRow(row)
}

func (repo mistakeRepository) QueryMistakes(ctx context.Context, userID, subject string) ([]mistake.Mistake, error) {
	q := "SELECT * FROM mistakes WHERE user_id = ?"
	args := []interface{}{userID}
	if subject != "" {
		q += " AND subject = ?"
		args = append(args, subject)
	}
	q += " ORDER BY created_at DESC"

	var rows []mistakeRow
	if err := repo.selectAll(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying mistakes")
	}
	mistakes := make([]mistake.Mistake, 0, len(rows))
	for _, row := range rows {
		m, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		mistakes = append(mistakes, m)
	}
	return mistakes, nil
}

func (repo mistakeRepository) UpdateMistake(ctx context.Context, m mistake.Mistake) (mistake.Mistake, error) {
	row, err := repo.toRow(m)
	if err != nil {
		return mistake.Mistake{}, err
	}
	q := `UPDATE mistakes SET subject = :subject, chapter = :chapter, question = :question, my_mistake = :my_mistake,
		correct_concept = :correct_concept, tags = :tags, status = :status, updated_at = :updated_at WHERE id = :id`
	res, err := repo.namedExec(ctx, q, row)
	if err != nil {
		return mistake.Mistake{}, errors.Wrap(err, "updating mistake")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return mistake.Mistake{}, err
	}
	if n == 0 {
		return mistake.Mistake{}, mistake.ErrNotFound
	}
	return repo.fromRow(row)
}

func (repo mistakeRepository) DeleteMistake(ctx context.Context, id string) error {
	res, err := repo.execute(ctx, "DELETE FROM mistakes WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting mistake")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return mistake.ErrNotFound
	}
	return nil
}
