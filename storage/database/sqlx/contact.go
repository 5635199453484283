package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/contact"
)

type submissionRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Message   string    `db:"message"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

type contactRepository struct {
	baseRepository
}

var _ contact.Repository = (*contactRepository)(nil) // interface compliance check

func NewContactRepository(db *sqlx.DB) *contactRepository {
	return &contactRepository{baseRepository{db: db}}
}

func (repo contactRepository) fromRow(row submissionRow) contact.Submission {
	sub := contact.Submission(row)
	sub.CreatedAt = utc(sub.CreatedAt)
	return sub
}

func (repo contactRepository) CreateSubmission(ctx context.Context, sub contact.Submission) (contact.Submission, error) {
	sub.ID = uuid.New().String()
	sub.CreatedAt = sub.CreatedAt.UTC()
	q := `INSERT INTO contact_submissions (id, name, email, message, is_read, created_at)
		VALUES (:id, :name, :email, :message, :is_read, :created_at)`
	if _, err := repo.namedExec(ctx, q, submissionRow(sub)); err != nil {
		return contact.Submission{}, errors.Wrap(err, "inserting contact submission")
	}
	return sub, nil
}

func (repo contactRepository) GetSubmission(ctx context.Context, id string) (contact.Submission, error) {
	if _, err := uuid.Parse(id); err != nil {
		return contact.Submission{}, contact.ErrNotFound
	}
	var row submissionRow
	if err := repo.get(ctx, &row, "SELECT * FROM contact_submissions WHERE id = ?", id); err != nil {
		return contact.Submission{}, trapNoRowsErr(err, contact.ErrNotFound, "finding contact submission")
	}
	return repo.fromRow(row), nil
}

func (repo contactRepository) QuerySubmissions(ctx context.Context) ([]contact.Submission, error) {
	var rows []submissionRow
	if err := repo.selectAll(ctx, &rows, "SELECT * FROM contact_submissions ORDER BY created_at DESC"); err != nil {
		return nil, errors.Wrap(err, "querying contact submissions")
	}
	subs := make([]contact.Submission, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, repo.fromRow(row))
	}
	return subs, nil
}

func (repo contactRepository) UpdateSubmission(ctx context.Context, sub contact.Submission) (contact.Submission, error) {
	res, err := repo.execute(ctx, "UPDATE contact_submissions SET is_read = ? WHERE id = ?", sub.IsRead, sub.ID)
	if err != nil {
		return contact.Submission{}, errors.Wrap(err, "updating contact submission")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return contact.Submission{}, err
	}
	if n == 0 {
		return contact.Submission{}, contact.ErrNotFound
	}
	return sub, nil
}

func (repo contactRepository) DeleteSubmission(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return contact.ErrNotFound
	}
	res, err := repo.execute(ctx, "DELETE FROM contact_submissions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting contact submission")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return contact.ErrNotFound
	}
	return nil
}
