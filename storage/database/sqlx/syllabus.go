package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/syllabus"
)

type syllabusRow struct {
	Exam      string    `db:"exam"`
	Subject   string    `db:"subject"`
	Position  int       `db:"position"`
	Units     string    `db:"units"`
	UpdatedAt time.Time `db:"updated_at"`
}

type syllabusRepository struct {
	baseRepository
}

var _ syllabus.Repository = (*syllabusRepository)(nil) // interface compliance check

func NewSyllabusRepository(db *sqlx.DB) *syllabusRepository {
	return &syllabusRepository{baseRepository{db: db}}
}

func (repo syllabusRepository) fromRow(row syllabusRow) (syllabus.Subject, error) {
	s := syllabus.Subject{
		Exam:      row.Exam,
		Subject:   row.Subject,
		Position:  row.Position,
		UpdatedAt: utc(row.UpdatedAt),
	}
	if err := fromJSON(row.Units, &s.Units); err != nil {
		return syllabus.Subject{}, err
	}
	return s, nil
}

func (repo syllabusRepository) CountSubjects(ctx context.Context) (int, error) {
	var count int
	err := repo.get(ctx, &count, "SELECT COUNT(*) FROM syllabuses")
	return count, errors.Wrap(err, "counting syllabuses")
}

func (repo syllabusRepository) UpsertSubject(ctx context.Context, s syllabus.Subject) (syllabus.Subject, error) {
	units, err := toJSON(s.Units)
	if err != nil {
		return syllabus.Subject{}, err
	}
	row := syllabusRow{
		Exam:      s.Exam,
		Subject:   s.Subject,
		Position:  s.Position,
		Units:     units,
		UpdatedAt: s.UpdatedAt.UTC(),
	}
	q := `INSERT INTO syllabuses (exam, subject, position, units, updated_at)
		VALUES (:exam, :subject, :position, :units, :updated_at)
		ON CONFLICT (exam, subject) DO UPDATE SET
		position = excluded.position, units = excluded.units, updated_at = excluded.updated_at`
	if _, err = repo.namedExec(ctx, q, row); err != nil {
		return syllabus.Subject{}, errors.Wrap(err, "upserting syllabus")
	}
	return repo.fromRow(row)
}

func (repo syllabusRepository) GetSubject(ctx context.Context, exam, subject string) (syllabus.Subject, error) {
	var row syllabusRow
	q := "SELECT * FROM syllabuses WHERE exam = ? AND subject = ?"
	if err := repo.get(ctx, &row, q, exam, subject); err != nil {
		return syllabus.Subject{}, trapNoRowsErr(err, syllabus.ErrNotFound, "finding syllabus")
	}
	return repo.fromRow(row)
}

func (repo syllabusRepository) QuerySubjects(ctx context.Context, exam string) ([]syllabus.Subject, error) {
	var rows []syllabusRow
	q := "SELECT * FROM syllabuses WHERE exam = ? ORDER BY position ASC"
	if err := repo.selectAll(ctx, &rows, q, exam); err != nil {
		return nil, errors.Wrap(err, "querying syllabuses")
	}
	subjects := make([]syllabus.Subject, 0, len(rows))
	for _, row := range rows {
		s, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, nil
}
