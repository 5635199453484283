package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/examtrack/core/premium"
)

type codeRow struct {
	Code      string    `db:"code"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

type premiumRepository struct {
	baseRepository
}

var _ premium.Repository = (*premiumRepository)(nil) // interface compliance check

func NewPremiumRepository(db *sqlx.DB) *premiumRepository {
	return &premiumRepository{baseRepository{db: db}}
}

func (repo premiumRepository) CreateCode(ctx context.Context, code premium.Code) (premium.Code, error) {
	code.CreatedAt = code.CreatedAt.UTC()
	q := "INSERT INTO premium_codes (code, created_by, created_at) VALUES (:code, :created_by, :created_at)"
	if _, err := repo.namedExec(ctx, q, codeRow(code)); err != nil {
		return premium.Code{}, errors.Wrap(err, "inserting premium code")
	}
	return code, nil
}

func (repo premiumRepository) QueryCodes(ctx context.Context) ([]premium.Code, error) {
	var rows []codeRow
	if err := repo.selectAll(ctx, &rows, "SELECT * FROM premium_codes ORDER BY created_at DESC, code"); err != nil {
		return nil, errors.Wrap(err, "querying premium codes")
	}
	codes := make([]premium.Code, 0, len(rows))
	for _, row := range rows {
		code := premium.Code(row)
		code.CreatedAt = utc(code.CreatedAt)
		codes = append(codes, code)
	}
	return codes, nil
}

func (repo premiumRepository) DeleteCode(ctx context.Context, code string) error {
	res, err := repo.execute(ctx, "DELETE FROM premium_codes WHERE code = ?", code)
	if err != nil {
		return errors.Wrap(err, "deleting premium code")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n != 1 {
		return premium.ErrNotFound
	}
	return nil
}
