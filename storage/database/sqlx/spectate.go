package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examtrack/core/spectate"
)

type permissionRow struct {
	UserID            string      `db:"user_id"`
	Status            string      `db:"status"`
	GrantedAt         null.Time   `db:"granted_at"`
	ExpiresAt         null.Time   `db:"expires_at"`
	SpectatingAdminID null.String `db:"spectating_admin_id"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

type spectateLogRow struct {
	ID        string    `db:"id"`
	AdminID   string    `db:"admin_id"`
	AdminName string    `db:"admin_name"`
	UserID    string    `db:"user_id"`
	UserName  string    `db:"user_name"`
	StartedAt time.Time `db:"started_at"`
	EndedAt   null.Time `db:"ended_at"`
}

type spectateRepository struct {
	baseRepository
}

var _ spectate.Repository = (*spectateRepository)(nil) // interface compliance check

func NewSpectateRepository(db *sqlx.DB) *spectateRepository {
	return &spectateRepository{baseRepository{db: db}}
}

func (repo spectateRepository) GetPermission(ctx context.Context, userID string, forUpdate bool) (spectate.Permission, error) {
	q := "SELECT * FROM spectate_permissions WHERE user_id = ?"
	if forUpdate {
		q += repo.forUpdate(ctx)
	}
	var row permissionRow
	if err := repo.get(ctx, &row, q, userID); err != nil {
		return spectate.Permission{}, trapNoRowsErr(err, spectate.ErrNotFound, "finding spectate permission")
	}
	return spectate.Permission{
		UserID:            row.UserID,
		Status:            row.Status,
		GrantedAt:         timePtr(row.GrantedAt),
		ExpiresAt:         timePtr(row.ExpiresAt),
		SpectatingAdminID: row.SpectatingAdminID.String,
		UpdatedAt:         utc(row.UpdatedAt),
	}, nil
}

func (repo spectateRepository) UpsertPermission(ctx context.Context, p spectate.Permission) (spectate.Permission, error) {
	row := permissionRow{
		UserID:            p.UserID,
		Status:            p.Status,
		GrantedAt:         nullTimePtr(p.GrantedAt),
		ExpiresAt:         nullTimePtr(p.ExpiresAt),
		SpectatingAdminID: null.NewString(p.SpectatingAdminID, p.SpectatingAdminID != ""),
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
	q := `INSERT INTO spectate_permissions (user_id, status, granted_at, expires_at, spectating_admin_id, updated_at)
		VALUES (:user_id, :status, :granted_at, :expires_at, :spectating_admin_id, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET status = excluded.status, granted_at = excluded.granted_at,
		expires_at = excluded.expires_at, spectating_admin_id = excluded.spectating_admin_id, updated_at = excluded.updated_at`
	if _, err := repo.namedExec(ctx, q, row); err != nil {
		return spectate.Permission{}, errors.Wrap(err, "upserting spectate permission")
	}
	p.UpdatedAt = row.UpdatedAt
	return p, nil
}

func (repo spectateRepository) toLogRow(l spectate.Log) spectateLogRow {
	return spectateLogRow{
		ID:        l.ID,
		AdminID:   l.AdminID,
		AdminName: l.AdminName,
		UserID:    l.UserID,
		UserName:  l.UserName,
		StartedAt: l.StartedAt.UTC(),
		EndedAt:   nullTimePtr(l.EndedAt),
	}
}

func (repo spectateRepository) fromLogRow(row spectateLogRow) spectate.Log {
	return spectate.Log{
		ID:        row.ID,
		AdminID:   row.AdminID,
		AdminName: row.AdminName,
		UserID:    row.UserID,
		UserName:  row.UserName,
		StartedAt: utc(row.StartedAt),
		EndedAt:   timePtr(row.EndedAt),
	}
}

func (repo spectateRepository) CreateLog(ctx context.Context, l spectate.Log) (spectate.Log, error) {
	l.ID = uuid.New().String()
	row := repo.toLogRow(l)
	q := `INSERT INTO spectate_logs (id, admin_id, admin_name, user_id, user_name, started_at, ended_at)
		VALUES (:id, :admin_id, :admin_name, :user_id, :user_name, :started_at, :ended_at)`
	if _, err := repo.namedExec(ctx, q, row); err != nil {
		return spectate.Log{}, errors.Wrap(err, "inserting spectate log")
	}
	return repo.fromLogRow(row), nil
}

func (repo spectateRepository) GetLog(ctx context.Context, id string) (spectate.Log, error) {
	if _, err := uuid.Parse(id); err != nil {
		return spectate.Log{}, spectate.ErrLogNotFound
	}
	var row spectateLogRow
	if err := repo.get(ctx, &row, "SELECT * FROM spectate_logs WHERE id = ?"+repo.forUpdate(ctx), id); err != nil {
		return spectate.Log{}, trapNoRowsErr(err, spectate.ErrLogNotFound, "finding spectate log")
	}
	return repo.fromLogRow(row), nil
}

func (repo spectateRepository) UpdateLog(ctx context.Context, l spectate.Log) (spectate.Log, error) {
	row := repo.toLogRow(l)
	res, err := repo.namedExec(ctx, "UPDATE spectate_logs SET ended_at = :ended_at WHERE id = :id", row)
	if err != nil {
		return spectate.Log{}, errors.Wrap(err, "updating spectate log")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return spectate.Log{}, err
	}
	if n == 0 {
		return spectate.Log{}, spectate.ErrLogNotFound
	}
	return repo.fromLogRow(row), nil
}

func (repo spectateRepository) QueryLogs(ctx context.Context, limit int) ([]spectate.Log, error) {
	var rows []spectateLogRow
	if err := repo.selectAll(ctx, &rows, "SELECT * FROM spectate_logs ORDER BY started_at DESC LIMIT ?", limit); err != nil {
		return nil, errors.Wrap(err, "querying spectate logs")
	}
	logs := make([]spectate.Log, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, repo.fromLogRow(row))
	}
	return logs, nil
}
