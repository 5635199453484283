// Package sqlxrepos implements the core repositories on top of jmoiron/sqlx.
// Queries are written with `?` placeholders and rebound for the driver in use (postgres or sqlite).
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/storage/database"
)

type baseRepository struct {
	db *sqlx.DB
}

func (repo baseRepository) exec(ctx context.Context) sqlx.ExtContext {
	return database.Executor(ctx, repo.db)
}

func (repo baseRepository) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	exe := repo.exec(ctx)
	return sqlx.GetContext(ctx, exe, dest, exe.Rebind(query), args...)
}

func (repo baseRepository) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	exe := repo.exec(ctx)
	return sqlx.SelectContext(ctx, exe, dest, exe.Rebind(query), args...)
}

// selectIn expands slice args of an `IN (?)` query before running it.
func (repo baseRepository) selectIn(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	q, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return err
	}
	return repo.selectAll(ctx, dest, q, inArgs...)
}

func (repo baseRepository) execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	exe := repo.exec(ctx)
	return exe.ExecContext(ctx, exe.Rebind(query), args...)
}

func (repo baseRepository) executeIn(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	q, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	return repo.execute(ctx, q, inArgs...)
}

func (repo baseRepository) namedExec(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	return sqlx.NamedExecContext(ctx, repo.exec(ctx), query, arg)
}

// forUpdate returns the row locking clause supported by the driver in use.
// sqlite transactions are opened with an immediate lock so they need none.
func (repo baseRepository) forUpdate(ctx context.Context) string {
	if database.InTx(ctx) && repo.exec(ctx).DriverName() == database.EnginePostgres {
		return " FOR UPDATE"
	}
	return ""
}

// trapNoRowsErr maps the "no rows" error to notFound
func trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// rowsAffected returns the number of rows affected by res.
func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "getting rows affected")
}

func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

func likePrefix(s string) string {
	return escapeLike(strings.ToLower(s)) + "%"
}

func likeContains(s string) string {
	return "%" + escapeLike(strings.ToLower(s)) + "%"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func toJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encoding JSON column")
	}
	return string(data), nil
}

func fromJSON(s string, v interface{}) error {
	if s == "" {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(s), v), "decoding JSON column")
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullTimePtr(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time.UTC()
	return &tt
}

func timeOrZero(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
