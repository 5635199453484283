package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examtrack/core/goal"
)

type dailyGoalRow struct {
	UserID      string    `db:"user_id"`
	Date        string    `db:"date"`
	Goals       string    `db:"goals"`
	Completed   bool      `db:"completed"`
	CompletedAt null.Time `db:"completed_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type goalRepository struct {
	baseRepository
}

var _ goal.Repository = (*goalRepository)(nil) // interface compliance check

func NewGoalRepository(db *sqlx.DB) *goalRepository {
	return &goalRepository{baseRepository{db: db}}
}

func (repo goalRepository) fromRow(row dailyGoalRow) (goal.DailyGoal, error) {
	dg := goal.DailyGoal{
		UserID:      row.UserID,
		Date:        row.Date,
		Goals:       []goal.SubGoal{},
		Completed:   row.Completed,
		CompletedAt: timePtr(row.CompletedAt),
		UpdatedAt:   utc(row.UpdatedAt),
	}
	if err := fromJSON(row.Goals, &dg.Goals); err != nil {
		return goal.DailyGoal{}, err
	}
	return dg, nil
}

func (repo goalRepository) GetGoal(ctx context.Context, userID, date string, forUpdate bool) (goal.DailyGoal, error) {
	q := "SELECT * FROM daily_goals WHERE user_id = ? AND date = ?"
	if forUpdate {
		q += repo.forUpdate(ctx)
	}
	var row dailyGoalRow
	if err := repo.get(ctx, &row, q, userID, date); err != nil {
		return goal.DailyGoal{}, trapNoRowsErr(err, goal.ErrNotFound, "finding daily goal")
	}
	return repo.fromRow(row)
}

func (repo goalRepository) UpsertGoal(ctx context.Context, dg goal.DailyGoal) (goal.DailyGoal, error) {
	if dg.Goals == nil {
		dg.Goals = []goal.SubGoal{}
	}
	goals, err := toJSON(dg.Goals)
	if err != nil {
		return goal.DailyGoal{}, err
	}
	row := dailyGoalRow{
		UserID:      dg.UserID,
		Date:        dg.Date,
		Goals:       goals,
		Completed:   dg.Completed,
		CompletedAt: nullTimePtr(dg.CompletedAt),
		UpdatedAt:   dg.UpdatedAt.UTC(),
	}
	q := `INSERT INTO daily_goals (user_id, date, goals, completed, completed_at, updated_at)
		VALUES (:user_id, :date, :goals, :completed, :completed_at, :updated_at)
		ON CONFLICT (user_id, date) DO UPDATE SET
		goals = excluded.goals, completed = excluded.completed, completed_at = excluded.completed_at,
		updated_at = excluded.updated_at`
	if _, err = repo.namedExec(ctx, q, row); err != nil {
		return goal.DailyGoal{}, errors.Wrap(err, "upserting daily goal")
	}
	return repo.fromRow(row)
}

func (repo goalRepository) QueryGoals(ctx context.Context, userID, from, to string) ([]goal.DailyGoal, error) {
	var rows []dailyGoalRow
	q := "SELECT * FROM daily_goals WHERE user_id = ? AND date >= ? AND date <= ? ORDER BY date ASC"
	if err := repo.selectAll(ctx, &rows, q, userID, from, to); err != nil {
		return nil, errors.Wrap(err, "querying daily goals")
	}
	goals := make([]goal.DailyGoal, 0, len(rows))
	for _, row := range rows {
		dg, err := repo.fromRow(row)
		if err != nil {
			return nil, err
		}
		goals = append(goals, dg)
	}
	return goals, nil
}
