package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
)

const userColumns = `id, name, email, password_hash, pattern_hash, role, account_status, is_premium, access_code,
	exam, class_level, target_year, onboarding_completed, is_banned, ban_expires_at, has_pending_unban_request,
	is_deleted, theme, dark_mode, current_streak, longest_streak, total_points, last_goal_completed_date,
	created_at, updated_at, last_login`

type userRow struct {
	ID                     string      `db:"id"`
	Name                   string      `db:"name"`
	Email                  string      `db:"email"`
	PasswordHash           string      `db:"password_hash"`
	PatternHash            null.String `db:"pattern_hash"`
	Role                   string      `db:"role"`
	AccountStatus          string      `db:"account_status"`
	IsPremium              bool        `db:"is_premium"`
	AccessCode             null.String `db:"access_code"`
	Exam                   null.String `db:"exam"`
	ClassLevel             null.String `db:"class_level"`
	TargetYear             null.Int    `db:"target_year"`
	OnboardingCompleted    bool        `db:"onboarding_completed"`
	IsBanned               bool        `db:"is_banned"`
	BanExpiresAt           null.Time   `db:"ban_expires_at"`
	HasPendingUnbanRequest bool        `db:"has_pending_unban_request"`
	IsDeleted              bool        `db:"is_deleted"`
	Theme                  string      `db:"theme"`
	DarkMode               bool        `db:"dark_mode"`
	CurrentStreak          int         `db:"current_streak"`
	LongestStreak          int         `db:"longest_streak"`
	TotalPoints            int         `db:"total_points"`
	LastGoalCompletedDate  null.String `db:"last_goal_completed_date"`
	CreatedAt              time.Time   `db:"created_at"`
	UpdatedAt              time.Time   `db:"updated_at"`
	LastLogin              null.Time   `db:"last_login"`
}

type unbanRequestRow struct {
	ID         string      `db:"id"`
	UserID     string      `db:"user_id"`
	UserName   string      `db:"user_name"`
	UserEmail  string      `db:"user_email"`
	Reason     string      `db:"reason"`
	Status     string      `db:"status"`
	Approved   bool        `db:"approved"`
	ReviewedBy null.String `db:"reviewed_by"`
	CreatedAt  time.Time   `db:"created_at"`
	ReviewedAt null.Time   `db:"reviewed_at"`
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{baseRepository{db: db}}
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:                     usr.ID,
		Name:                   usr.Name,
		Email:                  usr.Email,
		PasswordHash:           string(usr.PasswordHash),
		PatternHash:            null.NewString(string(usr.PatternHash), len(usr.PatternHash) > 0),
		Role:                   usr.Role,
		AccountStatus:          usr.AccountStatus,
		IsPremium:              usr.IsPremium,
		AccessCode:             null.NewString(usr.AccessCode, usr.AccessCode != ""),
		Exam:                   null.NewString(usr.Exam, usr.Exam != ""),
		ClassLevel:             null.NewString(usr.ClassLevel, usr.ClassLevel != ""),
		TargetYear:             null.NewInt(usr.TargetYear, usr.TargetYear != 0),
		OnboardingCompleted:    usr.OnboardingCompleted,
		IsBanned:               usr.IsBanned,
		BanExpiresAt:           nullTimePtr(usr.BanExpiresAt),
		HasPendingUnbanRequest: usr.HasPendingUnbanRequest,
		IsDeleted:              usr.IsDeleted,
		Theme:                  usr.Theme,
		DarkMode:               usr.DarkMode,
		CurrentStreak:          usr.CurrentStreak,
		LongestStreak:          usr.LongestStreak,
		TotalPoints:            usr.TotalPoints,
		LastGoalCompletedDate:  null.NewString(usr.LastGoalCompletedDate, usr.LastGoalCompletedDate != ""),
		CreatedAt:              usr.CreatedAt.UTC(),
		UpdatedAt:              usr.UpdatedAt.UTC(),
		LastLogin:              nullTime(usr.LastLogin),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:                     row.ID,
		Name:                   row.Name,
		Email:                  row.Email,
		PasswordHash:           []byte(row.PasswordHash),
		Role:                   row.Role,
		AccountStatus:          row.AccountStatus,
		IsPremium:              row.IsPremium,
		AccessCode:             row.AccessCode.String,
		Exam:                   row.Exam.String,
		ClassLevel:             row.ClassLevel.String,
		TargetYear:             row.TargetYear.Int,
		OnboardingCompleted:    row.OnboardingCompleted,
		IsBanned:               row.IsBanned,
		BanExpiresAt:           timePtr(row.BanExpiresAt),
		HasPendingUnbanRequest: row.HasPendingUnbanRequest,
		IsDeleted:              row.IsDeleted,
		Theme:                  row.Theme,
		DarkMode:               row.DarkMode,
		CurrentStreak:          row.CurrentStreak,
		LongestStreak:          row.LongestStreak,
		TotalPoints:            row.TotalPoints,
		LastGoalCompletedDate:  row.LastGoalCompletedDate.String,
		CreatedAt:              utc(row.CreatedAt),
		UpdatedAt:              utc(row.UpdatedAt),
		LastLogin:              timeOrZero(row.LastLogin),
	}
	if row.PatternHash.Valid {
		usr.PatternHash = []byte(row.PatternHash.String)
	}
	return usr
}

func (repo userRepository) fromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	q := "SELECT COUNT(*) FROM users WHERE email = ?"
	args := []interface{}{email}
	if len(excludedIDs) > 0 {
		q += " AND id NOT IN (?)"
		args = append(args, excludedIDs)
	}
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}

	var count int
	if err = repo.get(ctx, &count, q, args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if count > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.toRow(usr)
	q := `INSERT INTO users (` + userColumns + `) VALUES (
		:id, :name, :email, :password_hash, :pattern_hash, :role, :account_status, :is_premium, :access_code,
		:exam, :class_level, :target_year, :onboarding_completed, :is_banned, :ban_expires_at, :has_pending_unban_request,
		:is_deleted, :theme, :dark_mode, :current_streak, :longest_streak, :total_points, :last_goal_completed_date,
		:created_at, :updated_at, :last_login)`
	if _, err := repo.namedExec(ctx, q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var where string
	var arg interface{}
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		where, arg = "id = ?", filter.ID
	case filter.Email != "":
		where, arg = "email = ?", filter.Email
	case filter.AccessCode != "":
		where, arg = "access_code = ?", filter.AccessCode
	default:
		return user.User{}, user.ErrNotFound
	}

	q := "SELECT " + userColumns + " FROM users WHERE " + where
	if filter.ForUpdate {
		q += repo.forUpdate(ctx)
	}

	var row userRow
	if err := repo.get(ctx, &row, q, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	conds := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)

	if filter != nil {
		// users with Name or Email matching the search keyword
		if filter.Search != "" {
			val := likeContains(filter.Search)
			conds = append(conds, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`)
			args = append(args, val, val)
		}
		if len(filter.Roles) > 0 {
			conds = append(conds, "role IN (?)")
			args = append(args, filter.Roles)
		}
		if len(filter.Statuses) > 0 {
			conds = append(conds, "account_status IN (?)")
			args = append(args, filter.Statuses)
		}
		if filter.IsBanned != nil {
			conds = append(conds, "is_banned = ?")
			args = append(args, *filter.IsBanned)
		}
		if filter.IsPremium != nil {
			conds = append(conds, "is_premium = ?")
			args = append(args, *filter.IsPremium)
		}
		if filter.IsDeleted != nil {
			conds = append(conds, "is_deleted = ?")
			args = append(args, *filter.IsDeleted)
		}
	}

	q := "SELECT " + userColumns + " FROM users"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += orderBy(ordering, "created_at DESC")

	var rows []userRow
	if err := repo.selectIn(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.fromRows(rows), nil
}

func (repo userRepository) SearchUsersByName(ctx context.Context, prefix string, limit int, excludedIDs ...string) ([]user.User, error) {
	q := "SELECT " + userColumns + ` FROM users WHERE LOWER(name) LIKE ? ESCAPE '\' AND is_deleted = ?`
	args := []interface{}{likePrefix(prefix), false}
	if len(excludedIDs) > 0 {
		q += " AND id NOT IN (?)"
		args = append(args, excludedIDs)
	}
	q += " ORDER BY name ASC LIMIT ?"
	args = append(args, limit)

	var rows []userRow
	if err := repo.selectIn(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "searching users")
	}
	return repo.fromRows(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	row := repo.toRow(usr)
	q := `UPDATE users SET
		name = :name, email = :email, password_hash = :password_hash, pattern_hash = :pattern_hash, role = :role,
		account_status = :account_status, is_premium = :is_premium, access_code = :access_code, exam = :exam,
		class_level = :class_level, target_year = :target_year, onboarding_completed = :onboarding_completed,
		is_banned = :is_banned, ban_expires_at = :ban_expires_at, has_pending_unban_request = :has_pending_unban_request,
		is_deleted = :is_deleted, theme = :theme, dark_mode = :dark_mode, current_streak = :current_streak,
		longest_streak = :longest_streak, total_points = :total_points,
		last_goal_completed_date = :last_goal_completed_date, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	res, err := repo.namedExec(ctx, q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return user.User{}, err
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) SoftDeleteUsers(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.executeIn(ctx, "UPDATE users SET is_deleted = ?, updated_at = ? WHERE id IN (?)", true, core.Now(), ids)
	return errors.Wrap(err, "deleting users")
}

func (repo userRepository) toUnbanRow(req user.UnbanRequest) unbanRequestRow {
	return unbanRequestRow{
		ID:         req.ID,
		UserID:     req.UserID,
		UserName:   req.UserName,
		UserEmail:  req.UserEmail,
		Reason:     req.Reason,
		Status:     req.Status,
		Approved:   req.Approved,
		ReviewedBy: null.NewString(req.ReviewedBy, req.ReviewedBy != ""),
		CreatedAt:  req.CreatedAt.UTC(),
		ReviewedAt: nullTime(req.ReviewedAt),
	}
}

func (repo userRepository) fromUnbanRow(row unbanRequestRow) user.UnbanRequest {
	return user.UnbanRequest{
		ID:         row.ID,
		UserID:     row.UserID,
		UserName:   row.UserName,
		UserEmail:  row.UserEmail,
		Reason:     row.Reason,
		Status:     row.Status,
		Approved:   row.Approved,
		ReviewedBy: row.ReviewedBy.String,
		CreatedAt:  utc(row.CreatedAt),
		ReviewedAt: timeOrZero(row.ReviewedAt),
	}
}

func (repo userRepository) CreateUnbanRequest(ctx context.Context, req user.UnbanRequest) (user.UnbanRequest, error) {
	req.ID = uuid.New().String()
	row := repo.toUnbanRow(req)
	q := `INSERT INTO unban_requests (id, user_id, user_name, user_email, reason, status, approved, reviewed_by, created_at, reviewed_at)
		VALUES (:id, :user_id, :user_name, :user_email, :reason, :status, :approved, :reviewed_by, :created_at, :reviewed_at)`
	if _, err := repo.namedExec(ctx, q, row); err != nil {
		return user.UnbanRequest{}, errors.Wrap(err, "inserting unban request")
	}
	return repo.fromUnbanRow(row), nil
}

func (repo userRepository) GetUnbanRequest(ctx context.Context, id string) (user.UnbanRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.UnbanRequest{}, user.ErrUnbanRequestNotFound
	}
	var row unbanRequestRow
	if err := repo.get(ctx, &row, "SELECT * FROM unban_requests WHERE id = ?"+repo.forUpdate(ctx), id); err != nil {
		return user.UnbanRequest{}, trapNoRowsErr(err, user.ErrUnbanRequestNotFound, "finding unban request")
	}
	return repo.fromUnbanRow(row), nil
}

func (repo userRepository) QueryUnbanRequests(ctx context.Context, status string) ([]user.UnbanRequest, error) {
	q := "SELECT * FROM unban_requests"
	var args []interface{}
	if status != "" {
		q += " WHERE status = ?"
		args = append(args, status)
	}
	q += " ORDER BY created_at DESC"

	var rows []unbanRequestRow
	if err := repo.selectAll(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying unban requests")
	}
	reqs := make([]user.UnbanRequest, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, repo.fromUnbanRow(row))
	}
	return reqs, nil
}

func (repo userRepository) UpdateUnbanRequest(ctx context.Context, req user.UnbanRequest) (user.UnbanRequest, error) {
	row := repo.toUnbanRow(req)
	q := `UPDATE unban_requests SET status = :status, approved = :approved, reviewed_by = :reviewed_by,
		reviewed_at = :reviewed_at WHERE id = :id AND status = '` + user.UnbanPending + `'`
	res, err := repo.namedExec(ctx, q, row)
	if err != nil {
		return user.UnbanRequest{}, errors.Wrap(err, "updating unban request")
	}
	n, err := rowsAffected(res)
	if err != nil {
		return user.UnbanRequest{}, err
	}
	if n == 0 {
		if _, err = repo.GetUnbanRequest(ctx, req.ID); err != nil {
			return user.UnbanRequest{}, err
		}
		return user.UnbanRequest{}, user.ErrAlreadyReviewed
	}
	return repo.fromUnbanRow(row), nil
}
