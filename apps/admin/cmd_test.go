package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/storage/database"
	"github.com/trezcool/examtrack/storage/database/sqlx"
	"github.com/trezcool/examtrack/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	// set up DB & repos
	db := testutil.PrepareDB(t)
	tx := database.NewTransactor(db)
	usrRepo = sqlxrepos.NewUserRepository(db)

	// start CLI
	var out bytes.Buffer
	return &commandLine{
		db:          db,
		usrRepo:     usrRepo,
		syllabusSvc: syllabus.NewService(tx, sqlxrepos.NewSyllabusRepository(db), nil),
		premiumSvc:  premium.NewService(tx, sqlxrepos.NewPremiumRepository(db), usrRepo, nil, nil),
		out:         &out,
	}, &out
}

func withPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkRun(t *testing.T, cli *commandLine, tt cliTest) error {
	t.Helper()
	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	return err
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	orig := runMigrationsFunc
	t.Cleanup(func() { runMigrationsFunc = orig })
	runMigrationsFunc = func(_ context.Context, _ *sqlx.DB, _ core.Logger, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "mock_tests", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = checkRun(t, cli, tt)
		})
	}
}

func Test_commandLine_migrate_sqlite(t *testing.T) {
	cli, _ := setup(t)
	cli.logger = nil
	// the test database is already migrated
	require.NoError(t, cli.run([]string{"admin", "migrate", "up"}))
	require.NoError(t, cli.run([]string{"admin", "migrate", "status"}))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe@test.cd", testutil.WithPassword("mdr"))

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: extra{pwd: "lol"}},
		{name: "reset with messy email", args: []string{"resetpassword", "-email", "  AWE@test.cd "}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		pwd := ""
		if extra, ok := tt.extra.(extra); ok {
			pwd = extra.pwd
		}
		withPassword(t, pwd)

		t.Run(tt.name, func(t *testing.T) {
			if err := checkRun(t, cli, tt); err != nil {
				return
			}
			refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshedUsr.CheckPassword(pwd))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, out := setup(t)
	existing := testutil.CreateUser(t, usrRepo, "Old Name", "old@test.cd", testutil.WithStatus(user.StatusDemo))

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no email", args: []string{"adduser", "-name", "Joe"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-username", "joe"}, wantErr: errHelp},
		{name: "invalid role", args: []string{"adduser", "-name", "Joe", "-email", "joe@test.cd", "-role", "root"}, wantErr: user.ErrInvalidRole},
		{name: "create admin", args: []string{"adduser", "-name", " Joe ", "-email", "JOE@test.cd"}},
		{name: "create premium user", args: []string{"adduser", "-name", "Jane", "-email", "jane@test.cd", "-role", "user", "-premium"}},
		{name: "update", args: []string{"adduser", "-name", "New Name", "-email", existing.Email, "-role", "subadmin"}},
	}
	withPassword(t, "s3cret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = checkRun(t, cli, tt)
		})
	}

	joe, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "joe@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, "Joe", joe.Name)
	assert.Equal(t, user.RoleAdmin, joe.Role)
	assert.Equal(t, user.StatusActive, joe.AccountStatus)
	assert.NoError(t, joe.CheckPassword("s3cret"))

	jane, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "jane@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleUser, jane.Role)
	assert.True(t, jane.IsPremium)

	updated, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)
	assert.Equal(t, user.RoleSubadmin, updated.Role)
	assert.Equal(t, user.StatusActive, updated.AccountStatus)

	assert.Contains(t, out.String(), `Joe <joe@test.cd> saved with role "admin"`)

	t.Run("empty password", func(t *testing.T) {
		withPassword(t, "")
		_ = checkRun(t, cli, cliTest{args: []string{"adduser", "-name", "X", "-email", "x@test.cd"}, wantErr: errHelp})
	})
}

func Test_commandLine_seedSyllabus(t *testing.T) {
	cli, out := setup(t)

	require.NoError(t, cli.run([]string{"admin", "seedsyllabus"}))
	assert.Regexp(t, `^\d+ subjects seeded`, out.String())

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "seedsyllabus"}))
	assert.Contains(t, out.String(), "already seeded")

	out.Reset()
	require.NoError(t, cli.run([]string{"admin", "seedsyllabus", "-force"}))
	assert.Contains(t, out.String(), "subjects seeded")

	tree, err := cli.syllabusSvc.Tree(context.Background(), syllabus.ExamNEET)
	require.NoError(t, err)
	assert.Len(t, tree.Subjects, len(syllabus.ExamSubjects[syllabus.ExamNEET]))
}

func Test_commandLine_genCode(t *testing.T) {
	cli, out := setup(t)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", testutil.WithRole(user.RoleAdmin))
	testutil.CreateUser(t, usrRepo, "Student", "student@test.cd")

	tests := []cliTest{
		{name: "no admin", args: []string{"gencode"}, wantErr: errHelp},
		{name: "too many", args: []string{"gencode", "-admin", admin.Email, "-n", "51"}, wantErr: errHelp},
		{name: "unknown admin", args: []string{"gencode", "-admin", "nobody@test.cd"}, wantErr: user.ErrNotFound},
		{name: "not an admin", args: []string{"gencode", "-admin", "student@test.cd"}, wantErrStr: "student@test.cd is not an admin"},
		{name: "generate", args: []string{"gencode", "-admin", admin.Email, "-n", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = checkRun(t, cli, tt)
		})
	}

	printed := strings.Fields(out.String())
	codes, err := cli.premiumSvc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, codes, 3)
	for _, c := range codes {
		assert.Contains(t, printed, c.Code)
		assert.Equal(t, admin.ID, c.CreatedBy)
	}
}
