package premium_test

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/storage/database"
	"github.com/trezcool/examtrack/storage/database/sqlx"
	"github.com/trezcool/examtrack/tests"
)

func setup(t *testing.T) (premium.Service, user.Repository, *testutil.EventRecorder) {
	db := testutil.PrepareDB(t)
	rec := &testutil.EventRecorder{}
	usrRepo := sqlxrepos.NewUserRepository(db)
	svc := premium.NewService(database.NewTransactor(db), sqlxrepos.NewPremiumRepository(db), usrRepo, rec, nil)
	return svc, usrRepo, rec
}

func TestService_Codes(t *testing.T) {
	svc, usrRepo, _ := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", testutil.WithRole(user.RoleAdmin))

	codes, err := svc.Generate(ctx, admin, 3)
	require.NoError(t, err)
	require.Len(t, codes, 3)
	codeRe := regexp.MustCompile(`^[A-Z0-9]{8}$`)
	for _, c := range codes {
		assert.Regexp(t, codeRe, c.Code)
		assert.Equal(t, admin.ID, c.CreatedBy)
	}

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 3)

	require.NoError(t, svc.Delete(ctx, " "+codes[0].Code+" "))
	assert.Equal(t, premium.ErrNotFound, svc.Delete(ctx, codes[0].Code))

	listed, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestService_Redeem(t *testing.T) {
	svc, usrRepo, rec := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", testutil.WithRole(user.RoleAdmin))
	demo := testutil.CreateUser(t, usrRepo, "Demo", "demo@test.cd", testutil.WithStatus(user.StatusDemo))
	other := testutil.CreateUser(t, usrRepo, "Other", "other@test.cd", testutil.WithStatus(user.StatusDemo))

	codes, err := svc.Generate(ctx, admin, 1)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, demo, "ZZZZZZZZZ")
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, premium.ErrInvalidCode, vErr.Err)

	usr, err := svc.Redeem(ctx, demo, " "+strings.ToLower(codes[0].Code)+" ")
	require.NoError(t, err)
	assert.True(t, usr.IsPremium)
	assert.Equal(t, user.StatusActive, usr.AccountStatus)

	// a code is single use
	_, err = svc.Redeem(ctx, other, codes[0].Code)
	vErr, ok = err.(*core.ValidationError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, premium.ErrInvalidCode, vErr.Err)

	other, err = usrRepo.GetUser(ctx, user.GetFilter{ID: other.ID})
	require.NoError(t, err)
	assert.False(t, other.IsPremium)

	codes, err = svc.Generate(ctx, admin, 1)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, usr, codes[0].Code)
	assert.Equal(t, premium.ErrAlreadyPremium, err)

	assert.Equal(t, []string{core.EventPremiumActivated}, rec.Types(core.UserTopic(demo.ID)))
}

func TestService_Redeem_concurrent(t *testing.T) {
	svc, usrRepo, _ := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", testutil.WithRole(user.RoleAdmin))
	codes, err := svc.Generate(ctx, admin, 1)
	require.NoError(t, err)

	users := []user.User{
		testutil.CreateUser(t, usrRepo, "A", "a@test.cd", testutil.WithStatus(user.StatusDemo)),
		testutil.CreateUser(t, usrRepo, "B", "b@test.cd", testutil.WithStatus(user.StatusDemo)),
		testutil.CreateUser(t, usrRepo, "C", "c@test.cd", testutil.WithStatus(user.StatusDemo)),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, usr := range users {
		wg.Add(1)
		go func(i int, usr user.User) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(ctx, usr, codes[0].Code)
		}(i, usr)
	}
	wg.Wait()

	redeemed := 0
	for _, err := range errs {
		if err == nil {
			redeemed++
		}
	}
	assert.Equal(t, 1, redeemed)
}

func TestService_ActivateByAccessCode(t *testing.T) {
	svc, usrRepo, _ := setup(t)
	ctx := context.Background()
	demo := testutil.CreateUser(t, usrRepo, "Demo", "demo@test.cd",
		testutil.WithStatus(user.StatusDemo), testutil.WithAccessCode("123456"))
	testutil.CreateUser(t, usrRepo, "Active", "active@test.cd", testutil.WithAccessCode("654321"))

	usr, err := svc.ActivateByAccessCode(ctx, " 123456 ")
	require.NoError(t, err)
	assert.Equal(t, demo.ID, usr.ID)
	assert.True(t, usr.IsPremium)
	assert.Equal(t, user.StatusActive, usr.AccountStatus)

	_, err = svc.ActivateByAccessCode(ctx, "123456")
	assert.Equal(t, premium.ErrNoDemoUser, err)
	_, err = svc.ActivateByAccessCode(ctx, "654321")
	assert.Equal(t, premium.ErrNoDemoUser, err)
	_, err = svc.ActivateByAccessCode(ctx, "000000")
	assert.Equal(t, premium.ErrNoDemoUser, err)
}
