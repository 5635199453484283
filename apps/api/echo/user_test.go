package echoapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/tests"
)

func Test_userApi_signup(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.usrRepo, "Taken", "taken@test.cd")

	newUser := func(email, pwd, confirm string) []byte {
		return marshallObj(t, map[string]interface{}{
			"name":             "Student",
			"email":            email,
			"password":         pwd,
			"password_confirm": confirm,
			"role":             user.RoleAdmin, // ignored
			"is_premium":       true,           // ignored
		})
	}

	f.run(t, []httpTest{
		{
			name:     "invalid json",
			method:   http.MethodPost,
			path:     "/v1/users/signup",
			body:     []byte(`{"email":`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "passwords mismatch",
			method:   http.MethodPost,
			path:     "/v1/users/signup",
			body:     newUser("new@test.cd", testutil.Password, "LolC@t1234"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "weak password",
			method:   http.MethodPost,
			path:     "/v1/users/signup",
			body:     newUser("new@test.cd", "12345678", "12345678"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "email taken",
			method:   http.MethodPost,
			path:     "/v1/users/signup",
			body:     newUser(" TAKEN@test.cd ", testutil.Password, testutil.Password),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"a user with this email already exists"}`),
		},
	})

	rec := f.do(t, http.MethodPost, "/v1/users/signup", "", newUser("New@Test.cd", testutil.Password, testutil.Password))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		User  map[string]interface{} `json:"user"`
		Token string                 `json:"token"`
	}
	unmarshall(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "new@test.cd", resp.User["email"])
	assert.Equal(t, user.RoleUser, resp.User["role"])
	assert.Equal(t, user.StatusDemo, resp.User["account_status"])
	assert.Equal(t, false, resp.User["is_premium"])
	assert.Len(t, resp.User["access_code"], 6)
	assert.NotContains(t, rec.Body.String(), "password")

	// the token can be used right away
	rec = f.do(t, http.MethodGet, "/v1/users/me", resp.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd", testutil.WithPassword(testutil.Password))
	testutil.CreateUser(t, f.usrRepo, "Gone", "gone@test.cd", testutil.WithPassword(testutil.Password))
	require.NoError(t, f.usrRepo.SoftDeleteUsers(context.Background(), mustGetUser(t, f, "gone@test.cd").ID))

	login := func(email, pwd string) []byte {
		return marshallObj(t, map[string]string{"email": email, "password": pwd})
	}
	authFailed := marshallObj(t, httpErr{Error: "authentication failed"})

	f.run(t, []httpTest{
		{
			name:     "missing fields",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     login("nobody@test.cd", testutil.Password),
			wantCode: http.StatusBadRequest,
			wantData: authFailed,
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     login("student@test.cd", "LolC@t1234"),
			wantCode: http.StatusBadRequest,
			wantData: authFailed,
		},
		{
			name:     "deleted user",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     login("gone@test.cd", testutil.Password),
			wantCode: http.StatusBadRequest,
			wantData: authFailed,
		},
	})

	rec := f.do(t, http.MethodPost, "/v1/users/login", "", login(" STUDENT@test.cd", testutil.Password))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	unmarshall(t, rec, &resp)

	rec = f.do(t, http.MethodGet, "/v1/users/me", resp.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me user.User
	unmarshall(t, rec, &me)
	assert.Equal(t, usr.ID, me.ID)
	assert.False(t, me.LastLogin.IsZero())
}

func Test_userApi_loginWithPattern(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd", testutil.WithPassword(testutil.Password))
	token := f.getToken(t, usr)

	// set the pattern first
	f.run(t, []httpTest{
		{
			name:     "wrong password",
			method:   http.MethodPut,
			path:     "/v1/users/me/pattern",
			body:     []byte(`{"pattern":"1-5-9-6","password":"nope"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password":"invalid password"}`),
		},
		{
			name:     "too short",
			method:   http.MethodPut,
			path:     "/v1/users/me/pattern",
			body:     []byte(`{"pattern":"1-5-9","password":"` + testutil.Password + `"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "ok",
			method:   http.MethodPut,
			path:     "/v1/users/me/pattern",
			body:     []byte(`{"pattern":"1-5-9-6","password":"` + testutil.Password + `"}`),
			token:    token,
			wantCode: http.StatusOK,
		},
	})

	// dots are centred at 75, 150 & 225 on a 300 units canvas
	trace := []user.Point{{X: 75, Y: 75}, {X: 110, Y: 110}, {X: 150, Y: 150}, {X: 225, Y: 225}, {X: 225, Y: 150}}

	f.run(t, []httpTest{
		{
			name:     "pattern and trace",
			method:   http.MethodPost,
			path:     "/v1/users/login/pattern",
			body:     marshallObj(t, map[string]interface{}{"email": usr.Email, "pattern": "1-5-9-6", "points": trace, "size": 300}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"provide either a pattern or a trace"}`),
		},
		{
			name:     "wrong pattern",
			method:   http.MethodPost,
			path:     "/v1/users/login/pattern",
			body:     marshallObj(t, map[string]interface{}{"email": usr.Email, "pattern": "1-2-3-6"}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"authentication failed"}`),
		},
		{
			name:     "pattern",
			method:   http.MethodPost,
			path:     "/v1/users/login/pattern",
			body:     marshallObj(t, map[string]interface{}{"email": usr.Email, "pattern": "1-5-9-6"}),
			wantCode: http.StatusOK,
		},
		{
			name:     "trace",
			method:   http.MethodPost,
			path:     "/v1/users/login/pattern",
			body:     marshallObj(t, map[string]interface{}{"email": usr.Email, "points": trace, "size": 300}),
			wantCode: http.StatusOK,
		},
	})

	rec := f.do(t, http.MethodDelete, "/v1/users/me/pattern", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_pattern":false`)

	rec = f.do(t, http.MethodPost, "/v1/users/login/pattern", "", marshallObj(t, map[string]interface{}{"email": usr.Email, "pattern": "1-5-9-6"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_userApi_tokens(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd")

	expired := func() string {
		claims := newClaims(f, usr)
		claims.ExpiresAt = time.Now().Add(-time.Minute).Unix()
		return mustSign(t, f, claims)
	}()
	refreshExpired := func() string {
		claims := newClaims(f, usr)
		claims.OrigIssuedAt = time.Now().Add(-48 * time.Hour).Unix()
		return mustSign(t, f, claims)
	}()
	wrongKey := func() string {
		conf := *f.conf
		conf.SecretKey = "another-key"
		return mustSign(t, fixture{conf: &conf}, newClaims(f, usr))
	}()
	unknownUser := f.getToken(t, user.User{ID: "8f7b5c52-44a5-4d2a-9a1c-5f0f8b4c0a11", Email: "ghost@test.cd"})

	f.run(t, []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "expired token",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			token:    expired,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "wrong signing key",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			token:    wrongKey,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "unknown user",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			token:    unknownUser,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errUnauthorized),
		},
		{
			name:     "refresh expired",
			method:   http.MethodPost,
			path:     "/v1/users/token-refresh",
			token:    refreshExpired,
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error":"refresh has expired"}`),
		},
		{
			name:     "refresh",
			method:   http.MethodPost,
			path:     "/v1/users/token-refresh",
			token:    f.getToken(t, usr),
			wantCode: http.StatusOK,
		},
		{
			name:     "trailing slash",
			method:   http.MethodGet,
			path:     "/v1/users/me/",
			token:    f.getToken(t, usr),
			wantCode: http.StatusOK,
		},
	})
}

func Test_userApi_accessGuards(t *testing.T) {
	f := setup(t)
	past := core.Now().Add(-time.Hour)
	banned := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Banned", "banned@test.cd", testutil.WithBan(nil)))
	banExpired := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Free", "free@test.cd", testutil.WithBan(&past)))
	pending := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Pending", "pending@test.cd", testutil.WithStatus(user.StatusPendingApproval)))
	newbie := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Newbie", "newbie@test.cd", testutil.WithExam("")))
	free := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Free", "basic@test.cd"))
	prem := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Premium", "premium@test.cd", testutil.WithPremium()))
	subadmin := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Sub", "sub@test.cd", testutil.WithRole(user.RoleSubadmin)))

	f.run(t, []httpTest{
		{name: "banned: me", method: http.MethodGet, path: "/v1/users/me", token: banned, wantCode: http.StatusOK},
		{
			name:     "banned: progress",
			method:   http.MethodGet,
			path:     "/v1/progress",
			token:    banned,
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error":"account banned"}`),
		},
		{name: "ban expired: progress", method: http.MethodGet, path: "/v1/progress", token: banExpired, wantCode: http.StatusOK},
		{name: "pending: me", method: http.MethodGet, path: "/v1/users/me", token: pending, wantCode: http.StatusOK},
		{
			name:     "pending: progress",
			method:   http.MethodGet,
			path:     "/v1/progress",
			token:    pending,
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error":"account pending approval"}`),
		},
		{
			name:     "not onboarded: progress",
			method:   http.MethodGet,
			path:     "/v1/progress",
			token:    newbie,
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error":"onboarding not completed"}`),
		},
		{
			name:     "free: summary",
			method:   http.MethodGet,
			path:     "/v1/progress/summary",
			token:    free,
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error":"premium required"}`),
		},
		{name: "free: mistakes", method: http.MethodGet, path: "/v1/mistakes", token: free, wantCode: http.StatusForbidden},
		{name: "free: groups", method: http.MethodGet, path: "/v1/groups", token: free, wantCode: http.StatusForbidden},
		{name: "premium: summary", method: http.MethodGet, path: "/v1/progress/summary", token: prem, wantCode: http.StatusOK},
		{name: "sub-admin is premium", method: http.MethodGet, path: "/v1/mistakes", token: subadmin, wantCode: http.StatusOK},
		{
			name:     "user: admin console",
			method:   http.MethodGet,
			path:     "/v1/admin/users",
			token:    prem,
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, errForbidden),
		},
	})
}

func Test_userApi_onboardingAndSettings(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Newbie", "newbie@test.cd", testutil.WithExam(""))
	token := f.getToken(t, usr)
	year := time.Now().Year()

	f.run(t, []httpTest{
		{
			name:     "unknown exam",
			method:   http.MethodPost,
			path:     "/v1/users/me/onboarding",
			body:     marshallObj(t, map[string]interface{}{"exam": "SAT", "class_level": "12", "target_year": year}),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "target year out of range",
			method:   http.MethodPost,
			path:     "/v1/users/me/onboarding",
			body:     marshallObj(t, map[string]interface{}{"exam": "jee", "class_level": "12", "target_year": year + 6}),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"target_year":"target year is out of range"}`),
		},
		{
			name:     "ok",
			method:   http.MethodPost,
			path:     "/v1/users/me/onboarding",
			body:     marshallObj(t, map[string]interface{}{"exam": "jee", "class_level": "Dropper", "target_year": year + 1}),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "settings",
			method:   http.MethodPut,
			path:     "/v1/users/me",
			body:     []byte(`{"name":"  Newbie Two ","dark_mode":true}`),
			token:    token,
			wantCode: http.StatusOK,
		},
	})

	got := mustGetUser(t, f, usr.Email)
	assert.Equal(t, "JEE", got.Exam)
	assert.Equal(t, "Dropper", got.ClassLevel)
	assert.True(t, got.OnboardingCompleted)
	assert.Equal(t, "Newbie Two", got.Name)
	assert.True(t, got.DarkMode)

	rec := f.do(t, http.MethodGet, "/v1/syllabus", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"exam":"JEE"`)
}

func Test_userApi_passwordReset(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd", testutil.WithPassword(testutil.Password))

	for _, email := range []string{"nobody@test.cd", "student@test.cd"} {
		rec := f.do(t, http.MethodPost, "/v1/users/password-reset", "", marshallObj(t, map[string]string{"email": email}))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "If the email address supplied")
	}

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, usr.Email, sent[0].To[0].Address)

	rec := f.do(t, http.MethodPost, "/v1/users/password-reset-confirm", "", marshallObj(t, map[string]string{
		"uid":              "bad",
		"token":            "bad",
		"password":         "N3w-P@ssword",
		"password_confirm": "N3w-P@ssword",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "uid"), rec.Body.String())
}

func Test_userApi_unbanRequest(t *testing.T) {
	f := setup(t)
	banned := testutil.CreateUser(t, f.usrRepo, "Banned", "banned@test.cd", testutil.WithBan(nil))
	active := testutil.CreateUser(t, f.usrRepo, "Active", "active@test.cd")
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.cd", testutil.WithRole(user.RoleAdmin))
	reason := marshallObj(t, map[string]string{"reason": "I promise to behave from now on."})

	f.run(t, []httpTest{
		{
			name:     "too short",
			method:   http.MethodPost,
			path:     "/v1/users/me/unban-request",
			body:     []byte(`{"reason":"sorry"}`),
			token:    f.getToken(t, banned),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "not banned",
			method:   http.MethodPost,
			path:     "/v1/users/me/unban-request",
			body:     reason,
			token:    f.getToken(t, active),
			wantCode: http.StatusConflict,
		},
		{
			name:     "ok",
			method:   http.MethodPost,
			path:     "/v1/users/me/unban-request",
			body:     reason,
			token:    f.getToken(t, banned),
			wantCode: http.StatusCreated,
		},
		{
			name:     "already pending",
			method:   http.MethodPost,
			path:     "/v1/users/me/unban-request",
			body:     reason,
			token:    f.getToken(t, banned),
			wantCode: http.StatusConflict,
		},
	})

	adminToken := f.getToken(t, admin)
	rec := f.do(t, http.MethodGet, "/v1/admin/unban-requests", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var reqs []user.UnbanRequest
	unmarshall(t, rec, &reqs)
	require.Len(t, reqs, 1)
	assert.Equal(t, banned.ID, reqs[0].UserID)

	rec = f.do(t, http.MethodPost, "/v1/admin/unban-requests/"+reqs[0].ID+"/approve", adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/v1/admin/unban-requests/"+reqs[0].ID+"/reject", adminToken)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// unbanned users get their access back
	rec = f.do(t, http.MethodGet, "/v1/progress", f.getToken(t, banned))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_redeemCode(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@test.cd", testutil.WithRole(user.RoleAdmin))
	usr := testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd")
	token := f.getToken(t, usr)

	codes, err := f.premiumSvc.Generate(ctx, admin, 1)
	require.NoError(t, err)
	code := codes[0].Code

	f.run(t, []httpTest{
		{
			name:     "unknown code",
			method:   http.MethodPost,
			path:     "/v1/users/me/redeem",
			body:     []byte(`{"code":"ZZZZZZZZ"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "ok",
			method:   http.MethodPost,
			path:     "/v1/users/me/redeem",
			body:     []byte(`{"code":"` + strings.ToLower(code) + `"}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "already premium",
			method:   http.MethodPost,
			path:     "/v1/users/me/redeem",
			body:     []byte(`{"code":"` + code + `"}`),
			token:    token,
			wantCode: http.StatusConflict,
		},
	})

	assert.True(t, mustGetUser(t, f, usr.Email).IsPremium)
	rec := f.do(t, http.MethodGet, "/v1/mistakes", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func mustGetUser(t *testing.T, f fixture, email string) user.User {
	t.Helper()
	usr, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{Email: email})
	require.NoError(t, err)
	return usr
}
