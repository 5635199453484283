package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/contact"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/tests"
)

func Test_adminApi_users(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@examtrack.cd", testutil.WithRole(user.RoleAdmin))
	sub := testutil.CreateUser(t, f.usrRepo, "Sub", "sub@examtrack.cd", testutil.WithRole(user.RoleSubadmin))
	joe := testutil.CreateUser(t, f.usrRepo, "Joe Doe", "joe@test.cd", testutil.WithPremium())
	jane := testutil.CreateUser(t, f.usrRepo, "Jane Doe", "jane@test.cd", testutil.WithStatus(user.StatusPendingApproval))
	adminToken, subToken := f.getToken(t, admin), f.getToken(t, sub)

	query := func(t *testing.T, path string) []user.User {
		t.Helper()
		rec := f.do(t, http.MethodGet, path, subToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var users []user.User
		unmarshall(t, rec, &users)
		return users
	}
	ids := func(users []user.User) []string {
		res := make([]string, 0, len(users))
		for _, usr := range users {
			res = append(res, usr.ID)
		}
		return res
	}

	assert.Len(t, query(t, "/v1/admin/users"), 4)
	assert.Equal(t, []string{jane.ID, joe.ID}, ids(query(t, "/v1/admin/users?search=doe&ordering=name")))
	assert.Equal(t, []string{joe.ID, jane.ID}, ids(query(t, "/v1/admin/users?search=DOE&ordering=-name")))
	assert.ElementsMatch(t, []string{admin.ID, sub.ID}, ids(query(t, "/v1/admin/users?role=admin&role=subadmin")))
	assert.Equal(t, []string{jane.ID}, ids(query(t, "/v1/admin/users?status=pending_approval")))
	assert.Equal(t, []string{joe.ID}, ids(query(t, "/v1/admin/users?is_premium=true")))

	rec := f.do(t, http.MethodGet, "/v1/admin/roles", subToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"User","value":"user"},{"name":"Sub-Admin","value":"subadmin"},{"name":"Admin","value":"admin"}]`, rec.Body.String())

	newUser := func(email, role string) []byte {
		return marshallObj(t, map[string]interface{}{
			"name":             "New User",
			"email":            email,
			"password":         "pwd",
			"password_confirm": "pwd",
			"role":             role,
			"is_premium":       true,
		})
	}

	f.run(t, []httpTest{
		{name: "retrieve", method: http.MethodGet, path: "/v1/admin/users/" + joe.ID, token: subToken, wantCode: http.StatusOK},
		{name: "retrieve unknown", method: http.MethodGet, path: "/v1/admin/users/" + uuid.NewString(), token: subToken, wantCode: http.StatusNotFound},
		{name: "sub-admin: create", method: http.MethodPost, path: "/v1/admin/users", body: newUser("new@test.cd", ""), token: subToken, wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden)},
		{name: "create: invalid role", method: http.MethodPost, path: "/v1/admin/users", body: newUser("new@test.cd", "root"), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "create: duplicate email", method: http.MethodPost, path: "/v1/admin/users", body: newUser("JOE@test.cd", ""), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "create", method: http.MethodPost, path: "/v1/admin/users", body: newUser("new@test.cd", user.RoleSubadmin), token: adminToken, wantCode: http.StatusCreated},
		{
			name:     "update: password mismatch",
			method:   http.MethodPut,
			path:     "/v1/admin/users/" + joe.ID,
			body:     []byte(`{"password":"secret","password_confirm":"nope"}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/v1/admin/users/" + jane.ID,
			body:     []byte(`{"account_status":"active","is_premium":true}`),
			token:    adminToken,
			wantCode: http.StatusOK,
		},
		{name: "sub-admin: set role", method: http.MethodPut, path: "/v1/admin/users/" + joe.ID + "/role", body: []byte(`{"role":"subadmin"}`), token: subToken, wantCode: http.StatusForbidden},
		{name: "set own role", method: http.MethodPut, path: "/v1/admin/users/" + admin.ID + "/role", body: []byte(`{"role":"user"}`), token: adminToken, wantCode: http.StatusForbidden},
		{name: "set role: invalid", method: http.MethodPut, path: "/v1/admin/users/" + joe.ID + "/role", body: []byte(`{"role":"root"}`), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "sub-admin: ban admin", method: http.MethodPost, path: "/v1/admin/users/" + admin.ID + "/ban", body: []byte(`{}`), token: subToken, wantCode: http.StatusForbidden},
		{name: "ban self", method: http.MethodPost, path: "/v1/admin/users/" + admin.ID + "/ban", body: []byte(`{}`), token: adminToken, wantCode: http.StatusForbidden},
		{name: "ban: invalid hours", method: http.MethodPost, path: "/v1/admin/users/" + joe.ID + "/ban", body: []byte(`{"hours":-1}`), token: subToken, wantCode: http.StatusBadRequest},
		{name: "delete self", method: http.MethodDelete, path: "/v1/admin/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "delete self among others", method: http.MethodDelete, path: "/v1/admin/users?id=" + joe.ID + "&id=" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "sub-admin: delete", method: http.MethodDelete, path: "/v1/admin/users/" + joe.ID, token: subToken, wantCode: http.StatusForbidden},
		{name: "delete unknown", method: http.MethodDelete, path: "/v1/admin/users/" + uuid.NewString(), token: adminToken, wantCode: http.StatusNotFound},
	})

	created := query(t, "/v1/admin/users?search=new@test.cd")
	require.Len(t, created, 1)
	assert.Equal(t, user.RoleSubadmin, created[0].Role)
	assert.True(t, created[0].IsPremium)

	updated := mustGetUser(t, f, jane.Email)
	assert.Equal(t, user.StatusActive, updated.AccountStatus)
	assert.True(t, updated.IsPremium)

	// sub-admins moderate regular users
	rec = f.do(t, http.MethodPost, "/v1/admin/users/"+joe.ID+"/ban", subToken, []byte(`{"hours":48}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	banned := mustGetUser(t, f, joe.Email)
	assert.True(t, banned.IsBanned)
	require.NotNil(t, banned.BanExpiresAt)
	assert.Equal(t, []string{joe.ID}, ids(query(t, "/v1/admin/users?is_banned=true")))

	rec = f.do(t, http.MethodPost, "/v1/admin/users/"+joe.ID+"/unban", subToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, mustGetUser(t, f, joe.Email).IsBanned)

	rec = f.do(t, http.MethodPut, "/v1/admin/users/"+joe.ID+"/role", adminToken, []byte(`{"role":"subadmin"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, user.RoleSubadmin, mustGetUser(t, f, joe.Email).Role)

	// the promoted sub-admin is now out of the other sub-admin's reach
	f.run(t, []httpTest{
		{name: "sub-admin: ban sub-admin", method: http.MethodPost, path: "/v1/admin/users/" + joe.ID + "/ban", body: []byte(`{}`), token: subToken, wantCode: http.StatusForbidden},
		{name: "delete multiple", method: http.MethodDelete, path: "/v1/admin/users?id=" + joe.ID + "&id=" + jane.ID, token: adminToken, wantCode: http.StatusNoContent},
	})
	assert.ElementsMatch(t, []string{joe.ID, jane.ID}, ids(query(t, "/v1/admin/users?is_deleted=true")))
}

func Test_adminApi_premium(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@examtrack.cd", testutil.WithRole(user.RoleAdmin))
	sub := testutil.CreateUser(t, f.usrRepo, "Sub", "sub@examtrack.cd", testutil.WithRole(user.RoleSubadmin))
	demo := testutil.CreateUser(t, f.usrRepo, "Demo", "demo@test.cd", testutil.WithStatus(user.StatusDemo), testutil.WithAccessCode("654321"))
	testutil.CreateUser(t, f.usrRepo, "Active", "active@test.cd", testutil.WithAccessCode("111111"))
	adminToken, subToken := f.getToken(t, admin), f.getToken(t, sub)

	f.run(t, []httpTest{
		{name: "sub-admin: list codes", method: http.MethodGet, path: "/v1/admin/codes", token: subToken, wantCode: http.StatusForbidden},
		{name: "sub-admin: generate", method: http.MethodPost, path: "/v1/admin/codes", body: []byte(`{"count":1}`), token: subToken, wantCode: http.StatusForbidden},
		{name: "too many codes", method: http.MethodPost, path: "/v1/admin/codes", body: []byte(`{"count":51}`), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "empty list", method: http.MethodGet, path: "/v1/admin/codes", token: adminToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	})

	rec := f.do(t, http.MethodPost, "/v1/admin/codes", adminToken, []byte(`{"count":3}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var codes []premium.Code
	unmarshall(t, rec, &codes)
	require.Len(t, codes, 3)
	for _, c := range codes {
		assert.NotEmpty(t, c.Code)
		assert.Equal(t, admin.ID, c.CreatedBy)
	}

	rec = f.do(t, http.MethodGet, "/v1/admin/codes", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []premium.Code
	unmarshall(t, rec, &listed)
	assert.Len(t, listed, 3)

	f.run(t, []httpTest{
		{name: "delete code", method: http.MethodDelete, path: "/v1/admin/codes/" + codes[0].Code, token: adminToken, wantCode: http.StatusNoContent},
		{name: "delete code twice", method: http.MethodDelete, path: "/v1/admin/codes/" + codes[0].Code, token: adminToken, wantCode: http.StatusNotFound},
		{name: "activate: invalid code", method: http.MethodPost, path: "/v1/admin/activate", body: []byte(`{"access_code":"12ab"}`), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "activate: unknown code", method: http.MethodPost, path: "/v1/admin/activate", body: []byte(`{"access_code":"000000"}`), token: adminToken, wantCode: http.StatusNotFound},
		{name: "activate: not in demo", method: http.MethodPost, path: "/v1/admin/activate", body: []byte(`{"access_code":"111111"}`), token: adminToken, wantCode: http.StatusNotFound},
		{name: "activate", method: http.MethodPost, path: "/v1/admin/activate", body: []byte(`{"access_code":" 654321 "}`), token: adminToken, wantCode: http.StatusOK},
		{name: "activate twice", method: http.MethodPost, path: "/v1/admin/activate", body: []byte(`{"access_code":"654321"}`), token: adminToken, wantCode: http.StatusNotFound},
	})

	activated := mustGetUser(t, f, demo.Email)
	assert.Equal(t, user.StatusActive, activated.AccountStatus)
	assert.True(t, activated.IsPremium)

	rec = f.do(t, http.MethodGet, "/v1/admin/codes", adminToken)
	listed = nil
	unmarshall(t, rec, &listed)
	assert.Len(t, listed, 2)
}

func Test_contactApi(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@examtrack.cd", testutil.WithRole(user.RoleAdmin))
	student := testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd")
	adminToken := f.getToken(t, admin)

	f.run(t, []httpTest{
		{name: "missing fields", method: http.MethodPost, path: "/v1/contact", body: []byte(`{"name":"Joe"}`), wantCode: http.StatusBadRequest},
		{name: "invalid email", method: http.MethodPost, path: "/v1/contact", body: []byte(`{"name":"Joe","email":"joe","message":"hi"}`), wantCode: http.StatusBadRequest},
	})
	assert.Empty(t, f.mailSvc.SentMessages())

	rec := f.do(t, http.MethodPost, "/v1/contact", "", []byte(`{"name":" Joe ","email":"JOE@test.cd","message":"Is the JEE syllabus up to date?"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub contact.Submission
	unmarshall(t, rec, &sub)
	assert.Equal(t, "Joe", sub.Name)
	assert.Equal(t, "joe@test.cd", sub.Email)
	assert.False(t, sub.IsRead)

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	require.Len(t, sent[0].To, 1)
	assert.Equal(t, f.conf.AdminEmail.Address, sent[0].To[0].Address)
	assert.Contains(t, sent[0].Subject, "Joe")

	f.run(t, []httpTest{
		{name: "student: list", method: http.MethodGet, path: "/v1/admin/contact", token: f.getToken(t, student), wantCode: http.StatusForbidden},
		{name: "toggle unknown", method: http.MethodPost, path: "/v1/admin/contact/" + uuid.NewString() + "/toggle-read", token: adminToken, wantCode: http.StatusNotFound},
		{name: "delete unknown", method: http.MethodDelete, path: "/v1/admin/contact/nope", token: adminToken, wantCode: http.StatusNotFound},
	})

	rec = f.do(t, http.MethodPost, "/v1/admin/contact/"+sub.ID+"/toggle-read", adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &sub)
	assert.True(t, sub.IsRead)

	rec = f.do(t, http.MethodGet, "/v1/admin/contact", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []contact.Submission
	unmarshall(t, rec, &subs)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].IsRead)

	f.run(t, []httpTest{
		{name: "delete", method: http.MethodDelete, path: "/v1/admin/contact/" + sub.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "empty list", method: http.MethodGet, path: "/v1/admin/contact", token: adminToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	})
}

func Test_adminApi_syllabus(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin@examtrack.cd", testutil.WithRole(user.RoleAdmin))
	sub := testutil.CreateUser(t, f.usrRepo, "Sub", "sub@examtrack.cd", testutil.WithRole(user.RoleSubadmin))
	adminToken, subToken := f.getToken(t, admin), f.getToken(t, sub)

	rec := f.do(t, http.MethodGet, "/v1/admin/syllabus/JEE", subToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tree syllabus.Tree
	unmarshall(t, rec, &tree)
	assert.Equal(t, syllabus.ExamJEE, tree.Exam)
	require.Len(t, tree.Subjects, len(syllabus.ExamSubjects[syllabus.ExamJEE]))
	assert.Equal(t, syllabus.SubjectMathematics, tree.Subjects[len(tree.Subjects)-1].Subject)

	f.run(t, []httpTest{
		{name: "unknown exam", method: http.MethodGet, path: "/v1/admin/syllabus/SAT", token: subToken, wantCode: http.StatusNotFound},
		{name: "sub-admin: update", method: http.MethodPut, path: "/v1/admin/syllabus/JEE/mathematics", body: []byte(`{"chapters":"Sets"}`), token: subToken, wantCode: http.StatusForbidden},
		{name: "sub-admin: seed", method: http.MethodPost, path: "/v1/admin/syllabus/seed", token: subToken, wantCode: http.StatusForbidden},
		{name: "update: no chapters", method: http.MethodPut, path: "/v1/admin/syllabus/JEE/mathematics", body: []byte(`{"chapters":"  "}`), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "update: duplicate chapters", method: http.MethodPut, path: "/v1/admin/syllabus/JEE/mathematics", body: []byte(`{"chapters":"Sets\nsets"}`), token: adminToken, wantCode: http.StatusBadRequest},
		{name: "update: subject not in exam", method: http.MethodPut, path: "/v1/admin/syllabus/JEE/biology", body: []byte(`{"chapters":"Cells"}`), token: adminToken, wantCode: http.StatusNotFound},
		{name: "seed: already seeded", method: http.MethodPost, path: "/v1/admin/syllabus/seed", token: adminToken, wantCode: http.StatusOK, wantData: []byte(`{"subjects":0}`)},
	})

	rec = f.do(t, http.MethodPut, "/v1/admin/syllabus/JEE/mathematics", adminToken, []byte(`{"chapters":" Sets \n\nLimits\nMatrices"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var math syllabus.Subject
	unmarshall(t, rec, &math)
	assert.Equal(t, []string{"Sets", "Limits", "Matrices"}, math.Chapters())

	rec = f.do(t, http.MethodGet, "/v1/admin/syllabus/JEE", subToken)
	unmarshall(t, rec, &tree)
	updated, ok := tree.Subject(syllabus.SubjectMathematics)
	require.True(t, ok)
	assert.Equal(t, []string{"Sets", "Limits", "Matrices"}, updated.Chapters())

	// forced seeding restores the defaults
	rec = f.do(t, http.MethodPost, "/v1/admin/syllabus/seed?force=true", adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var seeded struct {
		Subjects int `json:"subjects"`
	}
	unmarshall(t, rec, &seeded)
	assert.Positive(t, seeded.Subjects)

	rec = f.do(t, http.MethodGet, "/v1/admin/syllabus/JEE", subToken)
	unmarshall(t, rec, &tree)
	restored, _ := tree.Subject(syllabus.SubjectMathematics)
	assert.NotEqual(t, []string{"Sets", "Limits", "Matrices"}, restored.Chapters())
}

func Test_rateLimit(t *testing.T) {
	f := setup(t, func(conf *core.Config) {
		conf.Server.RateLimit = 0.001
		conf.Server.RateBurst = 2
	})
	body := []byte(`{"email":"nobody@test.cd","password":"wrong"}`)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/v1/users/login", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	}
	rec := f.do(t, http.MethodPost, "/v1/users/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// authenticated routes are not throttled
	usr := testutil.CreateUser(t, f.usrRepo, "Joe", "joe@test.cd")
	token := f.getToken(t, usr)
	for i := 0; i < 3; i++ {
		rec = f.do(t, http.MethodGet, "/v1/users/me", token)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
