package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examtrack/apps/api/echo"
	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/contact"
	"github.com/trezcool/examtrack/core/goal"
	"github.com/trezcool/examtrack/core/group"
	"github.com/trezcool/examtrack/core/mistake"
	"github.com/trezcool/examtrack/core/premium"
	"github.com/trezcool/examtrack/core/progress"
	"github.com/trezcool/examtrack/core/revision"
	"github.com/trezcool/examtrack/core/spectate"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/services/email"
	"github.com/trezcool/examtrack/services/logger"
	"github.com/trezcool/examtrack/services/realtime"
	"github.com/trezcool/examtrack/storage/database"
	"github.com/trezcool/examtrack/storage/database/sqlx"
	"github.com/trezcool/examtrack/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errUnauthorized = httpErr{Error: "user not authenticated"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type fixture struct {
	conf        *core.Config
	app         *echoapi.Server
	hub         *realtime.Hub
	mailSvc     *emailsvc.ConsoleServiceMock
	usrRepo     user.Repository
	syllabusSvc syllabus.Service
	progressSvc progress.Service
	premiumSvc  premium.Service
	groupSvc    group.Service
	gen         *fakeGenerator
}

// fakeGenerator returns a canned timetable, or err when set.
type fakeGenerator struct {
	err   error
	calls []revision.Request
}

func (g *fakeGenerator) GenerateTimetable(_ context.Context, req revision.Request) (string, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return "", g.err
	}
	return "<table><tr><td>Day 1</td></tr></table>", nil
}

func setup(t *testing.T, opts ...func(conf *core.Config)) fixture {
	conf := testutil.NewConfig()
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	for _, opt := range opts {
		opt(conf)
	}
	validate, translator := testutil.NewValidator()
	core.ParseEmailTemplates(conf, nil)

	log := logsvc.NewLogrus(conf)
	log.SetOutput(io.Discard)
	logger := logsvc.NewRollbarLogger(log, conf)
	logger.Enable(false)

	db := testutil.PrepareDB(t)
	tx := database.NewTransactor(db)
	hub := realtime.NewHub()
	t.Cleanup(func() { _ = hub.Close() })
	pub := realtime.NewPublisher(hub)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(tx, usrRepo, mailSvc, pub, logger, conf)
	syllabusSvc := syllabus.NewService(tx, sqlxrepos.NewSyllabusRepository(db), logger)
	_, err := syllabusSvc.Seed(context.Background(), false)
	require.NoError(t, err)
	progressSvc := progress.NewService(tx, sqlxrepos.NewProgressRepository(db), syllabusSvc, pub, logger)
	goalSvc := goal.NewService(tx, sqlxrepos.NewGoalRepository(db), usrRepo, syllabusSvc, progressSvc, pub, logger, conf)
	groupSvc := group.NewService(tx, sqlxrepos.NewGroupRepository(db), sqlxrepos.NewMessageRepository(db), usrRepo, pub, logger)
	premiumSvc := premium.NewService(tx, sqlxrepos.NewPremiumRepository(db), usrRepo, pub, logger)
	gen := &fakeGenerator{}

	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Broker:         hub,
		UserSvc:        usrSvc,
		SyllabusSvc:    syllabusSvc,
		ProgressSvc:    progressSvc,
		GoalSvc:        goalSvc,
		MistakeSvc:     mistake.NewService(sqlxrepos.NewMistakeRepository(db), syllabusSvc),
		GroupSvc:       groupSvc,
		PremiumSvc:     premiumSvc,
		SpectateSvc:    spectate.NewService(tx, sqlxrepos.NewSpectateRepository(db), usrRepo, logger),
		ContactSvc:     contact.NewService(sqlxrepos.NewContactRepository(db), mailSvc, conf),
		RevisionSvc:    revision.NewService(gen, syllabusSvc, progressSvc, logger),
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = app.Close() })

	return fixture{
		conf:        conf,
		app:         app,
		hub:         hub,
		mailSvc:     mailSvc,
		usrRepo:     usrRepo,
		syllabusSvc: syllabusSvc,
		progressSvc: progressSvc,
		premiumSvc:  premiumSvc,
		groupSvc:    groupSvc,
		gen:         gen,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// completeSubject marks every chapter of subject completed for usr.
func (f fixture) completeSubject(t *testing.T, usr user.User, subject string) {
	t.Helper()
	ctx := context.Background()
	chapters, err := f.syllabusSvc.Chapters(ctx, usr.Exam, subject)
	require.NoError(t, err)
	for _, ch := range chapters {
		_, err = f.progressSvc.MarkCompleted(ctx, usr, subject, ch)
		require.NoError(t, err)
	}
}

func (f fixture) do(t *testing.T, method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(method, path, token, data...)
	f.app.ServeHTTP(rec, req)
	return rec
}

// run serves every test case. Cases without wantData only check the status code.
func (f fixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func (f fixture) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(f.conf, echoapi.GetUserClaims(f.conf, usr, "password"))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func newClaims(f fixture, usr user.User) *echoapi.Claims {
	return echoapi.GetUserClaims(f.conf, usr, "password")
}

func mustSign(t *testing.T, f fixture, claims *echoapi.Claims) string {
	t.Helper()
	token, err := echoapi.GenerateToken(f.conf, claims)
	require.NoError(t, err)
	return token
}
