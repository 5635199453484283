// Package testutil holds helpers shared by the tests of several packages.
package testutil

import (
	"context"
	"net/mail"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
	"github.com/trezcool/examtrack/storage/database"
)

// Password is a policy-compliant password shared by test users.
const Password = "LolC@t123"

// NewConfig returns a configuration suitable for tests. Calendar days are computed in UTC.
func NewConfig() *core.Config {
	return &core.Config{
		Debug:                     false,
		TestMode:                  true,
		AppName:                   "ExamTrack",
		SecretKey:                 "test-secret-key",
		Env:                       "TEST",
		Build:                     "test",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "ExamTrack", Address: "noreply@test.cd"},
		AdminEmail:                mail.Address{Name: "ExamTrack Admin", Address: "admin@test.cd"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Timezone:                  "UTC",
	}
}

// NewValidator returns a validator with every custom tag registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	syllabus.InitValidators(validate, translator)
	user.LoadCommonPasswords(nil)
	return validate, translator
}

// PrepareDB opens a migrated sqlite database in a temporary directory. It is closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := NewConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, nil); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

type UserOption func(usr *user.User)

func WithRole(role string) UserOption {
	return func(usr *user.User) { usr.Role = role }
}

func WithStatus(status string) UserOption {
	return func(usr *user.User) { usr.AccountStatus = status }
}

func WithPremium() UserOption {
	return func(usr *user.User) { usr.IsPremium = true }
}

func WithExam(exam string) UserOption {
	return func(usr *user.User) {
		usr.Exam = exam
		usr.ClassLevel = "12"
		usr.TargetYear = time.Now().Year() + 1
		usr.OnboardingCompleted = exam != ""
	}
}

func WithAccessCode(code string) UserOption {
	return func(usr *user.User) { usr.AccessCode = code }
}

func WithBan(expiresAt *time.Time) UserOption {
	return func(usr *user.User) {
		usr.IsBanned = true
		usr.BanExpiresAt = expiresAt
	}
}

func WithPassword(pwd string) UserOption {
	return func(usr *user.User) { _ = usr.SetPassword(pwd) }
}

func WithCreatedAt(t time.Time) UserOption {
	return func(usr *user.User) {
		usr.CreatedAt = t.UTC().Truncate(time.Microsecond)
		usr.UpdatedAt = usr.CreatedAt
	}
}

// CreateUser creates an active, onboarded NEET user. Options override the defaults.
func CreateUser(t *testing.T, repo user.Repository, name, email string, opts ...UserOption) user.User {
	t.Helper()

	now := core.Now()
	usr := user.User{
		Name:                name,
		Email:               email,
		Role:                user.RoleUser,
		AccountStatus:       user.StatusActive,
		Exam:                syllabus.ExamNEET,
		ClassLevel:          "12",
		TargetYear:          time.Now().Year() + 1,
		OnboardingCompleted: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, opt := range opts {
		opt(&usr)
	}

	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// EventRecorder is a core.EventPublisher which records the published events.
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *EventRecorder) Publish(_ context.Context, _ string, evt core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Types returns the types of the events published to topic, in order.
func (r *EventRecorder) Types(topic string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []string
	for _, evt := range r.events {
		if evt.Topic == topic {
			types = append(types, evt.Type)
		}
	}
	return types
}
