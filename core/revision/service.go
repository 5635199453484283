// Package revision generates revision timetables with a text generation service.
package revision

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/examtrack/core"
	"github.com/trezcool/examtrack/core/progress"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/core/user"
)

var (
	// errors
	ErrGenerationFailed = core.NewUnavailableError("Failed to generate a timetable. Please try again.")
	ErrNoExam           = core.NewConflictError("onboarding not completed")
	ErrSubjectLocked    = core.NewConflictError("complete every chapter of this subject to unlock its revision")
)

type (
	// Request describes the timetable to generate.
	Request struct {
		Exam     string
		Subject  string
		Chapters []string
	}

	// Generator returns a 7-day revision timetable as HTML.
	Generator interface {
		GenerateTimetable(ctx context.Context, req Request) (string, error)
	}

	Timetable struct {
		Exam        string    `json:"exam"`
		Subject     string    `json:"subject"`
		HTML        string    `json:"timetable_html"`
		GeneratedAt time.Time `json:"generated_at"`
	}

	NewTimetable struct {
		Subject string `json:"subject" validate:"required,max=50"`
	}

	Service interface {
		// Unlocked returns the subjects whose chapters are all completed, in syllabus order.
		// "chemistry" follows once the three chemistry subjects are completed.
		Unlocked(ctx context.Context, usr user.User) ([]string, error)
		GenerateTimetable(ctx context.Context, usr user.User, subject string) (Timetable, error)
	}

	service struct {
		gen         Generator
		syllabusSvc syllabus.Service
		progressSvc progress.Service
		logger      core.Logger
	}
)

func (nt *NewTimetable) Validate(validate *validator.Validate) error {
	nt.Subject = core.CleanString(nt.Subject, true /* lower */)
	return validate.Struct(nt)
}

var _ Service = (*service)(nil)

func NewService(gen Generator, syllabusSvc syllabus.Service, progressSvc progress.Service, logger core.Logger) Service {
	return &service{gen: gen, syllabusSvc: syllabusSvc, progressSvc: progressSvc, logger: logger}
}

func completed(chapters map[string]progress.ChapterProgress) bool {
	if len(chapters) == 0 {
		return false
	}
	for _, cp := range chapters {
		if !cp.Completed {
			return false
		}
	}
	return true
}

func (svc *service) Unlocked(ctx context.Context, usr user.User) ([]string, error) {
	if usr.Exam == "" {
		return nil, ErrNoExam
	}
	state, err := svc.progressSvc.Get(ctx, usr)
	if err != nil {
		return nil, err
	}

	unlocked := make([]string, 0)
	for _, subject := range syllabus.ExamSubjects[usr.Exam] {
		if completed(state[subject]) {
			unlocked = append(unlocked, subject)
		}
	}
	chemistry := true
	for _, subject := range syllabus.ChemistrySubjects {
		if !completed(state[subject]) {
			chemistry = false
			break
		}
	}
	if chemistry {
		unlocked = append(unlocked, syllabus.SubjectChemistry)
	}
	return unlocked, nil
}

func (svc *service) GenerateTimetable(ctx context.Context, usr user.User, subject string) (Timetable, error) {
	if usr.Exam == "" {
		return Timetable{}, ErrNoExam
	}
	subjects := []string{subject}
	if subject == syllabus.SubjectChemistry {
		subjects = syllabus.ChemistrySubjects
	} else if !syllabus.HasSubject(usr.Exam, subject) {
		return Timetable{}, core.NewValidationError(nil, core.FieldError{Field: "subject", Error: "subject is not part of your exam"})
	}

	unlocked, err := svc.Unlocked(ctx, usr)
	if err != nil {
		return Timetable{}, err
	}
	if !contains(unlocked, subject) {
		return Timetable{}, ErrSubjectLocked
	}

	var chapters []string
	for _, s := range subjects {
		chs, err := svc.syllabusSvc.Chapters(ctx, usr.Exam, s)
		if err != nil {
			return Timetable{}, err
		}
		chapters = append(chapters, chs...)
	}

	html, err := svc.gen.GenerateTimetable(ctx, Request{Exam: usr.Exam, Subject: subject, Chapters: chapters})
	if err == nil && strings.TrimSpace(html) == "" {
		err = ErrGenerationFailed
	}
	if err != nil {
		if svc.logger != nil {
			svc.logger.Error("generating timetable", err, usr, map[string]interface{}{"subject": subject})
		}
		return Timetable{}, ErrGenerationFailed
	}
	return Timetable{Exam: usr.Exam, Subject: subject, HTML: html, GeneratedAt: core.Now()}, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
