package contact

import (
	"context"
	"net/mail"

	"github.com/trezcool/examtrack/core"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("submission not found")
)

type (
	Repository interface {
		CreateSubmission(ctx context.Context, sub Submission) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		// QuerySubmissions returns all submissions, newest first.
		QuerySubmissions(ctx context.Context) ([]Submission, error)
		UpdateSubmission(ctx context.Context, sub Submission) (Submission, error)
		DeleteSubmission(ctx context.Context, id string) error
	}

	Service interface {
		// Submit stores the submission and notifies the admins by email.
		Submit(ctx context.Context, ns NewSubmission) (Submission, error)
		List(ctx context.Context) ([]Submission, error)
		ToggleRead(ctx context.Context, id string) (Submission, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *service) Submit(ctx context.Context, ns NewSubmission) (Submission, error) {
	sub, err := svc.repo.CreateSubmission(ctx, Submission{
		Name:      ns.Name,
		Email:     ns.Email,
		Message:   ns.Message,
		CreatedAt: core.Now(),
	})
	if err != nil {
		return Submission{}, err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{svc.conf.AdminEmail},
		Subject:      "New contact message from " + sub.Name,
		TemplateName: "contact_submission",
		TemplateData: sub,
	})
	return sub, nil
}

func (svc *service) List(ctx context.Context) ([]Submission, error) {
	return svc.repo.QuerySubmissions(ctx)
}

func (svc *service) ToggleRead(ctx context.Context, id string) (Submission, error) {
	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	sub.IsRead = !sub.IsRead
	return svc.repo.UpdateSubmission(ctx, sub)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteSubmission(ctx, id)
}
