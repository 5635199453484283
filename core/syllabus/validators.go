package syllabus

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/examtrack/core"
)

var (
	examTag  = "exam"
	examText = "exam must be one of NEET, JEE"

	subjectTag  = "subject"
	subjectText = "unknown subject"
)

// InitValidators registers the syllabus validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(examTag, examValidation)
	core.RegisterCustomTranslation(validate, translator, examTag, examText)

	_ = validate.RegisterValidation(subjectTag, subjectValidation)
	core.RegisterCustomTranslation(validate, translator, subjectTag, subjectText)
}

func examValidation(fl validator.FieldLevel) bool {
	return IsExam(fl.Field().String())
}

// subjectValidation accepts the subjects of any exam. Services check the subject against the user's exam.
func subjectValidation(fl validator.FieldLevel) bool {
	subject := fl.Field().String()
	for _, exam := range AllExams {
		if HasSubject(exam, subject) {
			return true
		}
	}
	return false
}
