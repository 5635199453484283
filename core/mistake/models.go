package mistake

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/examtrack/core"
)

// Statuses
const (
	StatusActive   = "active"
	StatusReviewed = "reviewed"
)

type Mistake struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Subject        string    `json:"subject"`
	Chapter        string    `json:"chapter"`
	Question       string    `json:"question"`
	MyMistake      string    `json:"my_mistake"`
	CorrectConcept string    `json:"correct_concept"`
	Tags           []string  `json:"tags"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (m Mistake) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type NewMistake struct {
	Subject        string   `json:"subject" validate:"required,subject"`
	Chapter        string   `json:"chapter" validate:"required,max=200"`
	Question       string   `json:"question" validate:"required,max=150"`
	MyMistake      string   `json:"my_mistake" validate:"required,min=10,max=2000"`
	CorrectConcept string   `json:"correct_concept" validate:"required,min=10,max=2000"`
	Tags           []string `json:"tags" validate:"max=10,dive,max=30,tagname"`
}

func (nm *NewMistake) Validate(validate *validator.Validate) error {
	nm.Subject = core.CleanString(nm.Subject)
	nm.Chapter = core.CleanString(nm.Chapter)
	nm.Question = core.CleanString(nm.Question)
	nm.MyMistake = core.CleanString(nm.MyMistake)
	nm.CorrectConcept = core.CleanString(nm.CorrectConcept)
	nm.Tags = core.CleanStrings(nm.Tags, true)
	return validate.Struct(nm)
}

type QueryFilter struct {
	Subject string `query:"subject"`
	Tag     string `query:"tag"`
}
