package goal

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/examtrack/core"
)

// Sub-goal types
const (
	TypeChapter = "chapter"
	TypeCustom  = "custom"
)

type SubGoal struct {
	Type      string `json:"type" validate:"required,oneof=chapter custom"`
	Subject   string `json:"subject,omitempty" validate:"omitempty,subject"`
	Chapter   string `json:"chapter,omitempty" validate:"max=200"`
	Text      string `json:"text,omitempty" validate:"max=100"`
	Completed bool   `json:"completed"`
}

// sameAs reports whether g and o describe the same goal, regardless of completion.
func (g SubGoal) sameAs(o SubGoal) bool {
	return g.Type == o.Type && g.Subject == o.Subject && g.Chapter == o.Chapter && g.Text == o.Text
}

type DailyGoal struct {
	UserID      string     `json:"user_id"`
	Date        string     `json:"date"` // YYYY-MM-DD
	Goals       []SubGoal  `json:"goals"`
	Completed   bool       `json:"completed"` // all sub-goals are completed
	CompletedAt *time.Time `json:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (dg DailyGoal) allCompleted() bool {
	if len(dg.Goals) == 0 {
		return false
	}
	for _, g := range dg.Goals {
		if !g.Completed {
			return false
		}
	}
	return true
}

// SetGoals replaces the goals of a day.
type SetGoals struct {
	Date  string    `json:"date" validate:"required,dateonly"`
	Goals []SubGoal `json:"goals" validate:"required,min=1,max=20,dive"`
}

func (sg *SetGoals) Validate(validate *validator.Validate) error {
	sg.Date = core.CleanString(sg.Date)
	for i := range sg.Goals {
		g := &sg.Goals[i]
		g.Type = core.CleanString(g.Type, true /* lower */)
		g.Subject = core.CleanString(g.Subject)
		g.Chapter = core.CleanString(g.Chapter)
		g.Text = core.CleanString(g.Text)
		g.Completed = false
	}
	if err := validate.Struct(sg); err != nil {
		return err
	}

	var flds []core.FieldError
	for i, g := range sg.Goals {
		switch g.Type {
		case TypeChapter:
			if g.Subject == "" || g.Chapter == "" {
				flds = append(flds, core.FieldError{Field: fmt.Sprintf("goals[%d]", i), Error: "subject and chapter are required"})
			}
			sg.Goals[i].Text = ""
		case TypeCustom:
			if g.Text == "" {
				flds = append(flds, core.FieldError{Field: fmt.Sprintf("goals[%d]", i), Error: "text is required"})
			}
			sg.Goals[i].Subject, sg.Goals[i].Chapter = "", ""
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// Completion is the outcome of completing a sub-goal.
type Completion struct {
	Goal DailyGoal `json:"goal"`
	// AllCompleted is true when this completion finished the day's goals.
	AllCompleted bool          `json:"all_completed"`
	Streak       *StreakUpdate `json:"streak,omitempty"`
}
