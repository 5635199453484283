package progress

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultConfidence is the confidence of a chapter the user never rated.
const DefaultConfidence = 50

type ChapterProgress struct {
	Subject    string      `json:"subject"`
	Chapter    string      `json:"chapter"`
	Completed  bool        `json:"completed"`
	Questions  int         `json:"questions"`  // practice questions solved
	Confidence int         `json:"confidence"` // 0-100
	Revisions  []time.Time `json:"revisions"`  // UTC
	UpdatedAt  time.Time   `json:"updated_at"` // zero if never stored
}

func defaultChapter(subject, chapter string) ChapterProgress {
	return ChapterProgress{
		Subject:    subject,
		Chapter:    chapter,
		Confidence: DefaultConfidence,
		Revisions:  []time.Time{},
	}
}

// State is the progress of every chapter of a syllabus: {subject: {chapter: progress}}.
type State map[string]map[string]ChapterProgress

// Patch is a partial update of a chapter's progress. Revised appends a revision to the chapter.
type Patch struct {
	Completed  *bool `json:"completed"`
	Questions  *int  `json:"questions" validate:"omitempty,min=0,max=100000"`
	Confidence *int  `json:"confidence" validate:"omitempty,min=0,max=100"`
	Revised    bool  `json:"revised"`
}

func (p Patch) Validate(validate *validator.Validate) error { return validate.Struct(p) }

func (p Patch) apply(cp ChapterProgress, now time.Time) ChapterProgress {
	if p.Completed != nil {
		cp.Completed = *p.Completed
	}
	if p.Questions != nil {
		cp.Questions = *p.Questions
	}
	if p.Confidence != nil {
		cp.Confidence = *p.Confidence
	}
	if p.Revised {
		cp.Revisions = append(cp.Revisions, now)
	}
	cp.UpdatedAt = now
	return cp
}

// RevisionLog is a subject-level revision session.
type RevisionLog struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Subject   string    `json:"subject"`
	Questions int       `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
}

type NewRevisionLog struct {
	Subject   string `json:"subject" validate:"required,subject"`
	Questions int    `json:"questions" validate:"min=0,max=10000"`
}

func (nr NewRevisionLog) Validate(validate *validator.Validate) error { return validate.Struct(nr) }

type SubjectMetrics struct {
	Subject       string  `json:"subject"`
	Completion    float64 `json:"completion"` // %
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	AvgConfidence float64 `json:"avg_confidence"`
	Questions     int     `json:"questions"`
}

type PieSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Summary aggregates the progress of a user over their syllabus.
type Summary struct {
	TotalChapters     int              `json:"total_chapters"`
	CompletedChapters int              `json:"completed_chapters"`
	OverallCompletion float64          `json:"overall_completion"` // %
	AverageConfidence float64          `json:"average_confidence"`
	TotalQuestions    int              `json:"total_questions"`
	TotalRevisions    int              `json:"total_revisions"`
	Subjects          []SubjectMetrics `json:"subjects"`
	Pie               []PieSlice       `json:"pie"`
}
