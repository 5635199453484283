package syllabus

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/examtrack/core"
)

// Exams
const (
	ExamNEET = "NEET"
	ExamJEE  = "JEE"
)

// Subjects
const (
	SubjectPhysics            = "physics"
	SubjectPhysicalChemistry  = "physical-chemistry"
	SubjectOrganicChemistry   = "organic-chemistry"
	SubjectInorganicChemistry = "inorganic-chemistry"
	SubjectBiology            = "biology"
	SubjectMathematics        = "mathematics"
)

var (
	AllExams = []string{ExamNEET, ExamJEE}

	// ExamSubjects lists the subjects of each exam, in display order.
	ExamSubjects = map[string][]string{
		ExamNEET: {SubjectPhysics, SubjectPhysicalChemistry, SubjectOrganicChemistry, SubjectInorganicChemistry, SubjectBiology},
		ExamJEE:  {SubjectPhysics, SubjectPhysicalChemistry, SubjectOrganicChemistry, SubjectInorganicChemistry, SubjectMathematics},
	}
)

// IsExam reports whether exam is a supported exam.
func IsExam(exam string) bool {
	_, ok := ExamSubjects[exam]
	return ok
}

// HasSubject reports whether subject belongs to exam.
func HasSubject(exam, subject string) bool {
	for _, s := range ExamSubjects[exam] {
		if s == subject {
			return true
		}
	}
	return false
}

func subjectPosition(exam, subject string) int {
	for i, s := range ExamSubjects[exam] {
		if s == subject {
			return i
		}
	}
	return len(ExamSubjects[exam])
}

type Unit struct {
	Name     string   `json:"name" yaml:"name" validate:"max=100"`
	Chapters []string `json:"chapters" yaml:"chapters" validate:"required,min=1,dive,required,max=200"`
}

type Subject struct {
	Exam      string    `json:"exam" yaml:"-"`
	Subject   string    `json:"subject" yaml:"subject"`
	Position  int       `json:"-" yaml:"-"`
	Units     []Unit    `json:"units" yaml:"units"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"` // UTC
}

// Chapters flattens the units' chapters, in order.
func (s Subject) Chapters() []string {
	var n int
	for _, u := range s.Units {
		n += len(u.Chapters)
	}
	chapters := make([]string, 0, n)
	for _, u := range s.Units {
		chapters = append(chapters, u.Chapters...)
	}
	return chapters
}

// HasChapter reports whether chapter is part of the subject.
func (s Subject) HasChapter(chapter string) bool {
	for _, u := range s.Units {
		for _, ch := range u.Chapters {
			if ch == chapter {
				return true
			}
		}
	}
	return false
}

// UnitOf returns the name of the unit containing chapter.
func (s Subject) UnitOf(chapter string) string {
	for _, u := range s.Units {
		for _, ch := range u.Chapters {
			if ch == chapter {
				return u.Name
			}
		}
	}
	return ""
}

// Tree is the syllabus of an exam.
type Tree struct {
	Exam     string    `json:"exam"`
	Subjects []Subject `json:"subjects"`
}

// Subject returns the subject of the tree named name.
func (t Tree) Subject(name string) (Subject, bool) {
	for _, s := range t.Subjects {
		if s.Subject == name {
			return s, true
		}
	}
	return Subject{}, false
}

// UpdateSubject is the syllabus editor payload.
// Either Units or Chapters (one chapter per line, stored as a single unnamed unit) must be provided.
type UpdateSubject struct {
	Units    []Unit `json:"units" validate:"dive"`
	Chapters string `json:"chapters"`
}

func (us *UpdateSubject) Validate(validate *validator.Validate) error {
	if len(us.Units) == 0 && strings.TrimSpace(us.Chapters) != "" {
		us.Units = []Unit{{Chapters: splitLines(us.Chapters)}}
	}
	for i := range us.Units {
		us.Units[i].Name = core.CleanString(us.Units[i].Name)
		us.Units[i].Chapters = cleanLines(us.Units[i].Chapters)
	}
	if len(us.Units) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "units", Error: "this field is required"})
	}
	if err := validate.Struct(us); err != nil {
		return err
	}

	seen := make(map[string]struct{})
	for _, u := range us.Units {
		for _, ch := range u.Chapters {
			key := strings.ToLower(ch)
			if _, ok := seen[key]; ok {
				return core.NewValidationError(ErrDuplicateChapter, core.FieldError{
					Field: "chapters",
					Error: ErrDuplicateChapter.Error() + ": " + ch,
				})
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

func splitLines(s string) []string {
	return cleanLines(strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n"))
}

// cleanLines trims every line and drops the empty ones.
func cleanLines(lines []string) []string {
	cleaned := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			cleaned = append(cleaned, l)
		}
	}
	return cleaned
}

// ChapterMatch is a chapter found by SearchChapters.
type ChapterMatch struct {
	Subject  string `json:"subject"`
	Unit     string `json:"unit"`
	Chapter  string `json:"chapter"`
	Distance int    `json:"distance"`
}
