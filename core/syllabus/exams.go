package syllabus

import (
	"time"

	"github.com/trezcool/examtrack/core"
)

// SubjectChemistry stands for the three chemistry subjects together. It is not part of the syllabus tree.
const SubjectChemistry = "chemistry"

// ChemistrySubjects are the subjects merged into SubjectChemistry.
var ChemistrySubjects = []string{SubjectPhysicalChemistry, SubjectOrganicChemistry, SubjectInorganicChemistry}

// ExamDate is an expected sitting of an exam.
type ExamDate struct {
	Name     string `json:"name"`
	Date     string `json:"date"` // YYYY-MM-DD
	DaysLeft int    `json:"days_left"`
}

// ExamDates returns the expected sittings of exam in year:
// NEET on the first Sunday of May, JEE on January 24 and April 4.
func ExamDates(exam string, year int) []ExamDate {
	switch exam {
	case ExamNEET:
		mayFirst := time.Date(year, time.May, 1, 0, 0, 0, 0, time.UTC)
		firstSunday := 1 + (7-int(mayFirst.Weekday()))%7
		return []ExamDate{{Name: "NEET", Date: time.Date(year, time.May, firstSunday, 0, 0, 0, 0, time.UTC).Format(core.DateLayout)}}
	case ExamJEE:
		return []ExamDate{
			{Name: "Jan Attempt", Date: time.Date(year, time.January, 24, 0, 0, 0, 0, time.UTC).Format(core.DateLayout)},
			{Name: "Apr Attempt", Date: time.Date(year, time.April, 4, 0, 0, 0, 0, time.UTC).Format(core.DateLayout)},
		}
	default:
		return nil
	}
}

// Countdown returns the sittings of exam in year with the days left from today (YYYY-MM-DD).
// Past sittings have no days left.
func Countdown(exam string, year int, today string) []ExamDate {
	from, err := core.ParseDate(today)
	if err != nil {
		return nil
	}
	dates := ExamDates(exam, year)
	for i := range dates {
		d, _ := core.ParseDate(dates[i].Date)
		if days := int(d.Sub(from).Hours() / 24); days > 0 {
			dates[i].DaysLeft = days
		}
	}
	return dates
}
