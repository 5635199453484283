package progress

import (
	"math"
	"sort"
	"strings"

	"github.com/trezcool/examtrack/core/syllabus"
)

const chemistry = "Chemistry"

var (
	chemistrySubjects = map[string]bool{
		syllabus.SubjectPhysicalChemistry:  true,
		syllabus.SubjectOrganicChemistry:   true,
		syllabus.SubjectInorganicChemistry: true,
	}

	subjectOrder = []string{"Physics", chemistry, "Biology", "Mathematics"}
)

type tally struct {
	total, completed, questions, revisions int
	confidence                             int
}

func (t *tally) add(o tally) {
	t.total += o.total
	t.completed += o.completed
	t.questions += o.questions
	t.revisions += o.revisions
	t.confidence += o.confidence
}

func (t tally) metrics(name string) SubjectMetrics {
	return SubjectMetrics{
		Subject:       name,
		Completion:    percent(t.completed, t.total),
		Total:         t.total,
		Completed:     t.completed,
		AvgConfidence: ratio(t.confidence, t.total),
		Questions:     t.questions,
	}
}

// Summarize aggregates state over the chapters of tree.
// The chemistry subjects are merged into a single "Chemistry" entry.
func Summarize(tree syllabus.Tree, state State) Summary {
	var (
		overall, chem tally
		hasChem       bool
		subjects      []SubjectMetrics
	)

	for _, s := range tree.Subjects {
		chapters := s.Chapters()
		if len(chapters) == 0 {
			continue
		}

		var t tally
		for _, ch := range chapters {
			cp, ok := state[s.Subject][ch]
			if !ok {
				cp = defaultChapter(s.Subject, ch)
			}
			t.total++
			if cp.Completed {
				t.completed++
			}
			t.confidence += cp.Confidence
			t.questions += cp.Questions
			t.revisions += len(cp.Revisions)
		}
		overall.add(t)

		if chemistrySubjects[s.Subject] {
			hasChem = true
			chem.add(t)
			continue
		}
		subjects = append(subjects, t.metrics(displayName(s.Subject)))
	}
	if hasChem {
		subjects = append(subjects, chem.metrics(chemistry))
	}

	sort.SliceStable(subjects, func(i, j int) bool {
		return orderOf(subjects[i].Subject) < orderOf(subjects[j].Subject)
	})
	if subjects == nil {
		subjects = []SubjectMetrics{}
	}

	return Summary{
		TotalChapters:     overall.total,
		CompletedChapters: overall.completed,
		OverallCompletion: percent(overall.completed, overall.total),
		AverageConfidence: ratio(overall.confidence, overall.total),
		TotalQuestions:    overall.questions,
		TotalRevisions:    overall.revisions,
		Subjects:          subjects,
		Pie: []PieSlice{
			{Name: "Completed", Value: overall.completed},
			{Name: "Pending", Value: overall.total - overall.completed},
		},
	}
}

// displayName turns "physical-chemistry" into "Physical Chemistry".
func displayName(subject string) string {
	words := strings.Split(subject, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func orderOf(name string) int {
	for i, n := range subjectOrder {
		if n == name {
			return i
		}
	}
	return len(subjectOrder)
}

func percent(n, total int) float64 {
	return ratio(n*100, total)
}

// ratio returns n/d rounded to 2 decimals, 0 if d is 0.
func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*100) / 100
}
