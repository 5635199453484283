package syllabus

import (
	_ "embed"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

var (
	defaults     map[string][]Subject
	defaultsErr  error
	defaultsOnce sync.Once
)

// Defaults returns the embedded default syllabus of every exam.
func Defaults() (map[string][]Subject, error) {
	defaultsOnce.Do(func() {
		var tree map[string][]Subject
		if err := yaml.Unmarshal(defaultYAML, &tree); err != nil {
			defaultsErr = errors.Wrap(err, "parsing default syllabus")
			return
		}
		for exam, subjects := range tree {
			if !IsExam(exam) {
				defaultsErr = errors.Errorf("default syllabus: unknown exam %q", exam)
				return
			}
			for i := range subjects {
				if !HasSubject(exam, subjects[i].Subject) {
					defaultsErr = errors.Errorf("default syllabus: unknown %s subject %q", exam, subjects[i].Subject)
					return
				}
				subjects[i].Exam = exam
				subjects[i].Position = subjectPosition(exam, subjects[i].Subject)
			}
		}
		defaults = tree
	})
	return defaults, defaultsErr
}

func defaultSubject(exam, subject string) (Subject, bool) {
	tree, err := Defaults()
	if err != nil {
		return Subject{}, false
	}
	for _, s := range tree[exam] {
		if s.Subject == subject {
			return copySubject(s), true
		}
	}
	return Subject{}, false
}

// copySubject deep copies s so that callers cannot alter the defaults.
func copySubject(s Subject) Subject {
	units := make([]Unit, len(s.Units))
	for i, u := range s.Units {
		units[i] = Unit{Name: u.Name, Chapters: append([]string(nil), u.Chapters...)}
	}
	s.Units = units
	return s
}
