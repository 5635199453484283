package echoapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examtrack/core/goal"
	"github.com/trezcool/examtrack/core/mistake"
	"github.com/trezcool/examtrack/core/progress"
	"github.com/trezcool/examtrack/core/revision"
	"github.com/trezcool/examtrack/core/syllabus"
	"github.com/trezcool/examtrack/tests"
)

const (
	physics  = syllabus.SubjectPhysics
	chapter1 = "1. Units and Measurements"
	chapter2 = "2. Motion in a Straight Line"
)

func Test_syllabusApi(t *testing.T) {
	f := setup(t)
	token := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd"))

	rec := f.do(t, http.MethodGet, "/v1/syllabus", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var tree syllabus.Tree
	unmarshall(t, rec, &tree)
	assert.Equal(t, syllabus.ExamNEET, tree.Exam)
	assert.NotEmpty(t, tree.Subjects)

	rec = f.do(t, http.MethodGet, "/v1/syllabus/"+physics, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var subject syllabus.Subject
	unmarshall(t, rec, &subject)
	assert.Equal(t, chapter1, subject.Chapters()[0])

	f.run(t, []httpTest{
		{name: "not in exam", method: http.MethodGet, path: "/v1/syllabus/" + syllabus.SubjectMathematics, token: token, wantCode: http.StatusNotFound},
		{name: "search", method: http.MethodGet, path: "/v1/syllabus/search?q=" + url.QueryEscape("motion"), token: token, wantCode: http.StatusOK},
	})
}

func Test_progressApi(t *testing.T) {
	f := setup(t)
	token := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd", testutil.WithPremium()))

	f.run(t, []httpTest{
		{
			name:     "unknown subject",
			method:   http.MethodPatch,
			path:     "/v1/progress",
			body:     []byte(`{"subject":"astrology","chapter":"1. Stars","completed":true}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown chapter",
			method:   http.MethodPatch,
			path:     "/v1/progress",
			body:     []byte(`{"subject":"physics","chapter":"99. Time Travel","completed":true}`),
			token:    token,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "confidence out of range",
			method:   http.MethodPatch,
			path:     "/v1/progress",
			body:     []byte(`{"subject":"physics","chapter":"` + chapter1 + `","confidence":101}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "ok",
			method:   http.MethodPatch,
			path:     "/v1/progress",
			body:     []byte(`{"subject":"Physics","chapter":"` + chapter1 + `","completed":true,"questions":40,"confidence":80,"revised":true}`),
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "revision log",
			method:   http.MethodPost,
			path:     "/v1/progress/revisions",
			body:     []byte(`{"subject":"physics","questions":25}`),
			token:    token,
			wantCode: http.StatusCreated,
		},
	})

	rec := f.do(t, http.MethodGet, "/v1/progress", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var state progress.State
	unmarshall(t, rec, &state)
	cp := state[physics][chapter1]
	assert.True(t, cp.Completed)
	assert.Equal(t, 40, cp.Questions)
	assert.Equal(t, 80, cp.Confidence)
	assert.Len(t, cp.Revisions, 1)
	assert.False(t, state[physics][chapter2].Completed)

	rec = f.do(t, http.MethodGet, "/v1/progress/summary", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary progress.Summary
	unmarshall(t, rec, &summary)
	assert.Equal(t, 1, summary.CompletedChapters)
	assert.Greater(t, summary.TotalChapters, 1)

	rec = f.do(t, http.MethodGet, "/v1/progress/revisions", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var revisions map[string][]progress.RevisionLog
	unmarshall(t, rec, &revisions)
	require.Len(t, revisions[physics], 1)
	assert.Equal(t, 25, revisions[physics][0].Questions)
}

func Test_goalApi(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd")
	token := f.getToken(t, usr)

	setGoals := marshallObj(t, map[string]interface{}{
		"goals": []goal.SubGoal{
			{Type: goal.TypeChapter, Subject: physics, Chapter: chapter2},
			{Type: goal.TypeCustom, Text: "Solve 50 MCQs"},
		},
	})

	f.run(t, []httpTest{
		{
			name:     "no goals yet",
			method:   http.MethodGet,
			path:     "/v1/goals/today",
			token:    token,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "past day",
			method:   http.MethodPut,
			path:     "/v1/goals",
			body:     []byte(`{"date":"2000-01-01","goals":[{"type":"custom","text":"Read"}]}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"date":"date cannot be in the past"}`),
		},
		{
			name:     "unknown chapter",
			method:   http.MethodPut,
			path:     "/v1/goals",
			body:     []byte(`{"goals":[{"type":"chapter","subject":"physics","chapter":"99. Time Travel"}]}`),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"goals[0].chapter":"unknown chapter"}`),
		},
		{
			name:     "ok",
			method:   http.MethodPut,
			path:     "/v1/goals",
			body:     setGoals,
			token:    token,
			wantCode: http.StatusOK,
		},
		{
			name:     "index out of range",
			method:   http.MethodPost,
			path:     "/v1/goals/today/complete/2",
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid index",
			method:   http.MethodPost,
			path:     "/v1/goals/today/complete/first",
			token:    token,
			wantCode: http.StatusNotFound,
		},
	})

	rec := f.do(t, http.MethodPost, "/v1/goals/today/complete/0", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res goal.Completion
	unmarshall(t, rec, &res)
	assert.False(t, res.AllCompleted)
	assert.Nil(t, res.Streak)

	rec = f.do(t, http.MethodPost, "/v1/goals/today/complete/1", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &res)
	assert.True(t, res.AllCompleted)
	assert.True(t, res.Goal.Completed)
	require.NotNil(t, res.Streak)
	assert.True(t, res.Streak.Applied)
	assert.Equal(t, 1, res.Streak.CurrentStreak)

	got := mustGetUser(t, f, usr.Email)
	assert.Equal(t, 1, got.CurrentStreak)
	assert.Equal(t, res.Streak.TotalPoints, got.TotalPoints)

	// the chapter goal completed the chapter
	rec = f.do(t, http.MethodGet, "/v1/progress", token)
	var state progress.State
	unmarshall(t, rec, &state)
	assert.True(t, state[physics][chapter2].Completed)

	rec = f.do(t, http.MethodGet, "/v1/goals?from=2000-01-01&to=2000-01-31", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/goals?from=2000-01-31&to=2000-01-01", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_mistakeApi(t *testing.T) {
	f := setup(t)
	token := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd", testutil.WithPremium()))
	other := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Other", "other@test.cd", testutil.WithPremium()))

	newMistake := func(chapter string, tags ...string) []byte {
		return marshallObj(t, mistake.NewMistake{
			Subject:        physics,
			Chapter:        chapter,
			Question:       "Dimensions of G",
			MyMistake:      "Forgot the mass term twice",
			CorrectConcept: "[G] = M^-1 L^3 T^-2 from F = Gm1m2/r^2",
			Tags:           tags,
		})
	}

	f.run(t, []httpTest{
		{
			name:     "too short",
			method:   http.MethodPost,
			path:     "/v1/mistakes",
			body:     []byte(`{"subject":"physics","chapter":"` + chapter1 + `","question":"Q","my_mistake":"oops","correct_concept":"fix"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown chapter",
			method:   http.MethodPost,
			path:     "/v1/mistakes",
			body:     newMistake("99. Time Travel"),
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"chapter":"unknown chapter"}`),
		},
	})

	rec := f.do(t, http.MethodPost, "/v1/mistakes", token, newMistake(chapter1, "units", "Formula"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m mistake.Mistake
	unmarshall(t, rec, &m)
	rec = f.do(t, http.MethodPost, "/v1/mistakes", token, newMistake(chapter2))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/mistakes?tag="+m.Tags[0], token)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []mistake.Mistake
	unmarshall(t, rec, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, m.ID, listed[0].ID)

	rec = f.do(t, http.MethodGet, "/v1/mistakes/tags", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var tags []string
	unmarshall(t, rec, &tags)
	assert.ElementsMatch(t, m.Tags, tags)

	f.run(t, []httpTest{
		{name: "toggle: not owner", method: http.MethodPost, path: "/v1/mistakes/" + m.ID + "/toggle", token: other, wantCode: http.StatusNotFound},
		{name: "toggle", method: http.MethodPost, path: "/v1/mistakes/" + m.ID + "/toggle", token: token, wantCode: http.StatusOK},
		{name: "delete: not owner", method: http.MethodDelete, path: "/v1/mistakes/" + m.ID, token: other, wantCode: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/v1/mistakes/" + m.ID, token: token, wantCode: http.StatusNoContent},
		{name: "delete again", method: http.MethodDelete, path: "/v1/mistakes/" + m.ID, token: token, wantCode: http.StatusNotFound},
	})

	rec = f.do(t, http.MethodGet, "/v1/mistakes", token)
	unmarshall(t, rec, &listed)
	assert.Len(t, listed, 1)
}

func Test_revisionApi(t *testing.T) {
	f := setup(t)
	student := testutil.CreateUser(t, f.usrRepo, "Student", "student@test.cd", testutil.WithPremium())
	token := f.getToken(t, student)
	free := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Free", "free@test.cd"))

	f.run(t, []httpTest{
		{
			name:     "nothing unlocked",
			method:   http.MethodGet,
			path:     "/v1/revision/unlocked",
			token:    token,
			wantCode: http.StatusOK,
			wantData: []byte(`{"subjects":[]}`),
		},
		{
			name:     "locked subject",
			method:   http.MethodPost,
			path:     "/v1/revision/timetable",
			body:     []byte(`{"subject":"physics"}`),
			token:    token,
			wantCode: http.StatusConflict,
			wantData: marshallObj(t, httpErr{Error: revision.ErrSubjectLocked.Error()}),
		},
		{
			name:     "free user",
			method:   http.MethodPost,
			path:     "/v1/revision/timetable",
			body:     []byte(`{"subject":"physics"}`),
			token:    free,
			wantCode: http.StatusForbidden,
		},
		{
			name:     "unknown subject",
			method:   http.MethodPost,
			path:     "/v1/revision/timetable",
			body:     []byte(`{"subject":"astrology"}`),
			token:    token,
			wantCode: http.StatusBadRequest,
		},
	})

	f.completeSubject(t, student, physics)
	for _, subject := range syllabus.ChemistrySubjects[:2] {
		f.completeSubject(t, student, subject)
	}
	rec := f.do(t, http.MethodGet, "/v1/revision/unlocked", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"subjects":["physics","physical-chemistry","organic-chemistry"]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/revision/timetable", token, []byte(`{"subject":"chemistry"}`))
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/revision/timetable", token, []byte(`{"subject":"Physics"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tt revision.Timetable
	unmarshall(t, rec, &tt)
	assert.Equal(t, physics, tt.Subject)
	assert.Contains(t, tt.HTML, "<table>")
	require.Len(t, f.gen.calls, 1)
	assert.Equal(t, syllabus.ExamNEET, f.gen.calls[0].Exam)
	assert.Contains(t, f.gen.calls[0].Chapters, chapter1)

	f.completeSubject(t, student, syllabus.SubjectInorganicChemistry)
	rec = f.do(t, http.MethodPost, "/v1/revision/timetable", token, []byte(`{"subject":"chemistry"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.gen.calls, 2)
	assert.Equal(t, syllabus.SubjectChemistry, f.gen.calls[1].Subject)
	organic, err := f.syllabusSvc.Chapters(context.Background(), syllabus.ExamNEET, syllabus.SubjectOrganicChemistry)
	require.NoError(t, err)
	assert.Subset(t, f.gen.calls[1].Chapters, organic)

	f.gen.err = errors.New("upstream timeout")
	rec = f.do(t, http.MethodPost, "/v1/revision/timetable", token, []byte(`{"subject":"physics"}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to generate a timetable. Please try again."}`, rec.Body.String())
}

func Test_dashboardApi(t *testing.T) {
	f := setup(t)
	prem := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Premium", "premium@test.cd", testutil.WithPremium()))
	free := f.getToken(t, testutil.CreateUser(t, f.usrRepo, "Free", "free@test.cd"))

	rec := f.do(t, http.MethodGet, "/v1/dashboard", free)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data map[string]interface{}
	unmarshall(t, rec, &data)
	assert.Nil(t, data["summary"])
	assert.Nil(t, data["today_goal"])
	assert.Equal(t, "free@test.cd", data["user"].(map[string]interface{})["email"])
	countdown, ok := data["exam_countdown"].([]interface{})
	require.True(t, ok, "exam_countdown: %v", data["exam_countdown"])
	require.Len(t, countdown, 1)
	neet := countdown[0].(map[string]interface{})
	assert.Equal(t, "NEET", neet["name"])
	assert.Equal(t, syllabus.ExamDates(syllabus.ExamNEET, time.Now().Year()+1)[0].Date, neet["date"])
	assert.Greater(t, neet["days_left"], float64(0))

	rec = f.do(t, http.MethodPut, "/v1/goals", prem, []byte(`{"goals":[{"type":"custom","text":"Read NCERT"}]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/dashboard", prem)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data = nil
	unmarshall(t, rec, &data)
	assert.NotNil(t, data["summary"])
	assert.NotNil(t, data["today_goal"])
	assert.Equal(t, "none", data["spectate_permission"].(map[string]interface{})["status"])
}
