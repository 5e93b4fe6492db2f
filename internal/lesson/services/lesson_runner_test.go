package services

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/codeowl/platform/internal/common/database/dbtest"
	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/common/metrics"
	"github.com/codeowl/platform/internal/lesson/engine"
	"github.com/codeowl/platform/internal/lesson/models"
	"github.com/codeowl/platform/internal/lesson/repository"
	profilemodels "github.com/codeowl/platform/internal/profile/models"
	profilerepo "github.com/codeowl/platform/internal/profile/repository"
	profileservices "github.com/codeowl/platform/internal/profile/services"
	"github.com/codeowl/platform/internal/session"
	"github.com/codeowl/platform/pkg/config"
)

type stubExecutor struct {
	mu      sync.Mutex
	output  string
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (e *stubExecutor) Execute(ctx context.Context, code string) (*engine.ExecutionResult, error) {
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return &engine.ExecutionResult{Output: e.output}, nil
}

type fixture struct {
	db       *gorm.DB
	runner   *Runner
	profiles *profilerepo.ProfileRepository
	lessons  *repository.LessonRepository
	exec     *stubExecutor
	session  *session.Session
	lessonID uint
	codeID   uint
	emptyID  uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tables := append(models.All(), profilemodels.All()...)
	db := dbtest.Open(t, tables...)

	lang := &models.Language{Slug: "python", Name: "Python"}
	require.NoError(t, db.Create(lang).Error)
	unit := &models.Unit{LanguageID: lang.ID, Title: "Basics"}
	require.NoError(t, db.Create(unit).Error)

	basics := &models.Lesson{UnitID: unit.ID, Title: "Hello", Questions: []models.Question{
		{Kind: models.KindFillBlank, Position: 0, XPReward: 10, Answer: "Hello, World!",
			Payload: models.QuestionPayload{CodeTemplate: "print(___)", Options: []string{"Hello, World!", "hi"}}},
		{Kind: models.KindMultipleChoice, Position: 1, XPReward: 10, Answer: "1",
			Payload: models.QuestionPayload{Options: []string{"int", "str"}}},
		{Kind: models.KindDragOrder, Position: 2, XPReward: 10,
			Payload: models.QuestionPayload{
				Blocks:       []models.CodeBlock{{ID: "1", Code: "print(1)"}, {ID: "2", Code: "print(2)"}, {ID: "3", Code: "print(3)"}},
				CorrectOrder: []string{"1", "2", "3"},
			}},
	}}
	require.NoError(t, db.Create(basics).Error)

	code := &models.Lesson{UnitID: unit.ID, Title: "Code", Position: 1, Questions: []models.Question{
		{Kind: models.KindCodeRunner, XPReward: 20, Payload: models.QuestionPayload{ExpectedOutput: "42"}},
	}}
	require.NoError(t, db.Create(code).Error)

	empty := &models.Lesson{UnitID: unit.ID, Title: "Empty", Position: 2}
	require.NoError(t, db.Create(empty).Error)

	economy := config.Default().Economy
	m := metrics.New()
	profiles := profilerepo.NewProfileRepository(db)
	lessons := repository.NewLessonRepository(db)
	profileSvc := profileservices.NewProfileService(profiles, economy, m)
	exec := &stubExecutor{output: "42\n"}
	runner := NewRunner(db, lessons, profiles, profileSvc, engine.NewGrader(exec, time.Second), economy, m)

	s := &session.Session{ID: "sess-1", UserID: "user-1", Username: "ana"}
	_, err := profileSvc.Bootstrap(context.Background(), s.UserID, s.Username)
	require.NoError(t, err)

	return &fixture{
		db:       db,
		runner:   runner,
		profiles: profiles,
		lessons:  lessons,
		exec:     exec,
		session:  s,
		lessonID: basics.ID,
		codeID:   code.ID,
		emptyID:  empty.ID,
	}
}

func (f *fixture) profile(t *testing.T) *profilemodels.UserProfile {
	t.Helper()
	p, err := f.profiles.Get(context.Background(), f.session.UserID)
	require.NoError(t, err)
	return p
}

func (f *fixture) answer(t *testing.T, runID string, a engine.Answer) *RunView {
	t.Helper()
	ctx := context.Background()
	_, err := f.runner.Select(ctx, f.session, runID, a)
	require.NoError(t, err)
	_, err = f.runner.Check(ctx, f.session, runID)
	require.NoError(t, err)
	v, err := f.runner.Continue(ctx, f.session, runID)
	require.NoError(t, err)
	return v
}

func TestRunner_CompletesLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseAnswering, run.Phase)
	assert.Equal(t, 3, run.Total)
	require.NotNil(t, run.Question)
	assert.Equal(t, models.KindFillBlank, run.Question.Kind)

	f.answer(t, run.RunID, engine.TextAnswer("Hello, World!"))
	f.answer(t, run.RunID, engine.IndexAnswer(0))
	final := f.answer(t, run.RunID, engine.OrderAnswer("1", "2", "3"))

	assert.Equal(t, engine.PhaseComplete, final.Phase)
	require.NotNil(t, final.Result)
	assert.Equal(t, 2, final.Result.Stars)
	assert.Equal(t, 20, final.Result.XPEarned)

	p := f.profile(t)
	assert.Equal(t, 20, p.XP)
	assert.Equal(t, 20, p.WeeklyXP)
	assert.Equal(t, profilemodels.MaxHearts-1, p.Hearts)
	assert.Equal(t, 1, p.StreakCount)
	assert.Equal(t, 2*config.Default().Economy.GemsPerStar, p.Gems)

	completed, err := f.lessons.HasCompletion(ctx, f.session.UserID, f.lessonID)
	require.NoError(t, err)
	assert.True(t, completed)

	progress, err := f.lessons.GetProgress(ctx, f.session.UserID, f.lessonID)
	require.NoError(t, err)
	assert.Nil(t, progress)

	assert.Equal(t, 0, f.runner.Count())
	_, err = f.runner.Get(f.session, run.RunID)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestRunner_RetakeIsFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)
	f.answer(t, run.RunID, engine.TextAnswer("Hello, World!"))
	f.answer(t, run.RunID, engine.IndexAnswer(1))
	f.answer(t, run.RunID, engine.OrderAnswer("1", "2", "3"))
	before := f.profile(t)

	retake, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)
	assert.True(t, retake.Retake)
	f.answer(t, retake.RunID, engine.TextAnswer("hi"))
	f.answer(t, retake.RunID, engine.IndexAnswer(0))
	final := f.answer(t, retake.RunID, engine.OrderAnswer("3", "2", "1"))
	assert.Equal(t, engine.PhaseComplete, final.Phase)

	after := f.profile(t)
	assert.Equal(t, before.XP, after.XP)
	assert.Equal(t, before.Hearts, after.Hearts)
	assert.Equal(t, before.Gems, after.Gems)

	var count int64
	require.NoError(t, f.db.Model(&models.LessonCompletion{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRunner_PracticeIsFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.runner.Start(ctx, f.session, f.lessonID, true)
	require.NoError(t, err)
	assert.True(t, run.Practice)
	f.answer(t, run.RunID, engine.TextAnswer("hi"))
	_, err = f.runner.Exit(ctx, f.session, run.RunID)
	require.NoError(t, err)

	p := f.profile(t)
	assert.Equal(t, profilemodels.MaxHearts, p.Hearts)
	assert.Equal(t, 0, p.XP)

	progress, err := f.lessons.GetProgress(ctx, f.session.UserID, f.lessonID)
	require.NoError(t, err)
	assert.Nil(t, progress)
}

func TestRunner_ExitAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)
	f.answer(t, run.RunID, engine.TextAnswer("Hello, World!"))

	exited, err := f.runner.Exit(ctx, f.session, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseExited, exited.Phase)

	progress, err := f.lessons.GetProgress(ctx, f.session.UserID, f.lessonID)
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, 1, progress.CurrentQuestionIndex)
	assert.Equal(t, []int{0}, progress.AnsweredQuestions)
	assert.Equal(t, 10, progress.XPEarned)
	assert.Equal(t, 1, progress.CorrectAnswers)

	resumed, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)
	require.NotNil(t, resumed.Index)
	assert.Equal(t, 1, *resumed.Index)
	assert.Equal(t, []int{0}, resumed.Answered)
	assert.Equal(t, 10, resumed.XPEarned)
	assert.Equal(t, 1, resumed.CorrectAnswers)
}

func TestRunner_HeartsFloorAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Model(&profilemodels.UserProfile{}).
		Where("user_id = ?", f.session.UserID).Update("hearts", 1).Error)

	run, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)
	f.answer(t, run.RunID, engine.TextAnswer("hi"))
	f.answer(t, run.RunID, engine.IndexAnswer(0))
	_, err = f.runner.Exit(ctx, f.session, run.RunID)
	require.NoError(t, err)

	assert.Equal(t, 0, f.profile(t).Hearts)
}

func TestRunner_CodeRunner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.runner.Start(ctx, f.session, f.codeID, false)
	require.NoError(t, err)
	_, err = f.runner.Select(ctx, f.session, run.RunID, engine.CodeAnswer("print(42)"))
	require.NoError(t, err)

	t.Run("sandbox failure keeps the run answering", func(t *testing.T) {
		f.exec.mu.Lock()
		f.exec.err = stderrors.New("sandbox down")
		f.exec.mu.Unlock()

		_, err := f.runner.Check(ctx, f.session, run.RunID)
		appErr, ok := errors.As(err)
		require.True(t, ok)
		assert.Equal(t, 503, appErr.Status)

		v, err := f.runner.Get(f.session, run.RunID)
		require.NoError(t, err)
		assert.Equal(t, engine.PhaseAnswering, v.Phase)
		assert.NotNil(t, v.Pending)
	})

	t.Run("retry succeeds", func(t *testing.T) {
		f.exec.mu.Lock()
		f.exec.err = nil
		f.exec.mu.Unlock()

		v, err := f.runner.Check(ctx, f.session, run.RunID)
		require.NoError(t, err)
		assert.Equal(t, engine.PhaseChecked, v.Phase)
		require.NotNil(t, v.Correct)
		assert.True(t, *v.Correct)
		require.NotNil(t, v.Execution)
		assert.Equal(t, "42\n", v.Execution.Output)
	})
}

func TestRunner_BusyDuringCodeCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.exec.gate = make(chan struct{})
	f.exec.started = make(chan struct{}, 1)

	run, err := f.runner.Start(ctx, f.session, f.codeID, false)
	require.NoError(t, err)
	_, err = f.runner.Select(ctx, f.session, run.RunID, engine.CodeAnswer("print(42)"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.Check(ctx, f.session, run.RunID)
		done <- err
	}()

	<-f.exec.started
	_, err = f.runner.Continue(ctx, f.session, run.RunID)
	assert.True(t, errors.HasCode(err, CodeRunBusy))
	_, err = f.runner.Check(ctx, f.session, run.RunID)
	assert.True(t, errors.HasCode(err, CodeRunBusy))

	close(f.exec.gate)
	require.NoError(t, <-done)
}

func TestRunner_EmptyLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.runner.Start(ctx, f.session, f.emptyID, false)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseEmpty, run.Phase)
	assert.Nil(t, run.Question)

	_, err = f.runner.Check(ctx, f.session, run.RunID)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidState))

	v, err := f.runner.Exit(ctx, f.session, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, engine.PhaseExited, v.Phase)
}

func TestRunner_SessionOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)

	other := &session.Session{ID: "sess-2", UserID: "user-2"}
	_, err = f.runner.Get(other, run.RunID)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestRunner_EndSessionSavesProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	run, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)
	f.answer(t, run.RunID, engine.TextAnswer("Hello, World!"))

	f.runner.EndSession(ctx, f.session)
	assert.Equal(t, 0, f.runner.Count())

	progress, err := f.lessons.GetProgress(ctx, f.session.UserID, f.lessonID)
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, 1, progress.CurrentQuestionIndex)
}

func TestRunner_EndSessionDuringCodeCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.exec.output = "41\n"
	f.exec.gate = make(chan struct{})
	f.exec.started = make(chan struct{}, 1)

	run, err := f.runner.Start(ctx, f.session, f.codeID, false)
	require.NoError(t, err)
	_, err = f.runner.Select(ctx, f.session, run.RunID, engine.CodeAnswer("print(41)"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.Check(ctx, f.session, run.RunID)
		done <- err
	}()

	<-f.exec.started
	f.runner.EndSession(ctx, f.session)
	assert.Equal(t, 1, f.runner.Count(), "busy run stays until its check completes")

	close(f.exec.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 0, f.runner.Count())

	assert.Equal(t, 4, f.profile(t).Hearts, "the wrong answer still costs a heart")
	progress, err := f.lessons.GetProgress(ctx, f.session.UserID, f.codeID)
	require.NoError(t, err)
	require.NotNil(t, progress)
	assert.Equal(t, 0, progress.CurrentQuestionIndex)
}

func TestRunner_WriteAfterCloseWarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.runner.Start(ctx, f.session, f.lessonID, false)
	require.NoError(t, err)
	f.runner.mu.RLock()
	run := f.runner.runs[view.RunID]
	f.runner.mu.RUnlock()

	run.queue.Close()
	f.runner.enqueue(run, "progress save", func(context.Context) error { return nil })
	assert.Equal(t, []string{"progress save failed, your progress may not be saved"}, run.drainWarnings())
}

func TestRunner_UnknownLesson(t *testing.T) {
	f := newFixture(t)
	_, err := f.runner.Start(context.Background(), f.session, 9999, false)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
