package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/codeowl/platform/internal/common/errors"
	"github.com/codeowl/platform/internal/common/metrics"
	"github.com/codeowl/platform/internal/lesson/engine"
	"github.com/codeowl/platform/internal/lesson/models"
	"github.com/codeowl/platform/internal/lesson/repository"
	profilerepo "github.com/codeowl/platform/internal/profile/repository"
	profileservices "github.com/codeowl/platform/internal/profile/services"
	"github.com/codeowl/platform/internal/session"
	"github.com/codeowl/platform/pkg/config"
	"github.com/codeowl/platform/pkg/logger"
)

// CodeRunBusy is returned while a run is waiting on the code sandbox.
const CodeRunBusy = "RUN_BUSY"

func errRunBusy() *errors.AppError {
	return &errors.AppError{
		Code:    CodeRunBusy,
		Message: "run is busy, wait for the current check to finish",
		Status:  http.StatusConflict,
	}
}

// Run is one learner's pass through one lesson.
type Run struct {
	ID        string
	SessionID string
	UserID    string
	LessonID  uint
	Practice  bool
	Retake    bool
	StartedAt time.Time

	mu             sync.Mutex
	busy           bool
	exitPending    bool
	machine        *engine.Machine
	queue          *writeQueue
	lastCheckIndex int
	lastExecution  *engine.ExecutionResult

	warnMu   sync.Mutex
	warnings []string
}

func (r *Run) free() bool { return r.Practice || r.Retake }

func (r *Run) addWarning(msg string) {
	r.warnMu.Lock()
	r.warnings = append(r.warnings, msg)
	r.warnMu.Unlock()
}

func (r *Run) drainWarnings() []string {
	r.warnMu.Lock()
	defer r.warnMu.Unlock()
	w := r.warnings
	r.warnings = nil
	return w
}

// Runner hosts live lesson runs and applies their side effects.
type Runner struct {
	db       *gorm.DB
	lessons  *repository.LessonRepository
	profiles *profilerepo.ProfileRepository
	economy  *profileservices.ProfileService
	grader   *engine.Grader
	gems     int
	metrics  *metrics.Metrics
	log      *logger.Logger
	now      func() time.Time

	mu   sync.RWMutex
	runs map[string]*Run
}

func NewRunner(
	db *gorm.DB,
	lessons *repository.LessonRepository,
	profiles *profilerepo.ProfileRepository,
	economy *profileservices.ProfileService,
	grader *engine.Grader,
	cfg config.EconomyConfig,
	m *metrics.Metrics,
) *Runner {
	return &Runner{
		db:       db,
		lessons:  lessons,
		profiles: profiles,
		economy:  economy,
		grader:   grader,
		gems:     cfg.GemsPerStar,
		metrics:  m,
		log:      logger.Get().Named("lesson"),
		now:      time.Now,
		runs:     make(map[string]*Run),
	}
}

// Start opens a run. A lesson the user already completed runs as a free
// retake. Non-free runs resume from saved progress.
func (r *Runner) Start(ctx context.Context, s *session.Session, lessonID uint, practice bool) (*RunView, error) {
	lesson, err := r.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, wrap(err, "failed to load lesson")
	}

	completed, err := r.lessons.HasCompletion(ctx, s.UserID, lessonID)
	if err != nil {
		return nil, errors.Internal("failed to load completion", err.Error())
	}

	opts := engine.Options{Free: practice || completed}
	if !opts.Free {
		saved, err := r.lessons.GetProgress(ctx, s.UserID, lessonID)
		if err != nil {
			return nil, errors.Internal("failed to load progress", err.Error())
		}
		if saved != nil {
			opts.Resume = attemptFromProgress(saved)
		}
	}

	run := &Run{
		ID:             uuid.NewString(),
		SessionID:      s.ID,
		UserID:         s.UserID,
		LessonID:       lessonID,
		Practice:       practice,
		Retake:         completed,
		StartedAt:      r.now().UTC(),
		machine:        engine.NewMachine(lesson.Questions, opts),
		lastCheckIndex: -1,
	}
	run.queue = newWriteQueue(func(op string, err error) {
		r.log.Warn("queued store write failed",
			zap.String("run_id", run.ID),
			zap.String("op", op),
			zap.Error(err),
		)
		if r.metrics != nil {
			r.metrics.StoreWriteFailures.WithLabelValues(op).Inc()
		}
		run.addWarning(fmt.Sprintf("%s failed, your progress may not be saved", op))
	})

	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.ActiveRuns.Inc()
	}

	r.log.Info("lesson run started",
		zap.String("run_id", run.ID),
		zap.String("user_id", s.UserID),
		zap.Uint("lesson_id", lessonID),
		zap.Bool("practice", practice),
		zap.Bool("retake", completed),
		zap.Bool("resumed", opts.Resume != nil),
	)

	run.mu.Lock()
	defer run.mu.Unlock()
	return run.view(), nil
}

// Get returns the current view of a run.
func (r *Runner) Get(s *session.Session, runID string) (*RunView, error) {
	run, err := r.lookup(s, runID)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.busy {
		return nil, errRunBusy()
	}
	return run.view(), nil
}

// Select records the pending answer.
func (r *Runner) Select(ctx context.Context, s *session.Session, runID string, a engine.Answer) (*RunView, error) {
	return r.apply(ctx, s, runID, engine.SelectAnswer{Answer: a})
}

// Check grades the pending answer. For code-runner questions the run is
// marked busy for the sandbox round trip; a sandbox failure leaves the
// run answering so the learner can retry.
func (r *Runner) Check(ctx context.Context, s *session.Session, runID string) (*RunView, error) {
	run, err := r.lookup(s, runID)
	if err != nil {
		return nil, err
	}

	run.mu.Lock()
	if run.busy {
		run.mu.Unlock()
		return nil, errRunBusy()
	}
	snap := run.machine.Snapshot()
	q := run.machine.Question()
	if _, ok := snap.State.(engine.Answering); !ok || snap.Pending == nil || q == nil {
		run.mu.Unlock()
		return nil, errors.InvalidState("select an answer before checking")
	}
	run.busy = true
	run.mu.Unlock()

	started := r.now()
	verdict, gradeErr := r.grader.Grade(ctx, q, *snap.Pending)
	if q.Kind == models.KindCodeRunner && r.metrics != nil {
		outcome := "ok"
		if gradeErr != nil {
			outcome = "error"
		}
		r.metrics.CodeExecutions.WithLabelValues(outcome).Observe(r.now().Sub(started).Seconds())
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	run.busy = false
	if gradeErr != nil {
		r.log.Warn("answer check failed", zap.String("run_id", run.ID), zap.Error(gradeErr))
		r.exitIfPending(ctx, run)
		return nil, gradeErr
	}

	index, _ := engine.CurrentIndex(snap.State)
	effects, err := run.machine.Apply(engine.Check{Correct: verdict.Correct})
	if err != nil {
		r.exitIfPending(ctx, run)
		return nil, err
	}
	run.lastCheckIndex = index
	run.lastExecution = verdict.Execution

	if r.metrics != nil {
		outcome := "incorrect"
		if verdict.Correct {
			outcome = "correct"
		}
		r.metrics.AnswerChecks.WithLabelValues(string(q.Kind), outcome).Inc()
	}

	effectErr := r.handleEffects(ctx, run, effects)
	view := run.view()
	r.exitIfPending(ctx, run)
	if effectErr != nil {
		return nil, effectErr
	}
	return view, nil
}

// exitIfPending performs an exit that was requested while the run was
// busy. The caller holds run.mu.
func (r *Runner) exitIfPending(ctx context.Context, run *Run) {
	if !run.exitPending {
		return
	}
	run.exitPending = false
	effects, err := run.machine.Apply(engine.Exit{})
	if err == nil {
		err = r.handleEffects(ctx, run, effects)
	}
	if err != nil {
		r.log.Warn("deferred exit failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	r.remove(run)
}

// Continue moves past a checked question. On the last question the run
// finalizes.
func (r *Runner) Continue(ctx context.Context, s *session.Session, runID string) (*RunView, error) {
	return r.apply(ctx, s, runID, engine.Continue{})
}

// Back returns to the previous question.
func (r *Runner) Back(ctx context.Context, s *session.Session, runID string) (*RunView, error) {
	return r.apply(ctx, s, runID, engine.GoBack{})
}

// Exit saves progress and ends the run without finalizing.
func (r *Runner) Exit(ctx context.Context, s *session.Session, runID string) (*RunView, error) {
	return r.apply(ctx, s, runID, engine.Exit{})
}

func (r *Runner) apply(ctx context.Context, s *session.Session, runID string, ev engine.Event) (*RunView, error) {
	run, err := r.lookup(s, runID)
	if err != nil {
		return nil, err
	}

	run.mu.Lock()
	defer run.mu.Unlock()
	if run.busy {
		return nil, errRunBusy()
	}

	effects, err := run.machine.Apply(ev)
	if err != nil {
		return nil, err
	}
	effectErr := r.handleEffects(ctx, run, effects)

	view := run.view()
	if run.machine.Snapshot().Terminal() {
		r.remove(run)
	}
	if effectErr != nil {
		return nil, effectErr
	}
	return view, nil
}

// handleEffects queues heart and progress writes and runs finalization
// synchronously. The caller holds run.mu.
func (r *Runner) handleEffects(ctx context.Context, run *Run, effects []engine.Effect) error {
	for _, eff := range effects {
		switch e := eff.(type) {
		case engine.DeductHeart:
			r.enqueue(run, "heart deduction", func(ctx context.Context) error {
				return r.economy.DeductHeart(ctx, run.UserID)
			})

		case engine.SaveProgress:
			progress := progressFromAttempt(run.UserID, run.LessonID, e.Attempt)
			r.enqueue(run, "progress save", func(ctx context.Context) error {
				return r.lessons.SaveProgress(ctx, progress)
			})

		case engine.Finalize:
			run.queue.Flush()
			if err := r.finalize(ctx, run, e.Result); err != nil {
				return err
			}
		}
	}

	if snap := run.machine.Snapshot(); run.free() {
		if _, ok := snap.State.(engine.Complete); ok && r.metrics != nil {
			mode := "retake"
			if run.Practice {
				mode = "practice"
			}
			r.metrics.LessonCompletions.WithLabelValues(mode).Inc()
		}
	}
	return nil
}

func (r *Runner) enqueue(run *Run, op string, fn func(ctx context.Context) error) {
	if run.queue.Enqueue(op, fn) {
		return
	}
	r.log.Warn("store write dropped, run already closed",
		zap.String("run_id", run.ID),
		zap.String("op", op),
	)
	if r.metrics != nil {
		r.metrics.StoreWriteFailures.WithLabelValues(op).Inc()
	}
	run.addWarning(fmt.Sprintf("%s failed, your progress may not be saved", op))
}

// finalize records the completion and pays out XP, gems and streak in one
// transaction.
func (r *Runner) finalize(ctx context.Context, run *Run, result engine.Result) error {
	now := r.now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lessons := r.lessons.WithTx(tx)
		profiles := r.profiles.WithTx(tx)

		completion := &models.LessonCompletion{
			UserID:      run.UserID,
			LessonID:    run.LessonID,
			Accuracy:    result.Accuracy,
			Stars:       result.Stars,
			XPEarned:    result.XPEarned,
			CompletedAt: now,
		}
		if err := lessons.CreateCompletion(ctx, completion); err != nil {
			return err
		}
		if err := profiles.AwardXP(ctx, run.UserID, result.XPEarned); err != nil {
			return err
		}
		if err := profiles.AddGems(ctx, run.UserID, result.Stars*r.gems); err != nil {
			return err
		}

		profile, err := profiles.Get(ctx, run.UserID)
		if err != nil {
			return err
		}
		streak := profileservices.NextStreak(profile.Streak(), now)
		if err := profiles.SaveStreak(ctx, run.UserID, streak); err != nil {
			return err
		}

		return lessons.DeleteProgress(ctx, run.UserID, run.LessonID)
	})
	if err != nil {
		r.log.Error("lesson finalization failed",
			zap.String("run_id", run.ID),
			zap.String("user_id", run.UserID),
			zap.Error(err),
		)
		return wrap(err, "failed to save lesson completion")
	}

	if r.metrics != nil {
		r.metrics.LessonCompletions.WithLabelValues("first").Inc()
	}
	r.log.Info("lesson completed",
		zap.String("run_id", run.ID),
		zap.String("user_id", run.UserID),
		zap.Uint("lesson_id", run.LessonID),
		zap.Int("xp", result.XPEarned),
		zap.Int("stars", result.Stars),
	)
	r.economy.Refresh(ctx, run.UserID)
	return nil
}

// EndSession exits every run of a destroyed session, saving progress. A
// run waiting on the sandbox exits as soon as its check completes.
func (r *Runner) EndSession(ctx context.Context, s *session.Session) {
	r.mu.RLock()
	var owned []*Run
	for _, run := range r.runs {
		if run.SessionID == s.ID {
			owned = append(owned, run)
		}
	}
	r.mu.RUnlock()

	for _, run := range owned {
		run.mu.Lock()
		if run.busy {
			run.exitPending = true
			run.mu.Unlock()
			continue
		}
		effects, err := run.machine.Apply(engine.Exit{})
		if err == nil {
			err = r.handleEffects(ctx, run, effects)
		}
		if err != nil {
			r.log.Warn("exit on session end failed", zap.String("run_id", run.ID), zap.Error(err))
		}
		r.remove(run)
		run.mu.Unlock()
	}
}

// Shutdown exits all runs and drains their queues.
func (r *Runner) Shutdown(ctx context.Context) {
	r.mu.RLock()
	all := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		all = append(all, run)
	}
	r.mu.RUnlock()

	for _, run := range all {
		run.mu.Lock()
		if run.busy {
			run.exitPending = true
			run.mu.Unlock()
			continue
		}
		if effects, err := run.machine.Apply(engine.Exit{}); err == nil {
			_ = r.handleEffects(ctx, run, effects)
		}
		r.remove(run)
		run.mu.Unlock()
	}
}

// Count returns the number of live runs.
func (r *Runner) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

func (r *Runner) lookup(s *session.Session, runID string) (*Run, error) {
	r.mu.RLock()
	run, ok := r.runs[runID]
	r.mu.RUnlock()
	if !ok || run.SessionID != s.ID {
		return nil, errors.NotFound("run")
	}
	return run, nil
}

// remove drops the run and drains its queue.
func (r *Runner) remove(run *Run) {
	r.mu.Lock()
	_, ok := r.runs[run.ID]
	delete(r.runs, run.ID)
	r.mu.Unlock()

	run.queue.Close()
	if ok && r.metrics != nil {
		r.metrics.ActiveRuns.Dec()
	}
}

func attemptFromProgress(p *models.PartialProgress) *engine.Attempt {
	results := make(map[int]bool, len(p.Results))
	for k, v := range p.Results {
		results[k] = v
	}
	return &engine.Attempt{
		CurrentIndex:   p.CurrentQuestionIndex,
		Answered:       append([]int(nil), p.AnsweredQuestions...),
		Results:        results,
		XPEarned:       p.XPEarned,
		CorrectAnswers: p.CorrectAnswers,
	}
}

func progressFromAttempt(userID string, lessonID uint, a engine.Attempt) *models.PartialProgress {
	answered := a.Answered
	if answered == nil {
		answered = []int{}
	}
	return &models.PartialProgress{
		UserID:               userID,
		LessonID:             lessonID,
		CurrentQuestionIndex: a.CurrentIndex,
		AnsweredQuestions:    answered,
		Results:              a.Results,
		XPEarned:             a.XPEarned,
		CorrectAnswers:       a.CorrectAnswers,
	}
}

func wrap(err error, msg string) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Internal(msg, err.Error())
}
