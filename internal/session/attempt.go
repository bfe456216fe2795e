package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
)

// Gateway is the collaborator boundary used by a running attempt.
type Gateway interface {
	Saver
	Finalizer
	FetchAttemptDetail(ctx context.Context, distributionID, takerID string) (domain.AttemptDetail, error)
}

// Options tune an attempt. Zero values use the wall clock, no confirmation and a no-op logger.
type Options struct {
	Now     func() time.Time
	Confirm Confirmer
	Log     *logger.Logger
}

// Attempt wires the clock, answer store and processor of one (distribution, taker) pair.
type Attempt struct {
	Detail    domain.AttemptDetail
	Clock     *Clock
	Answers   *AnswerStore
	Processor *Processor

	questions map[string]struct{}
}

// TickState is what a countdown tick observed.
type TickState struct {
	Phase     Phase
	Remaining time.Duration
	// Fired is true on the single tick that triggered the timeout submission.
	Fired  bool
	Result *domain.SubmitResult
}

// Open fetches the attempt detail, restores a persisted deadline and loads saved answers.
func Open(ctx context.Context, gw Gateway, store DeadlineStore, distributionID, takerID string, opts Options) (*Attempt, error) {
	detail, err := gw.FetchAttemptDetail(ctx, distributionID, takerID)
	if err != nil {
		return nil, fmt.Errorf("fetch attempt detail: %w", err)
	}

	clock := NewClock(DeadlineKey(distributionID, takerID), store, opts.Now)
	if _, err := clock.Resume(ctx); err != nil {
		return nil, err
	}

	answers := NewAnswerStore(distributionID, takerID, gw)
	answers.Load(detail.SavedAnswers)

	ids := make([]string, 0, len(detail.Questions))
	questions := make(map[string]struct{}, len(detail.Questions))
	for _, q := range detail.Questions {
		ids = append(ids, q.ID)
		questions[q.ID] = struct{}{}
	}

	return &Attempt{
		Detail:    detail,
		Clock:     clock,
		Answers:   answers,
		Processor: NewProcessor(distributionID, takerID, ids, clock, answers, gw, opts.Confirm, opts.Log),
		questions: questions,
	}, nil
}

// Start moves Intro → Doing. Resumed attempts keep their original deadline.
func (a *Attempt) Start(ctx context.Context) (time.Time, error) {
	return a.Clock.Start(ctx, a.Detail.DurationMinutes)
}

// SetAnswer edits one answer locally.
func (a *Attempt) SetAnswer(questionID string, value domain.AnswerValue) error {
	if err := a.requireDoing(); err != nil {
		return err
	}
	if _, ok := a.questions[questionID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	return a.Answers.Set(questionID, value)
}

// Commit saves one answer on explicit user action.
func (a *Attempt) Commit(ctx context.Context, questionID string) error {
	if err := a.requireDoing(); err != nil {
		return err
	}
	return a.Answers.Commit(ctx, questionID)
}

// Submit is the manual, confirmed submission.
func (a *Attempt) Submit(ctx context.Context) (domain.SubmitResult, error) {
	if err := a.requireDoing(); err != nil {
		return domain.SubmitResult{}, err
	}
	return a.Processor.Submit(ctx, false)
}

// Retry resends a failed timeout submission on explicit user action.
func (a *Attempt) Retry(ctx context.Context) (domain.SubmitResult, error) {
	return a.Processor.Retry(ctx)
}

// Tick observes the clock and fires the timeout submission exactly once.
func (a *Attempt) Tick(ctx context.Context) (TickState, error) {
	if !a.Clock.Expired() {
		return TickState{Phase: a.Clock.Phase(), Remaining: a.Clock.Remaining()}, nil
	}

	res, err := a.Processor.Submit(ctx, true)
	if errors.Is(err, ErrSubmitInProgress) || errors.Is(err, ErrAttemptClosed) {
		return TickState{Phase: a.Clock.Phase()}, nil
	}
	state := TickState{Phase: a.Clock.Phase(), Fired: true}
	if err != nil {
		return state, err
	}
	state.Result = &res
	return state, nil
}

// Run drives the countdown until the attempt leaves Doing or ctx is done.
func (a *Attempt) Run(ctx context.Context, interval time.Duration, onTick func(TickState, error)) error {
	if a.Clock.Phase() != PhaseDoing {
		return a.requireDoing()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			state, err := a.Tick(ctx)
			if onTick != nil {
				onTick(state, err)
			}
			if state.Phase != PhaseDoing {
				return err
			}
		}
	}
}

func (a *Attempt) requireDoing() error {
	switch a.Clock.Phase() {
	case PhaseIntro:
		return ErrNotStarted
	case PhaseSubmitted:
		return ErrAttemptClosed
	}
	return nil
}
