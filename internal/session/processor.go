package session

import (
	"context"
	"errors"
	"sync"

	"edu-assessment-service/internal/domain"
	"edu-assessment-service/internal/logger"
)

// Finalizer is the final submission collaborator.
type Finalizer interface {
	SubmitAttempt(ctx context.Context, distributionID string, answers []domain.AnswerEntry, takerID string) (domain.SubmitResult, error)
}

// Confirmer asks the taker to confirm a manual submission.
type Confirmer func() bool

// Processor performs the single finalizing call of an attempt.
//
// A manual submission needs confirmation and leaves the attempt editable when it
// fails. A timeout submission fires at most once, locks the answers first and
// leaves Doing whatever the outcome; after a failure only Retry can resend it.
type Processor struct {
	distributionID string
	takerID        string
	questionIDs    []string
	clock          *Clock
	answers        *AnswerStore
	finalizer      Finalizer
	confirm        Confirmer
	log            *logger.Logger

	mu        sync.Mutex
	inFlight  bool
	autoFired bool
	done      bool
	result    *domain.SubmitResult
	lastErr   error
}

func NewProcessor(distributionID, takerID string, questionIDs []string, clock *Clock, answers *AnswerStore, finalizer Finalizer, confirm Confirmer, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Processor{
		distributionID: distributionID,
		takerID:        takerID,
		questionIDs:    append([]string(nil), questionIDs...),
		clock:          clock,
		answers:        answers,
		finalizer:      finalizer,
		confirm:        confirm,
		log:            log.With("distribution_id", distributionID, "taker_id", takerID),
	}
}

// Submit finalizes the attempt. auto marks the timeout path.
func (p *Processor) Submit(ctx context.Context, auto bool) (domain.SubmitResult, error) {
	if !auto && p.confirm != nil && !p.confirm() {
		return domain.SubmitResult{}, ErrSubmitCancelled
	}

	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return domain.SubmitResult{}, ErrAttemptClosed
	}
	if auto {
		if p.autoFired {
			p.mu.Unlock()
			return domain.SubmitResult{}, ErrSubmitInProgress
		}
		p.autoFired = true
		p.answers.Lock()
		if p.inFlight {
			// the manual call already carries the final answers
			p.mu.Unlock()
			return domain.SubmitResult{}, ErrSubmitInProgress
		}
	} else {
		if p.inFlight {
			p.mu.Unlock()
			return domain.SubmitResult{}, ErrSubmitInProgress
		}
		if p.autoFired {
			p.mu.Unlock()
			return domain.SubmitResult{}, ErrLocked
		}
	}
	p.inFlight = true
	p.mu.Unlock()

	return p.finalize(ctx, auto)
}

// Retry resends the final request after a failed timeout submission.
func (p *Processor) Retry(ctx context.Context) (domain.SubmitResult, error) {
	p.mu.Lock()
	switch {
	case p.done:
		p.mu.Unlock()
		return domain.SubmitResult{}, ErrAttemptClosed
	case p.inFlight:
		p.mu.Unlock()
		return domain.SubmitResult{}, ErrSubmitInProgress
	case !p.autoFired || p.lastErr == nil:
		p.mu.Unlock()
		return domain.SubmitResult{}, ErrNothingToRetry
	}
	p.inFlight = true
	p.mu.Unlock()

	return p.finalize(ctx, true)
}

func (p *Processor) finalize(ctx context.Context, auto bool) (domain.SubmitResult, error) {
	entries := p.answers.Entries(p.questionIDs)
	res, err := p.finalizer.SubmitAttempt(ctx, p.distributionID, entries, p.takerID)

	p.mu.Lock()
	p.inFlight = false
	p.lastErr = err
	locked := auto || p.autoFired
	switch {
	case err == nil:
		p.done = true
		p.result = &res
	case isTerminal(err):
		p.done = true
	}
	done := p.done
	p.mu.Unlock()

	if done || locked {
		p.answers.Lock()
		if clearErr := p.clock.Finish(ctx); clearErr != nil {
			p.log.Warn("deadline not cleared", "error", clearErr)
		}
	}
	if err != nil {
		p.log.Error("final submission failed", "auto", auto, "terminal", done, "error", err)
		return domain.SubmitResult{}, err
	}
	p.log.Info("attempt submitted", "auto", auto, "score", res.Score, "correct", res.CorrectCount)
	return res, nil
}

// Result is the graded outcome once a submission succeeded.
func (p *Processor) Result() (domain.SubmitResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.result == nil {
		return domain.SubmitResult{}, false
	}
	return *p.result, true
}

// Done reports whether the attempt reached a terminal outcome.
func (p *Processor) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// PendingRetry reports whether a timeout submission failed and awaits Retry.
func (p *Processor) PendingRetry() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoFired && !p.done && !p.inFlight && p.lastErr != nil
}

// isTerminal lists collaborator errors after which resending cannot succeed.
func isTerminal(err error) bool {
	return errors.Is(err, domain.ErrAlreadySubmitted) ||
		errors.Is(err, domain.ErrClosed) ||
		errors.Is(err, domain.ErrDistributionNotFound) ||
		errors.Is(err, domain.ErrTemplateNotFound)
}
