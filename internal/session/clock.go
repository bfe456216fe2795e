package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"edu-assessment-service/internal/domain"
)

var (
	// ErrNotStarted is returned for answer or submit actions before the attempt started.
	ErrNotStarted = errors.New("attempt not started")
	// ErrAttemptClosed is returned for any action after the attempt was submitted.
	ErrAttemptClosed = errors.New("attempt already submitted")
	// ErrLocked is returned for edits after the deadline locked the attempt.
	ErrLocked = errors.New("attempt is locked")
	// ErrSubmitInProgress is returned while a finalizing call is in flight.
	ErrSubmitInProgress = errors.New("submission already in progress")
	// ErrSubmitCancelled is returned when a manual submission was not confirmed.
	ErrSubmitCancelled = errors.New("submission not confirmed")
	// ErrNothingToRetry is returned by Retry when no failed timeout submission is pending.
	ErrNothingToRetry = errors.New("no failed submission to retry")
)

// Phase is the state of an attempt: Intro → Doing → Submitted.
type Phase int

const (
	PhaseIntro Phase = iota
	PhaseDoing
	PhaseSubmitted
)

func (p Phase) String() string {
	switch p {
	case PhaseIntro:
		return "intro"
	case PhaseDoing:
		return "doing"
	case PhaseSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// DeadlineStore is durable client-side storage holding one absolute deadline per attempt.
type DeadlineStore interface {
	LoadDeadline(ctx context.Context, key string) (time.Time, bool, error)
	SaveDeadline(ctx context.Context, key string, deadline time.Time) error
	ClearDeadline(ctx context.Context, key string) error
}

// DeadlineKey identifies an attempt in a DeadlineStore.
func DeadlineKey(distributionID, takerID string) string {
	return "attempt:" + distributionID + ":" + takerID
}

// Clock tracks the phase and absolute deadline of one attempt.
// Only the absolute deadline is persisted; remaining time is recomputed on every read.
type Clock struct {
	key   string
	store DeadlineStore
	now   func() time.Time

	mu       sync.Mutex
	phase    Phase
	deadline time.Time
}

func NewClock(key string, store DeadlineStore, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{key: key, store: store, now: now}
}

// Resume restores the phase from storage on (re)entry. A future deadline resumes
// Doing unchanged; a past one is discarded and the attempt returns to Intro.
func (c *Clock) Resume(ctx context.Context) (Phase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseSubmitted {
		return c.phase, nil
	}

	deadline, ok, err := c.store.LoadDeadline(ctx, c.key)
	if err != nil {
		return c.phase, fmt.Errorf("load deadline: %w", err)
	}
	if !ok {
		c.phase, c.deadline = PhaseIntro, time.Time{}
		return c.phase, nil
	}
	if c.now().Before(deadline) {
		c.phase, c.deadline = PhaseDoing, deadline
		return c.phase, nil
	}

	c.phase, c.deadline = PhaseIntro, time.Time{}
	if err := c.store.ClearDeadline(ctx, c.key); err != nil {
		return c.phase, fmt.Errorf("clear stale deadline: %w", err)
	}
	return c.phase, nil
}

// Start enters Doing with deadline now+duration. While already Doing it returns
// the existing deadline untouched.
func (c *Clock) Start(ctx context.Context, durationMinutes int) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.phase {
	case PhaseSubmitted:
		return time.Time{}, ErrAttemptClosed
	case PhaseDoing:
		return c.deadline, nil
	}
	if durationMinutes <= 0 {
		return time.Time{}, domain.ErrInvalidDuration
	}

	deadline := c.now().Add(time.Duration(durationMinutes) * time.Minute)
	if err := c.store.SaveDeadline(ctx, c.key, deadline); err != nil {
		return time.Time{}, fmt.Errorf("persist deadline: %w", err)
	}
	c.phase, c.deadline = PhaseDoing, deadline
	return deadline, nil
}

// Finish enters the terminal Submitted phase and clears the persisted deadline.
// The phase changes even if clearing storage fails.
func (c *Clock) Finish(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseSubmitted {
		return nil
	}
	c.phase, c.deadline = PhaseSubmitted, time.Time{}
	if err := c.store.ClearDeadline(ctx, c.key); err != nil {
		return fmt.Errorf("clear deadline: %w", err)
	}
	return nil
}

func (c *Clock) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Deadline is zero unless the attempt is Doing.
func (c *Clock) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Remaining is the time left before the deadline, never negative.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseDoing {
		return 0
	}
	left := c.deadline.Sub(c.now())
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether a Doing attempt has reached its deadline.
func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == PhaseDoing && !c.now().Before(c.deadline)
}
