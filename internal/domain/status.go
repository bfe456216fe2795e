package domain

import (
	"fmt"
	"time"
)

// DistributionStatus is the lifecycle state of a distribution.
type DistributionStatus string

const (
	StatusUpcoming DistributionStatus = "upcoming"
	StatusOngoing  DistributionStatus = "ongoing"
	StatusFinished DistributionStatus = "finished"
)

// ParseStatus validates a status string.
func ParseStatus(raw string) (DistributionStatus, error) {
	switch s := DistributionStatus(raw); s {
	case StatusUpcoming, StatusOngoing, StatusFinished:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Window is the period during which a distribution accepts attempts.
type Window struct {
	OpenAt  time.Time `json:"openAt"`
	CloseAt time.Time `json:"closeAt"`
}

// Validate checks that the window closes strictly after it opens.
func (w Window) Validate() error {
	if w.OpenAt.IsZero() || w.CloseAt.IsZero() || !w.CloseAt.After(w.OpenAt) {
		return ErrInvalidWindow
	}
	return nil
}

// StatusAt derives the status of the window at t.
func (w Window) StatusAt(t time.Time) DistributionStatus {
	switch {
	case t.Before(w.OpenAt):
		return StatusUpcoming
	case t.After(w.CloseAt):
		return StatusFinished
	default:
		return StatusOngoing
	}
}

// Window returns the distribution's time window.
func (d Distribution) Window() Window {
	return Window{OpenAt: d.OpenAt, CloseAt: d.CloseAt}
}

// StatusAt returns the stored override if present, otherwise the status derived from t.
func (d Distribution) StatusAt(t time.Time) DistributionStatus {
	if d.StatusOverride != nil {
		return *d.StatusOverride
	}
	return d.Window().StatusAt(t)
}

// ViewAt pairs the distribution with its effective status at t.
func (d Distribution) ViewAt(t time.Time) DistributionView {
	return DistributionView{Distribution: d, Status: d.StatusAt(t)}
}
