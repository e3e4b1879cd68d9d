// Package lockout decides, from a user's failure history, whether
// authentication must be rejected and for how long.
//
// Policy is pure: it maps a credential.LockState to the next state. Callers
// apply the transition through credential.Store.UpdateLockState so that
// concurrent failures are serialised per user.
package lockout

import (
	"errors"
	"time"

	"github.com/aqryuz/authcore/credential"
)

// DefaultMaxDuration caps progressive lockouts.
const DefaultMaxDuration = 24 * time.Hour

// Config holds lockout tuning.
type Config struct {
	MaxFailedAttempts int
	BaseDuration      time.Duration
	Progressive       bool
	MaxDuration       time.Duration
	// CycleResetAfter forgets earlier lockout cycles when the last lockout
	// is older than this. Zero keeps cycles until an explicit unlock.
	CycleResetAfter time.Duration
}

// Decision describes the outcome of a recorded failure.
type Decision struct {
	Locked      bool
	LockedUntil time.Time
	Duration    time.Duration
	// Unlocked reports that an expired lockout was lifted before counting.
	Unlocked bool
	// Extended reports a failure that landed inside an active lockout and
	// lengthened it without starting a new cycle.
	Extended bool
}

type Policy struct {
	cfg Config
}

func New(cfg Config) (*Policy, error) {
	if cfg.MaxFailedAttempts <= 0 {
		return nil, errors.New("lockout MaxFailedAttempts must be > 0")
	}
	if cfg.BaseDuration <= 0 {
		return nil, errors.New("lockout BaseDuration must be > 0")
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.MaxDuration < cfg.BaseDuration {
		return nil, errors.New("lockout MaxDuration must be >= BaseDuration")
	}
	if cfg.CycleResetAfter < 0 {
		return nil, errors.New("lockout CycleResetAfter must be >= 0")
	}
	return &Policy{cfg: cfg}, nil
}

// IsLocked treats an elapsed lockout as unlocked even before the lazy
// unlock in OnFailure has run.
func (p *Policy) IsLocked(s credential.LockState, now time.Time) bool {
	return s.Locked && now.Before(s.LockedUntil)
}

// Remaining is the time left on an active lockout, or zero.
func (p *Policy) Remaining(s credential.LockState, now time.Time) time.Duration {
	if !p.IsLocked(s, now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// OnFailure records one failed authentication.
func (p *Policy) OnFailure(s credential.LockState, now time.Time) (credential.LockState, Decision) {
	var d Decision

	if s.Locked && !now.Before(s.LockedUntil) {
		s.Locked = false
		s.LockedUntil = time.Time{}
		s.FailedAttempts = 0
		d.Unlocked = true
	}

	s.FailedAttempts++

	// Still locked: the current cycle is already counted in LockoutCycles.
	if s.Locked {
		duration := p.Duration(s.FailedAttempts, s.LockoutCycles-1)
		if until := now.Add(duration); until.After(s.LockedUntil) {
			s.LockedUntil = until
		}
		s.LastLockoutAt = now

		d.Locked = true
		d.Extended = true
		d.LockedUntil = s.LockedUntil
		d.Duration = duration
		return s, d
	}

	if s.FailedAttempts < p.cfg.MaxFailedAttempts {
		return s, d
	}

	if p.cfg.CycleResetAfter > 0 && !s.LastLockoutAt.IsZero() && now.Sub(s.LastLockoutAt) >= p.cfg.CycleResetAfter {
		s.LockoutCycles = 0
	}

	duration := p.Duration(s.FailedAttempts, s.LockoutCycles)
	s.Locked = true
	s.LockedUntil = now.Add(duration)
	s.LockoutCycles++
	s.LastLockoutAt = now

	d.Locked = true
	d.LockedUntil = s.LockedUntil
	d.Duration = duration
	return s, d
}

// OnSuccess resets the failure counter and clears any lockout. The cycle
// history is kept for progressive escalation.
func (p *Policy) OnSuccess(s credential.LockState) credential.LockState {
	s.FailedAttempts = 0
	s.Locked = false
	s.LockedUntil = time.Time{}
	return s
}

// Unlock clears the lockout and the cycle history. Used for operator unlocks.
func (p *Policy) Unlock(credential.LockState) credential.LockState {
	return credential.LockState{}
}

// Duration computes the lockout length for a failure count and the number of
// earlier lockout cycles. Flat unless progressive; progressive doubles per
// step, step = (failures - max + 1) + priorCycles, capped at MaxDuration.
func (p *Policy) Duration(failures, priorCycles int) time.Duration {
	if !p.cfg.Progressive {
		return p.cfg.BaseDuration
	}

	excess := failures - p.cfg.MaxFailedAttempts + 1
	if excess < 1 {
		excess = 1
	}
	if priorCycles < 0 {
		priorCycles = 0
	}
	step := excess + priorCycles

	d := p.cfg.BaseDuration
	for i := 1; i < step; i++ {
		d *= 2
		if d >= p.cfg.MaxDuration || d <= 0 {
			return p.cfg.MaxDuration
		}
	}
	if d > p.cfg.MaxDuration {
		return p.cfg.MaxDuration
	}
	return d
}
