package socket

import "time"

// BackoffPolicy yields delay = Base * 2^(attempt-1) for attempts
// 1..MaxAttempts and nothing after that.
type BackoffPolicy struct {
	Base        time.Duration
	MaxAttempts int
}

var DefaultBackoffPolicy = BackoffPolicy{
	Base:        time.Second,
	MaxAttempts: 5,
}

type Backoff struct {
	policy  BackoffPolicy
	attempt int
}

func NewBackoff(policy BackoffPolicy) *Backoff {
	return &Backoff{policy: policy}
}

// Next advances to the next attempt and returns its delay. ok is false once
// MaxAttempts have been used; the attempt counter is left unchanged then.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	if b.attempt >= b.policy.MaxAttempts {
		return 0, false
	}
	b.attempt++
	return b.policy.Base << (b.attempt - 1), true
}

func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) Reset() {
	b.attempt = 0
}
