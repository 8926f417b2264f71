package crawler

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"hacktown/internal/profile"
)

// State is the position of a retry machine.
type State int

// Retry machine states.
const (
	StateAttempting State = iota
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "Attempting"
	case StateSucceeded:
		return "Succeeded"
	case StateExhausted:
		return "Exhausted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Policy holds the backoff parameters.
type Policy struct {
	BaseDelay           time.Duration
	RateLimitMultiplier float64
	JitterFraction      float64
	MaxRetries          int
}

// PolicyFromProfile extracts the retry parameters of p.
func PolicyFromProfile(p profile.Profile) Policy {
	return Policy{
		BaseDelay:           p.BaseRetryDelay,
		RateLimitMultiplier: p.RateLimitMultiplier,
		JitterFraction:      p.JitterFraction,
		MaxRetries:          p.MaxRetries,
	}
}

// MaxAttempts is the first attempt plus every retry.
func (p Policy) MaxAttempts() int {
	return 1 + p.MaxRetries
}

// Delay is the wait before attempt k (k >= 1) after a failure of kind,
// without jitter: BaseDelay * 2^(k-1), times RateLimitMultiplier for
// rate-limited failures.
func (p Policy) Delay(k int, kind FailureKind) time.Duration {
	if k < 1 {
		return 0
	}

	d := float64(p.BaseDelay) * math.Pow(2, float64(k-1))
	if kind == KindRateLimited {
		d *= p.RateLimitMultiplier
	}

	return time.Duration(d)
}

// Jittered adds JitterFraction*Delay*u to Delay, where u is uniform in [0, 1).
func (p Policy) Jittered(k int, kind FailureKind, u float64) time.Duration {
	d := p.Delay(k, kind)

	return d + time.Duration(float64(d)*p.JitterFraction*u)
}

// Machine tracks the retry state of one unit of work.
//
//	Attempting(k) --success--> Succeeded
//	Attempting(k) --failure, k < MaxAttempts--> Attempting(k+1)
//	Attempting(k) --failure, k = MaxAttempts--> Exhausted
//	any --Abort--> Exhausted
type Machine struct {
	lastErr  error
	policy   Policy
	state    State
	attempts int
}

// NewMachine returns a machine ready for its first attempt.
func NewMachine(p Policy) *Machine {
	return &Machine{policy: p, state: StateAttempting}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Attempts returns how many attempts have been observed.
func (m *Machine) Attempts() int {
	return m.attempts
}

// Observe feeds the outcome of the current attempt. When the machine stays
// in Attempting the returned delay must elapse before the next attempt.
// u is a uniform sample in [0, 1) used for jitter.
func (m *Machine) Observe(err error, u float64) (time.Duration, State) {
	if m.state != StateAttempting {
		return 0, m.state
	}

	m.attempts++

	if err == nil {
		m.state = StateSucceeded
		m.lastErr = nil

		return 0, m.state
	}

	m.lastErr = err

	if m.attempts >= m.policy.MaxAttempts() {
		m.state = StateExhausted

		return 0, m.state
	}

	return m.policy.Jittered(m.attempts, KindOf(err), u), m.state
}

// Abort moves the machine to Exhausted with err as the final cause.
func (m *Machine) Abort(err error) {
	m.state = StateExhausted
	m.lastErr = err
}

// Err returns the final failure once exhausted.
func (m *Machine) Err() error {
	if m.state != StateExhausted {
		return nil
	}

	return fmt.Errorf("gave up after %d attempts: %w", m.attempts, m.lastErr)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Attempt records one try made by a Retrier.
type Attempt struct {
	Err        error
	Number     int
	Kind       FailureKind
	StatusCode int
	Duration   time.Duration
	Delay      time.Duration
}

// Outcome is the result of Retrier.Do.
type Outcome struct {
	Err      error
	Attempts []Attempt
	State    State
}

// Retrier drives a Machine with real or injected time.
type Retrier struct {
	sleep  Sleeper
	random func() float64
	now    func() time.Time
	policy Policy
}

// RetrierOption customizes a Retrier.
type RetrierOption func(*Retrier)

// WithSleeper replaces the wait function.
func WithSleeper(s Sleeper) RetrierOption {
	return func(r *Retrier) { r.sleep = s }
}

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) RetrierOption {
	return func(r *Retrier) { r.random = f }
}

// WithClock replaces the clock used to time attempts.
func WithClock(now func() time.Time) RetrierOption {
	return func(r *Retrier) { r.now = now }
}

// NewRetrier creates a retrier for p.
func NewRetrier(p Policy, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		policy: p,
		sleep:  SleepContext,
		random: rand.Float64,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do calls op until it succeeds or the policy is exhausted. attempt is
// 1-based. A done context ends the run as Exhausted.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context, attempt int) error) Outcome {
	m := NewMachine(r.policy)

	var attempts []Attempt

	for m.State() == StateAttempting {
		if err := ctx.Err(); err != nil {
			m.Abort(err)

			break
		}

		start := r.now()
		err := op(ctx, m.Attempts()+1)

		rec := Attempt{
			Number:     m.Attempts() + 1,
			Kind:       KindOf(err),
			StatusCode: StatusOf(err),
			Duration:   r.now().Sub(start),
			Err:        err,
		}

		if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
			attempts = append(attempts, rec)
			m.Observe(err, 0)
			m.Abort(ctxErr)

			break
		}

		delay, state := m.Observe(err, r.random())
		rec.Delay = delay
		attempts = append(attempts, rec)

		if state != StateAttempting {
			break
		}

		if err := r.sleep(ctx, delay); err != nil {
			m.Abort(err)
		}
	}

	return Outcome{State: m.State(), Attempts: attempts, Err: m.Err()}
}
