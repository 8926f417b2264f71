// Package profile selects the throttling profile for a run from its execution environment.
package profile

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind names a profile.
type Kind string

// Profile kinds.
const (
	Automated Kind = "automated"
	Local     Kind = "local"
)

// Environment variables consulted by Detect.
const (
	EnvForceLocal    = "FORCE_LOCAL_MODE"
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"
)

// Profile validation errors.
var (
	ErrInvalidConcurrency         = errors.New("max_concurrent_requests must be at least 1")
	ErrInvalidRetries             = errors.New("max_retries must be non-negative")
	ErrInvalidRetryDelay          = errors.New("base_retry_delay must be non-negative")
	ErrInvalidTimeout             = errors.New("request_timeout must be positive")
	ErrInvalidRequestDelay        = errors.New("min_request_delay must be non-negative and not exceed max_request_delay")
	ErrInvalidRateLimitMultiplier = errors.New("rate_limit_multiplier must be greater than 1 + jitter_fraction")
	ErrInvalidJitter              = errors.New("jitter_fraction must be in [0, 1)")
)

// Profile is the set of concurrency, timeout and retry parameters for a run.
// It is resolved once at start-up and passed by value afterwards.
type Profile struct {
	Kind                  Kind
	BaseRetryDelay        time.Duration
	RequestTimeout        time.Duration
	MinRequestDelay       time.Duration
	MaxRequestDelay       time.Duration
	RateLimitMultiplier   float64
	JitterFraction        float64
	MaxConcurrentRequests int
	MaxRetries            int
}

// Set holds the two candidate profiles.
type Set struct {
	Automated Profile
	Local     Profile
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// DefaultAutomated is the conservative profile for CI and shared infrastructure.
func DefaultAutomated() Profile {
	return Profile{
		Kind:                  Automated,
		MaxConcurrentRequests: 1,
		BaseRetryDelay:        20 * time.Second,
		MaxRetries:            5,
		RequestTimeout:        60 * time.Second,
		MinRequestDelay:       5 * time.Second,
		MaxRequestDelay:       12 * time.Second,
		RateLimitMultiplier:   3,
		JitterFraction:        0.25,
	}
}

// DefaultLocal is the permissive profile for development machines.
func DefaultLocal() Profile {
	return Profile{
		Kind:                  Local,
		MaxConcurrentRequests: 2,
		BaseRetryDelay:        5 * time.Second,
		MaxRetries:            3,
		RequestTimeout:        30 * time.Second,
		MinRequestDelay:       500 * time.Millisecond,
		MaxRequestDelay:       1500 * time.Millisecond,
		RateLimitMultiplier:   3,
		JitterFraction:        0.25,
	}
}

// Defaults returns the built-in profile set.
func Defaults() Set {
	return Set{
		Automated: DefaultAutomated(),
		Local:     DefaultLocal(),
	}
}

// Detect returns the profile kind implied by the environment.
// An explicit local override always wins; otherwise either automation
// indicator selects Automated.
func Detect(lookup LookupFunc) Kind {
	if truthy(lookup, EnvForceLocal) {
		return Local
	}

	if truthy(lookup, EnvCI) || truthy(lookup, EnvGitHubActions) {
		return Automated
	}

	return Local
}

// Resolve picks the profile from set that matches the environment.
func Resolve(lookup LookupFunc, set Set) Profile {
	if Detect(lookup) == Automated {
		p := set.Automated
		p.Kind = Automated

		return p
	}

	p := set.Local
	p.Kind = Local

	return p
}

// Validate checks the profile invariants the retry and scheduling code relies on.
func (p Profile) Validate() error {
	if p.MaxConcurrentRequests < 1 {
		return fmt.Errorf("%s: %w", p.Kind, ErrInvalidConcurrency)
	}

	if p.MaxRetries < 0 {
		return fmt.Errorf("%s: %w", p.Kind, ErrInvalidRetries)
	}

	if p.BaseRetryDelay < 0 {
		return fmt.Errorf("%s: %w", p.Kind, ErrInvalidRetryDelay)
	}

	if p.RequestTimeout <= 0 {
		return fmt.Errorf("%s: %w", p.Kind, ErrInvalidTimeout)
	}

	if p.MinRequestDelay < 0 || p.MinRequestDelay > p.MaxRequestDelay {
		return fmt.Errorf("%s: %w", p.Kind, ErrInvalidRequestDelay)
	}

	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		return fmt.Errorf("%s: %w", p.Kind, ErrInvalidJitter)
	}

	// A rate-limited delay with no jitter must still exceed an ordinary
	// delay with maximum jitter.
	if p.RateLimitMultiplier <= 1+p.JitterFraction {
		return fmt.Errorf("%s: %w", p.Kind, ErrInvalidRateLimitMultiplier)
	}

	return nil
}

// String returns a one-line description for logs.
func (p Profile) String() string {
	return fmt.Sprintf(
		"Profile{%s, concurrency: %d, retries: %d, base delay: %s, timeout: %s, stagger: %s-%s}",
		p.Kind,
		p.MaxConcurrentRequests,
		p.MaxRetries,
		p.BaseRetryDelay,
		p.RequestTimeout,
		p.MinRequestDelay,
		p.MaxRequestDelay,
	)
}

func truthy(lookup LookupFunc, key string) bool {
	val, ok := lookup(key)
	if !ok {
		return false
	}

	b, err := strconv.ParseBool(val)

	return err == nil && b
}
