package client

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"strangerchat/backend/internal/config"
)

// Action names a throttled client action.
type Action string

const (
	ActionSearch Action = "search"
	ActionLeave  Action = "leave"
)

var ErrRateLimited = errors.New("rate limited")

// DefaultCooldowns are the per-action windows.
var DefaultCooldowns = map[Action]time.Duration{
	ActionSearch: config.SearchCooldown,
	ActionLeave:  config.LeaveCooldown,
}

// RateLimitedError reports how long the caller still has to wait.
type RateLimitedError struct {
	Action    Action
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("please wait %s before %s again", FormatCooldown(e.Remaining), e.Action)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// Result is the outcome of a cooldown check.
type Result struct {
	Allowed   bool
	Remaining time.Duration
}

// RateLimiter enforces per-action cooldowns from timestamps kept in the
// client's KV. It only guards an honest client.
type RateLimiter struct {
	kv        KV
	cooldowns map[Action]time.Duration
	now       func() time.Time
}

func NewRateLimiter(kv KV) *RateLimiter {
	return &RateLimiter{kv: kv, cooldowns: DefaultCooldowns, now: time.Now}
}

func rateLimitKey(action Action) string {
	return "ratelimit:" + string(action)
}

// Check reports whether action may run now. Unknown actions are always allowed.
func (r *RateLimiter) Check(action Action) (Result, error) {
	cooldown, ok := r.cooldowns[action]
	if !ok {
		return Result{Allowed: true}, nil
	}
	raw, ok, err := r.kv.Get(rateLimitKey(action))
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Allowed: true}, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Corrupt stamps are ignored.
		return Result{Allowed: true}, nil
	}

	// Stamps are stored at millisecond precision; compare at the same precision.
	elapsed := r.now().Truncate(time.Millisecond).Sub(time.UnixMilli(ms))
	if elapsed < 0 || elapsed >= cooldown {
		return Result{Allowed: true}, nil
	}
	return Result{Allowed: false, Remaining: cooldown - elapsed}, nil
}

// Record stamps action with the current time.
func (r *RateLimiter) Record(action Action) error {
	return r.kv.Set(rateLimitKey(action), strconv.FormatInt(r.now().UnixMilli(), 10))
}

// Guard returns a *RateLimitedError when action is cooling down.
func (r *RateLimiter) Guard(action Action) error {
	res, err := r.Check(action)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &RateLimitedError{Action: action, Remaining: res.Remaining}
	}
	return nil
}

// FormatCooldown renders a remaining wait rounded up to whole seconds.
func FormatCooldown(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	if secs%60 == 0 {
		return fmt.Sprintf("%dm", secs/60)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
