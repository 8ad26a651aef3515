// Package policy holds the recycle policy shared by the control loop and the
// operator surface.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/dreamsxin/memrecycle/types"
)

var (
	// ErrInvalidValue is returned when a configuration change is rejected
	ErrInvalidValue = errors.New("invalid policy value")
	// ErrPersistFailed is returned when a change was applied in memory but could not be saved
	ErrPersistFailed = errors.New("policy persist failed")
)

var validate = validator.New()

// Store persists policy fields across monitor restarts
type Store interface {
	Save(p types.Policy) error
}

// ChangeFunc is called after the policy changed
type ChangeFunc func(old, updated types.Policy)

// RecyclePolicy is the single live policy of a monitor
type RecyclePolicy struct {
	mu      sync.RWMutex
	current types.Policy

	saveMu sync.Mutex
	store  Store

	subMu       sync.Mutex
	subscribers []ChangeFunc

	logger zerolog.Logger
}

// New creates a policy from persisted or default values
func New(initial types.Policy, store Store, logger zerolog.Logger) (*RecyclePolicy, error) {
	if err := Validate(initial); err != nil {
		return nil, err
	}
	return &RecyclePolicy{
		current: initial,
		store:   store,
		logger:  logger.With().Str("component", "RecyclePolicy").Logger(),
	}, nil
}

// Validate checks the invariants of a policy value
func Validate(p types.Policy) error {
	p.ProcessName = strings.TrimSpace(p.ProcessName)
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s must satisfy %s (got %v)", ErrInvalidValue, fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}

// ShouldRecycle reports whether a sample warrants a recycle under p.
func ShouldRecycle(p types.Policy, sampleMB int64, force bool) bool {
	return force || sampleMB > p.MemoryThresholdMB
}

// ShouldRecycle evaluates the current threshold
func (rp *RecyclePolicy) ShouldRecycle(sampleMB int64, force bool) bool {
	return ShouldRecycle(rp.Snapshot(), sampleMB, force)
}

// Snapshot returns a copy of the current policy
func (rp *RecyclePolicy) Snapshot() types.Policy {
	rp.mu.RLock()
	defer rp.mu.RUnlock()
	return rp.current
}

// CheckInterval returns the current check interval
func (rp *RecyclePolicy) CheckInterval() time.Duration {
	return rp.Snapshot().CheckInterval()
}

// OnChange registers fn to run after every applied change
func (rp *RecyclePolicy) OnChange(fn ChangeFunc) {
	rp.subMu.Lock()
	defer rp.subMu.Unlock()
	rp.subscribers = append(rp.subscribers, fn)
}

// SetTargetProcess changes the monitored process name
func (rp *RecyclePolicy) SetTargetProcess(name string) error {
	name = strings.TrimSpace(name)
	return rp.apply(func(p *types.Policy) { p.ProcessName = name })
}

// SetCheckInterval changes the check interval in milliseconds
func (rp *RecyclePolicy) SetCheckInterval(ms int64) error {
	return rp.apply(func(p *types.Policy) { p.CheckIntervalMs = ms })
}

// SetMemoryThreshold changes the memory threshold in megabytes
func (rp *RecyclePolicy) SetMemoryThreshold(mb int64) error {
	return rp.apply(func(p *types.Policy) { p.MemoryThresholdMB = mb })
}

// Change applies a textual change to one field. value may be a choice label
// ("5 mins", "1 gb") or a raw number.
func (rp *RecyclePolicy) Change(field Field, value string) (types.Policy, error) {
	var err error
	switch field {
	case FieldProcess:
		err = rp.SetTargetProcess(value)
	case FieldInterval, FieldThreshold:
		var n int64
		n, err = ParseValue(field, value)
		if err != nil {
			return rp.Snapshot(), err
		}
		if field == FieldInterval {
			err = rp.SetCheckInterval(n)
		} else {
			err = rp.SetMemoryThreshold(n)
		}
	default:
		err = fmt.Errorf("%w: unknown field %q", ErrInvalidValue, field)
	}
	return rp.Snapshot(), err
}

// Save persists the current policy
func (rp *RecyclePolicy) Save() error {
	if rp.store == nil {
		return nil
	}

	rp.saveMu.Lock()
	defer rp.saveMu.Unlock()

	if err := rp.store.Save(rp.Snapshot()); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	return nil
}

func (rp *RecyclePolicy) apply(mutate func(p *types.Policy)) error {
	rp.mu.Lock()
	old := rp.current
	updated := old
	mutate(&updated)
	if err := Validate(updated); err != nil {
		rp.mu.Unlock()
		return err
	}
	rp.current = updated
	rp.mu.Unlock()

	if old == updated {
		return nil
	}

	rp.logger.Info().
		Str("process", updated.ProcessName).
		Int64("check_interval_ms", updated.CheckIntervalMs).
		Int64("memory_threshold_mb", updated.MemoryThresholdMB).
		Msg("Policy changed")

	saveErr := rp.Save()
	if saveErr != nil {
		rp.logger.Error().Err(saveErr).Msg("Failed to persist policy, keeping in-memory values")
	}

	rp.subMu.Lock()
	subs := append([]ChangeFunc(nil), rp.subscribers...)
	rp.subMu.Unlock()
	for _, fn := range subs {
		fn(old, updated)
	}

	return saveErr
}
