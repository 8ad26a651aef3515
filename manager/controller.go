package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamsxin/memrecycle/monitor"
	"github.com/dreamsxin/memrecycle/policy"
	"github.com/dreamsxin/memrecycle/types"
	"github.com/dreamsxin/memrecycle/util"
)

// State 控制器当前所处的阶段
type State int32

const (
	StateIdle State = iota
	StateSampling
	StateEvaluating
	StateRecycling
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateSampling:
		return "sampling"
	case StateEvaluating:
		return "evaluating"
	case StateRecycling:
		return "recycling"
	default:
		return "idle"
	}
}

// ProcessOps 回收一个进程所需的操作
type ProcessOps interface {
	Capture(ctx context.Context, h *types.ProcessHandle) (types.LaunchSpec, error)
	Terminate(ctx context.Context, h *types.ProcessHandle) (TerminateResult, error)
	Launch(spec types.LaunchSpec) (int, error)
}

// HostProbe 提供主机内存信息
type HostProbe interface {
	Memory(ctx context.Context) (types.HostMemory, error)
}

// Notifier 接收回收事件
type Notifier interface {
	Notify(ctx context.Context, event *types.RecycleEvent) error
}

// Controller 检查-回收状态机，带单飞保护和定时调度
type Controller struct {
	policy   *policy.RecyclePolicy
	monitor  monitor.Monitor
	ops      ProcessOps
	host     HostProbe
	notifier Notifier
	logger   zerolog.Logger

	busy      atomic.Bool
	state     atomic.Int32
	sample    atomic.Pointer[types.MemorySample]
	lastEvent atomic.Pointer[types.RecycleEvent]

	// 周期使用独立的上下文，调用方放弃等待时周期仍会完成
	cycleCtx context.Context
	inflight sync.WaitGroup

	reschedule chan struct{}
	runMu      sync.Mutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Option 配置可选的依赖
type Option func(*Controller)

// WithHostProbe 在回收事件中附加主机内存信息
func WithHostProbe(h HostProbe) Option {
	return func(c *Controller) { c.host = h }
}

// WithNotifier 设置回收事件通知器
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// NewController 创建控制器
func NewController(pol *policy.RecyclePolicy, mon monitor.Monitor, ops ProcessOps, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		policy:     pol,
		monitor:    mon,
		ops:        ops,
		logger:     logger.With().Str("component", "RecycleController").Logger(),
		cycleCtx:   context.Background(),
		reschedule: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	p := pol.Snapshot()
	c.sample.Store(&types.MemorySample{ProcessName: p.ProcessName})

	pol.OnChange(func(old, updated types.Policy) {
		if old.CheckIntervalMs != updated.CheckIntervalMs {
			c.signalReschedule()
		}
		if old.ProcessName != updated.ProcessName {
			c.resetDisplay()
		}
	})

	return c
}

// Policy 返回控制器使用的策略
func (c *Controller) Policy() *policy.RecyclePolicy {
	return c.policy
}

// State 返回当前状态
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Busy 是否有周期正在运行
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Trigger 运行一次检查周期。已有周期在运行时立即返回 OutcomeSkipped。
// ctx 只控制等待结果的时间，不会中断周期本身。
func (c *Controller) Trigger(ctx context.Context, kind types.TriggerKind) (types.CycleResult, error) {
	done := c.begin(kind)
	if done == nil {
		c.logger.Debug().Str("trigger", kind.String()).Msg("Cycle already running, trigger dropped")
		return types.CycleResult{
			Outcome: types.OutcomeSkipped,
			Trigger: kind,
			Policy:  c.policy.Snapshot(),
		}, nil
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return types.CycleResult{Trigger: kind, Policy: c.policy.Snapshot()}, ctx.Err()
	}
}

// ChangePolicy 修改一个策略字段
func (c *Controller) ChangePolicy(field policy.Field, value string) (types.Policy, error) {
	return c.policy.Change(field, value)
}

// Display 返回当前采样、策略和最近一次回收事件
func (c *Controller) Display() types.Display {
	s := c.sample.Load()
	return types.Display{
		ProcessName: s.ProcessName,
		SampleMB:    s.ValueMB,
		Running:     s.Running,
		SampledAt:   s.SampledAt,
		Policy:      c.policy.Snapshot(),
		LastEvent:   c.lastEvent.Load(),
		Busy:        c.busy.Load(),
	}
}

// begin claims the busy flag and starts a cycle, returning nil if one is already running
func (c *Controller) begin(kind types.TriggerKind) <-chan types.CycleResult {
	if !c.busy.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan types.CycleResult, 1)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		res := c.runCycle(c.cycleCtx, kind)

		c.setState(StateIdle)
		c.busy.Store(false)
		done <- res
	}()
	return done
}

func (c *Controller) runCycle(ctx context.Context, kind types.TriggerKind) (res types.CycleResult) {
	p := c.policy.Snapshot()
	res = types.CycleResult{Trigger: kind, Policy: p}
	log := c.logger.With().Str("process", p.ProcessName).Str("trigger", kind.String()).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Cycle panicked")
			res.Outcome = types.OutcomeFailed
		}
	}()

	c.setState(StateSampling)
	handle, err := c.monitor.Locate(ctx, p.ProcessName)
	if err != nil {
		if !monitor.IsNotRunning(err) {
			log.Warn().Err(err).Msg("Failed to locate process")
		}
		res.Sample = c.publishNotRunning(p.ProcessName)
		res.Outcome = types.OutcomeNotRunning
		return res
	}

	// 同一个句柄，不再按名称重新查找
	mb, err := c.monitor.Sample(ctx, handle)
	if err != nil {
		log.Debug().Err(err).Int32("pid", handle.PID).Msg("Process exited before sampling")
		res.Sample = c.publishNotRunning(p.ProcessName)
		res.Outcome = types.OutcomeNotRunning
		return res
	}

	sample := types.MemorySample{
		ProcessName: p.ProcessName,
		ValueMB:     mb,
		Running:     true,
		SampledAt:   time.Now(),
	}
	c.sample.Store(&sample)
	res.Sample = sample
	log.Debug().Int32("pid", handle.PID).Int64("sample_mb", mb).Msg(sample.String())

	c.setState(StateEvaluating)
	if !policy.ShouldRecycle(p, mb, kind.Force()) {
		res.Outcome = types.OutcomeBelowThreshold
		return res
	}

	c.setState(StateRecycling)
	res.Event = c.recycle(ctx, log, p, handle, sample, kind)
	if res.Event.Failed() {
		res.Outcome = types.OutcomeFailed
	} else {
		res.Outcome = types.OutcomeRecycled
	}
	return res
}

func (c *Controller) recycle(ctx context.Context, log zerolog.Logger, p types.Policy, h *types.ProcessHandle,
	sample types.MemorySample, kind types.TriggerKind) *types.RecycleEvent {
	event := &types.RecycleEvent{
		ID:          util.NewEventID(),
		ProcessName: p.ProcessName,
		PID:         h.PID,
		Trigger:     kind,
		SampleMB:    sample.ValueMB,
		ThresholdMB: p.MemoryThresholdMB,
		StartedAt:   time.Now(),
	}

	if c.host != nil {
		if hm, err := c.host.Memory(ctx); err == nil {
			event.Host = hm
		} else {
			log.Debug().Err(err).Msg("Host memory unavailable")
		}
	}

	log.Info().
		Str("event_id", event.ID).
		Int32("pid", h.PID).
		Int64("sample_mb", sample.ValueMB).
		Int64("threshold_mb", p.MemoryThresholdMB).
		Msg("Recycling process")

	// 必须在终止之前读取启动信息
	spec, err := c.ops.Capture(ctx, h)
	if err != nil {
		return c.finish(ctx, log, event, err)
	}
	event.ExePath = spec.Path

	term, err := c.ops.Terminate(ctx, h)
	event.Forced = term.Forced
	if err != nil {
		return c.finish(ctx, log, event, fmt.Errorf("terminate pid %d: %w", h.PID, err))
	}

	// 旧实例已经退出
	c.publishNotRunning(p.ProcessName)

	pid, err := c.ops.Launch(spec)
	if err != nil {
		return c.finish(ctx, log, event, err)
	}
	event.NewPID = pid

	return c.finish(ctx, log, event, nil)
}

func (c *Controller) finish(ctx context.Context, log zerolog.Logger, event *types.RecycleEvent, err error) *types.RecycleEvent {
	event.FinishedAt = time.Now()

	if err != nil {
		event.Err = err.Error()
		log.Error().
			Err(err).
			Str("event_id", event.ID).
			Bool("forced", event.Forced).
			Msg("Recycle failed")
	} else {
		log.Info().
			Str("event_id", event.ID).
			Int("new_pid", event.NewPID).
			Bool("forced", event.Forced).
			Dur("took", event.Duration()).
			Msg("Process recycled")
	}

	c.lastEvent.Store(event)

	if c.notifier != nil {
		if nerr := c.notifier.Notify(ctx, event); nerr != nil {
			log.Warn().Err(nerr).Str("event_id", event.ID).Msg("Failed to send notification")
		}
	}
	return event
}

// resetDisplay drops the sample of the previous target. Callbacks of concurrent
// changes may run out of order, so it stores until the display agrees with the policy.
func (c *Controller) resetDisplay() {
	for {
		name := c.policy.Snapshot().ProcessName
		c.sample.Store(&types.MemorySample{ProcessName: name})
		if c.policy.Snapshot().ProcessName == name {
			return
		}
	}
}

func (c *Controller) publishNotRunning(name string) types.MemorySample {
	s := types.MemorySample{ProcessName: name, SampledAt: time.Now()}
	c.sample.Store(&s)
	return s
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}
