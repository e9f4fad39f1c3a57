package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/netfleetpro/netfleet/internal/inventory"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

const (
	defaultWorkers     = 20
	defaultGracePeriod = 5 * time.Second
)

// Executor 在设备集合上并发执行任务；同一设备上的任务串行执行
type Executor struct {
	driver    Driver
	creds     CredentialResolver
	workers   int
	grace     time.Duration
	observers []Observer
}

// Option 执行器选项
type Option func(*Executor)

// WithWorkers 同时处理的设备数上限
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithGracePeriod 关闭会话的等待上限
func WithGracePeriod(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithObserver 注册结果观察者
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// NewExecutor 创建执行器
func NewExecutor(driver Driver, creds CredentialResolver, opts ...Option) *Executor {
	e := &Executor{
		driver:  driver,
		creds:   creds,
		workers: defaultWorkers,
		grace:   defaultGracePeriod,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Workers 并发上限
func (e *Executor) Workers() int { return e.workers }

// Job 一次运行
type Job struct {
	ID      string
	Devices []inventory.Device
	Plan    Plan
}

// NewRunID 生成运行 ID
func NewRunID() string {
	return uuid.NewString()
}

// Run 对设备执行相同的任务列表
func (e *Executor) Run(ctx context.Context, devices []inventory.Device, tasks ...Task) *FleetResult {
	return e.Execute(ctx, Job{Devices: devices, Plan: StaticPlan(tasks)})
}

// Execute 执行一次运行；单台设备的失败不影响其他设备。
// ctx 取消后不再调度新设备，在途设备在当前任务结束后停止。
func (e *Executor) Execute(ctx context.Context, job Job) *FleetResult {
	if job.ID == "" {
		job.ID = NewRunID()
	}
	if job.Plan == nil {
		job.Plan = StaticPlan(nil)
	}

	devices := make([]inventory.Device, 0, len(job.Devices))
	seen := make(map[string]bool, len(job.Devices))
	for _, d := range job.Devices {
		if seen[d.Hostname] {
			continue
		}
		seen[d.Hostname] = true
		devices = append(devices, d)
	}

	agg := NewDeviceAggregator(job.ID, devices, e.observers...)
	if len(devices) == 0 {
		logger.WithField("run_id", job.ID).Info("No devices selected, nothing to do")
		return agg.Finalize()
	}

	logger.WithFields(logrus.Fields{
		"run_id":  job.ID,
		"devices": len(devices),
		"workers": e.workers,
	}).Info("Run started")

	var g errgroup.Group
	g.SetLimit(e.workers)
	for _, d := range devices {
		d := d
		if ctx.Err() != nil {
			e.record(agg, job.ID, cancelledResult(d, time.Now()))
			continue
		}
		g.Go(func() error {
			e.record(agg, job.ID, e.runDevice(ctx, job.ID, d, job.Plan))
			return nil
		})
	}
	_ = g.Wait()

	res := agg.Finalize()
	logger.WithFields(logrus.Fields{
		"run_id":     job.ID,
		"selected":   res.Selected,
		"succeeded":  res.Succeeded,
		"changed":    res.Changed,
		"failed":     res.Failed,
		"incomplete": res.Incomplete,
		"duration":   res.Finished.Sub(res.Started).String(),
	}).Info("Run finished")
	return res
}

func (e *Executor) record(agg *Aggregator, runID string, r DeviceResult) {
	if err := agg.Record(r); err != nil {
		logger.ForDevice(runID, r.Hostname).WithError(err).Error("Failed to record device result")
	}
}

func cancelledResult(d inventory.Device, now time.Time) DeviceResult {
	return DeviceResult{
		Hostname:   d.Hostname,
		Platform:   d.Platform,
		Err:        ErrCancelled,
		Incomplete: true,
		Started:    now,
		Finished:   now,
	}
}

// runDevice 单台设备：解析凭据 -> 生成任务 -> 建立会话 -> 串行执行 -> 关闭会话
func (e *Executor) runDevice(ctx context.Context, runID string, d inventory.Device, plan Plan) (res DeviceResult) {
	log := logger.ForDevice(runID, d.Hostname)
	res = DeviceResult{Hostname: d.Hostname, Platform: d.Platform, Started: time.Now()}
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("Device worker panic: %v", p)
			res.Err = &SessionError{Host: d.Hostname, Op: "worker", Err: fmt.Errorf("panic: %v", p)}
		}
		res.Finished = time.Now()
		log.WithFields(logrus.Fields{
			"status":   res.Status(),
			"subtasks": len(res.Subtasks),
			"duration": res.Duration().String(),
		}).Info("Device finished")
	}()

	if ctx.Err() != nil {
		return cancelledResult(d, res.Started)
	}

	creds, err := e.creds.Resolve(d)
	if err != nil {
		log.WithError(err).Warn("Credential resolution failed")
		res.Err = err
		return res
	}

	tasks, err := plan.TasksFor(ctx, d, creds)
	if err != nil {
		log.WithError(err).Warn("Task planning failed")
		res.Err = err
		return res
	}

	sess, err := e.driver.Open(ctx, d, creds)
	if err != nil {
		if ctx.Err() != nil {
			res.Err = ErrCancelled
			res.Incomplete = true
			return res
		}
		var ce *ConnectError
		if !errors.As(err, &ce) {
			err = &ConnectError{Host: d.Hostname, Err: err}
		}
		log.WithError(err).Warn("Connect failed")
		res.Err = err
		return res
	}
	defer e.closeSession(sess, log)

	for _, t := range tasks {
		if ctx.Err() != nil {
			res.Err = ErrCancelled
			res.Incomplete = true
			return res
		}
		sub := e.runTask(ctx, d, sess, t)
		// 取消导致失败的在途任务不计入结果
		if sub.Err != nil && ctx.Err() != nil {
			res.Err = ErrCancelled
			res.Incomplete = true
			return res
		}
		res.Subtasks = append(res.Subtasks, sub)
		if sub.Err != nil {
			entry := log.WithFields(logrus.Fields{"task": sub.Name, "kind": sub.Kind}).WithError(sub.Err)
			if IsFatal(sub.Err) {
				entry.Warn("Task failed, aborting device")
				res.Err = sub.Err
				return res
			}
			entry.Info("Task failed, continuing")
		}
	}
	return res
}

func (e *Executor) runTask(ctx context.Context, d inventory.Device, sess Session, t Task) SubtaskResult {
	start := time.Now()
	sub := SubtaskResult{Name: t.Name(), Kind: t.Kind()}
	finish := func(status Status, err error) SubtaskResult {
		sub.Status = status
		sub.Err = err
		sub.Duration = time.Since(start)
		return sub
	}

	switch tt := t.(type) {
	case ExecCommand:
		out, err := sess.Send(ctx, tt.Command, tt.Structured)
		sub.Output = out.Raw
		sub.Parsed = out.Parsed
		if err != nil {
			return finish(StatusFailed, err)
		}
		return finish(StatusUnchanged, nil)

	case ConfigApply:
		cs, err := configSession(d, sess, t.Kind())
		if err != nil {
			return finish(StatusFailed, err)
		}
		if len(tt.Lines) == 0 {
			return finish(StatusUnchanged, nil)
		}
		out, err := cs.ApplyConfig(ctx, tt.Lines)
		sub.Output = out
		if err != nil {
			return finish(StatusFailed, err)
		}
		return finish(StatusChanged, nil)

	case ConfigReplace:
		cs, err := configSession(d, sess, t.Kind())
		if err != nil {
			return finish(StatusFailed, err)
		}
		current, err := cs.RunningConfig(ctx)
		if err != nil {
			return finish(StatusFailed, err)
		}
		diff, err := Diff(current, tt.Config)
		if err != nil {
			return finish(StatusFailed, &DiffError{Err: err})
		}
		sub.Diff = diff
		if tt.DryRun || diff == "" {
			return finish(StatusUnchanged, nil)
		}
		if err := cs.ReplaceConfig(ctx, tt.Config); err != nil {
			return finish(StatusFailed, err)
		}
		return finish(StatusChanged, nil)
	}

	return finish(StatusFailed, &UnsupportedError{Host: d.Hostname, Platform: d.Platform, Task: t.Kind(), Reason: fmt.Sprintf("unknown task type %T", t)})
}

// configSession 校验设备类别与会话能力
func configSession(d inventory.Device, sess Session, kind TaskKind) (ConfigSession, error) {
	if !d.Class.CanConfigure() {
		return nil, &UnsupportedError{Host: d.Hostname, Platform: d.Platform, Task: kind, Reason: "device class " + d.Class.String() + " is read-only"}
	}
	cs, ok := sess.(ConfigSession)
	if !ok {
		return nil, &UnsupportedError{Host: d.Hostname, Platform: d.Platform, Task: kind, Reason: "driver session cannot configure"}
	}
	return cs, nil
}

// closeSession 关闭会话，超过宽限期则放弃等待
func (e *Executor) closeSession(sess Session, log *logrus.Entry) {
	done := make(chan error, 1)
	go func() { done <- sess.Close() }()
	timer := time.NewTimer(e.grace)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			log.WithError(err).Debug("Session close returned error")
		}
	case <-timer.C:
		log.Warn("Session close exceeded grace period")
	}
}
