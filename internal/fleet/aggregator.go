package fleet

import (
	"fmt"
	"sync"
	"time"

	"github.com/netfleetpro/netfleet/internal/inventory"
)

// Observer 每记录一台设备结果时收到通知
type Observer interface {
	OnDeviceResult(runID string, r DeviceResult)
}

// ObserverFunc 函数形式的 Observer
type ObserverFunc func(runID string, r DeviceResult)

// OnDeviceResult 调用函数
func (f ObserverFunc) OnDeviceResult(runID string, r DeviceResult) { f(runID, r) }

// Aggregator 并发安全的结果汇总；Record 是唯一的修改入口
type Aggregator struct {
	mu        sync.Mutex
	runID     string
	order     []string
	expected  map[string]bool
	platforms map[string]string
	results   map[string]*DeviceResult
	observers []Observer
	started   time.Time
}

// NewAggregator 以本次选中的主机名创建汇总器
func NewAggregator(runID string, hostnames []string, observers ...Observer) *Aggregator {
	a := &Aggregator{
		runID:     runID,
		expected:  make(map[string]bool, len(hostnames)),
		platforms: make(map[string]string, len(hostnames)),
		results:   make(map[string]*DeviceResult, len(hostnames)),
		observers: observers,
		started:   time.Now(),
	}
	for _, h := range hostnames {
		if a.expected[h] {
			continue
		}
		a.expected[h] = true
		a.order = append(a.order, h)
	}
	return a
}

// NewDeviceAggregator 以选中的设备创建汇总器，未调度设备的结果带上平台
func NewDeviceAggregator(runID string, devices []inventory.Device, observers ...Observer) *Aggregator {
	hostnames := make([]string, 0, len(devices))
	for _, d := range devices {
		hostnames = append(hostnames, d.Hostname)
	}
	a := NewAggregator(runID, hostnames, observers...)
	for _, d := range devices {
		if _, ok := a.platforms[d.Hostname]; !ok {
			a.platforms[d.Hostname] = d.Platform
		}
	}
	return a
}

// Record 记录一台设备的结果
func (a *Aggregator) Record(r DeviceResult) error {
	a.mu.Lock()
	if !a.expected[r.Hostname] {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHost, r.Hostname)
	}
	if _, dup := a.results[r.Hostname]; dup {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateRecord, r.Hostname)
	}
	rec := r
	a.results[r.Hostname] = &rec
	observers := a.observers
	a.mu.Unlock()

	for _, o := range observers {
		o.OnDeviceResult(a.runID, r)
	}
	return nil
}

// Finalize 生成汇总；未记录的设备按未调度处理（failed + incomplete）
func (a *Aggregator) Finalize() *FleetResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	res := &FleetResult{
		RunID:    a.runID,
		Order:    append([]string(nil), a.order...),
		Devices:  make(map[string]*DeviceResult, len(a.order)),
		Selected: len(a.order),
		Started:  a.started,
		Finished: now,
	}
	for _, h := range a.order {
		r, ok := a.results[h]
		if !ok {
			r = &DeviceResult{Hostname: h, Platform: a.platforms[h], Err: ErrNotDispatched, Incomplete: true, Finished: now}
		} else {
			cp := *r
			cp.Subtasks = append([]SubtaskResult(nil), r.Subtasks...)
			r = &cp
		}
		res.Devices[h] = r
		switch r.Status() {
		case StatusFailed:
			res.Failed++
		case StatusChanged:
			res.Changed++
			res.Succeeded++
		default:
			res.Succeeded++
		}
		if r.Incomplete {
			res.Incomplete++
		}
	}
	return res
}
