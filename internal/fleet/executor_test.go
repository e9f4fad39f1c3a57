package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/filter"
	"github.com/netfleetpro/netfleet/internal/inventory"
)

func TestSiteFilterWithConnectFailure(t *testing.T) {
	devices := []inventory.Device{
		dev("A", "sfo", "ios", inventory.ClassConfigCLI),
		dev("B", "sfo", "eos", inventory.ClassConfigAPI),
		dev("C", "nyc", "ios", inventory.ClassConfigCLI),
	}
	selected := filter.Select(devices, filter.BySite("sfo"))
	require.Len(t, selected, 2)

	drv := newFakeDriver(map[string]*fakeDevice{
		"B": {connectErr: errors.New("connection refused")},
	})
	res := NewExecutor(drv, staticCreds{}).Run(context.Background(), selected, ExecCommand{Command: "show version"})

	assert.Equal(t, []string{"A", "B"}, res.Order)
	_, hasC := res.Get("C")
	assert.False(t, hasC, "未选中的设备不应出现在结果中")

	a, _ := res.Get("A")
	assert.Equal(t, StatusUnchanged, a.Status())
	require.Len(t, a.Subtasks, 1)
	assert.Equal(t, "output of show version", a.Subtasks[0].Output)

	b, _ := res.Get("B")
	assert.Equal(t, StatusFailed, b.Status())
	assert.Empty(t, b.Subtasks)
	var ce *ConnectError
	assert.True(t, errors.As(b.Err, &ce))

	assert.Equal(t, 2, res.Selected)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Incomplete)
	assert.False(t, res.OK())
}

func TestNonFatalFailureContinues(t *testing.T) {
	drv := newFakeDriver(map[string]*fakeDevice{
		"r1": {rejected: map[string]bool{"cmd1": true}},
	})
	res := NewExecutor(drv, staticCreds{}).Run(context.Background(),
		[]inventory.Device{dev("r1", "x", "ios", inventory.ClassConfigCLI)},
		ConfigApply{Lines: []string{"cmd1"}}, ConfigApply{Lines: []string{"cmd2"}})

	r, _ := res.Get("r1")
	require.Len(t, r.Subtasks, 2)
	assert.Equal(t, StatusFailed, r.Subtasks[0].Status)
	assert.False(t, IsFatal(r.Subtasks[0].Err))
	assert.Equal(t, StatusChanged, r.Subtasks[1].Status, "cmd2 的结果仍应保留且成功")
	assert.Equal(t, StatusFailed, r.Status(), "任一子任务失败则设备失败")
	assert.NoError(t, r.Err)
	assert.Equal(t, []string{"cmd1", "cmd2"}, drv.sentTo("r1"))
}

func TestFatalFailureAbortsDevice(t *testing.T) {
	drv := newFakeDriver(map[string]*fakeDevice{
		"r1": {broken: map[string]bool{"two": true}},
	})
	devices := []inventory.Device{dev("r1", "x", "ios", inventory.ClassConfigCLI), dev("r2", "x", "ios", inventory.ClassConfigCLI)}
	res := NewExecutor(drv, staticCreds{}).Run(context.Background(), devices, ExecCommands(false, "one", "two", "three")...)

	r1, _ := res.Get("r1")
	require.Len(t, r1.Subtasks, 2, "致命错误之前的结果保留")
	var se *SessionError
	assert.True(t, errors.As(r1.Err, &se))
	assert.Equal(t, []string{"one", "two"}, drv.sentTo("r1"), "致命错误后不再发送命令")

	r2, _ := res.Get("r2")
	assert.Equal(t, StatusUnchanged, r2.Status(), "兄弟设备不受影响")
	assert.Len(t, r2.Subtasks, 3)
	assert.Equal(t, 1, drv.closed["r1"], "失败后仍应关闭会话")
}

func TestResolutionFailureIsolated(t *testing.T) {
	drv := newFakeDriver(nil)
	devices := []inventory.Device{dev("r1", "x", "ios", inventory.ClassConfigCLI), dev("r2", "x", "ios", inventory.ClassConfigCLI)}
	res := NewExecutor(drv, staticCreds{fail: map[string]bool{"r1": true}}).Run(context.Background(), devices, ExecCommand{Command: "show clock"})

	r1, _ := res.Get("r1")
	var re *credential.ResolutionError
	assert.True(t, errors.As(r1.Err, &re))
	assert.Empty(t, drv.sentTo("r1"), "凭据失败时不连接设备")

	r2, _ := res.Get("r2")
	assert.Equal(t, StatusUnchanged, r2.Status())
}

func TestCancellationKeepsCompletedSubtasks(t *testing.T) {
	drv := newFakeDriver(map[string]*fakeDevice{
		"r1": {block: map[string]bool{"hang": true}},
	})
	devices := []inventory.Device{dev("r1", "x", "ios", inventory.ClassConfigCLI), dev("r2", "x", "ios", inventory.ClassConfigCLI)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan *FleetResult, 1)
	go func() {
		done <- NewExecutor(drv, staticCreds{}, WithWorkers(1)).Run(ctx, devices, ExecCommands(false, "s1", "s2", "hang", "s4")...)
	}()

	select {
	case <-drv.blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("第三个任务未开始执行")
	}
	cancel()

	var res *FleetResult
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("取消后运行未结束")
	}

	r1, _ := res.Get("r1")
	assert.Len(t, r1.Subtasks, 2, "只包含取消前完成的 k 个子任务")
	assert.True(t, r1.Incomplete)
	assert.True(t, errors.Is(r1.Err, ErrCancelled))
	assert.Equal(t, 1, drv.closed["r1"])

	r2, ok := res.Get("r2")
	require.True(t, ok, "未开始的设备也必须出现在结果中")
	assert.True(t, r2.Incomplete)
	assert.Empty(t, r2.Subtasks)
	assert.Equal(t, StatusFailed, r2.Status())

	assert.Equal(t, 2, res.Incomplete)
	assert.Equal(t, 2, res.Failed)
}

func TestAlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	drv := newFakeDriver(nil)
	res := NewExecutor(drv, staticCreds{}).Run(ctx, []inventory.Device{dev("r1", "x", "ios", inventory.ClassConfigCLI)}, ExecCommand{Command: "x"})
	r1, _ := res.Get("r1")
	assert.True(t, r1.Incomplete)
	assert.Empty(t, drv.sentTo("r1"))
}

func TestConcurrencyBound(t *testing.T) {
	drv := newFakeDriver(nil)
	drv.delay = 20 * time.Millisecond
	var devices []inventory.Device
	for i := 0; i < 12; i++ {
		devices = append(devices, dev(fmt.Sprintf("r%02d", i), "x", "ios", inventory.ClassConfigCLI))
	}
	res := NewExecutor(drv, staticCreds{}, WithWorkers(3)).Run(context.Background(), devices, ExecCommands(false, "a", "b")...)

	assert.Equal(t, 12, res.Succeeded)
	assert.LessOrEqual(t, drv.maxActive, int32(3), "同时打开的会话数不得超过并发上限")
	assert.Greater(t, drv.maxActive, int32(0))
	for _, r := range res.Results() {
		assert.Equal(t, []string{"a", "b"}, drv.sentTo(r.Hostname), "设备内任务保持顺序")
	}
}

func TestConfigOnReadOnlyClassIsNonFatal(t *testing.T) {
	drv := newFakeDriver(nil)
	res := NewExecutor(drv, staticCreds{}).Run(context.Background(),
		[]inventory.Device{dev("wlc1", "x", "cisco_wlc", inventory.ClassController)},
		ConfigApply{Lines: []string{"sysname x"}}, ExecCommand{Command: "show sysinfo"})

	r, _ := res.Get("wlc1")
	require.Len(t, r.Subtasks, 2)
	var ue *UnsupportedError
	assert.True(t, errors.As(r.Subtasks[0].Err, &ue))
	assert.Equal(t, StatusUnchanged, r.Subtasks[1].Status)
	assert.Equal(t, []string{"show sysinfo"}, drv.sentTo("wlc1"))
}

func TestStructuredOutput(t *testing.T) {
	drv := newFakeDriver(nil)
	res := NewExecutor(drv, staticCreds{}).Run(context.Background(),
		[]inventory.Device{dev("sw1", "x", "eos", inventory.ClassConfigAPI)},
		ExecCommand{Command: "show version", Structured: true})
	r, _ := res.Get("sw1")
	assert.Equal(t, map[string]interface{}{"command": "show version"}, r.Subtasks[0].Parsed)
}

func TestEmptySelection(t *testing.T) {
	res := NewExecutor(newFakeDriver(nil), staticCreds{}).Run(context.Background(), nil, ExecCommand{Command: "x"})
	assert.Equal(t, 0, res.Selected)
	assert.Empty(t, res.Results())
	assert.True(t, res.OK())
	assert.NotEmpty(t, res.RunID)
}

func TestObserverSeesEveryDevice(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]Status{}
	obs := ObserverFunc(func(runID string, r DeviceResult) {
		mu.Lock()
		seen[r.Hostname] = r.Status()
		mu.Unlock()
	})
	drv := newFakeDriver(map[string]*fakeDevice{"r2": {connectErr: errors.New("timeout")}})
	devices := []inventory.Device{dev("r1", "x", "ios", inventory.ClassConfigCLI), dev("r2", "x", "ios", inventory.ClassConfigCLI)}
	res := NewExecutor(drv, staticCreds{}, WithObserver(obs)).Execute(context.Background(), Job{ID: "run-42", Devices: devices, Plan: StaticPlan{ExecCommand{Command: "x"}}})

	assert.Equal(t, "run-42", res.RunID)
	assert.Equal(t, map[string]Status{"r1": StatusUnchanged, "r2": StatusFailed}, seen)
}

func TestDuplicateDevicesDispatchedOnce(t *testing.T) {
	drv := newFakeDriver(nil)
	d := dev("r1", "x", "ios", inventory.ClassConfigCLI)
	res := NewExecutor(drv, staticCreds{}).Run(context.Background(), []inventory.Device{d, d}, ExecCommand{Command: "x"})
	assert.Equal(t, 1, res.Selected)
	assert.Equal(t, []string{"x"}, drv.sentTo("r1"))
}
