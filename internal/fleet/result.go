package fleet

import (
	"encoding/json"
	"time"
)

// Status 子任务或设备的结果状态
type Status string

const (
	StatusUnchanged Status = "ok-unchanged"
	StatusChanged   Status = "ok-changed"
	StatusFailed    Status = "failed"
)

// OK 是否成功
func (s Status) OK() bool { return s == StatusUnchanged || s == StatusChanged }

// SubtaskResult 单个任务在单台设备上的结果
type SubtaskResult struct {
	Name     string        `json:"name"`
	Kind     TaskKind      `json:"kind"`
	Status   Status        `json:"status"`
	Output   string        `json:"output,omitempty"`
	Parsed   interface{}   `json:"parsed,omitempty"`
	Diff     string        `json:"diff,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}

// MarshalJSON 附带错误文本
func (r SubtaskResult) MarshalJSON() ([]byte, error) {
	type alias SubtaskResult
	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
		Fatal bool   `json:"fatal,omitempty"`
	}{alias: alias(r), Error: errString(r.Err), Fatal: IsFatal(r.Err)})
}

// DeviceResult 单台设备的结果；Subtasks 只包含已完成的任务，按执行顺序排列
type DeviceResult struct {
	Hostname   string          `json:"hostname"`
	Platform   string          `json:"platform"`
	Subtasks   []SubtaskResult `json:"subtasks"`
	Err        error           `json:"-"`
	Incomplete bool            `json:"incomplete,omitempty"`
	Started    time.Time       `json:"started"`
	Finished   time.Time       `json:"finished"`
}

// Status 设备状态：设备级致命错误或任一子任务失败为 failed；否则有变更为 changed
func (r DeviceResult) Status() Status {
	if r.Err != nil || r.Incomplete {
		return StatusFailed
	}
	changed := false
	for _, s := range r.Subtasks {
		switch s.Status {
		case StatusFailed:
			return StatusFailed
		case StatusChanged:
			changed = true
		}
	}
	if changed {
		return StatusChanged
	}
	return StatusUnchanged
}

// Duration 设备耗时
func (r DeviceResult) Duration() time.Duration {
	if r.Finished.IsZero() || r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// MarshalJSON 附带状态与错误文本
func (r DeviceResult) MarshalJSON() ([]byte, error) {
	type alias DeviceResult
	return json.Marshal(struct {
		alias
		Status Status `json:"status"`
		Error  string `json:"error,omitempty"`
	}{alias: alias(r), Status: r.Status(), Error: errString(r.Err)})
}

// FleetResult 一次运行的汇总；只包含被选中的设备
type FleetResult struct {
	RunID      string                   `json:"run_id"`
	Order      []string                 `json:"order"`
	Devices    map[string]*DeviceResult `json:"devices"`
	Selected   int                      `json:"selected"`
	Succeeded  int                      `json:"succeeded"`
	Changed    int                      `json:"changed"`
	Failed     int                      `json:"failed"`
	Incomplete int                      `json:"incomplete"`
	Started    time.Time                `json:"started"`
	Finished   time.Time                `json:"finished"`
}

// Results 按选择顺序返回设备结果
func (f *FleetResult) Results() []*DeviceResult {
	out := make([]*DeviceResult, 0, len(f.Order))
	for _, h := range f.Order {
		if r, ok := f.Devices[h]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Get 查询设备结果
func (f *FleetResult) Get(hostname string) (*DeviceResult, bool) {
	r, ok := f.Devices[hostname]
	return r, ok
}

// OK 没有失败设备
func (f *FleetResult) OK() bool { return f.Failed == 0 }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
