package fleet

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled 运行被取消
	ErrCancelled = errors.New("run cancelled")
	// ErrNotDispatched 设备未被调度执行
	ErrNotDispatched = errors.New("device not dispatched")
	// ErrUnknownHost 记录了不在本次选择中的设备
	ErrUnknownHost = errors.New("host not part of this run")
	// ErrDuplicateRecord 同一设备被记录两次
	ErrDuplicateRecord = errors.New("host already recorded")
)

// ConnectError 无法建立会话（不可达、认证失败、握手失败）
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect %s: %v", e.Host, e.Err) }

func (e *ConnectError) Unwrap() error { return e.Err }

// SessionError 会话中断或状态未知，该设备后续任务不再执行
type SessionError struct {
	Host string
	Op   string
	Err  error
}

func (e *SessionError) Error() string { return fmt.Sprintf("session %s %s: %v", e.Host, e.Op, e.Err) }

func (e *SessionError) Unwrap() error { return e.Err }

// CommandError 设备拒绝了命令，会话仍可用
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q rejected: %s", e.Command, e.Message)
}

// UnsupportedError 设备类别或驱动不支持该任务
type UnsupportedError struct {
	Host     string
	Platform string
	Task     TaskKind
	Reason   string
}

func (e *UnsupportedError) Error() string {
	msg := fmt.Sprintf("%s not supported on %s (platform %s)", e.Task, e.Host, e.Platform)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// DiffError 差异计算失败
type DiffError struct {
	Err error
}

func (e *DiffError) Error() string { return "diff: " + e.Err.Error() }

func (e *DiffError) Unwrap() error { return e.Err }

// RenderError 配置模板渲染失败
type RenderError struct {
	Host     string
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s for %s: %v", e.Template, e.Host, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// IsFatal 错误是否终止该设备的剩余任务；未识别的错误按致命处理
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce *CommandError
	var ue *UnsupportedError
	var de *DiffError
	switch {
	case errors.As(err, &ce), errors.As(err, &ue), errors.As(err, &de):
		return false
	}
	return true
}

// IsCancelled 是否由取消引起
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
