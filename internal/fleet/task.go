// Package fleet 并发执行设备任务、汇总结果，以及配置整体替换流程
package fleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/inventory"
)

// TaskKind 任务种类
type TaskKind string

const (
	KindExec          TaskKind = "exec"
	KindConfigApply   TaskKind = "config_apply"
	KindConfigReplace TaskKind = "config_replace"
)

// Task 与设备无关的不可变任务描述
type Task interface {
	Kind() TaskKind
	Name() string
}

// ExecCommand 执行只读命令；Structured 要求返回结构化结果
type ExecCommand struct {
	Command    string
	Structured bool
}

func (ExecCommand) Kind() TaskKind { return KindExec }

func (t ExecCommand) Name() string { return t.Command }

// ConfigApply 在配置模式下按顺序下发配置行
type ConfigApply struct {
	Lines []string
	Label string
}

func (ConfigApply) Kind() TaskKind { return KindConfigApply }

func (t ConfigApply) Name() string {
	if t.Label != "" {
		return t.Label
	}
	return fmt.Sprintf("config (%d lines)", len(t.Lines))
}

// ConfigReplace 以完整配置整体替换运行配置；DryRun 只计算差异
type ConfigReplace struct {
	Config string
	DryRun bool
}

func (ConfigReplace) Kind() TaskKind { return KindConfigReplace }

func (t ConfigReplace) Name() string {
	if t.DryRun {
		return "config replace (dry-run)"
	}
	return "config replace"
}

// ExecCommands 将命令列表转换为执行任务
func ExecCommands(structured bool, commands ...string) []Task {
	out := make([]Task, 0, len(commands))
	for _, c := range commands {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, ExecCommand{Command: c, Structured: structured})
		}
	}
	return out
}

// Plan 为每台设备生成任务列表，在连接设备之前调用
type Plan interface {
	TasksFor(ctx context.Context, d inventory.Device, creds credential.Credentials) ([]Task, error)
}

// StaticPlan 所有设备执行相同任务
type StaticPlan []Task

// TasksFor 返回固定任务
func (p StaticPlan) TasksFor(context.Context, inventory.Device, credential.Credentials) ([]Task, error) {
	return p, nil
}

// PlanFunc 函数形式的 Plan
type PlanFunc func(ctx context.Context, d inventory.Device, creds credential.Credentials) ([]Task, error)

// TasksFor 调用函数
func (f PlanFunc) TasksFor(ctx context.Context, d inventory.Device, creds credential.Credentials) ([]Task, error) {
	return f(ctx, d, creds)
}
