// Package report 将运行结果输出到终端、本地文件、对象存储与审计库
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/netfleetpro/netfleet/internal/fleet"
)

// Run 运行的描述信息，随结果一起交给输出端
type Run struct {
	Kind       string `json:"kind"`
	Filter     string `json:"filter,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// Sink 结果输出端
type Sink interface {
	Write(ctx context.Context, run Run, res *fleet.FleetResult) error
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(ctx context.Context, run Run, res *fleet.FleetResult) error

// Write 调用函数
func (f SinkFunc) Write(ctx context.Context, run Run, res *fleet.FleetResult) error {
	return f(ctx, run, res)
}

// Multi 依次写入所有输出端；单个失败不影响其余输出端
type Multi []Sink

// Write 写入全部输出端并合并错误
func (m Multi) Write(ctx context.Context, run Run, res *fleet.FleetResult) error {
	var errs []error
	for i, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, run, res); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, s, err))
		}
	}
	return errors.Join(errs...)
}
