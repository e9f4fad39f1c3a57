package fleet

import (
	"context"

	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/inventory"
)

// Renderer 按模板 ID 与变量生成完整配置
type Renderer interface {
	Render(templateID string, vars map[string]interface{}) (string, error)
}

// Pipeline 渲染目标配置并整体替换运行配置
type Pipeline struct {
	executor *Executor
	renderer Renderer
}

// ApplyRequest 配置下发请求
type ApplyRequest struct {
	RunID      string
	TemplateID string
	DryRun     bool
	Devices    []inventory.Device
}

// NewPipeline 创建配置下发流程
func NewPipeline(executor *Executor, renderer Renderer) *Pipeline {
	return &Pipeline{executor: executor, renderer: renderer}
}

// Apply 对每台设备：渲染 -> 读取运行配置 -> 计算差异 -> 替换（DryRun 时跳过）。
// 渲染失败只影响该设备，且不会连接设备。
func (p *Pipeline) Apply(ctx context.Context, req ApplyRequest) *FleetResult {
	plan := PlanFunc(func(ctx context.Context, d inventory.Device, creds credential.Credentials) ([]Task, error) {
		cfg, err := p.renderer.Render(req.TemplateID, TemplateVars(d, creds))
		if err != nil {
			return nil, &RenderError{Host: d.Hostname, Template: req.TemplateID, Err: err}
		}
		return []Task{ConfigReplace{Config: cfg, DryRun: req.DryRun}}, nil
	})
	return p.executor.Execute(ctx, Job{ID: req.RunID, Devices: req.Devices, Plan: plan})
}

// TemplateVars 模板变量：设备合并后的数据位于顶层，
// host 为设备属性，secrets 为额外秘密（如 tacacs_key）
func TemplateVars(d inventory.Device, creds credential.Credentials) map[string]interface{} {
	c := d.Clone()
	vars := make(map[string]interface{}, len(c.Data)+2)
	for k, v := range c.Data {
		vars[k] = v
	}
	vars["host"] = map[string]interface{}{
		"name":     c.Hostname,
		"address":  c.Address,
		"port":     c.Port,
		"platform": c.Platform,
		"site":     c.Site,
		"region":   c.Region,
		"groups":   c.Groups,
		"tags":     c.Tags,
	}
	secrets := make(map[string]interface{}, len(creds.Extras))
	for k, v := range creds.Extras {
		secrets[k] = v
	}
	vars["secrets"] = secrets
	return vars
}
