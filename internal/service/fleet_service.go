package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/database"
	"github.com/netfleetpro/netfleet/internal/filter"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/inventory"
	"github.com/netfleetpro/netfleet/internal/metrics"
	"github.com/netfleetpro/netfleet/internal/model"
	"github.com/netfleetpro/netfleet/internal/naming"
	"github.com/netfleetpro/netfleet/internal/report"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

var (
	// ErrNotRunning 服务未启动
	ErrNotRunning = errors.New("fleet service is not running")
	// ErrRunNotFound 运行不存在或已结束
	ErrRunNotFound = errors.New("run not found")
	// ErrNoInventory 尚未成功加载清单
	ErrNoInventory = errors.New("inventory not loaded")
)

// Deps 服务依赖；Store、Metrics、Sink 可为空
type Deps struct {
	Source    inventory.Source
	Platforms inventory.PlatformTable
	Driver    fleet.Driver
	Resolver  fleet.CredentialResolver
	Renderer  fleet.Renderer
	Sink      report.Sink
	Store     *database.RunStore
	Metrics   *metrics.Metrics
}

// FleetService 编排入口：持有当前清单快照，按请求筛选设备并执行运行
type FleetService struct {
	config *config.Config
	deps   Deps

	rewriter *naming.Rewriter

	registry   atomic.Pointer[inventory.Registry]
	lastReload atomic.Value // time.Time

	mutex   sync.RWMutex
	running bool
	runs    map[string]*RunContext
}

// RunContext 进行中的运行
type RunContext struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Filter    string    `json:"filter"`
	Selected  int       `json:"selected"`
	StartTime time.Time `json:"start_time"`
	Status    string    `json:"status"`

	cancel context.CancelFunc
}

// NewFleetService 创建服务
func NewFleetService(cfg *config.Config, deps Deps) *FleetService {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Platforms == nil {
		deps.Platforms = inventory.DefaultPlatforms()
	}
	return &FleetService{
		config:   cfg,
		deps:     deps,
		rewriter: naming.NewRewriter(),
		runs:     make(map[string]*RunContext),
	}
}

// Start 加载清单并启动服务
func (s *FleetService) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return fmt.Errorf("fleet service is already running")
	}
	s.mutex.Unlock()

	if err := s.Reload(ctx); err != nil {
		return err
	}

	s.mutex.Lock()
	s.running = true
	s.mutex.Unlock()
	logger.WithField("devices", s.Registry().Len()).Info("Fleet service started")
	return nil
}

// Stop 取消所有进行中的运行
func (s *FleetService) Stop() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	for _, rc := range s.runs {
		if rc.cancel != nil {
			rc.cancel()
		}
	}
	logger.Info("Fleet service stopped")
	return nil
}

// Reload 重新加载清单；失败时保留原快照
func (s *FleetService) Reload(ctx context.Context) error {
	if s.deps.Source == nil {
		return fmt.Errorf("%w: no inventory source", ErrNoInventory)
	}
	reg, err := inventory.Load(ctx, s.deps.Source, s.deps.Platforms)
	if s.deps.Metrics != nil {
		n := 0
		if reg != nil {
			n = reg.Len()
		}
		s.deps.Metrics.InventoryReloaded(n, err)
	}
	if err != nil {
		if s.registry.Load() != nil {
			logger.WithField("error", err).Warn("Inventory reload failed, keeping previous snapshot")
		}
		return err
	}
	s.registry.Store(reg)
	s.lastReload.Store(time.Now())
	logger.WithField("devices", reg.Len()).Info("Inventory loaded")
	return nil
}

// Registry 当前清单快照
func (s *FleetService) Registry() *inventory.Registry {
	return s.registry.Load()
}

// Select 按条件筛选设备
func (s *FleetService) Select(p filter.Predicate) ([]inventory.Device, error) {
	reg := s.Registry()
	if reg == nil {
		return nil, ErrNoInventory
	}
	return filter.Select(reg.All(), p), nil
}

// ExecRequest 批量执行只读命令
type ExecRequest struct {
	Filter     filter.Predicate
	Commands   []string
	Structured bool
	// Observer 可选的逐设备结果回调，例如进度显示
	Observer fleet.Observer
}

// Exec 在筛选出的设备上按顺序执行命令
func (s *FleetService) Exec(ctx context.Context, req ExecRequest) (*fleet.FleetResult, error) {
	if len(req.Commands) == 0 {
		return nil, fmt.Errorf("no commands given")
	}
	devices, err := s.Select(req.Filter)
	if err != nil {
		return nil, err
	}
	tasks := fleet.ExecCommands(req.Structured, req.Commands...)
	meta := report.Run{Kind: model.RunKindExec, Filter: req.Filter.String()}
	return s.runPlan(ctx, meta, devices, req.Observer, fleet.StaticPlan(tasks))
}

// ConfigRequest 逐行下发配置
type ConfigRequest struct {
	Filter   filter.Predicate
	Lines    []string
	Observer fleet.Observer
}

// Configure 进入配置模式逐行下发
func (s *FleetService) Configure(ctx context.Context, req ConfigRequest) (*fleet.FleetResult, error) {
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("no config lines given")
	}
	devices, err := s.Select(req.Filter)
	if err != nil {
		return nil, err
	}
	task := fleet.ConfigApply{Lines: append([]string(nil), req.Lines...)}
	meta := report.Run{Kind: model.RunKindConfig, Filter: req.Filter.String()}
	return s.runPlan(ctx, meta, devices, req.Observer, fleet.StaticPlan{task})
}

// ApplyRequest 渲染模板并整体替换运行配置
type ApplyRequest struct {
	Filter     filter.Predicate
	TemplateID string
	// Check 只计算差异不下发
	Check    bool
	Observer fleet.Observer
}

// Apply 配置下发流程
func (s *FleetService) Apply(ctx context.Context, req ApplyRequest) (*fleet.FleetResult, error) {
	if req.TemplateID == "" {
		return nil, fmt.Errorf("template id is required")
	}
	if s.deps.Renderer == nil {
		return nil, fmt.Errorf("no renderer configured")
	}
	devices, err := s.Select(req.Filter)
	if err != nil {
		return nil, err
	}
	meta := report.Run{Kind: model.RunKindApply, Filter: req.Filter.String(), TemplateID: req.TemplateID, DryRun: req.Check}
	return s.run(ctx, meta, devices, req.Observer, func(ctx context.Context, e *fleet.Executor, runID string) *fleet.FleetResult {
		return fleet.NewPipeline(e, s.deps.Renderer).Apply(ctx, fleet.ApplyRequest{
			RunID:      runID,
			TemplateID: req.TemplateID,
			DryRun:     req.Check,
			Devices:    devices,
		})
	})
}

// runPlan 按计划在设备上执行一次运行
func (s *FleetService) runPlan(ctx context.Context, meta report.Run, devices []inventory.Device, obs fleet.Observer, plan fleet.Plan) (*fleet.FleetResult, error) {
	return s.run(ctx, meta, devices, obs, func(ctx context.Context, e *fleet.Executor, runID string) *fleet.FleetResult {
		return e.Execute(ctx, fleet.Job{ID: runID, Devices: devices, Plan: plan})
	})
}

type jobFunc func(ctx context.Context, e *fleet.Executor, runID string) *fleet.FleetResult

// run 登记运行、执行、输出结果并注销
func (s *FleetService) run(ctx context.Context, meta report.Run, devices []inventory.Device, obs fleet.Observer, job jobFunc) (*fleet.FleetResult, error) {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return nil, ErrNotRunning
	}
	runID := fleet.NewRunID()
	runCtx, cancel := context.WithCancel(ctx)
	rc := &RunContext{
		ID:        runID,
		Kind:      meta.Kind,
		Filter:    meta.Filter,
		Selected:  len(devices),
		StartTime: time.Now(),
		Status:    model.RunStatusRunning,
		cancel:    cancel,
	}
	s.runs[runID] = rc
	s.mutex.Unlock()

	defer func() {
		cancel()
		s.mutex.Lock()
		delete(s.runs, runID)
		s.mutex.Unlock()
	}()

	log := logger.WithFields(logger.KV("run_id", runID, "kind", meta.Kind, "filter", meta.Filter))
	if s.deps.Store != nil {
		err := s.deps.Store.Begin(ctx, database.RunMeta{
			ID: runID, Kind: meta.Kind, Filter: meta.Filter,
			TemplateID: meta.TemplateID, DryRun: meta.DryRun, Selected: len(devices),
		})
		if err != nil {
			log.WithError(err).Warn("Failed to record run start")
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RunStarted()
	}

	res := job(runCtx, s.executor(obs), runID)

	if s.deps.Metrics != nil {
		s.deps.Metrics.RunFinished(meta.Kind, res)
	}
	if s.deps.Sink != nil {
		// 输出不受运行取消影响
		if err := s.deps.Sink.Write(context.WithoutCancel(ctx), meta, res); err != nil {
			log.WithError(err).Warn("Failed to write run report")
		}
	}
	return res, nil
}

// executor 每次运行一个执行器，附带本次请求的观察者
func (s *FleetService) executor(obs fleet.Observer) *fleet.Executor {
	opts := []fleet.Option{
		fleet.WithWorkers(s.config.Executor.Workers),
		fleet.WithGracePeriod(s.config.Executor.GracePeriod),
	}
	if s.deps.Metrics != nil {
		opts = append(opts, fleet.WithObserver(s.deps.Metrics))
	}
	if obs != nil {
		opts = append(opts, fleet.WithObserver(obs))
	}
	return fleet.NewExecutor(s.deps.Driver, s.deps.Resolver, opts...)
}

// CancelRun 取消进行中的运行
func (s *FleetService) CancelRun(runID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	rc, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rc.cancel != nil {
		rc.cancel()
	}
	rc.Status = model.RunStatusCancelled
	logger.WithField("run_id", runID).Info("Run cancel requested")
	return nil
}

// ActiveRuns 进行中的运行快照
func (s *FleetService) ActiveRuns() []RunContext {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make([]RunContext, 0, len(s.runs))
	for _, rc := range s.runs {
		out = append(out, *rc)
	}
	return out
}

// Store 审计存储，未启用时为 nil
func (s *FleetService) Store() *database.RunStore {
	return s.deps.Store
}

// Metrics 指标，未启用时为 nil
func (s *FleetService) Metrics() *metrics.Metrics {
	return s.deps.Metrics
}

// GetStats 服务统计信息
func (s *FleetService) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := map[string]interface{}{
		"running":     s.running,
		"active_runs": len(s.runs),
		"max_workers": s.config.Executor.Workers,
	}
	if reg := s.Registry(); reg != nil {
		stats["inventory_devices"] = reg.Len()
	}
	if t, ok := s.lastReload.Load().(time.Time); ok {
		stats["inventory_loaded_at"] = t
	}
	if s.deps.Store != nil {
		stats["database"] = database.GetStats()
	}
	return stats
}
