package service

import (
	"fmt"
	"io"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/database"
	"github.com/netfleetpro/netfleet/internal/driver"
	"github.com/netfleetpro/netfleet/internal/inventory"
	"github.com/netfleetpro/netfleet/internal/metrics"
	"github.com/netfleetpro/netfleet/internal/render"
	"github.com/netfleetpro/netfleet/internal/report"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

// BuildOptions 由调用方决定的输出方式
type BuildOptions struct {
	// Console 非空时把每次运行的结果打印到该输出
	Console io.Writer
	// Quiet 终端只打印汇总行
	Quiet bool
	// HostFiles 强制写入按设备的结果文件
	HostFiles bool
	// Metrics 强制创建指标，即使配置中关闭
	Metrics bool
}

// Build 按配置组装默认依赖
func Build(cfg *config.Config, opts BuildOptions) (*FleetService, error) {
	platforms, err := inventory.PlatformsFromConfig(cfg.Inventory.Platforms)
	if err != nil {
		return nil, err
	}

	secrets, err := credential.NewEnvSource(cfg.Credentials.EnvFile)
	if err != nil {
		return nil, err
	}
	resolver := credential.NewResolver(secrets,
		credential.WithNamespaces(cfg.Credentials.Namespaces),
		credential.WithClassNamespaces(cfg.Credentials.ClassNamespaces),
		credential.WithExtras(cfg.Credentials.Extras...),
	)

	deps := Deps{
		Source:    inventory.NewFileSource(cfg.Inventory.Dir),
		Platforms: platforms,
		Driver:    driver.NewRegistry(driver.NewCLIDriver(cfg)),
		Resolver:  resolver,
		Renderer:  render.NewFileRenderer(cfg.Templates.Dir),
	}

	if cfg.Database.Enabled {
		if err := database.InitSQLite(cfg.Database.SQLite); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		deps.Store = database.NewRunStore(database.GetDB())
	}
	if cfg.Metrics.Enabled || opts.Metrics {
		deps.Metrics = metrics.New()
	}

	var sinks report.Multi
	if opts.Console != nil {
		sinks = append(sinks, &report.TextSink{W: opts.Console, Quiet: opts.Quiet})
	}
	if cfg.Report.JSON {
		sinks = append(sinks, &report.JSONSink{Dir: cfg.Report.OutputDir})
	}
	if cfg.Report.HostFiles || opts.HostFiles {
		sinks = append(sinks, &report.HostFileSink{Dir: cfg.Report.OutputDir})
	}
	if cfg.Report.Minio.Enabled {
		ms, err := report.NewMinioSink(cfg.Report.Minio)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ms)
	}
	if deps.Store != nil {
		sinks = append(sinks, &report.StoreSink{Store: deps.Store})
	}
	if len(sinks) > 0 {
		deps.Sink = sinks
	}

	logger.WithFields(logger.KV(
		"inventory", cfg.Inventory.Dir,
		"workers", cfg.Executor.Workers,
		"sinks", len(sinks),
		"database", deps.Store != nil,
		"metrics", deps.Metrics != nil,
	)).Debug("Fleet service dependencies built")
	return NewFleetService(cfg, deps), nil
}
