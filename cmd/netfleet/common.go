package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/netfleetpro/netfleet/internal/filter"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/service"
)

// runFlags 各运行命令共用的参数
type runFlags struct {
	filter.Flags
	workers  int
	wtf      bool
	jsonOut  bool
	quiet    bool
	progress bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSliceVar(&f.Hosts, "host", nil, "select devices by hostname (repeatable, comma separated)")
	fs.StringSliceVar(&f.Sites, "site", nil, "select devices by site")
	fs.StringSliceVar(&f.Regions, "region", nil, "select devices by region")
	fs.StringSliceVar(&f.Platforms, "platform", nil, "select devices by platform")
	fs.StringSliceVar(&f.Tags, "tag", nil, "select devices carrying a tag")
	fs.IntVarP(&f.workers, "workers", "w", 0, "max devices processed at once (default from config)")
	fs.BoolVar(&f.wtf, "wtf", false, "write per-device results to <output_dir>/<host>-result.txt")
	fs.BoolVar(&f.jsonOut, "json", false, "print the run result as JSON instead of text")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "print only the summary line")
	fs.BoolVar(&f.progress, "progress", true, "print per-device progress to stderr")
}

// newService 按命令参数组装并启动服务
func (f *runFlags) newService(ctx context.Context) (*service.FleetService, error) {
	if f.workers > 0 {
		cfg.Executor.Workers = f.workers
	}
	opts := service.BuildOptions{HostFiles: f.wtf, Quiet: f.quiet}
	if !f.jsonOut {
		opts.Console = os.Stdout
	}
	svc, err := service.Build(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// observer 进度输出
func (f *runFlags) observer(total int) fleet.Observer {
	if !f.progress {
		return nil
	}
	return newProgress(os.Stderr, total)
}

type progress struct {
	mu    sync.Mutex
	w     io.Writer
	done  int
	total int
}

func newProgress(w io.Writer, total int) *progress {
	return &progress{w: w, total: total}
}

// OnDeviceResult 每台设备完成时输出一行
func (p *progress) OnDeviceResult(_ string, r fleet.DeviceResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.total > 0 {
		fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n", p.done, p.total, r.Hostname, r.Status(), r.Duration().Round(time.Millisecond))
		return
	}
	fmt.Fprintf(p.w, "[%d] %s %s (%s)\n", p.done, r.Hostname, r.Status(), r.Duration().Round(time.Millisecond))
}

// signalContext Ctrl-C 取消运行，在途设备完成当前任务后停止
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// finish 输出 JSON 并把失败设备转换为非零退出码
func finish(f *runFlags, v interface{}, res *fleet.FleetResult) error {
	if f.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	if res != nil && !res.OK() {
		return fmt.Errorf("%d of %d devices failed (run %s)", res.Failed, res.Selected, res.RunID)
	}
	return nil
}

// countSelected 用于进度总数；清单尚未加载时返回 0
func countSelected(svc *service.FleetService, p filter.Predicate) int {
	devices, err := svc.Select(p)
	if err != nil {
		return 0
	}
	return len(devices)
}
