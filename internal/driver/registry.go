package driver

import (
	"context"
	"strings"
	"sync"

	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/inventory"
)

// DefaultName 未单独注册的平台使用的驱动名
const DefaultName = "default"

// Registry 按平台名称路由驱动，未注册的平台使用 default
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]fleet.Driver
}

// NewRegistry 以 def 作为 default 驱动创建注册中心
func NewRegistry(def fleet.Driver) *Registry {
	return &Registry{drivers: map[string]fleet.Driver{DefaultName: def}}
}

// Register 注册平台驱动
func (r *Registry) Register(platform string, d fleet.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[strings.ToLower(platform)] = d
}

// Get 获取平台驱动，不存在则返回 default
func (r *Registry) Get(platform string) fleet.Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.drivers[strings.ToLower(platform)]; ok {
		return d
	}
	return r.drivers[DefaultName]
}

// Open 实现 fleet.Driver
func (r *Registry) Open(ctx context.Context, d inventory.Device, creds credential.Credentials) (fleet.Session, error) {
	drv := r.Get(d.Platform)
	if drv == nil {
		return nil, &fleet.ConnectError{Host: d.Hostname, Err: errNoDriver(d.Platform)}
	}
	return drv.Open(ctx, d, creds)
}

type errNoDriver string

func (e errNoDriver) Error() string { return "no driver for platform " + string(e) }
