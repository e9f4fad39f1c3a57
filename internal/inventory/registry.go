package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 主机不在注册表中
var ErrNotFound = errors.New("device not found")

// LoadErrorKind 清单加载失败的类别
type LoadErrorKind string

const (
	KindSource          LoadErrorKind = "source"
	KindMalformed       LoadErrorKind = "malformed"
	KindDuplicateHost   LoadErrorKind = "duplicate_host"
	KindUnknownGroup    LoadErrorKind = "unknown_group"
	KindUnknownPlatform LoadErrorKind = "unknown_platform"
	KindInvalidHost     LoadErrorKind = "invalid_host"
)

// RegistryLoadError 清单加载错误，加载失败时不会返回部分注册表
type RegistryLoadError struct {
	Kind   LoadErrorKind
	Host   string
	Detail string
	Err    error
}

func (e *RegistryLoadError) Error() string {
	var b strings.Builder
	b.WriteString("inventory: ")
	b.WriteString(string(e.Kind))
	if e.Host != "" {
		b.WriteString(" host=")
		b.WriteString(e.Host)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RegistryLoadError) Unwrap() error { return e.Err }

// Registry 设备注册表，加载后只读，可被多个并发运行共享
type Registry struct {
	devices []Device
	index   map[string]int
}

// Load 从来源加载并构建注册表
func Load(ctx context.Context, src Source, platforms PlatformTable) (*Registry, error) {
	snap, err := src.Load(ctx)
	if err != nil {
		var rle *RegistryLoadError
		if errors.As(err, &rle) {
			return nil, err
		}
		return nil, &RegistryLoadError{Kind: KindSource, Err: err}
	}
	return Build(snap, platforms)
}

// Build 按层级合并快照构建注册表
// 数据优先级（后者覆盖前者）：defaults < 组（声明顺序）< 区域变量 < 站点变量 < 主机 data < host_vars
func Build(snap *Snapshot, platforms PlatformTable) (*Registry, error) {
	if snap == nil {
		return nil, &RegistryLoadError{Kind: KindSource, Detail: "empty snapshot"}
	}
	if platforms == nil {
		platforms = DefaultPlatforms()
	}
	r := &Registry{
		devices: make([]Device, 0, len(snap.Hosts)),
		index:   make(map[string]int, len(snap.Hosts)),
	}
	for _, h := range snap.Hosts {
		name := strings.TrimSpace(h.Name)
		if name == "" {
			return nil, &RegistryLoadError{Kind: KindInvalidHost, Detail: "empty hostname"}
		}
		if _, dup := r.index[name]; dup {
			return nil, &RegistryLoadError{Kind: KindDuplicateHost, Host: name}
		}
		d, err := buildDevice(snap, h, platforms)
		if err != nil {
			return nil, err
		}
		r.index[name] = len(r.devices)
		r.devices = append(r.devices, d)
	}
	return r, nil
}

func buildDevice(snap *Snapshot, h HostRecord, platforms PlatformTable) (Device, error) {
	d := Device{
		Hostname: strings.TrimSpace(h.Name),
		Data:     map[string]interface{}{},
	}

	layers := make([]GroupRecord, 0, len(h.Groups)+1)
	layers = append(layers, snap.Defaults)
	for _, g := range h.Groups {
		grp, ok := snap.Groups[g]
		if !ok {
			return Device{}, &RegistryLoadError{Kind: KindUnknownGroup, Host: d.Hostname, Detail: g}
		}
		grp.Name = g
		layers = append(layers, grp)
	}

	tagSet := map[string]bool{}
	addTags := func(tags []string) {
		for _, t := range tags {
			if t = strings.TrimSpace(t); t != "" && !tagSet[t] {
				tagSet[t] = true
				d.Tags = append(d.Tags, t)
			}
		}
	}

	for _, l := range layers {
		if l.Port > 0 {
			d.Port = l.Port
		}
		d.Username = pick(l.Username, d.Username)
		d.Platform = pick(l.Platform, d.Platform)
		d.Site = pick(l.Site, d.Site)
		d.Region = pick(l.Region, d.Region)
		addTags(l.Tags)
		mergeInto(d.Data, l.Data)
		if l.Name != "" {
			mergeInto(d.Data, snap.Vars[l.Name])
		}
	}

	if h.Port > 0 {
		d.Port = h.Port
	}
	d.Username = pick(h.Username, d.Username)
	d.Platform = pick(h.Platform, d.Platform)
	// 兼容把 site/region/tags 写在 data 里的清单
	d.Site = pick(h.Site, pick(stringFrom(h.Data, "site"), d.Site))
	d.Region = pick(h.Region, pick(stringFrom(h.Data, "region"), d.Region))
	addTags(h.Tags)
	addTags(stringsFrom(h.Data, "tags"))
	d.Groups = append([]string(nil), h.Groups...)

	if d.Region != "" {
		mergeInto(d.Data, snap.Vars[d.Region])
	}
	if d.Site != "" {
		mergeInto(d.Data, snap.Vars[d.Site])
	}
	mergeInto(d.Data, h.Data)
	mergeInto(d.Data, snap.HostVars[d.Hostname])

	d.Address = strings.TrimSpace(h.Address)
	if d.Address == "" {
		d.Address = d.Hostname
	}
	if d.Port <= 0 {
		d.Port = 22
	}
	if d.Port > 65535 {
		return Device{}, &RegistryLoadError{Kind: KindInvalidHost, Host: d.Hostname, Detail: fmt.Sprintf("port %d out of range", d.Port)}
	}

	d.Platform = strings.ToLower(strings.TrimSpace(d.Platform))
	class, ok := platforms.Lookup(d.Platform)
	if !ok {
		return Device{}, &RegistryLoadError{Kind: KindUnknownPlatform, Host: d.Hostname, Detail: fmt.Sprintf("%q", d.Platform)}
	}
	d.Class = class
	return d, nil
}

func pick(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}

// mergeInto 顶层键覆盖合并
func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
}

func stringFrom(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stringsFrom(m map[string]interface{}, key string) []string {
	switch v := m[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}

// All 按加载顺序返回全部设备的副本
func (r *Registry) All() []Device {
	out := make([]Device, len(r.devices))
	for i := range r.devices {
		out[i] = r.devices[i].Clone()
	}
	return out
}

// Get 按主机名查询
func (r *Registry) Get(hostname string) (Device, error) {
	i, ok := r.index[hostname]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrNotFound, hostname)
	}
	return r.devices[i].Clone(), nil
}

// Len 设备数量
func (r *Registry) Len() int {
	return len(r.devices)
}

// Hostnames 按加载顺序返回主机名
func (r *Registry) Hostnames() []string {
	out := make([]string, len(r.devices))
	for i := range r.devices {
		out[i] = r.devices[i].Hostname
	}
	return out
}
