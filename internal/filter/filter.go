// Package filter 设备选择谓词：可组合、纯函数、可打印
package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/netfleetpro/netfleet/internal/inventory"
)

// ErrUnknownAttribute 按名称构造谓词时属性名不受支持
var ErrUnknownAttribute = errors.New("unknown filter attribute")

type kind int

const (
	kindAll kind = iota
	kindHost
	kindSite
	kindRegion
	kindPlatform
	kindTag
	kindAnd
	kindOr
	kindNot
)

// Predicate 设备谓词；零值匹配全部设备
type Predicate struct {
	kind     kind
	value    string
	children []Predicate
}

// All 匹配全部
func All() Predicate { return Predicate{kind: kindAll} }

// ByHost 按主机名匹配
func ByHost(name string) Predicate { return Predicate{kind: kindHost, value: name} }

// BySite 按站点匹配
func BySite(site string) Predicate { return Predicate{kind: kindSite, value: site} }

// ByRegion 按区域匹配
func ByRegion(region string) Predicate { return Predicate{kind: kindRegion, value: region} }

// ByPlatform 按平台匹配
func ByPlatform(platform string) Predicate {
	return Predicate{kind: kindPlatform, value: strings.ToLower(platform)}
}

// ByTag 设备带有该标签
func ByTag(tag string) Predicate { return Predicate{kind: kindTag, value: tag} }

// And 全部满足；无子谓词时匹配全部
func And(ps ...Predicate) Predicate {
	return Predicate{kind: kindAnd, children: append([]Predicate(nil), ps...)}
}

// Or 任一满足；无子谓词时不匹配
func Or(ps ...Predicate) Predicate {
	return Predicate{kind: kindOr, children: append([]Predicate(nil), ps...)}
}

// Not 取反
func Not(p Predicate) Predicate {
	return Predicate{kind: kindNot, children: []Predicate{p}}
}

var attrKinds = map[string]kind{
	"host":     kindHost,
	"hostname": kindHost,
	"site":     kindSite,
	"region":   kindRegion,
	"platform": kindPlatform,
	"tag":      kindTag,
	"tags":     kindTag,
}

// ByAttr 按属性名构造谓词，未知属性在构造时报错
func ByAttr(name, value string) (Predicate, error) {
	k, ok := attrKinds[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Predicate{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	if k == kindPlatform {
		value = strings.ToLower(value)
	}
	return Predicate{kind: k, value: value}, nil
}

// Match 判断设备是否满足谓词
func (p Predicate) Match(d inventory.Device) bool {
	switch p.kind {
	case kindAll:
		return true
	case kindHost:
		return d.Hostname == p.value
	case kindSite:
		return d.Site == p.value
	case kindRegion:
		return d.Region == p.value
	case kindPlatform:
		return d.Platform == p.value
	case kindTag:
		return d.HasTag(p.value)
	case kindAnd:
		for _, c := range p.children {
			if !c.Match(d) {
				return false
			}
		}
		return true
	case kindOr:
		for _, c := range p.children {
			if c.Match(d) {
				return true
			}
		}
		return false
	case kindNot:
		return !p.children[0].Match(d)
	}
	return false
}

// String 可读形式，用于日志与运行记录
func (p Predicate) String() string {
	switch p.kind {
	case kindAll:
		return "all"
	case kindHost:
		return "host=" + p.value
	case kindSite:
		return "site=" + p.value
	case kindRegion:
		return "region=" + p.value
	case kindPlatform:
		return "platform=" + p.value
	case kindTag:
		return "tag=" + p.value
	case kindAnd, kindOr:
		op := " & "
		if p.kind == kindOr {
			op = " | "
		}
		parts := make([]string, len(p.children))
		for i, c := range p.children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, op) + ")"
	case kindNot:
		return "!" + p.children[0].String()
	}
	return "?"
}

// Select 按输入顺序返回匹配设备；重复主机名只保留第一次出现
func Select(devices []inventory.Device, p Predicate) []inventory.Device {
	out := make([]inventory.Device, 0, len(devices))
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		if seen[d.Hostname] {
			continue
		}
		if p.Match(d) {
			seen[d.Hostname] = true
			out = append(out, d)
		}
	}
	return out
}

// Flags CLI/API 使用的筛选条件：同一条件内为或，不同条件之间为与
type Flags struct {
	Hosts     []string `json:"hosts,omitempty" form:"host"`
	Sites     []string `json:"sites,omitempty" form:"site"`
	Regions   []string `json:"regions,omitempty" form:"region"`
	Platforms []string `json:"platforms,omitempty" form:"platform"`
	Tags      []string `json:"tags,omitempty" form:"tag"`
}

// Predicate 构造组合谓词；全部为空时匹配全部
func (f Flags) Predicate() Predicate {
	var parts []Predicate
	add := func(values []string, mk func(string) Predicate) {
		var alts []Predicate
		for _, v := range values {
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					alts = append(alts, mk(item))
				}
			}
		}
		switch len(alts) {
		case 0:
		case 1:
			parts = append(parts, alts[0])
		default:
			parts = append(parts, Or(alts...))
		}
	}
	add(f.Hosts, ByHost)
	add(f.Sites, BySite)
	add(f.Regions, ByRegion)
	add(f.Platforms, ByPlatform)
	add(f.Tags, ByTag)
	switch len(parts) {
	case 0:
		return All()
	case 1:
		return parts[0]
	}
	return And(parts...)
}

// Attributes 支持的属性名
func Attributes() []string {
	out := make([]string, 0, len(attrKinds))
	for k := range attrKinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
