// Package naming 接口名缩写、LLDP 邻居分类、接口描述与 DNS 记录生成
package naming

import (
	"strings"
)

// Rule 接口名改写规则：以 Prefix 开头的接口名把前缀替换为 Replacement
type Rule struct {
	Prefix      string
	Replacement string
	// Flatten 将 / 与 . 替换为 -，用于生成合法的 DNS 标签
	Flatten bool
}

// Rewriter 按顺序匹配第一条命中的规则
type Rewriter struct {
	Rules []Rule
}

// DefaultRules 默认接口缩写表
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "Vlan", Replacement: "-vlan"},
		{Prefix: "TenGigabitEthernet", Replacement: "-te", Flatten: true},
		{Prefix: "GigabitEthernet", Replacement: "-ge", Flatten: true},
		{Prefix: "Ethernet", Replacement: "-eth", Flatten: true},
		{Prefix: "Port-channel", Replacement: "-po", Flatten: true},
		{Prefix: "Port-Channel", Replacement: "-po", Flatten: true},
		{Prefix: "FastEthernet", Replacement: "-fe", Flatten: true},
		{Prefix: "Management", Replacement: "-mgmt", Flatten: true},
		{Prefix: "Loopback", Replacement: "-lo"},
		{Prefix: "Tunnel", Replacement: "-tu"},
	}
}

// NewRewriter 使用默认规则
func NewRewriter() *Rewriter {
	return &Rewriter{Rules: DefaultRules()}
}

// Rewrite 返回接口名的 DNS 后缀；没有规则命中时 ok 为 false
func (r *Rewriter) Rewrite(iface string) (string, bool) {
	for _, rule := range r.Rules {
		if !strings.HasPrefix(iface, rule.Prefix) {
			continue
		}
		out := rule.Replacement + strings.TrimPrefix(iface, rule.Prefix)
		if rule.Flatten {
			out = strings.NewReplacer("/", "-", ".", "-").Replace(out)
		}
		return out, true
	}
	return "", false
}
