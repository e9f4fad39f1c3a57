// Package facts 按名称采集设备信息（getter），以及 EOS MLAG 状态检查
package facts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultGetter 未指定 getter 时使用
const DefaultGetter = "get_facts"

// ErrUnknownGetter 请求了未知的 getter
var ErrUnknownGetter = errors.New("unknown getter")

// Command 某个 getter 在某个平台上对应的命令
type Command struct {
	Getter     string
	Command    string
	Structured bool
}

type platformCommand struct {
	command    string
	structured bool
}

// getters getter -> 平台 -> 命令
var getters = map[string]map[string]platformCommand{
	"get_facts": {
		"eos":   {"show version", true},
		"ios":   {"show version", false},
		"junos": {"show version", true},
	},
	"get_interfaces": {
		"eos":   {"show interfaces", true},
		"ios":   {"show interfaces", false},
		"junos": {"show interfaces", true},
	},
	"get_interfaces_ip": {
		"eos":   {"show ip interface", true},
		"ios":   {"show ip interface brief", false},
		"junos": {"show interfaces terse", true},
	},
	"get_lldp_neighbors": {
		"eos":   {"show lldp neighbors", true},
		"ios":   {"show lldp neighbors", false},
		"junos": {"show lldp neighbors", true},
	},
	"get_arp_table": {
		"eos":   {"show ip arp", true},
		"ios":   {"show ip arp", false},
		"junos": {"show arp no-resolve", true},
	},
	"get_ntp_servers": {
		"eos":   {"show running-config section ntp", false},
		"ios":   {"show running-config | include ^ntp", false},
		"junos": {"show configuration system ntp", false},
	},
	"get_users": {
		"eos":   {"show running-config section username", false},
		"ios":   {"show running-config | include ^username", false},
		"junos": {"show configuration system login", false},
	},
	"get_config": {
		"eos":   {"show running-config", false},
		"ios":   {"show running-config", false},
		"junos": {"show configuration", false},
	},
}

// Platforms 支持 getter 的平台
func Platforms() []string {
	return []string{"eos", "ios", "junos"}
}

// Getters 所有 getter 名称（排序）
func Getters() []string {
	out := make([]string, 0, len(getters))
	for name := range getters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Normalize 校验并去重 getter 名称，空列表返回 DefaultGetter
func Normalize(names []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || seen[n] {
			continue
		}
		if _, ok := getters[n]; !ok {
			return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownGetter, n, strings.Join(Getters(), ", "))
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		out = []string{DefaultGetter}
	}
	return out, nil
}

// Commands 平台对应的命令，顺序与 names 一致；平台不支持的 getter 被跳过
func Commands(platform string, names []string) []Command {
	platform = strings.ToLower(platform)
	var out []Command
	for _, n := range names {
		pc, ok := getters[n][platform]
		if !ok {
			continue
		}
		out = append(out, Command{Getter: n, Command: pc.command, Structured: pc.structured})
	}
	return out
}
