package inventory

import (
	"fmt"
	"strconv"
	"strings"
)

// Class 设备类别，决定可执行的任务种类
type Class int

const (
	// ClassExecCLI 仅支持命令执行的 CLI 设备
	ClassExecCLI Class = iota
	// ClassConfigCLI 可配置的 CLI 设备
	ClassConfigCLI
	// ClassConfigAPI 可配置且支持结构化输出的设备
	ClassConfigAPI
	// ClassController 只读控制器
	ClassController
)

var classNames = map[Class]string{
	ClassExecCLI:    "exec_cli",
	ClassConfigCLI:  "config_cli",
	ClassConfigAPI:  "config_api",
	ClassController: "controller",
}

func (c Class) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "class(" + strconv.Itoa(int(c)) + ")"
}

// CanConfigure 是否允许下发配置
func (c Class) CanConfigure() bool {
	return c == ClassConfigCLI || c == ClassConfigAPI
}

// MarshalText 以名称序列化
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText 按名称解析
func (c *Class) UnmarshalText(b []byte) error {
	parsed, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseClass 解析类别名称
func ParseClass(s string) (Class, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for c, name := range classNames {
		if name == key {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown device class %q", s)
}

// Device 已合并变量的设备快照；Registry 对外只返回副本
type Device struct {
	Hostname string                 `json:"hostname"`
	Address  string                 `json:"address"`
	Port     int                    `json:"port"`
	Username string                 `json:"username,omitempty"`
	Platform string                 `json:"platform"`
	Class    Class                  `json:"class"`
	Site     string                 `json:"site,omitempty"`
	Region   string                 `json:"region,omitempty"`
	Groups   []string               `json:"groups,omitempty"`
	Tags     []string               `json:"tags,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// HasTag 是否带有标签
func (d Device) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone 深拷贝，调用方修改副本不会影响注册表
func (d Device) Clone() Device {
	out := d
	out.Groups = append([]string(nil), d.Groups...)
	out.Tags = append([]string(nil), d.Tags...)
	if d.Data != nil {
		out.Data = cloneMap(d.Data)
	}
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		return cloneMap(vv)
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i := range vv {
			out[i] = cloneValue(vv[i])
		}
		return out
	case []string:
		return append([]string(nil), vv...)
	default:
		return v
	}
}
