package lab

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const invalidInput = "% Invalid input detected at '^' marker."

// Device 模拟设备：运行配置与命令输出
type Device struct {
	Name           string
	Platform       string
	EnableSecret   string
	EnableRequired bool
	// Outputs 命令 -> 输出；未命中时再查 outputs 目录
	Outputs map[string]string
	// Reject 配置模式下会被拒绝的行
	Reject map[string]bool

	outputsDir string
	mu         sync.RWMutex
	running    []string
	commits    int
}

// NewDevice 创建模拟设备
func NewDevice(cfg DeviceConfig, name, outputsDir string) *Device {
	d := &Device{
		Name:           name,
		Platform:       strings.ToLower(cfg.Platform),
		EnableSecret:   cfg.EnableSecret,
		EnableRequired: cfg.EnableRequired,
		Outputs:        map[string]string{},
		Reject:         map[string]bool{},
		outputsDir:     outputsDir,
	}
	for k, v := range cfg.Outputs {
		d.Outputs[k] = v
	}
	for _, r := range cfg.Reject {
		d.Reject[strings.TrimSpace(r)] = true
	}
	d.running = splitConfig(cfg.RunningConfig)
	if len(d.running) == 0 {
		d.running = []string{"hostname " + name}
	}
	return d
}

// RunningConfig 当前运行配置（不含头部）
func (d *Device) RunningConfig() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return strings.Join(d.running, "\n") + "\n"
}

// Commits 配置会话提交次数
func (d *Device) Commits() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.commits
}

func (d *Device) hostname() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, l := range d.running {
		if strings.HasPrefix(l, "hostname ") {
			return strings.TrimSpace(strings.TrimPrefix(l, "hostname "))
		}
	}
	return d.Name
}

// showRunning 带平台头部的运行配置
func (d *Device) showRunning() string {
	body := d.RunningConfig()
	switch d.Platform {
	case "ios":
		return fmt.Sprintf("Building configuration...\n\nCurrent configuration : %d bytes\n%s", len(body), body)
	case "eos":
		return fmt.Sprintf("! Command: show running-config\n! device: %s (vEOS-lab)\n%s", d.hostname(), body)
	}
	return body
}

func (d *Device) applyLine(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	line = strings.TrimRight(line, " \t")
	if strings.HasPrefix(line, "hostname ") {
		for i, l := range d.running {
			if strings.HasPrefix(l, "hostname ") {
				d.running[i] = line
				return
			}
		}
	}
	if strings.HasPrefix(line, "no ") {
		target := strings.TrimPrefix(line, "no ")
		out := d.running[:0]
		for _, l := range d.running {
			if strings.TrimSpace(l) != target {
				out = append(out, l)
			}
		}
		d.running = out
		return
	}
	for _, l := range d.running {
		if l == line {
			return
		}
	}
	d.running = append(d.running, line)
}

func (d *Device) replace(lines []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = append([]string(nil), lines...)
	d.commits++
}

// output 查找命令输出：内存表 -> <dir>/<device>/<cmd>.txt -> 空格替换为下划线
func (d *Device) output(cmd string) (string, bool) {
	if out, ok := d.Outputs[cmd]; ok {
		return out, true
	}
	if d.outputsDir == "" {
		return "", false
	}
	base := filepath.Join(d.outputsDir, d.Name)
	for _, name := range []string{cmd, strings.ReplaceAll(cmd, " ", "_")} {
		if bs, err := os.ReadFile(filepath.Join(base, name+".txt")); err == nil {
			return string(bs), true
		}
	}
	return "", false
}

func splitConfig(s string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, strings.TrimRight(l, " \t"))
	}
	return out
}

type cliMode int

const (
	modeUser cliMode = iota
	modeEnable
	modeConfig
	modeSession
)

// cli 单个 Shell 会话的命令行状态机
type cli struct {
	dev           *Device
	mode          cliMode
	candidate     []string
	awaitPassword bool
}

func newCLI(dev *Device) *cli {
	c := &cli{dev: dev, mode: modeEnable}
	if dev.EnableRequired {
		c.mode = modeUser
	}
	return c
}

func (c *cli) prompt() string {
	host := c.dev.hostname()
	switch c.mode {
	case modeUser:
		return host + ">"
	case modeConfig:
		return host + "(config)#"
	case modeSession:
		return host + "(config-s-netfle)#"
	}
	return host + "#"
}

// echo 输入是否需要回显（密码不回显）
func (c *cli) echo() bool { return !c.awaitPassword }

// handle 处理一行输入，返回输出、是否继续显示提示符、是否结束会话
func (c *cli) handle(line string) (out string, showPrompt, exit bool) {
	cmd := strings.TrimSpace(line)

	if c.awaitPassword {
		c.awaitPassword = false
		if cmd != c.dev.EnableSecret {
			return "% Access denied", true, false
		}
		c.mode = modeEnable
		return "", true, false
	}
	if cmd == "" {
		return "", true, false
	}

	switch c.mode {
	case modeConfig:
		return c.handleConfig(cmd)
	case modeSession:
		return c.handleSession(cmd)
	}

	switch {
	case cmd == "exit" || cmd == "quit" || cmd == "logout":
		return "", false, true
	case cmd == "enable":
		if c.mode == modeUser && c.dev.EnableSecret != "" {
			c.awaitPassword = true
			return "Password: ", false, false
		}
		c.mode = modeEnable
		return "", true, false
	case isSessionSetting(cmd):
		return "", true, false
	}

	if out, ok := c.dev.output(cmd); ok {
		return out, true, false
	}
	if c.mode == modeUser {
		return invalidInput, true, false
	}

	switch {
	case cmd == "show running-config", cmd == "show configuration | display set":
		return c.dev.showRunning(), true, false
	case cmd == "configure terminal":
		c.mode = modeConfig
		return "Enter configuration commands, one per line.  End with CNTL/Z.", true, false
	case strings.HasPrefix(cmd, "configure session"):
		c.mode = modeSession
		c.candidate = splitConfig(c.dev.RunningConfig())
		return "", true, false
	case strings.HasSuffix(cmd, " | json"):
		return "% This is an unconverted command", true, false
	}
	return invalidInput, true, false
}

func (c *cli) handleConfig(cmd string) (string, bool, bool) {
	switch cmd {
	case "end", "exit":
		c.mode = modeEnable
		return "", true, false
	}
	if c.dev.Reject[cmd] {
		return invalidInput, true, false
	}
	c.dev.applyLine(cmd)
	return "", true, false
}

func (c *cli) handleSession(cmd string) (string, bool, bool) {
	switch cmd {
	case "rollback clean-config":
		c.candidate = nil
		return "", true, false
	case "commit":
		c.dev.replace(c.candidate)
		c.candidate = nil
		c.mode = modeEnable
		return "", true, false
	case "abort", "end", "exit":
		c.candidate = nil
		c.mode = modeEnable
		return "", true, false
	}
	if c.dev.Reject[cmd] {
		return invalidInput, true, false
	}
	c.candidate = append(c.candidate, strings.TrimRight(cmd, " \t"))
	return "", true, false
}

// isSessionSetting 终端参数类命令，直接接受
func isSessionSetting(cmd string) bool {
	for _, p := range []string{"terminal ", "set cli ", "config paging", "set paging", "set output"} {
		if strings.HasPrefix(cmd, p) {
			return true
		}
	}
	return false
}
