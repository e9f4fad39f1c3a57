package driver

import (
	"strings"
	"time"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/pkg/ssh"
)

// Profile 平台交互参数
type Profile struct {
	PromptSuffixes   []string
	DisablePaging    []string
	AutoInteractions []ssh.AutoInteraction
	ErrorHints       []string
	EnableRequired   bool
	EnableCLI        string
	ConfigMode       []string
	ConfigExit       string
	RunningConfig    string
	// RunningConfigSkip 运行配置开头需要跳过的行前缀（时间戳、字节数等）
	RunningConfigSkip []string
	StructuredSuffix  string
	ReplacePrelude    []string
	ReplaceCommit     []string
	ReplaceAbort      []string
	CommandTimeout    time.Duration
	CommandInterval   time.Duration
}

var pagerInteractions = []ssh.AutoInteraction{
	{ExpectOutput: "--more--", AutoSend: " "},
	{ExpectOutput: "press any key", AutoSend: " "},
}

// builtinProfile 返回平台内置默认值
func builtinProfile(platform string) Profile {
	switch strings.ToLower(strings.TrimSpace(platform)) {
	case "ios":
		return Profile{
			PromptSuffixes:   []string{">", "#"},
			DisablePaging:    []string{"terminal length 0", "terminal width 511"},
			AutoInteractions: append([]ssh.AutoInteraction{{ExpectOutput: "[confirm]", AutoSend: ""}}, pagerInteractions...),
			ErrorHints:       []string{"% invalid input detected", "% incomplete command", "% ambiguous command", "% unknown command", "% invalid"},
			EnableRequired:   true,
			EnableCLI:        "enable",
			ConfigMode:       []string{"configure terminal"},
			ConfigExit:       "end",
			RunningConfig:    "show running-config",
			RunningConfigSkip: []string{
				"Building configuration",
				"Current configuration",
				"! Last configuration change",
				"! NVRAM config last updated",
				"! No configuration change since last restart",
			},
			CommandInterval: 100 * time.Millisecond,
		}
	case "eos":
		return Profile{
			PromptSuffixes:   []string{">", "#"},
			DisablePaging:    []string{"terminal length 0", "terminal width 32767"},
			AutoInteractions: pagerInteractions,
			ErrorHints:       []string{"% invalid input", "% incomplete command", "% ambiguous command", "% error", "% unavailable command"},
			EnableRequired:   true,
			EnableCLI:        "enable",
			ConfigMode:       []string{"configure terminal"},
			ConfigExit:       "end",
			RunningConfig:    "show running-config",
			RunningConfigSkip: []string{
				"! Command: show running-config",
				"! device:",
				"! Startup-config last modified",
			},
			StructuredSuffix: " | json",
			// 配置会话：清空后加载完整配置再提交
			ReplacePrelude: []string{"configure session netfleet", "rollback clean-config"},
			ReplaceCommit:  []string{"commit"},
			ReplaceAbort:   []string{"abort"},
		}
	case "junos":
		return Profile{
			PromptSuffixes: []string{">", "#", "%"},
			DisablePaging:  []string{"set cli screen-length 0", "set cli screen-width 0"},
			AutoInteractions: []ssh.AutoInteraction{
				{ExpectOutput: "[yes,no]", AutoSend: "yes"},
				{ExpectOutput: "---(more", AutoSend: " "},
			},
			ErrorHints:        []string{"syntax error", "unknown command", "error:", "missing argument"},
			ConfigMode:        []string{"configure private"},
			ConfigExit:        "exit configuration-mode",
			RunningConfig:     "show configuration | display set",
			RunningConfigSkip: []string{"## Last commit:", "version "},
			StructuredSuffix:  " | display json",
			ReplacePrelude:    []string{"configure private", "delete"},
			ReplaceCommit:     []string{"commit and-quit"},
			ReplaceAbort:      []string{"rollback 0", "exit configuration-mode"},
		}
	case "fortinet":
		return Profile{
			PromptSuffixes:   []string{"#", "$"},
			DisablePaging:    []string{"config system console", "set output standard", "end"},
			AutoInteractions: []ssh.AutoInteraction{{ExpectOutput: "--more--", AutoSend: " "}, {ExpectOutput: "(y/n)", AutoSend: "y"}},
			ErrorHints:       []string{"command fail", "unknown action", "command parse error", "return code -"},
		}
	case "cloudgenix_ion":
		return Profile{
			PromptSuffixes:   []string{"#", ">"},
			DisablePaging:    []string{"set paging off"},
			AutoInteractions: pagerInteractions,
			ErrorHints:       []string{"invalid command", "error:", "unknown command"},
		}
	case "cisco_wlc":
		return Profile{
			PromptSuffixes:   []string{">"},
			DisablePaging:    []string{"config paging disable"},
			AutoInteractions: append([]ssh.AutoInteraction{{ExpectOutput: "(y/n)", AutoSend: "y"}}, pagerInteractions...),
			ErrorHints:       []string{"incorrect usage", "incorrect input", "invalid command"},
		}
	}
	return Profile{
		PromptSuffixes:   []string{"#", ">", "]"},
		AutoInteractions: append([]ssh.AutoInteraction{{ExpectOutput: "confirm", AutoSend: "y"}}, pagerInteractions...),
		ErrorHints:       []string{"% invalid", "unrecognized command", "incomplete command", "ambiguous command"},
	}
}

// ProfileFor 内置默认值叠加配置 device_defaults 中同名平台的设置
func ProfileFor(platform string, cfg *config.Config) Profile {
	p := builtinProfile(platform)
	if cfg == nil {
		return p
	}
	key := strings.ToLower(strings.TrimSpace(platform))
	dd, ok := cfg.DeviceDefaults[key]
	if !ok {
		dd, ok = cfg.DeviceDefaults["default"]
	}
	if ok {
		p.apply(dd)
	}
	p.CommandTimeout = cfg.CommandTimeout(key)
	return p
}

func (p *Profile) apply(dd config.PlatformDefaultsConfig) {
	if len(dd.PromptSuffixes) > 0 {
		p.PromptSuffixes = dd.PromptSuffixes
	}
	if len(dd.DisablePagingCmds) > 0 {
		p.DisablePaging = dd.DisablePagingCmds
	}
	if len(dd.AutoInteractions) > 0 {
		mapped := make([]ssh.AutoInteraction, 0, len(dd.AutoInteractions))
		for _, ai := range dd.AutoInteractions {
			eo := strings.TrimSpace(ai.ExpectOutput)
			if eo == "" {
				continue
			}
			mapped = append(mapped, ssh.AutoInteraction{ExpectOutput: eo, AutoSend: strings.TrimSpace(ai.AutoSend)})
		}
		if len(mapped) > 0 {
			p.AutoInteractions = mapped
		}
	}
	if len(dd.ErrorHints) > 0 {
		p.ErrorHints = dd.ErrorHints
	}
	if dd.EnableRequired {
		p.EnableRequired = true
	}
	if dd.EnableCLI != "" {
		p.EnableCLI = dd.EnableCLI
	}
	if len(dd.ConfigModeCLIs) > 0 {
		p.ConfigMode = dd.ConfigModeCLIs
	}
	if dd.ConfigExitCLI != "" {
		p.ConfigExit = dd.ConfigExitCLI
	}
	if dd.RunningConfigCLI != "" {
		p.RunningConfig = dd.RunningConfigCLI
	}
	if dd.StructuredSuffix != "" {
		p.StructuredSuffix = dd.StructuredSuffix
	}
	if len(dd.ReplacePreludeCLIs) > 0 {
		p.ReplacePrelude = dd.ReplacePreludeCLIs
	}
	if len(dd.ReplaceCommitCLIs) > 0 {
		p.ReplaceCommit = dd.ReplaceCommitCLIs
	}
	if len(dd.ReplaceAbortCLIs) > 0 {
		p.ReplaceAbort = dd.ReplaceAbortCLIs
	}
	if dd.CommandIntervalMS > 0 {
		p.CommandInterval = time.Duration(dd.CommandIntervalMS) * time.Millisecond
	}
}

// matchHint 返回命中错误提示的输出行
func (p *Profile) matchHint(output string) (string, bool) {
	if len(p.ErrorHints) == 0 || output == "" {
		return "", false
	}
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		for _, h := range p.ErrorHints {
			if h != "" && strings.Contains(lower, strings.ToLower(h)) {
				return strings.TrimSpace(line), true
			}
		}
	}
	return "", false
}

// cleanRunningConfig 去掉运行配置的易变头部
func (p *Profile) cleanRunningConfig(output string) string {
	lines := strings.Split(output, "\n")
	out := lines[:0]
	for _, l := range lines {
		skip := false
		for _, pre := range p.RunningConfigSkip {
			if strings.HasPrefix(strings.TrimSpace(l), pre) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
