// Package driver 通过 SSH 交互式命令行驱动网络设备，按平台参数适配提示符、分页、配置模式等差异
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/inventory"
	"github.com/netfleetpro/netfleet/pkg/logger"
	"github.com/netfleetpro/netfleet/pkg/ssh"
)

// shell 会话所需的最小能力
type shell interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

// dialFunc 建立到设备的交互式 Shell
type dialFunc func(ctx context.Context, d inventory.Device, creds credential.Credentials, p Profile) (shell, error)

// CLIDriver 基于 SSH 交互式 Shell 的驱动，适用于所有内置平台
type CLIDriver struct {
	cfg  *config.Config
	dial dialFunc
}

// NewCLIDriver 创建命令行驱动
func NewCLIDriver(cfg *config.Config) *CLIDriver {
	if cfg == nil {
		cfg = config.Default()
	}
	d := &CLIDriver{cfg: cfg}
	d.dial = d.dialSSH
	return d
}

// dialSSH 连接设备并打开 Shell；连接在 Shell 关闭时一并关闭
func (c *CLIDriver) dialSSH(ctx context.Context, d inventory.Device, creds credential.Credentials, p Profile) (shell, error) {
	client := ssh.NewClient(&ssh.Config{
		Timeout:   c.cfg.SSH.ConnectTimeout,
		KeepAlive: c.cfg.SSH.KeepAliveInterval,
	})
	info := &ssh.ConnectionInfo{
		Host:     d.Address,
		Port:     d.Port,
		Username: creds.Username,
		Password: creds.Password,
		KeyFile:  creds.KeyFile,
	}
	if err := client.Connect(ctx, info); err != nil {
		return nil, err
	}

	enable := creds.Extras["enable_secret"]
	if enable == "" {
		enable = creds.Password
	}
	sh, err := client.OpenShell(ctx, ssh.ShellOptions{
		PromptSuffixes:   p.PromptSuffixes,
		EnablePassword:   enable,
		AutoInteractions: p.AutoInteractions,
		CommandInterval:  p.CommandInterval,
		ReadyTimeout:     c.cfg.SSH.ConnectTimeout,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &clientShell{Shell: sh, client: client}, nil
}

type clientShell struct {
	*ssh.Shell
	client *ssh.Client
}

func (s *clientShell) Close() error {
	err := s.Shell.Close()
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Open 建立会话：连接、提权、关闭分页。任一步失败都视为连接失败
func (c *CLIDriver) Open(ctx context.Context, d inventory.Device, creds credential.Credentials) (fleet.Session, error) {
	p := ProfileFor(d.Platform, c.cfg)
	log := logger.WithFields(logrus.Fields{"host": d.Hostname, "platform": d.Platform, "address": d.Address})

	sh, err := c.dial(ctx, d, creds, p)
	if err != nil {
		return nil, &fleet.ConnectError{Host: d.Hostname, Err: err}
	}
	s := &cliSession{host: d.Hostname, platform: d.Platform, profile: p, shell: sh, log: log}

	var prep []string
	if p.EnableRequired && p.EnableCLI != "" {
		prep = append(prep, p.EnableCLI)
	}
	prep = append(prep, p.DisablePaging...)
	for _, cmd := range prep {
		if _, err := s.run(ctx, cmd); err != nil {
			_ = sh.Close()
			return nil, &fleet.ConnectError{Host: d.Hostname, Err: fmt.Errorf("session setup %q: %w", cmd, err)}
		}
	}
	log.Debug("Session ready")
	return s, nil
}

// cliSession 实现 fleet.ConfigSession
type cliSession struct {
	host     string
	platform string
	profile  Profile
	shell    shell
	log      *logrus.Entry
}

// run 带命令超时执行；传输错误统一为 SessionError
func (s *cliSession) run(ctx context.Context, cmd string) (string, error) {
	timeout := s.profile.CommandTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, err := s.shell.Run(cctx, cmd)
	logger.LogCommandOutput(s.log.WithField("duration", time.Since(start).String()), cmd, out)
	if err != nil {
		return out, &fleet.SessionError{Host: s.host, Op: "send", Err: err}
	}
	return out, nil
}

// checked 执行命令并按错误提示识别设备拒绝
func (s *cliSession) checked(ctx context.Context, cmd string) (string, error) {
	out, err := s.run(ctx, cmd)
	if err != nil {
		return out, err
	}
	if msg, hit := s.profile.matchHint(out); hit {
		return out, &fleet.CommandError{Command: cmd, Message: msg}
	}
	return out, nil
}

// Send 执行只读命令；structured 时追加结构化后缀并解析 JSON
func (s *cliSession) Send(ctx context.Context, command string, structured bool) (fleet.Output, error) {
	cmd := command
	if structured {
		if s.profile.StructuredSuffix == "" {
			return fleet.Output{}, &fleet.UnsupportedError{Host: s.host, Platform: s.platform, Task: fleet.KindExec, Reason: "structured output not available"}
		}
		cmd += s.profile.StructuredSuffix
	}
	out, err := s.checked(ctx, cmd)
	res := fleet.Output{Raw: out}
	if err != nil || !structured {
		return res, err
	}
	var parsed interface{}
	if jerr := json.Unmarshal([]byte(extractJSON(out)), &parsed); jerr != nil {
		return res, &fleet.CommandError{Command: cmd, Message: "invalid structured output: " + jerr.Error()}
	}
	res.Parsed = parsed
	return res, nil
}

// extractJSON 截取首个 { 或 [ 到末尾，忽略前导横幅
func extractJSON(out string) string {
	if i := strings.IndexAny(out, "{["); i > 0 {
		return out[i:]
	}
	return out
}

// RunningConfig 读取运行配置
func (s *cliSession) RunningConfig(ctx context.Context) (string, error) {
	if s.profile.RunningConfig == "" {
		return "", &fleet.UnsupportedError{Host: s.host, Platform: s.platform, Task: fleet.KindConfigReplace, Reason: "no running-config command"}
	}
	out, err := s.checked(ctx, s.profile.RunningConfig)
	if err != nil {
		return "", err
	}
	return s.profile.cleanRunningConfig(out), nil
}

// ApplyConfig 进入配置模式逐行下发；设备拒绝某行时退出配置模式并返回 CommandError
func (s *cliSession) ApplyConfig(ctx context.Context, lines []string) (string, error) {
	if len(s.profile.ConfigMode) == 0 {
		return "", &fleet.UnsupportedError{Host: s.host, Platform: s.platform, Task: fleet.KindConfigApply, Reason: "no configuration mode"}
	}
	var transcript []string
	for _, cmd := range s.profile.ConfigMode {
		out, err := s.checked(ctx, cmd)
		transcript = appendOutput(transcript, out)
		if err != nil {
			return strings.Join(transcript, "\n"), err
		}
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out, err := s.checked(ctx, line)
		transcript = appendOutput(transcript, out)
		if err != nil {
			var ce *fleet.CommandError
			if errors.As(err, &ce) {
				if xerr := s.exitConfig(ctx); xerr != nil {
					// 仍停留在配置模式，后续任务不可继续
					return strings.Join(transcript, "\n"), &fleet.SessionError{
						Host: s.host,
						Op:   "exit config",
						Err:  fmt.Errorf("after rejected line %q: %w", line, xerr),
					}
				}
			}
			return strings.Join(transcript, "\n"), err
		}
	}
	if err := s.exitConfig(ctx); err != nil {
		return strings.Join(transcript, "\n"), err
	}
	return strings.Join(transcript, "\n"), nil
}

func (s *cliSession) exitConfig(ctx context.Context) error {
	if s.profile.ConfigExit == "" {
		return nil
	}
	_, err := s.run(ctx, s.profile.ConfigExit)
	return err
}

// ReplaceConfig 以完整配置替换运行配置：前导命令 -> 配置行 -> 提交；失败时执行放弃命令
func (s *cliSession) ReplaceConfig(ctx context.Context, cfg string) error {
	if len(s.profile.ReplacePrelude) == 0 || len(s.profile.ReplaceCommit) == 0 {
		return &fleet.UnsupportedError{Host: s.host, Platform: s.platform, Task: fleet.KindConfigReplace, Reason: "no replace procedure for platform"}
	}
	steps := append([]string{}, s.profile.ReplacePrelude...)
	for _, line := range strings.Split(strings.ReplaceAll(cfg, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		steps = append(steps, line)
	}
	steps = append(steps, s.profile.ReplaceCommit...)

	for _, cmd := range steps {
		if _, err := s.checked(ctx, cmd); err != nil {
			var ce *fleet.CommandError
			if errors.As(err, &ce) {
				if aerr := s.abort(ctx); aerr != nil {
					return &fleet.SessionError{
						Host: s.host,
						Op:   "abort config session",
						Err:  fmt.Errorf("after rejected line %q: %w", cmd, aerr),
					}
				}
			}
			return err
		}
	}
	s.log.Info("Configuration replaced")
	return nil
}

func (s *cliSession) abort(ctx context.Context) error {
	for _, cmd := range s.profile.ReplaceAbort {
		if _, err := s.run(ctx, cmd); err != nil {
			s.log.WithError(err).Warn("Abort command failed")
			return err
		}
	}
	return nil
}

// Close 关闭会话，可重复调用
func (s *cliSession) Close() error {
	return s.shell.Close()
}

func appendOutput(transcript []string, out string) []string {
	if strings.TrimSpace(out) == "" {
		return transcript
	}
	return append(transcript, out)
}
