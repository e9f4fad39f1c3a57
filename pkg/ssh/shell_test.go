package ssh

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// fakeCLI 通过管道模拟网络设备的交互式命令行
type fakeCLI struct {
	hostname      string
	mode          string
	newlinePrompt bool
	outputs       map[string]string
}

func (f *fakeCLI) prompt() string {
	p := f.hostname + f.mode
	if f.newlinePrompt {
		p += "\r\n"
	}
	return p
}

func (f *fakeCLI) serve(in io.ReadCloser, out io.WriteCloser) {
	defer in.Close()
	defer out.Close()
	r := bufio.NewReader(in)
	write := func(s string) { _, _ = io.WriteString(out, s) }

	write("Welcome to the lab\r\n\r\n" + f.prompt())
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		write(cmd + "\r\n")
		switch cmd {
		case "":
			write(f.prompt())
		case "exit", "crash":
			return
		case "enable":
			write("Password: ")
			pw, _ := r.ReadString('\n')
			if strings.TrimSpace(pw) == "secret" {
				f.mode = "#"
			} else {
				write("% Bad secrets\r\n")
			}
			write("\r\n" + f.prompt())
		case "show long":
			write("line1\r\nline2\r\n --More-- ")
			_, _ = r.ReadString('\n')
			write("\b\b\b\b\b\b\b\b\b\b          \b\b\b\b\b\b\b\b\b\bline3\r\n" + f.prompt())
		case "hang":
			write("working...\r\n")
		default:
			if out, ok := f.outputs[cmd]; ok {
				write(out)
			} else {
				write("% Invalid input detected at '^' marker.\r\n")
			}
			write(f.prompt())
		}
	}
}

func startShell(t *testing.T, f *fakeCLI) *Shell {
	t.Helper()
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	go f.serve(cmdR, outW)

	sh := NewShell(cmdW, outW.Close, ShellOptions{
		PromptSettle:     20 * time.Millisecond,
		ReadyTimeout:     2 * time.Second,
		EnablePassword:   "secret",
		AutoInteractions: []AutoInteraction{{ExpectOutput: "--More--", AutoSend: " "}},
	}, outR)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, sh.WaitReady(ctx), "应检测到首个提示符")
	t.Cleanup(func() { _ = sh.Close() })
	return sh
}

func run(t *testing.T, sh *Shell, cmd string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return sh.Run(ctx, cmd)
}

func TestShellRunStripsEchoAndPrompt(t *testing.T) {
	for _, newline := range []bool{false, true} {
		f := &fakeCLI{hostname: "r1", mode: ">", newlinePrompt: newline, outputs: map[string]string{
			"show version":  "Cisco IOS XE Software, Version 17.3.1\r\nuptime is 5 weeks\r\n",
			"show clock":    "*10:00:00.000 UTC Mon Jan 1 2024\r\n",
			"terminal len 0": "",
		}}
		sh := startShell(t, f)
		assert.Equal(t, "r1", sh.Prompt())

		out, err := run(t, sh, "show version")
		require.NoError(t, err)
		assert.Equal(t, "Cisco IOS XE Software, Version 17.3.1\nuptime is 5 weeks", out)

		out, err = run(t, sh, "terminal len 0")
		require.NoError(t, err)
		assert.Empty(t, out, "无输出的命令在提示符处结束")

		out, err = run(t, sh, "show clock")
		require.NoError(t, err)
		assert.Equal(t, "*10:00:00.000 UTC Mon Jan 1 2024", out, "输出不应混入上一条命令")
	}
}

func TestShellEnablePassword(t *testing.T) {
	f := &fakeCLI{hostname: "r1", mode: ">", outputs: map[string]string{"show privilege": "Current privilege level is 15\r\n"}}
	sh := startShell(t, f)

	out, err := run(t, sh, "enable")
	require.NoError(t, err)
	assert.NotContains(t, out, "Bad secrets")

	out, err = run(t, sh, "show privilege")
	require.NoError(t, err)
	assert.Equal(t, "Current privilege level is 15", out)
}

func TestShellAutoInteractionPager(t *testing.T) {
	sh := startShell(t, &fakeCLI{hostname: "r1", mode: "#"})
	out, err := run(t, sh, "show long")
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3", out, "分页提示应自动翻页且不进入输出")
}

func TestShellTimeout(t *testing.T) {
	sh := startShell(t, &fakeCLI{hostname: "r1", mode: "#"})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out, err := sh.Run(ctx, "hang")
	assert.True(t, errors.Is(err, ErrPromptTimeout))
	assert.Equal(t, "working...", out, "超时返回已读到的输出")
}

func TestShellPeerClosed(t *testing.T) {
	sh := startShell(t, &fakeCLI{hostname: "r1", mode: "#"})
	_, err := run(t, sh, "crash")
	assert.True(t, errors.Is(err, ErrShellClosed))

	_ = sh.Close()
	_, err = run(t, sh, "show clock")
	assert.True(t, errors.Is(err, ErrShellClosed), "关闭后不能再执行命令")
}

func TestShellCancel(t *testing.T) {
	sh := startShell(t, &fakeCLI{hostname: "r1", mode: "#"})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := sh.Run(ctx, "hang")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPromptMatcher(t *testing.T) {
	m := newPromptMatcher(nil)
	assert.True(t, m.isPrompt("r1>"))
	m.capture("r1>")
	assert.Equal(t, "r1", m.prefix)
	assert.True(t, m.isPrompt("r1(config-if)#"))
	assert.False(t, m.isPrompt("interface <name>"), "不含主机名的行不是提示符")
	assert.True(t, m.isPrompt("\x1b[0mr1#\x1b[K"))

	assert.Equal(t, "show version", m.stripPrefix("r1#show version"))
	assert.Equal(t, "description x", m.stripPrefix("r1(config-if)#description x"))
	assert.Equal(t, "plain output", m.stripPrefix("plain output"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello", sanitize("\x1b[1;32mhello\x1b[0m"))
	assert.Equal(t, "line3", sanitize("\b\b\b   \b\b\bline3"))
	assert.Equal(t, "a\tb", sanitize("a\tb\x07"))
}

func TestEnsureUTF8(t *testing.T) {
	gbk, err := simplifiedchinese.GBK.NewEncoder().String("接口描述")
	require.NoError(t, err)
	assert.Equal(t, "接口描述", EnsureUTF8(gbk))
	assert.Equal(t, "already utf8 ✓", EnsureUTF8("already utf8 ✓"))
	assert.Equal(t, "", EnsureUTF8(""))
}
