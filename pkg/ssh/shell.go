package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrShellClosed Shell 已关闭或对端断开
	ErrShellClosed = errors.New("shell closed")
	// ErrPromptTimeout 在期限内未等到提示符，会话状态未知
	ErrPromptTimeout = errors.New("timed out waiting for prompt")
)

// AutoInteraction 自动交互对：输出包含 ExpectOutput（大小写不敏感）时发送 AutoSend
type AutoInteraction struct {
	ExpectOutput string
	AutoSend     string
}

// ShellOptions 交互式 Shell 选项
type ShellOptions struct {
	PromptSuffixes   []string
	EnablePassword   string
	AutoInteractions []AutoInteraction
	CommandInterval  time.Duration
	ExitCommands     []string
	// ReadyTimeout 等待首个提示符的上限
	ReadyTimeout time.Duration
	// PromptSettle 未换行的提示符在多久无新数据后确认
	PromptSettle time.Duration
}

func (o *ShellOptions) withDefaults() {
	if len(o.PromptSuffixes) == 0 {
		o.PromptSuffixes = DefaultPromptSuffixes
	}
	if len(o.ExitCommands) == 0 {
		o.ExitCommands = []string{"exit"}
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 15 * time.Second
	}
	if o.PromptSettle <= 0 {
		o.PromptSettle = 150 * time.Millisecond
	}
}

// Shell 单一 PTY 会话上的串行命令执行器，以提示符分隔每条命令的输出
type Shell struct {
	opts   ShellOptions
	stdin  io.WriteCloser
	closer func() error
	prompt *promptMatcher

	data    chan []byte
	readMu  sync.Mutex
	readErr error
	readers sync.WaitGroup

	mu      sync.Mutex
	pending string
	prevCmd string
	lastRun time.Time
	closed  atomic.Bool
}

// NewShell 基于已启动的输入输出流创建 Shell；outputs 通常为 stdout 与 stderr
func NewShell(stdin io.WriteCloser, closer func() error, opts ShellOptions, outputs ...io.Reader) *Shell {
	opts.withDefaults()
	s := &Shell{
		opts:   opts,
		stdin:  stdin,
		closer: closer,
		prompt: newPromptMatcher(opts.PromptSuffixes),
		data:   make(chan []byte, 256),
	}
	for _, r := range outputs {
		s.readers.Add(1)
		go s.readLoop(r)
	}
	go func() {
		s.readers.Wait()
		close(s.data)
	}()
	return s
}

func (s *Shell) readLoop(r io.Reader) {
	defer s.readers.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.data <- chunk
		}
		if err != nil {
			s.readMu.Lock()
			if s.readErr == nil {
				s.readErr = err
			}
			s.readMu.Unlock()
			return
		}
	}
}

func (s *Shell) eofError() error {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.readErr != nil && !errors.Is(s.readErr, io.EOF) {
		return fmt.Errorf("%w: %v", ErrShellClosed, s.readErr)
	}
	return ErrShellClosed
}

// Prompt 首个提示符的主机名前缀
func (s *Shell) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt.prefix
}

// WaitReady 等待登录横幅后的首个提示符；期间定期发送回车诱发提示符
func (s *Shell) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opts.ReadyTimeout)
	defer cancel()

	_, _ = io.WriteString(s.stdin, "\r\n")
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_, _ = io.WriteString(s.stdin, "\r\n")
			}
		}
	}()

	err := s.readUntilPrompt(ctx,
		func(line string) bool {
			if s.prompt.isPrompt(line) {
				s.prompt.capture(line)
				return true
			}
			return false
		},
		func(string) bool { return false },
	)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no prompt within %s", ErrPromptTimeout, s.opts.ReadyTimeout)
	}
	if err != nil {
		return err
	}
	// 残留的提示符与横幅不计入第一条命令
	time.Sleep(s.opts.PromptSettle)
	s.drain()
	return nil
}

// Run 发送一条命令并收集输出直到下一个提示符。
// ctx 到期时返回已读到的输出与 ErrPromptTimeout。
func (s *Shell) Run(ctx context.Context, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return "", ErrShellClosed
	}

	if s.opts.CommandInterval > 0 && !s.lastRun.IsZero() {
		if wait := s.opts.CommandInterval - time.Since(s.lastRun); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	defer func() {
		s.prevCmd = command
		s.lastRun = time.Now()
	}()

	s.drain()
	if _, err := io.WriteString(s.stdin, command+"\r\n"); err != nil {
		return "", fmt.Errorf("%w: write command: %v", ErrShellClosed, err)
	}

	c := &commandCollector{
		shell:      s,
		command:    strings.TrimSpace(command),
		echoRemain: strings.TrimSpace(command),
	}
	err := s.readUntilPrompt(ctx, c.line, c.partial)
	out := c.output()
	if errors.Is(err, context.DeadlineExceeded) {
		return out, fmt.Errorf("%w: %q", ErrPromptTimeout, command)
	}
	return out, err
}

// Close 依次发送退出命令后关闭会话；可与阻塞中的 Run 并发调用
func (s *Shell) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, ec := range s.opts.ExitCommands {
		if _, err := io.WriteString(s.stdin, ec+"\r\n"); err != nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = s.stdin.Close()
	var err error
	if s.closer != nil {
		err = s.closer()
	}
	done := make(chan struct{})
	go func() {
		for range s.data {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return err
}

// drain 丢弃已到达但未处理的数据
func (s *Shell) drain() {
	for {
		select {
		case _, ok := <-s.data:
			if !ok {
				s.pending = ""
				return
			}
		default:
			s.pending = ""
			return
		}
	}
}

// feed 追加数据并返回完整行；CRLF 统一为换行，孤立 CR 去除
func (s *Shell) feed(chunk []byte) []string {
	buf := s.pending + string(chunk)
	buf = strings.ReplaceAll(buf, "\r\n", "\n")
	buf = strings.ReplaceAll(buf, "\r", "")
	parts := strings.Split(buf, "\n")
	s.pending = parts[len(parts)-1]
	return parts[:len(parts)-1]
}

// readUntilPrompt 读取输出：完整行交给 onLine，未换行的尾部交给 onPartial（返回 true 表示已消费）。
// onLine 返回 true 或尾部是稳定的提示符时结束。
func (s *Shell) readUntilPrompt(ctx context.Context, onLine func(string) bool, onPartial func(string) bool) error {
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-s.data:
			if !ok {
				return s.eofError()
			}
			settle.Stop()
			for _, line := range s.feed(chunk) {
				if onLine(EnsureUTF8(line)) {
					s.pending = ""
					return nil
				}
			}
			if s.pending == "" {
				continue
			}
			if onPartial(EnsureUTF8(s.pending)) {
				s.pending = ""
				continue
			}
			if s.prompt.isPrompt(s.pending) {
				settle.Reset(s.opts.PromptSettle)
			}

		case <-settle.C:
			if s.prompt.isPrompt(s.pending) && onLine(s.pending) {
				s.pending = ""
				return nil
			}
		}
	}
}

// commandCollector 单条命令的输出收集：剥离回显、识别提示符、处理自动交互
type commandCollector struct {
	shell      *Shell
	command    string
	echoRemain string
	echoSeen   bool
	sawContent bool
	lines      []string
}

func (c *commandCollector) line(raw string) bool {
	s := c.shell
	clean := sanitize(raw)

	// 上一条命令的延迟回显（提示符 + 命令）
	if clean != "" && !c.sawContent && !c.echoSeen && s.prevCmd != "" {
		cand := strings.ToLower(s.prompt.stripPrefix(clean))
		prev := strings.ToLower(strings.TrimSpace(s.prevCmd))
		if cand != "" && cand != strings.ToLower(c.command) && (cand == prev || strings.HasPrefix(prev, cand)) {
			return false
		}
	}

	if c.echoRemain != "" && clean != "" {
		cand := s.prompt.stripPrefix(clean)
		lowerCand := strings.ToLower(cand)
		lowerCmd := strings.ToLower(c.command)
		switch {
		case cand != "" && strings.HasPrefix(c.echoRemain, cand):
			// 回显可能被拆分到多行
			c.echoRemain = strings.TrimSpace(strings.TrimPrefix(c.echoRemain, cand))
			c.echoSeen = true
			return false
		case cand != "" && strings.Contains(lowerCand, lowerCmd):
			c.echoRemain = ""
			c.echoSeen = true
			return false
		case cand != "" && !s.prompt.isPrompt(clean) && strings.Contains(lowerCmd, lowerCand):
			c.echoSeen = true
			return false
		case !s.prompt.isPrompt(clean):
			c.echoRemain = ""
		}
	}

	if s.prompt.isPrompt(clean) {
		// 回显之前的提示符是上一条命令的残留
		return c.echoSeen || c.sawContent
	}

	c.lines = append(c.lines, clean)
	if clean != "" {
		c.sawContent = true
	}
	c.respond(clean)
	return false
}

func (c *commandCollector) partial(raw string) bool {
	clean := sanitize(raw)
	if clean == "" {
		return false
	}
	if c.shell.prompt.isPrompt(clean) {
		return false
	}
	return c.respond(clean)
}

// respond enable 密码提示与自动交互；返回是否已发送响应
func (c *commandCollector) respond(clean string) bool {
	s := c.shell
	lower := strings.ToLower(clean)
	if s.opts.EnablePassword != "" && strings.EqualFold(c.command, "enable") && strings.Contains(lower, "password") {
		_, _ = io.WriteString(s.stdin, s.opts.EnablePassword+"\r\n")
		return true
	}
	for _, ai := range s.opts.AutoInteractions {
		if ai.ExpectOutput == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(ai.ExpectOutput)) {
			_, _ = io.WriteString(s.stdin, ai.AutoSend+"\r\n")
			return true
		}
	}
	return false
}

func (c *commandCollector) output() string {
	lines := c.lines
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
