// Package lab 进程内 SSH 设备模拟器：用户名选择设备，提供交互式命令行、提权、配置模式与配置会话
package lab

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/netfleetpro/netfleet/pkg/logger"
)

// Server 模拟设备 SSH 服务
type Server struct {
	cfg      Config
	devices  map[string]*Device
	hostKey  ssh.Signer
	listener net.Listener

	mu     sync.Mutex
	active int
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// NewServer 创建模拟服务
func NewServer(cfg Config) (*Server, error) {
	if cfg.Password == "" {
		cfg.Password = "lab"
	}
	signer, err := loadOrCreateHostKey(cfg.HostKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to init host key: %w", err)
	}
	s := &Server{
		cfg:     cfg,
		devices: make(map[string]*Device, len(cfg.Devices)),
		hostKey: signer,
		conns:   make(map[net.Conn]struct{}),
	}
	for name, dc := range cfg.Devices {
		s.devices[name] = NewDevice(dc, name, cfg.OutputsDir)
	}
	return s, nil
}

// Device 按名称查询模拟设备
func (s *Server) Device(name string) *Device {
	return s.devices[name]
}

// Start 开始监听；listen 为空时使用配置中的地址
func (s *Server) Start() error {
	addr := s.cfg.Listen
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	logger.WithFields(logger.KV("addr", ln.Addr().String(), "devices", len(s.devices))).Info("Lab: listener started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logger.WithKV("error", err).Warn("Lab: accept error")
				time.Sleep(100 * time.Millisecond)
				continue
			}
			s.mu.Lock()
			if s.cfg.MaxConn > 0 && s.active >= s.cfg.MaxConn {
				s.mu.Unlock()
				_ = conn.Close()
				logger.Warn("Lab: reject connection, max_conn exceeded")
				continue
			}
			s.active++
			s.conns[conn] = struct{}{}
			s.mu.Unlock()

			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.handleConn(c)
				s.mu.Lock()
				s.active--
				delete(s.conns, c)
				s.mu.Unlock()
			}(conn)
		}
	}()
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port 实际监听端口
func (s *Server) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Stop 停止监听，断开现有连接并等待会话结束
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) handleConn(nc net.Conn) {
	check := func(user string, pass string) (*ssh.Permissions, error) {
		if _, ok := s.devices[user]; !ok {
			return nil, fmt.Errorf("unknown device %q", user)
		}
		if pass != s.cfg.Password {
			return nil, fmt.Errorf("access denied")
		}
		return nil, nil
	}
	srvCfg := &ssh.ServerConfig{
		PasswordCallback: func(md ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return check(md.User(), string(password))
		},
		KeyboardInteractiveCallback: func(md ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(md.User(), "Authentication", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 0 {
				return nil, fmt.Errorf("access denied")
			}
			return check(md.User(), answers[0])
		},
	}
	srvCfg.AddHostKey(s.hostKey)

	conn, chans, reqs, err := ssh.NewServerConn(nc, srvCfg)
	if err != nil {
		logger.WithKV("remote", nc.RemoteAddr().String(), "error", err).Debug("Lab: handshake failed")
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	dev := s.devices[conn.User()]
	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			logger.WithKV("error", err).Warn("Lab: channel accept failed")
			continue
		}
		go s.handleSession(channel, requests, dev)
	}
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request, dev *Device) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "pty-req", "window-change", "env":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			go ssh.DiscardRequests(requests)
			s.runShell(channel, dev)
			sendExitStatus(channel, 0)
			return
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			out, _, _ := newCLI(dev).handle(payload.Command)
			_, _ = io.WriteString(channel, crlf(out))
			sendExitStatus(channel, 0)
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func (s *Server) runShell(channel ssh.Channel, dev *Device) {
	c := newCLI(dev)
	write := func(str string) { _, _ = io.WriteString(channel, str) }
	log := logger.WithKV("device", dev.Name)

	write(fmt.Sprintf("\r\n%s lab device (%s)\r\n\r\n%s", dev.Name, dev.Platform, c.prompt()))

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		r := bufio.NewReader(channel)
		for {
			line, err := r.ReadString('\n')
			if line != "" || err == nil {
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	var idle <-chan time.Time
	for {
		if s.cfg.IdleTimeout > 0 {
			idle = time.After(time.Duration(s.cfg.IdleTimeout) * time.Second)
		}
		var line string
		var ok bool
		select {
		case line, ok = <-lines:
			if !ok {
				return
			}
		case <-idle:
			write("\r\nSession closed due to idle timeout.\r\n")
			return
		}

		cmd := strings.TrimSpace(strings.ReplaceAll(line, "\r", ""))
		if c.echo() {
			write(cmd + "\r\n")
		}
		out, showPrompt, exit := c.handle(cmd)
		log.WithFields(logger.KV("cmd", cmd)).Debug("Lab: input")
		if exit {
			return
		}
		if out != "" {
			if showPrompt {
				write(crlf(out))
			} else {
				write(out)
			}
		}
		if showPrompt {
			write(c.prompt())
		}
	}
}

func sendExitStatus(channel ssh.Channel, code uint32) {
	_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{code}))
}

// crlf 将输出规范为 CRLF 并保证以换行结束
func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}

// loadOrCreateHostKey 加载或生成 ed25519 主机密钥；path 为空时只在内存中生成
func loadOrCreateHostKey(path string) (ssh.Signer, error) {
	if path != "" {
		if bs, err := os.ReadFile(path); err == nil {
			signer, err := ssh.ParsePrivateKey(bs)
			if err == nil {
				return signer, nil
			}
			logger.WithKV("file", path, "error", err).Warn("Lab: host key parse failed, regenerating")
		}
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return signer, nil
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure host key dir: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write host key: %w", err)
	}
	logger.WithKV("file", path).Info("Lab: host key generated")
	return signer, nil
}
