package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Config SSH配置
type Config struct {
	Timeout   time.Duration `yaml:"timeout"`
	KeepAlive time.Duration `yaml:"keep_alive"`
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	KeyFile  string `json:"key_file,omitempty"`
}

// Address host:port
func (i *ConnectionInfo) Address() string {
	port := i.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(i.Host, strconv.Itoa(port))
}

// Client SSH客户端，一台设备一个连接
type Client struct {
	config     *Config
	connection *ssh.Client
	mutex      sync.RWMutex
	stop       chan struct{}
}

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{config: config}
}

// clientConfig 兼容老旧网络设备的算法列表
func (c *Client) clientConfig(info *ConnectionInfo) (*ssh.ClientConfig, error) {
	cfg := &ssh.ClientConfig{
		User:            info.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.config.Timeout,
		Config: ssh.Config{
			KeyExchanges: []string{
				"curve25519-sha256",
				"curve25519-sha256@libssh.org",
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group14-sha256",
				"diffie-hellman-group14-sha1",
				"diffie-hellman-group1-sha1",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group-exchange-sha1",
			},
			Ciphers: []string{
				"aes128-gcm@openssh.com",
				"aes256-gcm@openssh.com",
				"chacha20-poly1305@openssh.com",
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-cbc",
				"aes192-cbc",
				"aes256-cbc",
				"3des-cbc",
			},
			MACs: []string{
				"hmac-sha2-256-etm@openssh.com",
				"hmac-sha2-256",
				"hmac-sha1",
				"hmac-sha1-96",
			},
		},
		HostKeyAlgorithms: []string{
			"ssh-ed25519",
			"ecdsa-sha2-nistp256",
			"ecdsa-sha2-nistp384",
			"ecdsa-sha2-nistp521",
			"rsa-sha2-512",
			"rsa-sha2-256",
			"ssh-rsa",
		},
	}

	if info.KeyFile != "" {
		signer, err := loadKey(info.KeyFile, info.Password)
		if err != nil {
			return nil, err
		}
		cfg.Auth = append(cfg.Auth, ssh.PublicKeys(signer))
	}
	if info.Password != "" {
		// 同时尝试 password 与 keyboard-interactive，提高与网络设备的兼容性
		password := info.Password
		cfg.Auth = append(cfg.Auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}
	if len(cfg.Auth) == 0 {
		return nil, errors.New("no authentication method: password or key file required")
	}
	return cfg, nil
}

// loadKey 读取私钥；带口令的私钥使用密码作为口令
func loadKey(path, passphrase string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	}
	if err != nil {
		return nil, fmt.Errorf("parse key file %s: %w", path, err)
	}
	return signer, nil
}

// Connect 连接SSH服务器
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	sshConfig, err := c.clientConfig(info)
	if err != nil {
		return err
	}

	address := info.Address()
	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}

	// 握手同样受 ctx 约束
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stopWatch:
		}
	}()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	close(stopWatch)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to create SSH connection: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)
	c.stop = make(chan struct{})
	go c.keepAlive(c.connection, c.stop)
	return nil
}

// newSessionWithRetry 创建会话（带重试）
// 部分网络设备在登录后短时间内打开通道会返回
// "administratively prohibited (open failed)"，进行短延迟重试
func (c *Client) newSessionWithRetry(ctx context.Context) (*ssh.Session, error) {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("SSH connection not established")
	}

	backoffs := []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond, time.Second}
	var lastErr error
	for _, d := range backoffs {
		if d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		sess, err := conn.NewSession()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "prohibited") && !strings.Contains(msg, "open failed") {
			break
		}
	}
	return nil, lastErr
}

// OpenShell 请求 PTY 并启动交互式 Shell，等待首个提示符后返回
func (c *Client) OpenShell(ctx context.Context, opts ShellOptions) (*Shell, error) {
	session, err := c.newSessionWithRetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	// 宽终端避免设备自动折行
	var ptyErr error
	for _, term := range []string{"vt100", "xterm", "ansi", "dumb"} {
		if ptyErr = session.RequestPty(term, 24, 511, modes); ptyErr == nil {
			break
		}
	}
	if ptyErr != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request pty: %w", ptyErr)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to get stderr: %w", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	sh := NewShell(stdin, session.Close, opts, stdout, stderr)
	if err := sh.WaitReady(ctx); err != nil {
		_ = sh.Close()
		return nil, err
	}
	return sh, nil
}

// Close 关闭SSH连接
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.connection != nil {
		err := c.connection.Close()
		c.connection = nil
		return err
	}
	return nil
}

// IsConnected 发送 keepalive 请求检查连接，不创建会话
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	conn := c.connection
	c.mutex.RUnlock()
	if conn == nil {
		return false
	}
	_, _, err := conn.SendRequest("keepalive@openssh.com", false, nil)
	return err == nil
}

// keepAlive 保持连接活跃
func (c *Client) keepAlive(conn *ssh.Client, stop <-chan struct{}) {
	if c.config.KeepAlive <= 0 {
		return
	}
	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := conn.SendRequest("keepalive@openssh.com", false, nil); err != nil {
				return
			}
		}
	}
}
