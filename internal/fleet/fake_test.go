package fleet

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/inventory"
)

// fakeDevice 模拟设备行为
type fakeDevice struct {
	connectErr error
	running    string
	rejected   map[string]bool // 被拒绝的命令/配置行
	broken     map[string]bool // 触发会话中断的命令
	block      map[string]bool // 阻塞到 ctx 取消的命令
	replaceErr error
	runningErr error
}

type fakeDriver struct {
	mu       sync.Mutex
	devices  map[string]*fakeDevice
	sent     map[string][]string
	replaced map[string]int
	closed   map[string]int
	blocked  chan string
	delay    time.Duration

	active    int32
	maxActive int32
}

func newFakeDriver(devices map[string]*fakeDevice) *fakeDriver {
	return &fakeDriver{
		devices:  devices,
		sent:     map[string][]string{},
		replaced: map[string]int{},
		closed:   map[string]int{},
		blocked:  make(chan string, 16),
	}
}

func (f *fakeDriver) Open(ctx context.Context, d inventory.Device, _ credential.Credentials) (Session, error) {
	f.mu.Lock()
	dev, ok := f.devices[d.Hostname]
	f.mu.Unlock()
	if !ok {
		dev = &fakeDevice{}
	}
	if dev.connectErr != nil {
		return nil, &ConnectError{Host: d.Hostname, Err: dev.connectErr}
	}
	n := atomic.AddInt32(&f.active, 1)
	for {
		m := atomic.LoadInt32(&f.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxActive, m, n) {
			break
		}
	}
	return &fakeSession{driver: f, host: d.Hostname, dev: dev}, nil
}

func (f *fakeDriver) sentTo(host string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[host]...)
}

type fakeSession struct {
	driver *fakeDriver
	host   string
	dev    *fakeDevice
	closed int32
}

func (s *fakeSession) record(cmd string) {
	s.driver.mu.Lock()
	s.driver.sent[s.host] = append(s.driver.sent[s.host], cmd)
	s.driver.mu.Unlock()
}

func (s *fakeSession) Send(ctx context.Context, command string, structured bool) (Output, error) {
	if s.driver.delay > 0 {
		select {
		case <-time.After(s.driver.delay):
		case <-ctx.Done():
			return Output{}, ctx.Err()
		}
	}
	if s.dev.block[command] {
		s.driver.blocked <- s.host
		<-ctx.Done()
		return Output{}, &SessionError{Host: s.host, Op: "send", Err: ctx.Err()}
	}
	s.record(command)
	if s.dev.broken[command] {
		return Output{}, &SessionError{Host: s.host, Op: "send", Err: errors.New("connection reset")}
	}
	if s.dev.rejected[command] {
		return Output{Raw: "% Invalid input"}, &CommandError{Command: command, Message: "% Invalid input"}
	}
	out := Output{Raw: "output of " + command}
	if structured {
		out.Parsed = map[string]interface{}{"command": command}
	}
	return out, nil
}

func (s *fakeSession) RunningConfig(ctx context.Context) (string, error) {
	if s.dev.runningErr != nil {
		return "", s.dev.runningErr
	}
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	return s.dev.running, nil
}

func (s *fakeSession) ApplyConfig(ctx context.Context, lines []string) (string, error) {
	for _, l := range lines {
		s.record(l)
		if s.dev.rejected[l] {
			return "% Invalid input", &CommandError{Command: l, Message: "% Invalid input"}
		}
	}
	return strings.Join(lines, "\n"), nil
}

func (s *fakeSession) ReplaceConfig(ctx context.Context, config string) error {
	if s.dev.replaceErr != nil {
		return s.dev.replaceErr
	}
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	s.dev.running = config
	s.driver.replaced[s.host]++
	return nil
}

func (s *fakeSession) Close() error {
	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		atomic.AddInt32(&s.driver.active, -1)
		s.driver.mu.Lock()
		s.driver.closed[s.host]++
		s.driver.mu.Unlock()
	}
	return nil
}

// staticCreds 所有设备返回同一凭据；fail 中的主机解析失败
type staticCreds struct {
	fail map[string]bool
}

func (c staticCreds) Resolve(d inventory.Device) (credential.Credentials, error) {
	if c.fail[d.Hostname] {
		return credential.Credentials{}, &credential.ResolutionError{Host: d.Hostname, Namespace: "default", Missing: []string{"PASSWORD"}}
	}
	return credential.Credentials{Username: "u", Password: "p", Extras: map[string]string{"tacacs_key": "tk"}}, nil
}

func dev(name, site, platform string, class inventory.Class) inventory.Device {
	return inventory.Device{Hostname: name, Address: name, Port: 22, Site: site, Platform: platform, Class: class, Data: map[string]interface{}{}}
}
