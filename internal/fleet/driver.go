package fleet

import (
	"context"

	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/inventory"
)

// Output 单条命令输出
type Output struct {
	Raw    string
	Parsed interface{}
}

// Driver 建立设备会话
type Driver interface {
	Open(ctx context.Context, d inventory.Device, creds credential.Credentials) (Session, error)
}

// Session 单台设备上的会话，同一会话内命令串行执行。
// Close 在任意错误之后调用都必须安全。
type Session interface {
	Send(ctx context.Context, command string, structured bool) (Output, error)
	Close() error
}

// ConfigSession 支持配置下发的会话
type ConfigSession interface {
	Session
	RunningConfig(ctx context.Context) (string, error)
	ApplyConfig(ctx context.Context, lines []string) (string, error)
	ReplaceConfig(ctx context.Context, config string) error
}

// CredentialResolver 凭据解析
type CredentialResolver interface {
	Resolve(d inventory.Device) (credential.Credentials, error)
}
