package credential

import (
	"fmt"
	"strings"

	"github.com/netfleetpro/netfleet/internal/inventory"
)

// DefaultNamespace 未匹配平台或类别时使用的命名空间
const DefaultNamespace = "default"

// DefaultUsernameKey default 命名空间的用户名键；不使用裸 USERNAME，它常被操作系统占用
const DefaultUsernameKey = "NETFLEET_USERNAME"

// Credentials 设备登录凭据；不参与序列化，也不会出现在日志与报告中
type Credentials struct {
	Username string            `json:"-"`
	Password string            `json:"-"`
	KeyFile  string            `json:"-"`
	Extras   map[string]string `json:"-"`
}

// String 脱敏输出
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username:%q, Password:<redacted>, KeyFile:%q, Extras:%d}", c.Username, c.KeyFile, len(c.Extras))
}

// GoString 与 String 一致，避免 %#v 泄露
func (c Credentials) GoString() string { return c.String() }

// ResolutionError 凭据缺失
type ResolutionError struct {
	Host      string
	Namespace string
	Missing   []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("credentials for %s (namespace %s): missing %s", e.Host, e.Namespace, strings.Join(e.Missing, " or "))
}

// Resolver 按设备平台与类别解析凭据；构造后只读，可并发使用
type Resolver struct {
	secrets         SecretSource
	namespaces      map[string]string
	classNamespaces map[string]string
	extras          []string
}

// Option 解析器选项
type Option func(*Resolver)

// WithNamespaces 平台名 -> 命名空间
func WithNamespaces(m map[string]string) Option {
	return func(r *Resolver) {
		for k, v := range m {
			r.namespaces[strings.ToLower(k)] = v
		}
	}
}

// WithClassNamespaces 设备类别名 -> 命名空间
func WithClassNamespaces(m map[string]string) Option {
	return func(r *Resolver) {
		for k, v := range m {
			r.classNamespaces[strings.ToLower(k)] = v
		}
	}
}

// WithExtras 额外秘密键名（全局、可选）
func WithExtras(keys ...string) Option {
	return func(r *Resolver) {
		r.extras = append(r.extras, keys...)
	}
}

// NewResolver 创建凭据解析器
func NewResolver(secrets SecretSource, opts ...Option) *Resolver {
	r := &Resolver{
		secrets:         secrets,
		namespaces:      map[string]string{},
		classNamespaces: map[string]string{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Namespace 设备所属命名空间：平台映射 > 类别映射 > default
func (r *Resolver) Namespace(d inventory.Device) string {
	if ns, ok := r.namespaces[strings.ToLower(d.Platform)]; ok && ns != "" {
		return ns
	}
	if ns, ok := r.classNamespaces[d.Class.String()]; ok && ns != "" {
		return ns
	}
	return DefaultNamespace
}

// Resolve 解析设备凭据。键名为 <NS>_PASSWORD / <NS>_USERNAME / <NS>_KEY_FILE，
// default 命名空间的密码与密钥不带前缀，用户名为 NETFLEET_USERNAME。
// 用户名缺省时使用清单中的登录名。
func (r *Resolver) Resolve(d inventory.Device) (Credentials, error) {
	ns := r.Namespace(d)
	key := func(name string) string {
		if ns == DefaultNamespace {
			return name
		}
		return strings.ToUpper(ns) + "_" + name
	}

	userKey := key("USERNAME")
	if ns == DefaultNamespace {
		userKey = DefaultUsernameKey
	}

	creds := Credentials{Username: d.Username}
	if v, ok := r.lookup(userKey); ok {
		creds.Username = v
	}
	creds.Password, _ = r.lookup(key("PASSWORD"))
	creds.KeyFile, _ = r.lookup(key("KEY_FILE"))

	var missing []string
	if creds.Username == "" {
		missing = append(missing, userKey)
	}
	if creds.Password == "" && creds.KeyFile == "" {
		missing = append(missing, key("PASSWORD"), key("KEY_FILE"))
	}
	if len(missing) > 0 {
		return Credentials{}, &ResolutionError{Host: d.Hostname, Namespace: ns, Missing: missing}
	}

	for _, name := range r.extras {
		if v, ok := r.lookup(name); ok {
			if creds.Extras == nil {
				creds.Extras = map[string]string{}
			}
			creds.Extras[strings.ToLower(name)] = v
		}
	}
	return creds, nil
}

func (r *Resolver) lookup(key string) (string, bool) {
	if r.secrets == nil {
		return "", false
	}
	v, ok := r.secrets.Lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
