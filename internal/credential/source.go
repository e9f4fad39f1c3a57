package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/subosito/gotenv"
)

// SecretSource 秘密键值来源
type SecretSource interface {
	Lookup(key string) (string, bool)
}

// MapSource 内存秘密源
type MapSource map[string]string

// Lookup 查询
func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// EnvSource 进程环境变量，可叠加 .env 文件中的取值（进程环境优先）
type EnvSource struct {
	file map[string]string
}

// NewEnvSource 创建环境变量秘密源；envFile 为空或不存在时仅读取进程环境
func NewEnvSource(envFile string) (*EnvSource, error) {
	s := &EnvSource{file: map[string]string{}}
	if envFile == "" {
		return s, nil
	}
	f, err := os.Open(envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()
	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", envFile, err)
	}
	for k, v := range env {
		s.file[k] = v
	}
	return s, nil
}

// Lookup 查询
func (s *EnvSource) Lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := s.file[key]
	return v, ok
}

// Chain 按顺序查询多个来源
type Chain []SecretSource

// Lookup 返回第一个命中的值
func (c Chain) Lookup(key string) (string, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}
