package inventory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// HostRecord 清单中的原始主机记录
type HostRecord struct {
	Name     string                 `yaml:"-"`
	Address  string                 `yaml:"hostname"`
	Port     int                    `yaml:"port"`
	Username string                 `yaml:"username"`
	Platform string                 `yaml:"platform"`
	Site     string                 `yaml:"site"`
	Region   string                 `yaml:"region"`
	Groups   []string               `yaml:"groups"`
	Tags     []string               `yaml:"tags"`
	Data     map[string]interface{} `yaml:"data"`
}

// GroupRecord 组（及 defaults）的原始记录，字段为空表示不设置
type GroupRecord struct {
	Name     string                 `yaml:"-"`
	Port     int                    `yaml:"port"`
	Username string                 `yaml:"username"`
	Platform string                 `yaml:"platform"`
	Site     string                 `yaml:"site"`
	Region   string                 `yaml:"region"`
	Tags     []string               `yaml:"tags"`
	Data     map[string]interface{} `yaml:"data"`
}

// Snapshot 一次加载得到的原始清单
type Snapshot struct {
	Defaults GroupRecord
	Groups   map[string]GroupRecord
	// Hosts 保持声明顺序
	Hosts []HostRecord
	// Vars group_vars/<name>.yaml，按名称对应组、区域或站点
	Vars map[string]map[string]interface{}
	// HostVars host_vars/<host>.yaml
	HostVars map[string]map[string]interface{}
}

// Source 清单来源
type Source interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// FileSource 从目录读取 YAML 清单：
//
//	hosts.yaml  groups.yaml  defaults.yaml  group_vars/*.yaml  host_vars/*.yaml
type FileSource struct {
	Dir string
}

// NewFileSource 创建文件清单来源
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Load 读取并解析目录下的清单文件；可选文件缺失视为空
func (s *FileSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Groups:   map[string]GroupRecord{},
		Vars:     map[string]map[string]interface{}{},
		HostVars: map[string]map[string]interface{}{},
	}

	hostsPath := filepath.Join(s.Dir, "hosts.yaml")
	hostsNode, err := readNode(hostsPath)
	if err != nil {
		return nil, err
	}
	if hostsNode == nil {
		return nil, fmt.Errorf("%s: %w", hostsPath, fs.ErrNotExist)
	}
	seen := map[string]bool{}
	err = eachMappingEntry(hostsNode, func(name string, value *yaml.Node) error {
		if seen[name] {
			return &RegistryLoadError{Kind: KindDuplicateHost, Host: name, Detail: hostsPath}
		}
		seen[name] = true
		var rec HostRecord
		if err := value.Decode(&rec); err != nil {
			return &RegistryLoadError{Kind: KindMalformed, Host: name, Detail: hostsPath, Err: err}
		}
		rec.Name = name
		snap.Hosts = append(snap.Hosts, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	groupsPath := filepath.Join(s.Dir, "groups.yaml")
	groupsNode, err := readNode(groupsPath)
	if err != nil {
		return nil, err
	}
	err = eachMappingEntry(groupsNode, func(name string, value *yaml.Node) error {
		var rec GroupRecord
		if err := value.Decode(&rec); err != nil {
			return &RegistryLoadError{Kind: KindMalformed, Detail: fmt.Sprintf("%s: group %s", groupsPath, name), Err: err}
		}
		rec.Name = name
		snap.Groups[name] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	defaultsPath := filepath.Join(s.Dir, "defaults.yaml")
	defaultsNode, err := readNode(defaultsPath)
	if err != nil {
		return nil, err
	}
	if defaultsNode != nil {
		if err := defaultsNode.Decode(&snap.Defaults); err != nil {
			return nil, &RegistryLoadError{Kind: KindMalformed, Detail: defaultsPath, Err: err}
		}
	}

	if err := readVarsDir(filepath.Join(s.Dir, "group_vars"), snap.Vars); err != nil {
		return nil, err
	}
	if err := readVarsDir(filepath.Join(s.Dir, "host_vars"), snap.HostVars); err != nil {
		return nil, err
	}
	return snap, nil
}

// readNode 读取 YAML 文件为文档节点；文件不存在返回 nil
func readNode(path string) (*yaml.Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &RegistryLoadError{Kind: KindSource, Detail: path, Err: err}
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &RegistryLoadError{Kind: KindMalformed, Detail: path, Err: err}
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	return doc.Content[0], nil
}

// eachMappingEntry 按文档顺序遍历映射节点
func eachMappingEntry(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node == nil {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return &RegistryLoadError{Kind: KindMalformed, Detail: fmt.Sprintf("line %d: expected a mapping", node.Line)}
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := strings.TrimSpace(node.Content[i].Value)
		if key == "" {
			return &RegistryLoadError{Kind: KindInvalidHost, Detail: fmt.Sprintf("line %d: empty name", node.Content[i].Line)}
		}
		if err := fn(key, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func readVarsDir(dir string, into map[string]map[string]interface{}) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &RegistryLoadError{Kind: KindSource, Detail: dir, Err: err}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		p := filepath.Join(dir, e.Name())
		node, err := readNode(p)
		if err != nil {
			return err
		}
		vars := map[string]interface{}{}
		if node != nil {
			if err := node.Decode(&vars); err != nil {
				return &RegistryLoadError{Kind: KindMalformed, Detail: p, Err: err}
			}
		}
		into[strings.TrimSuffix(e.Name(), ext)] = vars
	}
	return nil
}

// StaticSource 内存清单来源
type StaticSource struct {
	Snapshot *Snapshot
}

// Load 返回内存中的快照
func (s StaticSource) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Snapshot == nil {
		return nil, &RegistryLoadError{Kind: KindSource, Detail: "nil snapshot"}
	}
	return s.Snapshot, nil
}
