// Package render 从模板目录渲染设备完整配置
package render

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"
)

// ErrOutsideDir 模板路径越出模板目录
var ErrOutsideDir = errors.New("template path escapes template directory")

// FileRenderer 以 Dir 为根读取模板；模板 ID 为相对路径，如 eos/base.j2
type FileRenderer struct {
	Dir string

	mu    sync.Mutex
	cache map[string]*template.Template
	// NoCache 每次渲染都重新读取模板文件
	NoCache bool
}

// NewFileRenderer 创建文件模板渲染器
func NewFileRenderer(dir string) *FileRenderer {
	return &FileRenderer{Dir: dir, cache: map[string]*template.Template{}}
}

// Render 渲染模板；变量缺失视为错误
func (r *FileRenderer) Render(templateID string, vars map[string]interface{}) (string, error) {
	tpl, err := r.load(templateID)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("execute template %s: %w", templateID, err)
	}
	return buf.String(), nil
}

// Templates 列出目录下所有模板 ID
func (r *FileRenderer) Templates() ([]string, error) {
	var ids []string
	err := filepath.WalkDir(r.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(r.Dir, path)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	return ids, err
}

func (r *FileRenderer) load(templateID string) (*template.Template, error) {
	path, err := r.resolve(templateID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		r.cache = map[string]*template.Template{}
	}
	if tpl, ok := r.cache[path]; ok && !r.NoCache {
		return tpl, nil
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", templateID, err)
	}
	tpl, err := Parse(templateID, string(bs))
	if err != nil {
		return nil, err
	}
	r.cache[path] = tpl
	return tpl, nil
}

// resolve 将模板 ID 限定在 Dir 内
func (r *FileRenderer) resolve(templateID string) (string, error) {
	id := strings.TrimSpace(templateID)
	if id == "" {
		return "", fmt.Errorf("empty template id")
	}
	if filepath.IsAbs(id) {
		return "", fmt.Errorf("%s: %w", templateID, ErrOutsideDir)
	}
	root, err := filepath.Abs(r.Dir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, filepath.FromSlash(id))
	if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", templateID, ErrOutsideDir)
	}
	return path, nil
}

// Parse 解析模板文本，附带 sprig 函数
func Parse(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return tpl, nil
}

// StringRenderer 内存模板，ID -> 模板文本
type StringRenderer map[string]string

// Render 渲染内存模板
func (s StringRenderer) Render(templateID string, vars map[string]interface{}) (string, error) {
	text, ok := s[templateID]
	if !ok {
		return "", fmt.Errorf("template %s not found", templateID)
	}
	tpl, err := Parse(templateID, text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("execute template %s: %w", templateID, err)
	}
	return buf.String(), nil
}
