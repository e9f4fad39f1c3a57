package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

// StoredObject 已写入的报告对象
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// Document 完整 JSON 报告
type Document struct {
	Run    Run                `json:"run"`
	Result *fleet.FleetResult `json:"result"`
}

// Marshal 生成报告 JSON
func Marshal(run Run, res *fleet.FleetResult) ([]byte, error) {
	return json.MarshalIndent(Document{Run: run, Result: res}, "", "  ")
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// JSONSink 将整次运行写入 <dir>/<yyyymmdd>/<run_id>.json
type JSONSink struct {
	Dir string
	// Last 最近一次写入的对象
	Last StoredObject
}

// Write 写入 JSON 报告
func (j *JSONSink) Write(_ context.Context, run Run, res *fleet.FleetResult) error {
	data, err := Marshal(run, res)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	day := res.Started.Format("20060102")
	if res.Started.IsZero() {
		day = time.Now().Format("20060102")
	}
	dir := filepath.Join(j.Dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dir: %w", err)
	}
	full := filepath.Join(dir, slug(res.RunID)+".json")
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	j.Last = StoredObject{
		URI:         "file://" + full,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: "application/json",
	}
	logger.WithFields(logger.KV("run_id", res.RunID, "uri", j.Last.URI, "checksum", j.Last.Checksum)).Info("Report written")
	return nil
}

// HostFileSink 按设备追加写入 <dir>/<host>-result.txt，每个子任务一个块
type HostFileSink struct {
	Dir string
	mu  sync.Mutex
}

// Block 结果块：15 个星号包围的任务名、空行、输出
func Block(name, body string) string {
	return strings.Repeat("*", 15) + name + strings.Repeat("*", 15) + "\n\n" + body + "\n"
}

// Write 追加写入每台设备的结果文件
func (h *HostFileSink) Write(_ context.Context, _ Run, res *fleet.FleetResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := os.MkdirAll(h.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create dir: %w", err)
	}
	for _, dr := range res.Results() {
		var b strings.Builder
		for _, st := range dr.Subtasks {
			b.WriteString(Block(st.Name, subtaskBody(st)))
		}
		if dr.Err != nil {
			b.WriteString(Block("error", dr.Err.Error()))
		}
		if b.Len() == 0 {
			continue
		}
		path := filepath.Join(h.Dir, slug(dr.Hostname)+"-result.txt")
		if err := appendFile(path, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = slugRe.ReplaceAllString(s, "")
	if s == "" || s == "." || s == ".." {
		s = "unknown"
	}
	return s
}
