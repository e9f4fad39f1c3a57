package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKV(t *testing.T) {
	f := KV("host", "r1", "run_id", "abc", "dangling")
	assert.Equal(t, "r1", f["host"])
	assert.Equal(t, "abc", f["run_id"])
	assert.Equal(t, "dangling", f["!BADKEY"], "奇数参数时最后一个键应单独记录")
}

func TestParseOutputLines(t *testing.T) {
	short := ParseOutputLines("a\nb\nc\n", 2)
	assert.Equal(t, []string{"a", "b", "c"}, short.HeadLines)
	assert.Empty(t, short.TailLines)
	assert.Equal(t, 3, short.TotalLines)

	lines := make([]string, 10)
	for i := range lines {
		lines[i] = strings.Repeat("x", i+1)
	}
	long := ParseOutputLines(strings.Join(lines, "\r\n"), 2)
	assert.Equal(t, []string{"x", "xx"}, long.HeadLines)
	assert.Equal(t, []string{strings.Repeat("x", 9), strings.Repeat("x", 10)}, long.TailLines)

	assert.Equal(t, OutputLines{}, ParseOutputLines("", 2))
}

func TestForDeviceFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Level: "debug", Format: "json", Output: "console"}))
	SetOutput(&buf)

	ForDevice("run-1", "r1").Info("hello")
	LogCommandOutput(ForDevice("run-1", "r1"), "show version", "line1\nline2")

	out := buf.String()
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"host":"r1"`)
	assert.Contains(t, out, `"command":"show version"`)
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())
}

func TestInitOutputs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "netfleet.log")
	require.NoError(t, Init(Config{Level: "info", Format: "json", Output: "file", FilePath: path}))
	WithKV("host", "r1").Info("to file")
	bs, err := os.ReadFile(path)
	require.NoError(t, err, "文件输出应自动创建目录")
	assert.Contains(t, string(bs), `"host":"r1"`)

	assert.Error(t, Init(Config{Output: "file"}), "文件输出必须指定路径")
	assert.Error(t, Init(Config{Output: "syslog"}), "未知输出类型")
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel(), "初始化失败时保留原实例")
}
