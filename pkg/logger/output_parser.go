package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 命令输出的首尾行摘要
type OutputLines struct {
	HeadLines  []string `json:"head_lines"`
	TailLines  []string `json:"tail_lines"`
	TotalLines int      `json:"total_lines"`
}

// ParseOutputLines 提取输出的首尾各 maxLines 行，输出较短时尾部为空
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return OutputLines{}
	}
	lines := strings.Split(output, "\n")
	res := OutputLines{TotalLines: len(lines)}
	if len(lines) <= maxLines*2 {
		res.HeadLines = append(res.HeadLines, lines...)
		return res
	}
	res.HeadLines = append(res.HeadLines, lines[:maxLines]...)
	res.TailLines = append(res.TailLines, lines[len(lines)-maxLines:]...)
	return res
}

// LogCommandOutput 在 debug 级别记录命令输出摘要，避免整段回显刷屏
func LogCommandOutput(entry *logrus.Entry, command, output string) {
	if entry == nil || !entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	parsed := ParseOutputLines(output, 3)
	entry.WithFields(logrus.Fields{
		"command":     command,
		"total_lines": parsed.TotalLines,
		"head":        strings.Join(parsed.HeadLines, " | "),
		"tail":        strings.Join(parsed.TailLines, " | "),
	}).Debug("Command output")
}
