package fleet

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff 计算运行配置到目标配置的统一差异；行级、保序，忽略行尾空白与 CR。
// 两者一致时返回空串。
func Diff(current, desired string) (string, error) {
	a := normalizeConfig(current)
	b := normalizeConfig(desired)
	if a == b {
		return "", nil
	}
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "running",
		ToFile:   "candidate",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

func normalizeConfig(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
