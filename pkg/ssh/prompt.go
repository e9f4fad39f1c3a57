package ssh

import "strings"

// DefaultPromptSuffixes 常见网络设备提示符后缀
var DefaultPromptSuffixes = []string{">", "#", "]"}

// sanitize 移除 ANSI 转义序列与不可见控制符，便于稳定提示符检测
func sanitize(s string) string {
	b := make([]byte, 0, len(s))
	skip := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if skip {
			// CSI 序列以字母结尾
			if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
				skip = false
			}
			continue
		}
		if ch == 0x1b {
			skip = true
			continue
		}
		if ch == '\b' {
			// 分页提示被退格擦除
			if len(b) > 0 {
				b = b[:len(b)-1]
			}
			continue
		}
		if ch < 0x20 && ch != '\t' {
			continue
		}
		b = append(b, ch)
	}
	return strings.TrimSpace(string(b))
}

// promptMatcher 按后缀识别提示符；捕获首个提示符的主机名前缀后，要求后续提示符包含该前缀
type promptMatcher struct {
	suffixes []string
	prefix   string
}

func newPromptMatcher(suffixes []string) *promptMatcher {
	if len(suffixes) == 0 {
		suffixes = DefaultPromptSuffixes
	}
	return &promptMatcher{suffixes: suffixes}
}

func (m *promptMatcher) isPrompt(line string) bool {
	trimmed := sanitize(line)
	if trimmed == "" {
		return false
	}
	for _, suf := range m.suffixes {
		if !strings.HasSuffix(trimmed, suf) {
			continue
		}
		// 允许模式变化：hostname(config)# 仍包含首个提示符的主机名
		if m.prefix != "" && !strings.Contains(trimmed, m.prefix) {
			continue
		}
		return true
	}
	return false
}

// capture 记录提示符前缀（去掉匹配到的后缀）
func (m *promptMatcher) capture(line string) {
	trimmed := sanitize(line)
	for _, suf := range m.suffixes {
		if strings.HasSuffix(trimmed, suf) {
			if prefix := strings.TrimSpace(trimmed[:len(trimmed)-len(suf)]); prefix != "" {
				m.prefix = prefix
			}
			return
		}
	}
}

// stripPrefix 剥离行首提示符，提取可能的命令回显
func (m *promptMatcher) stripPrefix(line string) string {
	s := sanitize(line)
	if s == "" {
		return s
	}
	if m.prefix != "" {
		if idx := strings.Index(s, m.prefix); idx == 0 {
			rest := s[len(m.prefix):]
			// 跳过模式标记，如 (config)
			if strings.HasPrefix(rest, "(") {
				if end := strings.Index(rest, ")"); end >= 0 {
					rest = rest[end+1:]
				}
			}
			for _, suf := range m.suffixes {
				if strings.HasPrefix(rest, suf) {
					return strings.TrimSpace(rest[len(suf):])
				}
			}
		}
	}
	return s
}
