package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, id, text string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(id))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

func TestFileRendererRender(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "eos/base.j2", `hostname {{ .host.name }}
{{- range .ntp_servers }}
ntp server {{ . }}
{{- end }}
tacacs-server key {{ .secrets.tacacs_key | upper }}
`)
	r := NewFileRenderer(dir)
	out, err := r.Render("eos/base.j2", map[string]interface{}{
		"host":        map[string]interface{}{"name": "sw1"},
		"ntp_servers": []string{"10.0.0.1", "10.0.0.2"},
		"secrets":     map[string]interface{}{"tacacs_key": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hostname sw1\nntp server 10.0.0.1\nntp server 10.0.0.2\ntacacs-server key ABC\n", out)

	ids, err := r.Templates()
	require.NoError(t, err)
	assert.Equal(t, []string{"eos/base.j2"}, ids)
}

func TestMissingVariableIsError(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "base.j2", "hostname {{ .hostname }}\n")
	_, err := NewFileRenderer(dir).Render("base.j2", map[string]interface{}{})
	assert.Error(t, err, "缺失变量必须报错")
}

func TestTemplateConfinedToDir(t *testing.T) {
	dir := t.TempDir()
	r := NewFileRenderer(filepath.Join(dir, "templates"))
	for _, id := range []string{"../secret.txt", "/etc/passwd", "eos/../../x"} {
		_, err := r.Render(id, nil)
		assert.True(t, errors.Is(err, ErrOutsideDir), "模板路径 %s 应被拒绝", id)
	}
	_, err := r.Render("missing.j2", nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrOutsideDir))
}

func TestCacheAndNoCache(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.j2", "v1")
	r := NewFileRenderer(dir)
	out, _ := r.Render("a.j2", nil)
	assert.Equal(t, "v1", out)

	writeTemplate(t, dir, "a.j2", "v2")
	out, _ = r.Render("a.j2", nil)
	assert.Equal(t, "v1", out, "默认缓存模板")

	r.NoCache = true
	out, _ = r.Render("a.j2", nil)
	assert.Equal(t, "v2", out)
}

func TestStringRenderer(t *testing.T) {
	r := StringRenderer{"base": `hostname {{ .host.name | default "unknown" }}`}
	out, err := r.Render("base", map[string]interface{}{"host": map[string]interface{}{"name": ""}})
	require.NoError(t, err)
	assert.Equal(t, "hostname unknown", out)
	_, err = r.Render("other", nil)
	assert.Error(t, err)
}
