package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/netfleetpro/netfleet/internal/fleet"
)

const lineWidth = 80

// TextSink 终端可读的结果输出
type TextSink struct {
	W io.Writer
	// Quiet 只输出汇总行
	Quiet bool
}

// Write 按选择顺序输出每台设备与子任务
func (t *TextSink) Write(_ context.Context, run Run, res *fleet.FleetResult) error {
	var b strings.Builder
	if !t.Quiet {
		b.WriteString(banner(run.Kind, "*") + "\n")
		for _, dr := range res.Results() {
			writeDevice(&b, dr)
		}
	}
	fmt.Fprintf(&b, "selected=%d succeeded=%d changed=%d failed=%d incomplete=%d run_id=%s\n",
		res.Selected, res.Succeeded, res.Changed, res.Failed, res.Incomplete, res.RunID)
	_, err := io.WriteString(t.W, b.String())
	return err
}

func writeDevice(b *strings.Builder, dr *fleet.DeviceResult) {
	status := dr.Status()
	b.WriteString(banner(fmt.Sprintf("* %s ** changed : %v", dr.Hostname, status == fleet.StatusChanged), "*") + "\n")
	for _, st := range dr.Subtasks {
		level := "INFO"
		if st.Err != nil {
			level = "ERROR"
		}
		head := fmt.Sprintf("---- %s ** changed : %v ", st.Name, st.Status == fleet.StatusChanged)
		b.WriteString(pad(head, "-", lineWidth-len(level)-1) + " " + level + "\n")
		if body := subtaskBody(st); body != "" {
			b.WriteString(body)
			if !strings.HasSuffix(body, "\n") {
				b.WriteString("\n")
			}
		}
	}
	if dr.Err != nil {
		b.WriteString(pad("---- error ", "-", lineWidth-6) + " ERROR\n")
		b.WriteString(dr.Err.Error() + "\n")
	}
	b.WriteString(pad(fmt.Sprintf("^^^^ END %s ", dr.Hostname), "^", lineWidth) + "\n")
}

func subtaskBody(st fleet.SubtaskResult) string {
	var parts []string
	switch {
	case st.Diff != "":
		parts = append(parts, st.Diff)
	case st.Parsed != nil:
		if bs, err := json.MarshalIndent(st.Parsed, "", "  "); err == nil {
			parts = append(parts, string(bs))
		}
	case st.Output != "":
		parts = append(parts, st.Output)
	}
	if st.Err != nil {
		parts = append(parts, st.Err.Error())
	}
	return strings.Join(parts, "\n")
}

func banner(title, fill string) string {
	return pad(title+" ", fill, lineWidth)
}

func pad(s, fill string, width int) string {
	if n := width - len(s); n > 0 {
		return s + strings.Repeat(fill, n)
	}
	return s
}
