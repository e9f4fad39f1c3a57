package facts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Summary get_facts 的统一摘要
type Summary struct {
	Hostname     string `json:"hostname,omitempty"`
	Vendor       string `json:"vendor"`
	Model        string `json:"model,omitempty"`
	OSVersion    string `json:"os_version,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Uptime       string `json:"uptime,omitempty"`
}

// ParseEOSVersion 解析 show version | json
func ParseEOSVersion(parsed interface{}) (Summary, error) {
	var doc struct {
		ModelName    string  `json:"modelName"`
		Version      string  `json:"version"`
		SerialNumber string  `json:"serialNumber"`
		Uptime       float64 `json:"uptime"`
	}
	if err := remarshal(parsed, &doc); err != nil {
		return Summary{}, fmt.Errorf("parse show version: %w", err)
	}
	s := Summary{Vendor: "Arista", Model: doc.ModelName, OSVersion: doc.Version, SerialNumber: doc.SerialNumber}
	if doc.Uptime > 0 {
		s.Uptime = (time.Duration(doc.Uptime) * time.Second).String()
	}
	return s, nil
}

var (
	iosVersionRe = regexp.MustCompile(`(?m)^Cisco IOS.*?, Version ([^,\s]+)`)
	iosUptimeRe  = regexp.MustCompile(`(?m)^(\S+) uptime is (.+)$`)
	iosSerialRe  = regexp.MustCompile(`(?m)^Processor board ID (\S+)`)
	iosModelRe   = regexp.MustCompile(`(?m)^cisco (\S+) .*processor`)
)

// ParseIOSVersion 解析 show version 文本
func ParseIOSVersion(raw string) Summary {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	s := Summary{Vendor: "Cisco"}
	if m := iosVersionRe.FindStringSubmatch(raw); m != nil {
		s.OSVersion = m[1]
	}
	if m := iosUptimeRe.FindStringSubmatch(raw); m != nil {
		s.Hostname = m[1]
		s.Uptime = strings.TrimSpace(m[2])
	}
	if m := iosSerialRe.FindStringSubmatch(raw); m != nil {
		s.SerialNumber = m[1]
	}
	if m := iosModelRe.FindStringSubmatch(raw); m != nil {
		s.Model = m[1]
	}
	return s
}

func remarshal(in interface{}, out interface{}) error {
	if in == nil {
		return fmt.Errorf("no structured output")
	}
	bs, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(bs, out)
}
