package naming

import (
	"fmt"
	"net/netip"
	"strings"
)

// Record 一条 DNS 记录
type Record struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// String 对齐输出：名称 50 列，类型 10 列
func (r Record) String() string {
	return fmt.Sprintf("%-50s %-10s %-20s", r.Name, r.Type, r.Value)
}

// Skipped 未能生成记录的接口
type Skipped struct {
	Interface string
	Address   string
	Reason    string
}

// Records 为设备的三层接口生成 A 记录与对应 PTR 记录，先全部 A 后全部 PTR
func (r *Rewriter) Records(host string, ifaces []InterfaceIP, domain string) ([]Record, []Skipped) {
	domain = strings.TrimSpace(domain)
	if domain != "" && !strings.HasPrefix(domain, ".") {
		domain = "." + domain
	}
	host = strings.ToLower(host)

	var as, ptrs []Record
	var skipped []Skipped
	for _, ip := range ifaces {
		suffix, ok := r.Rewrite(ip.Interface)
		if !ok {
			skipped = append(skipped, Skipped{Interface: ip.Interface, Address: ip.Address, Reason: "no rewrite rule"})
			continue
		}
		addr, err := netip.ParseAddr(ip.Address)
		if err != nil {
			skipped = append(skipped, Skipped{Interface: ip.Interface, Address: ip.Address, Reason: err.Error()})
			continue
		}
		name := host + suffix + domain
		as = append(as, Record{Name: name, Type: recordType(addr), Value: addr.String()})
		ptrs = append(ptrs, Record{Name: ReversePointer(addr), Type: "PTR", Value: name})
	}
	return append(as, ptrs...), skipped
}

func recordType(a netip.Addr) string {
	if a.Is4() || a.Is4In6() {
		return "A"
	}
	return "AAAA"
}

// ReversePointer 反向解析名称，如 2.201.143.10.in-addr.arpa
func ReversePointer(a netip.Addr) string {
	a = a.Unmap()
	if a.Is4() {
		b := a.As4()
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa", b[3], b[2], b[1], b[0])
	}
	b := a.As16()
	var sb strings.Builder
	const hex = "0123456789abcdef"
	for i := len(b) - 1; i >= 0; i-- {
		sb.WriteByte(hex[b[i]&0x0f])
		sb.WriteByte('.')
		sb.WriteByte(hex[b[i]>>4])
		sb.WriteByte('.')
	}
	sb.WriteString("ip6.arpa")
	return sb.String()
}
