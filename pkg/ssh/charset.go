package ssh

import (
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// legacyEncodings 设备输出可能使用的非 UTF-8 编码，按尝试顺序排列
var legacyEncodings = []encoding.Encoding{
	simplifiedchinese.GB18030,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// EnsureUTF8 将设备输出转为 UTF-8；已是 UTF-8 时原样返回，无法识别时按原始字节返回
func EnsureUTF8(s string) string {
	b := []byte(s)
	if len(b) == 0 || utf8.Valid(b) {
		return s
	}
	for _, enc := range legacyEncodings {
		r := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
		decoded, err := io.ReadAll(r)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return s
}
