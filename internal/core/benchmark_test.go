package core

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// ============================================================================
// Conversion Function Benchmarks
// ============================================================================

// BenchmarkParseAmount covers the amount formats seen across the exports.
// Every parsed row goes through it at least once.
func BenchmarkParseAmount(b *testing.B) {
	testCases := []string{
		"12.00",
		"-456.78",
		"¥1,234.56",
		"￥1，234.56",
		"  999.99  ",
		"1234",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseAmount(tc)
		}
	}
}

// BenchmarkParseDateTime benchmarks timestamp parsing over the known layouts.
func BenchmarkParseDateTime(b *testing.B) {
	testCases := []string{
		"2024-01-15 10:00:00", // first layout
		"2024/1/5 9:30",
		"2024年1月5日 09:30:00",
		"2024-01-15",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseDateTime(tc, ChinaStandardTime())
		}
	}
}

func BenchmarkExtractRefund(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ExtractRefund("577.61(已退款273.48)")
	}
}

func BenchmarkCleanString(b *testing.B) {
	s := "  美团\r\n外卖   订单  "
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CleanString(s)
	}
}

// ============================================================================
// Encoding Benchmarks
// ============================================================================

func gbkSample(b *testing.B, rows int) []byte {
	b.Helper()
	text := strings.Repeat("2024-01-01 10:00:00,餐饮,消费,支出,12.00,美团-午餐,余额宝\n", rows)
	data, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(text))
	if err != nil {
		b.Fatal(err)
	}
	return data
}

// BenchmarkResolveEncoding_UTF8 benchmarks the common path where the first
// candidate already fits.
func BenchmarkResolveEncoding_UTF8(b *testing.B) {
	sample := bytes.Repeat([]byte("交易时间,商户名称,金额\n"), 64)
	candidates := []string{EncodingUTF8, EncodingGBK}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ResolveEncoding(sample, candidates, EncodingUTF8)
	}
}

// BenchmarkResolveEncoding_GBK benchmarks a file that fails UTF-8 first.
func BenchmarkResolveEncoding_GBK(b *testing.B) {
	sample := gbkSample(b, 32)
	candidates := []string{EncodingUTF8, EncodingGBK}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ResolveEncoding(sample, candidates, EncodingUTF8)
	}
}

// BenchmarkDecodeBytes_GBK benchmarks decoding a whole GBK export.
func BenchmarkDecodeBytes_GBK(b *testing.B) {
	data := gbkSample(b, 5000)
	b.SetBytes(int64(len(data)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeBytes(data, EncodingGBK); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Row Helper Benchmarks
// ============================================================================

func BenchmarkFindHeaderLine(b *testing.B) {
	lines := make([]string, 0, 30)
	for i := 0; i < 24; i++ {
		lines = append(lines, "导出说明,,,,")
	}
	lines = append(lines, "交易时间,交易分类,交易对方,商品说明,收/支,金额")
	tokens := []string{"交易时间", "金额"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		FindHeaderLine(lines, tokens)
	}
}
