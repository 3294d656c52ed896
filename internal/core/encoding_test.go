package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var csvCandidates = []string{EncodingUTF8BOM, EncodingUTF8, EncodingGBK, EncodingGB18030}

func gbkBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return b
}

func TestResolveEncoding(t *testing.T) {
	text := "记录时间,交易类型,金额\n2024-01-01 10:00:00,餐饮,12.00\n"

	t.Run("utf-8", func(t *testing.T) {
		name, ok := ResolveEncoding([]byte(text), csvCandidates, EncodingGBK)
		assert.True(t, ok)
		assert.Equal(t, EncodingUTF8, name)
	})

	t.Run("utf-8 with bom", func(t *testing.T) {
		name, ok := ResolveEncoding(append([]byte{0xEF, 0xBB, 0xBF}, text...), csvCandidates, EncodingGBK)
		assert.True(t, ok)
		assert.Equal(t, EncodingUTF8BOM, name)
	})

	t.Run("gbk", func(t *testing.T) {
		name, ok := ResolveEncoding(gbkBytes(t, text), csvCandidates, EncodingUTF8)
		assert.True(t, ok)
		assert.Equal(t, EncodingGBK, name)
	})

	t.Run("nothing fits", func(t *testing.T) {
		name, ok := ResolveEncoding([]byte{0xFF, 0xFF, 0xFF}, []string{EncodingUTF8}, EncodingGB18030)
		assert.False(t, ok)
		assert.Equal(t, EncodingGB18030, name)
	})
}

func TestResolveEncoding_LongSampleIsCutAtLineBreak(t *testing.T) {
	line := "交易时间,商户名称,金额\n"
	data := []byte(strings.Repeat(line, 200))
	require.Greater(t, len(data), EncodingSampleSize)

	name, ok := ResolveEncoding(gbkBytes(t, string(data)), csvCandidates, EncodingUTF8)
	assert.True(t, ok)
	assert.Equal(t, EncodingGBK, name)

	name, ok = ResolveEncoding(data, csvCandidates, EncodingGBK)
	assert.True(t, ok)
	assert.Equal(t, EncodingUTF8, name)
}

func TestDecodeBytes(t *testing.T) {
	got, err := DecodeBytes(gbkBytes(t, "支付宝"), EncodingGBK)
	require.NoError(t, err)
	assert.Equal(t, "支付宝", got)

	got, err = DecodeBytes(append([]byte{0xEF, 0xBB, 0xBF}, "京东"...), EncodingUTF8)
	require.NoError(t, err)
	assert.Equal(t, "京东", got)

	got, err = DecodeBytes(append([]byte{0xEF, 0xBB, 0xBF}, "京东"...), EncodingUTF8BOM)
	require.NoError(t, err)
	assert.Equal(t, "京东", got)

	got, err = DecodeBytes([]byte{'a', 0xFF, 'b'}, EncodingUTF8)
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", got)

	_, err = DecodeBytes([]byte("x"), "latin-9")
	assert.ErrorContains(t, err, "encoding error")
}

func TestDetectFileEncoding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alipay.csv")
	require.NoError(t, os.WriteFile(path, gbkBytes(t, "记录时间,交易类型,金额\n"), 0o600))

	name, err := DetectFileEncoding(path, csvCandidates, EncodingUTF8)
	require.NoError(t, err)
	assert.Equal(t, EncodingGBK, name)

	_, err = DetectFileEncoding(filepath.Join(dir, "missing.csv"), csvCandidates, EncodingUTF8)
	assert.Error(t, err)
}
