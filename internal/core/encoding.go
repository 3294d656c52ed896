package core

// encoding.go picks a text encoding for an export by trial decoding.
//
// Each provider supplies an ordered candidate list. The first kilobyte of
// the file is decoded with each candidate in turn and the first one that
// produces no replacement characters wins. When nothing fits, the
// provider's fallback is used and a warning is logged. Bytes that still do
// not decode become U+FFFD and show up later as row failures.

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// EncodingSampleSize is how many leading bytes are trial-decoded.
const EncodingSampleSize = 1024

// Encoding names accepted in candidate lists.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-sig"
	EncodingGBK     = "gbk"
	EncodingGB2312  = "gb2312"
	EncodingGB18030 = "gb18030"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// lookupEncoding returns the decoder for name. UTF-8 variants return nil
// because the bytes are already in the target form.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case EncodingUTF8, "utf8":
		return nil, nil
	case EncodingUTF8BOM:
		return unicode.UTF8BOM, nil
	case EncodingGBK, EncodingGB2312:
		// GB2312 is a subset of GBK.
		return simplifiedchinese.GBK, nil
	case EncodingGB18030:
		return simplifiedchinese.GB18030, nil
	}
	return nil, fmt.Errorf("encoding error: unsupported encoding %q", name)
}

// ResolveEncoding returns the first candidate that decodes sample cleanly.
// ok is false when none did and fallback was returned instead.
func ResolveEncoding(sample []byte, candidates []string, fallback string) (name string, ok bool) {
	sample = trimSample(sample)
	for _, c := range candidates {
		if decodesCleanly(sample, c) {
			return c, true
		}
	}
	return fallback, false
}

// DetectFileEncoding resolves the encoding of the file at path from its
// first EncodingSampleSize bytes.
func DetectFileEncoding(path string, candidates []string, fallback string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, EncodingSampleSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	name, ok := ResolveEncoding(buf[:n], candidates, fallback)
	if !ok {
		slog.Warn("encoding not detected, using fallback",
			"file", path,
			"candidates", candidates,
			"fallback", fallback,
		)
	}
	return name, nil
}

// DecodeBytes converts data to a UTF-8 string using the named encoding.
// A leading byte order mark is removed.
func DecodeBytes(data []byte, name string) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return string(bytes.TrimPrefix(sanitizeUTF8(data), utf8BOM)), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("encoding error: decode %s: %w", name, err)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), nil
}

// decodesCleanly reports whether sample decodes under name with no
// replacement characters.
func decodesCleanly(sample []byte, name string) bool {
	switch strings.ToLower(name) {
	case EncodingUTF8, "utf8":
		return utf8.Valid(sample)
	case EncodingUTF8BOM:
		return bytes.HasPrefix(sample, utf8BOM) && utf8.Valid(sample)
	}

	enc, err := lookupEncoding(name)
	if err != nil || enc == nil {
		return false
	}
	out, err := enc.NewDecoder().Bytes(sample)
	if err != nil {
		return false
	}
	return !bytes.ContainsRune(out, utf8.RuneError)
}

// trimSample limits sample to EncodingSampleSize bytes and cuts it at the
// last line break so a multi-byte character is never split.
func trimSample(sample []byte) []byte {
	if len(sample) <= EncodingSampleSize {
		return sample
	}
	sample = sample[:EncodingSampleSize]
	if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
		return sample[:i+1]
	}
	return sample[:len(sample)-incompleteTrailingBytes(sample)]
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
		} else {
			buf.WriteRune(r)
		}
		data = data[size:]
	}

	return buf.Bytes()
}

// incompleteTrailingBytes returns how many bytes at the end of data start a
// UTF-8 sequence that is cut off.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue // continuation byte
		}
		if b < 0x80 {
			return 0
		}
		need := 2
		switch {
		case b&0xF8 == 0xF0:
			need = 4
		case b&0xF0 == 0xE0:
			need = 3
		}
		if need > i {
			return i
		}
		return 0
	}
	return 0
}
