package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseBytes parses an in-memory export with the parser registered for p.
func ParseBytes(p Provider, data []byte, fileName string, opts ParseOptions) *ParseResult {
	result := NewParseResult(p, fileName).WithOptions(opts)
	def, ok := Get(p)
	if !ok {
		result.AddFileFailure(fmt.Sprintf("%v: %q", ErrUnknownSource, p))
		return result
	}
	def.ParseBytes(result, data)
	return result
}

// ParseText parses already decoded export text with the parser registered for p.
func ParseText(p Provider, text, fileName string, opts ParseOptions) *ParseResult {
	result := NewParseResult(p, fileName).WithOptions(opts)
	def, ok := Get(p)
	if !ok || def.ParseText == nil {
		result.AddFileFailure(fmt.Sprintf("%v: %q", ErrUnknownSource, p))
		return result
	}
	def.ParseText(result, text)
	return result
}

// ParseFile reads the file at path and parses it. An empty provider is
// inferred from the file name and contents.
func ParseFile(path string, p Provider, opts ParseOptions) *ParseResult {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		result := NewParseResult(p, name)
		result.AddFileFailure(fmt.Sprintf("read file: %v", err))
		return result
	}
	if p == "" {
		p, err = InferProvider(name, data)
		if err != nil {
			result := NewParseResult(p, name)
			result.AddFileFailure(err.Error())
			return result
		}
	}
	return ParseBytes(p, data, name, opts)
}

var pdfMagic = []byte("%PDF-")

// InferProvider guesses the provider from the file name, then from a
// preview of the contents.
func InferProvider(fileName string, preview []byte) (Provider, error) {
	lower := strings.ToLower(filepath.Base(fileName))
	defs := All()

	for _, def := range defs {
		for _, hint := range def.FileNameHints {
			if strings.Contains(lower, strings.ToLower(hint)) {
				return def.Provider, nil
			}
		}
	}

	if bytes.HasPrefix(bytes.TrimSpace(preview), pdfMagic) {
		for _, def := range defs {
			if def.AcceptsExtension(".pdf") {
				return def.Provider, nil
			}
		}
	}

	if len(preview) > 4*EncodingSampleSize {
		preview = preview[:4*EncodingSampleSize]
	}
	for _, def := range defs {
		if len(def.ContentHints) == 0 {
			continue
		}
		text := previewText(preview, def)
		for _, hint := range def.ContentHints {
			if strings.Contains(text, hint) {
				return def.Provider, nil
			}
		}
	}

	return "", fmt.Errorf("%w: cannot infer source of %q", ErrUnknownSource, fileName)
}

// previewText decodes preview with the source's own encoding rules.
func previewText(preview []byte, def SourceDefinition) string {
	if len(def.Encodings) == 0 {
		return string(preview)
	}
	name, _ := ResolveEncoding(preview, def.Encodings, def.DefaultEncoding)
	text, err := DecodeBytes(preview, name)
	if err != nil {
		return string(preview)
	}
	return text
}

// CheckUpload validates the size and extension of an uploaded file and, when
// p is set, that the provider accepts that extension.
func CheckUpload(fileName string, size, maxSize int64, p Provider) error {
	if size == 0 {
		return ErrEmptyFile
	}
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, size, maxSize)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != ".csv" && ext != ".pdf" {
		return fmt.Errorf("%w: %q (allowed: .csv, .pdf)", ErrUnsupportedExtension, ext)
	}
	if p == "" {
		return nil
	}
	def, ok := Get(p)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, p)
	}
	if !def.AcceptsExtension(ext) {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrSourceMismatch, p, strings.Join(def.Extensions, ", "), ext)
	}
	return nil
}
