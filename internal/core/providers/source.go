// Package providers implements the parsers for each supported export source
// and registers them with the core registry.
//
// Import this package for its side effect to make every source available:
//
//	import _ "github.com/mitrecx/my-bill-2/internal/core/providers"
//
// Every parser follows the same steps: decode the bytes, locate the header,
// split rows into cells, rename columns with a static field table, apply the
// source's post-processing and hand the result to core.Standardize. A
// problem with one row is recorded as a failure for that row and parsing
// continues with the next one.
package providers

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitrecx/my-bill-2/internal/core"
)

// csvEncodings is the candidate order for the CSV exports. UTF-8 is tried
// before the GBK family because GBK decoding accepts most UTF-8 byte pairs.
var csvEncodings = []string{core.EncodingUTF8BOM, core.EncodingUTF8, core.EncodingGBK, core.EncodingGB18030}

// rowProcessor turns one raw row into a success or a failure entry.
type rowProcessor struct {
	provider core.Provider
	fieldMap []core.FieldMapping

	// post applies the source's field rules in place.
	post func(f core.Fields) error
}

// process maps, post-processes and standardizes raw, recording the outcome
// on result. A panic while handling the row is recorded as a row failure.
func (p rowProcessor) process(result *core.ParseResult, raw core.RawRecord, line int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("row processing panicked", "source", p.provider, "line", line, "panic", r)
			result.AddFailure(raw, line, fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	f := core.MapFields(raw, p.fieldMap)
	if p.post != nil {
		if err := p.post(f); err != nil {
			result.AddRowError(raw, line, err)
			return
		}
	}

	rec, err := core.Standardize(p.provider, f, raw, result.Options())
	if err != nil {
		result.AddRowError(raw, line, err)
		return
	}
	result.AddSuccess(rec)
}

// decode resolves the encoding of data and converts it to text.
func decode(p core.Provider, data []byte, candidates []string, fallback string) (text, encoding string, err error) {
	encoding, ok := core.ResolveEncoding(data, candidates, fallback)
	if !ok {
		slog.Warn("encoding not detected, using fallback",
			"source", p,
			"candidates", candidates,
			"fallback", fallback,
		)
	}
	text, err = core.DecodeBytes(data, encoding)
	return text, encoding, err
}

// headerNotFound formats the file-level failure for a missing header.
func headerNotFound(tokens []string) string {
	return fmt.Sprintf("%v: expected a line containing %s", core.ErrHeaderNotFound, strings.Join(tokens, ", "))
}

// trimTrailingEmpty drops empty cells from the end of row.
func trimTrailingEmpty(row []string) []string {
	for len(row) > 0 && strings.TrimSpace(row[len(row)-1]) == "" {
		row = row[:len(row)-1]
	}
	return row
}
