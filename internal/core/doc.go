// Package core holds the bill parsing domain shared by every source.
//
// It knows nothing about HTTP, databases or the command line. The server,
// the billparse CLI and the tests all drive it the same way.
//
// # Sources
//
// Each export format registers a [SourceDefinition] at init time with
// [Register]. The definition carries the header tokens used to locate the
// table, the native to canonical column map, the encoding candidates and
// the parse function:
//
//	core.Register(core.SourceDefinition{
//	    Provider:     core.ProviderAlipay,
//	    Label:        "Alipay",
//	    Extensions:   []string{".csv"},
//	    HeaderTokens: []string{"记录时间", "金额"},
//	    Encodings:    []string{core.EncodingUTF8, core.EncodingGBK},
//	    ParseBytes:   parseAlipay,
//	})
//
// The concrete parsers live in the providers subpackage, which callers
// import for its side effects.
//
// # Parsing
//
// [ParseBytes], [ParseText] and [ParseFile] never return an error. Every
// outcome lands on a [ParseResult]: rows that standardize cleanly become
// [CanonicalRecord] values, rows that do not become [FailedRecord] entries
// with their line number, and problems that stop the whole file are
// recorded with [ParseResult.AddFileFailure].
//
// Text exports are decoded by trial: see [ResolveEncoding].
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError].
// Each category has a code for support reference:
//
//   - DB001-DB004: storage errors
//   - FILE001-FILE007: upload and file format errors
//   - SRC001-SRC002: source selection errors
//   - VAL001-VAL003: field validation errors
//   - UPL001-UPL004: import lifecycle errors
package core
