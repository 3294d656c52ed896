package core

import (
	"fmt"
	"strings"
	"sync"
)

// FieldMapping renames one native column to a canonical field.
type FieldMapping struct {
	Native    string
	Canonical string
}

// SourceDefinition contains everything needed to parse one provider's exports.
type SourceDefinition struct {
	Provider   Provider
	Label      string
	Extensions []string // lower-case, with leading dot

	// HeaderTokens must all appear on the header line.
	HeaderTokens []string

	// FieldMap is the static native to canonical column table.
	FieldMap []FieldMapping

	// Derived lists canonical fields filled in by post-processing rather
	// than by a mapped column.
	Derived []string

	// Encodings are trial-decoded in order; DefaultEncoding is used when
	// none of them fit. Binary formats leave both empty.
	Encodings       []string
	DefaultEncoding string

	// FileNameHints and ContentHints drive InferProvider.
	FileNameHints []string
	ContentHints  []string

	// ParseBytes and ParseText record their outcome on result.
	ParseBytes func(result *ParseResult, data []byte)
	ParseText  func(result *ParseResult, text string)
}

// AcceptsExtension reports whether ext (such as ".csv") is handled by the source.
func (d SourceDefinition) AcceptsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range d.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Targets returns every canonical field the source can populate.
func (d SourceDefinition) Targets() map[string]bool {
	out := make(map[string]bool, len(d.FieldMap)+len(d.Derived))
	for _, m := range d.FieldMap {
		out[m.Canonical] = true
	}
	for _, f := range d.Derived {
		out[f] = true
	}
	return out
}

// MapFields renames the columns of raw using table.
func MapFields(raw RawRecord, table []FieldMapping) Fields {
	lookup := make(map[string]string, len(table))
	for _, m := range table {
		lookup[m.Native] = m.Canonical
	}
	out := make(Fields, raw.Len())
	for _, k := range raw.Keys() {
		v, _ := raw.Get(k)
		name := k
		if canonical, ok := lookup[strings.TrimSpace(k)]; ok {
			name = canonical
		}
		// A mapped value never gets overwritten by an empty duplicate.
		if existing, ok := out[name]; ok && strings.TrimSpace(v) == "" && existing != "" {
			continue
		}
		out[name] = v
	}
	return out
}

var (
	registry   = make(map[Provider]SourceDefinition)
	registryMu sync.RWMutex
)

// Register adds a source definition to the registry.
// Panics if the provider is unknown or already registered.
func Register(def SourceDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if !def.Provider.Valid() {
		panic(fmt.Sprintf("unknown provider: %q", def.Provider))
	}
	if _, exists := registry[def.Provider]; exists {
		panic(fmt.Sprintf("source already registered: %s", def.Provider))
	}
	if def.ParseBytes == nil {
		panic(fmt.Sprintf("source %s has no ParseBytes", def.Provider))
	}

	registry[def.Provider] = def
}

// Get returns the definition for a provider.
// Returns false if not registered.
func Get(p Provider) (SourceDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[p]
	return def, ok
}

// All returns every registered definition in provider order.
func All() []SourceDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]SourceDefinition, 0, len(registry))
	for _, p := range providerOrder {
		if def, ok := registry[p]; ok {
			result = append(result, def)
		}
	}
	return result
}

// Count returns the number of registered sources.
func Count() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}
