package providers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitrecx/my-bill-2/internal/core"
)

func TestRegistry_AllSourcesRegistered(t *testing.T) {
	require.Equal(t, 3, core.Count())

	var got []core.Provider
	for _, def := range core.All() {
		got = append(got, def.Provider)
	}
	assert.Equal(t, []core.Provider{core.ProviderAlipay, core.ProviderJD, core.ProviderCMB}, got)
}

func TestRegistry_RequiredFieldsReachable(t *testing.T) {
	for _, def := range core.All() {
		targets := def.Targets()
		for _, field := range core.RequiredFields {
			assert.True(t, targets[field], "%s cannot populate %s", def.Provider, field)
		}
		assert.NotEmpty(t, def.Label)
		assert.NotEmpty(t, def.HeaderTokens)
		assert.NotNil(t, def.ParseText, def.Provider)
	}
}

func TestRegistry_FieldMapsHaveUniqueNatives(t *testing.T) {
	for _, def := range core.All() {
		seen := map[string]bool{}
		for _, m := range def.FieldMap {
			assert.False(t, seen[m.Native], "%s maps %s twice", def.Provider, m.Native)
			seen[m.Native] = true
		}
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	def, ok := core.Get(core.ProviderJD)
	require.True(t, ok)
	assert.Panics(t, func() { core.Register(def) })
	assert.Panics(t, func() { core.Register(core.SourceDefinition{Provider: "wechat"}) })
}

func TestInferProvider(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		preview []byte
		want    core.Provider
	}{
		{"alipay file name", "支付宝账单.csv", nil, core.ProviderAlipay},
		{"cashbook file name", "cashbook_record_20240101.csv", nil, core.ProviderAlipay},
		{"jd file name", "京东交易流水.csv", nil, core.ProviderJD},
		{"cmb file name", "CMB_statement.pdf", nil, core.ProviderCMB},
		{"pdf magic", "statement.pdf", []byte("%PDF-1.7\n%binary"), core.ProviderCMB},
		{"jd content", "export.csv", []byte("导出信息\n" + jdHeader + "\n"), core.ProviderJD},
		{"alipay content", "export.csv", []byte("记录时间,分类,交易类型,收支,金额,备注\n"), core.ProviderAlipay},
		{"cmb text content", "export.txt", []byte("招商银行交易流水\n"), core.ProviderCMB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.InferProvider(tt.file, tt.preview)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferProvider_Unknown(t *testing.T) {
	_, err := core.InferProvider("export.csv", []byte("a,b,c\n"))
	assert.ErrorIs(t, err, core.ErrUnknownSource)
}

func TestCheckUpload(t *testing.T) {
	const limit = 10 << 20

	assert.NoError(t, core.CheckUpload("a.csv", 100, limit, core.ProviderAlipay))
	assert.NoError(t, core.CheckUpload("a.PDF", 100, limit, core.ProviderCMB))
	assert.NoError(t, core.CheckUpload("a.csv", 100, limit, ""))

	assert.ErrorIs(t, core.CheckUpload("a.csv", 0, limit, ""), core.ErrEmptyFile)
	assert.ErrorIs(t, core.CheckUpload("a.csv", limit+1, limit, ""), core.ErrFileTooLarge)
	assert.ErrorIs(t, core.CheckUpload("a.xlsx", 100, limit, ""), core.ErrUnsupportedExtension)
	assert.ErrorIs(t, core.CheckUpload("a.pdf", 100, limit, core.ProviderJD), core.ErrSourceMismatch)
	assert.ErrorIs(t, core.CheckUpload("a.csv", 100, limit, core.ProviderCMB), core.ErrSourceMismatch)
}

func TestParseBytes_UnknownProvider(t *testing.T) {
	result := core.ParseBytes("wechat", []byte("x"), "x.csv", core.ParseOptions{})
	assert.True(t, result.HasFatal())
	assert.Contains(t, result.Errors[0], "unknown source")
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "支付宝账单.csv")
	require.NoError(t, os.WriteFile(path, []byte(alipayExport), 0o600))

	result := core.ParseFile(path, "", core.ParseOptions{})
	assert.Equal(t, core.ProviderAlipay, result.Source)
	assert.Equal(t, "支付宝账单.csv", result.FileName)
	assert.Equal(t, 2, result.SuccessCount, result.Errors)

	missing := core.ParseFile(filepath.Join(dir, "missing.csv"), core.ProviderJD, core.ParseOptions{})
	assert.True(t, missing.HasFatal())
	assert.Contains(t, missing.Errors[0], "read file")

	unknown := filepath.Join(dir, "export.csv")
	require.NoError(t, os.WriteFile(unknown, []byte("a,b,c\n1,2,3\n"), 0o600))
	assert.True(t, core.ParseFile(unknown, "", core.ParseOptions{}).HasFatal())
}
