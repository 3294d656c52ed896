package providers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mitrecx/my-bill-2/internal/core"
)

var alipayHeaderTokens = []string{"记录时间", "交易类型", "金额"}

var alipayFieldMap = []core.FieldMapping{
	{Native: "记录时间", Canonical: core.FieldTransactionTime},
	{Native: "交易类型", Canonical: core.FieldTransactionType},
	{Native: "收支", Canonical: "income_expense"},
	{Native: "金额", Canonical: core.FieldAmount},
	{Native: "备注", Canonical: core.FieldTransactionDesc},
	{Native: "账户", Canonical: "account"},
	{Native: "来源", Canonical: "source"},
	{Native: "标签", Canonical: "tags"},
	{Native: "分类", Canonical: core.FieldCategory},
}

var alipayRows = rowProcessor{
	provider: core.ProviderAlipay,
	fieldMap: alipayFieldMap,
	post:     alipayPost,
}

func init() {
	core.Register(core.SourceDefinition{
		Provider:        core.ProviderAlipay,
		Label:           "支付宝",
		Extensions:      []string{".csv"},
		HeaderTokens:    alipayHeaderTokens,
		FieldMap:        alipayFieldMap,
		Derived:         []string{core.FieldMerchantName, core.FieldPaymentMethod},
		Encodings:       csvEncodings,
		DefaultEncoding: core.EncodingGBK,
		FileNameHints:   []string{"支付宝", "alipay", "cashbook_record"},
		ContentHints:    []string{"记录时间,交易类型,收支,金额", "记录时间,分类,交易类型,收支,金额"},
		ParseBytes:      parseAlipayBytes,
		ParseText:       parseAlipay,
	})
}

func parseAlipayBytes(result *core.ParseResult, data []byte) {
	text, enc, err := decode(core.ProviderAlipay, data, csvEncodings, core.EncodingGBK)
	if err != nil {
		result.AddFileFailure(err.Error())
		return
	}
	result.Encoding = enc
	parseAlipay(result, text)
}

// parseAlipay reads a cashbook export: free-text preamble, one header line,
// then regular comma-separated rows.
func parseAlipay(result *core.ParseResult, text string) {
	lines := core.SplitLines(text)
	start := core.FindHeaderLine(lines, alipayHeaderTokens)
	if start < 0 {
		result.AddFileFailure(headerNotFound(alipayHeaderTokens))
		return
	}

	r := csv.NewReader(strings.NewReader(strings.Join(lines[start:], "\n")))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		result.AddFileFailure(fmt.Sprintf("invalid csv header: %v", err))
		return
	}
	header = trimTrailingEmpty(core.CleanHeaders(header))

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := start + 1
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = start + pe.StartLine
			}
			result.AddFailure(core.LineRecord(lines[min(line-1, len(lines)-1)]), line, fmt.Sprintf("invalid csv: %v", err))
			continue
		}
		line, _ := r.FieldPos(0)
		line += start

		for i := range row {
			row[i] = core.CleanCell(row[i])
		}
		if core.IsEmptyRow(row) {
			continue
		}

		raw := core.NewRawRecord(header, row)
		if extra := trimTrailingEmpty(row); len(extra) > len(header) {
			result.AddFailure(raw, line, fmt.Sprintf("row has %d fields, header has %d", len(extra), len(header)))
			continue
		}
		alipayRows.process(result, raw, line)
	}
}

// alipayPost applies the cashbook field rules.
func alipayPost(f core.Fields) error {
	if t := core.ClassifyIncomeExpense(f.Get("income_expense")); t != "" {
		f[core.FieldTransactionType] = t
	}

	desc := f.Get(core.FieldTransactionDesc)
	f[core.FieldTransactionDesc] = core.JoinNonEmpty(" | ",
		desc,
		core.Labeled("来源: ", f.Get("source")),
		core.Labeled("标签: ", f.Get("tags")),
	)
	if merchant := merchantFromDesc(desc); merchant != "" {
		f[core.FieldMerchantName] = merchant
	}

	if account := f.Get("account"); account != "" {
		f[core.FieldPaymentMethod] = account
	}
	return nil
}

// merchantFromDesc returns the text before the first "-" or, failing that,
// the first full-width colon.
func merchantFromDesc(desc string) string {
	for _, sep := range []string{"-", "："} {
		if before, _, found := strings.Cut(desc, sep); found {
			return strings.TrimSpace(before)
		}
	}
	return ""
}
