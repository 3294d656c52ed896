package providers

import (
	"fmt"
	"strings"

	"github.com/mitrecx/my-bill-2/internal/core"
)

var jdHeaderTokens = []string{"交易时间", "商户名称", "金额"}

var jdFieldMap = []core.FieldMapping{
	{Native: "交易时间", Canonical: core.FieldTransactionTime},
	{Native: "商户名称", Canonical: core.FieldMerchantName},
	{Native: "交易说明", Canonical: core.FieldTransactionDesc},
	{Native: "金额", Canonical: core.FieldAmount},
	{Native: "收/付款方式", Canonical: core.FieldPaymentMethod},
	{Native: "交易状态", Canonical: "transaction_status"},
	{Native: "收/支", Canonical: "income_expense"},
	{Native: "交易分类", Canonical: core.FieldCategory},
	{Native: "交易订单号", Canonical: core.FieldOrderID},
	{Native: "商家订单号", Canonical: "merchant_order_id"},
	{Native: "备注", Canonical: core.FieldRemark},
}

// jdPlatformAccounts are JD's own finance products; they are never a counter party.
var jdPlatformAccounts = map[string]bool{
	"京东小金库": true,
	"京东白条":  true,
	"京东金融":  true,
}

var jdRows = rowProcessor{
	provider: core.ProviderJD,
	fieldMap: jdFieldMap,
	post:     jdPost,
}

func init() {
	core.Register(core.SourceDefinition{
		Provider:        core.ProviderJD,
		Label:           "京东",
		Extensions:      []string{".csv"},
		HeaderTokens:    jdHeaderTokens,
		FieldMap:        jdFieldMap,
		Derived:         []string{core.FieldTransactionType, core.FieldCounterParty},
		Encodings:       csvEncodings,
		DefaultEncoding: core.EncodingUTF8,
		FileNameHints:   []string{"京东", "jd"},
		ContentHints:    []string{"交易时间\t,商户名称", "交易时间,商户名称,交易说明,金额"},
		ParseBytes:      parseJDBytes,
		ParseText:       parseJD,
	})
}

func parseJDBytes(result *core.ParseResult, data []byte) {
	text, enc, err := decode(core.ProviderJD, data, csvEncodings, core.EncodingUTF8)
	if err != nil {
		result.AddFileFailure(err.Error())
		return
	}
	result.Encoding = enc
	parseJD(result, text)
}

// parseJD reads a JD export. Its rows end the first field with a tab and
// separate the rest with commas, so encoding/csv cannot read them.
func parseJD(result *core.ParseResult, text string) {
	lines := core.SplitLines(text)
	start := core.FindHeaderLine(lines, jdHeaderTokens)
	if start < 0 {
		result.AddFileFailure(headerNotFound(jdHeaderTokens))
		return
	}
	header := SplitJDHeader(lines[start])

	for i := start + 1; i < len(lines); i++ {
		line := lines[i]
		lineNum := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields, err := SplitJDRow(line)
		if err != nil {
			result.AddFailure(core.LineRecord(line), lineNum, err.Error())
			continue
		}
		raw := core.NewRawRecord(header, Reconcile(fields, len(header)))
		jdRows.process(result, raw, lineNum)
	}
}

// SplitJDHeader splits the header line. Empty header cells are dropped.
func SplitJDHeader(line string) []string {
	var cells []string
	if first, rest, found := strings.Cut(line, "\t"); found {
		cells = append([]string{first}, strings.Split(afterFirstField(rest), ",")...)
	} else {
		cells = strings.Split(line, ",")
	}

	header := make([]string, 0, len(cells))
	for _, c := range cells {
		if c = core.CleanCell(c); c != "" {
			header = append(header, c)
		}
	}
	return header
}

// SplitJDRow tokenizes a data row. The first field ends at the first tab;
// the remaining fields are comma separated and may carry stray tabs, which
// are removed. Trailing empty fields are dropped.
func SplitJDRow(line string) ([]string, error) {
	first, rest, found := strings.Cut(line, "\t")
	if !found {
		return nil, fmt.Errorf("first field is not tab-terminated")
	}

	parts := strings.Split(afterFirstField(rest), ",")
	fields := make([]string, 0, len(parts)+1)
	fields = append(fields, core.CleanString(first))
	for _, p := range parts {
		fields = append(fields, core.CleanString(strings.ReplaceAll(p, "\t", "")))
	}
	return trimTrailingEmpty(fields), nil
}

// afterFirstField drops the tab run and the single comma that follow the
// first field. A second comma would mean an empty second field.
func afterFirstField(rest string) string {
	return strings.TrimPrefix(strings.TrimLeft(rest, "\t"), ",")
}

// Reconcile pads fields with empty strings or truncates it to exactly n cells.
func Reconcile(fields []string, n int) []string {
	if len(fields) >= n {
		return fields[:n]
	}
	out := make([]string, n)
	copy(out, fields)
	return out
}

// jdPost applies the JD field rules.
func jdPost(f core.Fields) error {
	if t := core.ClassifyIncomeExpense(f.Get("income_expense")); t != "" {
		f[core.FieldTransactionType] = t
	}

	refund, gross, err := core.ExtractRefund(f.Get(core.FieldAmount))
	if err != nil {
		return fmt.Errorf("%s: %w", core.FieldAmount, err)
	}
	switch refund.Kind {
	case core.RefundPartial:
		amount, err := core.ParseAmount(gross)
		if err != nil {
			return fmt.Errorf("%s: %w", core.FieldAmount, err)
		}
		f[core.FieldAmount] = amount.Sub(refund.Amount).String()
	case core.RefundFull:
		f[core.FieldTransactionType] = core.TypeUncounted
		f[core.FieldAmount] = gross
	}

	merchant := f.Get(core.FieldMerchantName)
	f[core.FieldTransactionDesc] = core.JoinNonEmpty(" - ", merchant, f.Get(core.FieldTransactionDesc))

	if f.Get(core.FieldOrderID) == "" {
		f[core.FieldOrderID] = f.Get("merchant_order_id")
	}

	f[core.FieldRemark] = core.JoinNonEmpty(" | ",
		refund.Note(),
		f.Get(core.FieldRemark),
		core.Labeled("状态: ", f.Get("transaction_status")),
		core.Labeled("分类: ", f.Get(core.FieldCategory)),
	)

	if merchant != "" && !jdPlatformAccounts[merchant] {
		f[core.FieldCounterParty] = merchant
	}
	return nil
}
