package providers

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/mitrecx/my-bill-2/internal/core"
)

const (
	cmbDate         = "记账日期"
	cmbCurrency     = "货币"
	cmbAmount       = "交易金额"
	cmbBalance      = "联机余额"
	cmbSummary      = "交易摘要"
	cmbCounterParty = "对手信息"
)

var cmbFieldMap = []core.FieldMapping{
	{Native: cmbDate, Canonical: core.FieldTransactionTime},
	{Native: cmbCurrency, Canonical: core.FieldCurrency},
	{Native: cmbAmount, Canonical: core.FieldAmount},
	{Native: cmbBalance, Canonical: core.FieldBalance},
	{Native: cmbSummary, Canonical: core.FieldTransactionDesc},
	{Native: cmbCounterParty, Canonical: core.FieldCounterParty},

	{Native: "Date", Canonical: core.FieldTransactionTime},
	{Native: "Currency", Canonical: core.FieldCurrency},
	{Native: "Transaction Amount", Canonical: core.FieldAmount},
	{Native: "Balance", Canonical: core.FieldBalance},
	{Native: "Transaction Type", Canonical: core.FieldTransactionDesc},
	{Native: "Counter Party", Canonical: core.FieldCounterParty},
}

// cmbDenylist matches statement lines that are never transactions.
var cmbDenylist = []*regexp.Regexp{
	regexp.MustCompile(`申请时间：`),
	regexp.MustCompile(`验证码：`),
	regexp.MustCompile(`记账日期.*货币.*交易金额`),
	regexp.MustCompile(`Transaction.*Date.*Currency`),
	regexp.MustCompile(`^\s*$`),
	regexp.MustCompile(`第\s*\d+\s*页`),
	regexp.MustCompile(`招商银行`),
	regexp.MustCompile(`客户姓名：`),
	regexp.MustCompile(`账户号码：`),
	regexp.MustCompile(`查询时间：`),
	regexp.MustCompile(`打印时间：`),
}

var (
	cmbDatePrefix   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	cmbCurrencyCode = regexp.MustCompile(`\b(CNY|USD|EUR|HKD)\b`)
	cmbNumber       = regexp.MustCompile(`-?\d+[,.]?\d*\.?\d+`)
)

var cmbCurrencies = map[string]bool{"CNY": true, "USD": true, "EUR": true, "HKD": true}

// cmbMinTextParts is date, currency, amount and balance.
const cmbMinTextParts = 4

var cmbRows = rowProcessor{
	provider: core.ProviderCMB,
	fieldMap: cmbFieldMap,
	post:     cmbPost,
}

func init() {
	core.Register(core.SourceDefinition{
		Provider:      core.ProviderCMB,
		Label:         "招商银行",
		Extensions:    []string{".pdf"},
		HeaderTokens:  []string{cmbDate},
		FieldMap:      cmbFieldMap,
		Derived:       []string{core.FieldTransactionType, core.FieldMerchantName, core.FieldPaymentMethod},
		FileNameHints: []string{"招商银行", "cmb"},
		ContentHints:  []string{"招商银行交易流水", "Transaction Statement"},
		ParseBytes:    parseCMBBytes,
		ParseText:     parseCMBText,
	})
}

// cmbRow is one logical statement row before field mapping.
type cmbRow struct {
	Line int
	Raw  core.RawRecord
}

// Extractor pulls logical rows out of an extracted statement.
type Extractor interface {
	Name() string
	Extract(doc *pdfDocument) ([]cmbRow, error)
}

// cmbExtractors are tried in order until one yields rows.
var cmbExtractors = []Extractor{tableExtractor{}, textExtractor{}}

func parseCMBBytes(result *core.ParseResult, data []byte) {
	doc, err := loadPDF(data)
	if err != nil {
		result.AddFileFailure(fmt.Sprintf("invalid pdf: %v", err))
		return
	}
	extractCMB(result, doc)
}

// extractCMB runs cmbExtractors over doc and processes the rows of the first
// strategy that yields any.
func extractCMB(result *core.ParseResult, doc *pdfDocument) {
	for _, ex := range cmbExtractors {
		rows, err := ex.Extract(doc)
		if err != nil {
			slog.Warn("pdf extraction strategy failed", "strategy", ex.Name(), "error", err)
			continue
		}
		if len(rows) == 0 {
			slog.Debug("pdf extraction strategy found no rows", "strategy", ex.Name())
			continue
		}
		slog.Debug("pdf rows extracted",
			"strategy", ex.Name(),
			"rows", len(rows),
			"pages", doc.PageCount,
			"producer", doc.Producer,
		)
		for _, r := range rows {
			cmbRows.process(result, r.Raw, r.Line)
		}
		return
	}

	result.AddFileFailure("no transaction rows found in PDF")
}

// parseCMBText runs the text line strategy on already extracted text.
func parseCMBText(result *core.ParseResult, text string) {
	rows := parseTextLines(core.SplitLines(text))
	if len(rows) == 0 {
		result.AddFileFailure("no transaction rows found")
		return
	}
	for _, r := range rows {
		cmbRows.process(result, r.Raw, r.Line)
	}
}

// tableExtractor reads rows positionally against the statement's header
// row. Cells are assigned to the header column whose center is nearest.
type tableExtractor struct{}

func (tableExtractor) Name() string { return "table" }

func (tableExtractor) Extract(doc *pdfDocument) ([]cmbRow, error) {
	return assembleTableRows(doc.Rows), nil
}

// tableRecord is a row under construction; continuation lines extend it.
type tableRecord struct {
	line   int
	values []string
}

func assembleTableRows(rows []pdfRow) []cmbRow {
	var (
		header     []pdfCell
		keys       []string
		dateCol    int
		records    []*tableRecord
		last       *tableRecord
		lastPage   int
		prevHeader bool
	)

	for i, row := range rows {
		if row.Page != lastPage {
			// Rows never continue across a page break.
			last = nil
			lastPage = row.Page
		}

		if isCMBHeader(row) {
			if !prevHeader {
				header = row.Cells
				keys = make([]string, len(header))
				for j, c := range header {
					keys[j] = normalizeCMBHeader(c.Text)
				}
				dateCol = columnIndex(keys, cmbDate, "Date")
			}
			prevHeader = true
			last = nil
			continue
		}
		prevHeader = false
		if header == nil {
			continue
		}

		values := make([]string, len(header))
		for _, c := range row.Cells {
			idx := nearestColumn(header, c)
			values[idx] = joinWrapped(values[idx], c.Text)
		}

		if cmbDatePrefix.MatchString(values[dateCol]) {
			last = &tableRecord{line: i + 1, values: values}
			records = append(records, last)
			continue
		}

		if deniedLine(row.Line()) || last == nil {
			continue
		}
		if !textColumnsOnly(keys, values) {
			// Anything outside the description columns ends the record.
			last = nil
			continue
		}
		for j, v := range values {
			last.values[j] = joinWrapped(last.values[j], v)
		}
	}

	out := make([]cmbRow, 0, len(records))
	for _, r := range records {
		out = append(out, cmbRow{Line: r.line, Raw: core.NewRawRecord(keys, r.values)})
	}
	return out
}

// textColumnsOnly reports whether every non-empty value sits under a
// summary or counter party column. Only those columns wrap onto
// continuation lines.
func textColumnsOnly(keys, values []string) bool {
	for j, v := range values {
		if v == "" {
			continue
		}
		switch keys[j] {
		case cmbSummary, cmbCounterParty, "Transaction Type", "Counter Party":
		default:
			return false
		}
	}
	return true
}

// isCMBHeader reports whether row is the column header, in either language.
func isCMBHeader(row pdfRow) bool {
	line := row.Line()
	if strings.Contains(line, cmbDate) || strings.Contains(line, "Transaction Date") {
		return true
	}
	if !strings.Contains(line, "Transaction") {
		return false
	}
	for _, c := range row.Cells {
		if c.Text == "Date" {
			return true
		}
	}
	return false
}

// normalizeCMBHeader returns the native name of a header cell. Bilingual
// cells resolve to their Chinese name.
func normalizeCMBHeader(cell string) string {
	cell = core.CleanCell(cell)
	for _, m := range cmbFieldMap {
		if cell == m.Native {
			return cell
		}
	}
	for _, name := range []string{cmbDate, cmbCurrency, cmbAmount, cmbBalance, cmbSummary, cmbCounterParty} {
		if strings.Contains(cell, name) {
			return name
		}
	}
	return cell
}

func columnIndex(keys []string, names ...string) int {
	for i, k := range keys {
		for _, n := range names {
			if k == n {
				return i
			}
		}
	}
	return 0
}

func nearestColumn(header []pdfCell, c pdfCell) int {
	best, bestDist := 0, math.Inf(1)
	for i, h := range header {
		if d := math.Abs(h.center() - c.center()); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// textExtractor scans whitespace separated lines for transactions.
type textExtractor struct{}

func (textExtractor) Name() string { return "text" }

func (textExtractor) Extract(doc *pdfDocument) ([]cmbRow, error) {
	return parseTextLines(doc.Lines()), nil
}

func parseTextLines(lines []string) []cmbRow {
	var out []cmbRow
	for i, line := range lines {
		if !isTransactionLine(line) {
			continue
		}
		keys, values := splitTextLine(line)
		out = append(out, cmbRow{Line: i + 1, Raw: core.NewRawRecord(keys, values)})
	}
	return out
}

func deniedLine(line string) bool {
	for _, re := range cmbDenylist {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// isTransactionLine reports whether line looks like
// "date [currency] amount balance [summary [counter party...]]".
func isTransactionLine(line string) bool {
	line = strings.TrimSpace(line)
	if deniedLine(line) || !cmbDatePrefix.MatchString(line) {
		return false
	}
	if !cmbCurrencyCode.MatchString(line) && !cmbNumber.MatchString(line) {
		return false
	}
	return len(strings.Fields(line)) >= cmbMinTextParts
}

// splitTextLine splits a transaction line into native columns. The currency
// column is optional and defaults to CNY.
func splitTextLine(line string) (keys, values []string) {
	parts := strings.Fields(line)
	add := func(k, v string) {
		keys = append(keys, k)
		values = append(values, v)
	}

	add(cmbDate, parts[0])
	next := 1
	if len(parts) > 1 && cmbCurrencies[parts[1]] {
		add(cmbCurrency, parts[1])
		next = 2
	} else {
		add(cmbCurrency, "CNY")
	}
	if len(parts) > next {
		add(cmbAmount, parts[next])
	}
	if len(parts) > next+1 {
		add(cmbBalance, parts[next+1])
	}
	if rest := parts[min(next+2, len(parts)):]; len(rest) > 0 {
		add(cmbSummary, rest[0])
		if len(rest) > 1 {
			add(cmbCounterParty, strings.Join(rest[1:], " "))
		}
	}
	return keys, values
}

// cmbPost derives type, merchant and payment method from the amount sign
// and the transaction summary.
func cmbPost(f core.Fields) error {
	if amount := f.Get(core.FieldAmount); amount != "" {
		if after, found := strings.CutPrefix(amount, "-"); found {
			f[core.FieldTransactionType] = core.TypeExpense
			f[core.FieldAmount] = after
		} else {
			f[core.FieldTransactionType] = core.TypeIncome
		}
	}

	desc := f.Get(core.FieldTransactionDesc)
	if desc != "" {
		f[core.FieldMerchantName] = cmbMerchant(desc)
	}
	f[core.FieldPaymentMethod] = cmbPaymentMethod(desc)
	return nil
}

func cmbMerchant(desc string) string {
	switch {
	case containsAny(desc, "转账", "汇款", "还款"):
		return "银行转账"
	case strings.Contains(desc, "快捷支付"):
		return "快捷支付"
	case strings.Contains(desc, "基金"):
		return "基金交易"
	case strings.Contains(desc, "银联"):
		return "银联支付"
	}
	return desc
}

func cmbPaymentMethod(desc string) string {
	switch {
	case strings.Contains(desc, "银联"):
		return "银联"
	case strings.Contains(desc, "快捷支付"):
		return "快捷支付"
	case strings.Contains(desc, "转账"):
		return "银行转账"
	case strings.Contains(desc, "基金"):
		return "基金"
	}
	return "银行卡"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
