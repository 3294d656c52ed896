package providers

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/mitrecx/my-bill-2/internal/core"
)

const alipayExport = `------------------------------------------------------------------------------------
导出信息：
姓名：张三
记录时间,分类,交易类型,收支,金额,备注,账户,来源,标签
2024-01-01 10:00:00,餐饮,消费,支出,12.00,美团-午餐,余额宝,手动记账,工作
2024-01-02 09:30:00,工资,转账,收入,"1,000.00",工资,招商银行卡,,
,,,,,,,,
`

func TestParseAlipay(t *testing.T) {
	result := core.ParseText(core.ProviderAlipay, alipayExport, "cashbook_record.csv", core.ParseOptions{})

	require.Equal(t, 2, result.TotalCount, result.Errors)
	require.Equal(t, 2, result.SuccessCount)
	assert.False(t, result.HasFatal())

	lunch := result.Successes[0]
	assert.Equal(t, core.ProviderAlipay, lunch.SourceType)
	assert.Equal(t, core.TypeExpense, lunch.TransactionType)
	assert.True(t, decimal.RequireFromString("12").Equal(lunch.Amount))
	assert.Equal(t, "美团-午餐 | 来源: 手动记账 | 标签: 工作", lunch.TransactionDesc)
	assert.Equal(t, "美团", lunch.MerchantName)
	assert.Equal(t, "余额宝", lunch.PaymentMethod)
	assert.Equal(t, "餐饮", lunch.Category)
	assert.Equal(t, "CNY", lunch.Currency)
	assert.Equal(t, "2024-01-01 10:00:00", lunch.TransactionTime.Format("2006-01-02 15:04:05"))

	v, ok := lunch.RawData.Get("收支")
	assert.True(t, ok)
	assert.Equal(t, "支出", v)
	assert.Equal(t, []string{"记录时间", "分类", "交易类型", "收支", "金额", "备注", "账户", "来源", "标签"}, lunch.RawData.Keys())

	salary := result.Successes[1]
	assert.Equal(t, core.TypeIncome, salary.TransactionType)
	assert.True(t, decimal.RequireFromString("1000").Equal(salary.Amount))
	assert.Equal(t, "工资", salary.TransactionDesc)
	assert.Empty(t, salary.MerchantName)
	assert.Equal(t, "招商银行卡", salary.PaymentMethod)
}

func TestParseAlipay_Options(t *testing.T) {
	opts := core.ParseOptions{Location: time.UTC, DefaultCurrency: "USD"}
	result := core.ParseText(core.ProviderAlipay, alipayExport, "cashbook_record.csv", opts)
	require.Equal(t, 2, result.SuccessCount, result.Errors)
	assert.Equal(t, opts, result.Options())

	lunch := result.Successes[0]
	assert.Equal(t, "USD", lunch.Currency)
	assert.True(t, lunch.TransactionTime.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
}

func TestParseAlipay_GBKBytes(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(alipayExport)
	require.NoError(t, err)

	result := core.ParseBytes(core.ProviderAlipay, []byte(encoded), "支付宝.csv", core.ParseOptions{})

	assert.Equal(t, core.EncodingGBK, result.Encoding)
	assert.Equal(t, 2, result.SuccessCount, result.Errors)
	assert.Equal(t, "美团", result.Successes[0].MerchantName)
}

func TestParseAlipay_RowFailures(t *testing.T) {
	text := strings.Join([]string{
		"记录时间,分类,交易类型,收支,金额,备注",
		"2024-01-03 08:00:00,餐饮,消费,支出,5.00,早餐",
		"2024-01-03 09:00:00,餐饮,消费,支出,abc,咖啡",
		"2024-01-03 12:00:00,餐饮,消费,支出,30.00,午饭,extra",
		"not a date,餐饮,消费,支出,,晚饭",
	}, "\n")

	result := core.ParseText(core.ProviderAlipay, text, "a.csv", core.ParseOptions{})

	assert.Equal(t, 4, result.TotalCount)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 3, result.FailedCount)
	require.Len(t, result.Failures, 3)

	assert.Equal(t, 3, result.Failures[0].Line)
	assert.Contains(t, result.Failures[0].Error, "line 3: amount: invalid number")

	assert.Equal(t, 4, result.Failures[1].Line)
	assert.Contains(t, result.Failures[1].Error, "row has 7 fields, header has 6")

	assert.Contains(t, result.Failures[2].Error, "transaction_time: invalid date")
	assert.Contains(t, result.Failures[2].Error, "amount: missing")
	v, _ := result.Failures[2].Raw.Get("备注")
	assert.Equal(t, "晚饭", v)
}

func TestParseAlipay_HeaderNotFound(t *testing.T) {
	result := core.ParseText(core.ProviderAlipay, "a,b,c\n1,2,3\n", "a.csv", core.ParseOptions{})

	assert.True(t, result.HasFatal())
	assert.Equal(t, 1, result.FailedCount)
	assert.Zero(t, result.SuccessCount)
	assert.Contains(t, result.Errors[0], "header not found")
	v, _ := result.Failures[0].Raw.Get("file_name")
	assert.Equal(t, "a.csv", v)
}

func TestMerchantFromDesc(t *testing.T) {
	tests := []struct {
		desc string
		want string
	}{
		{"美团-午餐", "美团"},
		{"淘宝：购物", "淘宝"},
		{"星巴克 - 拿铁：大杯", "星巴克"},
		{"工资", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, merchantFromDesc(tt.desc), tt.desc)
	}
}
