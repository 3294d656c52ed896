package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-05 14:07:09", time.Date(2024, 3, 5, 14, 7, 9, 0, ChinaStandardTime())},
		{"2024-03-05 14:07", time.Date(2024, 3, 5, 14, 7, 0, 0, ChinaStandardTime())},
		{"2024/03/05 14:07:09", time.Date(2024, 3, 5, 14, 7, 9, 0, ChinaStandardTime())},
		{"2024/3/5 9:07", time.Date(2024, 3, 5, 9, 7, 0, 0, ChinaStandardTime())},
		{"2024年03月05日 14:07:09", time.Date(2024, 3, 5, 14, 7, 9, 0, ChinaStandardTime())},
		{"2024年3月5日 14时07分09秒", time.Date(2024, 3, 5, 14, 7, 9, 0, ChinaStandardTime())},
		{"2024-03-05", time.Date(2024, 3, 5, 0, 0, 0, 0, ChinaStandardTime())},
		{"2024/03/05", time.Date(2024, 3, 5, 0, 0, 0, 0, ChinaStandardTime())},
		{"2024年3月5日", time.Date(2024, 3, 5, 0, 0, 0, 0, ChinaStandardTime())},
		{"  2024-03-05   14:07:09 ", time.Date(2024, 3, 5, 14, 7, 9, 0, ChinaStandardTime())},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDateTime(tt.input, ChinaStandardTime())
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestParseDateTime_Invalid(t *testing.T) {
	_, err := ParseDateTime("", ChinaStandardTime())
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = ParseDateTime("03/05/2024", ChinaStandardTime())
	assert.ErrorContains(t, err, "invalid date")

	_, err = ParseDateTime("2024-13-01", ChinaStandardTime())
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"123.45", "123.45"},
		{"¥1,234.50", "1234.5"},
		{"￥1，234.50", "1234.5"},
		{"-300.00", "-300"},
		{" 12 ", "12"},
		{"0.1", "0.1"},
		{"元 88.8", "88.8"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestParseAmount_ExactDecimal(t *testing.T) {
	a, err := ParseAmount("0.10")
	require.NoError(t, err)
	b, err := ParseAmount("0.20")
	require.NoError(t, err)

	assert.True(t, a.Add(b).Equal(decimal.RequireFromString("0.3")))
}

func TestParseAmount_Invalid(t *testing.T) {
	_, err := ParseAmount("")
	assert.ErrorIs(t, err, ErrEmptyValue)

	for _, input := range []string{"abc", "1-2", "1.2.3", "--5", "."} {
		_, err := ParseAmount(input)
		assert.ErrorContains(t, err, "invalid number", input)
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "a b", CleanString("  a\r\nb "))
	assert.Equal(t, "line one line two", CleanString("line one\nline   two"))
	assert.Equal(t, "", CleanString(" \n\t "))
}

func TestExtractRefund(t *testing.T) {
	t.Run("partial refund", func(t *testing.T) {
		refund, gross, err := ExtractRefund("577.61(已退款273.48)")
		require.NoError(t, err)
		assert.Equal(t, RefundPartial, refund.Kind)
		assert.Equal(t, "577.61", gross)
		assert.True(t, refund.Amount.Equal(decimal.RequireFromString("273.48")))
		assert.Equal(t, "退款: 已退款273.48", refund.Note())
	})

	t.Run("full-width parentheses", func(t *testing.T) {
		refund, gross, err := ExtractRefund("50.00（已退款20.00）")
		require.NoError(t, err)
		assert.Equal(t, RefundPartial, refund.Kind)
		assert.Equal(t, "50.00", gross)
	})

	t.Run("full refund", func(t *testing.T) {
		refund, gross, err := ExtractRefund("100.00(已全额退款)")
		require.NoError(t, err)
		assert.Equal(t, RefundFull, refund.Kind)
		assert.Equal(t, "100.00", gross)
		assert.Equal(t, "退款: 已全额退款", refund.Note())
	})

	t.Run("no annotation", func(t *testing.T) {
		refund, gross, err := ExtractRefund("42.00")
		require.NoError(t, err)
		assert.Equal(t, RefundNone, refund.Kind)
		assert.Equal(t, "42.00", gross)
		assert.Empty(t, refund.Note())
	})
}
