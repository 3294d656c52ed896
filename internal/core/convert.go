package core

// convert.go turns the free-form text found in exports into typed values.
//
// Exports are inconsistent about date layout, currency symbols and
// separators, so every coercer cleans its input before parsing. Amounts are
// parsed as exact decimals and never pass through float64.

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseOptions controls how exported values are interpreted.
// The zero value means China Standard Time and CNY.
type ParseOptions struct {
	// Location is the zone of export timestamps, which carry no offset.
	Location *time.Location

	// DefaultCurrency fills records that do not name a currency.
	DefaultCurrency string
}

var chinaStandardTime = time.FixedZone("CST", 8*60*60)

// ChinaStandardTime returns the UTC+8 zone the exports are written in.
func ChinaStandardTime() *time.Location { return chinaStandardTime }

// DefaultParseOptions returns the options used when none are given.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{Location: chinaStandardTime, DefaultCurrency: "CNY"}
}

func (o ParseOptions) withDefaults() ParseOptions {
	def := DefaultParseOptions()
	if o.Location == nil {
		o.Location = def.Location
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = def.DefaultCurrency
	}
	return o
}

// dateTimeLayouts are tried in order; the first that parses wins.
// Month, day and hour accept one or two digits.
var dateTimeLayouts = []string{
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006年1月2日 15:04:05",
	"2006年1月2日 15时04分05秒",
	"2006-1-2",
	"2006/1/2",
	"2006年1月2日",
}

// amountRegex validates what is left of an amount after cleanup.
var amountRegex = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)$`)

var amountStripper = strings.NewReplacer("¥", "", "￥", "", ",", "", "，", "")

var whitespaceRun = regexp.MustCompile(`\s+`)

// ParseDateTime parses a timestamp in any of the known export layouts as a
// wall clock time in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return time.Time{}, ErrEmptyValue
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseAmount parses a currency amount into an exact decimal.
// Currency symbols and thousands separators are removed, then anything that
// is not a digit, a decimal point or a minus sign is dropped.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := amountStripper.Replace(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range cleaned {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		if strings.TrimSpace(s) == "" {
			return decimal.Zero, ErrEmptyValue
		}
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	if !amountRegex.MatchString(digits) {
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	return d, nil
}

// CleanString trims s, folds line breaks into spaces and collapses runs of
// whitespace. An empty result means the value is absent.
func CleanString(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// RefundKind classifies the refund annotation attached to an amount.
type RefundKind int

const (
	RefundNone RefundKind = iota
	RefundPartial
	RefundFull
)

// Refund describes a refund annotation such as "(已退款273.48)".
type Refund struct {
	Kind   RefundKind
	Amount decimal.Decimal
}

// Note returns the remark text recording the refund.
func (r Refund) Note() string {
	switch r.Kind {
	case RefundPartial:
		return "退款: 已退款" + r.Amount.StringFixed(2)
	case RefundFull:
		return "退款: 已全额退款"
	}
	return ""
}

var (
	partialRefundRegex = regexp.MustCompile(`[(（]\s*已退款\s*[¥￥]?\s*([0-9.,，]+)\s*[)）]`)
	fullRefundRegex    = regexp.MustCompile(`[(（]\s*已全额退款\s*[)）]`)
)

// ExtractRefund splits an annotated amount like "577.61(已退款273.48)" into
// the refund it describes and the gross amount text.
func ExtractRefund(s string) (Refund, string, error) {
	if loc := fullRefundRegex.FindStringIndex(s); loc != nil {
		gross := strings.TrimSpace(s[:loc[0]] + s[loc[1]:])
		return Refund{Kind: RefundFull}, gross, nil
	}
	if m := partialRefundRegex.FindStringSubmatchIndex(s); m != nil {
		refund, err := ParseAmount(s[m[2]:m[3]])
		if err != nil {
			return Refund{}, s, fmt.Errorf("refund: %w", err)
		}
		gross := strings.TrimSpace(s[:m[0]] + s[m[1]:])
		return Refund{Kind: RefundPartial, Amount: refund}, gross, nil
	}
	return Refund{}, s, nil
}
