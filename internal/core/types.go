package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies one of the supported financial export sources.
type Provider string

const (
	ProviderAlipay Provider = "alipay"
	ProviderJD     Provider = "jd"
	ProviderCMB    Provider = "cmb"
)

// providerOrder is the stable listing order for the closed provider set.
var providerOrder = []Provider{ProviderAlipay, ProviderJD, ProviderCMB}

// Providers returns every known provider in listing order.
func Providers() []Provider {
	out := make([]Provider, len(providerOrder))
	copy(out, providerOrder)
	return out
}

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	for _, known := range providerOrder {
		if p == known {
			return true
		}
	}
	return false
}

func (p Provider) String() string { return string(p) }

// ParseProvider converts a source tag into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
	return p, nil
}

// Transaction type tokens shared by every provider.
const (
	TypeIncome    = "收入"
	TypeExpense   = "支出"
	TypeUncounted = "不计收支"
)

// Canonical field names used in Fields and in error messages.
const (
	FieldTransactionTime = "transaction_time"
	FieldAmount          = "amount"
	FieldTransactionType = "transaction_type"
	FieldMerchantName    = "merchant_name"
	FieldTransactionDesc = "transaction_desc"
	FieldPaymentMethod   = "payment_method"
	FieldCategory        = "category"
	FieldCounterParty    = "counter_party"
	FieldRemark          = "remark"
	FieldOrderID         = "order_id"
	FieldCurrency        = "currency"
	FieldBalance         = "balance"
)

// RequiredFields must be present on every canonical record.
var RequiredFields = []string{FieldTransactionTime, FieldAmount, FieldTransactionType}

// RawRecord is one logical row exactly as the provider exported it.
// Keys keep their column order. A RawRecord is never modified after creation.
type RawRecord struct {
	keys   []string
	values map[string]string
}

// NewRawRecord zips column names with values. Missing values become empty
// strings and surplus values are ignored. A repeated column keeps its first
// position and its last value.
func NewRawRecord(keys, values []string) RawRecord {
	r := RawRecord{
		keys:   make([]string, 0, len(keys)),
		values: make(map[string]string, len(keys)),
	}
	for i, k := range keys {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		if _, seen := r.values[k]; !seen {
			r.keys = append(r.keys, k)
		}
		r.values[k] = v
	}
	return r
}

// LineRecord wraps an untokenized line so it can travel through the failure channel.
func LineRecord(line string) RawRecord {
	return NewRawRecord([]string{"line_content"}, []string{line})
}

// Get returns the value stored under a native column name.
func (r RawRecord) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the column names in export order.
func (r RawRecord) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r RawRecord) Len() int { return len(r.keys) }

// Map returns a copy of the record as a plain map.
func (r RawRecord) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the record as a JSON object in column order.
func (r RawRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a record, keeping the key order found in the document.
func (r *RawRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("raw record: expected object")
	}

	var keys, values []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("raw record %q: %w", key, err)
		}
		keys = append(keys, key)
		values = append(values, value)
	}
	*r = NewRawRecord(keys, values)
	return nil
}

// Fields is a row after native column names were renamed to canonical names.
// Unmapped columns keep their native name.
type Fields map[string]string

// Get returns the trimmed value for a field.
func (f Fields) Get(name string) string {
	return strings.TrimSpace(f[name])
}

// CanonicalRecord is the provider-independent transaction produced by a parser.
// Empty optional strings mean the value was not present in the export.
type CanonicalRecord struct {
	SourceType      Provider         `json:"source_type"`
	TransactionTime time.Time        `json:"transaction_time"`
	Amount          decimal.Decimal  `json:"amount"`
	TransactionType string           `json:"transaction_type"`
	MerchantName    string           `json:"merchant_name,omitempty"`
	TransactionDesc string           `json:"transaction_desc,omitempty"`
	PaymentMethod   string           `json:"payment_method,omitempty"`
	Category        string           `json:"category,omitempty"`
	CounterParty    string           `json:"counter_party,omitempty"`
	Remark          string           `json:"remark,omitempty"`
	OrderID         string           `json:"order_id,omitempty"`
	Currency        string           `json:"currency"`
	Balance         *decimal.Decimal `json:"balance,omitempty"`
	RawData         RawRecord        `json:"raw_data"`
}

// Fields returns the compact canonical mapping. Absent optional values are omitted.
func (c CanonicalRecord) Fields() map[string]string {
	out := map[string]string{
		"source_type":        string(c.SourceType),
		FieldTransactionTime: c.TransactionTime.Format(time.DateTime),
		FieldAmount:          c.Amount.StringFixed(2),
		FieldTransactionType: c.TransactionType,
		FieldCurrency:        c.Currency,
	}
	optional := map[string]string{
		FieldMerchantName:    c.MerchantName,
		FieldTransactionDesc: c.TransactionDesc,
		FieldPaymentMethod:   c.PaymentMethod,
		FieldCategory:        c.Category,
		FieldCounterParty:    c.CounterParty,
		FieldRemark:          c.Remark,
		FieldOrderID:         c.OrderID,
	}
	for k, v := range optional {
		if v != "" {
			out[k] = v
		}
	}
	if c.Balance != nil {
		out[FieldBalance] = c.Balance.StringFixed(2)
	}
	return out
}

// Description returns the text used for content matching: the merchant name
// when present, otherwise the transaction description.
func (c CanonicalRecord) Description() string {
	if c.MerchantName != "" {
		return c.MerchantName
	}
	return c.TransactionDesc
}
