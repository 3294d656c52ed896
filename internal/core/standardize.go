package core

import (
	"fmt"
	"strings"
)

// Standardize coerces a post-processed row into a CanonicalRecord.
//
// Optional fields that fail to coerce are dropped. Missing or invalid
// required fields are all reported in one FieldErrors value, and no record
// is returned with them.
func Standardize(source Provider, f Fields, raw RawRecord, opts ParseOptions) (CanonicalRecord, error) {
	opts = opts.withDefaults()
	var errs FieldErrors

	timeText := f.Get(FieldTransactionTime)
	txTime, err := ParseDateTime(timeText, opts.Location)
	if err != nil {
		errs = append(errs, fieldError(FieldTransactionTime, timeText, err))
	}

	amountText := f.Get(FieldAmount)
	amount, err := ParseAmount(amountText)
	if err != nil {
		errs = append(errs, fieldError(FieldAmount, amountText, err))
	} else if amount.IsNegative() {
		errs = append(errs, ValidationError{Field: FieldAmount, Value: amountText, Message: "must not be negative"})
	}

	txType := CleanString(f[FieldTransactionType])
	if txType == "" {
		errs = append(errs, ValidationError{Field: FieldTransactionType, Message: "missing"})
	}

	if len(errs) > 0 {
		return CanonicalRecord{}, errs
	}

	rec := CanonicalRecord{
		SourceType:      source,
		TransactionTime: txTime,
		Amount:          amount,
		TransactionType: txType,
		MerchantName:    CleanString(f[FieldMerchantName]),
		TransactionDesc: CleanString(f[FieldTransactionDesc]),
		PaymentMethod:   CleanString(f[FieldPaymentMethod]),
		Category:        CleanString(f[FieldCategory]),
		CounterParty:    CleanString(f[FieldCounterParty]),
		Remark:          CleanString(f[FieldRemark]),
		OrderID:         CleanString(f[FieldOrderID]),
		Currency:        strings.ToUpper(CleanString(f[FieldCurrency])),
		RawData:         raw,
	}
	if rec.Currency == "" {
		rec.Currency = opts.DefaultCurrency
	}
	if b, err := ParseAmount(f.Get(FieldBalance)); err == nil {
		rec.Balance = &b
	}
	return rec, nil
}

// rowError prefixes a row failure with its line number when known.
func rowError(line int, msg string) string {
	if line > 0 {
		return fmt.Sprintf("line %d: %s", line, msg)
	}
	return msg
}
