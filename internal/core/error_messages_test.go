package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "duplicate key", err: errors.New("ERROR: duplicate key value violates unique constraint"), wantCode: "DB001"},
		{name: "sqlite unique constraint", err: errors.New("constraint failed: UNIQUE constraint failed: bills.id"), wantCode: "DB001"},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantCode: "DB002"},
		{name: "sqlite busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), wantCode: "DB004"},
		{name: "file too large", err: fmt.Errorf("%w: 20000000 bytes exceeds limit of 10485760", ErrFileTooLarge), wantCode: "FILE001"},
		{name: "unsupported extension", err: fmt.Errorf("%w: \".xlsx\"", ErrUnsupportedExtension), wantCode: "FILE002"},
		{name: "empty file", err: ErrEmptyFile, wantCode: "FILE005"},
		{name: "header not found", err: fmt.Errorf("%w: expected 记录时间, 交易类型, 金额", ErrHeaderNotFound), wantCode: "FILE006"},
		{name: "source mismatch wins over pdf", err: fmt.Errorf("%w: cmb expects .pdf, got .csv", ErrSourceMismatch), wantCode: "SRC001"},
		{name: "unknown source wins over pdf", err: fmt.Errorf("%w: cannot infer source of \"x.pdf\"", ErrUnknownSource), wantCode: "SRC002"},
		{name: "invalid date", err: errors.New(`line 4: transaction_time: invalid date "yesterday"`), wantCode: "VAL001"},
		{name: "invalid number", err: errors.New(`amount: invalid number "abc"`), wantCode: "VAL002"},
		{name: "missing field", err: errors.New("amount: missing"), wantCode: "VAL003"},
		{name: "busy", err: errors.New("too many uploads in progress, please try again later"), wantCode: "UPL001"},
		{name: "deadline", err: errors.New("context deadline exceeded"), wantCode: "UPL004"},
		{name: "broken pdf", err: errors.New("open pdf: malformed xref table"), wantCode: "FILE007"},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
		{name: "case insensitive matching", err: errors.New("DUPLICATE KEY value violates"), wantCode: "DB001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, MapError(tt.err).Code)
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrEmptyFile)
	assert.Equal(t, "The uploaded file is empty (Code: FILE005). Please upload an export that contains transactions", got)
	assert.Empty(t, FormatUserError(nil))
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.True(t, IsUserFacing(ErrHeaderNotFound))
	assert.False(t, IsUserFacing(errors.New("random internal error xyz")))
}
