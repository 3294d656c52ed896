package core

import (
	"strings"
)

// MaxHeaderSearchLines is the maximum number of lines scanned for the header.
var MaxHeaderSearchLines = 50

// SplitLines splits decoded text into lines, accepting \r\n and \n endings.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// FindHeaderLine returns the index of the first line containing every
// token, or -1 when none of the first MaxHeaderSearchLines lines does.
func FindHeaderLine(lines []string, tokens []string) int {
	maxLines := MaxHeaderSearchLines
	if len(lines) < maxLines {
		maxLines = len(lines)
	}
	for i := 0; i < maxLines; i++ {
		if containsAll(lines[i], tokens) {
			return i
		}
	}
	return -1
}

func containsAll(s string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return len(tokens) > 0
}

// IsEmptyRow reports whether every cell is blank.
func IsEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// CleanCell trims whitespace and the quote and tab noise exporters leave
// around cell values.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\t\"")
	return strings.TrimSpace(s)
}

// CleanHeaders applies CleanCell to every header cell.
func CleanHeaders(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = CleanCell(h)
	}
	return out
}

// JoinNonEmpty joins the non-blank parts with sep.
func JoinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, sep)
}

// Labeled returns label+value, or "" when value is blank.
func Labeled(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return label + strings.TrimSpace(value)
}

// ClassifyIncomeExpense maps an income/expense column to a transaction type.
// It returns "" when the text carries no known token.
func ClassifyIncomeExpense(s string) string {
	switch {
	case strings.Contains(s, TypeUncounted):
		return TypeUncounted
	case strings.Contains(s, TypeIncome):
		return TypeIncome
	case strings.Contains(s, TypeExpense):
		return TypeExpense
	}
	return ""
}
